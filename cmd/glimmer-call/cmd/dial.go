package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var dialCmd = &cobra.Command{
	Use:   "dial <target>",
	Short: "Call another user",
	Long: `Dial another user by identity.

Examples:
  glimmer-call dial bob --identity alice
  glimmer-call dial bob --identity alice --server ws://localhost:8080/ws`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if args[0] == flagIdentity {
			return fmt.Errorf("cannot call yourself")
		}
		return runSession(args[0], false)
	},
}

func init() {
	rootCmd.AddCommand(dialCmd)
}
