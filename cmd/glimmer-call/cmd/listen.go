package cmd

import (
	"github.com/spf13/cobra"
)

var flagAutoAnswer bool

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Wait for incoming calls",
	Long: `Connect to the signaling server and wait for incoming calls.

Examples:
  glimmer-call listen --identity bob
  glimmer-call listen --identity bob --auto-answer=false`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession("", flagAutoAnswer)
	},
}

func init() {
	listenCmd.Flags().BoolVar(&flagAutoAnswer, "auto-answer", true, "automatically accept incoming calls")
	rootCmd.AddCommand(listenCmd)
}
