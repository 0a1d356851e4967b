package cmd

import (
	"os"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	flagServerURL string
	flagIdentity  string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "glimmer-call",
	Short: "Demo soft-client for the glimmer call signaling server",
	Long: `glimmer-call connects to a glimmer signaling server as a given identity
and either dials another user or waits for incoming calls. Media is
negotiated peer-to-peer over WebRTC; the server only relays signaling.`,
}

// Execute runs the CLI. Called once from main.
func Execute() {
	w := zerolog.ConsoleWriter{Out: os.Stderr}
	zlog.Logger = zerolog.New(w).With().Timestamp().Logger()

	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		zlog.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagServerURL, "server", "", "signaling server websocket URL")
	rootCmd.PersistentFlags().StringVar(&flagIdentity, "identity", "", "identity to connect as")
	rootCmd.MarkPersistentFlagRequired("identity")
}
