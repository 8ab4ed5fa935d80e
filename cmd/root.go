package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/calbot/internal/logging"
)

// rootCmd represents the base command for the calbot application
var rootCmd = &cobra.Command{
	Use:   "calbot",
	Short: "Telegram assistant for Google Calendar",
	Long: `calbot is a Telegram bot that manages your Google Calendar.

Users connect their Google account with /auth and then ask for events or
schedule new ones in plain language. A language model turns each message
into calendar tool calls.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		format := logFormat
		if !cmd.Flags().Changed("log-format") {
			if env := os.Getenv("LOG_FORMAT"); env != "" {
				format = env
			}
		}
		slog.SetDefault(logging.New(logging.Options{Debug: debugMode, Format: format}))
	},
}

var (
	// version will be set by main
	version = "dev"

	debugMode bool
	logFormat string
)

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "calbot version %s\n" .Version}}`)

	// If no subcommand is provided, run the bot by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json. Can also use LOG_FORMAT env var.")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newKeygenCmd())
}
