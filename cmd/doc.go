// Package cmd implements the command-line interface for calbot.
//
// This package provides the following commands:
//   - serve: Run the Telegram bot, the OAuth callback server and the metrics server
//   - version: Display version information
//   - keygen: Generate a credential encryption key
//
// The serve command is the default command when no subcommand is specified.
package cmd
