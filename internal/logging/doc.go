// Package logging provides structured logging utilities for calbot.
//
// All components take a *slog.Logger; this package holds the shared attribute
// keys, the helpers that build them, and the constructor for the process
// logger.
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "auth_complete")
//	logger.Info("credential stored",
//	    logging.User(userID),
//	    logging.Status(logging.StatusSuccess))
//
// Libraries with printf-style loggers (badger) are bridged with PrintfAdapter:
//
//	opts := badger.DefaultOptions(dir).WithLogger(logging.NewPrintfAdapter(logger))
//
// # Security Considerations
//
//   - Chat user ids are hashed so log lines can be correlated without exposing the account
//   - Tokens are never logged directly, only SanitizeToken lengths
package logging
