package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options controls how the process-wide slog.Logger is built.
type Options struct {
	// Debug lowers the level to slog.LevelDebug.
	Debug bool

	// Format is "text" (default) or "json".
	Format string

	// Writer receives log output (default: os.Stderr).
	Writer io.Writer
}

// New builds the application logger from opts.
func New(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(handler)
}

// PrintfAdapter adapts an slog.Logger to printf-style logger interfaces,
// such as the one badger expects (Errorf, Warningf, Infof, Debugf).
type PrintfAdapter struct {
	logger *slog.Logger
}

// NewPrintfAdapter creates a new PrintfAdapter wrapping the given slog.Logger.
// If logger is nil, slog.Default() is used.
func NewPrintfAdapter(logger *slog.Logger) *PrintfAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &PrintfAdapter{logger: logger}
}

// Errorf logs a formatted message at error level.
func (a *PrintfAdapter) Errorf(format string, args ...interface{}) {
	a.logger.Error(trimMessage(format, args...))
}

// Warningf logs a formatted message at warn level.
func (a *PrintfAdapter) Warningf(format string, args ...interface{}) {
	a.logger.Warn(trimMessage(format, args...))
}

// Infof logs a formatted message at info level.
func (a *PrintfAdapter) Infof(format string, args ...interface{}) {
	a.logger.Info(trimMessage(format, args...))
}

// Debugf logs a formatted message at debug level.
func (a *PrintfAdapter) Debugf(format string, args ...interface{}) {
	a.logger.Debug(trimMessage(format, args...))
}

// Logger returns the underlying slog.Logger for direct access when needed.
func (a *PrintfAdapter) Logger() *slog.Logger {
	return a.logger
}

// trimMessage formats a printf-style message and drops the trailing newline
// that printf loggers habitually append.
func trimMessage(format string, args ...interface{}) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}
