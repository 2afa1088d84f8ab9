// ABOUTME: Process-wide structured logger setup
// ABOUTME: Always logs to a file; adds stdout when no TUI owns the terminal
package logging

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// Options controls where and how much is logged
type Options struct {
	File   string
	Stdout bool
	Debug  bool
}

// Setup installs the default logger and routes the standard library logger
// through it. The returned closer releases the log file.
func Setup(opts Options) (*log.Logger, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}

	f, err := os.OpenFile(opts.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	var w io.Writer = f
	if opts.Stdout {
		w = io.MultiWriter(os.Stdout, f)
	}

	logger := New(w, opts.Debug)
	log.SetDefault(logger)

	// mdns and net/http log through the standard library
	stdlog.SetFlags(0)
	stdlog.SetOutput(logger.StandardLog(log.StandardLogOptions{ForceLevel: log.DebugLevel}).Writer())

	return logger, f, nil
}

// New creates a logger writing to w
func New(w io.Writer, debug bool) *log.Logger {
	level := log.InfoLevel
	if debug {
		level = log.DebugLevel
	}
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Level:           level,
	})
}
