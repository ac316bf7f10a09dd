// Package logger wires process-wide logging for the trading server.
// A JSON slog handler and the standard library logger both write through
// one size-rotating file plus stdout, so the log-management endpoints see
// every line regardless of which logger produced it.
package logger

import (
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
)

// FileName is the active log file inside the configured log directory.
const FileName = "trading.log"

// Options configures Init.
type Options struct {
	Service    string
	Level      slog.Level
	Dir        string // log directory; empty disables file output
	MaxSizeMB  int64  // rotate threshold, default 10
	MaxBackups int    // rotated files kept, default 5
}

// Init builds the process logger and redirects the default stdlib logger
// to the same writer. Returns the slog logger and the active log file path
// ("" when file output is disabled).
func Init(opts Options) (*slog.Logger, string) {
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 10
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 5
	}

	var w io.Writer = os.Stdout
	path := ""
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			log.Printf("[logger] WARNING: cannot create log dir %s: %v", opts.Dir, err)
		} else {
			path = filepath.Join(opts.Dir, FileName)
			rot := &Rotator{
				Filename:   path,
				MaxBytes:   opts.MaxSizeMB * 1024 * 1024,
				MaxBackups: opts.MaxBackups,
			}
			w = io.MultiWriter(os.Stdout, rot)
		}
	}

	lg := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: opts.Level})).
		With(slog.String("service", opts.Service))
	slog.SetDefault(lg)

	log.SetOutput(w)
	return lg, path
}
