package internal

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

// newLogger builds the process logger. out is the console stream; the MCP
// mode passes stderr because stdout carries the protocol. The returned
// closer flushes the rotating file, if any.
func newLogger(cfg ApplicationConfig, out *os.File) (*slog.Logger, io.Closer) {
	var w io.Writer = out
	var closer io.Closer = nopCloser{}
	color := isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd())

	if cfg.LogFile != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50, // MB
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		w = io.MultiWriter(out, lj)
		closer = lj
		color = false
	}

	var h slog.Handler
	switch cfg.LogFormat {
	case LogFormatPretty:
		h = tint.NewHandler(w, &tint.Options{
			Level:      cfg.LogLevel,
			TimeFormat: time.DateTime,
			NoColor:    !color,
		})
	default:
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.LogLevel})
	}
	return slog.New(h), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
