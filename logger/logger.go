/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	slogmulti "github.com/samber/slog-multi"
)

type Options struct {
	Verbosity string
	// Logfile, when set, receives JSON logs in addition to stderr.
	Logfile string
}

func ParseLevel(verbosity string) slog.Level {
	switch verbosity {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelDebug // default to DEBUG if verbosity is not recognized
	}
}

// Setup installs the default slog logger. The returned closer releases the
// logfile, if any.
func Setup(o Options) (io.Closer, error) {
	level := ParseLevel(o.Verbosity)

	w := os.Stderr
	var handler slog.Handler = tint.NewHandler(w, &tint.Options{
		NoColor:   !isatty.IsTerminal(w.Fd()),
		Level:     level,
		AddSource: level < 0, //only for debugging
	})

	var closer io.Closer = nopCloser{}
	if o.Logfile != "" {
		f, err := os.OpenFile(o.Logfile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open logfile: %w", err)
		}
		handler = slogmulti.Fanout(handler, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
		closer = f
	}

	slog.SetDefault(slog.New(handler))
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
