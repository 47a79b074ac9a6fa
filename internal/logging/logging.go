// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/term"
	"import.name/sjournal"
)

type Config struct {
	Journal bool
	Debug   bool
}

func (c *Config) level() slog.Level {
	if c.Debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// Init returns some kind of logger on error.
func Init(c Config) (*slog.Logger, error) {
	if !c.Journal {
		log := slog.New(newHandler(os.Stderr, c.level(), term.IsTerminal(int(os.Stderr.Fd()))))
		slog.SetDefault(log)
		return log, nil
	}

	opts := &sjournal.HandlerOptions{
		Delimiter:  sjournal.ColonDelimiter,
		TimeFormat: time.RFC3339Nano,
	}

	h, err := sjournal.NewHandler(opts)
	if err != nil {
		return slog.Default(), err
	}

	log := slog.New(levelHandler{h, c.level()})
	slog.SetDefault(log)
	return log, nil
}

// levelHandler decides which levels are enabled regardless of the wrapped
// handler's defaults.
type levelHandler struct {
	slog.Handler
	level slog.Level
}

func (h levelHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return levelHandler{h.Handler.WithAttrs(attrs), h.level}
}

func (h levelHandler) WithGroup(name string) slog.Handler {
	return levelHandler{h.Handler.WithGroup(name), h.level}
}

// newHandler writes text for humans and JSON for machines.
func newHandler(w io.Writer, level slog.Level, terminal bool) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if terminal {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}
