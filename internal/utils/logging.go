package utils

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

const logTimeFormat = "2006-01-02T15:04:05.000Z07:00"

type LogOptions struct {
	// Console receives human readable, optionally coloured output. Defaults to os.Stdout.
	Console io.Writer
	// ConsoleLevel may be a *slog.LevelVar so callers can quieten the console mid-run.
	ConsoleLevel slog.Leveler
	// FilePath, when set, also writes plain text logs at debug level to this file.
	FilePath string
}

// NewLogger builds the process logger. The returned close func must be called on exit.
func NewLogger(opts LogOptions) (*slog.Logger, func() error, error) {
	console := opts.Console
	if console == nil {
		console = os.Stdout
	}
	level := opts.ConsoleLevel
	if level == nil {
		level = slog.LevelInfo
	}

	consoleHandler := tint.NewHandler(console, &tint.Options{
		Level:      level,
		TimeFormat: logTimeFormat,
		NoColor:    !isTerminal(console),
	})

	if opts.FilePath == "" {
		return slog.New(consoleHandler), func() error { return nil }, nil
	}

	if err := EnsureParent(opts.FilePath); err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug})

	return slog.New(NewMultiLogHandler(consoleHandler, fileHandler)), file.Close, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// MultiLogHandler forwards every record to each handler that accepts its level.
type MultiLogHandler struct {
	handlers []slog.Handler
}

func NewMultiLogHandler(handlers ...slog.Handler) *MultiLogHandler {
	return &MultiLogHandler{handlers: handlers}
}

func (h *MultiLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *MultiLogHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, r.Level) {
			continue
		}
		// each handler may consume the record's attrs, hand out clones
		if err := handler.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *MultiLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.derive(func(handler slog.Handler) slog.Handler { return handler.WithAttrs(attrs) })
}

func (h *MultiLogHandler) WithGroup(name string) slog.Handler {
	return h.derive(func(handler slog.Handler) slog.Handler { return handler.WithGroup(name) })
}

func (h *MultiLogHandler) derive(fn func(slog.Handler) slog.Handler) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = fn(handler)
	}
	return NewMultiLogHandler(handlers...)
}
