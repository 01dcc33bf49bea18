package gstkit

import (
	"context"
	"log/slog"
	"sync/atomic"
)

var pkgLogger atomic.Pointer[slog.Logger]

func init() {
	pkgLogger.Store(slog.New(nopLogHandler{}))
}

// SetLogger routes the package's diagnostics to l. Passing nil restores
// the no-op default. Safe to call concurrently.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopLogHandler{})
	}
	pkgLogger.Store(l)
}

func logger() *slog.Logger {
	return pkgLogger.Load()
}

type nopLogHandler struct{}

func (nopLogHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopLogHandler) Handle(context.Context, slog.Record) error { return nil }
func (h nopLogHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h nopLogHandler) WithGroup(string) slog.Handler           { return h }
