//go:build !debugheaplog

package internal

import (
	"context"
	"log/slog"
)

// LogEnabled reports whether l would log at level. Callers use it to skip
// building attributes. A nil logger is disabled.
func LogEnabled(l *slog.Logger, level slog.Level) bool {
	return l != nil && l.Handler().Enabled(context.Background(), level)
}

// LogAttrs logs to l if it is not nil. Build with the debugheaplog tag to replace
// it with a non-allocating printer that reports heap allocations between records.
func LogAttrs(l *slog.Logger, level slog.Level, msg string, attrs ...slog.Attr) {
	if l != nil {
		l.LogAttrs(context.Background(), level, msg, attrs...)
	}
}
