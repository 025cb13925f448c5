// Package sink delivers resolution events to their destinations.
package sink

import (
	"context"
	"log/slog"
	"unicode/utf8"

	"github.com/muandane/slugcache/internal/event"
)

const maxLoggedUserAgent = 50

// Log writes one access-log line per event.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Record(ctx context.Context, e event.Event) error {
	referer := e.Referer
	if referer == "" {
		referer = "direct"
	}
	l.logger.InfoContext(ctx, "slug "+string(e.Kind),
		"slug", e.Slug,
		"kind", e.Kind,
		"user_agent", truncate(e.UserAgent, maxLoggedUserAgent),
		"referer", referer,
		"at", e.Timestamp,
	)
	return nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
