package events

import (
	"context"
	"log/slog"

	"hodlhunt/internal/game"
)

// Multi publishes to every non-nil sink in order.
type Multi []game.EventSink

func (m Multi) Publish(ctx context.Context, events []game.Event) {
	for _, s := range m {
		if s != nil {
			s.Publish(ctx, events)
		}
	}
}

// LogSink writes one structured line per event.
type LogSink struct {
	Log *slog.Logger
}

func (l LogSink) Publish(ctx context.Context, events []game.Event) {
	logger := l.Log
	if logger == nil {
		logger = slog.Default()
	}
	for _, ev := range events {
		logger.InfoContext(ctx, "game event", "event_id", ev.ID, "kind", ev.Kind, "at", ev.At, "payload", ev.Payload)
	}
}
