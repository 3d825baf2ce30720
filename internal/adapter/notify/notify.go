package notify

import (
	"context"
	"log/slog"

	"github.com/defenseunicorns/leapfrogai-sub001/internal/domain/notification"
	"github.com/defenseunicorns/leapfrogai-sub001/internal/metrics"
	portnotifier "github.com/defenseunicorns/leapfrogai-sub001/internal/port/notifier"
)

// Fanout delivers each notification to every sink in order.
type Fanout []portnotifier.Sink

func (f Fanout) Notify(ctx context.Context, n notification.Notification) {
	metrics.Notifications.WithLabelValues(string(n.Kind)).Inc()
	for _, s := range f {
		if s != nil {
			s.Notify(ctx, n)
		}
	}
}

// Log writes notifications to the structured log.
type Log struct{}

func (Log) Notify(ctx context.Context, n notification.Notification) {
	level := slog.LevelInfo
	if n.Kind == notification.KindError {
		level = slog.LevelWarn
	}
	slog.Log(ctx, level, "notification",
		"title", n.Title,
		"subtitle", n.Subtitle,
		"thread_id", n.ThreadID,
	)
}
