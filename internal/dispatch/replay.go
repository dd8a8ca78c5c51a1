package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/comandocentral/edge-svc/internal/models"
)

// maxReplayWindow caps how far back replay may look, regardless of what the
// caller asks for. The dispatch loop has no dead-letter UI; replay is the
// manual incident-response lever, and the cap keeps it from reprocessing
// history without bound.
const maxReplayWindow = 3 * 24 * time.Hour

// ReplayStats are the aggregate counts returned by one replay invocation.
type ReplayStats struct {
	EventsFound      int `json:"events_found"`
	EventsReset      int `json:"events_reset"`
	AlreadyProcessed int `json:"already_processed"`
	Errors           int `json:"errors"`
}

// ReplayStore is the row access replay needs. The GORM implementation lives
// in Store; tests use fakes.
type ReplayStore interface {
	// EventsDoneSince returns the tenant's events within the window whose
	// status is processed or ignored, oldest first.
	EventsDoneSince(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]models.InboxEvent, error)
	NotificationsForEvent(ctx context.Context, eventID uuid.UUID) ([]models.Notification, error)
	// ResetNotifications puts the rows back to scheduled with a cleared
	// error, zero attempts and an immediate next attempt.
	ResetNotifications(ctx context.Context, ids []uuid.UUID) error
	// BumpNotifications moves next_attempt_at to now without touching the
	// rest of the row.
	BumpNotifications(ctx context.Context, ids []uuid.UUID) error
	ResetEventPending(ctx context.Context, eventID uuid.UUID) error
}

// Replayer resets stuck or failed dispatch work so the normal loop picks it
// up again. Not transactional across events: re-running after an interruption
// is safe because already-reset rows are simply counted as found again.
type Replayer struct {
	store  ReplayStore
	logger *zap.Logger
}

// NewReplayer creates the replay tool.
func NewReplayer(store ReplayStore, logger *zap.Logger) *Replayer {
	return &Replayer{store: store, logger: logger}
}

// Replay walks the tenant's done events within the lookback window. Events
// with a sent notification are left untouched; failed or retrying
// notifications are reset to scheduled; events with no notifications at all
// go back to pending; already-scheduled notifications get their next attempt
// pulled forward.
func (r *Replayer) Replay(ctx context.Context, tenantID uuid.UUID, days int) (ReplayStats, error) {
	window := time.Duration(days) * 24 * time.Hour
	if window <= 0 || window > maxReplayWindow {
		window = maxReplayWindow
	}
	since := time.Now().UTC().Add(-window)

	events, err := r.store.EventsDoneSince(ctx, tenantID, since)
	if err != nil {
		return ReplayStats{}, err
	}

	stats := ReplayStats{EventsFound: len(events)}

	for i := range events {
		event := &events[i]

		notifications, err := r.store.NotificationsForEvent(ctx, event.ID)
		if err != nil {
			stats.Errors++
			r.logger.Error("Replay: failed to load notifications",
				zap.String("event_id", event.ID.String()),
				zap.Error(err),
			)
			continue
		}

		var sent bool
		var stuck []uuid.UUID
		var rest []uuid.UUID
		for _, n := range notifications {
			switch n.Status {
			case models.NotificationStatusSent:
				sent = true
			case models.NotificationStatusFailed, models.NotificationStatusRetrying:
				stuck = append(stuck, n.ID)
			default:
				rest = append(rest, n.ID)
			}
		}

		switch {
		case sent:
			stats.AlreadyProcessed++
		case len(stuck) > 0:
			if err := r.store.ResetNotifications(ctx, stuck); err != nil {
				stats.Errors++
				r.logger.Error("Replay: failed to reset notifications",
					zap.String("event_id", event.ID.String()),
					zap.Error(err),
				)
				continue
			}
			stats.EventsReset++
		case len(notifications) == 0:
			if err := r.store.ResetEventPending(ctx, event.ID); err != nil {
				stats.Errors++
				r.logger.Error("Replay: failed to reset event",
					zap.String("event_id", event.ID.String()),
					zap.Error(err),
				)
				continue
			}
			stats.EventsReset++
		default:
			if err := r.store.BumpNotifications(ctx, rest); err != nil {
				stats.Errors++
				r.logger.Error("Replay: failed to bump notifications",
					zap.String("event_id", event.ID.String()),
					zap.Error(err),
				)
				continue
			}
			stats.EventsReset++
		}
	}

	r.logger.Info("Replay finished",
		zap.String("tenant_id", tenantID.String()),
		zap.Time("since", since),
		zap.Int("events_found", stats.EventsFound),
		zap.Int("events_reset", stats.EventsReset),
		zap.Int("already_processed", stats.AlreadyProcessed),
		zap.Int("errors", stats.Errors),
	)

	return stats, nil
}
