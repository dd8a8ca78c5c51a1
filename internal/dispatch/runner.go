package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/comandocentral/edge-svc/internal/metrics"
	"github.com/comandocentral/edge-svc/internal/models"
)

// Runner is the notification-delivery stage: it claims due notifications,
// attempts delivery and advances each row's retry state machine.
type Runner struct {
	db     *gorm.DB
	sender *Sender
	logger *zap.Logger
}

// NewRunner creates the delivery stage.
func NewRunner(db *gorm.DB, sender *Sender, logger *zap.Logger) *Runner {
	return &Runner{db: db, sender: sender, logger: logger}
}

// RunNotifications claims up to limit due notifications (scheduled or
// retrying, next_attempt_at in the past), flips them to sending, delivers,
// and records the outcome: sent, retrying with backoff, or failed once the
// attempt budget is spent.
func (r *Runner) RunNotifications(ctx context.Context, limit int) (RunResult, error) {
	var res RunResult

	claimed, err := r.claimDue(ctx, limit)
	if err != nil {
		return RunResult{}, err
	}
	res.ClaimedCount = len(claimed)

	for i := range claimed {
		n := &claimed[i]

		payload, err := r.buildPayload(ctx, n)
		if err != nil {
			// Treat an unloadable event like a failed attempt so the row
			// retries instead of sticking in sending forever.
			r.logger.Error("Failed to build notification payload",
				zap.String("notification_id", n.ID.String()),
				zap.Error(err),
			)
			outcome := decideOutcome(&DeliveryResult{Error: err}, n.AttemptCount+1, n.MaxAttempts)
			if uerr := r.applyOutcome(ctx, n, outcome); uerr != nil {
				return res, uerr
			}
			res.countOutcome(outcome.Status)
			continue
		}

		result := r.sender.Deliver(ctx, n.TargetURL, payload, n.Secret)
		outcome := decideOutcome(result, n.AttemptCount+1, n.MaxAttempts)

		if err := r.applyOutcome(ctx, n, outcome); err != nil {
			return res, err
		}
		res.countOutcome(outcome.Status)

		switch outcome.Status {
		case models.NotificationStatusSent:
			metrics.NotificationsSent.Inc()
			r.logger.Info("Notification delivered",
				zap.String("notification_id", n.ID.String()),
				zap.Int("attempt_count", n.AttemptCount+1),
				zap.Int("latency_ms", result.LatencyMs),
			)
		case models.NotificationStatusFailed:
			metrics.NotificationFailures.Inc()
			r.logger.Warn("Notification failed (max attempts reached)",
				zap.String("notification_id", n.ID.String()),
				zap.Int("attempt_count", n.AttemptCount+1),
				zap.Stringp("last_error", outcome.LastError),
			)
		default:
			metrics.NotificationRetries.Inc()
			r.logger.Info("Notification will be retried",
				zap.String("notification_id", n.ID.String()),
				zap.Int("attempt_count", n.AttemptCount+1),
				zap.Time("next_attempt_at", outcome.NextAttemptAt),
				zap.Stringp("last_error", outcome.LastError),
			)
		}
	}

	return res, nil
}

// claimDue selects due rows with FOR UPDATE SKIP LOCKED and flips them to
// sending in the same transaction, so concurrent runners never claim the same
// notification.
func (r *Runner) claimDue(ctx context.Context, limit int) ([]models.Notification, error) {
	var claimed []models.Notification

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Raw(`
			SELECT *
			FROM notifications
			WHERE status IN ('scheduled', 'retrying') AND next_attempt_at <= now()
			ORDER BY next_attempt_at
			LIMIT ?
			FOR UPDATE SKIP LOCKED
		`, limit).Scan(&claimed).Error
		if err != nil {
			return fmt.Errorf("failed to claim due notifications: %w", err)
		}

		if len(claimed) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, len(claimed))
		for i, n := range claimed {
			ids[i] = n.ID
		}

		err = tx.Model(&models.Notification{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"status":     models.NotificationStatusSending,
				"updated_at": time.Now().UTC(),
			}).Error
		if err != nil {
			return fmt.Errorf("failed to mark notifications sending: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return claimed, nil
}

func (r *Runner) buildPayload(ctx context.Context, n *models.Notification) (map[string]interface{}, error) {
	var event models.InboxEvent
	err := r.db.WithContext(ctx).Where("id = ?", n.EventID).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("event %s not found for notification %s", n.EventID, n.ID)
		}
		return nil, fmt.Errorf("failed to load event %s: %w", n.EventID, err)
	}

	return map[string]interface{}{
		"notification_id": n.ID.String(),
		"event_id":        event.ID.String(),
		"tenant_id":       event.TenantID.String(),
		"event_type":      event.EventType,
		"occurred_at":     event.OccurredAt.UTC().Format(time.RFC3339),
		"payload":         event.Payload,
	}, nil
}

// Outcome is the next state of a notification after one delivery attempt.
type Outcome struct {
	Status        string
	NextAttemptAt time.Time
	LastError     *string
}

// decideOutcome advances the retry state machine for one attempt. 2xx means
// sent; anything else retries on the backoff table (honoring Retry-After on
// 429) until maxAttempts, then fails terminally.
func decideOutcome(result *DeliveryResult, attemptCount, maxAttempts int) Outcome {
	fail := func(msg string) Outcome {
		return Outcome{Status: models.NotificationStatusFailed, LastError: &msg}
	}
	retry := func(delay time.Duration, msg string) Outcome {
		return Outcome{
			Status:        models.NotificationStatusRetrying,
			NextAttemptAt: time.Now().Add(delay),
			LastError:     &msg,
		}
	}

	if result.Error != nil {
		msg := fmt.Sprintf("delivery error: %v", result.Error)
		if attemptCount >= maxAttempts {
			return fail("max attempts reached: " + msg)
		}
		return retry(CalculateBackoffDelay(attemptCount+1), msg)
	}

	if result.HTTPStatus == nil {
		if attemptCount >= maxAttempts {
			return fail("max attempts reached: no HTTP status")
		}
		return retry(CalculateBackoffDelay(attemptCount+1), "no HTTP status received")
	}

	httpStatus := *result.HTTPStatus

	if httpStatus >= 200 && httpStatus < 300 {
		return Outcome{Status: models.NotificationStatusSent}
	}

	if httpStatus == 429 {
		if retryAfter, ok := ParseRetryAfterHeader(result.RetryAfter); ok && retryAfter > 0 {
			return retry(retryAfter, fmt.Sprintf("rate limited (429), retry after %v", retryAfter))
		}
		if attemptCount >= maxAttempts {
			return fail("max attempts reached: rate limited (429)")
		}
		return retry(CalculateBackoffDelay(attemptCount+1), "rate limited (429)")
	}

	if attemptCount >= maxAttempts {
		return fail(fmt.Sprintf("max attempts reached: HTTP %d", httpStatus))
	}
	return retry(CalculateBackoffDelay(attemptCount+1), fmt.Sprintf("HTTP %d", httpStatus))
}

func (r *Runner) applyOutcome(ctx context.Context, n *models.Notification, outcome Outcome) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":        outcome.Status,
		"attempt_count": n.AttemptCount + 1,
		"updated_at":    now,
	}

	if outcome.Status == models.NotificationStatusSent {
		updates["sent_at"] = now
		updates["last_error"] = nil
	} else {
		updates["next_attempt_at"] = outcome.NextAttemptAt
		if outcome.LastError != nil {
			updates["last_error"] = *outcome.LastError
		}
	}

	err := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ?", n.ID).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to update notification %s: %w", n.ID, err)
	}
	return nil
}

func (res *RunResult) countOutcome(status string) {
	switch status {
	case models.NotificationStatusSent:
		res.ProcessedSuccess++
	case models.NotificationStatusFailed:
		res.FailedFinal++
	default:
		res.ScheduledRetries++
	}
}
