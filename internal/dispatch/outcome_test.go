package dispatch

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/comandocentral/edge-svc/internal/models"
)

func intPtr(n int) *int { return &n }

func TestDecideOutcomeSuccess(t *testing.T) {
	for _, status := range []int{200, 201, 204, 299} {
		outcome := decideOutcome(&DeliveryResult{HTTPStatus: intPtr(status)}, 1, 8)
		if outcome.Status != models.NotificationStatusSent {
			t.Errorf("status %d: outcome = %q, want sent", status, outcome.Status)
		}
		if outcome.LastError != nil {
			t.Errorf("status %d: last error = %q, want nil", status, *outcome.LastError)
		}
	}
}

func TestDecideOutcomeServerErrorRetries(t *testing.T) {
	before := time.Now()
	outcome := decideOutcome(&DeliveryResult{HTTPStatus: intPtr(500)}, 1, 8)

	if outcome.Status != models.NotificationStatusRetrying {
		t.Fatalf("outcome = %q, want retrying", outcome.Status)
	}
	// Attempt 1 failed, so the next attempt is the second: one minute out.
	wantDelay := 1 * time.Minute
	gotDelay := outcome.NextAttemptAt.Sub(before)
	if gotDelay < wantDelay-time.Second || gotDelay > wantDelay+time.Second {
		t.Fatalf("next attempt in %v, want ~%v", gotDelay, wantDelay)
	}
	if outcome.LastError == nil || !strings.Contains(*outcome.LastError, "HTTP 500") {
		t.Fatalf("last error = %v, want HTTP 500", outcome.LastError)
	}
}

func TestDecideOutcomeMaxAttemptsFails(t *testing.T) {
	outcome := decideOutcome(&DeliveryResult{HTTPStatus: intPtr(500)}, 8, 8)

	if outcome.Status != models.NotificationStatusFailed {
		t.Fatalf("outcome = %q, want failed", outcome.Status)
	}
	if outcome.LastError == nil || !strings.Contains(*outcome.LastError, "max attempts") {
		t.Fatalf("last error = %v, want max attempts message", outcome.LastError)
	}
}

func TestDecideOutcomeNetworkErrorRetries(t *testing.T) {
	outcome := decideOutcome(&DeliveryResult{Error: errors.New("connection refused")}, 2, 8)

	if outcome.Status != models.NotificationStatusRetrying {
		t.Fatalf("outcome = %q, want retrying", outcome.Status)
	}
	if outcome.LastError == nil || !strings.Contains(*outcome.LastError, "connection refused") {
		t.Fatalf("last error = %v, want delivery error", outcome.LastError)
	}
}

func TestDecideOutcomeNetworkErrorAtMaxFails(t *testing.T) {
	outcome := decideOutcome(&DeliveryResult{Error: errors.New("connection refused")}, 8, 8)
	if outcome.Status != models.NotificationStatusFailed {
		t.Fatalf("outcome = %q, want failed", outcome.Status)
	}
}

func TestDecideOutcomeRateLimitHonorsRetryAfter(t *testing.T) {
	before := time.Now()
	outcome := decideOutcome(&DeliveryResult{HTTPStatus: intPtr(429), RetryAfter: "120"}, 3, 8)

	if outcome.Status != models.NotificationStatusRetrying {
		t.Fatalf("outcome = %q, want retrying", outcome.Status)
	}
	gotDelay := outcome.NextAttemptAt.Sub(before)
	if gotDelay < 119*time.Second || gotDelay > 121*time.Second {
		t.Fatalf("next attempt in %v, want ~120s from Retry-After", gotDelay)
	}
}

func TestDecideOutcomeRateLimitWithoutHeaderUsesBackoff(t *testing.T) {
	before := time.Now()
	outcome := decideOutcome(&DeliveryResult{HTTPStatus: intPtr(429)}, 1, 8)

	if outcome.Status != models.NotificationStatusRetrying {
		t.Fatalf("outcome = %q, want retrying", outcome.Status)
	}
	gotDelay := outcome.NextAttemptAt.Sub(before)
	if gotDelay < 59*time.Second || gotDelay > 61*time.Second {
		t.Fatalf("next attempt in %v, want ~1m from backoff table", gotDelay)
	}
}

func TestDecideOutcomeRateLimitAtMaxFails(t *testing.T) {
	outcome := decideOutcome(&DeliveryResult{HTTPStatus: intPtr(429)}, 8, 8)
	if outcome.Status != models.NotificationStatusFailed {
		t.Fatalf("outcome = %q, want failed", outcome.Status)
	}
}

func TestCountOutcome(t *testing.T) {
	var res RunResult
	res.countOutcome(models.NotificationStatusSent)
	res.countOutcome(models.NotificationStatusFailed)
	res.countOutcome(models.NotificationStatusRetrying)
	res.countOutcome(models.NotificationStatusRetrying)

	if res.ProcessedSuccess != 1 || res.FailedFinal != 1 || res.ScheduledRetries != 2 {
		t.Fatalf("counts = %+v, want 1 sent, 1 failed, 2 retries", res)
	}
}
