// Package dispatch implements the notification dispatch loop: the scheduler
// tick orchestrator, the two dispatch stages it drives, and the replay
// recovery tool.
package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/comandocentral/edge-svc/internal/metrics"
)

// ProcessResult is the counted outcome of one event-processing stage call.
type ProcessResult struct {
	ProcessedCount       int `json:"processed_count"`
	IgnoredCount         int `json:"ignored_count"`
	NotificationsCreated int `json:"notifications_created"`
}

// RunResult is the counted outcome of one notification-delivery stage call.
type RunResult struct {
	ClaimedCount     int `json:"claimed_count"`
	ProcessedSuccess int `json:"processed_success"`
	ScheduledRetries int `json:"scheduled_retries"`
	FailedFinal      int `json:"failed_final"`
}

// StageClient invokes the two dispatch stages. The production implementation
// goes over HTTP (see HTTPStageClient); tests inject fakes.
type StageClient interface {
	ProcessEvents(ctx context.Context, limit int) (ProcessResult, error)
	RunNotifications(ctx context.Context, limit int) (RunResult, error)
}

// TickOptions are the per-invocation knobs of the orchestrator. Zero values
// fall back to the defaults (2 passes, limit 50 for both stages).
type TickOptions struct {
	Passes       int `json:"passes"`
	ProcessLimit int `json:"process_limit"`
	RunLimit     int `json:"run_limit"`
}

// PassRecord captures the counters of a single pass. Stage failures are
// recorded as error counts, never propagated.
type PassRecord struct {
	Pass          int           `json:"pass"`
	Process       ProcessResult `json:"process"`
	Run           RunResult     `json:"run"`
	ProcessErrors int           `json:"process_errors"`
	RunErrors     int           `json:"run_errors"`
}

// TickTotals aggregates all pass counters of one tick.
type TickTotals struct {
	ProcessedCount       int `json:"processed_count"`
	IgnoredCount         int `json:"ignored_count"`
	NotificationsCreated int `json:"notifications_created"`
	ClaimedCount         int `json:"claimed_count"`
	ProcessedSuccess     int `json:"processed_success"`
	ScheduledRetries     int `json:"scheduled_retries"`
	FailedFinal          int `json:"failed_final"`
	ProcessErrors        int `json:"process_errors"`
	RunErrors            int `json:"run_errors"`
}

// TickSummary is the structured response of one orchestrator invocation.
type TickSummary struct {
	StartedAt       time.Time    `json:"started_at"`
	FinishedAt      time.Time    `json:"finished_at"`
	PassesRequested int          `json:"passes_requested"`
	PassesExecuted  int          `json:"passes_executed"`
	PassesSkipped   int          `json:"passes_skipped"`
	Totals          TickTotals   `json:"totals"`
	PassRecords     []PassRecord `json:"pass_records"`
}

// TickStore persists tick summaries for the audit trail. Optional.
type TickStore interface {
	SaveTick(ctx context.Context, summary TickSummary) error
}

// Ticker is the scheduler tick orchestrator. It never touches event or
// notification rows itself; all row work is delegated to the two stages,
// which own their own claiming discipline. Overlapping ticks are therefore
// safe without coordination here.
type Ticker struct {
	stages      StageClient
	store       TickStore
	delay       time.Duration
	stageBudget time.Duration
	logger      *zap.Logger
}

// NewTicker creates a Ticker. delay is the inter-pass sleep (25s in
// production: a 1-minute cron invoking a 2-pass tick approximates a 30s
// polling cadence). stageBudget bounds one stage call for the wall-clock
// budget calculation. store may be nil.
func NewTicker(stages StageClient, store TickStore, delay, stageBudget time.Duration, logger *zap.Logger) *Ticker {
	return &Ticker{
		stages:      stages,
		store:       store,
		delay:       delay,
		stageBudget: stageBudget,
		logger:      logger,
	}
}

// Run executes one tick. Each pass calls the event-processing stage, then the
// delivery stage; a stage failure is counted and isolated so the other stage
// and the remaining passes still run. The whole tick runs under an explicit
// wall-clock budget derived from the pass count; passes that cannot start
// within it are skipped and reported rather than killed externally.
func (t *Ticker) Run(ctx context.Context, opts TickOptions) TickSummary {
	if opts.Passes <= 0 {
		opts.Passes = 2
	}
	if opts.ProcessLimit <= 0 {
		opts.ProcessLimit = 50
	}
	if opts.RunLimit <= 0 {
		opts.RunLimit = 50
	}

	budget := time.Duration(opts.Passes)*(2*t.stageBudget) +
		time.Duration(opts.Passes-1)*t.delay +
		5*time.Second
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	summary := TickSummary{
		StartedAt:       time.Now().UTC(),
		PassesRequested: opts.Passes,
		PassRecords:     make([]PassRecord, 0, opts.Passes),
	}

	for pass := 1; pass <= opts.Passes; pass++ {
		if ctx.Err() != nil {
			summary.PassesSkipped = opts.Passes - summary.PassesExecuted
			t.logger.Warn("Tick budget exhausted, skipping remaining passes",
				zap.Int("pass", pass),
				zap.Int("skipped", summary.PassesSkipped),
			)
			break
		}

		rec := PassRecord{Pass: pass}

		pr, err := t.stages.ProcessEvents(ctx, opts.ProcessLimit)
		if err != nil {
			rec.ProcessErrors = 1
			metrics.TickStageErrors.WithLabelValues("process-events").Inc()
			t.logger.Error("process-events stage failed",
				zap.Int("pass", pass),
				zap.Error(err),
			)
		} else {
			rec.Process = pr
		}

		rr, err := t.stages.RunNotifications(ctx, opts.RunLimit)
		if err != nil {
			rec.RunErrors = 1
			metrics.TickStageErrors.WithLabelValues("run-notifications").Inc()
			t.logger.Error("run-notifications stage failed",
				zap.Int("pass", pass),
				zap.Error(err),
			)
		} else {
			rec.Run = rr
		}

		summary.PassRecords = append(summary.PassRecords, rec)
		summary.PassesExecuted++
		summary.Totals.add(rec)

		if pass < opts.Passes {
			if !sleepCtx(ctx, t.delay) {
				summary.PassesSkipped = opts.Passes - summary.PassesExecuted
				break
			}
		}
	}

	summary.FinishedAt = time.Now().UTC()

	if t.store != nil {
		// Persistence failures must not fail the tick response.
		if err := t.store.SaveTick(context.WithoutCancel(ctx), summary); err != nil {
			t.logger.Error("Failed to persist tick summary", zap.Error(err))
		}
	}

	return summary
}

func (t *TickTotals) add(rec PassRecord) {
	t.ProcessedCount += rec.Process.ProcessedCount
	t.IgnoredCount += rec.Process.IgnoredCount
	t.NotificationsCreated += rec.Process.NotificationsCreated
	t.ClaimedCount += rec.Run.ClaimedCount
	t.ProcessedSuccess += rec.Run.ProcessedSuccess
	t.ScheduledRetries += rec.Run.ScheduledRetries
	t.FailedFinal += rec.Run.FailedFinal
	t.ProcessErrors += rec.ProcessErrors
	t.RunErrors += rec.RunErrors
}

// sleepCtx sleeps for d or until the context is done. Returns false when the
// context expired first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
