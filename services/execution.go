package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"propsync/metrics"
	"propsync/models"
	"propsync/storage"
)

var ErrRunInProgress = errors.New("a sync run is already in progress")

const (
	DefaultRunTimeout = 30 * time.Minute
	DefaultStartGrace = 5 * time.Minute
	maxLogText        = 8000
)

// ExecutionLog records sync runs and heals runs that never finished.
type ExecutionLog struct {
	store      *storage.Store
	runTimeout time.Duration
	startGrace time.Duration
	now        func() time.Time
}

func NewExecutionLog(store *storage.Store, runTimeout, startGrace time.Duration) *ExecutionLog {
	if runTimeout <= 0 {
		runTimeout = DefaultRunTimeout
	}
	if startGrace <= 0 {
		startGrace = DefaultStartGrace
	}
	return &ExecutionLog{store: store, runTimeout: runTimeout, startGrace: startGrace, now: time.Now}
}

// Begin opens a running record. Running records older than the start grace
// period are closed as error first; a younger one means another run owns
// the store and ErrRunInProgress is returned.
func (e *ExecutionLog) Begin(ctx context.Context, source string) (*models.ExecutionRecord, error) {
	running, err := e.store.RunningExecutions(ctx)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	for i := range running {
		rec := &running[i]
		if now.Sub(rec.StartedAt) < e.startGrace {
			return nil, fmt.Errorf("%w: run %s started %s ago", ErrRunInProgress, rec.RunUUID, now.Sub(rec.StartedAt).Round(time.Second))
		}
		if err := e.closeOrphan(ctx, rec, now); err != nil {
			return nil, err
		}
	}

	rec := &models.ExecutionRecord{
		RunUUID:   uuid.NewString(),
		Source:    source,
		StartedAt: now,
		Status:    models.RunStatusRunning,
	}
	if _, err := e.store.CreateExecution(ctx, rec); err != nil {
		return nil, err
	}
	log.Info().Str("run_id", rec.RunUUID).Str("source", source).Msg("sync run started")
	return rec, nil
}

// HealOrphans closes running records older than the run timeout and
// returns how many it closed.
func (e *ExecutionLog) HealOrphans(ctx context.Context) (int, error) {
	running, err := e.store.RunningExecutions(ctx)
	if err != nil {
		return 0, err
	}

	now := e.now().UTC()
	healed := 0
	for i := range running {
		if now.Sub(running[i].StartedAt) < e.runTimeout {
			continue
		}
		if err := e.closeOrphan(ctx, &running[i], now); err != nil {
			return healed, err
		}
		healed++
	}
	return healed, nil
}

func (e *ExecutionLog) closeOrphan(ctx context.Context, rec *models.ExecutionRecord, now time.Time) error {
	rec.Status = models.RunStatusError
	rec.FinishedAt = &now
	rec.LogText = appendLog(rec.LogText, fmt.Sprintf("orphaned: still running after %s", now.Sub(rec.StartedAt).Round(time.Second)))
	if err := e.store.UpdateExecution(ctx, rec); err != nil {
		return err
	}
	metrics.OrphanedRuns.Inc()
	log.Warn().Str("run_id", rec.RunUUID).Time("started_at", rec.StartedAt).Msg("orphaned run closed")
	return nil
}

// Complete closes the run as completed, even when per-listing errors were
// counted.
func (e *ExecutionLog) Complete(ctx context.Context, rec *models.ExecutionRecord, stats models.Statistics, details string) error {
	return e.finish(ctx, rec, models.RunStatusCompleted, stats, details, "")
}

// Fail closes the run as error with the cause in the log text.
func (e *ExecutionLog) Fail(ctx context.Context, rec *models.ExecutionRecord, stats models.Statistics, details string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	status := models.RunStatusError
	if errors.Is(cause, context.Canceled) {
		status = models.RunStatusCancelled
	}
	return e.finish(ctx, rec, status, stats, details, msg)
}

func (e *ExecutionLog) finish(ctx context.Context, rec *models.ExecutionRecord, status models.RunStatus, stats models.Statistics, details, msg string) error {
	now := e.now().UTC()
	rec.Status = status
	rec.FinishedAt = &now
	rec.Details = details
	stats.Apply(rec)
	if msg != "" {
		rec.LogText = appendLog(rec.LogText, msg)
	}

	// the run context may already be cancelled
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
	}
	if err := e.store.UpdateExecution(ctx, rec); err != nil {
		return err
	}

	metrics.Runs.WithLabelValues(rec.Source, string(status)).Inc()
	metrics.RunDuration.WithLabelValues(rec.Source).Observe(now.Sub(rec.StartedAt).Seconds())
	return nil
}

// RecordExecution stores an already-finished run in one write, used when a
// run fails before any listing is processed.
func (e *ExecutionLog) RecordExecution(ctx context.Context, source string, stats models.Statistics, details string, cause error) (int64, error) {
	now := e.now().UTC()
	rec := &models.ExecutionRecord{
		RunUUID:    uuid.NewString(),
		Source:     source,
		StartedAt:  stats.StartedAt,
		FinishedAt: &now,
		Status:     models.RunStatusCompleted,
		Details:    details,
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = now
	}
	if stats.EndedAt != nil {
		rec.FinishedAt = stats.EndedAt
	}
	stats.Apply(rec)
	if cause != nil {
		rec.Status = models.RunStatusError
		rec.LogText = appendLog("", cause.Error())
	}

	id, err := e.store.CreateExecution(ctx, rec)
	if err != nil {
		return 0, err
	}
	metrics.Runs.WithLabelValues(source, string(rec.Status)).Inc()
	return id, nil
}

func (e *ExecutionLog) Latest(ctx context.Context, source string) (*models.ExecutionRecord, error) {
	return e.store.LatestExecution(ctx, source)
}

func appendLog(existing, line string) string {
	out := line
	if existing != "" {
		out = existing + "\n" + line
	}
	if len(out) > maxLogText {
		out = out[len(out)-maxLogText:]
	}
	return out
}
