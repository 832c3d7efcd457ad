package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"propsync/models"
	"propsync/storage"
)

func newTestLog(t *testing.T) (*ExecutionLog, *storage.Store, *time.Time) {
	t.Helper()
	store, err := storage.Open(context.Background(), "sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	el := NewExecutionLog(store, 30*time.Minute, 5*time.Minute)
	el.now = func() time.Time { return clock }
	return el, store, &clock
}

func TestExecutionLog_BeginRejectsConcurrentRun(t *testing.T) {
	el, _, clock := newTestLog(t)
	ctx := context.Background()

	first, err := el.Begin(ctx, "api")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if first.Status != models.RunStatusRunning || first.RunUUID == "" {
		t.Fatalf("unexpected record: %+v", first)
	}

	*clock = clock.Add(time.Minute)
	if _, err := el.Begin(ctx, "api"); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
}

func TestExecutionLog_BeginHealsStaleRun(t *testing.T) {
	el, store, clock := newTestLog(t)
	ctx := context.Background()

	stale, err := el.Begin(ctx, "api")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	*clock = clock.Add(6 * time.Minute)
	fresh, err := el.Begin(ctx, "api")
	if err != nil {
		t.Fatalf("begin after grace: %v", err)
	}
	if fresh.RunUUID == stale.RunUUID {
		t.Fatalf("expected a new run id")
	}

	got, err := store.GetExecution(ctx, stale.ID)
	if err != nil || got == nil {
		t.Fatalf("get stale: %v %v", got, err)
	}
	if got.Status != models.RunStatusError || got.FinishedAt == nil || got.LogText == "" {
		t.Fatalf("stale run not closed: %+v", got)
	}
}

func TestExecutionLog_HealOrphans(t *testing.T) {
	el, store, clock := newTestLog(t)
	ctx := context.Background()

	if _, err := el.Begin(ctx, "api"); err != nil {
		t.Fatalf("begin: %v", err)
	}

	*clock = clock.Add(10 * time.Minute)
	n, err := el.HealOrphans(ctx)
	if err != nil || n != 0 {
		t.Fatalf("young run healed: n=%d err=%v", n, err)
	}

	*clock = clock.Add(time.Hour)
	n, err = el.HealOrphans(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 healed, got n=%d err=%v", n, err)
	}
	running, _ := store.RunningExecutions(ctx)
	if len(running) != 0 {
		t.Fatalf("expected no running records, got %d", len(running))
	}
}

func TestExecutionLog_CompleteAndFail(t *testing.T) {
	el, store, clock := newTestLog(t)
	ctx := context.Background()

	rec, err := el.Begin(ctx, "api")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	*clock = clock.Add(time.Minute)
	stats := models.Statistics{Processed: 3, New: 2, Errors: 1}
	if err := el.Complete(ctx, rec, stats, `{"k":1}`); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, _ := store.GetExecution(ctx, rec.ID)
	if got.Status != models.RunStatusCompleted || got.Processed != 3 || got.NewCount != 2 || got.Errors != 1 {
		t.Fatalf("unexpected completed record: %+v", got)
	}

	rec, err = el.Begin(ctx, "api")
	if err != nil {
		t.Fatalf("begin second: %v", err)
	}
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if err := el.Fail(cctx, rec, models.Statistics{}, "", context.Canceled); err != nil {
		t.Fatalf("fail: %v", err)
	}
	got, _ = store.GetExecution(ctx, rec.ID)
	if got.Status != models.RunStatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
}

func TestExecutionLog_RecordExecution(t *testing.T) {
	el, store, _ := newTestLog(t)
	ctx := context.Background()

	id, err := el.RecordExecution(ctx, "api", models.Statistics{}, "", errors.New("upstream returned 503"))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	got, err := store.GetExecution(ctx, id)
	if err != nil || got == nil {
		t.Fatalf("get: %v %v", got, err)
	}
	if got.Status != models.RunStatusError || got.LogText != "upstream returned 503" || got.FinishedAt == nil {
		t.Fatalf("unexpected record: %+v", got)
	}

	latest, err := el.Latest(ctx, "api")
	if err != nil || latest == nil || latest.ID != id {
		t.Fatalf("latest: %+v %v", latest, err)
	}
}

func TestAppendLog_Caps(t *testing.T) {
	long := make([]byte, maxLogText)
	for i := range long {
		long[i] = 'a'
	}
	out := appendLog(string(long), "tail")
	if len(out) != maxLogText {
		t.Fatalf("expected %d chars, got %d", maxLogText, len(out))
	}
	if out[len(out)-4:] != "tail" {
		t.Fatalf("tail lost: %q", out[len(out)-10:])
	}
}
