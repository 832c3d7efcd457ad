package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"propsync/config"
	"propsync/models"
	"propsync/services"
	"propsync/storage"
)

type fakeRunner struct {
	mu       sync.Mutex
	runs     int
	commands []models.CommandType
	fail     bool
}

func (f *fakeRunner) RunAll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	return nil
}

func (f *fakeRunner) HandleCommand(_ context.Context, cmd *models.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd.Command)
	if f.fail {
		return errors.New("command failed")
	}
	return nil
}

func newTestScheduler(t *testing.T, cfg *config.Config, runner Runner) (*Scheduler, *storage.Store) {
	t.Helper()
	store, err := storage.Open(context.Background(), "sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(cfg, runner, store, services.NewExecutionLog(store, 0, 0)), store
}

func TestProcessCommands(t *testing.T) {
	runner := &fakeRunner{fail: true}
	s, store := newTestScheduler(t, &config.Config{}, runner)
	ctx := context.Background()

	if _, err := store.EnqueueCommand(ctx, models.CmdPause, models.CommandParams{}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := store.EnqueueCommand(ctx, models.CmdSyncSource, models.CommandParams{Source: "api"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	s.ProcessCommands(ctx)

	if len(runner.commands) != 2 || runner.commands[0] != models.CmdPause || runner.commands[1] != models.CmdSyncSource {
		t.Fatalf("unexpected commands: %v", runner.commands)
	}
	pending, err := store.GetPendingCommands(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("failed commands must still be marked processed, %d pending", len(pending))
	}
}

func TestStart_InvalidCron(t *testing.T) {
	cfg := &config.Config{Scheduler: config.SchedulerConfig{Cron: "not a cron"}}
	s, _ := newTestScheduler(t, cfg, &fakeRunner{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err == nil {
		t.Fatalf("expected invalid cron error")
	}
}

func TestTriggerNow(t *testing.T) {
	runner := &fakeRunner{}
	s, _ := newTestScheduler(t, &config.Config{}, runner)
	if err := s.TriggerNow(context.Background()); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if runner.runs != 1 {
		t.Fatalf("expected one run, got %d", runner.runs)
	}
}
