package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"propsync/config"
	"propsync/models"
	"propsync/services"
	"propsync/storage"
)

func newTestOrchestrator(t *testing.T, endpoint string) (*Orchestrator, *storage.Store) {
	t.Helper()
	store, err := storage.Open(context.Background(), "sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	noImages := false
	cfg := &config.Config{
		Sync: config.SyncConfig{BatchSize: 2},
		Sources: map[string]*config.SourceConfig{
			"api": {ID: "api", Endpoint: endpoint, DownloadImages: &noImages},
		},
	}
	engine := services.NewEngine(store, nil, services.NewExecutionLog(store, 0, 0))
	return NewOrchestrator(cfg, engine, http.DefaultClient), store
}

func TestOrchestrator_RunSource(t *testing.T) {
	payload, err := os.ReadFile("testdata/inmuebles.json")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(payload)
	}))
	defer srv.Close()

	o, store := newTestOrchestrator(t, srv.URL)
	ctx := context.Background()

	stats, err := o.RunSource(ctx, "api", 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.New != 2 || stats.Errors != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	l, err := store.GetListingByRef(ctx, 261)
	if err != nil || l == nil {
		t.Fatalf("listing 261: %v %v", l, err)
	}
	if l.ShortDescription != "Apartamento remodelado con vista." {
		t.Fatalf("short description: %q", l.ShortDescription)
	}

	rec, _ := store.LatestExecution(ctx, "api")
	if rec == nil || rec.Status != models.RunStatusCompleted || rec.Errors != 1 {
		t.Fatalf("unexpected execution: %+v", rec)
	}
}

func TestOrchestrator_FetchFailureRecorded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	o, store := newTestOrchestrator(t, srv.URL)
	ctx := context.Background()

	if _, err := o.RunSource(ctx, "api", 0); err == nil {
		t.Fatalf("expected fetch error")
	}
	rec, _ := store.LatestExecution(ctx, "api")
	if rec == nil || rec.Status != models.RunStatusError || rec.LogText == "" {
		t.Fatalf("failure not recorded: %+v", rec)
	}
	if rec.FinishedAt == nil {
		t.Fatalf("failed run left open: %+v", rec)
	}
	if running, _ := store.RunningExecutions(ctx); len(running) != 0 {
		t.Fatalf("running executions = %d, want 0", len(running))
	}
}

func TestOrchestrator_FetchFailureDuringRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	o, store := newTestOrchestrator(t, srv.URL)
	ctx := context.Background()

	owner, err := o.engine.Executions().Begin(ctx, "api")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	_, err = o.RunSource(ctx, "api", 0)
	if err == nil || errors.Is(err, services.ErrRunInProgress) {
		t.Fatalf("expected the fetch error, got %v", err)
	}

	running, _ := store.RunningExecutions(ctx)
	if len(running) != 1 || running[0].RunUUID != owner.RunUUID {
		t.Fatalf("owning run disturbed: %+v", running)
	}
}

func TestOrchestrator_Commands(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`[{"ref": 1}, {"ref": 2}, {"ref": 3}]`))
	}))
	defer srv.Close()

	o, store := newTestOrchestrator(t, srv.URL)
	ctx := context.Background()

	if err := o.HandleCommand(ctx, &models.Command{Command: models.CmdPause}); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !o.IsPaused() {
		t.Fatalf("expected paused")
	}
	if err := o.HandleCommand(ctx, &models.Command{Command: models.CmdSyncNow}); err != nil {
		t.Fatalf("sync while paused: %v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("paused orchestrator hit the API")
	}

	if err := o.HandleCommand(ctx, &models.Command{Command: models.CmdResume}); err != nil {
		t.Fatalf("resume: %v", err)
	}
	params := models.CommandParams{Source: "api", Limit: 2}
	if err := o.HandleCommand(ctx, &models.Command{Command: models.CmdSyncSource, Params: params.Encode()}); err != nil {
		t.Fatalf("sync source: %v", err)
	}
	n, _ := store.CountListings(ctx)
	if n != 2 {
		t.Fatalf("expected limit of 2 listings, got %d", n)
	}

	if err := o.HandleCommand(ctx, &models.Command{Command: "reboot"}); err == nil {
		t.Fatalf("expected unknown command error")
	}
}

func TestOrchestrator_RunFile(t *testing.T) {
	o, store := newTestOrchestrator(t, "http://unused.invalid")
	path := filepath.Join(t.TempDir(), "dump.json")
	if err := os.WriteFile(path, []byte(`{"results": [{"ref": 11}, {"ref": 12}]}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	stats, err := o.RunFile(context.Background(), "api", path)
	if err != nil {
		t.Fatalf("run file: %v", err)
	}
	if stats.New != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if n, _ := store.CountListings(context.Background()); n != 2 {
		t.Fatalf("expected 2 listings, got %d", n)
	}
}

func TestOptionsFor(t *testing.T) {
	off := false
	opts := OptionsFor(&config.SourceConfig{ID: "x", TrackChanges: &off, MarkInactive: true, Limit: 10}, 7)
	if opts.Source != "x" || opts.TrackChanges || !opts.DownloadImages || !opts.MarkInactive || opts.Limit != 10 || opts.BatchSize != 7 {
		t.Fatalf("unexpected options: %+v", opts)
	}
}
