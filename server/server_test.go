package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"propsync/models"
	"propsync/services"
	"propsync/storage"
)

func newTestServer(t *testing.T) (*httptest.Server, *storage.Store, *services.Engine) {
	t.Helper()
	store, err := storage.Open(context.Background(), "sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	engine := services.NewEngine(store, nil, services.NewExecutionLog(store, 0, 0))
	srv := httptest.NewServer(New(store, engine, func() []string { return []string{"api"} }).Routes())
	t.Cleanup(srv.Close)
	return srv, store, engine
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestMetricsExposed(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestSyncSourceEnqueuesCommand(t *testing.T) {
	srv, store, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/sync/api?limit=5", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	cmds, err := store.GetPendingCommands(context.Background())
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(cmds) != 1 || cmds[0].Command != models.CmdSyncSource {
		t.Fatalf("unexpected commands: %+v", cmds)
	}
	params, _ := cmds[0].DecodeParams()
	if params.Source != "api" || params.Limit != 5 {
		t.Fatalf("unexpected params: %+v", params)
	}

	resp, err = http.Post(srv.URL+"/sync/nope", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown source, got %d", resp.StatusCode)
	}
}

func TestLatestExecution(t *testing.T) {
	srv, _, engine := newTestServer(t)

	resp, err := http.Get(srv.URL + "/executions/latest")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 before any run, got %d", resp.StatusCode)
	}

	var listings []models.RawListing
	if err := json.Unmarshal([]byte(`[{"ref": 1}]`), &listings); err != nil {
		t.Fatalf("decode: %v", err)
	}
	opts := services.DefaultOptions()
	opts.Source = "api"
	if _, err := engine.ProcessBatch(context.Background(), listings, opts); err != nil {
		t.Fatalf("process: %v", err)
	}

	resp, err = http.Get(srv.URL + "/executions/latest?source=api")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var rec models.ExecutionRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Status != models.RunStatusCompleted || rec.NewCount != 1 {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestSetFlags(t *testing.T) {
	srv, store, engine := newTestServer(t)
	ctx := context.Background()

	var listings []models.RawListing
	json.Unmarshal([]byte(`[{"ref": 77}]`), &listings)
	if _, err := engine.ProcessBatch(ctx, listings, services.DefaultOptions()); err != nil {
		t.Fatalf("process: %v", err)
	}

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/listings/77/flags", strings.NewReader(`{"active": true, "featured": true, "hot": false}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	l, _ := store.GetListingByRef(ctx, 77)
	if !l.Featured {
		t.Fatalf("flag not applied: %+v", l.Flags())
	}
	if n, _ := store.CountOverrides(ctx); n != 1 {
		t.Fatalf("expected override row, got %d", n)
	}

	req, _ = http.NewRequest(http.MethodPut, srv.URL+"/listings/999/flags", strings.NewReader(`{"active": true}`))
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func putFlags(t *testing.T, srv *httptest.Server, ref, body string) int {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/listings/"+ref+"/flags", strings.NewReader(body))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestSetFlags_PartialBodyKeepsOtherFlags(t *testing.T) {
	srv, store, engine := newTestServer(t)
	ctx := context.Background()

	var listings []models.RawListing
	json.Unmarshal([]byte(`[{"ref": 77}]`), &listings)
	if _, err := engine.ProcessBatch(ctx, listings, services.DefaultOptions()); err != nil {
		t.Fatalf("process: %v", err)
	}

	if code := putFlags(t, srv, "77", `{"featured": true}`); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	want := models.Flags{Active: true, Featured: true}
	l, _ := store.GetListingByRef(ctx, 77)
	if got := l.Flags(); got != want {
		t.Fatalf("flags = %+v, want %+v", got, want)
	}

	if _, err := engine.ProcessBatch(ctx, listings, services.DefaultOptions()); err != nil {
		t.Fatalf("resync: %v", err)
	}
	l, _ = store.GetListingByRef(ctx, 77)
	if got := l.Flags(); got != want {
		t.Fatalf("flags after resync = %+v, want %+v", got, want)
	}

	if code := putFlags(t, srv, "77", `{}`); code != http.StatusBadRequest {
		t.Fatalf("empty body: expected 400, got %d", code)
	}
}
