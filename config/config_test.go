package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeSource(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadSources(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "api.yaml", `
id: api
endpoint: https://api.example.com/inmuebles
method: POST
timeout: 45s
filters:
  city: Bogotá
  status_ids: [1, 3]
download_images: false
mark_inactive: true
`)
	writeSource(t, dir, "notes.txt", "ignored")

	sources, err := LoadSources(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	src, ok := sources["api"]
	if !ok || len(sources) != 1 {
		t.Fatalf("unexpected sources: %+v", sources)
	}
	if src.Timeout != 45*time.Second {
		t.Fatalf("timeout: %v", src.Timeout)
	}
	if src.DownloadImages == nil || *src.DownloadImages {
		t.Fatalf("download_images not decoded: %v", src.DownloadImages)
	}
	if src.TrackChanges != nil {
		t.Fatalf("track_changes should be unset")
	}
	if src.Filters.City != "Bogotá" || len(src.Filters.StatusIDs) != 2 || src.Filters.Empty() {
		t.Fatalf("filters: %+v", src.Filters)
	}
}

func TestLoadSources_Invalid(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "bad.yaml", "id: bad\nendpoint: not a url\n")
	if _, err := LoadSources(dir); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoadSources_MissingDir(t *testing.T) {
	sources, err := LoadSources(filepath.Join(t.TempDir(), "nope"))
	if err != nil || len(sources) != 0 {
		t.Fatalf("expected empty result, got %v %v", sources, err)
	}
}

func TestLoad_EnvDefaults(t *testing.T) {
	t.Setenv("SOURCES_DIR", t.TempDir())
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_DSN", "postgres://localhost/propsync")
	t.Setenv("RUN_TIMEOUT", "45m")
	t.Setenv("IMAGE_QUALITY", "90")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DB.Driver != "postgres" || cfg.Sync.RunTimeout != 45*time.Minute || cfg.Images.Quality != 90 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Sync.BatchSize != 5 || cfg.Sync.StartGrace != 5*time.Minute {
		t.Fatalf("defaults not applied: %+v", cfg.Sync)
	}
}

func TestValidate_RejectsBadDriver(t *testing.T) {
	t.Setenv("SOURCES_DIR", t.TempDir())
	t.Setenv("DB_DRIVER", "oracle")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
