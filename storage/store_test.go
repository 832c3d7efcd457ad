package storage

import (
	"context"
	"strings"
	"sync"
	"testing"

	"propsync/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestListing(t *testing.T, s *Store, ref int64) *models.Listing {
	t.Helper()
	ctx := context.Background()
	city, err := s.EnsureCatalogEntry(ctx, models.CatalogCities, "Cali")
	if err != nil {
		t.Fatalf("ensure city: %v", err)
	}
	l := &models.Listing{
		Ref: ref, SyncCode: "AP", CityID: city, NeighborhoodID: city, PropertyTypeID: city,
		UseID: city, StatusID: city, Title: "Casa", SalePrice: 100, Active: true, DataHash: "h1",
	}
	if _, err := s.InsertListing(ctx, l); err != nil {
		t.Fatalf("insert listing: %v", err)
	}
	return l
}

func TestEnsureCatalogEntry_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.EnsureCatalogEntry(ctx, models.CatalogCities, "Bogotá")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	b, err := s.EnsureCatalogEntry(ctx, models.CatalogCities, "Bogotá")
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if a != b {
		t.Fatalf("expected same id, got %d and %d", a, b)
	}

	entries, err := s.ListCatalog(ctx, models.CatalogCities)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "Bogotá" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestEnsureCatalogEntry_Concurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids := make([]int64, 8)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := s.EnsureCatalogEntry(ctx, models.CatalogNeighborhoods, "Chapinero")
			if err != nil {
				t.Errorf("ensure: %v", err)
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("concurrent resolution returned different ids: %v", ids)
		}
	}
}

func TestEnsureCatalogEntry_RejectsUnknownTable(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.EnsureCatalogEntry(context.Background(), models.CatalogName("users; --"), "x"); err == nil {
		t.Fatalf("expected error for unknown table")
	}
}

func TestListing_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	l := insertTestListing(t, s, 261)

	got, err := s.GetListingByRef(ctx, 261)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.ID != l.ID || got.Title != "Casa" || !got.Active {
		t.Fatalf("unexpected listing: %+v", got)
	}
	if got.LastSyncedAt == nil {
		t.Fatalf("expected last_synced_at to be set")
	}

	missing, err := s.GetListingByRef(ctx, 999)
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil for missing ref, got %v, %v", missing, err)
	}

	vals, err := s.ListingCatalogValues(ctx, got)
	if err != nil {
		t.Fatalf("catalog values: %v", err)
	}
	if vals.City != "Cali" {
		t.Fatalf("expected city Cali, got %q", vals.City)
	}
}

func TestDeactivateListings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := insertTestListing(t, s, 1)
	insertTestListing(t, s, 2)

	n, err := s.DeactivateListings(ctx, []int64{a.ID})
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row, got %d", n)
	}

	active, err := s.ActiveListings(ctx)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != 1 || active[0].Ref != 2 {
		t.Fatalf("unexpected active set: %+v", active)
	}
}

func TestUpsertImage_UpdatesInPlace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	l := insertTestListing(t, s, 5)

	img := &models.Image{ListingID: l.ID, OriginalURL: "http://x/a.jpg", Ordinal: 0, IsPrimary: true}
	if err := s.UpsertImage(ctx, img); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	path := "5/0-a.jpg"
	img.LocalPath = &path
	img.Width = 800
	if err := s.UpsertImage(ctx, img); err != nil {
		t.Fatalf("upsert again: %v", err)
	}

	images, err := s.ListImages(ctx, l.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(images) != 1 {
		t.Fatalf("expected 1 image, got %d", len(images))
	}
	if !images[0].Downloaded() || images[0].Width != 800 {
		t.Fatalf("unexpected image: %+v", images[0])
	}

	inUse, err := s.ImagePathInUse(ctx, path)
	if err != nil || !inUse {
		t.Fatalf("expected path in use, got %v, %v", inUse, err)
	}
	if err := s.DeleteImages(ctx, []int64{images[0].ID}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	images, _ = s.ListImages(ctx, l.ID)
	if len(images) != 0 {
		t.Fatalf("expected no images after delete")
	}
}

func TestOverrides(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	o := &models.OverrideState{Ref: 7, SyncCode: "X", Active: false}
	if err := s.UpsertOverride(ctx, o); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	o.Hot = true
	if err := s.UpsertOverride(ctx, o); err != nil {
		t.Fatalf("upsert again: %v", err)
	}

	got, err := s.GetOverride(ctx, 7, "X")
	if err != nil || got == nil {
		t.Fatalf("get: %v, %v", got, err)
	}
	if got.Active || !got.Hot {
		t.Fatalf("unexpected flags: %+v", got)
	}

	other, _ := s.GetOverride(ctx, 7, "Y")
	if other != nil {
		t.Fatalf("override keyed by sync code leaked across codes")
	}

	if err := s.DeleteOverride(ctx, 7, "X"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n, _ := s.CountOverrides(ctx); n != 0 {
		t.Fatalf("expected 0 overrides, got %d", n)
	}
}

func TestWithTx_RollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	l := insertTestListing(t, s, 9)

	err := s.WithTx(ctx, func(tx *Store) error {
		if err := tx.UpsertImage(ctx, &models.Image{ListingID: l.ID, OriginalURL: "http://x/b.jpg"}); err != nil {
			return err
		}
		return context.Canceled
	})
	if err == nil {
		t.Fatalf("expected error from tx")
	}
	images, _ := s.ListImages(ctx, l.ID)
	if len(images) != 0 {
		t.Fatalf("expected rollback, found %d images", len(images))
	}
}

func TestCommands(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.EnqueueCommand(ctx, models.CmdSyncSource, models.CommandParams{Source: "main"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	cmds, err := s.GetPendingCommands(ctx)
	if err != nil || len(cmds) != 1 {
		t.Fatalf("pending: %v, %v", cmds, err)
	}
	params, err := cmds[0].DecodeParams()
	if err != nil || params.Source != "main" {
		t.Fatalf("params: %+v, %v", params, err)
	}
	if err := s.MarkCommandProcessed(ctx, id); err != nil {
		t.Fatalf("mark: %v", err)
	}
	cmds, _ = s.GetPendingCommands(ctx)
	if len(cmds) != 0 {
		t.Fatalf("expected no pending commands")
	}
}

func TestDialectSQL(t *testing.T) {
	q := DialectMySQL.upsert("t", []string{"a", "b"}, "a", []string{"b"})
	if !strings.Contains(q, "ON DUPLICATE KEY UPDATE b = VALUES(b)") {
		t.Fatalf("unexpected mysql upsert: %s", q)
	}
	q = DialectPostgres.upsert("t", []string{"a", "b"}, "a", []string{"b"})
	if !strings.Contains(q, "ON CONFLICT(a) DO UPDATE SET b = excluded.b") {
		t.Fatalf("unexpected postgres upsert: %s", q)
	}
	if q := DialectMySQL.insertIgnore("t", []string{"name"}, "name"); !strings.HasPrefix(q, "INSERT IGNORE") {
		t.Fatalf("unexpected mysql insert ignore: %s", q)
	}

	for _, d := range []Dialect{DialectSQLite, DialectMySQL, DialectPostgres} {
		for _, stmt := range d.Schema() {
			if strings.Contains(stmt, "{{") {
				t.Fatalf("%s: unreplaced placeholder in %s", d, firstLine(stmt))
			}
		}
	}

	if got := DialectMySQL.NormalizeDSN("u:p@tcp(db)/app"); got != "u:p@tcp(db)/app?parseTime=true&charset=utf8mb4" {
		t.Fatalf("unexpected mysql dsn: %s", got)
	}
	if _, err := ParseDialect("oracle"); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestIsUnavailable(t *testing.T) {
	s := newTestStore(t)
	s.Close()
	_, err := s.GetListingByRef(context.Background(), 1)
	if !IsUnavailable(err) {
		t.Fatalf("expected closed database to be unavailable, got %v", err)
	}
	if IsUnavailable(nil) {
		t.Fatalf("nil is not unavailable")
	}
}
