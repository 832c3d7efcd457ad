package storage

import (
	"context"
	"fmt"

	"propsync/models"
)

// EnsureCatalogEntry returns the id of the named entry, creating it if
// needed. The insert runs first and relies on the unique name; the select
// afterwards sees either our row or the one a concurrent writer created.
func (s *Store) EnsureCatalogEntry(ctx context.Context, table models.CatalogName, name string) (int64, error) {
	if !table.Valid() {
		return 0, fmt.Errorf("unknown catalog table %q", table)
	}

	if _, err := s.exec(ctx, s.dialect.insertIgnore(string(table), []string{"name"}, "name"), name); err != nil {
		return 0, fmt.Errorf("insert %s %q: %w", table, name, err)
	}

	var id int64
	if err := s.get(ctx, &id, `SELECT id FROM `+string(table)+` WHERE name = ?`, name); err != nil {
		return 0, fmt.Errorf("select %s %q: %w", table, name, err)
	}
	return id, nil
}

func (s *Store) ListCatalog(ctx context.Context, table models.CatalogName) ([]models.CatalogEntry, error) {
	if !table.Valid() {
		return nil, fmt.Errorf("unknown catalog table %q", table)
	}
	var entries []models.CatalogEntry
	err := s.selectAll(ctx, &entries, `SELECT id, name, description FROM `+string(table)+` ORDER BY id`)
	return entries, err
}
