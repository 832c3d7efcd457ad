package storage

import (
	"context"
	"fmt"
	"time"

	"propsync/models"
)

func (s *Store) GetOverride(ctx context.Context, ref int64, syncCode string) (*models.OverrideState, error) {
	var o models.OverrideState
	found, err := s.getOne(ctx, &o, `
		SELECT ref, sync_code, active, featured, hot, updated_at
		FROM listing_overrides WHERE ref = ? AND sync_code = ?`, ref, syncCode)
	if err != nil {
		return nil, fmt.Errorf("get override %d: %w", ref, err)
	}
	if !found {
		return nil, nil
	}
	return &o, nil
}

func (s *Store) UpsertOverride(ctx context.Context, o *models.OverrideState) error {
	o.UpdatedAt = time.Now().UTC()
	query := s.dialect.upsert("listing_overrides",
		[]string{"ref", "sync_code", "active", "featured", "hot", "updated_at"},
		"ref, sync_code",
		[]string{"active", "featured", "hot", "updated_at"},
	)
	if _, err := s.exec(ctx, query, o.Ref, o.SyncCode, o.Active, o.Featured, o.Hot, o.UpdatedAt); err != nil {
		return fmt.Errorf("upsert override %d: %w", o.Ref, err)
	}
	return nil
}

func (s *Store) DeleteOverride(ctx context.Context, ref int64, syncCode string) error {
	_, err := s.exec(ctx, `DELETE FROM listing_overrides WHERE ref = ? AND sync_code = ?`, ref, syncCode)
	if err != nil {
		return fmt.Errorf("delete override %d: %w", ref, err)
	}
	return nil
}

func (s *Store) CountOverrides(ctx context.Context) (int, error) {
	var n int
	err := s.get(ctx, &n, `SELECT COUNT(*) FROM listing_overrides`)
	return n, err
}
