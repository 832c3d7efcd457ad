package storage

import (
	"context"
	"fmt"

	"propsync/models"
)

func (s *Store) InsertChange(ctx context.Context, c *models.ChangeRecord) error {
	id, err := s.insertID(ctx, `
		INSERT INTO listing_changes (listing_id, field, old_value, new_value, changed_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.ListingID, c.Field, c.OldValue, c.NewValue, c.ChangedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert change %s: %w", c.Field, err)
	}
	c.ID = id
	return nil
}

func (s *Store) ListChanges(ctx context.Context, listingID int64) ([]models.ChangeRecord, error) {
	var changes []models.ChangeRecord
	err := s.selectAll(ctx, &changes, `
		SELECT id, listing_id, field, old_value, new_value, changed_at
		FROM listing_changes WHERE listing_id = ? ORDER BY id`, listingID)
	return changes, err
}
