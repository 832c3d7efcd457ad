package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"propsync/models"
)

func (s *Store) ListImages(ctx context.Context, listingID int64) ([]models.Image, error) {
	var images []models.Image
	err := s.selectAll(ctx, &images, `
		SELECT id, listing_id, original_url, local_path, content_hash, width, height, size_bytes,
			is_primary, ordinal, created_at, updated_at
		FROM images WHERE listing_id = ? ORDER BY ordinal, id`, listingID)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	return images, nil
}

// UpsertImage inserts the row or, when the URL is already known for the
// listing, overwrites its file metadata and position.
func (s *Store) UpsertImage(ctx context.Context, img *models.Image) error {
	now := time.Now().UTC()
	if img.CreatedAt.IsZero() {
		img.CreatedAt = now
	}
	img.UpdatedAt = now

	query := s.dialect.upsert("images",
		[]string{"listing_id", "original_url", "local_path", "content_hash", "width", "height",
			"size_bytes", "is_primary", "ordinal", "created_at", "updated_at"},
		"listing_id, original_url",
		[]string{"local_path", "content_hash", "width", "height", "size_bytes", "is_primary", "ordinal", "updated_at"},
	)
	_, err := s.exec(ctx, query,
		img.ListingID, img.OriginalURL, img.LocalPath, img.ContentHash, img.Width, img.Height,
		img.SizeBytes, img.IsPrimary, img.Ordinal, img.CreatedAt, img.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert image %s: %w", img.OriginalURL, err)
	}
	return nil
}

func (s *Store) UpdateImagePosition(ctx context.Context, id int64, ordinal int, primary bool) error {
	_, err := s.exec(ctx, `UPDATE images SET ordinal = ?, is_primary = ?, updated_at = ? WHERE id = ?`,
		ordinal, primary, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update image %d: %w", id, err)
	}
	return nil
}

func (s *Store) DeleteImages(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM images WHERE id IN (?)`, ids)
	if err != nil {
		return err
	}
	if _, err := s.exec(ctx, query, args...); err != nil {
		return fmt.Errorf("delete images: %w", err)
	}
	return nil
}

// ImagePathInUse reports whether any image row still references path.
func (s *Store) ImagePathInUse(ctx context.Context, path string) (bool, error) {
	var n int
	if err := s.get(ctx, &n, `SELECT COUNT(*) FROM images WHERE local_path = ?`, path); err != nil {
		return false, err
	}
	return n > 0, nil
}
