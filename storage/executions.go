package storage

import (
	"context"
	"fmt"
	"time"

	"propsync/models"
)

const executionColumns = `id, run_uuid, source, started_at, finished_at, status, processed, new_count,
	updated_count, unchanged_count, images_downloaded, images_deleted, image_errors, errors,
	COALESCE(log_text, '') AS log_text, COALESCE(details, '') AS details`

func (s *Store) CreateExecution(ctx context.Context, rec *models.ExecutionRecord) (int64, error) {
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}
	id, err := s.insertID(ctx, `
		INSERT INTO sync_executions (
			run_uuid, source, started_at, finished_at, status, processed, new_count, updated_count,
			unchanged_count, images_downloaded, images_deleted, image_errors, errors, log_text, details
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunUUID, rec.Source, rec.StartedAt.UTC(), rec.FinishedAt, rec.Status, rec.Processed,
		rec.NewCount, rec.UpdatedCount, rec.UnchangedCount, rec.ImagesDownloaded, rec.ImagesDeleted,
		rec.ImageErrors, rec.Errors, rec.LogText, rec.Details,
	)
	if err != nil {
		return 0, fmt.Errorf("create execution: %w", err)
	}
	rec.ID = id
	return id, nil
}

func (s *Store) UpdateExecution(ctx context.Context, rec *models.ExecutionRecord) error {
	_, err := s.exec(ctx, `
		UPDATE sync_executions SET
			finished_at = ?, status = ?, processed = ?, new_count = ?, updated_count = ?,
			unchanged_count = ?, images_downloaded = ?, images_deleted = ?, image_errors = ?,
			errors = ?, log_text = ?, details = ?
		WHERE id = ?`,
		rec.FinishedAt, rec.Status, rec.Processed, rec.NewCount, rec.UpdatedCount,
		rec.UnchangedCount, rec.ImagesDownloaded, rec.ImagesDeleted, rec.ImageErrors,
		rec.Errors, rec.LogText, rec.Details, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("update execution %d: %w", rec.ID, err)
	}
	return nil
}

func (s *Store) GetExecution(ctx context.Context, id int64) (*models.ExecutionRecord, error) {
	var rec models.ExecutionRecord
	found, err := s.getOne(ctx, &rec, `SELECT `+executionColumns+` FROM sync_executions WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get execution %d: %w", id, err)
	}
	if !found {
		return nil, nil
	}
	return &rec, nil
}

// LatestExecution returns the most recent run, optionally for one source.
func (s *Store) LatestExecution(ctx context.Context, source string) (*models.ExecutionRecord, error) {
	query := `SELECT ` + executionColumns + ` FROM sync_executions`
	var args []any
	if source != "" {
		query += ` WHERE source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT 1`

	var rec models.ExecutionRecord
	found, err := s.getOne(ctx, &rec, query, args...)
	if err != nil {
		return nil, fmt.Errorf("latest execution: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &rec, nil
}

func (s *Store) RunningExecutions(ctx context.Context) ([]models.ExecutionRecord, error) {
	var recs []models.ExecutionRecord
	err := s.selectAll(ctx, &recs, `SELECT `+executionColumns+` FROM sync_executions WHERE status = ? ORDER BY started_at`,
		models.RunStatusRunning)
	if err != nil {
		return nil, fmt.Errorf("running executions: %w", err)
	}
	return recs, nil
}
