package storage

import (
	"context"
	"time"

	"propsync/models"
)

func (s *Store) GetPendingCommands(ctx context.Context) ([]models.Command, error) {
	var cmds []models.Command
	err := s.selectAll(ctx, &cmds, `
		SELECT id, command, COALESCE(params, '') AS params, created_at, processed_at
		FROM commands WHERE processed_at IS NULL ORDER BY created_at, id`)
	return cmds, err
}

func (s *Store) MarkCommandProcessed(ctx context.Context, id int64) error {
	_, err := s.exec(ctx, `UPDATE commands SET processed_at = ? WHERE id = ?`, time.Now().UTC(), id)
	return err
}

func (s *Store) EnqueueCommand(ctx context.Context, cmd models.CommandType, params models.CommandParams) (int64, error) {
	return s.insertID(ctx, `INSERT INTO commands (command, params, created_at) VALUES (?, ?, ?)`,
		cmd, params.Encode(), time.Now().UTC())
}
