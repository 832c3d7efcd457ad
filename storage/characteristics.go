package storage

import (
	"context"
	"fmt"

	"propsync/models"
)

func (s *Store) GetCharacteristic(ctx context.Context, name string) (*models.Characteristic, error) {
	var c models.Characteristic
	found, err := s.getOne(ctx, &c, `SELECT id, name, type, unit FROM characteristics WHERE name = ?`, name)
	if err != nil {
		return nil, fmt.Errorf("get characteristic %q: %w", name, err)
	}
	if !found {
		return nil, nil
	}
	return &c, nil
}

// EnsureCharacteristic creates the definition if absent and returns the
// stored row, whose type may differ from the one requested.
func (s *Store) EnsureCharacteristic(ctx context.Context, c *models.Characteristic) (*models.Characteristic, error) {
	query := s.dialect.insertIgnore("characteristics", []string{"name", "type", "unit"}, "name")
	if _, err := s.exec(ctx, query, c.Name, c.Type, c.Unit); err != nil {
		return nil, fmt.Errorf("insert characteristic %q: %w", c.Name, err)
	}
	stored, err := s.GetCharacteristic(ctx, c.Name)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("characteristic %q vanished after insert", c.Name)
	}
	return stored, nil
}

func (s *Store) UpdateCharacteristic(ctx context.Context, c *models.Characteristic) error {
	_, err := s.exec(ctx, `UPDATE characteristics SET type = ?, unit = ? WHERE id = ?`, c.Type, c.Unit, c.ID)
	return err
}

func (s *Store) DeleteListingCharacteristics(ctx context.Context, listingID int64) error {
	_, err := s.exec(ctx, `DELETE FROM listing_characteristics WHERE listing_id = ?`, listingID)
	return err
}

func (s *Store) InsertListingCharacteristic(ctx context.Context, v *models.CharacteristicValue) error {
	query := s.dialect.upsert("listing_characteristics",
		[]string{"listing_id", "characteristic_id", "value_text", "value_number", "value_bool"},
		"listing_id, characteristic_id",
		[]string{"value_text", "value_number", "value_bool"},
	)
	_, err := s.exec(ctx, query, v.ListingID, v.CharacteristicID, v.ValueText, v.ValueNumber, v.ValueBool)
	return err
}

func (s *Store) ListListingCharacteristics(ctx context.Context, listingID int64) ([]models.CharacteristicValue, error) {
	var values []models.CharacteristicValue
	err := s.selectAll(ctx, &values, `
		SELECT listing_id, characteristic_id, value_text, value_number, value_bool
		FROM listing_characteristics WHERE listing_id = ? ORDER BY characteristic_id`, listingID)
	return values, err
}
