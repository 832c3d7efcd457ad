package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"propsync/models"
)

const listingColumns = `id, ref, sync_code, slug, city_id, neighborhood_id, property_type_id, use_id, status_id,
	area, area_built, area_private, area_lot, bedrooms, bathrooms, garages, stratum,
	sale_price, rent_price, admin_fee, COALESCE(title, '') AS title, COALESCE(description, '') AS description,
	COALESCE(short_description, '') AS short_description, COALESCE(address, '') AS address,
	latitude, longitude, active, featured, hot, data_hash, COALESCE(raw_extra, '') AS raw_extra,
	created_at, updated_at, last_synced_at`

func (s *Store) GetListingByRef(ctx context.Context, ref int64) (*models.Listing, error) {
	var l models.Listing
	found, err := s.getOne(ctx, &l, `SELECT `+listingColumns+` FROM listings WHERE ref = ?`, ref)
	if err != nil {
		return nil, fmt.Errorf("get listing %d: %w", ref, err)
	}
	if !found {
		return nil, nil
	}
	return &l, nil
}

// ListingCatalogValues loads the catalog names a listing currently points at.
func (s *Store) ListingCatalogValues(ctx context.Context, l *models.Listing) (models.CatalogValues, error) {
	var row struct {
		City         string `db:"city"`
		Neighborhood string `db:"neighborhood"`
		PropertyType string `db:"property_type"`
		Use          string `db:"use_name"`
		Status       string `db:"status"`
	}
	err := s.get(ctx, &row, `
		SELECT COALESCE(c.name, '') AS city, COALESCE(n.name, '') AS neighborhood,
			COALESCE(t.name, '') AS property_type, COALESCE(u.name, '') AS use_name,
			COALESCE(st.name, '') AS status
		FROM listings l
		LEFT JOIN cities c ON c.id = l.city_id
		LEFT JOIN neighborhoods n ON n.id = l.neighborhood_id
		LEFT JOIN property_types t ON t.id = l.property_type_id
		LEFT JOIN property_uses u ON u.id = l.use_id
		LEFT JOIN property_statuses st ON st.id = l.status_id
		WHERE l.id = ?`, l.ID)
	if err != nil {
		return models.CatalogValues{}, fmt.Errorf("load catalog values: %w", err)
	}
	return models.CatalogValues{
		City:         row.City,
		Neighborhood: row.Neighborhood,
		PropertyType: row.PropertyType,
		Use:          row.Use,
		Status:       row.Status,
	}, nil
}

func (s *Store) InsertListing(ctx context.Context, l *models.Listing) (int64, error) {
	now := time.Now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now
	if l.LastSyncedAt == nil {
		l.LastSyncedAt = &now
	}

	id, err := s.insertID(ctx, `
		INSERT INTO listings (
			ref, sync_code, slug, city_id, neighborhood_id, property_type_id, use_id, status_id,
			area, area_built, area_private, area_lot, bedrooms, bathrooms, garages, stratum,
			sale_price, rent_price, admin_fee, title, description, short_description, address,
			latitude, longitude, active, featured, hot, data_hash, raw_extra,
			created_at, updated_at, last_synced_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.Ref, l.SyncCode, l.Slug, l.CityID, l.NeighborhoodID, l.PropertyTypeID, l.UseID, l.StatusID,
		l.Area, l.AreaBuilt, l.AreaPrivate, l.AreaLot, l.Bedrooms, l.Bathrooms, l.Garages, l.Stratum,
		l.SalePrice, l.RentPrice, l.AdminFee, l.Title, l.Description, l.ShortDescription, l.Address,
		l.Latitude, l.Longitude, l.Active, l.Featured, l.Hot, l.DataHash, l.RawExtra,
		l.CreatedAt, l.UpdatedAt, l.LastSyncedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert listing %d: %w", l.Ref, err)
	}
	l.ID = id
	return id, nil
}

// UpdateListing overwrites every synced column, the flags and the hash.
func (s *Store) UpdateListing(ctx context.Context, l *models.Listing) error {
	now := time.Now().UTC()
	l.UpdatedAt = now
	l.LastSyncedAt = &now

	_, err := s.exec(ctx, `
		UPDATE listings SET
			sync_code = ?, slug = ?, city_id = ?, neighborhood_id = ?, property_type_id = ?, use_id = ?, status_id = ?,
			area = ?, area_built = ?, area_private = ?, area_lot = ?, bedrooms = ?, bathrooms = ?, garages = ?, stratum = ?,
			sale_price = ?, rent_price = ?, admin_fee = ?, title = ?, description = ?, short_description = ?, address = ?,
			latitude = ?, longitude = ?, active = ?, featured = ?, hot = ?, data_hash = ?, raw_extra = ?,
			updated_at = ?, last_synced_at = ?
		WHERE id = ?`,
		l.SyncCode, l.Slug, l.CityID, l.NeighborhoodID, l.PropertyTypeID, l.UseID, l.StatusID,
		l.Area, l.AreaBuilt, l.AreaPrivate, l.AreaLot, l.Bedrooms, l.Bathrooms, l.Garages, l.Stratum,
		l.SalePrice, l.RentPrice, l.AdminFee, l.Title, l.Description, l.ShortDescription, l.Address,
		l.Latitude, l.Longitude, l.Active, l.Featured, l.Hot, l.DataHash, l.RawExtra,
		l.UpdatedAt, l.LastSyncedAt, l.ID,
	)
	if err != nil {
		return fmt.Errorf("update listing %d: %w", l.Ref, err)
	}
	return nil
}

// TouchListing marks a listing as confirmed present without changing
// updated_at.
func (s *Store) TouchListing(ctx context.Context, id int64, t time.Time) error {
	_, err := s.exec(ctx, `UPDATE listings SET last_synced_at = ? WHERE id = ?`, t.UTC(), id)
	return err
}

func (s *Store) UpdateListingFlags(ctx context.Context, id int64, f models.Flags) error {
	_, err := s.exec(ctx, `UPDATE listings SET active = ?, featured = ?, hot = ? WHERE id = ?`,
		f.Active, f.Featured, f.Hot, id)
	return err
}

// ActiveListingKey identifies an active listing for the inactivity sweep.
type ActiveListingKey struct {
	ID       int64  `db:"id"`
	Ref      int64  `db:"ref"`
	SyncCode string `db:"sync_code"`
	Featured bool   `db:"featured"`
	Hot      bool   `db:"hot"`
}

func (s *Store) ActiveListings(ctx context.Context) ([]ActiveListingKey, error) {
	var keys []ActiveListingKey
	if err := s.selectAll(ctx, &keys,
		`SELECT id, ref, sync_code, featured, hot FROM listings WHERE active = ? ORDER BY ref`, true); err != nil {
		return nil, fmt.Errorf("list active listings: %w", err)
	}
	return keys, nil
}

const inChunk = 500

// DeactivateListings sets active=false on the given ids and returns the
// number of rows changed.
func (s *Store) DeactivateListings(ctx context.Context, ids []int64) (int64, error) {
	var total int64
	for start := 0; start < len(ids); start += inChunk {
		end := min(start+inChunk, len(ids))
		query, args, err := sqlx.In(`UPDATE listings SET active = ? WHERE active = ? AND id IN (?)`,
			false, true, ids[start:end])
		if err != nil {
			return total, err
		}
		res, err := s.exec(ctx, query, args...)
		if err != nil {
			return total, fmt.Errorf("deactivate listings: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func (s *Store) CountListings(ctx context.Context) (int, error) {
	var n int
	err := s.get(ctx, &n, `SELECT COUNT(*) FROM listings`)
	return n, err
}
