package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"propsync/metrics"
	"propsync/models"
	"propsync/storage"
)

// ChangeTracker appends field-level audit rows.
type ChangeTracker struct {
	store *storage.Store
	now   func() time.Time
}

func NewChangeTracker(store *storage.Store) *ChangeTracker {
	return &ChangeTracker{store: store, now: time.Now}
}

// DiffAndRecord writes one record per field in fields whose value differs
// between oldValues and newValues. A nil oldValues map means the listing is
// new. Insert failures are logged and skipped; the returned slice holds
// only the records that were stored.
func (t *ChangeTracker) DiffAndRecord(ctx context.Context, listingID int64, oldValues, newValues map[string]*string, fields []string) []models.ChangeRecord {
	at := t.now().UTC()
	var recorded []models.ChangeRecord

	for _, field := range fields {
		before, after := oldValues[field], newValues[field]
		if before == nil && after == nil {
			continue
		}
		if before != nil && after != nil && *before == *after {
			continue
		}

		rec := models.ChangeRecord{
			ListingID: listingID,
			Field:     field,
			OldValue:  before,
			NewValue:  after,
			ChangedAt: at,
		}
		if err := t.store.InsertChange(ctx, &rec); err != nil {
			log.Warn().Err(err).Int64("listing_id", listingID).Str("field", field).Msg("change record skipped")
			continue
		}
		recorded = append(recorded, rec)
	}

	metrics.ChangeRecords.Add(float64(len(recorded)))
	return recorded
}
