package models

import "time"

type ChangeRecord struct {
	ID        int64     `json:"id" db:"id"`
	ListingID int64     `json:"listing_id" db:"listing_id"`
	Field     string    `json:"field" db:"field"`
	OldValue  *string   `json:"old_value" db:"old_value"`
	NewValue  *string   `json:"new_value" db:"new_value"`
	ChangedAt time.Time `json:"changed_at" db:"changed_at"`
}
