package models

import "time"

type Image struct {
	ID          int64     `json:"id" db:"id"`
	ListingID   int64     `json:"listing_id" db:"listing_id"`
	OriginalURL string    `json:"original_url" db:"original_url"`
	LocalPath   *string   `json:"local_path" db:"local_path"`
	ContentHash *string   `json:"content_hash" db:"content_hash"`
	Width       int       `json:"width" db:"width"`
	Height      int       `json:"height" db:"height"`
	SizeBytes   int64     `json:"size_bytes" db:"size_bytes"`
	IsPrimary   bool      `json:"is_primary" db:"is_primary"`
	Ordinal     int       `json:"ordinal" db:"ordinal"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

func (i *Image) Downloaded() bool {
	return i.LocalPath != nil && *i.LocalPath != ""
}

// CurrentImage is one image slot as the source presents it in this sync.
type CurrentImage struct {
	URL     string
	Ordinal int
}
