package models

import "time"

// OverrideState is the exception list of listings whose flags differ from
// DefaultFlags. Rows exist only while that is true.
type OverrideState struct {
	Ref       int64     `json:"ref" db:"ref"`
	SyncCode  string    `json:"sync_code" db:"sync_code"`
	Active    bool      `json:"active" db:"active"`
	Featured  bool      `json:"featured" db:"featured"`
	Hot       bool      `json:"hot" db:"hot"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func (o *OverrideState) Flags() Flags {
	return Flags{Active: o.Active, Featured: o.Featured, Hot: o.Hot}
}
