package models

type CharacteristicType string

const (
	CharBoolean CharacteristicType = "boolean"
	CharNumeric CharacteristicType = "numeric"
	CharText    CharacteristicType = "text"
)

type Characteristic struct {
	ID   int64              `json:"id" db:"id"`
	Name string             `json:"name" db:"name"`
	Type CharacteristicType `json:"type" db:"type"`
	Unit *string            `json:"unit" db:"unit"`
}

type CharacteristicValue struct {
	ListingID        int64    `json:"listing_id" db:"listing_id"`
	CharacteristicID int64    `json:"characteristic_id" db:"characteristic_id"`
	ValueText        *string  `json:"value_text" db:"value_text"`
	ValueNumber      *float64 `json:"value_number" db:"value_number"`
	ValueBool        *bool    `json:"value_bool" db:"value_bool"`
}
