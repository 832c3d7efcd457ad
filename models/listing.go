package models

import (
	"strconv"
	"time"
)

// Listing is a property row as persisted locally. Ref is the only key used
// to match against the external API; ID never leaves the storage layer.
type Listing struct {
	ID               int64      `json:"id" db:"id"`
	Ref              int64      `json:"ref" db:"ref"`
	SyncCode         string     `json:"sync_code" db:"sync_code"`
	Slug             string     `json:"slug" db:"slug"`
	CityID           int64      `json:"city_id" db:"city_id"`
	NeighborhoodID   int64      `json:"neighborhood_id" db:"neighborhood_id"`
	PropertyTypeID   int64      `json:"property_type_id" db:"property_type_id"`
	UseID            int64      `json:"use_id" db:"use_id"`
	StatusID         int64      `json:"status_id" db:"status_id"`
	Area             float64    `json:"area" db:"area"`
	AreaBuilt        float64    `json:"area_built" db:"area_built"`
	AreaPrivate      float64    `json:"area_private" db:"area_private"`
	AreaLot          float64    `json:"area_lot" db:"area_lot"`
	Bedrooms         int        `json:"bedrooms" db:"bedrooms"`
	Bathrooms        int        `json:"bathrooms" db:"bathrooms"`
	Garages          int        `json:"garages" db:"garages"`
	Stratum          int        `json:"stratum" db:"stratum"`
	SalePrice        float64    `json:"sale_price" db:"sale_price"`
	RentPrice        float64    `json:"rent_price" db:"rent_price"`
	AdminFee         float64    `json:"admin_fee" db:"admin_fee"`
	Title            string     `json:"title" db:"title"`
	Description      string     `json:"description" db:"description"`
	ShortDescription string     `json:"short_description" db:"short_description"`
	Address          string     `json:"address" db:"address"`
	Latitude         *string    `json:"latitude" db:"latitude"`
	Longitude        *string    `json:"longitude" db:"longitude"`
	Active           bool       `json:"active" db:"active"`
	Featured         bool       `json:"featured" db:"featured"`
	Hot              bool       `json:"hot" db:"hot"`
	DataHash         string     `json:"data_hash" db:"data_hash"`
	RawExtra         string     `json:"raw_extra" db:"raw_extra"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
	LastSyncedAt     *time.Time `json:"last_synced_at" db:"last_synced_at"`
}

// Flags are the operator-controlled booleans that survive re-syncs.
type Flags struct {
	Active   bool `json:"active" db:"active"`
	Featured bool `json:"featured" db:"featured"`
	Hot      bool `json:"hot" db:"hot"`
}

// DefaultFlags is the state a listing gets when nobody has touched it.
func DefaultFlags() Flags {
	return Flags{Active: true}
}

func (f Flags) IsDefault() bool {
	return f == DefaultFlags()
}

func (l *Listing) Flags() Flags {
	return Flags{Active: l.Active, Featured: l.Featured, Hot: l.Hot}
}

func (l *Listing) SetFlags(f Flags) {
	l.Active = f.Active
	l.Featured = f.Featured
	l.Hot = f.Hot
}

// TrackedFields lists, in audit order, the external field names recorded by
// the change log. Bookkeeping columns are deliberately absent.
var TrackedFields = []string{
	"titulo",
	"descripcion",
	"direccion",
	"ciudad",
	"barrio",
	"tipo_inmueble",
	"uso",
	"estado_actual",
	"area",
	"area_construida",
	"area_privada",
	"area_lote",
	"habitaciones",
	"banos",
	"garajes",
	"estrato",
	"precio_venta",
	"precio_canon",
	"precio_administracion",
	"latitud",
	"longitud",
}

// AuditValues renders the tracked fields of a listing as nullable strings.
// Zero numerics and empty strings are reported as nil so that "absent" and
// "zero" compare equal. Catalog values come from the caller because the
// listing only carries their IDs.
func (l *Listing) AuditValues(catalogs CatalogValues) map[string]*string {
	return map[string]*string{
		"titulo":                nonEmpty(l.Title),
		"descripcion":           nonEmpty(l.Description),
		"direccion":             nonEmpty(l.Address),
		"ciudad":                nonEmpty(catalogs.City),
		"barrio":                nonEmpty(catalogs.Neighborhood),
		"tipo_inmueble":         nonEmpty(catalogs.PropertyType),
		"uso":                   nonEmpty(catalogs.Use),
		"estado_actual":         nonEmpty(catalogs.Status),
		"area":                  nonZeroFloat(l.Area),
		"area_construida":       nonZeroFloat(l.AreaBuilt),
		"area_privada":          nonZeroFloat(l.AreaPrivate),
		"area_lote":             nonZeroFloat(l.AreaLot),
		"habitaciones":          nonZeroInt(l.Bedrooms),
		"banos":                 nonZeroInt(l.Bathrooms),
		"garajes":               nonZeroInt(l.Garages),
		"estrato":               nonZeroInt(l.Stratum),
		"precio_venta":          nonZeroFloat(l.SalePrice),
		"precio_canon":          nonZeroFloat(l.RentPrice),
		"precio_administracion": nonZeroFloat(l.AdminFee),
		"latitud":               derefEmpty(l.Latitude),
		"longitud":              derefEmpty(l.Longitude),
	}
}

// HashFields is the canonical field set fed to the content fingerprint.
func (l *Listing) HashFields(catalogs CatalogValues) map[string]any {
	return map[string]any{
		"title":             l.Title,
		"description":       l.Description,
		"short_description": l.ShortDescription,
		"address":           l.Address,
		"area":              l.Area,
		"area_built":        l.AreaBuilt,
		"area_private":      l.AreaPrivate,
		"area_lot":          l.AreaLot,
		"bedrooms":          l.Bedrooms,
		"bathrooms":         l.Bathrooms,
		"garages":           l.Garages,
		"stratum":           l.Stratum,
		"sale_price":        l.SalePrice,
		"rent_price":        l.RentPrice,
		"admin_fee":         l.AdminFee,
		"latitude":          l.Latitude,
		"longitude":         l.Longitude,
		"city":              catalogs.City,
		"neighborhood":      catalogs.Neighborhood,
		"property_type":     catalogs.PropertyType,
		"use":               catalogs.Use,
		"status":            catalogs.Status,
		"sync_code":         l.SyncCode,
	}
}

// CatalogValues carries the free-text lookup values of a listing.
type CatalogValues struct {
	City         string
	Neighborhood string
	PropertyType string
	Use          string
	Status       string
}

func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}

func nonZeroFloat(v float64) *string {
	if v == 0 {
		return nil
	}
	s := FormatFloat(v)
	return &s
}

func nonZeroInt(v int) *string {
	if v == 0 {
		return nil
	}
	s := strconv.Itoa(v)
	return &s
}
