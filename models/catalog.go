package models

// CatalogName is a lookup table. Only the constants below are valid table
// names; storage refuses anything else.
type CatalogName string

const (
	CatalogCities         CatalogName = "cities"
	CatalogNeighborhoods  CatalogName = "neighborhoods"
	CatalogPropertyTypes  CatalogName = "property_types"
	CatalogPropertyUses   CatalogName = "property_uses"
	CatalogPropertyStatus CatalogName = "property_statuses"
)

// UnspecifiedCatalog is the sentinel entry used for null or blank values.
const UnspecifiedCatalog = "Unspecified"

var Catalogs = []CatalogName{
	CatalogCities,
	CatalogNeighborhoods,
	CatalogPropertyTypes,
	CatalogPropertyUses,
	CatalogPropertyStatus,
}

func (c CatalogName) Valid() bool {
	for _, n := range Catalogs {
		if n == c {
			return true
		}
	}
	return false
}

type CatalogEntry struct {
	ID          int64   `json:"id" db:"id"`
	Name        string  `json:"name" db:"name"`
	Description *string `json:"description" db:"description"`
}

// CatalogIDs holds the resolved foreign keys of one listing.
type CatalogIDs struct {
	City         int64
	Neighborhood int64
	PropertyType int64
	Use          int64
	Status       int64
}

func (ids CatalogIDs) Apply(l *Listing) {
	l.CityID = ids.City
	l.NeighborhoodID = ids.Neighborhood
	l.PropertyTypeID = ids.PropertyType
	l.UseID = ids.Use
	l.StatusID = ids.Status
}
