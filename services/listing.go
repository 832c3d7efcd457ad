package services

import (
	"propsync/identity"
	"propsync/models"
)

// BuildListing maps a raw API listing onto the local row shape. Flags,
// ids and timestamps are left for the caller.
func BuildListing(raw *models.RawListing, ids models.CatalogIDs) *models.Listing {
	l := &models.Listing{
		Ref:              raw.Ref,
		SyncCode:         raw.SyncCode,
		Area:             raw.Area,
		AreaBuilt:        raw.AreaBuilt,
		AreaPrivate:      raw.AreaPrivate,
		AreaLot:          raw.AreaLot,
		Bedrooms:         raw.Bedrooms,
		Bathrooms:        raw.Bathrooms,
		Garages:          raw.Garages,
		Stratum:          raw.Stratum,
		SalePrice:        raw.SalePrice,
		RentPrice:        raw.RentPrice,
		AdminFee:         raw.AdminFee,
		Title:            raw.Title,
		Description:      raw.Description,
		ShortDescription: identity.ShortDescription(raw.ShortDescription, raw.Description),
		Address:          raw.Address,
		Latitude:         raw.Latitude,
		Longitude:        raw.Longitude,
		RawExtra:         raw.ExtraJSON(),
	}
	ids.Apply(l)

	slugBase := raw.SyncCode
	if slugBase == "" {
		slugBase = raw.Title
	}
	l.Slug = identity.Slugify(raw.Ref, slugBase, raw.City)
	return l
}

// ContentHash fingerprints the synced fields of a listing together with its
// normalized catalog names.
func ContentHash(l *models.Listing, catalogs models.CatalogValues) string {
	return identity.Fingerprint(l.HashFields(NormalizeCatalogs(catalogs)))
}
