package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"propsync/models"
	"propsync/storage"
)

// CatalogResolver maps a free-text lookup value to its catalog id.
type CatalogResolver interface {
	Resolve(ctx context.Context, table models.CatalogName, value string) (int64, error)
}

// CatalogCache remembers resolved ids for the lifetime of one batch.
type CatalogCache struct {
	mu  sync.Mutex
	ids map[catalogKey]int64
}

type catalogKey struct {
	table models.CatalogName
	name  string
}

func NewCatalogCache() *CatalogCache {
	return &CatalogCache{ids: make(map[catalogKey]int64)}
}

func (c *CatalogCache) get(table models.CatalogName, name string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.ids[catalogKey{table, name}]
	return id, ok
}

func (c *CatalogCache) put(table models.CatalogName, name string, id int64) {
	c.mu.Lock()
	c.ids[catalogKey{table, name}] = id
	c.mu.Unlock()
}

// StoreCatalogResolver resolves against the database, creating entries on
// first sight.
type StoreCatalogResolver struct {
	store *storage.Store
	cache *CatalogCache
}

func NewCatalogResolver(store *storage.Store, cache *CatalogCache) *StoreCatalogResolver {
	if cache == nil {
		cache = NewCatalogCache()
	}
	return &StoreCatalogResolver{store: store, cache: cache}
}

func (r *StoreCatalogResolver) Resolve(ctx context.Context, table models.CatalogName, value string) (int64, error) {
	name := CatalogValue(value)
	if id, ok := r.cache.get(table, name); ok {
		return id, nil
	}

	id, err := r.store.EnsureCatalogEntry(ctx, table, name)
	if err != nil {
		return 0, err
	}
	r.cache.put(table, name, id)
	log.Debug().Str("table", string(table)).Str("name", name).Int64("id", id).Msg("catalog resolved")
	return id, nil
}

// CatalogValue normalizes a raw lookup value to the stored catalog name.
func CatalogValue(value string) string {
	name := strings.Join(strings.Fields(value), " ")
	if name == "" {
		return models.UnspecifiedCatalog
	}
	return name
}

// NormalizeCatalogs applies CatalogValue to every dimension.
func NormalizeCatalogs(v models.CatalogValues) models.CatalogValues {
	return models.CatalogValues{
		City:         CatalogValue(v.City),
		Neighborhood: CatalogValue(v.Neighborhood),
		PropertyType: CatalogValue(v.PropertyType),
		Use:          CatalogValue(v.Use),
		Status:       CatalogValue(v.Status),
	}
}

// ResolveAll resolves the five catalog dimensions of a listing.
func ResolveAll(ctx context.Context, r CatalogResolver, v models.CatalogValues) (models.CatalogIDs, error) {
	var ids models.CatalogIDs
	targets := []struct {
		table models.CatalogName
		value string
		dst   *int64
	}{
		{models.CatalogCities, v.City, &ids.City},
		{models.CatalogNeighborhoods, v.Neighborhood, &ids.Neighborhood},
		{models.CatalogPropertyTypes, v.PropertyType, &ids.PropertyType},
		{models.CatalogPropertyUses, v.Use, &ids.Use},
		{models.CatalogPropertyStatus, v.Status, &ids.Status},
	}
	for _, t := range targets {
		id, err := r.Resolve(ctx, t.table, t.value)
		if err != nil {
			return ids, fmt.Errorf("resolve %s: %w", t.table, err)
		}
		*t.dst = id
	}
	return ids, nil
}
