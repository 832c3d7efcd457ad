package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"propsync/metrics"
	"propsync/models"
	"propsync/storage"
)

const DefaultBatchSize = 5

// Options are the knobs of one ProcessBatch call.
type Options struct {
	Source         string `json:"source"`
	DownloadImages bool   `json:"download_images"`
	TrackChanges   bool   `json:"track_changes"`
	MarkInactive   bool   `json:"mark_inactive"`
	Limit          int    `json:"limit"`
	BatchSize      int    `json:"batch_size"`

	// Resolver replaces the per-batch database resolver when set.
	Resolver CatalogResolver `json:"-"`
}

func DefaultOptions() Options {
	return Options{
		DownloadImages: true,
		TrackChanges:   true,
		BatchSize:      DefaultBatchSize,
	}
}

// Engine reconciles batches of API listings against the local store.
type Engine struct {
	store           *storage.Store
	images          *ImageSync
	overrides       *OverridePreserver
	changes         *ChangeTracker
	characteristics *Characteristics
	executions      *ExecutionLog

	mu   sync.Mutex
	last *ProcessStats
}

func NewEngine(store *storage.Store, images *ImageSync, executions *ExecutionLog) *Engine {
	return &Engine{
		store:           store,
		images:          images,
		overrides:       NewOverridePreserver(store),
		changes:         NewChangeTracker(store),
		characteristics: NewCharacteristics(),
		executions:      executions,
	}
}

func (e *Engine) Overrides() *OverridePreserver {
	return e.overrides
}

func (e *Engine) Executions() *ExecutionLog {
	return e.executions
}

// GetStatistics returns the counters of the current or most recent batch.
func (e *Engine) GetStatistics() models.Statistics {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return models.Statistics{}
	}
	return e.last.Snapshot()
}

// ProcessBatch runs one full synchronization pass over listings and records
// it in the execution log. Per-listing failures are counted in the returned
// statistics; an error is returned only when the run itself failed.
func (e *Engine) ProcessBatch(ctx context.Context, listings []models.RawListing, opts Options) (models.Statistics, error) {
	rec, err := e.executions.Begin(ctx, opts.Source)
	if err != nil {
		return models.Statistics{}, err
	}

	stats := NewProcessStats(rec.StartedAt)
	e.mu.Lock()
	e.last = stats
	e.mu.Unlock()

	logger := log.With().Str("run_id", rec.RunUUID).Str("source", opts.Source).Logger()
	ctx = logger.WithContext(ctx)

	runErr := e.run(ctx, listings, opts, stats)
	stats.Finish(time.Now().UTC())
	snap := stats.Snapshot()
	details := runDetails(opts, snap)

	if runErr != nil {
		if err := e.executions.Fail(ctx, rec, snap, details, runErr); err != nil {
			logger.Warn().Err(err).Msg("failed to close execution record")
		}
		logger.Error().Err(runErr).Int("processed", snap.Processed).Msg("sync run failed")
		return snap, runErr
	}

	if err := e.executions.Complete(ctx, rec, snap, details); err != nil {
		return snap, fmt.Errorf("complete execution: %w", err)
	}
	logger.Info().
		Int("processed", snap.Processed).
		Int("new", snap.New).
		Int("updated", snap.Updated).
		Int("unchanged", snap.Unchanged).
		Int("errors", snap.Errors).
		Int("images_downloaded", snap.ImagesDownloaded).
		Int("marked_inactive", snap.MarkedInactive).
		Msg("sync run completed")
	return snap, nil
}

func (e *Engine) run(ctx context.Context, listings []models.RawListing, opts Options, stats *ProcessStats) error {
	logger := zerolog.Ctx(ctx)

	truncated := false
	if opts.Limit > 0 && len(listings) > opts.Limit {
		listings = listings[:opts.Limit]
		truncated = true
	}

	// invalid elements are counted up front; repeated refs keep the last copy
	var work []*models.RawListing
	index := make(map[int64]int, len(listings))
	for i := range listings {
		raw := &listings[i]
		if err := raw.Valid(); err != nil {
			stats.AddError()
			metrics.ListingsProcessed.WithLabelValues(opts.Source, string(OutcomeError)).Inc()
			logger.Warn().Err(err).Int("index", i).Msg("listing skipped")
			continue
		}
		if j, dup := index[raw.Ref]; dup {
			logger.Debug().Int64("ref", raw.Ref).Msg("duplicate ref in payload, keeping last")
			work[j] = raw
			continue
		}
		index[raw.Ref] = len(work)
		work = append(work, raw)
	}

	resolver := opts.Resolver
	if resolver == nil {
		resolver = NewCatalogResolver(e.store, NewCatalogCache())
	}

	size := opts.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}

	for start := 0; start < len(work); start += size {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+size, len(work))

		g, gctx := errgroup.WithContext(ctx)
		for _, raw := range work[start:end] {
			g.Go(func() (err error) {
				defer func() {
					if p := recover(); p != nil {
						err = fmt.Errorf("panic processing listing %d: %v", raw.Ref, p)
					}
				}()

				res, perr := e.processListing(gctx, raw, opts, resolver)
				if perr != nil {
					if storage.IsUnavailable(perr) {
						return perr
					}
					res.Outcome = OutcomeError
					logger.Warn().Err(perr).Int64("ref", raw.Ref).Msg("listing failed")
				}
				stats.Aggregate(res)
				metrics.ListingsProcessed.WithLabelValues(opts.Source, string(res.Outcome)).Inc()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	if !opts.MarkInactive {
		return nil
	}
	switch {
	case truncated:
		logger.Info().Int("limit", opts.Limit).Msg("batch truncated, inactivity sweep skipped")
	case len(index) == 0:
		logger.Info().Msg("no listings seen, inactivity sweep skipped")
	default:
		seen := make([]int64, 0, len(index))
		for ref := range index {
			seen = append(seen, ref)
		}
		n, err := e.MarkInactiveMissing(ctx, seen)
		if err != nil {
			return fmt.Errorf("mark inactive: %w", err)
		}
		stats.AddMarkedInactive(n)
	}
	return nil
}

func (e *Engine) processListing(ctx context.Context, raw *models.RawListing, opts Options, resolver CatalogResolver) (*ListingResult, error) {
	res := &ListingResult{Ref: raw.Ref}

	catalogs := NormalizeCatalogs(raw.Catalogs())
	ids, err := ResolveAll(ctx, resolver, catalogs)
	if err != nil {
		return res, err
	}

	l := BuildListing(raw, ids)
	l.DataHash = ContentHash(l, catalogs)

	existing, err := e.store.GetListingByRef(ctx, raw.Ref)
	if err != nil {
		return res, err
	}

	switch {
	case existing == nil:
		err = e.insertNew(ctx, l, catalogs, opts, res)
	case existing.DataHash == l.DataHash:
		err = e.confirmUnchanged(ctx, existing, res)
		l = existing
	default:
		err = e.applyUpdate(ctx, existing, l, catalogs, opts, res)
	}
	if err != nil {
		return res, err
	}

	if raw.HasCharacteristics {
		err := e.store.WithTx(ctx, func(tx *storage.Store) error {
			return e.characteristics.Replace(ctx, tx, l.ID, raw.Characteristics)
		})
		if err != nil {
			return res, fmt.Errorf("replace characteristics: %w", err)
		}
	}

	if raw.HasImages && e.images != nil {
		imgRes, err := e.images.Sync(ctx, l, raw.Images, opts.DownloadImages)
		res.Images = imgRes
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

func (e *Engine) insertNew(ctx context.Context, l *models.Listing, catalogs models.CatalogValues, opts Options, res *ListingResult) error {
	flags, err := e.overrides.CaptureDefaults(ctx, l.Ref, l.SyncCode, nil)
	if err != nil {
		return err
	}
	l.SetFlags(flags)

	if _, err := e.store.InsertListing(ctx, l); err != nil {
		return err
	}
	if err := e.overrides.ReconcileAfterWrite(ctx, l.Ref, l.SyncCode, flags); err != nil {
		return err
	}

	if opts.TrackChanges {
		res.Changes = len(e.changes.DiffAndRecord(ctx, l.ID, nil, l.AuditValues(catalogs), models.TrackedFields))
	}
	res.Outcome = OutcomeNew
	return nil
}

func (e *Engine) confirmUnchanged(ctx context.Context, existing *models.Listing, res *ListingResult) error {
	flags, err := e.overrides.CaptureDefaults(ctx, existing.Ref, existing.SyncCode, existing)
	if err != nil {
		return err
	}
	if flags != existing.Flags() {
		if err := e.store.UpdateListingFlags(ctx, existing.ID, flags); err != nil {
			return err
		}
		existing.SetFlags(flags)
	}
	if err := e.overrides.ReconcileAfterWrite(ctx, existing.Ref, existing.SyncCode, flags); err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := e.store.TouchListing(ctx, existing.ID, now); err != nil {
		return err
	}
	existing.LastSyncedAt = &now
	res.Outcome = OutcomeUnchanged
	return nil
}

func (e *Engine) applyUpdate(ctx context.Context, existing, l *models.Listing, catalogs models.CatalogValues, opts Options, res *ListingResult) error {
	oldCatalogs, err := e.store.ListingCatalogValues(ctx, existing)
	if err != nil {
		return err
	}

	flags, err := e.overrides.CaptureDefaults(ctx, l.Ref, l.SyncCode, existing)
	if err != nil {
		return err
	}
	l.ID = existing.ID
	l.CreatedAt = existing.CreatedAt
	l.SetFlags(flags)

	if err := e.store.UpdateListing(ctx, l); err != nil {
		return err
	}
	if existing.SyncCode != l.SyncCode {
		if err := e.store.DeleteOverride(ctx, existing.Ref, existing.SyncCode); err != nil {
			return err
		}
	}
	if err := e.overrides.ReconcileAfterWrite(ctx, l.Ref, l.SyncCode, flags); err != nil {
		return err
	}

	if opts.TrackChanges {
		res.Changes = len(e.changes.DiffAndRecord(ctx, l.ID,
			existing.AuditValues(oldCatalogs), l.AuditValues(catalogs), models.TrackedFields))
	}
	res.Outcome = OutcomeUpdated
	return nil
}

// MarkInactiveMissing deactivates every active listing whose ref is not in
// seenRefs and stores an override for each, so a later reappearance keeps
// it inactive. It returns the number of listings deactivated.
func (e *Engine) MarkInactiveMissing(ctx context.Context, seenRefs []int64) (int, error) {
	seen := make(map[int64]bool, len(seenRefs))
	for _, ref := range seenRefs {
		seen[ref] = true
	}

	active, err := e.store.ActiveListings(ctx)
	if err != nil {
		return 0, err
	}

	var missing []storage.ActiveListingKey
	ids := make([]int64, 0)
	for _, k := range active {
		if !seen[k.Ref] {
			missing = append(missing, k)
			ids = append(ids, k.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	n, err := e.store.DeactivateListings(ctx, ids)
	if err != nil {
		return int(n), err
	}
	for _, k := range missing {
		flags := models.Flags{Active: false, Featured: k.Featured, Hot: k.Hot}
		if err := e.overrides.ReconcileAfterWrite(ctx, k.Ref, k.SyncCode, flags); err != nil {
			return int(n), err
		}
	}

	metrics.ListingsDeactivated.Add(float64(n))
	zerolog.Ctx(ctx).Info().Int64("count", n).Msg("listings marked inactive")
	return int(n), nil
}

func runDetails(opts Options, stats models.Statistics) string {
	data, err := json.Marshal(map[string]any{
		"options": opts,
		"stats":   stats,
	})
	if err != nil {
		return "{}"
	}
	return string(data)
}
