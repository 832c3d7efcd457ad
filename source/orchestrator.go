package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"propsync/config"
	"propsync/models"
	"propsync/services"
)

type Orchestrator struct {
	cfg     *config.Config
	engine  *services.Engine
	clients map[string]*APIClient
	paused  atomic.Bool
}

func NewOrchestrator(cfg *config.Config, engine *services.Engine, client *http.Client) *Orchestrator {
	clients := make(map[string]*APIClient)
	for id, src := range cfg.Sources {
		clients[id] = NewAPIClient(src, client)
	}
	return &Orchestrator{
		cfg:     cfg,
		engine:  engine,
		clients: clients,
	}
}

// RunAll syncs every enabled source in turn. A failing source does not
// stop the others; their errors are joined.
func (o *Orchestrator) RunAll(ctx context.Context) error {
	if o.paused.Load() {
		log.Info().Msg("sync is paused, skipping run")
		return nil
	}

	var errs []error
	for _, id := range o.cfg.SourceIDs() {
		if _, err := o.RunSource(ctx, id, 0); err != nil {
			log.Error().Err(err).Str("source", id).Msg("source run failed")
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// RunSource fetches one source and reconciles the payload. limit, when
// positive, overrides the configured limit.
func (o *Orchestrator) RunSource(ctx context.Context, id string, limit int) (models.Statistics, error) {
	src, ok := o.cfg.Sources[id]
	if !ok {
		return models.Statistics{}, fmt.Errorf("unknown source: %s", id)
	}
	client, ok := o.clients[id]
	if !ok {
		return models.Statistics{}, fmt.Errorf("no client for source: %s", id)
	}

	log.Info().Str("source", id).Str("endpoint", src.Endpoint).Msg("fetching listings")

	payload, err := client.Fetch(ctx)
	if err != nil {
		return o.recordFailure(ctx, id, fmt.Errorf("fetch: %w", err))
	}
	listings, err := ExtractPropertyData(payload)
	if err != nil {
		return o.recordFailure(ctx, id, fmt.Errorf("extract: %w", err))
	}
	log.Info().Str("source", id).Int("listings", len(listings)).Msg("payload extracted")

	opts := OptionsFor(src, o.cfg.Sync.BatchSize)
	if limit > 0 {
		opts.Limit = limit
	}
	return o.engine.ProcessBatch(ctx, listings, opts)
}

// RunFile reconciles a payload stored on disk as if source id had returned
// it. An unknown id uses the default knobs.
func (o *Orchestrator) RunFile(ctx context.Context, id, path string) (models.Statistics, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return models.Statistics{}, fmt.Errorf("read payload: %w", err)
	}
	listings, err := ExtractPropertyData(payload)
	if err != nil {
		return models.Statistics{}, fmt.Errorf("extract %s: %w", path, err)
	}

	opts := services.DefaultOptions()
	opts.BatchSize = o.cfg.Sync.BatchSize
	if src, ok := o.cfg.Sources[id]; ok {
		opts = OptionsFor(src, o.cfg.Sync.BatchSize)
	}
	opts.Source = id
	return o.engine.ProcessBatch(ctx, listings, opts)
}

// recordFailure opens and fails a run for a source that never produced a
// batch. A concurrent run keeps its record and only the cause is returned.
func (o *Orchestrator) recordFailure(ctx context.Context, id string, cause error) (models.Statistics, error) {
	executions := o.engine.Executions()
	rec, err := executions.Begin(ctx, id)
	if err != nil {
		log.Warn().Err(err).Str("source", id).Msg("failed to open execution record")
		return models.Statistics{}, cause
	}

	stats := models.Statistics{StartedAt: rec.StartedAt}
	end := time.Now().UTC()
	stats.EndedAt = &end
	if err := executions.Fail(ctx, rec, stats, "", cause); err != nil {
		log.Warn().Err(err).Str("source", id).Msg("failed to close execution record")
	}
	return stats, cause
}

// OptionsFor maps a source's YAML knobs onto engine options.
func OptionsFor(src *config.SourceConfig, defaultBatch int) services.Options {
	opts := services.DefaultOptions()
	opts.Source = src.ID
	if defaultBatch > 0 {
		opts.BatchSize = defaultBatch
	}
	if src.BatchSize > 0 {
		opts.BatchSize = src.BatchSize
	}
	if src.DownloadImages != nil {
		opts.DownloadImages = *src.DownloadImages
	}
	if src.TrackChanges != nil {
		opts.TrackChanges = *src.TrackChanges
	}
	opts.MarkInactive = src.MarkInactive
	opts.Limit = src.Limit
	return opts
}

func (o *Orchestrator) HandleCommand(ctx context.Context, cmd *models.Command) error {
	params, err := cmd.DecodeParams()
	if err != nil {
		return fmt.Errorf("decode params: %w", err)
	}

	switch cmd.Command {
	case models.CmdSyncNow:
		return o.RunAll(ctx)
	case models.CmdSyncSource:
		if params.Source == "" {
			return o.RunAll(ctx)
		}
		if o.paused.Load() {
			log.Info().Str("source", params.Source).Msg("sync is paused, skipping source run")
			return nil
		}
		_, err := o.RunSource(ctx, params.Source, params.Limit)
		return err
	case models.CmdPause:
		o.paused.Store(true)
		log.Info().Msg("sync paused")
	case models.CmdResume:
		o.paused.Store(false)
		log.Info().Msg("sync resumed")
	default:
		return fmt.Errorf("unknown command: %s", cmd.Command)
	}
	return nil
}

func (o *Orchestrator) IsPaused() bool {
	return o.paused.Load()
}

func (o *Orchestrator) SourceIDs() []string {
	return o.cfg.SourceIDs()
}

