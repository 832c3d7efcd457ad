package main

import (
	"context"
	"errors"
	"flag"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"

	"propsync/config"
	"propsync/httputil"
	"propsync/logging"
	"propsync/models"
	"propsync/scheduler"
	"propsync/server"
	"propsync/services"
	"propsync/source"
	"propsync/storage"
	"propsync/workers"
)

var (
	syncNow   = flag.Bool("sync", false, "Run a sync once and exit")
	sourceID  = flag.String("source", "", "Limit -sync to a single source")
	inputFile = flag.String("file", "", "Sync a saved API payload for -source instead of fetching")
	limit     = flag.Int("limit", 0, "Process at most this many listings (0 = all)")
	noHTTP    = flag.Bool("no-http", false, "Do not start the ops HTTP server in daemon mode")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logFile, err := logging.Setup(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		log.Warn().Err(err).Msg("could not set up file logging")
	}
	defer logFile.Close()

	log.Info().Int("sources", len(cfg.Sources)).Msg("starting propsync")
	for _, id := range cfg.SourceIDs() {
		log.Info().Str("source", id).Str("endpoint", cfg.Sources[id].Endpoint).Msg("source configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer store.Close()
	log.Info().Str("driver", cfg.DB.Driver).Str("dsn", maskDSN(cfg.DB.DSN)).Msg("database ready")

	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open image storage")
	}

	clients := httputil.NewClients(0, cfg.Images.Timeout)
	media := workers.NewMediaWorker(
		workers.NewMediaFetcher(clients.Images, cfg.Images.Timeout, cfg.Images.RPS),
		workers.NewTranscoder(cfg.Images.MaxDimension, cfg.Images.Quality),
	)

	executions := services.NewExecutionLog(store, cfg.Sync.RunTimeout, cfg.Sync.StartGrace)
	images := services.NewImageSync(store, blobs, media, cfg.Images.Concurrency)
	engine := services.NewEngine(store, images, executions)
	orchestrator := source.NewOrchestrator(cfg, engine, clients.API)

	if n, err := executions.HealOrphans(ctx); err != nil {
		log.Warn().Err(err).Msg("orphan healing failed")
	} else if n > 0 {
		log.Warn().Int("count", n).Msg("closed runs left open by a previous process")
	}

	if *syncNow || *inputFile != "" {
		if err := runOnce(ctx, orchestrator); err != nil {
			log.Fatal().Err(err).Msg("sync failed")
		}
		log.Info().Msg("sync complete")
		return
	}

	sched := scheduler.New(cfg, orchestrator, store, executions)
	if err := sched.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}

	if !*noHTTP && cfg.HTTPAddr != "" {
		srv := server.New(store, engine, orchestrator.SourceIDs)
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.HTTPAddr); err != nil {
				log.Error().Err(err).Msg("ops server stopped")
			}
		}()
	}

	log.Info().Msg("daemon running, press Ctrl+C to stop")
	<-ctx.Done()

	log.Info().Msg("shutting down")
	sched.Stop()
}

func runOnce(ctx context.Context, orchestrator *source.Orchestrator) error {
	var (
		stats models.Statistics
		err   error
	)
	switch {
	case *inputFile != "":
		if *sourceID == "" {
			return errors.New("-file requires -source")
		}
		stats, err = orchestrator.RunFile(ctx, *sourceID, *inputFile)
	case *sourceID != "":
		stats, err = orchestrator.RunSource(ctx, *sourceID, *limit)
	default:
		return orchestrator.RunAll(ctx)
	}
	if err != nil {
		return err
	}

	log.Info().
		Int("processed", stats.Processed).
		Int("new", stats.New).
		Int("updated", stats.Updated).
		Int("unchanged", stats.Unchanged).
		Int("errors", stats.Errors).
		Msg("run summary")
	return nil
}

func openBlobs(ctx context.Context, cfg *config.Config) (storage.Blobs, error) {
	if cfg.S3.Bucket == "" {
		fs, err := storage.NewFSBlobs(cfg.Images.Dir)
		if err != nil {
			return nil, err
		}
		return fs, nil
	}
	log.Info().Str("bucket", cfg.S3.Bucket).Str("endpoint", cfg.S3.Endpoint).Msg("storing images in s3")
	s3, err := storage.NewS3Blobs(ctx, storage.S3Config{
		Bucket:          cfg.S3.Bucket,
		Region:          cfg.S3.Region,
		Endpoint:        cfg.S3.Endpoint,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		Prefix:          cfg.S3.Prefix,
	})
	if err != nil {
		return nil, err
	}
	return s3, nil
}

// maskDSN hides the password in URL-style and mysql-style DSNs.
func maskDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	if at < 0 {
		return dsn
	}
	start := 0
	if i := strings.Index(dsn, "://"); i >= 0 && i < at {
		start = i + 3
	}
	colon := strings.Index(dsn[start:at], ":")
	if colon < 0 {
		return dsn
	}
	return dsn[:start+colon+1] + "****" + dsn[at:]
}
