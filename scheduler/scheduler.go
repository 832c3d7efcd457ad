package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"propsync/config"
	"propsync/models"
	"propsync/services"
	"propsync/storage"
)

const (
	commandPollInterval = 2 * time.Second
	housekeepInterval   = time.Minute
)

// Runner is the part of the orchestrator the scheduler drives.
type Runner interface {
	RunAll(ctx context.Context) error
	HandleCommand(ctx context.Context, cmd *models.Command) error
}

type Scheduler struct {
	cfg        *config.Config
	runner     Runner
	store      *storage.Store
	executions *services.ExecutionLog
	cron       *cron.Cron
	ticker     *time.Ticker
	stopCh     chan struct{}
}

func New(cfg *config.Config, runner Runner, store *storage.Store, executions *services.ExecutionLog) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		runner:     runner,
		store:      store,
		executions: executions,
		cron:       cron.New(),
		stopCh:     make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	// Always start background runners
	go s.pollCommands(ctx)
	go s.housekeep(ctx)

	if s.cfg.Scheduler.Cron != "" {
		log.Info().Str("cron", s.cfg.Scheduler.Cron).Msg("starting scheduler")
		_, err := s.cron.AddFunc(s.cfg.Scheduler.Cron, func() {
			s.runAll(ctx)
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
	} else if s.cfg.Scheduler.Interval > 0 {
		log.Info().Dur("interval", s.cfg.Scheduler.Interval).Msg("starting scheduler")
		s.ticker = time.NewTicker(s.cfg.Scheduler.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					s.runAll(ctx)
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	} else {
		log.Info().Msg("no schedule configured, daemon will only respond to commands")
	}

	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
}

func (s *Scheduler) runAll(ctx context.Context) {
	if err := s.runner.RunAll(ctx); err != nil {
		log.Error().Err(err).Msg("scheduled run error")
	}
}

func (s *Scheduler) pollCommands(ctx context.Context) {
	ticker := time.NewTicker(commandPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.ProcessCommands(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// ProcessCommands runs every pending command once and marks it processed,
// whether or not it succeeded.
func (s *Scheduler) ProcessCommands(ctx context.Context) {
	cmds, err := s.store.GetPendingCommands(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("error getting commands")
		return
	}

	for _, cmd := range cmds {
		log.Info().Str("command", string(cmd.Command)).Int64("id", cmd.ID).Msg("processing command")
		if err := s.runner.HandleCommand(ctx, &cmd); err != nil {
			log.Error().Err(err).Str("command", string(cmd.Command)).Msg("command error")
		}
		if err := s.store.MarkCommandProcessed(ctx, cmd.ID); err != nil {
			log.Warn().Err(err).Int64("id", cmd.ID).Msg("error marking command processed")
		}
	}
}

func (s *Scheduler) housekeep(ctx context.Context) {
	ticker := time.NewTicker(housekeepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := s.executions.HealOrphans(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("orphan healing failed")
				continue
			}
			if n > 0 {
				log.Warn().Int("count", n).Msg("closed orphaned runs")
			}
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) TriggerNow(ctx context.Context) error {
	return s.runner.RunAll(ctx)
}
