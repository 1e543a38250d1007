package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	HourlyPruneSpec       = "0 * * * *"
	Timezone              = "UTC"
	TimezoneOffsetSeconds = 0
	pruneUsageTimeout     = time.Minute
)

type Pruner interface {
	PruneUsage(ctx context.Context, before time.Time) (int64, error)
}

// Scheduler drops usage events older than the retention window once an hour.
type Scheduler struct {
	ctx       context.Context
	cron      *cron.Cron
	pruner    Pruner
	retention time.Duration
	now       func() time.Time
	log       *slog.Logger
}

func New(ctx context.Context, pruner Pruner, retention time.Duration, log *slog.Logger) *Scheduler {
	c := cron.New(cron.WithLocation(time.FixedZone(Timezone, TimezoneOffsetSeconds)))

	return &Scheduler{
		ctx:       ctx,
		cron:      c,
		pruner:    pruner,
		retention: retention,
		now:       time.Now,
		log:       log,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(HourlyPruneSpec, s.pruneUsage); err != nil {
		return err
	}

	s.cron.Start()

	return nil
}

// Stop waits for a running prune to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) pruneUsage() {
	ctx, cancel := context.WithTimeout(s.ctx, pruneUsageTimeout)
	defer cancel()

	select {
	case <-ctx.Done():
		s.log.InfoContext(ctx, "Scheduler context is done",
			"error", ctx.Err())
		return
	default:
	}

	before := s.now().UTC().Add(-s.retention)

	pruned, err := s.pruner.PruneUsage(ctx, before)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to prune usage events",
			"error", err,
			"before", before)
		return
	}

	s.log.InfoContext(ctx, "Pruned usage events",
		"pruned", pruned,
		"before", before)
}
