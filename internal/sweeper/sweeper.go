package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"gatekeeper/internal/store"
)

// Sweeper periodically purges request records older than the retention
// horizon. The same purge is also reachable on demand through the /cleanup
// command and runs once more at restore time inside the store.
type Sweeper struct {
	cron          *cron.Cron
	store         *store.Store
	retentionDays int
	logger        *zap.Logger
}

// New schedules a sweep using a cron spec with seconds precision, in UTC.
func New(st *store.Store, schedule string, retentionDays int, logger *zap.Logger) (*Sweeper, error) {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithSeconds(),
	)

	s := &Sweeper{
		cron:          c,
		store:         st,
		retentionDays: retentionDays,
		logger:        logger,
	}

	if _, err := c.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("failed to register retention sweep job: %w", err)
	}

	return s, nil
}

// Start launches the scheduler and stops it when ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	s.cron.Start()
	s.logger.Info("Retention sweeper started", zap.Int("retention_days", s.retentionDays))

	go func() {
		<-ctx.Done()
		s.cron.Stop()
		s.logger.Info("Retention sweeper stopped")
	}()
}

func (s *Sweeper) run() {
	removed := s.store.Sweep(time.Now(), s.retentionDays)
	s.logger.Info("Retention sweep finished", zap.Int("removed", removed))
}
