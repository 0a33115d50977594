// Package retention periodically trims each owner's stored diagnoses to
// the newest few. Submission already prunes inside its save transaction;
// the sweeper catches rows left behind by older releases or manual imports.
package retention

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/digipath/maturity-diagnosis/internal/monitoring"
)

// Store is the subset of the repository the sweeper needs.
type Store interface {
	OwnersOverLimit(ctx context.Context, limit int) ([]string, error)
	IDsBeyond(ctx context.Context, ownerID string, keep int) ([]int64, error)
	DeleteMany(ctx context.Context, ids []int64) (int64, error)
}

// Recorder receives sweep counts.
type Recorder interface {
	RecordRetentionSweep(removed int64)
}

const sweepTimeout = 2 * time.Minute

// Sweeper runs Sweep on a cron schedule.
type Sweeper struct {
	store   Store
	keep    int
	logger  *monitoring.Logger
	metrics Recorder

	cron    *cron.Cron
	mu      sync.Mutex
	running bool
}

// NewSweeper validates the schedule and registers the sweep job. It does
// not start the scheduler.
func NewSweeper(store Store, schedule string, keep int, logger *monitoring.Logger, metrics Recorder) (*Sweeper, error) {
	if keep < 1 {
		return nil, fmt.Errorf("retention keep must be at least 1, got %d", keep)
	}

	s := &Sweeper{
		store:   store,
		keep:    keep,
		logger:  logger,
		metrics: metrics,
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins scheduling sweeps.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
	s.logger.SystemLogger("retention_started", fmt.Sprintf("keep=%d", s.keep))
}

// Stop halts the scheduler and waits for a running sweep, or for ctx.
func (s *Sweeper) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	start := time.Now()
	removed, err := s.Sweep(ctx)
	s.logger.RetentionLogger(removed, err, time.Since(start))
}

// Sweep deletes every diagnosis beyond the newest keep of each owner and
// returns how many were removed. Owners that fail are skipped and their
// errors joined; the others are still swept.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	owners, err := s.store.OwnersOverLimit(ctx, s.keep)
	if err != nil {
		return 0, fmt.Errorf("list owners: %w", err)
	}

	var (
		removed int64
		errs    []error
	)
	for _, owner := range owners {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		ids, err := s.store.IDsBeyond(ctx, owner, s.keep)
		if err != nil {
			errs = append(errs, fmt.Errorf("owner %s: %w", owner, err))
			continue
		}
		n, err := s.store.DeleteMany(ctx, ids)
		if err != nil {
			errs = append(errs, fmt.Errorf("owner %s: %w", owner, err))
			continue
		}
		removed += n
	}

	if s.metrics != nil {
		s.metrics.RecordRetentionSweep(removed)
	}
	return removed, errors.Join(errs...)
}
