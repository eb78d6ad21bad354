package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"mail-chain-analyzer/internal/metrics"
	"mail-chain-analyzer/internal/models"
	"mail-chain-analyzer/internal/repository"
)

// StatsSource computes per-provider record counts
type StatsSource interface {
	CountByESP(ctx context.Context, filter repository.Filter) ([]models.ESPCount, error)
}

// Scheduler periodically refreshes the stored-messages gauge. It never talks
// to the mailbox.
type Scheduler struct {
	cron      *cron.Cron
	entryID   cron.EntryID
	schedule  string
	source    StatsSource
	metrics   *metrics.Metrics
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
	mu        sync.RWMutex

	errMu   sync.Mutex
	lastErr error
}

// NewScheduler creates a new scheduler for the given cron spec (with seconds)
func NewScheduler(schedule string, source StatsSource, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		schedule: schedule,
		source:   source,
		metrics:  m,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	c := cron.New(cron.WithSeconds())
	entryID, err := c.AddFunc(s.schedule, s.refreshStats)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron = c
	s.entryID = entryID
	s.cron.Start()
	s.isRunning = true

	logrus.Infof("Stats scheduler started with schedule: %s", s.schedule)
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() error {
	s.mu.Lock()

	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	c, cancel := s.cron, s.cancel
	s.isRunning = false
	s.mu.Unlock()

	// Jobs read scheduler state, so wait without holding the lock.
	cancel()
	ctx := c.Stop()

	select {
	case <-ctx.Done():
		logrus.Info("Stats scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Stats scheduler stop timeout, forcing shutdown")
	}
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

func (s *Scheduler) refreshStats() {
	s.mu.RLock()
	if !s.isRunning {
		s.mu.RUnlock()
		return
	}
	ctx := s.ctx
	s.wg.Add(1)
	s.mu.RUnlock()
	defer s.wg.Done()

	if err := s.refresh(ctx); err != nil {
		logrus.Errorf("Failed to refresh stats: %v", err)
	}
}

func (s *Scheduler) refresh(ctx context.Context) error {
	counts, err := s.source.CountByESP(ctx, repository.Filter{})

	s.errMu.Lock()
	s.lastErr = err
	s.errMu.Unlock()

	if err != nil {
		return err
	}

	s.metrics.StoredMessages.Reset()
	for _, c := range counts {
		s.metrics.StoredMessages.WithLabelValues(c.ESP).Set(float64(c.Count))
	}

	logrus.WithField("providers", len(counts)).Debug("Stats refreshed")
	return nil
}

// RunOnce refreshes the stats immediately
func (s *Scheduler) RunOnce(ctx context.Context) error {
	s.mu.RLock()
	s.wg.Add(1)
	s.mu.RUnlock()
	defer s.wg.Done()

	return s.refresh(ctx)
}

// LastError returns the error from the most recent refresh, if any
func (s *Scheduler) LastError() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.lastErr
}

// GetNextRun returns the time of the next scheduled run
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// GetLastRun returns the time of the last run
func (s *Scheduler) GetLastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Prev
}

// Wait waits for in-flight refreshes to finish
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
