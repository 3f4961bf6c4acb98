package connectors

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs connector syncs on each connector's cron schedule.
type Scheduler struct {
	registry *Registry
	cron     *cron.Cron
	mu       sync.Mutex
	entries  map[string]cron.EntryID
	running  bool
	logger   *slog.Logger
}

func NewScheduler(registry *Registry) *Scheduler {
	return &Scheduler{
		registry: registry,
		cron:     cron.New(),
		entries:  make(map[string]cron.EntryID),
		logger:   slog.Default().With("component", "connectors.scheduler"),
	}
}

// Start schedules every connector that has a schedule and starts the cron
// loop. The scheduler stops when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, c := range s.registry.List("", "") {
		if err := s.Schedule(ctx, c); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.cron.Start()
	s.running = true
	n := len(s.entries)
	s.mu.Unlock()

	s.logger.Info("connector scheduler started", "scheduled", n)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Schedule adds or replaces the job of one connector. Connectors without a
// schedule are removed from the scheduler.
func (s *Scheduler) Schedule(ctx context.Context, c *Connector) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[c.ID]; ok {
		s.cron.Remove(id)
		delete(s.entries, c.ID)
	}
	if c.Schedule == "" {
		return nil
	}

	connectorID := c.ID
	entry, err := s.cron.AddFunc(c.Schedule, func() {
		if _, err := s.registry.Sync(ctx, connectorID, "schedule"); err != nil {
			s.logger.Error("scheduled sync failed", "connector_id", connectorID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule connector %s: %w", c.ID, err)
	}
	s.entries[c.ID] = entry
	return nil
}

// Stop stops the cron loop and waits for running syncs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("connector scheduler stopped")
	}
}

// NextRun returns when a connector is next synced.
func (s *Scheduler) NextRun(connectorID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.entries[connectorID]
	if !ok {
		return time.Time{}, false
	}
	next := s.cron.Entry(id).Next
	return next, !next.IsZero()
}
