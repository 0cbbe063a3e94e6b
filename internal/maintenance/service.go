// Package maintenance provides scheduled housekeeping for dailyscore.
package maintenance

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/thebtf/dailyscore/internal/config"
	"github.com/thebtf/dailyscore/internal/db"
)

// minInterval keeps a misconfigured interval from spinning.
const minInterval = time.Hour

// GuestResetter drops a guest's scoring state and tasks.
type GuestResetter interface {
	ResetUser(ctx context.Context, userID string) error
}

// Optimizer is implemented by stores that can refresh planner statistics.
type Optimizer interface {
	Optimize(ctx context.Context) error
}

// Stats summarizes past maintenance runs.
type Stats struct {
	LastRun           time.Time `json:"last_run"`
	LastDuration      string    `json:"last_duration"`
	TotalGuestsPruned int64     `json:"total_guests_pruned"`
	TotalOptimizes    int64     `json:"total_optimizes"`
	Running           bool      `json:"running"`
}

// Service prunes inactive guest profiles on a fixed interval. Weekly
// settlement is not scheduled here; it happens lazily per user.
type Service struct {
	log             zerolog.Logger
	lastRunTime     time.Time
	guests          db.GuestStore
	scores          GuestResetter
	config          *config.Config
	now             func() time.Time
	stopCh          chan struct{}
	doneCh          chan struct{}
	initialDelay    time.Duration
	lastRunDuration time.Duration
	totalPruned     int64
	totalOptimizes  int64
	mu              sync.Mutex
	running         bool
	stopOnce        sync.Once
}

// NewService creates a maintenance service. scores may be nil when guest
// scoring state lives elsewhere.
func NewService(guests db.GuestStore, scores GuestResetter, cfg *config.Config, log zerolog.Logger) *Service {
	return &Service{
		guests:       guests,
		scores:       scores,
		config:       cfg,
		now:          time.Now,
		initialDelay: 5 * time.Minute,
		log:          log.With().Str("component", "maintenance").Logger(),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Start runs the maintenance loop until ctx is done or Stop is called.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(s.doneCh)
	}()

	interval := max(s.config.MaintenanceInterval(), minInterval)

	s.log.Info().
		Dur("interval", interval).
		Int("guest_retention_days", s.config.GuestRetentionDays).
		Msg("Starting maintenance scheduler")

	// Let the service settle before the first run.
	select {
	case <-ctx.Done():
		return
	case <-s.stopCh:
		return
	case <-time.After(s.initialDelay):
	}
	s.RunOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Maintenance shutting down due to context cancellation")
			return
		case <-s.stopCh:
			s.log.Info().Msg("Maintenance shutting down due to stop signal")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// Stop signals the maintenance loop to exit.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Wait blocks until Start has returned.
func (s *Service) Wait() {
	<-s.doneCh
}

// RunOnce executes every maintenance task once and returns the number of
// guests pruned.
func (s *Service) RunOnce(ctx context.Context) int64 {
	start := s.now()
	s.log.Info().Msg("Starting maintenance run")

	var pruned int64
	if s.config.GuestRetentionDays > 0 {
		n, err := s.pruneGuests(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("Failed to prune inactive guests")
		}
		pruned = n
	}

	optimized := false
	if opt, ok := s.guests.(Optimizer); ok {
		if err := opt.Optimize(ctx); err != nil {
			s.log.Error().Err(err).Msg("Failed to optimize database")
		} else {
			optimized = true
		}
	}

	s.mu.Lock()
	s.lastRunTime = s.now()
	s.lastRunDuration = s.lastRunTime.Sub(start)
	s.totalPruned += pruned
	if optimized {
		s.totalOptimizes++
	}
	s.mu.Unlock()

	s.log.Info().
		Dur("duration", s.now().Sub(start)).
		Int64("guests_pruned", pruned).
		Msg("Maintenance run completed")
	return pruned
}

// pruneGuests deletes guests inactive longer than the retention period,
// together with their scoring state.
func (s *Service) pruneGuests(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.config.GuestRetention())
	ids, err := s.guests.StaleGuests(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	var pruned int64
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return pruned, err
		}
		if s.scores != nil {
			if err := s.scores.ResetUser(ctx, id); err != nil {
				s.log.Warn().Err(err).Str("guest", id).Msg("Failed to drop guest scores")
				continue
			}
		}
		if err := s.guests.DeleteGuest(ctx, id); err != nil {
			s.log.Warn().Err(err).Str("guest", id).Msg("Failed to delete guest")
			continue
		}
		pruned++
	}
	return pruned, nil
}

// Stats returns maintenance statistics.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		LastRun:           s.lastRunTime,
		LastDuration:      s.lastRunDuration.String(),
		TotalGuestsPruned: s.totalPruned,
		TotalOptimizes:    s.totalOptimizes,
		Running:           s.running,
	}
}
