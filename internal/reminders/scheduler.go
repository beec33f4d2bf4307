// Package reminders periodically surfaces agreements that have been stuck
// waiting on a signature.
package reminders

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/sevarahealth/sevara/internal/models"
)

// ReminderStore defines the interface for reminder data access.
type ReminderStore interface {
	GetStaleAgreements(ctx context.Context, cutoff time.Time) ([]*models.OrgAgreement, error)
}

// Scheduler runs a daily sweep for agreements pending a signature longer
// than the configured age and logs each one for the compliance team.
type Scheduler struct {
	store    ReminderStore
	staleAge time.Duration
	cron     *cron.Cron
	logger   zerolog.Logger
	mu       sync.Mutex
	running  bool
}

// NewScheduler creates a new reminder scheduler.
func NewScheduler(store ReminderStore, staleAge time.Duration, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		staleAge: staleAge,
		cron:     cron.New(),
		logger:   logger.With().Str("component", "reminders").Logger(),
	}
}

// Start begins the daily reminder sweep at 8:00 AM UTC.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("reminder scheduler already running")
	}

	_, err := s.cron.AddFunc("0 8 * * *", s.runSweep)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Dur("stale_age", s.staleAge).
		Msg("reminder scheduler started (daily at 08:00 UTC)")

	return nil
}

// Stop stops the reminder scheduler gracefully.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}

	s.running = false
	s.logger.Info().Msg("stopping reminder scheduler")
	return s.cron.Stop()
}

// runSweep reports every agreement pending a signature past the stale age.
func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-s.staleAge)
	stale, err := s.store.GetStaleAgreements(ctx, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("stale agreement sweep failed")
		return
	}

	for _, entry := range stale {
		s.logger.Warn().
			Str("org_id", entry.Organization.ID.String()).
			Str("org_name", entry.Organization.Name).
			Str("agreement_id", entry.Agreement.ID.String()).
			Str("status", string(entry.Agreement.Status)).
			Time("pending_since", entry.Agreement.UpdatedAt).
			Msg("agreement pending signature past reminder threshold")
	}

	s.logger.Info().
		Int("stale_count", len(stale)).
		Msg("stale agreement sweep completed")
}

// RunNow triggers an immediate sweep (useful for testing).
func (s *Scheduler) RunNow() {
	s.runSweep()
}
