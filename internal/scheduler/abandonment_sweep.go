package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"loancrm_backend/internal/applications/repository"
	"loancrm_backend/internal/events"
	"loancrm_backend/internal/followup"
	"loancrm_backend/platform/logger"
)

const (
	defaultAbandonmentInterval = time.Hour
	abandonmentBatchSize       = 500
)

// AbandonmentSweep periodically classifies inactive applications and moves
// the abandoned ones onto their recovery sequence, then re-enters them
// through the orchestrator so recovery outreach starts immediately.
type AbandonmentSweep struct {
	store    sweepStore
	enqueuer ProcessEnqueuer
	bus      events.Bus
	clock    repository.Clock
	log      *logger.Logger
	interval time.Duration
}

type sweepStore interface {
	repository.SweepLister
	ResetSequence(ctx context.Context, id uuid.UUID, sequence string) error
}

func NewAbandonmentSweep(
	store sweepStore,
	enqueuer ProcessEnqueuer,
	bus events.Bus,
	clock repository.Clock,
	log *logger.Logger,
	interval time.Duration,
) *AbandonmentSweep {
	if interval <= 0 {
		interval = defaultAbandonmentInterval
	}

	return &AbandonmentSweep{
		store:    store,
		enqueuer: enqueuer,
		bus:      bus,
		clock:    clock,
		log:      log,
		interval: interval,
	}
}

func (s *AbandonmentSweep) Run(ctx context.Context) {
	if s == nil || s.store == nil {
		return
	}

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *AbandonmentSweep) sweep(ctx context.Context) {
	apps, err := s.store.ListAbandonmentCandidates(ctx, abandonmentBatchSize)
	if err != nil {
		s.log.Warn("abandonment sweep listing failed", "error", err)
		return
	}

	now := s.clock.Now()
	flagged := 0
	for _, app := range apps {
		detection := followup.DetectAbandonment(app, now)
		if !detection.IsAbandoned {
			continue
		}

		// Already on the recovery track: leave the advancer to it.
		if app.FollowUpSequence != nil && *app.FollowUpSequence == detection.RecoverySequence {
			continue
		}

		if err := s.store.ResetSequence(ctx, app.ID, detection.RecoverySequence); err != nil {
			s.log.DatabaseError("reset sequence", err)
			continue
		}

		s.bus.Publish(ctx, events.ApplicationAbandoned{
			BaseEvent:          events.NewBaseEvent(),
			ApplicationID:      app.ID,
			AbandonmentType:    detection.AbandonmentType,
			HoursSinceActivity: detection.HoursSinceActivity,
			RecoverySequence:   detection.RecoverySequence,
		})

		payload := ProcessApplicationPayload{
			ApplicationID: app.ID.String(),
			Trigger:       string(followup.TriggerAbandonmentRecovery),
		}
		if err := s.enqueuer.EnqueueProcessApplication(ctx, payload); err != nil {
			s.log.Warn("abandonment recovery enqueue failed", "application_id", payload.ApplicationID, "error", err)
			continue
		}
		flagged++
	}

	if flagged > 0 {
		s.log.Info("abandonment sweep flagged applications", "count", flagged)
	}
}
