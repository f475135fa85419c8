package scheduler

import (
	"context"
	"time"

	"loancrm_backend/internal/applications/repository"
	"loancrm_backend/internal/followup"
	"loancrm_backend/platform/logger"
)

const (
	defaultDueCheckInterval = 15 * time.Minute
	dueCheckBatchSize       = 500
)

// DueCheck periodically enqueues a processing run for every application with
// an active sequence. The orchestrator decides per application whether a
// stage is actually due; enqueueing the same application twice is safe.
type DueCheck struct {
	lister   repository.SweepLister
	enqueuer ProcessEnqueuer
	log      *logger.Logger
	interval time.Duration
}

func NewDueCheck(lister repository.SweepLister, enqueuer ProcessEnqueuer, log *logger.Logger, interval time.Duration) *DueCheck {
	if interval <= 0 {
		interval = defaultDueCheckInterval
	}

	return &DueCheck{
		lister:   lister,
		enqueuer: enqueuer,
		log:      log,
		interval: interval,
	}
}

func (c *DueCheck) Run(ctx context.Context) {
	if c == nil || c.lister == nil {
		return
	}

	c.sweep(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

func (c *DueCheck) sweep(ctx context.Context) {
	apps, err := c.lister.ListWithActiveSequences(ctx, dueCheckBatchSize)
	if err != nil {
		c.log.Warn("due check listing failed", "error", err)
		return
	}

	enqueued := 0
	for _, app := range apps {
		payload := ProcessApplicationPayload{
			ApplicationID: app.ID.String(),
			Trigger:       string(followup.TriggerPeriodicCheck),
		}
		if err := c.enqueuer.EnqueueProcessApplication(ctx, payload); err != nil {
			c.log.Warn("due check enqueue failed", "application_id", payload.ApplicationID, "error", err)
			continue
		}
		enqueued++
	}

	if enqueued > 0 {
		c.log.Info("due check enqueued processing runs", "count", enqueued)
	}
}
