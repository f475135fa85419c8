package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"loancrm_backend/internal/crmsync"
	"loancrm_backend/internal/followup"
	"loancrm_backend/platform/apperr"
	"loancrm_backend/platform/logger"
)

// Processor runs one orchestrator pass. Satisfied by followup.Orchestrator.
type Processor interface {
	ProcessApplication(ctx context.Context, applicationID uuid.UUID, trigger followup.Trigger) (*followup.Outcome, error)
}

type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor Processor
	sender    crmsync.Sender
	log       *logger.Logger
}

func NewWorker(cfg QueueConfig, processor Processor, sender crmsync.Sender, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		mux:       mux,
		processor: processor,
		sender:    sender,
		log:       log,
	}

	mux.HandleFunc(TaskProcessApplication, w.handleProcessApplication)
	mux.HandleFunc(TaskCRMDispatch, w.handleCRMDispatch)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleProcessApplication(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseProcessApplicationPayload(task)
	if err != nil {
		return err
	}

	applicationID, err := uuid.Parse(payload.ApplicationID)
	if err != nil {
		return err
	}

	ctx = context.WithValue(ctx, logger.ApplicationIDKey, payload.ApplicationID)
	log := w.log.WithContext(ctx)

	_, err = w.processor.ProcessApplication(ctx, applicationID, followup.Trigger(payload.Trigger))
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			switch appErr.Kind {
			case apperr.KindNotFound, apperr.KindValidation, apperr.KindContract:
				// Retrying cannot fix these.
				log.Warn("processing task dropped",
					"trigger", payload.Trigger,
					"error", err,
				)
				return nil
			}
		}
		return err
	}
	return nil
}

func (w *Worker) handleCRMDispatch(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseCRMDispatchPayload(task)
	if err != nil {
		return err
	}

	ctx = context.WithValue(ctx, logger.ApplicationIDKey, payload.ApplicationID)

	if w.sender == nil {
		w.log.WithContext(ctx).Debug("crm webhook not configured, payload dropped",
			"trigger", payload.Trigger,
		)
		return nil
	}

	if err := w.sender.Send(ctx, payload); err != nil {
		// No retry: the next processing run resends the full state anyway.
		w.log.DispatchError(payload.Trigger, payload.ApplicationID, err)
	}
	return nil
}
