package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"loancrm_backend/internal/applications/repository"
	"loancrm_backend/internal/composer"
	"loancrm_backend/internal/config"
	"loancrm_backend/internal/crmsync"
	"loancrm_backend/internal/enrichment"
	"loancrm_backend/internal/events"
	"loancrm_backend/internal/followup"
	"loancrm_backend/internal/notification"
	"loancrm_backend/internal/scheduler"
	"loancrm_backend/platform/ai/gemini"
	"loancrm_backend/platform/db"
	"loancrm_backend/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting worker", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)
	store := repository.New(pool)
	clock := repository.SystemClock{}

	var scoreGen enrichment.Generator
	var composeGen composer.Generator
	if client, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:            cfg.GeminiAPIKey,
		Model:             cfg.GeminiModel,
		RequestsPerMinute: cfg.GeminiRPM,
	}); err != nil {
		log.Warn("generative client unavailable, using deterministic fallbacks", "error", err)
	} else {
		scoreGen, composeGen = client, client
	}

	queueClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize queue client", "error", err)
		panic("failed to initialize queue client: " + err.Error())
	}
	defer func() { _ = queueClient.Close() }()

	orchestrator := followup.NewOrchestrator(
		store,
		enrichment.NewService(scoreGen, log),
		composer.New(composeGen, log),
		scheduler.NewQueueDispatcher(queueClient, log),
		eventBus,
		clock,
		log,
		cfg.SenderName,
	)

	if cfg.EmailEnabled {
		alertSender := notification.NewSMTPSender(
			cfg.SMTPHost, cfg.SMTPPort,
			cfg.SMTPUsername, cfg.SMTPPassword,
			cfg.EmailFromAddress, cfg.EmailFromName,
		)
		notification.NewModule(eventBus, alertSender, log, cfg.AlertFallbackTo, cfg.PortalURL)
	} else {
		log.Warn("SMTP not configured; hot lead alerts disabled")
	}

	var webhookSender crmsync.Sender
	if cfg.CRMWebhookURL != "" {
		webhookSender = crmsync.NewWebhookClient(cfg.CRMWebhookURL, cfg.CRMWebhookToken)
	} else {
		log.Warn("CRM webhook not configured; dispatch tasks will be dropped")
	}

	dueCheck := scheduler.NewDueCheck(store, queueClient, log, cfg.FollowUpCheckInterval)
	go dueCheck.Run(ctx)

	abandonmentSweep := scheduler.NewAbandonmentSweep(store, queueClient, eventBus, clock, log, cfg.AbandonmentSweepInterval)
	go abandonmentSweep.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, orchestrator, webhookSender, log)
	if err != nil {
		log.Error("failed to initialize worker", "error", err)
		panic("failed to initialize worker: " + err.Error())
	}

	worker.Run(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt < attempts {
			delay := baseDelay * time.Duration(attempt)
			log.Warn("retrying", "name", name, "attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, attempts, lastErr)
}
