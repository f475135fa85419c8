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
	followuphandler "loancrm_backend/internal/followup/handler"
	apphttp "loancrm_backend/internal/http"
	"loancrm_backend/internal/http/router"
	"loancrm_backend/internal/notification"
	"loancrm_backend/internal/scheduler"
	"loancrm_backend/migrations"
	"loancrm_backend/platform/ai/gemini"
	"loancrm_backend/platform/db"
	"loancrm_backend/platform/logger"
	"loancrm_backend/platform/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, migrations.FS, ".")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

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
	log.Info("database connection established")

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	generator := initGenerator(ctx, cfg, log)

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	store := repository.New(pool)

	// A nil *gemini.Client must stay a nil interface so the fallback paths
	// engage.
	var scoreGen enrichment.Generator
	var composeGen composer.Generator
	if generator != nil {
		scoreGen, composeGen = generator, generator
	}
	scorer := enrichment.NewService(scoreGen, log)
	msgComposer := composer.New(composeGen, log)

	dispatcher, closeDispatcher := initDispatcher(cfg, log)
	if closeDispatcher != nil {
		defer closeDispatcher()
	}

	orchestrator := followup.NewOrchestrator(
		store,
		scorer,
		msgComposer,
		dispatcher,
		eventBus,
		repository.SystemClock{},
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
		log.Info("hot lead alerts enabled", "fallback_to", cfg.AlertFallbackTo)
	} else {
		log.Warn("SMTP not configured; hot lead alerts disabled")
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			followuphandler.NewModule(orchestrator, val),
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// initGenerator builds the Gemini client, or returns nil so scoring and
// composition run fallback-only.
func initGenerator(ctx context.Context, cfg *config.Config, log *logger.Logger) *gemini.Client {
	client, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:            cfg.GeminiAPIKey,
		Model:             cfg.GeminiModel,
		RequestsPerMinute: cfg.GeminiRPM,
	})
	if err != nil {
		log.Warn("generative client unavailable, using deterministic fallbacks", "error", err)
		return nil
	}
	log.Info("generative client initialized", "model", cfg.GeminiModel)
	return client
}

// initDispatcher picks the CRM dispatch strategy: queue-backed when redis is
// configured, detached goroutine when only the webhook is, no-op otherwise.
func initDispatcher(cfg *config.Config, log *logger.Logger) (crmsync.Dispatcher, func()) {
	if cfg.RedisURL != "" {
		client, err := scheduler.NewClient(cfg)
		if err != nil {
			log.Error("failed to initialize queue client", "error", err)
			panic("failed to initialize queue client: " + err.Error())
		}
		log.Info("crm dispatch via task queue", "queue", cfg.AsynqQueue)
		return scheduler.NewQueueDispatcher(client, log), func() { _ = client.Close() }
	}

	if cfg.CRMWebhookURL != "" {
		log.Info("crm dispatch via detached webhook calls")
		sender := crmsync.NewWebhookClient(cfg.CRMWebhookURL, cfg.CRMWebhookToken)
		return crmsync.NewAsyncDispatcher(sender, log), nil
	}

	log.Warn("CRM webhook not configured; dispatch payloads will be dropped")
	return crmsync.NewNoopDispatcher(log), nil
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
