package main

import (
	"context"
	"flag"

	"loancrm_backend/internal/applications/repository"
	"loancrm_backend/internal/config"
	"loancrm_backend/internal/enrichment"
	"loancrm_backend/platform/ai/gemini"
	"loancrm_backend/platform/db"
	"loancrm_backend/platform/logger"
)

func main() {
	limit := flag.Int("limit", 0, "maximum applications to rescore (0 = all)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting lead rescore", "limit", *limit)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	var generator enrichment.Generator
	if client, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:            cfg.GeminiAPIKey,
		Model:             cfg.GeminiModel,
		RequestsPerMinute: cfg.GeminiRPM,
	}); err != nil {
		log.Warn("generative client unavailable, rescoring with deterministic rules", "error", err)
	} else {
		generator = client
	}

	repo := repository.New(pool)
	scorer := enrichment.NewBatchScorer(
		enrichment.NewService(generator, log),
		repo,
		repo,
		repository.SystemClock{},
		log,
	)

	scored, err := scorer.RescoreOpen(ctx, *limit)
	if err != nil {
		log.Error("rescore failed", "error", err, "scored", scored)
		panic("rescore failed: " + err.Error())
	}

	log.Info("rescore complete", "scored", scored)
}
