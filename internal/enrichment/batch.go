package enrichment

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"loancrm_backend/internal/applications/repository"
	"loancrm_backend/platform/logger"
)

// rescoreWindow caps how many applications are scored concurrently. Scoring
// is rate-limited upstream, so a small window keeps the limiter queue short.
const rescoreWindow = 5

// RescoreLister lists applications eligible for a batch rescore.
type RescoreLister interface {
	ListOpenForRescore(ctx context.Context, limit int) ([]repository.Application, error)
}

// BatchScorer re-scores open applications in fixed-size windows. Used by the
// lead-rescore command after scoring-rule changes.
type BatchScorer struct {
	service *Service
	lister  RescoreLister
	writer  repository.EnrichmentWriter
	clock   repository.Clock
	log     *logger.Logger
}

func NewBatchScorer(service *Service, lister RescoreLister, writer repository.EnrichmentWriter, clock repository.Clock, log *logger.Logger) *BatchScorer {
	return &BatchScorer{
		service: service,
		lister:  lister,
		writer:  writer,
		clock:   clock,
		log:     log,
	}
}

// RescoreOpen scores up to limit open applications and persists the results.
// Returns the number of applications scored; individual write failures are
// logged and skipped so one bad row never aborts the batch.
func (b *BatchScorer) RescoreOpen(ctx context.Context, limit int) (int, error) {
	apps, err := b.lister.ListOpenForRescore(ctx, limit)
	if err != nil {
		return 0, err
	}

	scored := 0
	for start := 0; start < len(apps); start += rescoreWindow {
		end := min(start+rescoreWindow, len(apps))

		group, groupCtx := errgroup.WithContext(ctx)
		for _, app := range apps[start:end] {
			group.Go(func() error {
				b.rescoreOne(groupCtx, app)
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return scored, err
		}
		scored += end - start
	}

	b.log.Info("batch rescore complete", "count", scored)
	return scored, nil
}

func (b *BatchScorer) rescoreOne(ctx context.Context, app repository.Application) {
	now := b.clock.Now()
	result := b.service.Score(ctx, app, now)

	err := b.writer.SaveEnrichment(ctx, app.ID, SaveParams(result, now))
	if err != nil {
		b.log.DatabaseError("save enrichment", err)
	}
}

// SaveParams converts a scoring result into the repository write shape.
func SaveParams(result Result, now time.Time) repository.SaveEnrichmentParams {
	return repository.SaveEnrichmentParams{
		LeadScore:           result.LeadScore,
		QualityTier:         result.QualityTier,
		Insights:            result.Insights,
		RiskFactors:         result.RiskFactors,
		RecommendedProducts: result.RecommendedProducts,
		UrgencyLevel:        result.UrgencyLevel,
		NextBestAction:      result.NextBestAction,
		EnrichedAt:          now,
	}
}
