package enrichment

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"loancrm_backend/internal/applications/repository"
	"loancrm_backend/platform/logger"
)

// Generator produces a structured completion. Satisfied by the gemini client.
type Generator interface {
	GenerateJSON(ctx context.Context, system, prompt string) (string, error)
}

const scoringSystemInstruction = `You are a senior commercial-loan underwriting analyst scoring inbound leads for a lending brokerage.

You receive one anonymized application profile as JSON. Respond with a single JSON object and nothing else:

{
  "leadScore": <integer 1-100>,
  "insights": [<2-4 short strings about lead quality>],
  "riskFactors": [<0-3 short strings>],
  "recommendedProducts": [<product slugs: term_loan, line_of_credit, sba_loan, merchant_cash_advance, equipment_financing>],
  "urgencyLevel": "immediate" | "high" | "medium" | "low",
  "estimatedFundingRange": {"min": <number>, "max": <number>},
  "nextBestAction": <one short sentence for the loan officer>
}

Scoring guidance: established revenue-generating businesses with good credit score high; very young businesses, missing financials, or heavy existing debt score low. 80+ means a loan officer should call immediately.`

// Service scores applications. The generator is optional: when nil the
// deterministic cascade handles everything.
type Service struct {
	generator Generator
	log       *logger.Logger
	timeout   time.Duration
}

func NewService(generator Generator, log *logger.Logger) *Service {
	return &Service{
		generator: generator,
		log:       log,
		timeout:   20 * time.Second,
	}
}

// Score enriches one application. It never returns an error: any failure in
// the generative path degrades to the rule cascade.
func (s *Service) Score(ctx context.Context, app repository.Application, now time.Time) Result {
	profile := BuildProfile(app, now)

	if s.generator == nil {
		return fallbackResult(profile)
	}

	result, err := s.scoreWithGenerator(ctx, profile)
	if err != nil {
		s.log.AIFallback("lead scoring", err)
		return fallbackResult(profile)
	}
	return result
}

func (s *Service) scoreWithGenerator(ctx context.Context, profile Profile) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	payload, err := json.Marshal(profile)
	if err != nil {
		return Result{}, err
	}

	raw, err := s.generator.GenerateJSON(ctx, scoringSystemInstruction, string(payload))
	if err != nil {
		return Result{}, err
	}

	parsed, err := parseScoringResponse(raw)
	if err != nil {
		return Result{}, err
	}
	return s.sanitize(parsed, profile), nil
}

type scoringResponse struct {
	LeadScore             int          `json:"leadScore"`
	Insights              []string     `json:"insights"`
	RiskFactors           []string     `json:"riskFactors"`
	RecommendedProducts   []string     `json:"recommendedProducts"`
	UrgencyLevel          string       `json:"urgencyLevel"`
	EstimatedFundingRange FundingRange `json:"estimatedFundingRange"`
	NextBestAction        string       `json:"nextBestAction"`
}

func parseScoringResponse(raw string) (scoringResponse, error) {
	var parsed scoringResponse
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &parsed); err != nil {
		return scoringResponse{}, err
	}
	return parsed, nil
}

// sanitize enforces the output contract on whatever the model returned.
// Out-of-range scores are a hard failure of the contract, so the tier is
// always derived here rather than trusted; missing pieces are filled from the
// deterministic heuristics.
func (s *Service) sanitize(resp scoringResponse, profile Profile) Result {
	score := resp.LeadScore
	if score < 1 || score > 100 {
		s.log.AIFallback("lead scoring", errScoreOutOfRange)
		return fallbackResult(profile)
	}

	result := Result{
		LeadScore:             score,
		QualityTier:           TierForScore(score),
		Insights:              resp.Insights,
		RiskFactors:           resp.RiskFactors,
		RecommendedProducts:   resp.RecommendedProducts,
		UrgencyLevel:          strings.ToLower(strings.TrimSpace(resp.UrgencyLevel)),
		EstimatedFundingRange: resp.EstimatedFundingRange,
		NextBestAction:        resp.NextBestAction,
	}

	switch result.UrgencyLevel {
	case UrgencyImmediate, UrgencyHigh, UrgencyMedium, UrgencyLow:
	default:
		result.UrgencyLevel = fallbackUrgency(profile, score)
	}
	if len(result.RecommendedProducts) == 0 {
		result.RecommendedProducts = fallbackProducts(profile)
	}
	if result.EstimatedFundingRange.Min <= 0 || result.EstimatedFundingRange.Max < result.EstimatedFundingRange.Min {
		result.EstimatedFundingRange = EstimateFundingRange(profile.RequestedAmount, profile.MonthlyRevenue)
	}
	if result.NextBestAction == "" {
		result.NextBestAction = nextBestAction(score)
	}
	return result
}

var errScoreOutOfRange = scoreRangeError{}

type scoreRangeError struct{}

func (scoreRangeError) Error() string { return "lead score outside 1-100" }

// stripCodeFences removes a surrounding markdown code fence if the model
// wrapped its JSON in one.
func stripCodeFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
