// Package enrichment computes lead-quality scores and supporting signals for
// loan applications. The primary path asks a generative scoring service for a
// structured assessment; a deterministic rule cascade takes over whenever that
// service is unavailable or returns something unusable.
package enrichment

// Quality tiers derived from the lead score.
const (
	TierHot  = "hot"
	TierWarm = "warm"
	TierCold = "cold"
)

// Tier boundaries.
const (
	hotScoreThreshold  = 80
	warmScoreThreshold = 50
)

// Urgency levels.
const (
	UrgencyImmediate = "immediate"
	UrgencyHigh      = "high"
	UrgencyMedium    = "medium"
	UrgencyLow       = "low"
)

// FundingRange is the estimated fundable amount bracket.
type FundingRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Result is the enrichment output for one application. Ephemeral; the caller
// decides whether to persist it onto the application record.
type Result struct {
	LeadScore             int          `json:"leadScore"`
	QualityTier           string       `json:"qualityTier"`
	Insights              []string     `json:"insights"`
	RiskFactors           []string     `json:"riskFactors"`
	RecommendedProducts   []string     `json:"recommendedProducts"`
	UrgencyLevel          string       `json:"urgencyLevel"`
	EstimatedFundingRange FundingRange `json:"estimatedFundingRange"`
	NextBestAction        string       `json:"nextBestAction"`
}

// IsHot reports whether the score crosses the hot-lead threshold.
func (r Result) IsHot() bool {
	return r.LeadScore >= hotScoreThreshold
}

// TierForScore maps a score to its quality tier. Boundary values belong to
// the higher tier: 80 is hot, 50 is warm.
func TierForScore(score int) string {
	switch {
	case score >= hotScoreThreshold:
		return TierHot
	case score >= warmScoreThreshold:
		return TierWarm
	default:
		return TierCold
	}
}

func clampScore(score int) int {
	if score < 1 {
		return 1
	}
	if score > 100 {
		return 100
	}
	return score
}
