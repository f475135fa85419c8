package enrichment

import (
	"math"
	"strings"
)

// baseScore is the starting point for the rule cascade; rules add or subtract
// from it before clamping to [1,100].
const baseScore = 50

// scoreRule is one step of the fallback cascade: when the predicate matches,
// the delta is applied and the insight recorded.
type scoreRule struct {
	name    string
	applies func(p Profile) bool
	delta   int
	insight string
}

// fallbackRules is evaluated in order. Threshold bands within one factor are
// written as exact ranges so at most one of them matches.
var fallbackRules = []scoreRule{
	// Time in business
	{
		name:    "time_in_business_10y",
		applies: func(p Profile) bool { return p.TimeInBusinessMonths >= 120 },
		delta:   15,
		insight: "Established business with 10+ years of operating history",
	},
	{
		name:    "time_in_business_5y",
		applies: func(p Profile) bool { return p.TimeInBusinessMonths >= 60 && p.TimeInBusinessMonths < 120 },
		delta:   10,
		insight: "Mature business with 5+ years of operating history",
	},
	{
		name:    "time_in_business_2y",
		applies: func(p Profile) bool { return p.TimeInBusinessMonths >= 24 && p.TimeInBusinessMonths < 60 },
		delta:   5,
		insight: "Business past the two-year survival mark",
	},

	// Monthly revenue
	{
		name:    "revenue_100k",
		applies: func(p Profile) bool { return p.MonthlyRevenue >= 100_000 },
		delta:   20,
		insight: "Strong monthly revenue above $100k",
	},
	{
		name:    "revenue_50k",
		applies: func(p Profile) bool { return p.MonthlyRevenue >= 50_000 && p.MonthlyRevenue < 100_000 },
		delta:   12,
		insight: "Solid monthly revenue above $50k",
	},
	{
		name:    "revenue_25k",
		applies: func(p Profile) bool { return p.MonthlyRevenue >= 25_000 && p.MonthlyRevenue < 50_000 },
		delta:   5,
		insight: "Monthly revenue above $25k",
	},

	// Credit indicator. Below the "good" floor there is no bonus.
	{
		name:    "credit_excellent",
		applies: func(p Profile) bool { return creditTier(p) == "excellent" },
		delta:   10,
		insight: "Excellent credit profile",
	},
	{
		name:    "credit_good",
		applies: func(p Profile) bool { return creditTier(p) == "good" },
		delta:   5,
		insight: "Good credit profile",
	},

	// Outstanding debt
	{
		name:    "outstanding_debt",
		applies: func(p Profile) bool { return p.HasOutstandingDebt },
		delta:   -5,
		insight: "",
	},

	// Application completeness
	{
		name:    "full_application",
		applies: func(p Profile) bool { return p.FullApplicationCompleted },
		delta:   10,
		insight: "Completed the full application",
	},
	{
		name:    "intake_only",
		applies: func(p Profile) bool { return p.IntakeCompleted && !p.FullApplicationCompleted },
		delta:   5,
		insight: "Completed intake",
	},
}

func creditTier(p Profile) string {
	return strings.ToLower(strings.TrimSpace(p.CreditScoreTier))
}

// scoreWithRules runs the cascade and returns the clamped score plus the
// insights of every rule that fired.
func scoreWithRules(p Profile) (int, []string) {
	score := baseScore
	var insights []string
	for _, rule := range fallbackRules {
		if !rule.applies(p) {
			continue
		}
		score += rule.delta
		if rule.insight != "" {
			insights = append(insights, rule.insight)
		}
	}
	return clampScore(score), insights
}

// fallbackResult builds a complete enrichment result without the generative
// service. Deterministic for a given profile.
func fallbackResult(p Profile) Result {
	score, insights := scoreWithRules(p)

	result := Result{
		LeadScore:             score,
		QualityTier:           TierForScore(score),
		Insights:              insights,
		RiskFactors:           fallbackRiskFactors(p),
		RecommendedProducts:   fallbackProducts(p),
		UrgencyLevel:          fallbackUrgency(p, score),
		EstimatedFundingRange: EstimateFundingRange(p.RequestedAmount, p.MonthlyRevenue),
		NextBestAction:        nextBestAction(score),
	}
	return result
}

func fallbackRiskFactors(p Profile) []string {
	var risks []string
	if p.HasOutstandingDebt {
		risks = append(risks, "Existing outstanding debt reduces borrowing capacity")
	}
	if p.TimeInBusinessMonths > 0 && p.TimeInBusinessMonths < 12 {
		risks = append(risks, "Less than one year in business")
	}
	if p.MonthlyRevenue <= 0 {
		risks = append(risks, "Monthly revenue not yet provided")
	}
	if creditTier(p) == "poor" {
		risks = append(risks, "Credit indicator below lending floor")
	}
	return risks
}

func fallbackProducts(p Profile) []string {
	// Very young businesses qualify for revenue-based products only.
	if p.TimeInBusinessMonths > 0 && p.TimeInBusinessMonths < 12 {
		return []string{"merchant_cash_advance"}
	}

	products := []string{"term_loan", "line_of_credit"}
	tier := creditTier(p)
	if p.MonthlyRevenue >= 50_000 && (tier == "good" || tier == "excellent") {
		products = append(products, "sba_loan")
	}
	return products
}

func fallbackUrgency(p Profile, score int) string {
	if strings.EqualFold(strings.TrimSpace(p.StatedUrgency), "immediate") {
		return UrgencyImmediate
	}
	switch {
	case score >= hotScoreThreshold:
		return UrgencyHigh
	case score >= 65:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

func nextBestAction(score int) string {
	switch TierForScore(score) {
	case TierHot:
		return "Call now while interest is high"
	case TierWarm:
		return "Send a follow-up with matching product options"
	default:
		return "Keep on the nurture cadence"
	}
}

// EstimateFundingRange brackets the fundable amount between half and 1.5x the
// requested amount, capped at twelve months of revenue when revenue is known.
// Values are rounded to the nearest 5,000 and min never exceeds max.
func EstimateFundingRange(requested, monthlyRevenue float64) FundingRange {
	if requested <= 0 {
		return FundingRange{}
	}

	low := roundToFiveThousand(requested * 0.5)
	cap := requested * 1.5
	if monthlyRevenue > 0 && monthlyRevenue*12 < cap {
		cap = monthlyRevenue * 12
	}
	high := roundToFiveThousand(cap)
	if high < low {
		high = low
	}
	return FundingRange{Min: low, Max: high}
}

func roundToFiveThousand(value float64) float64 {
	return math.Round(value/5000) * 5000
}
