package enrichment

import (
	"fmt"
	"time"

	"loancrm_backend/internal/applications/repository"
)

// Profile is the identity-stripped view of an application sent to the scoring
// service and consumed by the fallback cascade. No names, email, or phone.
type Profile struct {
	Industry             string  `json:"industry,omitempty"`
	TimeInBusinessMonths int     `json:"timeInBusinessMonths"`
	MonthlyRevenue       float64 `json:"monthlyRevenue"`
	RequestedAmount      float64 `json:"requestedAmount"`
	CreditScoreTier      string  `json:"creditScoreTier,omitempty"`
	HasOutstandingDebt   bool    `json:"hasOutstandingDebt"`
	StatedUrgency        string  `json:"statedUrgency,omitempty"`

	IntakeCompleted          bool `json:"intakeCompleted"`
	FullApplicationCompleted bool `json:"fullApplicationCompleted"`
	HasFinancialConnection   bool `json:"hasFinancialConnection"`

	ContactAttempts     int    `json:"contactAttempts"`
	LastContactResponse string `json:"lastContactResponse,omitempty"`

	// ApplicationAge is a human-readable age string, e.g. "3 days".
	ApplicationAge string `json:"applicationAge"`
}

// BuildProfile normalizes an application snapshot into a scoring profile.
// Missing fields degrade to zero values; nothing here raises.
func BuildProfile(app repository.Application, now time.Time) Profile {
	profile := Profile{
		RequestedAmount:          app.RequestedAmount,
		HasOutstandingDebt:       app.HasOutstandingDebt,
		IntakeCompleted:          app.IntakeCompleted,
		FullApplicationCompleted: app.FullApplicationCompleted,
		HasFinancialConnection:   app.HasFinancialConnection(),
		ContactAttempts:          app.ContactAttempts,
		ApplicationAge:           humanAge(now.Sub(app.CreatedAt)),
	}
	if app.Industry != nil {
		profile.Industry = *app.Industry
	}
	if app.TimeInBusinessMonths != nil {
		profile.TimeInBusinessMonths = *app.TimeInBusinessMonths
	}
	if app.MonthlyRevenue != nil {
		profile.MonthlyRevenue = *app.MonthlyRevenue
	}
	if app.CreditScoreTier != nil {
		profile.CreditScoreTier = *app.CreditScoreTier
	}
	if app.StatedUrgency != nil {
		profile.StatedUrgency = *app.StatedUrgency
	}
	if app.LastContactResponse != nil {
		profile.LastContactResponse = *app.LastContactResponse
	}
	return profile
}

func humanAge(age time.Duration) string {
	switch hours := age.Hours(); {
	case hours < 1:
		return "less than an hour"
	case hours < 24:
		return fmt.Sprintf("%d hours", int(hours))
	case hours < 24*14:
		return fmt.Sprintf("%d days", int(hours/24))
	default:
		return fmt.Sprintf("%d weeks", int(hours/(24*7)))
	}
}
