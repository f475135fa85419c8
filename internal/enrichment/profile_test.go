package enrichment

import (
	"testing"
	"time"

	"loancrm_backend/internal/applications/repository"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string     { return &v }

func TestBuildProfile(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	plaidItem := "item-123"

	app := repository.Application{
		Industry:             strPtr("construction"),
		TimeInBusinessMonths: intPtr(30),
		MonthlyRevenue:       floatPtr(45_000),
		RequestedAmount:      120_000,
		CreditScoreTier:      strPtr("good"),
		HasOutstandingDebt:   true,
		StatedUrgency:        strPtr("immediate"),
		IntakeCompleted:      true,
		PlaidItemID:          &plaidItem,
		ContactAttempts:      2,
		CreatedAt:            now.Add(-72 * time.Hour),
	}

	profile := BuildProfile(app, now)

	if profile.Industry != "construction" {
		t.Errorf("Industry = %q", profile.Industry)
	}
	if profile.TimeInBusinessMonths != 30 {
		t.Errorf("TimeInBusinessMonths = %d", profile.TimeInBusinessMonths)
	}
	if profile.MonthlyRevenue != 45_000 {
		t.Errorf("MonthlyRevenue = %.0f", profile.MonthlyRevenue)
	}
	if !profile.HasFinancialConnection {
		t.Error("expected financial connection")
	}
	if profile.ApplicationAge != "3 days" {
		t.Errorf("ApplicationAge = %q, want %q", profile.ApplicationAge, "3 days")
	}
}

func TestBuildProfileSparseApplication(t *testing.T) {
	now := time.Now().UTC()
	profile := BuildProfile(repository.Application{CreatedAt: now}, now)

	if profile.Industry != "" || profile.TimeInBusinessMonths != 0 || profile.MonthlyRevenue != 0 {
		t.Errorf("sparse application should produce zero-valued profile, got %+v", profile)
	}
	if profile.ApplicationAge != "less than an hour" {
		t.Errorf("ApplicationAge = %q", profile.ApplicationAge)
	}
}

func TestHumanAge(t *testing.T) {
	tests := []struct {
		age  time.Duration
		want string
	}{
		{30 * time.Minute, "less than an hour"},
		{5 * time.Hour, "5 hours"},
		{50 * time.Hour, "2 days"},
		{13 * 24 * time.Hour, "13 days"},
		{21 * 24 * time.Hour, "3 weeks"},
	}
	for _, tt := range tests {
		if got := humanAge(tt.age); got != tt.want {
			t.Errorf("humanAge(%v) = %q, want %q", tt.age, got, tt.want)
		}
	}
}
