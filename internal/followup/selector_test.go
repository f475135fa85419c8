package followup

import (
	"testing"

	"loancrm_backend/internal/applications/repository"
)

func TestDetermineSequence(t *testing.T) {
	plaid := "item-abc"

	tests := []struct {
		name    string
		app     repository.Application
		trigger Trigger
		want    string
	}{
		{
			name:    "brand new record",
			app:     repository.Application{},
			trigger: TriggerNewApplication,
			want:    SequenceNewLead,
		},
		{
			name:    "intake done full app pending",
			app:     repository.Application{IntakeCompleted: true},
			trigger: TriggerIntakeCompleted,
			want:    SequenceIncompleteApp,
		},
		{
			name:    "intake done but repeatedly unanswered",
			app:     repository.Application{IntakeCompleted: true, ContactAttempts: 4},
			trigger: TriggerPeriodicCheck,
			want:    SequenceStaleLead,
		},
		{
			name:    "exactly at the stale boundary stays incomplete",
			app:     repository.Application{IntakeCompleted: true, ContactAttempts: 3},
			trigger: TriggerPeriodicCheck,
			want:    SequenceIncompleteApp,
		},
		{
			name:    "full application awaiting financials",
			app:     repository.Application{IntakeCompleted: true, FullApplicationCompleted: true},
			trigger: TriggerFullApplicationCompleted,
			want:    SequenceDocsNeeded,
		},
		{
			name:    "financials linked",
			app:     repository.Application{IntakeCompleted: true, FullApplicationCompleted: true, PlaidItemID: &plaid},
			trigger: TriggerPeriodicCheck,
			want:    SequenceNurture,
		},
		{
			name:    "financial trigger wins even before the link is stored",
			app:     repository.Application{IntakeCompleted: true, FullApplicationCompleted: true},
			trigger: TriggerFinancialConnected,
			want:    SequenceNurture,
		},
		{
			name: "financial connection outranks stale attempts",
			app: repository.Application{
				IntakeCompleted: true,
				ContactAttempts: 10,
				PlaidItemID:     &plaid,
			},
			trigger: TriggerPeriodicCheck,
			want:    SequenceNurture,
		},
		{
			name:    "no intake and no first-contact trigger",
			app:     repository.Application{},
			trigger: TriggerPeriodicCheck,
			want:    SequenceStaleLead,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetermineSequence(tt.app, tt.trigger); got != tt.want {
				t.Errorf("DetermineSequence() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetermineSequenceIsPure(t *testing.T) {
	app := repository.Application{IntakeCompleted: true, ContactAttempts: 2}
	first := DetermineSequence(app, TriggerPeriodicCheck)
	for i := 0; i < 10; i++ {
		if got := DetermineSequence(app, TriggerPeriodicCheck); got != first {
			t.Fatalf("run %d: got %q, want %q", i, got, first)
		}
	}
}
