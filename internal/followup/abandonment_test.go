package followup

import (
	"testing"
	"time"

	"loancrm_backend/internal/applications/repository"
)

func appInactiveFor(d time.Duration, now time.Time) repository.Application {
	created := now.Add(-d)
	return repository.Application{CreatedAt: created, UpdatedAt: created}
}

func TestDetectAbandonmentIntakeStartedBoundary(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	fresh := DetectAbandonment(appInactiveFor(59*time.Minute, now), now)
	if fresh.IsAbandoned {
		t.Error("59 minutes of inactivity must not flag an unfinished intake")
	}

	stalled := DetectAbandonment(appInactiveFor(time.Hour, now), now)
	if !stalled.IsAbandoned {
		t.Fatal("one full hour must flag an unfinished intake")
	}
	if stalled.AbandonmentType != AbandonIntakeStarted {
		t.Errorf("type = %q", stalled.AbandonmentType)
	}
	if stalled.RecoverySequence != SequenceIncompleteApp {
		t.Errorf("recovery = %q", stalled.RecoverySequence)
	}
}

func TestDetectAbandonmentPhases(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	plaid := "item-xyz"

	tests := []struct {
		name         string
		mutate       func(*repository.Application)
		inactive     time.Duration
		wantType     string
		wantRecovery string
	}{
		{
			name:         "intake completed waits 24h",
			mutate:       func(a *repository.Application) { a.IntakeCompleted = true },
			inactive:     24 * time.Hour,
			wantType:     AbandonIntakeCompleted,
			wantRecovery: SequenceIncompleteApp,
		},
		{
			name: "full app without financials waits 48h",
			mutate: func(a *repository.Application) {
				a.IntakeCompleted = true
				a.FullApplicationCompleted = true
			},
			inactive:     48 * time.Hour,
			wantType:     AbandonFullAppCompleted,
			wantRecovery: SequenceDocsNeeded,
		},
		{
			name: "fully connected goes stale after a week",
			mutate: func(a *repository.Application) {
				a.IntakeCompleted = true
				a.FullApplicationCompleted = true
				a.PlaidItemID = &plaid
			},
			inactive:     168 * time.Hour,
			wantType:     AbandonStale,
			wantRecovery: SequenceStaleLead,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := appInactiveFor(tt.inactive, now)
			tt.mutate(&app)

			got := DetectAbandonment(app, now)
			if !got.IsAbandoned {
				t.Fatal("expected abandonment")
			}
			if got.AbandonmentType != tt.wantType {
				t.Errorf("type = %q, want %q", got.AbandonmentType, tt.wantType)
			}
			if got.RecoverySequence != tt.wantRecovery {
				t.Errorf("recovery = %q, want %q", got.RecoverySequence, tt.wantRecovery)
			}

			// The same inactivity one phase earlier in the threshold ladder
			// must not trip the longer threshold's clause.
			earlier := DetectAbandonment(appInactiveFor(tt.inactive-time.Minute, now), now)
			if earlier.IsAbandoned && earlier.AbandonmentType == tt.wantType {
				t.Error("threshold fired before its boundary")
			}
		})
	}
}

func TestDetectAbandonmentLaterPhaseNeverUsesEarlierThreshold(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// 30h inactive with intake completed: past the 24h clause, but nowhere
	// near the 48h clause it would hit if full-app were done.
	app := appInactiveFor(30*time.Hour, now)
	app.IntakeCompleted = true
	app.FullApplicationCompleted = true

	got := DetectAbandonment(app, now)
	if got.IsAbandoned {
		t.Error("full-app phase must only evaluate the 48h threshold")
	}
}

func TestDetectAbandonmentSkipsOptedOut(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	app := appInactiveFor(1000*time.Hour, now)
	app.OptedOut = true

	got := DetectAbandonment(app, now)
	if got.IsAbandoned {
		t.Error("opted-out applications must never be flagged")
	}
	if got.HoursSinceActivity == 0 {
		t.Error("inactivity is still reported for skipped records")
	}
}

func TestDetectAbandonmentSkipsPaused(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pausedUntil := now.Add(24 * time.Hour)
	app := appInactiveFor(1000*time.Hour, now)
	app.FollowUpPausedUntil = &pausedUntil

	if got := DetectAbandonment(app, now); got.IsAbandoned {
		t.Error("paused applications must never be flagged")
	}

	// An expired pause no longer protects the record.
	expired := now.Add(-time.Minute)
	app.FollowUpPausedUntil = &expired
	if got := DetectAbandonment(app, now); !got.IsAbandoned {
		t.Error("expired pause must not protect the record")
	}
}

func TestHoursSinceActivityUsesMostRecentTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	activity := now.Add(-10 * time.Minute)

	app := appInactiveFor(100*time.Hour, now)
	app.LastActivityAt = &activity

	got := DetectAbandonment(app, now)
	if got.IsAbandoned {
		t.Error("recent activity must reset the inactivity window")
	}
	if got.HoursSinceActivity > 1 {
		t.Errorf("HoursSinceActivity = %v, want minutes", got.HoursSinceActivity)
	}
}
