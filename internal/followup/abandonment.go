package followup

import (
	"time"

	"loancrm_backend/internal/applications/repository"
)

// Abandonment types, one per lifecycle phase.
const (
	AbandonIntakeStarted    = "intake_started"
	AbandonIntakeCompleted  = "intake_completed"
	AbandonFullAppCompleted = "full_app_completed"
	AbandonStale            = "stale"
)

// Inactivity thresholds per lifecycle phase, in hours.
const (
	intakeStartedThresholdHours    = 1
	intakeCompletedThresholdHours  = 24
	fullAppCompletedThresholdHours = 48
	staleThresholdHours            = 168
)

// recoverySequences maps each abandonment type to the sequence that tries to
// pull the application back.
var recoverySequences = map[string]string{
	AbandonIntakeStarted:    SequenceIncompleteApp,
	AbandonIntakeCompleted:  SequenceIncompleteApp,
	AbandonFullAppCompleted: SequenceDocsNeeded,
	AbandonStale:            SequenceStaleLead,
}

// DetectAbandonment classifies whether an application has stalled at its
// current lifecycle phase. Only the clause matching that phase is evaluated,
// so the four thresholds are mutually exclusive by construction. Paused and
// opted-out applications are skipped before any threshold check.
func DetectAbandonment(app repository.Application, now time.Time) AbandonmentDetection {
	hours := hoursSinceActivity(app, now)
	detection := AbandonmentDetection{HoursSinceActivity: hours}

	if app.OptedOut {
		return detection
	}
	if app.FollowUpPausedUntil != nil && app.FollowUpPausedUntil.After(now) {
		return detection
	}

	switch {
	case !app.IntakeCompleted:
		if hours >= intakeStartedThresholdHours {
			return abandoned(detection, AbandonIntakeStarted)
		}
	case !app.FullApplicationCompleted:
		if hours >= intakeCompletedThresholdHours {
			return abandoned(detection, AbandonIntakeCompleted)
		}
	case !app.HasFinancialConnection():
		if hours >= fullAppCompletedThresholdHours {
			return abandoned(detection, AbandonFullAppCompleted)
		}
	default:
		if hours >= staleThresholdHours {
			return abandoned(detection, AbandonStale)
		}
	}

	return detection
}

func abandoned(detection AbandonmentDetection, abandonmentType string) AbandonmentDetection {
	detection.IsAbandoned = true
	detection.AbandonmentType = abandonmentType
	detection.RecoverySequence = recoverySequences[abandonmentType]
	detection.RecommendedAction = "switch to " + detection.RecoverySequence + " sequence"
	return detection
}

// hoursSinceActivity measures inactivity from the most recent of
// lastActivityAt, updatedAt, and createdAt.
func hoursSinceActivity(app repository.Application, now time.Time) float64 {
	reference := app.CreatedAt
	if app.UpdatedAt.After(reference) {
		reference = app.UpdatedAt
	}
	if app.LastActivityAt != nil && app.LastActivityAt.After(reference) {
		reference = *app.LastActivityAt
	}
	return now.Sub(reference).Hours()
}
