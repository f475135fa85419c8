package followup

import (
	"loancrm_backend/internal/applications/repository"
)

// staleContactAttempts is the attempt count above which an incomplete
// application is treated as stale rather than merely incomplete.
const staleContactAttempts = 3

// DetermineSequence maps an application snapshot and a trigger to the outreach
// sequence it belongs to. Pure: no side effects, same inputs always yield the
// same name. Rules are evaluated in priority order; first match wins.
func DetermineSequence(app repository.Application, trigger Trigger) string {
	// Financial data is connected (or just arrived): nothing left to chase,
	// keep the relationship warm.
	if app.HasFinancialConnection() || trigger == TriggerFinancialConnected {
		return SequenceNurture
	}

	// Full application done but no financial connection yet.
	if app.FullApplicationCompleted {
		return SequenceDocsNeeded
	}

	// Intake done, full application pending. Repeated unanswered attempts
	// push the record into the stale track.
	if app.IntakeCompleted {
		if app.ContactAttempts > staleContactAttempts {
			return SequenceStaleLead
		}
		return SequenceIncompleteApp
	}

	// Brand-new records get the welcome track.
	if trigger == TriggerNewApplication || trigger == TriggerIntakeCompleted {
		return SequenceNewLead
	}

	return SequenceStaleLead
}
