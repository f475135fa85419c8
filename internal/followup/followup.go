// Package followup implements the lead scoring and follow-up sequencing
// engine: sequence selection, time-driven stage advancement, abandonment
// detection, and the orchestrator that ties them to enrichment, message
// composition, and CRM dispatch.
package followup

import "time"

// Trigger identifies the event that caused an application to be processed.
type Trigger string

const (
	// TriggerNewApplication fires when an application record first appears.
	TriggerNewApplication Trigger = "new_application"
	// TriggerIntakeCompleted fires when the short intake form is finished.
	TriggerIntakeCompleted Trigger = "intake_completed"
	// TriggerFullApplicationCompleted fires when the full application is done.
	TriggerFullApplicationCompleted Trigger = "full_application_completed"
	// TriggerFinancialConnected fires when financial docs/accounts are linked.
	TriggerFinancialConnected Trigger = "financial_connected"
	// TriggerPeriodicCheck is the scheduled advancement check.
	TriggerPeriodicCheck Trigger = "periodic_check"
	// TriggerAbandonmentRecovery re-enters an application after the
	// abandonment sweep switched it to a recovery sequence.
	TriggerAbandonmentRecovery Trigger = "abandonment_recovery"
)

// IsFirstContact reports whether this trigger starts a sequence immediately
// at stage zero rather than consulting the stage advancer.
func (t Trigger) IsFirstContact() bool {
	switch t {
	case TriggerNewApplication, TriggerIntakeCompleted, TriggerAbandonmentRecovery:
		return true
	}
	return false
}

// Valid reports whether the trigger is one the engine understands.
func (t Trigger) Valid() bool {
	switch t {
	case TriggerNewApplication, TriggerIntakeCompleted, TriggerFullApplicationCompleted,
		TriggerFinancialConnected, TriggerPeriodicCheck, TriggerAbandonmentRecovery:
		return true
	}
	return false
}

// Channel is the outreach channel for a stage.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
	ChannelBoth  Channel = "both"
)

// FollowUpAction describes the outreach that should happen now.
type FollowUpAction struct {
	Sequence  string  `json:"sequence"`
	Stage     int     `json:"stage"`
	Channel   Channel `json:"channel"`
	Purpose   string  `json:"purpose"`
	Message   string  `json:"message,omitempty"`
	Subject   string  `json:"subject,omitempty"`
	IsHotLead bool    `json:"isHotLead"`
	// NextStageInHours is the delay before the following stage becomes due.
	// Nil on the last stage of a sequence.
	NextStageInHours *int `json:"nextStageIn,omitempty"`
}

// AbandonmentDetection is the result of one abandonment check. Recomputed on
// every sweep, never stored.
type AbandonmentDetection struct {
	IsAbandoned        bool    `json:"isAbandoned"`
	AbandonmentType    string  `json:"abandonmentType,omitempty"`
	HoursSinceActivity float64 `json:"hoursSinceActivity"`
	RecoverySequence   string  `json:"recoverySequence,omitempty"`
	RecommendedAction  string  `json:"recommendedAction,omitempty"`
}

// SequenceStateUpdate is the sequencing-state write-back the engine proposes
// after an action fires.
type SequenceStateUpdate struct {
	Sequence          string
	Stage             int
	LastFollowUpAt    time.Time
	FollowUpStartedAt *time.Time
}
