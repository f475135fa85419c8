// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"loancrm_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// HotLeadDetected is published when an application scores at or above the
// hot-lead threshold during processing.
type HotLeadDetected struct {
	BaseEvent
	ApplicationID uuid.UUID  `json:"applicationId"`
	BusinessName  string     `json:"businessName"`
	LeadScore     int        `json:"leadScore"`
	UrgencyLevel  string     `json:"urgencyLevel"`
	Trigger       string     `json:"trigger"`
	AgentID       *uuid.UUID `json:"agentId,omitempty"`
	AgentEmail    *string    `json:"agentEmail,omitempty"`
}

func (e HotLeadDetected) EventName() string { return "followup.hot_lead.detected" }

// FollowUpActionFired is published when a stage action fires for an application.
type FollowUpActionFired struct {
	BaseEvent
	ApplicationID uuid.UUID `json:"applicationId"`
	Sequence      string    `json:"sequence"`
	Stage         int       `json:"stage"`
	Channel       string    `json:"channel"`
	Purpose       string    `json:"purpose"`
	Trigger       string    `json:"trigger"`
}

func (e FollowUpActionFired) EventName() string { return "followup.action.fired" }

// ApplicationAbandoned is published when the abandonment sweep flags an
// application and switches it to a recovery sequence.
type ApplicationAbandoned struct {
	BaseEvent
	ApplicationID      uuid.UUID `json:"applicationId"`
	AbandonmentType    string    `json:"abandonmentType"`
	HoursSinceActivity float64   `json:"hoursSinceActivity"`
	RecoverySequence   string    `json:"recoverySequence"`
}

func (e ApplicationAbandoned) EventName() string { return "followup.application.abandoned" }
