// Package transport defines the request DTOs for the follow-up trigger API.
package transport

// ProcessEventRequest is the request body for reporting an application event.
// Abandonment recovery is not accepted here; only the sweeper raises it.
type ProcessEventRequest struct {
	Event string `json:"event" validate:"required,oneof=new_application intake_completed full_application_completed financial_connected periodic_check"`
}
