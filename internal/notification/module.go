// Package notification turns domain events into outbound alerts. It
// subscribes to the event bus so the follow-up engine never needs to know
// about email providers or templates.
package notification

import (
	"context"
	"fmt"

	"loancrm_backend/internal/events"
	"loancrm_backend/platform/logger"
)

// AlertSender delivers hot-lead alerts. Satisfied by SMTPSender.
type AlertSender interface {
	SendHotLeadAlert(ctx context.Context, toEmail string, data HotLeadAlertData) error
}

// Module wires event subscriptions to the alert sender.
type Module struct {
	sender     AlertSender
	log        *logger.Logger
	fallbackTo string
	portalURL  string
}

// NewModule creates the notification module and subscribes it to the bus.
// fallbackTo receives alerts for applications without an assigned agent; when
// empty, those alerts are dropped with a log line.
func NewModule(bus events.Bus, sender AlertSender, log *logger.Logger, fallbackTo, portalURL string) *Module {
	m := &Module{
		sender:     sender,
		log:        log,
		fallbackTo: fallbackTo,
		portalURL:  portalURL,
	}

	bus.Subscribe(events.HotLeadDetected{}.EventName(), events.HandlerFunc(m.handleHotLead))
	return m
}

func (m *Module) handleHotLead(ctx context.Context, event events.Event) error {
	hot, ok := event.(events.HotLeadDetected)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	recipient := m.fallbackTo
	if hot.AgentEmail != nil && *hot.AgentEmail != "" {
		recipient = *hot.AgentEmail
	}
	if recipient == "" {
		m.log.Warn("hot lead alert dropped, no recipient",
			"application_id", hot.ApplicationID.String(),
			"lead_score", hot.LeadScore,
		)
		return nil
	}

	data := HotLeadAlertData{
		BusinessName: hot.BusinessName,
		LeadScore:    hot.LeadScore,
		UrgencyLevel: hot.UrgencyLevel,
		Trigger:      hot.Trigger,
		PortalURL:    m.portalURL,
	}
	if data.BusinessName == "" {
		data.BusinessName = "New application"
	}

	if err := m.sender.SendHotLeadAlert(ctx, recipient, data); err != nil {
		m.log.Error("hot lead alert failed",
			"application_id", hot.ApplicationID.String(),
			"recipient", recipient,
			"error", err,
		)
		return err
	}

	m.log.Info("hot lead alert sent",
		"application_id", hot.ApplicationID.String(),
		"recipient", recipient,
		"lead_score", hot.LeadScore,
	)
	return nil
}
