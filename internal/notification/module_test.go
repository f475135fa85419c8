package notification

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"loancrm_backend/internal/events"
	"loancrm_backend/platform/logger"
)

type testSender struct {
	calls     int
	lastEmail string
	lastData  HotLeadAlertData
}

func (s *testSender) SendHotLeadAlert(_ context.Context, toEmail string, data HotLeadAlertData) error {
	s.calls++
	s.lastEmail = toEmail
	s.lastData = data
	return nil
}

func hotLeadEvent(agentEmail *string) events.HotLeadDetected {
	return events.HotLeadDetected{
		BaseEvent:     events.NewBaseEvent(),
		ApplicationID: uuid.New(),
		BusinessName:  "Harbor Bakery",
		LeadScore:     88,
		UrgencyLevel:  "high",
		Trigger:       "new_application",
		AgentEmail:    agentEmail,
	}
}

func TestHandleHotLeadPrefersAssignedAgent(t *testing.T) {
	bus := events.NewInMemoryBus(logger.New("test"))
	sender := &testSender{}
	m := NewModule(bus, sender, logger.New("test"), "intake@lender.example", "https://portal.example")

	agent := "agent@lender.example"
	if err := m.handleHotLead(context.Background(), hotLeadEvent(&agent)); err != nil {
		t.Fatalf("handleHotLead: %v", err)
	}

	if sender.calls != 1 {
		t.Fatalf("calls = %d", sender.calls)
	}
	if sender.lastEmail != agent {
		t.Errorf("recipient = %q, want assigned agent", sender.lastEmail)
	}
	if sender.lastData.LeadScore != 88 || sender.lastData.BusinessName != "Harbor Bakery" {
		t.Errorf("data = %+v", sender.lastData)
	}
}

func TestHandleHotLeadFallsBackToTeamInbox(t *testing.T) {
	bus := events.NewInMemoryBus(logger.New("test"))
	sender := &testSender{}
	m := NewModule(bus, sender, logger.New("test"), "intake@lender.example", "")

	if err := m.handleHotLead(context.Background(), hotLeadEvent(nil)); err != nil {
		t.Fatalf("handleHotLead: %v", err)
	}
	if sender.lastEmail != "intake@lender.example" {
		t.Errorf("recipient = %q, want fallback inbox", sender.lastEmail)
	}
}

func TestHandleHotLeadNoRecipient(t *testing.T) {
	bus := events.NewInMemoryBus(logger.New("test"))
	sender := &testSender{}
	m := NewModule(bus, sender, logger.New("test"), "", "")

	if err := m.handleHotLead(context.Background(), hotLeadEvent(nil)); err != nil {
		t.Fatalf("handleHotLead: %v", err)
	}
	if sender.calls != 0 {
		t.Error("alert must be dropped without a recipient")
	}
}

func TestHotLeadTemplateRenders(t *testing.T) {
	content, err := renderEmailTemplate("hot_lead_alert.html", HotLeadAlertData{
		BusinessName: "Harbor Bakery",
		LeadScore:    88,
		UrgencyLevel: "high",
		Trigger:      "new_application",
		PortalURL:    "https://portal.example/apps/123",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{"Harbor Bakery", "88", "high", "https://portal.example/apps/123"} {
		if !strings.Contains(content, want) {
			t.Errorf("rendered template missing %q", want)
		}
	}
}
