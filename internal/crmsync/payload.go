// Package crmsync builds the canonical payload sent to the downstream CRM
// after every processing run and delivers it over an authenticated webhook.
package crmsync

import (
	"time"

	"loancrm_backend/internal/applications/repository"
	"loancrm_backend/internal/composer"
	"loancrm_backend/internal/enrichment"
	"loancrm_backend/platform/phone"
)

// TriggerHotLeadAlert marks the out-of-band alert payload sent in addition to
// the regular sync when a first-contact run scores hot.
const TriggerHotLeadAlert = "hot_lead_alert"

// Action is the stage action that fired this run, in wire-neutral form.
type Action struct {
	Stage            int
	Purpose          string
	Channel          string
	NextStageInHours *int
}

// Payload is the wire shape the CRM consumes. One payload per processing run,
// whether or not a follow-up action fired.
type Payload struct {
	ApplicationID string `json:"applicationId"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	FirstName     string `json:"firstName,omitempty"`
	LastName      string `json:"lastName,omitempty"`
	BusinessName  string `json:"businessName,omitempty"`

	Trigger   string `json:"trigger"`
	Timestamp string `json:"timestamp"`

	AI           AISection       `json:"ai"`
	Sequence     SequenceSection `json:"sequence"`
	Messages     *MessageSection `json:"messages,omitempty"`
	Status       StatusSection   `json:"status"`
	BusinessData BusinessSection `json:"businessData"`
}

// AISection carries the enrichment output.
type AISection struct {
	LeadScore             int                     `json:"leadScore"`
	QualityTier           string                  `json:"qualityTier"`
	Insights              []string                `json:"insights,omitempty"`
	RiskFactors           []string                `json:"riskFactors,omitempty"`
	RecommendedProducts   []string                `json:"recommendedProducts,omitempty"`
	UrgencyLevel          string                  `json:"urgencyLevel"`
	EstimatedFundingRange enrichment.FundingRange `json:"estimatedFundingRange"`
	NextBestAction        string                  `json:"nextBestAction,omitempty"`
}

// SequenceSection carries the sequencing outcome of this run.
type SequenceSection struct {
	Name             string `json:"name"`
	Stage            int    `json:"stage"`
	ActionFired      bool   `json:"actionFired"`
	Purpose          string `json:"purpose,omitempty"`
	Channel          string `json:"channel,omitempty"`
	IsHotLead        bool   `json:"isHotLead"`
	NextStageInHours *int   `json:"nextStageInHours,omitempty"`
}

// MessageSection carries the composed outreach copy. Present only when an
// action fired.
type MessageSection struct {
	SMS   *SMSMessage   `json:"sms,omitempty"`
	Email *EmailMessage `json:"email,omitempty"`
}

type SMSMessage struct {
	Body string `json:"body"`
}

type EmailMessage struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// StatusSection carries the application's lifecycle flags.
type StatusSection struct {
	IntakeCompleted          bool `json:"intakeCompleted"`
	FullApplicationCompleted bool `json:"fullApplicationCompleted"`
	HasFinancialConnection   bool `json:"hasFinancialConnection"`
	OptedOut                 bool `json:"optedOut"`
}

// BusinessSection carries the business facts the CRM keys reporting on.
type BusinessSection struct {
	Industry             string  `json:"industry,omitempty"`
	TimeInBusinessMonths int     `json:"timeInBusinessMonths,omitempty"`
	MonthlyRevenue       float64 `json:"monthlyRevenue,omitempty"`
	RequestedAmount      float64 `json:"requestedAmount,omitempty"`
	CreditScoreTier      string  `json:"creditScoreTier,omitempty"`
	HasOutstandingDebt   bool    `json:"hasOutstandingDebt"`
	StatedUrgency        string  `json:"statedUrgency,omitempty"`
}

// BuildPayload assembles the canonical CRM payload. action and msgs may be
// nil/empty when no stage fired this run; the rest of the payload is still
// sent so the CRM record stays current.
func BuildPayload(
	app repository.Application,
	trigger string,
	sequence string,
	result enrichment.Result,
	action *Action,
	msgs composer.Messages,
	now time.Time,
) Payload {
	payload := Payload{
		ApplicationID: app.ID.String(),
		Email:         app.Email,
		Phone:         phone.NormalizeE164(app.Phone),
		FirstName:     app.FirstName,
		LastName:      app.LastName,
		BusinessName:  app.BusinessName,
		Trigger:       trigger,
		Timestamp:     now.UTC().Format(time.RFC3339),
		AI: AISection{
			LeadScore:             result.LeadScore,
			QualityTier:           result.QualityTier,
			Insights:              result.Insights,
			RiskFactors:           result.RiskFactors,
			RecommendedProducts:   result.RecommendedProducts,
			UrgencyLevel:          result.UrgencyLevel,
			EstimatedFundingRange: result.EstimatedFundingRange,
			NextBestAction:        result.NextBestAction,
		},
		Sequence: SequenceSection{
			Name:      sequence,
			Stage:     currentStage(app, action),
			IsHotLead: result.IsHot(),
		},
		Status: StatusSection{
			IntakeCompleted:          app.IntakeCompleted,
			FullApplicationCompleted: app.FullApplicationCompleted,
			HasFinancialConnection:   app.HasFinancialConnection(),
			OptedOut:                 app.OptedOut,
		},
		BusinessData: businessSection(app),
	}

	if action != nil {
		payload.Sequence.ActionFired = true
		payload.Sequence.Stage = action.Stage
		payload.Sequence.Purpose = action.Purpose
		payload.Sequence.Channel = action.Channel
		payload.Sequence.NextStageInHours = action.NextStageInHours
		payload.Messages = messageSection(composer.Channel(action.Channel), msgs)
	}

	return payload
}

func currentStage(app repository.Application, action *Action) int {
	if action != nil {
		return action.Stage
	}
	return app.FollowUpStage
}

func messageSection(channel composer.Channel, msgs composer.Messages) *MessageSection {
	section := &MessageSection{}
	if channel == composer.ChannelSMS || channel == composer.ChannelBoth {
		section.SMS = &SMSMessage{Body: msgs.SMS}
	}
	if channel == composer.ChannelEmail || channel == composer.ChannelBoth {
		section.Email = &EmailMessage{Subject: msgs.EmailSubject, Body: msgs.EmailBody}
	}
	return section
}

func businessSection(app repository.Application) BusinessSection {
	section := BusinessSection{
		RequestedAmount:    app.RequestedAmount,
		HasOutstandingDebt: app.HasOutstandingDebt,
	}
	if app.Industry != nil {
		section.Industry = *app.Industry
	}
	if app.TimeInBusinessMonths != nil {
		section.TimeInBusinessMonths = *app.TimeInBusinessMonths
	}
	if app.MonthlyRevenue != nil {
		section.MonthlyRevenue = *app.MonthlyRevenue
	}
	if app.CreditScoreTier != nil {
		section.CreditScoreTier = *app.CreditScoreTier
	}
	if app.StatedUrgency != nil {
		section.StatedUrgency = *app.StatedUrgency
	}
	return section
}
