package followup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"loancrm_backend/internal/applications/repository"
	"loancrm_backend/internal/composer"
	"loancrm_backend/internal/crmsync"
	"loancrm_backend/internal/enrichment"
	"loancrm_backend/internal/events"
	"loancrm_backend/platform/apperr"
	"loancrm_backend/platform/logger"
)

// Scorer produces an enrichment result for an application snapshot.
type Scorer interface {
	Score(ctx context.Context, app repository.Application, now time.Time) enrichment.Result
}

// MessageComposer drafts the outreach copy for a stage action.
type MessageComposer interface {
	Compose(ctx context.Context, req composer.Request) composer.Messages
}

// Outcome is what one processing run produced.
type Outcome struct {
	Sequence   string            `json:"sequence"`
	Action     *FollowUpAction   `json:"action,omitempty"`
	Enrichment enrichment.Result `json:"enrichment"`
}

// Orchestrator runs the full pipeline for one application: score, select a
// sequence, decide whether a stage fires, compose copy, write back state, and
// dispatch the CRM payload.
type Orchestrator struct {
	store      repository.Store
	scorer     Scorer
	composer   MessageComposer
	dispatcher crmsync.Dispatcher
	bus        events.Bus
	clock      repository.Clock
	log        *logger.Logger
	senderName string

	// activeRuns holds in-flight stage claims keyed application:sequence:stage
	// so two concurrent runs cannot fire the same stage twice.
	mu         sync.Mutex
	activeRuns map[string]struct{}
}

func NewOrchestrator(
	store repository.Store,
	scorer Scorer,
	msgComposer MessageComposer,
	dispatcher crmsync.Dispatcher,
	bus events.Bus,
	clock repository.Clock,
	log *logger.Logger,
	senderName string,
) *Orchestrator {
	return &Orchestrator{
		store:      store,
		scorer:     scorer,
		composer:   msgComposer,
		dispatcher: dispatcher,
		bus:        bus,
		clock:      clock,
		log:        log,
		senderName: senderName,
		activeRuns: make(map[string]struct{}),
	}
}

// ProcessApplication runs one processing pass. The CRM payload is dispatched
// on every successful pass, with or without a fired action, so the CRM record
// always reflects the latest score and sequence position.
func (o *Orchestrator) ProcessApplication(ctx context.Context, applicationID uuid.UUID, trigger Trigger) (*Outcome, error) {
	const op = "followup.ProcessApplication"

	if !trigger.Valid() {
		return nil, apperr.Validation(fmt.Sprintf("unknown trigger %q", trigger))
	}

	app, err := o.store.GetByID(ctx, applicationID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.NotFound("application not found")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "load application", err).WithOp(op)
	}

	now := o.clock.Now()
	result := o.scorer.Score(ctx, app, now)
	if err := o.store.SaveEnrichment(ctx, applicationID, enrichment.SaveParams(result, now)); err != nil {
		o.log.DatabaseError("save enrichment", err)
	}

	sequence := DetermineSequence(app, trigger)
	state := currentState(app, sequence)

	action, err := o.decideAction(app, trigger, sequence, state, now)
	if err != nil {
		return nil, err
	}

	var msgs composer.Messages
	if action != nil {
		released := o.claim(applicationID, sequence, action.Stage)
		if released == nil {
			// Another run holds this stage. Treat it as already firing.
			o.log.Debug("stage already claimed",
				"application_id", applicationID.String(),
				"sequence", sequence,
				"stage", action.Stage,
			)
			action = nil
		} else {
			defer released()
			msgs, err = o.fireAction(ctx, app, trigger, sequence, state, action, result, now)
			if err != nil {
				return nil, err
			}
		}
	}

	payload := crmsync.BuildPayload(app, string(trigger), sequence, result, wireAction(action), msgs, now)
	o.dispatcher.Dispatch(ctx, payload)

	// Hot-lead alerts go out once, on the trigger that starts contact.
	// Periodic checks re-score hot applications every cycle and must not
	// re-page the agent or the CRM each time.
	if result.IsHot() && trigger.IsFirstContact() {
		alert := payload
		alert.Trigger = crmsync.TriggerHotLeadAlert
		o.dispatcher.Dispatch(ctx, alert)
		o.publishHotLead(ctx, app, result, trigger)
	}

	return &Outcome{Sequence: sequence, Action: action, Enrichment: result}, nil
}

// decideAction applies the guards and the stage advancer. A nil action with a
// nil error is a valid outcome: nothing is due.
func (o *Orchestrator) decideAction(app repository.Application, trigger Trigger, sequence string, state SequenceState, now time.Time) (*FollowUpAction, error) {
	if app.OptedOut {
		return nil, nil
	}
	if app.FollowUpPausedUntil != nil && app.FollowUpPausedUntil.After(now) {
		return nil, nil
	}

	// First-contact triggers restart the track: evaluate from a clean state
	// so stage zero fires immediately even mid-sequence.
	if trigger.IsFirstContact() && !state.isZero() {
		state = SequenceState{}
	}

	return NextAction(sequence, state, now)
}

func (o *Orchestrator) fireAction(
	ctx context.Context,
	app repository.Application,
	trigger Trigger,
	sequence string,
	state SequenceState,
	action *FollowUpAction,
	result enrichment.Result,
	now time.Time,
) (composer.Messages, error) {
	const op = "followup.fireAction"

	action.IsHotLead = result.IsHot()

	msgs := o.composer.Compose(ctx, composer.Request{
		FirstName:       app.FirstName,
		BusinessName:    app.BusinessName,
		RequestedAmount: app.RequestedAmount,
		SenderName:      o.senderName,
		Sequence:        sequence,
		Stage:           action.Stage,
		Purpose:         action.Purpose,
		Channel:         composer.Channel(action.Channel),
		QualityTier:     result.QualityTier,
	})
	action.Message = msgs.SMS
	action.Subject = msgs.EmailSubject
	if action.Message == "" {
		action.Message = msgs.EmailBody
	}

	params := repository.UpdateSequenceStateParams{
		Sequence:       sequence,
		Stage:          action.Stage + 1,
		LastFollowUpAt: now,
	}
	if state.isZero() {
		// New or restarted track: the anchor moves with it.
		params.FollowUpStartedAt = &now
	}
	if err := o.store.UpdateSequenceState(ctx, app.ID, params); err != nil {
		return composer.Messages{}, apperr.Wrap(apperr.KindInternal, "update sequence state", err).WithOp(op)
	}
	if err := o.store.IncrementContactAttempts(ctx, app.ID); err != nil {
		o.log.DatabaseError("increment contact attempts", err)
	}

	o.bus.Publish(ctx, events.FollowUpActionFired{
		BaseEvent:     events.NewBaseEvent(),
		ApplicationID: app.ID,
		Sequence:      sequence,
		Stage:         action.Stage,
		Channel:       string(action.Channel),
		Purpose:       action.Purpose,
		Trigger:       string(trigger),
	})

	o.log.Info("follow-up action fired",
		"application_id", app.ID.String(),
		"sequence", sequence,
		"stage", action.Stage,
		"channel", action.Channel,
		"purpose", action.Purpose,
	)
	return msgs, nil
}

func (o *Orchestrator) publishHotLead(ctx context.Context, app repository.Application, result enrichment.Result, trigger Trigger) {
	o.bus.Publish(ctx, events.HotLeadDetected{
		BaseEvent:     events.NewBaseEvent(),
		ApplicationID: app.ID,
		BusinessName:  app.BusinessName,
		LeadScore:     result.LeadScore,
		UrgencyLevel:  result.UrgencyLevel,
		Trigger:       string(trigger),
		AgentID:       app.AssignedAgentID,
		AgentEmail:    app.AssignedAgentEmail,
	})
}

// claim reserves an (application, sequence, stage) slot. Returns the release
// function, or nil when another run already holds the slot.
func (o *Orchestrator) claim(applicationID uuid.UUID, sequence string, stage int) func() {
	key := fmt.Sprintf("%s:%s:%d", applicationID, sequence, stage)

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, held := o.activeRuns[key]; held {
		return nil
	}
	o.activeRuns[key] = struct{}{}
	return func() {
		o.mu.Lock()
		delete(o.activeRuns, key)
		o.mu.Unlock()
	}
}

// currentState projects the snapshot onto the selected sequence. A different
// stored sequence name means the track changed, and a changed track starts
// over.
func currentState(app repository.Application, sequence string) SequenceState {
	if app.FollowUpSequence == nil || *app.FollowUpSequence != sequence {
		return SequenceState{}
	}
	return SequenceState{
		Stage:     app.FollowUpStage,
		StartedAt: app.FollowUpStartedAt,
		LastSent:  app.LastFollowUpAt,
	}
}

func (s SequenceState) isZero() bool {
	return s.Stage == 0 && s.StartedAt == nil && s.LastSent == nil
}

func wireAction(action *FollowUpAction) *crmsync.Action {
	if action == nil {
		return nil
	}
	return &crmsync.Action{
		Stage:            action.Stage,
		Purpose:          action.Purpose,
		Channel:          string(action.Channel),
		NextStageInHours: action.NextStageInHours,
	}
}
