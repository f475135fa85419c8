package followup

import (
	"context"
	"sync"
	"testing"
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

type fakeStore struct {
	mu sync.Mutex

	apps map[uuid.UUID]repository.Application

	sequenceUpdates []repository.UpdateSequenceStateParams
	enrichmentSaves []repository.SaveEnrichmentParams
	attemptBumps    int
}

func newFakeStore(apps ...repository.Application) *fakeStore {
	s := &fakeStore{apps: make(map[uuid.UUID]repository.Application)}
	for _, app := range apps {
		s.apps[app.ID] = app
	}
	return s
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (repository.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[id]
	if !ok {
		return repository.Application{}, repository.ErrNotFound
	}
	return app, nil
}

func (s *fakeStore) UpdateSequenceState(_ context.Context, id uuid.UUID, params repository.UpdateSequenceStateParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequenceUpdates = append(s.sequenceUpdates, params)
	app := s.apps[id]
	app.FollowUpSequence = &params.Sequence
	app.FollowUpStage = params.Stage
	app.LastFollowUpAt = &params.LastFollowUpAt
	if params.FollowUpStartedAt != nil {
		app.FollowUpStartedAt = params.FollowUpStartedAt
	}
	s.apps[id] = app
	return nil
}

func (s *fakeStore) ResetSequence(_ context.Context, id uuid.UUID, sequence string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app := s.apps[id]
	app.FollowUpSequence = &sequence
	app.FollowUpStage = 0
	app.FollowUpStartedAt = nil
	app.LastFollowUpAt = nil
	s.apps[id] = app
	return nil
}

func (s *fakeStore) IncrementContactAttempts(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attemptBumps++
	app := s.apps[id]
	app.ContactAttempts++
	s.apps[id] = app
	return nil
}

func (s *fakeStore) SaveEnrichment(_ context.Context, _ uuid.UUID, params repository.SaveEnrichmentParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrichmentSaves = append(s.enrichmentSaves, params)
	return nil
}

func (s *fakeStore) ListWithActiveSequences(_ context.Context, _ int) ([]repository.Application, error) {
	return nil, nil
}

func (s *fakeStore) ListAbandonmentCandidates(_ context.Context, _ int) ([]repository.Application, error) {
	return nil, nil
}

type stubScorer struct {
	result enrichment.Result
}

func (s stubScorer) Score(_ context.Context, _ repository.Application, _ time.Time) enrichment.Result {
	return s.result
}

type stubComposer struct{}

func (stubComposer) Compose(_ context.Context, req composer.Request) composer.Messages {
	return composer.Messages{
		SMS:          "sms for " + req.Purpose,
		EmailSubject: "subject for " + req.Purpose,
		EmailBody:    "body for " + req.Purpose,
	}
}

type recordingDispatcher struct {
	mu       sync.Mutex
	payloads []crmsync.Payload
}

func (d *recordingDispatcher) Dispatch(_ context.Context, payload crmsync.Payload) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.payloads = append(d.payloads, payload)
}

func (d *recordingDispatcher) all() []crmsync.Payload {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]crmsync.Payload(nil), d.payloads...)
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(_ context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBus) PublishSync(ctx context.Context, event events.Event) error {
	b.Publish(ctx, event)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func (b *recordingBus) named(name string) []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.Event
	for _, e := range b.events {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func warmResult() enrichment.Result {
	return enrichment.Result{LeadScore: 60, QualityTier: "warm", UrgencyLevel: "medium"}
}

func hotResult() enrichment.Result {
	return enrichment.Result{LeadScore: 90, QualityTier: "hot", UrgencyLevel: "high"}
}

type orchestratorFixture struct {
	orc        *Orchestrator
	store      *fakeStore
	dispatcher *recordingDispatcher
	bus        *recordingBus
	now        time.Time
}

func newFixture(t *testing.T, result enrichment.Result, apps ...repository.Application) *orchestratorFixture {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore(apps...)
	dispatcher := &recordingDispatcher{}
	bus := &recordingBus{}
	orc := NewOrchestrator(
		store,
		stubScorer{result: result},
		stubComposer{},
		dispatcher,
		bus,
		fixedClock{now: now},
		logger.New("test"),
		"Alex",
	)
	return &orchestratorFixture{orc: orc, store: store, dispatcher: dispatcher, bus: bus, now: now}
}

func TestProcessApplicationFirstContact(t *testing.T) {
	app := repository.Application{
		ID:           uuid.New(),
		FirstName:    "Maria",
		BusinessName: "Harbor Bakery",
		Phone:        "(212) 555-0188",
		CreatedAt:    time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
	}
	fx := newFixture(t, warmResult(), app)

	outcome, err := fx.orc.ProcessApplication(context.Background(), app.ID, TriggerNewApplication)
	if err != nil {
		t.Fatalf("ProcessApplication: %v", err)
	}

	if outcome.Sequence != SequenceNewLead {
		t.Errorf("sequence = %q", outcome.Sequence)
	}
	if outcome.Action == nil {
		t.Fatal("stage 0 must fire on first contact")
	}
	if outcome.Action.Stage != 0 || outcome.Action.Purpose != "initial_contact" {
		t.Errorf("action = %+v", outcome.Action)
	}
	if outcome.Action.Message == "" {
		t.Error("fired action carries outreach copy")
	}

	if len(fx.store.sequenceUpdates) != 1 {
		t.Fatalf("sequence updates = %d", len(fx.store.sequenceUpdates))
	}
	update := fx.store.sequenceUpdates[0]
	if update.Stage != 1 || update.Sequence != SequenceNewLead {
		t.Errorf("update = %+v", update)
	}
	if update.FollowUpStartedAt == nil || !update.FollowUpStartedAt.Equal(fx.now) {
		t.Errorf("FollowUpStartedAt = %v, want %v", update.FollowUpStartedAt, fx.now)
	}
	if len(fx.store.enrichmentSaves) != 1 {
		t.Errorf("enrichment saves = %d", len(fx.store.enrichmentSaves))
	}
	if fx.store.attemptBumps != 1 {
		t.Errorf("contact attempt bumps = %d", fx.store.attemptBumps)
	}

	if fired := fx.bus.named("followup.action.fired"); len(fired) != 1 {
		t.Errorf("action fired events = %d", len(fired))
	}

	payloads := fx.dispatcher.all()
	if len(payloads) != 1 {
		t.Fatalf("dispatched payloads = %d", len(payloads))
	}
	if !payloads[0].Sequence.ActionFired {
		t.Error("payload must record that the action fired")
	}
}

func TestProcessApplicationNotDueStillDispatches(t *testing.T) {
	sequence := SequenceNewLead
	started := time.Date(2026, 3, 1, 11, 30, 0, 0, time.UTC)
	app := repository.Application{
		ID:                uuid.New(),
		FollowUpSequence:  &sequence,
		FollowUpStage:     1,
		FollowUpStartedAt: &started,
		LastFollowUpAt:    &started,
		CreatedAt:         started,
	}
	fx := newFixture(t, warmResult(), app)

	outcome, err := fx.orc.ProcessApplication(context.Background(), app.ID, TriggerPeriodicCheck)
	if err != nil {
		t.Fatalf("ProcessApplication: %v", err)
	}

	if outcome.Action != nil {
		t.Errorf("action = %+v, want none 30 minutes in", outcome.Action)
	}
	if len(fx.store.sequenceUpdates) != 0 {
		t.Error("no write-back when nothing fires")
	}

	payloads := fx.dispatcher.all()
	if len(payloads) != 1 {
		t.Fatalf("dispatched payloads = %d, payload goes out on every run", len(payloads))
	}
	if payloads[0].Sequence.ActionFired {
		t.Error("payload must not claim an action fired")
	}
	if payloads[0].AI.LeadScore != 60 {
		t.Errorf("payload score = %d", payloads[0].AI.LeadScore)
	}
}

func TestProcessApplicationPeriodicAdvance(t *testing.T) {
	sequence := SequenceNewLead
	started := time.Date(2026, 2, 27, 12, 0, 0, 0, time.UTC)
	sent := started.Add(time.Hour)
	app := repository.Application{
		ID:                uuid.New(),
		FollowUpSequence:  &sequence,
		FollowUpStage:     1,
		FollowUpStartedAt: &started,
		LastFollowUpAt:    &sent,
		CreatedAt:         started,
	}
	fx := newFixture(t, warmResult(), app)

	outcome, err := fx.orc.ProcessApplication(context.Background(), app.ID, TriggerPeriodicCheck)
	if err != nil {
		t.Fatalf("ProcessApplication: %v", err)
	}
	if outcome.Action == nil {
		t.Fatal("stage 1 is past its 24h delay")
	}
	if outcome.Action.Stage != 1 || outcome.Action.Purpose != "follow_up" {
		t.Errorf("action = %+v", outcome.Action)
	}

	update := fx.store.sequenceUpdates[0]
	if update.Stage != 2 {
		t.Errorf("advanced stage = %d, want 2", update.Stage)
	}
	if update.FollowUpStartedAt != nil {
		t.Error("mid-sequence advance must not move the start anchor")
	}
}

func TestProcessApplicationFirstContactRestartsMidSequence(t *testing.T) {
	sequence := SequenceNewLead
	started := time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)
	sent := started.Add(time.Hour)
	app := repository.Application{
		ID:                uuid.New(),
		FollowUpSequence:  &sequence,
		FollowUpStage:     2,
		FollowUpStartedAt: &started,
		LastFollowUpAt:    &sent,
		CreatedAt:         started,
	}
	fx := newFixture(t, warmResult(), app)

	outcome, err := fx.orc.ProcessApplication(context.Background(), app.ID, TriggerNewApplication)
	if err != nil {
		t.Fatalf("ProcessApplication: %v", err)
	}
	if outcome.Action == nil || outcome.Action.Stage != 0 {
		t.Fatalf("action = %+v, first contact restarts at stage 0", outcome.Action)
	}
	update := fx.store.sequenceUpdates[0]
	if update.FollowUpStartedAt == nil {
		t.Error("restart must move the start anchor")
	}
}

func TestProcessApplicationSequenceChangeStartsOver(t *testing.T) {
	sequence := SequenceNewLead
	started := time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)
	app := repository.Application{
		ID:                uuid.New(),
		IntakeCompleted:   true,
		FollowUpSequence:  &sequence,
		FollowUpStage:     3,
		FollowUpStartedAt: &started,
		LastFollowUpAt:    &started,
		CreatedAt:         started,
	}
	fx := newFixture(t, warmResult(), app)

	outcome, err := fx.orc.ProcessApplication(context.Background(), app.ID, TriggerPeriodicCheck)
	if err != nil {
		t.Fatalf("ProcessApplication: %v", err)
	}
	if outcome.Sequence != SequenceIncompleteApp {
		t.Fatalf("sequence = %q", outcome.Sequence)
	}
	if outcome.Action == nil || outcome.Action.Stage != 0 {
		t.Errorf("action = %+v, changed track starts at stage 0", outcome.Action)
	}
}

func TestProcessApplicationOptedOut(t *testing.T) {
	app := repository.Application{
		ID:        uuid.New(),
		OptedOut:  true,
		CreatedAt: time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
	}
	fx := newFixture(t, warmResult(), app)

	outcome, err := fx.orc.ProcessApplication(context.Background(), app.ID, TriggerNewApplication)
	if err != nil {
		t.Fatalf("ProcessApplication: %v", err)
	}
	if outcome.Action != nil {
		t.Error("opted-out applications never get outreach")
	}
	if len(fx.dispatcher.all()) != 1 {
		t.Error("the CRM still receives the state payload")
	}
	if len(fx.store.enrichmentSaves) != 1 {
		t.Error("scoring still persists for opted-out records")
	}
}

func TestProcessApplicationPaused(t *testing.T) {
	pausedUntil := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	app := repository.Application{
		ID:                  uuid.New(),
		FollowUpPausedUntil: &pausedUntil,
		CreatedAt:           time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
	}
	fx := newFixture(t, warmResult(), app)

	outcome, err := fx.orc.ProcessApplication(context.Background(), app.ID, TriggerNewApplication)
	if err != nil {
		t.Fatalf("ProcessApplication: %v", err)
	}
	if outcome.Action != nil {
		t.Error("paused applications wait out the pause")
	}
}

func TestProcessApplicationHotLead(t *testing.T) {
	agentEmail := "agent@lender.example"
	app := repository.Application{
		ID:                 uuid.New(),
		BusinessName:       "Harbor Bakery",
		AssignedAgentEmail: &agentEmail,
		CreatedAt:          time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
	}
	fx := newFixture(t, hotResult(), app)

	outcome, err := fx.orc.ProcessApplication(context.Background(), app.ID, TriggerNewApplication)
	if err != nil {
		t.Fatalf("ProcessApplication: %v", err)
	}
	if outcome.Action == nil || !outcome.Action.IsHotLead {
		t.Errorf("action = %+v, want hot flag", outcome.Action)
	}

	hotEvents := fx.bus.named("followup.hot_lead.detected")
	if len(hotEvents) != 1 {
		t.Fatalf("hot lead events = %d", len(hotEvents))
	}
	hot := hotEvents[0].(events.HotLeadDetected)
	if hot.LeadScore != 90 || hot.AgentEmail == nil || *hot.AgentEmail != agentEmail {
		t.Errorf("event = %+v", hot)
	}

	payloads := fx.dispatcher.all()
	if len(payloads) != 2 {
		t.Fatalf("dispatched payloads = %d, want sync plus alert", len(payloads))
	}
	alert := payloads[1]
	if alert.Trigger != crmsync.TriggerHotLeadAlert {
		t.Errorf("alert trigger = %q", alert.Trigger)
	}
	if alert.AI.LeadScore != 90 || !alert.Sequence.IsHotLead {
		t.Errorf("alert = %+v", alert)
	}
}

func TestProcessApplicationPeriodicCheckNeverReAlerts(t *testing.T) {
	sequence := SequenceNewLead
	started := time.Date(2026, 3, 1, 11, 30, 0, 0, time.UTC)
	app := repository.Application{
		ID:                uuid.New(),
		FollowUpSequence:  &sequence,
		FollowUpStage:     1,
		FollowUpStartedAt: &started,
		LastFollowUpAt:    &started,
		CreatedAt:         started,
	}
	fx := newFixture(t, hotResult(), app)

	for i := 0; i < 3; i++ {
		outcome, err := fx.orc.ProcessApplication(context.Background(), app.ID, TriggerPeriodicCheck)
		if err != nil {
			t.Fatalf("ProcessApplication: %v", err)
		}
		if outcome.Action != nil {
			t.Fatalf("action = %+v, want none 30 minutes in", outcome.Action)
		}
	}

	if hotEvents := fx.bus.named("followup.hot_lead.detected"); len(hotEvents) != 0 {
		t.Errorf("hot lead events = %d, periodic checks must not re-alert", len(hotEvents))
	}
	payloads := fx.dispatcher.all()
	if len(payloads) != 3 {
		t.Fatalf("dispatched payloads = %d", len(payloads))
	}
	for _, payload := range payloads {
		if payload.Trigger != string(TriggerPeriodicCheck) {
			t.Errorf("payload trigger = %q", payload.Trigger)
		}
		if !payload.Sequence.IsHotLead {
			t.Error("routine sync still carries the hot flag")
		}
	}
}

func TestProcessApplicationInvalidTrigger(t *testing.T) {
	fx := newFixture(t, warmResult())

	_, err := fx.orc.ProcessApplication(context.Background(), uuid.New(), Trigger("speculative_ping"))
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestProcessApplicationNotFound(t *testing.T) {
	fx := newFixture(t, warmResult())

	_, err := fx.orc.ProcessApplication(context.Background(), uuid.New(), TriggerPeriodicCheck)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

// Without any claim the advancer itself is stateless: two evaluations of the
// same due stage both report it due. This is the duplicate-send hazard the
// claim exists to close.
func TestAdvancerAloneReportsDueTwice(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first, err := NextAction(SequenceNewLead, SequenceState{}, now)
	if err != nil {
		t.Fatalf("NextAction: %v", err)
	}
	second, err := NextAction(SequenceNewLead, SequenceState{}, now)
	if err != nil {
		t.Fatalf("NextAction: %v", err)
	}
	if first == nil || second == nil {
		t.Fatal("both evaluations must report the stage due")
	}
	if first.Stage != second.Stage {
		t.Errorf("stages differ: %d vs %d", first.Stage, second.Stage)
	}
}

// With the claim held, the orchestrator treats the stage as already firing:
// the second run produces no action and no second write-back.
func TestProcessApplicationClaimedStageIsNoOp(t *testing.T) {
	app := repository.Application{
		ID:        uuid.New(),
		CreatedAt: time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
	}
	fx := newFixture(t, warmResult(), app)

	release := fx.orc.claim(app.ID, SequenceNewLead, 0)
	if release == nil {
		t.Fatal("first claim must succeed")
	}
	defer release()

	outcome, err := fx.orc.ProcessApplication(context.Background(), app.ID, TriggerNewApplication)
	if err != nil {
		t.Fatalf("ProcessApplication: %v", err)
	}
	if outcome.Action != nil {
		t.Error("claimed stage must not fire again")
	}
	if len(fx.store.sequenceUpdates) != 0 {
		t.Error("claimed stage must not write back state")
	}
	if len(fx.dispatcher.all()) != 1 {
		t.Error("the state payload still goes out")
	}
}

func TestClaimReleaseAllowsNextRun(t *testing.T) {
	fx := newFixture(t, warmResult())
	id := uuid.New()

	release := fx.orc.claim(id, SequenceNewLead, 0)
	if release == nil {
		t.Fatal("first claim must succeed")
	}
	if fx.orc.claim(id, SequenceNewLead, 0) != nil {
		t.Fatal("second claim on a held slot must fail")
	}
	release()
	if fx.orc.claim(id, SequenceNewLead, 0) == nil {
		t.Fatal("released slot must be claimable again")
	}
}

// gatedComposer parks the first Compose call until released, holding its run
// inside the claim window.
type gatedComposer struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedComposer) Compose(_ context.Context, req composer.Request) composer.Messages {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return composer.Messages{SMS: "sms for " + req.Purpose}
}

// While one run is mid-fire, a second run for the same stage loses the claim
// and produces no action; after the first run completes and releases, the
// stage has advanced and stays quiet.
func TestConcurrentRunsRaceOnStageClaim(t *testing.T) {
	app := repository.Application{
		ID:        uuid.New(),
		CreatedAt: time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
	}
	fx := newFixture(t, warmResult(), app)
	gate := &gatedComposer{entered: make(chan struct{}), release: make(chan struct{})}
	fx.orc.composer = gate

	type result struct {
		outcome *Outcome
		err     error
	}
	winner := make(chan result, 1)
	go func() {
		outcome, err := fx.orc.ProcessApplication(context.Background(), app.ID, TriggerNewApplication)
		winner <- result{outcome, err}
	}()
	<-gate.entered

	// The first run holds the stage-0 claim. This run must not fire it again.
	loser, err := fx.orc.ProcessApplication(context.Background(), app.ID, TriggerNewApplication)
	if err != nil {
		t.Fatalf("losing run: %v", err)
	}
	if loser.Action != nil {
		t.Error("losing run must not fire the claimed stage")
	}

	close(gate.release)
	won := <-winner
	if won.err != nil {
		t.Fatalf("winning run: %v", won.err)
	}
	if won.outcome.Action == nil || won.outcome.Action.Stage != 0 {
		t.Fatalf("winning run action = %+v", won.outcome.Action)
	}

	if len(fx.store.sequenceUpdates) != 1 {
		t.Errorf("sequence updates = %d, exactly one run writes back", len(fx.store.sequenceUpdates))
	}
	// Both runs still dispatched the state payload.
	if got := len(fx.dispatcher.all()); got != 2 {
		t.Errorf("dispatched payloads = %d, want 2", got)
	}
}
