package followup

import (
	"time"
)

// SequenceState is the slice of an application's sequencing state the
// advancer evaluates. The advancer never mutates it; advancement is the
// caller's responsibility once a due action is returned.
type SequenceState struct {
	Stage     int
	StartedAt *time.Time
	LastSent  *time.Time
}

// NextAction evaluates whether the application's current stage in the given
// sequence is due at time now.
//
// Outcomes:
//   - the sequence has not started (no timestamps): stage 0 is due immediately
//   - the current stage index is past the end: the sequence is complete, nil
//   - elapsed time since the anchor >= the stage's delay: the stage is due
//   - otherwise: not due yet, nil
//
// An unknown sequence name returns a contract error.
func NextAction(sequence string, state SequenceState, now time.Time) (*FollowUpAction, error) {
	stages, err := Stages(sequence)
	if err != nil {
		return nil, err
	}

	if state.StartedAt == nil && state.LastSent == nil {
		return actionForStage(sequence, stages, 0), nil
	}

	if state.Stage >= len(stages) {
		// Terminal: every stage has fired. Nothing further until the
		// sequence is reset.
		return nil, nil
	}

	anchor := latest(state.StartedAt, state.LastSent)
	elapsed := now.Sub(anchor).Hours()
	required := float64(stages[state.Stage].DelayHours)
	if elapsed < required {
		return nil, nil
	}

	return actionForStage(sequence, stages, state.Stage), nil
}

func actionForStage(sequence string, stages []SequenceStage, index int) *FollowUpAction {
	stage := stages[index]
	action := &FollowUpAction{
		Sequence: sequence,
		Stage:    index,
		Channel:  stage.Channel,
		Purpose:  stage.Purpose,
	}
	if next := index + 1; next < len(stages) {
		delay := stages[next].DelayHours
		action.NextStageInHours = &delay
	}
	return action
}

func latest(a, b *time.Time) time.Time {
	switch {
	case a == nil:
		return *b
	case b == nil:
		return *a
	case b.After(*a):
		return *b
	default:
		return *a
	}
}
