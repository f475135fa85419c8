package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Consumer-driven interfaces. Each engine component depends only on the
// slice of the repository it actually uses.

// ApplicationReader loads application snapshots.
type ApplicationReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (Application, error)
}

// SequenceStateWriter writes back sequencing state.
type SequenceStateWriter interface {
	UpdateSequenceState(ctx context.Context, id uuid.UUID, params UpdateSequenceStateParams) error
	ResetSequence(ctx context.Context, id uuid.UUID, sequence string) error
	IncrementContactAttempts(ctx context.Context, id uuid.UUID) error
}

// EnrichmentWriter persists scoring output.
type EnrichmentWriter interface {
	SaveEnrichment(ctx context.Context, id uuid.UUID, params SaveEnrichmentParams) error
}

// SweepLister lists applications for the periodic sweepers.
type SweepLister interface {
	ListWithActiveSequences(ctx context.Context, limit int) ([]Application, error)
	ListAbandonmentCandidates(ctx context.Context, limit int) ([]Application, error)
}

// Store combines everything the follow-up module needs.
type Store interface {
	ApplicationReader
	SequenceStateWriter
	EnrichmentWriter
	SweepLister
}

// Clock abstracts time.Now for deterministic tests of time-driven logic.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
