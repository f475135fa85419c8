// Package repository provides data access for loan application records.
// The follow-up engine reads snapshots from here and writes back sequencing
// state and enrichment results; everything else about the record is owned by
// the intake side of the system.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when an application does not exist.
var ErrNotFound = errors.New("application not found")

// Application is a read view of a loan application record.
type Application struct {
	ID    uuid.UUID
	Email string
	Phone string

	FirstName    string
	LastName     string
	BusinessName string

	Industry             *string
	TimeInBusinessMonths *int
	MonthlyRevenue       *float64
	RequestedAmount      float64
	CreditScoreTier      *string
	HasOutstandingDebt   bool
	StatedUrgency        *string

	IntakeCompleted          bool
	FullApplicationCompleted bool
	PlaidItemID              *string

	ContactAttempts     int
	LastContactResponse *string
	AssignedAgentID     *uuid.UUID
	AssignedAgentEmail  *string
	OptedOut            bool

	FollowUpSequence    *string
	FollowUpStage       int
	FollowUpStartedAt   *time.Time
	LastFollowUpAt      *time.Time
	FollowUpPausedUntil *time.Time

	LastActivityAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasFinancialConnection reports whether a financial account aggregator item
// is linked to this application.
func (a Application) HasFinancialConnection() bool {
	return a.PlaidItemID != nil && *a.PlaidItemID != ""
}

// UpdateSequenceStateParams carries a sequencing-state write-back.
type UpdateSequenceStateParams struct {
	Sequence          string
	Stage             int
	LastFollowUpAt    time.Time
	FollowUpStartedAt *time.Time
}

// SaveEnrichmentParams persists scoring output onto the application record.
type SaveEnrichmentParams struct {
	LeadScore           int
	QualityTier         string
	Insights            []string
	RiskFactors         []string
	RecommendedProducts []string
	UrgencyLevel        string
	NextBestAction      string
	EnrichedAt          time.Time
}

// Repository provides pgx-backed access to application records.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new application repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const applicationColumns = `
	id, email, phone, first_name, last_name, business_name,
	industry, time_in_business_months, monthly_revenue, requested_amount,
	credit_score_tier, has_outstanding_debt, stated_urgency,
	intake_completed, full_application_completed, plaid_item_id,
	contact_attempts, last_contact_response, assigned_agent_id, assigned_agent_email, opted_out,
	follow_up_sequence, follow_up_stage, follow_up_started_at, last_follow_up_at, follow_up_paused_until,
	last_activity_at, created_at, updated_at`

// GetByID loads a single application snapshot.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Application, error) {
	row := r.pool.QueryRow(ctx, `SELECT`+applicationColumns+` FROM applications WHERE id = $1`, id)
	app, err := scanApplication(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Application{}, ErrNotFound
		}
		return Application{}, err
	}
	return app, nil
}

// UpdateSequenceState writes back the sequencing state proposed by the engine.
// When FollowUpStartedAt is nil the existing value is preserved.
func (r *Repository) UpdateSequenceState(ctx context.Context, id uuid.UUID, params UpdateSequenceStateParams) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE applications
		SET follow_up_sequence = $2,
		    follow_up_stage = $3,
		    last_follow_up_at = $4,
		    follow_up_started_at = COALESCE($5, follow_up_started_at, $4),
		    updated_at = now()
		WHERE id = $1`,
		id, params.Sequence, params.Stage, params.LastFollowUpAt, params.FollowUpStartedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetSequence switches an application to a new sequence at stage zero.
// Changing the sequence name resets stage semantics.
func (r *Repository) ResetSequence(ctx context.Context, id uuid.UUID, sequence string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE applications
		SET follow_up_sequence = $2,
		    follow_up_stage = 0,
		    follow_up_started_at = NULL,
		    last_follow_up_at = NULL,
		    updated_at = now()
		WHERE id = $1`,
		id, sequence)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementContactAttempts bumps the contact attempt counter after an
// outreach action fires.
func (r *Repository) IncrementContactAttempts(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE applications
		SET contact_attempts = contact_attempts + 1, updated_at = now()
		WHERE id = $1`, id)
	return err
}

// SaveEnrichment persists scoring output onto the ai_* columns.
func (r *Repository) SaveEnrichment(ctx context.Context, id uuid.UUID, params SaveEnrichmentParams) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE applications
		SET ai_lead_score = $2,
		    ai_quality_tier = $3,
		    ai_insights = $4,
		    ai_risk_factors = $5,
		    ai_recommended_products = $6,
		    ai_urgency_level = $7,
		    ai_next_best_action = $8,
		    ai_enriched_at = $9,
		    updated_at = now()
		WHERE id = $1`,
		id, params.LeadScore, params.QualityTier, params.Insights, params.RiskFactors,
		params.RecommendedProducts, params.UrgencyLevel, params.NextBestAction, params.EnrichedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListWithActiveSequences returns applications that have started a follow-up
// sequence and are not paused or opted out, for the periodic due check.
func (r *Repository) ListWithActiveSequences(ctx context.Context, limit int) ([]Application, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+applicationColumns+`
		FROM applications
		WHERE follow_up_sequence IS NOT NULL
		  AND opted_out = false
		  AND (follow_up_paused_until IS NULL OR follow_up_paused_until <= now())
		ORDER BY last_follow_up_at ASC NULLS FIRST
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectApplications(rows)
}

// ListAbandonmentCandidates returns open applications eligible for the
// abandonment sweep. Paused and opted-out records are filtered here so the
// detector never sees them.
func (r *Repository) ListAbandonmentCandidates(ctx context.Context, limit int) ([]Application, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+applicationColumns+`
		FROM applications
		WHERE opted_out = false
		  AND (follow_up_paused_until IS NULL OR follow_up_paused_until <= now())
		ORDER BY updated_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectApplications(rows)
}

// ListOpenForRescore returns applications for the batch rescore backfill.
// A limit of zero or less means no cap: LIMIT NULL returns every row.
func (r *Repository) ListOpenForRescore(ctx context.Context, limit int) ([]Application, error) {
	var cap any
	if limit > 0 {
		cap = limit
	}
	rows, err := r.pool.Query(ctx, `
		SELECT`+applicationColumns+`
		FROM applications
		WHERE opted_out = false
		ORDER BY created_at DESC
		LIMIT $1`, cap)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectApplications(rows)
}

func collectApplications(rows pgx.Rows) ([]Application, error) {
	var apps []Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

func scanApplication(row pgx.Row) (Application, error) {
	var app Application
	err := row.Scan(
		&app.ID, &app.Email, &app.Phone, &app.FirstName, &app.LastName, &app.BusinessName,
		&app.Industry, &app.TimeInBusinessMonths, &app.MonthlyRevenue, &app.RequestedAmount,
		&app.CreditScoreTier, &app.HasOutstandingDebt, &app.StatedUrgency,
		&app.IntakeCompleted, &app.FullApplicationCompleted, &app.PlaidItemID,
		&app.ContactAttempts, &app.LastContactResponse, &app.AssignedAgentID, &app.AssignedAgentEmail, &app.OptedOut,
		&app.FollowUpSequence, &app.FollowUpStage, &app.FollowUpStartedAt, &app.LastFollowUpAt, &app.FollowUpPausedUntil,
		&app.LastActivityAt, &app.CreatedAt, &app.UpdatedAt,
	)
	return app, err
}
