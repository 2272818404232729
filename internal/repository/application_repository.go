package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/madrasah-registration/internal/models"
)

const applicationColumns = `id, guardian_email, guardian_name, guardian_phone, child_first_name, child_last_name,
       child_date_of_birth, child_gender, track, medical_notes, status, reviewed_at, reviewed_by,
       rejection_reason, assigned_group, created_at, updated_at`

// ApplicationRepository persists registration applications.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs the repository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// GetByID fetches an application by identifier.
func (r *ApplicationRepository) GetByID(ctx context.Context, id string) (*models.PendingApplication, error) {
	query := `SELECT ` + applicationColumns + ` FROM registration_applications WHERE id = $1`
	var app models.PendingApplication
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		return nil, err
	}
	return &app, nil
}

// ListByIDs fetches the given applications. Missing ids are simply absent from the result.
func (r *ApplicationRepository) ListByIDs(ctx context.Context, ids []string) ([]models.PendingApplication, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + applicationColumns + ` FROM registration_applications WHERE id = ANY($1)`
	var apps []models.PendingApplication
	if err := r.db.SelectContext(ctx, &apps, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return apps, nil
}

// ApplyDecision moves an application from decision.From to decision.To. The
// update only matches while the row still has status From; sql.ErrNoRows is
// returned when another reviewer got there first.
func (r *ApplicationRepository) ApplyDecision(ctx context.Context, decision models.ApplicationDecision) error {
	const query = `UPDATE registration_applications
	SET status = :to_status, reviewed_by = :reviewed_by, reviewed_at = :reviewed_at,
	    assigned_group = :assigned_group, rejection_reason = :rejection_reason, updated_at = :updated_at
	WHERE id = :id AND status = :from_status`
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":               decision.ID,
		"from_status":      decision.From,
		"to_status":        decision.To,
		"reviewed_by":      decision.ReviewedBy,
		"reviewed_at":      decision.ReviewedAt,
		"assigned_group":   decision.AssignedGroup,
		"rejection_reason": decision.RejectionReason,
		"updated_at":       time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check application update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RevertToPending undoes a review written with status from, clearing the review columns.
func (r *ApplicationRepository) RevertToPending(ctx context.Context, id string, from models.ApplicationStatus) error {
	const query = `UPDATE registration_applications
	SET status = $1, reviewed_by = NULL, reviewed_at = NULL, assigned_group = NULL, rejection_reason = NULL, updated_at = $2
	WHERE id = $3 AND status = $4`
	result, err := r.db.ExecContext(ctx, query, models.ApplicationStatusPending, time.Now().UTC(), id, from)
	if err != nil {
		return fmt.Errorf("revert application status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check application revert rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
