package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/madrasah-registration/internal/models"
)

const studentColumns = `id, student_code, application_id, guardian_email, guardian_name, guardian_phone,
       first_name, last_name, track, assigned_group, status, payment_customer_id, sibling_count,
       activated_at, activated_by, activation_note, created_at, updated_at`

// StudentRepository manages persistence for enrolled student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// Create inserts a student. The store assigns student_code; it is written back
// onto the model together with the timestamps.
func (r *StudentRepository) Create(ctx context.Context, student *models.EnrolledStudent) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	if student.Status == "" {
		student.Status = models.StudentStatusPendingPayment
	}
	const query = `INSERT INTO enrolled_students
	(id, application_id, guardian_email, guardian_name, guardian_phone, first_name, last_name, track,
	 assigned_group, status, sibling_count)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	RETURNING student_code, created_at, updated_at`
	row := r.db.QueryRowxContext(ctx, query,
		student.ID,
		student.ApplicationID,
		student.GuardianEmail,
		student.GuardianName,
		student.GuardianPhone,
		student.FirstName,
		student.LastName,
		student.Track,
		student.AssignedGroup,
		student.Status,
		student.SiblingCount,
	)
	if err := row.Scan(&student.Code, &student.CreatedAt, &student.UpdatedAt); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// FindByID returns a student by id.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.EnrolledStudent, error) {
	query := `SELECT ` + studentColumns + ` FROM enrolled_students WHERE id = $1`
	var student models.EnrolledStudent
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// Delete removes a student unconditionally. sql.ErrNoRows means nothing was deleted.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM enrolled_students WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return expectAffected(result, "delete student")
}

// DeleteWithStatus removes a student only while it still has the given status.
func (r *StudentRepository) DeleteWithStatus(ctx context.Context, id string, status models.StudentStatus) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM enrolled_students WHERE id = $1 AND status = $2`, id, status)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return expectAffected(result, "delete student")
}

// Activate moves a pending_payment student to active, recording who waived the fee.
func (r *StudentRepository) Activate(ctx context.Context, activation models.StudentActivation) error {
	const query = `UPDATE enrolled_students
	SET status = :active, activated_by = :activated_by, activated_at = :activated_at,
	    activation_note = :note, updated_at = :updated_at
	WHERE id = :id AND status = :pending`
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":           activation.ID,
		"active":       models.StudentStatusActive,
		"pending":      models.StudentStatusPendingPayment,
		"activated_by": activation.ActivatedBy,
		"activated_at": activation.ActivatedAt,
		"note":         activation.Note,
		"updated_at":   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("activate student: %w", err)
	}
	return expectAffected(result, "activate student")
}

// SetPaymentCustomer records the billing customer for the given students.
func (r *StudentRepository) SetPaymentCustomer(ctx context.Context, ids []string, customerID string) error {
	if len(ids) == 0 {
		return nil
	}
	const query = `UPDATE enrolled_students SET payment_customer_id = $1, updated_at = $2 WHERE id = ANY($3)`
	if _, err := r.db.ExecContext(ctx, query, customerID, time.Now().UTC(), pq.Array(ids)); err != nil {
		return fmt.Errorf("set payment customer: %w", err)
	}
	return nil
}

func expectAffected(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check %s rows: %w", op, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
