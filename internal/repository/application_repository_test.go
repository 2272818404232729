package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/madrasah-registration/internal/models"
)

var applicationColumnNames = []string{"id", "guardian_email", "guardian_name", "guardian_phone", "child_first_name", "child_last_name",
	"child_date_of_birth", "child_gender", "track", "medical_notes", "status", "reviewed_at", "reviewed_by",
	"rejection_reason", "assigned_group", "created_at", "updated_at"}

func TestApplicationRepositoryGetAndList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM registration_applications WHERE id = $1")).
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows(applicationColumnNames).
			AddRow("app-1", "Parent@Example.com", "Parent", "", "Yusuf", "Khan", nil, "male", "maktab", nil, "pending", nil, nil, nil, nil, now, now))

	app, err := repo.GetByID(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusPending, app.Status)
	assert.Equal(t, "parent@example.com", app.NormalizedGuardianEmail())

	mock.ExpectQuery(regexp.QuoteMeta("FROM registration_applications WHERE id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(applicationColumnNames).
			AddRow("app-1", "p@example.com", "P", "", "A", "K", nil, "", "maktab", nil, "pending", nil, nil, nil, nil, now, now).
			AddRow("app-2", "p@example.com", "P", "", "B", "K", nil, "", "hifz", nil, "pending", nil, nil, nil, nil, now, now))

	apps, err := repo.ListByIDs(context.Background(), []string{"app-1", "app-2"})
	require.NoError(t, err)
	assert.Len(t, apps, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryApplyDecisionIsStatusGuarded(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	reviewer := "admin-1"
	group := "group-a"
	now := time.Now()
	decision := models.ApplicationDecision{
		ID:            "app-1",
		From:          models.ApplicationStatusPending,
		To:            models.ApplicationStatusApproved,
		ReviewedBy:    &reviewer,
		ReviewedAt:    &now,
		AssignedGroup: &group,
	}

	mock.ExpectExec(`UPDATE registration_applications\s+SET status = `).
		WithArgs(models.ApplicationStatusApproved, &reviewer, &now, &group, sqlmock.AnyArg(), sqlmock.AnyArg(), "app-1", models.ApplicationStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.ApplyDecision(context.Background(), decision))

	mock.ExpectExec(`UPDATE registration_applications`).WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.ApplyDecision(context.Background(), decision)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryRevertToPending(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("SET status = $1, reviewed_by = NULL")).
		WithArgs(models.ApplicationStatusPending, sqlmock.AnyArg(), "app-1", models.ApplicationStatusApproved).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.RevertToPending(context.Background(), "app-1", models.ApplicationStatusApproved))

	mock.ExpectExec(regexp.QuoteMeta("SET status = $1, reviewed_by = NULL")).
		WillReturnError(errors.New("connection reset"))
	err := repo.RevertToPending(context.Background(), "app-2", models.ApplicationStatusApproved)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "revert application status")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAuditRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).WillReturnResult(sqlmock.NewResult(1, 1))

	actor := "admin-1"
	entry := &models.AuditLog{ActorID: &actor, Action: models.AuditActionStudentCancel, Resource: models.AuditResourceStudent, NewValues: []byte(`{"reason":"moved"}`)}
	require.NoError(t, repo.Create(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}
