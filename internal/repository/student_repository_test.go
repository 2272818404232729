package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/madrasah-registration/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var studentColumnNames = []string{"id", "student_code", "application_id", "guardian_email", "guardian_name", "guardian_phone",
	"first_name", "last_name", "track", "assigned_group", "status", "payment_customer_id", "sibling_count",
	"activated_at", "activated_by", "activation_note", "created_at", "updated_at"}

func TestStudentRepositoryCreateReturnsStoreAssignedCode(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewStudentRepository(db)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO enrolled_students")).
		WithArgs(sqlmock.AnyArg(), "app-1", "parent@example.com", "Amina Khan", "+44", "Yusuf", "Khan", models.TrackMaktab, "group-a", models.StudentStatusPendingPayment, 2).
		WillReturnRows(sqlmock.NewRows([]string{"student_code", "created_at", "updated_at"}).AddRow("STU-00042", now, now))

	student := &models.EnrolledStudent{
		ApplicationID: "app-1",
		GuardianEmail: "parent@example.com",
		GuardianName:  "Amina Khan",
		GuardianPhone: "+44",
		FirstName:     "Yusuf",
		LastName:      "Khan",
		Track:         models.TrackMaktab,
		AssignedGroup: "group-a",
		SiblingCount:  2,
	}
	require.NoError(t, repo.Create(context.Background(), student))
	assert.NotEmpty(t, student.ID)
	assert.Equal(t, "STU-00042", student.Code)
	assert.Equal(t, models.StudentStatusPendingPayment, student.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewStudentRepository(db)
	rows := sqlmock.NewRows(studentColumnNames).
		AddRow("stu-1", "STU-1", "app-1", "p@example.com", "P", "", "A", "B", "hifz", "hifz", "pending_payment", nil, 3, nil, nil, nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrolled_students WHERE id = $1")).WithArgs("stu-1").WillReturnRows(rows)

	student, err := repo.FindByID(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, models.TrackHifz, student.Track)
	assert.Equal(t, 3, student.SiblingCount)

	mock.ExpectQuery(regexp.QuoteMeta("FROM enrolled_students WHERE id = $1")).WithArgs("missing").WillReturnError(sql.ErrNoRows)
	_, err = repo.FindByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryDeleteReportsMissingRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewStudentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM enrolled_students WHERE id = $1")).WithArgs("stu-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), "stu-1"))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM enrolled_students WHERE id = $1 AND status = $2")).
		WithArgs("stu-2", models.StudentStatusPendingPayment).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.DeleteWithStatus(context.Background(), "stu-2", models.StudentStatusPendingPayment)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryActivateGuardsStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewStudentRepository(db)
	activation := models.StudentActivation{ID: "stu-1", ActivatedBy: "admin-1", ActivatedAt: time.Now(), Note: "hardship"}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrolled_students")).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Activate(context.Background(), activation))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrolled_students")).WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Activate(context.Background(), activation)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositorySetPaymentCustomer(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewStudentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrolled_students SET payment_customer_id = $1")).
		WithArgs("cus_1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	require.NoError(t, repo.SetPaymentCustomer(context.Background(), []string{"a", "b"}, "cus_1"))
	require.NoError(t, repo.SetPaymentCustomer(context.Background(), nil, "cus_1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
