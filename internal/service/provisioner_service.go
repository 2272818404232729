package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/madrasah-registration/internal/models"
	appErrors "github.com/noah-isme/madrasah-registration/pkg/errors"
)

type studentWriter interface {
	Create(ctx context.Context, student *models.EnrolledStudent) error
	Delete(ctx context.Context, id string) error
}

// Provisioner turns applications into enrolled student records and owns their rollback.
type Provisioner struct {
	students studentWriter
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewProvisioner constructs a Provisioner.
func NewProvisioner(students studentWriter, metrics *MetricsService, logger *zap.Logger) *Provisioner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provisioner{students: students, metrics: metrics, logger: logger}
}

// CreateStudent inserts a pending_payment student for app. The store assigns the student code.
func (p *Provisioner) CreateStudent(ctx context.Context, app *models.PendingApplication, group string, siblingCount int) (*models.EnrolledStudent, error) {
	if siblingCount < 1 {
		siblingCount = 1
	}
	student := &models.EnrolledStudent{
		ApplicationID: app.ID,
		GuardianEmail: app.NormalizedGuardianEmail(),
		GuardianName:  app.GuardianName,
		GuardianPhone: app.GuardianPhone,
		FirstName:     app.ChildFirstName,
		LastName:      app.ChildLastName,
		Track:         app.Track,
		AssignedGroup: group,
		Status:        models.StudentStatusPendingPayment,
		SiblingCount:  siblingCount,
	}
	if err := p.students.Create(ctx, student); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrStoreWrite, err, "failed to create student for application "+app.ID)
	}
	p.logger.Debug("student provisioned",
		zap.String("student_id", student.ID),
		zap.String("student_code", student.Code),
		zap.String("application_id", app.ID),
	)
	return student, nil
}

// Compensate deletes a student created earlier in a failed operation. It is
// not retried: a failure is logged as an orphaned record for manual cleanup.
func (p *Provisioner) Compensate(ctx context.Context, studentID string) error {
	err := p.students.Delete(ctx, studentID)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
	}
	p.metrics.RecordCompensation(err)
	if err != nil {
		p.logger.Error("orphaned student requires manual cleanup",
			zap.String("student_id", studentID),
			zap.String("status", string(models.StudentStatusPendingPayment)),
			zap.Error(err),
		)
		return appErrors.WrapAs(appErrors.ErrCompensation, err, "failed to remove student "+studentID)
	}
	p.logger.Info("student rolled back", zap.String("student_id", studentID))
	return nil
}
