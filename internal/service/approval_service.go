package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/noah-isme/madrasah-registration/internal/models"
	appErrors "github.com/noah-isme/madrasah-registration/pkg/errors"
	"github.com/noah-isme/madrasah-registration/pkg/lock"
)

// Orchestrator operation names used in metrics and spans.
const (
	opApproveSingle      = "approve_single"
	opApproveGroup       = "approve_group"
	opReject             = "reject"
	opManualApprove      = "manual_approve"
	opManualApproveGroup = "manual_approve_group"
	opCancel             = "cancel_registration"
	opResendPaymentLink  = "resend_payment_link"
)

type applicationStore interface {
	GetByID(ctx context.Context, id string) (*models.PendingApplication, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.PendingApplication, error)
	ApplyDecision(ctx context.Context, decision models.ApplicationDecision) error
	RevertToPending(ctx context.Context, id string, from models.ApplicationStatus) error
}

type enrolledStudentStore interface {
	FindByID(ctx context.Context, id string) (*models.EnrolledStudent, error)
	DeleteWithStatus(ctx context.Context, id string, status models.StudentStatus) error
	Activate(ctx context.Context, activation models.StudentActivation) error
}

type studentProvisioner interface {
	CreateStudent(ctx context.Context, app *models.PendingApplication, group string, siblingCount int) (*models.EnrolledStudent, error)
	Compensate(ctx context.Context, studentID string) error
}

type sessionIssuer interface {
	IssueSession(ctx context.Context, req IssueSessionRequest) (*models.PaymentSession, error)
}

type guardianNotifier interface {
	SendPaymentLink(ctx context.Context, notice PaymentLinkNotice) error
	SendApprovalConfirmation(ctx context.Context, notice ApprovalConfirmationNotice) error
	SendRejection(ctx context.Context, notice RejectionNotice) error
}

type auditWriter interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// ApprovalResult is returned by the approve operations. Warnings describe
// payment or email work that failed after the enrollment was committed.
type ApprovalResult struct {
	Students        []models.EnrolledStudent `json:"students"`
	PaymentSessions []models.PaymentSession  `json:"payment_sessions"`
	Warnings        []appErrors.Warning      `json:"-"`
}

// DecisionResult is returned by Reject.
type DecisionResult struct {
	Application *models.PendingApplication `json:"application"`
	Warnings    []appErrors.Warning        `json:"-"`
}

// ActivationResult is returned by ManualApprove.
type ActivationResult struct {
	Student  *models.EnrolledStudent `json:"student"`
	Warnings []appErrors.Warning     `json:"-"`
}

// BatchResult reports a per-student batch without group rollback.
type BatchResult struct {
	Activated []string                    `json:"activated"`
	Failed    map[string]*appErrors.Error `json:"failed,omitempty"`
	Warnings  []appErrors.Warning         `json:"-"`
}

// PaymentLinkResult is returned by ResendPaymentLink.
type PaymentLinkResult struct {
	Session  *models.PaymentSession `json:"session"`
	Warnings []appErrors.Warning    `json:"-"`
}

// ApprovalService coordinates provisioning, payment and notification for
// registration decisions. Store writes that precede a failure are undone
// before the error is returned.
type ApprovalService struct {
	applications applicationStore
	students     enrolledStudentStore
	provisioner  studentProvisioner
	payments     sessionIssuer
	notifier     guardianNotifier
	audit        auditWriter
	locker       lock.Locker
	metrics      *MetricsService
	tracer       trace.Tracer
	logger       *zap.Logger
	now          func() time.Time
}

// ApprovalDeps groups the collaborators of ApprovalService.
type ApprovalDeps struct {
	Applications applicationStore
	Students     enrolledStudentStore
	Provisioner  studentProvisioner
	Payments     sessionIssuer
	Notifier     guardianNotifier
	Audit        auditWriter
	Locker       lock.Locker
	Metrics      *MetricsService
	Tracing      trace.TracerProvider // defaults to the global provider
	Logger       *zap.Logger
}

// NewApprovalService constructs the orchestrator.
func NewApprovalService(deps ApprovalDeps) *ApprovalService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	locker := deps.Locker
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	return &ApprovalService{
		applications: deps.Applications,
		students:     deps.Students,
		provisioner:  deps.Provisioner,
		payments:     deps.Payments,
		notifier:     deps.Notifier,
		audit:        deps.Audit,
		locker:       locker,
		metrics:      deps.Metrics,
		tracer:       newTracer(deps.Tracing),
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// ApproveSingle provisions a student for one pending application and marks it approved.
func (s *ApprovalService) ApproveSingle(ctx context.Context, applicationID, reviewerID, assignedGroup string, siblingCount int) (result *ApprovalResult, err error) {
	ctx, finish := s.begin(ctx, opApproveSingle, attribute.String("registration.application_id", applicationID))
	defer func() { finish(err) }()

	if strings.TrimSpace(applicationID) == "" || strings.TrimSpace(reviewerID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "application id and reviewer are required")
	}
	release, err := s.lock(ctx, applicationLockKey(applicationID))
	if err != nil {
		return nil, err
	}
	defer s.unlock(ctx, release)

	app, err := s.applications.GetByID(ctx, applicationID)
	if err != nil {
		return nil, storeReadError(err, "application "+applicationID)
	}
	if app.Status != models.ApplicationStatusPending {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("application %s is %s, expected pending", app.ID, app.Status))
	}
	group, err := resolveGroup(app, assignedGroup)
	if err != nil {
		return nil, err
	}
	if siblingCount < 1 {
		siblingCount = 1
	}

	tx := newSaga(opApproveSingle, s.logger)
	student, err := s.createStudent(ctx, tx, app, group, siblingCount)
	if err != nil {
		return nil, s.rollback(ctx, tx, err)
	}
	if err := s.approve(ctx, tx, app, reviewerID, group); err != nil {
		return nil, s.rollback(ctx, tx, err)
	}

	s.recordAudit(ctx, reviewerID, models.AuditActionApplicationApprove, models.AuditResourceApplication, app.ID,
		map[string]interface{}{"status": app.Status},
		map[string]interface{}{"status": models.ApplicationStatusApproved, "assigned_group": group, "student_id": student.ID, "sibling_count": siblingCount},
	)

	result = &ApprovalResult{Students: []models.EnrolledStudent{*student}}
	s.issuePayments(ctx, result, siblingCount)
	return result, nil
}

// ApproveGroup approves sibling applications from one guardian as a unit.
// Students are created one at a time in input order; any failure before every
// application is approved rolls the whole call back.
func (s *ApprovalService) ApproveGroup(ctx context.Context, applicationIDs []string, reviewerID string, groupAssignments map[string]string, siblingCount int) (result *ApprovalResult, err error) {
	ctx, finish := s.begin(ctx, opApproveGroup, attribute.Int("registration.applications", len(applicationIDs)))
	defer func() { finish(err) }()

	if len(applicationIDs) == 0 || strings.TrimSpace(reviewerID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "application ids and reviewer are required")
	}
	if dup := firstDuplicate(applicationIDs); dup != "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "application "+dup+" listed more than once")
	}

	keys := make([]string, 0, len(applicationIDs))
	for _, id := range applicationIDs {
		keys = append(keys, applicationLockKey(id))
	}
	release, err := s.lock(ctx, keys...)
	if err != nil {
		return nil, err
	}
	defer s.unlock(ctx, release)

	apps, err := s.loadGroup(ctx, applicationIDs)
	if err != nil {
		return nil, err
	}
	groups := make([]string, len(apps))
	var missing []string
	email := apps[0].NormalizedGuardianEmail()
	for i := range apps {
		app := &apps[i]
		if app.Status != models.ApplicationStatusPending {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("application %s is %s, expected pending", app.ID, app.Status))
		}
		if app.NormalizedGuardianEmail() != email {
			return nil, appErrors.Clone(appErrors.ErrValidation, "all applications in a group must share the guardian email")
		}
		group, err := resolveGroup(app, groupAssignments[app.ID])
		if err != nil {
			missing = append(missing, app.ID)
			continue
		}
		groups[i] = group
	}
	if len(missing) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "group assignment required for applications: "+strings.Join(missing, ", "))
	}

	totalSiblings := siblingCount
	if len(apps) > totalSiblings {
		totalSiblings = len(apps)
	}

	tx := newSaga(opApproveGroup, s.logger)
	students := make([]models.EnrolledStudent, 0, len(apps))
	for i := range apps {
		student, err := s.createStudent(ctx, tx, &apps[i], groups[i], totalSiblings)
		if err != nil {
			return nil, s.rollback(ctx, tx, err)
		}
		students = append(students, *student)
	}
	for i := range apps {
		if err := s.approve(ctx, tx, &apps[i], reviewerID, groups[i]); err != nil {
			return nil, s.rollback(ctx, tx, err)
		}
	}

	for i := range apps {
		s.recordAudit(ctx, reviewerID, models.AuditActionApplicationApprove, models.AuditResourceApplication, apps[i].ID,
			map[string]interface{}{"status": apps[i].Status},
			map[string]interface{}{"status": models.ApplicationStatusApproved, "assigned_group": groups[i], "student_id": students[i].ID, "sibling_count": totalSiblings},
		)
	}

	result = &ApprovalResult{Students: students}
	s.issuePayments(ctx, result, totalSiblings)
	return result, nil
}

// Reject declines a pending application. A reason is mandatory.
func (s *ApprovalService) Reject(ctx context.Context, applicationID, reviewerID, reason string) (result *DecisionResult, err error) {
	ctx, finish := s.begin(ctx, opReject, attribute.String("registration.application_id", applicationID))
	defer func() { finish(err) }()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rejection reason is required")
	}
	if strings.TrimSpace(applicationID) == "" || strings.TrimSpace(reviewerID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "application id and reviewer are required")
	}
	release, err := s.lock(ctx, applicationLockKey(applicationID))
	if err != nil {
		return nil, err
	}
	defer s.unlock(ctx, release)

	app, err := s.applications.GetByID(ctx, applicationID)
	if err != nil {
		return nil, storeReadError(err, "application "+applicationID)
	}
	if !app.Status.CanTransitionTo(models.ApplicationStatusRejected) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("application %s is %s and cannot be rejected", app.ID, app.Status))
	}

	now := s.now()
	decision := models.ApplicationDecision{
		ID:              app.ID,
		From:            app.Status,
		To:              models.ApplicationStatusRejected,
		ReviewedBy:      &reviewerID,
		ReviewedAt:      &now,
		RejectionReason: &reason,
	}
	if err := s.applications.ApplyDecision(ctx, decision); err != nil {
		return nil, transitionError(err, app.ID)
	}
	previous := app.Status
	app.Status = models.ApplicationStatusRejected
	app.ReviewedBy = &reviewerID
	app.ReviewedAt = &now
	app.RejectionReason = &reason

	s.recordAudit(ctx, reviewerID, models.AuditActionApplicationReject, models.AuditResourceApplication, app.ID,
		map[string]interface{}{"status": previous},
		map[string]interface{}{"status": app.Status, "reason": reason},
	)

	result = &DecisionResult{Application: app}
	notice := RejectionNotice{GuardianEmail: app.GuardianEmail, GuardianName: app.GuardianName, ChildName: app.ChildName(), Reason: reason}
	if err := s.notifier.SendRejection(context.WithoutCancel(ctx), notice); err != nil {
		result.Warnings = append(result.Warnings, s.warn("rejection email not sent", err, zap.String("application_id", app.ID)))
	}
	return result, nil
}

// ManualApprove activates a pending_payment student without payment. The
// justification is recorded with the activation and in the audit log.
func (s *ApprovalService) ManualApprove(ctx context.Context, studentID, approverID, justification string) (result *ActivationResult, err error) {
	ctx, finish := s.begin(ctx, opManualApprove, attribute.String("registration.student_id", studentID))
	defer func() { finish(err) }()
	return s.manualApprove(ctx, studentID, approverID, justification)
}

// ManualApproveGroup applies ManualApprove to every id. Failures are reported
// per student; students already activated stay active.
func (s *ApprovalService) ManualApproveGroup(ctx context.Context, studentIDs []string, approverID, justification string) (result *BatchResult, err error) {
	ctx, finish := s.begin(ctx, opManualApproveGroup, attribute.Int("registration.students", len(studentIDs)))
	defer func() { finish(err) }()

	if len(studentIDs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student ids are required")
	}
	if err := validateActivation(approverID, justification); err != nil {
		return nil, err
	}

	result = &BatchResult{Activated: []string{}}
	seen := make(map[string]struct{}, len(studentIDs))
	for _, id := range studentIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		activation, err := s.manualApprove(ctx, id, approverID, justification)
		if err != nil {
			if result.Failed == nil {
				result.Failed = make(map[string]*appErrors.Error)
			}
			result.Failed[id] = appErrors.FromError(err)
			continue
		}
		result.Activated = append(result.Activated, id)
		result.Warnings = append(result.Warnings, activation.Warnings...)
	}
	return result, nil
}

// CancelRegistration deletes a student that has not paid yet. The originating
// application is left as it is.
func (s *ApprovalService) CancelRegistration(ctx context.Context, studentID, cancellerID, reason string) (err error) {
	ctx, finish := s.begin(ctx, opCancel, attribute.String("registration.student_id", studentID))
	defer func() { finish(err) }()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return appErrors.Clone(appErrors.ErrValidation, "cancellation reason is required")
	}
	if strings.TrimSpace(studentID) == "" || strings.TrimSpace(cancellerID) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "student id and canceller are required")
	}
	release, err := s.lock(ctx, studentLockKey(studentID))
	if err != nil {
		return err
	}
	defer s.unlock(ctx, release)

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		return storeReadError(err, "student "+studentID)
	}
	if student.Status != models.StudentStatusPendingPayment {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s is %s; only pending_payment registrations can be cancelled", student.ID, student.Status))
	}
	if err := s.students.DeleteWithStatus(ctx, student.ID, models.StudentStatusPendingPayment); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrConflict, "student "+student.ID+" changed while cancelling")
		}
		return appErrors.WrapAs(appErrors.ErrStoreWrite, err, "failed to cancel student "+student.ID)
	}

	s.recordAudit(ctx, cancellerID, models.AuditActionStudentCancel, models.AuditResourceStudent, student.ID,
		student,
		map[string]interface{}{"deleted": true, "reason": reason},
	)
	return nil
}

// ResendPaymentLink issues a fresh payment session for a pending_payment
// student with the sibling count stored at approval and emails it again.
func (s *ApprovalService) ResendPaymentLink(ctx context.Context, studentID string) (result *PaymentLinkResult, err error) {
	ctx, finish := s.begin(ctx, opResendPaymentLink, attribute.String("registration.student_id", studentID))
	defer func() { finish(err) }()

	if strings.TrimSpace(studentID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	release, err := s.lock(ctx, studentLockKey(studentID))
	if err != nil {
		return nil, err
	}
	defer s.unlock(ctx, release)

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		return nil, storeReadError(err, "student "+studentID)
	}
	if student.Status != models.StudentStatusPendingPayment {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s is %s; payment links are only sent for pending_payment", student.ID, student.Status))
	}

	refs := []models.StudentRef{student.Ref()}
	session, err := s.payments.IssueSession(ctx, IssueSessionRequest{
		Students:      refs,
		GuardianEmail: student.GuardianEmail,
		GuardianName:  student.GuardianName,
		Track:         student.Track,
		SiblingCount:  student.SiblingCount,
	})
	if err != nil {
		return nil, err
	}

	result = &PaymentLinkResult{Session: session}
	notice := PaymentLinkNotice{
		GuardianEmail: student.GuardianEmail,
		GuardianName:  student.GuardianName,
		GuardianPhone: student.GuardianPhone,
		Track:         student.Track,
		Students:      refs,
		Session:       *session,
	}
	if err := s.notifier.SendPaymentLink(context.WithoutCancel(ctx), notice); err != nil {
		result.Warnings = append(result.Warnings, s.warn("payment link email not sent", err, zap.String("student_id", student.ID)))
	}
	return result, nil
}

func (s *ApprovalService) manualApprove(ctx context.Context, studentID, approverID, justification string) (*ActivationResult, error) {
	if err := validateActivation(approverID, justification); err != nil {
		return nil, err
	}
	justification = strings.TrimSpace(justification)
	release, err := s.lock(ctx, studentLockKey(studentID))
	if err != nil {
		return nil, err
	}
	defer s.unlock(ctx, release)

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		return nil, storeReadError(err, "student "+studentID)
	}
	if !student.Status.CanTransitionTo(models.StudentStatusActive) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s is %s; only pending_payment students can be manually approved", student.ID, student.Status))
	}

	now := s.now()
	activation := models.StudentActivation{ID: student.ID, ActivatedBy: approverID, ActivatedAt: now, Note: justification}
	if err := s.students.Activate(ctx, activation); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student "+student.ID+" changed while approving")
		}
		return nil, appErrors.WrapAs(appErrors.ErrStoreWrite, err, "failed to activate student "+student.ID)
	}
	previous := student.Status
	student.Status = models.StudentStatusActive
	student.ActivatedBy = &approverID
	student.ActivatedAt = &now
	student.ActivationNote = &justification

	s.recordAudit(ctx, approverID, models.AuditActionStudentManualApprove, models.AuditResourceStudent, student.ID,
		map[string]interface{}{"status": previous},
		map[string]interface{}{"status": student.Status, "justification": justification},
	)

	result := &ActivationResult{Student: student}
	notice := ApprovalConfirmationNotice{
		GuardianEmail: student.GuardianEmail,
		GuardianName:  student.GuardianName,
		Track:         student.Track,
		Group:         student.AssignedGroup,
		Student:       student.Ref(),
	}
	if err := s.notifier.SendApprovalConfirmation(context.WithoutCancel(ctx), notice); err != nil {
		result.Warnings = append(result.Warnings, s.warn("approval confirmation email not sent", err, zap.String("student_id", student.ID)))
	}
	return result, nil
}

// issuePayments runs after the approval is committed. It issues one session
// and one notification per billing group; failures only add warnings.
func (s *ApprovalService) issuePayments(ctx context.Context, result *ApprovalResult, siblingCount int) {
	ctx = context.WithoutCancel(ctx)
	groups := models.GroupByBilling(result.Students)
	hasOtherTrack := len(groups) > 1
	for _, group := range groups {
		refs := group.Refs()
		session, err := s.payments.IssueSession(ctx, IssueSessionRequest{
			Students:      refs,
			GuardianEmail: group.GuardianEmail,
			GuardianName:  group.GuardianName,
			Track:         group.Track,
			SiblingCount:  siblingCount,
			HasOtherTrack: hasOtherTrack,
		})
		if err != nil {
			result.Warnings = append(result.Warnings, s.warn("payment session not issued, resend the payment link", err,
				zap.Strings("student_ids", group.StudentIDs()), zap.String("track", string(group.Track))))
			continue
		}
		result.PaymentSessions = append(result.PaymentSessions, *session)

		notice := PaymentLinkNotice{
			GuardianEmail: group.GuardianEmail,
			GuardianName:  group.GuardianName,
			GuardianPhone: group.Students[0].GuardianPhone,
			Track:         group.Track,
			Students:      refs,
			Session:       *session,
		}
		if err := s.notifier.SendPaymentLink(ctx, notice); err != nil {
			result.Warnings = append(result.Warnings, s.warn("payment link email not sent, resend the payment link", err,
				zap.String("session_id", session.SessionID)))
		}
	}
}

// createStudent provisions one student as a saga step undone by Compensate.
func (s *ApprovalService) createStudent(ctx context.Context, tx *saga, app *models.PendingApplication, group string, siblingCount int) (*models.EnrolledStudent, error) {
	var student *models.EnrolledStudent
	err := tx.Do(ctx, "create_student:"+app.ID,
		func(ctx context.Context) error {
			var err error
			student, err = s.provisioner.CreateStudent(ctx, app, group, siblingCount)
			return err
		},
		func(ctx context.Context) error {
			return s.provisioner.Compensate(ctx, student.ID)
		},
	)
	return student, err
}

// approve moves app to approved as a saga step undone by a guarded revert.
func (s *ApprovalService) approve(ctx context.Context, tx *saga, app *models.PendingApplication, reviewerID, group string) error {
	return tx.Do(ctx, "approve_application:"+app.ID,
		func(ctx context.Context) error {
			if err := s.applications.ApplyDecision(ctx, s.approvalDecision(app, reviewerID, group)); err != nil {
				return transitionError(err, app.ID)
			}
			return nil
		},
		func(ctx context.Context) error {
			return s.applications.RevertToPending(ctx, app.ID, models.ApplicationStatusApproved)
		},
	)
}

func (s *ApprovalService) approvalDecision(app *models.PendingApplication, reviewerID, group string) models.ApplicationDecision {
	now := s.now()
	return models.ApplicationDecision{
		ID:            app.ID,
		From:          models.ApplicationStatusPending,
		To:            models.ApplicationStatusApproved,
		ReviewedBy:    &reviewerID,
		ReviewedAt:    &now,
		AssignedGroup: &group,
	}
}

func (s *ApprovalService) loadGroup(ctx context.Context, ids []string) ([]models.PendingApplication, error) {
	found, err := s.applications.ListByIDs(ctx, ids)
	if err != nil {
		return nil, storeReadError(err, "applications")
	}
	byID := make(map[string]models.PendingApplication, len(found))
	for _, app := range found {
		byID[app.ID] = app
	}
	ordered := make([]models.PendingApplication, 0, len(ids))
	for _, id := range ids {
		app, ok := byID[id]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application "+id+" not found")
		}
		ordered = append(ordered, app)
	}
	return ordered, nil
}

// rollback unwinds tx and returns cause, or a compensation error wrapping both
// cause and the undo failure.
func (s *ApprovalService) rollback(ctx context.Context, tx *saga, cause error) error {
	steps := tx.Len()
	if steps == 0 {
		return cause
	}
	undoErr := tx.Compensate(ctx)
	if undoErr == nil {
		s.logger.Info("registration rolled back", zap.Int("steps", steps), zap.NamedError("cause", cause))
		return cause
	}
	s.logger.Error("rollback incomplete, manual cleanup required", zap.Int("steps", steps), zap.NamedError("cause", cause), zap.Error(undoErr))
	return appErrors.WrapAs(appErrors.ErrCompensation, errors.Join(cause, undoErr), "")
}

func (s *ApprovalService) lock(ctx context.Context, keys ...string) (lock.Release, error) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	release, err := lock.AcquireAll(ctx, s.locker, sorted)
	if err == nil {
		return release, nil
	}
	if errors.Is(err, lock.ErrLocked) {
		return nil, appErrors.WrapAs(appErrors.ErrConflict, err, "record is being processed by another request")
	}
	// The status-guarded updates still prevent double approval without the lock.
	s.logger.Warn("approval lock unavailable, continuing with status guard only", zap.Error(err))
	return func(context.Context) error { return nil }, nil
}

func (s *ApprovalService) unlock(ctx context.Context, release lock.Release) {
	if err := release(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn("failed to release approval lock", zap.Error(err))
	}
}

func (s *ApprovalService) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "approval."+op)
	span.SetAttributes(attrs...)
	return ctx, func(err error) {
		recordSpanError(span, err)
		span.End()
		s.metrics.ObserveOperation(op, err, time.Since(start))
		if err != nil {
			fields := []zap.Field{zap.String("operation", op), zap.Error(err)}
			if appErrors.HasCode(err, appErrors.ErrCompensation.Code) {
				s.logger.Error("registration operation left partial state", fields...)
				return
			}
			s.logger.Info("registration operation failed", fields...)
		}
	}
}

func (s *ApprovalService) warn(msg string, err error, fields ...zap.Field) appErrors.Warning {
	s.logger.Warn(msg, append(fields, zap.Error(err))...)
	return appErrors.NewWarning(msg, err)
}

func (s *ApprovalService) recordAudit(ctx context.Context, actorID, action, resource, resourceID string, oldValues, newValues interface{}) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		ActorID:    &actorID,
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
	}
	if oldValues != nil {
		entry.OldValues, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		entry.NewValues, _ = json.Marshal(newValues)
	}
	if err := s.audit.Create(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Warn("failed to persist audit log", zap.String("action", action), zap.String("resource_id", resourceID), zap.Error(err))
	}
}

func resolveGroup(app *models.PendingApplication, requested string) (string, error) {
	if fixed, ok := app.Track.FixedGroup(); ok {
		return fixed, nil
	}
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "assigned group is required for application "+app.ID)
	}
	return requested, nil
}

func validateActivation(approverID, justification string) error {
	if strings.TrimSpace(justification) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "justification is required for manual approval")
	}
	if strings.TrimSpace(approverID) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "approver is required")
	}
	return nil
}

func transitionError(err error, applicationID string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrConflict, "application "+applicationID+" was already reviewed")
	}
	return appErrors.WrapAs(appErrors.ErrStoreWrite, err, "failed to update application "+applicationID)
}

func storeReadError(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, what+" not found")
	}
	return appErrors.WrapAs(appErrors.ErrStoreWrite, err, "failed to load "+what)
}

func firstDuplicate(ids []string) string {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return id
		}
		seen[id] = struct{}{}
	}
	return ""
}

func applicationLockKey(id string) string { return "application:" + id }

func studentLockKey(id string) string { return "student:" + id }
