package service

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/madrasah-registration/internal/models"
	appErrors "github.com/noah-isme/madrasah-registration/pkg/errors"
	"github.com/noah-isme/madrasah-registration/pkg/jobs"
	"github.com/noah-isme/madrasah-registration/pkg/mailer"
	"github.com/noah-isme/madrasah-registration/pkg/sms"
)

// Notification job types.
const (
	NotificationPaymentLink          = "payment_link"
	NotificationApprovalConfirmation = "approval_confirmation"
	NotificationRejection            = "rejection"
)

// PaymentLinkNotice tells a guardian where to pay for one billing group.
type PaymentLinkNotice struct {
	GuardianEmail string
	GuardianName  string
	GuardianPhone string
	Track         models.ProgramTrack
	Students      []models.StudentRef
	Session       models.PaymentSession
}

// ApprovalConfirmationNotice confirms a place without payment.
type ApprovalConfirmationNotice struct {
	GuardianEmail string
	GuardianName  string
	Track         models.ProgramTrack
	Group         string
	Student       models.StudentRef
}

// RejectionNotice tells a guardian an application was declined.
type RejectionNotice struct {
	GuardianEmail string
	GuardianName  string
	ChildName     string
	Reason        string
}

type jobEnqueuer interface {
	TryEnqueue(job jobs.Job) error
}

// NotificationDispatcher hands guardian notifications to the background
// queue and returns without waiting for delivery.
type NotificationDispatcher struct {
	queue   jobEnqueuer
	metrics *MetricsService
	logger  *zap.Logger
}

// NewNotificationDispatcher constructs a dispatcher.
func NewNotificationDispatcher(queue jobEnqueuer, metrics *MetricsService, logger *zap.Logger) *NotificationDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationDispatcher{queue: queue, metrics: metrics, logger: logger}
}

// SendPaymentLink queues the payment link email for a billing group.
func (d *NotificationDispatcher) SendPaymentLink(_ context.Context, notice PaymentLinkNotice) error {
	return d.dispatch(NotificationPaymentLink, notice.GuardianEmail, notice)
}

// SendApprovalConfirmation queues the confirmation sent after a manual approval.
func (d *NotificationDispatcher) SendApprovalConfirmation(_ context.Context, notice ApprovalConfirmationNotice) error {
	return d.dispatch(NotificationApprovalConfirmation, notice.GuardianEmail, notice)
}

// SendRejection queues the rejection email.
func (d *NotificationDispatcher) SendRejection(_ context.Context, notice RejectionNotice) error {
	return d.dispatch(NotificationRejection, notice.GuardianEmail, notice)
}

func (d *NotificationDispatcher) dispatch(kind, to string, payload interface{}) error {
	if strings.TrimSpace(to) == "" {
		d.metrics.RecordNotification(kind, outcomeDropped)
		return appErrors.Clone(appErrors.ErrValidation, "notification recipient is required")
	}
	job := jobs.Job{ID: uuid.NewString(), Type: kind, Payload: payload}
	if d.queue == nil {
		d.metrics.RecordNotification(kind, outcomeDropped)
		return appErrors.Clone(appErrors.ErrExternalService, "notification queue unavailable")
	}
	if err := d.queue.TryEnqueue(job); err != nil {
		d.metrics.RecordNotification(kind, outcomeDropped)
		d.logger.Warn("notification not queued", zap.String("kind", kind), zap.String("job_id", job.ID), zap.Error(err))
		return appErrors.WrapAs(appErrors.ErrExternalService, err, "notification could not be queued")
	}
	d.logger.Debug("notification queued", zap.String("kind", kind), zap.String("job_id", job.ID))
	return nil
}

// NotificationWorker renders and delivers queued notifications.
type NotificationWorker struct {
	mailer     mailer.Sender
	sms        sms.Sender
	templates  *template.Template
	schoolName string
	timeout    time.Duration
	metrics    *MetricsService
	logger     *zap.Logger
}

// NotificationWorkerConfig configures rendering and delivery limits.
type NotificationWorkerConfig struct {
	SchoolName string
	Timeout    time.Duration
}

// NewNotificationWorker parses the message templates. smsSender may be nil.
func NewNotificationWorker(sender mailer.Sender, smsSender sms.Sender, cfg NotificationWorkerConfig, metrics *MetricsService, logger *zap.Logger) (*NotificationWorker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.SchoolName == "" {
		cfg.SchoolName = "Madrasah"
	}
	tmpl, err := template.New("notifications").Parse(notificationTemplates)
	if err != nil {
		return nil, fmt.Errorf("parse notification templates: %w", err)
	}
	return &NotificationWorker{
		mailer:     sender,
		sms:        smsSender,
		templates:  tmpl,
		schoolName: cfg.SchoolName,
		timeout:    cfg.Timeout,
		metrics:    metrics,
		logger:     logger,
	}, nil
}

// Handle is the jobs.Handler for the notification queue.
func (w *NotificationWorker) Handle(ctx context.Context, job jobs.Job) error {
	var (
		to, subject, body string
		err               error
	)
	switch notice := job.Payload.(type) {
	case PaymentLinkNotice:
		to = notice.GuardianEmail
		subject = fmt.Sprintf("%s: complete your registration payment", w.schoolName)
		body, err = w.render(NotificationPaymentLink, w.paymentLinkData(notice))
		if err == nil {
			w.sendPaymentLinkSMS(ctx, notice)
		}
	case ApprovalConfirmationNotice:
		to = notice.GuardianEmail
		subject = fmt.Sprintf("%s: registration confirmed", w.schoolName)
		body, err = w.render(NotificationApprovalConfirmation, map[string]interface{}{
			"School":       w.schoolName,
			"GuardianName": notice.GuardianName,
			"StudentName":  notice.Student.Name,
			"StudentCode":  notice.Student.Code,
			"Track":        notice.Track,
			"Group":        notice.Group,
		})
	case RejectionNotice:
		to = notice.GuardianEmail
		subject = fmt.Sprintf("%s: update on your application", w.schoolName)
		body, err = w.render(NotificationRejection, map[string]interface{}{
			"School":       w.schoolName,
			"GuardianName": notice.GuardianName,
			"ChildName":    notice.ChildName,
			"Reason":       notice.Reason,
		})
	default:
		return fmt.Errorf("unsupported notification payload %T", job.Payload)
	}
	if err != nil {
		w.metrics.RecordNotification(job.Type, outcomeFailed)
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	messageID, err := w.mailer.Send(sendCtx, to, subject, body)
	w.metrics.RecordExternalCall("email", job.Type, err)
	if err != nil {
		w.metrics.RecordNotification(job.Type, outcomeFailed)
		return fmt.Errorf("send %s email: %w", job.Type, err)
	}
	w.metrics.RecordNotification(job.Type, outcomeSuccess)
	w.logger.Info("notification sent", zap.String("kind", job.Type), zap.String("job_id", job.ID), zap.String("message_id", messageID))
	return nil
}

func (w *NotificationWorker) paymentLinkData(notice PaymentLinkNotice) map[string]interface{} {
	return map[string]interface{}{
		"School":          w.schoolName,
		"GuardianName":    notice.GuardianName,
		"Students":        notice.Students,
		"Track":           notice.Track,
		"DiscountApplied": notice.Session.DiscountApplied,
		"HasOtherTrack":   notice.Session.HasOtherTrack,
		"URL":             notice.Session.URL,
		"ExpiresAt":       notice.Session.ExpiresAt.Format("2 January 2006 15:04 MST"),
	}
}

func (w *NotificationWorker) sendPaymentLinkSMS(ctx context.Context, notice PaymentLinkNotice) {
	if w.sms == nil || strings.TrimSpace(notice.GuardianPhone) == "" {
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	msg := fmt.Sprintf("%s: please complete your registration payment: %s", w.schoolName, notice.Session.URL)
	_, err := w.sms.Send(sendCtx, notice.GuardianPhone, msg)
	w.metrics.RecordExternalCall("sms", NotificationPaymentLink, err)
	if err != nil {
		w.logger.Warn("payment link sms failed", zap.String("session_id", notice.Session.SessionID), zap.Error(err))
	}
}

func (w *NotificationWorker) render(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := w.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
