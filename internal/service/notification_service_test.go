package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/madrasah-registration/internal/models"
	appErrors "github.com/noah-isme/madrasah-registration/pkg/errors"
	"github.com/noah-isme/madrasah-registration/pkg/jobs"
	"github.com/noah-isme/madrasah-registration/pkg/mailer"
)

type queueStub struct {
	mu   sync.Mutex
	jobs []jobs.Job
	err  error
}

func (q *queueStub) TryEnqueue(job jobs.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *queueStub) byType(kind string) []jobs.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []jobs.Job
	for _, j := range q.jobs {
		if j.Type == kind {
			out = append(out, j)
		}
	}
	return out
}

type sentMail struct {
	to, subject, body string
}

type mailerStub struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *mailerStub) Send(_ context.Context, to, subject, body string, _ ...mailer.Attachment) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return "msg-1", nil
}

func (m *mailerStub) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type smsStub struct {
	phones []string
	err    error
}

func (s *smsStub) Send(_ context.Context, phone, _ string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.phones = append(s.phones, phone)
	return "sms-1", nil
}

func TestNotificationDispatcherQueuesJobs(t *testing.T) {
	queue := &queueStub{}
	d := NewNotificationDispatcher(queue, nil, nil)
	ctx := context.Background()

	require.NoError(t, d.SendPaymentLink(ctx, PaymentLinkNotice{GuardianEmail: "p@example.com"}))
	require.NoError(t, d.SendRejection(ctx, RejectionNotice{GuardianEmail: "p@example.com", Reason: "full"}))
	require.NoError(t, d.SendApprovalConfirmation(ctx, ApprovalConfirmationNotice{GuardianEmail: "p@example.com"}))

	assert.Len(t, queue.byType(NotificationPaymentLink), 1)
	assert.Len(t, queue.byType(NotificationRejection), 1)
	assert.Len(t, queue.byType(NotificationApprovalConfirmation), 1)
}

func TestNotificationDispatcherReportsFullQueue(t *testing.T) {
	d := NewNotificationDispatcher(&queueStub{err: jobs.ErrQueueFull}, nil, nil)

	err := d.SendPaymentLink(context.Background(), PaymentLinkNotice{GuardianEmail: "p@example.com"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrExternalService))
	assert.True(t, errors.Is(err, jobs.ErrQueueFull))

	err = d.SendRejection(context.Background(), RejectionNotice{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestNotificationWorkerRendersPaymentLink(t *testing.T) {
	mail := &mailerStub{}
	texts := &smsStub{}
	w, err := NewNotificationWorker(mail, texts, NotificationWorkerConfig{SchoolName: "Al-Noor Madrasah"}, nil, nil)
	require.NoError(t, err)

	notice := PaymentLinkNotice{
		GuardianEmail: "p@example.com",
		GuardianName:  "Amina",
		GuardianPhone: "+447700900123",
		Track:         models.TrackMaktab,
		Students:      []models.StudentRef{{ID: "s1", Code: "STU-1", Name: "Yusuf Khan"}, {ID: "s2", Code: "STU-2", Name: "Maryam Khan"}},
		Session: models.PaymentSession{
			URL:             "https://pay.test/cs_1?a=1&b=2",
			DiscountApplied: true,
			HasOtherTrack:   true,
			ExpiresAt:       time.Date(2026, 9, 2, 10, 0, 0, 0, time.UTC),
		},
	}
	require.NoError(t, w.Handle(context.Background(), jobs.Job{ID: "j1", Type: NotificationPaymentLink, Payload: notice}))

	require.Len(t, mail.sent, 1)
	msg := mail.sent[0]
	assert.Equal(t, "p@example.com", msg.to)
	assert.Contains(t, msg.subject, "Al-Noor Madrasah")
	assert.Contains(t, msg.body, "Yusuf Khan (STU-1)")
	assert.Contains(t, msg.body, "Maryam Khan (STU-2)")
	assert.Contains(t, msg.body, "sibling discount")
	assert.Contains(t, msg.body, "another programme")
	assert.Contains(t, msg.body, "https://pay.test/cs_1?a=1&amp;b=2")
	assert.Equal(t, []string{"+447700900123"}, texts.phones)
}

func TestNotificationWorkerEscapesRejectionReason(t *testing.T) {
	mail := &mailerStub{}
	w, err := NewNotificationWorker(mail, nil, NotificationWorkerConfig{}, nil, nil)
	require.NoError(t, err)

	err = w.Handle(context.Background(), jobs.Job{Type: NotificationRejection, Payload: RejectionNotice{
		GuardianEmail: "p@example.com",
		ChildName:     "Yusuf",
		Reason:        "<script>alert(1)</script>",
	}})
	require.NoError(t, err)
	assert.NotContains(t, mail.sent[0].body, "<script>")
	assert.Contains(t, mail.sent[0].body, "&lt;script&gt;")
}

func TestNotificationWorkerFailures(t *testing.T) {
	mail := &mailerStub{err: errors.New("ses throttled")}
	w, err := NewNotificationWorker(mail, &smsStub{err: errors.New("sns down")}, NotificationWorkerConfig{}, nil, nil)
	require.NoError(t, err)

	err = w.Handle(context.Background(), jobs.Job{Type: NotificationApprovalConfirmation, Payload: ApprovalConfirmationNotice{GuardianEmail: "p@example.com"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ses throttled")

	err = w.Handle(context.Background(), jobs.Job{Type: "unknown", Payload: 42})
	assert.Error(t, err)
}

func TestNotificationPipelineDeliversThroughQueue(t *testing.T) {
	mail := &mailerStub{}
	w, err := NewNotificationWorker(mail, nil, NotificationWorkerConfig{}, nil, nil)
	require.NoError(t, err)

	queue := jobs.NewQueue("notifications", w.Handle, jobs.QueueConfig{Workers: 1, BufferSize: 4})
	queue.Start(context.Background())
	defer queue.Stop()

	d := NewNotificationDispatcher(queue, nil, nil)
	require.NoError(t, d.SendRejection(context.Background(), RejectionNotice{GuardianEmail: "p@example.com", ChildName: "Yusuf", Reason: "age"}))

	assert.Eventually(t, func() bool { return mail.count() == 1 }, time.Second, 10*time.Millisecond)
}
