package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/madrasah-registration/internal/models"
	"github.com/noah-isme/madrasah-registration/pkg/config"
	appErrors "github.com/noah-isme/madrasah-registration/pkg/errors"
	"github.com/noah-isme/madrasah-registration/pkg/payment"
)

type paymentCustomerStore interface {
	SetPaymentCustomer(ctx context.Context, ids []string, customerID string) error
}

// PaymentServiceConfig carries the checkout catalogue and provider limits.
type PaymentServiceConfig struct {
	Prices     map[models.ProgramTrack]config.TrackPrices
	SuccessURL string
	CancelURL  string
	SessionTTL time.Duration
	Timeout    time.Duration
}

// PaymentConfigFromStripe adapts Stripe configuration for the service.
func PaymentConfigFromStripe(cfg config.StripeConfig) PaymentServiceConfig {
	prices := make(map[models.ProgramTrack]config.TrackPrices, len(cfg.Prices))
	for track, p := range cfg.Prices {
		prices[models.ProgramTrack(track)] = p
	}
	return PaymentServiceConfig{
		Prices:     prices,
		SuccessURL: cfg.SuccessURL,
		CancelURL:  cfg.CancelURL,
		SessionTTL: cfg.SessionTTL,
		Timeout:    cfg.Timeout,
	}
}

// IssueSessionRequest describes one billing group to charge.
type IssueSessionRequest struct {
	Students      []models.StudentRef
	GuardianEmail string
	GuardianName  string
	Track         models.ProgramTrack
	SiblingCount  int
	HasOtherTrack bool
}

// PaymentService issues one checkout per billing group.
type PaymentService struct {
	provider  payment.Provider
	students  paymentCustomerStore
	policy    DiscountPolicy
	cfg       PaymentServiceConfig
	customers singleflight.Group
	metrics   *MetricsService
	tracer    trace.Tracer
	logger    *zap.Logger
	now       func() time.Time
}

// NewPaymentService constructs the issuer.
func NewPaymentService(provider payment.Provider, students paymentCustomerStore, policy DiscountPolicy, cfg PaymentServiceConfig, metrics *MetricsService, logger *zap.Logger) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &PaymentService{
		provider: provider,
		students: students,
		policy:   policy,
		cfg:      cfg,
		metrics:  metrics,
		tracer:   newTracer(nil),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// IssueSession resolves the guardian's billing customer and creates a checkout
// charging admission and monthly fees once per student in the group.
func (s *PaymentService) IssueSession(ctx context.Context, req IssueSessionRequest) (*models.PaymentSession, error) {
	if len(req.Students) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "payment session requires at least one student")
	}
	email := models.NormalizeEmail(req.GuardianEmail)
	if email == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "guardian email is required")
	}
	prices, ok := s.cfg.Prices[req.Track]
	if !ok || prices.AdmissionPriceID == "" || prices.MonthlyPriceID == "" {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("no prices configured for track %s", req.Track))
	}

	ctx, span := s.tracer.Start(ctx, "payment.IssueSession")
	defer span.End()
	span.SetAttributes(
		attribute.String("registration.track", string(req.Track)),
		attribute.Int("registration.students", len(req.Students)),
		attribute.Int("registration.sibling_count", req.SiblingCount),
	)

	customerID, err := s.resolveCustomer(ctx, email, req.GuardianName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	members := len(req.Students)
	discount := s.policy.ComputeDiscount(req.SiblingCount)
	var discountID string
	if discount.Applies {
		discountID = s.policy.DefinitionID(req.Track, discount, members)
		def := payment.DiscountDefinition{
			Name:           fmt.Sprintf("Sibling discount (%s, %d children)", req.Track, members),
			AmountOff:      discount.AmountOff * int64(members),
			Currency:       s.policy.Currency,
			DurationMonths: discount.DurationMonths,
		}
		err := s.call(ctx, "ensure_discount", func(ctx context.Context) error {
			return s.provider.EnsureDiscountDefinition(ctx, discountID, def)
		})
		if err != nil {
			recordSpanError(span, err)
			return nil, err
		}
	}

	ids := make([]string, 0, members)
	codes := make([]string, 0, members)
	for _, ref := range req.Students {
		ids = append(ids, ref.ID)
		codes = append(codes, ref.Code)
	}

	createdAt := s.now()
	expiresAt := createdAt.Add(s.cfg.SessionTTL)
	checkout := payment.CheckoutRequest{
		CustomerID: customerID,
		LineItems: []payment.LineItem{
			{PriceID: prices.AdmissionPriceID, Quantity: int64(members)},
			{PriceID: prices.MonthlyPriceID, Quantity: int64(members)},
		},
		DiscountID: discountID,
		Metadata: map[string]string{
			"student_ids":      strings.Join(ids, ","),
			"student_codes":    strings.Join(codes, ","),
			"guardian_email":   email,
			"track":            string(req.Track),
			"sibling_count":    strconv.Itoa(req.SiblingCount),
			"discount_applied": strconv.FormatBool(discount.Applies),
			"has_other_track":  strconv.FormatBool(req.HasOtherTrack),
		},
		SuccessURL:     s.cfg.SuccessURL,
		CancelURL:      s.cfg.CancelURL,
		ExpiresAt:      expiresAt,
		IdempotencyKey: checkoutIdempotencyKey(ids, createdAt),
	}

	var session *payment.CheckoutSession
	err = s.call(ctx, "create_checkout", func(ctx context.Context) error {
		var callErr error
		session, callErr = s.provider.CreateCheckoutSession(ctx, checkout)
		return callErr
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	if s.students != nil {
		if err := s.students.SetPaymentCustomer(ctx, ids, customerID); err != nil {
			s.logger.Warn("failed to record payment customer on students",
				zap.Strings("student_ids", ids), zap.String("customer_id", customerID), zap.Error(err))
		}
	}
	s.metrics.RecordPaymentSession(string(req.Track), discount.Applies)
	s.logger.Info("payment session issued",
		zap.String("session_id", session.ID),
		zap.String("customer_id", customerID),
		zap.Strings("student_ids", ids),
		zap.Bool("discount_applied", discount.Applies),
	)

	return &models.PaymentSession{
		SessionID:       session.ID,
		CustomerID:      customerID,
		StudentIDs:      ids,
		Track:           req.Track,
		DiscountApplied: discount.Applies,
		HasOtherTrack:   req.HasOtherTrack,
		URL:             session.URL,
		CreatedAt:       createdAt,
		ExpiresAt:       expiresAt,
	}, nil
}

// resolveCustomer collapses concurrent lookups for the same guardian into one
// provider round trip so two approvals never race to create twin customers.
func (s *PaymentService) resolveCustomer(ctx context.Context, email, name string) (string, error) {
	v, err, _ := s.customers.Do(email, func() (interface{}, error) {
		var id string
		err := s.call(ctx, "find_or_create_customer", func(ctx context.Context) error {
			var callErr error
			id, callErr = s.provider.FindOrCreateCustomer(ctx, email, name)
			return callErr
		})
		return id, err
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *PaymentService) call(ctx context.Context, op string, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	err := fn(callCtx)
	s.metrics.RecordExternalCall("payment", op, err)
	if err != nil {
		return appErrors.WrapAs(appErrors.ErrExternalService, err, "payment provider "+op+" failed")
	}
	return nil
}

// checkoutIdempotencyKey identifies one issuance for a set of students, so a
// retried create returns the same checkout instead of a second one.
func checkoutIdempotencyKey(studentIDs []string, createdAt time.Time) string {
	sorted := append([]string(nil), studentIDs...)
	sort.Strings(sorted)
	return fmt.Sprintf("checkout-%s-%d", strings.Join(sorted, "."), createdAt.UnixNano())
}
