package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"
)

// maxCheckoutLifetime is the longest expiry the provider accepts for a checkout.
const maxCheckoutLifetime = 24*time.Hour - time.Minute

// StripeProvider implements Provider against the Stripe API.
type StripeProvider struct {
	api *client.API
}

// NewStripeProvider constructs a provider authenticated with secretKey. The
// client's own log lines go to logger.
func NewStripeProvider(secretKey string, logger *zap.Logger) *StripeProvider {
	return newStripeProvider(secretKey, func() *stripe.BackendConfig {
		return &stripe.BackendConfig{LeveledLogger: newStripeLogger(logger)}
	})
}

// newStripeProvider builds the client from backendConfig, called once per
// backend since the client fills in the URL of the config it is given.
func newStripeProvider(secretKey string, backendConfig func() *stripe.BackendConfig) *StripeProvider {
	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig()),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendConfig()),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendConfig()),
	}
	return &StripeProvider{api: client.New(secretKey, backends)}
}

// stripeLogger adapts zap to the client's leveled logger. Failed requests are
// returned to callers, which log them with context, so the client's error
// lines (including the expected 404 of a coupon lookup) stay at debug.
type stripeLogger struct {
	log *zap.SugaredLogger
}

func newStripeLogger(logger *zap.Logger) stripeLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return stripeLogger{log: logger.Named("stripe").Sugar()}
}

func (l stripeLogger) Debugf(format string, v ...interface{}) { l.log.Debugf(format, v...) }
func (l stripeLogger) Infof(format string, v ...interface{})  { l.log.Debugf(format, v...) }
func (l stripeLogger) Warnf(format string, v ...interface{})  { l.log.Warnf(format, v...) }
func (l stripeLogger) Errorf(format string, v ...interface{}) { l.log.Debugf(format, v...) }

// FindOrCreateCustomer looks a customer up by email before creating one. The
// creation request is idempotent per email so concurrent callers converge.
func (p *StripeProvider) FindOrCreateCustomer(ctx context.Context, email, name string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", errors.New("stripe customer: email is required")
	}

	listParams := &stripe.CustomerListParams{Email: stripe.String(email)}
	listParams.Context = ctx
	listParams.Limit = stripe.Int64(1)
	iter := p.api.Customers.List(listParams)
	for iter.Next() {
		if c := iter.Customer(); c != nil && !c.Deleted {
			return c.ID, nil
		}
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("stripe list customers: %w", err)
	}

	params := &stripe.CustomerParams{Email: stripe.String(email)}
	if name != "" {
		params.Name = stripe.String(name)
	}
	params.Context = ctx
	params.SetIdempotencyKey("customer-" + email)
	created, err := p.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create customer: %w", err)
	}
	return created.ID, nil
}

// CreateCheckoutSession creates a subscription-mode checkout. One-time prices
// on the session are billed with the first invoice.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if req.CustomerID == "" {
		return nil, errors.New("stripe checkout: customer is required")
	}
	if len(req.LineItems) == 0 {
		return nil, errors.New("stripe checkout: at least one line item is required")
	}

	items := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.LineItems))
	for _, item := range req.LineItems {
		items = append(items, &stripe.CheckoutSessionLineItemParams{
			Price:    stripe.String(item.PriceID),
			Quantity: stripe.Int64(item.Quantity),
		})
	}

	params := &stripe.CheckoutSessionParams{
		Customer:   stripe.String(req.CustomerID),
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems:  items,
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: req.Metadata,
		},
	}
	if req.DiscountID != "" {
		params.Discounts = []*stripe.CheckoutSessionDiscountParams{{Coupon: stripe.String(req.DiscountID)}}
	}
	if !req.ExpiresAt.IsZero() {
		expires := req.ExpiresAt
		if limit := time.Now().Add(maxCheckoutLifetime); expires.After(limit) {
			expires = limit
		}
		params.ExpiresAt = stripe.Int64(expires.Unix())
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	session, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create checkout session: %w", err)
	}
	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// EnsureDiscountDefinition upserts a repeating amount-off coupon keyed by id.
func (p *StripeProvider) EnsureDiscountDefinition(ctx context.Context, id string, def DiscountDefinition) error {
	getParams := &stripe.CouponParams{}
	getParams.Context = ctx
	if _, err := p.api.Coupons.Get(id, getParams); err == nil {
		return nil
	} else if !hasErrorCode(err, stripe.ErrorCodeResourceMissing) {
		return fmt.Errorf("stripe get coupon %s: %w", id, err)
	}

	params := &stripe.CouponParams{
		ID:               stripe.String(id),
		Name:             stripe.String(def.Name),
		AmountOff:        stripe.Int64(def.AmountOff),
		Currency:         stripe.String(def.Currency),
		Duration:         stripe.String(string(stripe.CouponDurationRepeating)),
		DurationInMonths: stripe.Int64(int64(def.DurationMonths)),
	}
	params.Context = ctx
	if _, err := p.api.Coupons.New(params); err != nil {
		if hasErrorCode(err, stripe.ErrorCodeResourceAlreadyExists) {
			return nil
		}
		return fmt.Errorf("stripe create coupon %s: %w", id, err)
	}
	return nil
}

func hasErrorCode(err error, code stripe.ErrorCode) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.Code == code
	}
	return false
}
