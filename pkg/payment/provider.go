// Package payment wraps the external billing provider used to collect registration fees.
package payment

import (
	"context"
	"time"
)

// LineItem is one priced entry on a checkout.
type LineItem struct {
	PriceID  string
	Quantity int64
}

// CheckoutRequest describes a checkout to create for an existing billing customer.
type CheckoutRequest struct {
	CustomerID     string
	LineItems      []LineItem
	DiscountID     string
	Metadata       map[string]string
	SuccessURL     string
	CancelURL      string
	ExpiresAt      time.Time
	IdempotencyKey string
}

// CheckoutSession is the provider's answer to a checkout request.
type CheckoutSession struct {
	ID  string
	URL string
}

// DiscountDefinition describes a repeating fixed-amount discount.
type DiscountDefinition struct {
	Name           string
	AmountOff      int64
	Currency       string
	DurationMonths int
}

// Provider is the subset of a billing platform the registration pipeline needs.
type Provider interface {
	// FindOrCreateCustomer returns the existing customer for email or creates one.
	FindOrCreateCustomer(ctx context.Context, email, name string) (string, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	// EnsureDiscountDefinition creates the discount under id unless it already exists.
	EnsureDiscountDefinition(ctx context.Context, id string, def DiscountDefinition) error
}
