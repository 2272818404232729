package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeStripe serves the handful of endpoints StripeProvider calls.
type fakeStripe struct {
	mu        sync.Mutex
	calls     []string
	customers map[string]string
	coupons   map[string]bool
	forms     map[string][]map[string]string
	idemKeys  map[string][]string
	couponErr int

	// createdElsewhere coupons are missing on lookup but already exist on create.
	createdElsewhere map[string]bool
}

func newFakeStripe() *fakeStripe {
	return &fakeStripe{
		customers: map[string]string{},
		coupons:   map[string]bool{},
		forms:     map[string][]map[string]string{},
		idemKeys:  map[string][]string{},

		createdElsewhere: map[string]bool{},
	}
}

func (f *fakeStripe) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := r.Method + " " + r.URL.Path
	f.calls = append(f.calls, call)
	if r.Method == http.MethodPost {
		_ = r.ParseForm()
		form := map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		f.forms[r.URL.Path] = append(f.forms[r.URL.Path], form)
		f.idemKeys[r.URL.Path] = append(f.idemKeys[r.URL.Path], r.Header.Get("Idempotency-Key"))
	}

	switch {
	case call == "GET /v1/customers":
		data := []map[string]interface{}{}
		if id, ok := f.customers[r.URL.Query().Get("email")]; ok {
			data = append(data, map[string]interface{}{"id": id, "object": "customer", "email": r.URL.Query().Get("email")})
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"object": "list", "url": "/v1/customers", "has_more": false, "data": data})
	case call == "POST /v1/customers":
		id := fmt.Sprintf("cus_%d", len(f.customers)+1)
		f.customers[r.PostForm.Get("email")] = id
		writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "object": "customer"})
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/coupons/"):
		id := strings.TrimPrefix(r.URL.Path, "/v1/coupons/")
		if f.couponErr != 0 {
			writeError(w, f.couponErr, "authentication_error", "", "Invalid API Key provided")
			return
		}
		if !f.coupons[id] {
			writeError(w, http.StatusNotFound, "invalid_request_error", "resource_missing", "No such coupon: '"+id+"'")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "object": "coupon"})
	case call == "POST /v1/coupons":
		id := r.PostForm.Get("id")
		if f.coupons[id] || f.createdElsewhere[id] {
			writeError(w, http.StatusBadRequest, "invalid_request_error", "resource_already_exists", "Coupon already exists.")
			return
		}
		f.coupons[id] = true
		writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "object": "coupon"})
	case call == "POST /v1/checkout/sessions":
		n := len(f.forms[r.URL.Path])
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id":     fmt.Sprintf("cs_test_%d", n),
			"object": "checkout.session",
			"url":    fmt.Sprintf("https://checkout.stripe.test/cs_test_%d", n),
		})
	default:
		writeError(w, http.StatusNotFound, "invalid_request_error", "resource_missing", "Unrecognized request URL")
	}
}

func (f *fakeStripe) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, typ, code, message string) {
	writeJSON(w, status, map[string]interface{}{"error": map[string]interface{}{"type": typ, "code": code, "message": message}})
}

func newTestProvider(t *testing.T, logger *zap.Logger) (*StripeProvider, *fakeStripe) {
	t.Helper()
	fake := newFakeStripe()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	provider := newStripeProvider("sk_test_123", func() *stripe.BackendConfig {
		return &stripe.BackendConfig{
			URL:               stripe.String(srv.URL),
			HTTPClient:        srv.Client(),
			MaxNetworkRetries: stripe.Int64(0),
			LeveledLogger:     newStripeLogger(logger),
		}
	})
	return provider, fake
}

func TestFindOrCreateCustomerCreatesOnce(t *testing.T) {
	provider, fake := newTestProvider(t, nil)
	ctx := context.Background()

	first, err := provider.FindOrCreateCustomer(ctx, " Amina@Example.com ", "Amina Khan")
	require.NoError(t, err)
	second, err := provider.FindOrCreateCustomer(ctx, "amina@example.com", "Amina Khan")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, fake.count("POST /v1/customers"))
	assert.Equal(t, 2, fake.count("GET /v1/customers"))
	created := fake.forms["/v1/customers"][0]
	assert.Equal(t, "amina@example.com", created["email"])
	assert.Equal(t, "Amina Khan", created["name"])
	assert.Equal(t, []string{"customer-amina@example.com"}, fake.idemKeys["/v1/customers"])
}

func TestFindOrCreateCustomerReusesExisting(t *testing.T) {
	provider, fake := newTestProvider(t, nil)
	fake.customers["amina@example.com"] = "cus_existing"

	id, err := provider.FindOrCreateCustomer(context.Background(), "amina@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, "cus_existing", id)
	assert.Zero(t, fake.count("POST /v1/customers"))

	_, err = provider.FindOrCreateCustomer(context.Background(), "  ", "")
	assert.Error(t, err)
}

func TestEnsureDiscountDefinitionCreatesMissingCoupon(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	provider, fake := newTestProvider(t, zap.New(core))
	def := DiscountDefinition{Name: "Sibling discount", AmountOff: 3000, Currency: "gbp", DurationMonths: 12}

	require.NoError(t, provider.EnsureDiscountDefinition(context.Background(), "sibling-maktab-gbp-1000-12m-x3", def))
	require.NoError(t, provider.EnsureDiscountDefinition(context.Background(), "sibling-maktab-gbp-1000-12m-x3", def))

	assert.Equal(t, 1, fake.count("POST /v1/coupons"))
	coupon := fake.forms["/v1/coupons"][0]
	assert.Equal(t, "sibling-maktab-gbp-1000-12m-x3", coupon["id"])
	assert.Equal(t, "3000", coupon["amount_off"])
	assert.Equal(t, "gbp", coupon["currency"])
	assert.Equal(t, "repeating", coupon["duration"])
	assert.Equal(t, "12", coupon["duration_in_months"])
	assert.Zero(t, logs.Len(), "expected coupon lookup miss must not log above debug")
}

func TestEnsureDiscountDefinitionToleratesConcurrentCreate(t *testing.T) {
	provider, fake := newTestProvider(t, nil)
	// Another instance creates the coupon between our lookup and our create.
	fake.createdElsewhere["race"] = true

	err := provider.EnsureDiscountDefinition(context.Background(), "race", DiscountDefinition{AmountOff: 2000, Currency: "gbp", DurationMonths: 12})
	require.NoError(t, err)
	assert.Equal(t, 1, fake.count("GET /v1/coupons/race"))
	assert.Equal(t, 1, fake.count("POST /v1/coupons"))
}

func TestEnsureDiscountDefinitionSurfacesOtherErrors(t *testing.T) {
	provider, fake := newTestProvider(t, nil)
	fake.couponErr = http.StatusUnauthorized

	err := provider.EnsureDiscountDefinition(context.Background(), "c1", DiscountDefinition{AmountOff: 1, Currency: "gbp", DurationMonths: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stripe get coupon c1")
	assert.Zero(t, fake.count("POST /v1/coupons"))
}

func TestCreateCheckoutSessionSendsRequest(t *testing.T) {
	provider, fake := newTestProvider(t, nil)
	expires := time.Now().Add(48 * time.Hour)

	session, err := provider.CreateCheckoutSession(context.Background(), CheckoutRequest{
		CustomerID: "cus_1",
		LineItems: []LineItem{
			{PriceID: "price_adm", Quantity: 3},
			{PriceID: "price_month", Quantity: 3},
		},
		DiscountID:     "c1",
		Metadata:       map[string]string{"student_ids": "a,b,c"},
		SuccessURL:     "https://school.test/ok",
		CancelURL:      "https://school.test/cancel",
		ExpiresAt:      expires,
		IdempotencyKey: "checkout-a.b.c-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", session.ID)
	assert.Equal(t, "https://checkout.stripe.test/cs_test_1", session.URL)

	form := fake.forms["/v1/checkout/sessions"][0]
	assert.Equal(t, "cus_1", form["customer"])
	assert.Equal(t, "subscription", form["mode"])
	assert.Equal(t, "price_adm", form["line_items[0][price]"])
	assert.Equal(t, "3", form["line_items[1][quantity]"])
	assert.Equal(t, "c1", form["discounts[0][coupon]"])
	assert.Equal(t, "a,b,c", form["metadata[student_ids]"])
	assert.Equal(t, "a,b,c", form["subscription_data[metadata][student_ids]"])
	assert.Equal(t, []string{"checkout-a.b.c-1"}, fake.idemKeys["/v1/checkout/sessions"])

	sentExpiry, err := strconv.ParseInt(form["expires_at"], 10, 64)
	require.NoError(t, err)
	assert.LessOrEqual(t, sentExpiry, time.Now().Add(24*time.Hour).Unix())
	assert.Greater(t, sentExpiry, time.Now().Add(23*time.Hour).Unix())
}

func TestCreateCheckoutSessionValidatesInput(t *testing.T) {
	provider, fake := newTestProvider(t, nil)

	_, err := provider.CreateCheckoutSession(context.Background(), CheckoutRequest{LineItems: []LineItem{{PriceID: "p", Quantity: 1}}})
	assert.Error(t, err)
	_, err = provider.CreateCheckoutSession(context.Background(), CheckoutRequest{CustomerID: "cus_1"})
	assert.Error(t, err)
	assert.Empty(t, fake.calls)
}
