package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

const stripeProviderName = "stripe"

// StripeLogger defines the logging contract for card provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Capture(id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error)
}

// StripeProviderConfig configures the card adapter.
type StripeProviderConfig struct {
	APIKey   string
	Backends *stripe.Backends
	Logger   StripeLogger
	Clock    func() time.Time

	// Intents overrides the Stripe client, primarily for tests.
	Intents stripePaymentIntentAPI
}

// StripeProvider implements the card branch of the Provider contract. The
// underlying client is configured once with the secret key and reused; there
// is no explicit token-exchange step.
type StripeProvider struct {
	intents stripePaymentIntentAPI
	clock   func() time.Time
	logger  StripeLogger
}

// NewStripeProvider constructs the card adapter from the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Intents == nil {
		return nil, errors.New("stripe: api key is required")
	}

	intents := cfg.Intents
	if intents == nil {
		sc := client.New(apiKey, cfg.Backends)
		intents = sc.PaymentIntents
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		intents: intents,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateOrder creates a manual-capture PaymentIntent for the requested amount.
func (p *StripeProvider) CreateOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if p == nil || p.intents == nil {
		return OrderResult{}, errors.New("stripe: provider is nil")
	}
	if err := ValidateOrderRequest(req); err != nil {
		return OrderResult{}, err
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(minorUnits(req.Amount, req.Currency)),
		Currency:      stripe.String(strings.ToLower(strings.TrimSpace(req.Currency))),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
	}
	params.Context = ctx
	if desc := strings.TrimSpace(req.Description); desc != "" {
		params.Description = stripe.String(desc)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			params.Metadata[k] = v
		}
	}

	intent, err := p.intents.New(params)
	if err != nil {
		return OrderResult{}, normaliseStripeError("create_order", err)
	}

	p.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
		"currency":      intent.Currency,
		"status":        intent.Status,
	})
	return stripeOrderResult(intent), nil
}

// Capture finalises a previously created PaymentIntent.
func (p *StripeProvider) Capture(ctx context.Context, req CaptureRequest) (OrderResult, error) {
	if p == nil || p.intents == nil {
		return OrderResult{}, errors.New("stripe: provider is nil")
	}
	id := strings.TrimSpace(req.ProviderOrderID)
	if id == "" {
		return OrderResult{}, fmt.Errorf("%w: provider order id is required", ErrInvalidRequest)
	}

	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx

	intent, err := p.intents.Capture(id, params)
	if err != nil {
		return OrderResult{}, normaliseStripeError("capture", err)
	}

	p.logger(ctx, "payments.stripe.intent.captured", map[string]any{
		"paymentIntent":  intent.ID,
		"amountReceived": intent.AmountReceived,
	})
	return stripeOrderResult(intent), nil
}

func stripeOrderResult(intent *stripe.PaymentIntent) OrderResult {
	if intent == nil {
		return OrderResult{}
	}

	status := "CREATED"
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		status = "CAPTURED"
	case stripe.PaymentIntentStatusCanceled:
		status = "FAILED"
	}

	raw := map[string]any{}
	if data, err := json.Marshal(intent); err == nil {
		_ = json.Unmarshal(data, &raw)
	}

	return OrderResult{
		ProviderOrderID: intent.ID,
		Status:          status,
		Raw:             raw,
	}
}

func normaliseStripeError(op string, err error) error {
	message := "request failed"
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if code := string(stripeErr.Code); code != "" {
			message = code
		} else if stripeErr.HTTPStatusCode != 0 {
			message = fmt.Sprintf("status %d", stripeErr.HTTPStatusCode)
		}
	}
	return newProviderError(stripeProviderName, op, message, err)
}

// zeroDecimalCurrencies lists the ISO-4217 codes the Stripe API takes in
// whole units rather than hundredths.
var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "JPY": {}, "KMF": {},
	"KRW": {}, "MGA": {}, "PYG": {}, "RWF": {}, "UGX": {}, "VND": {},
	"VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
}

// minorUnits converts a decimal amount to the smallest unit the Stripe API
// expects for the given currency. Rounding guards against float
// representation drift.
func minorUnits(amount float64, currency string) int64 {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if _, ok := zeroDecimalCurrencies[code]; ok {
		return int64(math.Round(amount))
	}
	return int64(math.Round(amount * 100))
}
