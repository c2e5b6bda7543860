package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/stripe/stripe-go/v78"
)

type stubIntentsAPI struct {
	newFunc     func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	captureFunc func(id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error)
}

func (s *stubIntentsAPI) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if s.newFunc == nil {
		return nil, errors.New("not implemented")
	}
	return s.newFunc(params)
}

func (s *stubIntentsAPI) Capture(id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error) {
	if s.captureFunc == nil {
		return nil, errors.New("not implemented")
	}
	return s.captureFunc(id, params)
}

func TestStripeCreateOrderConvertsToMinorUnits(t *testing.T) {
	var captured *stripe.PaymentIntentParams
	provider, err := NewStripeProvider(StripeProviderConfig{
		Intents: &stubIntentsAPI{
			newFunc: func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
				captured = params
				return &stripe.PaymentIntent{
					ID:       "pi_123",
					Amount:   1999,
					Currency: "usd",
					Status:   stripe.PaymentIntentStatusRequiresPaymentMethod,
				}, nil
			},
		},
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	result, err := provider.CreateOrder(context.Background(), OrderRequest{
		Amount:      19.99,
		Currency:    "USD",
		Description: "Donation",
		Metadata:    map[string]string{"campaign": "c-1"},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if captured == nil {
		t.Fatal("expected intent params to be captured")
	}
	if got := *captured.Amount; got != 1999 {
		t.Fatalf("expected amount 1999 minor units, got %d", got)
	}
	if got := *captured.Currency; got != "usd" {
		t.Fatalf("expected lowercase currency, got %s", got)
	}
	if got := *captured.CaptureMethod; got != string(stripe.PaymentIntentCaptureMethodManual) {
		t.Fatalf("expected manual capture method, got %s", got)
	}
	if captured.Metadata["campaign"] != "c-1" {
		t.Fatalf("expected metadata passthrough, got %v", captured.Metadata)
	}
	if result.ProviderOrderID != "pi_123" || result.Status != "CREATED" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestStripeCaptureMapsSucceeded(t *testing.T) {
	provider, err := NewStripeProvider(StripeProviderConfig{
		Intents: &stubIntentsAPI{
			captureFunc: func(id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error) {
				if id != "pi_123" {
					t.Fatalf("unexpected intent id %s", id)
				}
				return &stripe.PaymentIntent{
					ID:             "pi_123",
					AmountReceived: 1999,
					Status:         stripe.PaymentIntentStatusSucceeded,
				}, nil
			},
		},
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	result, err := provider.Capture(context.Background(), CaptureRequest{ProviderOrderID: "pi_123"})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if result.Status != "CAPTURED" {
		t.Fatalf("expected CAPTURED, got %s", result.Status)
	}
}

func TestStripeErrorsNormalised(t *testing.T) {
	provider, err := NewStripeProvider(StripeProviderConfig{
		Intents: &stubIntentsAPI{
			newFunc: func(*stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
				return nil, &stripe.Error{Code: stripe.ErrorCodeCardDeclined, HTTPStatusCode: 402}
			},
		},
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	_, err = provider.CreateOrder(context.Background(), OrderRequest{Amount: 10, Currency: "USD"})
	pe, ok := AsProviderError(err)
	if !ok {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if pe.Provider != "stripe" || pe.Message != string(stripe.ErrorCodeCardDeclined) {
		t.Fatalf("unexpected provider error %+v", pe)
	}
}

func TestStripeRequiresKeyOrClient(t *testing.T) {
	if _, err := NewStripeProvider(StripeProviderConfig{}); err == nil {
		t.Fatal("expected error when neither api key nor client is supplied")
	}
}

func TestMinorUnitsRounding(t *testing.T) {
	cases := []struct {
		amount   float64
		currency string
		want     int64
	}{
		{19.99, "USD", 1999},
		{100, "EUR", 10000},
		{0.1, "RON", 10},
		{5.5, "GBP", 550},
	}
	for _, tc := range cases {
		if got := minorUnits(tc.amount, tc.currency); got != tc.want {
			t.Fatalf("minorUnits(%v, %s) = %d, want %d", tc.amount, tc.currency, got, tc.want)
		}
	}
}

func TestMinorUnitsZeroDecimalCurrencies(t *testing.T) {
	cases := []struct {
		amount   float64
		currency string
		want     int64
	}{
		{500, "JPY", 500},
		{500, "jpy", 500},
		{10000, "KRW", 10000},
		{250000, "VND", 250000},
	}
	for _, tc := range cases {
		if got := minorUnits(tc.amount, tc.currency); got != tc.want {
			t.Fatalf("minorUnits(%v, %s) = %d, want %d", tc.amount, tc.currency, got, tc.want)
		}
	}
}

func TestStripeCreateOrderSendsWholeUnitsForJPY(t *testing.T) {
	var gotAmount int64
	provider, err := NewStripeProvider(StripeProviderConfig{
		Intents: &stubIntentsAPI{
			newFunc: func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
				gotAmount = *params.Amount
				return &stripe.PaymentIntent{ID: "pi_jpy", Status: stripe.PaymentIntentStatusRequiresPaymentMethod}, nil
			},
		},
	})
	if err != nil {
		t.Fatalf("new stripe provider: %v", err)
	}

	_, err = provider.CreateOrder(context.Background(), OrderRequest{Amount: 500, Currency: "JPY"})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if gotAmount != 500 {
		t.Fatalf("amount sent to stripe = %d, want 500", gotAmount)
	}
}
