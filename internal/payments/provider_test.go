package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/hopehand/api/internal/domain"
)

type stubProvider struct {
	createFunc func(ctx context.Context, req OrderRequest) (OrderResult, error)
	captureFunc func(ctx context.Context, req CaptureRequest) (OrderResult, error)
}

func (s *stubProvider) CreateOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if s.createFunc == nil {
		return OrderResult{}, errors.New("not implemented")
	}
	return s.createFunc(ctx, req)
}

func (s *stubProvider) Capture(ctx context.Context, req CaptureRequest) (OrderResult, error) {
	if s.captureFunc == nil {
		return OrderResult{}, errors.New("not implemented")
	}
	return s.captureFunc(ctx, req)
}

func TestValidateOrderRequest(t *testing.T) {
	cases := []struct {
		name    string
		req     OrderRequest
		wantErr bool
	}{
		{"valid usd", OrderRequest{Amount: 19.99, Currency: "USD"}, false},
		{"valid lowercase", OrderRequest{Amount: 100, Currency: "ron"}, false},
		{"zero amount", OrderRequest{Amount: 0, Currency: "USD"}, true},
		{"negative amount", OrderRequest{Amount: -5, Currency: "USD"}, true},
		{"missing currency", OrderRequest{Amount: 10}, true},
		{"two letter currency", OrderRequest{Amount: 10, Currency: "US"}, true},
		{"unknown currency", OrderRequest{Amount: 10, Currency: "ZZZ"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateOrderRequest(tc.req)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidRequest) {
					t.Fatalf("expected ErrInvalidRequest, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestRegistryResolve(t *testing.T) {
	wallet := &stubProvider{}
	registry, err := NewRegistry(map[domain.PaymentProvider]Provider{
		domain.ProviderWallet: wallet,
	})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	resolved, err := registry.Resolve(domain.ProviderWallet)
	if err != nil {
		t.Fatalf("resolve wallet: %v", err)
	}
	if resolved != wallet {
		t.Fatal("expected registered wallet adapter")
	}

	if _, err := registry.Resolve(domain.ProviderCard); !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestRegistryRejectsEmptyAndNil(t *testing.T) {
	if _, err := NewRegistry(nil); err == nil {
		t.Fatal("expected error for empty registry")
	}
	if _, err := NewRegistry(map[domain.PaymentProvider]Provider{domain.ProviderCard: nil}); err == nil {
		t.Fatal("expected error for nil adapter")
	}
}

func TestRegistryResolveVerifier(t *testing.T) {
	netopia, err := NewNetopiaProvider(NetopiaProviderConfig{
		PublicKey:  "pub-1",
		PrivateKey: "private-key",
	})
	if err != nil {
		t.Fatalf("new netopia provider: %v", err)
	}

	registry, err := NewRegistry(map[domain.PaymentProvider]Provider{
		domain.ProviderRedirect: netopia,
		domain.ProviderWallet:   &stubProvider{},
	})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	if _, err := registry.ResolveVerifier(domain.ProviderRedirect); err != nil {
		t.Fatalf("expected redirect verifier, got %v", err)
	}
	if _, err := registry.ResolveVerifier(domain.ProviderWallet); !errors.Is(err, ErrUnsupportedOperation) {
		t.Fatalf("expected ErrUnsupportedOperation, got %v", err)
	}
}

func TestProviderErrorMessage(t *testing.T) {
	err := newProviderError("paypal", "token", "status 401", nil)
	if got := err.Error(); got != "paypal: token: status 401" {
		t.Fatalf("unexpected message %q", got)
	}

	var pe *ProviderError
	if !errors.As(error(err), &pe) {
		t.Fatal("expected errors.As to match ProviderError")
	}
}
