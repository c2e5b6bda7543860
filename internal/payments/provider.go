package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/currency"

	"github.com/hopehand/api/internal/domain"
)

var (
	// ErrUnsupportedProvider is returned when the registry cannot locate an adapter.
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	// ErrUnsupportedOperation indicates the provider has no equivalent of the requested call.
	ErrUnsupportedOperation = errors.New("payments: operation not supported by provider")
	// ErrInvalidRequest indicates the payment request failed validation before any network call.
	ErrInvalidRequest = errors.New("payments: invalid request")
)

// OrderRequest captures the normalised payload for creating a provider order.
type OrderRequest struct {
	Amount      float64
	Currency    string
	Description string
	Metadata    map[string]string

	// OrderRef is the caller-assigned order reference forwarded to providers
	// that require one (the redirect processor).
	OrderRef string
	// ReturnURL and ConfirmURL are only consumed by the redirect processor.
	ReturnURL  string
	ConfirmURL string
}

// CaptureRequest identifies a previously created order to capture.
type CaptureRequest struct {
	ProviderOrderID string
}

// OrderResult normalises provider responses for the orchestrator.
type OrderResult struct {
	ProviderOrderID string
	Status          string
	RedirectURL     string
	Raw             map[string]any
}

// Provider is the contract every payment adapter implements. Adapters own
// provider-specific authentication and request shapes; they never retry.
type Provider interface {
	CreateOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	Capture(ctx context.Context, req CaptureRequest) (OrderResult, error)
}

// CallbackVerifier is implemented by providers that confirm payments through
// asynchronous signed callbacks rather than synchronous capture.
type CallbackVerifier interface {
	VerifyCallback(payload []byte, suppliedSignature string) bool
}

// ProviderError is the single normalised failure type for provider/network
// errors. It carries a short diagnostic, never the raw provider payload.
type ProviderError struct {
	Provider string
	Op       string
	Message  string
	cause    error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s failed", e.Provider, e.Op)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func newProviderError(provider, op, message string, cause error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Op:       op,
		Message:  strings.TrimSpace(message),
		cause:    cause,
	}
}

// AsProviderError reports whether err (or anything it wraps) is a ProviderError.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// ValidateOrderRequest enforces the invariants shared by every adapter before
// any network call: a positive amount and a recognised ISO-4217 currency.
func ValidateOrderRequest(req OrderRequest) error {
	if req.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	code := strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(code) != 3 {
		return fmt.Errorf("%w: currency must be a 3-letter ISO code", ErrInvalidRequest)
	}
	if _, err := currency.ParseISO(code); err != nil {
		return fmt.Errorf("%w: unrecognised currency %q", ErrInvalidRequest, code)
	}
	return nil
}

// Registry resolves adapters by provider. Adapters are constructed explicitly
// in main and injected; there are no package-level client singletons.
type Registry struct {
	providers map[domain.PaymentProvider]Provider
}

// NewRegistry constructs a Registry over the supplied adapters.
func NewRegistry(providers map[domain.PaymentProvider]Provider) (*Registry, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copied := make(map[domain.PaymentProvider]Provider, len(providers))
	for key, p := range providers {
		if p == nil {
			return nil, fmt.Errorf("payments: nil adapter registered for provider %q", key)
		}
		copied[key] = p
	}
	return &Registry{providers: copied}, nil
}

// Resolve returns the adapter registered for the given provider.
func (r *Registry) Resolve(provider domain.PaymentProvider) (Provider, error) {
	if r == nil || len(r.providers) == 0 {
		return nil, ErrUnsupportedProvider
	}
	p, ok := r.providers[provider]
	if !ok {
		return nil, ErrUnsupportedProvider
	}
	return p, nil
}

// ResolveVerifier returns the callback verifier for the given provider when
// the registered adapter supports asynchronous confirmations.
func (r *Registry) ResolveVerifier(provider domain.PaymentProvider) (CallbackVerifier, error) {
	p, err := r.Resolve(provider)
	if err != nil {
		return nil, err
	}
	verifier, ok := p.(CallbackVerifier)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not verify callbacks", ErrUnsupportedOperation, provider)
	}
	return verifier, nil
}
