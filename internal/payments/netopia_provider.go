package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hopehand/api/internal/platform/signature"
)

const (
	netopiaProviderName = "netopia"

	// NetopiaLiveBaseURL is the production payment-initiation endpoint.
	NetopiaLiveBaseURL = "https://secure.netopia-payments.com"
	// NetopiaSandboxBaseURL is the sandbox payment-initiation endpoint.
	NetopiaSandboxBaseURL = "https://secure.sandbox.netopia-payments.com"

	netopiaSignatureHeader = "X-Signature"
	netopiaPublicKeyHeader = "X-Public-Key"

	defaultNetopiaTimeout = 15 * time.Second
	maxNetopiaResponse    = 1 << 20
)

// NetopiaLogger defines the logging contract for redirect provider operations.
type NetopiaLogger func(ctx context.Context, event string, fields map[string]any)

// NetopiaProviderConfig configures the redirect adapter.
type NetopiaProviderConfig struct {
	// PublicKey identifies the key pair to the provider; it does not take part
	// in signing or verification.
	PublicKey string
	// PrivateKey is the shared HMAC secret used for both outbound signing and
	// inbound callback verification.
	PrivateKey string
	BaseURL    string
	HTTPClient *http.Client
	Logger     NetopiaLogger
}

// NetopiaProvider implements the redirect branch of the Provider contract.
// Orders are initiated synchronously; confirmation arrives later through a
// signed callback the orchestrator verifies via VerifyCallback.
type NetopiaProvider struct {
	publicKey  string
	privateKey []byte
	baseURL    string
	httpClient *http.Client
	logger     NetopiaLogger
}

// NewNetopiaProvider constructs the redirect adapter from the given configuration.
func NewNetopiaProvider(cfg NetopiaProviderConfig) (*NetopiaProvider, error) {
	publicKey := strings.TrimSpace(cfg.PublicKey)
	privateKey := strings.TrimSpace(cfg.PrivateKey)
	if publicKey == "" || privateKey == "" {
		return nil, errors.New("netopia: public and private keys are required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = NetopiaSandboxBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultNetopiaTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &NetopiaProvider{
		publicKey:  publicKey,
		privateKey: []byte(privateKey),
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

type netopiaStartPayload struct {
	OrderID     string  `json:"orderId"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Description string  `json:"description,omitempty"`
	ReturnURL   string  `json:"returnUrl"`
	ConfirmURL  string  `json:"confirmUrl"`
}

type netopiaStartResponse struct {
	PaymentID  string `json:"paymentId"`
	PaymentURL string `json:"paymentUrl"`
	Status     string `json:"status"`
}

// CreateOrder signs the payment-initiation payload with the private key and
// submits it with the signature and public-key identifier in request headers.
func (p *NetopiaProvider) CreateOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if p == nil {
		return OrderResult{}, errors.New("netopia: provider is nil")
	}
	if err := ValidateOrderRequest(req); err != nil {
		return OrderResult{}, err
	}
	if strings.TrimSpace(req.ReturnURL) == "" || strings.TrimSpace(req.ConfirmURL) == "" {
		return OrderResult{}, fmt.Errorf("%w: return and confirm URLs are required", ErrInvalidRequest)
	}

	payload := netopiaStartPayload{
		OrderID:     strings.TrimSpace(req.OrderRef),
		Amount:      req.Amount,
		Currency:    strings.ToUpper(strings.TrimSpace(req.Currency)),
		Description: strings.TrimSpace(req.Description),
		ReturnURL:   strings.TrimSpace(req.ReturnURL),
		ConfirmURL:  strings.TrimSpace(req.ConfirmURL),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return OrderResult{}, newProviderError(netopiaProviderName, "create_order", "encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/payment/card/start", bytes.NewReader(body))
	if err != nil {
		return OrderResult{}, newProviderError(netopiaProviderName, "create_order", "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(netopiaPublicKeyHeader, p.publicKey)
	httpReq.Header.Set(netopiaSignatureHeader, signature.Sign(body, p.privateKey))

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return OrderResult{}, newProviderError(netopiaProviderName, "create_order", "request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxNetopiaResponse))
	if err != nil {
		return OrderResult{}, newProviderError(netopiaProviderName, "create_order", "read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return OrderResult{}, newProviderError(netopiaProviderName, "create_order", fmt.Sprintf("status %d", resp.StatusCode), nil)
	}

	var parsed netopiaStartResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return OrderResult{}, newProviderError(netopiaProviderName, "create_order", "decode response", err)
	}
	if strings.TrimSpace(parsed.PaymentID) == "" {
		return OrderResult{}, newProviderError(netopiaProviderName, "create_order", "response missing paymentId", nil)
	}

	raw := map[string]any{}
	_ = json.Unmarshal(respBody, &raw)

	p.logger(ctx, "payments.netopia.payment.started", map[string]any{
		"paymentId": parsed.PaymentID,
		"status":    parsed.Status,
	})
	return OrderResult{
		ProviderOrderID: parsed.PaymentID,
		Status:          strings.ToUpper(strings.TrimSpace(parsed.Status)),
		RedirectURL:     parsed.PaymentURL,
		Raw:             raw,
	}, nil
}

// Capture is not part of the redirect flow; confirmation arrives via callback.
func (p *NetopiaProvider) Capture(context.Context, CaptureRequest) (OrderResult, error) {
	return OrderResult{}, fmt.Errorf("%w: netopia confirms via signed callback", ErrUnsupportedOperation)
}

// VerifyCallback recomputes the HMAC of the raw inbound payload with the
// shared private key and compares it to the supplied signature header.
func (p *NetopiaProvider) VerifyCallback(payload []byte, suppliedSignature string) bool {
	if p == nil || len(p.privateKey) == 0 {
		return false
	}
	return signature.Verify(payload, p.privateKey, strings.TrimSpace(suppliedSignature))
}
