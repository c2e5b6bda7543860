package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	paypalProviderName = "paypal"

	// PayPalLiveBaseURL is the production REST endpoint.
	PayPalLiveBaseURL = "https://api-m.paypal.com"
	// PayPalSandboxBaseURL is the sandbox REST endpoint.
	PayPalSandboxBaseURL = "https://api-m.sandbox.paypal.com"

	defaultPayPalTimeout = 15 * time.Second
	maxPayPalResponse    = 1 << 20
)

// PayPalLogger defines the logging contract for wallet provider operations.
type PayPalLogger func(ctx context.Context, event string, fields map[string]any)

// PayPalProviderConfig configures the wallet adapter.
type PayPalProviderConfig struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	HTTPClient   *http.Client
	Logger       PayPalLogger
}

// PayPalProvider implements the wallet branch of the Provider contract. Every
// order and capture call performs its own client-credentials token exchange;
// tokens are deliberately not cached.
type PayPalProvider struct {
	clientID     string
	clientSecret string
	baseURL      string
	httpClient   *http.Client
	logger       PayPalLogger
}

// NewPayPalProvider constructs the wallet adapter from the given configuration.
func NewPayPalProvider(cfg PayPalProviderConfig) (*PayPalProvider, error) {
	clientID := strings.TrimSpace(cfg.ClientID)
	clientSecret := strings.TrimSpace(cfg.ClientSecret)
	if clientID == "" || clientSecret == "" {
		return nil, errors.New("paypal: client id and secret are required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = PayPalSandboxBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultPayPalTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &PayPalProvider{
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      baseURL,
		httpClient:   httpClient,
		logger:       logger,
	}, nil
}

type paypalOrderPayload struct {
	Intent        string               `json:"intent"`
	PurchaseUnits []paypalPurchaseUnit `json:"purchase_units"`
}

type paypalPurchaseUnit struct {
	Amount      paypalAmount `json:"amount"`
	Description string       `json:"description,omitempty"`
	CustomID    string       `json:"custom_id,omitempty"`
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalOrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
}

// CreateOrder exchanges credentials for a bearer token and creates an order.
func (p *PayPalProvider) CreateOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if p == nil {
		return OrderResult{}, errors.New("paypal: provider is nil")
	}
	if err := ValidateOrderRequest(req); err != nil {
		return OrderResult{}, err
	}

	token, err := p.fetchAccessToken(ctx)
	if err != nil {
		return OrderResult{}, err
	}

	payload := paypalOrderPayload{
		Intent: "CAPTURE",
		PurchaseUnits: []paypalPurchaseUnit{
			{
				Amount: paypalAmount{
					CurrencyCode: strings.ToUpper(strings.TrimSpace(req.Currency)),
					Value:        strconv.FormatFloat(req.Amount, 'f', 2, 64),
				},
				Description: strings.TrimSpace(req.Description),
				// PayPal offers a single custom_id slot per purchase unit, so
				// only the "reference" metadata key is forwarded; the full map
				// is stored verbatim on the ledger row.
				CustomID: strings.TrimSpace(req.Metadata["reference"]),
			},
		},
	}

	var parsed paypalOrderResponse
	raw, err := p.postJSON(ctx, "create_order", p.baseURL+"/v2/checkout/orders", token, payload, &parsed)
	if err != nil {
		return OrderResult{}, err
	}
	if strings.TrimSpace(parsed.ID) == "" {
		return OrderResult{}, newProviderError(paypalProviderName, "create_order", "response missing order id", nil)
	}

	p.logger(ctx, "payments.paypal.order.created", map[string]any{
		"orderId": parsed.ID,
		"status":  parsed.Status,
	})
	return paypalOrderResult(parsed, raw), nil
}

// Capture finalises a previously approved order.
func (p *PayPalProvider) Capture(ctx context.Context, req CaptureRequest) (OrderResult, error) {
	if p == nil {
		return OrderResult{}, errors.New("paypal: provider is nil")
	}
	orderID := strings.TrimSpace(req.ProviderOrderID)
	if orderID == "" {
		return OrderResult{}, fmt.Errorf("%w: provider order id is required", ErrInvalidRequest)
	}

	token, err := p.fetchAccessToken(ctx)
	if err != nil {
		return OrderResult{}, err
	}

	endpoint := fmt.Sprintf("%s/v2/checkout/orders/%s/capture", p.baseURL, url.PathEscape(orderID))
	var parsed paypalOrderResponse
	raw, err := p.postJSON(ctx, "capture", endpoint, token, struct{}{}, &parsed)
	if err != nil {
		return OrderResult{}, err
	}
	if strings.TrimSpace(parsed.ID) == "" {
		parsed.ID = orderID
	}

	p.logger(ctx, "payments.paypal.order.captured", map[string]any{
		"orderId": parsed.ID,
		"status":  parsed.Status,
	})
	return paypalOrderResult(parsed, raw), nil
}

// fetchAccessToken performs the OAuth client-credentials exchange. A non-2xx
// response or missing access_token field is a provider error.
func (p *PayPalProvider) fetchAccessToken(ctx context.Context) (string, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", newProviderError(paypalProviderName, "token", "build request", err)
	}
	httpReq.SetBasicAuth(p.clientID, p.clientSecret)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", newProviderError(paypalProviderName, "token", "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayPalResponse))
	if err != nil {
		return "", newProviderError(paypalProviderName, "token", "read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", newProviderError(paypalProviderName, "token", fmt.Sprintf("status %d", resp.StatusCode), nil)
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", newProviderError(paypalProviderName, "token", "decode response", err)
	}
	if strings.TrimSpace(parsed.AccessToken) == "" {
		return "", newProviderError(paypalProviderName, "token", "response missing access_token", nil)
	}
	return parsed.AccessToken, nil
}

func (p *PayPalProvider) postJSON(ctx context.Context, op, endpoint, token string, payload any, out any) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, newProviderError(paypalProviderName, op, "encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, newProviderError(paypalProviderName, op, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, newProviderError(paypalProviderName, op, "request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxPayPalResponse))
	if err != nil {
		return nil, newProviderError(paypalProviderName, op, "read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newProviderError(paypalProviderName, op, fmt.Sprintf("status %d", resp.StatusCode), nil)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return nil, newProviderError(paypalProviderName, op, "decode response", err)
		}
	}

	raw := map[string]any{}
	_ = json.Unmarshal(respBody, &raw)
	return raw, nil
}

func paypalOrderResult(parsed paypalOrderResponse, raw map[string]any) OrderResult {
	result := OrderResult{
		ProviderOrderID: parsed.ID,
		Status:          strings.ToUpper(strings.TrimSpace(parsed.Status)),
		Raw:             raw,
	}
	for _, link := range parsed.Links {
		if strings.EqualFold(link.Rel, "approve") {
			result.RedirectURL = link.Href
			break
		}
	}
	return result
}
