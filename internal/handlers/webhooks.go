package handlers

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hopehand/api/internal/platform/httpx"
	"github.com/hopehand/api/internal/services"
)

const (
	maxWebhookBody = 64 * 1024

	webhookSignatureHeader = "X-Signature"

	webhookRateLimit  = 120
	webhookRateWindow = time.Minute
)

// WebhookHandlers receives asynchronous provider callbacks. The endpoints are
// unauthenticated; authenticity rests on the payload signature alone.
type WebhookHandlers struct {
	payments services.PaymentService
	limiter  rateLimiter
}

// WebhookOption customises WebhookHandlers construction.
type WebhookOption func(*WebhookHandlers)

// WithWebhookRateLimiter overrides the per-client rate limiter.
func WithWebhookRateLimiter(limiter rateLimiter) WebhookOption {
	return func(h *WebhookHandlers) {
		h.limiter = limiter
	}
}

// NewWebhookHandlers constructs handlers for provider callback endpoints.
func NewWebhookHandlers(payments services.PaymentService, opts ...WebhookOption) *WebhookHandlers {
	h := &WebhookHandlers{
		payments: payments,
		limiter:  newSimpleRateLimiter(webhookRateLimit, webhookRateWindow, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers webhook endpoints under the provided router.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/netopia", h.netopiaCallback)
}

// netopiaCallback verifies and applies a signed payment confirmation.
//
// The provider retries on any non-200 response, so unmatched payment ids
// deliberately return 200: retrying cannot make an unknown id match. Bad
// signatures and internal failures return 500 so the provider retries later.
func (h *WebhookHandlers) netopiaCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.limiter != nil && !h.limiter.Allow(clientKey(r)) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many callback requests", http.StatusTooManyRequests))
		return
	}

	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payments_unavailable", "payment service unavailable", http.StatusInternalServerError))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBody)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_callback", err.Error(), http.StatusInternalServerError))
		return
	}

	signature := strings.TrimSpace(r.Header.Get(webhookSignatureHeader))

	if err := h.payments.HandleConfirmation(ctx, body, signature); err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidSignature):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "callback signature verification failed", http.StatusInternalServerError))
		case errors.Is(err, services.ErrInvalidRequest):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_callback", "callback payload is malformed", http.StatusInternalServerError))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("callback_failed", "failed to process callback", http.StatusInternalServerError))
		}
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func clientKey(r *http.Request) string {
	if r == nil {
		return ""
	}
	// RemoteAddr may already be a bare IP when middleware rewrote it.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
