package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/hopehand/api/internal/domain"
	"github.com/hopehand/api/internal/payments"
	"github.com/hopehand/api/internal/platform/auth"
	"github.com/hopehand/api/internal/platform/httpx"
	"github.com/hopehand/api/internal/platform/pagination"
	"github.com/hopehand/api/internal/services"
)

const (
	maxPaymentRequestBody = 8 * 1024
	maxListStatusFilters  = 10
)

// PaymentHandlers exposes the donor-facing payment endpoints and the admin
// ledger listing.
type PaymentHandlers struct {
	authn    *auth.Authenticator
	payments services.PaymentService
}

// NewPaymentHandlers constructs payment handlers guarded by Firebase authentication.
func NewPaymentHandlers(authn *auth.Authenticator, payments services.PaymentService) *PaymentHandlers {
	return &PaymentHandlers{
		authn:    authn,
		payments: payments,
	}
}

// Routes registers payment endpoints under the provided router.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireFirebaseAuth())
	}
	group.Post("/card/orders", h.createOrder(domain.ProviderCard))
	group.Post("/card/orders/{orderID}/capture", h.captureOrder(domain.ProviderCard))
	group.Post("/paypal/orders", h.createOrder(domain.ProviderWallet))
	group.Post("/paypal/orders/{orderID}/capture", h.captureOrder(domain.ProviderWallet))
	group.Post("/netopia", h.createRedirectPayment)

	admin := r
	if h.authn != nil {
		admin = admin.With(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
	}
	admin.Get("/", h.listOrders)
}

type createOrderRequest struct {
	Amount      float64           `json:"amount"`
	Currency    string            `json:"currency"`
	Description string            `json:"description"`
	OrderRef    string            `json:"orderRef"`
	Metadata    map[string]string `json:"metadata"`
}

type redirectPaymentResponse struct {
	Order       paymentOrderResponse `json:"order"`
	RedirectURL string               `json:"redirectUrl"`
}

type listOrdersResponse struct {
	Items         []paymentOrderResponse `json:"items"`
	NextPageToken string                 `json:"nextPageToken,omitempty"`
}

func (h *PaymentHandlers) createOrder(provider domain.PaymentProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if h.payments == nil {
			httpx.WriteError(ctx, w, httpx.NewError("payments_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
			return
		}

		req, ok := h.decodeOrderRequest(w, r)
		if !ok {
			return
		}

		order, err := h.payments.CreateOrder(ctx, services.CreateOrderCommand{
			Provider:    provider,
			Amount:      req.Amount,
			Currency:    strings.TrimSpace(req.Currency),
			Description: strings.TrimSpace(req.Description),
			Metadata:    req.Metadata,
		})
		if err != nil {
			writePaymentError(ctx, w, err)
			return
		}

		writeJSONResponse(w, http.StatusCreated, newPaymentOrderResponse(order))
	}
}

func (h *PaymentHandlers) captureOrder(provider domain.PaymentProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if h.payments == nil {
			httpx.WriteError(ctx, w, httpx.NewError("payments_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
			return
		}

		orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
		if orderID == "" {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
			return
		}

		order, err := h.payments.CaptureOrder(ctx, services.CaptureOrderCommand{
			Provider:        provider,
			ProviderOrderID: orderID,
		})
		if err != nil {
			writePaymentError(ctx, w, err)
			return
		}

		writeJSONResponse(w, http.StatusOK, newPaymentOrderResponse(order))
	}
}

func (h *PaymentHandlers) createRedirectPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payments_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	req, ok := h.decodeOrderRequest(w, r)
	if !ok {
		return
	}

	payment, err := h.payments.CreateRedirectPayment(ctx, services.CreateRedirectPaymentCommand{
		Amount:      req.Amount,
		Currency:    strings.TrimSpace(req.Currency),
		Description: strings.TrimSpace(req.Description),
		OrderRef:    strings.TrimSpace(req.OrderRef),
		Metadata:    req.Metadata,
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, redirectPaymentResponse{
		Order:       newPaymentOrderResponse(payment.Order),
		RedirectURL: payment.RedirectURL,
	})
}

func (h *PaymentHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payments_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize: pagination.DefaultPageSize,
		MaxPageSize:     pagination.DefaultMaxPageSize,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := services.PaymentOrderListQuery{
		Pagination: domain.Pagination{
			PageSize:  params.PageSize,
			PageToken: params.PageToken,
		},
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("provider")); raw != "" {
		provider, ok := domain.ParsePaymentProvider(raw)
		if !ok {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown provider filter", http.StatusBadRequest))
			return
		}
		query.Provider = &provider
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		parts := strings.Split(raw, ",")
		if len(parts) > maxListStatusFilters {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "too many status filters", http.StatusBadRequest))
			return
		}
		for _, part := range parts {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			switch status := domain.PaymentStatus(part); status {
			case domain.PaymentStatusInitialized, domain.PaymentStatusCreated,
				domain.PaymentStatusCaptured, domain.PaymentStatusConfirmed,
				domain.PaymentStatusFailed:
				query.Status = append(query.Status, status)
			default:
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown status filter", http.StatusBadRequest))
				return
			}
		}
	}

	page, err := h.payments.ListOrders(ctx, query)
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	resp := listOrdersResponse{
		Items:         make([]paymentOrderResponse, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, order := range page.Items {
		resp.Items = append(resp.Items, newPaymentOrderResponse(order))
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *PaymentHandlers) decodeOrderRequest(w http.ResponseWriter, r *http.Request) (createOrderRequest, bool) {
	ctx := r.Context()

	var req createOrderRequest

	body, err := readLimitedBody(r, maxPaymentRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return req, false
	}

	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return req, false
	}

	return req, true
}

func writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	if providerErr, ok := payments.AsProviderError(err); ok {
		httpx.WriteError(ctx, w, httpx.NewError("provider_error", providerErr.Error(), http.StatusBadGateway))
		return
	}

	switch {
	case errors.Is(err, services.ErrUnauthenticated):
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
	case errors.Is(err, services.ErrPermissionDenied):
		httpx.WriteError(ctx, w, httpx.NewError("permission_denied", "caller lacks required role", http.StatusForbidden))
	case errors.Is(err, services.ErrInvalidRequest):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "no payment order matches the provided id", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "payment order already left the expected status", http.StatusConflict))
	case errors.Is(err, services.ErrLedgerWrite):
		httpx.WriteError(ctx, w, httpx.NewError("ledger_write_failed", err.Error(), http.StatusBadGateway))
	case errors.Is(err, services.ErrUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("payments_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("payment_error", "failed to process payment request", http.StatusInternalServerError))
	}
}
