package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	domain "github.com/hopehand/api/internal/domain"
)

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body exceeds size limit")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = 8 * 1024
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// paymentOrderResponse is the JSON view of a ledger row shared by all payment endpoints.
type paymentOrderResponse struct {
	ID              string            `json:"id"`
	ProviderOrderID string            `json:"providerOrderId,omitempty"`
	Provider        string            `json:"provider"`
	Amount          float64           `json:"amount"`
	Currency        string            `json:"currency"`
	Description     string            `json:"description,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Status          string            `json:"status"`
	ConfirmedAmount float64           `json:"confirmedAmount,omitempty"`
	LastError       string            `json:"lastError,omitempty"`
	CreatedAt       string            `json:"createdAt,omitempty"`
	UpdatedAt       string            `json:"updatedAt,omitempty"`
	CapturedAt      string            `json:"capturedAt,omitempty"`
	ConfirmedAt     string            `json:"confirmedAt,omitempty"`
}

func newPaymentOrderResponse(order domain.PaymentOrder) paymentOrderResponse {
	return paymentOrderResponse{
		ID:              order.InternalID,
		ProviderOrderID: order.ProviderOrderID,
		Provider:        string(order.Provider),
		Amount:          order.Amount,
		Currency:        order.Currency,
		Description:     order.Description,
		Metadata:        order.Metadata,
		Status:          string(order.Status),
		ConfirmedAmount: order.ConfirmedAmount,
		LastError:       order.LastError,
		CreatedAt:       formatTime(order.CreatedAt),
		UpdatedAt:       formatTime(order.UpdatedAt),
		CapturedAt:      formatTimePtr(order.CapturedAt),
		ConfirmedAt:     formatTimePtr(order.ConfirmedAt),
	}
}
