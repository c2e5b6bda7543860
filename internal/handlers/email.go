package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hopehand/api/internal/platform/auth"
	"github.com/hopehand/api/internal/platform/httpx"
	"github.com/hopehand/api/internal/services"
)

const maxEmailRequestBody = 256 * 1024

// EmailHandlers exposes the operator email endpoint. Authorisation against the
// profile store happens inside the service; the handler only establishes who
// the caller is.
type EmailHandlers struct {
	authn *auth.Authenticator
	email services.EmailService
}

// NewEmailHandlers constructs email handlers guarded by Firebase authentication.
func NewEmailHandlers(authn *auth.Authenticator, email services.EmailService) *EmailHandlers {
	return &EmailHandlers{
		authn: authn,
		email: email,
	}
}

// Routes registers email endpoints under the provided router.
func (h *EmailHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireFirebaseAuth())
	}
	group.Post("/send", h.send)
}

type sendEmailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}

type sendEmailResponse struct {
	Status string `json:"status"`
}

func (h *EmailHandlers) send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.email == nil {
		httpx.WriteError(ctx, w, httpx.NewError("email_unavailable", "email service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, maxEmailRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req sendEmailRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	cmd := services.SendEmailCommand{
		CallerUID: identity.UID,
		To:        strings.TrimSpace(req.To),
		Subject:   strings.TrimSpace(req.Subject),
		TextBody:  req.Text,
		HTMLBody:  req.HTML,
	}

	if err := h.email.Send(ctx, cmd); err != nil {
		writeEmailError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, sendEmailResponse{Status: "sent"})
}

func writeEmailError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrUnauthenticated):
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
	case errors.Is(err, services.ErrPermissionDenied):
		httpx.WriteError(ctx, w, httpx.NewError("permission_denied", "caller is not authorised to send email", http.StatusForbidden))
	case errors.Is(err, services.ErrInvalidRequest):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrEmailDelivery):
		httpx.WriteError(ctx, w, httpx.NewError("delivery_failed", "email relay rejected the message", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("email_error", "failed to send email", http.StatusInternalServerError))
	}
}
