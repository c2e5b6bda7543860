package services

import (
	"context"

	domain "github.com/hopehand/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	PaymentOrder       = domain.PaymentOrder
	PaymentProvider    = domain.PaymentProvider
	PaymentStatus      = domain.PaymentStatus
	EmailLog           = domain.EmailLog
	UserProfile        = domain.UserProfile
	SystemHealthReport = domain.SystemHealthReport
)

// PaymentService orchestrates provider calls and the transaction ledger.
// Provider interactions always conclude before any ledger write.
type PaymentService interface {
	// CreateOrder registers a new order with the provider (card or wallet)
	// and records a ledger row in status created.
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (PaymentOrder, error)
	// CaptureOrder finalises a previously created order and moves the ledger
	// row created -> captured under a status guard.
	CaptureOrder(ctx context.Context, cmd CaptureOrderCommand) (PaymentOrder, error)
	// CreateRedirectPayment starts a redirect payment and returns the URL the
	// donor must be sent to.
	CreateRedirectPayment(ctx context.Context, cmd CreateRedirectPaymentCommand) (RedirectPayment, error)
	// HandleConfirmation processes a signed asynchronous callback. Unmatched
	// payment ids are tolerated as logged no-ops; bad signatures are not.
	HandleConfirmation(ctx context.Context, raw []byte, suppliedSignature string) error
	// ListOrders returns ledger rows newest first for the admin surface.
	ListOrders(ctx context.Context, filter PaymentOrderListQuery) (domain.CursorPage[PaymentOrder], error)
}

// CreateOrderCommand carries caller input for card/wallet order creation.
type CreateOrderCommand struct {
	Provider    PaymentProvider
	Amount      float64
	Currency    string
	Description string
	Metadata    map[string]string
}

// CaptureOrderCommand identifies the provider order to finalise.
type CaptureOrderCommand struct {
	Provider        PaymentProvider
	ProviderOrderID string
}

// CreateRedirectPaymentCommand carries caller input for a redirect payment.
type CreateRedirectPaymentCommand struct {
	Amount      float64
	Currency    string
	Description string
	OrderRef    string
	Metadata    map[string]string
}

// RedirectPayment couples the recorded ledger row with the hosted payment URL.
type RedirectPayment struct {
	Order       PaymentOrder
	RedirectURL string
}

// PaymentOrderListQuery filters ledger listings.
type PaymentOrderListQuery struct {
	Provider   *PaymentProvider
	Status     []PaymentStatus
	Pagination Pagination
}

// EmailService sends operator-authorised email and records every attempt.
type EmailService interface {
	Send(ctx context.Context, cmd SendEmailCommand) error
}

// SendEmailCommand carries the outbound message and the acting caller. The
// plain-text body is required; the HTML body is an optional alternative part.
type SendEmailCommand struct {
	CallerUID string
	To        string
	Subject   string
	TextBody  string
	HTMLBody  string
}

// SystemService exposes operational utilities shared across handlers.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// PaymentEventPublisher pushes ledger lifecycle events to interested consumers.
// Publishing is best-effort; failures must never fail the payment operation.
type PaymentEventPublisher interface {
	PublishPaymentEvent(ctx context.Context, event PaymentEventMessage) (string, error)
}

// PaymentEventMessage is the payload delivered to downstream consumers via Pub/Sub.
type PaymentEventMessage struct {
	Event           string  `json:"event"`
	InternalID      string  `json:"internalId"`
	Provider        string  `json:"provider"`
	ProviderOrderID string  `json:"providerOrderId"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	Status          string  `json:"status"`
	OccurredAt      string  `json:"occurredAt"`
}

// CallbackArchiver retains raw verified webhook payloads for audit.
type CallbackArchiver interface {
	ArchiveCallback(ctx context.Context, objectName string, payload []byte) error
}
