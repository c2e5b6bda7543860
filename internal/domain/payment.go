package domain

import (
	"strings"
	"time"
)

// PaymentProvider identifies the external processor an order belongs to.
type PaymentProvider string

const (
	// ProviderCard is the card processor (Stripe).
	ProviderCard PaymentProvider = "card"
	// ProviderWallet is the OAuth wallet processor (PayPal).
	ProviderWallet PaymentProvider = "wallet"
	// ProviderRedirect is the bank-redirect processor (Netopia).
	ProviderRedirect PaymentProvider = "redirect"
)

// ParsePaymentProvider normalises a provider label, returning false for unknown values.
func ParsePaymentProvider(value string) (PaymentProvider, bool) {
	switch PaymentProvider(strings.ToLower(strings.TrimSpace(value))) {
	case ProviderCard:
		return ProviderCard, true
	case ProviderWallet:
		return ProviderWallet, true
	case ProviderRedirect:
		return ProviderRedirect, true
	default:
		return "", false
	}
}

// PaymentStatus enumerates the lifecycle states of a payment order.
type PaymentStatus string

const (
	// PaymentStatusInitialized marks an order that exists only in the caller's request.
	PaymentStatusInitialized PaymentStatus = "initialized"
	// PaymentStatusCreated marks an order acknowledged by the provider and recorded in the ledger.
	PaymentStatusCreated PaymentStatus = "created"
	// PaymentStatusCaptured marks a card/wallet order whose funds have been captured.
	PaymentStatusCaptured PaymentStatus = "captured"
	// PaymentStatusConfirmed marks a redirect order accepted via signed callback.
	PaymentStatusConfirmed PaymentStatus = "confirmed"
	// PaymentStatusFailed is terminal and reachable from any non-terminal state.
	PaymentStatusFailed PaymentStatus = "failed"
)

// CanTransition reports whether the status graph permits moving from s to next.
// Failed is reachable from every non-terminal state; otherwise transitions are
// monotonic along initialized -> created -> captured/confirmed.
func (s PaymentStatus) CanTransition(next PaymentStatus) bool {
	if s == next {
		return false
	}
	if next == PaymentStatusFailed {
		return !s.Terminal()
	}
	switch s {
	case PaymentStatusInitialized:
		return next == PaymentStatusCreated
	case PaymentStatusCreated:
		return next == PaymentStatusCaptured || next == PaymentStatusConfirmed
	default:
		return false
	}
}

// Terminal reports whether no further transitions are possible from s.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusCaptured || s == PaymentStatusConfirmed || s == PaymentStatusFailed
}

// PaymentOrder is the ledger row describing one monetary transaction.
//
// InternalID is assigned by the ledger at record time and never changes.
// ProviderOrderID is assigned by the external provider and is unique within
// that provider's namespace once set. Amount and Currency are immutable after
// creation; timestamps are assigned by the ledger, never by callers.
type PaymentOrder struct {
	InternalID      string
	ProviderOrderID string
	Provider        PaymentProvider
	Amount          float64
	Currency        string
	Description     string
	Metadata        map[string]string
	Status          PaymentStatus
	ConfirmedAmount float64
	LastError       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CapturedAt      *time.Time
	ConfirmedAt     *time.Time
}

// EmailLog records one outbound email attempt, success or failure.
type EmailLog struct {
	ID      string
	To      string
	Subject string
	SentBy  string
	Success bool
	Error   string
	SentAt  time.Time
}
