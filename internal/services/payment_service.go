package services

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/hopehand/api/internal/domain"
	"github.com/hopehand/api/internal/payments"
	"github.com/hopehand/api/internal/repositories"
)

const (
	paymentEventCreated   = "payment.created"
	paymentEventCaptured  = "payment.captured"
	paymentEventConfirmed = "payment.confirmed"
)

// providerRegistry abstracts payments.Registry for easier testing.
type providerRegistry interface {
	Resolve(provider domain.PaymentProvider) (payments.Provider, error)
	ResolveVerifier(provider domain.PaymentProvider) (payments.CallbackVerifier, error)
}

// PaymentServiceDeps wires the dependencies required by the payment orchestrator.
type PaymentServiceDeps struct {
	Ledger    repositories.PaymentOrderRepository
	Providers providerRegistry
	Publisher PaymentEventPublisher
	Archiver  CallbackArchiver

	// ReturnURL and ConfirmURL are handed to the redirect provider so the
	// donor lands back on the platform after the hosted payment page.
	ReturnURL  string
	ConfirmURL string

	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	ledger     repositories.PaymentOrderRepository
	providers  providerRegistry
	publisher  PaymentEventPublisher
	archiver   CallbackArchiver
	returnURL  string
	confirmURL string
	now        func() time.Time
	idGen      func() string
	logger     func(ctx context.Context, event string, fields map[string]any)
}

var _ PaymentService = (*paymentService)(nil)

// NewPaymentService constructs a PaymentService validating required dependencies.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Ledger == nil {
		return nil, errors.New("payment service: ledger repository is required")
	}
	if deps.Providers == nil {
		return nil, errors.New("payment service: provider registry is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &paymentService{
		ledger:     deps.Ledger,
		providers:  deps.Providers,
		publisher:  deps.Publisher,
		archiver:   deps.Archiver,
		returnURL:  strings.TrimSpace(deps.ReturnURL),
		confirmURL: strings.TrimSpace(deps.ConfirmURL),
		now: func() time.Time {
			return clock().UTC()
		},
		idGen:  idGen,
		logger: logger,
	}, nil
}

// CreateOrder registers the order with the card/wallet provider, then records
// the ledger row. The provider call always concludes before the ledger write.
func (s *paymentService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (PaymentOrder, error) {
	if cmd.Provider != domain.ProviderCard && cmd.Provider != domain.ProviderWallet {
		return PaymentOrder{}, fmt.Errorf("%w: provider %q cannot create direct orders", ErrInvalidRequest, cmd.Provider)
	}

	req := payments.OrderRequest{
		Amount:      cmd.Amount,
		Currency:    cmd.Currency,
		Description: cmd.Description,
		Metadata:    cmd.Metadata,
	}
	if err := payments.ValidateOrderRequest(req); err != nil {
		return PaymentOrder{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	provider, err := s.providers.Resolve(cmd.Provider)
	if err != nil {
		return PaymentOrder{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	result, err := provider.CreateOrder(ctx, req)
	if err != nil {
		s.logger(ctx, "payment.provider_create_failed", map[string]any{
			"provider": string(cmd.Provider),
			"error":    err.Error(),
		})
		return PaymentOrder{}, err
	}

	order := domain.PaymentOrder{
		InternalID:      s.idGen(),
		ProviderOrderID: result.ProviderOrderID,
		Provider:        cmd.Provider,
		Amount:          cmd.Amount,
		Currency:        strings.ToUpper(strings.TrimSpace(cmd.Currency)),
		Description:     strings.TrimSpace(cmd.Description),
		Metadata:        cmd.Metadata,
		Status:          domain.PaymentStatusCreated,
	}

	recorded, err := s.ledger.Record(ctx, order)
	if err != nil {
		// The provider holds an order the ledger does not know about.
		s.logger(ctx, "payment.ledger_write_failed", map[string]any{
			"provider":        string(cmd.Provider),
			"providerOrderId": result.ProviderOrderID,
			"error":           err.Error(),
		})
		return PaymentOrder{}, fmt.Errorf("%w: provider order %s exists remotely", ErrLedgerWrite, result.ProviderOrderID)
	}

	s.publishEvent(ctx, paymentEventCreated, recorded)
	return recorded, nil
}

// CaptureOrder finalises a created order with the provider and transitions the
// ledger row created -> captured under a status guard.
func (s *paymentService) CaptureOrder(ctx context.Context, cmd CaptureOrderCommand) (PaymentOrder, error) {
	providerOrderID := strings.TrimSpace(cmd.ProviderOrderID)
	if providerOrderID == "" {
		return PaymentOrder{}, fmt.Errorf("%w: provider order id is required", ErrInvalidRequest)
	}
	if cmd.Provider != domain.ProviderCard && cmd.Provider != domain.ProviderWallet {
		return PaymentOrder{}, fmt.Errorf("%w: provider %q cannot capture", ErrInvalidRequest, cmd.Provider)
	}

	order, err := s.ledger.FindByProviderOrderID(ctx, cmd.Provider, providerOrderID)
	if err != nil {
		if isRepoNotFound(err) {
			return PaymentOrder{}, fmt.Errorf("%w: %s/%s", ErrOrderNotFound, cmd.Provider, providerOrderID)
		}
		return PaymentOrder{}, err
	}
	if !order.Status.CanTransition(domain.PaymentStatusCaptured) {
		return PaymentOrder{}, fmt.Errorf("%w: order %s is %s", ErrOrderConflict, providerOrderID, order.Status)
	}

	provider, err := s.providers.Resolve(cmd.Provider)
	if err != nil {
		return PaymentOrder{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	if _, err := provider.Capture(ctx, payments.CaptureRequest{ProviderOrderID: providerOrderID}); err != nil {
		s.logger(ctx, "payment.provider_capture_failed", map[string]any{
			"provider":        string(cmd.Provider),
			"providerOrderId": providerOrderID,
			"error":           err.Error(),
		})
		return PaymentOrder{}, err
	}

	now := s.now()
	captured := domain.PaymentStatusCaptured
	matched, err := s.ledger.TransitionStatus(ctx, cmd.Provider, providerOrderID, domain.PaymentStatusCreated, repositories.PaymentOrderUpdate{
		Status:     &captured,
		CapturedAt: &now,
	})
	if err != nil {
		s.logger(ctx, "payment.ledger_write_failed", map[string]any{
			"provider":        string(cmd.Provider),
			"providerOrderId": providerOrderID,
			"error":           err.Error(),
		})
		return PaymentOrder{}, fmt.Errorf("%w: capture of %s not recorded", ErrLedgerWrite, providerOrderID)
	}
	if !matched {
		// A concurrent capture won the transition.
		return PaymentOrder{}, fmt.Errorf("%w: order %s already transitioned", ErrOrderConflict, providerOrderID)
	}

	order.Status = captured
	order.CapturedAt = &now
	order.UpdatedAt = now

	s.publishEvent(ctx, paymentEventCaptured, order)
	return order, nil
}

// CreateRedirectPayment starts a hosted redirect payment and records the
// ledger row, returning the URL the donor must visit.
func (s *paymentService) CreateRedirectPayment(ctx context.Context, cmd CreateRedirectPaymentCommand) (RedirectPayment, error) {
	req := payments.OrderRequest{
		Amount:      cmd.Amount,
		Currency:    cmd.Currency,
		Description: cmd.Description,
		Metadata:    cmd.Metadata,
		OrderRef:    strings.TrimSpace(cmd.OrderRef),
		ReturnURL:   s.returnURL,
		ConfirmURL:  s.confirmURL,
	}
	if err := payments.ValidateOrderRequest(req); err != nil {
		return RedirectPayment{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.OrderRef == "" {
		req.OrderRef = s.idGen()
	}

	provider, err := s.providers.Resolve(domain.ProviderRedirect)
	if err != nil {
		return RedirectPayment{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	result, err := provider.CreateOrder(ctx, req)
	if err != nil {
		s.logger(ctx, "payment.provider_create_failed", map[string]any{
			"provider": string(domain.ProviderRedirect),
			"error":    err.Error(),
		})
		return RedirectPayment{}, err
	}

	order := domain.PaymentOrder{
		InternalID:      s.idGen(),
		ProviderOrderID: result.ProviderOrderID,
		Provider:        domain.ProviderRedirect,
		Amount:          cmd.Amount,
		Currency:        strings.ToUpper(strings.TrimSpace(cmd.Currency)),
		Description:     strings.TrimSpace(cmd.Description),
		Metadata:        cmd.Metadata,
		Status:          domain.PaymentStatusCreated,
	}

	recorded, err := s.ledger.Record(ctx, order)
	if err != nil {
		s.logger(ctx, "payment.ledger_write_failed", map[string]any{
			"provider":        string(domain.ProviderRedirect),
			"providerOrderId": result.ProviderOrderID,
			"error":           err.Error(),
		})
		return RedirectPayment{}, fmt.Errorf("%w: provider order %s exists remotely", ErrLedgerWrite, result.ProviderOrderID)
	}

	s.publishEvent(ctx, paymentEventCreated, recorded)
	return RedirectPayment{Order: recorded, RedirectURL: result.RedirectURL}, nil
}

// redirectConfirmation is the asynchronous callback body posted by the
// redirect provider after the donor completes the hosted page.
type redirectConfirmation struct {
	PaymentID string  `json:"paymentId"`
	Status    string  `json:"status"`
	Amount    float64 `json:"amount"`
}

// HandleConfirmation verifies the callback signature over the raw body and
// merges the reported outcome into the matching ledger row. An unmatched
// payment id is a tolerated, logged no-op; a bad signature never is.
func (s *paymentService) HandleConfirmation(ctx context.Context, raw []byte, suppliedSignature string) error {
	verifier, err := s.providers.ResolveVerifier(domain.ProviderRedirect)
	if err != nil {
		return ErrUnavailable
	}
	if !verifier.VerifyCallback(raw, suppliedSignature) {
		s.logger(ctx, "confirmation.signature_rejected", map[string]any{
			"bytes": len(raw),
		})
		return ErrInvalidSignature
	}

	var callback redirectConfirmation
	if err := json.Unmarshal(raw, &callback); err != nil {
		return fmt.Errorf("%w: malformed confirmation body", ErrInvalidRequest)
	}
	paymentID := strings.TrimSpace(callback.PaymentID)
	if paymentID == "" {
		return fmt.Errorf("%w: confirmation missing payment id", ErrInvalidRequest)
	}

	now := s.now()
	update := repositories.PaymentOrderUpdate{}
	reported := strings.ToLower(strings.TrimSpace(callback.Status))
	switch reported {
	case "confirmed", "paid":
		confirmed := domain.PaymentStatusConfirmed
		update.Status = &confirmed
		update.ConfirmedAmount = &callback.Amount
		update.ConfirmedAt = &now
	case "failed", "canceled", "cancelled":
		failed := domain.PaymentStatusFailed
		lastErr := "provider reported " + reported
		update.Status = &failed
		update.LastError = &lastErr
	default:
		s.logger(ctx, "confirmation.ignored_status", map[string]any{
			"paymentId": paymentID,
			"status":    reported,
		})
		return nil
	}

	matched, err := s.ledger.UpdateByProviderOrderID(ctx, domain.ProviderRedirect, paymentID, update)
	if err != nil {
		return err
	}
	if !matched {
		// Callback for an order this ledger never saw (or saw twice).
		s.logger(ctx, "confirmation.unmatched", map[string]any{
			"paymentId": paymentID,
			"status":    reported,
		})
		return nil
	}

	s.archiveCallback(ctx, paymentID, raw)

	if update.Status != nil && *update.Status == domain.PaymentStatusConfirmed {
		s.publishEvent(ctx, paymentEventConfirmed, domain.PaymentOrder{
			ProviderOrderID: paymentID,
			Provider:        domain.ProviderRedirect,
			Amount:          callback.Amount,
			Status:          domain.PaymentStatusConfirmed,
		})
	}
	return nil
}

// ListOrders returns ledger rows for the admin surface.
func (s *paymentService) ListOrders(ctx context.Context, filter PaymentOrderListQuery) (domain.CursorPage[PaymentOrder], error) {
	return s.ledger.List(ctx, repositories.PaymentOrderListFilter{
		Provider:   filter.Provider,
		Status:     filter.Status,
		Pagination: filter.Pagination,
	})
}

func (s *paymentService) publishEvent(ctx context.Context, event string, order domain.PaymentOrder) {
	if s.publisher == nil {
		return
	}
	msg := PaymentEventMessage{
		Event:           event,
		InternalID:      order.InternalID,
		Provider:        string(order.Provider),
		ProviderOrderID: order.ProviderOrderID,
		Amount:          order.Amount,
		Currency:        order.Currency,
		Status:          string(order.Status),
		OccurredAt:      s.now().Format(time.RFC3339Nano),
	}
	if _, err := s.publisher.PublishPaymentEvent(ctx, msg); err != nil {
		s.logger(ctx, "payment.event_publish_failed", map[string]any{
			"event": event,
			"error": err.Error(),
		})
	}
}

func (s *paymentService) archiveCallback(ctx context.Context, paymentID string, raw []byte) {
	if s.archiver == nil {
		return
	}
	// The object name is derived from the payload so a replayed callback maps
	// to the same object and the write-once precondition holds.
	objectName := fmt.Sprintf("netopia/%s/%x.json", paymentID, sha256.Sum256(raw))
	if err := s.archiver.ArchiveCallback(ctx, objectName, raw); err != nil {
		s.logger(ctx, "confirmation.archive_failed", map[string]any{
			"paymentId": paymentID,
			"error":     err.Error(),
		})
	}
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
