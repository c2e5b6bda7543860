package repositories

import (
	"context"
	"time"

	domain "github.com/hopehand/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// PaymentOrderRepository persists the payment ledger. Every provider
// interaction appends or mutates exactly one ledger row keyed by the
// internal ULID, with provider + providerOrderId as the lookup pair for
// asynchronous confirmations.
type PaymentOrderRepository interface {
	// Record inserts a new ledger row. The order's InternalID must be set.
	Record(ctx context.Context, order domain.PaymentOrder) (domain.PaymentOrder, error)

	// UpdateByProviderOrderID applies the update to the single row matching
	// the provider + provider order ID pair. Zero or multiple matches are
	// reported as (false, nil) so callers can log and skip rather than fail.
	UpdateByProviderOrderID(ctx context.Context, provider domain.PaymentProvider, providerOrderID string, update PaymentOrderUpdate) (bool, error)

	// TransitionStatus applies the update only when the matched row is still
	// in the expected status. A row in any other status yields (false, nil).
	TransitionStatus(ctx context.Context, provider domain.PaymentProvider, providerOrderID string, from domain.PaymentStatus, update PaymentOrderUpdate) (bool, error)

	// FindByProviderOrderID loads the ledger row for the pair, returning a
	// not-found RepositoryError when absent.
	FindByProviderOrderID(ctx context.Context, provider domain.PaymentProvider, providerOrderID string) (domain.PaymentOrder, error)

	// List returns ledger rows newest first with cursor pagination.
	List(ctx context.Context, filter PaymentOrderListFilter) (domain.CursorPage[domain.PaymentOrder], error)
}

// PaymentOrderUpdate carries the optional fields mutated during a ledger update.
// Nil pointers leave the stored value untouched; UpdatedAt is always bumped.
type PaymentOrderUpdate struct {
	Status          *domain.PaymentStatus
	ProviderOrderID *string
	ConfirmedAmount *float64
	LastError       *string
	Metadata        map[string]string
	CapturedAt      *time.Time
	ConfirmedAt     *time.Time
}

// PaymentOrderListFilter controls provider/status filtering and paging for ledger listings.
type PaymentOrderListFilter struct {
	Provider   *domain.PaymentProvider
	Status     []domain.PaymentStatus
	Pagination domain.Pagination
}

// EmailLogRepository appends delivery attempts to the immutable email audit trail.
type EmailLogRepository interface {
	Append(ctx context.Context, entry domain.EmailLog) (domain.EmailLog, error)
}

// UserProfileRepository reads profile documents backing the authorization gate.
type UserProfileRepository interface {
	FindByID(ctx context.Context, uid string) (domain.UserProfile, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
