package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/hopehand/api/internal/domain"
	pfirestore "github.com/hopehand/api/internal/platform/firestore"
	"github.com/hopehand/api/internal/platform/pagination"
	"github.com/hopehand/api/internal/repositories"
)

const paymentOrderCollection = "paymentOrders"

// PaymentOrderRepository stores the payment ledger in Firestore. Documents are
// keyed by the internal ULID; asynchronous confirmations locate rows through
// the provider + providerOrderId pair inside a transaction.
type PaymentOrderRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[paymentOrderDocument]
	clock    func() time.Time
}

// NewPaymentOrderRepository constructs a Firestore-backed payment ledger.
func NewPaymentOrderRepository(provider *pfirestore.Provider) (*PaymentOrderRepository, error) {
	if provider == nil {
		return nil, errors.New("payment order repository requires firestore provider")
	}
	return &PaymentOrderRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[paymentOrderDocument](provider, paymentOrderCollection, nil, nil),
		clock:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Record inserts a new ledger row under the order's internal ID.
func (r *PaymentOrderRepository) Record(ctx context.Context, order domain.PaymentOrder) (domain.PaymentOrder, error) {
	if r == nil || r.base == nil {
		return domain.PaymentOrder{}, errors.New("payment order repository not initialised")
	}
	id := strings.TrimSpace(order.InternalID)
	if id == "" {
		return domain.PaymentOrder{}, errors.New("payment order repository: internal id is required")
	}

	now := r.clock()
	doc := encodePaymentOrder(order)
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	if _, err := r.base.Set(ctx, id, doc); err != nil {
		return domain.PaymentOrder{}, err
	}
	return doc.toDomain(id), nil
}

// UpdateByProviderOrderID mutates the single ledger row matching the provider
// pair. Zero or multiple matches are reported as (false, nil): the caller owns
// the decision to log and skip.
func (r *PaymentOrderRepository) UpdateByProviderOrderID(ctx context.Context, provider domain.PaymentProvider, providerOrderID string, update repositories.PaymentOrderUpdate) (bool, error) {
	return r.updateMatched(ctx, provider, providerOrderID, nil, update)
}

// TransitionStatus applies the update only when the matched row still holds
// the expected status. Rows in any other state yield (false, nil) so retried
// captures and replayed callbacks stay idempotent.
func (r *PaymentOrderRepository) TransitionStatus(ctx context.Context, provider domain.PaymentProvider, providerOrderID string, from domain.PaymentStatus, update repositories.PaymentOrderUpdate) (bool, error) {
	return r.updateMatched(ctx, provider, providerOrderID, &from, update)
}

func (r *PaymentOrderRepository) updateMatched(ctx context.Context, provider domain.PaymentProvider, providerOrderID string, from *domain.PaymentStatus, update repositories.PaymentOrderUpdate) (bool, error) {
	if r == nil || r.provider == nil {
		return false, errors.New("payment order repository not initialised")
	}
	orderID := strings.TrimSpace(providerOrderID)
	if provider == "" || orderID == "" {
		return false, errors.New("payment order repository: provider and provider order id are required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return false, err
	}
	coll := client.Collection(paymentOrderCollection)

	matched := false
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		matched = false

		query := coll.
			Where("provider", "==", string(provider)).
			Where("providerOrderId", "==", orderID).
			Limit(2)
		snaps, err := tx.Documents(query).GetAll()
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if len(snaps) != 1 {
			return nil
		}

		if from != nil {
			var doc paymentOrderDocument
			if err := snaps[0].DataTo(&doc); err != nil {
				return fmt.Errorf("decode payment order %s: %w", snaps[0].Ref.ID, err)
			}
			if domain.PaymentStatus(doc.Status) != *from {
				return nil
			}
		}

		updates := buildPaymentOrderUpdates(update, r.clock())
		if err := tx.Update(snaps[0].Ref, updates); err != nil {
			return err
		}
		matched = true
		return nil
	})
	if err != nil {
		return false, pfirestore.WrapError("payment_orders.update", err)
	}
	return matched, nil
}

// FindByProviderOrderID loads the ledger row for the provider pair.
func (r *PaymentOrderRepository) FindByProviderOrderID(ctx context.Context, provider domain.PaymentProvider, providerOrderID string) (domain.PaymentOrder, error) {
	if r == nil || r.base == nil {
		return domain.PaymentOrder{}, errors.New("payment order repository not initialised")
	}
	orderID := strings.TrimSpace(providerOrderID)
	if provider == "" || orderID == "" {
		return domain.PaymentOrder{}, errors.New("payment order repository: provider and provider order id are required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.
			Where("provider", "==", string(provider)).
			Where("providerOrderId", "==", orderID).
			Limit(1)
	})
	if err != nil {
		return domain.PaymentOrder{}, err
	}
	if len(docs) == 0 {
		return domain.PaymentOrder{}, pfirestore.WrapError("payment_orders.find",
			status.Errorf(codes.NotFound, "payment order %s/%s not found", provider, orderID))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

// List returns ledger rows newest first with cursor pagination.
func (r *PaymentOrderRepository) List(ctx context.Context, filter repositories.PaymentOrderListFilter) (domain.CursorPage[domain.PaymentOrder], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.PaymentOrder]{}, errors.New("payment order repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodePaymentOrderListToken(token)
		if err != nil {
			return domain.CursorPage[domain.PaymentOrder]{}, fmt.Errorf("payment order repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	statusFilters := make([]string, 0, len(filter.Status))
	for _, s := range filter.Status {
		if s != "" {
			statusFilters = append(statusFilters, string(s))
		}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.Provider != nil && *filter.Provider != "" {
			q = q.Where("provider", "==", string(*filter.Provider))
		}
		if len(statusFilters) == 1 {
			q = q.Where("status", "==", statusFilters[0])
		} else if len(statusFilters) > 1 {
			q = q.Where("status", "in", statusFilters)
		}

		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.PaymentOrder]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		tokenTime := last.Data.CreatedAt
		if tokenTime.IsZero() {
			tokenTime = last.CreateTime
		}
		nextToken = encodePaymentOrderListToken(tokenTime, last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.PaymentOrder, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}
	return domain.CursorPage[domain.PaymentOrder]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

func buildPaymentOrderUpdates(update repositories.PaymentOrderUpdate, now time.Time) []firestore.Update {
	updates := []firestore.Update{{Path: "updatedAt", Value: now}}
	if update.Status != nil {
		updates = append(updates, firestore.Update{Path: "status", Value: string(*update.Status)})
	}
	if update.ProviderOrderID != nil {
		updates = append(updates, firestore.Update{Path: "providerOrderId", Value: strings.TrimSpace(*update.ProviderOrderID)})
	}
	if update.ConfirmedAmount != nil {
		updates = append(updates, firestore.Update{Path: "confirmedAmount", Value: *update.ConfirmedAmount})
	}
	if update.LastError != nil {
		updates = append(updates, firestore.Update{Path: "lastError", Value: *update.LastError})
	}
	if update.Metadata != nil {
		updates = append(updates, firestore.Update{Path: "metadata", Value: update.Metadata})
	}
	if update.CapturedAt != nil {
		updates = append(updates, firestore.Update{Path: "capturedAt", Value: update.CapturedAt.UTC()})
	}
	if update.ConfirmedAt != nil {
		updates = append(updates, firestore.Update{Path: "confirmedAt", Value: update.ConfirmedAt.UTC()})
	}
	return updates
}

type paymentOrderDocument struct {
	Provider        string            `firestore:"provider"`
	ProviderOrderID string            `firestore:"providerOrderId"`
	Amount          float64           `firestore:"amount"`
	Currency        string            `firestore:"currency"`
	Description     string            `firestore:"description,omitempty"`
	Metadata        map[string]string `firestore:"metadata,omitempty"`
	Status          string            `firestore:"status"`
	ConfirmedAmount float64           `firestore:"confirmedAmount,omitempty"`
	LastError       string            `firestore:"lastError,omitempty"`
	CreatedAt       time.Time         `firestore:"createdAt"`
	UpdatedAt       time.Time         `firestore:"updatedAt"`
	CapturedAt      *time.Time        `firestore:"capturedAt,omitempty"`
	ConfirmedAt     *time.Time        `firestore:"confirmedAt,omitempty"`
}

func encodePaymentOrder(order domain.PaymentOrder) paymentOrderDocument {
	doc := paymentOrderDocument{
		Provider:        string(order.Provider),
		ProviderOrderID: strings.TrimSpace(order.ProviderOrderID),
		Amount:          order.Amount,
		Currency:        strings.ToUpper(strings.TrimSpace(order.Currency)),
		Description:     strings.TrimSpace(order.Description),
		Status:          string(order.Status),
		ConfirmedAmount: order.ConfirmedAmount,
		LastError:       strings.TrimSpace(order.LastError),
		CreatedAt:       order.CreatedAt.UTC(),
		UpdatedAt:       order.UpdatedAt.UTC(),
	}
	if len(order.Metadata) > 0 {
		doc.Metadata = make(map[string]string, len(order.Metadata))
		for k, v := range order.Metadata {
			doc.Metadata[k] = v
		}
	}
	if order.CapturedAt != nil {
		captured := order.CapturedAt.UTC()
		doc.CapturedAt = &captured
	}
	if order.ConfirmedAt != nil {
		confirmed := order.ConfirmedAt.UTC()
		doc.ConfirmedAt = &confirmed
	}
	return doc
}

func (d paymentOrderDocument) toDomain(id string) domain.PaymentOrder {
	order := domain.PaymentOrder{
		InternalID:      id,
		ProviderOrderID: d.ProviderOrderID,
		Provider:        domain.PaymentProvider(d.Provider),
		Amount:          d.Amount,
		Currency:        d.Currency,
		Description:     d.Description,
		Metadata:        d.Metadata,
		Status:          domain.PaymentStatus(d.Status),
		ConfirmedAmount: d.ConfirmedAmount,
		LastError:       d.LastError,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
		CapturedAt:      d.CapturedAt,
		ConfirmedAt:     d.ConfirmedAt,
	}
	return order
}

func encodePaymentOrderListToken(createdAt time.Time, docID string) string {
	token, err := pagination.EncodeToken(pagination.Cursor{
		StartAfter: []any{createdAt.UTC().Format(time.RFC3339Nano), docID},
	})
	if err != nil {
		return ""
	}
	return token
}

func decodePaymentOrderListToken(token string) (time.Time, string, error) {
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return time.Time{}, "", err
	}
	if len(cursor.StartAfter) != 2 {
		return time.Time{}, "", errors.New("malformed token")
	}
	rawTime, okTime := cursor.StartAfter[0].(string)
	docID, okID := cursor.StartAfter[1].(string)
	if !okTime || !okID || docID == "" {
		return time.Time{}, "", errors.New("malformed token")
	}
	ts, err := time.Parse(time.RFC3339Nano, rawTime)
	if err != nil {
		return time.Time{}, "", err
	}
	return ts, docID, nil
}

var _ repositories.PaymentOrderRepository = (*PaymentOrderRepository)(nil)
