package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/hopehand/api/internal/domain"
	pfirestore "github.com/hopehand/api/internal/platform/firestore"
	"github.com/hopehand/api/internal/repositories"
)

const emailLogCollection = "emailLogs"

// EmailLogRepository appends delivery attempts to an immutable audit trail.
// Records are never updated or deleted.
type EmailLogRepository struct {
	base  *pfirestore.BaseRepository[emailLogDocument]
	clock func() time.Time
}

// NewEmailLogRepository constructs a Firestore-backed email audit log.
func NewEmailLogRepository(provider *pfirestore.Provider) (*EmailLogRepository, error) {
	if provider == nil {
		return nil, errors.New("email log repository requires firestore provider")
	}
	return &EmailLogRepository{
		base:  pfirestore.NewBaseRepository[emailLogDocument](provider, emailLogCollection, nil, nil),
		clock: func() time.Time { return time.Now().UTC() },
	}, nil
}

// Append stores one delivery attempt, success or failure.
func (r *EmailLogRepository) Append(ctx context.Context, entry domain.EmailLog) (domain.EmailLog, error) {
	if r == nil || r.base == nil {
		return domain.EmailLog{}, errors.New("email log repository not initialised")
	}
	id := strings.TrimSpace(entry.ID)
	if id == "" {
		return domain.EmailLog{}, errors.New("email log repository: id is required")
	}

	doc := emailLogDocument{
		To:      strings.TrimSpace(entry.To),
		Subject: strings.TrimSpace(entry.Subject),
		SentBy:  strings.TrimSpace(entry.SentBy),
		Success: entry.Success,
		Error:   strings.TrimSpace(entry.Error),
		SentAt:  entry.SentAt.UTC(),
	}
	if doc.SentAt.IsZero() {
		doc.SentAt = r.clock()
	}

	if _, err := r.base.Set(ctx, id, doc); err != nil {
		return domain.EmailLog{}, err
	}
	return doc.toDomain(id), nil
}

type emailLogDocument struct {
	To      string    `firestore:"to"`
	Subject string    `firestore:"subject"`
	SentBy  string    `firestore:"sentBy"`
	Success bool      `firestore:"success"`
	Error   string    `firestore:"error,omitempty"`
	SentAt  time.Time `firestore:"sentAt"`
}

func (d emailLogDocument) toDomain(id string) domain.EmailLog {
	return domain.EmailLog{
		ID:      id,
		To:      d.To,
		Subject: d.Subject,
		SentBy:  d.SentBy,
		Success: d.Success,
		Error:   d.Error,
		SentAt:  d.SentAt,
	}
}

var _ repositories.EmailLogRepository = (*EmailLogRepository)(nil)
