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

const userCollection = "users"

// UserProfileRepository reads profile documents keyed by Firebase UID. The
// roles stored here back the authorization gate; token claims are not trusted
// for role checks.
type UserProfileRepository struct {
	base *pfirestore.BaseRepository[userProfileDocument]
}

// NewUserProfileRepository constructs a Firestore-backed profile reader.
func NewUserProfileRepository(provider *pfirestore.Provider) (*UserProfileRepository, error) {
	if provider == nil {
		return nil, errors.New("user profile repository requires firestore provider")
	}
	return &UserProfileRepository{
		base: pfirestore.NewBaseRepository[userProfileDocument](provider, userCollection, nil, nil),
	}, nil
}

// FindByID loads the profile for the given UID.
func (r *UserProfileRepository) FindByID(ctx context.Context, uid string) (domain.UserProfile, error) {
	if r == nil || r.base == nil {
		return domain.UserProfile{}, errors.New("user profile repository not initialised")
	}
	id := strings.TrimSpace(uid)
	if id == "" {
		return domain.UserProfile{}, errors.New("user profile repository: uid is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.UserProfile{}, err
	}

	profile := doc.Data.toDomain(doc.ID)
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = doc.CreateTime
	}
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = doc.UpdateTime
	}
	return profile, nil
}

type userProfileDocument struct {
	UID         string    `firestore:"uid"`
	Email       string    `firestore:"email"`
	DisplayName string    `firestore:"displayName"`
	Roles       []string  `firestore:"roles"`
	IsActive    bool      `firestore:"isActive"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func (d userProfileDocument) toDomain(id string) domain.UserProfile {
	uid := strings.TrimSpace(d.UID)
	if uid == "" {
		uid = id
	}
	return domain.UserProfile{
		UID:         uid,
		Email:       strings.TrimSpace(d.Email),
		DisplayName: strings.TrimSpace(d.DisplayName),
		Roles:       d.Roles,
		IsActive:    d.IsActive,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

var _ repositories.UserProfileRepository = (*UserProfileRepository)(nil)
