package memory

import (
	"context"
	"sync"

	"bitquiz-service/internal/domain"
)

// ProfileRepository is the in-memory user/entitlement store.
type ProfileRepository struct {
	mu       sync.RWMutex
	profiles map[string]domain.Profile
}

func NewProfileRepository() *ProfileRepository {
	return &ProfileRepository{profiles: make(map[string]domain.Profile)}
}

func (r *ProfileRepository) Get(_ context.Context, userID string) (domain.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[userID]
	if !ok {
		return domain.Profile{}, domain.ErrProfileNotFound
	}
	return p, nil
}

func (r *ProfileRepository) Create(_ context.Context, p domain.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.ID] = p
	return nil
}

func (r *ProfileRepository) GrantPro(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		return domain.ErrProfileNotFound
	}
	p.IsPro = true
	r.profiles[userID] = p
	return nil
}
