package inmemory

import (
	"context"
	"sync"

	"rwa-raffle-backend/internal/features/organizer/models"
	"rwa-raffle-backend/internal/features/organizer/repository"
)

type inMemoryRepository struct {
	mu       sync.RWMutex
	profiles map[string]*models.Profile
}

// NewInMemoryOrganizerRepository returns a map-backed repository, used in
// tests and single-node development setups.
func NewInMemoryOrganizerRepository() repository.Repository {
	return &inMemoryRepository{profiles: make(map[string]*models.Profile)}
}

func (r *inMemoryRepository) Create(_ context.Context, profile *models.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.profiles[profile.PublicKey]; exists {
		return models.ErrAlreadyRegistered
	}
	clone := *profile
	r.profiles[profile.PublicKey] = &clone
	return nil
}

func (r *inMemoryRepository) GetByPublicKey(_ context.Context, publicKey string) (*models.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, exists := r.profiles[publicKey]
	if !exists {
		return nil, models.ErrNotFound
	}
	clone := *profile
	return &clone, nil
}

func (r *inMemoryRepository) List(_ context.Context) ([]*models.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profiles := make([]*models.Profile, 0, len(r.profiles))
	for _, profile := range r.profiles {
		clone := *profile
		profiles = append(profiles, &clone)
	}
	return profiles, nil
}

func (r *inMemoryRepository) SetActive(_ context.Context, publicKey string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, exists := r.profiles[publicKey]
	if !exists {
		return models.ErrNotFound
	}
	profile.Active = active
	return nil
}
