package repository

import (
	"context"

	"rwa-raffle-backend/internal/features/organizer/models"
)

// Repository persists organizer profiles. Implementations must return
// models.ErrNotFound for missing profiles and models.ErrAlreadyRegistered
// on duplicate registration.
type Repository interface {
	Create(ctx context.Context, profile *models.Profile) error
	GetByPublicKey(ctx context.Context, publicKey string) (*models.Profile, error)
	List(ctx context.Context) ([]*models.Profile, error)
	SetActive(ctx context.Context, publicKey string, active bool) error
}
