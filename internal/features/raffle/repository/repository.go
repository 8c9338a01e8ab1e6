package repository

import (
	"context"
	"errors"
	"time"

	permitmodels "rwa-raffle-backend/internal/features/permit/models"
	"rwa-raffle-backend/internal/features/raffle/engine"
	"rwa-raffle-backend/internal/features/raffle/models"
)

var ErrAlreadyLocked = errors.New("raffle is locked by another operation")

// RaffleRepository persists the full raffle aggregate: the record, the slot
// bitmap, and all tickets. States are saved whole after every engine
// operation.
type RaffleRepository interface {
	Create(ctx context.Context, st *engine.State) error
	GetState(ctx context.Context, id string) (*engine.State, error)
	Save(ctx context.Context, st *engine.State) error

	// GetActiveIDs lists raffles that are not yet closed. The deadline
	// watcher iterates this set.
	GetActiveIDs(ctx context.Context) ([]string, error)
	ListByStatus(ctx context.Context, statuses []models.Status) ([]*models.Raffle, error)

	AcquireLock(ctx context.Context, id string, timeout time.Duration) error
	ReleaseLock(ctx context.Context, id string) error
}

// NonceRepository records consumed permit nonces per organizer. It backs the
// engine's replay protection and must be atomic: concurrent Consume calls
// for the same nonce return true exactly once.
type NonceRepository interface {
	Consume(ctx context.Context, organizer string, nonce permitmodels.Nonce) (bool, error)
}

// CredentialRepository stores free-ticket credentials across raffles.
type CredentialRepository interface {
	Get(ctx context.Context, id string) (*models.Credential, error)
	Burn(ctx context.Context, id string) error
	Issue(ctx context.Context, credential *models.Credential) error
	ListByOwner(ctx context.Context, owner string) ([]*models.Credential, error)
}
