// Package inmemory provides a map-backed raffle store for tests and local
// development. It mirrors the redis repository's semantics, including lock
// exclusivity and nonce consume-once behavior.
package inmemory

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	permitmodels "rwa-raffle-backend/internal/features/permit/models"
	"rwa-raffle-backend/internal/features/raffle/engine"
	"rwa-raffle-backend/internal/features/raffle/models"
	"rwa-raffle-backend/internal/features/raffle/repository"
	"rwa-raffle-backend/internal/features/raffle/slots"
)

type storedState struct {
	raffle  models.Raffle
	words   []uint64
	tickets map[uint32]models.Ticket
}

type inmemoryRepository struct {
	mu          sync.Mutex
	states      map[string]*storedState
	locks       map[string]time.Time
	nonces      map[string]struct{}
	credentials map[string]models.Credential
}

func NewRaffleRepository() *inmemoryRepository {
	return &inmemoryRepository{
		states:      make(map[string]*storedState),
		locks:       make(map[string]time.Time),
		nonces:      make(map[string]struct{}),
		credentials: make(map[string]models.Credential),
	}
}

var (
	_ repository.RaffleRepository     = (*inmemoryRepository)(nil)
	_ repository.NonceRepository      = (*inmemoryRepository)(nil)
	_ repository.CredentialRepository = (*inmemoryRepository)(nil)
)

func snapshot(st *engine.State) *storedState {
	stored := &storedState{
		raffle:  *st.Raffle,
		words:   append([]uint64(nil), st.Slots.Words()...),
		tickets: make(map[uint32]models.Ticket, len(st.Tickets)),
	}
	if st.Raffle.WinnerSlot != nil {
		winner := *st.Raffle.WinnerSlot
		stored.raffle.WinnerSlot = &winner
	}
	for slot, ticket := range st.Tickets {
		stored.tickets[slot] = *ticket
	}
	return stored
}

func (s *storedState) restore() (*engine.State, error) {
	raffle := s.raffle
	if s.raffle.WinnerSlot != nil {
		winner := *s.raffle.WinnerSlot
		raffle.WinnerSlot = &winner
	}
	allocator, err := slots.FromWords(uint32(raffle.RequiredTickets), append([]uint64(nil), s.words...))
	if err != nil {
		return nil, err
	}
	tickets := make(map[uint32]*models.Ticket, len(s.tickets))
	for slot, ticket := range s.tickets {
		t := ticket
		tickets[slot] = &t
	}
	return &engine.State{Raffle: &raffle, Slots: allocator, Tickets: tickets}, nil
}

func (r *inmemoryRepository) Create(_ context.Context, st *engine.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[st.Raffle.ID] = snapshot(st)
	return nil
}

func (r *inmemoryRepository) GetState(_ context.Context, id string) (*engine.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.states[id]
	if !ok {
		return nil, models.ErrRaffleNotFound
	}
	return stored.restore()
}

func (r *inmemoryRepository) Save(_ context.Context, st *engine.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.states[st.Raffle.ID]; !ok {
		return models.ErrRaffleNotFound
	}
	r.states[st.Raffle.ID] = snapshot(st)
	return nil
}

func (r *inmemoryRepository) GetActiveIDs(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, stored := range r.states {
		if stored.raffle.Status != models.StatusClosed {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *inmemoryRepository) ListByStatus(_ context.Context, statuses []models.Status) ([]*models.Raffle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wanted := make(map[models.Status]struct{}, len(statuses))
	for _, s := range statuses {
		wanted[s] = struct{}{}
	}
	var result []*models.Raffle
	for _, stored := range r.states {
		if _, ok := wanted[stored.raffle.Status]; ok {
			raffle := stored.raffle
			result = append(result, &raffle)
		}
	}
	return result, nil
}

func (r *inmemoryRepository) AcquireLock(_ context.Context, id string, timeout time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if expires, held := r.locks[id]; held && time.Now().Before(expires) {
		return repository.ErrAlreadyLocked
	}
	r.locks[id] = time.Now().Add(timeout)
	return nil
}

func (r *inmemoryRepository) ReleaseLock(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.locks, id)
	return nil
}

func (r *inmemoryRepository) Consume(_ context.Context, organizer string, nonce permitmodels.Nonce) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := organizer + ":" + hex.EncodeToString(nonce[:])
	if _, used := r.nonces[key]; used {
		return false, nil
	}
	r.nonces[key] = struct{}{}
	return true, nil
}

func (r *inmemoryRepository) Get(_ context.Context, id string) (*models.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	credential, ok := r.credentials[id]
	if !ok {
		return nil, models.ErrCredentialNotFound
	}
	return &credential, nil
}

func (r *inmemoryRepository) Burn(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.credentials[id]; !ok {
		return models.ErrCredentialNotFound
	}
	delete(r.credentials, id)
	return nil
}

func (r *inmemoryRepository) Issue(_ context.Context, credential *models.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.credentials[credential.ID] = *credential
	return nil
}

func (r *inmemoryRepository) ListByOwner(_ context.Context, owner string) ([]*models.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*models.Credential
	for _, credential := range r.credentials {
		if credential.Owner == owner {
			c := credential
			result = append(result, &c)
		}
	}
	return result, nil
}
