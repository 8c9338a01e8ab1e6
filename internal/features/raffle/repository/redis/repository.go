package redis

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	permitmodels "rwa-raffle-backend/internal/features/permit/models"
	"rwa-raffle-backend/internal/features/raffle/engine"
	"rwa-raffle-backend/internal/features/raffle/models"
	"rwa-raffle-backend/internal/features/raffle/repository"
	"rwa-raffle-backend/internal/features/raffle/slots"
)

const (
	keyPrefixRaffle     = "raffle:"
	keyPrefixCredential = "credential:"
	keyPrefixNonces     = "permit:nonces:"
	keyActiveRaffles    = "raffles:active"
	keyClosedRaffles    = "raffles:closed"
)

type redisRepository struct {
	client *redis.Client
}

// NewRaffleRepository returns a redis-backed store implementing the raffle,
// nonce, and credential repositories on one client.
func NewRaffleRepository(client *redis.Client) *redisRepository {
	return &redisRepository{client: client}
}

var (
	_ repository.RaffleRepository     = (*redisRepository)(nil)
	_ repository.NonceRepository      = (*redisRepository)(nil)
	_ repository.CredentialRepository = (*redisRepository)(nil)
)

func makeRaffleKey(id string) string {
	return keyPrefixRaffle + id
}

func makeSlotsKey(id string) string {
	return keyPrefixRaffle + id + ":slots"
}

func makeTicketsKey(id string) string {
	return keyPrefixRaffle + id + ":tickets"
}

func makeLockKey(id string) string {
	return keyPrefixRaffle + id + ":lock"
}

func makeCredentialKey(id string) string {
	return keyPrefixCredential + id
}

func makeOwnerCredentialsKey(owner string) string {
	return keyPrefixCredential + "owner:" + owner
}

func makeNoncesKey(organizer string) string {
	return keyPrefixNonces + organizer
}

func (r *redisRepository) Create(ctx context.Context, st *engine.State) error {
	data, err := json.Marshal(st.Raffle)
	if err != nil {
		return fmt.Errorf("failed to marshal raffle: %w", err)
	}
	words, err := json.Marshal(st.Slots.Words())
	if err != nil {
		return fmt.Errorf("failed to marshal slot bitmap: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, makeRaffleKey(st.Raffle.ID), data, 0)
	pipe.Set(ctx, makeSlotsKey(st.Raffle.ID), words, 0)
	pipe.SAdd(ctx, keyActiveRaffles, st.Raffle.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *redisRepository) GetState(ctx context.Context, id string) (*engine.State, error) {
	data, err := r.client.Get(ctx, makeRaffleKey(id)).Bytes()
	if err == redis.Nil {
		return nil, models.ErrRaffleNotFound
	}
	if err != nil {
		return nil, err
	}

	var raffle models.Raffle
	if err := json.Unmarshal(data, &raffle); err != nil {
		return nil, fmt.Errorf("failed to unmarshal raffle %s: %w", id, err)
	}

	wordsData, err := r.client.Get(ctx, makeSlotsKey(id)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("slot bitmap missing for raffle %s", id)
	}
	if err != nil {
		return nil, err
	}
	var words []uint64
	if err := json.Unmarshal(wordsData, &words); err != nil {
		return nil, fmt.Errorf("failed to unmarshal slot bitmap for %s: %w", id, err)
	}
	allocator, err := slots.FromWords(uint32(raffle.RequiredTickets), words)
	if err != nil {
		return nil, fmt.Errorf("corrupt slot bitmap for %s: %w", id, err)
	}

	fields, err := r.client.HGetAll(ctx, makeTicketsKey(id)).Result()
	if err != nil {
		return nil, err
	}
	tickets := make(map[uint32]*models.Ticket, len(fields))
	for field, raw := range fields {
		slot, err := strconv.ParseUint(field, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad ticket field %q for raffle %s", field, id)
		}
		var ticket models.Ticket
		if err := json.Unmarshal([]byte(raw), &ticket); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ticket %s/%s: %w", id, field, err)
		}
		tickets[uint32(slot)] = &ticket
	}

	return &engine.State{Raffle: &raffle, Slots: allocator, Tickets: tickets}, nil
}

func (r *redisRepository) Save(ctx context.Context, st *engine.State) error {
	data, err := json.Marshal(st.Raffle)
	if err != nil {
		return fmt.Errorf("failed to marshal raffle: %w", err)
	}
	words, err := json.Marshal(st.Slots.Words())
	if err != nil {
		return fmt.Errorf("failed to marshal slot bitmap: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, makeRaffleKey(st.Raffle.ID), data, 0)
	pipe.Set(ctx, makeSlotsKey(st.Raffle.ID), words, 0)
	for slot, ticket := range st.Tickets {
		raw, err := json.Marshal(ticket)
		if err != nil {
			return fmt.Errorf("failed to marshal ticket %d: %w", slot, err)
		}
		pipe.HSet(ctx, makeTicketsKey(st.Raffle.ID), strconv.FormatUint(uint64(slot), 10), raw)
	}
	if st.Raffle.Status == models.StatusClosed {
		pipe.SRem(ctx, keyActiveRaffles, st.Raffle.ID)
		pipe.SAdd(ctx, keyClosedRaffles, st.Raffle.ID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *redisRepository) GetActiveIDs(ctx context.Context) ([]string, error) {
	return r.client.SMembers(ctx, keyActiveRaffles).Result()
}

func (r *redisRepository) ListByStatus(ctx context.Context, statuses []models.Status) ([]*models.Raffle, error) {
	wanted := make(map[models.Status]struct{}, len(statuses))
	closedOnly := true
	for _, s := range statuses {
		wanted[s] = struct{}{}
		if s != models.StatusClosed {
			closedOnly = false
		}
	}

	key := keyActiveRaffles
	if closedOnly {
		key = keyClosedRaffles
	}
	ids, err := r.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if _, alsoClosed := wanted[models.StatusClosed]; alsoClosed && !closedOnly {
		closedIDs, err := r.client.SMembers(ctx, keyClosedRaffles).Result()
		if err != nil {
			return nil, err
		}
		ids = append(ids, closedIDs...)
	}

	result := make([]*models.Raffle, 0, len(ids))
	for _, id := range ids {
		data, err := r.client.Get(ctx, makeRaffleKey(id)).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		var raffle models.Raffle
		if err := json.Unmarshal(data, &raffle); err != nil {
			return nil, fmt.Errorf("failed to unmarshal raffle %s: %w", id, err)
		}
		if _, ok := wanted[raffle.Status]; ok {
			result = append(result, &raffle)
		}
	}
	return result, nil
}

func (r *redisRepository) AcquireLock(ctx context.Context, id string, timeout time.Duration) error {
	ok, err := r.client.SetNX(ctx, makeLockKey(id), "locked", timeout).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return repository.ErrAlreadyLocked
	}
	return nil
}

func (r *redisRepository) ReleaseLock(ctx context.Context, id string) error {
	return r.client.Del(ctx, makeLockKey(id)).Err()
}

// Consume adds the nonce to the organizer's used set. SAdd returns the
// number of newly added members, so a zero means the permit was replayed.
func (r *redisRepository) Consume(ctx context.Context, organizer string, nonce permitmodels.Nonce) (bool, error) {
	added, err := r.client.SAdd(ctx, makeNoncesKey(organizer), hex.EncodeToString(nonce[:])).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record nonce: %w", err)
	}
	return added > 0, nil
}

func (r *redisRepository) Get(ctx context.Context, id string) (*models.Credential, error) {
	data, err := r.client.Get(ctx, makeCredentialKey(id)).Bytes()
	if err == redis.Nil {
		return nil, models.ErrCredentialNotFound
	}
	if err != nil {
		return nil, err
	}

	var credential models.Credential
	if err := json.Unmarshal(data, &credential); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential %s: %w", id, err)
	}
	return &credential, nil
}

func (r *redisRepository) Burn(ctx context.Context, id string) error {
	credential, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	pipe := r.client.Pipeline()
	pipe.Del(ctx, makeCredentialKey(id))
	pipe.SRem(ctx, makeOwnerCredentialsKey(credential.Owner), id)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *redisRepository) Issue(ctx context.Context, credential *models.Credential) error {
	data, err := json.Marshal(credential)
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, makeCredentialKey(credential.ID), data, 0)
	pipe.SAdd(ctx, makeOwnerCredentialsKey(credential.Owner), credential.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *redisRepository) ListByOwner(ctx context.Context, owner string) ([]*models.Credential, error) {
	ids, err := r.client.SMembers(ctx, makeOwnerCredentialsKey(owner)).Result()
	if err != nil {
		return nil, err
	}

	credentials := make([]*models.Credential, 0, len(ids))
	for _, id := range ids {
		credential, err := r.Get(ctx, id)
		if err == models.ErrCredentialNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		credentials = append(credentials, credential)
	}
	return credentials, nil
}
