package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	permitmodels "rwa-raffle-backend/internal/features/permit/models"
	"rwa-raffle-backend/internal/features/raffle/draw"
	"rwa-raffle-backend/internal/features/raffle/engine"
	"rwa-raffle-backend/internal/features/raffle/models"
	"rwa-raffle-backend/internal/features/raffle/repository"
	"rwa-raffle-backend/internal/platform/ledger"
)

const defaultLockTimeout = 30 * time.Second

// Detail is the read model of one raffle: the record plus its tickets and
// the slot indices still available for purchase.
type Detail struct {
	Raffle    *models.Raffle   `json:"raffle"`
	Tickets   []*models.Ticket `json:"tickets"`
	FreeSlots []uint32         `json:"free_slots"`
}

// CreateWithPermitRequest carries everything the permit-backed creation path
// needs: the config, the echoed permit fields, and the organizer's signature
// over the canonical permit message.
type CreateWithPermitRequest struct {
	Organizer string
	Config    models.Config
	Permit    *permitmodels.Permit
	Signature []byte
}

type RaffleService interface {
	Create(ctx context.Context, organizer string, cfg models.Config) (*models.Raffle, error)
	CreateWithPermit(ctx context.Context, req *CreateWithPermitRequest) (*models.Raffle, error)
	Get(ctx context.Context, id string) (*Detail, error)
	List(ctx context.Context, statuses []models.Status) ([]*models.Raffle, error)

	Deposit(ctx context.Context, raffleID string, req *engine.DepositRequest) (*models.Raffle, error)
	RequestDraw(ctx context.Context, raffleID, caller string) (*models.Raffle, error)

	// SettleDraw resolves the winner. An explicit seed takes precedence;
	// when absent the configured randomness source is consulted.
	SettleDraw(ctx context.Context, raffleID string, seed []byte) (*models.Raffle, error)

	SetPrize(ctx context.Context, raffleID, caller, prizeAsset string) (*models.Raffle, error)
	ClaimPrize(ctx context.Context, raffleID, caller string) (*models.Raffle, error)
	ClaimRefund(ctx context.Context, raffleID, caller string, slot uint32) (*models.Raffle, error)
	RefundBatch(ctx context.Context, raffleID string) (int, error)
	CollectProceeds(ctx context.Context, raffleID, caller string) (*models.Raffle, error)

	// SweepDeadlines walks active raffles and refunds every expired one in
	// bulk. The deadline watcher calls this on a fixed interval.
	SweepDeadlines(ctx context.Context) error
}

type raffleService struct {
	repo        repository.RaffleRepository
	engine      *engine.Engine
	randomness  draw.Source
	ledger      ledger.Ledger
	logger      zerolog.Logger
	lockTimeout time.Duration
}

func NewRaffleService(repo repository.RaffleRepository, eng *engine.Engine, randomness draw.Source, funds ledger.Ledger, logger zerolog.Logger) RaffleService {
	return &raffleService{
		repo:        repo,
		engine:      eng,
		randomness:  randomness,
		ledger:      funds,
		logger:      logger.With().Str("component", "raffle_service").Logger(),
		lockTimeout: defaultLockTimeout,
	}
}

func (s *raffleService) Create(ctx context.Context, organizer string, cfg models.Config) (*models.Raffle, error) {
	st, events, err := s.engine.Create(ctx, organizer, cfg)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, st); err != nil {
		return nil, err
	}
	s.logEvents(st.Raffle.ID, events)
	return st.Raffle, nil
}

func (s *raffleService) CreateWithPermit(ctx context.Context, req *CreateWithPermitRequest) (*models.Raffle, error) {
	st, events, err := s.engine.CreateWithPermit(ctx, req.Organizer, req.Config, req.Permit, req.Signature)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, st); err != nil {
		return nil, err
	}
	s.logEvents(st.Raffle.ID, events)
	return st.Raffle, nil
}

func (s *raffleService) Get(ctx context.Context, id string) (*Detail, error) {
	st, err := s.repo.GetState(ctx, id)
	if err != nil {
		return nil, err
	}

	tickets := make([]*models.Ticket, 0, len(st.Tickets))
	for _, slot := range st.Slots.Occupied() {
		if ticket, ok := st.Tickets[slot]; ok {
			tickets = append(tickets, ticket)
		}
	}
	return &Detail{
		Raffle:    st.Raffle,
		Tickets:   tickets,
		FreeSlots: st.Slots.Free(),
	}, nil
}

func (s *raffleService) List(ctx context.Context, statuses []models.Status) ([]*models.Raffle, error) {
	return s.repo.ListByStatus(ctx, statuses)
}

// withState runs one engine operation under the raffle's lock and persists
// the outcome. The state is saved even when the operation fails, because the
// deadline guard may have transitioned the raffle as a side effect of the
// rejected call.
//
// Ledger entries are applied only on success, before the state is
// persisted. The ordering is deliberate: saving first could record a claim
// as settled and then fail to pay it, and the engine's once-only checks
// would refuse every retry, leaving the payout permanently lost. With
// ledger first a Save failure instead leaves the claim unrecorded after
// payment; the error is returned to the caller and the entries logged
// below give the reconciliation trail. Both stores share one redis
// instance, so in practice the two writes fail together.
func (s *raffleService) withState(ctx context.Context, raffleID string, op func(st *engine.State) ([]engine.Event, []engine.Transfer, error)) (*engine.State, error) {
	if err := s.repo.AcquireLock(ctx, raffleID, s.lockTimeout); err != nil {
		return nil, err
	}
	defer func() {
		if err := s.repo.ReleaseLock(ctx, raffleID); err != nil {
			s.logger.Error().Err(err).Str("raffle_id", raffleID).Msg("failed to release raffle lock")
		}
	}()

	st, err := s.repo.GetState(ctx, raffleID)
	if err != nil {
		return nil, err
	}
	statusBefore := st.Raffle.Status

	events, transfers, opErr := op(st)
	if opErr != nil {
		if st.Raffle.Status != statusBefore {
			if err := s.repo.Save(ctx, st); err != nil {
				s.logger.Error().Err(err).Str("raffle_id", raffleID).Msg("failed to persist guard transition")
			}
			s.logEvents(raffleID, events)
		}
		return nil, opErr
	}

	if len(transfers) > 0 {
		entries := make([]ledger.Entry, len(transfers))
		for i, t := range transfers {
			entries[i] = ledger.Entry{Asset: t.Asset, From: t.From, To: t.To, Amount: t.Amount}
		}
		if err := s.ledger.Apply(ctx, entries); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Save(ctx, st); err != nil {
		if len(transfers) > 0 {
			s.logger.Error().Err(err).Str("raffle_id", raffleID).
				Interface("applied_transfers", transfers).
				Msg("state save failed after ledger application")
		}
		return nil, err
	}
	s.logEvents(raffleID, events)
	return st, nil
}

func (s *raffleService) Deposit(ctx context.Context, raffleID string, req *engine.DepositRequest) (*models.Raffle, error) {
	st, err := s.withState(ctx, raffleID, func(st *engine.State) ([]engine.Event, []engine.Transfer, error) {
		return s.engine.Deposit(ctx, st, req)
	})
	if err != nil {
		return nil, err
	}
	return st.Raffle, nil
}

func (s *raffleService) RequestDraw(ctx context.Context, raffleID, caller string) (*models.Raffle, error) {
	st, err := s.withState(ctx, raffleID, func(st *engine.State) ([]engine.Event, []engine.Transfer, error) {
		events, err := s.engine.RequestDraw(ctx, st, caller)
		return events, nil, err
	})
	if err != nil {
		return nil, err
	}
	return st.Raffle, nil
}

func (s *raffleService) SettleDraw(ctx context.Context, raffleID string, seed []byte) (*models.Raffle, error) {
	if len(seed) == 0 {
		var err error
		seed, err = s.randomness.Randomness(ctx, raffleID)
		if err != nil && !errors.Is(err, draw.ErrEmptySeed) {
			return nil, err
		}
	}

	st, err := s.withState(ctx, raffleID, func(st *engine.State) ([]engine.Event, []engine.Transfer, error) {
		events, err := s.engine.SettleDraw(ctx, st, seed)
		return events, nil, err
	})
	if err != nil {
		return nil, err
	}
	return st.Raffle, nil
}

func (s *raffleService) SetPrize(ctx context.Context, raffleID, caller, prizeAsset string) (*models.Raffle, error) {
	st, err := s.withState(ctx, raffleID, func(st *engine.State) ([]engine.Event, []engine.Transfer, error) {
		return s.engine.SetPrize(ctx, st, caller, prizeAsset)
	})
	if err != nil {
		return nil, err
	}
	return st.Raffle, nil
}

func (s *raffleService) ClaimPrize(ctx context.Context, raffleID, caller string) (*models.Raffle, error) {
	st, err := s.withState(ctx, raffleID, func(st *engine.State) ([]engine.Event, []engine.Transfer, error) {
		return s.engine.ClaimPrize(ctx, st, caller)
	})
	if err != nil {
		return nil, err
	}
	return st.Raffle, nil
}

func (s *raffleService) ClaimRefund(ctx context.Context, raffleID, caller string, slot uint32) (*models.Raffle, error) {
	st, err := s.withState(ctx, raffleID, func(st *engine.State) ([]engine.Event, []engine.Transfer, error) {
		return s.engine.ClaimRefund(ctx, st, caller, slot)
	})
	if err != nil {
		return nil, err
	}
	return st.Raffle, nil
}

func (s *raffleService) RefundBatch(ctx context.Context, raffleID string) (int, error) {
	refunded := 0
	_, err := s.withState(ctx, raffleID, func(st *engine.State) ([]engine.Event, []engine.Transfer, error) {
		events, transfers, n, err := s.engine.RefundBatch(ctx, st)
		refunded = n
		return events, transfers, err
	})
	if err != nil {
		return 0, err
	}
	return refunded, nil
}

func (s *raffleService) CollectProceeds(ctx context.Context, raffleID, caller string) (*models.Raffle, error) {
	st, err := s.withState(ctx, raffleID, func(st *engine.State) ([]engine.Event, []engine.Transfer, error) {
		return s.engine.CollectProceeds(ctx, st, caller)
	})
	if err != nil {
		return nil, err
	}
	return st.Raffle, nil
}

func (s *raffleService) SweepDeadlines(ctx context.Context) error {
	ids, err := s.repo.GetActiveIDs(ctx)
	if err != nil {
		return err
	}

	now := s.engine.Now().Unix()
	for _, id := range ids {
		st, err := s.repo.GetState(ctx, id)
		if err != nil {
			s.logger.Error().Err(err).Str("raffle_id", id).Msg("failed to load raffle during sweep")
			continue
		}

		expired := st.Raffle.Status == models.StatusSelling && now >= st.Raffle.Deadline && !st.Raffle.Full()
		if !expired && st.Raffle.Status != models.StatusRefunding {
			continue
		}

		refunded, err := s.RefundBatch(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrAlreadyLocked) || errors.Is(err, models.ErrWrongState) {
				continue
			}
			s.logger.Error().Err(err).Str("raffle_id", id).Msg("failed to refund expired raffle")
			continue
		}
		s.logger.Info().Str("raffle_id", id).Int("refunded", refunded).Msg("swept expired raffle")
	}
	return nil
}

func (s *raffleService) logEvents(raffleID string, events []engine.Event) {
	for _, ev := range events {
		s.logger.Info().
			Str("raffle_id", raffleID).
			Str("event", ev.EventKind()).
			Interface("payload", ev).
			Msg("raffle event")
	}
}
