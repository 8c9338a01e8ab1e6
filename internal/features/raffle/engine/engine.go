// Package engine implements the raffle state machine. Every mutating
// operation validates fully before committing any change: a rejected call
// leaves the state exactly as it was, except for the lazy deadline guard,
// which is an independent implicit transition evaluated at the top of
// every entry point.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	organizermodels "rwa-raffle-backend/internal/features/organizer/models"
	permitmodels "rwa-raffle-backend/internal/features/permit/models"
	"rwa-raffle-backend/internal/features/raffle/draw"
	"rwa-raffle-backend/internal/features/raffle/models"
	"rwa-raffle-backend/internal/features/raffle/slots"
)

// OrganizerOracle answers eligibility queries. The engine never mutates
// organizer state.
type OrganizerOracle interface {
	IsActive(ctx context.Context, publicKey string) (bool, error)
}

// NonceStore records consumed permit nonces per organizer. Consume returns
// false when the nonce was already used.
type NonceStore interface {
	Consume(ctx context.Context, organizer string, nonce permitmodels.Nonce) (bool, error)
}

// CredentialStore persists free-ticket credentials across raffles.
type CredentialStore interface {
	Get(ctx context.Context, id string) (*models.Credential, error)
	Burn(ctx context.Context, id string) error
	Issue(ctx context.Context, credential *models.Credential) error
}

// State is the full mutable aggregate of one raffle: the record itself,
// the slot occupancy bitmap, and all ticket records keyed by slot.
type State struct {
	Raffle  *models.Raffle
	Slots   *slots.Allocator
	Tickets map[uint32]*models.Ticket
}

// Transfer instructs the host ledger to move funds. Transfers are executed
// by the caller only after the engine operation succeeds, and the ledger is
// assumed to apply them atomically.
type Transfer struct {
	Asset  string
	From   string
	To     string
	Amount uint64
}

// Engine applies raffle operations. It holds no per-raffle state itself;
// callers load a State, apply one operation, and persist the result.
type Engine struct {
	programID   string
	organizers  OrganizerOracle
	nonces      NonceStore
	credentials CredentialStore

	// Now is the trusted clock. Tests override it; deadline arithmetic
	// never trusts client-supplied time.
	Now func() time.Time
}

func New(programID string, organizers OrganizerOracle, nonces NonceStore, credentials CredentialStore) *Engine {
	return &Engine{
		programID:   programID,
		organizers:  organizers,
		nonces:      nonces,
		credentials: credentials,
		Now:         time.Now,
	}
}

func validateConfig(cfg *models.Config, now time.Time) error {
	if cfg.RequiredTickets == 0 {
		return fmt.Errorf("%w: required_tickets must be positive", models.ErrInvalidConfig)
	}
	// Slot indices are uint32; a supply beyond that range could never be
	// addressed, let alone filled.
	if cfg.RequiredTickets > math.MaxUint32 {
		return fmt.Errorf("%w: required_tickets exceeds %d", models.ErrInvalidConfig, uint64(math.MaxUint32))
	}
	if cfg.TicketPrice == 0 {
		return fmt.Errorf("%w: ticket_price must be positive", models.ErrInvalidConfig)
	}
	if cfg.Deadline <= now.Unix() {
		return fmt.Errorf("%w: deadline must be in the future", models.ErrInvalidConfig)
	}
	if !cfg.TicketMode.Valid() {
		return fmt.Errorf("%w: ticket_mode out of range", models.ErrInvalidConfig)
	}
	if cfg.RefundMode == "" {
		cfg.RefundMode = models.RefundModeCash
	}
	if !cfg.RefundMode.Valid() {
		return fmt.Errorf("%w: unknown refund_mode %q", models.ErrInvalidConfig, cfg.RefundMode)
	}
	if cfg.EscrowAsset == "" || cfg.EscrowAccount == "" {
		return fmt.Errorf("%w: escrow asset and account are required", models.ErrInvalidConfig)
	}
	return nil
}

func (e *Engine) requireActiveOrganizer(ctx context.Context, organizer string) error {
	active, err := e.organizers.IsActive(ctx, organizer)
	if errors.Is(err, organizermodels.ErrNotFound) {
		return models.ErrOrganizerInactive
	}
	if err != nil {
		return err
	}
	if !active {
		return models.ErrOrganizerInactive
	}
	return nil
}

// Create initializes a raffle on the direct path: the organizer is the
// caller and no permit is involved.
func (e *Engine) Create(ctx context.Context, organizer string, cfg models.Config) (*State, []Event, error) {
	now := e.Now()
	if err := validateConfig(&cfg, now); err != nil {
		return nil, nil, err
	}
	if err := e.requireActiveOrganizer(ctx, organizer); err != nil {
		return nil, nil, err
	}
	st := newState(organizer, cfg, now)
	return st, []Event{RaffleCreated{
		RaffleID:        st.Raffle.ID,
		Organizer:       organizer,
		RequiredTickets: cfg.RequiredTickets,
		Deadline:        cfg.Deadline,
	}}, nil
}

// CreateWithPermit initializes a raffle backed by an off-chain permit. The
// permit is verified as a precondition gate: any single failure voids the
// whole operation with no state mutation. The nonce is consumed last, after
// every other check has passed.
func (e *Engine) CreateWithPermit(ctx context.Context, organizer string, cfg models.Config, permit *permitmodels.Permit, signature []byte) (*State, []Event, error) {
	now := e.Now()
	if err := validateConfig(&cfg, now); err != nil {
		return nil, nil, err
	}
	if err := e.verifyPermit(ctx, organizer, &cfg, permit, signature, now); err != nil {
		return nil, nil, err
	}

	used, err := e.nonces.Consume(ctx, organizer, permit.Nonce)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to record permit nonce: %w", err)
	}
	if !used {
		return nil, nil, permitmodels.ErrPermitReplayed
	}

	st := newState(organizer, cfg, now)
	return st, []Event{RaffleCreated{
		RaffleID:        st.Raffle.ID,
		Organizer:       organizer,
		RequiredTickets: cfg.RequiredTickets,
		Deadline:        cfg.Deadline,
	}}, nil
}

func newState(organizer string, cfg models.Config, now time.Time) *State {
	return &State{
		Raffle: &models.Raffle{
			ID:              uuid.New().String(),
			Organizer:       organizer,
			EscrowAsset:     cfg.EscrowAsset,
			EscrowAccount:   cfg.EscrowAccount,
			RequiredTickets: cfg.RequiredTickets,
			TicketPrice:     cfg.TicketPrice,
			Deadline:        cfg.Deadline,
			Status:          models.StatusSelling,
			AutoDraw:        cfg.AutoDraw,
			TicketMode:      cfg.TicketMode,
			RefundMode:      cfg.RefundMode,
			CreatedAt:       now.Unix(),
			UpdatedAt:       now.Unix(),
		},
		Slots:   slots.New(uint32(cfg.RequiredTickets)),
		Tickets: make(map[uint32]*models.Ticket),
	}
}

// guardDeadline is the lazy deadline trigger: a selling raffle past its
// deadline with unsold slots enters refunding. Evaluated before every
// state-mutating operation because the core has no scheduler of its own.
func (e *Engine) guardDeadline(st *State, now time.Time) []Event {
	r := st.Raffle
	if r.Status == models.StatusSelling && now.Unix() >= r.Deadline && !r.Full() {
		r.Status = models.StatusRefunding
		r.UpdatedAt = now.Unix()
		return []Event{RefundingEntered{RaffleID: r.ID, TicketsSold: r.TicketsSold}}
	}
	return nil
}

// DepositRequest describes one multi-slot purchase.
type DepositRequest struct {
	Owner        string
	Slots        []uint32
	Amount       uint64
	CredentialID string // optional free-ticket credential to redeem
}

// Deposit claims the requested slots for the owner against exact payment.
// Amount must equal ticket_price times the number of slots not covered by
// a redeemed credential; partial-slot amounts are rejected.
func (e *Engine) Deposit(ctx context.Context, st *State, req *DepositRequest) ([]Event, []Transfer, error) {
	now := e.Now()
	events := e.guardDeadline(st, now)
	r := st.Raffle

	if r.Status != models.StatusSelling {
		return events, nil, models.ErrRaffleNotSelling
	}
	if now.Unix() >= r.Deadline {
		return events, nil, models.ErrDeadlinePassed
	}
	if len(req.Slots) == 0 {
		return events, nil, fmt.Errorf("%w: no slots requested", models.ErrAmountMismatch)
	}

	freeSlots, credential, err := e.resolveCredential(ctx, r, req)
	if err != nil {
		return events, nil, err
	}

	paidSlots := uint64(len(req.Slots)) - uint64(freeSlots)
	if want := paidSlots * r.TicketPrice; req.Amount != want {
		return events, nil, fmt.Errorf("%w: got %d, want %d", models.ErrAmountMismatch, req.Amount, want)
	}

	if err := st.Slots.ClaimBatch(req.Slots); err != nil {
		return events, nil, err
	}

	if credential != nil && r.TicketMode == models.TicketModeRequireBurn {
		if err := e.credentials.Burn(ctx, credential.ID); err != nil {
			return events, nil, fmt.Errorf("failed to burn credential: %w", err)
		}
	}

	// The first freeSlots indices of the request are credential-backed.
	for i, slot := range req.Slots {
		ticket := &models.Ticket{
			RaffleID:    r.ID,
			Owner:       req.Owner,
			Slot:        slot,
			AmountPaid:  r.TicketPrice,
			PurchasedAt: now.Unix(),
		}
		if uint32(i) < freeSlots {
			ticket.AmountPaid = 0
			ticket.ViaCredential = true
		}
		st.Tickets[slot] = ticket
	}

	r.TicketsSold += uint64(len(req.Slots))
	r.EscrowBalance += req.Amount
	r.UpdatedAt = now.Unix()

	var transfers []Transfer
	if req.Amount > 0 {
		transfers = append(transfers, Transfer{
			Asset:  r.EscrowAsset,
			From:   req.Owner,
			To:     r.EscrowAccount,
			Amount: req.Amount,
		})
	}

	events = append(events, Deposited{
		RaffleID:    r.ID,
		Owner:       req.Owner,
		Slots:       req.Slots,
		Amount:      req.Amount,
		TicketsSold: r.TicketsSold,
	})

	if r.Full() {
		events = append(events, ThresholdReached{RaffleID: r.ID, Supply: r.RequiredTickets})
		if r.AutoDraw {
			r.Status = models.StatusDrawing
			events = append(events, RandomnessRequested{RaffleID: r.ID, Supply: r.RequiredTickets})
		}
	}

	return events, transfers, nil
}

func (e *Engine) resolveCredential(ctx context.Context, r *models.Raffle, req *DepositRequest) (uint32, *models.Credential, error) {
	if req.CredentialID == "" {
		return 0, nil, nil
	}
	if r.TicketMode == models.TicketModeDisabled {
		return 0, nil, models.ErrTicketModeDisabled
	}

	credential, err := e.credentials.Get(ctx, req.CredentialID)
	if err != nil {
		return 0, nil, err
	}
	if credential.Owner != req.Owner {
		return 0, nil, models.ErrNotCredentialOwner
	}
	// A credential is redeemed whole: the deposit must request at least as
	// many slots as the credential covers.
	if uint64(credential.Slots) > uint64(len(req.Slots)) {
		return 0, nil, fmt.Errorf("%w: credential covers %d slots, %d requested",
			models.ErrCredentialMismatch, credential.Slots, len(req.Slots))
	}
	return credential.Slots, credential, nil
}

// RequestDraw is the explicit organizer-triggered transition to drawing for
// raffles created without auto_draw. Valid only once the raffle is full.
func (e *Engine) RequestDraw(ctx context.Context, st *State, caller string) ([]Event, error) {
	now := e.Now()
	events := e.guardDeadline(st, now)
	r := st.Raffle

	if caller != r.Organizer {
		return events, models.ErrNotOrganizer
	}
	if r.Status != models.StatusSelling {
		return events, fmt.Errorf("%w: expected %s, got %s", models.ErrWrongState, models.StatusSelling, r.Status)
	}
	if !r.Full() {
		return events, models.ErrNotFull
	}

	r.Status = models.StatusDrawing
	r.UpdatedAt = now.Unix()
	events = append(events, RandomnessRequested{RaffleID: r.ID, Supply: r.RequiredTickets})
	return events, nil
}

// SettleDraw resolves the winner from an injected randomness seed. It is
// valid only while drawing and succeeds at most once per raffle; an absent
// seed fails cleanly so the same draw can be retried.
func (e *Engine) SettleDraw(ctx context.Context, st *State, seed []byte) ([]Event, error) {
	now := e.Now()
	events := e.guardDeadline(st, now)
	r := st.Raffle

	switch r.Status {
	case models.StatusDrawing:
	case models.StatusSettled, models.StatusClosed:
		return events, models.ErrAlreadySettled
	default:
		return events, fmt.Errorf("%w: expected %s, got %s", models.ErrWrongState, models.StatusDrawing, r.Status)
	}

	if len(seed) == 0 {
		return events, models.ErrRandomnessUnavailable
	}

	winner, err := draw.WinnerIndex(seed, r.RequiredTickets)
	if err != nil {
		return events, fmt.Errorf("%w: %v", models.ErrRandomnessUnavailable, err)
	}
	if _, sold := st.Tickets[winner]; !sold {
		return events, models.ErrWinnerSlotUnsold
	}

	r.WinnerSlot = &winner
	r.Status = models.StatusSettled
	r.UpdatedAt = now.Unix()
	events = append(events, WinnerSelected{RaffleID: r.ID, WinnerSlot: winner})
	return events, nil
}

// SetPrize escrows the prize asset exactly once, before the winner claims.
func (e *Engine) SetPrize(ctx context.Context, st *State, caller, prizeAsset string) ([]Event, []Transfer, error) {
	now := e.Now()
	events := e.guardDeadline(st, now)
	r := st.Raffle

	if caller != r.Organizer {
		return events, nil, models.ErrNotOrganizer
	}
	if r.PrizeSet {
		return events, nil, models.ErrPrizeAlreadySet
	}
	switch r.Status {
	case models.StatusSelling, models.StatusDrawing, models.StatusSettled:
	default:
		return events, nil, fmt.Errorf("%w: cannot set prize while %s", models.ErrWrongState, r.Status)
	}
	if prizeAsset == "" {
		return events, nil, fmt.Errorf("%w: prize asset is required", models.ErrInvalidConfig)
	}

	r.PrizeAsset = prizeAsset
	r.PrizeSet = true
	r.UpdatedAt = now.Unix()

	transfers := []Transfer{{Asset: prizeAsset, From: caller, To: r.EscrowAccount, Amount: 1}}
	events = append(events, PrizeSet{RaffleID: r.ID, PrizeAsset: prizeAsset})
	return events, transfers, nil
}

// ClaimPrize pays the escrowed prize to the owner of the winning slot,
// exactly once.
func (e *Engine) ClaimPrize(ctx context.Context, st *State, caller string) ([]Event, []Transfer, error) {
	now := e.Now()
	events := e.guardDeadline(st, now)
	r := st.Raffle

	if r.Status != models.StatusSettled {
		return events, nil, fmt.Errorf("%w: expected %s, got %s", models.ErrWrongState, models.StatusSettled, r.Status)
	}
	if !r.PrizeSet {
		return events, nil, models.ErrPrizeNotSet
	}

	ticket, ok := st.Tickets[*r.WinnerSlot]
	if !ok {
		return events, nil, models.ErrTicketNotFound
	}
	if ticket.Owner != caller {
		return events, nil, models.ErrNotWinner
	}
	if ticket.Claimed {
		return events, nil, models.ErrAlreadyClaimed
	}

	ticket.Claimed = true
	r.PrizeClaimed = true
	r.UpdatedAt = now.Unix()

	transfers := []Transfer{{Asset: r.PrizeAsset, From: r.EscrowAccount, To: caller, Amount: 1}}
	events = append(events, PrizeClaimed{RaffleID: r.ID, Winner: caller, PrizeAsset: r.PrizeAsset})
	events = append(events, e.maybeClose(st, now)...)
	return events, transfers, nil
}

// ClaimRefund pays back a non-winner's exact amount_paid, or issues a
// free-ticket credential per the raffle's refund mode. Exactly once per
// ticket.
func (e *Engine) ClaimRefund(ctx context.Context, st *State, caller string, slot uint32) ([]Event, []Transfer, error) {
	now := e.Now()
	events := e.guardDeadline(st, now)
	r := st.Raffle

	if r.Status != models.StatusRefunding {
		return events, nil, fmt.Errorf("%w: expected %s, got %s", models.ErrWrongState, models.StatusRefunding, r.Status)
	}

	ticket, ok := st.Tickets[slot]
	if !ok {
		return events, nil, models.ErrTicketNotFound
	}
	if ticket.Owner != caller {
		return events, nil, models.ErrNotTicketOwner
	}
	if ticket.Claimed {
		return events, nil, models.ErrAlreadyClaimed
	}

	payoutEvents, transfers, err := e.refundTicket(ctx, st, ticket, now)
	if err != nil {
		return events, nil, err
	}
	events = append(events, payoutEvents...)
	events = append(events, e.closeIfRefunded(st, now)...)
	return events, transfers, nil
}

// RefundBatch sweeps every unclaimed ticket of a refunding raffle in one
// call. Safe for any caller; the off-chain deadline watcher is just another
// caller of this entry point. Re-running it is a no-op.
func (e *Engine) RefundBatch(ctx context.Context, st *State) ([]Event, []Transfer, int, error) {
	now := e.Now()
	events := e.guardDeadline(st, now)
	r := st.Raffle

	if r.Status != models.StatusRefunding {
		return events, nil, 0, fmt.Errorf("%w: expected %s, got %s", models.ErrWrongState, models.StatusRefunding, r.Status)
	}

	var transfers []Transfer
	refunded := 0
	for _, slot := range st.Slots.Occupied() {
		ticket := st.Tickets[slot]
		if ticket == nil || ticket.Claimed {
			continue
		}
		payoutEvents, payoutTransfers, err := e.refundTicket(ctx, st, ticket, now)
		if err != nil {
			return events, nil, refunded, err
		}
		events = append(events, payoutEvents...)
		transfers = append(transfers, payoutTransfers...)
		refunded++
	}

	events = append(events, e.closeIfRefunded(st, now)...)
	return events, transfers, refunded, nil
}

func (e *Engine) refundTicket(ctx context.Context, st *State, ticket *models.Ticket, now time.Time) ([]Event, []Transfer, error) {
	r := st.Raffle

	var events []Event
	var transfers []Transfer
	switch r.RefundMode {
	case models.RefundModeCredential:
		credential := &models.Credential{
			ID:             uuid.New().String(),
			Owner:          ticket.Owner,
			SourceRaffleID: r.ID,
			Slots:          1,
			IssuedAt:       now.Unix(),
		}
		if err := e.credentials.Issue(ctx, credential); err != nil {
			return nil, nil, fmt.Errorf("failed to issue credential: %w", err)
		}
		events = append(events, CredentialIssued{
			RaffleID:     r.ID,
			Owner:        ticket.Owner,
			CredentialID: credential.ID,
			Slots:        credential.Slots,
		})
	default: // cash
		if ticket.AmountPaid > 0 {
			transfers = append(transfers, Transfer{
				Asset:  r.EscrowAsset,
				From:   r.EscrowAccount,
				To:     ticket.Owner,
				Amount: ticket.AmountPaid,
			})
			r.EscrowBalance -= ticket.AmountPaid
		}
		events = append(events, RefundPaid{
			RaffleID: r.ID,
			Owner:    ticket.Owner,
			Slot:     ticket.Slot,
			Amount:   ticket.AmountPaid,
		})
	}

	ticket.Claimed = true
	r.UpdatedAt = now.Unix()
	return events, transfers, nil
}

// CollectProceeds transfers the remaining escrow to the organizer, once,
// after settlement.
func (e *Engine) CollectProceeds(ctx context.Context, st *State, caller string) ([]Event, []Transfer, error) {
	now := e.Now()
	events := e.guardDeadline(st, now)
	r := st.Raffle

	if r.Status != models.StatusSettled {
		return events, nil, fmt.Errorf("%w: expected %s, got %s", models.ErrWrongState, models.StatusSettled, r.Status)
	}
	if caller != r.Organizer {
		return events, nil, models.ErrNotOrganizer
	}
	if r.ProceedsCollected {
		return events, nil, models.ErrProceedsCollected
	}

	amount := r.EscrowBalance
	r.EscrowBalance = 0
	r.ProceedsCollected = true
	r.UpdatedAt = now.Unix()

	// A raffle filled entirely with credentials holds no escrow, but the
	// collection must still succeed or the raffle could never close.
	var transfers []Transfer
	if amount > 0 {
		transfers = []Transfer{{Asset: r.EscrowAsset, From: r.EscrowAccount, To: caller, Amount: amount}}
	}
	events = append(events, ProceedsCollected{RaffleID: r.ID, Organizer: caller, Amount: amount})
	events = append(events, e.maybeClose(st, now)...)
	return events, transfers, nil
}

// maybeClose finalizes a settled raffle once both the winner's prize claim
// and the organizer's proceeds collection have happened, whichever comes
// second.
func (e *Engine) maybeClose(st *State, now time.Time) []Event {
	r := st.Raffle
	if r.Status == models.StatusSettled && r.PrizeClaimed && r.ProceedsCollected {
		r.Status = models.StatusClosed
		r.UpdatedAt = now.Unix()
		return []Event{RaffleClosed{RaffleID: r.ID}}
	}
	return nil
}

// closeIfRefunded finalizes a refunding raffle once every sold ticket has
// been claimed.
func (e *Engine) closeIfRefunded(st *State, now time.Time) []Event {
	r := st.Raffle
	if r.Status != models.StatusRefunding {
		return nil
	}
	for _, slot := range st.Slots.Occupied() {
		if ticket := st.Tickets[slot]; ticket == nil || !ticket.Claimed {
			return nil
		}
	}
	r.Status = models.StatusClosed
	r.UpdatedAt = now.Unix()
	return []Event{RaffleClosed{RaffleID: r.ID}}
}
