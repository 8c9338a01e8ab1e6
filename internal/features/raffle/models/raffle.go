package models

import "errors"

var (
	ErrRaffleNotFound    = errors.New("raffle not found")
	ErrInvalidConfig     = errors.New("invalid raffle config")
	ErrOrganizerInactive = errors.New("organizer is not registered or inactive")
	ErrNotOrganizer      = errors.New("caller is not the raffle organizer")

	ErrRaffleNotSelling = errors.New("raffle is not selling")
	ErrDeadlinePassed   = errors.New("raffle deadline has passed")
	ErrAmountMismatch   = errors.New("amount does not match requested slots")

	ErrNotFull               = errors.New("raffle is not full")
	ErrAlreadySettled        = errors.New("draw already settled")
	ErrRandomnessUnavailable = errors.New("randomness unavailable")
	ErrWinnerSlotUnsold      = errors.New("winner slot is not occupied")

	ErrWrongState     = errors.New("operation invalid for raffle state")
	ErrTicketNotFound = errors.New("ticket not found")
	ErrNotTicketOwner = errors.New("caller does not own this ticket")
	ErrNotWinner      = errors.New("ticket is not the winning ticket")
	ErrAlreadyClaimed = errors.New("ticket already claimed")

	ErrPrizeAlreadySet   = errors.New("prize already set")
	ErrPrizeNotSet       = errors.New("prize not set")
	ErrProceedsCollected = errors.New("proceeds already collected")

	ErrTicketModeDisabled = errors.New("free ticket redemption is disabled for this raffle")
	ErrCredentialNotFound = errors.New("free ticket credential not found")
	ErrNotCredentialOwner = errors.New("caller does not own this credential")
	ErrCredentialMismatch = errors.New("credential does not cover the requested slots")
)

// Status is the lifecycle state of a raffle. Transitions are monotonic:
// selling -> drawing -> settled -> closed, or selling -> refunding -> closed.
type Status string

const (
	StatusSelling   Status = "selling"
	StatusDrawing   Status = "drawing"
	StatusSettled   Status = "settled"
	StatusRefunding Status = "refunding"
	StatusClosed    Status = "closed"
)

// TicketMode governs redemption of free-ticket credentials issued by a
// previous raffle's refund.
type TicketMode uint8

const (
	TicketModeDisabled          TicketMode = 0
	TicketModeRequireBurn       TicketMode = 1
	TicketModeAcceptWithoutBurn TicketMode = 2
)

func (m TicketMode) Valid() bool {
	return m <= TicketModeAcceptWithoutBurn
}

// RefundMode selects what a non-winner receives when a raffle fails.
type RefundMode string

const (
	RefundModeCash       RefundMode = "cash"
	RefundModeCredential RefundMode = "credential"
)

func (m RefundMode) Valid() bool {
	return m == RefundModeCash || m == RefundModeCredential
}

// Raffle is the persistent state of a single raffle.
type Raffle struct {
	ID            string `json:"id"`
	Organizer     string `json:"organizer"`      // hex ed25519 public key
	EscrowAsset   string `json:"escrow_asset"`   // fungible asset collected as payment
	EscrowAccount string `json:"escrow_account"` // ledger account holding deposits

	RequiredTickets uint64     `json:"required_tickets"`
	TicketPrice     uint64     `json:"ticket_price"` // smallest unit of the escrow asset
	TicketsSold     uint64     `json:"tickets_sold"`
	Deadline        int64      `json:"deadline"` // unix seconds
	Status          Status     `json:"status"`
	AutoDraw        bool       `json:"auto_draw"`
	TicketMode      TicketMode `json:"ticket_mode"`
	RefundMode      RefundMode `json:"refund_mode"`

	// WinnerSlot is set exactly once upon settlement and immutable after.
	WinnerSlot    *uint32 `json:"winner_slot,omitempty"`
	EscrowBalance uint64  `json:"escrow_balance"`

	PrizeAsset        string `json:"prize_asset,omitempty"`
	PrizeSet          bool   `json:"prize_set"`
	PrizeClaimed      bool   `json:"prize_claimed"`
	ProceedsCollected bool   `json:"proceeds_collected"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// Full reports whether every slot has been sold.
func (r *Raffle) Full() bool {
	return r.TicketsSold == r.RequiredTickets
}

// Ticket records one owner's claim on one slot, including payment and
// claim status.
type Ticket struct {
	RaffleID      string `json:"raffle_id"`
	Owner         string `json:"owner"`
	Slot          uint32 `json:"slot"`
	AmountPaid    uint64 `json:"amount_paid"`
	ViaCredential bool   `json:"via_credential"`
	Claimed       bool   `json:"claimed"`
	PurchasedAt   int64  `json:"purchased_at"`
}

// Credential is a non-monetary free-ticket voucher issued instead of a
// cash refund, redeemable to join a future raffle per its TicketMode.
type Credential struct {
	ID             string `json:"id"`
	Owner          string `json:"owner"`
	SourceRaffleID string `json:"source_raffle_id"`
	Slots          uint32 `json:"slots"` // number of free slots it covers
	IssuedAt       int64  `json:"issued_at"`
}

// Config carries the creation parameters validated before a raffle enters
// selling state.
type Config struct {
	EscrowAsset     string     `json:"escrow_asset"`
	EscrowAccount   string     `json:"escrow_account"`
	RequiredTickets uint64     `json:"required_tickets"`
	TicketPrice     uint64     `json:"ticket_price"`
	Deadline        int64      `json:"deadline"`
	AutoDraw        bool       `json:"auto_draw"`
	TicketMode      TicketMode `json:"ticket_mode"`
	RefundMode      RefundMode `json:"refund_mode"`
}
