package models

import "errors"

var (
	ErrInvalidPermit  = errors.New("invalid permit")
	ErrPermitExpired  = errors.New("permit expired")
	ErrPermitReplayed = errors.New("permit nonce already used")
	ErrWrongProgram   = errors.New("permit bound to a different program")
)

// NonceSize is the fixed length of a permit nonce in bytes.
const NonceSize = 16

// Nonce is the unique replay-protection value of a permit.
type Nonce [NonceSize]byte

// Permit authorizes an organizer to create one raffle with specific
// parameters. It is short-lived and consumed exactly once: the nonce is
// recorded per organizer and rejected on every later use.
type Permit struct {
	Organizer       string // hex ed25519 public key expected to have signed
	Nonce           Nonce
	Expiry          int64 // unix seconds; invalid once reached or passed
	RequiredTickets uint64
	Deadline        int64
	ProgramID       string // hex 32-byte deployment identity
	AutoDraw        bool
	TicketMode      uint8 // 0=disabled, 1=require_burn, 2=accept_without_burn
}

// IssueRequest is the payload an organizer submits to obtain an unsigned
// permit message. The backend never signs; the organizer's wallet does.
type IssueRequest struct {
	Organizer    string `json:"organizer" binding:"required"`
	EnterpriseID string `json:"enterprise_id" binding:"required"`

	RaffleConfig struct {
		RequiredTickets uint64 `json:"required_tickets" binding:"required,min=1"`
		Deadline        int64  `json:"deadline" binding:"required"`
		AutoDraw        bool   `json:"auto_draw"`
		TicketMode      uint8  `json:"ticket_mode" binding:"max=2"`
	} `json:"raffle_config" binding:"required"`
}

// IssueResponse returns the canonical message bytes the organizer must
// sign, plus the nonce and expiry to echo back at raffle creation.
type IssueResponse struct {
	Message string `json:"message"` // hex of the canonical permit message
	Nonce   string `json:"nonce"`   // hex, 16 bytes
	Expiry  int64  `json:"expiry"`
}
