package engine

// Event is a typed record of a state transition, surfaced to the service
// layer for logging and for off-chain workers watching the raffle.
type Event interface {
	EventKind() string
}

type RaffleCreated struct {
	RaffleID        string
	Organizer       string
	RequiredTickets uint64
	Deadline        int64
}

func (RaffleCreated) EventKind() string { return "raffle_created" }

type Deposited struct {
	RaffleID    string
	Owner       string
	Slots       []uint32
	Amount      uint64
	TicketsSold uint64
}

func (Deposited) EventKind() string { return "deposited" }

type ThresholdReached struct {
	RaffleID string
	Supply   uint64
}

func (ThresholdReached) EventKind() string { return "threshold_reached" }

type RandomnessRequested struct {
	RaffleID string
	Supply   uint64
}

func (RandomnessRequested) EventKind() string { return "randomness_requested" }

type WinnerSelected struct {
	RaffleID   string
	WinnerSlot uint32
}

func (WinnerSelected) EventKind() string { return "winner_selected" }

type RefundingEntered struct {
	RaffleID    string
	TicketsSold uint64
}

func (RefundingEntered) EventKind() string { return "refunding_entered" }

type RefundPaid struct {
	RaffleID string
	Owner    string
	Slot     uint32
	Amount   uint64
}

func (RefundPaid) EventKind() string { return "refund_paid" }

type CredentialIssued struct {
	RaffleID     string
	Owner        string
	CredentialID string
	Slots        uint32
}

func (CredentialIssued) EventKind() string { return "credential_issued" }

type PrizeSet struct {
	RaffleID   string
	PrizeAsset string
}

func (PrizeSet) EventKind() string { return "prize_set" }

type PrizeClaimed struct {
	RaffleID   string
	Winner     string
	PrizeAsset string
}

func (PrizeClaimed) EventKind() string { return "prize_claimed" }

type ProceedsCollected struct {
	RaffleID  string
	Organizer string
	Amount    uint64
}

func (ProceedsCollected) EventKind() string { return "proceeds_collected" }

type RaffleClosed struct {
	RaffleID string
}

func (RaffleClosed) EventKind() string { return "raffle_closed" }
