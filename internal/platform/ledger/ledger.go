// Package ledger records fund movements ordered by the raffle engine. The
// backend does not custody assets itself; this ledger is the integration
// point where settlement instructions are applied, and the default
// implementations keep simple running balances per account and asset.
package ledger

import "context"

// Entry is one fund movement between two accounts in a single asset.
type Entry struct {
	Asset  string `json:"asset"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// Ledger applies transfer entries. Apply is all-or-nothing across the batch.
type Ledger interface {
	Apply(ctx context.Context, entries []Entry) error
	Balance(ctx context.Context, account, asset string) (int64, error)
}
