package inmemory

import (
	"context"
	"sync"

	"rwa-raffle-backend/internal/platform/ledger"
)

type inmemoryLedger struct {
	mu       sync.Mutex
	balances map[string]map[string]int64 // account -> asset -> balance
}

func NewLedger() ledger.Ledger {
	return &inmemoryLedger{balances: make(map[string]map[string]int64)}
}

func (l *inmemoryLedger) post(account, asset string, delta int64) {
	accountBalances, ok := l.balances[account]
	if !ok {
		accountBalances = make(map[string]int64)
		l.balances[account] = accountBalances
	}
	accountBalances[asset] += delta
}

func (l *inmemoryLedger) Apply(_ context.Context, entries []ledger.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, entry := range entries {
		l.post(entry.From, entry.Asset, -int64(entry.Amount))
		l.post(entry.To, entry.Asset, int64(entry.Amount))
	}
	return nil
}

func (l *inmemoryLedger) Balance(_ context.Context, account, asset string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account][asset], nil
}
