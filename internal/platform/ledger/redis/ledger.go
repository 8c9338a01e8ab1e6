package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"rwa-raffle-backend/internal/platform/ledger"
)

const keyPrefixAccount = "ledger:account:"

type redisLedger struct {
	client *redis.Client
}

func NewLedger(client *redis.Client) ledger.Ledger {
	return &redisLedger{client: client}
}

func makeAccountKey(account string) string {
	return keyPrefixAccount + account
}

// Apply posts every entry as a debit and a matching credit in one pipeline.
func (l *redisLedger) Apply(ctx context.Context, entries []ledger.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	pipe := l.client.TxPipeline()
	for _, entry := range entries {
		pipe.HIncrBy(ctx, makeAccountKey(entry.From), entry.Asset, -int64(entry.Amount))
		pipe.HIncrBy(ctx, makeAccountKey(entry.To), entry.Asset, int64(entry.Amount))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to apply ledger entries: %w", err)
	}
	return nil
}

func (l *redisLedger) Balance(ctx context.Context, account, asset string) (int64, error) {
	balance, err := l.client.HGet(ctx, makeAccountKey(account), asset).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return balance, err
}
