// Package redis stores beacon output per raffle. An external randomness
// provider publishes the seed here and draw settlement consumes it.
package redis

import (
	"context"

	"github.com/redis/go-redis/v9"

	"rwa-raffle-backend/internal/features/raffle/draw"
)

const keyPrefixRandomness = "randomness:"

type redisSource struct {
	client *redis.Client
}

func NewSource(client *redis.Client) *redisSource {
	return &redisSource{client: client}
}

var _ draw.Source = (*redisSource)(nil)

func makeRandomnessKey(raffleID string) string {
	return keyPrefixRandomness + raffleID
}

func (s *redisSource) Randomness(ctx context.Context, raffleID string) ([]byte, error) {
	seed, err := s.client.Get(ctx, makeRandomnessKey(raffleID)).Bytes()
	if err == redis.Nil {
		return nil, draw.ErrEmptySeed
	}
	if err != nil {
		return nil, err
	}
	if len(seed) == 0 {
		return nil, draw.ErrEmptySeed
	}
	return seed, nil
}

// Publish records beacon output for a raffle, overwriting any previous seed.
// Settlement is idempotent, so a later overwrite cannot change a winner that
// was already selected.
func (s *redisSource) Publish(ctx context.Context, raffleID string, seed []byte) error {
	return s.client.Set(ctx, makeRandomnessKey(raffleID), seed, 0).Err()
}
