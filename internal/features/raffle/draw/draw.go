// Package draw reduces externally supplied randomness to a winning slot
// index. It never generates randomness itself: the beacon output comes from
// an external verifiable source and this package only range-reduces it.
package draw

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrEmptySeed = errors.New("empty randomness seed")
	ErrZeroRange = errors.New("winner range must be positive")
)

// Source supplies beacon output for a raffle draw. A missing or unavailable
// beacon must surface as an error so the draw can be retried without
// mutating raffle state.
type Source interface {
	Randomness(ctx context.Context, raffleID string) ([]byte, error)
}

// WinnerIndex maps a beacon seed uniformly onto [0, n). Uniformity is
// achieved by rejection sampling: draws above the largest multiple of n
// are discarded and the seed is re-hashed with a counter, so no index is
// favored by modulo bias.
func WinnerIndex(seed []byte, n uint64) (uint32, error) {
	if len(seed) == 0 {
		return 0, ErrEmptySeed
	}
	if n == 0 {
		return 0, ErrZeroRange
	}

	limit := ^uint64(0) - (^uint64(0) % n)
	for round := uint32(0); ; round++ {
		h := sha256.New()
		h.Write(seed)
		var counter [4]byte
		binary.LittleEndian.PutUint32(counter[:], round)
		h.Write(counter[:])
		digest := h.Sum(nil)

		v := binary.LittleEndian.Uint64(digest[:8])
		if v < limit {
			return uint32(v % n), nil
		}
		// The rejection region is under 2^-63 of the space for any
		// realistic n, so this loop terminates almost immediately.
		if round == 1<<16 {
			return 0, fmt.Errorf("rejection sampling did not converge")
		}
	}
}

// StaticSource returns a fixed seed for every raffle. Used in tests and
// manual settlement paths where the beacon output is supplied directly.
type StaticSource []byte

func (s StaticSource) Randomness(context.Context, string) ([]byte, error) {
	if len(s) == 0 {
		return nil, ErrEmptySeed
	}
	return s, nil
}
