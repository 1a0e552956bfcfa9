// Package miner implements the proof-of-work search used to produce new
// blocks for the emberchain chain.
package miner

import (
	"context"
	"time"

	"github.com/emberchain/emberchain/internal/log"
	"github.com/emberchain/emberchain/pkg/block"
)

// logInterval is how often Mine emits a progress log line, per spec.md §4.2.
const logInterval = 100_000

// Mine searches for the first nonce, starting at 0 and incrementing by one,
// whose fingerprint satisfies the network difficulty. It returns the
// winning nonce and the hex-encoded hash. Mining never times out on its
// own; pass a cancellable ctx (e.g. preempted by a longer remote chain
// arriving — spec.md §9) to stop it early.
func Mine(ctx context.Context, id uint64, timestamp int64, previousHash, data string) (nonce uint64, hash string, err error) {
	l := log.Miner
	l.Info().Uint64("id", id).Msg("mining block")

	for nonce = 0; ; nonce++ {
		if nonce%logInterval == 0 {
			l.Info().Uint64("nonce", nonce).Msg("mining progress")
		}

		select {
		case <-ctx.Done():
			return 0, "", ctx.Err()
		default:
		}

		fp, err := block.Fingerprint(id, timestamp, previousHash, data, nonce)
		if err != nil {
			return 0, "", err
		}
		if block.MeetsDifficulty(fp) {
			hexHash := block.HexHash(fp)
			l.Info().Uint64("nonce", nonce).Str("hash", hexHash).Msg("mined block")
			return nonce, hexHash, nil
		}

		if nonce == ^uint64(0) {
			return 0, "", context.DeadlineExceeded
		}
	}
}

// NewBlock mines a new block on top of previousHash with the given id and
// data, using the current wall-clock time as the block's timestamp. The
// timestamp used while mining is the same one stored in the returned
// block, as spec.md §4.2 requires.
func NewBlock(ctx context.Context, id uint64, previousHash, data string) (block.Block, error) {
	timestamp := time.Now().Unix()
	nonce, hash, err := Mine(ctx, id, timestamp, previousHash, data)
	if err != nil {
		return block.Block{}, err
	}
	return block.Block{
		ID:           id,
		Hash:         hash,
		PreviousHash: previousHash,
		Timestamp:    timestamp,
		Data:         data,
		Nonce:        nonce,
	}, nil
}
