// Package chain holds the in-memory, append-only sequence of blocks that
// makes up this node's view of the network, along with the validation and
// reconciliation rules that keep it consistent with its peers.
package chain

import (
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/emberchain/emberchain/internal/log"
	"github.com/emberchain/emberchain/pkg/block"
)

// ErrBothInvalid is returned by ChooseChain when neither the local nor the
// remote chain validates. Per spec.md §4.3 this is a protocol-fatal
// condition: the caller (internal/node) is expected to treat it as
// unrecoverable and stop accepting further input, rather than silently
// picking one of the two broken chains.
var ErrBothInvalid = errors.New("chain: both local and remote chains are invalid")

// Chain is the mutex-protected, append-only block list a node maintains.
// All operations require exclusive access and are safe for concurrent use.
type Chain struct {
	mu     sync.Mutex
	blocks []block.Block
}

// New returns an empty Chain. Call InitGenesis before using it.
func New() *Chain {
	return &Chain{}
}

// InitGenesis pushes the hardcoded genesis block. It is the caller's
// responsibility to call this at most once, on an empty chain.
func (c *Chain) InitGenesis() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks = append(c.blocks, block.Genesis(time.Now().Unix()))
}

// Blocks returns a copy of the chain's current blocks.
func (c *Chain) Blocks() []block.Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]block.Block, len(c.blocks))
	copy(out, c.blocks)
	return out
}

// Tip returns the last block on the chain and whether the chain is
// non-empty.
func (c *Chain) Tip() (block.Block, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.blocks) == 0 {
		return block.Block{}, false
	}
	return c.blocks[len(c.blocks)-1], true
}

// Len returns the number of blocks currently on the chain.
func (c *Chain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.blocks)
}

// TryAppend appends b to the chain if it validates against the current
// tip, returning true on success. A failed append is logged at warn level
// and never panics.
func (c *Chain) TryAppend(b block.Block) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.blocks) == 0 {
		log.Chain.Warn().Msg("try_append called on empty chain")
		return false
	}
	tip := c.blocks[len(c.blocks)-1]
	if !ValidatePair(b, tip) {
		log.Chain.Warn().Uint64("id", b.ID).Str("previous_hash", b.PreviousHash).Msg("rejected block: failed pair validation")
		return false
	}
	c.blocks = append(c.blocks, b)
	return true
}

// AppendUnchecked pushes b onto the chain without running ValidatePair.
// Used for locally mined blocks, where the miner already guarantees
// well-formedness (spec.md §9's "locally mined block" open question).
func (c *Chain) AppendUnchecked(b block.Block) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks = append(c.blocks, b)
}

// Replace swaps the chain's contents wholesale, used after ChooseChain
// picks a remote chain over the local one.
func (c *Chain) Replace(blocks []block.Block) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks = make([]block.Block, len(blocks))
	copy(c.blocks, blocks)
}

// ValidatePair reports whether B is a legal successor of A: B's
// previous_hash must match A's hash, B's id must immediately follow A's
// id, B's hash must satisfy the network difficulty, and B's hash must be
// the correct fingerprint of its own fields.
func ValidatePair(b, a block.Block) bool {
	if b.PreviousHash != a.Hash {
		return false
	}
	if b.ID != a.ID+1 {
		return false
	}
	raw, err := hex.DecodeString(b.Hash)
	if err != nil {
		return false
	}
	if !block.MeetsDifficulty(raw) {
		return false
	}
	fp, err := block.Fingerprint(b.ID, b.Timestamp, b.PreviousHash, b.Data, b.Nonce)
	if err != nil {
		return false
	}
	return block.HexHash(fp) == b.Hash
}

// ValidateChain reports whether every adjacent pair in chain validates,
// skipping index 0 (the genesis block, which is never itself checked
// against a predecessor). The reference implementation has a latent bug
// where a failed pair does not short-circuit the result; this
// implementation returns false on the first invalid pair, per spec.md §9.
func ValidateChain(chain []block.Block) bool {
	for i := 1; i < len(chain); i++ {
		if !ValidatePair(chain[i], chain[i-1]) {
			return false
		}
	}
	return true
}

// ChooseChain picks the winning chain between local and remote: if both
// validate, the longer one wins and ties favor local; if only one
// validates, it wins outright; if neither validates, ChooseChain returns
// ErrBothInvalid rather than panicking (spec.md §4.3's reference semantics
// aborts the process — we surface the condition as a terminal error for
// the caller to act on instead).
func ChooseChain(local, remote []block.Block) ([]block.Block, error) {
	localValid := ValidateChain(local)
	remoteValid := ValidateChain(remote)

	switch {
	case localValid && remoteValid:
		if len(remote) > len(local) {
			return remote, nil
		}
		return local, nil
	case remoteValid:
		return remote, nil
	case localValid:
		return local, nil
	default:
		return nil, ErrBothInvalid
	}
}
