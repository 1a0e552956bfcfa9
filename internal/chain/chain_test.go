package chain

import (
	"context"
	"testing"

	"github.com/emberchain/emberchain/internal/miner"
	"github.com/emberchain/emberchain/pkg/block"
)

func TestGenesisBoot(t *testing.T) {
	c := New()
	c.InitGenesis()

	if c.Len() != 1 {
		t.Fatalf("len: got %d, want 1", c.Len())
	}
	if !ValidateChain(c.Blocks()) {
		t.Fatal("validate_chain([genesis]) should be vacuously true")
	}
}

func TestMineAndAppend(t *testing.T) {
	c := New()
	c.InitGenesis()
	tip, _ := c.Tip()

	b, err := miner.NewBlock(context.Background(), tip.ID+1, tip.Hash, " hello")
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}

	if b.ID != 1 {
		t.Errorf("id: got %d, want 1", b.ID)
	}
	if b.PreviousHash != "0000f816a87f806bb0073dcf026a64fb40c946b5abee2573702828694d5b4c43" {
		t.Errorf("previous_hash: got %q", b.PreviousHash)
	}
	if b.Data != " hello" {
		t.Errorf("data: got %q, want %q", b.Data, " hello")
	}
	if !ValidatePair(b, tip) {
		t.Fatal("validate_pair(new, genesis) should be true")
	}
	if !c.TryAppend(b) {
		t.Fatal("TryAppend should succeed for a well-mined successor")
	}
	if c.Len() != 2 {
		t.Fatalf("len after append: got %d, want 2", c.Len())
	}
}

func TestRejectBadPreviousHash(t *testing.T) {
	c := New()
	c.InitGenesis()
	tip, _ := c.Tip()

	b, err := miner.NewBlock(context.Background(), tip.ID+1, tip.Hash, "hello")
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}
	b.PreviousHash = "deadbeef"

	if c.TryAppend(b) {
		t.Fatal("TryAppend should reject a tampered previous_hash")
	}
	if c.Len() != 1 {
		t.Fatalf("len should be unchanged: got %d, want 1", c.Len())
	}
}

func TestRejectBadProofOfWork(t *testing.T) {
	c := New()
	c.InitGenesis()
	tip, _ := c.Tip()

	b := block.Block{
		ID:           tip.ID + 1,
		PreviousHash: tip.Hash,
		Data:         "hello",
		Nonce:        0,
		Timestamp:    1700000000,
	}
	fp, err := block.Fingerprint(b.ID, b.Timestamp, b.PreviousHash, b.Data, b.Nonce)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	b.Hash = block.HexHash(fp)

	if ValidatePair(b, tip) {
		t.Fatal("validate_pair should reject a hash that doesn't satisfy difficulty")
	}
	if c.TryAppend(b) {
		t.Fatal("TryAppend should reject a block that fails proof of work")
	}
}

func TestRejectNonMonotonicID(t *testing.T) {
	c := New()
	c.InitGenesis()
	tip, _ := c.Tip()

	b, err := miner.NewBlock(context.Background(), tip.ID+2, tip.Hash, "hello")
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}

	if ValidatePair(b, tip) {
		t.Fatal("validate_pair should reject a block whose id skips ahead")
	}
}

func TestValidateChainShortCircuits(t *testing.T) {
	c := New()
	c.InitGenesis()
	tip, _ := c.Tip()

	good, err := miner.NewBlock(context.Background(), tip.ID+1, tip.Hash, "hello")
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}
	bad, err := miner.NewBlock(context.Background(), good.ID+1, "not-the-right-hash", "world")
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}

	chain := []block.Block{tip, good, bad}
	if ValidateChain(chain) {
		t.Fatal("validate_chain should return false as soon as one pair fails")
	}
}

func TestChooseChainPrefersLongerValidChain(t *testing.T) {
	local := chainOfLen(t, 2)
	remote := chainOfLen(t, 4)

	chosen, err := ChooseChain(local, remote)
	if err != nil {
		t.Fatalf("ChooseChain: %v", err)
	}
	if len(chosen) != len(remote) {
		t.Fatalf("chosen length: got %d, want %d", len(chosen), len(remote))
	}
}

func TestChooseChainTiesFavorLocal(t *testing.T) {
	local := chainOfLen(t, 3)
	remote := chainOfLen(t, 3)

	chosen, err := ChooseChain(local, remote)
	if err != nil {
		t.Fatalf("ChooseChain: %v", err)
	}
	for i := range chosen {
		if chosen[i] != local[i] {
			t.Fatalf("tie should favor local chain, got mismatch at %d", i)
		}
	}
}

func TestChooseChainOnlyOneValid(t *testing.T) {
	local := chainOfLen(t, 2)
	remote := chainOfLen(t, 5)
	remote[3].PreviousHash = "corrupted"

	chosen, err := ChooseChain(local, remote)
	if err != nil {
		t.Fatalf("ChooseChain: %v", err)
	}
	for i := range chosen {
		if chosen[i] != local[i] {
			t.Fatalf("only-local-valid case should return local, got mismatch at %d", i)
		}
	}
}

func TestChooseChainBothInvalidIsFatal(t *testing.T) {
	local := chainOfLen(t, 2)
	local[1].PreviousHash = "corrupted"
	remote := chainOfLen(t, 2)
	remote[1].PreviousHash = "also-corrupted"

	_, err := ChooseChain(local, remote)
	if err != ErrBothInvalid {
		t.Fatalf("expected ErrBothInvalid, got %v", err)
	}
}

func TestSameChainChosenForItself(t *testing.T) {
	c := chainOfLen(t, 3)
	chosen, err := ChooseChain(c, c)
	if err != nil {
		t.Fatalf("ChooseChain: %v", err)
	}
	if len(chosen) != len(c) {
		t.Fatalf("choose_chain(c, c) length mismatch: got %d, want %d", len(chosen), len(c))
	}
}

// chainOfLen builds a valid chain of exactly n blocks starting from
// genesis, mining each successor for real.
func chainOfLen(t *testing.T, n int) []block.Block {
	t.Helper()
	c := New()
	c.InitGenesis()
	for i := 1; i < n; i++ {
		tip, _ := c.Tip()
		b, err := miner.NewBlock(context.Background(), tip.ID+1, tip.Hash, "data")
		if err != nil {
			t.Fatalf("NewBlock: %v", err)
		}
		if !c.TryAppend(b) {
			t.Fatalf("TryAppend failed while building test chain")
		}
	}
	return c.Blocks()
}
