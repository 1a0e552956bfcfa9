package miner

import (
	"context"
	"testing"
	"time"

	"github.com/emberchain/emberchain/pkg/block"
)

func TestNewBlockFieldsAreConsistent(t *testing.T) {
	prev := block.Genesis(time.Now().Unix())

	b, err := NewBlock(context.Background(), 1, prev.Hash, " hello")
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}

	if b.ID != 1 {
		t.Errorf("id: got %d, want 1", b.ID)
	}
	if b.PreviousHash != prev.Hash {
		t.Errorf("previous_hash: got %q, want %q", b.PreviousHash, prev.Hash)
	}
	if b.Data != " hello" {
		t.Errorf("data: got %q, want %q", b.Data, " hello")
	}

	fp, err := block.Fingerprint(b.ID, b.Timestamp, b.PreviousHash, b.Data, b.Nonce)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if block.HexHash(fp) != b.Hash {
		t.Errorf("stored hash %q does not match recomputed fingerprint %q", b.Hash, block.HexHash(fp))
	}
	if !block.MeetsDifficulty(fp) {
		t.Error("mined block does not satisfy difficulty")
	}
}

func TestMineRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Mine(ctx, 1, time.Now().Unix(), "prev", "data")
	if err == nil {
		t.Fatal("expected Mine to return an error on an already-cancelled context")
	}
}

func TestMineDeterministicForFixedInputs(t *testing.T) {
	nonce1, hash1, err := Mine(context.Background(), 5, 1700000000, "prevhash", "fixed data")
	if err != nil {
		t.Fatalf("Mine: %v", err)
	}
	nonce2, hash2, err := Mine(context.Background(), 5, 1700000000, "prevhash", "fixed data")
	if err != nil {
		t.Fatalf("Mine: %v", err)
	}
	if nonce1 != nonce2 || hash1 != hash2 {
		t.Fatalf("Mine is not deterministic for identical inputs: (%d,%s) != (%d,%s)", nonce1, hash1, nonce2, hash2)
	}
}
