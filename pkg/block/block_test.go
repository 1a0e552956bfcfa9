package block

import (
	"encoding/hex"
	"encoding/json"
	"testing"
)

func TestFingerprintDeterministic(t *testing.T) {
	a, err := Fingerprint(1, 1000, "prevhash", "payload", 42)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	b, err := Fingerprint(1, 1000, "prevhash", "payload", 42)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if HexHash(a) != HexHash(b) {
		t.Fatalf("same inputs produced different fingerprints: %s != %s", HexHash(a), HexHash(b))
	}
}

func TestFingerprintSensitiveToEveryField(t *testing.T) {
	base, _ := Fingerprint(1, 1000, "prevhash", "payload", 42)

	variants := []struct {
		name string
		hash []byte
	}{
		{"id", mustFingerprint(t, 2, 1000, "prevhash", "payload", 42)},
		{"timestamp", mustFingerprint(t, 1, 1001, "prevhash", "payload", 42)},
		{"previous_hash", mustFingerprint(t, 1, 1000, "other", "payload", 42)},
		{"data", mustFingerprint(t, 1, 1000, "prevhash", "other", 42)},
		{"nonce", mustFingerprint(t, 1, 1000, "prevhash", "payload", 43)},
	}
	for _, v := range variants {
		if HexHash(base) == HexHash(v.hash) {
			t.Errorf("changing %s did not change fingerprint", v.name)
		}
	}
}

func mustFingerprint(t *testing.T, id uint64, ts int64, prev, data string, nonce uint64) []byte {
	t.Helper()
	h, err := Fingerprint(id, ts, prev, data, nonce)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	return h
}

func TestToBitStringOmitsLeadingZeroBits(t *testing.T) {
	// 0x00 -> "0" (not "00000000"), 0x01 -> "1", 0x80 -> "10000000".
	got := ToBitString([]byte{0x00, 0x01, 0x80})
	want := "0" + "1" + "10000000"
	if got != want {
		t.Fatalf("ToBitString = %q, want %q", got, want)
	}
}

func TestMeetsDifficultyMatchesGenesisHash(t *testing.T) {
	gen := Genesis(0)
	raw, err := hex.DecodeString(gen.Hash)
	if err != nil {
		t.Fatalf("decode genesis hash: %v", err)
	}
	if !MeetsDifficulty(raw) {
		t.Fatalf("hardcoded genesis hash %s does not satisfy difficulty prefix %q", gen.Hash, DifficultyPrefix)
	}
}

func TestBlockJSONRoundTrip(t *testing.T) {
	b := Block{
		ID:           7,
		Hash:         "deadbeef",
		PreviousHash: "cafebabe",
		Timestamp:    1700000000,
		Data:         " hello world",
		Nonce:        123456,
	}
	buf, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Block
	if err := json.Unmarshal(buf, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out != b {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, b)
	}
}
