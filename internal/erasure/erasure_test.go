package erasure

import "testing"

func TestEncodeReconstructJoinRoundTrip(t *testing.T) {
	s, err := NewScheme(4, 2)
	if err != nil {
		t.Fatalf("NewScheme: %v", err)
	}
	original := make([]byte, 4096)
	for i := range original {
		original[i] = byte(i % 251)
	}

	shards, err := s.Encode(original)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Lose up to ParityShards shards; reconstruction should still recover
	// the original block.
	shards[1] = nil
	shards[5] = nil

	ok, err := s.Reconstruct(shards)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if !ok {
		t.Fatal("Reconstruct reported unrecoverable")
	}

	joined, err := s.Join(shards, len(original))
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if string(joined) != string(original) {
		t.Error("joined block does not match original after reconstruction")
	}
}
