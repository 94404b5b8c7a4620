package bitmap

import (
	"os"
	"testing"
)

func tempAllocator(t *testing.T, total int) *Allocator {
	t.Helper()
	dir, err := os.MkdirTemp("", "distfs-alloc-")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	a, err := Open(Options{DataDir: dir, BlockSize: 4096, TotalBlocks: total})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return a
}

// E1: fresh node, total_blocks=64. Allocate 3 in succession -> 0,1,2.
// free_count = 61. Free id 1 -> free_count = 62. Allocate again -> id 1.
func TestE1AllocateFreeSequence(t *testing.T) {
	a := tempAllocator(t, 64)

	for i, want := range []uint64{0, 1, 2} {
		id, err := a.Allocate()
		if err != nil {
			t.Fatalf("allocate %d: %v", i, err)
		}
		if id != want {
			t.Errorf("allocate %d = %d, want %d", i, id, want)
		}
	}
	if got := a.FreeCount(); got != 61 {
		t.Errorf("free count = %d, want 61", got)
	}

	if err := a.Free(1); err != nil {
		t.Fatalf("free: %v", err)
	}
	if got := a.FreeCount(); got != 62 {
		t.Errorf("free count after free = %d, want 62", got)
	}

	id, err := a.Allocate()
	if err != nil {
		t.Fatalf("re-allocate: %v", err)
	}
	if id != 1 {
		t.Errorf("re-allocate = %d, want 1 (lowest free)", id)
	}
}

func TestDoubleFreeIsInvalidParam(t *testing.T) {
	a := tempAllocator(t, 8)
	id, err := a.Allocate()
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Free(id); err != nil {
		t.Fatalf("first free: %v", err)
	}
	if err := a.Free(id); err == nil {
		t.Fatal("expected error on second free of same id")
	}
}

func TestStorageFullOnExhaustion(t *testing.T) {
	a := tempAllocator(t, 4)
	for i := 0; i < 4; i++ {
		if _, err := a.Allocate(); err != nil {
			t.Fatalf("allocate %d: %v", i, err)
		}
	}
	if _, err := a.Allocate(); err == nil {
		t.Fatal("expected StorageFull")
	}
}

// Invariant 1: after any sequence of allocate/free, popcount == total - free.
func TestInvariantPopcountMatchesAllocated(t *testing.T) {
	a := tempAllocator(t, 32)
	var allocated []uint64
	for i := 0; i < 10; i++ {
		id, err := a.Allocate()
		if err != nil {
			t.Fatal(err)
		}
		allocated = append(allocated, id)
	}
	for _, id := range allocated[:4] {
		if err := a.Free(id); err != nil {
			t.Fatal(err)
		}
	}
	want := a.TotalBlocks() - a.FreeCount()
	if got := a.bm.PopCount(); got != want {
		t.Errorf("popcount = %d, want %d", got, want)
	}
}

func TestAllocateBatchRollsBackOnFailure(t *testing.T) {
	a := tempAllocator(t, 4)
	before := a.FreeCount()
	if _, err := a.AllocateBatch(10); err == nil {
		t.Fatal("expected StorageFull for batch larger than capacity")
	}
	if got := a.FreeCount(); got != before {
		t.Errorf("free count after failed batch = %d, want unchanged %d", got, before)
	}
}

func TestAllocateBatchSucceeds(t *testing.T) {
	a := tempAllocator(t, 16)
	ids, err := a.AllocateBatch(5)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(ids) != 5 {
		t.Fatalf("got %d ids, want 5", len(ids))
	}
	seen := map[uint64]bool{}
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %d in batch", id)
		}
		seen[id] = true
		if !a.IsAllocated(id) {
			t.Errorf("id %d not marked allocated", id)
		}
	}
}

func TestSyncIdempotentAndReloads(t *testing.T) {
	dir, err := os.MkdirTemp("", "distfs-alloc-sync-")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	a, err := Open(Options{DataDir: dir, BlockSize: 4096, TotalBlocks: 16})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Allocate(); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Allocate(); err != nil {
		t.Fatal(err)
	}
	if err := a.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := a.Sync(); err != nil {
		t.Fatalf("second sync (idempotence): %v", err)
	}

	reopened, err := Open(Options{DataDir: dir, BlockSize: 4096, TotalBlocks: 16})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got, want := reopened.FreeCount(), 14; got != want {
		t.Errorf("reopened free count = %d, want %d", got, want)
	}
	if !reopened.IsAllocated(0) || !reopened.IsAllocated(1) {
		t.Error("reopened allocator lost allocations")
	}
}

func TestOpenRejectsParamMismatch(t *testing.T) {
	dir, err := os.MkdirTemp("", "distfs-alloc-mismatch-")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	a, err := Open(Options{DataDir: dir, BlockSize: 4096, TotalBlocks: 16})
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Sync(); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(Options{DataDir: dir, BlockSize: 4096, TotalBlocks: 32}); err == nil {
		t.Fatal("expected initialization failure on total_blocks mismatch")
	}
}
