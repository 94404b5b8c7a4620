package ring

import "testing"

func TestE4GetNodesPermutationAndStability(t *testing.T) {
	r := New(150)
	r.AddNode("A", nil)
	r.AddNode("B", nil)
	r.AddNode("C", nil)

	key := []byte("fixed-key-42")
	before, err := r.GetNodes(key, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(before) != 3 {
		t.Fatalf("got %d nodes, want 3", len(before))
	}
	seen := map[string]bool{}
	for _, n := range before {
		seen[n] = true
	}
	for _, want := range []string{"A", "B", "C"} {
		if !seen[want] {
			t.Errorf("missing node %s in %v", want, before)
		}
	}

	// find relative order of A and C before removing B
	idxBefore := map[string]int{}
	for i, n := range before {
		idxBefore[n] = i
	}

	r.RemoveNode("B")
	after, err := r.GetNodes(key, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != 2 {
		t.Fatalf("got %d nodes after removal, want 2", len(after))
	}
	for _, n := range after {
		if n == "B" {
			t.Errorf("removed node B still present: %v", after)
		}
	}
	// relative order of A and C must be preserved
	if idxBefore["A"] < idxBefore["C"] && !(indexOf(after, "A") < indexOf(after, "C")) {
		t.Errorf("relative order of A,C changed: before=%v after=%v", before, after)
	}
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

func TestGetNodesDistinctCount(t *testing.T) {
	r := New(150)
	for _, n := range []string{"n1", "n2", "n3", "n4", "n5"} {
		r.AddNode(n, nil)
	}
	for k := 1; k <= 5; k++ {
		nodes, err := r.GetNodes([]byte("some-block-key"), k)
		if err != nil {
			t.Fatal(err)
		}
		if len(nodes) != k {
			t.Errorf("GetNodes(key, %d) returned %d nodes, want %d", k, len(nodes), k)
		}
	}
	nodes, err := r.GetNodes([]byte("some-block-key"), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 5 {
		t.Errorf("GetNodes(key, 10) with 5 nodes returned %d, want 5", len(nodes))
	}
}

func TestRemoveLastNodeEmptiesRing(t *testing.T) {
	r := New(10)
	r.AddNode("only", nil)
	r.RemoveNode("only")
	if _, err := r.GetNode([]byte("x")); err == nil {
		t.Fatal("expected NotFound on empty ring")
	}
}

func TestAddNodeTwiceIsIdempotent(t *testing.T) {
	r := New(10)
	r.AddNode("A", 1)
	before, _ := r.GetNodes([]byte("k"), 1)
	r.AddNode("A", 2)
	after, _ := r.GetNodes([]byte("k"), 1)
	if len(before) != len(after) || before[0] != after[0] {
		t.Errorf("ring changed after re-adding same node: %v -> %v", before, after)
	}
	if r.NodeCount() != 1 {
		t.Errorf("node count = %d, want 1", r.NodeCount())
	}
}
