// Package erasure implements the erasure-coded replication mode
// (SPEC_FULL.md's supplement to §4.7): instead of storing R full copies
// of a block, split it into data and parity shards via Reed-Solomon so
// any subset of shards up to the parity count can be lost without data
// loss. Grounded on the teacher's ec package shape (data+parity shard
// counts, per-shard placement) but re-expressed against this module's
// block ids rather than aistore's object/slice naming.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package erasure

import (
	"github.com/klauspost/reedsolomon"

	"github.com/distfs/distfs/internal/dferr"
)

// Scheme is one (data, parity) shard configuration, e.g. 4+2.
type Scheme struct {
	DataShards   int
	ParityShards int
	enc          reedsolomon.Encoder
}

func NewScheme(dataShards, parityShards int) (*Scheme, error) {
	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, dferr.Wrap(dferr.InvalidParam, err, "construct reed-solomon scheme")
	}
	return &Scheme{DataShards: dataShards, ParityShards: parityShards, enc: enc}, nil
}

// Encode splits data into DataShards+ParityShards shards, the last
// ParityShards of which are computed parity.
func (s *Scheme) Encode(data []byte) ([][]byte, error) {
	shards, err := s.enc.Split(data)
	if err != nil {
		return nil, dferr.Wrap(dferr.InvalidParam, err, "split block into shards")
	}
	if err := s.enc.Encode(shards); err != nil {
		return nil, dferr.Wrap(dferr.SystemError, err, "compute parity shards")
	}
	return shards, nil
}

// Reconstruct repairs any missing shards (nil entries) in place, then
// returns true if the full original block can be recovered.
func (s *Scheme) Reconstruct(shards [][]byte) (bool, error) {
	ok, err := s.enc.Verify(shards)
	if err == nil && ok {
		return true, nil
	}
	if err := s.enc.Reconstruct(shards); err != nil {
		return false, dferr.Wrap(dferr.ConsistencyViolation, err, "reconstruct shards")
	}
	return true, nil
}

// Join reassembles the original block from a complete (or reconstructed)
// shard set; size is the original block's byte length since shards are
// padded to equal width.
func (s *Scheme) Join(shards [][]byte, size int) ([]byte, error) {
	out := make([]byte, 0, size)
	buf := &byteSink{buf: out}
	if err := s.enc.Join(buf, shards, size); err != nil {
		return nil, dferr.Wrap(dferr.ConsistencyViolation, err, "join shards")
	}
	return buf.buf, nil
}

type byteSink struct{ buf []byte }

func (b *byteSink) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}
