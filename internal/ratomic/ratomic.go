// Package ratomic mirrors the teacher's cmn/atomic shape (typed,
// zero-value-usable atomic counters) over the real go.uber.org/atomic
// module instead of aistore's private fork.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package ratomic

import "go.uber.org/atomic"

type (
	Int64 = atomic.Int64
	Int32 = atomic.Int32
	Uint64 = atomic.Uint64
	Uint32 = atomic.Uint32
	Bool   = atomic.Bool
)

// NewSeqCounter returns a monotonic counter starting at 0, so the first
// Add(1) yields 1; the wire package keeps one as its process-global
// sequence number.
func NewSeqCounter() *Uint32 {
	c := atomic.NewUint32(0)
	return c
}
