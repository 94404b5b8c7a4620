// Package replication implements the replication engine (spec §4.7): a
// FIFO queue of replication tasks worked by a pool of W goroutines, each
// copying one block from a source node to a set of targets using the
// wire protocol.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package replication

import "time"

// Status is the replication task lifecycle state (spec §3).
type Status int

const (
	Pending Status = iota
	InProgress
	Completed
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case InProgress:
		return "IN_PROGRESS"
	case Completed:
		return "COMPLETED"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Task is one replication task (spec §3): block id, source, up to R
// targets, status, retry count, timestamps.
type Task struct {
	ID         string
	BlockID    uint64
	Source     string
	Targets    []string
	Status     Status
	RetryCount int
	Created    time.Time
	Updated    time.Time

	// CompletedCount is the number of targets that received the block
	// successfully on the most recent attempt (spec §8, E5).
	CompletedCount int
}

func newTask(id string, blockID uint64, source string, targets []string) *Task {
	now := time.Now()
	return &Task{
		ID:      id,
		BlockID: blockID,
		Source:  source,
		Targets: append([]string(nil), targets...),
		Status:  Pending,
		Created: now,
		Updated: now,
	}
}
