package replication

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeTransport lets tests script per-target success/failure without any
// real networking, per the Transport seam documented in transport.go.
type fakeTransport struct {
	mu        sync.Mutex
	failWrite map[string]bool
	readErr   error
	writes    map[string]int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{failWrite: map[string]bool{}, writes: map[string]int{}}
}

func (f *fakeTransport) ReadBlock(nodeAddr string, blockID uint64) ([]byte, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return []byte(fmt.Sprintf("block-%d", blockID)), nil
}

func (f *fakeTransport) WriteBlock(nodeAddr string, blockID uint64, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes[nodeAddr]++
	if f.failWrite[nodeAddr] {
		return fmt.Errorf("simulated write failure to %s", nodeAddr)
	}
	return nil
}

func waitForStatus(t *testing.T, get func() Status, want Status, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if get() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("status never reached %s, last was %s", want, get())
}

// TestE5PartialReplicationCompletes is spec §8 scenario E5: three targets,
// two succeed, one fails -> task ends COMPLETED with completed_count = 2,
// and the failed target is not independently retried once the task is
// already terminal.
func TestE5PartialReplicationCompletes(t *testing.T) {
	ft := newFakeTransport()
	ft.failWrite["node-3"] = true

	e, err := New(ft, Options{Workers: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Stop()

	task := e.Enqueue(42, "node-0", []string{"node-1", "node-2", "node-3"})

	waitForStatus(t, func() Status { return task.Status }, Completed, 2*time.Second)

	if task.CompletedCount != 2 {
		t.Errorf("completed_count = %d, want 2", task.CompletedCount)
	}
	if task.RetryCount != 0 {
		t.Errorf("retry_count = %d, want 0 (a partial success is terminal, not retried)", task.RetryCount)
	}

	time.Sleep(50 * time.Millisecond)
	ft.mu.Lock()
	writesToFailedTarget := ft.writes["node-3"]
	ft.mu.Unlock()
	if writesToFailedTarget != 1 {
		t.Errorf("node-3 received %d write attempts, want exactly 1 (no independent retry)", writesToFailedTarget)
	}
}

// TestAllTargetsFailRetriesThenFails covers testable property 6: zero
// successes retries up to max_retries, then the task becomes FAILED.
func TestAllTargetsFailRetriesThenFails(t *testing.T) {
	ft := newFakeTransport()
	ft.failWrite["node-1"] = true
	ft.failWrite["node-2"] = true

	e, err := New(ft, Options{Workers: 1, MaxRetries: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Stop()

	task := e.Enqueue(7, "node-0", []string{"node-1", "node-2"})

	waitForStatus(t, func() Status { return task.Status }, Failed, 2*time.Second)

	if task.RetryCount != 2 {
		t.Errorf("retry_count = %d, want 2 (max_retries)", task.RetryCount)
	}
	if task.CompletedCount != 0 {
		t.Errorf("completed_count = %d, want 0", task.CompletedCount)
	}
}

// TestSourceReadFailureCountsAsZeroSuccesses ensures a source read error
// is treated the same as every target failing (spec §4.7).
func TestSourceReadFailureCountsAsZeroSuccesses(t *testing.T) {
	ft := newFakeTransport()
	ft.readErr = fmt.Errorf("source unreachable")

	e, err := New(ft, Options{Workers: 1, MaxRetries: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Stop()

	task := e.Enqueue(9, "node-0", []string{"node-1"})

	waitForStatus(t, func() Status { return task.Status }, Failed, 2*time.Second)
	if task.CompletedCount != 0 {
		t.Errorf("completed_count = %d, want 0", task.CompletedCount)
	}
}

func TestStatsReflectCompletedAndFailedCounts(t *testing.T) {
	ft := newFakeTransport()

	e, err := New(ft, Options{Workers: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Stop()

	task := e.Enqueue(1, "node-0", []string{"node-1"})
	waitForStatus(t, func() Status { return task.Status }, Completed, 2*time.Second)

	completed, failed, _ := e.Stats()
	if completed != 1 {
		t.Errorf("completed = %d, want 1", completed)
	}
	if failed != 0 {
		t.Errorf("failed = %d, want 0", failed)
	}
}
