package replication

import (
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/teris-io/shortid"
	"github.com/tidwall/buntdb"
	"golang.org/x/sync/errgroup"

	"github.com/distfs/distfs/internal/nlog"
	"github.com/distfs/distfs/internal/ratomic"
)

const taskBucket = "tasks"

// DefaultMaxRetries is max_retries from spec §4.7.
const DefaultMaxRetries = 3

// Options configures the engine (spec §5 default: W=4 workers).
type Options struct {
	Workers    int
	MaxRetries int
	// DBPath, if set, persists the task queue via buntdb so in-flight
	// tasks survive a node restart (SPEC_FULL.md domain stack).
	DBPath string
}

// Engine owns the FIFO task queue and the worker pool (spec §4.7, §5:
// "mutex + condition variable").
type Engine struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*Task
	stopped bool

	transport  Transport
	maxRetries int
	gen        *shortid.Shortid
	db         *buntdb.DB

	completedCount ratomic.Int64
	failedCount    ratomic.Int64

	wg sync.WaitGroup
}

func New(transport Transport, opts Options) (*Engine, error) {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	gen, err := shortid.New(2, shortid.DefaultABC, 1)
	if err != nil {
		gen = nil
	}

	e := &Engine{transport: transport, maxRetries: opts.MaxRetries, gen: gen}
	e.cond = sync.NewCond(&e.mu)

	if opts.DBPath != "" {
		db, err := buntdb.Open(opts.DBPath)
		if err != nil {
			return nil, err
		}
		e.db = db
		e.restore()
	}

	e.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go e.workerLoop()
	}
	return e, nil
}

func (e *Engine) newTaskID() string {
	if e.gen == nil {
		return time.Now().Format("20060102150405.000000000")
	}
	id, err := e.gen.Generate()
	if err != nil {
		return time.Now().Format("20060102150405.000000000")
	}
	return id
}

// Enqueue pushes a new replication task for blockID from source to the
// given targets (selection is the caller's responsibility, typically via
// the placement ring, per spec §4.7).
func (e *Engine) Enqueue(blockID uint64, source string, targets []string) *Task {
	t := newTask(e.newTaskID(), blockID, source, targets)
	e.persist(t)

	e.mu.Lock()
	e.queue = append(e.queue, t)
	e.mu.Unlock()
	e.cond.Signal()
	return t
}

func (e *Engine) requeue(t *Task) {
	e.mu.Lock()
	e.queue = append(e.queue, t)
	e.mu.Unlock()
	e.cond.Signal()
}

func (e *Engine) workerLoop() {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.stopped {
			e.cond.Wait()
		}
		if e.stopped && len(e.queue) == 0 {
			e.mu.Unlock()
			return
		}
		t := e.queue[0]
		e.queue = e.queue[1:]
		e.mu.Unlock()

		e.execute(t)
	}
}

// execute runs the execute-task protocol (spec §4.7): read the block from
// source, write it to every target (one failing target does not abort
// the others), then apply the terminal-state rules.
func (e *Engine) execute(t *Task) {
	t.Status = InProgress
	t.Updated = time.Now()
	e.persist(t)

	data, err := e.transport.ReadBlock(t.Source, t.BlockID)
	if err != nil {
		nlog.Errorf("replication task %s: read block %d from %s: %v", t.ID, t.BlockID, t.Source, err)
		e.finish(t, 0)
		return
	}

	// Fan out to every target concurrently; one target's failure never
	// aborts the others (spec §4.7), so errgroup's own error propagation
	// is deliberately unused -- we only rely on it to join the goroutines.
	var g errgroup.Group
	var mu sync.Mutex
	succeeded := 0
	for _, target := range t.Targets {
		target := target
		g.Go(func() error {
			if err := e.transport.WriteBlock(target, t.BlockID, data); err != nil {
				nlog.Errorf("replication task %s: target %s failed: %v", t.ID, target, err)
				return nil
			}
			mu.Lock()
			succeeded++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	e.finish(t, succeeded)
}

// finish applies spec §4.7's terminal-state rule: >=1 success -> COMPLETED;
// 0 successes and retries remain -> PENDING, re-enqueued; otherwise FAILED
// and destroyed, counted as a permanent failure.
func (e *Engine) finish(t *Task, succeeded int) {
	t.CompletedCount = succeeded
	t.Updated = time.Now()

	if succeeded >= 1 {
		t.Status = Completed
		e.completedCount.Add(1)
		e.persist(t)
		e.remove(t)
		return
	}

	if t.RetryCount < e.maxRetries {
		t.RetryCount++
		t.Status = Pending
		e.persist(t)
		e.requeue(t)
		return
	}

	t.Status = Failed
	e.failedCount.Add(1)
	e.persist(t)
	e.remove(t)
}

func (e *Engine) persist(t *Task) {
	if e.db == nil {
		return
	}
	buf, err := jsoniter.Marshal(t)
	if err != nil {
		nlog.Errorf("replication: marshal task %s: %v", t.ID, err)
		return
	}
	if err := e.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(taskBucket+":"+t.ID, string(buf), nil)
		return err
	}); err != nil {
		nlog.Errorf("replication: persist task %s: %v", t.ID, err)
	}
}

func (e *Engine) remove(t *Task) {
	if e.db == nil {
		return
	}
	if err := e.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(taskBucket + ":" + t.ID)
		return err
	}); err != nil && err != buntdb.ErrNotFound {
		nlog.Errorf("replication: remove task %s: %v", t.ID, err)
	}
}

// restore re-enqueues every PENDING/IN_PROGRESS task found in the
// persisted store after a restart, so no replication work is silently
// lost across a crash.
func (e *Engine) restore() {
	var tasks []*Task
	_ = e.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(taskBucket+":*", func(key, value string) bool {
			var t Task
			if err := jsoniter.Unmarshal([]byte(value), &t); err == nil {
				tasks = append(tasks, &t)
			}
			return true
		})
	})
	for _, t := range tasks {
		if t.Status == Completed || t.Status == Failed {
			continue
		}
		t.Status = Pending
		e.queue = append(e.queue, t)
	}
	if len(tasks) > 0 {
		nlog.Infof("replication: restored %d tasks from persisted queue", len(e.queue))
	}
}

// Stats exposes ambient counters (completed/failed totals, current depth).
func (e *Engine) Stats() (completed, failed int64, depth int) {
	e.mu.Lock()
	depth = len(e.queue)
	e.mu.Unlock()
	return e.completedCount.Load(), e.failedCount.Load(), depth
}

// Stop drains the queue's condition broadcast and joins all workers (spec
// §5: "the replication queue broadcasts its condition").
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()
	e.cond.Broadcast()
	e.wg.Wait()
	if e.db != nil {
		e.db.Close()
	}
}
