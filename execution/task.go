package execution

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/cockroachdb/errors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"
	"mit.edu/dsg/vexec/common"
	"mit.edu/dsg/vexec/connector"
	"mit.edu/dsg/vexec/planner"
	"mit.edu/dsg/vexec/storage"
	"mit.edu/dsg/vexec/vector"
)

const (
	DefaultMaxBatchRows    = 1024
	DefaultOutputQueueSize = 2
)

var _ SplitSink = (*Task)(nil)

// TaskOptions tunes one run of a plan. Zero values select the defaults.
type TaskOptions struct {
	MaxBatchRows    int
	OutputQueueSize int
	Pool            memory.Allocator
	Logger          log.Logger
}

func (o TaskOptions) withDefaults() TaskOptions {
	if o.MaxBatchRows <= 0 {
		o.MaxBatchRows = DefaultMaxBatchRows
	}
	if o.OutputQueueSize <= 0 {
		o.OutputQueueSize = DefaultOutputQueueSize
	}
	if o.Pool == nil {
		o.Pool = memory.DefaultAllocator
	}
	if o.Logger == nil {
		o.Logger = log.NewNopLogger()
	}
	return o
}

// SplitStats describes the splits one scan node has received.
type SplitStats struct {
	Added        int
	NoMoreSplits bool
}

// TaskStats is a snapshot of a task's progress.
type TaskStats struct {
	TaskID  string
	Batches int64
	Rows    int64
	Splits  map[planner.PlanNodeID]SplitStats
}

// Task is one in-flight run of a plan. Splits are routed to the table scans of the plan by node ID; output is
// pulled as arrow records with the plan's output schema.
//
// The executor tree runs on a driver goroutine started by the first call to Start or Next. AddSplit and
// NoMoreSplits may be called from any goroutine at any time before Close; Next must be called by a single
// consumer.
type Task struct {
	id     uuid.UUID
	plan   planner.PlanNode
	opts   TaskOptions
	logger log.Logger

	queues *xsync.MapOf[planner.PlanNodeID, *splitQueue]
	root   Executor

	startOnce sync.Once
	cancel    context.CancelFunc
	group     *errgroup.Group
	out       chan arrow.Record

	closeOnce sync.Once
	closed    atomic.Bool
	reported  atomic.Bool
	batches   atomic.Int64
	rows      atomic.Int64
}

// NewTask prepares plan for execution. Nothing runs until Start.
func NewTask(plan planner.PlanNode, opts TaskOptions) (*Task, error) {
	opts = opts.withDefaults()
	t := &Task{
		id:     uuid.New(),
		plan:   plan,
		opts:   opts,
		queues: xsync.NewMapOf[planner.PlanNodeID, *splitQueue](),
		out:    make(chan arrow.Record, opts.OutputQueueSize),
	}
	t.logger = log.With(opts.Logger, "task", t.id.String())

	var dup error
	planner.Walk(plan, func(n planner.PlanNode) {
		if _, ok := n.(*planner.TableScanNode); !ok {
			return
		}
		if _, loaded := t.queues.LoadOrStore(n.ID(), newSplitQueue(n.ID())); loaded && dup == nil {
			dup = common.NewError(common.DuplicateObjectError, "plan node id %s is used twice", n.ID())
		}
	})
	if dup != nil {
		return nil, dup
	}

	root, err := buildExecutor(plan, t.queues.Load)
	if err != nil {
		return nil, errors.Wrapf(err, "task %s", t.id)
	}
	t.root = root
	level.Debug(t.logger).Log("msg", "task created", "root", plan.ID(), "scans", t.queues.Size())
	return t, nil
}

// ID returns the unique ID of this run.
func (t *Task) ID() string {
	return t.id.String()
}

// PlanNode returns the root of the plan being executed.
func (t *Task) PlanNode() planner.PlanNode {
	return t.plan
}

func (t *Task) queue(nodeID planner.PlanNodeID) (*splitQueue, error) {
	if t.closed.Load() {
		return nil, common.NewError(common.TaskClosedError, "task %s is closed", t.id)
	}
	q, ok := t.queues.Load(nodeID)
	if !ok {
		return nil, common.NewError(common.NoSuchObjectError, "plan node %s is not a table scan of task %s", nodeID, t.id)
	}
	return q, nil
}

// AddSplit hands split to the table scan with the given ID. It fails with NoSuchObjectError when the plan has no
// such scan and with SplitsClosedError after NoMoreSplits for that node.
func (t *Task) AddSplit(nodeID planner.PlanNodeID, split connector.Split) error {
	q, err := t.queue(nodeID)
	if err != nil {
		return err
	}
	if err := q.add(split); err != nil {
		return err
	}
	level.Debug(t.logger).Log("msg", "split added", "node", nodeID, "split", split)
	return nil
}

// NoMoreSplits tells the table scan with the given ID that no further splits will arrive.
func (t *Task) NoMoreSplits(nodeID planner.PlanNodeID) error {
	q, err := t.queue(nodeID)
	if err != nil {
		return err
	}
	q.close()
	added, _ := q.stats()
	level.Debug(t.logger).Log("msg", "no more splits", "node", nodeID, "splits", added)
	return nil
}

// Start launches the driver goroutine. ctx bounds the whole run. Calling Start again is a no-op.
func (t *Task) Start(ctx context.Context) {
	t.startOnce.Do(func() {
		ctx, t.cancel = context.WithCancel(ctx)
		t.group, ctx = errgroup.WithContext(ctx)
		t.group.Go(func() error {
			return t.drive(ctx)
		})
		cacheBlocks := 0
		if c := storage.DefaultBlockCache(); c != nil {
			cacheBlocks = c.Capacity()
		}
		level.Debug(t.logger).Log("msg", "task started", "max_batch_rows", t.opts.MaxBatchRows, "cache_blocks", cacheBlocks)
	})
}

func (t *Task) drive(ctx context.Context) (err error) {
	defer close(t.out)
	defer func() {
		if cerr := t.root.Close(); err == nil {
			err = cerr
		}
	}()

	if err := t.root.Init(NewExecutorContext(ctx, t.logger)); err != nil {
		return err
	}
	schema := t.plan.OutputSchema()
	b := vector.NewBuilder(schema, t.opts.MaxBatchRows, t.opts.Pool)
	defer b.Release()

	emit := func() error {
		rec := b.NewRecord()
		select {
		case t.out <- rec:
			return nil
		case <-ctx.Done():
			rec.Release()
			return ctx.Err()
		}
	}

	for t.root.Next() {
		b.AppendTuple(t.root.Current())
		if b.Len() == t.opts.MaxBatchRows {
			if err := emit(); err != nil {
				return err
			}
			b.Reserve(t.opts.MaxBatchRows)
		}
	}
	if err := t.root.Error(); err != nil {
		return err
	}
	if b.Len() > 0 {
		return emit()
	}
	return nil
}

// Next returns the next output batch, or (nil, nil) once the plan is exhausted. The caller owns the returned
// record and must release it. The first call starts the task with ctx if Start was not called.
func (t *Task) Next(ctx context.Context) (arrow.Record, error) {
	t.Start(ctx)
	select {
	case rec, ok := <-t.out:
		if ok {
			t.batches.Add(1)
			t.rows.Add(rec.NumRows())
			return rec, nil
		}
		if t.group == nil {
			return nil, common.NewError(common.TaskClosedError, "task %s was closed before it started", t.id)
		}
		if err := t.group.Wait(); err != nil {
			t.reported.Store(true)
			return nil, errors.Wrapf(err, "task %s", t.id)
		}
		level.Debug(t.logger).Log("msg", "task finished", "batches", t.batches.Load(), "rows", t.rows.Load())
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stats returns a snapshot of the task's progress. It remains valid after Close.
func (t *Task) Stats() TaskStats {
	s := TaskStats{
		TaskID:  t.id.String(),
		Batches: t.batches.Load(),
		Rows:    t.rows.Load(),
		Splits:  make(map[planner.PlanNodeID]SplitStats),
	}
	t.queues.Range(func(id planner.PlanNodeID, q *splitQueue) bool {
		added, closed := q.stats()
		s.Splits[id] = SplitStats{Added: added, NoMoreSplits: closed}
		return true
	})
	return s
}

// ScanNodeIDs returns the IDs of the plan's table scans in ascending order.
func (t *Task) ScanNodeIDs() []planner.PlanNodeID {
	var ids []planner.PlanNodeID
	t.queues.Range(func(id planner.PlanNodeID, _ *splitQueue) bool {
		ids = append(ids, id)
		return true
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Close cancels the driver, releases undelivered batches and waits for the driver to exit. It reports a driver
// error only if Next has not already returned it. It is safe to call more than once.
func (t *Task) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		// A task that never started has no driver to stop.
		t.startOnce.Do(func() { close(t.out) })
		if t.group == nil {
			return
		}
		t.cancel()
		for rec := range t.out {
			rec.Release()
		}
		werr := t.group.Wait()
		if werr != nil && !t.reported.Load() &&
			!errors.Is(werr, context.Canceled) && !errors.Is(werr, context.DeadlineExceeded) {
			err = errors.Wrapf(werr, "task %s", t.id)
		}
		level.Debug(t.logger).Log("msg", "task closed")
	})
	return err
}
