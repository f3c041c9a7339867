package execution

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-kit/log"
	"mit.edu/dsg/vexec/connector"
	"mit.edu/dsg/vexec/planner"
)

// CursorParameters configures one cursor-driven run of a plan.
type CursorParameters struct {
	PlanNode        planner.PlanNode
	MaxBatchRows    int
	OutputQueueSize int
	Pool            memory.Allocator
	Logger          log.Logger
}

// SplitSink is the split-accepting half of a Task.
type SplitSink interface {
	AddSplit(nodeID planner.PlanNodeID, split connector.Split) error
	NoMoreSplits(nodeID planner.PlanNodeID) error
}

// TaskCursor pulls the output of a task one batch at a time.
type TaskCursor struct {
	task    *Task
	current arrow.Record
}

// NewTaskCursor creates the task for params.PlanNode. The task starts on the first MoveNext.
func NewTaskCursor(params CursorParameters) (*TaskCursor, error) {
	task, err := NewTask(params.PlanNode, TaskOptions{
		MaxBatchRows:    params.MaxBatchRows,
		OutputQueueSize: params.OutputQueueSize,
		Pool:            params.Pool,
		Logger:          params.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &TaskCursor{task: task}, nil
}

func (c *TaskCursor) Task() *Task {
	return c.task
}

// MoveNext advances to the next batch. It returns false at the end of the stream. The previous batch is released.
func (c *TaskCursor) MoveNext(ctx context.Context) (bool, error) {
	c.releaseCurrent()
	rec, err := c.task.Next(ctx)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}
	c.current = rec
	return true, nil
}

// Current returns the batch MoveNext advanced to. It is released by the next MoveNext or Close; Retain it to keep
// it longer.
func (c *TaskCursor) Current() arrow.Record {
	return c.current
}

func (c *TaskCursor) releaseCurrent() {
	if c.current != nil {
		c.current.Release()
		c.current = nil
	}
}

// Close releases the current batch and closes the task.
func (c *TaskCursor) Close() error {
	c.releaseCurrent()
	return c.task.Close()
}

// ReadCursor runs params.PlanNode to completion and returns every output batch in order. addSplits is called once
// the task exists and again after every batch, so a one-shot feeder can supply splits at the first opportunity.
// The caller owns the returned records and the cursor; on error both are already released.
func ReadCursor(ctx context.Context, params CursorParameters, addSplits func(*Task) error) (*TaskCursor, []arrow.Record, error) {
	cursor, err := NewTaskCursor(params)
	if err != nil {
		return nil, nil, err
	}
	var result []arrow.Record
	fail := func(err error) (*TaskCursor, []arrow.Record, error) {
		for _, rec := range result {
			rec.Release()
		}
		_ = cursor.Close()
		return nil, nil, err
	}

	feed := func() error {
		if addSplits == nil {
			return nil
		}
		return addSplits(cursor.task)
	}

	if err := feed(); err != nil {
		return fail(err)
	}
	for {
		more, err := cursor.MoveNext(ctx)
		if err != nil {
			return fail(err)
		}
		if !more {
			break
		}
		rec := cursor.Current()
		rec.Retain()
		result = append(result, rec)
		if err := feed(); err != nil {
			return fail(err)
		}
	}
	return cursor, result, nil
}
