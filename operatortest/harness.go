// Package operatortest runs plans through the execution engine and checks their output against the reference
// query runner.
package operatortest

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/cockroachdb/errors"
	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"
	"mit.edu/dsg/vexec/connector"
	"mit.edu/dsg/vexec/execution"
	"mit.edu/dsg/vexec/planner"
	"mit.edu/dsg/vexec/reference"
)

type tHelper interface {
	Helper()
}

// Harness drives plans to completion and compares their results with SQL evaluated by Runner. Engine errors and
// bad plans fail the test immediately; wrong results are reported and the test goes on.
type Harness struct {
	T      require.TestingT
	Runner *reference.QueryRunner
	Config Config
	// Pool allocates output batches. Nil means memory.DefaultAllocator.
	Pool   memory.Allocator
	Logger log.Logger
	// Context bounds each run. Nil means context.Background, which never cancels a run that hangs; pass a
	// context with a deadline to bound plans fed through GetResultsWithParams.
	Context context.Context
}

// NewHarness returns a harness with the default config and an empty reference runner.
func NewHarness(t require.TestingT) *Harness {
	return &Harness{
		T:      t,
		Runner: reference.NewQueryRunner(nil),
		Config: DefaultConfig(),
	}
}

func (h *Harness) helper() {
	if th, ok := h.T.(tHelper); ok {
		th.Helper()
	}
}

func (h *Harness) pool() memory.Allocator {
	if h.Pool == nil {
		return memory.DefaultAllocator
	}
	return h.Pool
}

func (h *Harness) context() context.Context {
	if h.Context == nil {
		return context.Background()
	}
	return h.Context
}

// CursorParameters returns the cursor settings the harness runs plan with.
func (h *Harness) CursorParameters(plan planner.PlanNode) execution.CursorParameters {
	return execution.CursorParameters{
		PlanNode:        plan,
		MaxBatchRows:    h.Config.MaxBatchRows,
		OutputQueueSize: h.Config.OutputQueueSize,
		Pool:            h.pool(),
		Logger:          h.Logger,
	}
}

// AssertQuery feeds splits to the only leaf of plan, runs it and compares the result with sql. With sortingKeys
// the rows must also follow the order of sql on those output columns. The returned task has finished.
func (h *Harness) AssertQuery(plan planner.PlanNode, splits []connector.Split, sql string, sortingKeys ...int) *execution.Task {
	h.helper()
	return h.AssertQueryWithSplitMap(plan, h.leafSplits(plan, splits), sql, sortingKeys...)
}

// AssertQueryWithSplitMap is AssertQuery for plans with several leaves; splits names the node of each split.
func (h *Harness) AssertQueryWithSplitMap(plan planner.PlanNode, splits SplitsByNode, sql string, sortingKeys ...int) *execution.Task {
	h.helper()
	return h.assertQuery(plan, h.feed(splits), sql, sortingKeys)
}

// AssertQueryNoSplits runs a plan that reads no splits, such as one over a values node.
func (h *Harness) AssertQueryNoSplits(plan planner.PlanNode, sql string, sortingKeys ...int) *execution.Task {
	h.helper()
	return h.assertQuery(plan, h.feed(nil), sql, sortingKeys)
}

func (h *Harness) assertQuery(plan planner.PlanNode, addSplits func(*execution.Task) error, sql string, sortingKeys []int) *execution.Task {
	h.helper()
	task, result := h.run(h.CursorParameters(plan), addSplits)
	defer result.Release()

	if len(sortingKeys) == 0 {
		h.Runner.AssertResults(h.T, sql, result)
	} else {
		h.Runner.AssertResultsOrdered(h.T, sql, result, sortingKeys)
	}
	return task
}

// GetResults runs a plan that reads no splits and returns its output as one record owned by the caller.
func (h *Harness) GetResults(plan planner.PlanNode) arrow.Record {
	h.helper()
	return h.GetResultsWithParams(h.CursorParameters(plan), h.feed(nil))
}

// GetResultsWithSplits feeds splits to the only leaf of plan and returns its output.
func (h *Harness) GetResultsWithSplits(plan planner.PlanNode, splits []connector.Split) arrow.Record {
	h.helper()
	return h.GetResultsWithSplitMap(plan, h.leafSplits(plan, splits))
}

// GetResultsWithSplitMap feeds each node its splits and returns the output of plan.
func (h *Harness) GetResultsWithSplitMap(plan planner.PlanNode, splits SplitsByNode) arrow.Record {
	h.helper()
	return h.GetResultsWithParams(h.CursorParameters(plan), h.feed(splits))
}

// GetResultsWithParams runs params.PlanNode with addSplits as the split callback, which may be nil. Unlike the
// other entry points it does not check that every table scan gets its splits, since addSplits may supply them
// over several calls.
func (h *Harness) GetResultsWithParams(params execution.CursorParameters, addSplits func(*execution.Task) error) arrow.Record {
	h.helper()
	_, result := h.run(params, addSplits)
	return result
}

// feed returns the split callback of a harness run: a one-shot feeder of splits that, on its first call, also
// fails the run if some table scan was not fed. Such a scan would wait for splits forever.
func (h *Harness) feed(splits SplitsByNode) func(*execution.Task) error {
	feeder := NewSplitFeeder(splits, h.Logger)
	checked := false
	return func(task *execution.Task) error {
		if err := feeder.AddSplits(task); err != nil {
			return err
		}
		if checked {
			return nil
		}
		checked = true
		fed := task.Stats().Splits
		for _, id := range task.ScanNodeIDs() {
			if !fed[id].NoMoreSplits {
				return errors.Newf("table scan %s is missing from the split map", id)
			}
		}
		return nil
	}
}

func (h *Harness) leafSplits(plan planner.PlanNode, splits []connector.Split) SplitsByNode {
	h.helper()
	leaf, err := OnlyLeafPlanNodeID(plan)
	require.NoError(h.T, err, "plan:\n%s", planner.Format(plan))
	return SplitsByNode{leaf: splits}
}

// run drives params.PlanNode to completion and materializes its output.
func (h *Harness) run(params execution.CursorParameters, addSplits func(*execution.Task) error) (*execution.Task, arrow.Record) {
	h.helper()
	if params.Pool == nil {
		params.Pool = h.pool()
	}
	cursor, batches, err := execution.ReadCursor(h.context(), params, addSplits)
	require.NoError(h.T, err, "plan:\n%s", planner.Format(params.PlanNode))
	task := cursor.Task()
	require.NoError(h.T, cursor.Close(), "plan:\n%s", planner.Format(params.PlanNode))
	return task, Materialize(params.PlanNode.OutputSchema(), batches, params.Pool)
}
