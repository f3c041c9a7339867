package execution

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mit.edu/dsg/vexec/catalog"
	"mit.edu/dsg/vexec/common"
	"mit.edu/dsg/vexec/connector"
	"mit.edu/dsg/vexec/planner"
	"mit.edu/dsg/vexec/storage"
	"mit.edu/dsg/vexec/vector"
)

var peopleSchema = catalog.NewSchema(
	[]string{"id", "name"},
	[]common.Type{common.IntType, common.StringType})

// writePeople writes n rows (i, "row-i") to a tuple file with 16 rows per block.
func writePeople(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "people.vex")
	tuples := make([]storage.Tuple, n)
	for i := range tuples {
		tuples[i] = storage.FromValues(
			common.NewIntValue(int64(i)),
			common.NewStringValue(fmt.Sprintf("row-%d", i)),
		)
	}
	_, err := storage.WriteTupleFile(path, storage.NewRawTupleDesc(peopleSchema.Types()), 16, tuples)
	require.NoError(t, err)
	return path
}

func peopleRow(i int) []common.Value {
	return []common.Value{common.NewIntValue(int64(i)), common.NewStringValue(fmt.Sprintf("row-%d", i))}
}

func newTestTask(t *testing.T, plan planner.PlanNode, maxBatchRows int) (*Task, *memory.CheckedAllocator) {
	t.Helper()
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	task, err := NewTask(plan, TaskOptions{MaxBatchRows: maxBatchRows, Pool: mem})
	require.NoError(t, err)
	return task, mem
}

// drain pulls every batch, returning the rows and the row count of each batch.
func drain(t *testing.T, task *Task) ([][]common.Value, []int64) {
	t.Helper()
	var rows [][]common.Value
	var sizes []int64
	for {
		rec, err := task.Next(context.Background())
		require.NoError(t, err)
		if rec == nil {
			return rows, sizes
		}
		sizes = append(sizes, rec.NumRows())
		rows = append(rows, vector.Rows(rec)...)
		rec.Release()
	}
}

func valuesPlan(b *planner.PlanBuilder, n int) *planner.PlanBuilder {
	rows := make([][]common.Value, n)
	for i := range rows {
		rows[i] = peopleRow(i)
	}
	return b.Values(peopleSchema, rows)
}

func TestTask_ScanSplits(t *testing.T) {
	path := writePeople(t, 100)
	b := planner.NewPlanBuilder().TableScan("people", peopleSchema)
	scanID := b.PlanNodeID()
	task, mem := newTestTask(t, b.MustPlan(), 30)
	defer mem.AssertSize(t, 0)
	defer task.Close()

	splits, err := connector.MakeFileSplits(path, 3)
	require.NoError(t, err)
	for _, s := range splits {
		require.NoError(t, task.AddSplit(scanID, s))
	}
	require.NoError(t, task.NoMoreSplits(scanID))

	rows, sizes := drain(t, task)
	require.Len(t, rows, 100)
	for i, row := range rows {
		assert.Equal(t, peopleRow(i), row)
	}
	assert.Equal(t, []int64{30, 30, 30, 10}, sizes)

	stats := task.Stats()
	assert.Equal(t, task.ID(), stats.TaskID)
	assert.EqualValues(t, 4, stats.Batches)
	assert.EqualValues(t, 100, stats.Rows)
	assert.Equal(t, map[planner.PlanNodeID]SplitStats{scanID: {Added: 3, NoMoreSplits: true}}, stats.Splits)
}

func TestTask_SplitsAddedWhileRunning(t *testing.T) {
	path := writePeople(t, 40)
	b := planner.NewPlanBuilder().TableScan("people", peopleSchema)
	scanID := b.PlanNodeID()
	task, mem := newTestTask(t, b.MustPlan(), 1000)
	defer mem.AssertSize(t, 0)
	defer task.Close()

	task.Start(context.Background())
	split, err := connector.WholeFileSplit(path)
	require.NoError(t, err)
	require.NoError(t, task.AddSplit(scanID, split))
	require.NoError(t, task.AddSplit(scanID, split))
	require.NoError(t, task.NoMoreSplits(scanID))

	rows, _ := drain(t, task)
	assert.Len(t, rows, 80)
}

func TestTask_SplitErrors(t *testing.T) {
	b := planner.NewPlanBuilder().TableScan("people", peopleSchema)
	scanID := b.PlanNodeID()
	task, _ := newTestTask(t, b.Filter("id > 3").MustPlan(), 0)
	defer task.Close()

	var gerr common.GoDBError
	err := task.AddSplit("42", &connector.FileSplit{Path: "x"})
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, common.NoSuchObjectError, gerr.Code)

	// Only scans accept splits.
	err = task.NoMoreSplits(task.PlanNode().ID())
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, common.NoSuchObjectError, gerr.Code)

	require.NoError(t, task.NoMoreSplits(scanID))
	require.NoError(t, task.NoMoreSplits(scanID))
	err = task.AddSplit(scanID, &connector.FileSplit{Path: "x"})
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, common.SplitsClosedError, gerr.Code)

	require.NoError(t, task.Close())
	err = task.NoMoreSplits(scanID)
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, common.TaskClosedError, gerr.Code)
}

func TestTask_MissingFileFails(t *testing.T) {
	b := planner.NewPlanBuilder().TableScan("people", peopleSchema)
	scanID := b.PlanNodeID()
	task, mem := newTestTask(t, b.MustPlan(), 0)
	defer mem.AssertSize(t, 0)
	defer task.Close()

	require.NoError(t, task.AddSplit(scanID, &connector.FileSplit{Path: filepath.Join(t.TempDir(), "gone"), Length: 10}))
	require.NoError(t, task.NoMoreSplits(scanID))

	rec, err := task.Next(context.Background())
	assert.Nil(t, rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Contains(t, err.Error(), task.ID())
}

func TestTask_SchemaMismatchFails(t *testing.T) {
	path := writePeople(t, 5)
	wrong := catalog.NewSchema([]string{"id"}, []common.Type{common.IntType})
	b := planner.NewPlanBuilder().TableScan("people", wrong)
	scanID := b.PlanNodeID()
	task, _ := newTestTask(t, b.MustPlan(), 0)
	defer task.Close()

	split, err := connector.WholeFileSplit(path)
	require.NoError(t, err)
	require.NoError(t, task.AddSplit(scanID, split))
	require.NoError(t, task.NoMoreSplits(scanID))

	_, err = task.Next(context.Background())
	var gerr common.GoDBError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, common.CorruptFileError, gerr.Code)
}

func TestTask_NextHonorsContext(t *testing.T) {
	b := planner.NewPlanBuilder().TableScan("people", peopleSchema)
	task, _ := newTestTask(t, b.MustPlan(), 0)

	// Without NoMoreSplits the scan waits for input.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := task.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	done := make(chan error)
	go func() { done <- task.Close() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not stop a scan waiting for splits")
	}
}

func TestTask_CloseBeforeStart(t *testing.T) {
	task, _ := newTestTask(t, valuesPlan(planner.NewPlanBuilder(), 3).MustPlan(), 0)
	require.NoError(t, task.Close())
	require.NoError(t, task.Close())

	_, err := task.Next(context.Background())
	var gerr common.GoDBError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, common.TaskClosedError, gerr.Code)
}

func TestTask_CloseReleasesPendingBatches(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)
	task, err := NewTask(valuesPlan(planner.NewPlanBuilder(), 50).MustPlan(),
		TaskOptions{MaxBatchRows: 5, OutputQueueSize: 4, Pool: mem})
	require.NoError(t, err)

	rec, err := task.Next(context.Background())
	require.NoError(t, err)
	rec.Release()
	require.NoError(t, task.Close())
}

func TestTask_EmptyResultHasNoBatches(t *testing.T) {
	task, mem := newTestTask(t, valuesPlan(planner.NewPlanBuilder(), 10).Filter("id > 100").MustPlan(), 0)
	defer mem.AssertSize(t, 0)
	defer task.Close()

	rows, sizes := drain(t, task)
	assert.Empty(t, rows)
	assert.Empty(t, sizes)
}

func TestTask_DuplicateScanIDs(t *testing.T) {
	left := planner.NewTableScanNode("s", "a", peopleSchema)
	right := planner.NewTableScanNode("s", "b", peopleSchema)
	id, err := planner.ColumnRef("id", peopleSchema)
	require.NoError(t, err)
	join := planner.NewHashJoinNode("j", left, right, []planner.Expr{id}, []planner.Expr{id})
	_, err = NewTask(join, TaskOptions{})
	var gerr common.GoDBError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, common.DuplicateObjectError, gerr.Code)
}

func TestTask_ReadsThroughDefaultBlockCache(t *testing.T) {
	path := writePeople(t, 64)
	cache := storage.NewBlockCache(2)
	prev := storage.SetDefaultBlockCache(cache)
	defer storage.SetDefaultBlockCache(prev)

	b := planner.NewPlanBuilder().TableScan("people", peopleSchema)
	scanID := b.PlanNodeID()
	task, mem := newTestTask(t, b.MustPlan(), 0)
	defer mem.AssertSize(t, 0)
	defer task.Close()

	split, err := connector.WholeFileSplit(path)
	require.NoError(t, err)
	require.NoError(t, task.AddSplit(scanID, split))
	require.NoError(t, task.NoMoreSplits(scanID))

	rows, _ := drain(t, task)
	require.Len(t, rows, 64)
	assert.Equal(t, peopleRow(63), rows[63])
	assert.EqualValues(t, 4, cache.Stats().Misses)
	assert.Equal(t, 0, cache.PinnedBlocks())
}

func TestReadCursor(t *testing.T) {
	path := writePeople(t, 50)
	b := planner.NewPlanBuilder().TableScan("people", peopleSchema)
	scanID := b.PlanNodeID()
	plan := b.OrderBy("id DESC").MustPlan()
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	calls, fed := 0, false
	addSplits := func(task *Task) error {
		calls++
		if fed {
			return nil
		}
		fed = true
		splits, err := connector.MakeFileSplits(path, 2)
		if err != nil {
			return err
		}
		for _, s := range splits {
			if err := task.AddSplit(scanID, s); err != nil {
				return err
			}
		}
		return task.NoMoreSplits(scanID)
	}

	cursor, batches, err := ReadCursor(context.Background(),
		CursorParameters{PlanNode: plan, MaxBatchRows: 20, Pool: mem}, addSplits)
	require.NoError(t, err)
	defer cursor.Close()
	defer func() {
		for _, rec := range batches {
			rec.Release()
		}
	}()

	require.Len(t, batches, 3)
	// Once after the task is created and once per batch.
	assert.Equal(t, 4, calls)
	assert.Equal(t, peopleRow(49), vector.RowAt(batches[0], 0))
	assert.Equal(t, peopleRow(0), vector.RowAt(batches[2], 9))
	assert.EqualValues(t, 50, cursor.Task().Stats().Rows)
}

func TestReadCursor_FeederError(t *testing.T) {
	plan := planner.NewPlanBuilder().TableScan("people", peopleSchema).MustPlan()
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	cursor, batches, err := ReadCursor(context.Background(), CursorParameters{PlanNode: plan, Pool: mem},
		func(task *Task) error {
			return task.AddSplit("7", &connector.FileSplit{Path: "nowhere"})
		})
	assert.Nil(t, cursor)
	assert.Nil(t, batches)
	var gerr common.GoDBError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, common.NoSuchObjectError, gerr.Code)
}

func TestTaskCursor_MoveNextReleasesPrevious(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)
	cursor, err := NewTaskCursor(CursorParameters{
		PlanNode:     valuesPlan(planner.NewPlanBuilder(), 9).MustPlan(),
		MaxBatchRows: 4,
		Pool:         mem,
	})
	require.NoError(t, err)

	var sizes []int64
	var last arrow.Record
	for {
		more, err := cursor.MoveNext(context.Background())
		require.NoError(t, err)
		if !more {
			break
		}
		last = cursor.Current()
		sizes = append(sizes, last.NumRows())
	}
	assert.Equal(t, []int64{4, 4, 1}, sizes)
	assert.Nil(t, cursor.Current())
	require.NoError(t, cursor.Close())
}
