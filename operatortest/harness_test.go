package operatortest

import (
	"bytes"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mit.edu/dsg/vexec/catalog"
	"mit.edu/dsg/vexec/common"
	"mit.edu/dsg/vexec/connector"
	"mit.edu/dsg/vexec/execution"
	"mit.edu/dsg/vexec/planner"
	"mit.edu/dsg/vexec/vector"
)

var (
	tSchema = catalog.NewSchema([]string{"id", "name"}, []common.Type{common.IntType, common.StringType})
	cSchema = catalog.NewSchema([]string{"id", "city"}, []common.Type{common.IntType, common.StringType})
)

// tRows returns n rows (i, "name-i"); every seventh name is NULL.
func tRows(n int) [][]common.Value {
	rows := make([][]common.Value, n)
	for i := range rows {
		name := common.NewStringValue(fmt.Sprintf("name-%d", i))
		if i%7 == 0 {
			name = common.NewNullString()
		}
		rows[i] = []common.Value{common.NewIntValue(int64(i)), name}
	}
	return rows
}

func cRows() [][]common.Value {
	cities := []string{"Austin", "Boston", "Denver"}
	var rows [][]common.Value
	for i := 0; i < 30; i += 4 {
		rows = append(rows, []common.Value{common.NewIntValue(int64(i)), common.NewStringValue(cities[i%3])})
	}
	return rows
}

// joinPlan joins a scan of t (build side) with a scan of c (probe side) on id.
func joinPlan(t *testing.T) planner.PlanNode {
	t.Helper()
	ids := &planner.IDGenerator{}
	cities := planner.NewPlanBuilderWithIDs(ids).TableScan("c", cSchema).MustPlan()
	plan, err := planner.NewPlanBuilderWithIDs(ids).
		TableScan("t", tSchema).
		HashJoin([]string{"id"}, cities, []string{"id"}).
		Plan()
	require.NoError(t, err)
	return plan
}

func newTestHarness(t *testing.T) (*Harness, *memory.CheckedAllocator) {
	t.Helper()
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	h := NewHarness(t)
	h.Pool = mem
	h.Logger = NewTestLogger(t, "debug")
	h.Config.MaxBatchRows = 50
	UseAsyncCache(t, true, 16)
	return h, mem
}

// createT writes n rows of t to a tuple file and registers them with h's runner.
func createT(t *testing.T, h *Harness, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "t.vex")
	h.CreateTable(path, "t", tSchema, tRows(n))
	return path
}

// recordingT captures assertion failures. FailNow ends the calling goroutine like testing.T does.
type recordingT struct {
	errors []string
	fatal  bool
}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func (r *recordingT) FailNow() {
	r.fatal = true
	runtime.Goexit()
}

func (r *recordingT) output() string {
	return strings.Join(r.errors, "\n")
}

func record(f func(rt *recordingT)) *recordingT {
	rt := &recordingT{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		f(rt)
	}()
	<-done
	return rt
}

func TestHarness_ScanTwoSplits(t *testing.T) {
	h, mem := newTestHarness(t)
	defer mem.AssertSize(t, 0)
	path := createT(t, h, 200)

	b := planner.NewPlanBuilder().TableScan("t", tSchema)
	scanID := b.PlanNodeID()
	task := h.AssertQuery(b.MustPlan(), h.FileSplits(path, 2), "SELECT id, name FROM t")

	stats := task.Stats()
	assert.Equal(t, int64(200), stats.Rows)
	assert.Equal(t, int64(4), stats.Batches)
	assert.Equal(t, execution.SplitStats{Added: 2, NoMoreSplits: true}, stats.Splits[scanID])
}

func TestHarness_ScanSort(t *testing.T) {
	h, mem := newTestHarness(t)
	defer mem.AssertSize(t, 0)
	path := createT(t, h, 120)

	plan := planner.NewPlanBuilder().TableScan("t", tSchema).OrderBy("id DESC").MustPlan()
	h.AssertQuery(plan, h.FileSplits(path, 3), "SELECT id, name FROM t ORDER BY id DESC", 0)
}

func TestHarness_UnorderedOutputFails(t *testing.T) {
	h, mem := newTestHarness(t)
	defer mem.AssertSize(t, 0)
	path := createT(t, h, 120)

	plan := planner.NewPlanBuilder().TableScan("t", tSchema).MustPlan()
	splits := h.FileSplits(path, 2)
	rt := record(func(rt *recordingT) {
		h.T = rt
		h.AssertQuery(plan, splits, "SELECT id, name FROM t ORDER BY id DESC", 0)
	})
	assert.False(t, rt.fatal)
	assert.Contains(t, rt.output(), "not in the expected order")

	// The same rows without an order requirement match.
	rt = record(func(rt *recordingT) {
		h.T = rt
		h.AssertQuery(plan, h.FileSplits(path, 2), "SELECT id, name FROM t ORDER BY id DESC")
	})
	assert.Empty(t, rt.errors)
}

func TestHarness_WrongRowsFail(t *testing.T) {
	h, mem := newTestHarness(t)
	defer mem.AssertSize(t, 0)
	path := createT(t, h, 40)

	plan := planner.NewPlanBuilder().TableScan("t", tSchema).Filter("id < 30").MustPlan()
	rt := record(func(rt *recordingT) {
		h.T = rt
		h.AssertQuery(plan, h.FileSplits(path, 1), "SELECT * FROM t WHERE id <= 30")
	})
	assert.False(t, rt.fatal)
	assert.Contains(t, rt.output(), "1 missing, 0 unexpected")
}

func TestHarness_JoinNeedsSplitMap(t *testing.T) {
	h, mem := newTestHarness(t)
	defer mem.AssertSize(t, 0)
	path := createT(t, h, 10)

	var buf bytes.Buffer
	h.Logger = log.NewLogfmtLogger(log.NewSyncWriter(&buf))
	reached := false
	rt := record(func(rt *recordingT) {
		h.T = rt
		h.AssertQuery(joinPlan(t), h.FileSplits(path, 2), "SELECT * FROM t")
		reached = true
	})
	assert.True(t, rt.fatal)
	assert.False(t, reached)
	assert.Contains(t, rt.output(), "2 sources")
	// Nothing was created, fed or run.
	assert.Empty(t, buf.String())
}

func TestHarness_JoinWithSplitMap(t *testing.T) {
	h, mem := newTestHarness(t)
	defer mem.AssertSize(t, 0)
	tPath := createT(t, h, 100)
	cPath := filepath.Join(t.TempDir(), "c.vex")
	h.CreateTable(cPath, "c", cSchema, cRows())

	plan := joinPlan(t)
	scans := planner.PlanNodeID("1")
	cities := plan.Children()[1].ID()
	require.Equal(t, scans, plan.Children()[0].ID())

	task := h.AssertQueryWithSplitMap(plan, SplitsByNode{
		scans:  h.FileSplits(tPath, 3),
		cities: h.FileSplits(cPath, 2),
	}, "SELECT t.id, t.name, c.id, c.city FROM t JOIN c ON t.id = c.id")
	assert.Equal(t, int64(len(cRows())), task.Stats().Rows)
}

func TestHarness_UnknownNodeIsFatal(t *testing.T) {
	h, mem := newTestHarness(t)
	defer mem.AssertSize(t, 0)
	createT(t, h, 10)

	plan := planner.NewPlanBuilder().TableScan("t", tSchema).MustPlan()
	rt := record(func(rt *recordingT) {
		h.T = rt
		h.AssertQueryWithSplitMap(plan, SplitsByNode{"9": nil}, "SELECT * FROM t")
	})
	assert.True(t, rt.fatal)
	assert.Contains(t, rt.output(), "plan node 9 is not a table scan")
}

func TestHarness_EngineErrorIsFatal(t *testing.T) {
	h, mem := newTestHarness(t)
	defer mem.AssertSize(t, 0)
	createT(t, h, 10)

	plan := planner.NewPlanBuilder().TableScan("t", tSchema).MustPlan()
	missing := []connector.Split{&connector.FileSplit{Path: filepath.Join(t.TempDir(), "gone.vex"), Length: 10}}
	rt := record(func(rt *recordingT) {
		h.T = rt
		h.AssertQuery(plan, missing, "SELECT * FROM t")
	})
	assert.True(t, rt.fatal)
	assert.Contains(t, rt.output(), "gone.vex")
	assert.Contains(t, rt.output(), "TableScan")
}

func TestHarness_NoSplits(t *testing.T) {
	h, mem := newTestHarness(t)
	defer mem.AssertSize(t, 0)
	require.NoError(t, h.Runner.CreateTable("v", tSchema))
	require.NoError(t, h.Runner.InsertRows("v", tRows(20)))

	plan := planner.NewPlanBuilder().Values(tSchema, tRows(20)).TopN(5, "id DESC").MustPlan()
	task := h.AssertQueryNoSplits(plan, "SELECT * FROM v ORDER BY id DESC LIMIT 5", 0)
	assert.Equal(t, int64(5), task.Stats().Rows)
	assert.Empty(t, task.Stats().Splits)
}

func TestHarness_GetResults(t *testing.T) {
	h, mem := newTestHarness(t)
	defer mem.AssertSize(t, 0)
	path := createT(t, h, 130)

	plan := planner.NewPlanBuilder().TableScan("t", tSchema).MustPlan()
	rec := h.GetResultsWithSplits(plan, h.FileSplits(path, 4))
	assert.Equal(t, tRows(130), vector.Rows(rec))
	assert.True(t, rec.Schema().Equal(vector.ArrowSchema(tSchema)))
	rec.Release()

	rec = h.GetResultsWithSplitMap(plan, SplitsByNode{plan.ID(): h.FileSplits(path, 1)})
	assert.Equal(t, int64(130), rec.NumRows())
	rec.Release()

	values := planner.NewPlanBuilder().Values(tSchema, tRows(3)).Project("name", "id").MustPlan()
	rec = h.GetResults(values)
	assert.Equal(t, [][]common.Value{
		{common.NewNullString(), common.NewIntValue(0)},
		{common.NewStringValue("name-1"), common.NewIntValue(1)},
		{common.NewStringValue("name-2"), common.NewIntValue(2)},
	}, vector.Rows(rec))
	rec.Release()
}

func TestHarness_GetResultsWithParams(t *testing.T) {
	h, mem := newTestHarness(t)
	defer mem.AssertSize(t, 0)
	path := createT(t, h, 64)

	b := planner.NewPlanBuilder().TableScan("t", tSchema)
	scanID := b.PlanNodeID()
	plan := b.Limit(10).MustPlan()
	params := h.CursorParameters(plan)
	params.MaxBatchRows = 3

	calls := 0
	feeder := NewSplitFeeder(SplitsByNode{scanID: h.FileSplits(path, 2)}, nil)
	rec := h.GetResultsWithParams(params, func(task *execution.Task) error {
		calls++
		return feeder.AddSplits(task)
	})
	defer rec.Release()
	assert.Equal(t, tRows(10), vector.Rows(rec))
	// Once before the first batch and once after each of the four batches.
	assert.Equal(t, 5, calls)
	assert.True(t, feeder.Consumed())
}

func TestHarness_RewrittenFileIsReadAgain(t *testing.T) {
	h, _ := newTestHarness(t)
	path := filepath.Join(t.TempDir(), "t.vex")
	plan := planner.NewPlanBuilder().TableScan("t", tSchema).MustPlan()

	for _, row := range [][]common.Value{
		{common.NewIntValue(1), common.NewStringValue("aaaa")},
		{common.NewIntValue(2), common.NewStringValue("bbbb")},
	} {
		require.NoError(t, WriteTupleFile(path, tSchema, [][]common.Value{row}, 0))
		res := h.GetResultsWithSplits(plan, h.FileSplits(path, 1))
		assert.Equal(t, [][]common.Value{row}, vector.Rows(res))
		res.Release()
	}
}

func TestHarness_UnfedScanIsFatal(t *testing.T) {
	h, mem := newTestHarness(t)
	defer mem.AssertSize(t, 0)
	path := createT(t, h, 10)

	scan := planner.NewPlanBuilder().TableScan("t", tSchema).MustPlan()
	rt := record(func(rt *recordingT) {
		h.T = rt
		h.AssertQueryNoSplits(scan, "SELECT * FROM t")
	})
	assert.True(t, rt.fatal)
	assert.Contains(t, rt.output(), "table scan 0 is missing from the split map")

	// Only the scan of t is fed; the scan of c would never finish.
	rt = record(func(rt *recordingT) {
		h.T = rt
		h.GetResultsWithSplitMap(joinPlan(t), SplitsByNode{"1": h.FileSplits(path, 1)})
	})
	assert.True(t, rt.fatal)
	assert.Contains(t, rt.output(), "table scan 0 is missing from the split map")
}
