package operatortest

import (
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mit.edu/dsg/vexec/common"
	"mit.edu/dsg/vexec/connector"
	"mit.edu/dsg/vexec/execution"
	"mit.edu/dsg/vexec/planner"
)

type testSplit string

func (s testSplit) String() string { return string(s) }

type recordingSink struct {
	calls  []string
	failOn planner.PlanNodeID
	err    error
}

func (s *recordingSink) AddSplit(id planner.PlanNodeID, split connector.Split) error {
	if id == s.failOn {
		return s.err
	}
	s.calls = append(s.calls, fmt.Sprintf("add %s %s", id, split))
	return nil
}

func (s *recordingSink) NoMoreSplits(id planner.PlanNodeID) error {
	s.calls = append(s.calls, fmt.Sprintf("done %s", id))
	return nil
}

func TestSplitFeeder_FeedsOnce(t *testing.T) {
	feeder := NewSplitFeeder(SplitsByNode{
		"2": {testSplit("a"), testSplit("b")},
		"0": {testSplit("c")},
		"1": {},
	}, nil)
	assert.False(t, feeder.Consumed())

	sink := &recordingSink{}
	require.NoError(t, feeder.Feed(sink))
	assert.True(t, feeder.Consumed())
	expected := []string{"add 0 c", "done 0", "done 1", "add 2 a", "add 2 b", "done 2"}
	assert.Equal(t, expected, sink.calls)

	require.NoError(t, feeder.Feed(sink))
	require.NoError(t, feeder.Feed(&recordingSink{}))
	assert.Equal(t, expected, sink.calls)
}

func TestSplitFeeder_EmptyMap(t *testing.T) {
	feeder := NewSplitFeeder(nil, nil)
	sink := &recordingSink{}
	require.NoError(t, feeder.Feed(sink))
	assert.Empty(t, sink.calls)
	assert.True(t, feeder.Consumed())
}

func TestSplitFeeder_ErrorIsReturnedOnce(t *testing.T) {
	boom := errors.New("boom")
	feeder := NewSplitFeeder(SplitsByNode{
		"0": {testSplit("a")},
		"1": {testSplit("b")},
	}, nil)
	sink := &recordingSink{failOn: "1", err: boom}
	assert.Same(t, boom, feeder.Feed(sink))
	assert.Equal(t, []string{"add 0 a", "done 0"}, sink.calls)

	assert.NoError(t, feeder.Feed(sink))
	assert.Equal(t, []string{"add 0 a", "done 0"}, sink.calls)
}

func TestSplitFeeder_UnknownNode(t *testing.T) {
	task, err := execution.NewTask(planner.NewPlanBuilder().TableScan("t", tSchema).MustPlan(), execution.TaskOptions{})
	require.NoError(t, err)
	defer task.Close()

	err = NewSplitFeeder(SplitsByNode{"7": {testSplit("a")}}, nil).AddSplits(task)
	var gerr common.GoDBError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, common.NoSuchObjectError, gerr.Code)
}

func TestSplitFeeder_ClosesEveryScan(t *testing.T) {
	plan := joinPlan(t)
	task, err := execution.NewTask(plan, execution.TaskOptions{})
	require.NoError(t, err)
	defer task.Close()

	ids := task.ScanNodeIDs()
	require.Len(t, ids, 2)
	require.NoError(t, NewSplitFeeder(SplitsByNode{ids[0]: {testSplit("a")}, ids[1]: nil}, nil).Feed(task))

	stats := task.Stats()
	assert.Equal(t, execution.SplitStats{Added: 1, NoMoreSplits: true}, stats.Splits[ids[0]])
	assert.Equal(t, execution.SplitStats{Added: 0, NoMoreSplits: true}, stats.Splits[ids[1]])
}
