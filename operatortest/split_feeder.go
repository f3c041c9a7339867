package operatortest

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"mit.edu/dsg/vexec/connector"
	"mit.edu/dsg/vexec/execution"
	"mit.edu/dsg/vexec/planner"
)

// SplitsByNode assigns splits to plan nodes. Each slice is added in order; an empty slice still closes the node's
// split stream.
type SplitsByNode map[planner.PlanNodeID][]connector.Split

// SplitFeeder hands a fixed set of splits to a task exactly once.
type SplitFeeder struct {
	splits   SplitsByNode
	consumed bool
	logger   log.Logger
}

// NewSplitFeeder returns a feeder for splits. A nil logger discards output.
func NewSplitFeeder(splits SplitsByNode, logger log.Logger) *SplitFeeder {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &SplitFeeder{splits: splits, logger: logger}
}

// Feed adds every split to sink followed by one NoMoreSplits per node, visiting nodes in ID order. Only the first
// call does anything, even if it fails. Errors from sink are returned as is.
func (f *SplitFeeder) Feed(sink execution.SplitSink) error {
	if f.consumed {
		return nil
	}
	f.consumed = true

	ids := maps.Keys(f.splits)
	slices.Sort(ids)
	for _, id := range ids {
		for _, split := range f.splits[id] {
			if err := sink.AddSplit(id, split); err != nil {
				return err
			}
		}
		if err := sink.NoMoreSplits(id); err != nil {
			return err
		}
		level.Debug(f.logger).Log("msg", "fed splits", "node", id, "splits", len(f.splits[id]))
	}
	return nil
}

// AddSplits adapts Feed to the callback taken by execution.ReadCursor.
func (f *SplitFeeder) AddSplits(task *execution.Task) error {
	return f.Feed(task)
}

// Consumed reports whether Feed has been called.
func (f *SplitFeeder) Consumed() bool {
	return f.consumed
}
