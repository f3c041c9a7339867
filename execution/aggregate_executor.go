package execution

import (
	"mit.edu/dsg/vexec/common"
	"mit.edu/dsg/vexec/planner"
	"mit.edu/dsg/vexec/storage"
)

// aggregateGroup is the running state of one group.
type aggregateGroup struct {
	key   []common.Value
	state []common.Value
}

// AggregateExecutor implements hash-based aggregation. Groups are emitted in the order their first row arrived.
type AggregateExecutor struct {
	plan  *planner.AggregationNode
	child Executor

	// Runtime state
	groups       []*aggregateGroup
	built        bool
	currentIndex int
	err          error
}

func NewAggregateExecutor(plan *planner.AggregationNode, child Executor) *AggregateExecutor {
	return &AggregateExecutor{
		child:        child,
		plan:         plan,
		currentIndex: -1,
	}
}

func (e *AggregateExecutor) PlanNode() planner.PlanNode {
	return e.plan
}

func (e *AggregateExecutor) Init(ctx *ExecutorContext) error {
	e.groups = nil
	e.built = false
	e.currentIndex = -1
	e.err = nil
	return e.child.Init(ctx)
}

// newState returns the state of a group that has seen no rows: counts are zero and everything else is unset.
func (e *AggregateExecutor) newState() []common.Value {
	state := make([]common.Value, len(e.plan.Aggregates))
	for i, agg := range e.plan.Aggregates {
		if agg.Type == planner.AggCount {
			state[i] = common.NewIntValue(0)
		}
	}
	return state
}

func (e *AggregateExecutor) updateAggregateState(state []common.Value, tuple storage.Tuple) {
	for i, agg := range e.plan.Aggregates {
		if agg.Expr == nil {
			// count(*)
			state[i] = common.NewIntValue(state[i].IntValue() + 1)
			continue
		}
		val := agg.Expr.Eval(tuple)
		// Aggregates skip NULLs.
		if val.IsNull() {
			continue
		}

		switch agg.Type {
		case planner.AggCount:
			state[i] = common.NewIntValue(state[i].IntValue() + 1)
		case planner.AggSum:
			if state[i].IsNil() {
				state[i] = val.Copy()
			} else {
				state[i] = common.NewIntValue(state[i].IntValue() + val.IntValue())
			}
		case planner.AggMin:
			if state[i].IsNil() || val.Compare(state[i]) < 0 {
				state[i] = val.Copy()
			}
		case planner.AggMax:
			if state[i].IsNil() || val.Compare(state[i]) > 0 {
				state[i] = val.Copy()
			}
		}
	}
}

func (e *AggregateExecutor) buildHashTable() bool {
	// Define the schema for the GroupBy key based on the grouping expressions
	keyFields := make([]common.Type, len(e.plan.GroupBy))
	for i, expr := range e.plan.GroupBy {
		keyFields[i] = expr.OutputType()
	}

	hashTable := NewExecutionHashTable[*aggregateGroup](storage.NewRawTupleDesc(keyFields))
	keyBuffer := make([]common.Value, len(e.plan.GroupBy))
	for e.child.Next() {
		tuple := e.child.Current()
		for i, expr := range e.plan.GroupBy {
			keyBuffer[i] = expr.Eval(tuple)
		}
		// Without grouping expressions every row has the empty key.
		keyTuple := storage.FromValues(keyBuffer...)
		group, found := hashTable.Get(keyTuple)
		if !found {
			key := make([]common.Value, len(keyBuffer))
			for i, v := range keyBuffer {
				key[i] = v.Copy()
			}
			group = &aggregateGroup{key: key, state: e.newState()}
			hashTable.Insert(keyTuple, group)
			e.groups = append(e.groups, group)
		}
		e.updateAggregateState(group.state, tuple)
	}

	if err := e.child.Error(); err != nil {
		e.err = err
		return false
	}

	// A global aggregate has one row even when nothing was read.
	if len(e.plan.GroupBy) == 0 && len(e.groups) == 0 {
		e.groups = append(e.groups, &aggregateGroup{state: e.newState()})
	}
	for _, g := range e.groups {
		for i, v := range g.state {
			if v.IsNil() {
				// Convert sentinel IsNil to actual SQL NULL of the correct type
				switch e.plan.Aggregates[i].OutputType() {
				case common.IntType:
					g.state[i] = common.NewNullInt()
				case common.StringType:
					g.state[i] = common.NewNullString()
				}
			}
		}
	}
	e.built = true
	return true
}

func (e *AggregateExecutor) Next() bool {
	if e.err != nil {
		return false
	}
	if !e.built {
		if !e.buildHashTable() {
			return false
		}
	}
	e.currentIndex++
	return e.currentIndex < len(e.groups)
}

func (e *AggregateExecutor) Current() storage.Tuple {
	g := e.groups[e.currentIndex]
	t := storage.FromValues(g.key...)
	return t.Extend(g.state)
}

func (e *AggregateExecutor) Error() error {
	return e.err
}

func (e *AggregateExecutor) Close() error {
	e.groups = nil
	return e.child.Close()
}
