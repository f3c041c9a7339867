package execution

import (
	"mit.edu/dsg/vexec/common"
	"mit.edu/dsg/vexec/planner"
	"mit.edu/dsg/vexec/storage"
)

// HashJoinExecutor implements the hash join algorithm.
// It builds a hash table from the left child and probes it with the right child.
// It only supports Equi-Joins; rows with a NULL key never match.
type HashJoinExecutor struct {
	plan                                *planner.HashJoinNode
	left, right                         Executor
	keySchema, leftSchema, joinedSchema *storage.RawTupleDesc

	// Runtime State
	keyBuffer         []common.Value
	joinedTupleBuffer storage.RawTuple
	leftHashTable     *ExecutionHashTable[[]storage.Tuple]
	currentMatches    []storage.Tuple // The matching tuples from the left side for the current right tuple
	matchIndex        int             // The index of the next match to emit
	err               error
}

// NewHashJoinExecutor creates a new HashJoinExecutor.
func NewHashJoinExecutor(plan *planner.HashJoinNode, left Executor, right Executor) *HashJoinExecutor {
	keyTypes := make([]common.Type, len(plan.LeftKeys))
	for i, expr := range plan.LeftKeys {
		keyTypes[i] = expr.OutputType()
	}
	return &HashJoinExecutor{
		plan:         plan,
		left:         left,
		right:        right,
		keySchema:    storage.NewRawTupleDesc(keyTypes),
		leftSchema:   storage.NewRawTupleDesc(plan.Left.OutputSchema().Types()),
		joinedSchema: storage.NewRawTupleDesc(plan.OutputSchema().Types()),
	}
}

func (e *HashJoinExecutor) PlanNode() planner.PlanNode {
	return e.plan
}

func (e *HashJoinExecutor) Init(ctx *ExecutorContext) error {
	e.keyBuffer = make([]common.Value, len(e.plan.LeftKeys))
	e.joinedTupleBuffer = make([]byte, e.joinedSchema.BytesPerTuple())
	e.leftHashTable = nil
	e.currentMatches = nil
	e.matchIndex = 0
	e.err = nil
	if err := e.left.Init(ctx); err != nil {
		return err
	}
	return e.right.Init(ctx)
}

// buildPhase consumes the entire left child and builds the hash table.
func (e *HashJoinExecutor) buildPhase() error {
	e.leftHashTable = NewExecutionHashTable[[]storage.Tuple](e.keySchema)
Outer:
	for e.left.Next() {
		tuple := e.left.Current()

		for i, expr := range e.plan.LeftKeys {
			val := expr.Eval(tuple)
			if val.IsNull() {
				continue Outer
			}
			e.keyBuffer[i] = val
		}

		// Duplicate keys collect in insertion order.
		keyTuple := storage.FromValues(e.keyBuffer...)
		existing, _ := e.leftHashTable.Get(keyTuple)
		e.leftHashTable.Insert(keyTuple, append(existing, tuple.DeepCopy(e.leftSchema)))
	}
	return e.left.Error()
}

func (e *HashJoinExecutor) Next() bool {
	if e.err != nil {
		return false
	}
	if e.leftHashTable == nil {
		if err := e.buildPhase(); err != nil {
			e.err = err
			return false
		}
	}

Outer:
	for {
		if e.matchIndex == len(e.currentMatches) {
			// no more matches left for the last probe, fetch the next right tuple
			if !e.right.Next() {
				e.err = e.right.Error()
				return false
			}
			rightTuple := e.right.Current()
			for i, expr := range e.plan.RightKeys {
				val := expr.Eval(rightTuple)
				if val.IsNull() {
					continue Outer
				}
				e.keyBuffer[i] = val
			}
			matches, found := e.leftHashTable.Get(storage.FromValues(e.keyBuffer...))
			if !found {
				continue
			}
			e.currentMatches = matches
			e.matchIndex = 0
		}
		leftTuple := e.currentMatches[e.matchIndex]
		e.matchIndex++
		storage.MergeTuples(e.joinedTupleBuffer, e.joinedSchema, leftTuple, e.right.Current())
		return true
	}
}

func (e *HashJoinExecutor) Current() storage.Tuple {
	return storage.FromRawTuple(e.joinedTupleBuffer, e.joinedSchema)
}

func (e *HashJoinExecutor) Error() error {
	return e.err
}

func (e *HashJoinExecutor) Close() error {
	err1 := e.right.Close()
	err2 := e.left.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// BuildSize returns the number of distinct keys on the build side, or 0 before the build phase ran.
func (e *HashJoinExecutor) BuildSize() int {
	if e.leftHashTable == nil {
		return 0
	}
	return e.leftHashTable.Len()
}
