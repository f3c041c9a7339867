package execution

import (
	"mit.edu/dsg/vexec/common"
	"mit.edu/dsg/vexec/planner"
	"mit.edu/dsg/vexec/storage"
)

// MergeJoinExecutor joins two inputs sorted ascending on their keys. It buffers one group of equal keys from each
// side at a time and emits their cross product.
type MergeJoinExecutor struct {
	plan                                  *planner.MergeJoinNode
	left, right                           Executor
	leftSchema, rightSchema, joinedSchema *storage.RawTupleDesc

	leftGroup, rightGroup        []storage.Tuple
	groupKey, leftKey, rightKey  []common.Value
	leftIndex, rightIndex        int
	started, leftDone, rightDone bool
	joinedTupleBuffer            storage.RawTuple
	err                          error
}

func NewMergeJoinExecutor(plan *planner.MergeJoinNode, left, right Executor) *MergeJoinExecutor {
	return &MergeJoinExecutor{
		plan:         plan,
		left:         left,
		right:        right,
		leftSchema:   storage.NewRawTupleDesc(plan.Left.OutputSchema().Types()),
		rightSchema:  storage.NewRawTupleDesc(plan.Right.OutputSchema().Types()),
		joinedSchema: storage.NewRawTupleDesc(plan.OutputSchema().Types()),
	}
}

func (e *MergeJoinExecutor) PlanNode() planner.PlanNode {
	return e.plan
}

func (e *MergeJoinExecutor) Init(ctx *ExecutorContext) error {
	e.leftGroup = e.leftGroup[:0]
	e.rightGroup = e.rightGroup[:0]
	e.groupKey = make([]common.Value, len(e.plan.LeftKeys))
	e.leftKey = make([]common.Value, len(e.plan.LeftKeys))
	e.rightKey = make([]common.Value, len(e.plan.RightKeys))
	e.leftIndex, e.rightIndex = 0, 0
	e.started, e.leftDone, e.rightDone = false, false, false
	e.joinedTupleBuffer = make([]byte, e.joinedSchema.BytesPerTuple())
	e.err = nil

	if err := e.left.Init(ctx); err != nil {
		return err
	}
	return e.right.Init(ctx)
}

func compareKeys(k1, k2 []common.Value) int {
	for i := range k1 {
		if c := k1[i].Compare(k2[i]); c != 0 {
			return c
		}
	}
	return 0
}

// advance moves child to its next row with no NULL key and evaluates that key into key.
func (e *MergeJoinExecutor) advance(child Executor, keys []planner.Expr, key []common.Value, done *bool) bool {
	if *done {
		return false
	}
Outer:
	for {
		if !child.Next() {
			if err := child.Error(); err != nil {
				e.err = err
			}
			*done = true
			return false
		}
		t := child.Current()
		for i, k := range keys {
			val := k.Eval(t)
			if val.IsNull() {
				continue Outer
			}
			key[i] = val
		}
		return true
	}
}

func (e *MergeJoinExecutor) advanceLeft() bool {
	return e.advance(e.left, e.plan.LeftKeys, e.leftKey, &e.leftDone)
}

func (e *MergeJoinExecutor) advanceRight() bool {
	return e.advance(e.right, e.plan.RightKeys, e.rightKey, &e.rightDone)
}

// loadGroups buffers the left rows sharing the current left key and the right rows with the same key. Both
// children are left on their first row past the group.
func (e *MergeJoinExecutor) loadGroups() {
	current := e.left.Current()
	first := current.DeepCopy(e.leftSchema)
	e.leftGroup = append(e.leftGroup[:0], first)
	for i, k := range e.plan.LeftKeys {
		e.groupKey[i] = k.Eval(first)
	}
	for e.advanceLeft() {
		if compareKeys(e.groupKey, e.leftKey) != 0 {
			break
		}
		current = e.left.Current()
		e.leftGroup = append(e.leftGroup, current.DeepCopy(e.leftSchema))
	}

	e.rightGroup = e.rightGroup[:0]
	e.leftIndex, e.rightIndex = 0, 0
	for {
		c := compareKeys(e.groupKey, e.rightKey)
		if c < 0 {
			return
		}
		if c == 0 {
			current = e.right.Current()
			e.rightGroup = append(e.rightGroup, current.DeepCopy(e.rightSchema))
		}
		if !e.advanceRight() {
			return
		}
	}
}

func (e *MergeJoinExecutor) Next() bool {
	if !e.started {
		e.started = true
		if !e.advanceLeft() || !e.advanceRight() {
			return false
		}
	}
	for e.err == nil {
		if e.leftIndex < len(e.leftGroup) && e.rightIndex < len(e.rightGroup) {
			storage.MergeTuples(e.joinedTupleBuffer, e.joinedSchema, e.leftGroup[e.leftIndex], e.rightGroup[e.rightIndex])
			e.rightIndex++
			if e.rightIndex == len(e.rightGroup) {
				e.rightIndex = 0
				e.leftIndex++
			}
			return true
		}
		// Loading a group needs a pending row on both sides.
		if e.leftDone || e.rightDone {
			return false
		}
		e.loadGroups()
	}
	return false
}

func (e *MergeJoinExecutor) Current() storage.Tuple {
	return storage.FromRawTuple(e.joinedTupleBuffer, e.joinedSchema)
}

func (e *MergeJoinExecutor) Error() error {
	return e.err
}

func (e *MergeJoinExecutor) Close() error {
	err1 := e.left.Close()
	err2 := e.right.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
