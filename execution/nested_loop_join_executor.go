package execution

import (
	"mit.edu/dsg/vexec/planner"
	"mit.edu/dsg/vexec/storage"
)

// The size of block, in bytes, that the join operator is allowed to buffer
const blockSize = 1 << 15

// NestedLoopJoinExecutor implements the block nested loop join algorithm.
// It loads a block of tuples from the left child into memory and then scans the right child
// to find matches. The right child is wrapped so that it is read from its source only once; later
// passes replay the buffered tuples.
type NestedLoopJoinExecutor struct {
	plan                     *planner.NestedLoopJoinNode
	left                     Executor
	right                    *materializeExecutor
	leftSchema, joinedSchema *storage.RawTupleDesc
	blockRows                int

	// Runtime State
	leftBuffer            []storage.Tuple
	leftTupleBuffers      []storage.RawTuple
	leftIndex, leftFilled int
	joinedTupleBuffer     storage.RawTuple
	ctx                   *ExecutorContext
	err                   error
}

// NewNestedLoopJoinExecutor creates a new NestedLoopJoinExecutor.
func NewNestedLoopJoinExecutor(plan *planner.NestedLoopJoinNode, left Executor, right Executor) *NestedLoopJoinExecutor {
	leftSchema := storage.NewRawTupleDesc(plan.Left.OutputSchema().Types())
	blockRows := 1
	if leftSchema.BytesPerTuple() > 0 {
		blockRows = max(1, blockSize/leftSchema.BytesPerTuple())
	}
	return &NestedLoopJoinExecutor{
		plan:         plan,
		left:         left,
		right:        newMaterializeExecutor(right),
		leftSchema:   leftSchema,
		joinedSchema: storage.NewRawTupleDesc(plan.OutputSchema().Types()),
		blockRows:    blockRows,
	}
}

func (e *NestedLoopJoinExecutor) PlanNode() planner.PlanNode {
	return e.plan
}

func (e *NestedLoopJoinExecutor) Init(ctx *ExecutorContext) error {
	e.leftBuffer = make([]storage.Tuple, e.blockRows)
	e.leftTupleBuffers = make([]storage.RawTuple, e.blockRows)
	for i := range e.leftTupleBuffers {
		e.leftTupleBuffers[i] = make([]byte, e.leftSchema.BytesPerTuple())
	}
	e.leftIndex = 0
	e.leftFilled = 0
	e.joinedTupleBuffer = make([]byte, e.joinedSchema.BytesPerTuple())
	e.ctx = ctx
	e.err = nil
	// The right side is re-initialized for every block of the left.
	return e.left.Init(ctx)
}

func (e *NestedLoopJoinExecutor) newBlockIteration() bool {
	// re-initialize the right scan
	if err := e.right.Init(e.ctx); err != nil {
		e.err = err
		return false
	}
	// Load the first tuple on the right
	if !e.right.Next() {
		e.err = e.right.Error()
		return false
	}
	// fetch the next block of tuples on the left
	for i := 0; i < len(e.leftBuffer); i++ {
		if !e.left.Next() {
			if err := e.left.Error(); err != nil {
				e.err = err
				return false
			}
			e.leftFilled = i
			return e.leftFilled != 0
		}
		t := e.left.Current()
		e.leftBuffer[i] = t.WriteToBuffer(e.leftTupleBuffers[i], e.leftSchema)
	}
	e.leftFilled = len(e.leftBuffer)
	return true
}

func (e *NestedLoopJoinExecutor) Next() bool {
	if e.err != nil {
		return false
	}

	for {
		// If we don't have a left tuple batch, try to get one
		if e.leftFilled == 0 {
			if !e.newBlockIteration() {
				return false
			}
		}

		for e.leftIndex < e.leftFilled {
			leftTuple := e.leftBuffer[e.leftIndex]
			e.leftIndex++
			storage.MergeTuples(e.joinedTupleBuffer, e.joinedSchema, leftTuple, e.right.Current())
			joined := storage.FromRawTuple(e.joinedTupleBuffer, e.joinedSchema)

			if planner.ExprIsTrue(e.plan.Predicate.Eval(joined)) {
				return true
			}
		}
		// Keep the left block and get the next right tuple
		e.leftIndex = 0
		if !e.right.Next() {
			if err := e.right.Error(); err != nil {
				e.err = err
				return false
			}
			// Done with the left block. Time to fetch a new one
			e.leftFilled = 0
		}
	}
}

func (e *NestedLoopJoinExecutor) Current() storage.Tuple {
	return storage.FromRawTuple(e.joinedTupleBuffer, e.joinedSchema)
}

func (e *NestedLoopJoinExecutor) Error() error {
	return e.err
}

func (e *NestedLoopJoinExecutor) Close() error {
	err1 := e.left.Close()
	err2 := e.right.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
