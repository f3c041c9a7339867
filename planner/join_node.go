package planner

import (
	"fmt"

	"mit.edu/dsg/vexec/catalog"
	"mit.edu/dsg/vexec/common"
)

// HashJoinNode represents an inner equi-join between two children. The left child is the build side. The output
// is the left columns followed by the right columns.
type HashJoinNode struct {
	id           PlanNodeID
	Left         PlanNode
	Right        PlanNode
	LeftKeys     []Expr
	RightKeys    []Expr
	outputSchema catalog.Schema
}

func NewHashJoinNode(id PlanNodeID, left, right PlanNode, leftKeys, rightKeys []Expr) *HashJoinNode {
	common.Assert(len(leftKeys) == len(rightKeys), "hash join has %d left keys but %d right keys", len(leftKeys), len(rightKeys))
	schema := make(catalog.Schema, 0, len(left.OutputSchema())+len(right.OutputSchema()))
	schema = append(schema, left.OutputSchema()...)
	schema = append(schema, right.OutputSchema()...)
	return &HashJoinNode{
		id:           id,
		Left:         left,
		Right:        right,
		LeftKeys:     leftKeys,
		RightKeys:    rightKeys,
		outputSchema: schema,
	}
}

func (n *HashJoinNode) ID() PlanNodeID {
	return n.id
}

func (n *HashJoinNode) OutputSchema() catalog.Schema {
	return n.outputSchema
}

func (n *HashJoinNode) Children() []PlanNode {
	return []PlanNode{n.Left, n.Right}
}

func (n *HashJoinNode) String() string {
	return fmt.Sprintf("HashJoin: %v = %v", n.LeftKeys, n.RightKeys)
}

// NestedLoopJoinNode is an inner join on an arbitrary predicate over the concatenated row. The right child is
// read once and buffered; the left child is streamed in blocks.
type NestedLoopJoinNode struct {
	id           PlanNodeID
	Left         PlanNode
	Right        PlanNode
	Predicate    Expr
	outputSchema catalog.Schema
}

func NewNestedLoopJoinNode(id PlanNodeID, left, right PlanNode, predicate Expr) *NestedLoopJoinNode {
	schema := make(catalog.Schema, 0, len(left.OutputSchema())+len(right.OutputSchema()))
	schema = append(schema, left.OutputSchema()...)
	schema = append(schema, right.OutputSchema()...)
	return &NestedLoopJoinNode{
		id:           id,
		Left:         left,
		Right:        right,
		Predicate:    predicate,
		outputSchema: schema,
	}
}

func (n *NestedLoopJoinNode) ID() PlanNodeID {
	return n.id
}

func (n *NestedLoopJoinNode) OutputSchema() catalog.Schema {
	return n.outputSchema
}

func (n *NestedLoopJoinNode) Children() []PlanNode {
	return []PlanNode{n.Left, n.Right}
}

func (n *NestedLoopJoinNode) String() string {
	return fmt.Sprintf("NestedLoopJoin: %v", n.Predicate)
}

// MergeJoinNode is an inner equi-join of two inputs that arrive sorted ascending on their keys. Rows with a NULL
// key are skipped. The output is sorted on the keys.
type MergeJoinNode struct {
	id           PlanNodeID
	Left         PlanNode
	Right        PlanNode
	LeftKeys     []Expr
	RightKeys    []Expr
	outputSchema catalog.Schema
}

func NewMergeJoinNode(id PlanNodeID, left, right PlanNode, leftKeys, rightKeys []Expr) *MergeJoinNode {
	common.Assert(len(leftKeys) == len(rightKeys), "merge join has %d left keys but %d right keys", len(leftKeys), len(rightKeys))
	schema := make(catalog.Schema, 0, len(left.OutputSchema())+len(right.OutputSchema()))
	schema = append(schema, left.OutputSchema()...)
	schema = append(schema, right.OutputSchema()...)
	return &MergeJoinNode{
		id:           id,
		Left:         left,
		Right:        right,
		LeftKeys:     leftKeys,
		RightKeys:    rightKeys,
		outputSchema: schema,
	}
}

func (n *MergeJoinNode) ID() PlanNodeID {
	return n.id
}

func (n *MergeJoinNode) OutputSchema() catalog.Schema {
	return n.outputSchema
}

func (n *MergeJoinNode) Children() []PlanNode {
	return []PlanNode{n.Left, n.Right}
}

func (n *MergeJoinNode) String() string {
	return fmt.Sprintf("MergeJoin: %v = %v", n.LeftKeys, n.RightKeys)
}
