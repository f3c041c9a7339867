package planner

import (
	"fmt"

	"mit.edu/dsg/vexec/catalog"
)

// LimitNode limits the number of output tuples.
type LimitNode struct {
	id    PlanNodeID
	Child PlanNode
	Limit int
}

func NewLimitNode(id PlanNodeID, child PlanNode, limit int) *LimitNode {
	return &LimitNode{
		id:    id,
		Child: child,
		Limit: limit,
	}
}

func (n *LimitNode) ID() PlanNodeID {
	return n.id
}

func (n *LimitNode) OutputSchema() catalog.Schema {
	return n.Child.OutputSchema()
}

func (n *LimitNode) Children() []PlanNode {
	return []PlanNode{n.Child}
}

func (n *LimitNode) String() string {
	return fmt.Sprintf("Limit: %d", n.Limit)
}
