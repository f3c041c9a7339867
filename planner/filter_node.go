package planner

import (
	"fmt"

	"mit.edu/dsg/vexec/catalog"
)

// FilterNode filters tuples from its child based on a predicate.
type FilterNode struct {
	id        PlanNodeID
	Child     PlanNode
	Predicate Expr
}

func NewFilterNode(id PlanNodeID, child PlanNode, predicate Expr) *FilterNode {
	return &FilterNode{
		id:        id,
		Child:     child,
		Predicate: predicate,
	}
}

func (n *FilterNode) ID() PlanNodeID {
	return n.id
}

func (n *FilterNode) OutputSchema() catalog.Schema {
	return n.Child.OutputSchema()
}

func (n *FilterNode) Children() []PlanNode {
	return []PlanNode{n.Child}
}

func (n *FilterNode) String() string {
	return fmt.Sprintf("Filter: %s", n.Predicate.String())
}
