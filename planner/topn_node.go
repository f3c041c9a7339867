package planner

import (
	"fmt"

	"mit.edu/dsg/vexec/catalog"
)

// TopNNode represents a combined Sort + Limit operation. It keeps the first Limit rows of a stable sort.
type TopNNode struct {
	id      PlanNodeID
	Child   PlanNode
	Limit   int
	OrderBy []OrderByClause
}

func NewTopNNode(id PlanNodeID, child PlanNode, limit int, orderBy []OrderByClause) *TopNNode {
	return &TopNNode{
		id:      id,
		Child:   child,
		Limit:   limit,
		OrderBy: orderBy,
	}
}

func (n *TopNNode) ID() PlanNodeID {
	return n.id
}

func (n *TopNNode) OutputSchema() catalog.Schema {
	return n.Child.OutputSchema()
}

func (n *TopNNode) Children() []PlanNode {
	return []PlanNode{n.Child}
}

func (n *TopNNode) String() string {
	return fmt.Sprintf("TopN: Limit %d %s", n.Limit, formatOrderBy(n.OrderBy))
}
