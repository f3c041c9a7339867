package planner

import (
	"strings"

	"mit.edu/dsg/vexec/catalog"
)

type SortDirection int

const (
	SortOrderAscending SortDirection = iota
	SortOrderDescending
)

func (d SortDirection) String() string {
	if d == SortOrderDescending {
		return "DESC"
	}
	return "ASC"
}

type OrderByClause struct {
	Expr      Expr
	Direction SortDirection
}

// SortNode sorts the input tuples. Ties keep their input order.
type SortNode struct {
	id      PlanNodeID
	Child   PlanNode
	OrderBy []OrderByClause
}

func NewSortNode(id PlanNodeID, child PlanNode, orderBy []OrderByClause) *SortNode {
	return &SortNode{
		id:      id,
		Child:   child,
		OrderBy: orderBy,
	}
}

func (n *SortNode) ID() PlanNodeID {
	return n.id
}

func (n *SortNode) OutputSchema() catalog.Schema {
	return n.Child.OutputSchema()
}

func (n *SortNode) Children() []PlanNode {
	return []PlanNode{n.Child}
}

func (n *SortNode) String() string {
	return "Sort: " + formatOrderBy(n.OrderBy)
}

func formatOrderBy(orderBy []OrderByClause) string {
	parts := make([]string, len(orderBy))
	for i, ob := range orderBy {
		parts[i] = ob.Expr.String() + " " + ob.Direction.String()
	}
	return strings.Join(parts, ", ")
}
