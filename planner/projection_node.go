package planner

import (
	"fmt"
	"strings"

	"mit.edu/dsg/vexec/catalog"
	"mit.edu/dsg/vexec/common"
)

// ProjectionNode computes one output column per expression.
type ProjectionNode struct {
	id          PlanNodeID
	Child       PlanNode
	Expressions []Expr
	Names       []string
}

func NewProjectionNode(id PlanNodeID, child PlanNode, exprs []Expr, names []string) *ProjectionNode {
	common.Assert(len(exprs) == len(names), "projection has %d expressions but %d names", len(exprs), len(names))
	return &ProjectionNode{
		id:          id,
		Child:       child,
		Expressions: exprs,
		Names:       names,
	}
}

func (n *ProjectionNode) ID() PlanNodeID {
	return n.id
}

func (n *ProjectionNode) OutputSchema() catalog.Schema {
	out := make(catalog.Schema, len(n.Expressions))
	for i, e := range n.Expressions {
		out[i] = catalog.Column{Name: n.Names[i], Type: e.OutputType()}
	}
	return out
}

func (n *ProjectionNode) Children() []PlanNode {
	return []PlanNode{n.Child}
}

func (n *ProjectionNode) String() string {
	parts := make([]string, len(n.Expressions))
	for i, e := range n.Expressions {
		parts[i] = fmt.Sprintf("%s AS %s", e, n.Names[i])
	}
	return "Projection: " + strings.Join(parts, ", ")
}
