package planner

import (
	"strings"

	"mit.edu/dsg/vexec/catalog"
)

// PlanNodeID identifies a node within one plan tree. Splits are routed to scan nodes by ID.
type PlanNodeID string

// PlanNode represents the static structure of a query plan.
// It is immutable and contains schema information and the plan tree structure.
type PlanNode interface {
	// ID returns the identifier of this node, unique within its tree.
	ID() PlanNodeID

	// OutputSchema returns the schema of the tuples produced by this node.
	OutputSchema() catalog.Schema

	// Children returns the child plan nodes, in order.
	Children() []PlanNode

	// String returns a string representation of the plan node.
	String() string
}

// Format renders the tree rooted at root, one node per line, children indented below their parent.
func Format(root PlanNode) string {
	var sb strings.Builder
	var walk func(n PlanNode, depth int)
	walk = func(n PlanNode, depth int) {
		sb.WriteString(strings.Repeat("  ", depth))
		sb.WriteString("[")
		sb.WriteString(string(n.ID()))
		sb.WriteString("] ")
		sb.WriteString(n.String())
		sb.WriteString("\n")
		for _, c := range n.Children() {
			walk(c, depth+1)
		}
	}
	walk(root, 0)
	return sb.String()
}

// Walk visits the tree rooted at root in pre-order.
func Walk(root PlanNode, visit func(PlanNode)) {
	visit(root)
	for _, c := range root.Children() {
		Walk(c, visit)
	}
}
