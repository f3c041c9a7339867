package planner

import (
	"fmt"
	"strings"

	"mit.edu/dsg/vexec/catalog"
	"mit.edu/dsg/vexec/common"
)

type AggregatorType int

const (
	AggCount AggregatorType = iota
	AggSum
	AggMin
	AggMax
)

func (t AggregatorType) String() string {
	switch t {
	case AggCount:
		return "count"
	case AggSum:
		return "sum"
	case AggMin:
		return "min"
	case AggMax:
		return "max"
	}
	return "unknown"
}

// AggregateClause is one aggregate function call. Expr is nil for count(*).
type AggregateClause struct {
	Type AggregatorType
	Expr Expr
	Name string
}

func (c AggregateClause) OutputType() common.Type {
	switch c.Type {
	case AggMin, AggMax:
		return c.Expr.OutputType()
	}
	return common.IntType
}

func (c AggregateClause) String() string {
	if c.Expr == nil {
		return fmt.Sprintf("%s(*)", c.Type)
	}
	return fmt.Sprintf("%s(%s)", c.Type, c.Expr)
}

// AggregationNode groups its input by the GroupBy expressions and computes the aggregates of each group. The
// output is the grouping values followed by the aggregate values. Without grouping expressions it produces exactly
// one row, even for empty input.
type AggregationNode struct {
	id           PlanNodeID
	Child        PlanNode
	GroupBy      []Expr
	Aggregates   []AggregateClause
	outputSchema catalog.Schema
}

func NewAggregationNode(id PlanNodeID, child PlanNode, groupBy []Expr, groupNames []string, aggregates []AggregateClause) *AggregationNode {
	common.Assert(len(groupBy) == len(groupNames), "%d grouping expressions but %d names", len(groupBy), len(groupNames))
	schema := make(catalog.Schema, 0, len(groupBy)+len(aggregates))
	for i, expr := range groupBy {
		schema = append(schema, catalog.Column{Name: groupNames[i], Type: expr.OutputType()})
	}
	for _, agg := range aggregates {
		schema = append(schema, catalog.Column{Name: agg.Name, Type: agg.OutputType()})
	}
	return &AggregationNode{
		id:           id,
		Child:        child,
		GroupBy:      groupBy,
		Aggregates:   aggregates,
		outputSchema: schema,
	}
}

func (n *AggregationNode) ID() PlanNodeID {
	return n.id
}

func (n *AggregationNode) OutputSchema() catalog.Schema {
	return n.outputSchema
}

func (n *AggregationNode) Children() []PlanNode {
	return []PlanNode{n.Child}
}

func (n *AggregationNode) String() string {
	aggs := make([]string, len(n.Aggregates))
	for i, a := range n.Aggregates {
		aggs[i] = a.String()
	}
	return fmt.Sprintf("Aggregate: GroupBy(%v) [%s]", n.GroupBy, strings.Join(aggs, ", "))
}
