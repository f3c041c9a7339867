package planner

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/xwb1989/sqlparser"
	"mit.edu/dsg/vexec/catalog"
	"mit.edu/dsg/vexec/common"
)

// IDGenerator hands out plan node IDs "0", "1", ... Builders that contribute to the same tree must share one.
type IDGenerator struct {
	next int
}

// Next returns a fresh ID.
func (g *IDGenerator) Next() PlanNodeID {
	id := PlanNodeID(strconv.Itoa(g.next))
	g.next++
	return id
}

// PlanBuilder assembles a plan bottom-up, one operator per call:
//
//	plan, err := planner.NewPlanBuilder().
//		TableScan("t", schema).
//		Filter("id > 10").
//		Project("id", "concat(name, '!') AS shout").
//		Plan()
//
// Expressions are SQL text resolved against the current node's output schema. The first error sticks and is
// reported by Plan; later calls are no-ops.
type PlanBuilder struct {
	ids  *IDGenerator
	node PlanNode
	err  error
}

// NewPlanBuilder returns a builder with its own ID generator.
func NewPlanBuilder() *PlanBuilder {
	return NewPlanBuilderWithIDs(&IDGenerator{})
}

// NewPlanBuilderWithIDs returns a builder drawing IDs from ids, for building the second input of a join.
func NewPlanBuilderWithIDs(ids *IDGenerator) *PlanBuilder {
	return &PlanBuilder{ids: ids}
}

func (b *PlanBuilder) fail(err error) *PlanBuilder {
	if b.err == nil {
		b.err = err
	}
	return b
}

func (b *PlanBuilder) needInput(op string) bool {
	if b.err != nil {
		return false
	}
	if b.node == nil {
		b.fail(errors.Newf("%s needs an input node", op))
		return false
	}
	return true
}

func (b *PlanBuilder) needNoInput(op string) bool {
	if b.err != nil {
		return false
	}
	if b.node != nil {
		b.fail(errors.Newf("%s must be the first node of a plan", op))
		return false
	}
	return true
}

// TableScan starts the plan with a scan of tuple files holding rows of schema.
func (b *PlanBuilder) TableScan(table string, schema catalog.Schema) *PlanBuilder {
	if b.needNoInput("TableScan") {
		b.node = NewTableScanNode(b.ids.Next(), table, schema)
	}
	return b
}

// Values starts the plan with literal rows.
func (b *PlanBuilder) Values(schema catalog.Schema, rows [][]common.Value) *PlanBuilder {
	if b.needNoInput("Values") {
		b.node = NewValuesNode(b.ids.Next(), schema, rows)
	}
	return b
}

// Filter keeps the rows for which predicate is true.
func (b *PlanBuilder) Filter(predicate string) *PlanBuilder {
	if !b.needInput("Filter") {
		return b
	}
	e, err := ParseExpr(predicate, b.node.OutputSchema())
	if err != nil {
		return b.fail(errors.Wrapf(err, "filter"))
	}
	if e.OutputType() != common.IntType {
		return b.fail(errors.Newf("filter predicate %q is not boolean", predicate))
	}
	b.node = NewFilterNode(b.ids.Next(), b.node, e)
	return b
}

// Project computes one output column per item. Items are "expr" or "expr AS name"; an unnamed column reference
// keeps its name and other unnamed expressions are named after their text.
func (b *PlanBuilder) Project(items ...string) *PlanBuilder {
	if !b.needInput("Project") {
		return b
	}
	schema := b.node.OutputSchema()
	scope := NewScope("", schema)
	exprs := make([]Expr, len(items))
	names := make([]string, len(items))
	for i, item := range items {
		parsed, alias, err := parseSelectItem(item)
		if err != nil {
			return b.fail(err)
		}
		if exprs[i], err = ResolveExpr(parsed, scope); err != nil {
			return b.fail(errors.Wrapf(err, "projection %q", item))
		}
		names[i] = itemName(parsed, alias)
	}
	b.node = NewProjectionNode(b.ids.Next(), b.node, exprs, names)
	return b
}

// OrderBy sorts by the given keys, each "expr" or "expr ASC|DESC".
func (b *PlanBuilder) OrderBy(keys ...string) *PlanBuilder {
	if !b.needInput("OrderBy") {
		return b
	}
	clauses, err := parseOrderBy(keys, b.node.OutputSchema())
	if err != nil {
		return b.fail(err)
	}
	b.node = NewSortNode(b.ids.Next(), b.node, clauses)
	return b
}

// TopN keeps the first n rows of the input sorted by keys, like OrderBy followed by Limit.
func (b *PlanBuilder) TopN(n int, keys ...string) *PlanBuilder {
	if !b.needInput("TopN") {
		return b
	}
	if n < 0 {
		return b.fail(errors.Newf("negative limit %d", n))
	}
	clauses, err := parseOrderBy(keys, b.node.OutputSchema())
	if err != nil {
		return b.fail(err)
	}
	b.node = NewTopNNode(b.ids.Next(), b.node, n, clauses)
	return b
}

func parseOrderBy(keys []string, schema catalog.Schema) ([]OrderByClause, error) {
	if len(keys) == 0 {
		return nil, errors.New("order by needs at least one key")
	}
	stmt, err := sqlparser.Parse("select 1 from dual order by " + strings.Join(keys, ", "))
	if err != nil {
		return nil, errors.Wrapf(err, "parse order by %q", keys)
	}
	scope := NewScope("", schema)
	var clauses []OrderByClause
	for _, o := range stmt.(*sqlparser.Select).OrderBy {
		e, err := ResolveExpr(o.Expr, scope)
		if err != nil {
			return nil, errors.Wrapf(err, "order by")
		}
		dir := SortOrderAscending
		if o.Direction == sqlparser.DescScr {
			dir = SortOrderDescending
		}
		clauses = append(clauses, OrderByClause{Expr: e, Direction: dir})
	}
	return clauses, nil
}

// Limit keeps the first n rows.
func (b *PlanBuilder) Limit(n int) *PlanBuilder {
	if !b.needInput("Limit") {
		return b
	}
	if n < 0 {
		return b.fail(errors.Newf("negative limit %d", n))
	}
	b.node = NewLimitNode(b.ids.Next(), b.node, n)
	return b
}

// HashJoin joins the current node (build side) with right (probe side) on leftKeys[i] = rightKeys[i]. Keys are
// expressions over the respective input.
func (b *PlanBuilder) HashJoin(leftKeys []string, right PlanNode, rightKeys []string) *PlanBuilder {
	if !b.needInput("HashJoin") {
		return b
	}
	lk, rk, err := joinKeys(b.node, leftKeys, right, rightKeys)
	if err != nil {
		return b.fail(errors.Wrapf(err, "hash join"))
	}
	b.node = NewHashJoinNode(b.ids.Next(), b.node, right, lk, rk)
	return b
}

// MergeJoin is HashJoin for inputs that are already sorted ascending on their keys, for example by OrderBy.
// Unsorted input gives wrong results rather than an error.
func (b *PlanBuilder) MergeJoin(leftKeys []string, right PlanNode, rightKeys []string) *PlanBuilder {
	if !b.needInput("MergeJoin") {
		return b
	}
	lk, rk, err := joinKeys(b.node, leftKeys, right, rightKeys)
	if err != nil {
		return b.fail(errors.Wrapf(err, "merge join"))
	}
	b.node = NewMergeJoinNode(b.ids.Next(), b.node, right, lk, rk)
	return b
}

func joinKeys(left PlanNode, leftKeys []string, right PlanNode, rightKeys []string) ([]Expr, []Expr, error) {
	if len(leftKeys) == 0 || len(leftKeys) != len(rightKeys) {
		return nil, nil, errors.Newf("join needs matching key lists, got %d and %d", len(leftKeys), len(rightKeys))
	}
	lk := make([]Expr, len(leftKeys))
	rk := make([]Expr, len(rightKeys))
	for i := range leftKeys {
		var err error
		if lk[i], err = ParseExpr(leftKeys[i], left.OutputSchema()); err != nil {
			return nil, nil, errors.Wrapf(err, "left join key")
		}
		if rk[i], err = ParseExpr(rightKeys[i], right.OutputSchema()); err != nil {
			return nil, nil, errors.Wrapf(err, "right join key")
		}
		if lk[i].OutputType() != rk[i].OutputType() {
			return nil, nil, errors.Newf("join keys %s and %s have different types", lk[i], rk[i])
		}
	}
	return lk, rk, nil
}

// NestedLoopJoin joins the current node with right on predicate, an expression over the concatenated row. Columns
// of the current node can be qualified as l and those of right as r; names that are unique need no qualifier.
func (b *PlanBuilder) NestedLoopJoin(right PlanNode, predicate string) *PlanBuilder {
	if !b.needInput("NestedLoopJoin") {
		return b
	}
	parsed, err := parseScalar(predicate)
	if err != nil {
		return b.fail(err)
	}
	scope := NewScope("l", b.node.OutputSchema()).Join(NewScope("r", right.OutputSchema()))
	e, err := ResolveExpr(parsed, scope)
	if err != nil {
		return b.fail(errors.Wrapf(err, "join predicate"))
	}
	if e.OutputType() != common.IntType {
		return b.fail(errors.Newf("join predicate %q is not boolean", predicate))
	}
	b.node = NewNestedLoopJoinNode(b.ids.Next(), b.node, right, e)
	return b
}

// Aggregate groups by groupBy and computes aggregates, each "fn(expr)" or "fn(expr) AS name" with fn one of
// count, sum, min or max; count(*) counts rows. Grouping items are named like Project items.
func (b *PlanBuilder) Aggregate(groupBy []string, aggregates ...string) *PlanBuilder {
	if !b.needInput("Aggregate") {
		return b
	}
	if len(groupBy) == 0 && len(aggregates) == 0 {
		return b.fail(errors.New("aggregate needs a grouping key or an aggregate"))
	}
	scope := NewScope("", b.node.OutputSchema())
	keys := make([]Expr, len(groupBy))
	names := make([]string, len(groupBy))
	for i, item := range groupBy {
		parsed, alias, err := parseSelectItem(item)
		if err != nil {
			return b.fail(err)
		}
		if keys[i], err = ResolveExpr(parsed, scope); err != nil {
			return b.fail(errors.Wrapf(err, "group by %q", item))
		}
		names[i] = itemName(parsed, alias)
	}
	clauses := make([]AggregateClause, len(aggregates))
	for i, item := range aggregates {
		parsed, alias, err := parseSelectItem(item)
		if err != nil {
			return b.fail(err)
		}
		if clauses[i], err = ResolveAggregate(parsed, scope); err != nil {
			return b.fail(err)
		}
		if alias != "" {
			clauses[i].Name = alias
		}
	}
	b.node = NewAggregationNode(b.ids.Next(), b.node, keys, names, clauses)
	return b
}

// PlanNodeID returns the ID of the node built so far, typically to address splits to a scan.
func (b *PlanBuilder) PlanNodeID() PlanNodeID {
	if b.node == nil {
		return ""
	}
	return b.node.ID()
}

// Plan returns the root of the plan, or the first error encountered while building it.
func (b *PlanBuilder) Plan() (PlanNode, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.node == nil {
		return nil, errors.New("empty plan")
	}
	return b.node, nil
}

// MustPlan is Plan for tests and fixtures; it panics on error.
func (b *PlanBuilder) MustPlan() PlanNode {
	n, err := b.Plan()
	if err != nil {
		panic(err)
	}
	return n
}

func parseSelectItem(item string) (sqlparser.Expr, string, error) {
	stmt, err := sqlparser.Parse("select " + item + " from dual")
	if err != nil {
		return nil, "", errors.Wrapf(err, "parse projection %q", item)
	}
	sel := stmt.(*sqlparser.Select)
	if len(sel.SelectExprs) != 1 {
		return nil, "", errors.Newf("%q is not a single projection", item)
	}
	aliased, ok := sel.SelectExprs[0].(*sqlparser.AliasedExpr)
	if !ok {
		return nil, "", errors.Newf("%q is not a scalar projection", item)
	}
	return aliased.Expr, aliased.As.String(), nil
}

// itemName is the output name of a select item: its alias, the name of a bare column reference, or its text.
func itemName(e sqlparser.Expr, alias string) string {
	if alias != "" {
		return alias
	}
	if col, ok := e.(*sqlparser.ColName); ok {
		return col.Name.String()
	}
	return sqlparser.String(e)
}
