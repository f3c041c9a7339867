package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mit.edu/dsg/vexec/catalog"
	"mit.edu/dsg/vexec/common"
	"mit.edu/dsg/vexec/storage"
)

var peopleSchema = catalog.NewSchema(
	[]string{"id", "name", "age"},
	[]common.Type{common.IntType, common.StringType, common.IntType})

func evalInt(t *testing.T, e Expr, tup storage.Tuple) int64 {
	t.Helper()
	v := e.Eval(tup)
	require.False(t, v.IsNull())
	return v.IntValue()
}

func TestParseExpr(t *testing.T) {
	tup := storage.FromValues(common.NewIntValue(7), common.NewStringValue("alice"), common.NewNullInt())

	tests := []struct {
		text     string
		expected int64 // -1 for NULL
	}{
		{"id = 7", 1},
		{"id <> 7", 0},
		{"id != 7", 0},
		{"id >= 7 and name = 'alice'", 1},
		{"id < 3 or name like 'al%'", 1},
		{"name not like 'b%'", 1},
		{"not (id > 100)", 1},
		{"age is null", 1},
		{"age is not null", 0},
		{"age > 3", -1},
		{"(id + 3) * 2 = 20", 1},
		{"-id = 0 - 7", 1},
		{"id % 4 = 3", 1},
		{"name = null", -1},
		{"true", 1},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			e, err := ParseExpr(tt.text, peopleSchema)
			require.NoError(t, err)
			assert.Equal(t, common.IntType, e.OutputType())
			v := e.Eval(tup)
			if tt.expected == -1 {
				assert.True(t, v.IsNull())
			} else {
				require.False(t, v.IsNull())
				assert.Equal(t, tt.expected, v.IntValue())
			}
		})
	}
}

func TestParseExpr_Concat(t *testing.T) {
	e, err := ParseExpr("concat(name, '-', 'x')", peopleSchema)
	require.NoError(t, err)
	assert.Equal(t, common.StringType, e.OutputType())
	v := e.Eval(storage.FromValues(common.NewIntValue(1), common.NewStringValue("bob"), common.NewIntValue(3)))
	assert.Equal(t, "bob-x", v.StringValue())
}

func TestParseExpr_Errors(t *testing.T) {
	for _, text := range []string{
		"missing = 1",
		"name + 1",
		"id = 'seven'",
		"id like 'x'",
		"upper(name)",
		"id in (1, 2)",
		"id = ",
	} {
		_, err := ParseExpr(text, peopleSchema)
		assert.Error(t, err, text)
	}
}

func TestScopeLookup(t *testing.T) {
	scope := NewScope("t", peopleSchema).Join(NewScope("u", catalog.NewSchema(
		[]string{"id", "city"}, []common.Type{common.IntType, common.StringType})))

	idx, err := scope.Lookup("u", "id")
	require.NoError(t, err)
	assert.Equal(t, 3, idx)
	idx, err = scope.Lookup("", "CITY")
	require.NoError(t, err)
	assert.Equal(t, 4, idx)
	_, err = scope.Lookup("", "id")
	assert.ErrorContains(t, err, "ambiguous")
	_, err = scope.Lookup("v", "id")
	assert.ErrorContains(t, err, "does not exist")
}

func TestColumnRef(t *testing.T) {
	ref, err := ColumnRef("name", peopleSchema)
	require.NoError(t, err)
	assert.Equal(t, 1, ref.ColumnIndex())
	assert.Equal(t, common.StringType, ref.OutputType())
	_, err = ColumnRef("zip", peopleSchema)
	assert.Error(t, err)
}

func TestPlanBuilder_Chain(t *testing.T) {
	b := NewPlanBuilder().TableScan("people", peopleSchema)
	scanID := b.PlanNodeID()
	plan, err := b.
		Filter("age > 18").
		Project("id", "name AS who", "id * 10").
		OrderBy("who DESC", "id").
		Limit(5).
		Plan()
	require.NoError(t, err)

	assert.Equal(t, PlanNodeID("0"), scanID)
	assert.Equal(t, PlanNodeID("4"), plan.ID())
	assert.Equal(t, catalog.NewSchema(
		[]string{"id", "who", "id * 10"},
		[]common.Type{common.IntType, common.StringType, common.IntType}), plan.OutputSchema())

	var ids []PlanNodeID
	Walk(plan, func(n PlanNode) { ids = append(ids, n.ID()) })
	assert.Equal(t, []PlanNodeID{"4", "3", "2", "1", "0"}, ids)

	sort := plan.Children()[0].(*SortNode)
	require.Len(t, sort.OrderBy, 2)
	assert.Equal(t, SortOrderDescending, sort.OrderBy[0].Direction)
	assert.Equal(t, SortOrderAscending, sort.OrderBy[1].Direction)
	assert.Contains(t, Format(plan), "    [2] Projection: id AS id, name AS who")
}

func TestPlanBuilder_HashJoinSharesIDs(t *testing.T) {
	ids := &IDGenerator{}
	right := NewPlanBuilderWithIDs(ids).
		TableScan("cities", catalog.NewSchema([]string{"pid", "city"}, []common.Type{common.IntType, common.StringType})).
		MustPlan()
	plan, err := NewPlanBuilderWithIDs(ids).
		TableScan("people", peopleSchema).
		HashJoin([]string{"id"}, right, []string{"pid"}).
		Plan()
	require.NoError(t, err)

	assert.Equal(t, PlanNodeID("2"), plan.ID())
	require.Len(t, plan.Children(), 2)
	assert.Equal(t, PlanNodeID("1"), plan.Children()[0].ID())
	assert.Equal(t, PlanNodeID("0"), plan.Children()[1].ID())
	assert.Equal(t, []string{"id", "name", "age", "pid", "city"}, plan.OutputSchema().Names())
}

func TestPlanBuilder_StickyError(t *testing.T) {
	_, err := NewPlanBuilder().
		TableScan("people", peopleSchema).
		Filter("nope > 1").
		Limit(3).
		Plan()
	assert.ErrorContains(t, err, "nope")

	_, err = NewPlanBuilder().Filter("id > 1").Plan()
	assert.ErrorContains(t, err, "needs an input")

	_, err = NewPlanBuilder().TableScan("a", peopleSchema).TableScan("b", peopleSchema).Plan()
	assert.Error(t, err)

	_, err = NewPlanBuilder().TableScan("people", peopleSchema).Filter("name").Plan()
	assert.ErrorContains(t, err, "not boolean")

	_, err = NewPlanBuilder().Plan()
	assert.Error(t, err)
}

func TestValuesNode(t *testing.T) {
	schema := catalog.NewSchema([]string{"x"}, []common.Type{common.IntType})
	plan := NewPlanBuilder().
		Values(schema, [][]common.Value{{common.NewIntValue(1)}, {common.NewIntValue(2)}}).
		MustPlan()
	assert.Empty(t, plan.Children())
	assert.Equal(t, "Values: 2 rows", plan.String())
	assert.Panics(t, func() {
		NewValuesNode("v", schema, [][]common.Value{{common.NewStringValue("no")}})
	})
}

func TestPlanBuilder_TopN(t *testing.T) {
	plan, err := NewPlanBuilder().
		TableScan("people", peopleSchema).
		TopN(3, "age DESC", "id").
		Plan()
	require.NoError(t, err)
	topN, ok := plan.(*TopNNode)
	require.True(t, ok)
	assert.Equal(t, 3, topN.Limit)
	assert.Equal(t, "TopN: Limit 3 age DESC, id ASC", topN.String())
	assert.Equal(t, peopleSchema, plan.OutputSchema())

	_, err = NewPlanBuilder().TableScan("people", peopleSchema).TopN(3).Plan()
	assert.Error(t, err)
	_, err = NewPlanBuilder().TableScan("people", peopleSchema).TopN(-1, "id").Plan()
	assert.Error(t, err)
}

func TestPlanBuilder_Aggregate(t *testing.T) {
	plan, err := NewPlanBuilder().
		TableScan("people", peopleSchema).
		Aggregate([]string{"age", "age / 10 AS decade"}, "count(*)", "max(name) AS last", "sum(id)").
		Plan()
	require.NoError(t, err)
	assert.Equal(t, catalog.NewSchema(
		[]string{"age", "decade", "count(*)", "last", "sum(id)"},
		[]common.Type{common.IntType, common.IntType, common.IntType, common.StringType, common.IntType}),
		plan.OutputSchema())

	agg := plan.(*AggregationNode)
	require.Len(t, agg.Aggregates, 3)
	assert.Nil(t, agg.Aggregates[0].Expr)
	assert.Equal(t, AggMax, agg.Aggregates[1].Type)
	assert.Contains(t, agg.String(), "count(*), max(name), sum(id)")

	global, err := NewPlanBuilder().TableScan("people", peopleSchema).Aggregate(nil, "min(age)").Plan()
	require.NoError(t, err)
	assert.Equal(t, []string{"min(age)"}, global.OutputSchema().Names())

	for _, bad := range [][]string{
		{"sum(name)"},
		{"avg(age)"},
		{"count(distinct age)"},
		{"max(*)"},
		{"count(max(age))"},
		{"age"},
	} {
		_, err := NewPlanBuilder().TableScan("people", peopleSchema).Aggregate(nil, bad...).Plan()
		assert.Error(t, err, bad)
	}
	_, err = NewPlanBuilder().TableScan("people", peopleSchema).Aggregate(nil).Plan()
	assert.Error(t, err)
}

func TestPlanBuilder_NestedLoopJoin(t *testing.T) {
	ids := &IDGenerator{}
	right := NewPlanBuilderWithIDs(ids).
		TableScan("people", peopleSchema).
		MustPlan()
	plan, err := NewPlanBuilderWithIDs(ids).
		TableScan("people", peopleSchema).
		NestedLoopJoin(right, "l.age < r.age AND l.id <> r.id").
		Plan()
	require.NoError(t, err)
	nlj := plan.(*NestedLoopJoinNode)
	assert.Equal(t, PlanNodeID("1"), nlj.Left.ID())
	assert.Len(t, plan.OutputSchema(), 6)

	_, err = NewPlanBuilder().TableScan("people", peopleSchema).NestedLoopJoin(right, "age < 3").Plan()
	assert.ErrorContains(t, err, "ambiguous")
	_, err = NewPlanBuilder().TableScan("people", peopleSchema).NestedLoopJoin(right, "l.name").Plan()
	assert.ErrorContains(t, err, "not boolean")
}

func TestPlanBuilder_MergeJoin(t *testing.T) {
	ids := &IDGenerator{}
	right := NewPlanBuilderWithIDs(ids).TableScan("people", peopleSchema).OrderBy("age").MustPlan()
	plan, err := NewPlanBuilderWithIDs(ids).
		TableScan("people", peopleSchema).
		OrderBy("id").
		MergeJoin([]string{"id"}, right, []string{"age"}).
		Plan()
	require.NoError(t, err)
	mj := plan.(*MergeJoinNode)
	assert.Equal(t, PlanNodeID("4"), mj.ID())
	assert.Equal(t, "MergeJoin: [id] = [age]", mj.String())

	_, err = NewPlanBuilder().TableScan("people", peopleSchema).MergeJoin([]string{"id"}, right, []string{"name"}).Plan()
	assert.ErrorContains(t, err, "different types")
	_, err = NewPlanBuilder().TableScan("people", peopleSchema).MergeJoin(nil, right, nil).Plan()
	assert.ErrorContains(t, err, "matching key lists")
}
