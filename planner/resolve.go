package planner

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/xwb1989/sqlparser"
	"mit.edu/dsg/vexec/catalog"
	"mit.edu/dsg/vexec/common"
)

// ScopeColumn is one column visible to an expression, optionally qualified by the table (or alias) it came from.
type ScopeColumn struct {
	Table string
	Name  string
	Type  common.Type
}

// Scope lists the columns of the tuple an expression is evaluated against, in tuple order.
type Scope struct {
	Columns []ScopeColumn
}

// NewScope builds the scope of a tuple with the given schema. table may be empty.
func NewScope(table string, schema catalog.Schema) Scope {
	cols := make([]ScopeColumn, len(schema))
	for i, c := range schema {
		cols[i] = ScopeColumn{Table: table, Name: c.Name, Type: c.Type}
	}
	return Scope{Columns: cols}
}

// Join returns the scope of a tuple made of s's columns followed by other's.
func (s Scope) Join(other Scope) Scope {
	cols := make([]ScopeColumn, 0, len(s.Columns)+len(other.Columns))
	cols = append(cols, s.Columns...)
	cols = append(cols, other.Columns...)
	return Scope{Columns: cols}
}

// Types returns the column types in tuple order.
func (s Scope) Types() []common.Type {
	out := make([]common.Type, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Type
	}
	return out
}

// Lookup finds the column called name, restricted to table when table is non-empty. Unqualified names that match
// more than one column are ambiguous.
func (s Scope) Lookup(table, name string) (int, error) {
	found := -1
	for i, c := range s.Columns {
		if !strings.EqualFold(c.Name, name) {
			continue
		}
		if table != "" && !strings.EqualFold(c.Table, table) {
			continue
		}
		if found >= 0 {
			return -1, errors.Newf("column reference %q is ambiguous", name)
		}
		found = i
	}
	if found < 0 {
		if table != "" {
			return -1, errors.Newf("column %s.%s does not exist", table, name)
		}
		return -1, errors.Newf("column %q does not exist", name)
	}
	return found, nil
}

// ParseExpr parses a SQL scalar expression and resolves it against a tuple with the given schema.
func ParseExpr(text string, schema catalog.Schema) (Expr, error) {
	e, err := parseScalar(text)
	if err != nil {
		return nil, err
	}
	return ResolveExpr(e, NewScope("", schema))
}

func parseScalar(text string) (sqlparser.Expr, error) {
	e, _, err := parseSelectItem(text)
	return e, err
}

// ColumnRef returns a reference to the column called name in schema.
func ColumnRef(name string, schema catalog.Schema) (*BoundValueExpr, error) {
	idx, ok := schema.Index(name)
	if !ok {
		return nil, errors.Newf("column %q does not exist in %s", name, schema)
	}
	return NewColumnValueExpression(idx, schema.Types(), schema[idx].Name), nil
}

// ResolveExpr turns a parsed expression into an evaluable, typed Expr. Booleans are integers: 1 is true, 0 is
// false, NULL is unknown.
func ResolveExpr(expr sqlparser.Expr, scope Scope) (Expr, error) {
	switch e := expr.(type) {
	case *sqlparser.ParenExpr:
		return ResolveExpr(e.Expr, scope)

	case *sqlparser.AndExpr:
		return resolveLogic(e.Left, e.Right, And, scope)
	case *sqlparser.OrExpr:
		return resolveLogic(e.Left, e.Right, Or, scope)
	case *sqlparser.NotExpr:
		child, err := resolveTyped(e.Expr, common.IntType, scope)
		if err != nil {
			return nil, err
		}
		return NewNegationExpression(child), nil

	case *sqlparser.ComparisonExpr:
		return resolveComparison(e, scope)

	case *sqlparser.IsExpr:
		child, err := ResolveExpr(e.Expr, scope)
		if err != nil {
			return nil, err
		}
		switch e.Operator {
		case sqlparser.IsNullStr:
			return NewNullCheckExpression(child, IsNull), nil
		case sqlparser.IsNotNullStr:
			return NewNullCheckExpression(child, IsNotNull), nil
		}
		return nil, errors.Newf("unsupported operator %q", e.Operator)

	case *sqlparser.BinaryExpr:
		var op ArithmeticType
		switch e.Operator {
		case sqlparser.PlusStr:
			op = Add
		case sqlparser.MinusStr:
			op = Sub
		case sqlparser.MultStr:
			op = Mult
		case sqlparser.DivStr:
			op = Div
		case sqlparser.ModStr:
			op = Mod
		default:
			return nil, errors.Newf("unsupported operator %q", e.Operator)
		}
		left, err := resolveTyped(e.Left, common.IntType, scope)
		if err != nil {
			return nil, err
		}
		right, err := resolveTyped(e.Right, common.IntType, scope)
		if err != nil {
			return nil, err
		}
		return NewArithmeticExpression(left, right, op), nil

	case *sqlparser.UnaryExpr:
		child, err := resolveTyped(e.Expr, common.IntType, scope)
		if err != nil {
			return nil, err
		}
		switch e.Operator {
		case sqlparser.UMinusStr:
			return NewArithmeticExpression(NewConstantValueExpression(common.NewIntValue(0)), child, Sub), nil
		case sqlparser.UPlusStr:
			return child, nil
		}
		return nil, errors.Newf("unsupported operator %q", e.Operator)

	case *sqlparser.SQLVal:
		switch e.Type {
		case sqlparser.IntVal:
			v, err := strconv.ParseInt(string(e.Val), 10, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "integer literal %s", e.Val)
			}
			return NewConstantValueExpression(common.NewIntValue(v)), nil
		case sqlparser.StrVal:
			if len(e.Val) > common.StringLength {
				return nil, errors.Newf("string literal %q is longer than %d bytes", e.Val, common.StringLength)
			}
			return NewConstantValueExpression(common.NewStringValue(string(e.Val))), nil
		}
		return nil, errors.Newf("unsupported literal %s", sqlparser.String(e))

	case *sqlparser.NullVal:
		// Untyped NULL; comparisons and null checks treat it the same whatever its type.
		return NewConstantValueExpression(common.NewNullInt()), nil

	case sqlparser.BoolVal:
		if e {
			return NewConstantValueExpression(common.NewIntValue(1)), nil
		}
		return NewConstantValueExpression(common.NewIntValue(0)), nil

	case *sqlparser.ColName:
		table, name := e.Qualifier.Name.String(), e.Name.String()
		idx, err := scope.Lookup(table, name)
		if err != nil {
			return nil, err
		}
		if table != "" {
			name = table + "." + name
		}
		return NewColumnValueExpression(idx, scope.Types(), name), nil

	case *sqlparser.FuncExpr:
		if e.Name.Lowered() != "concat" || len(e.Exprs) == 0 {
			return nil, errors.Newf("unsupported function %s", sqlparser.String(e))
		}
		var result Expr
		for _, se := range e.Exprs {
			arg, ok := se.(*sqlparser.AliasedExpr)
			if !ok {
				return nil, errors.Newf("unsupported argument %s", sqlparser.String(se))
			}
			part, err := resolveTyped(arg.Expr, common.StringType, scope)
			if err != nil {
				return nil, err
			}
			if result == nil {
				result = part
			} else {
				result = NewStringConcatenation(result, part)
			}
		}
		return result, nil
	}
	return nil, errors.Newf("unsupported expression %s", sqlparser.String(expr))
}

// resolveTyped resolves expr and checks that it produces want. Untyped NULL literals take the wanted type.
func resolveTyped(expr sqlparser.Expr, want common.Type, scope Scope) (Expr, error) {
	if _, ok := expr.(*sqlparser.NullVal); ok {
		return nullOf(want), nil
	}
	e, err := ResolveExpr(expr, scope)
	if err != nil {
		return nil, err
	}
	if e.OutputType() != want {
		return nil, errors.Newf("%s has type %s, expected %s", sqlparser.String(expr), e.OutputType(), want)
	}
	return e, nil
}

func nullOf(t common.Type) Expr {
	if t == common.StringType {
		return NewConstantValueExpression(common.NewNullString())
	}
	return NewConstantValueExpression(common.NewNullInt())
}

func resolveLogic(l, r sqlparser.Expr, op BinaryLogicType, scope Scope) (Expr, error) {
	left, err := resolveTyped(l, common.IntType, scope)
	if err != nil {
		return nil, err
	}
	right, err := resolveTyped(r, common.IntType, scope)
	if err != nil {
		return nil, err
	}
	return NewBinaryLogicExpression(left, right, op), nil
}

func resolveComparison(e *sqlparser.ComparisonExpr, scope Scope) (Expr, error) {
	// Resolve the non-NULL side first so a NULL literal on the other side can borrow its type.
	var left, right Expr
	var err error
	_, leftNull := e.Left.(*sqlparser.NullVal)
	if leftNull {
		if right, err = ResolveExpr(e.Right, scope); err != nil {
			return nil, err
		}
		left = nullOf(right.OutputType())
	} else {
		if left, err = ResolveExpr(e.Left, scope); err != nil {
			return nil, err
		}
		if right, err = resolveTyped(e.Right, left.OutputType(), scope); err != nil {
			return nil, err
		}
	}

	switch e.Operator {
	case sqlparser.LikeStr, sqlparser.NotLikeStr:
		if left.OutputType() != common.StringType {
			return nil, errors.Newf("LIKE needs string operands: %s", sqlparser.String(e))
		}
		var like Expr = NewLikeExpression(left, right)
		if e.Operator == sqlparser.NotLikeStr {
			like = NewNegationExpression(like)
		}
		return like, nil
	}

	var op ComparisonType
	switch e.Operator {
	case sqlparser.EqualStr:
		op = Equal
	case sqlparser.NotEqualStr:
		op = NotEqual
	case sqlparser.LessThanStr:
		op = LessThan
	case sqlparser.GreaterThanStr:
		op = GreaterThan
	case sqlparser.LessEqualStr:
		op = LessThanOrEqual
	case sqlparser.GreaterEqualStr:
		op = GreaterThanOrEqual
	default:
		return nil, errors.Newf("unsupported operator %q", e.Operator)
	}
	return NewComparisonExpression(left, right, op), nil
}

var aggregateFuncs = map[string]AggregatorType{
	"count": AggCount,
	"sum":   AggSum,
	"min":   AggMin,
	"max":   AggMax,
}

// IsAggregate reports whether expr is a call to count, sum, min or max.
func IsAggregate(expr sqlparser.Expr) bool {
	f, ok := expr.(*sqlparser.FuncExpr)
	if !ok {
		return false
	}
	_, ok = aggregateFuncs[f.Name.Lowered()]
	return ok
}

// ResolveAggregate resolves an aggregate function call whose argument is evaluated against scope. The clause is
// named after the call's text.
func ResolveAggregate(expr sqlparser.Expr, scope Scope) (AggregateClause, error) {
	f, ok := expr.(*sqlparser.FuncExpr)
	if !ok || !IsAggregate(expr) {
		return AggregateClause{}, errors.Newf("%s is not an aggregate", sqlparser.String(expr))
	}
	clause := AggregateClause{Type: aggregateFuncs[f.Name.Lowered()], Name: sqlparser.String(f)}
	if f.Distinct {
		return AggregateClause{}, errors.Newf("DISTINCT aggregates are not supported: %s", clause.Name)
	}
	if len(f.Exprs) != 1 {
		return AggregateClause{}, errors.Newf("%s takes one argument", clause.Name)
	}
	switch arg := f.Exprs[0].(type) {
	case *sqlparser.StarExpr:
		if clause.Type != AggCount || !arg.TableName.IsEmpty() {
			return AggregateClause{}, errors.Newf("%s: * is only valid in count(*)", clause.Name)
		}
		return clause, nil
	case *sqlparser.AliasedExpr:
		if IsAggregate(arg.Expr) {
			return AggregateClause{}, errors.Newf("nested aggregate in %s", clause.Name)
		}
		e, err := ResolveExpr(arg.Expr, scope)
		if err != nil {
			return AggregateClause{}, errors.Wrapf(err, "%s", clause.Name)
		}
		if clause.Type == AggSum && e.OutputType() != common.IntType {
			return AggregateClause{}, errors.Newf("%s needs an integer argument", clause.Name)
		}
		clause.Expr = e
		return clause, nil
	}
	return AggregateClause{}, errors.Newf("unsupported argument in %s", clause.Name)
}
