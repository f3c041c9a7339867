package reference

import (
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-kit/log/level"
	"github.com/xwb1989/sqlparser"
	"mit.edu/dsg/vexec/catalog"
	"mit.edu/dsg/vexec/common"
	"mit.edu/dsg/vexec/planner"
	"mit.edu/dsg/vexec/storage"
)

// relation is an intermediate result: the visible columns and their rows.
type relation struct {
	scope planner.Scope
	rows  [][]common.Value
}

// Execute runs one SELECT statement.
func (r *QueryRunner) Execute(sql string) (*Result, error) {
	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %q", sql)
	}
	sel, ok := stmt.(*sqlparser.Select)
	if !ok {
		return nil, errors.Newf("only SELECT is supported: %q", sql)
	}
	if sel.Distinct != "" {
		return nil, errors.Newf("DISTINCT is not supported: %q", sql)
	}

	in, err := r.from(sel.From)
	if err != nil {
		return nil, err
	}
	if sel.Where != nil {
		if in, err = filter(in, sel.Where.Expr); err != nil {
			return nil, errors.Wrapf(err, "where")
		}
	}

	var out [][]common.Value
	var schema catalog.Schema
	if isGrouped(sel) {
		if out, schema, err = aggregate(sel, in); err != nil {
			return nil, err
		}
		// HAVING and ORDER BY see the grouped rows.
		in = relation{scope: planner.NewScope("", schema), rows: out}
		if sel.Having != nil {
			if in, err = filter(in, sel.Having.Expr); err != nil {
				return nil, errors.Wrapf(err, "having")
			}
			out = in.rows
		}
	} else {
		if sel.Having != nil {
			return nil, errors.Newf("HAVING needs GROUP BY or an aggregate: %q", sql)
		}
		var exprs []planner.Expr
		if exprs, schema, err = selectList(sel.SelectExprs, in.scope); err != nil {
			return nil, err
		}
		out = make([][]common.Value, len(in.rows))
		for i, row := range in.rows {
			out[i] = evalAll(exprs, row)
		}
	}

	if len(sel.OrderBy) > 0 {
		if err := orderBy(sel.OrderBy, in, out, schema); err != nil {
			return nil, errors.Wrapf(err, "order by")
		}
	}
	if sel.Limit != nil {
		if out, err = limit(sel.Limit, out); err != nil {
			return nil, err
		}
	}

	level.Debug(r.logger).Log("msg", "reference query", "sql", sql, "rows", len(out))
	return &Result{Schema: schema, Rows: out}, nil
}

func (r *QueryRunner) from(exprs sqlparser.TableExprs) (relation, error) {
	var result relation
	for i, te := range exprs {
		rel, err := r.tableExpr(te)
		if err != nil {
			return relation{}, err
		}
		if i == 0 {
			result = rel
			continue
		}
		if result, err = join(result, rel, nil); err != nil {
			return relation{}, err
		}
	}
	return result, nil
}

func (r *QueryRunner) tableExpr(te sqlparser.TableExpr) (relation, error) {
	switch t := te.(type) {
	case *sqlparser.AliasedTableExpr:
		name, ok := t.Expr.(sqlparser.TableName)
		if !ok {
			return relation{}, errors.Newf("unsupported table expression %s", sqlparser.String(t))
		}
		tableName := name.Name.String()
		if strings.EqualFold(tableName, "dual") {
			if _, err := r.catalog.GetTableMetadata(tableName); err != nil {
				return relation{rows: [][]common.Value{{}}}, nil
			}
		}
		table, rows, err := r.tableRows(tableName)
		if err != nil {
			return relation{}, err
		}
		alias := tableName
		if !t.As.IsEmpty() {
			alias = t.As.String()
		}
		return relation{scope: planner.NewScope(alias, table.Schema), rows: rows}, nil

	case *sqlparser.ParenTableExpr:
		return r.from(t.Exprs)

	case *sqlparser.JoinTableExpr:
		if t.Join != sqlparser.JoinStr {
			return relation{}, errors.Newf("only inner joins are supported, got %s", t.Join)
		}
		if len(t.Condition.Using) > 0 {
			return relation{}, errors.New("JOIN ... USING is not supported")
		}
		left, err := r.tableExpr(t.LeftExpr)
		if err != nil {
			return relation{}, err
		}
		right, err := r.tableExpr(t.RightExpr)
		if err != nil {
			return relation{}, err
		}
		return join(left, right, t.Condition.On)
	}
	return relation{}, errors.Newf("unsupported table expression %s", sqlparser.String(te))
}

// join is a nested loop join; a nil condition is a cross product.
func join(left, right relation, on sqlparser.Expr) (relation, error) {
	scope := left.scope.Join(right.scope)
	var pred planner.Expr
	if on != nil {
		var err error
		if pred, err = planner.ResolveExpr(on, scope); err != nil {
			return relation{}, errors.Wrapf(err, "join condition")
		}
	}
	var rows [][]common.Value
	for _, l := range left.rows {
		for _, r := range right.rows {
			row := make([]common.Value, 0, len(l)+len(r))
			row = append(row, l...)
			row = append(row, r...)
			if pred == nil || planner.ExprIsTrue(pred.Eval(storage.FromValues(row...))) {
				rows = append(rows, row)
			}
		}
	}
	return relation{scope: scope, rows: rows}, nil
}

func filter(in relation, where sqlparser.Expr) (relation, error) {
	pred, err := planner.ResolveExpr(where, in.scope)
	if err != nil {
		return relation{}, err
	}
	var rows [][]common.Value
	for _, row := range in.rows {
		if planner.ExprIsTrue(pred.Eval(storage.FromValues(row...))) {
			rows = append(rows, row)
		}
	}
	return relation{scope: in.scope, rows: rows}, nil
}

func selectList(items sqlparser.SelectExprs, scope planner.Scope) ([]planner.Expr, catalog.Schema, error) {
	var exprs []planner.Expr
	var schema catalog.Schema
	types := scope.Types()
	for _, item := range items {
		switch e := item.(type) {
		case *sqlparser.StarExpr:
			qualifier := e.TableName.Name.String()
			matched := false
			for i, c := range scope.Columns {
				if qualifier != "" && !strings.EqualFold(c.Table, qualifier) {
					continue
				}
				matched = true
				exprs = append(exprs, planner.NewColumnValueExpression(i, types, c.Name))
				schema = append(schema, catalog.Column{Name: c.Name, Type: c.Type})
			}
			if !matched {
				return nil, nil, errors.Newf("%s matches no columns", sqlparser.String(e))
			}
		case *sqlparser.AliasedExpr:
			expr, err := planner.ResolveExpr(e.Expr, scope)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "select %s", sqlparser.String(e))
			}
			name := e.As.String()
			if name == "" {
				name = columnName(e.Expr)
			}
			exprs = append(exprs, expr)
			schema = append(schema, catalog.Column{Name: name, Type: expr.OutputType()})
		default:
			return nil, nil, errors.Newf("unsupported select item %s", sqlparser.String(item))
		}
	}
	return exprs, schema, nil
}

func evalAll(exprs []planner.Expr, row []common.Value) []common.Value {
	t := storage.FromValues(row...)
	out := make([]common.Value, len(exprs))
	for i, e := range exprs {
		out[i] = e.Eval(t)
	}
	return out
}

// sortKey evaluates one ORDER BY item either over the output row or over the input row it came from.
type sortKey struct {
	expr     planner.Expr
	onOutput bool
	desc     bool
}

// orderBy sorts out in place, stably. Keys resolve against output names first, then input columns; an integer
// literal names an output position starting at 1.
func orderBy(items sqlparser.OrderBy, in relation, out [][]common.Value, schema catalog.Schema) error {
	outScope := planner.NewScope("", schema)
	keys := make([]sortKey, len(items))
	for i, item := range items {
		k := sortKey{desc: item.Direction == sqlparser.DescScr}
		if lit, ok := item.Expr.(*sqlparser.SQLVal); ok && lit.Type == sqlparser.IntVal {
			pos, err := strconv.Atoi(string(lit.Val))
			if err != nil || pos < 1 || pos > len(schema) {
				return errors.Newf("ORDER BY position %s is out of range", lit.Val)
			}
			k.expr = planner.NewColumnValueExpression(pos-1, schema.Types(), schema[pos-1].Name)
			k.onOutput = true
		} else {
			e, err := planner.ResolveExpr(item.Expr, outScope)
			k.onOutput = err == nil
			if err != nil {
				if e, err = planner.ResolveExpr(item.Expr, in.scope); err != nil {
					return err
				}
			}
			k.expr = e
		}
		keys[i] = k
	}

	type keyed struct {
		key []common.Value
		row []common.Value
	}
	rows := make([]keyed, len(out))
	for i := range out {
		inTuple, outTuple := storage.FromValues(in.rows[i]...), storage.FromValues(out[i]...)
		key := make([]common.Value, len(keys))
		for j, k := range keys {
			if k.onOutput {
				key[j] = k.expr.Eval(outTuple)
			} else {
				key[j] = k.expr.Eval(inTuple)
			}
		}
		rows[i] = keyed{key: key, row: out[i]}
	}
	sort.SliceStable(rows, func(a, b int) bool {
		for j, k := range keys {
			c := rows[a].key[j].Compare(rows[b].key[j])
			if c == 0 {
				continue
			}
			if k.desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	for i := range rows {
		out[i] = rows[i].row
	}
	return nil
}

func limit(l *sqlparser.Limit, rows [][]common.Value) ([][]common.Value, error) {
	count, err := intLiteral(l.Rowcount)
	if err != nil {
		return nil, errors.Wrapf(err, "limit")
	}
	offset := 0
	if l.Offset != nil {
		if offset, err = intLiteral(l.Offset); err != nil {
			return nil, errors.Wrapf(err, "offset")
		}
	}
	if offset > len(rows) {
		offset = len(rows)
	}
	rows = rows[offset:]
	if count < len(rows) {
		rows = rows[:count]
	}
	return rows, nil
}

func intLiteral(e sqlparser.Expr) (int, error) {
	lit, ok := e.(*sqlparser.SQLVal)
	if !ok || lit.Type != sqlparser.IntVal {
		return 0, errors.Newf("%s is not an integer literal", sqlparser.String(e))
	}
	n, err := strconv.Atoi(string(lit.Val))
	if err != nil || n < 0 {
		return 0, errors.Newf("%s is not a non-negative integer", lit.Val)
	}
	return n, nil
}
