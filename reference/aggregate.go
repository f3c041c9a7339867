package reference

import (
	"github.com/cockroachdb/errors"
	"github.com/tidwall/btree"
	"github.com/xwb1989/sqlparser"
	"mit.edu/dsg/vexec/catalog"
	"mit.edu/dsg/vexec/common"
	"mit.edu/dsg/vexec/planner"
	"mit.edu/dsg/vexec/storage"
)

// outputItem computes one select item of a grouped query: either an aggregate over the group's rows or a grouping
// expression evaluated on any row of the group.
type outputItem struct {
	agg    *planner.AggregateClause
	scalar planner.Expr
}

type rowGroup struct {
	key  []common.Value
	rows [][]common.Value
}

func isGrouped(sel *sqlparser.Select) bool {
	if len(sel.GroupBy) > 0 {
		return true
	}
	for _, item := range sel.SelectExprs {
		if e, ok := item.(*sqlparser.AliasedExpr); ok && planner.IsAggregate(e.Expr) {
			return true
		}
	}
	return false
}

// aggregate evaluates the select list of a query with GROUP BY or aggregate functions. Plain select items must
// repeat a GROUP BY expression. Groups come out ordered by key.
func aggregate(sel *sqlparser.Select, in relation) ([][]common.Value, catalog.Schema, error) {
	keys := make([]planner.Expr, len(sel.GroupBy))
	keyText := make(map[string]bool, len(sel.GroupBy))
	for i, g := range sel.GroupBy {
		e, err := planner.ResolveExpr(g, in.scope)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "group by")
		}
		keys[i] = e
		keyText[sqlparser.String(g)] = true
	}

	var items []outputItem
	var schema catalog.Schema
	for _, item := range sel.SelectExprs {
		e, ok := item.(*sqlparser.AliasedExpr)
		if !ok {
			return nil, nil, errors.Newf("%s is not allowed in a grouped query", sqlparser.String(item))
		}
		name := e.As.String()
		if planner.IsAggregate(e.Expr) {
			clause, err := planner.ResolveAggregate(e.Expr, in.scope)
			if err != nil {
				return nil, nil, err
			}
			items = append(items, outputItem{agg: &clause})
			if name == "" {
				name = clause.Name
			}
			schema = append(schema, catalog.Column{Name: name, Type: clause.OutputType()})
			continue
		}
		if !keyText[sqlparser.String(e.Expr)] {
			return nil, nil, errors.Newf("%s must appear in GROUP BY or be used in an aggregate", sqlparser.String(e.Expr))
		}
		scalar, err := planner.ResolveExpr(e.Expr, in.scope)
		if err != nil {
			return nil, nil, err
		}
		items = append(items, outputItem{scalar: scalar})
		if name == "" {
			name = columnName(e.Expr)
		}
		schema = append(schema, catalog.Column{Name: name, Type: scalar.OutputType()})
	}

	groups := btree.NewBTreeG(func(a, b *rowGroup) bool { return compareRows(a.key, b.key) < 0 })
	for _, row := range in.rows {
		key := evalAll(keys, row)
		g, ok := groups.Get(&rowGroup{key: key})
		if !ok {
			g = &rowGroup{key: key}
			groups.Set(g)
		}
		g.rows = append(g.rows, row)
	}
	// Without GROUP BY there is exactly one group, even over no rows.
	if len(keys) == 0 && groups.Len() == 0 {
		groups.Set(&rowGroup{})
	}

	var out [][]common.Value
	groups.Scan(func(g *rowGroup) bool {
		row := make([]common.Value, len(items))
		for i, item := range items {
			if item.agg != nil {
				row[i] = evalAggregate(*item.agg, g.rows)
			} else {
				row[i] = item.scalar.Eval(storage.FromValues(g.rows[0]...))
			}
		}
		out = append(out, row)
		return true
	})
	return out, schema, nil
}

func evalAggregate(c planner.AggregateClause, rows [][]common.Value) common.Value {
	if c.Expr == nil {
		return common.NewIntValue(int64(len(rows)))
	}
	var count, sum int64
	var best common.Value
	found := false
	for _, row := range rows {
		v := c.Expr.Eval(storage.FromValues(row...))
		if v.IsNull() {
			continue
		}
		count++
		switch c.Type {
		case planner.AggSum:
			sum += v.IntValue()
		case planner.AggMin:
			if !found || v.Compare(best) < 0 {
				best = v
			}
		case planner.AggMax:
			if !found || v.Compare(best) > 0 {
				best = v
			}
		}
		found = true
	}
	switch {
	case c.Type == planner.AggCount:
		return common.NewIntValue(count)
	case !found && c.OutputType() == common.StringType:
		return common.NewNullString()
	case !found:
		return common.NewNullInt()
	case c.Type == planner.AggSum:
		return common.NewIntValue(sum)
	}
	return best
}

func columnName(e sqlparser.Expr) string {
	if col, ok := e.(*sqlparser.ColName); ok {
		return col.Name.String()
	}
	return sqlparser.String(e)
}
