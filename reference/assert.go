package reference

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mit.edu/dsg/vexec/common"
	"mit.edu/dsg/vexec/vector"
)

type tHelper interface {
	Helper()
}

// AssertResults checks that actual holds the same rows as the result of sql, in any order. A query the runner
// cannot evaluate fails the test immediately; a mismatch is reported with a diff and the test continues.
func (r *QueryRunner) AssertResults(t require.TestingT, sql string, actual arrow.Record) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	expected, rows, ok := r.prepare(t, sql, actual)
	if !ok {
		return false
	}
	return assertSameRows(t, sql, expected.Rows, rows)
}

// AssertResultsOrdered is AssertResults plus an order check: the values of the sortingKeys columns must appear in
// the same sequence as in the result of sql, which should therefore carry an ORDER BY on those columns. Rows that
// tie on every sorting key may come in any order.
func (r *QueryRunner) AssertResultsOrdered(t require.TestingT, sql string, actual arrow.Record, sortingKeys []int) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	expected, rows, ok := r.prepare(t, sql, actual)
	if !ok {
		return false
	}
	for _, k := range sortingKeys {
		if k < 0 || k >= len(expected.Schema) {
			require.Failf(t, "invalid sorting key", "sorting key %d is out of range for %d columns", k, len(expected.Schema))
		}
	}
	if !assertSameRows(t, sql, expected.Rows, rows) {
		return false
	}
	want := formatRows(project(expected.Rows, sortingKeys))
	got := formatRows(project(rows, sortingKeys))
	if diff := cmp.Diff(want, got); diff != "" {
		return assert.Fail(t, "query results are not in the expected order",
			"query %q, sorting keys %v (-expected +actual):\n%s", sql, sortingKeys, diff)
	}
	return true
}

func (r *QueryRunner) prepare(t require.TestingT, sql string, actual arrow.Record) (*Result, [][]common.Value, bool) {
	expected, err := r.Execute(sql)
	require.NoError(t, err, "reference query %q", sql)

	got, err := vector.SchemaFromArrow(actual.Schema())
	require.NoError(t, err)
	if !sameTypes(got, expected.Schema) {
		return nil, nil, assert.Fail(t, "result types differ",
			"query %q returns %s, actual result has %s", sql, expected.Schema, got)
	}
	return expected, vector.Rows(actual), true
}

func assertSameRows(t require.TestingT, sql string, expected, actual [][]common.Value) bool {
	missing, extra := diffRows(expected, actual)
	if len(missing) == 0 && len(extra) == 0 {
		return true
	}
	diff := cmp.Diff(formatRows(sortedRows(expected)), formatRows(sortedRows(actual)))
	summary := fmt.Sprintf("%d expected rows, %d actual rows: %d missing, %d unexpected",
		len(expected), len(actual), len(missing), len(extra))
	return assert.Fail(t, "query results differ", "query %q: %s (-expected +actual):\n%s", sql, summary, diff)
}

func project(rows [][]common.Value, cols []int) [][]common.Value {
	out := make([][]common.Value, len(rows))
	for i, row := range rows {
		out[i] = make([]common.Value, len(cols))
		for j, c := range cols {
			out[i][j] = row[c]
		}
	}
	return out
}
