package reference

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/cockroachdb/errors"
	"github.com/go-kit/log"
	"mit.edu/dsg/vexec/catalog"
	"mit.edu/dsg/vexec/common"
	"mit.edu/dsg/vexec/vector"
)

// Result is the output of a reference query.
type Result struct {
	Schema catalog.Schema
	Rows   [][]common.Value
}

// QueryRunner evaluates a small SQL subset over in-memory tables row by row. It is the oracle the engine's output
// is compared against, so it favors obviously correct evaluation over speed.
//
// Supported: SELECT with expressions, aliases, * and t.*; FROM one or more tables (comma or [INNER] JOIN ... ON);
// WHERE; GROUP BY with count, sum, min and max, and HAVING on output names; ORDER BY on output names, input columns
// or positions; LIMIT with optional OFFSET.
type QueryRunner struct {
	catalog *catalog.Catalog
	data    map[uint32][][]common.Value
	logger  log.Logger
}

// NewQueryRunner returns a runner with no tables. A nil logger discards output.
func NewQueryRunner(logger log.Logger) *QueryRunner {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &QueryRunner{
		catalog: catalog.NewCatalog(),
		data:    make(map[uint32][][]common.Value),
		logger:  logger,
	}
}

// Catalog exposes the tables registered so far.
func (r *QueryRunner) Catalog() *catalog.Catalog {
	return r.catalog
}

// CreateTable registers a table and loads the rows of batches into it. Every batch must have schema's types.
func (r *QueryRunner) CreateTable(name string, schema catalog.Schema, batches ...arrow.Record) error {
	var rows [][]common.Value
	for i, rec := range batches {
		got, err := vector.SchemaFromArrow(rec.Schema())
		if err != nil {
			return errors.Wrapf(err, "batch %d of %s", i, name)
		}
		if !sameTypes(got, schema) {
			return errors.Newf("batch %d of %s has schema %s, table has %s", i, name, got, schema)
		}
		rows = append(rows, vector.Rows(rec)...)
	}
	t, err := r.catalog.AddTable(name, schema)
	if err != nil {
		return err
	}
	r.data[t.ID] = rows
	return nil
}

// InsertRows appends rows to an existing table.
func (r *QueryRunner) InsertRows(name string, rows [][]common.Value) error {
	t, err := r.catalog.GetTableMetadata(name)
	if err != nil {
		return err
	}
	for i, row := range rows {
		if len(row) != len(t.Schema) {
			return errors.Newf("row %d has %d values, %s has %d columns", i, len(row), name, len(t.Schema))
		}
		for c, v := range row {
			if v.Type() != t.Schema[c].Type {
				return errors.Newf("row %d column %s has type %s, expected %s", i, t.Schema[c].Name, v.Type(), t.Schema[c].Type)
			}
		}
	}
	r.data[t.ID] = append(r.data[t.ID], rows...)
	return nil
}

func (r *QueryRunner) tableRows(name string) (*catalog.Table, [][]common.Value, error) {
	t, err := r.catalog.GetTableMetadata(name)
	if err != nil {
		return nil, nil, err
	}
	return t, r.data[t.ID], nil
}

func sameTypes(a, b catalog.Schema) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Type != b[i].Type {
			return false
		}
	}
	return true
}
