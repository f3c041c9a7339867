// Package vector converts between the engine's row values and Arrow columnar batches.
package vector

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/cockroachdb/errors"
	"mit.edu/dsg/vexec/catalog"
	"mit.edu/dsg/vexec/common"
)

// ArrowType maps an engine type to its Arrow data type.
func ArrowType(t common.Type) arrow.DataType {
	switch t {
	case common.IntType:
		return arrow.PrimitiveTypes.Int64
	case common.StringType:
		return arrow.BinaryTypes.String
	}
	panic("unknown field type")
}

// CommonType maps an Arrow data type back to the engine type.
func CommonType(dt arrow.DataType) (common.Type, error) {
	switch dt.ID() {
	case arrow.INT64:
		return common.IntType, nil
	case arrow.STRING:
		return common.StringType, nil
	}
	return 0, errors.Newf("arrow type %s has no engine equivalent", dt)
}

// ArrowSchema converts a plan schema into the schema of its output batches. Every column is nullable.
func ArrowSchema(schema catalog.Schema) *arrow.Schema {
	fields := make([]arrow.Field, len(schema))
	for i, c := range schema {
		fields[i] = arrow.Field{Name: c.Name, Type: ArrowType(c.Type), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

// SchemaFromArrow converts an Arrow schema into a plan schema.
func SchemaFromArrow(s *arrow.Schema) (catalog.Schema, error) {
	out := make(catalog.Schema, s.NumFields())
	for i, f := range s.Fields() {
		t, err := CommonType(f.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "column %s", f.Name)
		}
		out[i] = catalog.Column{Name: f.Name, Type: t}
	}
	return out, nil
}

// ValueAt reads row i of arr as an engine value. Strings are copied out of the Arrow buffer.
func ValueAt(arr arrow.Array, i int) common.Value {
	switch a := arr.(type) {
	case *array.Int64:
		if a.IsNull(i) {
			return common.NewNullInt()
		}
		return common.NewIntValue(a.Value(i))
	case *array.String:
		if a.IsNull(i) {
			return common.NewNullString()
		}
		return common.NewStringValue(string([]byte(a.Value(i))))
	}
	panic("unsupported arrow array " + arr.DataType().String())
}

// RowAt reads row i of rec.
func RowAt(rec arrow.Record, i int) []common.Value {
	row := make([]common.Value, rec.NumCols())
	for c := range row {
		row[c] = ValueAt(rec.Column(c), i)
	}
	return row
}

// Rows reads every row of rec.
func Rows(rec arrow.Record) [][]common.Value {
	rows := make([][]common.Value, rec.NumRows())
	for i := range rows {
		rows[i] = RowAt(rec, i)
	}
	return rows
}
