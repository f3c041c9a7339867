package vector

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"mit.edu/dsg/vexec/catalog"
	"mit.edu/dsg/vexec/common"
	"mit.edu/dsg/vexec/storage"
)

// Builder accumulates rows of a fixed schema and produces Arrow records. Rows can be appended one at a time from
// tuples or copied in bulk from other records of the same schema.
type Builder struct {
	schema *arrow.Schema
	types  []common.Type
	rb     *array.RecordBuilder
	n      int
}

// NewBuilder returns a builder for schema with room reserved for capacity rows.
func NewBuilder(schema catalog.Schema, capacity int, pool memory.Allocator) *Builder {
	as := ArrowSchema(schema)
	b := &Builder{
		schema: as,
		types:  schema.Types(),
		rb:     array.NewRecordBuilder(pool, as),
	}
	b.Reserve(capacity)
	return b
}

// Reserve makes room for n more rows in every column.
func (b *Builder) Reserve(n int) {
	if n <= 0 {
		return
	}
	for i := range b.types {
		b.rb.Field(i).Reserve(n)
	}
}

// Schema returns the Arrow schema of the records this builder produces.
func (b *Builder) Schema() *arrow.Schema {
	return b.schema
}

// Len returns the number of rows appended since the last NewRecord.
func (b *Builder) Len() int {
	return b.n
}

// AppendValues appends one row.
func (b *Builder) AppendValues(row []common.Value) {
	common.Assert(len(row) == len(b.types), "row has %d values, builder has %d columns", len(row), len(b.types))
	for i, v := range row {
		b.appendValue(i, v)
	}
	b.n++
}

// AppendTuple appends the fields of t as one row.
func (b *Builder) AppendTuple(t storage.Tuple) {
	common.Assert(t.NumColumns() == len(b.types), "tuple has %d columns, builder has %d", t.NumColumns(), len(b.types))
	for i := range b.types {
		b.appendValue(i, t.GetValue(i))
	}
	b.n++
}

func (b *Builder) appendValue(i int, v common.Value) {
	common.Assert(v.Type() == b.types[i], "column %d expects %s, got %s", i, b.types[i], v.Type())
	switch fb := b.rb.Field(i).(type) {
	case *array.Int64Builder:
		if v.IsNull() {
			fb.AppendNull()
		} else {
			fb.Append(v.IntValue())
		}
	case *array.StringBuilder:
		if v.IsNull() {
			fb.AppendNull()
		} else {
			fb.Append(v.StringValue())
		}
	default:
		panic("unsupported column builder")
	}
}

// CopyRows copies n rows of src starting at srcOffset into this builder at destOffset. Rows are only ever
// appended, so destOffset must equal Len; passing it explicitly lets callers assert where each batch lands.
func (b *Builder) CopyRows(destOffset int, src arrow.Record, srcOffset, n int) {
	common.Assert(destOffset == b.n, "copy to offset %d of a builder holding %d rows", destOffset, b.n)
	common.Assert(int(src.NumCols()) == len(b.types), "source has %d columns, builder has %d", src.NumCols(), len(b.types))
	common.Assert(srcOffset >= 0 && n >= 0 && srcOffset+n <= int(src.NumRows()),
		"rows [%d, %d) out of range for a source of %d rows", srcOffset, srcOffset+n, src.NumRows())

	for c := range b.types {
		switch col := src.Column(c).(type) {
		case *array.Int64:
			fb, ok := b.rb.Field(c).(*array.Int64Builder)
			common.Assert(ok, "column %d type mismatch: source is int64", c)
			values := col.Int64Values()[srcOffset : srcOffset+n]
			var valid []bool
			if col.NullN() > 0 {
				valid = make([]bool, n)
				for i := range valid {
					valid[i] = col.IsValid(srcOffset + i)
				}
			}
			fb.AppendValues(values, valid)
		case *array.String:
			fb, ok := b.rb.Field(c).(*array.StringBuilder)
			common.Assert(ok, "column %d type mismatch: source is string", c)
			for i := srcOffset; i < srcOffset+n; i++ {
				if col.IsNull(i) {
					fb.AppendNull()
				} else {
					fb.Append(col.Value(i))
				}
			}
		default:
			panic("unsupported arrow array " + col.DataType().String())
		}
	}
	b.n += n
}

// NewRecord finishes the rows appended so far into a record and resets the builder for reuse.
func (b *Builder) NewRecord() arrow.Record {
	b.n = 0
	return b.rb.NewRecord()
}

// Release frees the builder's buffers.
func (b *Builder) Release() {
	b.rb.Release()
}

// MakeRecord builds a single record holding rows.
func MakeRecord(schema catalog.Schema, rows [][]common.Value, pool memory.Allocator) arrow.Record {
	b := NewBuilder(schema, len(rows), pool)
	defer b.Release()
	for _, row := range rows {
		b.AppendValues(row)
	}
	return b.NewRecord()
}
