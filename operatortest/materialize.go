package operatortest

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"mit.edu/dsg/vexec/catalog"
	"mit.edu/dsg/vexec/vector"
)

// Materialize concatenates batches into a single record with schema. Batch i lands right after the rows of
// batches 0..i-1. The batches are released; the caller owns the result. No batches give an empty record.
func Materialize(schema catalog.Schema, batches []arrow.Record, pool memory.Allocator) arrow.Record {
	if pool == nil {
		pool = memory.DefaultAllocator
	}
	total := 0
	for _, rec := range batches {
		total += int(rec.NumRows())
	}

	b := vector.NewBuilder(schema, total, pool)
	defer b.Release()
	offset := 0
	for _, rec := range batches {
		n := int(rec.NumRows())
		b.CopyRows(offset, rec, 0, n)
		offset += n
		rec.Release()
	}
	return b.NewRecord()
}
