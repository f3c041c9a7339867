package operatortest

import (
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"mit.edu/dsg/vexec/catalog"
	"mit.edu/dsg/vexec/common"
	"mit.edu/dsg/vexec/connector"
	"mit.edu/dsg/vexec/storage"
)

// DefaultRowsPerBlock is the block size of tuple files written by the harness.
const DefaultRowsPerBlock = 64

// WriteTupleFile writes rows to a new tuple file at path.
func WriteTupleFile(path string, schema catalog.Schema, rows [][]common.Value, rowsPerBlock int) error {
	tuples := make([]storage.Tuple, len(rows))
	for i, row := range rows {
		if len(row) != len(schema) {
			return errors.Newf("row %d has %d values, schema has %d columns", i, len(row), len(schema))
		}
		tuples[i] = storage.FromValues(row...)
	}
	_, err := storage.WriteTupleFile(path, storage.NewRawTupleDesc(schema.Types()), rowsPerBlock, tuples)
	return err
}

// CreateTable writes rows to a tuple file at path and registers them with the reference runner as table name.
func (h *Harness) CreateTable(path, name string, schema catalog.Schema, rows [][]common.Value) {
	h.helper()
	require.NoError(h.T, WriteTupleFile(path, schema, rows, DefaultRowsPerBlock), "write %s", path)
	require.NoError(h.T, h.Runner.CreateTable(name, schema))
	require.NoError(h.T, h.Runner.InsertRows(name, rows))
}

// FileSplits divides the tuple file at path into n splits.
func (h *Harness) FileSplits(path string, n int) []connector.Split {
	h.helper()
	splits, err := connector.MakeFileSplits(path, n)
	require.NoError(h.T, err)
	return splits
}
