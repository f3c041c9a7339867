package planner

import (
	"fmt"

	"mit.edu/dsg/vexec/catalog"
	"mit.edu/dsg/vexec/common"
)

// TableScanNode reads tuple files. It has no children; the files to read arrive at run time as splits addressed
// to this node's ID.
type TableScanNode struct {
	id           PlanNodeID
	TableName    string
	outputSchema catalog.Schema
}

func NewTableScanNode(id PlanNodeID, tableName string, outputSchema catalog.Schema) *TableScanNode {
	return &TableScanNode{
		id:           id,
		TableName:    tableName,
		outputSchema: outputSchema,
	}
}

func (n *TableScanNode) ID() PlanNodeID {
	return n.id
}

func (n *TableScanNode) OutputSchema() catalog.Schema {
	return n.outputSchema
}

func (n *TableScanNode) Children() []PlanNode {
	return nil
}

func (n *TableScanNode) String() string {
	return fmt.Sprintf("TableScan: %s%s", n.TableName, n.outputSchema)
}

// ValuesNode produces a fixed list of rows. It is a leaf that never takes splits.
type ValuesNode struct {
	id           PlanNodeID
	Rows         [][]common.Value
	outputSchema catalog.Schema
}

func NewValuesNode(id PlanNodeID, outputSchema catalog.Schema, rows [][]common.Value) *ValuesNode {
	types := outputSchema.Types()
	for i, row := range rows {
		common.Assert(len(row) == len(types), "values row %d has %d columns, schema has %d", i, len(row), len(types))
		for j, v := range row {
			common.Assert(v.Type() == types[j], "values row %d column %d is %s, schema says %s", i, j, v.Type(), types[j])
		}
	}
	return &ValuesNode{
		id:           id,
		Rows:         rows,
		outputSchema: outputSchema,
	}
}

func (n *ValuesNode) ID() PlanNodeID {
	return n.id
}

func (n *ValuesNode) OutputSchema() catalog.Schema {
	return n.outputSchema
}

func (n *ValuesNode) Children() []PlanNode {
	return nil
}

func (n *ValuesNode) String() string {
	return fmt.Sprintf("Values: %d rows", len(n.Rows))
}
