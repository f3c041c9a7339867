package reference

import (
	"sort"
	"strings"

	"github.com/tidwall/btree"
	"mit.edu/dsg/vexec/common"
)

// compareRows orders rows column by column. Values of different types order by type, NULL sorts first within a
// type, and a shorter row sorts before a longer one with the same prefix.
func compareRows(a, b []common.Value) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i].Type() != b[i].Type() {
			if a[i].Type() < b[i].Type() {
				return -1
			}
			return 1
		}
		if c := a[i].Compare(b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

type multisetItem struct {
	row []common.Value
	seq int
}

// rowMultiset is a sorted bag of rows. Equal rows are kept apart by their insertion sequence.
type rowMultiset struct {
	tree *btree.BTreeG[multisetItem]
	next int
}

func newRowMultiset() *rowMultiset {
	less := func(a, b multisetItem) bool {
		if c := compareRows(a.row, b.row); c != 0 {
			return c < 0
		}
		return a.seq < b.seq
	}
	return &rowMultiset{tree: btree.NewBTreeG(less)}
}

func (m *rowMultiset) Add(row []common.Value) {
	m.tree.Set(multisetItem{row: row, seq: m.next})
	m.next++
}

// Remove deletes one copy of row and reports whether there was one.
func (m *rowMultiset) Remove(row []common.Value) bool {
	var found multisetItem
	ok := false
	m.tree.Ascend(multisetItem{row: row, seq: -1}, func(item multisetItem) bool {
		ok = compareRows(item.row, row) == 0
		found = item
		return false
	})
	if ok {
		m.tree.Delete(found)
	}
	return ok
}

func (m *rowMultiset) Len() int {
	return m.tree.Len()
}

// Rows returns the remaining rows in sorted order.
func (m *rowMultiset) Rows() [][]common.Value {
	rows := make([][]common.Value, 0, m.tree.Len())
	m.tree.Scan(func(item multisetItem) bool {
		rows = append(rows, item.row)
		return true
	})
	return rows
}

// diffRows matches expected against actual as multisets and returns the rows left over on each side.
func diffRows(expected, actual [][]common.Value) (missing, extra [][]common.Value) {
	ms := newRowMultiset()
	for _, row := range expected {
		ms.Add(row)
	}
	for _, row := range actual {
		if !ms.Remove(row) {
			extra = append(extra, row)
		}
	}
	return ms.Rows(), extra
}

func sortedRows(rows [][]common.Value) [][]common.Value {
	out := append([][]common.Value(nil), rows...)
	sort.SliceStable(out, func(i, j int) bool { return compareRows(out[i], out[j]) < 0 })
	return out
}

// FormatRow renders a row as "[1 'bob' NULL]".
func FormatRow(row []common.Value) string {
	parts := make([]string, len(row))
	for i, v := range row {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func formatRows(rows [][]common.Value) []string {
	out := make([]string, len(rows))
	for i, row := range rows {
		out[i] = FormatRow(row)
	}
	return out
}
