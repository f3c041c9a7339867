package catalog

import (
	"fmt"
	"strings"

	"mit.edu/dsg/vexec/common"
)

// Catalog is the in-memory registry of the tables the reference query runner can see. Tables are immutable once
// added; a test that needs a different schema registers a table under a new name or builds a new catalog.
//
// Table and column names are matched case-insensitively, the same way the SQL front end treats identifiers.
type Catalog struct {
	nextID uint32
	tables []*Table

	tableMap  map[string]*Table   // lower(TableName) -> Table
	columnMap map[string][]*Table // lower(ColumnName) -> tables containing that column
}

// Column represents the basic unit of a table schema.
type Column struct {
	Name string
	Type common.Type
}

func (c Column) String() string {
	return fmt.Sprintf("%s:%s", c.Name, c.Type)
}

// Schema is an ordered list of named, typed columns. It is the output schema of every plan node and the layout of
// every batch the engine produces.
type Schema []Column

// NewSchema pairs names with types; both slices must have the same length.
func NewSchema(names []string, types []common.Type) Schema {
	common.Assert(len(names) == len(types), "schema has %d names but %d types", len(names), len(types))
	s := make(Schema, len(names))
	for i := range names {
		s[i] = Column{Name: names[i], Type: types[i]}
	}
	return s
}

// Names returns the column names in order.
func (s Schema) Names() []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = c.Name
	}
	return out
}

// Types returns the column types in order.
func (s Schema) Types() []common.Type {
	out := make([]common.Type, len(s))
	for i, c := range s {
		out[i] = c.Type
	}
	return out
}

// Index returns the position of the first column called name.
func (s Schema) Index(name string) (int, bool) {
	for i, c := range s {
		if strings.EqualFold(c.Name, name) {
			return i, true
		}
	}
	return -1, false
}

// Equal reports whether both schemas have the same names and types in the same order.
func (s Schema) Equal(other Schema) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

func (s Schema) String() string {
	parts := make([]string, len(s))
	for i, c := range s {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Table groups a schema under a unique ID and name.
type Table struct {
	ID     uint32
	Name   string
	Schema Schema
}

func (t *Table) String() string {
	return fmt.Sprintf("%s%s", t.Name, t.Schema)
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		tableMap:  make(map[string]*Table),
		columnMap: make(map[string][]*Table),
	}
}

// AddTable registers a new table. If a table with that name already exists, it returns DuplicateObjectError.
func (c *Catalog) AddTable(tableName string, schema Schema) (*Table, error) {
	key := strings.ToLower(tableName)
	if _, exists := c.tableMap[key]; exists {
		return nil, common.NewError(common.DuplicateObjectError, "table '%s' already exists", tableName)
	}
	seen := make(map[string]bool, len(schema))
	for _, col := range schema {
		colKey := strings.ToLower(col.Name)
		if seen[colKey] {
			return nil, common.NewError(common.DuplicateObjectError, "column '%s' appears twice in table '%s'", col.Name, tableName)
		}
		seen[colKey] = true
	}

	// id 0 is reserved for INVALID
	c.nextID++
	t := &Table{ID: c.nextID, Name: tableName, Schema: schema}

	c.tables = append(c.tables, t)
	c.tableMap[key] = t
	for _, col := range schema {
		colKey := strings.ToLower(col.Name)
		c.columnMap[colKey] = append(c.columnMap[colKey], t)
	}
	return t, nil
}

// GetTableMetadata fetches the table with the given name, or NoSuchObjectError.
func (c *Catalog) GetTableMetadata(tableName string) (*Table, error) {
	table, exists := c.tableMap[strings.ToLower(tableName)]
	if !exists {
		return nil, common.NewError(common.NoSuchObjectError, "table '%s' does not exist", tableName)
	}
	return table, nil
}

// FindTablesWithColumnName returns all tables that contain a column with the given name.
func (c *Catalog) FindTablesWithColumnName(columnName string) []*Table {
	return c.columnMap[strings.ToLower(columnName)]
}

// Tables returns every registered table in registration order.
func (c *Catalog) Tables() []*Table {
	return c.tables
}
