// Package catalog describes every persisted table. Block parsers take their
// column order from it and the query translator is confined to it.
package catalog

import (
	"sort"
	"strings"
)

// Column is one table column.
type Column struct {
	Name        string
	Type        string
	Nullable    bool
	Description string
	// Managed columns are filled by the database or the coordinator, never by a parser.
	Managed bool
	// Hidden columns are never shown to the language model nor accepted in queries.
	Hidden bool
}

// ForeignKey links a column to another table.
type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
	OnDelete  string
}

// Table describes one relation.
type Table struct {
	Name        string
	Description string
	Columns     []Column
	ForeignKeys []ForeignKey
	// Queryable tables may be referenced by generated SQL.
	Queryable bool
}

// Column looks up a column by name.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// RecordColumns lists, in order, the columns a block parser supplies.
func (t Table) RecordColumns() []string {
	var cols []string
	for _, c := range t.Columns {
		if !c.Managed {
			cols = append(cols, c.Name)
		}
	}
	return cols
}

// VisibleColumns are the columns exposed to query generation.
func (t Table) VisibleColumns() []Column {
	var cols []Column
	for _, c := range t.Columns {
		if !c.Hidden {
			cols = append(cols, c)
		}
	}
	return cols
}

// Catalog is an immutable set of tables. It is safe for concurrent use.
type Catalog struct {
	tables []Table
	index  map[string]int
}

// New builds a catalog from table descriptions.
func New(tables ...Table) *Catalog {
	c := &Catalog{tables: tables, index: make(map[string]int, len(tables))}
	for i, t := range tables {
		c.index[strings.ToLower(t.Name)] = i
	}
	return c
}

// Table returns a table by name, case-insensitively.
func (c *Catalog) Table(name string) (Table, bool) {
	i, ok := c.index[strings.ToLower(name)]
	if !ok {
		return Table{}, false
	}
	return c.tables[i], true
}

// Tables returns every table in declaration order.
func (c *Catalog) Tables() []Table {
	return append([]Table(nil), c.tables...)
}

// Queryable returns the tables generated SQL may read.
func (c *Catalog) Queryable() []Table {
	var out []Table
	for _, t := range c.tables {
		if t.Queryable {
			out = append(out, t)
		}
	}
	return out
}

// Names returns sorted table names.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.tables))
	for _, t := range c.tables {
		names = append(names, t.Name)
	}
	sort.Strings(names)
	return names
}
