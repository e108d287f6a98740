package catalog

import (
	"fmt"
	"strings"
)

// Prompt renders the queryable part of the catalog for a language model:
// tables, columns with types, and relationships.
func (c *Catalog) Prompt() string {
	var b strings.Builder
	b.WriteString("Схема базы данных (PostgreSQL):\n")
	for _, t := range c.Queryable() {
		fmt.Fprintf(&b, "\nТаблица %s", t.Name)
		if t.Description != "" {
			fmt.Fprintf(&b, " (%s)", t.Description)
		}
		b.WriteString(":\n")
		for _, col := range t.VisibleColumns() {
			fmt.Fprintf(&b, "  - %s %s", col.Name, col.Type)
			if col.Nullable {
				b.WriteString(" NULL")
			}
			if col.Description != "" {
				fmt.Fprintf(&b, " -- %s", col.Description)
			}
			b.WriteString("\n")
		}
	}

	var rels []string
	for _, t := range c.Queryable() {
		for _, fk := range t.ForeignKeys {
			rels = append(rels, fmt.Sprintf("  %s.%s -> %s.%s", t.Name, fk.Column, fk.RefTable, fk.RefColumn))
		}
	}
	if len(rels) > 0 {
		b.WriteString("\nСвязи:\n")
		b.WriteString(strings.Join(rels, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}

// CompactPrompt is the short form used when the full prompt failed:
// one "table(col, col)" line per table.
func (c *Catalog) CompactPrompt() string {
	var b strings.Builder
	for _, t := range c.Queryable() {
		names := make([]string, 0, len(t.Columns))
		for _, col := range t.VisibleColumns() {
			names = append(names, col.Name)
		}
		fmt.Fprintf(&b, "%s(%s)\n", t.Name, strings.Join(names, ", "))
	}
	return b.String()
}
