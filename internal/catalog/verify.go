package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ErrSchemaDrift means the live database lacks tables or columns the catalog declares.
var ErrSchemaDrift = errors.New("database schema differs from catalog")

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// LoadLive reads table and column names of a schema from information_schema.
func LoadLive(ctx context.Context, q Querier, schema string) (map[string][]string, error) {
	rows, err := q.Query(ctx, `
		SELECT table_name, column_name
		FROM information_schema.columns
		WHERE table_schema = $1
		ORDER BY table_name, ordinal_position`, schema)
	if err != nil {
		return nil, fmt.Errorf("query information_schema: %w", err)
	}
	defer rows.Close()

	live := make(map[string][]string)
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return nil, err
		}
		live[table] = append(live[table], column)
	}
	return live, rows.Err()
}

// Diff lists catalog tables and columns missing from live.
func (c *Catalog) Diff(live map[string][]string) []string {
	var problems []string
	for _, t := range c.tables {
		cols, ok := live[t.Name]
		if !ok {
			problems = append(problems, "missing table "+t.Name)
			continue
		}
		have := make(map[string]bool, len(cols))
		for _, col := range cols {
			have[strings.ToLower(col)] = true
		}
		for _, col := range t.Columns {
			if !have[strings.ToLower(col.Name)] {
				problems = append(problems, fmt.Sprintf("missing column %s.%s", t.Name, col.Name))
			}
		}
	}
	sort.Strings(problems)
	return problems
}

// Verify compares the catalog with the live schema.
func (c *Catalog) Verify(ctx context.Context, q Querier, schema string) error {
	live, err := LoadLive(ctx, q, schema)
	if err != nil {
		return err
	}
	if problems := c.Diff(live); len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrSchemaDrift, strings.Join(problems, "; "))
	}
	return nil
}
