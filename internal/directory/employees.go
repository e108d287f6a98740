// Package directory keeps the reference data around shift reports: the
// employee list, expenses booked outside a shift and per-user key/values.
package directory

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var ErrNotFound = errors.New("not found")

// DB is the subset of pgxpool.Pool the stores use.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Employee struct {
	Code      string    `json:"employee_code" validate:"required,max=32"`
	FullName  string    `json:"full_name" validate:"required,max=200"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

var employeeCode = regexp.MustCompile(`^[A-Za-zА-Яа-яЁё]+\d+$`)

// ParseEmployees reads a pasted list: each entry is a code (letters then
// digits) plus a name in any order; a line without a code is joined with
// the next one.
func ParseEmployees(text string) []Employee {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	var out []Employee
	for i := 0; i < len(lines); i++ {
		if e, ok := parseEmployee(lines[i]); ok {
			out = append(out, e)
			continue
		}
		if i+1 < len(lines) {
			if e, ok := parseEmployee(lines[i] + " " + lines[i+1]); ok {
				out = append(out, e)
				i++
			}
		}
	}
	return out
}

func parseEmployee(line string) (Employee, bool) {
	tokens := strings.FieldsFunc(line, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var (
		code  string
		name  []string
		title = cases.Title(language.Russian)
	)
	for _, tok := range tokens {
		if code == "" && employeeCode.MatchString(tok) {
			code = strings.ToUpper(tok)
			continue
		}
		if employeeCode.MatchString(tok) {
			continue
		}
		name = append(name, title.String(tok))
	}
	if code == "" || len(name) == 0 {
		return Employee{}, false
	}
	return Employee{Code: code, FullName: strings.Join(name, " ")}, true
}

// ImportStats counts the outcome of an import.
type ImportStats struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
}

type EmployeeStore struct {
	db DB
}

func NewEmployeeStore(db DB) *EmployeeStore {
	return &EmployeeStore{db: db}
}

const upsertEmployee = `
	INSERT INTO employees (employee_code, full_name)
	VALUES ($1, $2)
	ON CONFLICT (employee_code) DO UPDATE
	SET full_name = EXCLUDED.full_name, updated_at = now()
	RETURNING (xmax = 0)`

// Import upserts employees by code, refreshing names of existing ones.
func (s *EmployeeStore) Import(ctx context.Context, employees []Employee) (ImportStats, error) {
	var stats ImportStats
	if len(employees) == 0 {
		return stats, nil
	}
	batch := &pgx.Batch{}
	for _, e := range employees {
		batch.Queue(upsertEmployee, e.Code, e.FullName)
	}
	br := s.db.SendBatch(ctx, batch)
	defer br.Close()
	for range employees {
		var inserted bool
		if err := br.QueryRow().Scan(&inserted); err != nil {
			return stats, err
		}
		if inserted {
			stats.Added++
		} else {
			stats.Updated++
		}
	}
	return stats, br.Close()
}

func (s *EmployeeStore) Add(ctx context.Context, e Employee) error {
	_, err := s.Import(ctx, []Employee{e})
	return err
}

func (s *EmployeeStore) Delete(ctx context.Context, code string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM employees WHERE employee_code = $1`, strings.ToUpper(code))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *EmployeeStore) Clear(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM employees`)
	return tag.RowsAffected(), err
}

func (s *EmployeeStore) Get(ctx context.Context, code string) (*Employee, error) {
	rows, err := s.db.Query(ctx, `SELECT employee_code, full_name, created_at, updated_at FROM employees WHERE employee_code = $1`, strings.ToUpper(code))
	if err != nil {
		return nil, err
	}
	e, err := pgx.CollectExactlyOneRow(rows, scanEmployee)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *EmployeeStore) List(ctx context.Context, limit, offset int) ([]Employee, error) {
	rows, err := s.db.Query(ctx, `SELECT employee_code, full_name, created_at, updated_at FROM employees ORDER BY full_name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanEmployee)
}

func (s *EmployeeStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM employees`).Scan(&n)
	return n, err
}

// Search matches code or name, case-insensitively.
func (s *EmployeeStore) Search(ctx context.Context, q string, limit int) ([]Employee, error) {
	pattern := "%" + strings.TrimSpace(q) + "%"
	rows, err := s.db.Query(ctx, `
		SELECT employee_code, full_name, created_at, updated_at FROM employees
		WHERE employee_code ILIKE $1 OR full_name ILIKE $1
		ORDER BY full_name LIMIT $2`, pattern, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanEmployee)
}

func scanEmployee(row pgx.CollectableRow) (Employee, error) {
	var e Employee
	err := row.Scan(&e.Code, &e.FullName, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}
