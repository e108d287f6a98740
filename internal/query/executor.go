// Package query runs validated statements read-only and answers questions
// end to end, auditing every one.
package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/deadloked8999/exeltest/internal/query")

var (
	ErrExecutionTimeout = errors.New("query execution timed out")
	ErrRowLimitExceeded = errors.New("query returned too many rows")
)

// BoundError reports which execution bound a statement hit.
type BoundError struct {
	Kind  error
	Limit string
}

func (e *BoundError) Error() string { return fmt.Sprintf("%v (limit %s)", e.Kind, e.Limit) }

func (e *BoundError) Unwrap() error { return e.Kind }

// pq code for statement_timeout and user cancellation
const queryCanceled = "57014"

// Result is the full, bounded output of one statement.
type Result struct {
	Columns  []string      `json:"columns"`
	Rows     [][]any       `json:"rows"`
	Duration time.Duration `json:"duration"`
}

// Executor runs statements on database/sql with the postgres driver.
type Executor struct {
	db      *sql.DB
	maxRows int
	timeout time.Duration
}

// Open connects with lib/pq.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

func NewExecutor(db *sql.DB, maxRows int, timeout time.Duration) *Executor {
	return &Executor{db: db, maxRows: maxRows, timeout: timeout}
}

// Execute runs stmt in a read-only transaction that is always rolled back.
// Results over the row cap are discarded, never truncated.
func (e *Executor) Execute(ctx context.Context, stmt string) (res *Result, err error) {
	ctx, span := tracer.Start(ctx, "query.Execute")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := time.Now()
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, e.classify(ctx, err)
	}
	defer tx.Rollback()

	if e.timeout > 0 {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", e.timeout.Milliseconds())); err != nil {
			return nil, e.classify(ctx, err)
		}
	}

	rows, err := tx.QueryContext(ctx, stmt)
	if err != nil {
		return nil, e.classify(ctx, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res = &Result{Columns: cols}
	for rows.Next() {
		if e.maxRows > 0 && len(res.Rows) >= e.maxRows {
			return nil, &BoundError{Kind: ErrRowLimitExceeded, Limit: fmt.Sprint(e.maxRows)}
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, e.classify(ctx, err)
		}
		for i, v := range vals {
			vals[i] = normalize(v)
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, e.classify(ctx, err)
	}
	res.Duration = time.Since(start)
	span.SetAttributes(attribute.Int("query.rows", len(res.Rows)))
	return res, nil
}

func (e *Executor) classify(ctx context.Context, err error) error {
	return classifyError(ctx, err, e.timeout)
}

func classifyError(ctx context.Context, err error, timeout time.Duration) error {
	var pqErr *pq.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &pqErr) && pqErr.Code == queryCanceled) {
		return &BoundError{Kind: ErrExecutionTimeout, Limit: timeout.String()}
	}
	return err
}

// normalize turns driver values into JSON friendly ones.
func normalize(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format("2006-01-02")
		}
		return t.Format(time.RFC3339)
	default:
		return v
	}
}
