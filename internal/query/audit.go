package query

import (
	"context"
	"database/sql"
	"time"
)

// AuditEntry is one user_queries row. SQL is nil when nothing was executed.
type AuditEntry struct {
	UserID      string    `json:"user_id"`
	Question    string    `json:"query_text"`
	SQL         *string   `json:"generated_sql"`
	ResultCount int       `json:"result_count"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// SQLAuditLog writes user_queries through database/sql.
type SQLAuditLog struct {
	db *sql.DB
}

func NewSQLAuditLog(db *sql.DB) *SQLAuditLog {
	return &SQLAuditLog{db: db}
}

func (a *SQLAuditLog) Record(ctx context.Context, e AuditEntry) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO user_queries (user_id, query_text, generated_sql, result_count) VALUES ($1, $2, $3, $4)`,
		e.UserID, e.Question, e.SQL, e.ResultCount)
	return err
}

// Recent returns the latest questions of a user, newest first.
func (a *SQLAuditLog) Recent(ctx context.Context, userID string, limit int) ([]AuditEntry, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT user_id, query_text, generated_sql, result_count, created_at FROM user_queries
		 WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AuditEntry
	for rows.Next() {
		var (
			e  AuditEntry
			ns sql.NullString
		)
		if err := rows.Scan(&e.UserID, &e.Question, &ns, &e.ResultCount, &e.CreatedAt); err != nil {
			return nil, err
		}
		if ns.Valid {
			e.SQL = &ns.String
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
