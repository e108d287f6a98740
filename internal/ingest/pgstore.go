package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/deadloked8999/exeltest/internal/catalog"
	"github.com/deadloked8999/exeltest/internal/checksum"
)

const uniqueViolation = "23505"

// UploadedFile is one row of uploaded_files as listed to its owner.
type UploadedFile struct {
	ID         int64      `json:"id"`
	UserID     string     `json:"user_id"`
	Username   string     `json:"username,omitempty"`
	FileName   string     `json:"file_name"`
	FileHash   string     `json:"file_hash"`
	RowCount   int        `json:"row_count"`
	ReportDate *time.Time `json:"report_date,omitempty"`
	ClubName   string     `json:"club_name,omitempty"`
	UploadedAt time.Time  `json:"uploaded_at"`
}

// BlockRows holds the stored records of one derived table for a file.
type BlockRows struct {
	Table   string
	Columns []string
	Rows    [][]any
}

// PgStore is the PostgreSQL Store.
type PgStore struct {
	pool *pgxpool.Pool
	cat  *catalog.Catalog
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool, cat: catalog.Default()}
}

func (s *PgStore) FindByHash(ctx context.Context, ownerID, hash string) (*IngestionResult, error) {
	var (
		id         int64
		rowCount   int
		reportDate *time.Time
		club       *string
		raw        []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, row_count, report_date, club_name, ingest_result
		FROM uploaded_files
		WHERE user_id = $1 AND file_hash = $2`, ownerID, hash).
		Scan(&id, &rowCount, &reportDate, &club, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	res := &IngestionResult{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, res); err != nil {
			return nil, fmt.Errorf("decode stored result for file %d: %w", id, err)
		}
	}
	res.FileID = id
	res.RowCount = rowCount
	res.ReportDate = reportDate
	if club != nil {
		res.Venue = *club
	}
	return res, nil
}

func (s *PgStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgTx{tx: tx}, nil
}

func (s *PgStore) UpdateMeta(ctx context.Context, ownerID string, fileID int64, reportDate *time.Time, venue *string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE uploaded_files
		SET report_date = COALESCE($3, report_date),
		    club_name   = COALESCE($4, club_name)
		WHERE id = $1 AND user_id = $2`, fileID, ownerID, reportDate, venue)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrFileNotFound
	}
	return nil
}

func (s *PgStore) DeleteFile(ctx context.Context, ownerID string, fileID int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM uploaded_files WHERE id = $1 AND user_id = $2`, fileID, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrFileNotFound
	}
	return nil
}

const fileColumns = `id, user_id, COALESCE(username, ''), file_name, file_hash, row_count, report_date, COALESCE(club_name, ''), uploaded_at`

func scanFiles(rows pgx.Rows) ([]UploadedFile, error) {
	defer rows.Close()
	var out []UploadedFile
	for rows.Next() {
		var f UploadedFile
		if err := rows.Scan(&f.ID, &f.UserID, &f.Username, &f.FileName, &f.FileHash, &f.RowCount, &f.ReportDate, &f.ClubName, &f.UploadedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListFiles returns the owner's uploads, newest first. A non-positive limit
// lists everything.
func (s *PgStore) ListFiles(ctx context.Context, ownerID string, limit int) ([]UploadedFile, error) {
	q := `SELECT ` + fileColumns + ` FROM uploaded_files WHERE user_id = $1 ORDER BY uploaded_at DESC, id DESC`
	args := []any{ownerID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return scanFiles(rows)
}

// ReportDates lists the distinct report dates the owner has uploaded,
// optionally for one venue.
func (s *PgStore) ReportDates(ctx context.Context, ownerID, venue string) ([]time.Time, error) {
	q := `SELECT DISTINCT report_date FROM uploaded_files WHERE user_id = $1 AND report_date IS NOT NULL`
	args := []any{ownerID}
	if venue != "" {
		q += ` AND club_name ILIKE $2`
		args = append(args, venue)
	}
	rows, err := s.pool.Query(ctx, q+` ORDER BY report_date DESC`, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[time.Time])
}

// File returns one upload of the owner.
func (s *PgStore) File(ctx context.Context, ownerID string, fileID int64) (*UploadedFile, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+fileColumns+` FROM uploaded_files WHERE id = $1 AND user_id = $2`, fileID, ownerID)
	if err != nil {
		return nil, err
	}
	files, err := scanFiles(rows)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrFileNotFound
	}
	return &files[0], nil
}

// FilesByPeriod returns the owner's uploads whose report date falls in
// [from, to], optionally restricted to one venue.
func (s *PgStore) FilesByPeriod(ctx context.Context, ownerID string, from, to time.Time, venue string) ([]UploadedFile, error) {
	q := `SELECT ` + fileColumns + ` FROM uploaded_files
		WHERE user_id = $1 AND report_date BETWEEN $2 AND $3`
	args := []any{ownerID, from, to}
	if venue != "" {
		q += ` AND club_name ILIKE $4`
		args = append(args, venue)
	}
	rows, err := s.pool.Query(ctx, q+` ORDER BY report_date, id`, args...)
	if err != nil {
		return nil, err
	}
	return scanFiles(rows)
}

// LoadBlocks reads back every derived record of a file, one entry per
// table that holds rows, in catalog order.
func (s *PgStore) LoadBlocks(ctx context.Context, fileID int64) ([]BlockRows, error) {
	var out []BlockRows
	for _, t := range s.cat.Tables() {
		if _, ok := t.Column("file_id"); !ok {
			continue
		}
		cols := t.RecordColumns()
		q := fmt.Sprintf(`SELECT %s FROM %s WHERE file_id = $1 ORDER BY id`,
			strings.Join(quoteAll(cols), ", "), pgx.Identifier{t.Name}.Sanitize())
		rows, err := s.pool.Query(ctx, q, fileID)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", t.Name, err)
		}
		br := BlockRows{Table: t.Name, Columns: cols}
		for rows.Next() {
			vals, err := rows.Values()
			if err != nil {
				rows.Close()
				return nil, err
			}
			br.Rows = append(br.Rows, vals)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
		if len(br.Rows) > 0 {
			out = append(out, br)
		}
	}
	return out, nil
}

// LoadContent returns the stored bytes of a file after checking them
// against the recorded hash.
func (s *PgStore) LoadContent(ctx context.Context, ownerID string, fileID int64) ([]byte, string, error) {
	var (
		name, hash string
		content    []byte
	)
	err := s.pool.QueryRow(ctx, `SELECT file_name, file_hash, file_content FROM uploaded_files WHERE id = $1 AND user_id = $2`, fileID, ownerID).
		Scan(&name, &hash, &content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", ErrFileNotFound
	}
	if err != nil {
		return nil, "", err
	}
	if content == nil {
		return nil, name, fmt.Errorf("%w: content of file %d was not kept", ErrFileNotFound, fileID)
	}
	if ok, err := checksum.NewChecksumMatcher(hash).Match(content); err != nil || !ok {
		return nil, name, fmt.Errorf("stored content of file %d does not match its hash", fileID)
	}
	return content, name, nil
}

func quoteAll(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgx.Identifier{c}.Sanitize()
	}
	return out
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) InsertFile(ctx context.Context, f FileRow) (int64, error) {
	var result []byte
	if f.Result != nil {
		b, err := json.Marshal(f.Result)
		if err != nil {
			return 0, err
		}
		result = b
	}
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO uploaded_files
			(user_id, username, file_name, file_hash, row_count, report_date, club_name, file_content, ingest_result)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)
		RETURNING id`,
		f.Owner.ID, nullString(f.Owner.DisplayName), f.DisplayName, f.Hash, f.RowCount,
		f.ReportDate, f.Venue, f.Content, result).Scan(&id)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return 0, ErrDuplicateFile
	}
	return id, err
}

func (t *pgTx) CopyRecords(ctx context.Context, table string, columns []string, fileID int64, rows [][]any) (int64, error) {
	cols := append([]string{"file_id"}, columns...)
	src := pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		vals := make([]any, 0, len(cols))
		vals = append(vals, fileID)
		for _, v := range rows[i] {
			pv, err := pgValue(v)
			if err != nil {
				return nil, err
			}
			vals = append(vals, pv)
		}
		return vals, nil
	})
	return t.tx.CopyFrom(ctx, pgx.Identifier{table}, cols, src)
}

func (t *pgTx) Commit(ctx context.Context) error { return t.tx.Commit(ctx) }

func (t *pgTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

// pgValue converts record values to types the COPY encoder accepts.
func pgValue(v any) (any, error) {
	switch d := v.(type) {
	case decimal.Decimal:
		var n pgtype.Numeric
		if err := n.Scan(d.String()); err != nil {
			return nil, err
		}
		return n, nil
	case *decimal.Decimal:
		if d == nil {
			return nil, nil
		}
		return pgValue(*d)
	default:
		return v, nil
	}
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
