// Package ingest stores shift report workbooks: hash, classify, parse and
// persist every derived record in one transaction.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/deadloked8999/exeltest/internal/blocks"
	"github.com/deadloked8999/exeltest/internal/checksum"
	"github.com/deadloked8999/exeltest/internal/classifier"
	"github.com/deadloked8999/exeltest/internal/grid"
	"github.com/deadloked8999/exeltest/internal/logger"
)

var tracer = otel.Tracer("github.com/deadloked8999/exeltest/internal/ingest")

var (
	ErrTooLarge      = errors.New("file exceeds upload limit")
	ErrFileNotFound  = errors.New("uploaded file not found")
	ErrDuplicateFile = errors.New("file with this content already uploaded")
)

// Owner is the opaque requester identity attached to an upload.
type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
}

// IngestionResult describes one ingestion. A duplicate submission returns
// the result recorded when the content was first stored.
type IngestionResult struct {
	FileID     int64                      `json:"file_id"`
	Duplicate  bool                       `json:"duplicate"`
	RowCount   int                        `json:"row_count"`
	Verdicts   []blocks.Verdict           `json:"per_block_verdicts"`
	Warnings   []blocks.ValidationWarning `json:"warnings"`
	ReportDate *time.Time                 `json:"report_date,omitempty"`
	Venue      string                     `json:"venue,omitempty"`
	RunID      string                     `json:"run_id,omitempty"`
}

// FileRow is the uploaded_files row written for a new ingestion.
type FileRow struct {
	Owner       Owner
	DisplayName string
	Hash        string
	RowCount    int
	ReportDate  *time.Time
	Venue       string
	Content     []byte
	Result      *IngestionResult
}

// Store is the persistence the coordinator needs.
type Store interface {
	// FindByHash returns the stored result for owner+hash, or nil.
	FindByHash(ctx context.Context, ownerID, hash string) (*IngestionResult, error)
	Begin(ctx context.Context) (Tx, error)
	UpdateMeta(ctx context.Context, ownerID string, fileID int64, reportDate *time.Time, venue *string) error
	DeleteFile(ctx context.Context, ownerID string, fileID int64) error
}

// Tx is one write transaction. Rollback after Commit is a no-op.
type Tx interface {
	InsertFile(ctx context.Context, f FileRow) (int64, error)
	CopyRecords(ctx context.Context, table string, columns []string, fileID int64, rows [][]any) (int64, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Options configure a Coordinator.
type Options struct {
	Blocks      blocks.Options
	MaxBytes    int64
	KeepContent bool
}

// Coordinator runs ingestions. It holds no per-request state, so one value
// serves concurrent requests.
type Coordinator struct {
	store Store
	opts  Options
	log   *logrus.Entry
}

func NewCoordinator(store Store, opts Options) *Coordinator {
	if opts.Blocks.Tolerance.IsZero() {
		opts.Blocks = blocks.DefaultOptions()
	}
	return &Coordinator{store: store, opts: opts, log: logger.Module("ingest")}
}

// Ingest stores one workbook for owner. Unreadable bytes and sheets without
// any known header abort before anything is written.
func (c *Coordinator) Ingest(ctx context.Context, data []byte, owner Owner, displayName string) (res *IngestionResult, err error) {
	runID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "ingest.Ingest", trace.WithAttributes(
		attribute.String("ingest.run_id", runID),
		attribute.String("ingest.file_name", displayName),
		attribute.Int("ingest.bytes", len(data)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	log := c.log.WithFields(logrus.Fields{"run_id": runID, "file": displayName, "owner": owner.ID})
	if c.opts.MaxBytes > 0 && int64(len(data)) > c.opts.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}

	// 1. idempotency by content hash
	hash := checksum.Sum(data)
	log = log.WithField("hash", checksum.Short(hash))
	if prior, err := c.store.FindByHash(ctx, owner.ID, hash); err != nil {
		return nil, fmt.Errorf("check file hash: %w", err)
	} else if prior != nil {
		prior.Duplicate = true
		prior.RunID = runID
		log.WithField("file_id", prior.FileID).Info("duplicate submission, returning prior result")
		return prior, nil
	}

	// 2. grid, classification, parsing
	g, err := grid.Read(data, displayName)
	if err != nil {
		return nil, err
	}
	cls, err := classifier.Classify(g)
	if err != nil {
		return nil, err
	}
	parsed, sheetWarns, err := blocks.ParseAll(g, cls, c.opts.Blocks)
	if err != nil {
		return nil, err
	}

	res = &IngestionResult{
		ReportDate: cls.Meta.ReportDate,
		Venue:      cls.Meta.Venue,
		RunID:      runID,
		Warnings:   append([]blocks.ValidationWarning(nil), sheetWarns...),
	}
	for _, p := range parsed {
		res.RowCount += len(p.Records)
		res.Verdicts = append(res.Verdicts, p.Verdict)
		res.Warnings = append(res.Warnings, p.Verdict.Warnings...)
	}

	// 3. one transaction for the file row and every record
	fileID, err := c.persist(ctx, FileRow{
		Owner:       owner,
		DisplayName: displayName,
		Hash:        hash,
		RowCount:    res.RowCount,
		ReportDate:  res.ReportDate,
		Venue:       res.Venue,
		Content:     c.content(data),
		Result:      res,
	}, parsed)
	if errors.Is(err, ErrDuplicateFile) {
		// a concurrent upload of the same bytes won the race
		prior, ferr := c.store.FindByHash(ctx, owner.ID, hash)
		if ferr == nil && prior != nil {
			prior.Duplicate = true
			prior.RunID = runID
			return prior, nil
		}
	}
	if err != nil {
		return nil, err
	}
	res.FileID = fileID
	span.SetAttributes(attribute.Int64("ingest.file_id", fileID), attribute.Int("ingest.row_count", res.RowCount))

	log.WithFields(logrus.Fields{
		"file_id":   fileID,
		"row_count": res.RowCount,
		"blocks":    len(parsed),
		"warnings":  len(res.Warnings),
	}).Info("file ingested")
	for _, w := range res.Warnings {
		log.WithFields(logrus.Fields{"block": w.Block, "kind": w.Kind, "row": w.Row}).Warn(w.Message)
	}
	return res, nil
}

func (c *Coordinator) content(data []byte) []byte {
	if !c.opts.KeepContent {
		return nil
	}
	return data
}

func (c *Coordinator) persist(ctx context.Context, f FileRow, parsed []blocks.Parsed) (int64, error) {
	tx, err := c.store.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	fileID, err := tx.InsertFile(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("insert uploaded file: %w", err)
	}
	for _, p := range parsed {
		if len(p.Records) == 0 {
			continue
		}
		n, err := tx.CopyRecords(ctx, p.Table, p.Columns, fileID, p.Rows())
		if err != nil {
			return 0, fmt.Errorf("copy %s: %w", p.Table, err)
		}
		if int(n) != len(p.Records) {
			return 0, fmt.Errorf("copy %s: wrote %d of %d rows", p.Table, n, len(p.Records))
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return fileID, nil
}

// SetReportMeta late-fills the report date and/or venue of a stored file.
// Nil arguments leave the column unchanged.
func (c *Coordinator) SetReportMeta(ctx context.Context, ownerID string, fileID int64, reportDate *time.Time, venue *string) error {
	if reportDate == nil && venue == nil {
		return nil
	}
	if err := c.store.UpdateMeta(ctx, ownerID, fileID, reportDate, venue); err != nil {
		return err
	}
	c.log.WithFields(logrus.Fields{"file_id": fileID, "owner": ownerID}).Info("report metadata updated")
	return nil
}

// Delete removes a file and, through foreign keys, all of its records.
func (c *Coordinator) Delete(ctx context.Context, ownerID string, fileID int64) error {
	if err := c.store.DeleteFile(ctx, ownerID, fileID); err != nil {
		return err
	}
	logger.Audit(fmt.Sprintf("uploaded file %d deleted by %s", fileID, ownerID))
	return nil
}
