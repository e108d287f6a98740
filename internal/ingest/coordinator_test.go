package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/deadloked8999/exeltest/internal/blocks"
	"github.com/deadloked8999/exeltest/internal/classifier"
	"github.com/deadloked8999/exeltest/internal/grid"
)

type memFile struct {
	row    FileRow
	result IngestionResult
}

type memStore struct {
	mu        sync.Mutex
	nextID    int64
	files     map[int64]*memFile
	records   map[int64]map[string][][]any
	begun     int
	rollbacks int
	failCopy  bool
}

func newMemStore() *memStore {
	return &memStore{files: map[int64]*memFile{}, records: map[int64]map[string][][]any{}}
}

func (m *memStore) FindByHash(_ context.Context, ownerID, hash string) (*IngestionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, f := range m.files {
		if f.row.Owner.ID == ownerID && f.row.Hash == hash {
			res := f.result
			res.FileID = id
			return &res, nil
		}
	}
	return nil, nil
}

func (m *memStore) Begin(context.Context) (Tx, error) {
	m.mu.Lock()
	m.begun++
	m.mu.Unlock()
	return &memTx{store: m, staged: map[string][][]any{}}, nil
}

func (m *memStore) UpdateMeta(_ context.Context, ownerID string, fileID int64, d *time.Time, venue *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[fileID]
	if !ok || f.row.Owner.ID != ownerID {
		return ErrFileNotFound
	}
	if d != nil {
		f.row.ReportDate = d
	}
	if venue != nil {
		f.row.Venue = *venue
	}
	return nil
}

func (m *memStore) DeleteFile(_ context.Context, ownerID string, fileID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[fileID]
	if !ok || f.row.Owner.ID != ownerID {
		return ErrFileNotFound
	}
	delete(m.files, fileID)
	delete(m.records, fileID)
	return nil
}

type memTx struct {
	store  *memStore
	file   *FileRow
	id     int64
	staged map[string][][]any
	done   bool
}

func (t *memTx) InsertFile(_ context.Context, f FileRow) (int64, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.nextID++
	t.id = t.store.nextID
	t.file = &f
	return t.id, nil
}

func (t *memTx) CopyRecords(_ context.Context, table string, columns []string, fileID int64, rows [][]any) (int64, error) {
	if t.store.failCopy {
		return 0, errors.New("copy failed")
	}
	for _, r := range rows {
		if len(r) != len(columns) {
			return 0, errors.New("row width does not match columns")
		}
	}
	t.staged[table] = append(t.staged[table], rows...)
	return int64(len(rows)), nil
}

func (t *memTx) Commit(context.Context) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.done = true
	t.store.files[t.id] = &memFile{row: *t.file, result: *t.file.Result}
	t.store.records[t.id] = t.staged
	return nil
}

func (t *memTx) Rollback(context.Context) error {
	if t.done {
		return nil
	}
	t.store.mu.Lock()
	t.store.rollbacks++
	t.store.mu.Unlock()
	return nil
}

func csvReport(lines ...string) []byte {
	return []byte(strings.Join(lines, "\n") + "\n")
}

var owner = Owner{ID: "42", DisplayName: "Ирина"}

func TestIngestCleanReport(t *testing.T) {
	store := newMemStore()
	c := NewCoordinator(store, Options{})
	data := csvReport(
		"Клуб: Гагарин;;",
		"Отчет за 14.03.2025;;",
		"ДОХОДЫ;;",
		"Бар;;300",
		"Кухня;;300",
		"Кальян;;400",
		"ИТОГО;;1000",
	)
	res, err := c.Ingest(context.Background(), data, owner, "smena.csv")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Duplicate || res.FileID == 0 {
		t.Fatalf("result = %+v", res)
	}
	// the title rows above the first header are reported, nothing else
	if len(res.Warnings) != 1 || res.Warnings[0].Kind != blocks.KindUnclassified || res.Warnings[0].Row != 1 {
		t.Errorf("warnings = %+v", res.Warnings)
	}
	if len(res.Verdicts) != 1 || !res.Verdicts[0].OK {
		t.Errorf("verdicts = %+v", res.Verdicts)
	}
	if res.RowCount != 4 {
		t.Errorf("row count = %d, want 4", res.RowCount)
	}
	if res.Venue != "Гагарин" {
		t.Errorf("venue = %q", res.Venue)
	}
	if res.ReportDate == nil || res.ReportDate.Format("2006-01-02") != "2025-03-14" {
		t.Errorf("report date = %v", res.ReportDate)
	}
	rows := store.records[res.FileID]["income_records"]
	if len(rows) != 4 {
		t.Fatalf("stored income rows = %d", len(rows))
	}
}

func TestIngestMismatchStillStores(t *testing.T) {
	store := newMemStore()
	c := NewCoordinator(store, Options{})
	res, err := c.Ingest(context.Background(), csvReport(
		"РАСХОДЫ;",
		"Такси;300",
		"Охрана;300",
		"Хозтовары;350",
		"Итого;1000",
	), owner, "a.csv")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Kind != blocks.KindReconciliation {
		t.Fatalf("warnings = %+v", res.Warnings)
	}
	if res.RowCount == 0 {
		t.Error("row count should be positive")
	}
	if len(res.Verdicts) != 1 || res.Verdicts[0].OK {
		t.Errorf("verdicts = %+v", res.Verdicts)
	}
}

func TestIngestDuplicateReturnsPriorFile(t *testing.T) {
	store := newMemStore()
	c := NewCoordinator(store, Options{})
	data := csvReport("РАСХОДЫ;", "Такси;300", "Итого;300")

	first, err := c.Ingest(context.Background(), data, owner, "a.csv")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := c.Ingest(context.Background(), data, owner, "renamed.csv")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !second.Duplicate || second.FileID != first.FileID {
		t.Fatalf("second = %+v, first id %d", second, first.FileID)
	}
	if second.RowCount != first.RowCount {
		t.Errorf("row count = %d, want %d", second.RowCount, first.RowCount)
	}
	if len(store.files) != 1 || store.begun != 1 {
		t.Errorf("files = %d, transactions = %d", len(store.files), store.begun)
	}

	// another owner gets its own copy
	other, err := c.Ingest(context.Background(), data, Owner{ID: "7"}, "a.csv")
	if err != nil {
		t.Fatalf("other owner: %v", err)
	}
	if other.Duplicate || other.FileID == first.FileID {
		t.Errorf("other = %+v", other)
	}
}

func TestIngestRejectsWithoutWriting(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		file string
		want error
	}{
		{"no headers", csvReport("просто;текст", "без;заголовков"), "x.csv", classifier.ErrNoRecognizedBlocks},
		{"broken workbook", []byte("PK\x03\x04garbage"), "x.xlsx", grid.ErrUnreadableSource},
		{"fake xlsx", []byte("plain text"), "x.xlsx", grid.ErrUnreadableSource},
		{"empty", nil, "x.csv", grid.ErrUnreadableSource},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemStore()
			_, err := NewCoordinator(store, Options{}).Ingest(context.Background(), tc.data, owner, tc.file)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if len(store.files) != 0 || store.begun != 0 {
				t.Errorf("store touched: files=%d tx=%d", len(store.files), store.begun)
			}
		})
	}
}

func TestIngestCopyFailureRollsBack(t *testing.T) {
	store := newMemStore()
	store.failCopy = true
	_, err := NewCoordinator(store, Options{}).Ingest(context.Background(),
		csvReport("РАСХОДЫ;", "Такси;300", "Итого;300"), owner, "a.csv")
	if err == nil {
		t.Fatal("expected error")
	}
	if len(store.files) != 0 || store.rollbacks != 1 {
		t.Errorf("files = %d, rollbacks = %d", len(store.files), store.rollbacks)
	}
}

func TestIngestSizeLimit(t *testing.T) {
	store := newMemStore()
	_, err := NewCoordinator(store, Options{MaxBytes: 8}).Ingest(context.Background(),
		csvReport("РАСХОДЫ;", "Такси;300"), owner, "a.csv")
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v", err)
	}
}

func TestKeepContent(t *testing.T) {
	store := newMemStore()
	data := csvReport("РАСХОДЫ;", "Такси;300", "Итого;300")
	res, err := NewCoordinator(store, Options{KeepContent: true}).Ingest(context.Background(), data, owner, "a.csv")
	if err != nil {
		t.Fatal(err)
	}
	if string(store.files[res.FileID].row.Content) != string(data) {
		t.Error("content not kept")
	}
}

func TestSetReportMetaAndDelete(t *testing.T) {
	store := newMemStore()
	c := NewCoordinator(store, Options{})
	res, err := c.Ingest(context.Background(), csvReport("РАСХОДЫ;", "Такси;300", "Итого;300"), owner, "a.csv")
	if err != nil {
		t.Fatal(err)
	}
	if res.ReportDate != nil {
		t.Fatalf("unexpected date %v", res.ReportDate)
	}
	d := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	venue := "Гагарин"
	if err := c.SetReportMeta(context.Background(), owner.ID, res.FileID, &d, &venue); err != nil {
		t.Fatal(err)
	}
	f := store.files[res.FileID].row
	if f.ReportDate == nil || !f.ReportDate.Equal(d) || f.Venue != venue {
		t.Errorf("meta = %v %q", f.ReportDate, f.Venue)
	}
	if err := c.SetReportMeta(context.Background(), "someone", res.FileID, &d, nil); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("foreign owner update err = %v", err)
	}
	if err := c.Delete(context.Background(), owner.ID, res.FileID); err != nil {
		t.Fatal(err)
	}
	if _, ok := store.records[res.FileID]; ok {
		t.Error("records survived delete")
	}
}
