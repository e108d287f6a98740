package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/deadloked8999/exeltest/internal/classifier"
	"github.com/deadloked8999/exeltest/internal/directory"
	"github.com/deadloked8999/exeltest/internal/grid"
	"github.com/deadloked8999/exeltest/internal/ingest"
	"github.com/deadloked8999/exeltest/internal/nlsql"
	"github.com/deadloked8999/exeltest/internal/notification"
	"github.com/deadloked8999/exeltest/internal/query"
	"github.com/deadloked8999/exeltest/internal/resource"
	"github.com/deadloked8999/exeltest/internal/validation"
)

type fakeIngester struct {
	owner ingest.Owner
	name  string
	data  []byte
	err   error
	meta  struct {
		date  *time.Time
		venue *string
	}
}

func (f *fakeIngester) Ingest(_ context.Context, data []byte, owner ingest.Owner, name string) (*ingest.IngestionResult, error) {
	f.owner, f.name, f.data = owner, name, data
	if f.err != nil {
		return nil, f.err
	}
	return &ingest.IngestionResult{FileID: 7, RowCount: 4}, nil
}

func (f *fakeIngester) SetReportMeta(_ context.Context, _ string, _ int64, d *time.Time, v *string) error {
	f.meta.date, f.meta.venue = d, v
	return f.err
}

func (f *fakeIngester) Delete(context.Context, string, int64) error { return f.err }

type fakeAsker struct{ err error }

func (f fakeAsker) Ask(_ context.Context, requester, q string) (*query.Answer, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &query.Answer{Question: q, Columns: []string{"n"}, Rows: [][]any{{1}}, RowCount: 1}, nil
}

type fakeEmployees struct {
	imported []directory.Employee
}

func (f *fakeEmployees) Import(_ context.Context, e []directory.Employee) (directory.ImportStats, error) {
	f.imported = e
	return directory.ImportStats{Added: len(e)}, nil
}
func (f *fakeEmployees) Add(context.Context, directory.Employee) error { return nil }
func (f *fakeEmployees) Delete(context.Context, string) error         { return directory.ErrNotFound }
func (f *fakeEmployees) Clear(context.Context) (int64, error)         { return 0, nil }
func (f *fakeEmployees) List(context.Context, int, int) ([]directory.Employee, error) {
	return nil, nil
}
func (f *fakeEmployees) Search(context.Context, string, int) ([]directory.Employee, error) {
	return nil, nil
}
func (f *fakeEmployees) Get(_ context.Context, code string) (*directory.Employee, error) {
	if code != "A7" {
		return nil, directory.ErrNotFound
	}
	return &directory.Employee{Code: "A7", FullName: "Иванова Анна"}, nil
}
func (f *fakeEmployees) Count(context.Context) (int, error) { return 7, nil }

type fakeOffShift struct {
	listedFor string
}

func (f *fakeOffShift) Add(context.Context, directory.OffShiftExpense) (int64, error) { return 1, nil }
func (f *fakeOffShift) List(_ context.Context, userID, _ string, _, _ time.Time) ([]directory.OffShiftExpense, error) {
	f.listedFor = userID
	return nil, nil
}
func (f *fakeOffShift) Delete(context.Context, string, int64) error { return nil }

type fakeCustomData map[string]string

func (f fakeCustomData) Set(_ context.Context, userID, key, value string) error {
	f[userID+"/"+key] = value
	return nil
}
func (f fakeCustomData) Get(_ context.Context, userID, key string) (string, error) {
	v, ok := f[userID+"/"+key]
	if !ok {
		return "", directory.ErrNotFound
	}
	return v, nil
}

type fakeHistory struct {
	userID string
	limit  int
}

func (f *fakeHistory) Recent(_ context.Context, userID string, limit int) ([]query.AuditEntry, error) {
	f.userID, f.limit = userID, limit
	return []query.AuditEntry{{UserID: userID, Question: "доход за июнь"}}, nil
}

type fakeEvents struct {
	published []notification.Event
}

func (f *fakeEvents) Publish(_ string, ev notification.Event) int {
	f.published = append(f.published, ev)
	return 1
}
func (f *fakeEvents) ServeSSE(w http.ResponseWriter, _ *http.Request, userID string) {
	w.Write([]byte(userID))
}
func (f *fakeEvents) ServeWS(http.ResponseWriter, *http.Request, string) {}

func newTestRouter(d *Deps) http.Handler {
	return NewRouter(d)
}

func do(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode %q: %v", rec.Body.String(), err)
		}
	}
	return rec, body
}

func withUser(req *http.Request) *http.Request {
	req.Header.Set(validation.HeaderUserID, "42")
	req.Header.Set(validation.HeaderUserName, "Анна")
	return req
}

func TestHealth(t *testing.T) {
	rm := resource.NewResourceManager(nil)
	rm.AddResource("db", resource.PingFunc(func(context.Context) error { return errors.New("down") }))
	rm.Check(context.Background())

	rec, body := do(t, newTestRouter(&Deps{Health: rm}), httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable || body["success"] != false {
		t.Fatalf("status %d body %v", rec.Code, body)
	}
}

func TestMissingIdentity(t *testing.T) {
	rec, _ := do(t, newTestRouter(&Deps{}), httptest.NewRequest(http.MethodGet, "/api/reports", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func uploadRequest(t *testing.T, name string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(content)
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/reports", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return withUser(req)
}

func TestEventsIdentityFromQuery(t *testing.T) {
	h := newTestRouter(&Deps{Events: &fakeEvents{}})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events?user_id=42", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "42" {
		t.Fatalf("status %d body %q", rec.Code, rec.Body.String())
	}
	rec, _ = do(t, h, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d", rec.Code)
	}
}

func TestUploadReport(t *testing.T) {
	ing := &fakeIngester{}
	ev := &fakeEvents{}
	h := newTestRouter(&Deps{Ingester: ing, Events: ev, MaxUploadBytes: 1 << 20})

	rec, body := do(t, h, uploadRequest(t, "smena.csv", []byte("ДОХОДЫ;;\nБар;;300\n")))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d body %v", rec.Code, body)
	}
	if ing.owner.ID != "42" || ing.owner.DisplayName != "Анна" || ing.name != "smena.csv" {
		t.Errorf("ingest called with %+v %q", ing.owner, ing.name)
	}
	data := body["data"].(map[string]any)
	if data["file_id"].(float64) != 7 {
		t.Errorf("data = %v", data)
	}
	if len(ev.published) != 1 || ev.published[0].Type != notification.EventReportIngested {
		t.Errorf("published = %+v", ev.published)
	}

	rec, _ = do(t, h, uploadRequest(t, "smena.pdf", []byte("%PDF")))
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("pdf status = %d", rec.Code)
	}

	ing.err = classifier.ErrNoRecognizedBlocks
	rec, body = do(t, h, uploadRequest(t, "smena.csv", []byte("a;b\n")))
	if rec.Code != http.StatusUnprocessableEntity || !strings.Contains(body["error"].(string), "блока") {
		t.Errorf("status %d body %v", rec.Code, body)
	}
}

func TestUpdateMeta(t *testing.T) {
	ing := &fakeIngester{}
	h := newTestRouter(&Deps{Ingester: ing})

	req := withUser(httptest.NewRequest(http.MethodPatch, "/api/reports/3/meta",
		strings.NewReader(`{"report_date":"14.03.2025","club_name":" Гагарин "}`)))
	rec, _ := do(t, h, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ing.meta.date == nil || ing.meta.date.Format("2006-01-02") != "2025-03-14" || *ing.meta.venue != "Гагарин" {
		t.Errorf("meta = %v %v", ing.meta.date, ing.meta.venue)
	}

	req = withUser(httptest.NewRequest(http.MethodPatch, "/api/reports/3/meta", strings.NewReader(`{"report_date":"вчера"}`)))
	if rec, _ = do(t, h, req); rec.Code != http.StatusBadRequest {
		t.Errorf("bad date status = %d", rec.Code)
	}

	ing.err = ingest.ErrFileNotFound
	req = withUser(httptest.NewRequest(http.MethodDelete, "/api/reports/3", nil))
	if rec, _ = do(t, h, req); rec.Code != http.StatusNotFound {
		t.Errorf("delete missing status = %d", rec.Code)
	}
}

func TestAsk(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("translate: %w", &nlsql.RejectedError{Reason: "table secrets is not available"}), http.StatusUnprocessableEntity},
		{nlsql.ErrTranslationUnavailable, http.StatusServiceUnavailable},
		{&query.BoundError{Kind: query.ErrExecutionTimeout, Limit: "5s"}, http.StatusGatewayTimeout},
		{&query.BoundError{Kind: query.ErrRowLimitExceeded, Limit: "500"}, http.StatusUnprocessableEntity},
	}
	for _, c := range cases {
		h := newTestRouter(&Deps{Asker: fakeAsker{err: c.err}})
		req := withUser(httptest.NewRequest(http.MethodPost, "/api/questions", strings.NewReader(`{"question":"Сколько выручки?"}`)))
		req.Header.Set("Content-Type", "application/json")
		rec, body := do(t, h, req)
		if rec.Code != c.want {
			t.Errorf("%v: status %d, want %d (%v)", c.err, rec.Code, c.want, body)
		}
	}

	h := newTestRouter(&Deps{Asker: fakeAsker{}})
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/questions", strings.NewReader(`{"question":""}`)))
	if rec, _ := do(t, h, req); rec.Code != http.StatusBadRequest {
		t.Errorf("empty question status = %d", rec.Code)
	}
}

func TestImportEmployees(t *testing.T) {
	emp := &fakeEmployees{}
	h := newTestRouter(&Deps{Employees: emp})

	req := withUser(httptest.NewRequest(http.MethodPost, "/api/employees/import",
		strings.NewReader("Д7 Иванова Анна\nБ12 петров пётр\n")))
	req.Header.Set("Content-Type", "text/plain")
	rec, body := do(t, h, req)
	if rec.Code != http.StatusOK || len(emp.imported) != 2 {
		t.Fatalf("status %d body %v imported %+v", rec.Code, body, emp.imported)
	}
	if emp.imported[1].Code != "Б12" {
		t.Errorf("code = %q", emp.imported[1].Code)
	}

	req = withUser(httptest.NewRequest(http.MethodDelete, "/api/employees?code=x1", nil))
	if rec, _ = do(t, h, req); rec.Code != http.StatusNotFound {
		t.Errorf("delete missing status = %d", rec.Code)
	}
}

func TestEmployeeLookup(t *testing.T) {
	h := newTestRouter(&Deps{Employees: &fakeEmployees{}})

	rec, body := do(t, h, withUser(httptest.NewRequest(http.MethodGet, "/api/employees/A7", nil)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %v", rec.Code, body)
	}
	if row, _ := body["rows"].(map[string]any); row["full_name"] != "Иванова Анна" {
		t.Errorf("body = %v", body)
	}
	if rec, _ = do(t, h, withUser(httptest.NewRequest(http.MethodGet, "/api/employees/X9", nil))); rec.Code != http.StatusNotFound {
		t.Errorf("missing employee status = %d", rec.Code)
	}
	if _, body = do(t, h, withUser(httptest.NewRequest(http.MethodGet, "/api/employees", nil))); body["total"] != float64(7) {
		t.Errorf("list body = %v", body)
	}
}

func TestCustomData(t *testing.T) {
	h := newTestRouter(&Deps{CustomData: fakeCustomData{}})

	req := withUser(httptest.NewRequest(http.MethodPut, "/api/custom-data/club", strings.NewReader(`{"value":"Мята"}`)))
	if rec, body := do(t, h, req); rec.Code != http.StatusOK {
		t.Fatalf("put status %d body %v", rec.Code, body)
	}
	rec, body := do(t, h, withUser(httptest.NewRequest(http.MethodGet, "/api/custom-data/club", nil)))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status %d", rec.Code)
	}
	if row, _ := body["rows"].(map[string]any); row["value"] != "Мята" {
		t.Errorf("body = %v", body)
	}
	if rec, _ = do(t, h, withUser(httptest.NewRequest(http.MethodGet, "/api/custom-data/other", nil))); rec.Code != http.StatusNotFound {
		t.Errorf("missing key status = %d", rec.Code)
	}
}

func TestQuestionHistory(t *testing.T) {
	hist := &fakeHistory{}
	h := newTestRouter(&Deps{History: hist})
	rec, body := do(t, h, withUser(httptest.NewRequest(http.MethodGet, "/api/questions/history?limit=5", nil)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %v", rec.Code, body)
	}
	if hist.userID != "42" || hist.limit != 5 {
		t.Errorf("recent called with %q, %d", hist.userID, hist.limit)
	}
	if rows, _ := body["rows"].([]any); len(rows) != 1 {
		t.Errorf("body = %v", body)
	}
}

func TestOffShiftListScopedToRequester(t *testing.T) {
	store := &fakeOffShift{}
	h := newTestRouter(&Deps{OffShift: store})
	rec, body := do(t, h, withUser(httptest.NewRequest(http.MethodGet, "/api/offshift-expenses?club=Myata&from=2025-06-01&to=2025-06-30", nil)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %v", rec.Code, body)
	}
	if store.listedFor != "42" {
		t.Errorf("listed for %q, want requester 42", store.listedFor)
	}
}

func TestUserFriendlyError(t *testing.T) {
	cases := map[error]int{
		validation.ErrMissingIdentity:                 http.StatusUnauthorized,
		ingest.ErrTooLarge:                            http.StatusRequestEntityTooLarge,
		&grid.SourceError{Err: errors.New("garbage")}: http.StatusUnprocessableEntity,
		ingest.ErrDuplicateFile:                       http.StatusConflict,
		query.ErrEmptyQuestion:                        http.StatusBadRequest,
		errors.New("boom"):                            http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got, _ := userFriendlyError(err); got != want {
			t.Errorf("%v: %d, want %d", err, got, want)
		}
	}
}

func TestParseDate(t *testing.T) {
	for _, s := range []string{"2025-06-01", "01.06.2025"} {
		d, err := parseDate(s)
		if err != nil || d.Format("2006-01-02") != "2025-06-01" {
			t.Errorf("%s: %v %v", s, d, err)
		}
	}
	if _, err := parseDate("июнь"); err == nil {
		t.Error("expected error")
	}
}
