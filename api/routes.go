package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/deadloked8999/exeltest/internal/directory"
	"github.com/deadloked8999/exeltest/internal/ingest"
	"github.com/deadloked8999/exeltest/internal/notification"
	"github.com/deadloked8999/exeltest/internal/query"
	"github.com/deadloked8999/exeltest/internal/resource"
	"github.com/deadloked8999/exeltest/internal/validation"
)

type Ingester interface {
	Ingest(ctx context.Context, data []byte, owner ingest.Owner, displayName string) (*ingest.IngestionResult, error)
	SetReportMeta(ctx context.Context, ownerID string, fileID int64, reportDate *time.Time, venue *string) error
	Delete(ctx context.Context, ownerID string, fileID int64) error
}

type FileStore interface {
	ListFiles(ctx context.Context, ownerID string, limit int) ([]ingest.UploadedFile, error)
	File(ctx context.Context, ownerID string, fileID int64) (*ingest.UploadedFile, error)
	FilesByPeriod(ctx context.Context, ownerID string, from, to time.Time, venue string) ([]ingest.UploadedFile, error)
	LoadBlocks(ctx context.Context, fileID int64) ([]ingest.BlockRows, error)
	LoadContent(ctx context.Context, ownerID string, fileID int64) ([]byte, string, error)
	ReportDates(ctx context.Context, ownerID, venue string) ([]time.Time, error)
}

type Asker interface {
	Ask(ctx context.Context, requester, question string) (*query.Answer, error)
}

type Employees interface {
	Import(ctx context.Context, employees []directory.Employee) (directory.ImportStats, error)
	Add(ctx context.Context, e directory.Employee) error
	Get(ctx context.Context, code string) (*directory.Employee, error)
	Count(ctx context.Context) (int, error)
	Delete(ctx context.Context, code string) error
	Clear(ctx context.Context) (int64, error)
	List(ctx context.Context, limit, offset int) ([]directory.Employee, error)
	Search(ctx context.Context, q string, limit int) ([]directory.Employee, error)
}

type OffShift interface {
	Add(ctx context.Context, e directory.OffShiftExpense) (int64, error)
	List(ctx context.Context, userID, club string, from, to time.Time) ([]directory.OffShiftExpense, error)
	Delete(ctx context.Context, userID string, id int64) error
}

type CustomData interface {
	Set(ctx context.Context, userID, key, value string) error
	Get(ctx context.Context, userID, key string) (string, error)
}

// History is the per-user question audit.
type History interface {
	Recent(ctx context.Context, userID string, limit int) ([]query.AuditEntry, error)
}

// Events is the per-user push channel.
type Events interface {
	Publish(userID string, ev notification.Event) int
	ServeSSE(w http.ResponseWriter, r *http.Request, userID string)
	ServeWS(w http.ResponseWriter, r *http.Request, userID string)
}

type HealthReporter interface {
	Statuses() []resource.Status
	Healthy() bool
}

// Deps are the components behind the HTTP surface.
type Deps struct {
	Ingester   Ingester
	Files      FileStore
	Asker      Asker
	History    History
	Employees  Employees
	OffShift   OffShift
	CustomData CustomData
	Health     HealthReporter
	Events     Events
	// MaxUploadBytes bounds multipart bodies; the coordinator enforces the exact limit.
	MaxUploadBytes int64
}

func registerRoutes(r *mux.Router, d *Deps) {
	r.HandleFunc("/reports", UploadReportHandler(d.Ingester, d.Events, d.MaxUploadBytes)).Methods(http.MethodPost)
	r.HandleFunc("/reports", ListReportsHandler(d.Files)).Methods(http.MethodGet)
	r.HandleFunc("/reports/period/export", ExportPeriodHandler(d.Files)).Methods(http.MethodGet)
	r.HandleFunc("/reports/dates", ReportDatesHandler(d.Files)).Methods(http.MethodGet)
	r.HandleFunc("/reports/{id:[0-9]+}/content", DownloadReportHandler(d.Files)).Methods(http.MethodGet)
	r.HandleFunc("/reports/{id:[0-9]+}", DeleteReportHandler(d.Ingester, d.Events)).Methods(http.MethodDelete)
	r.HandleFunc("/reports/{id:[0-9]+}/meta", UpdateReportMetaHandler(d.Ingester)).Methods(http.MethodPatch)
	r.HandleFunc("/reports/{id:[0-9]+}/export", ExportReportHandler(d.Files)).Methods(http.MethodGet)

	r.HandleFunc("/questions", AskHandler(d.Asker)).Methods(http.MethodPost)
	r.HandleFunc("/questions/history", QuestionHistoryHandler(d.History)).Methods(http.MethodGet)

	r.HandleFunc("/employees", ListEmployeesHandler(d.Employees)).Methods(http.MethodGet)
	r.HandleFunc("/employees", AddEmployeeHandler(d.Employees)).Methods(http.MethodPost)
	r.HandleFunc("/employees", DeleteEmployeesHandler(d.Employees)).Methods(http.MethodDelete)
	r.HandleFunc("/employees/import", ImportEmployeesHandler(d.Employees)).Methods(http.MethodPost)
	r.HandleFunc("/employees/{code}", GetEmployeeHandler(d.Employees)).Methods(http.MethodGet)

	r.HandleFunc("/offshift-expenses", ListOffShiftHandler(d.OffShift)).Methods(http.MethodGet)
	r.HandleFunc("/offshift-expenses", AddOffShiftHandler(d.OffShift)).Methods(http.MethodPost)
	r.HandleFunc("/offshift-expenses/export", ExportOffShiftHandler(d.OffShift)).Methods(http.MethodGet)
	r.HandleFunc("/offshift-expenses/{id:[0-9]+}", DeleteOffShiftHandler(d.OffShift)).Methods(http.MethodDelete)

	r.HandleFunc("/custom-data/{key}", SetCustomDataHandler(d.CustomData)).Methods(http.MethodPut)
	r.HandleFunc("/custom-data/{key}", GetCustomDataHandler(d.CustomData)).Methods(http.MethodGet)
}

// EventsHandler streams the requester's events; the user comes from the
// identity header or the user_id query parameter.
func EventsHandler(ev Events, ws bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(validation.HeaderUserID))
		if userID == "" {
			userID = strings.TrimSpace(r.URL.Query().Get("user_id"))
		}
		if userID == "" {
			RespondWithErr(w, validation.ErrMissingIdentity)
			return
		}
		if ws {
			ev.ServeWS(w, r, userID)
			return
		}
		ev.ServeSSE(w, r, userID)
	}
}

func publish(ev Events, userID, kind string, data any) {
	if ev == nil {
		return
	}
	ev.Publish(userID, notification.Event{Type: kind, Data: data})
}

// HealthHandler reports the last heartbeat of every shared connection.
func HealthHandler(h HealthReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h == nil {
			RespondWithPayload(w, true, "", nil)
			return
		}
		if !h.Healthy() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		RespondWithPayload(w, h.Healthy(), "", h.Statuses())
	}
}
