package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/deadloked8999/exeltest/internal/export"
	"github.com/deadloked8999/exeltest/internal/grid"
	"github.com/deadloked8999/exeltest/internal/ingest"
	"github.com/deadloked8999/exeltest/internal/logger"
	"github.com/deadloked8999/exeltest/internal/notification"
)

const multipartOverhead = 1 << 20

var dateLayouts = []string{"2006-01-02", "02.01.2006"}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

// periodParams reads club, from and to; to defaults to from.
func periodParams(r *http.Request) (club string, from, to time.Time, err error) {
	q := r.URL.Query()
	club = strings.TrimSpace(q.Get("club"))
	if from, err = parseDate(q.Get("from")); err != nil {
		return
	}
	to = from
	if q.Get("to") != "" {
		if to, err = parseDate(q.Get("to")); err != nil {
			return
		}
	}
	if to.Before(from) {
		err = fmt.Errorf("period end %s is before start %s", to.Format("02.01.2006"), from.Format("02.01.2006"))
	}
	return
}

func sendWorkbook(w http.ResponseWriter, name string, write func(io.Writer) error) {
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	if err := write(w); err != nil {
		logger.LogError("api", "sendWorkbook", "export failed", name, err)
	}
}

// UploadReportHandler handles POST /api/reports with a multipart "file".
func UploadReportHandler(ing Ingester, events Events, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFromCtx(r.Context())
		if maxBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			RespondWithError(w, http.StatusBadRequest, "Не удалось прочитать загруженный файл.")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			RespondWithError(w, http.StatusBadRequest, "Поле file не найдено.")
			return
		}
		defer file.Close()
		if !grid.Supported(header.Filename) {
			RespondWithError(w, http.StatusUnsupportedMediaType, "Поддерживаются файлы xlsx, xlsm, xls и csv.")
			return
		}
		data, err := io.ReadAll(file)
		if err != nil {
			RespondWithError(w, http.StatusBadRequest, "Не удалось прочитать загруженный файл.")
			return
		}
		res, err := ing.Ingest(r.Context(), data, ingest.Owner{ID: id.UserID, DisplayName: id.DisplayName}, header.Filename)
		if err != nil {
			RespondWithErr(w, err)
			return
		}
		status := http.StatusCreated
		if res.Duplicate {
			status = http.StatusOK
		} else {
			publish(events, id.UserID, notification.EventReportIngested, res)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "data": res})
	}
}

// ListReportsHandler handles GET /api/reports?limit=N.
func ListReportsHandler(files FileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFromCtx(r.Context())
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 || limit > 500 {
			limit = 50
		}
		list, err := files.ListFiles(r.Context(), id.UserID, limit)
		if err != nil {
			RespondWithErr(w, err)
			return
		}
		RespondWithPayload(w, true, "", list)
	}
}

// DeleteReportHandler removes a stored report and its records.
func DeleteReportHandler(ing Ingester, events Events) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFromCtx(r.Context())
		fileID, err := pathID(r)
		if err != nil {
			RespondWithError(w, http.StatusBadRequest, "Некорректный идентификатор файла.")
			return
		}
		if err := ing.Delete(r.Context(), id.UserID, fileID); err != nil {
			RespondWithErr(w, err)
			return
		}
		publish(events, id.UserID, notification.EventReportDeleted, map[string]int64{"file_id": fileID})
		RespondWithPayload(w, true, "", nil)
	}
}

type metaRequest struct {
	ReportDate *string `json:"report_date"`
	ClubName   *string `json:"club_name"`
}

// UpdateReportMetaHandler corrects the shift date or club of a stored report.
func UpdateReportMetaHandler(ing Ingester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFromCtx(r.Context())
		fileID, err := pathID(r)
		if err != nil {
			RespondWithError(w, http.StatusBadRequest, "Некорректный идентификатор файла.")
			return
		}
		var req metaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			RespondWithError(w, http.StatusBadRequest, "Некорректный JSON.")
			return
		}
		var date *time.Time
		if req.ReportDate != nil {
			d, err := parseDate(*req.ReportDate)
			if err != nil {
				RespondWithError(w, http.StatusBadRequest, "Дата должна быть в формате ДД.ММ.ГГГГ или ГГГГ-ММ-ДД.")
				return
			}
			date = &d
		}
		if req.ClubName != nil {
			club := strings.TrimSpace(*req.ClubName)
			req.ClubName = &club
		}
		if err := ing.SetReportMeta(r.Context(), id.UserID, fileID, date, req.ClubName); err != nil {
			RespondWithErr(w, err)
			return
		}
		RespondWithPayload(w, true, "", nil)
	}
}

// ExportReportHandler returns the stored blocks of one report as xlsx.
func ExportReportHandler(files FileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFromCtx(r.Context())
		fileID, err := pathID(r)
		if err != nil {
			RespondWithError(w, http.StatusBadRequest, "Некорректный идентификатор файла.")
			return
		}
		file, err := files.File(r.Context(), id.UserID, fileID)
		if err != nil {
			RespondWithErr(w, err)
			return
		}
		data, err := files.LoadBlocks(r.Context(), file.ID)
		if err != nil {
			RespondWithErr(w, err)
			return
		}
		sendWorkbook(w, export.FileName("report", file.ReportDate), func(out io.Writer) error {
			return export.Report(out, *file, data)
		})
	}
}

// ExportPeriodHandler aggregates the reports of a club over a period.
func ExportPeriodHandler(files FileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFromCtx(r.Context())
		club, from, to, err := periodParams(r)
		if err != nil {
			RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		list, err := files.FilesByPeriod(r.Context(), id.UserID, from, to, club)
		if err != nil {
			RespondWithErr(w, err)
			return
		}
		if len(list) == 0 {
			RespondWithError(w, http.StatusNotFound, "За указанный период отчётов нет.")
			return
		}
		period := make([]export.PeriodFile, 0, len(list))
		for _, f := range list {
			data, err := files.LoadBlocks(r.Context(), f.ID)
			if err != nil {
				RespondWithErr(w, err)
				return
			}
			period = append(period, export.PeriodFile{File: f, Blocks: data})
		}
		sendWorkbook(w, export.FileName("period", &from), func(out io.Writer) error {
			return export.Period(out, club, from, to, period)
		})
	}
}

// ReportDatesHandler lists the dates the requester has reports for, ?club= optional.
func ReportDatesHandler(files FileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFromCtx(r.Context())
		dates, err := files.ReportDates(r.Context(), id.UserID, strings.TrimSpace(r.URL.Query().Get("club")))
		if err != nil {
			RespondWithErr(w, err)
			return
		}
		out := make([]string, len(dates))
		for i, d := range dates {
			out[i] = d.Format("2006-01-02")
		}
		RespondWithPayload(w, true, "", out)
	}
}

// DownloadReportHandler returns the workbook exactly as it was uploaded.
func DownloadReportHandler(files FileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFromCtx(r.Context())
		fileID, err := pathID(r)
		if err != nil {
			RespondWithError(w, http.StatusBadRequest, "Некорректный идентификатор файла.")
			return
		}
		content, name, err := files.LoadContent(r.Context(), id.UserID, fileID)
		if err != nil {
			RespondWithErr(w, err)
			return
		}
		w.Header().Set("Content-Type", http.DetectContentType(content))
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
		w.Write(content)
	}
}
