package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/deadloked8999/exeltest/internal/directory"
	"github.com/deadloked8999/exeltest/internal/export"
	"github.com/deadloked8999/exeltest/internal/validation"
)

// ListEmployeesHandler lists the directory, or searches it with ?q=.
func ListEmployeesHandler(emp Employees) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		if limit <= 0 || limit > 1000 {
			limit = 100
		}
		offset, _ := strconv.Atoi(q.Get("offset"))
		if offset < 0 {
			offset = 0
		}
		var (
			list []directory.Employee
			err  error
		)
		if term := strings.TrimSpace(q.Get("q")); term != "" {
			list, err = emp.Search(r.Context(), term, limit)
		} else {
			list, err = emp.List(r.Context(), limit, offset)
		}
		if err != nil {
			RespondWithErr(w, err)
			return
		}
		total, err := emp.Count(r.Context())
		if err != nil {
			RespondWithErr(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"rows":    list,
			"total":   total,
		})
	}
}

func GetEmployeeHandler(emp Employees) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := emp.Get(r.Context(), mux.Vars(r)["code"])
		if err != nil {
			RespondWithErr(w, err)
			return
		}
		RespondWithPayload(w, true, "", e)
	}
}

// AddEmployeeHandler adds or renames one employee.
func AddEmployeeHandler(emp Employees) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var e directory.Employee
		if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
			RespondWithError(w, http.StatusBadRequest, "Некорректный JSON.")
			return
		}
		e.Code = strings.ToUpper(strings.TrimSpace(e.Code))
		e.FullName = strings.TrimSpace(e.FullName)
		if err := validation.Struct(e); err != nil {
			RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := emp.Add(r.Context(), e); err != nil {
			RespondWithErr(w, err)
			return
		}
		respondCreated(w, e)
	}
}

// DeleteEmployeesHandler removes ?code=X, or the whole directory with ?all=true.
func DeleteEmployeesHandler(emp Employees) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("all") == "true" {
			n, err := emp.Clear(r.Context())
			if err != nil {
				RespondWithErr(w, err)
				return
			}
			RespondWithPayload(w, true, "", map[string]int64{"deleted": n})
			return
		}
		code := strings.ToUpper(strings.TrimSpace(q.Get("code")))
		if code == "" {
			RespondWithError(w, http.StatusBadRequest, "Укажите code или all=true.")
			return
		}
		if err := emp.Delete(r.Context(), code); err != nil {
			RespondWithErr(w, err)
			return
		}
		RespondWithPayload(w, true, "", map[string]int64{"deleted": 1})
	}
}

// ImportEmployeesHandler takes a pasted list as text/plain or {"text": "..."}.
func ImportEmployeesHandler(emp Employees) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			RespondWithError(w, http.StatusBadRequest, "Не удалось прочитать тело запроса.")
			return
		}
		text := string(body)
		if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
			var req struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(body, &req); err != nil {
				RespondWithError(w, http.StatusBadRequest, "Некорректный JSON.")
				return
			}
			text = req.Text
		}
		parsed := directory.ParseEmployees(text)
		if len(parsed) == 0 {
			RespondWithError(w, http.StatusBadRequest, "В тексте не найдено ни одного сотрудника (код и ФИО).")
			return
		}
		stats, err := emp.Import(r.Context(), parsed)
		if err != nil {
			RespondWithErr(w, err)
			return
		}
		RespondWithPayload(w, true, "", stats)
	}
}

type offShiftRequest struct {
	ClubName    string          `json:"club_name" validate:"required,max=100"`
	PaymentType string          `json:"payment_type" validate:"required,max=50"`
	Item        string          `json:"expense_item" validate:"required,max=200"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"expense_date" validate:"required"`
}

// AddOffShiftHandler records an expense paid outside a shift.
func AddOffShiftHandler(store OffShift) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFromCtx(r.Context())
		var req offShiftRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			RespondWithError(w, http.StatusBadRequest, "Некорректный JSON.")
			return
		}
		if err := validation.Struct(req); err != nil {
			RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !req.Amount.IsPositive() {
			RespondWithError(w, http.StatusBadRequest, "Сумма должна быть больше нуля.")
			return
		}
		date, err := parseDate(req.Date)
		if err != nil {
			RespondWithError(w, http.StatusBadRequest, "Дата должна быть в формате ДД.ММ.ГГГГ или ГГГГ-ММ-ДД.")
			return
		}
		e := directory.OffShiftExpense{
			UserID:      id.UserID,
			ClubName:    strings.TrimSpace(req.ClubName),
			PaymentType: strings.TrimSpace(req.PaymentType),
			Item:        strings.TrimSpace(req.Item),
			Amount:      req.Amount,
			Date:        date,
		}
		if e.ID, err = store.Add(r.Context(), e); err != nil {
			RespondWithErr(w, err)
			return
		}
		respondCreated(w, e)
	}
}

// ListOffShiftHandler lists expenses of a club over ?from=&to=.
func ListOffShiftHandler(store OffShift) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		club, from, to, err := periodParams(r)
		if err != nil {
			RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		id, _ := IdentityFromCtx(r.Context())
		list, err := store.List(r.Context(), id.UserID, club, from, to)
		if err != nil {
			RespondWithErr(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"rows":    list,
			"total":   directory.Total(list),
		})
	}
}

func DeleteOffShiftHandler(store OffShift) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFromCtx(r.Context())
		expenseID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil {
			RespondWithError(w, http.StatusBadRequest, "Некорректный идентификатор.")
			return
		}
		if err := store.Delete(r.Context(), id.UserID, expenseID); err != nil {
			RespondWithErr(w, err)
			return
		}
		RespondWithPayload(w, true, "", nil)
	}
}

// ExportOffShiftHandler returns the period's expenses as xlsx.
func ExportOffShiftHandler(store OffShift) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		club, from, to, err := periodParams(r)
		if err != nil {
			RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		id, _ := IdentityFromCtx(r.Context())
		list, err := store.List(r.Context(), id.UserID, club, from, to)
		if err != nil {
			RespondWithErr(w, err)
			return
		}
		sendWorkbook(w, export.FileName("offshift", &from), func(out io.Writer) error {
			return export.OffShift(out, club, from, to, list)
		})
	}
}

type customDataRequest struct {
	Value string `json:"value" validate:"max=10000"`
}

// SetCustomDataHandler stores one key for the requester.
func SetCustomDataHandler(store CustomData) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFromCtx(r.Context())
		key := strings.TrimSpace(mux.Vars(r)["key"])
		var req customDataRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			RespondWithError(w, http.StatusBadRequest, "Некорректный JSON.")
			return
		}
		if err := validation.Struct(req); err != nil {
			RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := store.Set(r.Context(), id.UserID, key, req.Value); err != nil {
			RespondWithErr(w, err)
			return
		}
		RespondWithPayload(w, true, "", nil)
	}
}

func GetCustomDataHandler(store CustomData) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFromCtx(r.Context())
		key := strings.TrimSpace(mux.Vars(r)["key"])
		value, err := store.Get(r.Context(), id.UserID, key)
		if err != nil {
			RespondWithErr(w, err)
			return
		}
		RespondWithPayload(w, true, "", map[string]string{"key": key, "value": value})
	}
}
