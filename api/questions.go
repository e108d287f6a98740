package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/deadloked8999/exeltest/internal/validation"
)

type questionRequest struct {
	Question string `json:"question" validate:"required,max=1000"`
}

// AskHandler handles POST /api/questions.
func AskHandler(asker Asker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFromCtx(r.Context())
		var req questionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			RespondWithError(w, http.StatusBadRequest, "Некорректный JSON.")
			return
		}
		if err := validation.Struct(req); err != nil {
			RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		ans, err := asker.Ask(r.Context(), id.UserID, req.Question)
		if err != nil {
			RespondWithErr(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "data": ans})
	}
}

// QuestionHistoryHandler handles GET /api/questions/history?limit=.
func QuestionHistoryHandler(h History) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFromCtx(r.Context())
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 || limit > 200 {
			limit = 20
		}
		entries, err := h.Recent(r.Context(), id.UserID, limit)
		if err != nil {
			RespondWithErr(w, err)
			return
		}
		RespondWithPayload(w, true, "", entries)
	}
}
