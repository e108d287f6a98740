package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/deadloked8999/exeltest/internal/classifier"
	"github.com/deadloked8999/exeltest/internal/directory"
	"github.com/deadloked8999/exeltest/internal/grid"
	"github.com/deadloked8999/exeltest/internal/ingest"
	"github.com/deadloked8999/exeltest/internal/logger"
	"github.com/deadloked8999/exeltest/internal/nlsql"
	"github.com/deadloked8999/exeltest/internal/query"
	"github.com/deadloked8999/exeltest/internal/validation"
)

// Error response helper
func RespondWithError(w http.ResponseWriter, status int, errMsg string) {
	logger.Module("api").WithField("status", status).Warn(errMsg)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   errMsg,
	})
}

// RespondWithPayload sends a consistent JSON response and includes an arbitrary payload
func RespondWithPayload(w http.ResponseWriter, success bool, errMsg string, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{"success": success}
	if !success && errMsg != "" {
		resp["error"] = errMsg
	}
	if payload != nil {
		// use a conventional key `rows` for list payloads
		resp["rows"] = payload
	}
	json.NewEncoder(w).Encode(resp)
}

func respondCreated(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "rows": payload})
}

// RespondWithErr maps a domain error to a status and a message the user can act on.
func RespondWithErr(w http.ResponseWriter, err error) {
	status, msg := userFriendlyError(err)
	if status >= http.StatusInternalServerError {
		logger.LogError("api", "RespondWithErr", "request failed", nil, err)
	}
	RespondWithError(w, status, msg)
}

func userFriendlyError(err error) (int, string) {
	var bound *query.BoundError
	var rejected *nlsql.RejectedError
	switch {
	case errors.Is(err, validation.ErrMissingIdentity):
		return http.StatusUnauthorized, "Не указан пользователь (X-User-ID)."
	case errors.Is(err, ingest.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "Файл слишком большой."
	case errors.Is(err, grid.ErrUnreadableSource):
		return http.StatusUnprocessableEntity, "Не удалось прочитать файл. Поддерживаются xlsx, xlsm, xls и csv."
	case errors.Is(err, classifier.ErrNoRecognizedBlocks):
		return http.StatusUnprocessableEntity, "В файле не найдено ни одного известного блока отчёта."
	case errors.Is(err, ingest.ErrFileNotFound), errors.Is(err, directory.ErrNotFound):
		return http.StatusNotFound, "Запись не найдена."
	case errors.Is(err, ingest.ErrDuplicateFile):
		return http.StatusConflict, "Этот файл уже был загружен."
	case errors.Is(err, query.ErrEmptyQuestion):
		return http.StatusBadRequest, "Вопрос пустой."
	case errors.As(err, &rejected):
		return http.StatusUnprocessableEntity, "Запрос отклонён: " + rejected.Reason
	case errors.Is(err, nlsql.ErrTranslationUnavailable):
		return http.StatusServiceUnavailable, "Сервис перевода вопросов недоступен, попробуйте позже."
	case errors.As(err, &bound) && errors.Is(err, query.ErrExecutionTimeout):
		return http.StatusGatewayTimeout, "Запрос выполнялся слишком долго (лимит " + bound.Limit + ")."
	case errors.As(err, &bound) && errors.Is(err, query.ErrRowLimitExceeded):
		return http.StatusUnprocessableEntity, "Слишком много строк в ответе (лимит " + bound.Limit + "). Уточните вопрос."
	}
	if msg := pqUserFriendlyMessage(err); msg != "" {
		return http.StatusInternalServerError, msg
	}
	return http.StatusInternalServerError, "Внутренняя ошибка, попробуйте ещё раз."
}

// pqUserFriendlyMessage covers errors surfacing from either driver.
func pqUserFriendlyMessage(err error) string {
	code := ""
	var pqErr *pq.Error
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pqErr):
		code = string(pqErr.Code)
	case errors.As(err, &pgErr):
		code = pgErr.Code
	default:
		return ""
	}
	switch code {
	case "23505":
		return "Запись с таким значением уже существует."
	case "23503":
		return "Связанные данные не найдены (обновите страницу и попробуйте снова)."
	case "23514":
		return "Некоторые поля заполнены неверно."
	default:
		return "Ошибка базы данных при обработке запроса."
	}
}
