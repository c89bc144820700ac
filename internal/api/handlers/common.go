package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"

	"tradejournal/internal/api/middleware"
	"tradejournal/internal/dashboard"
	"tradejournal/internal/journal"
	"tradejournal/internal/service"
	"tradejournal/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodyBytes ограничение тела запроса (импорт до service.MaxImportBatch записей)
const maxBodyBytes = 8 << 20

// ErrorResponse стандартный формат ответа об ошибке для всех API endpoints
type ErrorResponse struct {
	Error   string                  `json:"error"`
	Code    string                  `json:"code,omitempty"`
	Details string                  `json:"details,omitempty"`
	Fields  []utils.ValidationError `json:"fields,omitempty"`
}

// SuccessResponse стандартный формат успешного ответа
type SuccessResponse struct {
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// respondWithJSON отправляет JSON ответ
func respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondWithError отправляет JSON ответ с ошибкой
func respondWithError(w http.ResponseWriter, statusCode int, code, message, details string) {
	respondWithJSON(w, statusCode, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

// decodeJSON читает тело запроса с ограничением размера
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondWithError(w, http.StatusRequestEntityTooLarge, "body_too_large", "Request body too large", "")
			return false
		}
		respondWithError(w, http.StatusBadRequest, "invalid_body", "Failed to read request body", err.Error())
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON", err.Error())
		return false
	}
	return true
}

// requireUser возвращает пользователя из context или отвечает 401
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "Authentication required", "")
		return "", false
	}
	return userID, true
}

// pathID разбирает {id} из URL
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusBadRequest, "invalid_id", "Invalid trade ID", "")
		return 0, false
	}
	return id, true
}

// handleServiceError обрабатывает ошибки от сервисов и возвращает соответствующий HTTP статус
func handleServiceError(w http.ResponseWriter, err error) {
	var verrs utils.ValidationErrors
	if errors.As(err, &verrs) {
		respondWithJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "Validation failed",
			Code:   "validation_failed",
			Fields: verrs,
		})
		return
	}

	switch {
	case errors.Is(err, service.ErrTradeNotFound):
		respondWithError(w, http.StatusNotFound, "trade_not_found", "Trade not found", "")

	case errors.Is(err, service.ErrTradeSourceUnavailable):
		respondWithError(w, http.StatusServiceUnavailable, "trade_source_unavailable", "Trade storage is unavailable", "")

	case errors.Is(err, service.ErrLayoutStoreUnavailable):
		respondWithError(w, http.StatusServiceUnavailable, "layout_store_unavailable", "Layout storage is unavailable", "")

	case errors.Is(err, service.ErrPreferencesStoreUnavailable):
		respondWithError(w, http.StatusServiceUnavailable, "preferences_store_unavailable", "Settings storage is unavailable", "")

	case errors.Is(err, service.ErrInvalidRange):
		respondWithError(w, http.StatusBadRequest, "invalid_range", "Range end is before range start", "")

	case errors.Is(err, service.ErrEmptyImport):
		respondWithError(w, http.StatusBadRequest, "empty_import", "Import contains no records", "")

	case errors.Is(err, service.ErrImportTooLarge):
		respondWithError(w, http.StatusRequestEntityTooLarge, "import_too_large", "Import exceeds maximum batch size", strconv.Itoa(service.MaxImportBatch))

	case errors.Is(err, journal.ErrUnknownMetric):
		respondWithError(w, http.StatusBadRequest, "unknown_metric", "Unknown sparkline metric", err.Error())

	case errors.Is(err, utils.ErrInvalidPeriods):
		respondWithError(w, http.StatusBadRequest, "invalid_periods", "Invalid sparkline periods", err.Error())

	case errors.Is(err, dashboard.ErrUnknownWidget):
		respondWithError(w, http.StatusNotFound, "unknown_widget", "Unknown widget", err.Error())

	case errors.Is(err, utils.ErrInvalidWidgetID):
		respondWithError(w, http.StatusBadRequest, "invalid_widget_id", "Invalid widget ID", err.Error())

	case errors.Is(err, dashboard.ErrUnknownBreakpoint):
		respondWithError(w, http.StatusBadRequest, "unknown_breakpoint", "Unknown breakpoint", err.Error())

	case errors.Is(err, dashboard.ErrInvalidLayout):
		respondWithError(w, http.StatusBadRequest, "invalid_layout", "Invalid layout", err.Error())

	default:
		utils.L().WithComponent("api").Error("unhandled service error", utils.Err(err))
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Internal server error", "")
	}
}
