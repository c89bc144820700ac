package handlers

import (
	"net/http"
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"tradejournal/internal/journal"
	"tradejournal/internal/models"
	"tradejournal/internal/service"
	"tradejournal/pkg/utils"
)

// TradeHandler отвечает за управление сделками журнала
//
// Функции:
// - Список сделок с фильтрами (GET /api/v1/trades)
// - Создание сделки (POST /api/v1/trades)
// - Импорт выгрузки (POST /api/v1/trades/import)
// - Получение, изменение и удаление сделки (GET/PATCH/DELETE /api/v1/trades/{id})
//
// Тело запроса сделки принимает нестрогий формат: числа строками,
// camelCase или snake_case ключи, даты в RFC3339, YYYY-MM-DD или unix.
type TradeHandler struct {
	journalService service.JournalServiceInterface
}

// NewTradeHandler создает новый TradeHandler
func NewTradeHandler(journalService service.JournalServiceInterface) *TradeHandler {
	return &TradeHandler{journalService: journalService}
}

// ListTrades возвращает сделки пользователя
// GET /api/v1/trades?symbol=&setup_type=&status=&from=&to=&limit=&offset=
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	filter, verrs := parseTradeFilter(r)
	if err := verrs.Err(); err != nil {
		handleServiceError(w, err)
		return
	}

	trades, err := h.journalService.ListTrades(r.Context(), userID, filter)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if trades == nil {
		trades = []models.Trade{}
	}
	respondWithJSON(w, http.StatusOK, trades)
}

// CreateTrade создает сделку
// POST /api/v1/trades
func (h *TradeHandler) CreateTrade(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var raw journal.RawTrade
	if !decodeJSON(w, r, &raw) {
		return
	}

	trade, err := h.journalService.CreateTrade(r.Context(), userID, raw)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, trade)
}

// GetTrade возвращает сделку
// GET /api/v1/trades/{id}
func (h *TradeHandler) GetTrade(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	trade, err := h.journalService.GetTrade(r.Context(), userID, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, trade)
}

// UpdateTrade частично обновляет сделку: переданные поля заменяют текущие
// PATCH /api/v1/trades/{id}
func (h *TradeHandler) UpdateTrade(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var patch journal.RawTrade
	if !decodeJSON(w, r, &patch) {
		return
	}

	trade, err := h.journalService.UpdateTrade(r.Context(), userID, id, patch)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, trade)
}

// DeleteTrade удаляет сделку
// DELETE /api/v1/trades/{id}
func (h *TradeHandler) DeleteTrade(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.journalService.DeleteTrade(r.Context(), userID, id); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ImportTrades импортирует выгрузку журнала
// POST /api/v1/trades/import
//
// Тело: массив записей или объект {"trades": [...]}.
// Запись, которую не удалось разобрать как JSON объект, попадает в rejected
// со своим индексом и не прерывает импорт остальных.
func (h *TradeHandler) ImportTrades(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var body jsoniter.RawMessage
	if !decodeJSON(w, r, &body) {
		return
	}

	raws, malformed, err := journal.DecodeRawTrades(body)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_json", "Expected an array of trades or {\"trades\": [...]}", err.Error())
		return
	}

	result, err := h.journalService.ImportTrades(r.Context(), userID, raws)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	journal.ExplainRejected(result.Rejected, malformed)
	if result.Issues == nil {
		result.Issues = []models.DataIssue{}
	}
	if result.Rejected == nil {
		result.Rejected = []journal.RejectedRecord{}
	}
	respondWithJSON(w, http.StatusOK, result)
}

// parseTradeFilter разбирает query параметры списка сделок
func parseTradeFilter(r *http.Request) (models.TradeFilter, utils.ValidationErrors) {
	q := r.URL.Query()
	var verrs utils.ValidationErrors

	filter := models.TradeFilter{
		Symbol:    utils.NormalizeSymbol(q.Get("symbol")),
		SetupType: q.Get("setup_type"),
		Status:    models.TradeStatus(q.Get("status")),
	}

	switch filter.Status {
	case "", models.TradeStatusOpen, models.TradeStatusClosed:
	default:
		verrs.Add("status", "status must be open or closed")
	}

	if v := q.Get("from"); v != "" {
		from, err := utils.ParseDateValue(v)
		if err != nil {
			verrs.AddError("from", err)
		} else {
			filter.FromDate = from
		}
	}
	if v := q.Get("to"); v != "" {
		to, err := utils.ParseDateValue(v)
		if err != nil {
			verrs.AddError("to", err)
		} else {
			filter.ToDate = to
		}
	}

	filter.Limit = queryInt(q.Get("limit"), "limit", 0, 1000, &verrs)
	filter.Offset = queryInt(q.Get("offset"), "offset", 0, -1, &verrs)

	return filter, verrs
}

// queryInt разбирает целый параметр; max < 0 = без ограничения сверху
func queryInt(v, field string, min, max int, verrs *utils.ValidationErrors) int {
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min || (max >= 0 && n > max) {
		if max >= 0 {
			verrs.Add(field, field+" must be between "+strconv.Itoa(min)+" and "+strconv.Itoa(max))
		} else {
			verrs.Add(field, field+" must be a non-negative integer")
		}
		return 0
	}
	return n
}
