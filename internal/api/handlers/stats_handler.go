package handlers

import (
	"net/http"
	"strconv"

	"tradejournal/internal/journal"
	"tradejournal/internal/service"
	"tradejournal/pkg/utils"
)

// StatsHandler отвечает за статистику журнала
//
// Функции:
// - Снимок статистики (GET /api/v1/stats)
// - Спарклайн (GET /api/v1/stats/sparkline)
//
// Query параметры:
// - ref_date: опорная дата для today/week/month (RFC3339 или YYYY-MM-DD)
// - from, to: ограничение набора сделок, включительно
// - period: day | week | month | all относительно ref_date (вместо from/to)
// - metric: cumulative_pnl | pnl | win_rate | trade_count | avg_pnl
// - periods: количество точек спарклайна
//
// Вызывается frontend при загрузке дашборда, далее обновления приходят по WebSocket.
type StatsHandler struct {
	journalService service.JournalServiceInterface
}

// NewStatsHandler создает новый StatsHandler
func NewStatsHandler(journalService service.JournalServiceInterface) *StatsHandler {
	return &StatsHandler{journalService: journalService}
}

// GetStats возвращает снимок статистики
// GET /api/v1/stats
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	q, err := parseSnapshotQuery(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	snap, err := h.journalService.GetSnapshot(r.Context(), userID, q)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, snap)
}

// GetSparkline возвращает точки спарклайна
// GET /api/v1/stats/sparkline
func (h *StatsHandler) GetSparkline(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	q, err := parseSnapshotQuery(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	result, err := h.journalService.GetSparkline(r.Context(), userID, q)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// parseSnapshotQuery разбирает параметры снимка. Ошибки полей собираются
// в utils.ValidationErrors, неизвестная метрика дает journal.ErrUnknownMetric.
func parseSnapshotQuery(r *http.Request) (service.SnapshotQuery, error) {
	values := r.URL.Query()
	var (
		q     service.SnapshotQuery
		verrs utils.ValidationErrors
	)

	if v := values.Get("ref_date"); v != "" {
		ref, err := utils.ParseDateValue(v)
		if err != nil {
			verrs.AddError("ref_date", err)
		} else {
			q.RefDate = ref
		}
	}

	from, to := values.Get("from"), values.Get("to")
	if from != "" || to != "" {
		if from == "" || to == "" {
			verrs.Add("range", "both from and to are required")
		} else {
			start, errFrom := utils.ParseDateValue(from)
			end, errTo := utils.ParseDateValue(to)
			verrs.AddError("from", errFrom)
			verrs.AddError("to", errTo)
			if errFrom == nil && errTo == nil {
				q.From, q.To = start, end
			}
		}
	}

	if v := values.Get("period"); v != "" {
		period, err := utils.ParsePeriod(v)
		switch {
		case err != nil:
			verrs.AddError("period", err)
		case !q.From.IsZero():
			verrs.Add("period", "period cannot be combined with from/to")
		default:
			q.Period = period
		}
	}

	if v := values.Get("periods"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			verrs.Add("periods", "periods must be an integer")
		} else if err := utils.ValidateSparklinePeriods(n); err != nil {
			verrs.AddError("periods", err)
		} else {
			q.Periods = n
		}
	}

	if err := verrs.Err(); err != nil {
		return q, err
	}

	metric, err := journal.ParseMetric(values.Get("metric"))
	if err != nil {
		return q, err
	}
	q.Metric = metric
	return q, nil
}
