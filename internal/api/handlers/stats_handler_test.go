package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tradejournal/internal/journal"
	"tradejournal/internal/service"
	"tradejournal/pkg/utils"
)

// ============ StatsHandler Tests ============

func TestStatsHandler_GetStats(t *testing.T) {
	t.Run("successfully returns snapshot", func(t *testing.T) {
		mockSvc := NewMockJournalService()
		handler := NewStatsHandler(mockSvc)

		req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil), "alice", nil)
		w := httptest.NewRecorder()

		handler.GetStats(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var response map[string]interface{}
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		for _, field := range []string{"total_trades", "total_pnl", "sparkline_metric", "issues"} {
			if _, ok := response[field]; !ok {
				t.Errorf("response should contain %s field", field)
			}
		}
		if mockSvc.lastQuery.Metric != journal.MetricCumulativePnL {
			t.Errorf("default metric should be cumulative_pnl, got %q", mockSvc.lastQuery.Metric)
		}
	})

	t.Run("parses reference date and range", func(t *testing.T) {
		mockSvc := NewMockJournalService()
		handler := NewStatsHandler(mockSvc)

		req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/stats?ref_date=2024-03-15&from=2024-03-01&to=2024-03-31&metric=win_rate&periods=5", nil), "alice", nil)
		w := httptest.NewRecorder()

		handler.GetStats(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
		}

		q := mockSvc.lastQuery
		if !q.RefDate.DateOnly() || !q.RefDate.Start(time.UTC).Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("unexpected ref_date %+v", q.RefDate)
		}
		if q.Range != nil || q.From.IsZero() || q.To.End(time.UTC).Day() != 31 || q.To.End(time.UTC).Hour() != 23 {
			t.Errorf("range should be passed as calendar days, got %+v %+v", q.From, q.To)
		}
		if q.Metric != journal.MetricWinRate || q.Periods != 5 {
			t.Errorf("unexpected metric/periods: %q %d", q.Metric, q.Periods)
		}
	})

	t.Run("parses period", func(t *testing.T) {
		mockSvc := NewMockJournalService()
		handler := NewStatsHandler(mockSvc)

		req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/stats?period=Week", nil), "alice", nil)
		w := httptest.NewRecorder()

		handler.GetStats(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
		}
		if mockSvc.lastQuery.Period != utils.PeriodWeek || mockSvc.lastQuery.Range != nil {
			t.Errorf("unexpected query %+v", mockSvc.lastQuery)
		}
	})

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantCode   string
	}{
		{"from without to", "from=2024-03-01", http.StatusBadRequest, "validation_failed"},
		{"invalid ref_date", "ref_date=tomorrow", http.StatusBadRequest, "validation_failed"},
		{"periods out of range", "periods=0", http.StatusBadRequest, "validation_failed"},
		{"non-numeric periods", "periods=ten", http.StatusBadRequest, "validation_failed"},
		{"unknown metric", "metric=sharpe", http.StatusBadRequest, "unknown_metric"},
		{"unknown period", "period=year", http.StatusBadRequest, "validation_failed"},
		{"period with range", "period=week&from=2024-03-01&to=2024-03-31", http.StatusBadRequest, "validation_failed"},
	}
	for _, tt := range tests {
		t.Run("returns error for "+tt.name, func(t *testing.T) {
			handler := NewStatsHandler(NewMockJournalService())

			req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/stats?"+tt.query, nil), "alice", nil)
			w := httptest.NewRecorder()

			handler.GetStats(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			var resp ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Code != tt.wantCode {
				t.Errorf("expected code %q, got %q", tt.wantCode, resp.Code)
			}
		})
	}

	t.Run("returns 400 when range is inverted", func(t *testing.T) {
		mockSvc := NewMockJournalService()
		mockSvc.snapshotErr = service.ErrInvalidRange
		handler := NewStatsHandler(mockSvc)

		req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/stats?from=2024-04-01&to=2024-03-01", nil), "alice", nil)
		w := httptest.NewRecorder()

		handler.GetStats(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("returns 503 when storage unavailable", func(t *testing.T) {
		mockSvc := NewMockJournalService()
		mockSvc.snapshotErr = service.ErrTradeSourceUnavailable
		handler := NewStatsHandler(mockSvc)

		req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil), "alice", nil)
		w := httptest.NewRecorder()

		handler.GetStats(w, req)

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
		}
	})
}

func TestStatsHandler_GetSparkline(t *testing.T) {
	t.Run("successfully returns points", func(t *testing.T) {
		mockSvc := NewMockJournalService()
		handler := NewStatsHandler(mockSvc)

		req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/stats/sparkline?metric=pnl&periods=2", nil), "alice", nil)
		w := httptest.NewRecorder()

		handler.GetSparkline(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var result service.SparklineResult
		if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if result.Metric != journal.MetricPnL || result.Periods != 2 || len(result.Points) != 2 {
			t.Errorf("unexpected result %+v", result)
		}
	})

	t.Run("returns 401 without user", func(t *testing.T) {
		handler := NewStatsHandler(NewMockJournalService())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/stats/sparkline", nil)
		w := httptest.NewRecorder()

		handler.GetSparkline(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected status %d, got %d", http.StatusUnauthorized, w.Code)
		}
	})
}
