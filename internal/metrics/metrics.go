package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"tradejournal/internal/models"
)

// ============================================================
// Prometheus метрики журнала
// ============================================================
//
// Метки не содержат user_id и символов: кардинальность ограничена
// фиксированными наборами (операция, тип issue, маршрут, статус).

const namespace = "tradejournal"

// ============ Агрегация ============

// AggregationLatency - время построения снимка или спарклайна
var AggregationLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "journal",
		Name:      "aggregation_latency_ms",
		Help:      "Time to aggregate trades into a snapshot in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250},
	},
	[]string{"operation"}, // snapshot, sparkline
)

// TradesAggregated - количество сделок, прошедших через агрегатор
var TradesAggregated = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "journal",
		Name:      "trades_aggregated_total",
		Help:      "Total number of trades passed to the aggregator",
	},
)

// DataIssues - найденные проблемы качества данных по типам
var DataIssues = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "journal",
		Name:      "data_issues_total",
		Help:      "Number of data quality issues found in trade records",
	},
	[]string{"kind"},
)

// ============ Хранилище ============

// TradeMutations - изменения сделок
var TradeMutations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "trade_mutations_total",
		Help:      "Number of trade create/update/delete/import operations",
	},
	[]string{"operation"}, // create, update, delete, import
)

// ImportRejected - записи импорта, отклоненные из-за фатальных ошибок
var ImportRejected = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "import_rejected_total",
		Help:      "Number of imported records rejected by normalization",
	},
)

// TradeSourceFailures - ошибки чтения сделок из хранилища
var TradeSourceFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "trade_source_failures_total",
		Help:      "Number of failed reads from the trade store",
	},
	[]string{"operation"},
)

// LayoutChanges - изменения раскладки дашборда
var LayoutChanges = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dashboard",
		Name:      "layout_changes_total",
		Help:      "Number of dashboard layout changes",
	},
	[]string{"action"}, // add_widget, remove_widget, update, reset
)

// ============ HTTP / WebSocket ============

// HTTPRequests - обработанные HTTP запросы
var HTTPRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests",
	},
	[]string{"method", "route", "status"},
)

// HTTPLatency - время обработки HTTP запроса
var HTTPLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_latency_ms",
		Help:      "HTTP request latency in milliseconds",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	},
	[]string{"route"},
)

// WebsocketClients - текущее количество подключенных клиентов
var WebsocketClients = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "websocket",
		Name:      "clients",
		Help:      "Current number of connected websocket clients",
	},
)

// WebsocketDropped - сообщения, не доставленные медленным клиентам
var WebsocketDropped = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "websocket",
		Name:      "messages_dropped_total",
		Help:      "Number of websocket messages dropped because of full client buffers",
	},
	[]string{"type"},
)

// ============ Вспомогательные функции ============

// RecordAggregation записывает латентность агрегации и количество сделок
func RecordAggregation(operation string, latencyMs float64, trades int) {
	AggregationLatency.WithLabelValues(operation).Observe(latencyMs)
	TradesAggregated.Add(float64(trades))
}

// RecordDataIssues увеличивает счетчики по типам issues
func RecordDataIssues(issues []models.DataIssue) {
	for _, is := range issues {
		DataIssues.WithLabelValues(string(is.Kind)).Inc()
	}
}

// RecordTradeMutation записывает изменение n сделок
func RecordTradeMutation(operation string, n int) {
	if n <= 0 {
		return
	}
	TradeMutations.WithLabelValues(operation).Add(float64(n))
}

// RecordImportRejected записывает отклоненные записи импорта
func RecordImportRejected(n int) {
	if n > 0 {
		ImportRejected.Add(float64(n))
	}
}

// RecordSourceFailure записывает ошибку чтения хранилища
func RecordSourceFailure(operation string) {
	TradeSourceFailures.WithLabelValues(operation).Inc()
}

// RecordLayoutChange записывает изменение раскладки
func RecordLayoutChange(action string) {
	LayoutChanges.WithLabelValues(action).Inc()
}

// RecordHTTPRequest записывает HTTP запрос
func RecordHTTPRequest(method, route string, status int, latencyMs float64) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route).Observe(latencyMs)
}

// SetWebsocketClients обновляет количество клиентов
func SetWebsocketClients(n int) {
	WebsocketClients.Set(float64(n))
}

// RecordDroppedMessage записывает недоставленное сообщение
func RecordDroppedMessage(msgType string) {
	WebsocketDropped.WithLabelValues(msgType).Inc()
}
