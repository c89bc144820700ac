package middleware

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"tradejournal/internal/metrics"
	"tradejournal/pkg/utils"
)

// responseWriter захватывает статус и размер ответа
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Hijack нужен для upgrade /ws/stream
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// requestIDHeader заголовок сквозного идентификатора запроса
const requestIDHeader = "X-Request-ID"

const requestInfoKey contextKey = "request_info"

// requestInfo заполняется внутренними middleware и читается Logging после ответа
type requestInfo struct {
	id     string
	userID string
}

func requestInfoFrom(ctx context.Context) (*requestInfo, bool) {
	info, ok := ctx.Value(requestInfoKey).(*requestInfo)
	return info, ok
}

// RequestIDFromContext возвращает идентификатор текущего запроса
func RequestIDFromContext(ctx context.Context) string {
	if info, ok := requestInfoFrom(ctx); ok {
		return info.id
	}
	return ""
}

// requestID берет идентификатор клиента или генерирует новый
func requestID(r *http.Request) string {
	if id := r.Header.Get(requestIDHeader); id != "" && len(id) <= 64 {
		return id
	}
	return uuid.NewString()
}

// Logging - middleware для логирования HTTP запросов
//
// Пишет в zap метод, шаблон маршрута, статус, latency, IP клиента, размер
// ответа и X-Request-ID, и учитывает запрос в Prometheus. Шаблон маршрута ({id} вместо
// значения) ограничивает кардинальность метрик.
//
// Уровень: 5xx - Error, 4xx - Warn, остальное - Debug.
func Logging(next http.Handler) http.Handler {
	logger := utils.L().WithComponent("http")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		info := &requestInfo{id: requestID(r)}
		w.Header().Set(requestIDHeader, info.id)
		r = r.WithContext(context.WithValue(r.Context(), requestInfoKey, info))

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		latency := float64(time.Since(start).Microseconds()) / 1000
		route := routeTemplate(r)
		metrics.RecordHTTPRequest(r.Method, route, wrapped.statusCode, latency)

		fields := []utils.Field{
			utils.String("method", r.Method),
			utils.String("route", route),
			utils.String("path", r.URL.Path),
			utils.Int("status", wrapped.statusCode),
			utils.Latency(latency),
			utils.String("client_ip", clientIP(r, false)),
			utils.Int64("bytes", wrapped.written),
			utils.RequestID(info.id),
		}
		if info.userID != "" {
			fields = append(fields, utils.UserID(info.userID))
		}

		switch {
		case wrapped.statusCode >= 500:
			logger.Error("http request", fields...)
		case wrapped.statusCode >= 400:
			logger.Warn("http request", fields...)
		default:
			logger.Debug("http request", fields...)
		}
	})
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
