package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"tradejournal/pkg/ratelimit"
)

// RateLimit ограничивает частоту запросов с одного IP.
//
// При превышении возвращает 429 с заголовком Retry-After (секунды).
// trustProxy=true: IP берется из первого адреса X-Forwarded-For.
func RateLimit(limiter *ratelimit.KeyedLimiter, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r, trustProxy)
			bucket := limiter.Get(key)
			if !bucket.Allow() {
				retry := int(math.Ceil(bucket.RetryAfter().Seconds()))
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP возвращает IP клиента без порта
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
