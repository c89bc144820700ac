package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"tradejournal/pkg/utils"
)

// Recovery - middleware для восстановления после паники в handlers
//
// Перехватывает panic, логирует ошибку со stack trace и возвращает клиенту
// 500 Internal Server Error. Сервер продолжает обрабатывать запросы.
// Текст паники клиенту не отдается.
func Recovery(next http.Handler) http.Handler {
	logger := utils.L().WithComponent("http")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.Error("panic in handler",
					utils.String("method", r.Method),
					utils.String("path", r.URL.Path),
					utils.String("panic", fmt.Sprint(rec)),
					utils.String("stack", string(debug.Stack())),
				)

				writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}
