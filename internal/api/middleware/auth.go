package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"tradejournal/internal/repository"
	"tradejournal/pkg/crypto"
	"tradejournal/pkg/utils"
)

type contextKey string

const userIDKey contextKey = "user_id"

// UserIDFromContext возвращает пользователя, установленного Auth
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// WithUserID добавляет пользователя в context
func WithUserID(ctx context.Context, userID string) context.Context {
	if info, ok := requestInfoFrom(ctx); ok {
		info.userID = userID
	}
	return context.WithValue(ctx, userIDKey, userID)
}

// TokenStore источник bcrypt хешей API токенов
type TokenStore interface {
	GetTokenHash(ctx context.Context, userID string) (string, error)
}

// AuthConfig параметры аутентификации
type AuthConfig struct {
	Enabled       bool
	DefaultUserID string        // пользователь при Enabled=false
	CacheTTL      time.Duration // 0 = без кеша
}

// Authenticator проверяет API токены вида "<user_id>.<secret>"
//
// Назначение:
// Защищает API endpoints журнала от неавторизованного доступа и
// определяет владельца данных для каждого запроса.
//
// Функции:
// - Извлечение токена из Authorization: Bearer <token>
// - Для WebSocket: из query параметра access_token (браузер не шлет заголовки)
// - Проверка секрета по bcrypt хешу из TokenStore
// - Кеширование успешных bcrypt проверок на CacheTTL. Запись действительна,
//   пока хеш в TokenStore не изменился: rotate отзывает старый токен сразу
// - Добавление user_id в context запроса
// - Возврат 401 Unauthorized при отсутствии или невалидном токене
//
// При Enabled=false все запросы выполняются от имени DefaultUserID
// (локальное однопользовательское развертывание).
type Authenticator struct {
	store  TokenStore
	cfg    AuthConfig
	now    func() time.Time
	verify func(secret, hash string) error
	logger *utils.Logger

	mu    sync.Mutex
	cache map[[sha256.Size]byte]cachedToken
}

type cachedToken struct {
	userID  string
	hash    string
	expires time.Time
}

// NewAuthenticator создает Authenticator
func NewAuthenticator(store TokenStore, cfg AuthConfig) *Authenticator {
	return &Authenticator{
		store:  store,
		cfg:    cfg,
		now:    time.Now,
		verify: crypto.VerifyToken,
		logger: utils.L().WithComponent("auth"),
		cache:  make(map[[sha256.Size]byte]cachedToken),
	}
}

// Middleware возвращает http middleware аутентификации
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if !a.cfg.Enabled {
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), a.cfg.DefaultUserID)))
			return
		}

		token := extractToken(r)
		if token == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="journal"`)
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing API token")
			return
		}

		userID, err := a.Verify(r.Context(), token)
		if err != nil {
			if !errors.Is(err, errInvalidToken) {
				a.logger.Error("token verification failed", utils.Err(err))
				writeError(w, http.StatusServiceUnavailable, "auth_unavailable", "authentication backend unavailable")
				return
			}
			w.Header().Set("WWW-Authenticate", `Bearer realm="journal", error="invalid_token"`)
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid API token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

var errInvalidToken = errors.New("invalid token")

// Verify проверяет токен и возвращает его владельца.
// Неверный токен дает errInvalidToken, сбой хранилища - исходную ошибку.
func (a *Authenticator) Verify(ctx context.Context, token string) (string, error) {
	userID, secret, err := crypto.SplitBearer(token)
	if err != nil || utils.ValidateUserID(userID) != nil {
		return "", errInvalidToken
	}

	hash, err := a.store.GetTokenHash(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", errInvalidToken
		}
		return "", err
	}

	key := sha256.Sum256([]byte(token))
	if a.cfg.CacheTTL > 0 {
		a.mu.Lock()
		entry, ok := a.cache[key]
		if ok && entry.hash != hash {
			// хеш сменился после rotate
			delete(a.cache, key)
			ok = false
		}
		a.mu.Unlock()
		if ok && a.now().Before(entry.expires) {
			return entry.userID, nil
		}
	}

	if err := a.verify(secret, hash); err != nil {
		return "", errInvalidToken
	}

	if a.cfg.CacheTTL > 0 {
		a.mu.Lock()
		a.cache[key] = cachedToken{userID: userID, hash: hash, expires: a.now().Add(a.cfg.CacheTTL)}
		a.mu.Unlock()
	}
	return userID, nil
}

// PurgeExpired удаляет просроченные записи кеша. Возвращает число удаленных.
func (a *Authenticator) PurgeExpired() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	removed := 0
	for key, entry := range a.cache {
		if !now.Before(entry.expires) {
			delete(a.cache, key)
			removed++
		}
	}
	return removed
}

// extractToken достает токен из заголовка или query параметра access_token
func extractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get("access_token")
}

// DebugAuth - middleware для защиты служебных endpoints (/metrics)
//
// Использует HTTP Basic Authentication с constant-time сравнением.
// Если credentials не настроены: в development доступ открыт, в production 403.
//
// Использование:
//
//	router.Handle("/metrics", middleware.DebugAuth(user, pass, !production)(promhttp.Handler()))
func DebugAuth(username, password string, allowOpen bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if username == "" || password == "" {
				if allowOpen {
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, "Debug endpoints disabled. Set DEBUG_USERNAME and DEBUG_PASSWORD.", http.StatusForbidden)
				return
			}

			user, pass, ok := r.BasicAuth()
			if !ok {
				w.Header().Set("WWW-Authenticate", `Basic realm="Debug endpoints"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// Constant-time сравнение для предотвращения timing attacks
			userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
			passMatch := subtle.ConstantTimeCompare([]byte(pass), []byte(password)) == 1

			if !userMatch || !passMatch {
				w.Header().Set("WWW-Authenticate", `Basic realm="Debug endpoints"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
