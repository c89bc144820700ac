package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradejournal/internal/api/handlers"
	"tradejournal/internal/api/middleware"
	"tradejournal/internal/config"
	"tradejournal/internal/service"
	"tradejournal/internal/websocket"
	"tradejournal/pkg/ratelimit"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	JournalService     service.JournalServiceInterface
	LayoutService      service.LayoutServiceInterface
	PreferencesService service.PreferencesServiceInterface

	Hub     *websocket.Hub
	Auth    *middleware.Authenticator
	Limiter *ratelimit.KeyedLimiter // nil = без ограничения частоты
	Config  *config.Config
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /trades/
//	│   ├── GET / - список сделок (фильтры symbol, setup_type, status, from, to, limit, offset)
//	│   ├── POST / - создать сделку
//	│   ├── POST /import - импорт выгрузки
//	│   ├── GET /{id} - получить сделку
//	│   ├── PATCH /{id} - изменить сделку
//	│   └── DELETE /{id} - удалить сделку
//	├── /stats/
//	│   ├── GET / - снимок статистики
//	│   └── GET /sparkline - точки спарклайна
//	├── /dashboard/
//	│   ├── GET /layout - раскладка
//	│   ├── PUT /layout - сохранить позиции
//	│   ├── POST /layout/reset - раскладка по умолчанию
//	│   ├── GET /widgets - каталог виджетов
//	│   ├── POST /widgets - добавить виджет
//	│   └── DELETE /widgets/{id} - убрать виджет
//	└── /settings/
//	    ├── GET / - получить настройки
//	    ├── PATCH / - обновить настройки
//	    └── POST /reset - сбросить настройки
//
// /ws/
//
//	└── /stream - WebSocket обновлений журнала (токен в access_token)
//
// /health, /metrics (basic auth)
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
// 4. RateLimit (для всех маршрутов, если задан Limiter)
// 5. Auth (только /api/v1 и /ws)
func SetupRoutes(deps *Dependencies) *mux.Router {
	if deps == nil {
		deps = &Dependencies{}
	}
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.Config{}
	}

	router := mux.NewRouter()

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	if deps.Limiter != nil {
		router.Use(middleware.RateLimit(deps.Limiter, cfg.RateLimit.TrustProxy))
	}

	// Создание handlers с внедрением зависимостей
	var tradeHandler *handlers.TradeHandler
	var statsHandler *handlers.StatsHandler
	if deps.JournalService != nil {
		tradeHandler = handlers.NewTradeHandler(deps.JournalService)
		statsHandler = handlers.NewStatsHandler(deps.JournalService)
	}

	var dashboardHandler *handlers.DashboardHandler
	if deps.LayoutService != nil {
		dashboardHandler = handlers.NewDashboardHandler(deps.LayoutService)
	}

	var settingsHandler *handlers.SettingsHandler
	if deps.PreferencesService != nil {
		settingsHandler = handlers.NewSettingsHandler(deps.PreferencesService)
	}

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()
	if deps.Auth != nil {
		api.Use(deps.Auth.Middleware)
	}

	// Trade routes
	if tradeHandler != nil {
		api.HandleFunc("/trades", tradeHandler.ListTrades).Methods("GET")
		api.HandleFunc("/trades", tradeHandler.CreateTrade).Methods("POST")
		api.HandleFunc("/trades/import", tradeHandler.ImportTrades).Methods("POST")
		api.HandleFunc("/trades/{id:[0-9]+}", tradeHandler.GetTrade).Methods("GET")
		api.HandleFunc("/trades/{id:[0-9]+}", tradeHandler.UpdateTrade).Methods("PATCH")
		api.HandleFunc("/trades/{id:[0-9]+}", tradeHandler.DeleteTrade).Methods("DELETE")
	}

	// Stats routes
	if statsHandler != nil {
		api.HandleFunc("/stats", statsHandler.GetStats).Methods("GET")
		api.HandleFunc("/stats/sparkline", statsHandler.GetSparkline).Methods("GET")
	}

	// Dashboard routes
	if dashboardHandler != nil {
		api.HandleFunc("/dashboard/layout", dashboardHandler.GetLayout).Methods("GET")
		api.HandleFunc("/dashboard/layout", dashboardHandler.UpdateLayout).Methods("PUT")
		api.HandleFunc("/dashboard/layout/reset", dashboardHandler.ResetLayout).Methods("POST")
		api.HandleFunc("/dashboard/widgets", dashboardHandler.GetWidgets).Methods("GET")
		api.HandleFunc("/dashboard/widgets", dashboardHandler.AddWidget).Methods("POST")
		api.HandleFunc("/dashboard/widgets/{id}", dashboardHandler.RemoveWidget).Methods("DELETE")
	}

	// Settings routes
	if settingsHandler != nil {
		api.HandleFunc("/settings", settingsHandler.GetSettings).Methods("GET")
		api.HandleFunc("/settings", settingsHandler.UpdateSettings).Methods("PATCH")
		api.HandleFunc("/settings/reset", settingsHandler.ResetSettings).Methods("POST")
	}

	// WebSocket route
	if deps.Hub != nil {
		ws := router.PathPrefix("/ws").Subrouter()
		if deps.Auth != nil {
			ws.Use(deps.Auth.Middleware)
		}
		hub := deps.Hub
		ws.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
			userID, ok := middleware.UserIDFromContext(r.Context())
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			websocket.ServeWS(hub, w, r, userID)
		}).Methods("GET")
	}

	// Prometheus metrics
	metricsAuth := middleware.DebugAuth(cfg.Security.DebugUsername, cfg.Security.DebugPassword, !cfg.IsProduction())
	router.Handle("/metrics", metricsAuth(promhttp.Handler())).Methods("GET")

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	// Preflight для любого пути: mux вызывает middleware только для совпавшего маршрута
	router.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return router
}
