package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"tradejournal/internal/api"
	"tradejournal/internal/api/middleware"
	"tradejournal/internal/config"
	"tradejournal/internal/repository"
	"tradejournal/internal/service"
	"tradejournal/internal/websocket"
	"tradejournal/pkg/ratelimit"
	"tradejournal/pkg/retry"
	"tradejournal/pkg/utils"
)

// janitorInterval период очистки кешей токенов и rate limiter
const janitorInterval = time.Minute

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := utils.InitGlobalLogger(cfg.Logging.LogConfig(!cfg.IsProduction()))
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", utils.Err(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *utils.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	journalDefaults, err := cfg.Journal.Options()
	if err != nil {
		return err
	}

	// Инициализация базы данных
	db, err := repository.Open(ctx, repository.OpenConfig{
		Driver:   cfg.Database.Driver,
		DSN:      cfg.Database.DSN(),
		MaxConns: cfg.Database.MaxConns,
		Retry:    retry.StartupConfig(),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	logger.Info("connected to database",
		utils.String("driver", cfg.Database.Driver),
		utils.String("dsn", cfg.Database.DSNWithoutPassword()),
	)

	// Инициализация репозиториев
	tradeRepo := repository.NewTradeRepository(db)
	layoutRepo := repository.NewLayoutRepository(db)
	prefsRepo := repository.NewPreferencesRepository(db)
	userRepo := repository.NewUserRepository(db)

	// WebSocket hub
	hub := websocket.NewHub()
	hub.SetAllowedOrigins(cfg.Server.AllowedOrigins)
	go hub.Run()
	defer hub.Stop()

	// Инициализация сервисов
	prefsService := service.NewPreferencesService(prefsRepo)

	journalService := service.NewJournalService(tradeRepo, prefsService)
	journalService.SetDefaultOptions(journalDefaults)
	journalService.SetWebSocketHub(hub)

	layoutService := service.NewLayoutService(layoutRepo, nil)
	layoutService.SetWebSocketHub(hub)

	auth := middleware.NewAuthenticator(userRepo, middleware.AuthConfig{
		Enabled:       cfg.Security.AuthEnabled,
		DefaultUserID: cfg.Security.DefaultUserID,
		CacheTTL:      cfg.Security.TokenCacheTTL,
	})
	if !cfg.Security.AuthEnabled {
		logger.Warn("authentication disabled, all requests use default user",
			utils.UserID(cfg.Security.DefaultUserID))
	}

	var limiter *ratelimit.KeyedLimiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewKeyedLimiter(cfg.RateLimit.RequestsPerSec, cfg.RateLimit.Burst)
	}
	go janitor(ctx, auth, limiter, logger)

	// Настройка HTTP роутера
	router := api.SetupRoutes(&api.Dependencies{
		JournalService:     journalService,
		LayoutService:      layoutService,
		PreferencesService: prefsService,
		Hub:                hub,
		Auth:               auth,
		Limiter:            limiter,
		Config:             cfg,
	})

	// HTTP сервер
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", utils.String("addr", server.Addr), utils.Bool("https", cfg.Server.UseHTTPS))
		var err error
		if cfg.Server.UseHTTPS {
			err = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Graceful shutdown
	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited")
	return nil
}

// janitor периодически удаляет просроченные записи кеша токенов и простаивающие бакеты
func janitor(ctx context.Context, auth *middleware.Authenticator, limiter *ratelimit.KeyedLimiter, logger *utils.Logger) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tokens := auth.PurgeExpired()
			buckets := 0
			if limiter != nil {
				buckets = limiter.Cleanup(10 * janitorInterval)
			}
			if tokens > 0 || buckets > 0 {
				logger.Debug("janitor cleanup", utils.Int("tokens", tokens), utils.Int("buckets", buckets))
			}
		}
	}
}
