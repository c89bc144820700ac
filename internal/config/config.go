package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"tradejournal/internal/journal"
	"tradejournal/pkg/utils"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Security  SecurityConfig
	RateLimit RateLimitConfig
	Journal   JournalConfig
	Logging   LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port            int
	Host            string
	Env             string // development | production
	UseHTTPS        bool
	CertFile        string
	KeyFile         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string // CORS и WebSocket origin; пусто = dev origins
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver     string // postgres | sqlite3
	Host       string
	Port       int
	Name       string
	User       string
	Password   string
	SSLMode    string
	SQLitePath string
	MaxConns   int
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	// AuthEnabled=false: локальный однопользовательский режим, все запросы
	// выполняются от имени DefaultUserID
	AuthEnabled   bool
	DefaultUserID string
	TokenCacheTTL time.Duration

	// Basic auth для /metrics
	DebugUsername string
	DebugPassword string
}

// RateLimitConfig - ограничение запросов на клиентский IP
type RateLimitConfig struct {
	Enabled        bool
	RequestsPerSec float64
	Burst          float64
	TrustProxy     bool // брать IP из X-Forwarded-For
}

// JournalConfig - серверные параметры агрегации по умолчанию
type JournalConfig struct {
	WeekStart        string
	Timezone         string
	SparklinePeriods int
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// Load загружает конфигурацию из переменных окружения.
//
// Если в рабочей директории есть .env, его значения подгружаются, но не
// перекрывают уже заданные переменные.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv строит конфигурацию только из окружения процесса
func FromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Env:             getEnv("ENV", "development"),
			UseHTTPS:        getEnvAsBool("USE_HTTPS", false),
			CertFile:        getEnv("CERT_FILE", ""),
			KeyFile:         getEnv("KEY_FILE", ""),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Driver:     getEnv("DB_DRIVER", "postgres"),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnvAsInt("DB_PORT", 5432),
			Name:       getEnv("DB_NAME", "journal"),
			User:       getEnv("DB_USER", "journal"),
			Password:   getEnv("DB_PASSWORD", ""),
			SSLMode:    getEnv("DB_SSL_MODE", "disable"),
			SQLitePath: getEnv("SQLITE_PATH", "journal.db"),
			MaxConns:   getEnvAsInt("DB_MAX_CONNS", 10),
		},
		Security: SecurityConfig{
			AuthEnabled:   getEnvAsBool("AUTH_ENABLED", true),
			DefaultUserID: getEnv("DEFAULT_USER_ID", "local"),
			TokenCacheTTL: getEnvAsDuration("TOKEN_CACHE_TTL", 5*time.Minute),
			DebugUsername: getEnv("DEBUG_USERNAME", ""),
			DebugPassword: getEnv("DEBUG_PASSWORD", ""),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvAsBool("RATE_LIMIT_ENABLED", true),
			RequestsPerSec: getEnvAsFloat("RATE_LIMIT_RPS", 20),
			Burst:          getEnvAsFloat("RATE_LIMIT_BURST", 40),
			TrustProxy:     getEnvAsBool("RATE_LIMIT_TRUST_PROXY", false),
		},
		Journal: JournalConfig{
			WeekStart:        getEnv("JOURNAL_WEEK_START", "monday"),
			Timezone:         getEnv("JOURNAL_TIMEZONE", "UTC"),
			SparklinePeriods: getEnvAsInt("JOURNAL_SPARKLINE_PERIODS", journal.DefaultSparklinePeriods),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", ""),
		},
	}

	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}

	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsProduction возвращает true для ENV=production
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Env, "production")
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	if !c.Security.AuthEnabled && c.IsProduction() {
		return fmt.Errorf("AUTH_ENABLED=false is not allowed in production")
	}

	if !c.Security.AuthEnabled {
		if err := utils.ValidateUserID(c.Security.DefaultUserID); err != nil {
			return fmt.Errorf("DEFAULT_USER_ID: %w", err)
		}
	}

	if c.Server.UseHTTPS && (c.Server.CertFile == "" || c.Server.KeyFile == "") {
		return fmt.Errorf("CERT_FILE and KEY_FILE are required when USE_HTTPS=true")
	}

	if (c.Security.DebugUsername == "") != (c.Security.DebugPassword == "") {
		return fmt.Errorf("DEBUG_USERNAME and DEBUG_PASSWORD must be set together")
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	// Валидация портов
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.Database.Driver {
	case "postgres":
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
		}
	case "sqlite3":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for sqlite3 driver")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite3, got %q", c.Database.Driver)
	}

	if c.Database.MaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be positive, got %d", c.Database.MaxConns)
	}

	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("SERVER_SHUTDOWN_TIMEOUT must be positive, got %v", c.Server.ShutdownTimeout)
	}

	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSec <= 0 || c.RateLimit.Burst < 1) {
		return fmt.Errorf("RATE_LIMIT_RPS must be positive and RATE_LIMIT_BURST at least 1")
	}

	if c.Security.TokenCacheTTL < 0 {
		return fmt.Errorf("TOKEN_CACHE_TTL cannot be negative, got %v", c.Security.TokenCacheTTL)
	}

	if _, err := c.Journal.Options(); err != nil {
		return err
	}

	return nil
}

// Options возвращает параметры агрегации по умолчанию
func (j JournalConfig) Options() (journal.Options, error) {
	opts := journal.DefaultOptions()

	ws, err := utils.ParseWeekStart(j.WeekStart)
	if err != nil {
		return opts, fmt.Errorf("JOURNAL_WEEK_START: %w", err)
	}
	loc, err := utils.LoadLocation(j.Timezone)
	if err != nil {
		return opts, fmt.Errorf("JOURNAL_TIMEZONE: %w", err)
	}
	if err := utils.ValidateSparklinePeriods(j.SparklinePeriods); err != nil {
		return opts, fmt.Errorf("JOURNAL_SPARKLINE_PERIODS: %w", err)
	}

	opts.WeekStart = ws
	opts.Location = loc
	opts.SparklinePeriods = j.SparklinePeriods
	return opts, nil
}

// LogConfig переводит настройки в формат utils.InitLogger
func (l LoggingConfig) LogConfig(development bool) utils.LogConfig {
	return utils.LogConfig{
		Level:       l.Level,
		Format:      l.Format,
		Output:      l.Output,
		Development: development,
	}
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite3" {
		return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", d.SQLitePath)
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	if d.Driver == "sqlite3" {
		return d.SQLitePath
	}
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
