package utils

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logger.go - структурированное логирование на базе zap
//
// Функции:
// - InitLogger: создать logger по LogConfig (json/text, уровень, файл)
// - InitGlobalLogger / SetGlobalLogger / L: глобальный logger
// - With*: дочерние логгеры с компонентом, пользователем, сделкой
// - Конструкторы полей журнала: Symbol, UserID, TradeID, PNL, ...

// LogConfig - настройки логирования
type LogConfig struct {
	Level       string // debug, info, warn, error, fatal
	Format      string // json, text
	Output      string // путь к файлу; пусто = stdout
	Development bool
}

// Logger - обертка над zap.Logger с полями журнала
type Logger struct {
	*zap.Logger
}

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

// InitLogger создает новый logger по конфигурации.
//
// Если файл вывода открыть не удалось, пишет в stdout.
func InitLogger(cfg LogConfig) *Logger {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.MessageKey = "message"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "text" {
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	writer := zapcore.AddSync(os.Stdout)
	if cfg.Output != "" {
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			writer = zapcore.AddSync(f)
		}
	}

	core := zapcore.NewCore(encoder, writer, parseLevel(cfg.Level))

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	return &Logger{Logger: zap.New(core, opts...)}
}

// parseLevel переводит строку уровня в zapcore.Level (по умолчанию info)
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// InitGlobalLogger создает logger и делает его глобальным
func InitGlobalLogger(cfg LogConfig) *Logger {
	logger := InitLogger(cfg)
	SetGlobalLogger(logger)
	return logger
}

// SetGlobalLogger устанавливает глобальный logger
func SetGlobalLogger(logger *Logger) {
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// GetGlobalLogger возвращает глобальный logger, создавая дефолтный при первом обращении
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	logger := globalLogger
	globalMu.RUnlock()
	if logger != nil {
		return logger
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{})
	}
	return globalLogger
}

// L - короткий алиас для GetGlobalLogger
func L() *Logger {
	return GetGlobalLogger()
}

// With возвращает дочерний logger с дополнительными полями
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// WithComponent добавляет имя компонента
func (l *Logger) WithComponent(name string) *Logger {
	return l.With(Component(name))
}

// WithUser добавляет идентификатор пользователя
func (l *Logger) WithUser(userID string) *Logger {
	return l.With(UserID(userID))
}

// WithTradeID добавляет ID сделки
func (l *Logger) WithTradeID(id int64) *Logger {
	return l.With(TradeID(id))
}

// ============================================================
// Поля журнала
// ============================================================

func Symbol(symbol string) zap.Field { return zap.String("symbol", symbol) }
func UserID(id string) zap.Field { return zap.String("user_id", id) }
func TradeID(id int64) zap.Field { return zap.Int64("trade_id", id) }
func PNL(pnl float64) zap.Field { return zap.Float64("pnl", pnl) }
func Direction(dir string) zap.Field { return zap.String("direction", dir) }
func WidgetID(id string) zap.Field { return zap.String("widget_id", id) }
func Breakpoint(name string) zap.Field { return zap.String("breakpoint", name) }
func Component(name string) zap.Field { return zap.String("component", name) }
func RequestID(id string) zap.Field { return zap.String("request_id", id) }
func Latency(ms float64) zap.Field { return zap.Float64("latency_ms", ms) }
func TradeCount(n int) zap.Field { return zap.Int("trade_count", n) }
func IssueKind(kind string) zap.Field { return zap.String("issue_kind", kind) }

// Field - алиас zap.Field, чтобы пакетам не импортировать zap напрямую
type Field = zap.Field

// Переэкспорт базовых конструкторов zap
var (
	String = zap.String
	Int    = zap.Int
	Int64  = zap.Int64
	Bool   = zap.Bool
	Err    = zap.Error
)
