package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tradejournal/pkg/utils"
)

// clearEnv сбрасывает переменные, которые могли прийти из окружения CI
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SERVER_PORT", "ENV", "USE_HTTPS", "DB_DRIVER", "DB_PORT", "SQLITE_PATH",
		"AUTH_ENABLED", "DEFAULT_USER_ID", "DEBUG_USERNAME", "DEBUG_PASSWORD",
		"RATE_LIMIT_ENABLED", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "ALLOWED_ORIGINS",
		"JOURNAL_WEEK_START", "JOURNAL_TIMEZONE", "JOURNAL_SPARKLINE_PERIODS",
	} {
		t.Setenv(key, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Driver = %s", cfg.Database.Driver)
	}
	if !cfg.Security.AuthEnabled {
		t.Error("auth should be enabled by default")
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v", cfg.Server.ShutdownTimeout)
	}
	if len(cfg.Server.AllowedOrigins) != 0 {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}

	opts, err := cfg.Journal.Options()
	if err != nil {
		t.Fatalf("Options: %v", err)
	}
	if opts.WeekStart != utils.WeekStartMonday || opts.Location.String() != "UTC" || opts.SparklinePeriods != 10 {
		t.Errorf("unexpected journal defaults %+v", opts)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("SQLITE_PATH", "/tmp/j.db")
	t.Setenv("ALLOWED_ORIGINS", "http://a.local, ,http://b.local")
	t.Setenv("JOURNAL_WEEK_START", "Sunday")
	t.Setenv("JOURNAL_TIMEZONE", "Europe/Berlin")
	t.Setenv("JOURNAL_SPARKLINE_PERIODS", "30")
	t.Setenv("RATE_LIMIT_RPS", "2.5")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := cfg.Database.DSN(); !strings.HasPrefix(got, "file:/tmp/j.db?") {
		t.Errorf("DSN = %s", got)
	}
	if cfg.Database.DSNWithoutPassword() != "/tmp/j.db" {
		t.Errorf("DSNWithoutPassword = %s", cfg.Database.DSNWithoutPassword())
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "http://b.local" {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.RateLimit.RequestsPerSec != 2.5 {
		t.Errorf("RequestsPerSec = %v", cfg.RateLimit.RequestsPerSec)
	}

	opts, _ := cfg.Journal.Options()
	if opts.WeekStart != utils.WeekStartSunday || opts.Location.String() != "Europe/Berlin" || opts.SparklinePeriods != 30 {
		t.Errorf("unexpected journal options %+v", opts)
	}
}

func TestFromEnv_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "invalid port", env: map[string]string{"SERVER_PORT": "70000"}, want: "SERVER_PORT"},
		{name: "unknown driver", env: map[string]string{"DB_DRIVER": "mysql"}, want: "DB_DRIVER"},
		{name: "auth disabled in production", env: map[string]string{"ENV": "production", "AUTH_ENABLED": "false"}, want: "AUTH_ENABLED"},
		{name: "bad default user", env: map[string]string{"AUTH_ENABLED": "false", "DEFAULT_USER_ID": "a.b"}, want: "DEFAULT_USER_ID"},
		{name: "https without cert", env: map[string]string{"USE_HTTPS": "true"}, want: "CERT_FILE"},
		{name: "debug user only", env: map[string]string{"DEBUG_USERNAME": "admin"}, want: "DEBUG_PASSWORD"},
		{name: "zero rate", env: map[string]string{"RATE_LIMIT_RPS": "0"}, want: "RATE_LIMIT_RPS"},
		{name: "bad week start", env: map[string]string{"JOURNAL_WEEK_START": "friday"}, want: "JOURNAL_WEEK_START"},
		{name: "bad timezone", env: map[string]string{"JOURNAL_TIMEZONE": "Mars/Base"}, want: "JOURNAL_TIMEZONE"},
		{name: "too many periods", env: map[string]string{"JOURNAL_SPARKLINE_PERIODS": "500"}, want: "JOURNAL_SPARKLINE_PERIODS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := FromEnv()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %s", err, tt.want)
			}
		})
	}
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SERVER_PORT=9091\nJOURNAL_SPARKLINE_PERIODS=7\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	// godotenv не перекрывает заданные переменные, поэтому снимаем их
	os.Unsetenv("SERVER_PORT")
	os.Unsetenv("JOURNAL_SPARKLINE_PERIODS")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9091 || cfg.Journal.SparklinePeriods != 7 {
		t.Errorf("got port=%d periods=%d", cfg.Server.Port, cfg.Journal.SparklinePeriods)
	}
}

func TestLoad_NoDotEnv(t *testing.T) {
	clearEnv(t)

	wd, _ := os.Getwd()
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	if _, err := Load(); err != nil {
		t.Fatalf("missing .env must not be an error: %v", err)
	}
}
