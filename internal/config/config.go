// Пакет config — загрузка и валидация конфигурации file-vault
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации file-vault.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	// Таймаут чтения HTTP-сервера
	HTTPReadTimeout time.Duration
	// Таймаут записи HTTP-сервера
	HTTPWriteTimeout time.Duration
	// Таймаут простоя HTTP-сервера
	HTTPIdleTimeout time.Duration
	// Таймаут graceful shutdown
	ShutdownTimeout time.Duration

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// --- Redis (session store) ---

	// RedisURL — адрес Redis в формате redis://host:port
	RedisURL string
	// SessionTTL — время жизни сессионного токена
	SessionTTL time.Duration

	// --- Хранилище ---

	// DataDir — корневая директория blob-хранилища (FV_DATA_DIR)
	DataDir string
	// MaxUploadSize — максимальный размер тела запроса загрузки, байт
	MaxUploadSize int64

	// --- Кэш метаданных ---

	// CacheSize — максимальное количество записей LRU-кэша
	CacheSize int
	// CacheTTL — время жизни записи кэша
	CacheTTL time.Duration

	// --- Конвейер миниатюр ---

	// ThumbWorkers — размер пула воркеров
	ThumbWorkers int
	// ThumbPollInterval — интервал опроса очереди заданий
	ThumbPollInterval time.Duration
	// ThumbJobTimeout — ограничение wall-clock на одно задание
	ThumbJobTimeout time.Duration
	// ThumbMaxAttempts — максимум попыток задания
	ThumbMaxAttempts int
	// ThumbRetryBackoff — базовая задержка перед повтором
	ThumbRetryBackoff time.Duration
	// ThumbLeaseTimeout — аренда захваченного задания
	ThumbLeaseTimeout time.Duration

	// --- Dependency health (topologymetrics) ---

	// DephealthGroup — имя группы в метриках dephealth
	DephealthGroup string
	// DephealthCheckInterval — интервал проверки зависимостей
	DephealthCheckInterval time.Duration
	// DephealthIsEntry — пометка entry-вершины графа зависимостей
	DephealthIsEntry bool
}

// DatabaseDSN возвращает строку подключения PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// FV_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("FV_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("FV_PORT: %w", err)
	}

	// FV_LOG_LEVEL — уровень логирования (по умолчанию info)
	logLevel := getEnvDefault("FV_LOG_LEVEL", "info")
	cfg.LogLevel, err = parseLogLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("FV_LOG_LEVEL: %w", err)
	}

	// FV_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("FV_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("FV_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- HTTP Server Timeouts ---

	cfg.HTTPReadTimeout, err = getEnvDuration("FV_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FV_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("FV_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FV_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("FV_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FV_HTTP_IDLE_TIMEOUT: %w", err)
	}
	cfg.ShutdownTimeout, err = getEnvDuration("FV_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FV_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	cfg.DBHost = getEnvDefault("FV_DB_HOST", "localhost")
	cfg.DBPort, err = getEnvInt("FV_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("FV_DB_PORT: %w", err)
	}
	cfg.DBUser = getEnvDefault("FV_DB_USER", "filevault")
	cfg.DBPassword, err = getEnvRequired("FV_DB_PASSWORD")
	if err != nil {
		return nil, err
	}
	cfg.DBName = getEnvDefault("FV_DB_NAME", "filevault")
	cfg.DBSSLMode = getEnvDefault("FV_DB_SSLMODE", "disable")

	// --- Redis ---

	cfg.RedisURL = getEnvDefault("FV_REDIS_URL", "redis://localhost:6379")
	cfg.SessionTTL, err = getEnvDuration("FV_SESSION_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("FV_SESSION_TTL: %w", err)
	}

	// --- Хранилище ---

	// FV_DATA_DIR — обязательный корень blob-хранилища
	cfg.DataDir, err = getEnvRequired("FV_DATA_DIR")
	if err != nil {
		return nil, err
	}

	// FV_MAX_UPLOAD_SIZE — максимальный размер загрузки (по умолчанию 64 MiB)
	maxUpload, err := getEnvInt("FV_MAX_UPLOAD_SIZE", 64<<20)
	if err != nil {
		return nil, fmt.Errorf("FV_MAX_UPLOAD_SIZE: %w", err)
	}
	if maxUpload <= 0 {
		return nil, fmt.Errorf("FV_MAX_UPLOAD_SIZE: значение должно быть > 0")
	}
	cfg.MaxUploadSize = int64(maxUpload)

	// --- Кэш метаданных ---

	cfg.CacheSize, err = getEnvInt("FV_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("FV_CACHE_SIZE: %w", err)
	}
	cfg.CacheTTL, err = getEnvDuration("FV_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FV_CACHE_TTL: %w", err)
	}

	// --- Конвейер миниатюр ---

	cfg.ThumbWorkers, err = getEnvInt("FV_THUMB_WORKERS", 4)
	if err != nil {
		return nil, fmt.Errorf("FV_THUMB_WORKERS: %w", err)
	}
	if cfg.ThumbWorkers < 1 {
		return nil, fmt.Errorf("FV_THUMB_WORKERS: значение должно быть >= 1")
	}
	cfg.ThumbPollInterval, err = getEnvDuration("FV_THUMB_POLL_INTERVAL", time.Second)
	if err != nil {
		return nil, fmt.Errorf("FV_THUMB_POLL_INTERVAL: %w", err)
	}
	cfg.ThumbJobTimeout, err = getEnvDuration("FV_THUMB_JOB_TIMEOUT", 2*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FV_THUMB_JOB_TIMEOUT: %w", err)
	}
	cfg.ThumbMaxAttempts, err = getEnvInt("FV_THUMB_MAX_ATTEMPTS", 5)
	if err != nil {
		return nil, fmt.Errorf("FV_THUMB_MAX_ATTEMPTS: %w", err)
	}
	if cfg.ThumbMaxAttempts < 1 {
		return nil, fmt.Errorf("FV_THUMB_MAX_ATTEMPTS: значение должно быть >= 1")
	}
	cfg.ThumbRetryBackoff, err = getEnvDuration("FV_THUMB_RETRY_BACKOFF", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FV_THUMB_RETRY_BACKOFF: %w", err)
	}
	cfg.ThumbLeaseTimeout, err = getEnvDuration("FV_THUMB_LEASE_TIMEOUT", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FV_THUMB_LEASE_TIMEOUT: %w", err)
	}
	if cfg.ThumbLeaseTimeout <= cfg.ThumbJobTimeout {
		return nil, fmt.Errorf("FV_THUMB_LEASE_TIMEOUT: аренда должна превышать FV_THUMB_JOB_TIMEOUT")
	}

	// --- Dependency health ---

	cfg.DephealthGroup = getEnvDefault("FV_DEPHEALTH_GROUP", "filevault")
	cfg.DephealthCheckInterval, err = getEnvDuration("FV_DEPHEALTH_CHECK_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FV_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthIsEntry, err = getEnvBool("DEPHEALTH_ISENTRY", false)
	if err != nil {
		return nil, fmt.Errorf("DEPHEALTH_ISENTRY: %w", err)
	}

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
