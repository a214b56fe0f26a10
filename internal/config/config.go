// Пакет config — загрузка и валидация конфигурации Artifact Repository
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

// Config содержит все параметры конфигурации Artifact Repository.
type Config struct {
	// Порт HTTP-сервера (диапазон 8020-8029)
	Port int
	// Уникальный идентификатор инстанса (например, "ar-moscow-01")
	RepositoryID string
	// Путь к директории artifact.json снапшотов и blob-ов
	DataDir string
	// Путь к директории WAL
	WALDir string
	// Путь к директории библиотеки шаблонов (опционально)
	TemplatesDir string
	// Максимальный размер контента версии в байтах
	MaxContentSize int64
	// Блокировать продвижение версий с failed security/licensing
	EnforceCompliance bool
	// Отклонять рёбра зависимостей, замыкающие цикл
	RejectDependencyCycles bool
	// URL governance-сервиса (пусто — все мутации одобряются)
	GovernanceURL string
	// Путь к CA-сертификату governance-сервиса (опционально)
	GovernanceCACert string
	// Таймаут запросов к governance-сервису
	GovernanceTimeout time.Duration
	// URL сервиса экспорта (опционально)
	ExportURL string
	// URL приёмника событий аудита (пусто — события пишутся в лог)
	NotifyURL string
	// Ёмкость буфера событий аудита
	NotifyBufferSize int
	// TTL кэша поисковой выдачи
	SearchCacheTTL time.Duration
	// Размер кэша поисковой выдачи (записей)
	SearchCacheSize int
	// Интервал запуска janitor (очистка WAL, сессий, orphan blob-ов)
	JanitorInterval time.Duration
	// Возраст закрытой сессии до удаления janitor-ом
	SessionRetention time.Duration
	// Интервал автоматической сверки снапшотов, blob-ов и индекса
	ReconcileInterval time.Duration
	// URL JWKS endpoint
	JWKSUrl string
	// Путь к CA-сертификату для проверки TLS JWKS endpoint (опционально)
	JWKSCACert string
	// Пропускать проверку TLS-сертификатов исходящих клиентов
	TLSSkipVerify bool
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
	// Путь к TLS сертификату (опционально, пусто — plain HTTP)
	TLSCert string
	// Путь к TLS приватному ключу
	TLSKey string
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics (AR_DEPHEALTH_GROUP)
	DephealthGroup string
	// Имя владельца пода для метки name в topologymetrics (DEPHEALTH_NAME)
	DephealthName string
	// Таймаут graceful shutdown HTTP-сервера.
	// Должен быть меньше K8s terminationGracePeriodSeconds.
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}

	// AR_PORT — порт HTTP-сервера (по умолчанию 8020)
	port, err := getEnvInt("AR_PORT", 8020)
	if err != nil {
		return nil, fmt.Errorf("AR_PORT: %w", err)
	}
	if port < 8020 || port > 8029 {
		return nil, fmt.Errorf("AR_PORT: значение %d вне допустимого диапазона 8020-8029", port)
	}
	cfg.Port = port

	// AR_REPOSITORY_ID — обязательный
	cfg.RepositoryID, err = getEnvRequired("AR_REPOSITORY_ID")
	if err != nil {
		return nil, err
	}

	// AR_DATA_DIR — обязательный
	cfg.DataDir, err = getEnvRequired("AR_DATA_DIR")
	if err != nil {
		return nil, err
	}

	// AR_WAL_DIR — обязательный
	cfg.WALDir, err = getEnvRequired("AR_WAL_DIR")
	if err != nil {
		return nil, err
	}

	// AR_TEMPLATES_DIR — директория шаблонов (опционально)
	cfg.TemplatesDir = getEnvDefault("AR_TEMPLATES_DIR", "")

	// AR_MAX_CONTENT_SIZE — максимальный размер контента версии (по умолчанию 64 MB)
	maxContentSize, err := getEnvInt64("AR_MAX_CONTENT_SIZE", 67108864)
	if err != nil {
		return nil, fmt.Errorf("AR_MAX_CONTENT_SIZE: %w", err)
	}
	if maxContentSize <= 0 {
		return nil, fmt.Errorf("AR_MAX_CONTENT_SIZE: значение должно быть положительным")
	}
	cfg.MaxContentSize = maxContentSize

	// AR_ENFORCE_COMPLIANCE — блокировать продвижение при failed
	// security/licensing (по умолчанию false)
	cfg.EnforceCompliance, err = getEnvBool("AR_ENFORCE_COMPLIANCE", false)
	if err != nil {
		return nil, fmt.Errorf("AR_ENFORCE_COMPLIANCE: %w", err)
	}

	// AR_REJECT_DEPENDENCY_CYCLES — отклонять циклы зависимостей
	// (по умолчанию false)
	cfg.RejectDependencyCycles, err = getEnvBool("AR_REJECT_DEPENDENCY_CYCLES", false)
	if err != nil {
		return nil, fmt.Errorf("AR_REJECT_DEPENDENCY_CYCLES: %w", err)
	}

	// AR_GOVERNANCE_URL — URL governance-сервиса (опционально)
	cfg.GovernanceURL = getEnvDefault("AR_GOVERNANCE_URL", "")

	// AR_GOVERNANCE_CA_CERT — CA-сертификат governance-сервиса (опционально)
	cfg.GovernanceCACert = getEnvDefault("AR_GOVERNANCE_CA_CERT", "")

	// AR_GOVERNANCE_TIMEOUT — таймаут запросов к governance (по умолчанию 10s)
	cfg.GovernanceTimeout, err = getEnvDuration("AR_GOVERNANCE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AR_GOVERNANCE_TIMEOUT: %w", err)
	}

	// AR_EXPORT_URL — URL сервиса экспорта (опционально)
	cfg.ExportURL = getEnvDefault("AR_EXPORT_URL", "")

	// AR_NOTIFY_URL — URL приёмника событий аудита (опционально)
	cfg.NotifyURL = getEnvDefault("AR_NOTIFY_URL", "")

	// AR_NOTIFY_BUFFER_SIZE — ёмкость буфера событий (по умолчанию 256)
	cfg.NotifyBufferSize, err = getEnvInt("AR_NOTIFY_BUFFER_SIZE", 256)
	if err != nil {
		return nil, fmt.Errorf("AR_NOTIFY_BUFFER_SIZE: %w", err)
	}

	// AR_SEARCH_CACHE_TTL — TTL кэша поиска (по умолчанию 30s)
	cfg.SearchCacheTTL, err = getEnvDuration("AR_SEARCH_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AR_SEARCH_CACHE_TTL: %w", err)
	}

	// AR_SEARCH_CACHE_SIZE — размер кэша поиска (по умолчанию 512 записей)
	cfg.SearchCacheSize, err = getEnvInt("AR_SEARCH_CACHE_SIZE", 512)
	if err != nil {
		return nil, fmt.Errorf("AR_SEARCH_CACHE_SIZE: %w", err)
	}

	// AR_JANITOR_INTERVAL — интервал janitor (по умолчанию 1h)
	cfg.JanitorInterval, err = getEnvDuration("AR_JANITOR_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("AR_JANITOR_INTERVAL: %w", err)
	}

	// AR_SESSION_RETENTION — возраст закрытой сессии до удаления (по умолчанию 24h)
	cfg.SessionRetention, err = getEnvDuration("AR_SESSION_RETENTION", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("AR_SESSION_RETENTION: %w", err)
	}

	// AR_RECONCILE_INTERVAL — интервал сверки (по умолчанию 6h)
	cfg.ReconcileInterval, err = getEnvDuration("AR_RECONCILE_INTERVAL", 6*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("AR_RECONCILE_INTERVAL: %w", err)
	}

	// AR_JWKS_URL — обязательный
	cfg.JWKSUrl, err = getEnvRequired("AR_JWKS_URL")
	if err != nil {
		return nil, err
	}

	// AR_JWKS_CA_CERT — CA-сертификат для JWKS endpoint (опционально)
	cfg.JWKSCACert = getEnvDefault("AR_JWKS_CA_CERT", "")

	// AR_TLS_SKIP_VERIFY — пропускать проверку TLS исходящих клиентов
	// (по умолчанию false, только для стендов)
	cfg.TLSSkipVerify, err = getEnvBool("AR_TLS_SKIP_VERIFY", false)
	if err != nil {
		return nil, fmt.Errorf("AR_TLS_SKIP_VERIFY: %w", err)
	}

	// AR_JWKS_CLIENT_TIMEOUT — таймаут HTTP-клиента JWKS (по умолчанию 30s)
	cfg.JWKSClientTimeout, err = getEnvDuration("AR_JWKS_CLIENT_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AR_JWKS_CLIENT_TIMEOUT: %w", err)
	}

	// AR_JWKS_REFRESH_INTERVAL — интервал обновления JWKS-ключей (по умолчанию 15s)
	cfg.JWKSRefreshInterval, err = getEnvDuration("AR_JWKS_REFRESH_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AR_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// AR_JWT_LEEWAY — допуск времени при проверке JWT (по умолчанию 5s)
	cfg.JWTLeeway, err = getEnvDuration("AR_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AR_JWT_LEEWAY: %w", err)
	}

	// AR_TLS_CERT / AR_TLS_KEY — TLS-пара (опционально, но только вместе)
	cfg.TLSCert = getEnvDefault("AR_TLS_CERT", "")
	cfg.TLSKey = getEnvDefault("AR_TLS_KEY", "")
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, fmt.Errorf("AR_TLS_CERT и AR_TLS_KEY должны быть заданы вместе")
	}

	// AR_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("AR_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("AR_LOG_LEVEL: %w", err)
	}

	// AR_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("AR_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("AR_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// AR_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("AR_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AR_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// AR_DEPHEALTH_GROUP — имя группы в метриках topologymetrics
	// (по умолчанию "artifact-repository")
	cfg.DephealthGroup = getEnvDefault("AR_DEPHEALTH_GROUP", "artifact-repository")

	// DEPHEALTH_NAME — имя владельца пода для метки name в topologymetrics
	cfg.DephealthName = getEnvDefault("DEPHEALTH_NAME", "")

	// AR_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("AR_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AR_SHUTDOWN_TIMEOUT: %w", err)
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

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (используйте true/false)", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
	}
	return d, nil
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
