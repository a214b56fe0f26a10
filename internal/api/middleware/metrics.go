// metrics.go — Prometheus HTTP метрики для Artifact Repository.
// Регистрирует метрики: ar_http_requests_total, ar_http_request_duration_seconds.
// Бизнес-метрики (ar_artifacts_total, ar_versions_total и др.) регистрируются
// здесь же и обновляются из сервисного слоя.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ar_http_requests_total",
			Help: "Общее количество HTTP-запросов к Artifact Repository",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ar_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Artifact Repository в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Бизнес-метрики (экспортируются для обновления из сервисного слоя)
var (
	// ArtifactsTotal — текущее количество артефактов (gauge, по статусу).
	ArtifactsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ar_artifacts_total",
			Help: "Текущее количество артефактов в репозитории",
		},
		[]string{"status"},
	)

	// VersionsTotal — текущее количество версий всех артефактов (gauge).
	VersionsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ar_versions_total",
			Help: "Текущее количество версий всех артефактов",
		},
	)

	// SessionsActive — количество активных сессий совместного редактирования.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ar_sessions_active",
			Help: "Количество активных сессий совместного редактирования",
		},
	)

	// OperationsTotal — общее количество операций над артефактами.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ar_operations_total",
			Help: "Общее количество операций над артефактами",
		},
		[]string{"operation", "result"},
	)

	// GovernanceRejectionsTotal — количество отказов governance-сервиса.
	GovernanceRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ar_governance_rejections_total",
			Help: "Количество операций, отклонённых governance-сервисом",
		},
		[]string{"operation"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (заменяем идентификаторы на {id} для предотвращения кардинальности)
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath заменяет идентификаторы в сегментах пути на плейсхолдеры
// для предотвращения взрывного роста кардинальности метрик.
// /api/v1/artifacts/a1b2.../versions/1.2.0 → /api/v1/artifacts/{id}/versions/{version}
func normalizePath(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		switch {
		case isUUID(seg):
			segments[i] = "{id}"
		case isSemver(seg):
			segments[i] = "{version}"
		}
	}
	return strings.Join(segments, "/")
}

// isUUID проверяет, является ли сегмент UUID в формате 8-4-4-4-12.
func isUUID(segment string) bool {
	if len(segment) != 36 {
		return false
	}
	for i, c := range segment {
		if i == 8 || i == 13 || i == 18 || i == 23 {
			if c != '-' {
				return false
			}
		} else {
			if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
				return false
			}
		}
	}
	return true
}

// isSemver проверяет, является ли сегмент версией вида X.Y.Z.
func isSemver(segment string) bool {
	parts := strings.Split(segment, ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
		for _, c := range p {
			if c < '0' || c > '9' {
				return false
			}
		}
	}
	return true
}
