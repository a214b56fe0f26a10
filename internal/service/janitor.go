// janitor.go — сервис фоновой очистки репозитория.
//
// Janitor выполняет три задачи:
//  1. Удаляет завершённые и отменённые сессии старше AR_SESSION_RETENTION
//  2. Удаляет закоммиченные и откаченные WAL-записи
//  3. Удаляет orphan blob-ы, на которые не ссылается ни одна версия
//     (остатки прерванных транзакций создания)
//
// Запускается как горутина с периодическим тикером (AR_JANITOR_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/artstore/artifact-repository/internal/storage/blob"
	"github.com/arturkryukov/artstore/artifact-repository/internal/storage/versionstore"
	"github.com/arturkryukov/artstore/artifact-repository/internal/storage/wal"
)

// Prometheus метрики janitor
var (
	// janitorRunsTotal — количество запусков janitor.
	janitorRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ar_janitor_runs_total",
		Help: "Общее количество запусков janitor",
	})

	// janitorSessionsPurgedTotal — количество удалённых закрытых сессий.
	janitorSessionsPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ar_janitor_sessions_purged_total",
		Help: "Общее количество удалённых закрытых сессий",
	})

	// janitorWALCleanedTotal — количество удалённых завершённых WAL-записей.
	janitorWALCleanedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ar_janitor_wal_cleaned_total",
		Help: "Общее количество удалённых завершённых WAL-записей",
	})

	// janitorBlobsPurgedTotal — количество удалённых orphan blob-ов.
	janitorBlobsPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ar_janitor_blobs_purged_total",
		Help: "Общее количество удалённых orphan blob-ов",
	})

	// janitorDurationSeconds — длительность выполнения janitor.
	janitorDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ar_janitor_duration_seconds",
		Help:    "Длительность выполнения janitor в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// JanitorResult — результат одного запуска janitor.
type JanitorResult struct {
	// SessionsPurged — количество удалённых закрытых сессий
	SessionsPurged int
	// WALCleaned — количество удалённых завершённых WAL-записей
	WALCleaned int
	// BlobsPurged — количество удалённых orphan blob-ов
	BlobsPurged int
	// Errors — количество ошибок при обработке
	Errors int
	// Duration — длительность выполнения
	Duration time.Duration
}

// JanitorService — сервис фоновой очистки.
type JanitorService struct {
	sessions  *SessionService
	walEngine *wal.WAL
	blobs     *blob.Store
	store     *versionstore.Store
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
}

// NewJanitorService создаёт сервис очистки.
func NewJanitorService(
	sessions *SessionService,
	walEngine *wal.WAL,
	blobs *blob.Store,
	store *versionstore.Store,
	retention time.Duration,
	interval time.Duration,
	logger *slog.Logger,
) *JanitorService {
	return &JanitorService{
		sessions:  sessions,
		walEngine: walEngine,
		blobs:     blobs,
		store:     store,
		retention: retention,
		interval:  interval,
		logger:    logger.With(slog.String("component", "janitor")),
	}
}

// Start запускает фоновую горутину с периодическим тикером.
// Вызывается один раз при старте приложения.
func (j *JanitorService) Start(ctx context.Context) {
	jCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel

	go j.run(jCtx)

	j.logger.Info("Janitor запущен",
		slog.String("interval", j.interval.String()),
		slog.String("session_retention", j.retention.String()),
	)
}

// Stop останавливает фоновый процесс.
func (j *JanitorService) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	j.logger.Info("Janitor остановлен")
}

// run — основной цикл фоновой горутины.
func (j *JanitorService) run(ctx context.Context) {
	// Первый запуск — сразу после старта
	j.RunOnce()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.RunOnce()
		}
	}
}

// RunOnce выполняет один цикл очистки.
// Потокобезопасен: использует mutex для защиты от параллельного запуска.
func (j *JanitorService) RunOnce() *JanitorResult {
	j.mu.Lock()
	defer j.mu.Unlock()

	start := time.Now()
	result := &JanitorResult{}

	j.logger.Debug("Janitor запуск начат")

	// Фаза 1: удаление закрытых сессий старше retention
	result.SessionsPurged = j.sessions.PurgeClosed(j.retention)

	// Фаза 2: очистка завершённых WAL-записей
	cleaned, err := j.walEngine.CleanCommitted()
	if err != nil {
		j.logger.Error("Janitor: ошибка очистки WAL",
			slog.String("error", err.Error()),
		)
		result.Errors++
	}
	result.WALCleaned = cleaned

	// Фаза 3: удаление orphan blob-ов
	purged, err := j.blobs.PurgeOrphans(j.store.LiveChecksums())
	if err != nil {
		j.logger.Error("Janitor: ошибка удаления orphan blob-ов",
			slog.String("error", err.Error()),
		)
		result.Errors++
	}
	result.BlobsPurged = purged

	result.Duration = time.Since(start)

	// Обновляем Prometheus метрики
	janitorRunsTotal.Inc()
	janitorSessionsPurgedTotal.Add(float64(result.SessionsPurged))
	janitorWALCleanedTotal.Add(float64(result.WALCleaned))
	janitorBlobsPurgedTotal.Add(float64(result.BlobsPurged))
	janitorDurationSeconds.Observe(result.Duration.Seconds())

	j.logger.Info("Janitor завершён",
		slog.Int("sessions_purged", result.SessionsPurged),
		slog.Int("wal_cleaned", result.WALCleaned),
		slog.Int("blobs_purged", result.BlobsPurged),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)

	return result
}
