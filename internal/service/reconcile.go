// reconcile.go — сервис фоновой сверки (Reconciliation) хранилища артефактов.
//
// Reconciliation сравнивает:
//   - Снапшоты артефактов в памяти с record-файлами на диске
//   - Контрольные суммы версий с содержимым blob store
//   - Активные артефакты с поисковым индексом
//
// Обнаруживает проблемы:
//   - missing_record: артефакт в памяти, но record-файла на диске нет
//   - orphaned_record: record-файл на диске без артефакта в памяти
//   - missing_blob: версия ссылается на checksum, которого нет в blob store
//   - checksum_mismatch: содержимое blob-а не соответствует его checksum
//   - index_missing: активный артефакт отсутствует в поисковом индексе
//
// Запускается как горутина с периодическим тикером (AR_RECONCILE_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/artstore/artifact-repository/internal/storage/blob"
	"github.com/arturkryukov/artstore/artifact-repository/internal/storage/record"
	"github.com/arturkryukov/artstore/artifact-repository/internal/storage/search"
	"github.com/arturkryukov/artstore/artifact-repository/internal/storage/versionstore"
)

// Типы проблем, обнаруживаемых reconciliation.
const (
	IssueMissingRecord    = "missing_record"
	IssueOrphanedRecord   = "orphaned_record"
	IssueMissingBlob      = "missing_blob"
	IssueChecksumMismatch = "checksum_mismatch"
	IssueIndexMissing     = "index_missing"
)

// Prometheus метрики Reconciliation
var (
	// reconcileRunsTotal — количество запусков reconciliation.
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ar_reconcile_runs_total",
		Help: "Общее количество запусков reconciliation",
	})

	// reconcileIssuesTotal — количество обнаруженных проблем по типу.
	reconcileIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ar_reconcile_issues_total",
		Help: "Общее количество проблем, обнаруженных reconciliation",
	}, []string{"type"})

	// reconcileDurationSeconds — длительность выполнения reconciliation.
	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ar_reconcile_duration_seconds",
		Help:    "Длительность выполнения reconciliation в секундах",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	})
)

// ReconcileIssue — одна обнаруженная проблема.
type ReconcileIssue struct {
	// Type — тип проблемы (missing_record, orphaned_record, missing_blob,
	// checksum_mismatch, index_missing)
	Type string `json:"type"`
	// ArtifactID — идентификатор затронутого артефакта (если известен)
	ArtifactID string `json:"artifact_id,omitempty"`
	// Checksum — checksum затронутого blob-а (для blob-проблем)
	Checksum string `json:"checksum,omitempty"`
	// Description — человекочитаемое описание
	Description string `json:"description"`
}

// ReconcileSummary — сводка по типам проблем.
type ReconcileSummary struct {
	Ok                 int `json:"ok"`
	MissingRecords     int `json:"missing_records"`
	OrphanedRecords    int `json:"orphaned_records"`
	MissingBlobs       int `json:"missing_blobs"`
	ChecksumMismatches int `json:"checksum_mismatches"`
	IndexMissing       int `json:"index_missing"`
}

// ReconcileResult — результат одного запуска reconciliation.
type ReconcileResult struct {
	StartedAt        time.Time        `json:"started_at"`
	CompletedAt      time.Time        `json:"completed_at"`
	ArtifactsChecked int              `json:"artifacts_checked"`
	BlobsChecked     int              `json:"blobs_checked"`
	Issues           []ReconcileIssue `json:"issues"`
	Summary          ReconcileSummary `json:"summary"`
}

// ReconcileService — сервис фоновой сверки хранилища.
type ReconcileService struct {
	store    *versionstore.Store
	blobs    *blob.Store
	idx      *search.Index
	dataDir  string
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex // защита от параллельного запуска
	inProcess bool       // reconciliation в процессе выполнения
	cancel    context.CancelFunc
}

// NewReconcileService создаёт сервис reconciliation.
func NewReconcileService(
	store *versionstore.Store,
	blobs *blob.Store,
	idx *search.Index,
	dataDir string,
	interval time.Duration,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		store:    store,
		blobs:    blobs,
		idx:      idx,
		dataDir:  dataDir,
		interval: interval,
		logger:   logger.With(slog.String("component", "reconcile")),
	}
}

// Start запускает фоновую горутину reconciliation с периодическим тикером.
func (rs *ReconcileService) Start(ctx context.Context) {
	rsCtx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel

	go rs.run(rsCtx)

	rs.logger.Info("Reconciliation запущена",
		slog.String("interval", rs.interval.String()),
	)
}

// Stop останавливает фоновой процесс reconciliation.
func (rs *ReconcileService) Stop() {
	if rs.cancel != nil {
		rs.cancel()
	}
	rs.logger.Info("Reconciliation остановлена")
}

// IsInProgress возвращает true, если reconciliation выполняется.
func (rs *ReconcileService) IsInProgress() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.inProcess
}

// run — основной цикл фоновой горутины.
func (rs *ReconcileService) run(ctx context.Context) {
	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rs.RunOnce()
		}
	}
}

// RunOnce выполняет один цикл reconciliation.
// Потокобезопасен: если reconciliation уже выполняется, возвращает nil, true.
//
// Возвращает:
//   - *ReconcileResult — результат сверки
//   - bool — true если reconciliation уже выполнялась (skipped)
func (rs *ReconcileService) RunOnce() (*ReconcileResult, bool) {
	rs.mu.Lock()
	if rs.inProcess {
		rs.mu.Unlock()
		rs.logger.Warn("Reconciliation уже выполняется, пропуск")
		return nil, true
	}
	rs.inProcess = true
	rs.mu.Unlock()

	defer func() {
		rs.mu.Lock()
		rs.inProcess = false
		rs.mu.Unlock()
	}()

	startedAt := time.Now().UTC()
	rs.logger.Info("Reconciliation начата")

	issues, blobsChecked := rs.reconcile()

	completedAt := time.Now().UTC()
	duration := completedAt.Sub(startedAt)

	// Подсчитываем summary
	summary := ReconcileSummary{}
	for _, issue := range issues {
		switch issue.Type {
		case IssueMissingRecord:
			summary.MissingRecords++
		case IssueOrphanedRecord:
			summary.OrphanedRecords++
		case IssueMissingBlob:
			summary.MissingBlobs++
		case IssueChecksumMismatch:
			summary.ChecksumMismatches++
		case IssueIndexMissing:
			summary.IndexMissing++
		}
	}

	artifactsChecked := rs.store.Count()
	summary.Ok = artifactsChecked - len(issues)
	if summary.Ok < 0 {
		summary.Ok = 0
	}

	// Обновляем Prometheus метрики
	reconcileRunsTotal.Inc()
	reconcileDurationSeconds.Observe(duration.Seconds())
	for _, issue := range issues {
		reconcileIssuesTotal.WithLabelValues(issue.Type).Inc()
	}

	rs.logger.Info("Reconciliation завершена",
		slog.Int("artifacts_checked", artifactsChecked),
		slog.Int("blobs_checked", blobsChecked),
		slog.Int("issues", len(issues)),
		slog.Int("ok", summary.Ok),
		slog.Duration("duration", duration),
	)

	return &ReconcileResult{
		StartedAt:        startedAt,
		CompletedAt:      completedAt,
		ArtifactsChecked: artifactsChecked,
		BlobsChecked:     blobsChecked,
		Issues:           issues,
		Summary:          summary,
	}, false
}

// reconcile выполняет сверку данных в памяти с диском.
func (rs *ReconcileService) reconcile() (issues []ReconcileIssue, blobsChecked int) {
	inMemory := make(map[string]bool)
	for _, a := range rs.store.List() {
		inMemory[a.ArtifactID] = true
	}

	// 1. Артефакт в памяти без record-файла на диске
	for artifactID := range inMemory {
		if _, err := os.Stat(record.Path(rs.dataDir, artifactID)); err != nil {
			issues = append(issues, ReconcileIssue{
				Type:        IssueMissingRecord,
				ArtifactID:  artifactID,
				Description: "Артефакт в памяти без record-файла на диске",
			})
		}
	}

	// 2. Record-файл на диске без артефакта в памяти
	onDisk, err := record.ScanDir(rs.dataDir)
	if err != nil {
		rs.logger.Error("Ошибка сканирования директории данных",
			slog.String("error", err.Error()),
		)
	}
	for _, rec := range onDisk {
		if !inMemory[rec.Artifact.ArtifactID] {
			issues = append(issues, ReconcileIssue{
				Type:        IssueOrphanedRecord,
				ArtifactID:  rec.Artifact.ArtifactID,
				Description: "Record-файл на диске без артефакта в памяти",
			})
		}
	}

	// 3. Целостность blob-ов: наличие и checksum
	for checksum := range rs.store.LiveChecksums() {
		blobsChecked++
		if !rs.blobs.Exists(checksum) {
			issues = append(issues, ReconcileIssue{
				Type:        IssueMissingBlob,
				Checksum:    checksum,
				Description: "Версия ссылается на blob, которого нет в хранилище",
			})
			continue
		}
		if verifyErr := rs.blobs.Verify(checksum); verifyErr != nil {
			issues = append(issues, ReconcileIssue{
				Type:        IssueChecksumMismatch,
				Checksum:    checksum,
				Description: "Содержимое blob-а не соответствует его checksum",
			})
		}
	}

	// 4. Активные артефакты должны присутствовать в поисковом индексе
	for _, a := range rs.store.List() {
		if a.IsArchived() {
			continue
		}
		if !rs.idx.Has(a.ArtifactID) {
			issues = append(issues, ReconcileIssue{
				Type:        IssueIndexMissing,
				ArtifactID:  a.ArtifactID,
				Description: "Активный артефакт отсутствует в поисковом индексе",
			})
		}
	}

	return issues, blobsChecked
}
