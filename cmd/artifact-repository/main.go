// Точка входа Artifact Repository — сервиса версионируемого хранилища
// артефактов с поиском, зависимостями и совместным редактированием.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/arturkryukov/artstore/artifact-repository/internal/api/handlers"
	"github.com/arturkryukov/artstore/artifact-repository/internal/api/middleware"
	"github.com/arturkryukov/artstore/artifact-repository/internal/collab"
	"github.com/arturkryukov/artstore/artifact-repository/internal/compliance"
	"github.com/arturkryukov/artstore/artifact-repository/internal/config"
	"github.com/arturkryukov/artstore/artifact-repository/internal/export"
	"github.com/arturkryukov/artstore/artifact-repository/internal/governance"
	"github.com/arturkryukov/artstore/artifact-repository/internal/notify"
	"github.com/arturkryukov/artstore/artifact-repository/internal/server"
	"github.com/arturkryukov/artstore/artifact-repository/internal/service"
	"github.com/arturkryukov/artstore/artifact-repository/internal/storage/blob"
	"github.com/arturkryukov/artstore/artifact-repository/internal/storage/deps"
	"github.com/arturkryukov/artstore/artifact-repository/internal/storage/record"
	"github.com/arturkryukov/artstore/artifact-repository/internal/storage/search"
	"github.com/arturkryukov/artstore/artifact-repository/internal/storage/versionstore"
	"github.com/arturkryukov/artstore/artifact-repository/internal/storage/wal"
	"github.com/arturkryukov/artstore/artifact-repository/internal/templates"
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Artifact Repository запускается",
		slog.String("repository_id", cfg.RepositoryID),
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// --- Инициализация компонентов ---

	// 1. WAL-движок
	walEngine, err := wal.New(cfg.WALDir, logger)
	if err != nil {
		logger.Error("Ошибка инициализации WAL", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// WAL recovery: откатываем pending транзакции
	pending, err := walEngine.RecoverPending()
	if err != nil {
		logger.Error("Ошибка восстановления WAL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if len(pending) > 0 {
		logger.Warn("Обнаружены незавершённые WAL-транзакции, откатываем",
			slog.Int("count", len(pending)),
		)
		for _, entry := range pending {
			if rbErr := walEngine.Rollback(entry.TransactionID); rbErr != nil {
				logger.Error("Ошибка отката WAL-транзакции",
					slog.String("tx_id", entry.TransactionID),
					slog.String("error", rbErr.Error()),
				)
			} else {
				logger.Info("WAL-транзакция откачена",
					slog.String("tx_id", entry.TransactionID),
					slog.String("artifact_id", entry.ArtifactID),
				)
			}
		}
	}

	// 2. Content-addressed blob store
	blobs, err := blob.New(filepath.Join(cfg.DataDir, "blobs"))
	if err != nil {
		logger.Error("Ошибка инициализации blob store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 3. VersionStore, граф зависимостей и поисковый индекс
	store := versionstore.New(logger)
	graph := deps.New(store, cfg.RejectDependencyCycles, logger)
	idx := search.New(logger)

	// Восстановление из снапшотов artifact.json
	records, err := record.ScanDir(cfg.DataDir)
	if err != nil {
		logger.Error("Ошибка сканирования снапшотов", slog.String("error", err.Error()))
		os.Exit(1)
	}
	for _, rec := range records {
		if restoreErr := store.Restore(rec.Artifact, rec.Versions); restoreErr != nil {
			logger.Error("Ошибка восстановления артефакта",
				slog.String("artifact_id", rec.Artifact.ArtifactID),
				slog.String("error", restoreErr.Error()),
			)
			continue
		}
		graph.Restore(rec.Artifact.ArtifactID, rec.Dependencies)
	}
	logger.Info("Снапшоты восстановлены",
		slog.Int("artifacts", store.Count()),
		slog.Int("dependencies", graph.Count()),
	)

	// 4. Библиотека шаблонов
	tpls, err := templates.Load(cfg.TemplatesDir, logger)
	if err != nil {
		logger.Error("Ошибка загрузки шаблонов", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 5. Governance: HTTP-клиент или заглушка PermitAll
	var approver governance.Approver = governance.PermitAll{}
	if cfg.GovernanceURL != "" {
		govClient, govErr := governance.New(cfg.GovernanceURL, cfg.GovernanceCACert, cfg.GovernanceTimeout, logger)
		if govErr != nil {
			logger.Error("Ошибка инициализации governance-клиента", slog.String("error", govErr.Error()))
			os.Exit(1)
		}
		approver = govClient
		logger.Info("Governance-клиент настроен", slog.String("url", cfg.GovernanceURL))
	} else {
		logger.Warn("Governance-сервис не настроен, все операции одобряются")
	}

	// 6. Аудит: HTTP sink или лог
	var sink notify.Sink
	if cfg.NotifyURL != "" {
		sink = notify.NewHTTPSink(cfg.NotifyURL, cfg.GovernanceTimeout, cfg.NotifyBufferSize, logger)
		logger.Info("Аудит-события отправляются по HTTP", slog.String("url", cfg.NotifyURL))
	} else {
		sink = notify.NewLogSink(logger)
	}
	defer sink.Close()

	// 7. Экспорт (опционально)
	var exporter export.Exporter
	if cfg.ExportURL != "" {
		exporter = export.New(cfg.ExportURL, cfg.GovernanceTimeout, logger)
		logger.Info("Сервис экспорта настроен", slog.String("url", cfg.ExportURL))
	}

	// 8. Сервисный слой
	gate := compliance.New(logger)
	artifactSvc := service.NewArtifactService(cfg, walEngine, store, blobs, graph, idx, gate, approver, sink, exporter, tpls, logger)
	searchSvc := service.NewSearchService(idx, cfg.SearchCacheSize, cfg.SearchCacheTTL, logger)
	artifactSvc.OnIndexChange(searchSvc.Invalidate)

	mgr := collab.New(logger)
	sessionSvc := service.NewSessionService(mgr, store, artifactSvc, approver, sink, logger)

	indexed := artifactSvc.RebuildSearchIndex()
	logger.Info("Поисковый индекс построен", slog.Int("documents", indexed))

	// 9. Фоновые процессы
	ctx := context.Background()

	// 9.1 Janitor — очистка сессий, WAL и orphan blob-ов
	janitorSvc := service.NewJanitorService(sessionSvc, walEngine, blobs, store,
		cfg.SessionRetention, cfg.JanitorInterval, logger)
	janitorSvc.Start(ctx)

	// 9.2 Reconciliation — фоновая сверка
	reconcileSvc := service.NewReconcileService(store, blobs, idx, cfg.DataDir, cfg.ReconcileInterval, logger)
	reconcileSvc.Start(ctx)

	// 9.3 topologymetrics — мониторинг зависимостей
	dephealthDeps := []service.DephealthDep{
		{Name: "admin-jwks", URL: cfg.JWKSUrl},
	}
	if cfg.GovernanceURL != "" {
		dephealthDeps = append(dephealthDeps, service.DephealthDep{Name: "governance", URL: cfg.GovernanceURL})
	}
	dephealthSvc, dephealthErr := service.NewDephealthService(
		cfg.DephealthName,
		cfg.DephealthGroup,
		dephealthDeps,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 10. Handlers
	systemHandler := handlers.NewSystemHandler(cfg, artifactSvc)
	healthHandler := handlers.NewHealthHandler(cfg.DataDir, cfg.WALDir)
	apiHandler := handlers.NewAPIHandler(artifactSvc, searchSvc, sessionSvc, reconcileSvc,
		systemHandler, healthHandler, logger)

	// 11. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(middleware.JWTAuthConfig{
		JWKSURL:         cfg.JWKSUrl,
		CACertPath:      cfg.JWKSCACert,
		TLSSkipVerify:   cfg.TLSSkipVerify,
		ClientTimeout:   cfg.JWKSClientTimeout,
		RefreshInterval: cfg.JWKSRefreshInterval,
		JWTLeeway:       cfg.JWTLeeway,
	}, logger)
	if err != nil {
		// JWT недоступен — запускаем без аутентификации (для разработки)
		logger.Warn("JWT JWKS недоступен, запуск без аутентификации",
			slog.String("jwks_url", cfg.JWKSUrl),
			slog.String("error", err.Error()),
		)
	} else {
		defer jwtAuth.Close()
		logger.Info("JWT аутентификация настроена",
			slog.String("jwks_url", cfg.JWKSUrl),
		)
	}

	// 12. Создание и запуск HTTP-сервера
	var authMiddleware func(http.Handler) http.Handler
	if jwtAuth != nil {
		authMiddleware = jwtAuth.Middleware()
	}
	srv := server.New(cfg, logger, apiHandler, authMiddleware)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// --- Graceful shutdown фоновых процессов ---
	logger.Info("Остановка фоновых процессов...")

	janitorSvc.Stop()
	reconcileSvc.Stop()
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("Artifact Repository остановлен")
}
