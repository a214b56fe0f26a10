// artifacts.go — оркестратор операций над артефактами.
//
// Каждая мутация проходит единый конвейер:
//  1. Одобрение governance-сервиса
//  2. WAL StartTransaction
//  3. Мутация in-memory хранилища (+ blob при наличии контента)
//  4. Персист снапшота artifact.json и обновление поискового индекса
//  5. WAL Commit
//  6. Событие аудита (после коммита, fire-and-forget)
//
// При ошибке на шагах 3-4 — WAL Rollback; orphan blob-ы подбирает janitor.
package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arturkryukov/artstore/artifact-repository/internal/api/middleware"
	"github.com/arturkryukov/artstore/artifact-repository/internal/collab"
	"github.com/arturkryukov/artstore/artifact-repository/internal/compliance"
	"github.com/arturkryukov/artstore/artifact-repository/internal/config"
	"github.com/arturkryukov/artstore/artifact-repository/internal/domain/model"
	"github.com/arturkryukov/artstore/artifact-repository/internal/export"
	"github.com/arturkryukov/artstore/artifact-repository/internal/governance"
	"github.com/arturkryukov/artstore/artifact-repository/internal/notify"
	"github.com/arturkryukov/artstore/artifact-repository/internal/storage/blob"
	"github.com/arturkryukov/artstore/artifact-repository/internal/storage/deps"
	"github.com/arturkryukov/artstore/artifact-repository/internal/storage/record"
	"github.com/arturkryukov/artstore/artifact-repository/internal/storage/search"
	"github.com/arturkryukov/artstore/artifact-repository/internal/storage/versionstore"
	"github.com/arturkryukov/artstore/artifact-repository/internal/storage/wal"
	"github.com/arturkryukov/artstore/artifact-repository/internal/templates"
)

// ArtifactService — оркестратор операций над артефактами.
type ArtifactService struct {
	cfg       *config.Config
	walEngine *wal.WAL
	store     *versionstore.Store
	blobs     *blob.Store
	graph     *deps.Graph
	idx       *search.Index
	gate      *compliance.Gate
	approver  governance.Approver
	sink      notify.Sink
	exporter  export.Exporter
	tpls      *templates.Library
	logger    *slog.Logger

	// locks — per-artifact мьютексы: сериализуют многошаговые мутации
	// (store + record + индекс) одного артефакта
	locks sync.Map

	// onIndexChange вызывается после каждого обновления поискового
	// индекса (инвалидация кэша результатов поиска)
	onIndexChange func()
}

// NewArtifactService создаёт оркестратор операций над артефактами.
// exporter может быть nil — тогда операция Export недоступна.
func NewArtifactService(
	cfg *config.Config,
	walEngine *wal.WAL,
	store *versionstore.Store,
	blobs *blob.Store,
	graph *deps.Graph,
	idx *search.Index,
	gate *compliance.Gate,
	approver governance.Approver,
	sink notify.Sink,
	exporter export.Exporter,
	tpls *templates.Library,
	logger *slog.Logger,
) *ArtifactService {
	return &ArtifactService{
		cfg:       cfg,
		walEngine: walEngine,
		store:     store,
		blobs:     blobs,
		graph:     graph,
		idx:       idx,
		gate:      gate,
		approver:  approver,
		sink:      sink,
		exporter:  exporter,
		tpls:      tpls,
		logger:    logger.With(slog.String("component", "artifact_service")),
	}
}

// OnIndexChange регистрирует колбэк, вызываемый после каждого изменения
// поискового индекса.
func (s *ArtifactService) OnIndexChange(fn func()) {
	s.onIndexChange = fn
}

// lock захватывает per-artifact мьютекс и возвращает функцию освобождения.
func (s *ArtifactService) lock(artifactID string) func() {
	v, _ := s.locks.LoadOrStore(artifactID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// approve запрашивает одобрение governance-сервиса. Отказ возвращается
// как ErrGovernanceRejected с причиной.
func (s *ArtifactService) approve(ctx context.Context, actorID, action string, payload map[string]any) error {
	ok, reason, err := s.approver.Approve(ctx, actorID, action, payload)
	if err != nil {
		return fmt.Errorf("governance-сервис недоступен: %w", err)
	}
	if !ok {
		middleware.GovernanceRejectionsTotal.WithLabelValues(action).Inc()
		return fmt.Errorf("%w: %s", ErrGovernanceRejected, reason)
	}
	return nil
}

// persist записывает снапшот артефакта (метаданные + версии + исходящие
// рёбра зависимостей) атомарно на диск.
func (s *ArtifactService) persist(artifactID string) error {
	a, versions, err := s.store.Snapshot(artifactID)
	if err != nil {
		return err
	}
	rec := &record.ArtifactRecord{
		Artifact:     a,
		Versions:     versions,
		Dependencies: s.graph.Dependencies(artifactID),
	}
	return record.Write(record.Path(s.cfg.DataDir, artifactID), rec)
}

// reindex обновляет поисковый документ артефакта из current-версии.
func (s *ArtifactService) reindex(artifactID string) {
	a, err := s.store.Get(artifactID)
	if err != nil {
		return
	}
	current, err := s.store.GetVersion(artifactID, "")
	if err != nil {
		return
	}
	s.idx.Upsert(s.searchDocument(a, current))
	if s.onIndexChange != nil {
		s.onIndexChange()
	}
}

// searchDocument строит поисковое представление артефакта.
// Текстовый payload current-версии попадает в индекс вместе
// с названием и описанием.
func (s *ArtifactService) searchDocument(a *model.Artifact, current *model.ArtifactVersion) *search.Document {
	return &search.Document{
		ArtifactID:     a.ArtifactID,
		Title:          a.Title,
		Description:    a.Description,
		ContentText:    s.contentText(current),
		Category:       a.Category,
		Type:           a.Type,
		Tags:           append([]string(nil), a.Tags...),
		Status:         a.Status,
		BusinessImpact: a.BusinessImpact,
		QualityScore:   current.QualityScore,
		StrategicValue: a.StrategicValue,
		Usage:          a.Usage,
		UpdatedAt:      a.UpdatedAt,
	}
}

// contentText возвращает текстовый payload версии для индексации.
// Бинарный контент не индексируется. Если байты не загружены
// (версия восстановлена из снапшота), контент читается из blob store.
func (s *ArtifactService) contentText(v *model.ArtifactVersion) string {
	if !v.Content.IsText() {
		return ""
	}
	if len(v.Content.Data) > 0 {
		return string(v.Content.Data)
	}
	if v.Content.Checksum == "" {
		return ""
	}
	data, err := s.blobs.Read(v.Content.Checksum)
	if err != nil {
		s.logger.Warn("Контент версии недоступен для индексации",
			slog.String("artifact_id", v.ArtifactID),
			slog.String("checksum", v.Content.Checksum),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return string(data)
}

// RebuildSearchIndex пересобирает поисковый индекс из содержимого
// хранилища. Вызывается при старте после восстановления снапшотов.
func (s *ArtifactService) RebuildSearchIndex() int {
	count := 0
	for _, a := range s.store.List() {
		current, err := s.store.GetVersion(a.ArtifactID, "")
		if err != nil {
			s.logger.Warn("Артефакт без current-версии пропущен при индексации",
				slog.String("artifact_id", a.ArtifactID),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.idx.Upsert(s.searchDocument(a, current))
		count++
	}
	if s.onIndexChange != nil {
		s.onIndexChange()
	}
	return count
}

// record отправляет событие аудита после успешного коммита.
func (s *ArtifactService) record(action, actorID, artifactID string, details map[string]any) {
	s.sink.Record(notify.Event{
		Action:     action,
		ActorID:    actorID,
		ArtifactID: artifactID,
		Details:    details,
	})
}

// refreshGauges обновляет бизнес-метрики из состояния хранилища.
func (s *ArtifactService) refreshGauges() {
	stats := s.store.CollectStats()
	middleware.ArtifactsTotal.WithLabelValues(string(model.ArtifactActive)).
		Set(float64(stats.Artifacts - stats.Archived))
	middleware.ArtifactsTotal.WithLabelValues(string(model.ArtifactArchived)).
		Set(float64(stats.Archived))
	middleware.VersionsTotal.Set(float64(stats.Versions))
}

// saveContent валидирует размер и сохраняет контент в blob store,
// заполняя Checksum и Size.
func (s *ArtifactService) saveContent(content *model.ContentBlob) error {
	if int64(len(content.Data)) > s.cfg.MaxContentSize {
		return fmt.Errorf("%w: %d байт при лимите %d",
			ErrContentTooLarge, len(content.Data), s.cfg.MaxContentSize)
	}
	saved, err := s.blobs.Save(bytes.NewReader(content.Data))
	if err != nil {
		return fmt.Errorf("сохранение контента: %w", err)
	}
	content.Checksum = saved.Checksum
	content.Size = saved.Size
	return nil
}

// CreateParams — параметры создания артефакта через сервисный слой.
type CreateParams struct {
	Title          string
	Description    string
	Type           model.ArtifactType
	Category       string
	Tags           []string
	AccessLevel    model.AccessLevel
	BusinessImpact model.BusinessImpact
	StrategicValue float64
	Content        model.ContentBlob
	ChangeLog      string
	CreatorID      string
}

// CreateArtifact регистрирует артефакт с начальной версией 1.0.0,
// прогоняет контент через compliance gate и индексирует его для поиска.
func (s *ArtifactService) CreateArtifact(ctx context.Context, p CreateParams) (*model.Artifact, *model.ArtifactVersion, error) {
	return s.createArtifact(ctx, p, nil)
}

// createArtifact — общий путь создания для CreateArtifact и CreateFromTemplate.
func (s *ArtifactService) createArtifact(ctx context.Context, p CreateParams, tplRef *model.TemplateReference) (*model.Artifact, *model.ArtifactVersion, error) {
	if err := s.approve(ctx, p.CreatorID, "artifact_create", map[string]any{
		"title": p.Title,
		"type":  string(p.Type),
	}); err != nil {
		return nil, nil, err
	}

	artifactID := uuid.New().String()
	defer s.lock(artifactID)()

	walEntry, err := s.walEngine.StartTransaction(wal.OpArtifactCreate, artifactID)
	if err != nil {
		return nil, nil, fmt.Errorf("создание WAL-транзакции: %w", err)
	}
	rollback := func() {
		if rbErr := s.walEngine.Rollback(walEntry.TransactionID); rbErr != nil {
			s.logger.Error("Ошибка отката WAL",
				slog.String("tx_id", walEntry.TransactionID),
				slog.String("error", rbErr.Error()),
			)
		}
	}

	if err := s.saveContent(&p.Content); err != nil {
		rollback()
		return nil, nil, err
	}

	a, v, err := s.store.CreateArtifact(versionstore.CreateArtifactParams{
		ArtifactID:     artifactID,
		Title:          p.Title,
		Description:    p.Description,
		Type:           p.Type,
		Category:       p.Category,
		Tags:           p.Tags,
		AccessLevel:    p.AccessLevel,
		BusinessImpact: p.BusinessImpact,
		StrategicValue: p.StrategicValue,
		Template:       tplRef,
		Content:        p.Content,
		ChangeLog:      p.ChangeLog,
		CreatorID:      p.CreatorID,
	})
	if err != nil {
		rollback()
		return nil, nil, err
	}

	results := s.gate.Run(a, v)
	if err := s.store.AttachCompliance(artifactID, v.Number, results); err != nil {
		s.logger.Warn("Не удалось прикрепить результаты compliance",
			slog.String("artifact_id", artifactID),
			slog.String("error", err.Error()),
		)
	} else {
		v.Compliance = append(v.Compliance, results...)
	}

	if err := s.persist(artifactID); err != nil {
		rollback()
		return nil, nil, fmt.Errorf("запись снапшота: %w", err)
	}
	s.reindex(artifactID)

	if err := s.walEngine.Commit(walEntry.TransactionID); err != nil {
		// Данные уже записаны, коммит WAL — best effort
		s.logger.Error("Ошибка коммита WAL (данные сохранены)",
			slog.String("tx_id", walEntry.TransactionID),
			slog.String("error", err.Error()),
		)
	}

	middleware.OperationsTotal.WithLabelValues("artifact_create", "success").Inc()
	s.refreshGauges()
	s.record("artifact_create", p.CreatorID, artifactID, map[string]any{
		"title": p.Title,
		"type":  string(p.Type),
	})

	return a, v, nil
}

// CreateFromTemplate создаёт артефакт из шаблона библиотеки: скелет
// заполняется значениями values, ссылка на шаблон сохраняется в артефакте.
func (s *ArtifactService) CreateFromTemplate(ctx context.Context, templateID string, values map[string]string, p CreateParams) (*model.Artifact, *model.ArtifactVersion, error) {
	tpl, err := s.tpls.Get(templateID)
	if err != nil {
		return nil, nil, err
	}
	if p.Type != "" && p.Type != tpl.Type {
		return nil, nil, fmt.Errorf("%w: артефакт %s, шаблон %s",
			ErrTemplateTypeMismatch, p.Type, tpl.Type)
	}

	rendered, err := s.tpls.Render(tpl, values)
	if err != nil {
		return nil, nil, err
	}

	p.Type = tpl.Type
	p.Content = model.ContentBlob{
		ContentType: tpl.ContentType,
		Data:        []byte(rendered.Content),
	}
	ref := &model.TemplateReference{
		TemplateID:       tpl.TemplateID,
		CustomizedFields: rendered.CustomizedFields,
		AppliedAt:        time.Now().UTC(),
	}
	return s.createArtifact(ctx, p, ref)
}

// VersionParams — параметры создания версии через сервисный слой.
type VersionParams struct {
	ArtifactID      string
	Content         model.ContentBlob
	ChangeLog       string
	Changes         []model.Change
	Bump            model.BumpKind
	EditorID        string
	ExpectedCurrent string
}

// CreateVersion создаёт новую версию артефакта и перепроверяет рёбра
// зависимостей: смена current-версии может сломать constraint-ы
// зависимых артефактов.
func (s *ArtifactService) CreateVersion(ctx context.Context, p VersionParams) (*model.ArtifactVersion, error) {
	if err := s.approve(ctx, p.EditorID, "version_create", map[string]any{
		"artifact_id": p.ArtifactID,
		"bump":        string(p.Bump),
	}); err != nil {
		return nil, err
	}

	defer s.lock(p.ArtifactID)()

	walEntry, err := s.walEngine.StartTransaction(wal.OpVersionCreate, p.ArtifactID)
	if err != nil {
		return nil, fmt.Errorf("создание WAL-транзакции: %w", err)
	}
	rollback := func() {
		if rbErr := s.walEngine.Rollback(walEntry.TransactionID); rbErr != nil {
			s.logger.Error("Ошибка отката WAL",
				slog.String("tx_id", walEntry.TransactionID),
				slog.String("error", rbErr.Error()),
			)
		}
	}

	if err := s.saveContent(&p.Content); err != nil {
		rollback()
		return nil, err
	}

	v, err := s.store.CreateVersion(versionstore.CreateVersionParams{
		ArtifactID:      p.ArtifactID,
		Content:         p.Content,
		ChangeLog:       p.ChangeLog,
		Changes:         p.Changes,
		Bump:            p.Bump,
		EditorID:        p.EditorID,
		ExpectedCurrent: p.ExpectedCurrent,
	})
	if err != nil {
		rollback()
		middleware.OperationsTotal.WithLabelValues("version_create", "error").Inc()
		return nil, err
	}

	a, getErr := s.store.Get(p.ArtifactID)
	if getErr == nil {
		results := s.gate.Run(a, v)
		if attachErr := s.store.AttachCompliance(p.ArtifactID, v.Number, results); attachErr != nil {
			s.logger.Warn("Не удалось прикрепить результаты compliance",
				slog.String("artifact_id", p.ArtifactID),
				slog.String("error", attachErr.Error()),
			)
		} else {
			v.Compliance = append(v.Compliance, results...)
		}
	}

	if err := s.persist(p.ArtifactID); err != nil {
		rollback()
		return nil, fmt.Errorf("запись снапшота: %w", err)
	}
	s.reindex(p.ArtifactID)

	// Смена current-версии могла сломать constraint-ы входящих рёбер
	broken := s.graph.Revalidate(p.ArtifactID)

	if err := s.walEngine.Commit(walEntry.TransactionID); err != nil {
		s.logger.Error("Ошибка коммита WAL (данные сохранены)",
			slog.String("tx_id", walEntry.TransactionID),
			slog.String("error", err.Error()),
		)
	}

	middleware.OperationsTotal.WithLabelValues("version_create", "success").Inc()
	s.refreshGauges()
	details := map[string]any{"version": v.Number}
	if len(broken) > 0 {
		details["broken_dependencies"] = len(broken)
	}
	s.record("version_create", p.EditorID, p.ArtifactID, details)

	return v, nil
}

// Promote переводит версию в следующий статус жизненного цикла.
// При включённом AR_ENFORCE_COMPLIANCE продвижение в published
// блокируется, если security или licensing проверки failed.
func (s *ArtifactService) Promote(ctx context.Context, artifactID, number string, target model.VersionStatus, actorID string) (*model.ArtifactVersion, error) {
	if err := s.approve(ctx, actorID, "promote", map[string]any{
		"artifact_id": artifactID,
		"version":     number,
		"target":      string(target),
	}); err != nil {
		return nil, err
	}

	defer s.lock(artifactID)()

	// Свежий прогон compliance gate перед продвижением
	a, err := s.store.Get(artifactID)
	if err != nil {
		return nil, err
	}
	v, err := s.store.GetVersion(artifactID, number)
	if err != nil {
		return nil, err
	}
	if len(v.Content.Data) == 0 && v.Content.Checksum != "" {
		if data, readErr := s.blobs.Read(v.Content.Checksum); readErr == nil {
			v.Content.Data = data
		}
	}
	results := s.gate.Run(a, v)
	if attachErr := s.store.AttachCompliance(artifactID, v.Number, results); attachErr != nil {
		s.logger.Warn("Не удалось прикрепить результаты compliance",
			slog.String("artifact_id", artifactID),
			slog.String("error", attachErr.Error()),
		)
	}

	if s.cfg.EnforceCompliance && target == model.VersionPublished && compliance.BlocksPromotion(results) {
		middleware.OperationsTotal.WithLabelValues("promote", "blocked").Inc()
		return nil, fmt.Errorf("%w: версия %s", ErrComplianceBlocked, v.Number)
	}

	walEntry, err := s.walEngine.StartTransaction(wal.OpPromote, artifactID)
	if err != nil {
		return nil, fmt.Errorf("создание WAL-транзакции: %w", err)
	}

	promoted, err := s.store.Promote(artifactID, number, target, actorID)
	if err != nil {
		_ = s.walEngine.Rollback(walEntry.TransactionID)
		return nil, err
	}

	if err := s.persist(artifactID); err != nil {
		_ = s.walEngine.Rollback(walEntry.TransactionID)
		return nil, fmt.Errorf("запись снапшота: %w", err)
	}
	s.reindex(artifactID)

	if err := s.walEngine.Commit(walEntry.TransactionID); err != nil {
		s.logger.Error("Ошибка коммита WAL (данные сохранены)",
			slog.String("tx_id", walEntry.TransactionID),
			slog.String("error", err.Error()),
		)
	}

	middleware.OperationsTotal.WithLabelValues("promote", "success").Inc()
	s.record("promote", actorID, artifactID, map[string]any{
		"version": promoted.Number,
		"target":  string(target),
	})

	return promoted, nil
}

// UpdateMetadata применяет частичное обновление метаданных артефакта.
func (s *ArtifactService) UpdateMetadata(ctx context.Context, artifactID string, upd versionstore.MetadataUpdate, editorID string) (*model.Artifact, error) {
	if err := s.approve(ctx, editorID, "metadata_update", map[string]any{
		"artifact_id": artifactID,
	}); err != nil {
		return nil, err
	}

	defer s.lock(artifactID)()

	walEntry, err := s.walEngine.StartTransaction(wal.OpMetadataUpdate, artifactID)
	if err != nil {
		return nil, fmt.Errorf("создание WAL-транзакции: %w", err)
	}

	a, err := s.store.UpdateMetadata(artifactID, upd, editorID)
	if err != nil {
		_ = s.walEngine.Rollback(walEntry.TransactionID)
		return nil, err
	}

	if err := s.persist(artifactID); err != nil {
		_ = s.walEngine.Rollback(walEntry.TransactionID)
		return nil, fmt.Errorf("запись снапшота: %w", err)
	}
	s.reindex(artifactID)

	if err := s.walEngine.Commit(walEntry.TransactionID); err != nil {
		s.logger.Error("Ошибка коммита WAL (данные сохранены)",
			slog.String("tx_id", walEntry.TransactionID),
			slog.String("error", err.Error()),
		)
	}

	middleware.OperationsTotal.WithLabelValues("metadata_update", "success").Inc()
	s.record("metadata_update", editorID, artifactID, nil)

	return a, nil
}

// Archive переводит артефакт в архив (read-only) и перепроверяет
// входящие рёбра: зависимые артефакты получают validation=broken,
// рёбра при этом не удаляются.
func (s *ArtifactService) Archive(ctx context.Context, artifactID, actorID string) (*model.Artifact, []*model.Dependency, error) {
	if err := s.approve(ctx, actorID, "archive", map[string]any{
		"artifact_id": artifactID,
	}); err != nil {
		return nil, nil, err
	}

	defer s.lock(artifactID)()

	walEntry, err := s.walEngine.StartTransaction(wal.OpArchive, artifactID)
	if err != nil {
		return nil, nil, fmt.Errorf("создание WAL-транзакции: %w", err)
	}

	a, err := s.store.Archive(artifactID, actorID)
	if err != nil {
		_ = s.walEngine.Rollback(walEntry.TransactionID)
		return nil, nil, err
	}

	broken := s.graph.Revalidate(artifactID)

	if err := s.persist(artifactID); err != nil {
		_ = s.walEngine.Rollback(walEntry.TransactionID)
		return nil, nil, fmt.Errorf("запись снапшота: %w", err)
	}
	s.reindex(artifactID)

	if err := s.walEngine.Commit(walEntry.TransactionID); err != nil {
		s.logger.Error("Ошибка коммита WAL (данные сохранены)",
			slog.String("tx_id", walEntry.TransactionID),
			slog.String("error", err.Error()),
		)
	}

	middleware.OperationsTotal.WithLabelValues("archive", "success").Inc()
	s.refreshGauges()
	s.record("archive", actorID, artifactID, map[string]any{
		"broken_dependencies": len(broken),
	})

	return a, broken, nil
}

// Fork создаёт независимую копию артефакта с новой историей версий.
func (s *ArtifactService) Fork(ctx context.Context, sourceID, actorID, title string) (*model.Artifact, *model.ArtifactVersion, error) {
	if err := s.approve(ctx, actorID, "fork", map[string]any{
		"source_id": sourceID,
	}); err != nil {
		return nil, nil, err
	}

	defer s.lock(sourceID)()

	walEntry, err := s.walEngine.StartTransaction(wal.OpFork, sourceID)
	if err != nil {
		return nil, nil, fmt.Errorf("создание WAL-транзакции: %w", err)
	}

	forked, v, err := s.store.Fork(sourceID, actorID, title)
	if err != nil {
		_ = s.walEngine.Rollback(walEntry.TransactionID)
		return nil, nil, err
	}

	// Персист обоих: у источника изменился счётчик forks
	if err := s.persist(sourceID); err != nil {
		_ = s.walEngine.Rollback(walEntry.TransactionID)
		return nil, nil, fmt.Errorf("запись снапшота источника: %w", err)
	}
	if err := s.persist(forked.ArtifactID); err != nil {
		_ = s.walEngine.Rollback(walEntry.TransactionID)
		return nil, nil, fmt.Errorf("запись снапшота форка: %w", err)
	}
	s.reindex(sourceID)
	s.reindex(forked.ArtifactID)

	if err := s.walEngine.Commit(walEntry.TransactionID); err != nil {
		s.logger.Error("Ошибка коммита WAL (данные сохранены)",
			slog.String("tx_id", walEntry.TransactionID),
			slog.String("error", err.Error()),
		)
	}

	middleware.OperationsTotal.WithLabelValues("fork", "success").Inc()
	s.refreshGauges()
	s.record("fork", actorID, forked.ArtifactID, map[string]any{
		"source_id": sourceID,
	})

	return forked, v, nil
}

// AddDependency добавляет ребро зависимости от артефакта к артефакту.
func (s *ArtifactService) AddDependency(ctx context.Context, fromID, toID string, depType model.DependencyType, constraint string, required bool, actorID string) (*model.Dependency, error) {
	if err := s.approve(ctx, actorID, "dependency_add", map[string]any{
		"from_id": fromID,
		"to_id":   toID,
	}); err != nil {
		return nil, err
	}

	defer s.lock(fromID)()

	walEntry, err := s.walEngine.StartTransaction(wal.OpDependencyAdd, fromID)
	if err != nil {
		return nil, fmt.Errorf("создание WAL-транзакции: %w", err)
	}

	dep, err := s.graph.AddDependency(fromID, toID, depType, constraint, required)
	if err != nil {
		_ = s.walEngine.Rollback(walEntry.TransactionID)
		middleware.OperationsTotal.WithLabelValues("dependency_add", "error").Inc()
		return nil, err
	}

	if err := s.persist(fromID); err != nil {
		_ = s.walEngine.Rollback(walEntry.TransactionID)
		return nil, fmt.Errorf("запись снапшота: %w", err)
	}

	if err := s.walEngine.Commit(walEntry.TransactionID); err != nil {
		s.logger.Error("Ошибка коммита WAL (данные сохранены)",
			slog.String("tx_id", walEntry.TransactionID),
			slog.String("error", err.Error()),
		)
	}

	middleware.OperationsTotal.WithLabelValues("dependency_add", "success").Inc()
	s.record("dependency_add", actorID, fromID, map[string]any{
		"to_id": toID,
		"type":  string(depType),
	})

	return dep, nil
}

// RemoveDependency удаляет ребро зависимости.
func (s *ArtifactService) RemoveDependency(ctx context.Context, fromID, dependencyID, actorID string) error {
	if err := s.approve(ctx, actorID, "dependency_remove", map[string]any{
		"from_id":       fromID,
		"dependency_id": dependencyID,
	}); err != nil {
		return err
	}

	defer s.lock(fromID)()

	walEntry, err := s.walEngine.StartTransaction(wal.OpDependencyRemove, fromID)
	if err != nil {
		return fmt.Errorf("создание WAL-транзакции: %w", err)
	}

	if err := s.graph.RemoveDependency(fromID, dependencyID); err != nil {
		_ = s.walEngine.Rollback(walEntry.TransactionID)
		return err
	}

	if err := s.persist(fromID); err != nil {
		_ = s.walEngine.Rollback(walEntry.TransactionID)
		return fmt.Errorf("запись снапшота: %w", err)
	}

	if err := s.walEngine.Commit(walEntry.TransactionID); err != nil {
		s.logger.Error("Ошибка коммита WAL (данные сохранены)",
			slog.String("tx_id", walEntry.TransactionID),
			slog.String("error", err.Error()),
		)
	}

	middleware.OperationsTotal.WithLabelValues("dependency_remove", "success").Inc()
	s.record("dependency_remove", actorID, fromID, map[string]any{
		"dependency_id": dependencyID,
	})

	return nil
}

// Dependencies возвращает исходящие рёбра артефакта.
func (s *ArtifactService) Dependencies(artifactID string) ([]*model.Dependency, error) {
	if _, err := s.store.Get(artifactID); err != nil {
		return nil, err
	}
	return s.graph.Dependencies(artifactID), nil
}

// Dependents возвращает идентификаторы всех транзитивно зависимых артефактов.
func (s *ArtifactService) Dependents(artifactID string) ([]string, error) {
	if _, err := s.store.Get(artifactID); err != nil {
		return nil, err
	}
	return s.graph.FindDependents(artifactID), nil
}

// Get возвращает артефакт и увеличивает счётчик просмотров.
func (s *ArtifactService) Get(artifactID string) (*model.Artifact, error) {
	a, err := s.store.Get(artifactID)
	if err != nil {
		return nil, err
	}
	if usage, incErr := s.store.IncrementUsage(artifactID, model.CounterViews); incErr == nil {
		a.Usage = usage
		s.reindex(artifactID)
	}
	return a, nil
}

// List возвращает все артефакты (новые первыми).
func (s *ArtifactService) List() []*model.Artifact {
	return s.store.List()
}

// GetVersion возвращает версию с контентом, прочитанным из blob store.
// Увеличивает счётчик скачиваний.
func (s *ArtifactService) GetVersion(artifactID, number string) (*model.ArtifactVersion, error) {
	v, err := s.store.GetVersion(artifactID, number)
	if err != nil {
		return nil, err
	}
	if len(v.Content.Data) == 0 && v.Content.Checksum != "" {
		data, readErr := s.blobs.Read(v.Content.Checksum)
		if readErr != nil {
			return nil, fmt.Errorf("чтение контента версии: %w", readErr)
		}
		v.Content.Data = data
	}
	if usage, incErr := s.store.IncrementUsage(artifactID, model.CounterDownloads); incErr == nil {
		_ = usage
		s.reindex(artifactID)
	}
	return v, nil
}

// ListVersions возвращает все версии артефакта в порядке создания.
func (s *ArtifactService) ListVersions(artifactID string) ([]*model.ArtifactVersion, error) {
	return s.store.ListVersions(artifactID)
}

// IncrementUsage увеличивает счётчик использования и обновляет
// популярность в поисковом индексе.
func (s *ArtifactService) IncrementUsage(artifactID string, counter model.UsageCounter) (model.UsageStats, error) {
	usage, err := s.store.IncrementUsage(artifactID, counter)
	if err != nil {
		return model.UsageStats{}, err
	}
	s.reindex(artifactID)
	return usage, nil
}

// Export конвертирует контент версии во внешний формат через сервис
// экспорта. Учитывается как скачивание.
func (s *ArtifactService) Export(ctx context.Context, artifactID, number, format string, exportCfg map[string]string) (string, error) {
	if s.exporter == nil {
		return "", ErrExportUnavailable
	}
	v, err := s.GetVersion(artifactID, number)
	if err != nil {
		return "", err
	}
	path, err := s.exporter.Export(ctx, v.Content.Data, format, exportCfg)
	if err != nil {
		return "", err
	}
	s.record("export", "", artifactID, map[string]any{
		"version": v.Number,
		"format":  format,
	})
	return path, nil
}

// Templates возвращает библиотеку шаблонов.
func (s *ArtifactService) Templates() *templates.Library {
	return s.tpls
}

// Stats — сводная статистика репозитория для /api/v1/info.
type Stats struct {
	Artifacts    int `json:"artifacts"`
	Archived     int `json:"archived"`
	Versions     int `json:"versions"`
	Dependencies int `json:"dependencies"`
	Indexed      int `json:"indexed"`
	Templates    int `json:"templates"`
}

// CollectStats собирает сводную статистику хранилищ.
func (s *ArtifactService) CollectStats() Stats {
	st := s.store.CollectStats()
	return Stats{
		Artifacts:    st.Artifacts,
		Archived:     st.Archived,
		Versions:     st.Versions,
		Dependencies: s.graph.Count(),
		Indexed:      s.idx.Count(),
		Templates:    s.tpls.Count(),
	}
}

// FoldSession сворачивает принятые изменения сессии в новую minor-версию
// артефакта: накладывает content_edit-ы на контент версии, с которой
// началась сессия, и завершает сессию.
func (s *ArtifactService) FoldSession(ctx context.Context, sessions *collab.Manager, sessionID, actorID string) (*model.ArtifactVersion, error) {
	sess, err := sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}

	accepted, err := sessions.AcceptedChanges(sessionID)
	if err != nil {
		return nil, err
	}
	if len(accepted) == 0 {
		return nil, ErrNoAcceptedChanges
	}

	base, err := s.store.GetVersion(sess.ArtifactID, sess.VersionID)
	if err != nil {
		// VersionID сессии — UUID версии; резолвим через перебор
		base, err = s.findVersionByID(sess.ArtifactID, sess.VersionID)
		if err != nil {
			return nil, err
		}
	}
	if !base.Content.IsText() {
		return nil, fmt.Errorf("%w: content_type %q", collab.ErrMergeBinary, base.Content.ContentType)
	}
	if len(base.Content.Data) == 0 && base.Content.Checksum != "" {
		data, readErr := s.blobs.Read(base.Content.Checksum)
		if readErr != nil {
			return nil, fmt.Errorf("чтение базового контента: %w", readErr)
		}
		base.Content.Data = data
	}

	merged, err := collab.ApplyChanges(string(base.Content.Data), accepted)
	if err != nil {
		return nil, err
	}

	v, err := s.CreateVersion(ctx, VersionParams{
		ArtifactID: sess.ArtifactID,
		Content: model.ContentBlob{
			ContentType: base.Content.ContentType,
			Data:        []byte(merged),
		},
		ChangeLog: fmt.Sprintf("сессия %s: принято изменений — %d", sessionID, len(accepted)),
		Changes:   accepted,
		Bump:      model.BumpMinor,
		EditorID:  actorID,
	})
	if err != nil {
		return nil, err
	}

	if _, err := sessions.Complete(sessionID, actorID); err != nil {
		return nil, err
	}
	middleware.OperationsTotal.WithLabelValues("session_fold", "success").Inc()
	s.record("session_fold", actorID, sess.ArtifactID, map[string]any{
		"session_id": sessionID,
		"version":    v.Number,
	})

	return v, nil
}

// findVersionByID ищет версию по VersionID среди версий артефакта.
func (s *ArtifactService) findVersionByID(artifactID, versionID string) (*model.ArtifactVersion, error) {
	versions, err := s.store.ListVersions(artifactID)
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		if v.VersionID == versionID {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: id %s", versionstore.ErrVersionNotFound, versionID)
}
