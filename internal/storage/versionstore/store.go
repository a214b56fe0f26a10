// Пакет versionstore — потокобезопасное in-memory хранилище артефактов
// и их цепочек версий.
//
// Хранилище строится при старте из artifact.json снапшотов (Restore)
// и является единственным источником истины в рантайме. Персистентность
// обеспечивает сервисный слой: после каждой мутации он записывает
// снапшот агрегата через пакет record.
//
// Инварианты:
//   - номера версий строго возрастают по правилу bump
//     (major сбрасывает minor и patch, minor сбрасывает patch);
//   - CurrentVersion артефакта всегда равен номеру последней
//     созданной неархивированной версии;
//   - версии неизменяемы после создания (кроме статуса и compliance).
package versionstore

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arturkryukov/artstore/artifact-repository/internal/domain/model"
)

// versionTransitions — матрица допустимых переходов статуса версии.
// Жизненный цикл: draft → review → approved → published → deprecated.
// Архивация доступна из любого нетерминального статуса.
var versionTransitions = map[model.VersionStatus][]model.VersionStatus{
	model.VersionDraft:      {model.VersionReview, model.VersionArchived},
	model.VersionReview:     {model.VersionApproved, model.VersionDraft, model.VersionArchived},
	model.VersionApproved:   {model.VersionPublished, model.VersionArchived},
	model.VersionPublished:  {model.VersionDeprecated, model.VersionArchived},
	model.VersionDeprecated: {model.VersionArchived},
	model.VersionArchived:   {},
}

// aggregate — артефакт и его цепочка версий в порядке создания.
type aggregate struct {
	artifact *model.Artifact
	versions []*model.ArtifactVersion
}

// latest возвращает последнюю созданную версию или nil.
func (agg *aggregate) latest() *model.ArtifactVersion {
	if len(agg.versions) == 0 {
		return nil
	}
	return agg.versions[len(agg.versions)-1]
}

// findVersion ищет версию по номеру. Пустой номер, "current" и "latest"
// резолвятся в CurrentVersion артефакта.
func (agg *aggregate) findVersion(number string) *model.ArtifactVersion {
	if number == "" || number == "current" || number == "latest" {
		number = agg.artifact.CurrentVersion
	}
	for i := len(agg.versions) - 1; i >= 0; i-- {
		if agg.versions[i].Number == number {
			return agg.versions[i]
		}
	}
	return nil
}

// Store — потокобезопасное хранилище артефактов.
// Использует sync.RWMutex для конкурентного чтения
// и эксклюзивной записи.
type Store struct {
	mu        sync.RWMutex
	artifacts map[string]*aggregate // artifact_id → агрегат
	logger    *slog.Logger
}

// New создаёт пустое хранилище. Для заполнения вызовите Restore.
func New(logger *slog.Logger) *Store {
	return &Store{
		artifacts: make(map[string]*aggregate),
		logger:    logger.With(slog.String("component", "versionstore")),
	}
}

// Restore загружает артефакт и его версии из снапшота.
// Вызывается при старте сервера для каждого artifact.json.
// Существующий агрегат с тем же ID заменяется целиком.
func (s *Store) Restore(a *model.Artifact, versions []*model.ArtifactVersion) error {
	if a == nil || a.ArtifactID == "" {
		return fmt.Errorf("снапшот не содержит артефакта")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]*model.ArtifactVersion, 0, len(versions))
	for _, v := range versions {
		copied = append(copied, v.Clone())
	}

	s.artifacts[a.ArtifactID] = &aggregate{
		artifact: a.Clone(),
		versions: copied,
	}
	return nil
}

// CreateArtifactParams — параметры регистрации нового артефакта.
type CreateArtifactParams struct {
	// ArtifactID — заранее сгенерированный идентификатор (опционально).
	// Пустое значение — идентификатор генерируется хранилищем.
	ArtifactID     string
	Title          string
	Description    string
	Type           model.ArtifactType
	Category       string
	Tags           []string
	AccessLevel    model.AccessLevel
	BusinessImpact model.BusinessImpact
	StrategicValue float64
	Template       *model.TemplateReference
	Content        model.ContentBlob
	ChangeLog      string
	CreatorID      string
}

// CreateArtifact регистрирует новый артефакт с начальной версией 1.0.0
// в статусе draft. Начальная оценка качества вычисляется из контента
// и полноты метаданных. Возвращает копии артефакта и версии.
func (s *Store) CreateArtifact(p CreateArtifactParams) (*model.Artifact, *model.ArtifactVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()

	artifactID := p.ArtifactID
	if artifactID == "" {
		artifactID = uuid.New().String()
	}
	if _, ok := s.artifacts[artifactID]; ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrArtifactExists, artifactID)
	}

	a := &model.Artifact{
		ArtifactID:     artifactID,
		Title:          p.Title,
		Description:    p.Description,
		Type:           p.Type,
		Category:       p.Category,
		Tags:           append([]string(nil), p.Tags...),
		OwnerID:        p.CreatorID,
		CurrentVersion: "1.0.0",
		Status:         model.ArtifactActive,
		AccessLevel:    p.AccessLevel,
		BusinessImpact: p.BusinessImpact,
		StrategicValue: clamp01(p.StrategicValue),
		Template:       p.Template,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if a.AccessLevel == "" {
		a.AccessLevel = model.AccessPrivate
	}

	v := &model.ArtifactVersion{
		VersionID:    uuid.New().String(),
		ArtifactID:   a.ArtifactID,
		Number:       "1.0.0",
		Content:      p.Content,
		ChangeLog:    p.ChangeLog,
		Status:       model.VersionDraft,
		QualityScore: ComputeQuality(a, p.Content),
		CreatedBy:    p.CreatorID,
		CreatedAt:    now,
	}

	a.AuditTrail = append(a.AuditTrail, model.AuditEntry{
		Action:    "artifact_create",
		Actor:     p.CreatorID,
		Timestamp: now,
		Details:   "создан артефакт с версией 1.0.0",
	})

	s.artifacts[a.ArtifactID] = &aggregate{
		artifact: a,
		versions: []*model.ArtifactVersion{v},
	}

	s.logger.Info("Артефакт создан",
		slog.String("artifact_id", a.ArtifactID),
		slog.String("type", string(a.Type)),
		slog.String("owner", a.OwnerID),
	)

	return a.Clone(), v.Clone(), nil
}

// Get возвращает копию артефакта по ID.
func (s *Store) Get(artifactID string) (*model.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agg, ok := s.artifacts[artifactID]
	if !ok {
		return nil, ErrArtifactNotFound
	}
	return agg.artifact.Clone(), nil
}

// List возвращает копии всех артефактов, отсортированные по времени
// создания (новые первыми).
func (s *Store) List() []*model.Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.Artifact, 0, len(s.artifacts))
	for _, agg := range s.artifacts {
		result = append(result, agg.artifact.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

// Count возвращает количество артефактов.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.artifacts)
}

// CreateVersionParams — параметры создания новой версии.
type CreateVersionParams struct {
	ArtifactID string
	Content    model.ContentBlob
	ChangeLog  string
	Changes    []model.Change
	Bump       model.BumpKind
	EditorID   string
	// ExpectedCurrent — CAS-проверка: если непустой и не совпадает
	// с фактической current-версией, возвращается ErrVersionConflict.
	ExpectedCurrent string
}

// CreateVersion создаёт новую версию артефакта. Номер вычисляется
// детерминированно из current-версии и вида bump; parent-ссылка
// указывает на предыдущую последнюю версию. CurrentVersion артефакта
// обновляется атомарно с добавлением версии в цепочку.
func (s *Store) CreateVersion(p CreateVersionParams) (*model.ArtifactVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agg, ok := s.artifacts[p.ArtifactID]
	if !ok {
		return nil, ErrArtifactNotFound
	}
	a := agg.artifact

	if a.IsArchived() {
		return nil, ErrArtifactArchived
	}
	if !a.HasCollaborator(p.EditorID) {
		return nil, ErrAccessDenied
	}
	if p.ExpectedCurrent != "" && p.ExpectedCurrent != a.CurrentVersion {
		return nil, fmt.Errorf("%w: ожидалась %s, фактическая %s",
			ErrVersionConflict, p.ExpectedCurrent, a.CurrentVersion)
	}

	next, err := model.NextVersion(a.CurrentVersion, p.Bump)
	if err != nil {
		return nil, fmt.Errorf("не удалось вычислить номер версии: %w", err)
	}

	now := time.Now().UTC()
	parent := agg.latest()

	v := &model.ArtifactVersion{
		VersionID:    uuid.New().String(),
		ArtifactID:   a.ArtifactID,
		Number:       next,
		Content:      p.Content,
		ChangeLog:    p.ChangeLog,
		Changes:      append([]model.Change(nil), p.Changes...),
		Status:       model.VersionDraft,
		QualityScore: ComputeQuality(a, p.Content),
		CreatedBy:    p.EditorID,
		CreatedAt:    now,
	}
	if parent != nil {
		v.ParentVersionID = parent.VersionID
	}

	agg.versions = append(agg.versions, v)
	a.CurrentVersion = next
	a.UpdatedAt = now
	a.AuditTrail = append(a.AuditTrail, model.AuditEntry{
		Action:    "version_create",
		Actor:     p.EditorID,
		Timestamp: now,
		Details:   fmt.Sprintf("создана версия %s (%s bump)", next, p.Bump),
	})

	s.logger.Info("Версия создана",
		slog.String("artifact_id", a.ArtifactID),
		slog.String("version", next),
		slog.String("editor", p.EditorID),
	)

	return v.Clone(), nil
}

// GetVersion возвращает копию версии по номеру.
// Пустой номер и "current" резолвятся в CurrentVersion.
func (s *Store) GetVersion(artifactID, number string) (*model.ArtifactVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agg, ok := s.artifacts[artifactID]
	if !ok {
		return nil, ErrArtifactNotFound
	}
	v := agg.findVersion(number)
	if v == nil {
		return nil, fmt.Errorf("%w: %s@%s", ErrVersionNotFound, artifactID, number)
	}
	return v.Clone(), nil
}

// ListVersions возвращает копии всех версий артефакта
// в порядке создания.
func (s *Store) ListVersions(artifactID string) ([]*model.ArtifactVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agg, ok := s.artifacts[artifactID]
	if !ok {
		return nil, ErrArtifactNotFound
	}

	result := make([]*model.ArtifactVersion, 0, len(agg.versions))
	for _, v := range agg.versions {
		result = append(result, v.Clone())
	}
	return result, nil
}

// MetadataUpdate — частичное обновление метаданных артефакта.
// nil-поля не изменяются.
type MetadataUpdate struct {
	Title          *string
	Description    *string
	Category       *string
	Tags           *[]string
	Collaborators  *[]string
	AccessLevel    *model.AccessLevel
	BusinessImpact *model.BusinessImpact
	StrategicValue *float64
}

// UpdateMetadata применяет частичное обновление метаданных.
// Доступно только соавторам; архивированный артефакт не изменяется.
func (s *Store) UpdateMetadata(artifactID string, upd MetadataUpdate, editorID string) (*model.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agg, ok := s.artifacts[artifactID]
	if !ok {
		return nil, ErrArtifactNotFound
	}
	a := agg.artifact

	if a.IsArchived() {
		return nil, ErrArtifactArchived
	}
	if !a.HasCollaborator(editorID) {
		return nil, ErrAccessDenied
	}

	if upd.Title != nil {
		a.Title = *upd.Title
	}
	if upd.Description != nil {
		a.Description = *upd.Description
	}
	if upd.Category != nil {
		a.Category = *upd.Category
	}
	if upd.Tags != nil {
		a.Tags = append([]string(nil), (*upd.Tags)...)
	}
	if upd.Collaborators != nil {
		a.Collaborators = append([]string(nil), (*upd.Collaborators)...)
	}
	if upd.AccessLevel != nil {
		a.AccessLevel = *upd.AccessLevel
	}
	if upd.BusinessImpact != nil {
		a.BusinessImpact = *upd.BusinessImpact
	}
	if upd.StrategicValue != nil {
		a.StrategicValue = clamp01(*upd.StrategicValue)
	}

	now := time.Now().UTC()
	a.UpdatedAt = now
	a.AuditTrail = append(a.AuditTrail, model.AuditEntry{
		Action:    "metadata_update",
		Actor:     editorID,
		Timestamp: now,
	})

	return a.Clone(), nil
}

// Archive переводит артефакт в статус archived (read-only).
// Повторная архивация — ошибка ErrArtifactArchived.
func (s *Store) Archive(artifactID, actorID string) (*model.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agg, ok := s.artifacts[artifactID]
	if !ok {
		return nil, ErrArtifactNotFound
	}
	a := agg.artifact

	if a.IsArchived() {
		return nil, ErrArtifactArchived
	}
	if !a.HasCollaborator(actorID) {
		return nil, ErrAccessDenied
	}

	now := time.Now().UTC()
	a.Status = model.ArtifactArchived
	a.UpdatedAt = now
	a.AuditTrail = append(a.AuditTrail, model.AuditEntry{
		Action:    "archive",
		Actor:     actorID,
		Timestamp: now,
	})

	s.logger.Info("Артефакт архивирован",
		slog.String("artifact_id", artifactID),
		slog.String("actor", actorID),
	)

	return a.Clone(), nil
}

// Promote переводит версию в новый статус по матрице переходов.
// При архивации последней версии CurrentVersion откатывается
// на последнюю неархивированную версию.
func (s *Store) Promote(artifactID, number string, target model.VersionStatus, actorID string) (*model.ArtifactVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agg, ok := s.artifacts[artifactID]
	if !ok {
		return nil, ErrArtifactNotFound
	}
	a := agg.artifact

	if !a.HasCollaborator(actorID) {
		return nil, ErrAccessDenied
	}

	v := agg.findVersion(number)
	if v == nil {
		return nil, fmt.Errorf("%w: %s@%s", ErrVersionNotFound, artifactID, number)
	}

	allowed := false
	for _, next := range versionTransitions[v.Status] {
		if next == target {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("%w: %s → %s", ErrInvalidVersionTransition, v.Status, target)
	}

	now := time.Now().UTC()
	v.Status = target

	// Инвариант: CurrentVersion указывает на последнюю
	// неархивированную версию
	if target == model.VersionArchived && v.Number == a.CurrentVersion {
		for i := len(agg.versions) - 1; i >= 0; i-- {
			if agg.versions[i].Status != model.VersionArchived {
				a.CurrentVersion = agg.versions[i].Number
				break
			}
		}
	}

	a.UpdatedAt = now
	a.AuditTrail = append(a.AuditTrail, model.AuditEntry{
		Action:    "promote",
		Actor:     actorID,
		Timestamp: now,
		Details:   fmt.Sprintf("версия %s переведена в %s", v.Number, target),
	})

	return v.Clone(), nil
}

// AttachCompliance прикрепляет результаты compliance-проверок к версии.
// Результаты дописываются и никогда не изменяются задним числом.
func (s *Store) AttachCompliance(artifactID, number string, results []model.ComplianceResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	agg, ok := s.artifacts[artifactID]
	if !ok {
		return ErrArtifactNotFound
	}
	v := agg.findVersion(number)
	if v == nil {
		return fmt.Errorf("%w: %s@%s", ErrVersionNotFound, artifactID, number)
	}

	v.Compliance = append(v.Compliance, results...)
	return nil
}

// IncrementUsage увеличивает счётчик использования артефакта.
// Счётчики допустимы и для архивированных артефактов (просмотры,
// скачивания read-only данных).
func (s *Store) IncrementUsage(artifactID string, counter model.UsageCounter) (model.UsageStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agg, ok := s.artifacts[artifactID]
	if !ok {
		return model.UsageStats{}, ErrArtifactNotFound
	}
	a := agg.artifact

	switch counter {
	case model.CounterViews:
		a.Usage.Views++
	case model.CounterDownloads:
		a.Usage.Downloads++
	case model.CounterShares:
		a.Usage.Shares++
	case model.CounterForks:
		a.Usage.Forks++
	default:
		return model.UsageStats{}, fmt.Errorf("неизвестный счётчик использования: %q", counter)
	}

	return a.Usage, nil
}

// Fork создаёт новый артефакт-копию из current-версии источника.
// Новый артефакт начинает с версии 1.0.0, получает ссылку ForkedFrom
// и собственного владельца; счётчик Forks источника инкрементируется.
// Приватные артефакты доступны для форка только соавторам.
func (s *Store) Fork(sourceID, actorID, title string) (*model.Artifact, *model.ArtifactVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.artifacts[sourceID]
	if !ok {
		return nil, nil, ErrArtifactNotFound
	}

	if src.artifact.AccessLevel == model.AccessPrivate && !src.artifact.HasCollaborator(actorID) {
		return nil, nil, ErrAccessDenied
	}

	base := src.findVersion("")
	if base == nil {
		return nil, nil, fmt.Errorf("%w: %s@current", ErrVersionNotFound, sourceID)
	}

	now := time.Now().UTC()
	if title == "" {
		title = src.artifact.Title + " (форк)"
	}

	a := &model.Artifact{
		ArtifactID:     uuid.New().String(),
		Title:          title,
		Description:    src.artifact.Description,
		Type:           src.artifact.Type,
		Category:       src.artifact.Category,
		Tags:           append([]string(nil), src.artifact.Tags...),
		OwnerID:        actorID,
		CurrentVersion: "1.0.0",
		Status:         model.ArtifactActive,
		AccessLevel:    model.AccessPrivate,
		BusinessImpact: src.artifact.BusinessImpact,
		StrategicValue: src.artifact.StrategicValue,
		ForkedFrom:     sourceID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	content := base.Content
	content.Data = append([]byte(nil), base.Content.Data...)

	v := &model.ArtifactVersion{
		VersionID:    uuid.New().String(),
		ArtifactID:   a.ArtifactID,
		Number:       "1.0.0",
		Content:      content,
		ChangeLog:    fmt.Sprintf("форк %s@%s", sourceID, base.Number),
		Status:       model.VersionDraft,
		QualityScore: base.QualityScore,
		CreatedBy:    actorID,
		CreatedAt:    now,
	}

	a.AuditTrail = append(a.AuditTrail, model.AuditEntry{
		Action:    "fork",
		Actor:     actorID,
		Timestamp: now,
		Details:   fmt.Sprintf("форк артефакта %s версии %s", sourceID, base.Number),
	})

	s.artifacts[a.ArtifactID] = &aggregate{
		artifact: a,
		versions: []*model.ArtifactVersion{v},
	}

	src.artifact.Usage.Forks++
	src.artifact.AuditTrail = append(src.artifact.AuditTrail, model.AuditEntry{
		Action:    "forked_by",
		Actor:     actorID,
		Timestamp: now,
		Details:   fmt.Sprintf("создан форк %s", a.ArtifactID),
	})

	s.logger.Info("Артефакт форкнут",
		slog.String("source_id", sourceID),
		slog.String("fork_id", a.ArtifactID),
		slog.String("actor", actorID),
	)

	return a.Clone(), v.Clone(), nil
}

// Snapshot возвращает глубокие копии артефакта и его версий
// для записи write-through снапшота.
func (s *Store) Snapshot(artifactID string) (*model.Artifact, []*model.ArtifactVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agg, ok := s.artifacts[artifactID]
	if !ok {
		return nil, nil, ErrArtifactNotFound
	}

	versions := make([]*model.ArtifactVersion, 0, len(agg.versions))
	for _, v := range agg.versions {
		versions = append(versions, v.Clone())
	}
	return agg.artifact.Clone(), versions, nil
}

// Resolve возвращает current-версию и признак архивации артефакта.
// ok=false — артефакт не существует. Используется графом зависимостей
// для валидации рёбер.
func (s *Store) Resolve(artifactID string) (currentVersion string, archived bool, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agg, found := s.artifacts[artifactID]
	if !found {
		return "", false, false
	}
	return agg.artifact.CurrentVersion, agg.artifact.IsArchived(), true
}

// LiveChecksums возвращает набор checksum-ов всех версий всех
// артефактов. Используется janitor-ом для очистки blob store.
func (s *Store) LiveChecksums() map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	live := make(map[string]struct{})
	for _, agg := range s.artifacts {
		for _, v := range agg.versions {
			if v.Content.Checksum != "" {
				live[v.Content.Checksum] = struct{}{}
			}
		}
	}
	return live
}

// Stats — агрегированная статистика хранилища для метрик и /system/info.
type Stats struct {
	Artifacts int `json:"artifacts"`
	Archived  int `json:"archived"`
	Versions  int `json:"versions"`
}

// CollectStats возвращает агрегированную статистику хранилища.
func (s *Store) CollectStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	st.Artifacts = len(s.artifacts)
	for _, agg := range s.artifacts {
		if agg.artifact.IsArchived() {
			st.Archived++
		}
		st.Versions += len(agg.versions)
	}
	return st
}
