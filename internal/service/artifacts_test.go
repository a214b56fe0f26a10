package service

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/arturkryukov/artstore/artifact-repository/internal/compliance"
	"github.com/arturkryukov/artstore/artifact-repository/internal/config"
	"github.com/arturkryukov/artstore/artifact-repository/internal/domain/model"
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

// denyApprover — governance-заглушка, отклоняющая все действия.
type denyApprover struct {
	reason string
}

func (d denyApprover) Approve(_ context.Context, _, _ string, _ map[string]any) (bool, string, error) {
	return false, d.reason, nil
}

// artifactEnv — тестовое окружение сервисного слоя.
type artifactEnv struct {
	svc   *ArtifactService
	cfg   *config.Config
	store *versionstore.Store
	blobs *blob.Store
	graph *deps.Graph
	idx   *search.Index
}

// setupArtifactEnv создаёт окружение с PermitAll governance и без экспорта.
func setupArtifactEnv(t *testing.T) *artifactEnv {
	t.Helper()
	return setupArtifactEnvWith(t, governance.PermitAll{}, false)
}

func setupArtifactEnvWith(t *testing.T, approver governance.Approver, enforce bool) *artifactEnv {
	t.Helper()

	logger := testLogger()
	cfg := &config.Config{
		DataDir:                t.TempDir(),
		WALDir:                 t.TempDir(),
		MaxContentSize:         1 << 20,
		EnforceCompliance:      enforce,
		RejectDependencyCycles: true,
	}

	walEngine, err := wal.New(cfg.WALDir, logger)
	if err != nil {
		t.Fatalf("Ошибка создания WAL: %v", err)
	}
	blobs, err := blob.New(t.TempDir())
	if err != nil {
		t.Fatalf("Ошибка создания blob store: %v", err)
	}
	store := versionstore.New(logger)
	graph := deps.New(store, cfg.RejectDependencyCycles, logger)
	idx := search.New(logger)
	tpls, err := templates.Load("", logger)
	if err != nil {
		t.Fatalf("Ошибка создания библиотеки шаблонов: %v", err)
	}

	svc := NewArtifactService(cfg, walEngine, store, blobs, graph, idx,
		compliance.New(logger), approver, notify.NewLogSink(logger), nil, tpls, logger)

	return &artifactEnv{
		svc:   svc,
		cfg:   cfg,
		store: store,
		blobs: blobs,
		graph: graph,
		idx:   idx,
	}
}

// createTestArtifact создаёт артефакт с текстовым контентом.
func createTestArtifact(t *testing.T, env *artifactEnv, title, content string) *model.Artifact {
	t.Helper()

	a, _, err := env.svc.CreateArtifact(context.Background(), CreateParams{
		Title:       title,
		Description: "тестовый артефакт",
		Type:        model.TypeDocument,
		Category:    "docs",
		Tags:        []string{"test"},
		AccessLevel: model.AccessTeam,
		Content: model.ContentBlob{
			ContentType: "text/plain",
			Data:        []byte(content),
		},
		ChangeLog: "начальная версия",
		CreatorID: "alice",
	})
	if err != nil {
		t.Fatalf("Ошибка создания артефакта: %v", err)
	}
	return a
}

func TestCreateArtifact_InitialVersion(t *testing.T) {
	env := setupArtifactEnv(t)

	a, v, err := env.svc.CreateArtifact(context.Background(), CreateParams{
		Title: "Руководство",
		Type:  model.TypeDocument,
		Content: model.ContentBlob{
			ContentType: "text/plain",
			Data:        []byte("hello world"),
		},
		CreatorID: "alice",
	})
	if err != nil {
		t.Fatalf("Ошибка создания артефакта: %v", err)
	}

	if v.Number != "1.0.0" {
		t.Errorf("Номер начальной версии: хотели 1.0.0, получили %s", v.Number)
	}
	if v.Status != model.VersionDraft {
		t.Errorf("Статус начальной версии: хотели draft, получили %s", v.Status)
	}
	if v.Content.Checksum == "" {
		t.Error("Checksum контента не заполнен")
	}
	if !env.blobs.Exists(v.Content.Checksum) {
		t.Error("Контент не сохранён в blob store")
	}
	if _, err := os.Stat(record.Path(env.cfg.DataDir, a.ArtifactID)); err != nil {
		t.Errorf("Снапшот артефакта не записан: %v", err)
	}
	if len(v.Compliance) == 0 {
		t.Error("Результаты compliance не прикреплены к версии")
	}
}

func TestCreateArtifact_GovernanceRejected(t *testing.T) {
	env := setupArtifactEnvWith(t, denyApprover{reason: "бюджет исчерпан"}, false)

	_, _, err := env.svc.CreateArtifact(context.Background(), CreateParams{
		Title:     "Запрещённый",
		Type:      model.TypeDocument,
		Content:   model.ContentBlob{ContentType: "text/plain", Data: []byte("контент")},
		CreatorID: "alice",
	})
	if !errors.Is(err, ErrGovernanceRejected) {
		t.Errorf("Хотели ErrGovernanceRejected, получили %v", err)
	}
	if len(env.store.List()) != 0 {
		t.Error("Отклонённый артефакт попал в хранилище")
	}
}

func TestCreateArtifact_ContentTooLarge(t *testing.T) {
	env := setupArtifactEnv(t)
	env.cfg.MaxContentSize = 8

	_, _, err := env.svc.CreateArtifact(context.Background(), CreateParams{
		Title:     "Большой",
		Type:      model.TypeDocument,
		Content:   model.ContentBlob{ContentType: "text/plain", Data: []byte("слишком длинный контент")},
		CreatorID: "alice",
	})
	if !errors.Is(err, ErrContentTooLarge) {
		t.Errorf("Хотели ErrContentTooLarge, получили %v", err)
	}
}

func TestCreateVersion_MinorBump(t *testing.T) {
	env := setupArtifactEnv(t)
	a := createTestArtifact(t, env, "Документ", "hello world")

	v, err := env.svc.CreateVersion(context.Background(), VersionParams{
		ArtifactID: a.ArtifactID,
		Content:    model.ContentBlob{ContentType: "text/plain", Data: []byte("hello brave world")},
		ChangeLog:  "уточнение",
		Bump:       model.BumpMinor,
		EditorID:   "alice",
	})
	if err != nil {
		t.Fatalf("Ошибка создания версии: %v", err)
	}
	if v.Number != "1.1.0" {
		t.Errorf("Номер версии: хотели 1.1.0, получили %s", v.Number)
	}

	got, err := env.svc.GetVersion(a.ArtifactID, "")
	if err != nil {
		t.Fatalf("Ошибка чтения current-версии: %v", err)
	}
	if string(got.Content.Data) != "hello brave world" {
		t.Errorf("Контент current-версии: %q", got.Content.Data)
	}
}

func TestCreateVersion_CASConflict(t *testing.T) {
	env := setupArtifactEnv(t)
	a := createTestArtifact(t, env, "Документ", "база")

	_, err := env.svc.CreateVersion(context.Background(), VersionParams{
		ArtifactID:      a.ArtifactID,
		Content:         model.ContentBlob{ContentType: "text/plain", Data: []byte("правка")},
		Bump:            model.BumpPatch,
		EditorID:        "alice",
		ExpectedCurrent: "9.9.9",
	})
	if !errors.Is(err, versionstore.ErrVersionConflict) {
		t.Errorf("Хотели ErrVersionConflict, получили %v", err)
	}
}

func TestSearch_FindsIndexedArtifact(t *testing.T) {
	env := setupArtifactEnv(t)
	a := createTestArtifact(t, env, "Руководство по миграции", "hello world")

	results, total := env.idx.Query(search.Filters{Keywords: "руководство"})
	if total != 1 || len(results) != 1 {
		t.Fatalf("Хотели 1 результат, получили %d", total)
	}
	if results[0].Document.ArtifactID != a.ArtifactID {
		t.Errorf("Найден не тот артефакт: %s", results[0].Document.ArtifactID)
	}

	if _, total := env.idx.Query(search.Filters{Keywords: "xyzzy"}); total != 0 {
		t.Errorf("Поиск несуществующего слова вернул %d результатов", total)
	}
}

func TestSearch_IndexesVersionContent(t *testing.T) {
	env := setupArtifactEnv(t)
	ctx := context.Background()
	a := createTestArtifact(t, env, "Регламент выпуска", "hello world")

	// Слово встречается только в контенте версии, не в метаданных
	results, total := env.idx.Query(search.Filters{Keywords: "hello"})
	if total != 1 || len(results) != 1 {
		t.Fatalf("Запрос по слову из контента должен вернуть артефакт: total=%d", total)
	}
	if results[0].Document.ArtifactID != a.ArtifactID {
		t.Errorf("Найден не тот артефакт: %s", results[0].Document.ArtifactID)
	}
	if results[0].Document.ContentText != "" {
		t.Error("Контент версии не должен возвращаться в поисковой выдаче")
	}

	// Новая current-версия переиндексирует контент
	if _, err := env.svc.CreateVersion(ctx, VersionParams{
		ArtifactID: a.ArtifactID,
		Content:    model.ContentBlob{ContentType: "text/plain", Data: []byte("farewell planet")},
		Bump:       model.BumpMinor,
		EditorID:   "alice",
	}); err != nil {
		t.Fatalf("Ошибка создания версии: %v", err)
	}
	if _, total := env.idx.Query(search.Filters{Keywords: "hello"}); total != 0 {
		t.Errorf("Контент старой версии остался в индексе: total=%d", total)
	}
	if _, total := env.idx.Query(search.Filters{Keywords: "farewell"}); total != 1 {
		t.Errorf("Контент новой current-версии не проиндексирован: total=%d", total)
	}
}

func TestSearch_BinaryContentNotIndexed(t *testing.T) {
	env := setupArtifactEnv(t)

	_, _, err := env.svc.CreateArtifact(context.Background(), CreateParams{
		Title: "Установочный пакет",
		Type:  model.TypeDocument,
		Content: model.ContentBlob{
			ContentType: "application/octet-stream",
			Data:        []byte("magicword внутри бинарного payload"),
		},
		CreatorID: "alice",
	})
	if err != nil {
		t.Fatalf("Ошибка создания артефакта: %v", err)
	}

	if _, total := env.idx.Query(search.Filters{Keywords: "magicword"}); total != 0 {
		t.Errorf("Бинарный контент не должен индексироваться: total=%d", total)
	}
	// Метаданные при этом остаются в индексе
	if _, total := env.idx.Query(search.Filters{Keywords: "установочный"}); total != 1 {
		t.Errorf("Метаданные бинарного артефакта не проиндексированы: total=%d", total)
	}
}

func TestPromote_Lifecycle(t *testing.T) {
	env := setupArtifactEnv(t)
	a := createTestArtifact(t, env, "Документ", "copyright (c) 2026 пример текста")

	ctx := context.Background()
	for _, target := range []model.VersionStatus{model.VersionReview, model.VersionApproved, model.VersionPublished} {
		v, err := env.svc.Promote(ctx, a.ArtifactID, "1.0.0", target, "alice")
		if err != nil {
			t.Fatalf("Продвижение в %s: %v", target, err)
		}
		if v.Status != target {
			t.Errorf("Статус после продвижения: хотели %s, получили %s", target, v.Status)
		}
	}

	// Обратный переход published → review недопустим
	if _, err := env.svc.Promote(ctx, a.ArtifactID, "1.0.0", model.VersionReview, "alice"); !errors.Is(err, versionstore.ErrInvalidVersionTransition) {
		t.Errorf("Хотели ErrInvalidVersionTransition, получили %v", err)
	}
}

func TestPromote_ComplianceBlocked(t *testing.T) {
	env := setupArtifactEnvWith(t, governance.PermitAll{}, true)
	// Утечка секрета → security=failed → публикация блокируется
	a := createTestArtifact(t, env, "Конфиг", "password: hunter2")

	ctx := context.Background()
	if _, err := env.svc.Promote(ctx, a.ArtifactID, "1.0.0", model.VersionReview, "alice"); err != nil {
		t.Fatalf("Продвижение в review должно проходить: %v", err)
	}
	if _, err := env.svc.Promote(ctx, a.ArtifactID, "1.0.0", model.VersionApproved, "alice"); err != nil {
		t.Fatalf("Продвижение в approved должно проходить: %v", err)
	}

	_, err := env.svc.Promote(ctx, a.ArtifactID, "1.0.0", model.VersionPublished, "alice")
	if !errors.Is(err, ErrComplianceBlocked) {
		t.Errorf("Хотели ErrComplianceBlocked, получили %v", err)
	}
}

func TestArchive_BreaksRequiredDependents(t *testing.T) {
	env := setupArtifactEnv(t)
	ctx := context.Background()

	a := createTestArtifact(t, env, "Потребитель", "использует библиотеку")
	b := createTestArtifact(t, env, "Библиотека", "переиспользуемый код")

	dep, err := env.svc.AddDependency(ctx, a.ArtifactID, b.ArtifactID, model.DepImport, ">=1.0.0", true, "alice")
	if err != nil {
		t.Fatalf("Ошибка добавления зависимости: %v", err)
	}
	if dep.Validation != model.ValidationValid {
		t.Fatalf("Новое ребро должно быть valid, получили %s", dep.Validation)
	}

	archived, broken, err := env.svc.Archive(ctx, b.ArtifactID, "alice")
	if err != nil {
		t.Fatalf("Ошибка архивации: %v", err)
	}
	if archived.Status != model.ArtifactArchived {
		t.Errorf("Статус артефакта: хотели archived, получили %s", archived.Status)
	}
	if len(broken) != 1 {
		t.Fatalf("Хотели 1 сломанное ребро, получили %d", len(broken))
	}

	// Ребро не удаляется, но помечается broken
	edges, err := env.svc.Dependencies(a.ArtifactID)
	if err != nil {
		t.Fatalf("Ошибка чтения зависимостей: %v", err)
	}
	if len(edges) != 1 || edges[0].Validation != model.ValidationBroken {
		t.Errorf("Ребро после архивации цели: %+v", edges)
	}

	// Архивированный артефакт read-only
	_, err = env.svc.CreateVersion(ctx, VersionParams{
		ArtifactID: b.ArtifactID,
		Content:    model.ContentBlob{ContentType: "text/plain", Data: []byte("правка")},
		Bump:       model.BumpPatch,
		EditorID:   "alice",
	})
	if !errors.Is(err, versionstore.ErrArtifactArchived) {
		t.Errorf("Хотели ErrArtifactArchived, получили %v", err)
	}
}

func TestAddDependency_CycleRejected(t *testing.T) {
	env := setupArtifactEnv(t)
	ctx := context.Background()

	a := createTestArtifact(t, env, "A", "контент a")
	b := createTestArtifact(t, env, "B", "контент b")

	if _, err := env.svc.AddDependency(ctx, a.ArtifactID, b.ArtifactID, model.DepReference, "", false, "alice"); err != nil {
		t.Fatalf("Ошибка добавления зависимости: %v", err)
	}
	_, err := env.svc.AddDependency(ctx, b.ArtifactID, a.ArtifactID, model.DepReference, "", false, "alice")
	if !errors.Is(err, deps.ErrCycleDetected) {
		t.Errorf("Хотели ErrCycleDetected, получили %v", err)
	}
}

func TestFork_IndependentHistory(t *testing.T) {
	env := setupArtifactEnv(t)
	ctx := context.Background()
	src := createTestArtifact(t, env, "Оригинал", "исходный контент")

	forked, fv, err := env.svc.Fork(ctx, src.ArtifactID, "bob", "Форк оригинала")
	if err != nil {
		t.Fatalf("Ошибка форка: %v", err)
	}
	if forked.ArtifactID == src.ArtifactID {
		t.Fatal("Форк разделяет ID с источником")
	}
	if fv.Number != "1.0.0" {
		t.Errorf("Версия форка: хотели 1.0.0, получили %s", fv.Number)
	}

	// Новая версия форка не затрагивает источник
	if _, err := env.svc.CreateVersion(ctx, VersionParams{
		ArtifactID: forked.ArtifactID,
		Content:    model.ContentBlob{ContentType: "text/plain", Data: []byte("контент форка")},
		Bump:       model.BumpMajor,
		EditorID:   "bob",
	}); err != nil {
		t.Fatalf("Ошибка создания версии форка: %v", err)
	}

	srcVersions, err := env.svc.ListVersions(src.ArtifactID)
	if err != nil {
		t.Fatalf("Ошибка чтения версий источника: %v", err)
	}
	if len(srcVersions) != 1 {
		t.Errorf("Версии источника: хотели 1, получили %d", len(srcVersions))
	}

	srcAfter, err := env.store.Get(src.ArtifactID)
	if err != nil {
		t.Fatalf("Ошибка чтения источника: %v", err)
	}
	if srcAfter.Usage.Forks != 1 {
		t.Errorf("Счётчик форков источника: хотели 1, получили %d", srcAfter.Usage.Forks)
	}
}

func TestGetVersion_ReadsContentFromBlobStore(t *testing.T) {
	env := setupArtifactEnv(t)
	a := createTestArtifact(t, env, "Документ", "контент для скачивания")

	v, err := env.svc.GetVersion(a.ArtifactID, "1.0.0")
	if err != nil {
		t.Fatalf("Ошибка чтения версии: %v", err)
	}
	if string(v.Content.Data) != "контент для скачивания" {
		t.Errorf("Контент версии: %q", v.Content.Data)
	}

	// Скачивание учитывается в usage
	after, err := env.store.Get(a.ArtifactID)
	if err != nil {
		t.Fatalf("Ошибка чтения артефакта: %v", err)
	}
	if after.Usage.Downloads != 1 {
		t.Errorf("Счётчик скачиваний: хотели 1, получили %d", after.Usage.Downloads)
	}
}

func TestCreateFromTemplate(t *testing.T) {
	tplDir := t.TempDir()
	tplJSON := `{
		"template_id": "report",
		"name": "Отчёт",
		"type": "document",
		"content_type": "text/markdown",
		"skeleton": "# {{title}}\n\nАвтор: {{author}}\n",
		"placeholders": [
			{"name": "title", "required": true},
			{"name": "author", "required": false, "default": "команда"}
		]
	}`
	if err := os.WriteFile(tplDir+"/report"+templates.TemplateSuffix, []byte(tplJSON), 0o644); err != nil {
		t.Fatalf("Ошибка записи шаблона: %v", err)
	}

	env := setupArtifactEnv(t)
	tpls, err := templates.Load(tplDir, testLogger())
	if err != nil {
		t.Fatalf("Ошибка загрузки шаблонов: %v", err)
	}
	env.svc.tpls = tpls

	a, v, err := env.svc.CreateFromTemplate(context.Background(), "report",
		map[string]string{"title": "Квартальный отчёт"},
		CreateParams{
			Title:     "Квартальный отчёт",
			CreatorID: "alice",
		})
	if err != nil {
		t.Fatalf("Ошибка создания из шаблона: %v", err)
	}

	want := "# Квартальный отчёт\n\nАвтор: команда\n"
	if string(v.Content.Data) != want {
		t.Errorf("Отрендеренный контент: %q", v.Content.Data)
	}
	if a.Template == nil || a.Template.TemplateID != "report" {
		t.Errorf("Ссылка на шаблон не сохранена: %+v", a.Template)
	}
	if a.Type != model.TypeDocument {
		t.Errorf("Тип артефакта из шаблона: %s", a.Type)
	}

	// Несовпадение типа артефакта и шаблона
	_, _, err = env.svc.CreateFromTemplate(context.Background(), "report",
		map[string]string{"title": "Т"},
		CreateParams{Title: "Т", Type: model.TypeCode, CreatorID: "alice"})
	if !errors.Is(err, ErrTemplateTypeMismatch) {
		t.Errorf("Хотели ErrTemplateTypeMismatch, получили %v", err)
	}
}

func TestExport_UnavailableWithoutExporter(t *testing.T) {
	env := setupArtifactEnv(t)
	a := createTestArtifact(t, env, "Документ", "контент")

	_, err := env.svc.Export(context.Background(), a.ArtifactID, "1.0.0", "pdf", nil)
	if !errors.Is(err, ErrExportUnavailable) {
		t.Errorf("Хотели ErrExportUnavailable, получили %v", err)
	}
}

func TestCollectStats(t *testing.T) {
	env := setupArtifactEnv(t)
	ctx := context.Background()

	a := createTestArtifact(t, env, "A", "контент a")
	b := createTestArtifact(t, env, "B", "контент b")
	if _, err := env.svc.AddDependency(ctx, a.ArtifactID, b.ArtifactID, model.DepReference, "", false, "alice"); err != nil {
		t.Fatalf("Ошибка добавления зависимости: %v", err)
	}
	if _, _, err := env.svc.Archive(ctx, b.ArtifactID, "alice"); err != nil {
		t.Fatalf("Ошибка архивации: %v", err)
	}

	stats := env.svc.CollectStats()
	if stats.Artifacts != 2 {
		t.Errorf("Artifacts: хотели 2, получили %d", stats.Artifacts)
	}
	if stats.Archived != 1 {
		t.Errorf("Archived: хотели 1, получили %d", stats.Archived)
	}
	if stats.Dependencies != 1 {
		t.Errorf("Dependencies: хотели 1, получили %d", stats.Dependencies)
	}
	if stats.Indexed != 2 {
		t.Errorf("Indexed: хотели 2, получили %d", stats.Indexed)
	}
}
