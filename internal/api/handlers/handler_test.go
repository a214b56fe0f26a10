package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arturkryukov/artstore/artifact-repository/internal/api/middleware"
	"github.com/arturkryukov/artstore/artifact-repository/internal/collab"
	"github.com/arturkryukov/artstore/artifact-repository/internal/compliance"
	"github.com/arturkryukov/artstore/artifact-repository/internal/config"
	"github.com/arturkryukov/artstore/artifact-repository/internal/governance"
	"github.com/arturkryukov/artstore/artifact-repository/internal/notify"
	"github.com/arturkryukov/artstore/artifact-repository/internal/service"
	"github.com/arturkryukov/artstore/artifact-repository/internal/storage/blob"
	"github.com/arturkryukov/artstore/artifact-repository/internal/storage/deps"
	"github.com/arturkryukov/artstore/artifact-repository/internal/storage/search"
	"github.com/arturkryukov/artstore/artifact-repository/internal/storage/versionstore"
	"github.com/arturkryukov/artstore/artifact-repository/internal/storage/wal"
	"github.com/arturkryukov/artstore/artifact-repository/internal/templates"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setupRouter собирает полный API-стек с анонимной аутентификацией.
func setupRouter(t *testing.T, scopes ...string) *chi.Mux {
	t.Helper()

	logger := testLogger()
	cfg := &config.Config{
		RepositoryID:   "test-repo-01",
		DataDir:        t.TempDir(),
		WALDir:         t.TempDir(),
		MaxContentSize: 1 << 20,
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
	graph := deps.New(store, true, logger)
	idx := search.New(logger)
	tpls, err := templates.Load("", logger)
	if err != nil {
		t.Fatalf("Ошибка загрузки шаблонов: %v", err)
	}

	artifactSvc := service.NewArtifactService(cfg, walEngine, store, blobs, graph, idx,
		compliance.New(logger), governance.PermitAll{}, notify.NewLogSink(logger), nil, tpls, logger)
	searchSvc := service.NewSearchService(idx, 16, time.Minute, logger)
	artifactSvc.OnIndexChange(searchSvc.Invalidate)
	sessionSvc := service.NewSessionService(collab.New(logger), store, artifactSvc,
		governance.PermitAll{}, notify.NewLogSink(logger), logger)
	reconcileSvc := service.NewReconcileService(store, blobs, idx, cfg.DataDir, time.Hour, logger)

	api := NewAPIHandler(artifactSvc, searchSvc, sessionSvc, reconcileSvc,
		NewSystemHandler(cfg, artifactSvc), NewHealthHandler(cfg.DataDir, cfg.WALDir), logger)

	if len(scopes) == 0 {
		scopes = []string{ScopeArtifactsRead, ScopeArtifactsWrite, ScopeAdminWrite}
	}
	router := chi.NewRouter()
	router.Use(middleware.AnonymousAuth(scopes...))
	api.RegisterRoutes(router)
	return router
}

// doJSON выполняет запрос с JSON-телом и возвращает ответ.
func doJSON(t *testing.T, router *chi.Mux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Ошибка сериализации тела: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// createViaAPI создаёт артефакт через HTTP и возвращает его ID.
func createViaAPI(t *testing.T, router *chi.Mux, title, content string) string {
	t.Helper()

	rec := doJSON(t, router, http.MethodPost, "/api/v1/artifacts", map[string]any{
		"title":        title,
		"type":         "document",
		"content_type": "text/plain",
		"content_data": base64.StdEncoding.EncodeToString([]byte(content)),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Создание артефакта: статус %d, тело %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Artifact struct {
			ArtifactID string `json:"artifact_id"`
		} `json:"artifact"`
		Version struct {
			Number string `json:"number"`
		} `json:"version"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Ошибка разбора ответа: %v", err)
	}
	if resp.Version.Number != "1.0.0" {
		t.Fatalf("Начальная версия: хотели 1.0.0, получили %s", resp.Version.Number)
	}
	return resp.Artifact.ArtifactID
}

func TestAPI_CreateAndGetArtifact(t *testing.T) {
	router := setupRouter(t)
	id := createViaAPI(t, router, "Документ API", "hello world")

	rec := doJSON(t, router, http.MethodGet, "/api/v1/artifacts/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Получение артефакта: статус %d", rec.Code)
	}

	var a struct {
		Title  string `json:"title"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &a); err != nil {
		t.Fatalf("Ошибка разбора ответа: %v", err)
	}
	if a.Title != "Документ API" || a.Status != "active" {
		t.Errorf("Артефакт: %+v", a)
	}
}

func TestAPI_GetArtifact_NotFound(t *testing.T) {
	router := setupRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/artifacts/00000000-0000-0000-0000-000000000000", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Статус: хотели 404, получили %d", rec.Code)
	}
}

func TestAPI_Search(t *testing.T) {
	router := setupRouter(t)
	createViaAPI(t, router, "Регламент выпуска релизов", "процедура выпуска")

	rec := doJSON(t, router, http.MethodGet, "/api/v1/artifacts/search?q=регламент", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Поиск: статус %d", rec.Code)
	}
	var resp struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Ошибка разбора ответа: %v", err)
	}
	if resp.Total != 1 {
		t.Errorf("Total: хотели 1, получили %d", resp.Total)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/artifacts/search?q=xyzzy", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Ошибка разбора ответа: %v", err)
	}
	if resp.Total != 0 {
		t.Errorf("Total по несуществующему слову: %d", resp.Total)
	}
}

func TestAPI_VersionContentETag(t *testing.T) {
	router := setupRouter(t)
	id := createViaAPI(t, router, "Документ", "контент версии")

	rec := doJSON(t, router, http.MethodGet, "/api/v1/artifacts/"+id+"/versions/current/content", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Контент версии: статус %d", rec.Code)
	}
	if rec.Body.String() != "контент версии" {
		t.Errorf("Тело ответа: %q", rec.Body.String())
	}
	etag := rec.Header().Get("ETag")
	if etag == "" {
		t.Fatal("Заголовок ETag отсутствует")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/artifacts/"+id+"/versions/latest/content", nil)
	req.Header.Set("If-None-Match", etag)
	cached := httptest.NewRecorder()
	router.ServeHTTP(cached, req)
	if cached.Code != http.StatusNotModified {
		t.Errorf("If-None-Match: хотели 304, получили %d", cached.Code)
	}
}

func TestAPI_CreateVersionAndPromote(t *testing.T) {
	router := setupRouter(t)
	id := createViaAPI(t, router, "Документ", "база")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/artifacts/"+id+"/versions", map[string]any{
		"content_type": "text/plain",
		"content_data": base64.StdEncoding.EncodeToString([]byte("правка")),
		"bump":         "minor",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Создание версии: статус %d, тело %s", rec.Code, rec.Body.String())
	}
	var v struct {
		Number string `json:"number"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("Ошибка разбора ответа: %v", err)
	}
	if v.Number != "1.1.0" {
		t.Errorf("Номер версии: хотели 1.1.0, получили %s", v.Number)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/artifacts/"+id+"/versions/1.1.0/promote", map[string]any{
		"target": "review",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Продвижение: статус %d, тело %s", rec.Code, rec.Body.String())
	}

	// Недопустимый переход review → published (минуя approved)
	rec = doJSON(t, router, http.MethodPost, "/api/v1/artifacts/"+id+"/versions/1.1.0/promote", map[string]any{
		"target": "published",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("Недопустимый переход: хотели 409, получили %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestAPI_DependenciesFlow(t *testing.T) {
	router := setupRouter(t)
	a := createViaAPI(t, router, "Потребитель", "контент a")
	b := createViaAPI(t, router, "Библиотека", "контент b")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/artifacts/"+a+"/dependencies", map[string]any{
		"to_id":    b,
		"type":     "import",
		"required": true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Добавление зависимости: статус %d, тело %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/artifacts/"+b+"/dependents", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Dependents: статус %d", rec.Code)
	}
	var resp struct {
		Dependents []string `json:"dependents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Ошибка разбора ответа: %v", err)
	}
	if len(resp.Dependents) != 1 || resp.Dependents[0] != a {
		t.Errorf("Dependents: %v", resp.Dependents)
	}

	// Цикл b → a отклоняется
	rec = doJSON(t, router, http.MethodPost, "/api/v1/artifacts/"+b+"/dependencies", map[string]any{
		"to_id": a,
		"type":  "reference",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("Цикл: хотели 422, получили %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestAPI_SessionLifecycle(t *testing.T) {
	router := setupRouter(t)
	id := createViaAPI(t, router, "Документ", "hello world")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/sessions", map[string]any{
		"artifact_id": id,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Открытие сессии: статус %d, тело %s", rec.Code, rec.Body.String())
	}
	var sess struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("Ошибка разбора ответа: %v", err)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/sessions/"+sess.SessionID+"/changes", map[string]any{
		"kind":     "content_edit",
		"location": map[string]int{"offset": 0, "length": 5},
		"new_text": "goodbye",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Предложение изменения: статус %d, тело %s", rec.Code, rec.Body.String())
	}
	var change struct {
		ChangeID string `json:"change_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &change); err != nil {
		t.Fatalf("Ошибка разбора ответа: %v", err)
	}

	rec = doJSON(t, router, http.MethodPost,
		"/api/v1/sessions/"+sess.SessionID+"/changes/"+change.ChangeID+"/accept", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Принятие изменения: статус %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/sessions/"+sess.SessionID+"/complete", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Завершение сессии: статус %d, тело %s", rec.Code, rec.Body.String())
	}
	var done struct {
		Version struct {
			Number string `json:"number"`
		} `json:"version"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &done); err != nil {
		t.Fatalf("Ошибка разбора ответа: %v", err)
	}
	if done.Version.Number != "1.1.0" {
		t.Errorf("Свёрнутая версия: хотели 1.1.0, получили %s", done.Version.Number)
	}
}

func TestAPI_SessionResumeAfterComplete(t *testing.T) {
	router := setupRouter(t)
	id := createViaAPI(t, router, "Документ", "hello world")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/sessions", map[string]any{
		"artifact_id": id,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Открытие сессии: статус %d, тело %s", rec.Code, rec.Body.String())
	}
	var sess struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("Ошибка разбора ответа: %v", err)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/sessions/"+sess.SessionID+"/complete", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Завершение сессии: статус %d, тело %s", rec.Code, rec.Body.String())
	}

	// Завершённая сессия — терминальное состояние
	rec = doJSON(t, router, http.MethodPost, "/api/v1/sessions/"+sess.SessionID+"/resume", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("Возобновление завершённой сессии: статус %d, тело %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Ошибка разбора ответа: %v", err)
	}
	if resp.Error.Code != "INVALID_TRANSITION" {
		t.Errorf("Код ошибки: хотели INVALID_TRANSITION, получили %s", resp.Error.Code)
	}
}

func TestAPI_ScopeEnforcement(t *testing.T) {
	// Только чтение: мутации запрещены
	router := setupRouter(t, ScopeArtifactsRead)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/artifacts", map[string]any{
		"title": "Запрещённый",
		"type":  "document",
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("Создание без scope: хотели 403, получили %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/artifacts", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("Чтение со scope read: хотели 200, получили %d", rec.Code)
	}
}

func TestAPI_MaintenanceReconcile(t *testing.T) {
	router := setupRouter(t)
	createViaAPI(t, router, "Документ", "контент")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/maintenance/reconcile", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Reconcile: статус %d, тело %s", rec.Code, rec.Body.String())
	}
	var result struct {
		ArtifactsChecked int `json:"artifacts_checked"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("Ошибка разбора ответа: %v", err)
	}
	if result.ArtifactsChecked != 1 {
		t.Errorf("ArtifactsChecked: хотели 1, получили %d", result.ArtifactsChecked)
	}
}

func TestAPI_SystemInfoAndHealth(t *testing.T) {
	router := setupRouter(t)
	createViaAPI(t, router, "Документ", "контент")

	rec := doJSON(t, router, http.MethodGet, "/api/v1/system/info", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("System info: статус %d", rec.Code)
	}
	var info struct {
		RepositoryID string `json:"repository_id"`
		Stats        struct {
			Artifacts int `json:"artifacts"`
		} `json:"stats"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("Ошибка разбора ответа: %v", err)
	}
	if info.RepositoryID != "test-repo-01" || info.Stats.Artifacts != 1 {
		t.Errorf("Info: %+v", info)
	}

	for _, path := range []string{"/health/live", "/health/ready"} {
		rec := doJSON(t, router, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: статус %d", path, rec.Code)
		}
	}
}
