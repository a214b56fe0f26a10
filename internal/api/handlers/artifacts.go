// artifacts.go — обработчики CRUD-операций над артефактами:
// создание, версионирование, метаданные, архив, форк, зависимости, экспорт.
package handlers

import (
	"encoding/base64"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/arturkryukov/artstore/artifact-repository/internal/api/errors"
	"github.com/arturkryukov/artstore/artifact-repository/internal/domain/model"
	"github.com/arturkryukov/artstore/artifact-repository/internal/service"
	"github.com/arturkryukov/artstore/artifact-repository/internal/storage/versionstore"
)

// createArtifactRequest — тело POST /api/v1/artifacts.
// Контент передаётся в base64 (content_data).
type createArtifactRequest struct {
	Title          string               `json:"title"`
	Description    string               `json:"description,omitempty"`
	Type           model.ArtifactType   `json:"type"`
	Category       string               `json:"category,omitempty"`
	Tags           []string             `json:"tags,omitempty"`
	AccessLevel    model.AccessLevel    `json:"access_level,omitempty"`
	BusinessImpact model.BusinessImpact `json:"business_impact,omitempty"`
	StrategicValue float64              `json:"strategic_value,omitempty"`
	ContentType    string               `json:"content_type"`
	ContentData    string               `json:"content_data"`
	ChangeLog      string               `json:"change_log,omitempty"`
	// TemplateID — создание из шаблона; content_data игнорируется
	TemplateID     string            `json:"template_id,omitempty"`
	TemplateValues map[string]string `json:"template_values,omitempty"`
}

// artifactResponse — артефакт вместе с созданной версией.
type artifactResponse struct {
	Artifact *model.Artifact        `json:"artifact"`
	Version  *model.ArtifactVersion `json:"version,omitempty"`
}

// CreateArtifact — POST /api/v1/artifacts.
func (h *APIHandler) CreateArtifact(w http.ResponseWriter, r *http.Request) {
	var req createArtifactRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Title == "" {
		apierrors.ValidationError(w, "Поле title обязательно")
		return
	}

	p := service.CreateParams{
		Title:          req.Title,
		Description:    req.Description,
		Type:           req.Type,
		Category:       req.Category,
		Tags:           req.Tags,
		AccessLevel:    req.AccessLevel,
		BusinessImpact: req.BusinessImpact,
		StrategicValue: req.StrategicValue,
		ChangeLog:      req.ChangeLog,
		CreatorID:      actor(r),
	}

	// Создание из шаблона: контент рендерится из скелета
	if req.TemplateID != "" {
		a, v, err := h.artifacts.CreateFromTemplate(r.Context(), req.TemplateID, req.TemplateValues, p)
		if err != nil {
			h.handleServiceError(w, err, "Ошибка создания артефакта из шаблона")
			return
		}
		writeJSON(w, http.StatusCreated, artifactResponse{Artifact: a, Version: v})
		return
	}

	if req.Type == "" {
		apierrors.ValidationError(w, "Поле type обязательно")
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.ContentData)
	if err != nil {
		apierrors.ValidationError(w, "Поле content_data должно быть в base64")
		return
	}
	p.Content = model.ContentBlob{
		ContentType: req.ContentType,
		Data:        data,
	}

	a, v, err := h.artifacts.CreateArtifact(r.Context(), p)
	if err != nil {
		h.handleServiceError(w, err, "Ошибка создания артефакта")
		return
	}
	writeJSON(w, http.StatusCreated, artifactResponse{Artifact: a, Version: v})
}

// ListArtifacts — GET /api/v1/artifacts.
// Опциональный фильтр по статусу: ?status=active|archived.
func (h *APIHandler) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r)

	all := h.artifacts.List()
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := all[:0:0]
		for _, a := range all {
			if string(a.Status) == status {
				filtered = append(filtered, a)
			}
		}
		all = filtered
	}
	total := len(all)

	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"artifacts": all[offset:end],
		"total":     total,
		"limit":     limit,
		"offset":    offset,
	})
}

// GetArtifact — GET /api/v1/artifacts/{artifactID}.
func (h *APIHandler) GetArtifact(w http.ResponseWriter, r *http.Request) {
	a, err := h.artifacts.Get(chi.URLParam(r, "artifactID"))
	if err != nil {
		h.handleServiceError(w, err, "Ошибка получения артефакта")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// updateMetadataRequest — тело PATCH /api/v1/artifacts/{artifactID}.
// Все поля опциональны; присутствующие поля заменяют текущие значения.
type updateMetadataRequest struct {
	Title          *string               `json:"title,omitempty"`
	Description    *string               `json:"description,omitempty"`
	Category       *string               `json:"category,omitempty"`
	Tags           *[]string             `json:"tags,omitempty"`
	Collaborators  *[]string             `json:"collaborators,omitempty"`
	AccessLevel    *model.AccessLevel    `json:"access_level,omitempty"`
	BusinessImpact *model.BusinessImpact `json:"business_impact,omitempty"`
	StrategicValue *float64              `json:"strategic_value,omitempty"`
}

// UpdateMetadata — PATCH /api/v1/artifacts/{artifactID}.
func (h *APIHandler) UpdateMetadata(w http.ResponseWriter, r *http.Request) {
	var req updateMetadataRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	upd := versionstore.MetadataUpdate{
		Title:          req.Title,
		Description:    req.Description,
		Category:       req.Category,
		Tags:           req.Tags,
		Collaborators:  req.Collaborators,
		AccessLevel:    req.AccessLevel,
		BusinessImpact: req.BusinessImpact,
		StrategicValue: req.StrategicValue,
	}

	a, err := h.artifacts.UpdateMetadata(r.Context(), chi.URLParam(r, "artifactID"), upd, actor(r))
	if err != nil {
		h.handleServiceError(w, err, "Ошибка обновления метаданных")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ArchiveArtifact — POST /api/v1/artifacts/{artifactID}/archive.
// В ответе — список сломанных обязательных зависимостей зависимых артефактов.
func (h *APIHandler) ArchiveArtifact(w http.ResponseWriter, r *http.Request) {
	a, broken, err := h.artifacts.Archive(r.Context(), chi.URLParam(r, "artifactID"), actor(r))
	if err != nil {
		h.handleServiceError(w, err, "Ошибка архивирования артефакта")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"artifact":            a,
		"broken_dependencies": broken,
	})
}

// forkRequest — тело POST /api/v1/artifacts/{artifactID}/fork.
type forkRequest struct {
	Title string `json:"title,omitempty"`
}

// ForkArtifact — POST /api/v1/artifacts/{artifactID}/fork.
func (h *APIHandler) ForkArtifact(w http.ResponseWriter, r *http.Request) {
	var req forkRequest
	if r.ContentLength > 0 && !decodeJSON(w, r, &req) {
		return
	}

	forked, v, err := h.artifacts.Fork(r.Context(), chi.URLParam(r, "artifactID"), actor(r), req.Title)
	if err != nil {
		h.handleServiceError(w, err, "Ошибка форка артефакта")
		return
	}
	writeJSON(w, http.StatusCreated, artifactResponse{Artifact: forked, Version: v})
}

// usageRequest — тело POST /api/v1/artifacts/{artifactID}/usage.
type usageRequest struct {
	Counter model.UsageCounter `json:"counter"`
}

// IncrementUsage — POST /api/v1/artifacts/{artifactID}/usage.
// Инкремент счётчика использования (views, downloads, shares, forks).
func (h *APIHandler) IncrementUsage(w http.ResponseWriter, r *http.Request) {
	var req usageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	usage, err := h.artifacts.IncrementUsage(chi.URLParam(r, "artifactID"), req.Counter)
	if err != nil {
		h.handleServiceError(w, err, "Ошибка инкремента счётчика")
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

// exportArtifactRequest — тело POST /api/v1/artifacts/{artifactID}/export.
type exportArtifactRequest struct {
	Version string            `json:"version,omitempty"`
	Format  string            `json:"format"`
	Config  map[string]string `json:"config,omitempty"`
}

// ExportArtifact — POST /api/v1/artifacts/{artifactID}/export.
// Конвертация контента версии во внешний формат через сервис экспорта.
func (h *APIHandler) ExportArtifact(w http.ResponseWriter, r *http.Request) {
	var req exportArtifactRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Format == "" {
		apierrors.ValidationError(w, "Поле format обязательно")
		return
	}

	path, err := h.artifacts.Export(r.Context(), chi.URLParam(r, "artifactID"), req.Version, req.Format, req.Config)
	if err != nil {
		h.handleServiceError(w, err, "Ошибка экспорта артефакта")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}

// createVersionRequest — тело POST /api/v1/artifacts/{artifactID}/versions.
type createVersionRequest struct {
	ContentType string         `json:"content_type"`
	ContentData string         `json:"content_data"`
	ChangeLog   string         `json:"change_log,omitempty"`
	Changes     []model.Change `json:"changes,omitempty"`
	Bump        model.BumpKind `json:"bump,omitempty"`
	// ExpectedCurrent — оптимистическая блокировка: номер current-версии,
	// от которой редактор отталкивался
	ExpectedCurrent string `json:"expected_current,omitempty"`
}

// CreateVersion — POST /api/v1/artifacts/{artifactID}/versions.
func (h *APIHandler) CreateVersion(w http.ResponseWriter, r *http.Request) {
	var req createVersionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.ContentData)
	if err != nil {
		apierrors.ValidationError(w, "Поле content_data должно быть в base64")
		return
	}

	v, err := h.artifacts.CreateVersion(r.Context(), service.VersionParams{
		ArtifactID: chi.URLParam(r, "artifactID"),
		Content: model.ContentBlob{
			ContentType: req.ContentType,
			Data:        data,
		},
		ChangeLog:       req.ChangeLog,
		Changes:         req.Changes,
		Bump:            req.Bump,
		EditorID:        actor(r),
		ExpectedCurrent: req.ExpectedCurrent,
	})
	if err != nil {
		h.handleServiceError(w, err, "Ошибка создания версии")
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// ListVersions — GET /api/v1/artifacts/{artifactID}/versions.
func (h *APIHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.artifacts.ListVersions(chi.URLParam(r, "artifactID"))
	if err != nil {
		h.handleServiceError(w, err, "Ошибка получения версий")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"versions": versions,
		"total":    len(versions),
	})
}

// GetVersion — GET /api/v1/artifacts/{artifactID}/versions/{version}.
// "current" — alias текущей версии.
func (h *APIHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	v, err := h.artifacts.GetVersion(chi.URLParam(r, "artifactID"), chi.URLParam(r, "version"))
	if err != nil {
		h.handleServiceError(w, err, "Ошибка получения версии")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// GetVersionContent — GET /api/v1/artifacts/{artifactID}/versions/{version}/content.
// Отдаёт содержимое версии как бинарный поток с оригинальным Content-Type.
// ETag — SHA-256 контента; If-None-Match с совпадающим ETag → 304.
func (h *APIHandler) GetVersionContent(w http.ResponseWriter, r *http.Request) {
	v, err := h.artifacts.GetVersion(chi.URLParam(r, "artifactID"), chi.URLParam(r, "version"))
	if err != nil {
		h.handleServiceError(w, err, "Ошибка получения контента версии")
		return
	}

	etag := `"` + v.Content.Checksum + `"`
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	contentType := v.Content.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(v.Content.Data)
}

// promoteRequest — тело POST .../versions/{version}/promote.
type promoteRequest struct {
	Target model.VersionStatus `json:"target"`
}

// PromoteVersion — POST /api/v1/artifacts/{artifactID}/versions/{version}/promote.
func (h *APIHandler) PromoteVersion(w http.ResponseWriter, r *http.Request) {
	var req promoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Target == "" {
		apierrors.ValidationError(w, "Поле target обязательно")
		return
	}

	v, err := h.artifacts.Promote(r.Context(),
		chi.URLParam(r, "artifactID"), chi.URLParam(r, "version"), req.Target, actor(r))
	if err != nil {
		h.handleServiceError(w, err, "Ошибка продвижения версии")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// addDependencyRequest — тело POST /api/v1/artifacts/{artifactID}/dependencies.
type addDependencyRequest struct {
	ToID       string               `json:"to_id"`
	Type       model.DependencyType `json:"type"`
	Constraint string               `json:"constraint,omitempty"`
	Required   bool                 `json:"required,omitempty"`
}

// AddDependency — POST /api/v1/artifacts/{artifactID}/dependencies.
func (h *APIHandler) AddDependency(w http.ResponseWriter, r *http.Request) {
	var req addDependencyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ToID == "" {
		apierrors.ValidationError(w, "Поле to_id обязательно")
		return
	}

	dep, err := h.artifacts.AddDependency(r.Context(),
		chi.URLParam(r, "artifactID"), req.ToID, req.Type, req.Constraint, req.Required, actor(r))
	if err != nil {
		h.handleServiceError(w, err, "Ошибка добавления зависимости")
		return
	}
	writeJSON(w, http.StatusCreated, dep)
}

// ListDependencies — GET /api/v1/artifacts/{artifactID}/dependencies.
func (h *APIHandler) ListDependencies(w http.ResponseWriter, r *http.Request) {
	dependencies, err := h.artifacts.Dependencies(chi.URLParam(r, "artifactID"))
	if err != nil {
		h.handleServiceError(w, err, "Ошибка получения зависимостей")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dependencies": dependencies,
		"total":        len(dependencies),
	})
}

// RemoveDependency — DELETE /api/v1/artifacts/{artifactID}/dependencies/{dependencyID}.
func (h *APIHandler) RemoveDependency(w http.ResponseWriter, r *http.Request) {
	err := h.artifacts.RemoveDependency(r.Context(),
		chi.URLParam(r, "artifactID"), chi.URLParam(r, "dependencyID"), actor(r))
	if err != nil {
		h.handleServiceError(w, err, "Ошибка удаления зависимости")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListDependents — GET /api/v1/artifacts/{artifactID}/dependents.
// Транзитивное замыкание входящих рёбер: кого сломает изменение артефакта.
func (h *APIHandler) ListDependents(w http.ResponseWriter, r *http.Request) {
	dependents, err := h.artifacts.Dependents(chi.URLParam(r, "artifactID"))
	if err != nil {
		h.handleServiceError(w, err, "Ошибка получения зависимых артефактов")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dependents": dependents,
		"total":      len(dependents),
	})
}
