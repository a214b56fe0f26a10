// handler.go — основной обработчик API Artifact Repository.
// Объединяет доменные обработчики и собирает маршруты chi.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/arturkryukov/artstore/artifact-repository/internal/api/errors"
	"github.com/arturkryukov/artstore/artifact-repository/internal/api/middleware"
	"github.com/arturkryukov/artstore/artifact-repository/internal/collab"
	"github.com/arturkryukov/artstore/artifact-repository/internal/domain/session"
	"github.com/arturkryukov/artstore/artifact-repository/internal/service"
	"github.com/arturkryukov/artstore/artifact-repository/internal/storage/deps"
	"github.com/arturkryukov/artstore/artifact-repository/internal/storage/versionstore"
	"github.com/arturkryukov/artstore/artifact-repository/internal/templates"
)

// Scopes доступа к API.
const (
	ScopeArtifactsRead  = "artifacts:read"
	ScopeArtifactsWrite = "artifacts:write"
	ScopeAdminWrite     = "admin:write"
)

// APIHandler — основной обработчик API Artifact Repository.
// Делегирует запросы в сервисный слой.
type APIHandler struct {
	artifacts  *service.ArtifactService
	searchSvc  *service.SearchService
	sessions   *service.SessionService
	reconciler *service.ReconcileService
	system     *SystemHandler
	health     *HealthHandler
	logger     *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	artifacts *service.ArtifactService,
	searchSvc *service.SearchService,
	sessions *service.SessionService,
	reconciler *service.ReconcileService,
	system *SystemHandler,
	health *HealthHandler,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		artifacts:  artifacts,
		searchSvc:  searchSvc,
		sessions:   sessions,
		reconciler: reconciler,
		system:     system,
		health:     health,
		logger:     logger.With(slog.String("component", "api_handler")),
	}
}

// RegisterRoutes регистрирует все маршруты API на переданном роутере.
// JWT-аутентификация применяется глобально в server (с исключениями
// для health и metrics); здесь — только проверки scope.
func (h *APIHandler) RegisterRoutes(r chi.Router) {
	read := middleware.RequireScope(ScopeArtifactsRead)
	write := middleware.RequireScope(ScopeArtifactsWrite)
	admin := middleware.RequireScope(ScopeAdminWrite)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/artifacts", func(r chi.Router) {
			r.With(write).Post("/", h.CreateArtifact)
			r.With(read).Get("/", h.ListArtifacts)
			r.With(read).Get("/search", h.SearchArtifacts)

			r.Route("/{artifactID}", func(r chi.Router) {
				r.With(read).Get("/", h.GetArtifact)
				r.With(write).Patch("/", h.UpdateMetadata)
				r.With(write).Post("/archive", h.ArchiveArtifact)
				r.With(write).Post("/fork", h.ForkArtifact)
				r.With(write).Post("/usage", h.IncrementUsage)
				r.With(write).Post("/export", h.ExportArtifact)

				r.Route("/versions", func(r chi.Router) {
					r.With(write).Post("/", h.CreateVersion)
					r.With(read).Get("/", h.ListVersions)
					r.With(read).Get("/{version}", h.GetVersion)
					r.With(read).Get("/{version}/content", h.GetVersionContent)
					r.With(write).Post("/{version}/promote", h.PromoteVersion)
				})

				r.Route("/dependencies", func(r chi.Router) {
					r.With(write).Post("/", h.AddDependency)
					r.With(read).Get("/", h.ListDependencies)
					r.With(write).Delete("/{dependencyID}", h.RemoveDependency)
				})
				r.With(read).Get("/dependents", h.ListDependents)
			})
		})

		r.Route("/sessions", func(r chi.Router) {
			r.With(write).Post("/", h.StartSession)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.With(read).Get("/", h.GetSession)
				r.With(write).Post("/changes", h.ProposeChange)
				r.With(write).Post("/changes/{changeID}/accept", h.AcceptChange)
				r.With(write).Post("/changes/{changeID}/reject", h.RejectChange)
				r.With(read).Get("/conflicts", h.DetectConflicts)
				r.With(write).Post("/conflicts/resolve", h.ResolveConflict)
				r.With(write).Post("/pause", h.PauseSession)
				r.With(write).Post("/resume", h.ResumeSession)
				r.With(write).Post("/complete", h.CompleteSession)
				r.With(write).Post("/cancel", h.CancelSession)
			})
		})

		r.Route("/templates", func(r chi.Router) {
			r.With(read).Get("/", h.ListTemplates)
			r.With(read).Get("/{templateID}", h.GetTemplate)
			r.With(write).Post("/{templateID}/instantiate", h.InstantiateTemplate)
		})

		// Alias /api/v1/artifacts/search
		r.With(read).Get("/search", h.SearchArtifacts)

		r.With(admin).Post("/maintenance/reconcile", h.Reconcile)
		r.With(read).Get("/system/info", h.system.GetInfo)
	})

	r.Get("/health/live", h.health.HealthLive)
	r.Get("/health/ready", h.health.HealthReady)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON разбирает тело запроса в dst. При ошибке пишет 400 и
// возвращает false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return false
	}
	return true
}

// actor извлекает идентификатор пользователя из JWT-контекста.
func actor(r *http.Request) string {
	return middleware.SubjectFromContext(r.Context())
}

// paginationParams разбирает limit/offset из query-параметров.
func paginationParams(r *http.Request) (limit, offset int) {
	limit = 100
	offset = 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
			if limit < 1 {
				limit = 1
			}
			if limit > 1000 {
				limit = 1000
			}
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

// handleServiceError отображает ошибку сервисного слоя в HTTP-ответ.
// Неизвестные ошибки логируются и возвращаются как 500.
func (h *APIHandler) handleServiceError(w http.ResponseWriter, err error, context string) {
	var transitionErr *session.TransitionError
	switch {
	case errors.Is(err, versionstore.ErrArtifactNotFound):
		apierrors.ArtifactNotFound(w, "Артефакт не найден")
	case errors.Is(err, versionstore.ErrVersionNotFound):
		apierrors.VersionNotFound(w, "Версия не найдена")
	case errors.Is(err, versionstore.ErrArtifactExists):
		apierrors.ValidationError(w, "Артефакт с таким идентификатором уже существует")
	case errors.Is(err, versionstore.ErrVersionConflict):
		apierrors.VersionConflict(w, err.Error())
	case errors.Is(err, versionstore.ErrArtifactArchived):
		apierrors.ArtifactArchived(w, "Артефакт архивирован и доступен только для чтения")
	case errors.Is(err, versionstore.ErrInvalidVersionTransition):
		apierrors.InvalidTransition(w, err.Error())
	case errors.Is(err, versionstore.ErrAccessDenied):
		apierrors.AccessDenied(w, "Недостаточно прав на артефакт")
	case errors.Is(err, service.ErrGovernanceRejected):
		apierrors.GovernanceRejected(w, err.Error())
	case errors.Is(err, service.ErrComplianceBlocked):
		apierrors.ComplianceBlocked(w, err.Error())
	case errors.Is(err, service.ErrContentTooLarge):
		apierrors.ContentTooLarge(w, err.Error())
	case errors.Is(err, service.ErrTemplateTypeMismatch):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrExportUnavailable):
		apierrors.WriteError(w, http.StatusServiceUnavailable, apierrors.CodeInternalError, err.Error())
	case errors.Is(err, service.ErrNoAcceptedChanges):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, deps.ErrSourceNotFound), errors.Is(err, deps.ErrTargetNotFound):
		apierrors.ArtifactNotFound(w, err.Error())
	case errors.Is(err, deps.ErrDuplicateEdge), errors.Is(err, deps.ErrCycleDetected):
		apierrors.DependencyValidationFailed(w, err.Error())
	case errors.Is(err, deps.ErrDependencyNotFound):
		apierrors.WriteError(w, http.StatusNotFound, apierrors.CodeValidationError, err.Error())
	case errors.Is(err, collab.ErrSessionNotFound):
		apierrors.SessionNotFound(w, "Сессия не найдена")
	case errors.Is(err, collab.ErrNotParticipant):
		apierrors.AccessDenied(w, "Пользователь не является участником сессии")
	case errors.Is(err, collab.ErrSessionNotActive):
		apierrors.InvalidTransition(w, err.Error())
	case errors.As(err, &transitionErr):
		apierrors.InvalidTransition(w, err.Error())
	case errors.Is(err, collab.ErrChangeNotFound):
		apierrors.WriteError(w, http.StatusNotFound, apierrors.CodeValidationError, err.Error())
	case errors.Is(err, collab.ErrChangeNotPending):
		apierrors.InvalidTransition(w, err.Error())
	case errors.Is(err, collab.ErrMergeOverlap), errors.Is(err, collab.ErrConsentRequired),
		errors.Is(err, collab.ErrMergeBinary), errors.Is(err, collab.ErrChangeOutOfRange):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, templates.ErrTemplateNotFound):
		apierrors.WriteError(w, http.StatusNotFound, apierrors.CodeValidationError, err.Error())
	case errors.Is(err, templates.ErrMissingPlaceholder), errors.Is(err, templates.ErrRuleViolation):
		apierrors.ValidationError(w, err.Error())
	default:
		h.logger.Error(context,
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}
