// Пакет errors — конструкторы стандартных ошибок в формате Artstore.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors //nolint:revive // TODO: переименовать пакет errors, конфликт со stdlib

import (
	"encoding/json"
	"net/http"
)

// Машиночитаемые коды ошибок API.
const (
	CodeValidationError            = "VALIDATION_ERROR"
	CodeArtifactNotFound           = "ARTIFACT_NOT_FOUND"
	CodeVersionNotFound            = "VERSION_NOT_FOUND"
	CodeSessionNotFound            = "SESSION_NOT_FOUND"
	CodeUnauthorized               = "UNAUTHORIZED"
	CodeForbidden                  = "FORBIDDEN"
	CodeAccessDenied               = "ACCESS_DENIED"
	CodeGovernanceRejected         = "GOVERNANCE_REJECTED"
	CodeVersionConflict            = "VERSION_CONFLICT"
	CodeInvalidTransition          = "INVALID_TRANSITION"
	CodeArtifactArchived           = "ARTIFACT_ARCHIVED"
	CodeComplianceBlocked          = "COMPLIANCE_BLOCKED"
	CodeDependencyValidationFailed = "DEPENDENCY_VALIDATION_FAILED"
	CodeContentTooLarge            = "CONTENT_TOO_LARGE"
	CodeReconcileInProgress        = "RECONCILE_IN_PROGRESS"
	CodeInternalError              = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате Artstore.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// ArtifactNotFound — 404 артефакт не найден.
func ArtifactNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeArtifactNotFound, message)
}

// VersionNotFound — 404 версия не найдена.
func VersionNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeVersionNotFound, message)
}

// SessionNotFound — 404 сессия не найдена.
func SessionNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeSessionNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// AccessDenied — 403 пользователь не является соавтором артефакта.
func AccessDenied(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeAccessDenied, message)
}

// GovernanceRejected — 403 governance-сервис отклонил операцию.
func GovernanceRejected(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeGovernanceRejected, message)
}

// VersionConflict — 409 нарушение оптимистической блокировки.
func VersionConflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeVersionConflict, message)
}

// InvalidTransition — 409 недопустимый переход статуса версии или сессии.
func InvalidTransition(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeInvalidTransition, message)
}

// ArtifactArchived — 409 артефакт архивирован и доступен только для чтения.
func ArtifactArchived(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeArtifactArchived, message)
}

// ComplianceBlocked — 409 продвижение заблокировано проверками соответствия.
func ComplianceBlocked(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeComplianceBlocked, message)
}

// DependencyValidationFailed — 422 ребро зависимостей отклонено.
func DependencyValidationFailed(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnprocessableEntity, CodeDependencyValidationFailed, message)
}

// ContentTooLarge — 413 контент превышает лимит.
func ContentTooLarge(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusRequestEntityTooLarge, CodeContentTooLarge, message)
}

// ReconcileInProgress — 409 сверка уже выполняется.
func ReconcileInProgress(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeReconcileInProgress, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
