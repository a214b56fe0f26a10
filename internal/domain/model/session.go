// session.go — сессии совместного редактирования.
// EditSession — ограниченный по времени жизни объект, координирующий
// 1..N участников, редактирующих одну версию артефакта.
package model

import (
	"time"
)

// SessionStatus — статус сессии совместного редактирования.
// Машина состояний: active → {paused, completed, cancelled};
// paused обратим, completed и cancelled — терминальные.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// ChangeStatus — статус предложенного изменения в сессии.
type ChangeStatus string

const (
	ChangePending    ChangeStatus = "pending"
	ChangeAccepted   ChangeStatus = "accepted"
	ChangeRejected   ChangeStatus = "rejected"
	ChangeSuperseded ChangeStatus = "superseded"
)

// ConflictType — тип конфликта между предложенными изменениями.
type ConflictType string

const (
	// ConflictOverlappingChange — изменения разных участников пересекаются по диапазону
	ConflictOverlappingChange ConflictType = "overlapping_change"
	// ConflictConcurrentEdit — конкурентные правки одного участка
	ConflictConcurrentEdit ConflictType = "concurrent_edit"
	// ConflictVersionMismatch — база сессии устарела относительно артефакта
	ConflictVersionMismatch ConflictType = "version_mismatch"
)

// ResolutionStrategy — стратегия разрешения конфликта.
type ResolutionStrategy string

const (
	// StrategyMerge — структурное объединение непересекающихся изменений
	StrategyMerge ResolutionStrategy = "merge"
	// StrategyOverride — last-writer-wins с явным согласием участников
	StrategyOverride ResolutionStrategy = "override"
	// StrategyManualReview — эскалация, сессия остаётся active
	StrategyManualReview ResolutionStrategy = "manual_review"
	// StrategyGovernance — делегирование внешнему governance-сервису
	StrategyGovernance ResolutionStrategy = "governance_decision"
)

// ProposedChange — изменение, предложенное участником сессии.
// Не мутирует артефакт до сворачивания сессии в версию.
type ProposedChange struct {
	Change

	// Status — статус изменения в сессии
	Status ChangeStatus `json:"status"`

	// ResolvedAt — время принятия/отклонения (nil для pending)
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// ConflictResolution — запись о разрешённом конфликте.
// Каждое разрешение фиксирует resolver, время и satisfaction score.
type ConflictResolution struct {
	// ConflictID — уникальный идентификатор конфликта (UUID v4)
	ConflictID string `json:"conflict_id"`
	// Type — тип конфликта
	Type ConflictType `json:"type"`
	// Strategy — применённая стратегия
	Strategy ResolutionStrategy `json:"strategy"`
	// ResolvedBy — кто разрешил конфликт
	ResolvedBy string `json:"resolved_by"`
	// ResolvedAt — время разрешения (UTC)
	ResolvedAt time.Time `json:"resolved_at"`
	// Satisfaction — оценка удовлетворённости разрешением 0..1
	Satisfaction float64 `json:"satisfaction"`
	// ConsentBy — участники, давшие явное согласие (для override)
	ConsentBy []string `json:"consent_by,omitempty"`
	// Notes — примечания resolver-а
	Notes string `json:"notes,omitempty"`
}

// EditSession — сессия совместного редактирования одной версии артефакта.
type EditSession struct {
	// SessionID — уникальный идентификатор сессии (UUID v4)
	SessionID string `json:"session_id"`

	// ArtifactID — редактируемый артефакт
	ArtifactID string `json:"artifact_id"`

	// VersionID — версия, на которой базируется сессия
	VersionID string `json:"version_id"`

	// Participants — участники сессии
	Participants []string `json:"participants"`

	// Status — текущий статус
	Status SessionStatus `json:"status"`

	// Changes — упорядоченный список предложенных изменений
	Changes []ProposedChange `json:"changes,omitempty"`

	// Resolutions — разрешённые конфликты
	Resolutions []ConflictResolution `json:"resolutions,omitempty"`

	// CreatedAt — время создания (UTC)
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последней операции (UTC)
	UpdatedAt time.Time `json:"updated_at"`

	// ClosedAt — время завершения или отмены (nil для открытых)
	ClosedAt *time.Time `json:"closed_at,omitempty"`
}

// HasParticipant проверяет членство пользователя в сессии.
func (s *EditSession) HasParticipant(userID string) bool {
	for _, p := range s.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// IsClosed проверяет, что сессия в терминальном состоянии.
func (s *EditSession) IsClosed() bool {
	return s.Status == SessionCompleted || s.Status == SessionCancelled
}

// Clone возвращает глубокую копию сессии.
func (s *EditSession) Clone() *EditSession {
	copied := *s
	copied.Participants = append([]string(nil), s.Participants...)
	copied.Changes = append([]ProposedChange(nil), s.Changes...)
	copied.Resolutions = append([]ConflictResolution(nil), s.Resolutions...)
	return &copied
}
