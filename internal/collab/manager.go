// Пакет collab — менеджер сессий совместного редактирования.
//
// Сессия координирует 1..N участников, редактирующих одну версию
// артефакта. Предложенные изменения не мутируют артефакт: принятые
// изменения сворачиваются сервисным слоем в новую версию через
// VersionStore после завершения сессии.
//
// Жизненный цикл сессии управляется машиной состояний
// (active → {paused, completed, cancelled}); завершённые сессии
// удаляются janitor-ом (PurgeClosed).
package collab

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arturkryukov/artstore/artifact-repository/internal/domain/model"
	"github.com/arturkryukov/artstore/artifact-repository/internal/domain/session"
)

// Сентинельные ошибки менеджера сессий.
var (
	// ErrSessionNotFound — сессия с указанным ID не существует
	ErrSessionNotFound = errors.New("сессия не найдена")

	// ErrNotParticipant — пользователь не входит в сессию
	ErrNotParticipant = errors.New("пользователь не является участником сессии")

	// ErrSessionNotActive — операция допустима только в active сессии
	ErrSessionNotActive = errors.New("сессия не активна")

	// ErrChangeNotFound — изменение с указанным ID не существует
	ErrChangeNotFound = errors.New("изменение не найдено")

	// ErrChangeNotPending — изменение уже принято, отклонено
	// или вытеснено
	ErrChangeNotPending = errors.New("изменение уже разрешено")

	// ErrMergeOverlap — merge применим только к непересекающимся
	// изменениям
	ErrMergeOverlap = errors.New("merge невозможен: изменения пересекаются")

	// ErrConsentRequired — override требует согласия авторов
	// отклоняемых изменений
	ErrConsentRequired = errors.New("override требует согласия всех затронутых авторов")
)

// Conflict — обнаруженный, но ещё не разрешённый конфликт
// между двумя pending изменениями.
type Conflict struct {
	Type      model.ConflictType `json:"type"`
	ChangeIDs []string           `json:"change_ids"`
	Authors   []string           `json:"authors"`
}

// entry — сессия и её машина состояний.
type entry struct {
	session *model.EditSession
	fsm     *session.StateMachine
}

// Manager — потокобезопасный менеджер сессий редактирования.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*entry // session_id → сессия
	logger   *slog.Logger
}

// New создаёт менеджер сессий.
func New(logger *slog.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*entry),
		logger:   logger.With(slog.String("component", "collab")),
	}
}

// StartSession открывает новую сессию редактирования версии артефакта.
// Инициатор всегда входит в участники.
func (m *Manager) StartSession(artifactID, versionID string, participants []string, initiator string) (*model.EditSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	members := append([]string(nil), participants...)
	found := false
	for _, p := range members {
		if p == initiator {
			found = true
			break
		}
	}
	if !found {
		members = append(members, initiator)
	}

	now := time.Now().UTC()
	s := &model.EditSession{
		SessionID:    uuid.New().String(),
		ArtifactID:   artifactID,
		VersionID:    versionID,
		Participants: members,
		Status:       model.SessionActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	m.sessions[s.SessionID] = &entry{
		session: s,
		fsm:     session.NewStateMachine(),
	}

	m.logger.Info("Сессия редактирования открыта",
		slog.String("session_id", s.SessionID),
		slog.String("artifact_id", artifactID),
		slog.Int("participants", len(members)),
	)

	return s.Clone(), nil
}

// Get возвращает копию сессии.
func (m *Manager) Get(sessionID string) (*model.EditSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e.session.Clone(), nil
}

// ListByArtifact возвращает копии всех сессий артефакта.
func (m *Manager) ListByArtifact(artifactID string) []*model.EditSession {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*model.EditSession
	for _, e := range m.sessions {
		if e.session.ArtifactID == artifactID {
			result = append(result, e.session.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// ProposeChange добавляет предложенное изменение в активную сессию.
// Более раннее pending изменение того же автора, пересекающееся
// с новым, помечается superseded.
func (m *Manager) ProposeChange(sessionID, authorID string, change model.Change) (*model.ProposedChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	s := e.session

	if s.Status != model.SessionActive {
		return nil, fmt.Errorf("%w: статус %s", ErrSessionNotActive, s.Status)
	}
	if !s.HasParticipant(authorID) {
		return nil, ErrNotParticipant
	}

	now := time.Now().UTC()
	change.ChangeID = uuid.New().String()
	change.Author = authorID
	change.CreatedAt = now

	// Вытесняем более ранние pending изменения того же автора
	// по тому же участку
	for i := range s.Changes {
		prev := &s.Changes[i]
		if prev.Status != model.ChangePending || prev.Author != authorID {
			continue
		}
		if overlaps(prev.Change, change) {
			prev.Status = model.ChangeSuperseded
			prev.ResolvedAt = &now
		}
	}

	proposed := model.ProposedChange{
		Change: change,
		Status: model.ChangePending,
	}
	s.Changes = append(s.Changes, proposed)
	s.UpdatedAt = now

	m.logger.Debug("Изменение предложено",
		slog.String("session_id", sessionID),
		slog.String("change_id", change.ChangeID),
		slog.String("author", authorID),
	)

	return &proposed, nil
}

// overlaps проверяет пересечение двух изменений по диапазону.
// Rewrite пересекается с любым content_edit и другим rewrite.
func overlaps(a, b model.Change) bool {
	if a.Kind == model.ChangeMetadata || b.Kind == model.ChangeMetadata {
		return a.Kind == b.Kind
	}
	if a.Kind == model.ChangeRewrite || b.Kind == model.ChangeRewrite {
		return true
	}
	if a.Location == nil || b.Location == nil {
		return false
	}
	return a.Location.Overlaps(*b.Location)
}

// DetectConflicts возвращает конфликты между pending изменениями
// разных авторов: пересекающиеся диапазоны (overlapping_change)
// и конкурентные rewrite (concurrent_edit).
func (m *Manager) DetectConflicts(sessionID string) ([]Conflict, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	var pending []*model.ProposedChange
	for i := range e.session.Changes {
		if e.session.Changes[i].Status == model.ChangePending {
			pending = append(pending, &e.session.Changes[i])
		}
	}

	var conflicts []Conflict
	for i := 0; i < len(pending); i++ {
		for j := i + 1; j < len(pending); j++ {
			a, b := pending[i], pending[j]
			if a.Author == b.Author {
				continue
			}
			if !overlaps(a.Change, b.Change) {
				continue
			}
			conflictType := model.ConflictOverlappingChange
			if a.Kind == model.ChangeRewrite || b.Kind == model.ChangeRewrite {
				conflictType = model.ConflictConcurrentEdit
			}
			conflicts = append(conflicts, Conflict{
				Type:      conflictType,
				ChangeIDs: []string{a.ChangeID, b.ChangeID},
				Authors:   []string{a.Author, b.Author},
			})
		}
	}
	return conflicts, nil
}

// ResolveParams — параметры разрешения конфликта.
type ResolveParams struct {
	SessionID  string
	ResolverID string
	Type       model.ConflictType
	Strategy   model.ResolutionStrategy
	// ChangeIDs — изменения, затронутые конфликтом
	ChangeIDs []string
	// ConsentBy — участники, давшие согласие (для override)
	ConsentBy []string
	Notes     string
}

// ResolveConflict применяет стратегию разрешения к конфликтующим
// изменениям:
//   - merge: все изменения должны быть попарно непересекающимися,
//     принимаются все;
//   - override: принимается последнее по времени, остальные
//     отклоняются; требуется согласие их авторов;
//   - manual_review: изменения остаются pending, сессия активна;
//   - governance_decision: решение делегируется, изменения
//     остаются pending.
//
// Каждое разрешение фиксируется в сессии.
func (m *Manager) ResolveConflict(p ResolveParams) (*model.ConflictResolution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[p.SessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	s := e.session

	if s.Status != model.SessionActive {
		return nil, fmt.Errorf("%w: статус %s", ErrSessionNotActive, s.Status)
	}
	if !s.HasParticipant(p.ResolverID) {
		return nil, ErrNotParticipant
	}

	targets, err := findPending(s, p.ChangeIDs)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	resolution := model.ConflictResolution{
		ConflictID: uuid.New().String(),
		Type:       p.Type,
		Strategy:   p.Strategy,
		ResolvedBy: p.ResolverID,
		ResolvedAt: now,
		ConsentBy:  append([]string(nil), p.ConsentBy...),
		Notes:      p.Notes,
	}

	switch p.Strategy {
	case model.StrategyMerge:
		for i := 0; i < len(targets); i++ {
			for j := i + 1; j < len(targets); j++ {
				if overlaps(targets[i].Change, targets[j].Change) {
					return nil, fmt.Errorf("%w: %s и %s",
						ErrMergeOverlap, targets[i].ChangeID, targets[j].ChangeID)
				}
			}
		}
		for _, c := range targets {
			c.Status = model.ChangeAccepted
			c.ResolvedAt = &now
		}
		resolution.Satisfaction = 0.9

	case model.StrategyOverride:
		winner := targets[0]
		for _, c := range targets[1:] {
			if c.CreatedAt.After(winner.CreatedAt) {
				winner = c
			}
		}
		// Авторы отклоняемых изменений должны дать согласие
		consent := make(map[string]struct{}, len(p.ConsentBy))
		for _, u := range p.ConsentBy {
			consent[u] = struct{}{}
		}
		for _, c := range targets {
			if c == winner || c.Author == p.ResolverID {
				continue
			}
			if _, ok := consent[c.Author]; !ok {
				return nil, fmt.Errorf("%w: нет согласия %s", ErrConsentRequired, c.Author)
			}
		}
		for _, c := range targets {
			if c == winner {
				c.Status = model.ChangeAccepted
			} else {
				c.Status = model.ChangeRejected
			}
			c.ResolvedAt = &now
		}
		resolution.Satisfaction = 0.7

	case model.StrategyManualReview:
		// Изменения остаются pending до ручного разбора
		resolution.Satisfaction = 0.5

	case model.StrategyGovernance:
		// Решение делегировано внешнему governance-сервису
		resolution.Satisfaction = 0.6

	default:
		return nil, fmt.Errorf("неизвестная стратегия разрешения: %q", p.Strategy)
	}

	s.Resolutions = append(s.Resolutions, resolution)
	s.UpdatedAt = now

	m.logger.Info("Конфликт разрешён",
		slog.String("session_id", p.SessionID),
		slog.String("strategy", string(p.Strategy)),
		slog.String("resolver", p.ResolverID),
	)

	return &resolution, nil
}

// findPending возвращает указатели на pending изменения по их ID.
func findPending(s *model.EditSession, changeIDs []string) ([]*model.ProposedChange, error) {
	var result []*model.ProposedChange
	for _, id := range changeIDs {
		found := false
		for i := range s.Changes {
			if s.Changes[i].ChangeID != id {
				continue
			}
			if s.Changes[i].Status != model.ChangePending {
				return nil, fmt.Errorf("%w: %s (%s)", ErrChangeNotPending, id, s.Changes[i].Status)
			}
			result = append(result, &s.Changes[i])
			found = true
			break
		}
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrChangeNotFound, id)
		}
	}
	return result, nil
}

// AcceptChange принимает pending изменение.
func (m *Manager) AcceptChange(sessionID, changeID, actorID string) error {
	return m.resolveChange(sessionID, changeID, actorID, model.ChangeAccepted)
}

// RejectChange отклоняет pending изменение.
func (m *Manager) RejectChange(sessionID, changeID, actorID string) error {
	return m.resolveChange(sessionID, changeID, actorID, model.ChangeRejected)
}

func (m *Manager) resolveChange(sessionID, changeID, actorID string, status model.ChangeStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	s := e.session

	if s.Status != model.SessionActive {
		return fmt.Errorf("%w: статус %s", ErrSessionNotActive, s.Status)
	}
	if !s.HasParticipant(actorID) {
		return ErrNotParticipant
	}

	targets, err := findPending(s, []string{changeID})
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	targets[0].Status = status
	targets[0].ResolvedAt = &now
	s.UpdatedAt = now
	return nil
}

// Pause приостанавливает сессию.
func (m *Manager) Pause(sessionID, actorID string) (*model.EditSession, error) {
	return m.transition(sessionID, actorID, model.SessionPaused)
}

// Resume возобновляет приостановленную сессию.
func (m *Manager) Resume(sessionID, actorID string) (*model.EditSession, error) {
	return m.transition(sessionID, actorID, model.SessionActive)
}

// Complete завершает сессию. Принятые изменения после этого
// сворачиваются сервисным слоем в новую версию.
func (m *Manager) Complete(sessionID, actorID string) (*model.EditSession, error) {
	return m.transition(sessionID, actorID, model.SessionCompleted)
}

// Cancel отменяет сессию; предложенные изменения не применяются.
// Cancel доступен и из paused — застрявшая сессия не блокирует
// другие операции над артефактом.
func (m *Manager) Cancel(sessionID, actorID string) (*model.EditSession, error) {
	return m.transition(sessionID, actorID, model.SessionCancelled)
}

// transition выполняет переход статуса через машину состояний.
func (m *Manager) transition(sessionID, actorID string, target model.SessionStatus) (*model.EditSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	s := e.session

	if !s.HasParticipant(actorID) {
		return nil, ErrNotParticipant
	}

	if err := e.fsm.TransitionTo(target, actorID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	s.Status = target
	s.UpdatedAt = now
	if s.IsClosed() {
		s.ClosedAt = &now
	}

	m.logger.Info("Статус сессии изменён",
		slog.String("session_id", sessionID),
		slog.String("status", string(target)),
		slog.String("actor", actorID),
	)

	return s.Clone(), nil
}

// AcceptedChanges возвращает принятые изменения сессии
// в порядке предложения.
func (m *Manager) AcceptedChanges(sessionID string) ([]model.Change, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	var result []model.Change
	for _, c := range e.session.Changes {
		if c.Status == model.ChangeAccepted {
			result = append(result, c.Change)
		}
	}
	return result, nil
}

// PurgeClosed удаляет завершённые и отменённые сессии старше
// указанного возраста. Вызывается janitor-ом.
func (m *Manager) PurgeClosed(olderThan time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	purged := 0
	for id, e := range m.sessions {
		s := e.session
		if !s.IsClosed() || s.ClosedAt == nil || s.ClosedAt.After(cutoff) {
			continue
		}
		delete(m.sessions, id)
		purged++
	}

	if purged > 0 {
		m.logger.Info("Очистка завершённых сессий",
			slog.Int("purged", purged),
		)
	}
	return purged
}

// CountByStatus возвращает количество сессий в каждом статусе.
func (m *Manager) CountByStatus() map[model.SessionStatus]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[model.SessionStatus]int)
	for _, e := range m.sessions {
		counts[e.session.Status]++
	}
	return counts
}
