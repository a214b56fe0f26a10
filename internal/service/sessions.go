// sessions.go — сервис сессий совместного редактирования.
// Обёртка над collab.Manager: проверка существования артефакта,
// governance-одобрение старта, метрики и события аудита.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arturkryukov/artstore/artifact-repository/internal/api/middleware"
	"github.com/arturkryukov/artstore/artifact-repository/internal/collab"
	"github.com/arturkryukov/artstore/artifact-repository/internal/domain/model"
	"github.com/arturkryukov/artstore/artifact-repository/internal/governance"
	"github.com/arturkryukov/artstore/artifact-repository/internal/notify"
	"github.com/arturkryukov/artstore/artifact-repository/internal/storage/versionstore"
)

// SessionService — операции над сессиями совместного редактирования.
type SessionService struct {
	mgr       *collab.Manager
	store     *versionstore.Store
	artifacts *ArtifactService
	approver  governance.Approver
	sink      notify.Sink
	logger    *slog.Logger
}

// NewSessionService создаёт сервис сессий.
func NewSessionService(
	mgr *collab.Manager,
	store *versionstore.Store,
	artifacts *ArtifactService,
	approver governance.Approver,
	sink notify.Sink,
	logger *slog.Logger,
) *SessionService {
	return &SessionService{
		mgr:       mgr,
		store:     store,
		artifacts: artifacts,
		approver:  approver,
		sink:      sink,
		logger:    logger.With(slog.String("component", "session_service")),
	}
}

// refreshGauge обновляет метрику активных сессий.
func (s *SessionService) refreshGauge() {
	counts := s.mgr.CountByStatus()
	middleware.SessionsActive.Set(float64(counts[model.SessionActive]))
}

// Start открывает сессию редактирования current-версии артефакта.
// Артефакт должен существовать и не быть архивным.
func (s *SessionService) Start(ctx context.Context, artifactID string, participants []string, initiator string) (*model.EditSession, error) {
	a, err := s.store.Get(artifactID)
	if err != nil {
		return nil, err
	}
	if a.IsArchived() {
		return nil, versionstore.ErrArtifactArchived
	}

	ok, reason, err := s.approver.Approve(ctx, initiator, "session_start", map[string]any{
		"artifact_id":  artifactID,
		"participants": len(participants),
	})
	if err != nil {
		return nil, fmt.Errorf("governance-сервис недоступен: %w", err)
	}
	if !ok {
		middleware.GovernanceRejectionsTotal.WithLabelValues("session_start").Inc()
		return nil, fmt.Errorf("%w: %s", ErrGovernanceRejected, reason)
	}

	current, err := s.store.GetVersion(artifactID, "")
	if err != nil {
		return nil, err
	}

	sess, err := s.mgr.StartSession(artifactID, current.VersionID, participants, initiator)
	if err != nil {
		return nil, err
	}

	s.refreshGauge()
	s.sink.Record(notify.Event{
		Action:     "session_start",
		ActorID:    initiator,
		ArtifactID: artifactID,
		Details:    map[string]any{"session_id": sess.SessionID},
	})
	return sess, nil
}

// Get возвращает сессию по идентификатору.
func (s *SessionService) Get(sessionID string) (*model.EditSession, error) {
	return s.mgr.Get(sessionID)
}

// ListByArtifact возвращает сессии артефакта (новые первыми).
func (s *SessionService) ListByArtifact(artifactID string) []*model.EditSession {
	return s.mgr.ListByArtifact(artifactID)
}

// ProposeChange добавляет изменение от участника сессии.
func (s *SessionService) ProposeChange(sessionID, authorID string, change model.Change) (*model.ProposedChange, error) {
	return s.mgr.ProposeChange(sessionID, authorID, change)
}

// DetectConflicts возвращает конфликты между pending-изменениями сессии.
func (s *SessionService) DetectConflicts(sessionID string) ([]collab.Conflict, error) {
	return s.mgr.DetectConflicts(sessionID)
}

// ResolveConflict применяет стратегию разрешения конфликта.
func (s *SessionService) ResolveConflict(p collab.ResolveParams) (*model.ConflictResolution, error) {
	res, err := s.mgr.ResolveConflict(p)
	if err != nil {
		return nil, err
	}
	s.sink.Record(notify.Event{
		Action:  "conflict_resolve",
		ActorID: p.ResolverID,
		Details: map[string]any{
			"session_id": p.SessionID,
			"strategy":   string(p.Strategy),
		},
	})
	return res, nil
}

// AcceptChange принимает pending-изменение.
func (s *SessionService) AcceptChange(sessionID, changeID, actorID string) error {
	return s.mgr.AcceptChange(sessionID, changeID, actorID)
}

// RejectChange отклоняет pending-изменение.
func (s *SessionService) RejectChange(sessionID, changeID, actorID string) error {
	return s.mgr.RejectChange(sessionID, changeID, actorID)
}

// Pause приостанавливает сессию.
func (s *SessionService) Pause(sessionID, actorID string) (*model.EditSession, error) {
	sess, err := s.mgr.Pause(sessionID, actorID)
	if err != nil {
		return nil, err
	}
	s.refreshGauge()
	return sess, nil
}

// Resume возобновляет приостановленную сессию.
func (s *SessionService) Resume(sessionID, actorID string) (*model.EditSession, error) {
	sess, err := s.mgr.Resume(sessionID, actorID)
	if err != nil {
		return nil, err
	}
	s.refreshGauge()
	return sess, nil
}

// Cancel отменяет сессию без сворачивания изменений.
func (s *SessionService) Cancel(sessionID, actorID string) (*model.EditSession, error) {
	sess, err := s.mgr.Cancel(sessionID, actorID)
	if err != nil {
		return nil, err
	}
	s.refreshGauge()
	s.sink.Record(notify.Event{
		Action:     "session_cancel",
		ActorID:    actorID,
		ArtifactID: sess.ArtifactID,
		Details:    map[string]any{"session_id": sessionID},
	})
	return sess, nil
}

// Complete сворачивает принятые изменения сессии в новую minor-версию
// артефакта и завершает сессию. Сессия без принятых изменений
// завершается без создания версии.
func (s *SessionService) Complete(ctx context.Context, sessionID, actorID string) (*model.EditSession, *model.ArtifactVersion, error) {
	accepted, err := s.mgr.AcceptedChanges(sessionID)
	if err != nil {
		return nil, nil, err
	}

	var v *model.ArtifactVersion
	if len(accepted) > 0 {
		v, err = s.artifacts.FoldSession(ctx, s.mgr, sessionID, actorID)
		if err != nil {
			return nil, nil, err
		}
	} else {
		if _, err := s.mgr.Complete(sessionID, actorID); err != nil {
			return nil, nil, err
		}
	}

	sess, err := s.mgr.Get(sessionID)
	if err != nil {
		return nil, nil, err
	}

	s.refreshGauge()
	s.sink.Record(notify.Event{
		Action:     "session_complete",
		ActorID:    actorID,
		ArtifactID: sess.ArtifactID,
		Details: map[string]any{
			"session_id":       sessionID,
			"accepted_changes": len(accepted),
		},
	})
	return sess, v, nil
}

// PurgeClosed удаляет завершённые и отменённые сессии старше olderThan.
// Вызывается janitor-ом.
func (s *SessionService) PurgeClosed(olderThan time.Duration) int {
	n := s.mgr.PurgeClosed(olderThan)
	s.refreshGauge()
	return n
}
