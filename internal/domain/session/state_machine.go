// Пакет session — конечный автомат статусов сессии совместного редактирования.
//
// Жизненный цикл: active — входное состояние;
//   - active → paused (инициируется участником, обратимо)
//   - paused → active (возобновление)
//   - active → completed (нормальное завершение, терминально)
//   - active → cancelled (аварийное завершение, терминально)
//   - paused → cancelled (отмена приостановленной сессии)
//
// Потокобезопасен через sync.RWMutex.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/arturkryukov/artstore/artifact-repository/internal/domain/model"
)

// TransitionRecord — запись о переходе между статусами сессии.
type TransitionRecord struct {
	From      model.SessionStatus `json:"from"`
	To        model.SessionStatus `json:"to"`
	Subject   string              `json:"subject"`
	Timestamp time.Time           `json:"timestamp"`
}

// StateMachine — конечный автомат статусов одной сессии.
// Потокобезопасен для одновременного чтения/записи.
type StateMachine struct {
	mu      sync.RWMutex
	current model.SessionStatus
	history []TransitionRecord
}

// validTransitions — матрица допустимых переходов.
// completed и cancelled — терминальные, переходов из них нет.
var validTransitions = map[model.SessionStatus]map[model.SessionStatus]bool{
	model.SessionActive: {
		model.SessionPaused:    true,
		model.SessionCompleted: true,
		model.SessionCancelled: true,
	},
	model.SessionPaused: {
		model.SessionActive:    true,
		model.SessionCancelled: true,
	},
	model.SessionCompleted: {},
	model.SessionCancelled: {},
}

// NewStateMachine создаёт автомат в состоянии active.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: model.SessionActive,
		history: make([]TransitionRecord, 0),
	}
}

// Current возвращает текущий статус сессии.
func (sm *StateMachine) Current() model.SessionStatus {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// CanTransitionTo проверяет допустимость перехода в указанный статус.
func (sm *StateMachine) CanTransitionTo(target model.SessionStatus) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	transitions, ok := validTransitions[sm.current]
	if !ok {
		return false
	}
	return transitions[target]
}

// IsTerminal проверяет, что автомат в терминальном состоянии.
func (sm *StateMachine) IsTerminal() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current == model.SessionCompleted || sm.current == model.SessionCancelled
}

// TransitionTo выполняет переход в указанный статус.
// subject — инициатор перехода (sub из JWT).
// Возвращает *TransitionError с кодом INVALID_TRANSITION при недопустимом переходе.
func (sm *StateMachine) TransitionTo(target model.SessionStatus, subject string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !isValidStatus(target) {
		return &TransitionError{
			Code:    "INVALID_TRANSITION",
			Message: fmt.Sprintf("недопустимый целевой статус: %q", target),
		}
	}

	transitions, ok := validTransitions[sm.current]
	if !ok || !transitions[target] {
		return &TransitionError{
			Code:    "INVALID_TRANSITION",
			Message: fmt.Sprintf("переход %s → %s недопустим", sm.current, target),
		}
	}

	sm.history = append(sm.history, TransitionRecord{
		From:      sm.current,
		To:        target,
		Subject:   subject,
		Timestamp: time.Now().UTC(),
	})
	sm.current = target

	return nil
}

// History возвращает историю переходов (копия).
func (sm *StateMachine) History() []TransitionRecord {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	result := make([]TransitionRecord, len(sm.history))
	copy(result, sm.history)
	return result
}

// TransitionError — ошибка перехода между статусами сессии.
type TransitionError struct {
	Code    string // Машиночитаемый код (INVALID_TRANSITION)
	Message string // Человекочитаемое описание
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// isValidStatus проверяет, является ли значение допустимым статусом сессии.
func isValidStatus(s model.SessionStatus) bool {
	switch s {
	case model.SessionActive, model.SessionPaused, model.SessionCompleted, model.SessionCancelled:
		return true
	default:
		return false
	}
}
