package versionstore

import "errors"

// Сентинельные ошибки хранилища. Сервисный слой транслирует их
// в коды ошибок API (errors.Is).
var (
	// ErrArtifactNotFound — артефакт с указанным ID отсутствует
	ErrArtifactNotFound = errors.New("артефакт не найден")

	// ErrArtifactExists — артефакт с таким ID уже зарегистрирован
	ErrArtifactExists = errors.New("артефакт уже существует")

	// ErrVersionNotFound — версия с указанным номером отсутствует
	ErrVersionNotFound = errors.New("версия не найдена")

	// ErrAccessDenied — инициатор не входит в набор соавторов
	ErrAccessDenied = errors.New("доступ запрещён: пользователь не является соавтором")

	// ErrVersionConflict — переданная expected current-версия
	// не совпадает с фактической (CAS-проверка)
	ErrVersionConflict = errors.New("конфликт версий: current-версия изменилась")

	// ErrArtifactArchived — мутация архивированного артефакта
	ErrArtifactArchived = errors.New("артефакт архивирован и доступен только для чтения")

	// ErrInvalidVersionTransition — недопустимый переход статуса версии
	ErrInvalidVersionTransition = errors.New("недопустимый переход статуса версии")
)
