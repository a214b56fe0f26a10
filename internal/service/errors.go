// Пакет service — бизнес-логика Artifact Repository.
// errors.go — сентинел-ошибки сервисного слоя.
package service

import "errors"

var (
	// ErrGovernanceRejected — governance-сервис отклонил операцию.
	ErrGovernanceRejected = errors.New("операция отклонена governance-сервисом")
	// ErrComplianceBlocked — продвижение заблокировано проверками соответствия.
	ErrComplianceBlocked = errors.New("продвижение заблокировано проверками соответствия")
	// ErrContentTooLarge — контент превышает AR_MAX_CONTENT_SIZE.
	ErrContentTooLarge = errors.New("контент превышает максимальный размер")
	// ErrTemplateTypeMismatch — тип артефакта не совпадает с типом шаблона.
	ErrTemplateTypeMismatch = errors.New("тип артефакта не совпадает с типом шаблона")
	// ErrExportUnavailable — сервис экспорта не сконфигурирован.
	ErrExportUnavailable = errors.New("сервис экспорта не сконфигурирован")
	// ErrNoAcceptedChanges — в сессии нет принятых изменений для сворачивания.
	ErrNoAcceptedChanges = errors.New("в сессии нет принятых изменений")
)
