// Пакет wal — файловый Write-Ahead Log для обеспечения
// атомарности мутаций Artifact Repository.
// Каждая транзакция — отдельный файл {tx_id}.wal.json в AR_WAL_DIR.
package wal

import (
	"time"
)

// OperationType — тип операции, записываемой в WAL.
type OperationType string

const (
	// OpArtifactCreate — создание артефакта с версией 1.0.0
	OpArtifactCreate OperationType = "artifact_create"
	// OpVersionCreate — создание новой версии артефакта
	OpVersionCreate OperationType = "version_create"
	// OpMetadataUpdate — обновление метаданных артефакта
	OpMetadataUpdate OperationType = "metadata_update"
	// OpFork — форк артефакта
	OpFork OperationType = "fork"
	// OpArchive — архивация артефакта
	OpArchive OperationType = "archive"
	// OpPromote — продвижение статуса версии
	OpPromote OperationType = "promote"
	// OpDependencyAdd — добавление ребра зависимости
	OpDependencyAdd OperationType = "dependency_add"
	// OpDependencyRemove — удаление ребра зависимости
	OpDependencyRemove OperationType = "dependency_remove"
	// OpSessionFold — сворачивание сессии редактирования в версию
	OpSessionFold OperationType = "session_fold"
)

// TransactionStatus — статус транзакции WAL.
type TransactionStatus string

const (
	// StatusPending — транзакция начата, операция в процессе
	StatusPending TransactionStatus = "pending"
	// StatusCommitted — транзакция успешно завершена
	StatusCommitted TransactionStatus = "committed"
	// StatusRolledBack — транзакция отменена (ошибка или ручной rollback)
	StatusRolledBack TransactionStatus = "rolled_back"
)

// Entry — запись WAL. Хранится как JSON-файл {tx_id}.wal.json.
type Entry struct {
	// TransactionID — уникальный идентификатор транзакции (UUID v4)
	TransactionID string `json:"transaction_id"`

	// Operation — тип операции
	Operation OperationType `json:"operation"`

	// Status — текущий статус транзакции
	Status TransactionStatus `json:"status"`

	// ArtifactID — артефакт, над которым выполняется операция
	ArtifactID string `json:"artifact_id"`

	// StartedAt — время начала транзакции (UTC)
	StartedAt time.Time `json:"started_at"`

	// CompletedAt — время завершения транзакции (UTC).
	// nil для pending транзакций.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// walFileName возвращает имя файла WAL для данной транзакции.
func walFileName(txID string) string {
	return txID + ".wal.json"
}
