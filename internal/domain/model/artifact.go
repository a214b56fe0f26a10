// Пакет model — доменные модели Artifact Repository.
// Artifact — логическая единица сгенерированного контента с цепочкой версий.
// Структуры используются как in-memory представление и как формат
// artifact.json на диске (write-through снапшоты).
package model

import (
	"time"
)

// ArtifactType — тип контента артефакта.
type ArtifactType string

const (
	TypeDocument ArtifactType = "document"
	TypeCode     ArtifactType = "code"
	TypeImage    ArtifactType = "image"
	TypeVideo    ArtifactType = "video"
	TypeAudio    ArtifactType = "audio"
	TypeDataset  ArtifactType = "dataset"
	TypeOther    ArtifactType = "other"
)

// ArtifactStatus — статус артефакта. Артефакты никогда не удаляются,
// только архивируются.
type ArtifactStatus string

const (
	// ArtifactActive — артефакт доступен для операций
	ArtifactActive ArtifactStatus = "active"
	// ArtifactArchived — артефакт архивирован (read-only)
	ArtifactArchived ArtifactStatus = "archived"
)

// AccessLevel — уровень доступа к артефакту.
type AccessLevel string

const (
	AccessPrivate      AccessLevel = "private"
	AccessTeam         AccessLevel = "team"
	AccessOrganization AccessLevel = "organization"
	AccessPublic       AccessLevel = "public"
)

// BusinessImpact — категория бизнес-значимости артефакта.
// Используется как фильтр поиска.
type BusinessImpact string

const (
	ImpactLow      BusinessImpact = "low"
	ImpactMedium   BusinessImpact = "medium"
	ImpactHigh     BusinessImpact = "high"
	ImpactCritical BusinessImpact = "critical"
)

// UsageStats — счётчики использования артефакта.
// Влияют на popularity score при ранжировании поиска.
type UsageStats struct {
	Views     int64 `json:"views"`
	Downloads int64 `json:"downloads"`
	Shares    int64 `json:"shares"`
	Forks     int64 `json:"forks"`
}

// UsageCounter — имя счётчика использования.
type UsageCounter string

const (
	CounterViews     UsageCounter = "views"
	CounterDownloads UsageCounter = "downloads"
	CounterShares    UsageCounter = "shares"
	CounterForks     UsageCounter = "forks"
)

// AuditEntry — запись аудиторского следа артефакта.
type AuditEntry struct {
	// Action — тип операции (artifact_create, version_create, fork, ...)
	Action string `json:"action"`
	// Actor — идентификатор инициатора (sub из JWT)
	Actor string `json:"actor"`
	// Timestamp — время операции (UTC)
	Timestamp time.Time `json:"timestamp"`
	// Details — человекочитаемое описание
	Details string `json:"details,omitempty"`
}

// TemplateReference — ссылка на шаблон, из которого создан артефакт.
// Артефакт не владеет шаблоном, хранит только слабую ссылку.
type TemplateReference struct {
	// TemplateID — идентификатор шаблона в библиотеке
	TemplateID string `json:"template_id"`
	// CustomizedFields — имена placeholder-ов, заполненных при создании
	CustomizedFields []string `json:"customized_fields,omitempty"`
	// AppliedAt — время применения шаблона
	AppliedAt time.Time `json:"applied_at"`
}

// Artifact — логическая единица контента с историей версий.
// Владелец — VersionStore; мутации только через создание версий
// и операции обновления метаданных.
type Artifact struct {
	// ArtifactID — уникальный идентификатор артефакта (UUID v4)
	ArtifactID string `json:"artifact_id"`

	// Title — название артефакта
	Title string `json:"title"`

	// Description — описание (участвует в поисковом индексе)
	Description string `json:"description,omitempty"`

	// Type — тип контента
	Type ArtifactType `json:"type"`

	// Category — категория артефакта
	Category string `json:"category,omitempty"`

	// Tags — теги артефакта
	Tags []string `json:"tags,omitempty"`

	// OwnerID — создатель артефакта (всегда имеет права соавтора)
	OwnerID string `json:"owner_id"`

	// Collaborators — соавторы, допущенные к созданию версий
	Collaborators []string `json:"collaborators,omitempty"`

	// CurrentVersion — номер последней неархивированной версии.
	// Инвариант: всегда равен номеру последней созданной версии.
	CurrentVersion string `json:"current_version"`

	// Status — active или archived
	Status ArtifactStatus `json:"status"`

	// AccessLevel — уровень доступа
	AccessLevel AccessLevel `json:"access_level"`

	// BusinessImpact — бизнес-значимость (фильтр поиска)
	BusinessImpact BusinessImpact `json:"business_impact,omitempty"`

	// StrategicValue — стратегическая ценность 0..1 (вес ранжирования)
	StrategicValue float64 `json:"strategic_value"`

	// Usage — счётчики использования
	Usage UsageStats `json:"usage"`

	// Template — ссылка на шаблон (nil если создан без шаблона)
	Template *TemplateReference `json:"template,omitempty"`

	// ForkedFrom — идентификатор артефакта-оригинала (для форков)
	ForkedFrom string `json:"forked_from,omitempty"`

	// CreatedAt — время создания (UTC)
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последней мутации (UTC)
	UpdatedAt time.Time `json:"updated_at"`

	// AuditTrail — след операций над артефактом
	AuditTrail []AuditEntry `json:"audit_trail,omitempty"`
}

// IsArchived проверяет, что артефакт архивирован.
func (a *Artifact) IsArchived() bool {
	return a.Status == ArtifactArchived
}

// HasCollaborator проверяет, допущен ли пользователь к мутациям.
// Владелец всегда считается соавтором.
func (a *Artifact) HasCollaborator(userID string) bool {
	if userID == a.OwnerID {
		return true
	}
	for _, c := range a.Collaborators {
		if c == userID {
			return true
		}
	}
	return false
}

// Clone возвращает глубокую копию артефакта.
// Используется для потокобезопасной выдачи наружу.
func (a *Artifact) Clone() *Artifact {
	copied := *a
	copied.Tags = append([]string(nil), a.Tags...)
	copied.Collaborators = append([]string(nil), a.Collaborators...)
	copied.AuditTrail = append([]AuditEntry(nil), a.AuditTrail...)
	if a.Template != nil {
		tpl := *a.Template
		tpl.CustomizedFields = append([]string(nil), a.Template.CustomizedFields...)
		copied.Template = &tpl
	}
	return &copied
}
