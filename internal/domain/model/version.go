// version.go — неизменяемые снапшоты контента (ArtifactVersion) и
// правила семантического версионирования major.minor.patch.
package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// VersionStatus — статус версии в жизненном цикле
// draft → review → approved → published → deprecated/archived.
type VersionStatus string

const (
	VersionDraft      VersionStatus = "draft"
	VersionReview     VersionStatus = "review"
	VersionApproved   VersionStatus = "approved"
	VersionPublished  VersionStatus = "published"
	VersionDeprecated VersionStatus = "deprecated"
	VersionArchived   VersionStatus = "archived"
)

// BumpKind — вид инкремента номера версии.
type BumpKind string

const (
	// BumpMajor — major+1, minor и patch сбрасываются в 0
	BumpMajor BumpKind = "major"
	// BumpMinor — minor+1, patch сбрасывается в 0
	BumpMinor BumpKind = "minor"
	// BumpPatch — patch+1
	BumpPatch BumpKind = "patch"
)

// ContentBlob — типизированный payload версии.
// Data не сериализуется в artifact.json: байты хранятся
// в content-addressed blob store, ключ — Checksum.
type ContentBlob struct {
	// ContentType — MIME-тип payload
	ContentType string `json:"content_type"`
	// Data — байты контента (in-memory, персистентно в blob store)
	Data []byte `json:"-"`
	// Checksum — SHA-256 хэш содержимого (hex)
	Checksum string `json:"checksum"`
	// Size — размер payload в байтах
	Size int64 `json:"size"`
}

// IsText проверяет, что payload текстовый (пригоден для merge и индексации).
func (c *ContentBlob) IsText() bool {
	return strings.HasPrefix(c.ContentType, "text/") ||
		c.ContentType == "application/json" ||
		c.ContentType == "application/yaml" ||
		c.ContentType == "application/xml"
}

// ChangeKind — вид изменения в рамках версии.
type ChangeKind string

const (
	// ChangeContentEdit — правка текста по диапазону [Offset, Offset+Length)
	ChangeContentEdit ChangeKind = "content_edit"
	// ChangeMetadata — правка метаданных артефакта
	ChangeMetadata ChangeKind = "metadata"
	// ChangeRewrite — полная замена контента
	ChangeRewrite ChangeKind = "rewrite"
)

// ChangeLocation — диапазон текста, затронутый изменением.
type ChangeLocation struct {
	// Offset — смещение в байтах от начала контента
	Offset int `json:"offset"`
	// Length — длина заменяемого диапазона (0 — вставка)
	Length int `json:"length"`
}

// Overlaps проверяет пересечение двух диапазонов.
// Вставки (Length=0) в одну позицию считаются пересекающимися.
func (l ChangeLocation) Overlaps(other ChangeLocation) bool {
	aEnd := l.Offset + l.Length
	bEnd := other.Offset + other.Length
	if l.Length == 0 && other.Length == 0 {
		return l.Offset == other.Offset
	}
	return l.Offset < bEnd && other.Offset < aEnd
}

// Change — одно изменение в составе версии.
type Change struct {
	// ChangeID — уникальный идентификатор изменения (UUID v4)
	ChangeID string `json:"change_id"`
	// Kind — вид изменения
	Kind ChangeKind `json:"kind"`
	// Description — описание изменения
	Description string `json:"description,omitempty"`
	// Location — затронутый диапазон (только для content_edit)
	Location *ChangeLocation `json:"location,omitempty"`
	// NewText — новый текст диапазона (content_edit) или весь контент (rewrite)
	NewText string `json:"new_text,omitempty"`
	// Author — автор изменения
	Author string `json:"author"`
	// CreatedAt — время создания (UTC)
	CreatedAt time.Time `json:"created_at"`
}

// CheckStatus — результат одной compliance-проверки.
type CheckStatus string

const (
	CheckPassed        CheckStatus = "passed"
	CheckFailed        CheckStatus = "failed"
	CheckWarning       CheckStatus = "warning"
	CheckNotApplicable CheckStatus = "not_applicable"
)

// ComplianceResult — результат одной проверки ComplianceGate.
// Прикрепляется к версии и никогда не изменяется задним числом.
type ComplianceResult struct {
	// Check — имя проверки (security, privacy, accessibility, licensing, standards, quality)
	Check string `json:"check"`
	// Status — итог проверки
	Status CheckStatus `json:"status"`
	// Score — оценка 0..1
	Score float64 `json:"score"`
	// Recommendations — рекомендации по исправлению
	Recommendations []string `json:"recommendations,omitempty"`
	// CheckedAt — время выполнения проверки (UTC)
	CheckedAt time.Time `json:"checked_at"`
}

// ArtifactVersion — неизменяемый снапшот контента артефакта.
type ArtifactVersion struct {
	// VersionID — уникальный идентификатор версии (UUID v4)
	VersionID string `json:"version_id"`

	// ArtifactID — артефакт-владелец
	ArtifactID string `json:"artifact_id"`

	// Number — семантический номер версии (major.minor.patch)
	Number string `json:"number"`

	// ParentVersionID — слабая обратная ссылка на предыдущую версию.
	// Используется только для обхода lineage, не является strong pointer.
	ParentVersionID string `json:"parent_version_id,omitempty"`

	// Content — payload версии
	Content ContentBlob `json:"content"`

	// ChangeLog — описание изменений версии
	ChangeLog string `json:"change_log,omitempty"`

	// Changes — список изменений, вошедших в версию
	Changes []Change `json:"changes,omitempty"`

	// Status — статус в жизненном цикле
	Status VersionStatus `json:"status"`

	// QualityScore — эвристическая оценка качества 0..1
	QualityScore float64 `json:"quality_score"`

	// Compliance — результаты ComplianceGate
	Compliance []ComplianceResult `json:"compliance,omitempty"`

	// CreatedBy — автор версии
	CreatedBy string `json:"created_by"`

	// CreatedAt — время создания (UTC)
	CreatedAt time.Time `json:"created_at"`
}

// Clone возвращает глубокую копию версии.
func (v *ArtifactVersion) Clone() *ArtifactVersion {
	copied := *v
	copied.Content.Data = append([]byte(nil), v.Content.Data...)
	copied.Changes = append([]Change(nil), v.Changes...)
	copied.Compliance = append([]ComplianceResult(nil), v.Compliance...)
	return &copied
}

// ParseVersion разбирает строку major.minor.patch.
func ParseVersion(s string) (major, minor, patch int, err error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("недопустимый номер версии: %q", s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, convErr := strconv.Atoi(p)
		if convErr != nil || n < 0 {
			return 0, 0, 0, fmt.Errorf("недопустимый номер версии: %q", s)
		}
		nums[i] = n
	}
	return nums[0], nums[1], nums[2], nil
}

// NextVersion вычисляет следующий номер версии по правилу bump:
// major сбрасывает minor и patch, minor сбрасывает patch.
func NextVersion(current string, bump BumpKind) (string, error) {
	major, minor, patch, err := ParseVersion(current)
	if err != nil {
		return "", err
	}

	switch bump {
	case BumpMajor:
		return fmt.Sprintf("%d.0.0", major+1), nil
	case BumpMinor:
		return fmt.Sprintf("%d.%d.0", major, minor+1), nil
	case BumpPatch:
		return fmt.Sprintf("%d.%d.%d", major, minor, patch+1), nil
	default:
		return "", fmt.Errorf("недопустимый вид bump: %q", bump)
	}
}

// CompareVersions сравнивает два номера версий.
// Возвращает -1, 0 или 1. Ошибка — при невалидном номере.
func CompareVersions(a, b string) (int, error) {
	aMaj, aMin, aPat, err := ParseVersion(a)
	if err != nil {
		return 0, err
	}
	bMaj, bMin, bPat, err := ParseVersion(b)
	if err != nil {
		return 0, err
	}

	av := [3]int{aMaj, aMin, aPat}
	bv := [3]int{bMaj, bMin, bPat}
	for i := range 3 {
		if av[i] < bv[i] {
			return -1, nil
		}
		if av[i] > bv[i] {
			return 1, nil
		}
	}
	return 0, nil
}
