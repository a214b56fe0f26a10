// Пакет compliance — батарея проверок контента версии.
//
// Gate запускает фиксированный набор независимых проверок
// (security, privacy, accessibility, licensing, standards, quality).
// Каждая проверка — чистая функция контента без побочных эффектов;
// результаты прикрепляются к версии и никогда не изменяются
// задним числом.
//
// Политика блокировки: failed по security или licensing блокирует
// продвижение версии дальше review (включается флагом
// AR_ENFORCE_COMPLIANCE).
package compliance

import (
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/arturkryukov/artstore/artifact-repository/internal/domain/model"
)

// Имена проверок. Порядок запуска фиксирован.
const (
	CheckSecurity      = "security"
	CheckPrivacy       = "privacy"
	CheckAccessibility = "accessibility"
	CheckLicensing     = "licensing"
	CheckStandards     = "standards"
	CheckQuality       = "quality"
)

// Паттерны утечки секретов в контенте.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[:=]\s*\S+`),
	regexp.MustCompile(`(?i)(api[_-]?key|secret[_-]?key|access[_-]?token)\s*[:=]\s*\S+`),
	regexp.MustCompile(`-----BEGIN (RSA |EC |OPENSSH )?PRIVATE KEY-----`),
	regexp.MustCompile(`(?i)aws_secret_access_key`),
}

// Паттерны персональных данных.
var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?\d[\d\s\-()]{9,14}\d`)
)

// licenseMarkers — признаки наличия лицензионной информации.
var licenseMarkers = []string{
	"spdx-license-identifier",
	"licensed under",
	"apache license",
	"mit license",
	"copyright (c)",
	"copyright ©",
}

// Gate — батарея compliance-проверок.
type Gate struct {
	logger *slog.Logger
}

// New создаёт Gate.
func New(logger *slog.Logger) *Gate {
	return &Gate{
		logger: logger.With(slog.String("component", "compliance")),
	}
}

// Run выполняет все проверки против контента версии.
// Возвращает результаты в фиксированном порядке.
func (g *Gate) Run(a *model.Artifact, v *model.ArtifactVersion) []model.ComplianceResult {
	now := time.Now().UTC()
	content := v.Content

	results := []model.ComplianceResult{
		checkSecurity(content, now),
		checkPrivacy(content, now),
		checkAccessibility(a, content, now),
		checkLicensing(a, content, now),
		checkStandards(content, now),
		checkQuality(v, now),
	}

	for _, r := range results {
		if r.Status == model.CheckFailed {
			g.logger.Warn("Compliance-проверка не пройдена",
				slog.String("artifact_id", a.ArtifactID),
				slog.String("version", v.Number),
				slog.String("check", r.Check),
			)
		}
	}

	return results
}

// BlocksPromotion возвращает true, если результаты содержат failed
// по security или licensing — такие версии не продвигаются
// дальше review.
func BlocksPromotion(results []model.ComplianceResult) bool {
	for _, r := range results {
		if r.Status != model.CheckFailed {
			continue
		}
		if r.Check == CheckSecurity || r.Check == CheckLicensing {
			return true
		}
	}
	return false
}

// checkSecurity ищет утечки секретов в текстовом контенте.
func checkSecurity(content model.ContentBlob, now time.Time) model.ComplianceResult {
	result := model.ComplianceResult{Check: CheckSecurity, CheckedAt: now}

	if !content.IsText() {
		result.Status = model.CheckNotApplicable
		result.Score = 1
		return result
	}

	text := string(content.Data)
	var hits []string
	for _, re := range secretPatterns {
		if re.MatchString(text) {
			hits = append(hits, re.String())
		}
	}

	if len(hits) > 0 {
		result.Status = model.CheckFailed
		result.Score = 0
		result.Recommendations = []string{
			"удалите секреты и учётные данные из контента",
			"используйте ссылки на секрет-хранилище вместо значений",
		}
		return result
	}

	result.Status = model.CheckPassed
	result.Score = 1
	return result
}

// checkPrivacy ищет персональные данные (email, телефоны).
func checkPrivacy(content model.ContentBlob, now time.Time) model.ComplianceResult {
	result := model.ComplianceResult{Check: CheckPrivacy, CheckedAt: now}

	if !content.IsText() {
		result.Status = model.CheckNotApplicable
		result.Score = 1
		return result
	}

	text := string(content.Data)
	emails := len(emailRe.FindAllString(text, -1))
	phones := len(phoneRe.FindAllString(text, -1))

	switch {
	case emails+phones > 5:
		result.Status = model.CheckFailed
		result.Score = 0.2
		result.Recommendations = []string{"контент содержит массовые персональные данные, требуется анонимизация"}
	case emails+phones > 0:
		result.Status = model.CheckWarning
		result.Score = 0.6
		result.Recommendations = []string{"проверьте правомерность включения контактных данных"}
	default:
		result.Status = model.CheckPassed
		result.Score = 1
	}
	return result
}

// checkAccessibility оценивает доступность текстового контента:
// структура заголовков и длина абзацев.
func checkAccessibility(a *model.Artifact, content model.ContentBlob, now time.Time) model.ComplianceResult {
	result := model.ComplianceResult{Check: CheckAccessibility, CheckedAt: now}

	if a.Type != model.TypeDocument || !content.IsText() {
		result.Status = model.CheckNotApplicable
		result.Score = 1
		return result
	}

	text := string(content.Data)
	paragraphs := strings.Split(text, "\n\n")

	var overlong int
	for _, p := range paragraphs {
		if len([]rune(p)) > 1500 {
			overlong++
		}
	}

	if overlong > 0 {
		result.Status = model.CheckWarning
		result.Score = 0.6
		result.Recommendations = []string{"разбейте длинные абзацы для удобства восприятия"}
		return result
	}

	result.Status = model.CheckPassed
	result.Score = 1
	return result
}

// checkLicensing проверяет наличие лицензионных маркеров в коде.
// Для остальных типов — not_applicable.
func checkLicensing(a *model.Artifact, content model.ContentBlob, now time.Time) model.ComplianceResult {
	result := model.ComplianceResult{Check: CheckLicensing, CheckedAt: now}

	if a.Type != model.TypeCode || !content.IsText() {
		result.Status = model.CheckNotApplicable
		result.Score = 1
		return result
	}

	text := strings.ToLower(string(content.Data))
	for _, marker := range licenseMarkers {
		if strings.Contains(text, marker) {
			result.Status = model.CheckPassed
			result.Score = 1
			return result
		}
	}

	result.Status = model.CheckWarning
	result.Score = 0.5
	result.Recommendations = []string{"добавьте лицензионный заголовок или SPDX-идентификатор"}
	return result
}

// checkStandards проверяет технические стандарты контента:
// валидный UTF-8, отсутствие чрезмерно длинных строк.
func checkStandards(content model.ContentBlob, now time.Time) model.ComplianceResult {
	result := model.ComplianceResult{Check: CheckStandards, CheckedAt: now}

	if !content.IsText() {
		result.Status = model.CheckNotApplicable
		result.Score = 1
		return result
	}

	if !utf8.Valid(content.Data) {
		result.Status = model.CheckFailed
		result.Score = 0
		result.Recommendations = []string{"контент должен быть валидным UTF-8"}
		return result
	}

	var long int
	lines := strings.Split(string(content.Data), "\n")
	for _, line := range lines {
		if len(line) > 500 {
			long++
		}
	}

	if long > 0 {
		result.Status = model.CheckWarning
		result.Score = 0.7
		result.Recommendations = []string{"строки длиннее 500 символов затрудняют обработку"}
		return result
	}

	result.Status = model.CheckPassed
	result.Score = 1
	return result
}

// checkQuality транслирует эвристическую оценку качества версии
// в статус проверки.
func checkQuality(v *model.ArtifactVersion, now time.Time) model.ComplianceResult {
	result := model.ComplianceResult{
		Check:     CheckQuality,
		Score:     v.QualityScore,
		CheckedAt: now,
	}

	switch {
	case v.QualityScore >= 0.6:
		result.Status = model.CheckPassed
	case v.QualityScore >= 0.3:
		result.Status = model.CheckWarning
		result.Recommendations = []string{"дополните контент и метаданные для повышения качества"}
	default:
		result.Status = model.CheckFailed
		result.Recommendations = []string{"качество контента ниже допустимого порога"}
	}
	return result
}
