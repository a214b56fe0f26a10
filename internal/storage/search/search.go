// Пакет search — потокобезопасный in-memory поисковый индекс артефактов.
//
// Индекс строится при старте из снапшотов и обновляется синхронно
// при мутациях (Upsert, Remove) в той же критической секции,
// что и само хранилище — поисковая выдача никогда не расходится
// с содержимым VersionStore.
//
// Не персистентный: при рестарте пересобирается из artifact.json.
package search

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/arturkryukov/artstore/artifact-repository/internal/domain/model"
)

// Веса слагаемых итогового ранга. Сумма равна 1.0.
const (
	weightQuality    = 0.3
	weightPopularity = 0.2
	weightRecency    = 0.2
	weightStrategic  = 0.3
)

// recencyWindow — окно линейного затухания recency score.
const recencyWindow = 365 * 24 * time.Hour

// maxTokens — максимальное число токенов на документ.
const maxTokens = 100

// minTokenLen — минимальная длина индексируемого токена (в рунах).
const minTokenLen = 4

// Document — поисковое представление артефакта. Строится сервисным
// слоем из артефакта и его current-версии.
type Document struct {
	ArtifactID  string
	Title       string
	Description string
	// ContentText — текстовый payload current-версии. Участвует
	// только в индексации, в выдачу не возвращается.
	ContentText    string
	Category       string
	Type           model.ArtifactType
	Tags           []string
	Status         model.ArtifactStatus
	BusinessImpact model.BusinessImpact
	QualityScore   float64
	StrategicValue float64
	Usage          model.UsageStats
	UpdatedAt      time.Time
}

// Filters — условия поиска. Все непустые фильтры объединяются по AND.
type Filters struct {
	// Keywords — поисковая строка; каждый токен должен
	// присутствовать в документе
	Keywords string
	// Category — точное совпадение категории
	Category string
	// Type — тип артефакта
	Type model.ArtifactType
	// Tag — артефакт должен содержать тег
	Tag string
	// CreatedAfter / CreatedBefore — диапазон по UpdatedAt
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	// MinQuality — нижний порог оценки качества
	MinQuality float64
	// BusinessImpact — бизнес-значимость
	BusinessImpact model.BusinessImpact
	// Status — статус артефакта ("" — только active)
	Status model.ArtifactStatus
	// Limit/Offset — пагинация (Limit 0 = все)
	Limit  int
	Offset int
}

// Result — документ с вычисленным рангом.
type Result struct {
	Document *Document
	Score    float64
}

// Index — инвертированный индекс поиска.
type Index struct {
	mu     sync.RWMutex
	docs   map[string]*Document           // artifact_id → документ
	terms  map[string]map[string]struct{} // токен → набор artifact_id
	logger *slog.Logger
}

// New создаёт пустой поисковый индекс.
func New(logger *slog.Logger) *Index {
	return &Index{
		docs:   make(map[string]*Document),
		terms:  make(map[string]map[string]struct{}),
		logger: logger.With(slog.String("component", "search")),
	}
}

// Tokenize разбивает текст на индексируемые токены: нижний регистр,
// разделители — не-буквенно-цифровые символы, токены короче 4 рун
// отбрасываются, максимум 100 токенов.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var tokens []string
	for _, f := range fields {
		if len([]rune(f)) < minTokenLen {
			continue
		}
		tokens = append(tokens, f)
		if len(tokens) >= maxTokens {
			break
		}
	}
	return tokens
}

// docTokens собирает токены документа из названия, описания,
// текстового контента, категории и тегов.
func docTokens(doc *Document) []string {
	parts := []string{doc.Title, doc.Description, doc.ContentText, doc.Category}
	parts = append(parts, doc.Tags...)
	return Tokenize(strings.Join(parts, " "))
}

// Upsert добавляет или заменяет документ в индексе.
func (idx *Index) Upsert(doc *Document) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.removeLocked(doc.ArtifactID)

	copied := *doc
	copied.Tags = append([]string(nil), doc.Tags...)
	idx.docs[doc.ArtifactID] = &copied

	for _, token := range docTokens(&copied) {
		set, ok := idx.terms[token]
		if !ok {
			set = make(map[string]struct{})
			idx.terms[token] = set
		}
		set[doc.ArtifactID] = struct{}{}
	}
}

// Remove удаляет документ из индекса.
// Возвращает true, если документ был найден и удалён.
func (idx *Index) Remove(artifactID string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.docs[artifactID]; !ok {
		return false
	}
	idx.removeLocked(artifactID)
	return true
}

// removeLocked удаляет документ и его токены. Вызывается под mu.
func (idx *Index) removeLocked(artifactID string) {
	doc, ok := idx.docs[artifactID]
	if !ok {
		return
	}
	for _, token := range docTokens(doc) {
		if set, ok := idx.terms[token]; ok {
			delete(set, artifactID)
			if len(set) == 0 {
				delete(idx.terms, token)
			}
		}
	}
	delete(idx.docs, artifactID)
}

// Has возвращает true, если артефакт присутствует в индексе.
func (idx *Index) Has(artifactID string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.docs[artifactID]
	return ok
}

// Count возвращает количество документов в индексе.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}

// Query выполняет поиск: применяет AND-фильтры, ранжирует результаты
// и возвращает страницу выдачи вместе с общим количеством совпадений.
// Ранг = 0.3·quality + 0.2·popularity + 0.2·recency + 0.3·strategic;
// при равенстве рангов выше документ с большей популярностью.
func (idx *Index) Query(f Filters) ([]*Result, int) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	candidates := idx.matchKeywords(f.Keywords)

	now := time.Now().UTC()
	var results []*Result
	for _, doc := range candidates {
		if !matchFilters(doc, f) {
			continue
		}
		copied := *doc
		copied.Tags = append([]string(nil), doc.Tags...)
		// Контент индексируется, но в выдачу не попадает
		copied.ContentText = ""
		results = append(results, &Result{
			Document: &copied,
			Score:    rank(doc, now),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return PopularityScore(results[i].Document.Usage) > PopularityScore(results[j].Document.Usage)
	})

	total := len(results)

	if f.Offset >= total {
		return nil, total
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < total {
		end = f.Offset + f.Limit
	}
	return results[f.Offset:end], total
}

// matchKeywords возвращает кандидатов по поисковой строке.
// Каждый токен запроса должен присутствовать в документе.
// Пустой запрос — все документы. Вызывается под mu.
func (idx *Index) matchKeywords(keywords string) []*Document {
	tokens := Tokenize(keywords)
	if len(tokens) == 0 {
		result := make([]*Document, 0, len(idx.docs))
		for _, doc := range idx.docs {
			result = append(result, doc)
		}
		return result
	}

	// Пересечение наборов документов по каждому токену
	var matched map[string]struct{}
	for i, token := range tokens {
		set, ok := idx.terms[token]
		if !ok {
			return nil
		}
		if i == 0 {
			matched = make(map[string]struct{}, len(set))
			for id := range set {
				matched[id] = struct{}{}
			}
			continue
		}
		for id := range matched {
			if _, ok := set[id]; !ok {
				delete(matched, id)
			}
		}
		if len(matched) == 0 {
			return nil
		}
	}

	result := make([]*Document, 0, len(matched))
	for id := range matched {
		result = append(result, idx.docs[id])
	}
	return result
}

// matchFilters проверяет документ против AND-фильтров.
func matchFilters(doc *Document, f Filters) bool {
	// По умолчанию архивированные артефакты не попадают в выдачу
	status := f.Status
	if status == "" {
		status = model.ArtifactActive
	}
	if doc.Status != status {
		return false
	}

	if f.Category != "" && doc.Category != f.Category {
		return false
	}
	if f.Type != "" && doc.Type != f.Type {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, tag := range doc.Tags {
			if tag == f.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.CreatedAfter != nil && doc.UpdatedAt.Before(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && doc.UpdatedAt.After(*f.CreatedBefore) {
		return false
	}
	if f.MinQuality > 0 && doc.QualityScore < f.MinQuality {
		return false
	}
	if f.BusinessImpact != "" && doc.BusinessImpact != f.BusinessImpact {
		return false
	}
	return true
}

// rank вычисляет итоговый ранг документа.
func rank(doc *Document, now time.Time) float64 {
	return doc.QualityScore*weightQuality +
		PopularityScore(doc.Usage)*weightPopularity +
		recencyScore(doc.UpdatedAt, now)*weightRecency +
		doc.StrategicValue*weightStrategic
}

// PopularityScore вычисляет популярность 0..1 из счётчиков
// использования. Каждое слагаемое насыщается на своём пороге.
func PopularityScore(u model.UsageStats) float64 {
	views := float64(u.Views) / 100.0
	if views > 1 {
		views = 1
	}
	downloads := float64(u.Downloads) / 50.0
	if downloads > 1 {
		downloads = 1
	}
	shares := float64(u.Shares) / 20.0
	if shares > 1 {
		shares = 1
	}
	forks := float64(u.Forks) / 10.0
	if forks > 1 {
		forks = 1
	}
	return views*0.4 + downloads*0.3 + shares*0.2 + forks*0.1
}

// recencyScore — линейное затухание от 1 (сейчас) до 0 (365 дней и старше).
func recencyScore(updatedAt, now time.Time) float64 {
	age := now.Sub(updatedAt)
	if age <= 0 {
		return 1
	}
	if age >= recencyWindow {
		return 0
	}
	return 1 - float64(age)/float64(recencyWindow)
}
