package search

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/arturkryukov/artstore/artifact-repository/internal/domain/model"
)

// testLogger возвращает логгер для тестов (вывод подавляется).
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func testDoc(id, title string) *Document {
	return &Document{
		ArtifactID:   id,
		Title:        title,
		Type:         model.TypeDocument,
		Status:       model.ArtifactActive,
		QualityScore: 0.5,
		UpdatedAt:    time.Now().UTC(),
	}
}

// TestTokenize проверяет правила токенизации.
func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"нижний регистр", "Квартальный ОТЧЁТ", []string{"квартальный", "отчёт"}},
		{"короткие токены отбрасываются", "в год два или курс", []string{"курс"}},
		{"разделители", "design-system: обзор/архитектура", []string{"design", "system", "обзор", "архитектура"}},
		{"пустая строка", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("ожидалось %d токенов %v, получено %d %v", len(tt.want), tt.want, len(got), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("токен %d: ожидался %q, получен %q", i, tt.want[i], got[i])
				}
			}
		})
	}
}

// TestQuery_Keywords проверяет AND-семантику токенов запроса.
func TestQuery_Keywords(t *testing.T) {
	idx := New(testLogger())
	idx.Upsert(testDoc("a-1", "Квартальный отчёт продаж"))
	idx.Upsert(testDoc("a-2", "Квартальный план найма"))
	idx.Upsert(testDoc("a-3", "Дизайн система"))

	results, total := idx.Query(Filters{Keywords: "квартальный отчёт"})
	if total != 1 {
		t.Fatalf("ожидался 1 результат, получено %d", total)
	}
	if results[0].Document.ArtifactID != "a-1" {
		t.Errorf("ожидался a-1, получен %s", results[0].Document.ArtifactID)
	}

	// Один общий токен — оба квартальных документа
	_, total = idx.Query(Filters{Keywords: "квартальный"})
	if total != 2 {
		t.Errorf("ожидалось 2 результата, получено %d", total)
	}

	// Неизвестный токен — пустая выдача
	_, total = idx.Query(Filters{Keywords: "несуществующее"})
	if total != 0 {
		t.Errorf("ожидалась пустая выдача, получено %d", total)
	}
}

// TestQuery_ContentText проверяет, что текстовый контент версии
// участвует в поиске, но не возвращается в выдаче.
func TestQuery_ContentText(t *testing.T) {
	idx := New(testLogger())

	doc := testDoc("a-1", "Регламент выпуска")
	doc.ContentText = "hello world инструкция деплоя"
	idx.Upsert(doc)

	results, total := idx.Query(Filters{Keywords: "hello"})
	if total != 1 {
		t.Fatalf("ожидался 1 результат, получено %d", total)
	}
	if results[0].Document.ContentText != "" {
		t.Error("контент не должен возвращаться в выдаче")
	}

	// После замены документа старые токены контента исчезают
	doc.ContentText = "farewell planet"
	idx.Upsert(doc)
	if _, total := idx.Query(Filters{Keywords: "hello"}); total != 0 {
		t.Errorf("токены старого контента остались: %d", total)
	}
	if _, total := idx.Query(Filters{Keywords: "farewell"}); total != 1 {
		t.Errorf("токены нового контента не найдены: %d", total)
	}
}

// TestQuery_Filters проверяет AND-объединение фильтров.
func TestQuery_Filters(t *testing.T) {
	idx := New(testLogger())

	doc := testDoc("a-1", "Отчёт")
	doc.Category = "finance"
	doc.Tags = []string{"quarterly"}
	doc.QualityScore = 0.8
	doc.BusinessImpact = model.ImpactHigh
	idx.Upsert(doc)

	other := testDoc("a-2", "Отчёт")
	other.Category = "engineering"
	other.QualityScore = 0.4
	idx.Upsert(other)

	tests := []struct {
		name    string
		filters Filters
		want    int
	}{
		{"по категории", Filters{Category: "finance"}, 1},
		{"по тегу", Filters{Tag: "quarterly"}, 1},
		{"по минимальному качеству", Filters{MinQuality: 0.6}, 1},
		{"по бизнес-значимости", Filters{BusinessImpact: model.ImpactHigh}, 1},
		{"категория AND качество", Filters{Category: "engineering", MinQuality: 0.6}, 0},
		{"без фильтров", Filters{}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, total := idx.Query(tt.filters)
			if total != tt.want {
				t.Errorf("ожидалось %d результатов, получено %d", tt.want, total)
			}
		})
	}
}

// TestQuery_ArchivedExcluded проверяет, что архивированные артефакты
// не попадают в выдачу по умолчанию.
func TestQuery_ArchivedExcluded(t *testing.T) {
	idx := New(testLogger())
	idx.Upsert(testDoc("a-1", "Активный документ"))

	archived := testDoc("a-2", "Архивный документ")
	archived.Status = model.ArtifactArchived
	idx.Upsert(archived)

	_, total := idx.Query(Filters{})
	if total != 1 {
		t.Errorf("по умолчанию ожидался 1 активный документ, получено %d", total)
	}

	_, total = idx.Query(Filters{Status: model.ArtifactArchived})
	if total != 1 {
		t.Errorf("по явному фильтру ожидался 1 архивный документ, получено %d", total)
	}
}

// TestQuery_Ranking проверяет порядок выдачи по итоговому рангу.
func TestQuery_Ranking(t *testing.T) {
	idx := New(testLogger())
	now := time.Now().UTC()

	low := testDoc("a-low", "Документ обычный")
	low.QualityScore = 0.2
	low.UpdatedAt = now.AddDate(-2, 0, 0) // recency = 0
	idx.Upsert(low)

	high := testDoc("a-high", "Документ стратегический")
	high.QualityScore = 0.9
	high.StrategicValue = 0.9
	high.UpdatedAt = now
	idx.Upsert(high)

	results, total := idx.Query(Filters{})
	if total != 2 {
		t.Fatalf("ожидалось 2 результата, получено %d", total)
	}
	if results[0].Document.ArtifactID != "a-high" {
		t.Errorf("первым должен быть a-high, получен %s", results[0].Document.ArtifactID)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("ранг первого должен быть выше: %.3f <= %.3f", results[0].Score, results[1].Score)
	}
}

// TestQuery_RecencyDecay проверяет линейное затухание recency score.
func TestQuery_RecencyDecay(t *testing.T) {
	idx := New(testLogger())
	now := time.Now().UTC()

	fresh := testDoc("a-fresh", "Документ свежий")
	fresh.UpdatedAt = now
	idx.Upsert(fresh)

	stale := testDoc("a-stale", "Документ прошлогодний")
	stale.UpdatedAt = now.AddDate(-2, 0, 0)
	idx.Upsert(stale)

	results, _ := idx.Query(Filters{})
	if len(results) != 2 {
		t.Fatalf("ожидалось 2 результата, получено %d", len(results))
	}
	if results[0].Document.ArtifactID != "a-fresh" {
		t.Errorf("свежий документ должен ранжироваться выше, получен %s",
			results[0].Document.ArtifactID)
	}

	// Вклад recency для свежего документа — полные 0.2
	if diff := results[0].Score - results[1].Score; diff < 0.19 {
		t.Errorf("разница рангов должна быть ~0.2, получена %.3f", diff)
	}
}

// TestPopularityScore проверяет насыщение слагаемых популярности.
func TestPopularityScore(t *testing.T) {
	tests := []struct {
		name  string
		usage model.UsageStats
		want  float64
	}{
		{"нулевые счётчики", model.UsageStats{}, 0},
		{"все пороги достигнуты", model.UsageStats{Views: 1000, Downloads: 500, Shares: 100, Forks: 50}, 1.0},
		{"половина просмотров", model.UsageStats{Views: 50}, 0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PopularityScore(tt.usage)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("ожидалось %.3f, получено %.3f", tt.want, got)
			}
		})
	}
}

// TestUpsertRemove проверяет замену и удаление документов.
func TestUpsertRemove(t *testing.T) {
	idx := New(testLogger())
	idx.Upsert(testDoc("a-1", "Старое название"))

	// Замена переиндексирует токены
	idx.Upsert(testDoc("a-1", "Новое название"))

	if _, total := idx.Query(Filters{Keywords: "старое"}); total != 0 {
		t.Errorf("старые токены должны быть удалены, получено %d", total)
	}
	if _, total := idx.Query(Filters{Keywords: "новое"}); total != 1 {
		t.Errorf("новые токены должны находиться, получено %d", total)
	}

	if !idx.Remove("a-1") {
		t.Fatal("Remove должен вернуть true для существующего документа")
	}
	if idx.Remove("a-1") {
		t.Error("повторный Remove должен вернуть false")
	}
	if idx.Count() != 0 {
		t.Errorf("индекс должен быть пуст, получено %d", idx.Count())
	}
}

// TestQuery_Pagination проверяет limit/offset.
func TestQuery_Pagination(t *testing.T) {
	idx := New(testLogger())
	for _, id := range []string{"a-1", "a-2", "a-3", "a-4", "a-5"} {
		idx.Upsert(testDoc(id, "Документ "+id))
	}

	page, total := idx.Query(Filters{Limit: 2, Offset: 0})
	if total != 5 {
		t.Errorf("ожидалось total=5, получено %d", total)
	}
	if len(page) != 2 {
		t.Errorf("ожидалась страница из 2, получено %d", len(page))
	}

	page, _ = idx.Query(Filters{Limit: 2, Offset: 4})
	if len(page) != 1 {
		t.Errorf("последняя страница должна содержать 1 элемент, получено %d", len(page))
	}

	page, _ = idx.Query(Filters{Offset: 10})
	if page != nil {
		t.Errorf("offset за пределами выдачи должен вернуть nil, получено %d", len(page))
	}
}
