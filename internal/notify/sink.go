// Пакет notify — fire-and-forget sink событий аудита.
//
// Record вызывается после успешных мутаций и никогда их не блокирует:
// события складываются в буферизованный канал и отправляются фоновым
// воркером. Сбои доставки логируются и не откатывают мутацию;
// при переполнении буфера событие отбрасывается.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Event — событие аудита.
type Event struct {
	// Action — тип операции (artifact_create, version_create, fork, ...)
	Action string `json:"action"`
	// ActorID — инициатор
	ActorID string `json:"actor_id"`
	// ArtifactID — затронутый артефакт
	ArtifactID string `json:"artifact_id,omitempty"`
	// Details — произвольные атрибуты события
	Details map[string]any `json:"details,omitempty"`
	// OccurredAt — время события (UTC)
	OccurredAt time.Time `json:"occurred_at"`
}

// Sink — контракт приёмника событий.
type Sink interface {
	// Record отправляет событие. Не блокирует и не возвращает ошибку.
	Record(event Event)
	// Close останавливает фоновую отправку, дожидаясь очереди.
	Close()
}

// HTTPSink — асинхронный HTTP-приёмник событий.
type HTTPSink struct {
	baseURL    string
	httpClient *http.Client
	events     chan Event
	wg         sync.WaitGroup
	logger     *slog.Logger
}

// NewHTTPSink создаёт приёмник и запускает фонового воркера.
// bufferSize — ёмкость очереди событий.
func NewHTTPSink(baseURL string, timeout time.Duration, bufferSize int, logger *slog.Logger) *HTTPSink {
	s := &HTTPSink{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		events: make(chan Event, bufferSize),
		logger: logger.With(slog.String("component", "notify")),
	}

	s.wg.Add(1)
	go s.worker()

	return s
}

// Record ставит событие в очередь отправки. При переполнении буфера
// событие отбрасывается с предупреждением.
func (s *HTTPSink) Record(event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	select {
	case s.events <- event:
	default:
		s.logger.Warn("Буфер событий переполнен, событие отброшено",
			slog.String("action", event.Action),
			slog.String("artifact_id", event.ArtifactID),
		)
	}
}

// Close закрывает очередь и дожидается отправки оставшихся событий.
func (s *HTTPSink) Close() {
	close(s.events)
	s.wg.Wait()
}

// worker отправляет события из очереди по одному.
func (s *HTTPSink) worker() {
	defer s.wg.Done()

	for event := range s.events {
		if err := s.send(event); err != nil {
			s.logger.Warn("Не удалось доставить событие аудита",
				slog.String("action", event.Action),
				slog.String("error", err.Error()),
			)
		}
	}
}

// send выполняет POST {baseURL}/api/v1/events.
func (s *HTTPSink) send(event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("сериализация события: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.httpClient.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/v1/events", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("создание запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("отправка события: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("приёмник событий вернул статус %d", resp.StatusCode)
	}
	return nil
}

// LogSink — приёмник, пишущий события только в лог.
// Используется, когда AR_NOTIFY_URL не задан.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink создаёт лог-приёмник событий.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With(slog.String("component", "notify"))}
}

// Record пишет событие в лог.
func (s *LogSink) Record(event Event) {
	s.logger.Info("Событие аудита",
		slog.String("action", event.Action),
		slog.String("actor", event.ActorID),
		slog.String("artifact_id", event.ArtifactID),
	)
}

// Close ничего не делает.
func (s *LogSink) Close() {}
