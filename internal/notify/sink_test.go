package notify

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"
)

// testLogger возвращает логгер для тестов (вывод подавляется).
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// TestHTTPSink_Delivery проверяет асинхронную доставку событий.
func TestHTTPSink_Delivery(t *testing.T) {
	var mu sync.Mutex
	var received []Event

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var e Event
		if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
			t.Errorf("не удалось разобрать событие: %v", err)
		}
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewHTTPSink(srv.URL, 5*time.Second, 16, testLogger())
	s.Record(Event{Action: "artifact_create", ActorID: "user-1", ArtifactID: "a-1"})
	s.Record(Event{Action: "fork", ActorID: "user-2", ArtifactID: "a-2"})
	s.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("ожидалось 2 события, получено %d", len(received))
	}
	if received[0].Action != "artifact_create" {
		t.Errorf("ожидалось artifact_create, получено %s", received[0].Action)
	}
	if received[0].OccurredAt.IsZero() {
		t.Error("время события должно быть заполнено автоматически")
	}
}

// TestHTTPSink_FailureDoesNotBlock проверяет, что сбой доставки
// не блокирует Record.
func TestHTTPSink_FailureDoesNotBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewHTTPSink(srv.URL, time.Second, 4, testLogger())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			s.Record(Event{Action: "version_create", ActorID: "user-1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record не должен блокироваться при сбоях доставки")
	}
	s.Close()
}

// TestLogSink проверяет, что лог-приёмник не паникует.
func TestLogSink(t *testing.T) {
	s := NewLogSink(testLogger())
	s.Record(Event{Action: "archive", ActorID: "user-1"})
	s.Close()
}
