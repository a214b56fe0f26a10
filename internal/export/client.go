// Пакет export — клиент внешнего сервиса экспорта/конвертации контента.
//
// Экспорт вызывается строго после коммита мутации и никогда
// не блокирует запись: ошибки экспорта возвращаются вызывающему,
// но не влияют на состояние хранилища.
package export

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Exporter — контракт сервиса экспорта.
type Exporter interface {
	// Export конвертирует контент в указанный формат и возвращает
	// путь к результату на стороне сервиса.
	Export(ctx context.Context, content []byte, format string, config map[string]string) (path string, err error)
}

// Client — HTTP-клиент сервиса экспорта.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// exportRequest — тело запроса POST {baseURL}/api/v1/export.
type exportRequest struct {
	// Content — контент в base64
	Content string            `json:"content"`
	Format  string            `json:"format"`
	Config  map[string]string `json:"config,omitempty"`
}

// exportResponse — ответ сервиса экспорта.
type exportResponse struct {
	Path  string `json:"path,omitempty"`
	Error string `json:"error,omitempty"`
}

// New создаёт клиент сервиса экспорта.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With(slog.String("component", "export_client")),
	}
}

// Export конвертирует контент в указанный формат.
func (c *Client) Export(ctx context.Context, content []byte, format string, config map[string]string) (string, error) {
	body, err := json.Marshal(exportRequest{
		Content: base64.StdEncoding.EncodeToString(content),
		Format:  format,
		Config:  config,
	})
	if err != nil {
		return "", fmt.Errorf("сериализация запроса Export: %w", err)
	}

	reqURL := c.baseURL + "/api/v1/export"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("создание запроса Export: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("запрос Export к %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("сервис экспорта вернул статус %d", resp.StatusCode)
	}

	var result exportResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("десериализация ответа Export: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("ошибка сервиса экспорта: %s", result.Error)
	}

	c.logger.Debug("Экспорт выполнен",
		slog.String("format", format),
		slog.String("path", result.Path),
	)

	return result.Path, nil
}
