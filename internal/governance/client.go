// Пакет governance — клиент внешнего сервиса согласования мутаций.
//
// Каждая мутация (создание артефакта, версии, форк, архивация,
// сворачивание сессии) должна быть одобрена ДО применения:
// отрицательный ответ даёт GovernanceRejected, и состояние
// не изменяется. Сервис — чёрный ящик с узким контрактом Approve.
package governance

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// Approver — контракт сервиса согласования.
// Реализуется HTTP-клиентом (Client) или заглушкой PermitAll.
type Approver interface {
	// Approve запрашивает одобрение действия. approved=false с причиной —
	// штатный отказ, ошибка — недоступность сервиса.
	Approve(ctx context.Context, actorID, actionType string, payload map[string]any) (approved bool, reason string, err error)
}

// Client — HTTP-клиент governance-сервиса.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// approveRequest — тело запроса POST {baseURL}/api/v1/approve.
type approveRequest struct {
	ActorID    string         `json:"actor_id"`
	ActionType string         `json:"action_type"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// approveResponse — ответ governance-сервиса.
type approveResponse struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// New создаёт governance-клиент.
// caCertPath — путь к CA-сертификату для TLS (пустая строка — стандартный пул).
func New(baseURL, caCertPath string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
	}

	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата governance: %w", err)
		}
		transport.TLSClientConfig = tlsConfig
		logger.Info("CA-сертификат governance добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger: logger.With(slog.String("component", "governance_client")),
	}, nil
}

// Approve запрашивает одобрение действия у governance-сервиса.
// Формат: POST {baseURL}/api/v1/approve.
func (c *Client) Approve(ctx context.Context, actorID, actionType string, payload map[string]any) (bool, string, error) {
	body, err := json.Marshal(approveRequest{
		ActorID:    actorID,
		ActionType: actionType,
		Payload:    payload,
	})
	if err != nil {
		return false, "", fmt.Errorf("сериализация запроса Approve: %w", err)
	}

	reqURL := c.baseURL + "/api/v1/approve"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return false, "", fmt.Errorf("создание запроса Approve: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, "", fmt.Errorf("запрос Approve к %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, "", fmt.Errorf("governance-сервис вернул статус %d", resp.StatusCode)
	}

	var result approveResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, "", fmt.Errorf("десериализация ответа Approve: %w", err)
	}

	if !result.Approved {
		c.logger.Warn("Governance отклонил действие",
			slog.String("actor", actorID),
			slog.String("action", actionType),
			slog.String("reason", result.Reason),
		)
	}

	return result.Approved, result.Reason, nil
}

// PermitAll — заглушка, одобряющая все действия.
// Используется, когда AR_GOVERNANCE_URL не задан (dev-окружение).
type PermitAll struct{}

// Approve всегда возвращает approved=true.
func (PermitAll) Approve(_ context.Context, _, _ string, _ map[string]any) (bool, string, error) {
	return true, "", nil
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA-сертификатом.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &tls.Config{
		RootCAs: caCertPool,
	}, nil
}
