package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/iudanet/fieldsync/pkg/api"
)

//go:generate moq -out client_mock.go . ClientAPI

// ClientAPI определяет интерфейс клиента sync endpoints
type ClientAPI interface {
	// SyncBatch отправляет батч операций на POST /sync/batch
	SyncBatch(ctx context.Context, req api.SyncRequest) (*api.SyncResponse, error)

	// Changes запрашивает change feed с указанного курсора
	Changes(ctx context.Context, clientID string, since int64) (*api.ChangesResponse, error)

	// Status запрашивает состояние синхронизации устройства
	Status(ctx context.Context, clientID string) (*api.StatusResponse, error)

	// Ping проверяет доступность сервера, не запуская синхронизацию
	Ping(ctx context.Context, req api.PingRequest) (*api.PingResponse, error)
}

// ServerError is an application-level failure: the server was reached and
// answered with a non-2xx status. Anything else returned by this client is a
// transport failure and is safe to retry.
type ServerError struct {
	Message    string
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// Client представляет HTTP клиент для взаимодействия с сервером
type Client struct {
	httpClient *http.Client
	baseURL    string
	authToken  string
}

// Option настраивает Client
type Option func(*Client)

// WithAuthToken задает device token, добавляемый в заголовок Authorization
func WithAuthToken(token string) Option {
	return func(c *Client) {
		c.authToken = token
	}
}

// WithTimeout задает таймаут HTTP запросов (по умолчанию 30s)
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient создает новый API клиент
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Ограничиваем количество редиректов
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				// Копируем заголовок Authorization при редиректе
				if len(via) > 0 && via[0].Header.Get("Authorization") != "" {
					req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
				}
				return nil
			},
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// SyncBatch отправляет батч операций на сервер
func (c *Client) SyncBatch(ctx context.Context, req api.SyncRequest) (*api.SyncResponse, error) {
	var resp api.SyncResponse
	if err := c.doRequest(ctx, http.MethodPost, "/sync/batch", req, &resp); err != nil {
		return nil, fmt.Errorf("sync batch request failed: %w", err)
	}
	return &resp, nil
}

// Changes запрашивает изменения сервера после указанного курсора
func (c *Client) Changes(ctx context.Context, clientID string, since int64) (*api.ChangesResponse, error) {
	var resp api.ChangesResponse
	path := fmt.Sprintf("/sync/changes/%s?since=%d", url.PathEscape(clientID), since)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("changes request failed: %w", err)
	}
	return &resp, nil
}

// Status запрашивает состояние синхронизации устройства
func (c *Client) Status(ctx context.Context, clientID string) (*api.StatusResponse, error) {
	var resp api.StatusResponse
	path := fmt.Sprintf("/sync/status/%s", url.PathEscape(clientID))
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return &resp, nil
}

// Ping выполняет легковесную проверку связи
func (c *Client) Ping(ctx context.Context, req api.PingRequest) (*api.PingResponse, error) {
	var resp api.PingResponse
	if err := c.doRequest(ctx, http.MethodPost, "/sync/ping", req, &resp); err != nil {
		return nil, fmt.Errorf("ping request failed: %w", err)
	}
	return &resp, nil
}

// doRequest выполняет HTTP запрос
func (c *Client) doRequest(ctx context.Context, method, path string, body, result interface{}) error {
	reqURL := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Транспортная ошибка: сервер не получил запрос (или ответ потерян)
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp api.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Message != "" {
			return &ServerError{StatusCode: resp.StatusCode, Message: errResp.Message}
		}
		return &ServerError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
