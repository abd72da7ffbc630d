// Файл: internal/clients/fintablo/client.go
// Адаптер финансового API. Токен постоянный (Bearer), пагинации нет:
// каждый справочник отдаётся целиком одним GET /v1/{endpoint}.
package fintablo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"resto-backoffice/pkg/config"
	apperrors "resto-backoffice/pkg/errors"

	"go.uber.org/zap"
)

const (
	// Сервис режет частые запросы, поэтому держим не больше
	// четырёх одновременных и уважаем 429.
	maxConcurrent    = 4
	rateLimitRetries = 5
	rateLimitBase    = 2 * time.Second
)

// Какой endpoint обслуживает какой справочник. Ключи совпадают
// с entities.FinanceResources, значения — с путями API.
var resourceEndpoints = map[string]string{
	"category":          "category",
	"moneybag":          "moneybag",
	"partner":           "partner",
	"direction":         "direction",
	"moneybag_group":    "moneybag-group",
	"goods":             "goods",
	"obtaining":         "obtaining",
	"job":               "job",
	"deal":              "deal",
	"obligation_status": "obligation-status",
	"obligation":        "obligation",
	"pnl_category":      "pnl-category",
	"employee":          "employees",
}

type ClientInterface interface {
	FetchResource(ctx context.Context, resource string) ([]map[string]interface{}, error)
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
	sem        chan struct{}
}

func NewClient(cfg config.FintabloConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		token:      cfg.APIToken,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
		sem:        make(chan struct{}, maxConcurrent),
	}
}

// FetchResource скачивает справочник целиком. Неизвестное имя — ошибка
// конфигурации, а не данных.
func (c *Client) FetchResource(ctx context.Context, resource string) ([]map[string]interface{}, error) {
	endpoint, ok := resourceEndpoints[resource]
	if !ok {
		return nil, fmt.Errorf("неизвестный справочник финансового API: %q", resource)
	}
	return c.fetchList(ctx, endpoint, resource)
}

func (c *Client) fetchList(ctx context.Context, endpoint, label string) ([]map[string]interface{}, error) {
	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	fullURL := c.baseURL + "/v1/" + endpoint

	t0 := time.Now()
	var lastErr error
	for attempt := 1; attempt <= rateLimitRetries; attempt++ {
		body, status, err := c.doGet(ctx, fullURL)
		if err != nil {
			return nil, err
		}

		if status == http.StatusTooManyRequests {
			lastErr = apperrors.NewHTTPError(status, config.MaskURL(fullURL), string(body))
			if attempt == rateLimitRetries {
				break
			}
			delay := rateLimitBase * time.Duration(1<<(attempt-1))
			c.logger.Warn("⏳ Финансовый API просит подождать (429)",
				zap.String("справочник", label),
				zap.Int("попытка", attempt),
				zap.Duration("пауза", delay))
			if !sleepCtx(ctx, delay) {
				return nil, ctx.Err()
			}
			continue
		}
		if status >= 400 {
			return nil, apperrors.NewHTTPError(status, config.MaskURL(fullURL), string(body))
		}

		items, err := decodeItems(body)
		if err != nil {
			return nil, fmt.Errorf("ошибка разбора справочника %s: %w", label, err)
		}

		c.logger.Info("[API] GET "+label,
			zap.Int("записей", len(items)), zap.Duration("время", time.Since(t0)))
		return items, nil
	}

	c.logger.Error("💥 Финансовый API так и не ответил",
		zap.String("справочник", label), zap.Int("попыток", rateLimitRetries))
	return nil, lastErr
}

func (c *Client) doGet(ctx context.Context, fullURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

// Ответ всегда обёртка {"status":200,"items":[...]}; items может отсутствовать
// у пустого справочника.
func decodeItems(body []byte) ([]map[string]interface{}, error) {
	var payload struct {
		Status int                      `json:"status"`
		Items  []map[string]interface{} `json:"items"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	if payload.Items == nil {
		return []map[string]interface{}{}, nil
	}
	return payload.Items, nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
