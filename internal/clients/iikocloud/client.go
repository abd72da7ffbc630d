// Файл: internal/clients/iikocloud/client.go
// Адаптер облачного API (api-ru.iiko.services). Живёт отдельно от серверного
// REST API: другой хост, другая авторизация, всё через POST с JSON.
// Токен обновляет внешний процесс в iiko_access_tokens, мы его только читаем.
package iikocloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"resto-backoffice/internal/repositories"
	"resto-backoffice/pkg/config"
	apperrors "resto-backoffice/pkg/errors"

	"go.uber.org/zap"
)

type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type TerminalGroup struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// StopListEntry — позиция стоп-листа одной терминальной группы.
type StopListEntry struct {
	ProductID       string
	Balance         float64
	TerminalGroupID string
	OrganizationID  string
	SKU             string
	DateAdd         string
}

type ClientInterface interface {
	GetOrganizations(ctx context.Context) ([]Organization, error)
	GetTerminalGroups(ctx context.Context, orgID string) ([]TerminalGroup, error)
	GetStopLists(ctx context.Context, orgID string, terminalGroupIDs []string) ([]StopListEntry, error)
	GetWebhookSettings(ctx context.Context, orgID string) (map[string]interface{}, error)
	RegisterWebhook(ctx context.Context, orgID, webhookURL string) error
	VerifyWebhookAuth(authHeader string) bool
}

type Client struct {
	baseURL       string
	webhookSecret string
	tokens        repositories.CloudTokenRepositoryInterface
	httpClient    *http.Client
	logger        *zap.Logger
}

func NewClient(cfg config.CloudConfig, tokens repositories.CloudTokenRepositoryInterface, logger *zap.Logger) *Client {
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		webhookSecret: cfg.WebhookSecret,
		tokens:        tokens,
		httpClient:    &http.Client{Timeout: 45 * time.Second},
		logger:        logger,
	}
}

func (c *Client) postJSON(ctx context.Context, path string, payload interface{}, out interface{}) error {
	token, err := c.tokens.Latest(ctx)
	if err != nil {
		return fmt.Errorf("токен облачного API недоступен, проверьте внешний cron: %w", err)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	fullURL := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return apperrors.NewHTTPError(resp.StatusCode, config.MaskURL(fullURL), string(body))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("ошибка разбора ответа %s: %w", path, err)
	}
	return nil
}

func (c *Client) GetOrganizations(ctx context.Context) ([]Organization, error) {
	var payload struct {
		Organizations []Organization `json:"organizations"`
	}
	if err := c.postJSON(ctx, "/api/1/organizations", map[string]interface{}{}, &payload); err != nil {
		return nil, err
	}
	c.logger.Info("[CLOUD] Получены организации", zap.Int("записей", len(payload.Organizations)))
	return payload.Organizations, nil
}

func (c *Client) GetTerminalGroups(ctx context.Context, orgID string) ([]TerminalGroup, error) {
	var payload struct {
		TerminalGroups []struct {
			OrganizationID string          `json:"organizationId"`
			Items          []TerminalGroup `json:"items"`
		} `json:"terminalGroups"`
	}
	body := map[string]interface{}{"organizationIds": []string{orgID}}
	if err := c.postJSON(ctx, "/api/1/terminal_groups", body, &payload); err != nil {
		return nil, err
	}

	var groups []TerminalGroup
	for _, org := range payload.TerminalGroups {
		groups = append(groups, org.Items...)
	}
	return groups, nil
}

// GetStopLists скачивает стоп-листы и разворачивает вложенную структуру
// организация -> терминальная группа -> позиции в плоский список.
func (c *Client) GetStopLists(ctx context.Context, orgID string, terminalGroupIDs []string) ([]StopListEntry, error) {
	var payload struct {
		TerminalGroupStopLists []struct {
			OrganizationID string `json:"organizationId"`
			Items          []struct {
				TerminalGroupID string `json:"terminalGroupId"`
				Items           []struct {
					ProductID string  `json:"productId"`
					Balance   float64 `json:"balance"`
					SKU       string  `json:"sku"`
					DateAdd   string  `json:"dateAdd"`
				} `json:"items"`
			} `json:"items"`
		} `json:"terminalGroupStopLists"`
	}
	body := map[string]interface{}{
		"organizationIds":  []string{orgID},
		"terminalGroupIds": terminalGroupIDs,
	}

	t0 := time.Now()
	if err := c.postJSON(ctx, "/api/1/stop_lists", body, &payload); err != nil {
		return nil, err
	}

	var entries []StopListEntry
	for _, orgGroup := range payload.TerminalGroupStopLists {
		orgIDVal := orgGroup.OrganizationID
		if orgIDVal == "" {
			orgIDVal = orgID
		}
		for _, tg := range orgGroup.Items {
			for _, item := range tg.Items {
				entries = append(entries, StopListEntry{
					ProductID:       item.ProductID,
					Balance:         item.Balance,
					TerminalGroupID: tg.TerminalGroupID,
					OrganizationID:  orgIDVal,
					SKU:             item.SKU,
					DateAdd:         item.DateAdd,
				})
			}
		}
	}

	c.logger.Info("[CLOUD] Получен стоп-лист",
		zap.String("организация", orgID),
		zap.Int("позиций", len(entries)),
		zap.Duration("время", time.Since(t0)))
	return entries, nil
}

func (c *Client) GetWebhookSettings(ctx context.Context, orgID string) (map[string]interface{}, error) {
	var payload map[string]interface{}
	body := map[string]interface{}{"organizationId": orgID}
	if err := c.postJSON(ctx, "/api/1/webhooks/settings", body, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// RegisterWebhook подписывает организацию на закрытие заказов.
// Именно закрытие, а не оплата: списание со склада происходит при закрытии.
func (c *Client) RegisterWebhook(ctx context.Context, orgID, webhookURL string) error {
	closedOnly := map[string]interface{}{
		"orderStatuses": []string{"Closed"},
		"errors":        false,
	}
	body := map[string]interface{}{
		"organizationId": orgID,
		"webHooksUri":    webhookURL,
		"authToken":      c.webhookSecret,
		"webHooksFilter": map[string]interface{}{
			"deliveryOrderFilter": closedOnly,
			"tableOrderFilter":    closedOnly,
		},
	}

	if err := c.postJSON(ctx, "/api/1/webhooks/update_settings", body, nil); err != nil {
		return err
	}
	c.logger.Info("✅ Вебхук зарегистрирован",
		zap.String("организация", orgID), zap.String("url", webhookURL))
	return nil
}

// VerifyWebhookAuth сверяет заголовок входящего вебхука с секретом регистрации.
// Сервер шлёт либо "Bearer <token>", либо голый токен.
func (c *Client) VerifyWebhookAuth(authHeader string) bool {
	if authHeader == "" || c.webhookSecret == "" {
		return false
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	return token == c.webhookSecret
}
