// Файл: internal/clients/iiko/client.go
// Адаптер POS REST API. Единственный пакет, который знает про его эндпоинты.
// Возвращает сырые данные (map / []map) без бизнес-логики.
package iiko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"resto-backoffice/pkg/config"
	apperrors "resto-backoffice/pkg/errors"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const (
	tokenTTL       = 10 * time.Minute
	authAttempts   = 4
	authRetryDelay = 3 * time.Second
)

// Задержки между попытками GET при временных ошибках.
var getRetryDelays = []time.Duration{time.Second, 3 * time.Second, 7 * time.Second}

type ClientInterface interface {
	FetchEntities(ctx context.Context, rootType string) ([]map[string]interface{}, error)
	FetchSuppliers(ctx context.Context) ([]map[string]string, error)
	FetchDepartments(ctx context.Context) ([]map[string]string, error)
	FetchStores(ctx context.Context) ([]map[string]string, error)
	FetchGroups(ctx context.Context) ([]map[string]string, error)
	FetchProducts(ctx context.Context, includeDeleted bool) ([]map[string]interface{}, error)
	FetchProductGroups(ctx context.Context) ([]map[string]interface{}, error)
	FetchEmployees(ctx context.Context) ([]map[string]string, error)
	FetchEmployeeRoles(ctx context.Context) ([]map[string]string, error)
	FetchStockBalances(ctx context.Context, timestamp time.Time) ([]StockBalanceRow, error)
	FetchOlapBalances(ctx context.Context, from, to time.Time) ([]map[string]interface{}, error)
	FetchOlapByPreset(ctx context.Context, presetID string, from, to time.Time, departmentIDs []string) ([]map[string]interface{}, error)

	SendWriteoff(ctx context.Context, doc *WriteoffDocument) error
	SendInternalTransfer(ctx context.Context, doc *TransferDocument) error
	SendOutgoingInvoice(ctx context.Context, doc *InvoiceDocument) (*ImportResult, error)
	SendIncomingInvoice(ctx context.Context, doc *InvoiceDocument) (*ImportResult, error)
}

type Client struct {
	baseURL    string
	login      string
	sha1Pass   string
	httpClient *http.Client
	logger     *zap.Logger

	// Кеш токена на монотонных часах. refreshing сериализует обновление:
	// параллельные запросы ждут одну авторизацию, а не устраивают свою.
	mu           sync.Mutex
	token        string
	tokenExpires time.Time
	refreshing   chan struct{}
}

func NewClient(cfg config.IikoConfig, sha1Password string, logger *zap.Logger) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   15 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       120 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		ForceAttemptHTTP2:     false, // сервер не поддерживает h2
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		login:      cfg.Login,
		sha1Pass:   sha1Password,
		httpClient: &http.Client{Transport: transport, Timeout: 90 * time.Second},
		logger:     logger,
	}
}

// --- АВТОРИЗАЦИЯ ---

func (c *Client) getKey(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && time.Now().Before(c.tokenExpires) {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}

	if c.refreshing != nil {
		// Кто-то уже обновляет токен, дожидаемся его результата.
		wait := c.refreshing
		c.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.token != "" && time.Now().Before(c.tokenExpires) {
			return c.token, nil
		}
		return "", fmt.Errorf("не удалось обновить токен авторизации")
	}

	done := make(chan struct{})
	c.refreshing = done
	c.mu.Unlock()

	token, err := c.authenticate(ctx)

	c.mu.Lock()
	c.refreshing = nil
	if err == nil {
		c.token = token
		c.tokenExpires = time.Now().Add(tokenTTL)
	}
	c.mu.Unlock()
	close(done)

	return token, err
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func (c *Client) authenticate(ctx context.Context) (string, error) {
	authURL := c.baseURL + "/resto/api/auth"
	form := url.Values{"login": {c.login}, "pass": {c.sha1Pass}}

	var lastErr error
	for attempt := 1; attempt <= authAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, authURL, strings.NewReader(form.Encode()))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if attempt < authAttempts {
				c.logger.Warn("⏳ Сеть при авторизации, повтор",
					zap.Int("попытка", attempt), zap.Error(err))
				if !sleepCtx(ctx, authRetryDelay) {
					return "", ctx.Err()
				}
				continue
			}
			return "", fmt.Errorf("авторизация не удалась: %w", err)
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusForbidden && attempt < authAttempts {
			c.logger.Warn("⚠️ Лимит авторизаций (403), ждём", zap.Int("попытка", attempt))
			lastErr = apperrors.NewHTTPError(resp.StatusCode, config.MaskURL(authURL), string(body))
			if !sleepCtx(ctx, authRetryDelay) {
				return "", ctx.Err()
			}
			continue
		}
		if resp.StatusCode >= 400 {
			return "", apperrors.NewHTTPError(resp.StatusCode, config.MaskURL(authURL), string(body))
		}

		token := strings.TrimSpace(string(body))
		if token == "" {
			return "", fmt.Errorf("сервер вернул пустой токен")
		}
		c.logger.Debug("🔑 Получен новый токен, кешируем на 10 минут")
		return token, nil
	}

	return "", fmt.Errorf("авторизация не удалась после %d попыток: %w", authAttempts, lastErr)
}

// --- GET С ПОВТОРАМИ ---

// stepBackoff отдаёт фиксированную последовательность задержек.
type stepBackoff struct {
	delays []time.Duration
	idx    int
}

func (b *stepBackoff) Next() (time.Duration, bool) {
	if b.idx >= len(b.delays) {
		return 0, true
	}
	d := b.delays[b.idx]
	b.idx++
	return d, false
}

func (c *Client) getWithRetry(ctx context.Context, path string, params url.Values, label string) ([]byte, error) {
	var body []byte

	backoff := &stepBackoff{delays: getRetryDelays}
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		body, err = c.doGet(ctx, path, params)
		if err != nil && apperrors.IsTransient(err) {
			c.logger.Warn("[API] временная ошибка, повтор", zap.String("запрос", label), zap.Error(err))
			return retry.RetryableError(err)
		}
		return err
	})
	return body, err
}

func (c *Client) doGet(ctx context.Context, path string, params url.Values) ([]byte, error) {
	key, err := c.getKey(ctx)
	if err != nil {
		return nil, err
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("key", key)

	fullURL := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusForbidden {
		// Токен мог протухнуть раньше TTL, сбрасываем кеш.
		c.invalidateToken()
	}
	if resp.StatusCode >= 400 {
		return nil, apperrors.NewHTTPError(resp.StatusCode, config.MaskURL(fullURL), string(body))
	}
	return body, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	key, err := c.getKey(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации документа: %w", err)
	}

	fullURL := c.baseURL + path + "?key=" + url.QueryEscape(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, strings.NewReader(string(raw)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, apperrors.NewHTTPError(resp.StatusCode, config.MaskURL(fullURL), string(body))
	}
	return body, nil
}

func (c *Client) postXML(ctx context.Context, path string, xmlBody string) ([]byte, error) {
	key, err := c.getKey(ctx)
	if err != nil {
		return nil, err
	}

	fullURL := c.baseURL + path + "?key=" + url.QueryEscape(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, strings.NewReader(xmlBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, apperrors.NewHTTPError(resp.StatusCode, config.MaskURL(fullURL), string(body))
	}
	return body, nil
}

// --- СПРАВОЧНИКИ ---

func (c *Client) FetchEntities(ctx context.Context, rootType string) ([]map[string]interface{}, error) {
	params := url.Values{
		"rootType":       {rootType},
		"includeDeleted": {"true"},
	}

	t0 := time.Now()
	body, err := c.getWithRetry(ctx, "/resto/api/v2/entities/list", params, "entities rootType="+rootType)
	if err != nil {
		return nil, err
	}

	var data []map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("ошибка разбора ответа entities %s: %w", rootType, err)
	}

	c.logger.Info("[API] GET entities",
		zap.String("rootType", rootType),
		zap.Int("записей", len(data)),
		zap.Duration("время", time.Since(t0)))
	return data, nil
}

func (c *Client) FetchSuppliers(ctx context.Context) ([]map[string]string, error) {
	body, err := c.getWithRetry(ctx, "/resto/api/suppliers", nil, "suppliers")
	if err != nil {
		return nil, err
	}
	return parseFlatItemsXML(body, "employee")
}

func (c *Client) FetchDepartments(ctx context.Context) ([]map[string]string, error) {
	body, err := c.getWithRetry(ctx, "/resto/api/corporation/departments", nil, "departments")
	if err != nil {
		return nil, err
	}
	return parseCorporateItemsXML(body)
}

func (c *Client) FetchStores(ctx context.Context) ([]map[string]string, error) {
	body, err := c.getWithRetry(ctx, "/resto/api/corporation/stores", nil, "stores")
	if err != nil {
		return nil, err
	}
	return parseCorporateItemsXML(body)
}

func (c *Client) FetchGroups(ctx context.Context) ([]map[string]string, error) {
	body, err := c.getWithRetry(ctx, "/resto/api/corporation/groups", nil, "groups")
	if err != nil {
		return nil, err
	}
	return parseCorporateItemsXML(body)
}

func (c *Client) FetchProducts(ctx context.Context, includeDeleted bool) ([]map[string]interface{}, error) {
	params := url.Values{"includeDeleted": {fmt.Sprintf("%t", includeDeleted)}}
	body, err := c.getWithRetry(ctx, "/resto/api/v2/entities/products/list", params, "products")
	if err != nil {
		return nil, err
	}

	var data []map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("ошибка разбора списка продуктов: %w", err)
	}
	return data, nil
}

func (c *Client) FetchProductGroups(ctx context.Context) ([]map[string]interface{}, error) {
	params := url.Values{"includeDeleted": {"false"}}
	body, err := c.getWithRetry(ctx, "/resto/api/v2/entities/products/group/list", params, "product_groups")
	if err != nil {
		return nil, err
	}

	var data []map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("ошибка разбора групп продуктов: %w", err)
	}
	return data, nil
}

func (c *Client) FetchEmployees(ctx context.Context) ([]map[string]string, error) {
	params := url.Values{"includeDeleted": {"true"}}
	body, err := c.getWithRetry(ctx, "/resto/api/employees", params, "employees")
	if err != nil {
		return nil, err
	}
	return parseFlatItemsXML(body, "employee")
}

func (c *Client) FetchEmployeeRoles(ctx context.Context) ([]map[string]string, error) {
	body, err := c.getWithRetry(ctx, "/resto/api/employees/roles", nil, "employee_roles")
	if err != nil {
		return nil, err
	}
	return parseFlatItemsXML(body, "role")
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
