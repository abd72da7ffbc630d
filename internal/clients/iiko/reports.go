// Файл: internal/clients/iiko/reports.go
package iiko

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// StockBalanceRow — строка отчёта остатков по складам.
type StockBalanceRow struct {
	Store   string          `json:"store"`
	Product string          `json:"product"`
	Amount  decimal.Decimal `json:"amount"`
	Sum     decimal.Decimal `json:"sum"`
}

// FetchStockBalances запрашивает остатки на учётную дату-время.
// Время обязательно: дата без времени трактуется сервером как начало дня,
// и сегодняшние проводки в отчёт не попадают.
func (c *Client) FetchStockBalances(ctx context.Context, timestamp time.Time) ([]StockBalanceRow, error) {
	params := url.Values{"timestamp": {timestamp.Format("2006-01-02T15:04:05")}}

	t0 := time.Now()
	body, err := c.getWithRetry(ctx, "/resto/api/v2/reports/balance/stores", params, "stock_balances")
	if err != nil {
		return nil, err
	}

	var rows []StockBalanceRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("ошибка разбора остатков: %w", err)
	}

	c.logger.Info("[API] GET stock_balances",
		zap.Int("записей", len(rows)), zap.Duration("время", time.Since(t0)))
	return rows, nil
}

// Измерения и метрики отчёта остатков v1 с иерархией групп.
var (
	olapBalanceDimensions = []string{"Account.Name", "Product.TopParent", "Product.Name", "Product.MeasureUnit"}
	olapBalanceMetrics    = []string{"FinalBalance.Amount", "FinalBalance.Money"}
)

// FetchOlapBalances — отчёт TRANSACTIONS v1 (даты в формате DD.MM.YYYY).
// Ответ бывает и JSON, и XML: смотрим на содержимое.
func (c *Client) FetchOlapBalances(ctx context.Context, from, to time.Time) ([]map[string]interface{}, error) {
	params := url.Values{
		"report": {"TRANSACTIONS"},
		"from":   {from.Format("02.01.2006")},
		"to":     {to.Format("02.01.2006")},
	}
	for _, dim := range olapBalanceDimensions {
		params.Add("groupRow", dim)
	}
	for _, m := range olapBalanceMetrics {
		params.Add("agr", m)
	}

	return c.fetchOlapV1(ctx, params, "olap_balances")
}

func (c *Client) fetchOlapV1(ctx context.Context, params url.Values, label string) ([]map[string]interface{}, error) {
	t0 := time.Now()
	body, err := c.getWithRetry(ctx, "/resto/api/reports/olap", params, label)
	if err != nil {
		return nil, err
	}

	rows, err := decodeOlapBody(body)
	if err != nil {
		return nil, err
	}

	c.logger.Info("[API] GET "+label,
		zap.Int("строк", len(rows)), zap.Duration("время", time.Since(t0)))
	return rows, nil
}

func decodeOlapBody(body []byte) ([]map[string]interface{}, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var payload struct {
			Data []map[string]interface{} `json:"data"`
			Rows []map[string]interface{} `json:"rows"`
		}
		if err := json.Unmarshal(body, &payload); err == nil {
			if payload.Data != nil {
				return payload.Data, nil
			}
			if payload.Rows != nil {
				return payload.Rows, nil
			}
		}
		var plain []map[string]interface{}
		if err := json.Unmarshal(body, &plain); err == nil {
			return plain, nil
		}
	}
	return parseOlapRowsXML(body)
}

// FetchOlapByPreset — отчёт v2 по сохранённому пресету.
func (c *Client) FetchOlapByPreset(ctx context.Context, presetID string, from, to time.Time, departmentIDs []string) ([]map[string]interface{}, error) {
	params := url.Values{
		"dateFrom": {from.Format("2006-01-02T15:04:05")},
		"dateTo":   {to.Format("2006-01-02T15:04:05")},
		"summary":  {"true"},
	}
	if len(departmentIDs) > 0 {
		params.Set("departmentIds", strings.Join(departmentIDs, ","))
	}

	t0 := time.Now()
	body, err := c.getWithRetry(ctx, "/resto/api/v2/reports/olap/byPresetId/"+presetID, params, "olap_preset")
	if err != nil {
		return nil, err
	}

	var payload struct {
		Data []map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("ошибка разбора OLAP-пресета: %w", err)
	}

	c.logger.Info("[API] GET olap_preset",
		zap.Int("строк", len(payload.Data)), zap.Duration("время", time.Since(t0)))
	return payload.Data, nil
}
