// Файл: internal/clients/iiko/documents.go
package iiko

import (
	"context"
	"fmt"
	"time"

	apperrors "resto-backoffice/pkg/errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WriteoffDocument — акт списания. ID генерируется клиентом заранее и делает
// повтор POST безопасным: сервер отбрасывает дубль с тем же идентификатором.
type WriteoffDocument struct {
	ID           string         `json:"id"`
	DateIncoming string         `json:"dateIncoming"`
	Status       string         `json:"status"`
	Comment      string         `json:"comment,omitempty"`
	StoreID      string         `json:"storeId"`
	AccountID    string         `json:"accountId"`
	Items        []DocumentItem `json:"items"`
}

type DocumentItem struct {
	ProductID      string          `json:"productId"`
	ProductArticle string          `json:"-"`
	Amount         decimal.Decimal `json:"amount"`
	MeasureUnitID  string          `json:"measureUnitId,omitempty"`
	Price          decimal.Decimal `json:"-"`
	Sum            decimal.Decimal `json:"-"`
}

// TransferDocument — внутреннее перемещение между складами.
type TransferDocument struct {
	DateIncoming string         `json:"dateIncoming"`
	Status       string         `json:"status"`
	Comment      string         `json:"comment,omitempty"`
	StoreFromID  string         `json:"storeFromId"`
	StoreToID    string         `json:"storeToId"`
	Items        []DocumentItem `json:"items"`
}

// InvoiceDocument — накладная (приходная или расходная) для XML-импорта.
type InvoiceDocument struct {
	DocumentNumber string
	DateIncoming   string
	Status         string
	Comment        string
	StoreID        string
	CounteragentID string
	Items          []DocumentItem
}

type ImportResult struct {
	OK             bool
	Error          string
	DocumentNumber string
	Response       string
}

// Повторы POST списания: только потому, что id документа фиксирован.
var writeoffBackoff = []time.Duration{2 * time.Second, 5 * time.Second}

func (c *Client) SendWriteoff(ctx context.Context, doc *WriteoffDocument) error {
	c.logger.Info("[API] POST writeoff",
		zap.String("id", doc.ID),
		zap.String("склад", doc.StoreID),
		zap.String("счёт", doc.AccountID),
		zap.Int("позиций", len(doc.Items)))

	var lastErr error
	for attempt := 0; attempt <= len(writeoffBackoff); attempt++ {
		_, err := c.postJSON(ctx, "/resto/api/v2/documents/writeoff", doc)
		if err == nil {
			c.logger.Info("[API] POST writeoff OK", zap.String("id", doc.ID))
			return nil
		}

		lastErr = err
		if attempt == len(writeoffBackoff) || !apperrors.IsTransient(err) {
			c.logger.Error("[API] POST writeoff не прошёл",
				zap.String("id", doc.ID), zap.Int("попыток", attempt+1), zap.Error(err))
			return err
		}

		delay := writeoffBackoff[attempt]
		c.logger.Warn("[API] POST writeoff повтор",
			zap.String("id", doc.ID), zap.Duration("через", delay), zap.Error(err))
		if !sleepCtx(ctx, delay) {
			return ctx.Err()
		}
	}
	return lastErr
}

func (c *Client) SendInternalTransfer(ctx context.Context, doc *TransferDocument) error {
	c.logger.Info("[API] POST internalTransfer",
		zap.String("откуда", doc.StoreFromID),
		zap.String("куда", doc.StoreToID),
		zap.Int("позиций", len(doc.Items)))

	_, err := c.postJSON(ctx, "/resto/api/v2/documents/internalTransfer", doc)
	if err != nil {
		return err
	}
	c.logger.Info("[API] POST internalTransfer OK")
	return nil
}

func (c *Client) SendOutgoingInvoice(ctx context.Context, doc *InvoiceDocument) (*ImportResult, error) {
	xmlBody := buildOutgoingInvoiceXML(doc)

	c.logger.Info("[API] POST outgoingInvoice (XML import)",
		zap.String("склад", doc.StoreID),
		zap.String("контрагент", doc.CounteragentID),
		zap.Int("позиций", len(doc.Items)))

	body, err := c.postXML(ctx, "/resto/api/documents/import/outgoingInvoice", xmlBody)
	if err != nil {
		return nil, err
	}

	result := parseImportResult(body)
	if !result.OK {
		c.logger.Error("[API] outgoingInvoice отклонена валидацией",
			zap.String("документ", result.DocumentNumber), zap.String("ошибка", result.Error))
		return result, fmt.Errorf("%w: %s", apperrors.ErrDocumentInvalid, result.Error)
	}
	return result, nil
}

func (c *Client) SendIncomingInvoice(ctx context.Context, doc *InvoiceDocument) (*ImportResult, error) {
	xmlBody := buildIncomingInvoiceXML(doc)

	c.logger.Info("[API] POST incomingInvoice (XML import)",
		zap.String("склад", doc.StoreID),
		zap.String("поставщик", doc.CounteragentID),
		zap.Int("позиций", len(doc.Items)))

	body, err := c.postXML(ctx, "/resto/api/documents/import/incomingInvoice", xmlBody)
	if err != nil {
		return nil, err
	}

	result := parseImportResult(body)
	if !result.OK {
		c.logger.Error("[API] incomingInvoice отклонена валидацией",
			zap.String("документ", result.DocumentNumber), zap.String("ошибка", result.Error))
		return result, fmt.Errorf("%w: %s", apperrors.ErrDocumentInvalid, result.Error)
	}
	return result, nil
}
