// Файл: internal/services/invoice-service.go
// Расходные накладные и их шаблоны. Шаблон фиксирует склад, контрагента
// и список позиций; по нему накладная собирается за пару нажатий.
package services

import (
	"context"
	"fmt"
	"strings"

	"resto-backoffice/internal/clients/iiko"
	"resto-backoffice/internal/entities"
	"resto-backoffice/internal/repositories"
	apperrors "resto-backoffice/pkg/errors"
	"resto-backoffice/pkg/localtime"

	"go.uber.org/zap"
)

type InvoiceServiceInterface interface {
	SaveTemplate(ctx context.Context, tpl *entities.InvoiceTemplate) (int64, error)
	ListTemplates(ctx context.Context, ownerChat int64) ([]entities.InvoiceTemplate, error)
	FindTemplate(ctx context.Context, id int64) (*entities.InvoiceTemplate, error)
	DeleteTemplate(ctx context.Context, id int64, ownerChat int64) error
	SearchSuppliers(ctx context.Context, needle string, limit int) ([]entities.Supplier, error)
	// SubmitOutgoing проводит расходную накладную. processed управляет
	// статусом документа: заявки проводятся сразу, ручные уходят черновиком.
	SubmitOutgoing(ctx context.Context, inv *OutgoingInvoice) (*iiko.ImportResult, error)
}

// OutgoingInvoice — собранная в диалоге расходная накладная.
type OutgoingInvoice struct {
	StoreID        string
	CounteragentID string
	Comment        string
	Items          []entities.WriteoffItem
	Processed      bool
}

type invoiceService struct {
	templates repositories.InvoiceTemplateRepositoryInterface
	dicts     repositories.DictionaryRepositoryInterface
	pos       iiko.ClientInterface
	logger    *zap.Logger
}

func NewInvoiceService(
	templates repositories.InvoiceTemplateRepositoryInterface,
	dicts repositories.DictionaryRepositoryInterface,
	pos iiko.ClientInterface,
	logger *zap.Logger,
) InvoiceServiceInterface {
	return &invoiceService{templates: templates, dicts: dicts, pos: pos, logger: logger}
}

func (s *invoiceService) SaveTemplate(ctx context.Context, tpl *entities.InvoiceTemplate) (int64, error) {
	if strings.TrimSpace(tpl.Name) == "" {
		return 0, apperrors.NewInvalidInputError("у шаблона должно быть имя")
	}
	if len(tpl.Items) == 0 {
		return 0, apperrors.NewInvalidInputError("шаблон без позиций бесполезен")
	}
	id, err := s.templates.Save(ctx, tpl)
	if err != nil {
		return 0, err
	}
	s.logger.Info("📦 Шаблон накладной сохранён",
		zap.Int64("id", id), zap.String("имя", tpl.Name), zap.Int("позиций", len(tpl.Items)))
	return id, nil
}

func (s *invoiceService) ListTemplates(ctx context.Context, ownerChat int64) ([]entities.InvoiceTemplate, error) {
	return s.templates.ListByOwner(ctx, ownerChat)
}

func (s *invoiceService) FindTemplate(ctx context.Context, id int64) (*entities.InvoiceTemplate, error) {
	return s.templates.Find(ctx, id)
}

func (s *invoiceService) DeleteTemplate(ctx context.Context, id int64, ownerChat int64) error {
	return s.templates.Delete(ctx, id, ownerChat)
}

func (s *invoiceService) SearchSuppliers(ctx context.Context, needle string, limit int) ([]entities.Supplier, error) {
	return s.dicts.SearchSuppliers(ctx, needle, limit)
}

func (s *invoiceService) SubmitOutgoing(ctx context.Context, inv *OutgoingInvoice) (*iiko.ImportResult, error) {
	if len(inv.Items) == 0 {
		return nil, apperrors.NewInvalidInputError("накладная без позиций не отправляется")
	}

	status := "NEW"
	if inv.Processed {
		status = "PROCESSED"
	}

	now := localtime.Now()
	doc := &iiko.InvoiceDocument{
		DocumentNumber: fmt.Sprintf("TG-%s", now.Format("20060102-150405")),
		DateIncoming:   now.Format("2006-01-02"),
		Status:         status,
		Comment:        inv.Comment,
		StoreID:        inv.StoreID,
		CounteragentID: inv.CounteragentID,
	}
	for _, it := range inv.Items {
		doc.Items = append(doc.Items, iiko.DocumentItem{ProductID: it.ProductID, Amount: it.Amount})
	}

	res, err := s.pos.SendOutgoingInvoice(ctx, doc)
	if err != nil {
		return nil, err
	}
	if !res.OK {
		return res, fmt.Errorf("%w: %s", apperrors.ErrDocumentInvalid, res.Error)
	}

	s.logger.Info("📦 Расходная накладная проведена",
		zap.String("номер", doc.DocumentNumber), zap.String("статус", status),
		zap.Int("позиций", len(doc.Items)))
	return res, nil
}
