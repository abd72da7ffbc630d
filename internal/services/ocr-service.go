// Файл: internal/services/ocr-service.go
// Распознавание бумажных накладных по фото. Сам распознаватель — внешняя
// зависимость за непрозрачным интерфейсом: сервису важен только документ
// и предупреждения. Распознанный черновик сопоставляется с номенклатурой
// и после подтверждения уходит приходной накладной.
package services

import (
	"context"
	"fmt"
	"strings"

	"resto-backoffice/internal/clients/iiko"
	"resto-backoffice/internal/repositories"
	apperrors "resto-backoffice/pkg/errors"
	"resto-backoffice/pkg/localtime"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RecognizedItem — строка распознанной накладной.
type RecognizedItem struct {
	Name  string          `json:"name"`
	Qty   decimal.Decimal `json:"qty"`
	Price decimal.Decimal `json:"price"`
	Sum   decimal.Decimal `json:"sum"`
	// ProductID заполняется при сопоставлении с номенклатурой.
	ProductID string `json:"product_id,omitempty"`
}

// RecognizedDocument — результат распознавания фото накладной.
type RecognizedDocument struct {
	SupplierName string           `json:"supplier_name"`
	Number       string           `json:"number"`
	Date         string           `json:"date"`
	Items        []RecognizedItem `json:"items"`
	// VATRateUnknown взводится, когда распознаватель не уверен в ставке
	// НДС: суммы в этом случае проверять бессмысленно.
	VATRateUnknown bool `json:"vat_rate_unknown"`
}

// Recognizer — внешний распознаватель накладных.
type Recognizer interface {
	Recognize(ctx context.Context, photos [][]byte) (*RecognizedDocument, []string, error)
}

type OCRServiceInterface interface {
	// Recognize прогоняет фото через распознаватель и проверяет арифметику.
	Recognize(ctx context.Context, photos [][]byte) (*RecognizedDocument, []string, error)
	// MatchProducts сопоставляет распознанные имена с номенклатурой.
	// Возвращает имена, которые сопоставить не удалось.
	MatchProducts(ctx context.Context, doc *RecognizedDocument) ([]string, error)
	// SubmitIncoming проводит приходную накладную по сопоставленному документу.
	SubmitIncoming(ctx context.Context, doc *RecognizedDocument, storeID, supplierID string) (*iiko.ImportResult, error)
}

type ocrService struct {
	recognizer Recognizer
	dicts      repositories.DictionaryRepositoryInterface
	pos        iiko.ClientInterface
	logger     *zap.Logger
}

func NewOCRService(recognizer Recognizer, dicts repositories.DictionaryRepositoryInterface, pos iiko.ClientInterface, logger *zap.Logger) OCRServiceInterface {
	return &ocrService{recognizer: recognizer, dicts: dicts, pos: pos, logger: logger}
}

func (s *ocrService) Recognize(ctx context.Context, photos [][]byte) (*RecognizedDocument, []string, error) {
	if s.recognizer == nil {
		return nil, nil, apperrors.NewInvalidInputError("распознавание накладных не настроено")
	}
	if len(photos) == 0 {
		return nil, nil, apperrors.NewInvalidInputError("нет фото для распознавания")
	}

	doc, warnings, err := s.recognizer.Recognize(ctx, photos)
	if err != nil {
		return nil, nil, err
	}

	warnings = append(warnings, CheckSums(doc)...)
	s.logger.Info("📑 Накладная распознана",
		zap.String("поставщик", doc.SupplierName), zap.Int("позиций", len(doc.Items)),
		zap.Int("предупреждений", len(warnings)))
	return doc, warnings, nil
}

// CheckSums сверяет количество, цену и сумму каждой строки. При неизвестной
// ставке НДС проверка отключается: расхождения в суммах ожидаемы и только
// пугают бухгалтера.
func CheckSums(doc *RecognizedDocument) []string {
	if doc.VATRateUnknown {
		return nil
	}

	var warnings []string
	for i, it := range doc.Items {
		if it.Qty.IsZero() || it.Price.IsZero() || it.Sum.IsZero() {
			continue
		}
		expected := it.Qty.Mul(it.Price)
		// Копеечные расхождения от округления не считаются ошибкой.
		if expected.Sub(it.Sum).Abs().GreaterThan(decimal.NewFromFloat(0.5)) {
			warnings = append(warnings, fmt.Sprintf(
				"строка %d (%s): %s × %s = %s, в накладной %s",
				i+1, it.Name, it.Qty, it.Price, expected.StringFixed(2), it.Sum.StringFixed(2)))
		}
	}
	return warnings
}

func (s *ocrService) MatchProducts(ctx context.Context, doc *RecognizedDocument) ([]string, error) {
	var unmatched []string
	for i := range doc.Items {
		name := strings.TrimSpace(doc.Items[i].Name)
		if name == "" {
			continue
		}
		found, err := s.dicts.SearchProducts(ctx, name, nil, 1)
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			unmatched = append(unmatched, name)
			continue
		}
		doc.Items[i].ProductID = found[0].ID
	}
	return unmatched, nil
}

func (s *ocrService) SubmitIncoming(ctx context.Context, doc *RecognizedDocument, storeID, supplierID string) (*iiko.ImportResult, error) {
	invoice := &iiko.InvoiceDocument{
		DocumentNumber: doc.Number,
		DateIncoming:   localtime.Now().Format("2006-01-02"),
		Status:         "NEW",
		Comment:        fmt.Sprintf("Распознано по фото, поставщик: %s", doc.SupplierName),
		StoreID:        storeID,
		CounteragentID: supplierID,
	}
	for _, it := range doc.Items {
		if it.ProductID == "" {
			return nil, apperrors.NewInvalidInputError("позиция %q не сопоставлена с номенклатурой", it.Name)
		}
		invoice.Items = append(invoice.Items, iiko.DocumentItem{
			ProductID: it.ProductID,
			Amount:    it.Qty,
			Price:     it.Price,
			Sum:       it.Sum,
		})
	}
	if len(invoice.Items) == 0 {
		return nil, apperrors.NewInvalidInputError("в накладной нет позиций")
	}

	res, err := s.pos.SendIncomingInvoice(ctx, invoice)
	if err != nil {
		return nil, err
	}
	if !res.OK {
		return res, fmt.Errorf("%w: %s", apperrors.ErrDocumentInvalid, res.Error)
	}

	s.logger.Info("📑 Приходная накладная проведена",
		zap.String("номер", invoice.DocumentNumber), zap.Int("позиций", len(invoice.Items)))
	return res, nil
}
