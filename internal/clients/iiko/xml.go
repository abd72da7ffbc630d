// Файл: internal/clients/iiko/xml.go
// Разбор и сборка XML старого REST API. Справочники отдаются плоскими
// элементами, но внутри айтема встречаются одноимённые вложенные теги-флаги
// (<employee>false</employee> внутри <employee>), поэтому айтемы берём только
// на первом уровне, а поля — только прямые дочерние элементы.
package iiko

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// parseFlatItemsXML разбирает <root><item>...поля...</item>...</root>.
func parseFlatItemsXML(data []byte, itemTag string) ([]map[string]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var result []map[string]string
	depth := 0
	var current map[string]string
	var fieldName string
	var fieldValue strings.Builder

	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("ошибка разбора XML (%s): %w", itemTag, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch depth {
			case 2:
				if t.Name.Local == itemTag {
					current = make(map[string]string)
				}
			case 3:
				if current != nil {
					fieldName = t.Name.Local
					fieldValue.Reset()
				}
			}
		case xml.CharData:
			if depth == 3 && current != nil && fieldName != "" {
				fieldValue.Write(t)
			}
		case xml.EndElement:
			switch depth {
			case 3:
				if current != nil && fieldName != "" {
					current[fieldName] = strings.TrimSpace(fieldValue.String())
					fieldName = ""
				}
			case 2:
				if current != nil {
					result = append(result, current)
					current = nil
				}
			}
			depth--
		}
	}
	return result, nil
}

// parseCorporateItemsXML собирает corporateItemDto и groupDto на любой глубине.
// Полями становятся только листовые дочерние элементы.
func parseCorporateItemsXML(data []byte) ([]map[string]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var result []map[string]string
	var current map[string]string
	itemDepth := 0
	depth := 0
	var fieldName string
	var fieldValue strings.Builder

	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("ошибка разбора corporate XML: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			name := t.Name.Local
			if current == nil && (name == "corporateItemDto" || name == "groupDto") {
				current = make(map[string]string)
				itemDepth = depth
			} else if current != nil && depth == itemDepth+1 {
				fieldName = name
				fieldValue.Reset()
			} else if current != nil && depth > itemDepth+1 {
				// У поля нашлись вложенные элементы — это не листовое поле.
				fieldName = ""
			}
		case xml.CharData:
			if current != nil && depth == itemDepth+1 && fieldName != "" {
				fieldValue.Write(t)
			}
		case xml.EndElement:
			if current != nil {
				if depth == itemDepth+1 && fieldName != "" {
					current[fieldName] = strings.TrimSpace(fieldValue.String())
					fieldName = ""
				} else if depth == itemDepth {
					result = append(result, current)
					current = nil
				}
			}
			depth--
		}
	}
	return result, nil
}

// parseOlapRowsXML разбирает отчёт v1: <rows><r><Account.Name>..</...></r></rows>.
// Числовые значения приводятся к int64/float64, пустые становятся nil.
func parseOlapRowsXML(data []byte) ([]map[string]interface{}, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var result []map[string]interface{}
	depth := 0
	var current map[string]interface{}
	var fieldName string
	var fieldValue strings.Builder

	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("ошибка разбора OLAP XML: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 2 && t.Name.Local == "r" {
				current = make(map[string]interface{})
			} else if depth == 3 && current != nil {
				fieldName = t.Name.Local
				fieldValue.Reset()
			}
		case xml.CharData:
			if depth == 3 && current != nil && fieldName != "" {
				fieldValue.Write(t)
			}
		case xml.EndElement:
			switch depth {
			case 3:
				if current != nil && fieldName != "" {
					current[fieldName] = castOlapValue(fieldValue.String())
					fieldName = ""
				}
			case 2:
				if current != nil {
					result = append(result, current)
					current = nil
				}
			}
			depth--
		}
	}
	return result, nil
}

func castOlapValue(raw string) interface{} {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return f
	}
	return text
}

// --- СБОРКА НАКЛАДНЫХ ---

type xmlBuilder struct {
	sb strings.Builder
}

func (b *xmlBuilder) tag(name, value string) {
	b.sb.WriteString("<" + name + ">")
	_ = xml.EscapeText(&b.sb, []byte(value))
	b.sb.WriteString("</" + name + ">")
}

func (b *xmlBuilder) open(name string)  { b.sb.WriteString("<" + name + ">") }
func (b *xmlBuilder) close(name string) { b.sb.WriteString("</" + name + ">") }
func (b *xmlBuilder) String() string    { return b.sb.String() }

// buildOutgoingInvoiceXML — расходная накладная. DTO расходной использует
// другие имена тегов, чем приходная: defaultStoreId, counteragentId, productId.
func buildOutgoingInvoiceXML(doc *InvoiceDocument) string {
	b := &xmlBuilder{}
	b.sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.open("document")
	b.tag("documentNumber", doc.DocumentNumber)
	b.tag("dateIncoming", doc.DateIncoming)
	b.tag("useDefaultDocumentTime", "false")
	b.tag("status", doc.Status)
	if doc.Comment != "" {
		b.tag("comment", doc.Comment)
	}
	b.tag("defaultStoreId", doc.StoreID)
	b.tag("counteragentId", doc.CounteragentID)

	b.open("items")
	for idx, item := range doc.Items {
		b.open("item")
		b.tag("num", strconv.Itoa(idx+1))
		b.tag("productId", item.ProductID)
		b.tag("productArticle", "")
		b.tag("amount", item.Amount.Round(4).String())
		if item.MeasureUnitID != "" {
			b.tag("amountUnit", item.MeasureUnitID)
		}
		b.tag("price", item.Price.Round(2).String())
		b.tag("sum", item.Sum.Round(2).String())
		b.close("item")
	}
	b.close("items")
	b.close("document")
	return b.String()
}

// buildIncomingInvoiceXML — приходная накладная: defaultStore, supplier, product.
func buildIncomingInvoiceXML(doc *InvoiceDocument) string {
	b := &xmlBuilder{}
	b.sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.open("document")
	b.tag("documentNumber", doc.DocumentNumber)
	b.tag("dateIncoming", doc.DateIncoming)
	b.tag("useDefaultDocumentTime", "false")
	b.tag("status", doc.Status)
	if doc.Comment != "" {
		b.tag("comment", doc.Comment)
	}
	b.tag("defaultStore", doc.StoreID)
	b.tag("supplier", doc.CounteragentID)

	b.open("items")
	for idx, item := range doc.Items {
		b.open("item")
		b.tag("num", strconv.Itoa(idx+1))
		b.tag("product", item.ProductID)
		b.tag("productArticle", item.ProductArticle)
		b.tag("store", doc.StoreID)
		b.tag("amount", item.Amount.Round(4).String())
		if item.MeasureUnitID != "" {
			b.tag("amountUnit", item.MeasureUnitID)
		}
		b.tag("price", item.Price.Round(2).String())
		b.tag("sum", item.Sum.Round(2).String())
		b.close("item")
	}
	b.close("items")
	b.close("document")
	return b.String()
}

// parseImportResult — сервер отвечает 200 даже при ошибке валидации,
// фактический итог лежит в <valid>true/false</valid>.
func parseImportResult(body []byte) *ImportResult {
	var parsed struct {
		Valid          string `xml:"valid"`
		ErrorMessage   string `xml:"errorMessage"`
		DocumentNumber string `xml:"documentNumber"`
	}
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return &ImportResult{OK: true, Response: truncate(string(body), 500)}
	}
	if parsed.Valid == "false" {
		msg := parsed.ErrorMessage
		if msg == "" {
			msg = "неизвестная ошибка"
		}
		return &ImportResult{OK: false, Error: msg, DocumentNumber: parsed.DocumentNumber}
	}
	return &ImportResult{OK: true, DocumentNumber: parsed.DocumentNumber, Response: truncate(string(body), 500)}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
