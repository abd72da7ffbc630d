// Файл: internal/services/ocr-service_test.go
package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCheckSums(t *testing.T) {
	doc := &RecognizedDocument{Items: []RecognizedItem{
		{Name: "Молоко", Qty: d("10"), Price: d("85"), Sum: d("850")},
		{Name: "Сливки", Qty: d("4"), Price: d("210"), Sum: d("640")},
		// Нулевая цена: строка не проверяется.
		{Name: "Пакет", Qty: d("1"), Price: d("0"), Sum: d("5")},
	}}

	warnings := CheckSums(doc)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "Сливки")
	assert.Contains(t, warnings[0], "840.00")
}

func TestCheckSumsRoundingTolerance(t *testing.T) {
	doc := &RecognizedDocument{Items: []RecognizedItem{
		{Name: "Сыр", Qty: d("1.5"), Price: d("633.33"), Sum: d("950")},
	}}
	assert.Empty(t, CheckSums(doc), "копеечное расхождение от округления допустимо")
}

func TestCheckSumsSkippedWhenVATUnknown(t *testing.T) {
	doc := &RecognizedDocument{
		VATRateUnknown: true,
		Items: []RecognizedItem{
			{Name: "Сливки", Qty: d("4"), Price: d("210"), Sum: d("640")},
		},
	}
	assert.Empty(t, CheckSums(doc), "при неизвестной ставке НДС суммы не проверяются")
}
