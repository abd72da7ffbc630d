// Файл: internal/services/stockalert-service_test.go
package services

import (
	"testing"

	"resto-backoffice/internal/repositories"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAlertHashGate(t *testing.T) {
	a := []repositories.BelowMinItem{
		{ProductID: "p1", DepartmentID: "d1"},
		{ProductID: "p2", DepartmentID: "d1"},
	}
	b := []repositories.BelowMinItem{
		{ProductID: "p2", DepartmentID: "d1"},
		{ProductID: "p1", DepartmentID: "d1"},
	}

	assert.Equal(t, alertHash(a), alertHash(b), "порядок позиций не меняет отпечаток")
	assert.NotEqual(t, alertHash(a), alertHash(a[:1]))
}

func TestFormatBelowMin(t *testing.T) {
	items := []repositories.BelowMinItem{
		{ProductName: "Молоко", DepartmentName: "Морская",
			TotalAmount: decimal.NewFromInt(2), MinLevel: decimal.NewFromInt(10)},
		{ProductName: "Кофе", DepartmentName: "Морская",
			TotalAmount: decimal.NewFromInt(1), MinLevel: decimal.NewFromInt(3)},
	}

	text := FormatBelowMin(items)
	assert.Contains(t, text, "Морская")
	assert.Contains(t, text, "Молоко: 2 (мин 10)")

	assert.Contains(t, FormatBelowMin(nil), "выше минимумов")
}
