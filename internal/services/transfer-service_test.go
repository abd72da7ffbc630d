// Файл: internal/services/transfer-service_test.go
package services

import (
	"testing"

	"resto-backoffice/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStoreName(t *testing.T) {
	storeType, restaurant, ok := ParseStoreName("Бар (Морская)")
	require.True(t, ok)
	assert.Equal(t, "Бар", storeType)
	assert.Equal(t, "Морская", restaurant)

	storeType, restaurant, ok = ParseStoreName("Хоз. товары (Центральный)")
	require.True(t, ok)
	assert.Equal(t, "Хоз. товары", storeType)
	assert.Equal(t, "Центральный", restaurant)

	_, _, ok = ParseStoreName("Склад без ресторана")
	assert.False(t, ok)
}

func TestCollectNegatives(t *testing.T) {
	cfg := config.TransferConfig{
		SourcePrefix: "Хоз. товары",
		TargetTypes:  []string{"Бар", "Кухня"},
		ProductGroup: "Расходные материалы",
	}

	rows := []map[string]interface{}{
		// Минус на целевом складе — попадает в выборку.
		{"Account.Name": "Бар (Морская)", "Product.TopParent": "Расходные материалы",
			"Product.Name": "Перчатки", "FinalBalance.Amount": -3.0},
		// Плюсовой остаток пропускается.
		{"Account.Name": "Кухня (Морская)", "Product.TopParent": "Расходные материалы",
			"Product.Name": "Плёнка", "FinalBalance.Amount": 7.0},
		// null от OLAP: позиция без движения, пропуск без паники.
		{"Account.Name": "Кухня (Морская)", "Product.TopParent": "Расходные материалы",
			"Product.Name": "Фольга", "FinalBalance.Amount": nil},
		// Чужая группа товаров.
		{"Account.Name": "Бар (Морская)", "Product.TopParent": "Напитки",
			"Product.Name": "Сироп", "FinalBalance.Amount": -1.0},
		// Сам хозяйственный склад целью не является.
		{"Account.Name": "Хоз. товары (Морская)", "Product.TopParent": "Расходные материалы",
			"Product.Name": "Перчатки", "FinalBalance.Amount": -2.0},
		// Склад вне шаблона "ТИП (Ресторан)".
		{"Account.Name": "Центральный склад", "Product.TopParent": "Расходные материалы",
			"Product.Name": "Перчатки", "FinalBalance.Amount": -5.0},
	}

	out := CollectNegatives(rows, cfg)
	require.Len(t, out, 1)
	assert.Equal(t, "Бар (Морская)", out[0].StoreName)
	assert.Equal(t, "Перчатки", out[0].ProductName)
	assert.Equal(t, "-3", out[0].Amount.String())
}
