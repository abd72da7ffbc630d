// Файл: internal/sync/mappers_test.go
package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 8, 24, 7, 0, 0, 0, time.UTC)

func TestEntityMapperSkipsBadUUID(t *testing.T) {
	mapper := entityMapper("Account")

	_, ok := mapper(map[string]interface{}{"id": "не uuid", "name": "Счёт"}, testNow)
	assert.False(t, ok)

	row, ok := mapper(map[string]interface{}{
		"id": "6f9619ff-8b86-d011-b42d-00cf4fc964ff", "name": "Счёт", "deleted": false,
	}, testNow)
	require.True(t, ok)
	assert.Equal(t, "6f9619ff-8b86-d011-b42d-00cf4fc964ff", row.Key)
	assert.Equal(t, "Account", row.Values[1])
	assert.Len(t, row.Values, len(entityColumns))
}

func TestMapSupplierFlags(t *testing.T) {
	row, ok := mapSupplier(map[string]interface{}{
		"id":       "6f9619ff-8b86-d011-b42d-00cf4fc964ff",
		"name":     "ООО Продукты",
		"supplier": "true",
		"employee": "false",
		"deleted":  "false",
	}, testNow)
	require.True(t, ok)
	require.Len(t, row.Values, len(supplierColumns))

	assert.Equal(t, true, row.Values[7], "is_supplier")
	assert.Equal(t, false, row.Values[8], "is_employee")
	assert.Equal(t, false, row.Values[3], "deleted")
}

func TestMapProductDecimal(t *testing.T) {
	row, ok := mapProduct(map[string]interface{}{
		"id":               "6f9619ff-8b86-d011-b42d-00cf4fc964ff",
		"name":             "Перчатки",
		"defaultSalePrice": 150.5,
		"unitWeight":       "мусор",
	}, testNow)
	require.True(t, ok)
	require.Len(t, row.Values, len(productColumns))

	price, isDecimal := row.Values[12].(decimal.Decimal)
	require.True(t, isDecimal)
	assert.True(t, price.Equal(decimal.RequireFromString("150.5")))
	assert.Nil(t, row.Values[13], "мусор в числовом поле становится NULL")
}

func TestMapEmployeeName(t *testing.T) {
	row, ok := mapEmployee(map[string]interface{}{
		"id":        "6f9619ff-8b86-d011-b42d-00cf4fc964ff",
		"lastName":  "Иванов",
		"firstName": "Иван",
	}, testNow)
	require.True(t, ok)
	assert.Equal(t, "Иванов Иван", row.Values[1], "имя собирается из частей ФИО")

	row, ok = mapEmployee(map[string]interface{}{
		"id":   "6f9619ff-8b86-d011-b42d-00cf4fc964ff",
		"name": "Касса 1",
	}, testNow)
	require.True(t, ok)
	assert.Equal(t, "Касса 1", row.Values[1], "без ФИО берётся поле name")
}

func TestMapFinance(t *testing.T) {
	row, ok := mapFinance(map[string]interface{}{"id": float64(42), "name": "Аренда"}, testNow)
	require.True(t, ok)
	assert.Equal(t, "42", row.Key)
	assert.Equal(t, int64(42), row.Values[0])
	assert.Equal(t, "Аренда", row.Values[1])

	_, ok = mapFinance(map[string]interface{}{"name": "Без id"}, testNow)
	assert.False(t, ok)

	row, ok = mapFinance(map[string]interface{}{"id": "7", "title": "Статья"}, testNow)
	require.True(t, ok)
	assert.Equal(t, "Статья", row.Values[1], "title подхватывается если нет name")
}

func TestWaitAllCollectsEveryResult(t *testing.T) {
	boom := errors.New("сеть упала")
	tasks := map[string]func(ctx context.Context) (int, error){
		"ok":   func(ctx context.Context) (int, error) { return 10, nil },
		"fail": func(ctx context.Context) (int, error) { return 0, boom },
		"slow": func(ctx context.Context) (int, error) { time.Sleep(10 * time.Millisecond); return 3, nil },
	}

	results := waitAll(context.Background(), tasks)
	require.Len(t, results, 3, "ошибка одной задачи не обрывает остальные")

	byName := make(map[string]TaskResult)
	for _, r := range results {
		byName[r.Name] = r
	}
	assert.Equal(t, 10, byName["ok"].Count)
	assert.ErrorIs(t, byName["fail"].Err, boom)
	assert.Equal(t, 3, byName["slow"].Count)

	assert.Equal(t, []string{"fail"}, FailedNames(results))
}
