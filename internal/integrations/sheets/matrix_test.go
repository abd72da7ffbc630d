// Файл: internal/integrations/sheets/matrix_test.go
package sheets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePermissions(t *testing.T) {
	rows := [][]string{
		{"", "telegram_id", "📝 Создать списание", "🔄 Синхронизация"},
		{"Сотрудник", "Telegram ID", "📝 Списания", "🔄 Синк"},
		{"Иванов", "100", "✅", ""},
		{"Петров", "200", "", "да"},
		{"Без ID", "", "✅", "✅"},
		{"Кривой ID", "abc", "✅", ""},
	}

	parsed := ParsePermissions(rows)
	require.Len(t, parsed, 2, "строки без числового telegram_id пропускаются")

	assert.Equal(t, int64(100), parsed[0].TelegramID)
	assert.True(t, parsed[0].Perms["📝 Создать списание"])
	assert.False(t, parsed[0].Perms["🔄 Синхронизация"])
	assert.True(t, parsed[1].Perms["🔄 Синхронизация"], "«да» тоже считается отметкой")
}

func TestParseMinStock(t *testing.T) {
	rows := [][]string{
		{"", "", "dept-1", "", "dept-2", ""},
		{"Товар", "ID товара", "Центр", "", "Парк", ""},
		{"", "", "МИН", "МАКС", "МИН", "МАКС"},
		{"Перчатки", "prod-1", "5", "20", "", ""},
		{"Трубочки", "prod-2", "1,5", "", "0", "0"},
		{"Без ID", "", "9", "9", "9", "9"},
	}

	levels := ParseMinStock(rows)
	require.Len(t, levels, 2)

	assert.Equal(t, "prod-1", levels[0].ProductID)
	assert.Equal(t, "dept-1", levels[0].DepartmentID)
	assert.Equal(t, 5.0, levels[0].Min)
	assert.Equal(t, 20.0, levels[0].Max)

	// Запятая в качестве десятичного разделителя допустима.
	assert.Equal(t, "prod-2", levels[1].ProductID)
	assert.Equal(t, 1.5, levels[1].Min)
}

func TestBuildMinStockRowsKeepsLevels(t *testing.T) {
	products := []Ref{{ID: "prod-1", Name: "Перчатки"}, {ID: "prod-new", Name: "Новый"}}
	departments := []Ref{{ID: "dept-1", Name: "Центр"}}
	existing := []LevelRow{{ProductID: "prod-1", DepartmentID: "dept-1", Min: 5, Max: 20}}

	rows := BuildMinStockRows(products, departments, existing)
	require.Len(t, rows, 5, "три служебные строки и две товарные")

	assert.Equal(t, []string{"", "", "dept-1", ""}, rows[0])
	assert.Equal(t, []string{"Перчатки", "prod-1", "5", "20"}, rows[3])
	assert.Equal(t, []string{"Новый", "prod-new", "", ""}, rows[4], "у нового товара пороги пустые")
}

func TestParseCloudOrgMapping(t *testing.T) {
	rows := [][]string{
		{"## Другой раздел"},
		{"что-то", "ещё"},
		{"## Организации iikoCloud"},
		{"Подразделение", "", "Организация", ""},
		{"Центр", "dept-1", "Орг Центр", "org-1"},
		{"Парк", "dept-2", "", ""},
		{"## Следующий раздел"},
		{"Хвост", "dept-3", "Орг", "org-3"},
	}

	mapping := ParseCloudOrgMapping(rows)
	require.Len(t, mapping, 1, "строки без UUID организации и после конца раздела не берутся")
	assert.Equal(t, "org-1", mapping["dept-1"])
}

func TestBuildPermissionRows(t *testing.T) {
	employees := []Ref{{ID: "emp-1", Name: "Иванов"}, {ID: "emp-2", Name: "Нет телеграма"}}
	ids := map[string]int64{"emp-1": 100}
	keys := []string{"📝 Создать списание"}
	existing := []PermissionRow{{TelegramID: 100, Perms: map[string]bool{"📝 Создать списание": true}}}

	rows := BuildPermissionRows(employees, ids, keys, map[string]string{}, existing)
	require.Len(t, rows, 3, "сотрудник без telegram_id в лист не попадает")
	assert.Equal(t, []string{"Иванов", "100", "✅"}, rows[2])
}
