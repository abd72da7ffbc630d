// Файл: internal/sync/mappers.go
// Мапперы запись API -> строка зеркала. Запись без валидного UUID
// пропускается и попадает в счётчик битых, остальные поля терпимы
// к мусору: необязательное поле с мусором становится NULL.
package sync

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func safeUUID(v interface{}) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", false
	}
	return id.String(), true
}

// optUUID — как safeUUID, но невалидное значение даёт NULL, а не пропуск.
func optUUID(v interface{}) interface{} {
	if id, ok := safeUUID(v); ok {
		return id
	}
	return nil
}

func optString(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	return s
}

func safeBool(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(strings.TrimSpace(t), "true")
	default:
		return false
	}
}

func optDecimal(v interface{}) interface{} {
	switch t := v.(type) {
	case float64:
		return decimal.NewFromFloat(t)
	case int:
		return decimal.NewFromInt(int64(t))
	case int64:
		return decimal.NewFromInt(t)
	case json.Number:
		if d, err := decimal.NewFromString(t.String()); err == nil {
			return d
		}
	case string:
		if t == "" {
			return nil
		}
		if d, err := decimal.NewFromString(strings.ReplaceAll(t, ",", ".")); err == nil {
			return d
		}
	}
	return nil
}

func rawJSON(item map[string]interface{}) []byte {
	raw, err := json.Marshal(item)
	if err != nil {
		return []byte("{}")
	}
	return raw
}

// anyMaps поднимает строки XML-разбора до общего типа записей источника.
func anyMaps(items []map[string]string) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		m := make(map[string]interface{}, len(item))
		for k, v := range item {
			m[k] = v
		}
		out = append(out, m)
	}
	return out
}

// --- КОЛОНКИ ЗЕРКАЛ ---

var (
	entityColumns = []string{"id", "root_type", "name", "code", "deleted", "synced_at", "raw_json"}

	supplierColumns = []string{"id", "name", "code", "deleted", "card_number", "taxpayer_id_number",
		"snils", "is_supplier", "is_employee", "synced_at", "raw_json"}

	corporateColumns = []string{"id", "parent_id", "name", "code", "type", "deleted", "synced_at", "raw_json"}

	productGroupColumns = []string{"id", "parent_id", "name", "code", "description", "deleted", "synced_at", "raw_json"}

	productColumns = []string{"id", "parent_id", "name", "code", "num", "description", "product_type",
		"deleted", "main_unit", "category", "accounting_category", "tax_category",
		"default_sale_price", "unit_weight", "unit_capacity", "synced_at", "raw_json"}

	employeeColumns = []string{"id", "name", "code", "deleted", "first_name", "middle_name",
		"last_name", "role_id", "synced_at", "raw_json"}

	roleColumns = []string{"id", "name", "code", "deleted", "payment_per_hour", "steady_salary",
		"schedule_type", "synced_at", "raw_json"}

	financeColumns = []string{"id", "name", "raw_json", "synced_at"}
)

// --- МАППЕРЫ ---

func entityMapper(rootType string) Mapper {
	return func(item map[string]interface{}, now time.Time) (Row, bool) {
		id, ok := safeUUID(item["id"])
		if !ok {
			return Row{}, false
		}
		return Row{Key: id, Values: []interface{}{
			id, rootType, optString(item["name"]), optString(item["code"]),
			safeBool(item["deleted"]), now, rawJSON(item),
		}}, true
	}
}

func mapSupplier(item map[string]interface{}, now time.Time) (Row, bool) {
	id, ok := safeUUID(item["id"])
	if !ok {
		return Row{}, false
	}
	return Row{Key: id, Values: []interface{}{
		id, optString(item["name"]), optString(item["code"]), safeBool(item["deleted"]),
		optString(item["cardNumber"]), optString(item["taxpayerIdNumber"]), optString(item["snils"]),
		safeBool(item["supplier"]), safeBool(item["employee"]),
		now, rawJSON(item),
	}}, true
}

func mapCorporate(item map[string]interface{}, now time.Time) (Row, bool) {
	id, ok := safeUUID(item["id"])
	if !ok {
		return Row{}, false
	}
	return Row{Key: id, Values: []interface{}{
		id, optUUID(item["parentId"]), optString(item["name"]), optString(item["code"]),
		optString(item["type"]), safeBool(item["deleted"]),
		now, rawJSON(item),
	}}, true
}

func mapProductGroup(item map[string]interface{}, now time.Time) (Row, bool) {
	id, ok := safeUUID(item["id"])
	if !ok {
		return Row{}, false
	}
	return Row{Key: id, Values: []interface{}{
		id, optUUID(item["parent"]), optString(item["name"]), optString(item["code"]),
		optString(item["description"]), safeBool(item["deleted"]),
		now, rawJSON(item),
	}}, true
}

func mapProduct(item map[string]interface{}, now time.Time) (Row, bool) {
	id, ok := safeUUID(item["id"])
	if !ok {
		return Row{}, false
	}
	return Row{Key: id, Values: []interface{}{
		id, optUUID(item["parent"]), optString(item["name"]), optString(item["code"]),
		optString(item["num"]), optString(item["description"]), optString(item["type"]),
		safeBool(item["deleted"]),
		optUUID(item["mainUnit"]), optUUID(item["category"]),
		optUUID(item["accountingCategory"]), optUUID(item["taxCategory"]),
		optDecimal(item["defaultSalePrice"]), optDecimal(item["unitWeight"]), optDecimal(item["unitCapacity"]),
		now, rawJSON(item),
	}}, true
}

func mapEmployee(item map[string]interface{}, now time.Time) (Row, bool) {
	id, ok := safeUUID(item["id"])
	if !ok {
		return Row{}, false
	}

	var parts []string
	for _, field := range []string{"lastName", "firstName", "middleName"} {
		if s, ok := item[field].(string); ok && s != "" {
			parts = append(parts, s)
		}
	}
	name := strings.Join(parts, " ")
	var nameVal interface{} = name
	if name == "" {
		nameVal = optString(item["name"])
	}

	return Row{Key: id, Values: []interface{}{
		id, nameVal, optString(item["code"]), safeBool(item["deleted"]),
		optString(item["firstName"]), optString(item["middleName"]), optString(item["lastName"]),
		optUUID(item["mainRoleId"]),
		now, rawJSON(item),
	}}, true
}

func mapRole(item map[string]interface{}, now time.Time) (Row, bool) {
	id, ok := safeUUID(item["id"])
	if !ok {
		return Row{}, false
	}
	return Row{Key: id, Values: []interface{}{
		id, optString(item["name"]), optString(item["code"]), safeBool(item["deleted"]),
		optDecimal(item["paymentPerHour"]), optDecimal(item["steadySalary"]), optString(item["scheduleType"]),
		now, rawJSON(item),
	}}, true
}

// mapFinance — общий маппер финансовых справочников: целочисленный id,
// имя и полный снимок записи, различия живут в raw_json.
func mapFinance(item map[string]interface{}, now time.Time) (Row, bool) {
	id, ok := safeInt64(item["id"])
	if !ok {
		return Row{}, false
	}
	name := optString(item["name"])
	if name == nil {
		name = optString(item["title"])
	}
	return Row{Key: strconv.FormatInt(id, 10), Values: []interface{}{
		id, name, rawJSON(item), now,
	}}, true
}

func safeInt64(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case int64:
		return t, true
	case int:
		return int64(t), true
	case json.Number:
		n, err := t.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
