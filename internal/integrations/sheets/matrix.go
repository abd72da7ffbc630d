// Файл: internal/integrations/sheets/matrix.go
// Форматы листов. Общий приём: первая строка служебная (скрытые UUID и
// ключи), вторая — человекочитаемые заголовки, данные с третьей-четвёртой.
// Привязка всегда по идентификатору, имена только для людей.
package sheets

import (
	"strconv"
	"strings"
)

// Отметка «право выдано». Таблицу редактируют руками, поэтому
// принимаем несколько вариантов написания.
var truthyMarks = map[string]bool{
	"✅": true, "true": true, "1": true, "да": true, "yes": true, "+": true,
}

func isTruthy(cell string) bool {
	return truthyMarks[strings.ToLower(strings.TrimSpace(cell))]
}

// Ref — пара идентификатор/имя для построения заголовков листов.
type Ref struct {
	ID   string
	Name string
}

// --- МАТРИЦА ПРАВ ---

// PermissionRow — права одного сотрудника из листа.
type PermissionRow struct {
	TelegramID int64
	Perms      map[string]bool
}

// ParsePermissions разбирает матрицу прав.
// Строка 1 служебная: ключи прав начиная с колонки C.
// Строка 2 — заголовки. Данные с третьей: имя, telegram_id, отметки.
func ParsePermissions(rows [][]string) []PermissionRow {
	if len(rows) < 3 {
		return nil
	}

	metaRow := rows[0]
	var permKeys []string
	for ci := 2; ci < len(metaRow); ci++ {
		permKeys = append(permKeys, strings.TrimSpace(metaRow[ci]))
	}

	var result []PermissionRow
	for _, row := range rows[2:] {
		if len(row) < 2 {
			continue
		}
		tgID, err := strconv.ParseInt(strings.TrimSpace(row[1]), 10, 64)
		if err != nil {
			continue
		}

		perms := make(map[string]bool, len(permKeys))
		for ci, key := range permKeys {
			if key == "" {
				continue
			}
			cell := ""
			if 2+ci < len(row) {
				cell = row[2+ci]
			}
			perms[key] = isTruthy(cell)
		}
		result = append(result, PermissionRow{TelegramID: tgID, Perms: perms})
	}
	return result
}

// BuildPermissionRows собирает лист прав заново, сохраняя выданные отметки.
// existing — прежнее содержимое листа, employees задают порядок строк.
func BuildPermissionRows(employees []Ref, employeeIDs map[string]int64, permKeys []string, permTitles map[string]string, existing []PermissionRow) [][]string {
	old := make(map[int64]map[string]bool, len(existing))
	for _, row := range existing {
		old[row.TelegramID] = row.Perms
	}

	meta := []string{"", "telegram_id"}
	header := []string{"Сотрудник", "Telegram ID"}
	for _, key := range permKeys {
		meta = append(meta, key)
		title := permTitles[key]
		if title == "" {
			title = key
		}
		header = append(header, title)
	}

	rows := [][]string{meta, header}
	for _, emp := range employees {
		tgID, ok := employeeIDs[emp.ID]
		if !ok {
			continue
		}
		row := []string{emp.Name, strconv.FormatInt(tgID, 10)}
		for _, key := range permKeys {
			if old[tgID][key] {
				row = append(row, "✅")
			} else {
				row = append(row, "")
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// --- МИН/МАКС ОСТАТКИ ---

// LevelRow — порог одного товара в одном подразделении.
type LevelRow struct {
	ProductID      string
	ProductName    string
	DepartmentID   string
	DepartmentName string
	Min            float64
	Max            float64
}

// ParseMinStock разбирает лист порогов.
// Строка 1 служебная: UUID подразделений в колонках C, E, ... (по паре
// колонок МИН/МАКС на подразделение). Строка 2 — имена, строка 3 —
// подзаголовки. Данные с четвёртой: имя товара, UUID товара, значения.
// Пары, где и мин и макс пустые или нулевые, пропускаются.
func ParseMinStock(rows [][]string) []LevelRow {
	if len(rows) < 4 {
		return nil
	}

	metaRow := rows[0]
	nameRow := rows[1]

	type deptCols struct {
		id, name     string
		minCol, maxCol int
	}
	var depts []deptCols
	for col := 2; col < len(metaRow); col += 2 {
		deptID := strings.TrimSpace(metaRow[col])
		if deptID == "" {
			continue
		}
		deptName := ""
		if col < len(nameRow) {
			deptName = strings.TrimSpace(nameRow[col])
		}
		depts = append(depts, deptCols{id: deptID, name: deptName, minCol: col, maxCol: col + 1})
	}

	var result []LevelRow
	for _, row := range rows[3:] {
		if len(row) < 2 || strings.TrimSpace(row[1]) == "" {
			continue
		}
		productName := strings.TrimSpace(row[0])
		productID := strings.TrimSpace(row[1])

		for _, dept := range depts {
			minLevel := parseLevel(row, dept.minCol)
			maxLevel := parseLevel(row, dept.maxCol)
			if minLevel <= 0 && maxLevel <= 0 {
				continue
			}
			result = append(result, LevelRow{
				ProductID:      productID,
				ProductName:    productName,
				DepartmentID:   dept.id,
				DepartmentName: dept.name,
				Min:            minLevel,
				Max:            maxLevel,
			})
		}
	}
	return result
}

func parseLevel(row []string, col int) float64 {
	if col >= len(row) {
		return 0
	}
	raw := strings.ReplaceAll(strings.TrimSpace(row[col]), ",", ".")
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return v
}

// BuildMinStockRows собирает лист порогов заново под свежую номенклатуру,
// перенося прежние значения по UUID товара и подразделения.
func BuildMinStockRows(products, departments []Ref, existing []LevelRow) [][]string {
	old := make(map[string]LevelRow, len(existing))
	for _, lvl := range existing {
		old[lvl.ProductID+":"+lvl.DepartmentID] = lvl
	}

	meta := []string{"", ""}
	nameRow := []string{"Товар", "ID товара"}
	subRow := []string{"", ""}
	for _, dept := range departments {
		meta = append(meta, dept.ID, "")
		nameRow = append(nameRow, dept.Name, "")
		subRow = append(subRow, "МИН", "МАКС")
	}

	rows := [][]string{meta, nameRow, subRow}
	for _, product := range products {
		row := []string{product.Name, product.ID}
		for _, dept := range departments {
			if lvl, ok := old[product.ID+":"+dept.ID]; ok {
				row = append(row, formatLevel(lvl.Min), formatLevel(lvl.Max))
			} else {
				row = append(row, "", "")
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func formatLevel(v float64) string {
	if v <= 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// --- НАСТРОЙКИ: ПРИВЯЗКА ОРГАНИЗАЦИЙ ---

const cloudOrgSectionMarker = "## Организации iikoCloud"

// ParseCloudOrgMapping читает раздел привязки подразделений к организациям
// облачного API с листа «Настройки». Формат строки: имя подразделения,
// UUID подразделения, имя организации, UUID организации.
func ParseCloudOrgMapping(rows [][]string) map[string]string {
	mapping := make(map[string]string)
	inSection := false
	for _, row := range rows {
		cellA := ""
		if len(row) > 0 {
			cellA = strings.TrimSpace(row[0])
		}
		if cellA == cloudOrgSectionMarker {
			inSection = true
			continue
		}
		if inSection && strings.HasPrefix(cellA, "##") {
			break
		}
		if !inSection || cellA == "" || cellA == "Подразделение" {
			continue
		}

		deptID := ""
		if len(row) > 1 {
			deptID = strings.TrimSpace(row[1])
		}
		orgID := ""
		if len(row) > 3 {
			orgID = strings.TrimSpace(row[3])
		}
		if deptID != "" && orgID != "" {
			mapping[deptID] = orgID
		}
	}
	return mapping
}

// --- ВЫГРУЗКА НОМЕНКЛАТУРЫ ---

// CatalogRow — строка ежедневной выгрузки номенклатуры.
type CatalogRow struct {
	ID    string
	Name  string
	Group string
	Unit  string
	Type  string
}

func BuildCatalogRows(items []CatalogRow) [][]string {
	rows := [][]string{{"ID", "Товар", "Группа", "Ед. изм.", "Тип"}}
	for _, it := range items {
		rows = append(rows, []string{it.ID, it.Name, it.Group, it.Unit, it.Type})
	}
	return rows
}
