// Файл: internal/sync/export.go
// Ежедневные выгрузки в книгу: матрица прав и номенклатура.
// Книга — источник правды для прав, поэтому выгрузка прав обязана
// сохранять уже проставленные отметки.
package sync

import (
	"context"
	"time"

	"resto-backoffice/internal/integrations/sheets"
	"resto-backoffice/internal/repositories"
	"resto-backoffice/pkg/config"

	"go.uber.org/zap"
)

type Exporter struct {
	workbook  sheets.ClientInterface
	employees repositories.EmployeeRepositoryInterface
	dicts     repositories.DictionaryRepositoryInterface
	cfg       config.SheetConfig
	logger    *zap.Logger
}

func NewExporter(workbook sheets.ClientInterface, employees repositories.EmployeeRepositoryInterface, dicts repositories.DictionaryRepositoryInterface, cfg config.SheetConfig, logger *zap.Logger) *Exporter {
	return &Exporter{workbook: workbook, employees: employees, dicts: dicts, cfg: cfg, logger: logger}
}

// ExportPermissions перестраивает лист прав: добавляет новых авторизованных
// сотрудников, убирает уволенных, сохраняет выданные отметки.
// Ключи прав и их заголовки передаёт вызывающий слой.
func (e *Exporter) ExportPermissions(ctx context.Context, permKeys []string, permTitles map[string]string) (int, error) {
	t0 := time.Now()

	bound, err := e.employees.ListBound(ctx)
	if err != nil {
		return 0, err
	}

	oldRows, err := e.workbook.ReadTab(e.cfg.PermissionsTab)
	if err != nil {
		return 0, err
	}
	existing := sheets.ParsePermissions(oldRows)

	refs := make([]sheets.Ref, 0, len(bound))
	ids := make(map[string]int64, len(bound))
	for _, emp := range bound {
		refs = append(refs, sheets.Ref{ID: emp.ID, Name: emp.Name})
		if emp.TelegramID != nil {
			ids[emp.ID] = *emp.TelegramID
		}
	}

	rows := sheets.BuildPermissionRows(refs, ids, permKeys, permTitles, existing)
	if err := e.workbook.WriteTab(e.cfg.PermissionsTab, rows); err != nil {
		return 0, err
	}

	e.logger.Info("✅ Матрица прав выгружена",
		zap.Int("сотрудников", len(ids)), zap.Duration("время", time.Since(t0)))
	return len(ids), nil
}

// ExportCatalog выгружает номенклатуру с именами групп и единиц.
func (e *Exporter) ExportCatalog(ctx context.Context) (int, error) {
	t0 := time.Now()

	products, err := e.dicts.SearchProducts(ctx, "", nil, 100000)
	if err != nil {
		return 0, err
	}
	groups, err := e.dicts.ListProductGroups(ctx)
	if err != nil {
		return 0, err
	}
	units, err := e.dicts.UnitNames(ctx)
	if err != nil {
		return 0, err
	}

	groupNames := make(map[string]string, len(groups))
	for _, g := range groups {
		groupNames[g.ID] = g.Name
	}

	items := make([]sheets.CatalogRow, 0, len(products))
	for _, p := range products {
		row := sheets.CatalogRow{ID: p.ID, Name: p.Name, Type: p.ProductType}
		if p.ParentID != nil {
			row.Group = groupNames[*p.ParentID]
		}
		if p.MainUnit != nil {
			row.Unit = units[*p.MainUnit]
		}
		items = append(items, row)
	}

	if err := e.workbook.WriteTab(e.cfg.CatalogTab, sheets.BuildCatalogRows(items)); err != nil {
		return 0, err
	}

	e.logger.Info("✅ Номенклатура выгружена",
		zap.Int("товаров", len(items)), zap.Duration("время", time.Since(t0)))
	return len(items), nil
}
