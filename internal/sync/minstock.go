// Файл: internal/sync/minstock.go
// Мин/макс пороги живут в книге, БД держит кеш для быстрых проверок.
// Две операции: книга -> min_stock_level и номенклатура -> книга
// (с сохранением уже проставленных порогов).
package sync

import (
	"context"
	"sort"
	"time"

	"resto-backoffice/internal/entities"
	"resto-backoffice/internal/integrations/sheets"
	"resto-backoffice/internal/repositories"
	"resto-backoffice/pkg/config"
	"resto-backoffice/pkg/localtime"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const minStockSyncName = "MinStock"

type MinStockSyncer struct {
	engine    *Engine
	workbook  sheets.ClientInterface
	minStocks repositories.MinStockRepositoryInterface
	dicts     repositories.DictionaryRepositoryInterface
	cfg       config.SheetConfig
	logger    *zap.Logger
}

func NewMinStockSyncer(engine *Engine, workbook sheets.ClientInterface, minStocks repositories.MinStockRepositoryInterface, dicts repositories.DictionaryRepositoryInterface, cfg config.SheetConfig, logger *zap.Logger) *MinStockSyncer {
	return &MinStockSyncer{engine: engine, workbook: workbook, minStocks: minStocks, dicts: dicts, cfg: cfg, logger: logger}
}

// ImportLevels читает лист порогов и полностью заменяет кеш в БД.
func (s *MinStockSyncer) ImportLevels(ctx context.Context, triggeredBy string) (int, error) {
	release, err := s.engine.acquire(ctx, minStockSyncName)
	if err != nil {
		return 0, err
	}
	defer release()

	t0 := time.Now()
	logID, err := s.engine.syncLogs.Start(ctx, minStockSyncName, triggeredBy)
	if err != nil {
		return 0, err
	}

	count, err := s.importLogged(ctx, logID, t0)
	if err != nil {
		if markErr := s.engine.syncLogs.MarkError(ctx, logID, err.Error()); markErr != nil {
			s.logger.Error("💥 Не удалось записать ошибку в журнал", zap.Error(markErr))
		}
		return 0, err
	}
	return count, nil
}

func (s *MinStockSyncer) importLogged(ctx context.Context, logID int64, t0 time.Time) (int, error) {
	rows, err := s.workbook.ReadTab(s.cfg.MinStockTab)
	if err != nil {
		return 0, err
	}

	parsed := sheets.ParseMinStock(rows)
	now := localtime.Now()
	levels := make([]entities.MinStockLevel, 0, len(parsed))
	for _, lvl := range parsed {
		levels = append(levels, entities.MinStockLevel{
			ProductID:    lvl.ProductID,
			DepartmentID: lvl.DepartmentID,
			MinLevel:     decimal.NewFromFloat(lvl.Min),
			MaxLevel:     decimal.NewFromFloat(lvl.Max),
			UpdatedAt:    now,
		})
	}

	var count int
	err = s.engine.txm.RunInTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		count, err = s.minStocks.ReplaceAll(ctx, tx, levels)
		if err != nil {
			return err
		}
		return s.engine.syncLogs.MarkSuccess(ctx, tx, logID, count)
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("🏁 Пороги импортированы из книги",
		zap.Int("порогов", count), zap.Duration("время", time.Since(t0)))
	return count, nil
}

// ExportNomenclature перестраивает лист порогов под свежую номенклатуру.
// Уже проставленные значения переносятся по UUID товара и подразделения.
func (s *MinStockSyncer) ExportNomenclature(ctx context.Context) (int, error) {
	t0 := time.Now()

	productNames, err := s.dicts.ProductNames(ctx)
	if err != nil {
		return 0, err
	}
	departments, err := s.dicts.ListDepartments(ctx)
	if err != nil {
		return 0, err
	}
	existing, err := s.minStocks.List(ctx)
	if err != nil {
		return 0, err
	}

	products := make([]sheets.Ref, 0, len(productNames))
	for id, name := range productNames {
		products = append(products, sheets.Ref{ID: id, Name: name})
	}
	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })

	deptRefs := make([]sheets.Ref, 0, len(departments))
	for _, d := range departments {
		deptRefs = append(deptRefs, sheets.Ref{ID: d.ID, Name: d.Name})
	}

	old := make([]sheets.LevelRow, 0, len(existing))
	for _, lvl := range existing {
		minF, _ := lvl.MinLevel.Float64()
		maxF, _ := lvl.MaxLevel.Float64()
		old = append(old, sheets.LevelRow{
			ProductID:    lvl.ProductID,
			DepartmentID: lvl.DepartmentID,
			Min:          minF,
			Max:          maxF,
		})
	}

	rows := sheets.BuildMinStockRows(products, deptRefs, old)
	if err := s.workbook.WriteTab(s.cfg.MinStockTab, rows); err != nil {
		return 0, err
	}

	s.logger.Info("✅ Номенклатура выгружена в книгу",
		zap.Int("товаров", len(products)),
		zap.Int("подразделений", len(deptRefs)),
		zap.Duration("время", time.Since(t0)))
	return len(products), nil
}
