// Файл: internal/sync/stock.go
// Снимок остатков по складам. Паттерн full-replace: зеркальное удаление
// здесь не нужно, новый снимок полностью вытесняет старый в одной
// транзакции. Имена складов и товаров денормализуются при записи,
// чтобы отчёты не ходили по трём таблицам.
package sync

import (
	"context"
	"time"

	"resto-backoffice/internal/clients/iiko"
	"resto-backoffice/internal/entities"
	"resto-backoffice/internal/repositories"
	"resto-backoffice/pkg/localtime"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const stockSyncName = "StockBalance"

type StockSyncer struct {
	engine *Engine
	client iiko.ClientInterface
	stocks repositories.StockRepositoryInterface
	dicts  repositories.DictionaryRepositoryInterface
	logger *zap.Logger
}

func NewStockSyncer(engine *Engine, client iiko.ClientInterface, stocks repositories.StockRepositoryInterface, dicts repositories.DictionaryRepositoryInterface, logger *zap.Logger) *StockSyncer {
	return &StockSyncer{engine: engine, client: client, stocks: stocks, dicts: dicts, logger: logger}
}

// SyncStockBalances обновляет снимок остатков на текущий момент.
// Нулевые остатки не храним: и пересорт (<0), и обычный остаток (>0)
// интересны, ноль — нет.
func (s *StockSyncer) SyncStockBalances(ctx context.Context, triggeredBy string) (int, error) {
	release, err := s.engine.acquire(ctx, stockSyncName)
	if err != nil {
		return 0, err
	}
	defer release()

	t0 := time.Now()
	logID, err := s.engine.syncLogs.Start(ctx, stockSyncName, triggeredBy)
	if err != nil {
		return 0, err
	}

	count, err := s.replaceSnapshot(ctx, logID, t0)
	if err != nil {
		if markErr := s.engine.syncLogs.MarkError(ctx, logID, err.Error()); markErr != nil {
			s.logger.Error("💥 Не удалось записать ошибку в журнал", zap.Error(markErr))
		}
		s.logger.Error("💥 Синхронизация остатков упала",
			zap.Duration("время", time.Since(t0)), zap.Error(err))
		return 0, err
	}
	return count, nil
}

func (s *StockSyncer) replaceSnapshot(ctx context.Context, logID int64, t0 time.Time) (int, error) {
	rows, err := s.client.FetchStockBalances(ctx, localtime.Now())
	if err != nil {
		return 0, err
	}

	storeNames, err := s.dicts.StoreNames(ctx)
	if err != nil {
		return 0, err
	}
	productNames, err := s.dicts.ProductNames(ctx)
	if err != nil {
		return 0, err
	}

	now := localtime.Now()
	balances := make([]entities.StockBalance, 0, len(rows))
	for _, row := range rows {
		if row.Amount.IsZero() {
			continue
		}
		balances = append(balances, entities.StockBalance{
			StoreID:     row.Store,
			ProductID:   row.Product,
			StoreName:   storeNames[row.Store],
			ProductName: productNames[row.Product],
			Amount:      row.Amount,
			Money:       row.Sum,
			SyncedAt:    now,
		})
	}

	var count int
	err = s.engine.txm.RunInTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		count, err = s.stocks.ReplaceAll(ctx, tx, balances)
		if err != nil {
			return err
		}
		return s.engine.syncLogs.MarkSuccess(ctx, tx, logID, count)
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("🏁 Остатки синхронизированы",
		zap.Int("строк", count),
		zap.Int("нулевых отброшено", len(rows)-count),
		zap.Duration("время", time.Since(t0)))
	return count, nil
}
