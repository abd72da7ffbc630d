// Файл: internal/sync/finance.go
// Синхронизация финансовых справочников. Архитектура та же, что у POS:
// общий шаблон Engine.Run, общий маппер, 13 зеркальных таблиц ft_*.
package sync

import (
	"context"

	"resto-backoffice/internal/clients/fintablo"
	"resto-backoffice/internal/entities"

	"go.uber.org/zap"
)

type FinanceSyncer struct {
	engine *Engine
	client fintablo.ClientInterface
	logger *zap.Logger
}

func NewFinanceSyncer(engine *Engine, client fintablo.ClientInterface, logger *zap.Logger) *FinanceSyncer {
	return &FinanceSyncer{engine: engine, client: client, logger: logger}
}

func (s *FinanceSyncer) reconciler(resource string) Reconciler {
	return Reconciler{
		Name:     "ft_" + resource,
		Table:    "ft_" + resource,
		Columns:  financeColumns,
		Conflict: []string{"id"},
		// Ключ bigint, для зеркального удаления сравниваем как текст.
		KeyCol: "id::text",
		Fetch: func(ctx context.Context) ([]map[string]interface{}, error) {
			return s.client.FetchResource(ctx, resource)
		},
		Map: mapFinance,
	}
}

// SyncResource синхронизирует один справочник по имени из entities.FinanceResources.
func (s *FinanceSyncer) SyncResource(ctx context.Context, resource, triggeredBy string) (int, error) {
	return s.engine.Run(ctx, s.reconciler(resource), triggeredBy)
}

// SyncAllFinance гонит все 13 справочников параллельно. Клиент сам
// ограничивает одновременные запросы, веер можно не дросселировать.
func (s *FinanceSyncer) SyncAllFinance(ctx context.Context, triggeredBy string) []TaskResult {
	tasks := make(map[string]func(ctx context.Context) (int, error), len(entities.FinanceResources))
	for _, resource := range entities.FinanceResources {
		resource := resource
		tasks["ft_"+resource] = func(ctx context.Context) (int, error) {
			return s.SyncResource(ctx, resource, triggeredBy)
		}
	}
	return waitAll(ctx, tasks)
}
