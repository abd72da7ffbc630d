// Файл: internal/sync/pos.go
// Синхронизация справочников POS. Одна функция = одна кнопка бота.
package sync

import (
	"context"
	"time"

	"resto-backoffice/internal/clients/iiko"
	"resto-backoffice/internal/entities"
	"resto-backoffice/internal/repositories"
	"resto-backoffice/pkg/localtime"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type PosSyncer struct {
	engine *Engine
	client iiko.ClientInterface
	logger *zap.Logger
}

func NewPosSyncer(engine *Engine, client iiko.ClientInterface, logger *zap.Logger) *PosSyncer {
	return &PosSyncer{engine: engine, client: client, logger: logger}
}

func (s *PosSyncer) SyncSuppliers(ctx context.Context, triggeredBy string) (int, error) {
	return s.engine.Run(ctx, Reconciler{
		Name: "Supplier", Table: "iiko_supplier",
		Columns: supplierColumns, Conflict: []string{"id"}, KeyCol: "id::text",
		Fetch: func(ctx context.Context) ([]map[string]interface{}, error) {
			items, err := s.client.FetchSuppliers(ctx)
			return anyMaps(items), err
		},
		Map: mapSupplier,
	}, triggeredBy)
}

func (s *PosSyncer) SyncDepartments(ctx context.Context, triggeredBy string) (int, error) {
	return s.engine.Run(ctx, s.corporateReconciler("Department", "iiko_department", s.client.FetchDepartments), triggeredBy)
}

func (s *PosSyncer) SyncStores(ctx context.Context, triggeredBy string) (int, error) {
	return s.engine.Run(ctx, s.corporateReconciler("Store", "iiko_store", s.client.FetchStores), triggeredBy)
}

func (s *PosSyncer) SyncGroups(ctx context.Context, triggeredBy string) (int, error) {
	return s.engine.Run(ctx, s.corporateReconciler("Group", "iiko_group", s.client.FetchGroups), triggeredBy)
}

func (s *PosSyncer) corporateReconciler(name, table string, fetch func(ctx context.Context) ([]map[string]string, error)) Reconciler {
	return Reconciler{
		Name: name, Table: table,
		Columns: corporateColumns, Conflict: []string{"id"}, KeyCol: "id::text",
		Fetch: func(ctx context.Context) ([]map[string]interface{}, error) {
			items, err := fetch(ctx)
			return anyMaps(items), err
		},
		Map: mapCorporate,
	}
}

func (s *PosSyncer) SyncProducts(ctx context.Context, triggeredBy string) (int, error) {
	return s.engine.Run(ctx, Reconciler{
		Name: "Product", Table: "iiko_product",
		Columns: productColumns, Conflict: []string{"id"}, KeyCol: "id::text",
		Fetch: func(ctx context.Context) ([]map[string]interface{}, error) {
			return s.client.FetchProducts(ctx, true)
		},
		Map: mapProduct,
	}, triggeredBy)
}

func (s *PosSyncer) SyncProductGroups(ctx context.Context, triggeredBy string) (int, error) {
	return s.engine.Run(ctx, Reconciler{
		Name: "ProductGroup", Table: "iiko_product_group",
		Columns: productGroupColumns, Conflict: []string{"id"}, KeyCol: "id::text",
		Fetch:   s.client.FetchProductGroups,
		Map:     mapProductGroup,
	}, triggeredBy)
}

func (s *PosSyncer) SyncEmployees(ctx context.Context, triggeredBy string) (int, error) {
	return s.engine.Run(ctx, Reconciler{
		Name: "Employee", Table: "iiko_employee",
		Columns: employeeColumns, Conflict: []string{"id"}, KeyCol: "id::text",
		Fetch: func(ctx context.Context) ([]map[string]interface{}, error) {
			items, err := s.client.FetchEmployees(ctx)
			return anyMaps(items), err
		},
		Map: mapEmployee,
	}, triggeredBy)
}

func (s *PosSyncer) SyncEmployeeRoles(ctx context.Context, triggeredBy string) (int, error) {
	return s.engine.Run(ctx, Reconciler{
		Name: "EmployeeRole", Table: "iiko_employee_role",
		Columns: roleColumns, Conflict: []string{"id"}, KeyCol: "id::text",
		Fetch: func(ctx context.Context) ([]map[string]interface{}, error) {
			items, err := s.client.FetchEmployeeRoles(ctx)
			return anyMaps(items), err
		},
		Map: mapRole,
	}, triggeredBy)
}

// SyncAllPos гонит все восемь зеркал POS параллельно и возвращает
// итог по каждому, не обрывая остальных при ошибке одного.
func (s *PosSyncer) SyncAllPos(ctx context.Context, triggeredBy string) []TaskResult {
	tasks := map[string]func(ctx context.Context) (int, error){
		"Supplier":     func(ctx context.Context) (int, error) { return s.SyncSuppliers(ctx, triggeredBy) },
		"Department":   func(ctx context.Context) (int, error) { return s.SyncDepartments(ctx, triggeredBy) },
		"Store":        func(ctx context.Context) (int, error) { return s.SyncStores(ctx, triggeredBy) },
		"Group":        func(ctx context.Context) (int, error) { return s.SyncGroups(ctx, triggeredBy) },
		"ProductGroup": func(ctx context.Context) (int, error) { return s.SyncProductGroups(ctx, triggeredBy) },
		"Product":      func(ctx context.Context) (int, error) { return s.SyncProducts(ctx, triggeredBy) },
		"Employee":     func(ctx context.Context) (int, error) { return s.SyncEmployees(ctx, triggeredBy) },
		"EmployeeRole": func(ctx context.Context) (int, error) { return s.SyncEmployeeRoles(ctx, triggeredBy) },
	}
	return waitAll(ctx, tasks)
}

// SyncEntityList синхронизирует один rootType общей таблицы справочников.
func (s *PosSyncer) SyncEntityList(ctx context.Context, rootType, triggeredBy string) (int, error) {
	return s.engine.Run(ctx, s.entityReconciler(rootType), triggeredBy)
}

func (s *PosSyncer) entityReconciler(rootType string) Reconciler {
	return Reconciler{
		Name: rootType, Table: "iiko_entity",
		Columns: entityColumns, Conflict: []string{"id", "root_type"}, KeyCol: "id::text",
		Scope: sq.Eq{"root_type": rootType},
		Fetch: func(ctx context.Context) ([]map[string]interface{}, error) {
			return s.client.FetchEntities(ctx, rootType)
		},
		Map: entityMapper(rootType),
	}
}

// SyncAllEntities забирает все 16 rootType параллельно, а пишет одной
// транзакцией: либо весь слепок справочников обновился, либо никакой.
// Журнал ведётся по каждому типу отдельно.
func (s *PosSyncer) SyncAllEntities(ctx context.Context, triggeredBy string) []TaskResult {
	release, err := s.engine.acquire(ctx, "entities_all")
	if err != nil {
		return []TaskResult{{Name: "entities_all", Err: err}}
	}
	defer release()

	t0 := time.Now()
	s.logger.Info("📊 Справочники: загружаю все типы параллельно",
		zap.Int("типов", len(entities.EntityRootTypes)))

	type fetched struct {
		rootType string
		items    []map[string]interface{}
		err      error
	}
	fetchedCh := make(chan fetched, len(entities.EntityRootTypes))
	for _, rt := range entities.EntityRootTypes {
		go func(rt string) {
			items, err := s.client.FetchEntities(ctx, rt)
			fetchedCh <- fetched{rootType: rt, items: items, err: err}
		}(rt)
	}
	byType := make(map[string]fetched, len(entities.EntityRootTypes))
	for range entities.EntityRootTypes {
		f := <-fetchedCh
		byType[f.rootType] = f
	}
	s.logger.Info("[API] Все типы получены", zap.Duration("время", time.Since(t0)))

	// Журнальные строки открываются до транзакции: упавший процесс
	// оставит running-строки как след падения.
	logIDs := make(map[string]int64, len(byType))
	counts := make(map[string]int, len(byType))
	now := localtime.Now()

	var allRows [][]interface{}
	keysByType := make(map[string][]string)
	for _, rt := range entities.EntityRootTypes {
		logID, err := s.engine.syncLogs.Start(ctx, rt, triggeredBy)
		if err != nil {
			return []TaskResult{{Name: "entities_all", Err: err}}
		}
		logIDs[rt] = logID

		f := byType[rt]
		if f.err != nil {
			continue
		}
		mapper := entityMapper(rt)
		for _, item := range f.items {
			row, ok := mapper(item, now)
			if !ok {
				continue
			}
			allRows = append(allRows, row.Values)
			keysByType[rt] = append(keysByType[rt], row.Key)
		}
		counts[rt] = len(keysByType[rt])
	}

	txErr := s.engine.txm.RunInTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := repositories.BatchUpsert(ctx, tx, "iiko_entity", entityColumns, []string{"id", "root_type"}, allRows); err != nil {
			return err
		}
		for _, rt := range entities.EntityRootTypes {
			if byType[rt].err != nil {
				continue
			}
			del, err := repositories.MirrorDelete(ctx, tx, "iiko_entity", "id::text", keysByType[rt], sq.Eq{"root_type": rt})
			if err != nil {
				return err
			}
			if del.Skipped {
				s.logger.Warn("⚠️ Зеркальное удаление пропущено",
					zap.String("rootType", rt), zap.String("причина", del.SkipReason))
			}
			if err := s.engine.syncLogs.MarkSuccess(ctx, tx, logIDs[rt], counts[rt]); err != nil {
				return err
			}
		}
		return nil
	})

	results := make([]TaskResult, 0, len(entities.EntityRootTypes))
	for _, rt := range entities.EntityRootTypes {
		f := byType[rt]
		switch {
		case f.err != nil:
			_ = s.engine.syncLogs.MarkError(ctx, logIDs[rt], f.err.Error())
			results = append(results, TaskResult{Name: rt, Err: f.err})
		case txErr != nil:
			_ = s.engine.syncLogs.MarkError(ctx, logIDs[rt], txErr.Error())
			results = append(results, TaskResult{Name: rt, Err: txErr})
		default:
			results = append(results, TaskResult{Name: rt, Count: counts[rt]})
		}
	}

	s.logger.Info("🏁 Справочники синхронизированы",
		zap.Int("строк", len(allRows)),
		zap.Int("ошибок", len(FailedNames(results))),
		zap.Duration("время", time.Since(t0)))
	return results
}
