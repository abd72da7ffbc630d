// Файл: internal/sync/engine.go
// Единый шаблон зеркальной синхронизации: fetch -> map -> batch upsert ->
// mirror delete -> журнал. Каждая синхронизация защищена распределённым
// локом, чтобы кнопка в боте и планировщик не запускали одно и то же дважды.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"resto-backoffice/internal/repositories"
	apperrors "resto-backoffice/pkg/errors"
	"resto-backoffice/pkg/localtime"

	sq "github.com/Masterminds/squirrel"
	"github.com/bsm/redislock"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Лок живёт дольше самой долгой синхронизации: повисший процесс
// не должен блокировать ночной запуск навсегда.
const syncLockTTL = 10 * time.Minute

// Row — одна строка зеркала: значения в порядке колонок реконсилера
// плюс ключ для зеркального удаления.
type Row struct {
	Key    string
	Values []interface{}
}

// Mapper переводит запись источника в строку зеркала.
// ok=false означает «запись битая, пропустить и посчитать».
type Mapper func(item map[string]interface{}, now time.Time) (Row, bool)

// Reconciler описывает одно зеркало: откуда брать, куда класть.
type Reconciler struct {
	Name     string
	Table    string
	Columns  []string
	Conflict []string
	// KeyCol — выражение колонки-ключа для зеркального удаления,
	// приведённое к тексту (id::text), параметры передаются как text[].
	KeyCol string
	Scope  sq.Sqlizer
	Fetch  func(ctx context.Context) ([]map[string]interface{}, error)
	Map    Mapper
}

type Engine struct {
	txm      repositories.TxManagerInterface
	locker   *redislock.Client
	syncLogs repositories.SyncLogRepositoryInterface
	logger   *zap.Logger
}

func NewEngine(txm repositories.TxManagerInterface, locker *redislock.Client, syncLogs repositories.SyncLogRepositoryInterface, logger *zap.Logger) *Engine {
	return &Engine{txm: txm, locker: locker, syncLogs: syncLogs, logger: logger}
}

// acquire берёт неблокирующий лок sync:<name>. Занятый лок означает,
// что та же синхронизация уже идёт, и это не ошибка для вызвавшего.
func (e *Engine) acquire(ctx context.Context, name string) (func(), error) {
	if e.locker == nil {
		return func() {}, nil
	}
	lock, err := e.locker.Obtain(ctx, "sync:"+name, syncLockTTL, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, apperrors.ErrSyncAlreadyRunning
		}
		return nil, fmt.Errorf("не удалось взять лок синхронизации %s: %w", name, err)
	}
	return func() {
		if err := lock.Release(context.Background()); err != nil {
			e.logger.Warn("⚠️ Не удалось снять лок синхронизации", zap.String("имя", name), zap.Error(err))
		}
	}, nil
}

// Run выполняет один цикл синхронизации реконсилера.
// Возвращает число обработанных строк.
func (e *Engine) Run(ctx context.Context, rec Reconciler, triggeredBy string) (int, error) {
	release, err := e.acquire(ctx, rec.Name)
	if err != nil {
		return 0, err
	}
	defer release()

	t0 := time.Now()
	e.logger.Info("📊 Начинаю синхронизацию", zap.String("зеркало", rec.Name))

	logID, err := e.syncLogs.Start(ctx, rec.Name, triggeredBy)
	if err != nil {
		return 0, fmt.Errorf("не удалось открыть журнал синхронизации %s: %w", rec.Name, err)
	}

	count, err := e.runLogged(ctx, rec, logID, t0)
	if err != nil {
		if markErr := e.syncLogs.MarkError(ctx, logID, err.Error()); markErr != nil {
			e.logger.Error("💥 Не удалось записать ошибку в журнал",
				zap.String("зеркало", rec.Name), zap.Error(markErr))
		}
		e.logger.Error("💥 Синхронизация упала",
			zap.String("зеркало", rec.Name), zap.Duration("время", time.Since(t0)), zap.Error(err))
		return 0, err
	}
	return count, nil
}

func (e *Engine) runLogged(ctx context.Context, rec Reconciler, logID int64, t0 time.Time) (int, error) {
	items, err := rec.Fetch(ctx)
	if err != nil {
		return 0, err
	}
	e.logger.Info("[API] Данные получены",
		zap.String("зеркало", rec.Name), zap.Int("записей", len(items)), zap.Duration("время", time.Since(t0)))

	now := localtime.Now()
	rows := make([][]interface{}, 0, len(items))
	keys := make([]string, 0, len(items))
	for _, item := range items {
		row, ok := rec.Map(item, now)
		if !ok {
			continue
		}
		rows = append(rows, row.Values)
		keys = append(keys, row.Key)
	}
	if skipped := len(items) - len(rows); skipped > 0 {
		e.logger.Warn("⚠️ Пропущены битые записи",
			zap.String("зеркало", rec.Name), zap.Int("пропущено", skipped))
	}

	var count int
	err = e.txm.RunInTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		count, err = repositories.BatchUpsert(ctx, tx, rec.Table, rec.Columns, rec.Conflict, rows)
		if err != nil {
			return err
		}

		del, err := repositories.MirrorDelete(ctx, tx, rec.Table, rec.KeyCol, keys, rec.Scope)
		if err != nil {
			return err
		}
		if del.Skipped {
			e.logger.Warn("⚠️ Зеркальное удаление пропущено",
				zap.String("зеркало", rec.Name), zap.String("причина", del.SkipReason))
		} else if del.Deleted > 0 {
			e.logger.Info("🗑 Зеркальное удаление",
				zap.String("зеркало", rec.Name), zap.Int64("удалено", del.Deleted))
		}

		return e.syncLogs.MarkSuccess(ctx, tx, logID, count)
	})
	if err != nil {
		return 0, err
	}

	e.logger.Info("🏁 Синхронизация завершена",
		zap.String("зеркало", rec.Name), zap.Int("записей", count), zap.Duration("время", time.Since(t0)))
	return count, nil
}

// TaskResult — итог одной задачи веера.
type TaskResult struct {
	Name  string
	Count int
	Err   error
}

// waitAll запускает задачи параллельно и дожидается всех.
// В отличие от errgroup первая ошибка не отменяет остальных: ночной
// прогон должен домучить все зеркала и отчитаться по каждому.
func waitAll(ctx context.Context, tasks map[string]func(ctx context.Context) (int, error)) []TaskResult {
	results := make(chan TaskResult, len(tasks))
	for name, task := range tasks {
		go func(name string, task func(ctx context.Context) (int, error)) {
			count, err := task(ctx)
			results <- TaskResult{Name: name, Count: count, Err: err}
		}(name, task)
	}

	out := make([]TaskResult, 0, len(tasks))
	for range tasks {
		out = append(out, <-results)
	}
	return out
}

// FailedNames собирает имена задач, завершившихся ошибкой.
func FailedNames(results []TaskResult) []string {
	var failed []string
	for _, r := range results {
		if r.Err != nil && !errors.Is(r.Err, apperrors.ErrSyncAlreadyRunning) {
			failed = append(failed, r.Name)
		}
	}
	return failed
}
