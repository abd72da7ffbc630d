// Файл: internal/scheduler/scheduler.go
// Расписание фоновых работ. Всё крутится в часовом поясе ресторанов:
// 07:00 — полная цепочка синхронизаций и выгрузок, 22:00 — вечерний отчёт
// по стоп-листу, 23:00 — закрытие минусов расходников.
// Задачи ходят через те же redis-блокировки, что и ручные кнопки,
// поэтому пересечение с ручным запуском безопасно.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"resto-backoffice/internal/authz"
	"resto-backoffice/internal/repositories"
	"resto-backoffice/internal/services"
	"resto-backoffice/internal/sync"
	apperrors "resto-backoffice/pkg/errors"
	"resto-backoffice/pkg/localtime"
	"resto-backoffice/pkg/telegram"

	"github.com/jackc/pgx/v5"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	dailyChainLog    = "daily_chain"
	eveningReportLog = "evening_report"
	// Имя совпадает с записью сервиса перемещений: догон смотрит в тот же журнал.
	transferLog = "NegativeTransfer"

	// Опоздание допустимо в пределах часа после слота: рестарт в 07:40
	// ещё догоняет цепочку, рестарт в обед — уже нет.
	misfireGrace = time.Hour
	misfireStale = 25 * time.Hour
)

type Scheduler struct {
	cron *cron.Cron

	pos      *sync.PosSyncer
	finance  *sync.FinanceSyncer
	stock    *sync.StockSyncer
	minStock *sync.MinStockSyncer
	exporter *sync.Exporter

	stoplist services.StoplistServiceInterface
	transfer services.TransferServiceInterface

	syncLogs   repositories.SyncLogRepositoryInterface
	txm        repositories.TxManagerInterface
	gatekeeper authz.GatekeeperInterface
	bot        telegram.ServiceInterface
	logger     *zap.Logger
}

func New(
	pos *sync.PosSyncer,
	finance *sync.FinanceSyncer,
	stock *sync.StockSyncer,
	minStock *sync.MinStockSyncer,
	exporter *sync.Exporter,
	stoplist services.StoplistServiceInterface,
	transfer services.TransferServiceInterface,
	syncLogs repositories.SyncLogRepositoryInterface,
	txm repositories.TxManagerInterface,
	gatekeeper authz.GatekeeperInterface,
	bot telegram.ServiceInterface,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(localtime.Location())),
		pos:      pos, finance: finance, stock: stock, minStock: minStock,
		exporter: exporter, stoplist: stoplist, transfer: transfer,
		syncLogs: syncLogs, txm: txm, gatekeeper: gatekeeper, bot: bot,
		logger:   logger,
	}
}

// Джоба расписания: слот, журнальное имя для догона после рестарта
// и сама работа.
type job struct {
	spec    string
	name    string
	hour    int
	logName string
	run     func(context.Context)
}

func (s *Scheduler) jobs() []job {
	return []job{
		{"0 7 * * *", "утренняя цепочка", 7, dailyChainLog, s.runDailyChain},
		{"0 22 * * *", "вечерний отчёт по стоп-листу", 22, eveningReportLog, s.runEveningReport},
		{"0 23 * * *", "закрытие минусов расходников", 23, transferLog, s.runNegativeTransfer},
	}
}

// Start регистрирует задачи и запускает планировщик. Слот, пропущенный
// из-за рестарта, отрабатывается один раз при старте.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, j := range s.jobs() {
		j := j
		if _, err := s.cron.AddFunc(j.spec, func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()
			j.run(jobCtx)
		}); err != nil {
			return fmt.Errorf("не удалось зарегистрировать задачу %q: %w", j.name, err)
		}
		s.logger.Info("⏳ Задача в расписании", zap.String("задача", j.name), zap.String("cron", j.spec))
	}

	s.cron.Start()

	now := localtime.Now()
	for _, j := range s.jobs() {
		if !s.shouldCatchUp(ctx, now, j.hour, j.logName) {
			continue
		}
		j := j
		s.logger.Warn("⚠️ Слот пропущен, догоняю", zap.String("задача", j.name))
		go func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()
			j.run(jobCtx)
		}()
	}
	return nil
}

func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("🏁 Планировщик остановлен")
}

// shouldCatchUp: последний удачный проход задачи старше 25 часов и текущее
// время в пределах часа после её слота.
func (s *Scheduler) shouldCatchUp(ctx context.Context, now time.Time, hour int, logName string) bool {
	slot := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if now.Before(slot) || now.After(slot.Add(misfireGrace)) {
		return false
	}

	last, err := s.syncLogs.LastSuccess(ctx, logName)
	if err != nil {
		// Журнал пуст: задача ещё ни разу не проходила, запускаем.
		return true
	}
	return last.FinishedAt == nil || now.Sub(*last.FinishedAt) > misfireStale
}

func (s *Scheduler) runDailyChain(ctx context.Context) {
	t0 := time.Now()
	logID, err := s.syncLogs.Start(ctx, dailyChainLog, "cron")
	if err != nil {
		s.logger.Error("💥 Цепочка не стартовала, журнал недоступен", zap.Error(err))
		return
	}

	total, err := s.dailyChain(ctx)
	if err != nil {
		if logErr := s.syncLogs.MarkError(ctx, logID, err.Error()); logErr != nil {
			s.logger.Warn("⚠️ Ошибка цепочки не записана в журнал", zap.Error(logErr))
		}
		s.logger.Error("💥 Утренняя цепочка завершилась с ошибками",
			zap.Error(err), zap.Duration("время", time.Since(t0)))
		s.notifyAdmins(ctx, fmt.Sprintf("💥 Утренняя синхронизация прошла с ошибками: %v", err))
		return
	}

	err = s.txm.RunInTransaction(ctx, func(tx pgx.Tx) error {
		return s.syncLogs.MarkSuccess(ctx, tx, logID, total)
	})
	if err != nil {
		s.logger.Warn("⚠️ Итог цепочки не записан в журнал", zap.Error(err))
	}
	s.logger.Info("🚀 Утренняя цепочка завершена",
		zap.Int("записей", total), zap.Duration("время", time.Since(t0)))
}

// dailyChain выполняет шаги последовательно: справочники нужны остаткам,
// остатки — выгрузкам. Ошибка шага не прерывает цепочку, а копится:
// упавшая синхронизация финансов не повод не выгружать номенклатуру.
func (s *Scheduler) dailyChain(ctx context.Context) (int, error) {
	var failures []string
	total := 0

	count := func(n int, err error, step string) {
		total += n
		// Параллельный ручной запуск не считается ошибкой цепочки.
		if err != nil && !errors.Is(err, apperrors.ErrSyncAlreadyRunning) {
			failures = append(failures, fmt.Sprintf("%s: %v", step, err))
		}
	}

	for _, r := range s.pos.SyncAllPos(ctx, "cron") {
		count(r.Count, r.Err, "pos:"+r.Name)
	}
	for _, r := range s.pos.SyncAllEntities(ctx, "cron") {
		count(r.Count, r.Err, "entities:"+r.Name)
	}
	for _, r := range s.finance.SyncAllFinance(ctx, "cron") {
		count(r.Count, r.Err, "fintablo:"+r.Name)
	}

	n, err := s.stock.SyncStockBalances(ctx, "cron")
	count(n, err, "остатки")

	n, err = s.minStock.ImportLevels(ctx, "cron")
	count(n, err, "минимумы")

	n, err = s.exporter.ExportCatalog(ctx)
	count(n, err, "выгрузка номенклатуры")

	n, err = s.exporter.ExportPermissions(ctx, authz.AllColumnKeys, authz.PermTitles())
	count(n, err, "выгрузка прав")

	if len(failures) > 0 {
		return total, fmt.Errorf("шагов с ошибками %d: %s", len(failures), failures[0])
	}
	return total, nil
}

func (s *Scheduler) runEveningReport(ctx context.Context) {
	logID, err := s.syncLogs.Start(ctx, eveningReportLog, "cron")
	if err != nil {
		s.logger.Error("💥 Вечерний отчёт не стартовал, журнал недоступен", zap.Error(err))
		return
	}

	if err := s.stoplist.EveningReport(ctx); err != nil {
		s.logger.Error("💥 Вечерний отчёт по стоп-листу упал", zap.Error(err))
		if logErr := s.syncLogs.MarkError(ctx, logID, err.Error()); logErr != nil {
			s.logger.Warn("⚠️ Ошибка отчёта не записана в журнал", zap.Error(logErr))
		}
		return
	}

	err = s.txm.RunInTransaction(ctx, func(tx pgx.Tx) error {
		return s.syncLogs.MarkSuccess(ctx, tx, logID, 0)
	})
	if err != nil {
		s.logger.Warn("⚠️ Итог отчёта не записан в журнал", zap.Error(err))
	}
}

func (s *Scheduler) runNegativeTransfer(ctx context.Context) {
	if _, err := s.transfer.RunNegativeTransfer(ctx); err != nil {
		s.logger.Error("💥 Ночное перемещение упало", zap.Error(err))
	}
}

func (s *Scheduler) notifyAdmins(ctx context.Context, text string) {
	for _, chatID := range s.gatekeeper.AdminIDs(ctx) {
		if _, err := s.bot.SendMessage(ctx, chatID, text); err != nil {
			s.logger.Warn("⚠️ Администратор не уведомлён", zap.Int64("chat", chatID), zap.Error(err))
		}
	}
}
