// Файл: main.go

package main

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"resto-backoffice/internal/authz"
	"resto-backoffice/internal/clients/fintablo"
	"resto-backoffice/internal/clients/iiko"
	"resto-backoffice/internal/clients/iikocloud"
	telegramctl "resto-backoffice/internal/controllers/telegram"
	"resto-backoffice/internal/controllers/webhook"
	"resto-backoffice/internal/integrations/sheets"
	"resto-backoffice/internal/repositories"
	"resto-backoffice/internal/routes"
	"resto-backoffice/internal/scheduler"
	"resto-backoffice/internal/services"
	syncer "resto-backoffice/internal/sync"
	"resto-backoffice/migrations"
	"resto-backoffice/pkg/config"
	"resto-backoffice/pkg/database/postgresql"
	"resto-backoffice/pkg/fsm"
	"resto-backoffice/pkg/localtime"
	applogger "resto-backoffice/pkg/logger"
	"resto-backoffice/pkg/telegram"
	"resto-backoffice/pkg/validation"

	"github.com/bsm/redislock"
	"github.com/go-redis/redis/v8"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

func main() {
	logger := applogger.NewLogger()
	defer logger.Sync()

	cfg, err := config.New()
	if err != nil {
		logger.Fatal("💥 Конфигурация не собралась", zap.Error(err))
	}

	verb := "run"
	if len(os.Args) > 1 {
		verb = os.Args[1]
	}

	switch verb {
	case "init-schema":
		if err := runMigrations(cfg.Postgres.DSN); err != nil {
			logger.Fatal("💥 Миграции не накатились", zap.Error(err))
		}
		logger.Info("✅ Схема базы актуальна")
	case "run":
		run(cfg, logger)
	default:
		logger.Fatal("💥 Неизвестная команда, доступны run и init-schema", zap.String("команда", verb))
	}
}

func run(cfg *config.Config, logger *zap.Logger) {
	if err := localtime.Init(cfg.Timezone); err != nil {
		logger.Fatal("💥 Часовой пояс не загрузился", zap.String("зона", cfg.Timezone), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runMigrations(cfg.Postgres.DSN); err != nil {
		logger.Fatal("💥 Миграции не накатились", zap.Error(err))
	}

	pool, err := postgresql.ConnectDB(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Fatal("💥 Не удалось подключиться к PostgreSQL", zap.Error(err))
	}
	defer pool.Close()

	// Redis опционален: без него блокировки синхронизаций отключаются,
	// а сессии и кеш живут в памяти процесса.
	var (
		locker   *redislock.Client
		cache    repositories.CacheRepositoryInterface
		sessions fsm.StorageInterface
	)
	if cfg.Redis.Address != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("💥 Redis недоступен", zap.String("адрес", cfg.Redis.Address), zap.Error(err))
		}
		defer redisClient.Close()

		locker = redislock.New(redisClient)
		cache = repositories.NewRedisCacheRepository(redisClient)
		sessions = fsm.NewRedisStorage(redisClient)
		logger.Info("🔑 Redis подключён", zap.String("адрес", cfg.Redis.Address))
	} else {
		cache = repositories.NewMemoryCacheRepository()
		sessions = fsm.NewMemoryStorage()
		logger.Warn("⚠️ REDIS_ADDRESS не задан: кеш и сессии в памяти, блокировки синхронизаций выключены")
	}

	// Клиенты внешних API. Серверный API iiko принимает пароль только
	// в виде SHA-1.
	passwordHash := sha1.Sum([]byte(cfg.Iiko.Password))
	posClient := iiko.NewClient(cfg.Iiko, hex.EncodeToString(passwordHash[:]), logger)
	financeClient := fintablo.NewClient(cfg.Fintablo, logger)
	workbook := sheets.NewClient(cfg.Sheet.WorkbookPath, logger)
	bot := telegram.NewService(cfg.Telegram.BotToken)

	txm := repositories.NewTxManager(pool)
	employees := repositories.NewEmployeeRepository(pool)
	dicts := repositories.NewCachedDictionaryRepository(repositories.NewDictionaryRepository(pool), cache, logger)
	syncLogs := repositories.NewSyncLogRepository(pool)
	stocks := repositories.NewStockRepository(pool)
	minStocks := repositories.NewMinStockRepository(pool)
	pending := repositories.NewPendingWriteoffRepository(pool)
	woHistory := repositories.NewWriteoffHistoryRepository(pool)
	requests := repositories.NewProductRequestRepository(pool)
	templates := repositories.NewInvoiceTemplateRepository(pool)
	stoplists := repositories.NewStoplistRepository(pool)
	pinned := repositories.NewPinnedMessageRepository(pool)
	cloudTokens := repositories.NewCloudTokenRepository(pool)
	legacy := repositories.NewLegacyAdminRepository(pool)

	cloudClient := iikocloud.NewClient(cfg.Cloud, cloudTokens, logger)

	engine := syncer.NewEngine(txm, locker, syncLogs, logger)
	posSync := syncer.NewPosSyncer(engine, posClient, logger)
	financeSync := syncer.NewFinanceSyncer(engine, financeClient, logger)
	stockSync := syncer.NewStockSyncer(engine, posClient, stocks, dicts, logger)
	minStockSync := syncer.NewMinStockSyncer(engine, workbook, minStocks, dicts, cfg.Sheet, logger)
	exporter := syncer.NewExporter(workbook, employees, dicts, cfg.Sheet, logger)

	gatekeeper := authz.NewGatekeeper(workbook, cache, legacy, cfg, logger)
	userContext := services.NewUserContextService(employees, cache, logger)
	authService := services.NewAuthService(employees, dicts, txm, userContext, logger)
	writeoffService := services.NewWriteoffService(pending, woHistory, dicts, posClient, gatekeeper, bot, logger)
	requestService := services.NewRequestService(requests, gatekeeper, legacy, bot, cfg.LegacyAdminTables, logger)
	invoiceService := services.NewInvoiceService(templates, dicts, posClient, logger)
	minStockService := services.NewMinStockService(minStocks, dicts, minStockSync, logger)
	stockAlertService := services.NewStockAlertService(stocks, stockSync, cache, userContext, gatekeeper, pinned, bot, cfg.Stock, logger)
	stoplistService := services.NewStoplistService(cloudClient, stoplists, pinned, dicts, txm, workbook, gatekeeper, bot, cfg, logger)
	transferService := services.NewTransferService(posClient, dicts, syncLogs, txm, gatekeeper, bot, cfg.Transfer, logger)
	// Внешний распознаватель накладных подключается здесь; без него
	// кнопка распознавания вернёт пользователю понятный отказ.
	ocrService := services.NewOCRService(nil, dicts, posClient, logger)

	sched := scheduler.New(posSync, financeSync, stockSync, minStockSync, exporter,
		stoplistService, transferService, syncLogs, txm, gatekeeper, bot, logger)
	if err := sched.Start(ctx); err != nil {
		logger.Fatal("💥 Планировщик не запустился", zap.Error(err))
	}
	defer sched.Stop()

	botController := telegramctl.NewController(telegramctl.Deps{
		Bot:          bot,
		Sessions:     sessions,
		Gatekeeper:   gatekeeper,
		UserContext:  userContext,
		Auth:         authService,
		Writeoff:     writeoffService,
		Requests:     requestService,
		Invoices:     invoiceService,
		MinStock:     minStockService,
		StockAlerts:  stockAlertService,
		Stoplist:     stoplistService,
		OCR:          ocrService,
		Pos:          posSync,
		Finance:      financeSync,
		Stock:        stockSync,
		MinStockSync: minStockSync,
		Exporter:     exporter,
		Cfg:          cfg,
		Logger:       logger,
	})
	go botController.Run(ctx)

	// HTTP-поверхность: вебхуки облака и health-check.
	e := echo.New()
	e.HideBanner = true
	e.Validator = validation.New()
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		DisableStackAll: true,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Error("💥 Паника в HTTP-обработчике",
				zap.String("uri", c.Request().RequestURI), zap.Error(err), zap.String("stack", string(stack)))
			return c.NoContent(http.StatusInternalServerError)
		},
	}))

	webhookCtl := webhook.NewController(cloudClient, stoplistService, stockAlertService, logger)
	routes.InitRouter(e, pool, webhookCtl, cfg, logger)

	go func() {
		if err := e.Start(":" + cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("💥 HTTP-сервер упал", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("🏁 Получен сигнал остановки, завершаю работу")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn("⚠️ HTTP-сервер остановился с ошибкой", zap.Error(err))
	}
}

// runMigrations накатывает зашитые миграции отдельным коротким
// подключением через database/sql, как того требует goose.
func runMigrations(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, ".")
}
