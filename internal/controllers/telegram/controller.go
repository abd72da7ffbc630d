// Файл: internal/controllers/telegram/controller.go
// Диспетчер бота. Обновления читаются длинным опросом, каждое проходит
// цепочку: кулдаун → права → навигация → обработчик. Сообщения одного
// чата обрабатываются строго последовательно (иначе два быстрых текста
// наперегонки читают и пишут одну FSM-сессию), разные чаты — параллельно.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"resto-backoffice/internal/authz"
	"resto-backoffice/internal/services"
	syncer "resto-backoffice/internal/sync"
	"resto-backoffice/pkg/config"
	"resto-backoffice/pkg/cooldown"
	apperrors "resto-backoffice/pkg/errors"
	"resto-backoffice/pkg/fsm"
	"resto-backoffice/pkg/telegram"

	"go.uber.org/zap"
)

const (
	pollTimeout   = 30 * time.Second
	handleTimeout = 90 * time.Second
)

type Controller struct {
	bot      telegram.ServiceInterface
	sessions fsm.StorageInterface
	guard    *cooldown.Guard

	gatekeeper  authz.GatekeeperInterface
	userContext services.UserContextServiceInterface
	auth        services.AuthServiceInterface
	writeoff    services.WriteoffServiceInterface
	requests    services.RequestServiceInterface
	invoices    services.InvoiceServiceInterface
	minStock    services.MinStockServiceInterface
	stockAlerts services.StockAlertServiceInterface
	stoplist    services.StoplistServiceInterface
	ocr         services.OCRServiceInterface

	pos        *syncer.PosSyncer
	finance    *syncer.FinanceSyncer
	stock      *syncer.StockSyncer
	minStockSy *syncer.MinStockSyncer
	exporter   *syncer.Exporter

	cfg    *config.Config
	logger *zap.Logger

	// Последовательность в рамках чата.
	chatMu    sync.Mutex
	chatLocks map[int64]*chatLock
}

// chatLock — мьютекс одного чата со счётчиком ожидающих. Когда счётчик
// падает до нуля, запись выбрасывается из карты: карта растёт только до
// числа одновременно активных чатов, а не всех чатов за время жизни.
type chatLock struct {
	mu   sync.Mutex
	refs int
}

type Deps struct {
	Bot      telegram.ServiceInterface
	Sessions fsm.StorageInterface

	Gatekeeper  authz.GatekeeperInterface
	UserContext services.UserContextServiceInterface
	Auth        services.AuthServiceInterface
	Writeoff    services.WriteoffServiceInterface
	Requests    services.RequestServiceInterface
	Invoices    services.InvoiceServiceInterface
	MinStock    services.MinStockServiceInterface
	StockAlerts services.StockAlertServiceInterface
	Stoplist    services.StoplistServiceInterface
	OCR         services.OCRServiceInterface

	Pos          *syncer.PosSyncer
	Finance      *syncer.FinanceSyncer
	Stock        *syncer.StockSyncer
	MinStockSync *syncer.MinStockSyncer
	Exporter     *syncer.Exporter

	Cfg    *config.Config
	Logger *zap.Logger
}

func NewController(d Deps) *Controller {
	return &Controller{
		bot:         d.Bot,
		sessions:    d.Sessions,
		guard:       cooldown.NewGuard(),
		gatekeeper:  d.Gatekeeper,
		userContext: d.UserContext,
		auth:        d.Auth,
		writeoff:    d.Writeoff,
		requests:    d.Requests,
		invoices:    d.Invoices,
		minStock:    d.MinStock,
		stockAlerts: d.StockAlerts,
		stoplist:    d.Stoplist,
		ocr:         d.OCR,
		pos:         d.Pos,
		finance:     d.Finance,
		stock:       d.Stock,
		minStockSy:  d.MinStockSync,
		exporter:    d.Exporter,
		cfg:         d.Cfg,
		logger:      d.Logger,
		chatLocks:   make(map[int64]*chatLock),
	}
}

// Run крутит длинный опрос до отмены контекста.
func (c *Controller) Run(ctx context.Context) {
	c.logger.Info("🚀 Бот запущен, слушаю обновления")
	var offset int64

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("🏁 Бот остановлен")
			return
		default:
		}

		updates, err := c.bot.GetUpdates(ctx, offset, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.logger.Warn("⚠️ Ошибка длинного опроса", zap.Error(err))
			time.Sleep(3 * time.Second)
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			upd := upd
			go c.dispatch(upd)
		}
	}
}

func (c *Controller) acquireChat(chatID int64) *chatLock {
	c.chatMu.Lock()
	l, ok := c.chatLocks[chatID]
	if !ok {
		l = &chatLock{}
		c.chatLocks[chatID] = l
	}
	l.refs++
	c.chatMu.Unlock()

	l.mu.Lock()
	return l
}

func (c *Controller) releaseChat(chatID int64, l *chatLock) {
	l.mu.Unlock()

	c.chatMu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(c.chatLocks, chatID)
	}
	c.chatMu.Unlock()
}

func (c *Controller) dispatch(upd telegram.Update) {
	chatID := updateChatID(upd)
	if chatID == 0 {
		return
	}

	l := c.acquireChat(chatID)
	defer c.releaseChat(chatID, l)

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			c.logger.Error("💥 Паника в обработчике", zap.Int64("chat", chatID), zap.Any("panic", p))
			_, _ = c.bot.SendMessage(ctx, chatID, "💥 Что-то пошло не так. Попробуйте ещё раз или /start.")
		}
	}()

	var err error
	switch {
	case upd.CallbackQuery != nil:
		err = c.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil:
		err = c.handleMessage(ctx, upd.Message)
	}
	if err != nil {
		c.reportError(ctx, chatID, err)
	}
}

func updateChatID(upd telegram.Update) int64 {
	if upd.Message != nil {
		return upd.Message.Chat.ID
	}
	if upd.CallbackQuery != nil && upd.CallbackQuery.Message != nil {
		return upd.CallbackQuery.Message.Chat.ID
	}
	return 0
}

// reportError переводит ошибку на человеческий. Технические детали
// остаются в логах, пользователь видит короткую строку с эмодзи.
func (c *Controller) reportError(ctx context.Context, chatID int64, err error) {
	var invalid *apperrors.InvalidInputError

	var text string
	switch {
	case errors.As(err, &invalid):
		text = "⚠️ " + invalid.Message
	case errors.Is(err, apperrors.ErrEmployeeNotFound):
		text = "⚠️ Сотрудник не найден. Проверьте фамилию."
	case errors.Is(err, apperrors.ErrPendingLocked):
		text = "⏳ Документ уже обрабатывает другой администратор."
	case errors.Is(err, apperrors.ErrPendingNotFound):
		text = "⚠️ Черновик не найден или истёк."
	case errors.Is(err, apperrors.ErrSyncAlreadyRunning):
		text = "⏳ Синхронизация уже идёт, подождите."
	case errors.Is(err, apperrors.ErrAccessDenied):
		text = "🚫 Недостаточно прав."
	case apperrors.IsTransient(err):
		text = "🌐 Внешний сервис не отвечает. Попробуйте через минуту."
	default:
		text = "💥 Не получилось. Попробуйте ещё раз или /start."
	}

	c.logger.Warn("⚠️ Ошибка обработчика", zap.Int64("chat", chatID), zap.Error(err))
	if _, sendErr := c.bot.SendMessage(ctx, chatID, text); sendErr != nil {
		c.logger.Warn("⚠️ Сообщение об ошибке не доставлено", zap.Error(sendErr))
	}
}

// cooldownAction подбирает интервал по виду действия.
func cooldownAction(text, callbackData string) cooldown.Action {
	switch {
	case callbackData != "":
		switch {
		case strings.HasPrefix(callbackData, "woa_"), strings.HasPrefix(callbackData, "req_approve:"),
			strings.HasPrefix(callbackData, "req_reject:"), strings.HasPrefix(callbackData, "req_edit:"):
			return cooldown.ActionAdmin
		case callbackData == "wo_send", callbackData == "rq_send",
			strings.HasPrefix(callbackData, "inv_send:"), strings.HasPrefix(callbackData, "iiko_invoice_send:"):
			return cooldown.ActionFinalize
		default:
			return cooldown.ActionNavigate
		}
	case strings.Contains(text, "Синхр"), text == "📥 Мин. остатки → БД", text == "📤 Номенклатура → книга":
		return cooldown.ActionSync
	default:
		return cooldown.ActionNavigate
	}
}

func (c *Controller) handleMessage(ctx context.Context, msg *telegram.Message) error {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	if !c.guard.Allow(chatID, cooldownAction(text, "")) {
		return nil
	}

	// Права проверяются только у кнопок. Свободный текст — это ответы
	// на вопросы сценариев, их фильтрует состояние FSM.
	if perm, ok := authz.RequiredPermForText(text); ok {
		if !c.gatekeeper.Can(ctx, chatID, perm) {
			_, err := c.bot.SendMessage(ctx, chatID, "🚫 Недостаточно прав для этого раздела.")
			return err
		}
	}

	session, err := c.sessions.Load(ctx, chatID)
	if err != nil {
		return err
	}

	// Навигация: кнопка верхнего уровня на любом шаге сценария сбрасывает
	// сессию и выполняется как обычно.
	if session.State != "" && c.isTopLevel(text) {
		c.cleanupTracked(ctx, chatID, session)
		if err := c.sessions.Clear(ctx, chatID); err != nil {
			c.logger.Warn("⚠️ Сессия не очищена", zap.Error(err))
		}
		session = fsm.NewSession()
	}

	return c.routeMessage(ctx, msg, session)
}

func (c *Controller) handleCallback(ctx context.Context, cb *telegram.CallbackQuery) error {
	if cb.Message == nil {
		return nil
	}
	chatID := cb.Message.Chat.ID
	data := cb.Data

	if !c.guard.Allow(chatID, cooldownAction("", data)) {
		return c.bot.AnswerCallbackQuery(ctx, cb.ID, "⏳ Не так быстро")
	}

	if perm, ok := authz.RequiredPermForCallback(data); ok {
		if !c.gatekeeper.Can(ctx, chatID, perm) {
			return c.bot.AnswerCallbackQuery(ctx, cb.ID, "🚫 Недостаточно прав")
		}
	}

	session, err := c.sessions.Load(ctx, chatID)
	if err != nil {
		return err
	}

	// Спиннер на кнопке гасится до работы обработчика: долгие шаги не
	// должны держать кнопку «нажатой».
	if err := c.bot.AnswerCallbackQuery(ctx, cb.ID, ""); err != nil {
		c.logger.Debug("callback не подтверждён", zap.String("id", cb.ID), zap.Error(err))
	}
	return c.routeCallback(ctx, cb, session)
}

// --- ГЛАВНОЕ МЕНЮ ---

var menuOrder = []string{"📝 Списания", "📦 Накладные", "📋 Заявки", "📊 Отчёты", "📑 Документы", "⚙️ Настройки"}

func (c *Controller) isTopLevel(text string) bool {
	for _, btn := range menuOrder {
		if text == btn {
			return true
		}
	}
	return text == "/start" || text == "/cancel" || text == "⬅️ Главное меню"
}

// mainMenu строит клавиатуру из разделов, на которые у пользователя
// есть хоть одно право.
func (c *Controller) mainMenu(ctx context.Context, chatID int64) [][]telegram.ReplyKeyboardButton {
	perms := c.gatekeeper.PermsFor(ctx, chatID)

	var rows [][]telegram.ReplyKeyboardButton
	var row []telegram.ReplyKeyboardButton
	for _, btn := range menuOrder {
		allowed := false
		for _, key := range authz.MenuButtonGroups[btn] {
			if perms[key] {
				allowed = true
				break
			}
		}
		if !allowed {
			continue
		}
		row = append(row, telegram.ReplyKeyboardButton{Text: btn})
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return rows
}

func (c *Controller) sendMainMenu(ctx context.Context, chatID int64, greeting string) error {
	rows := c.mainMenu(ctx, chatID)
	if len(rows) == 0 {
		_, err := c.bot.SendMessage(ctx, chatID, "🚫 Вам пока не выдали прав. Обратитесь к администратору.")
		return err
	}
	_, err := c.bot.SendMessageEx(ctx, chatID, telegram.EscapeTextForMarkdownV2(greeting),
		telegram.WithMarkdownV2(), telegram.WithReplyKeyboard(rows))
	return err
}

// cleanupTracked удаляет служебные сообщения сценария, id которых
// сценарий складывал в сессию.
func (c *Controller) cleanupTracked(ctx context.Context, chatID int64, session *fsm.Session) {
	var ids []int
	if session.Get("tracked_msgs", &ids) {
		for _, id := range ids {
			if err := c.bot.DeleteMessage(ctx, chatID, id); err != nil {
				c.logger.Debug("служебное сообщение не удалено", zap.Int("msg", id), zap.Error(err))
			}
		}
	}
}

func trackMessage(session *fsm.Session, msgID int) {
	var ids []int
	session.Get("tracked_msgs", &ids)
	ids = append(ids, msgID)
	_ = session.Set("tracked_msgs", ids)
}

// showPrompt держит сценарий в одном окне: правит текущее служебное
// сообщение, а новое шлёт только когда править нечего (или Telegram уже
// удалил старое). Id окна живёт в сессии и чистится вместе с ней.
func (c *Controller) showPrompt(ctx context.Context, chatID int64, session *fsm.Session, text string, options ...telegram.MessageOption) error {
	var promptID int
	session.Get("prompt_msg", &promptID)

	msgID, err := c.bot.EditOrSendMessage(ctx, chatID, promptID, text, options...)
	if err != nil {
		return err
	}
	if msgID != promptID {
		if err := session.Set("prompt_msg", msgID); err != nil {
			return err
		}
		trackMessage(session, msgID)
	}
	return c.sessions.Save(ctx, chatID, session)
}

// consumeInput убирает текстовый ответ пользователя из чата после разбора.
func (c *Controller) consumeInput(ctx context.Context, chatID int64, messageID int) {
	if messageID == 0 {
		return
	}
	if err := c.bot.DeleteMessage(ctx, chatID, messageID); err != nil {
		c.logger.Debug("ввод пользователя не удалён", zap.Int("msg", messageID), zap.Error(err))
	}
}
