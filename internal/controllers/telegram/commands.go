// Файл: internal/controllers/telegram/commands.go
// Текстовые обработчики: команды, кнопки меню и ответы на вопросы
// сценариев. Какой вопрос сейчас задан, помнит FSM-сессия чата.
package telegram

import (
	"context"
	"fmt"
	"strings"

	"resto-backoffice/internal/entities"
	"resto-backoffice/internal/services"
	syncer "resto-backoffice/internal/sync"
	"resto-backoffice/pkg/cooldown"
	apperrors "resto-backoffice/pkg/errors"
	"resto-backoffice/pkg/fsm"
	"resto-backoffice/pkg/telegram"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Состояния диалогов.
const (
	stateAuthLastName = "auth:lastname"

	stateWoReason  = "wo:reason"
	stateWoProduct = "wo:product"
	stateWoQty     = "wo:qty"

	stateRqProduct = "rq:product"
	stateRqQty     = "rq:qty"

	stateInvSupplier = "inv:supplier"
	stateInvProduct  = "inv:product"
	stateInvQty      = "inv:qty"
	stateInvName     = "inv:name"

	stateMsProduct = "ms:product"
	stateMsLevels  = "ms:levels"

	stateOcrPhotos = "ocr:photos"
)

func (c *Controller) routeMessage(ctx context.Context, msg *telegram.Message, session *fsm.Session) error {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	switch text {
	case "/start":
		return c.cmdStart(ctx, chatID)
	case "/cancel", "⬅️ Главное меню":
		c.cleanupTracked(ctx, chatID, session)
		if err := c.sessions.Clear(ctx, chatID); err != nil {
			c.logger.Warn("⚠️ Сессия не очищена", zap.Error(err))
		}
		return c.sendMainMenu(ctx, chatID, "Главное меню.")
	}

	// Фото принимаются только в сценарии распознавания.
	if len(msg.Photo) > 0 {
		if session.State == stateOcrPhotos {
			return c.ocrCollectPhoto(ctx, msg, session)
		}
		_, err := c.bot.SendMessage(ctx, chatID, "⚠️ Фото принимаются в разделе 📑 Документы → 📤 Загрузить накладные.")
		return err
	}

	// Ответы на вопросы активного сценария. Свой текст пользователь в чате
	// не видит: после разбора он удаляется, остаётся одно окно сценария.
	if session.State != "" && session.State != stateOcrPhotos {
		c.consumeInput(ctx, chatID, msg.MessageID)
	}

	switch session.State {
	case stateAuthLastName:
		return c.authByLastName(ctx, chatID, text, session)
	case stateWoReason:
		return c.woSetReason(ctx, chatID, text, session)
	case stateWoProduct:
		return c.productSearch(ctx, chatID, text, session, "wo_prod:")
	case stateWoQty:
		return c.woSetQty(ctx, chatID, text, session)
	case stateRqProduct:
		return c.productSearch(ctx, chatID, text, session, "rq_prod:")
	case stateRqQty:
		return c.rqSetQty(ctx, chatID, text, session)
	case stateInvSupplier:
		return c.invSupplierSearch(ctx, chatID, text, session)
	case stateInvProduct:
		return c.productSearch(ctx, chatID, text, session, "inv_prod:")
	case stateInvQty:
		return c.invSetQty(ctx, chatID, text, session)
	case stateInvName:
		return c.invSaveTemplate(ctx, chatID, text, session)
	case stateMsProduct:
		return c.productSearch(ctx, chatID, text, session, "ms_prod:")
	case stateMsLevels:
		return c.msSetLevels(ctx, chatID, text, session)
	}

	return c.routeMenuButton(ctx, chatID, text, session)
}

func (c *Controller) routeMenuButton(ctx context.Context, chatID int64, text string, session *fsm.Session) error {
	switch text {
	// Подменю разделов.
	case "📝 Списания":
		return c.sendSubmenu(ctx, chatID, [][]telegram.ReplyKeyboardButton{
			{{Text: "📝 Создать списание"}, {Text: "🗂 История списаний"}},
			{{Text: "⬅️ Главное меню"}},
		})
	case "📦 Накладные":
		return c.sendSubmenu(ctx, chatID, [][]telegram.ReplyKeyboardButton{
			{{Text: "📑 Создать шаблон накладной"}, {Text: "📦 Создать по шаблону"}},
			{{Text: "⬅️ Главное меню"}},
		})
	case "📋 Заявки":
		return c.sendSubmenu(ctx, chatID, [][]telegram.ReplyKeyboardButton{
			{{Text: "✏️ Создать заявку"}, {Text: "📒 История заявок"}},
			{{Text: "⬅️ Главное меню"}},
		})
	case "📊 Отчёты":
		return c.sendSubmenu(ctx, chatID, [][]telegram.ReplyKeyboardButton{
			{{Text: "📊 Мин. остатки по складам"}, {Text: "✏️ Изменить мин. остаток"}},
			{{Text: "⬅️ Главное меню"}},
		})
	case "📑 Документы":
		return c.sendSubmenu(ctx, chatID, [][]telegram.ReplyKeyboardButton{
			{{Text: "📤 Загрузить накладные"}},
			{{Text: "⬅️ Главное меню"}},
		})
	case "⚙️ Настройки":
		return c.sendSubmenu(ctx, chatID, [][]telegram.ReplyKeyboardButton{
			{{Text: "🔄 Синхронизация"}, {Text: "📤 Выгрузки"}},
			{{Text: "☁️ Облачный вебхук"}, {Text: "⬅️ Главное меню"}},
		})
	case "🔄 Синхронизация":
		return c.sendSubmenu(ctx, chatID, [][]telegram.ReplyKeyboardButton{
			{{Text: "⚡ Синхр. ВСЁ"}},
			{{Text: "🔄 Синхр. ВСЁ POS"}, {Text: "💹 Синхр. ВСЁ финансы"}},
			{{Text: "📋 Синхр. справочники"}, {Text: "📦 Синхр. номенклатуру"}},
			{{Text: "🏢 Синхр. подразделения"}, {Text: "⬅️ Главное меню"}},
		})
	case "📤 Выгрузки":
		return c.sendSubmenu(ctx, chatID, [][]telegram.ReplyKeyboardButton{
			{{Text: "📤 Номенклатура → книга"}, {Text: "📥 Мин. остатки → БД"}},
			{{Text: "⬅️ Главное меню"}},
		})

	// Сценарии.
	case "📝 Создать списание":
		return c.woStart(ctx, chatID, session)
	case "🗂 История списаний":
		return c.woHistory(ctx, chatID)
	case "✏️ Создать заявку":
		return c.rqStart(ctx, chatID, session)
	case "📒 История заявок":
		return c.rqHistory(ctx, chatID)
	case "📑 Создать шаблон накладной":
		return c.invStartTemplate(ctx, chatID, session)
	case "📦 Создать по шаблону":
		return c.invListTemplates(ctx, chatID)
	case "📊 Мин. остатки по складам":
		return c.msReport(ctx, chatID)
	case "✏️ Изменить мин. остаток":
		return c.msStart(ctx, chatID, session)
	case "📤 Загрузить накладные":
		return c.ocrStart(ctx, chatID, session)
	case "✅ Маппинг готов":
		return c.ocrMappingDone(ctx, chatID, session)

	// Настройки и синхронизации.
	case "⚡ Синхр. ВСЁ", "🔄 Синхр. ВСЁ POS", "💹 Синхр. ВСЁ финансы",
		"📋 Синхр. справочники", "📦 Синхр. номенклатуру", "🏢 Синхр. подразделения":
		return c.runSync(ctx, chatID, text)
	case "📤 Номенклатура → книга":
		return c.runCatalogExport(ctx, chatID)
	case "📥 Мин. остатки → БД":
		return c.runMinStockImport(ctx, chatID)
	case "☁️ Облачный вебхук":
		return c.showWebhookStatus(ctx, chatID)
	}

	// Непривязанный пользователь попадает в авторизацию с любого текста.
	if _, err := c.userContext.Resolve(ctx, chatID); err != nil {
		return c.cmdStart(ctx, chatID)
	}

	_, err := c.bot.SendMessage(ctx, chatID, "🤔 Не понял. Выберите кнопку меню или /start.")
	return err
}

func (c *Controller) sendSubmenu(ctx context.Context, chatID int64, rows [][]telegram.ReplyKeyboardButton) error {
	_, err := c.bot.SendMessageEx(ctx, chatID, "Выберите действие:", telegram.WithReplyKeyboard(rows))
	return err
}

// --- АВТОРИЗАЦИЯ ---

func (c *Controller) cmdStart(ctx context.Context, chatID int64) error {
	uc, err := c.userContext.Resolve(ctx, chatID)
	if err == nil {
		return c.sendMainMenu(ctx, chatID, fmt.Sprintf("С возвращением, %s!", uc.FirstName))
	}

	session := fsm.NewSession()
	session.State = stateAuthLastName
	return c.showPrompt(ctx, chatID, session,
		"👋 Здравствуйте! Я бот бэк-офиса.\nВведите вашу фамилию для авторизации:",
		telegram.WithRemoveKeyboard())
}

func (c *Controller) authByLastName(ctx context.Context, chatID int64, lastName string, session *fsm.Session) error {
	found, err := c.auth.FindCandidates(ctx, lastName)
	if err != nil {
		return err
	}

	if len(found) == 1 {
		return c.bindEmployee(ctx, chatID, found[0].ID, session)
	}

	// Однофамильцы: пусть выберет себя.
	var rows [][]telegram.InlineKeyboardButton
	for i, emp := range found {
		if i >= 10 {
			break
		}
		rows = append(rows, []telegram.InlineKeyboardButton{
			{Text: emp.Name, CallbackData: "auth_pick:" + emp.ID},
		})
	}
	return c.showPrompt(ctx, chatID, session, "Найдено несколько сотрудников, выберите себя:",
		telegram.WithKeyboard(rows))
}

func (c *Controller) bindEmployee(ctx context.Context, chatID int64, employeeID string, session *fsm.Session) error {
	emp, err := c.auth.Bind(ctx, employeeID, chatID)
	if err != nil {
		return err
	}

	session.State = ""
	if err := c.sessions.Save(ctx, chatID, session); err != nil {
		return err
	}

	if emp.DepartmentID == nil {
		return c.askDepartment(ctx, chatID)
	}
	return c.sendMainMenu(ctx, chatID, fmt.Sprintf("✅ Вы авторизованы как %s.", emp.Name))
}

func (c *Controller) askDepartment(ctx context.Context, chatID int64) error {
	departments, err := c.auth.ListDepartments(ctx)
	if err != nil {
		return err
	}

	var rows [][]telegram.InlineKeyboardButton
	for _, d := range departments {
		rows = append(rows, []telegram.InlineKeyboardButton{
			{Text: d.Name, CallbackData: "auth_dept:" + d.ID},
		})
	}
	_, err = c.bot.SendMessageEx(ctx, chatID, "Выберите ваш ресторан:", telegram.WithKeyboard(rows))
	return err
}

// --- СПИСАНИЯ ---

func (c *Controller) woStart(ctx context.Context, chatID int64, session *fsm.Session) error {
	uc, err := c.userContext.Resolve(ctx, chatID)
	if err != nil {
		return err
	}

	stores, err := c.writeoff.ListStores(ctx, uc.DepartmentID)
	if err != nil {
		return err
	}
	if len(stores) == 0 {
		_, err := c.bot.SendMessage(ctx, chatID, "⚠️ Склады не найдены. Запустите синхронизацию.")
		return err
	}

	draft := &entities.PendingWriteoff{
		AuthorChat: chatID,
		AuthorName: uc.EmployeeName,
		Department: uc.DepartmentName,
	}
	if err := session.Set("wo_draft", draft); err != nil {
		return err
	}

	// Пока пользователь выбирает склад, счета списания прогреваются в кеш.
	go func(warmCtx context.Context) {
		if _, err := c.writeoff.ListAccounts(warmCtx, ""); err != nil {
			c.logger.Debug("кеш счетов не прогрет", zap.Error(err))
		}
	}(context.WithoutCancel(ctx))

	var rows [][]telegram.InlineKeyboardButton
	for _, st := range stores {
		rows = append(rows, []telegram.InlineKeyboardButton{
			{Text: st.Name, CallbackData: "wo_store:" + st.ID},
		})
	}
	return c.showPrompt(ctx, chatID, session, "📝 Списание. Выберите склад:", telegram.WithKeyboard(rows))
}

func (c *Controller) woSetReason(ctx context.Context, chatID int64, reason string, session *fsm.Session) error {
	if reason == "" {
		return c.showPrompt(ctx, chatID, session, "⚠️ Причина не может быть пустой. Напишите причину списания:")
	}

	var draft entities.PendingWriteoff
	if !session.Get("wo_draft", &draft) {
		return apperrors.ErrPendingNotFound
	}
	draft.Reason = reason
	if err := session.Set("wo_draft", &draft); err != nil {
		return err
	}

	session.State = stateWoProduct
	return c.showPrompt(ctx, chatID, session, "🔍 Введите название товара для поиска:")
}

// productSearch — общий шаг поиска товара для всех сценариев; префикс
// callback решает, в какой сценарий вернётся выбор.
func (c *Controller) productSearch(ctx context.Context, chatID int64, needle string, session *fsm.Session, prefix string) error {
	if !c.guard.Allow(chatID, cooldown.ActionSearch) {
		return nil
	}
	if len([]rune(needle)) < 2 {
		return c.showPrompt(ctx, chatID, session, "⚠️ Введите хотя бы два символа названия.")
	}

	products, err := c.minStock.SearchProducts(ctx, needle, 10)
	if err != nil {
		return err
	}
	if len(products) == 0 {
		return c.showPrompt(ctx, chatID, session, "🔍 Ничего не нашлось. Попробуйте другое название:")
	}

	var rows [][]telegram.InlineKeyboardButton
	for _, p := range products {
		rows = append(rows, []telegram.InlineKeyboardButton{
			{Text: p.Name, CallbackData: prefix + p.ID},
		})
	}
	return c.showPrompt(ctx, chatID, session, "Выберите товар:", telegram.WithKeyboard(rows))
}

func (c *Controller) woSetQty(ctx context.Context, chatID int64, text string, session *fsm.Session) error {
	qty, err := parseQty(text)
	if err != nil {
		return c.showPrompt(ctx, chatID, session, "⚠️ "+err.Error()+". Введите количество числом, например 1.5:")
	}

	var draft entities.PendingWriteoff
	var item entities.WriteoffItem
	if !session.Get("wo_draft", &draft) || !session.Get("wo_item", &item) {
		return apperrors.ErrPendingNotFound
	}

	item.Amount = qty
	draft.Items = append(draft.Items, item)
	session.Delete("wo_item")
	if err := session.Set("wo_draft", &draft); err != nil {
		return err
	}
	session.State = ""

	return c.woShowDraft(ctx, chatID, &draft, session)
}

func (c *Controller) woShowDraft(ctx context.Context, chatID int64, draft *entities.PendingWriteoff, session *fsm.Session) error {
	text := "📝 Черновик списания\n\n" + c.writeoff.FormatDraft(draft)
	keyboard := [][]telegram.InlineKeyboardButton{
		{{Text: "➕ Ещё позиция", CallbackData: "wo_more"}},
		{{Text: "✅ Отправить на одобрение", CallbackData: "wo_send"}},
		{{Text: "❌ Отменить", CallbackData: "wo_cancel"}},
	}
	return c.showPrompt(ctx, chatID, session, telegram.EscapeTextForMarkdownV2(text),
		telegram.WithMarkdownV2(), telegram.WithKeyboard(keyboard))
}

func (c *Controller) woHistory(ctx context.Context, chatID int64) error {
	items, err := c.writeoff.History(ctx, chatID, 10)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		_, err := c.bot.SendMessage(ctx, chatID, "🗂 История пуста.")
		return err
	}

	var b strings.Builder
	b.WriteString("🗂 Последние списания:\n")
	for _, h := range items {
		status := "✅"
		if h.Status == "rejected" {
			status = "❌"
		}
		fmt.Fprintf(&b, "\n%s %s — %s, %d поз. (%s)\n",
			status, h.CreatedAt.Format("02.01 15:04"), h.StoreName, len(h.Items), h.Reason)
	}
	_, err = c.bot.SendMessage(ctx, chatID, b.String())
	return err
}

// --- ЗАЯВКИ ---

func (c *Controller) rqStart(ctx context.Context, chatID int64, session *fsm.Session) error {
	uc, err := c.userContext.Resolve(ctx, chatID)
	if err != nil {
		return err
	}

	draft := &entities.ProductRequest{
		AuthorChat: chatID,
		AuthorName: uc.EmployeeName,
		Department: uc.DepartmentName,
	}
	if err := session.Set("rq_draft", draft); err != nil {
		return err
	}

	var rows [][]telegram.InlineKeyboardButton
	for _, seg := range services.RequestSegments() {
		rows = append(rows, []telegram.InlineKeyboardButton{
			{Text: seg, CallbackData: "rq_seg:" + seg},
		})
	}
	return c.showPrompt(ctx, chatID, session, "✏️ Заявка. Кому она адресована?", telegram.WithKeyboard(rows))
}

func (c *Controller) rqSetQty(ctx context.Context, chatID int64, text string, session *fsm.Session) error {
	qty, err := parseQty(text)
	if err != nil {
		return c.showPrompt(ctx, chatID, session, "⚠️ "+err.Error()+". Введите количество числом:")
	}

	var draft entities.ProductRequest
	var item entities.WriteoffItem
	if !session.Get("rq_draft", &draft) || !session.Get("rq_item", &item) {
		return apperrors.ErrNotFound
	}

	item.Amount = qty
	draft.Items = append(draft.Items, item)
	session.Delete("rq_item")
	if err := session.Set("rq_draft", &draft); err != nil {
		return err
	}
	session.State = ""

	text = "✏️ Черновик заявки\n\n" + c.requests.FormatRequest(&draft)
	keyboard := [][]telegram.InlineKeyboardButton{
		{{Text: "➕ Ещё позиция", CallbackData: "rq_more"}},
		{{Text: "✅ Отправить", CallbackData: "rq_send"}},
		{{Text: "❌ Отменить", CallbackData: "rq_cancel"}},
	}
	return c.showPrompt(ctx, chatID, session, telegram.EscapeTextForMarkdownV2(text),
		telegram.WithMarkdownV2(), telegram.WithKeyboard(keyboard))
}

func (c *Controller) rqHistory(ctx context.Context, chatID int64) error {
	items, err := c.requests.History(ctx, chatID, 10)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		_, err := c.bot.SendMessage(ctx, chatID, "📒 История пуста.")
		return err
	}

	var b strings.Builder
	b.WriteString("📒 Последние заявки:\n")
	for _, r := range items {
		mark := "🆕"
		switch r.Status {
		case entities.RequestStatusApproved:
			mark = "✅"
		case entities.RequestStatusRejected:
			mark = "❌"
		}
		fmt.Fprintf(&b, "\n%s №%d от %s — %s, %d поз.\n",
			mark, r.ID, r.CreatedAt.Format("02.01"), r.Segment, len(r.Items))
	}
	_, err = c.bot.SendMessage(ctx, chatID, b.String())
	return err
}

// --- НАКЛАДНЫЕ ---

func (c *Controller) invStartTemplate(ctx context.Context, chatID int64, session *fsm.Session) error {
	uc, err := c.userContext.Resolve(ctx, chatID)
	if err != nil {
		return err
	}

	stores, err := c.writeoff.ListStores(ctx, uc.DepartmentID)
	if err != nil {
		return err
	}

	tpl := &entities.InvoiceTemplate{OwnerChat: chatID}
	if err := session.Set("inv_draft", tpl); err != nil {
		return err
	}

	var rows [][]telegram.InlineKeyboardButton
	for _, st := range stores {
		rows = append(rows, []telegram.InlineKeyboardButton{
			{Text: st.Name, CallbackData: "inv_store:" + st.ID},
		})
	}
	return c.showPrompt(ctx, chatID, session, "📑 Шаблон накладной. Склад отгрузки:", telegram.WithKeyboard(rows))
}

func (c *Controller) invSupplierSearch(ctx context.Context, chatID int64, needle string, session *fsm.Session) error {
	suppliers, err := c.invoices.SearchSuppliers(ctx, needle, 10)
	if err != nil {
		return err
	}
	if len(suppliers) == 0 {
		return c.showPrompt(ctx, chatID, session, "🔍 Контрагент не найден. Попробуйте другое название:")
	}

	var rows [][]telegram.InlineKeyboardButton
	for _, s := range suppliers {
		rows = append(rows, []telegram.InlineKeyboardButton{
			{Text: s.Name, CallbackData: "inv_sup:" + s.ID},
		})
	}
	return c.showPrompt(ctx, chatID, session, "Выберите контрагента:", telegram.WithKeyboard(rows))
}

func (c *Controller) invSetQty(ctx context.Context, chatID int64, text string, session *fsm.Session) error {
	qty, err := parseQty(text)
	if err != nil {
		return c.showPrompt(ctx, chatID, session, "⚠️ "+err.Error()+". Введите количество числом:")
	}

	var tpl entities.InvoiceTemplate
	var item entities.WriteoffItem
	if !session.Get("inv_draft", &tpl) || !session.Get("inv_item", &item) {
		return apperrors.ErrNotFound
	}

	item.Amount = qty
	tpl.Items = append(tpl.Items, item)
	session.Delete("inv_item")
	if err := session.Set("inv_draft", &tpl); err != nil {
		return err
	}
	session.State = ""

	keyboard := [][]telegram.InlineKeyboardButton{
		{{Text: "➕ Ещё позиция", CallbackData: "inv_more"}},
		{{Text: "💾 Сохранить шаблон", CallbackData: "inv_save"}},
		{{Text: "❌ Отменить", CallbackData: "inv_abort"}},
	}
	return c.showPrompt(ctx, chatID, session,
		fmt.Sprintf("Позиций в шаблоне: %d.", len(tpl.Items)), telegram.WithKeyboard(keyboard))
}

func (c *Controller) invSaveTemplate(ctx context.Context, chatID int64, name string, session *fsm.Session) error {
	var tpl entities.InvoiceTemplate
	if !session.Get("inv_draft", &tpl) {
		return apperrors.ErrNotFound
	}
	tpl.Name = name

	id, err := c.invoices.SaveTemplate(ctx, &tpl)
	if err != nil {
		return err
	}

	c.cleanupTracked(ctx, chatID, session)
	if err := c.sessions.Clear(ctx, chatID); err != nil {
		c.logger.Warn("⚠️ Сессия не очищена", zap.Error(err))
	}
	_, err = c.bot.SendMessage(ctx, chatID, fmt.Sprintf("💾 Шаблон №%d «%s» сохранён.", id, name))
	return err
}

func (c *Controller) invListTemplates(ctx context.Context, chatID int64) error {
	templates, err := c.invoices.ListTemplates(ctx, chatID)
	if err != nil {
		return err
	}
	if len(templates) == 0 {
		_, err := c.bot.SendMessage(ctx, chatID, "📦 У вас нет шаблонов. Сначала создайте один.")
		return err
	}

	var rows [][]telegram.InlineKeyboardButton
	for _, tpl := range templates {
		rows = append(rows, []telegram.InlineKeyboardButton{
			{Text: fmt.Sprintf("%s (%d поз.)", tpl.Name, len(tpl.Items)), CallbackData: fmt.Sprintf("inv_tpl:%d", tpl.ID)},
		})
	}
	_, err = c.bot.SendMessageEx(ctx, chatID, "📦 Выберите шаблон:", telegram.WithKeyboard(rows))
	return err
}

// --- МИН. ОСТАТКИ ---

func (c *Controller) msReport(ctx context.Context, chatID int64) error {
	uc, err := c.userContext.Resolve(ctx, chatID)
	if err != nil {
		return err
	}
	text, err := c.stockAlerts.ReportForChat(ctx, uc.DepartmentID)
	if err != nil {
		return err
	}
	_, err = c.bot.SendMessage(ctx, chatID, text)
	return err
}

func (c *Controller) msStart(ctx context.Context, chatID int64, session *fsm.Session) error {
	uc, err := c.userContext.Resolve(ctx, chatID)
	if err != nil {
		return err
	}
	if uc.DepartmentID == nil {
		_, err := c.bot.SendMessage(ctx, chatID, "⚠️ Сначала выберите ресторан: /start.")
		return err
	}

	session.State = stateMsProduct
	return c.showPrompt(ctx, chatID, session, "🔍 Введите название товара:")
}

func (c *Controller) msSetLevels(ctx context.Context, chatID int64, text string, session *fsm.Session) error {
	parts := strings.Fields(strings.ReplaceAll(text, ",", "."))
	if len(parts) != 2 {
		return c.showPrompt(ctx, chatID, session, "⚠️ Введите два числа через пробел: минимум и максимум. Например: 5 20")
	}
	min, errMin := decimal.NewFromString(parts[0])
	max, errMax := decimal.NewFromString(parts[1])
	if errMin != nil || errMax != nil {
		return c.showPrompt(ctx, chatID, session, "⚠️ Оба значения должны быть числами. Например: 5 20")
	}

	var productID string
	if !session.Get("ms_product", &productID) {
		return apperrors.ErrNotFound
	}
	uc, err := c.userContext.Resolve(ctx, chatID)
	if err != nil {
		return err
	}
	if uc.DepartmentID == nil {
		return apperrors.NewInvalidInputError("сначала выберите ресторан: /start")
	}

	if err := c.minStock.SetLevel(ctx, productID, *uc.DepartmentID, min, max); err != nil {
		return err
	}

	c.cleanupTracked(ctx, chatID, session)
	if err := c.sessions.Clear(ctx, chatID); err != nil {
		c.logger.Warn("⚠️ Сессия не очищена", zap.Error(err))
	}
	_, err = c.bot.SendMessage(ctx, chatID,
		fmt.Sprintf("✅ Минимум %s, максимум %s сохранены.", min.String(), max.String()))
	return err
}

// --- OCR ---

func (c *Controller) ocrStart(ctx context.Context, chatID int64, session *fsm.Session) error {
	session.State = stateOcrPhotos
	session.Delete("ocr_photos")

	// Reply-клавиатуру в существующее сообщение не вписать, поэтому тут
	// всегда новое сообщение, но оно отслеживается и убирается при выходе.
	msgID, err := c.bot.SendMessageEx(ctx, chatID,
		"📤 Пришлите фото накладной (можно несколько), затем нажмите кнопку.",
		telegram.WithReplyKeyboard([][]telegram.ReplyKeyboardButton{
			{{Text: "✅ Маппинг готов"}},
			{{Text: "⬅️ Главное меню"}},
		}))
	if err != nil {
		return err
	}
	trackMessage(session, msgID)
	return c.sessions.Save(ctx, chatID, session)
}

func (c *Controller) ocrCollectPhoto(ctx context.Context, msg *telegram.Message, session *fsm.Session) error {
	chatID := msg.Chat.ID
	// Telegram шлёт варианты одного фото по возрастанию размера, берём крупнейший.
	best := msg.Photo[len(msg.Photo)-1]

	var fileIDs []string
	session.Get("ocr_photos", &fileIDs)
	fileIDs = append(fileIDs, best.FileID)
	if err := session.Set("ocr_photos", fileIDs); err != nil {
		return err
	}
	return c.showPrompt(ctx, chatID, session, fmt.Sprintf("📷 Принято фото: %d.", len(fileIDs)))
}

func (c *Controller) ocrMappingDone(ctx context.Context, chatID int64, session *fsm.Session) error {
	var fileIDs []string
	if !session.Get("ocr_photos", &fileIDs) || len(fileIDs) == 0 {
		return c.showPrompt(ctx, chatID, session, "⚠️ Сначала пришлите хотя бы одно фото накладной.")
	}

	if err := c.showPrompt(ctx, chatID, session, "⏳ Распознаю накладную..."); err != nil {
		return err
	}

	photos := make([][]byte, 0, len(fileIDs))
	for _, id := range fileIDs {
		data, err := c.bot.DownloadFile(ctx, id)
		if err != nil {
			return err
		}
		photos = append(photos, data)
	}

	doc, warnings, err := c.ocr.Recognize(ctx, photos)
	if err != nil {
		return err
	}
	unmatched, err := c.ocr.MatchProducts(ctx, doc)
	if err != nil {
		return err
	}

	if err := session.Set("ocr_doc", doc); err != nil {
		return err
	}
	session.State = ""

	var b strings.Builder
	fmt.Fprintf(&b, "📑 Распознано: %s, №%s, позиций %d.\n", doc.SupplierName, doc.Number, len(doc.Items))
	for _, w := range warnings {
		fmt.Fprintf(&b, "⚠️ %s\n", w)
	}
	for _, name := range unmatched {
		fmt.Fprintf(&b, "❓ Не сопоставлено: %s\n", name)
	}

	keyboard := [][]telegram.InlineKeyboardButton{{
		{Text: "✅ Провести", CallbackData: "iiko_invoice_send:ocr"},
		{Text: "❌ Отмена", CallbackData: "iiko_invoice_cancel:ocr"},
	}}
	return c.showPrompt(ctx, chatID, session, telegram.EscapeTextForMarkdownV2(b.String()),
		telegram.WithMarkdownV2(), telegram.WithKeyboard(keyboard))
}

// --- СИНХРОНИЗАЦИИ И ВЫГРУЗКИ ---

func (c *Controller) runSync(ctx context.Context, chatID int64, button string) error {
	// Плейсхолдер на время работы, в него же правится итог.
	placeholderID, err := c.bot.SendMessage(ctx, chatID, "⏳ Запускаю, это займёт до пары минут...")
	if err != nil {
		return err
	}

	var report string
	switch button {
	case "⚡ Синхр. ВСЁ":
		pos := c.pos.SyncAllPos(ctx, "бот")
		ent := c.pos.SyncAllEntities(ctx, "бот")
		fin := c.finance.SyncAllFinance(ctx, "бот")
		stock, stockErr := c.stock.SyncStockBalances(ctx, "бот")
		report = fmt.Sprintf("POS: %s\nСправочники: %s\nФинансы: %s\nОстатки: %s",
			summarize(pos), summarize(ent), summarize(fin), summarizeOne(stock, stockErr))
	case "🔄 Синхр. ВСЁ POS":
		report = "POS: " + summarize(c.pos.SyncAllPos(ctx, "бот"))
	case "💹 Синхр. ВСЁ финансы":
		report = "Финансы: " + summarize(c.finance.SyncAllFinance(ctx, "бот"))
	case "📋 Синхр. справочники":
		report = "Справочники: " + summarize(c.pos.SyncAllEntities(ctx, "бот"))
	case "📦 Синхр. номенклатуру":
		n, err := c.pos.SyncProducts(ctx, "бот")
		if err == nil {
			_, err = c.pos.SyncProductGroups(ctx, "бот")
		}
		report = "Номенклатура: " + summarizeOne(n, err)
	case "🏢 Синхр. подразделения":
		n, err := c.pos.SyncDepartments(ctx, "бот")
		if err == nil {
			_, err = c.pos.SyncStores(ctx, "бот")
		}
		if err == nil {
			_, err = c.pos.SyncGroups(ctx, "бот")
		}
		report = "Подразделения: " + summarizeOne(n, err)
	}

	_, err = c.bot.EditOrSendMessage(ctx, chatID, placeholderID, "📊 Готово.\n"+report)
	return err
}

func summarize(results []syncer.TaskResult) string {
	total := 0
	var failed []string
	for _, r := range results {
		total += r.Count
		if r.Err != nil {
			failed = append(failed, r.Name)
		}
	}
	if len(failed) > 0 {
		return fmt.Sprintf("%d записей, ошибки: %s", total, strings.Join(failed, ", "))
	}
	return fmt.Sprintf("✅ %d записей", total)
}

func summarizeOne(n int, err error) string {
	if err != nil {
		return "💥 " + err.Error()
	}
	return fmt.Sprintf("✅ %d записей", n)
}

func (c *Controller) runCatalogExport(ctx context.Context, chatID int64) error {
	n, err := c.exporter.ExportCatalog(ctx)
	if err != nil {
		return err
	}
	if _, err := c.minStockSy.ExportNomenclature(ctx); err != nil {
		return err
	}
	_, err = c.bot.SendMessage(ctx, chatID, fmt.Sprintf("📤 Выгружено %d товаров в книгу.", n))
	return err
}

func (c *Controller) runMinStockImport(ctx context.Context, chatID int64) error {
	n, err := c.minStockSy.ImportLevels(ctx, "бот")
	if err != nil {
		return err
	}
	_, err = c.bot.SendMessage(ctx, chatID, fmt.Sprintf("📥 Загружено %d минимумов из книги.", n))
	return err
}

func (c *Controller) showWebhookStatus(ctx context.Context, chatID int64) error {
	items, err := c.stoplist.Current(ctx)
	if err != nil {
		return err
	}
	_, err = c.bot.SendMessage(ctx, chatID,
		fmt.Sprintf("☁️ Вебхук принимает события на %s.\nСейчас в стопе %d позиций.",
			c.cfg.Cloud.WebhookPath, len(items)))
	return err
}

// Верхняя граница количества в одной позиции: всё, что больше, — опечатка.
var maxQty = decimal.NewFromInt(100000)

func parseQty(text string) (decimal.Decimal, error) {
	qty, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(text), ",", "."))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("количество должно быть числом")
	}
	if !qty.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("количество должно быть больше нуля")
	}
	if qty.GreaterThan(maxQty) {
		return decimal.Decimal{}, fmt.Errorf("количество не может превышать %s", maxQty.String())
	}
	return qty, nil
}
