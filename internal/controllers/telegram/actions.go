// Файл: internal/controllers/telegram/actions.go
// Обработчики inline-кнопок. Данные кнопки — префикс действия и id,
// всё остальное живёт в FSM-сессии чата.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"resto-backoffice/internal/entities"
	"resto-backoffice/internal/services"
	apperrors "resto-backoffice/pkg/errors"
	"resto-backoffice/pkg/fsm"
	"resto-backoffice/pkg/telegram"

	"go.uber.org/zap"
)

const accountsPerPage = 10

func (c *Controller) routeCallback(ctx context.Context, cb *telegram.CallbackQuery, session *fsm.Session) error {
	chatID := cb.Message.Chat.ID
	data := cb.Data
	prefix, arg := splitCallback(data)

	switch prefix {
	// Авторизация.
	case "auth_pick":
		return c.bindEmployee(ctx, chatID, arg, session)
	case "auth_dept":
		return c.cbSelectDepartment(ctx, chatID, arg)

	// Списание: сборка черновика.
	case "wo_store":
		return c.cbWoStore(ctx, chatID, arg, session)
	case "wo_accpg":
		return c.cbWoAccountsPage(ctx, cb, arg, session)
	case "wo_acc":
		return c.cbWoAccount(ctx, chatID, arg, session)
	case "wo_prod":
		return c.cbPickProduct(ctx, chatID, arg, session, "wo_item", stateWoQty)
	case "wo_more":
		return c.cbAskProduct(ctx, chatID, session, stateWoProduct)
	case "wo_send":
		return c.cbWoSend(ctx, chatID, session)
	case "wo_cancel":
		return c.cbAbort(ctx, chatID, session)

	// Списание: решения администратора.
	case "woa_approve":
		return c.cbWoaApprove(ctx, cb, arg)
	case "woa_reject":
		return c.cbWoaReject(ctx, cb, arg)
	case "woa_edit":
		return c.cbWoaEdit(ctx, chatID, arg, session)
	case "wo_edit_del":
		return c.cbWoaEditDelete(ctx, cb, arg, session)
	case "wo_edit_done":
		return c.cbWoaEditDone(ctx, chatID, session)
	case "wo_edit_cancel":
		return c.cbWoaEditCancel(ctx, chatID, session)

	// Заявки.
	case "rq_seg":
		return c.cbRqSegment(ctx, chatID, arg, session)
	case "rq_prod":
		return c.cbPickProduct(ctx, chatID, arg, session, "rq_item", stateRqQty)
	case "rq_more":
		return c.cbAskProduct(ctx, chatID, session, stateRqProduct)
	case "rq_send":
		return c.cbRqSend(ctx, chatID, session)
	case "rq_cancel":
		return c.cbAbort(ctx, chatID, session)
	case "req_approve":
		return c.cbReqDecision(ctx, cb, arg, true)
	case "req_reject":
		return c.cbReqDecision(ctx, cb, arg, false)
	case "req_edit":
		return c.cbReqEdit(ctx, chatID, arg, session)
	case "rqe_del":
		return c.cbReqEditDelete(ctx, cb, arg, session)
	case "rqe_done":
		return c.cbReqEditDone(ctx, chatID, session)
	case "rqe_cancel":
		return c.cbReqEditCancel(ctx, chatID, session)

	// Накладные по шаблонам.
	case "inv_store":
		return c.cbInvStore(ctx, chatID, arg, session)
	case "inv_sup":
		return c.cbInvSupplier(ctx, chatID, arg, session)
	case "inv_prod":
		return c.cbPickProduct(ctx, chatID, arg, session, "inv_item", stateInvQty)
	case "inv_more":
		return c.cbAskProduct(ctx, chatID, session, stateInvProduct)
	case "inv_save":
		return c.cbInvAskName(ctx, chatID, session)
	case "inv_abort":
		return c.cbAbort(ctx, chatID, session)
	case "inv_tpl":
		return c.cbInvTemplate(ctx, chatID, arg)
	case "inv_send":
		return c.cbInvSend(ctx, chatID, arg)
	case "inv_del":
		return c.cbInvDelete(ctx, cb, arg)

	// Мин. остатки.
	case "ms_prod":
		return c.cbMsProduct(ctx, chatID, arg, session)

	// Распознанные накладные.
	case "mapping_done":
		return c.ocrMappingDone(ctx, chatID, session)
	case "iiko_invoice_send":
		return c.cbOcrAskStore(ctx, chatID, session)
	case "ocr_store":
		return c.cbOcrSend(ctx, chatID, arg, session)
	case "iiko_invoice_cancel":
		return c.cbAbort(ctx, chatID, session)
	}

	c.logger.Debug("неизвестная кнопка", zap.String("data", data))
	return nil
}

func splitCallback(data string) (prefix, arg string) {
	if i := strings.IndexByte(data, ':'); i >= 0 {
		return data[:i], data[i+1:]
	}
	return data, ""
}

func (c *Controller) cbSelectDepartment(ctx context.Context, chatID int64, departmentID string) error {
	uc, err := c.userContext.Resolve(ctx, chatID)
	if err != nil {
		return err
	}
	if err := c.auth.SelectDepartment(ctx, chatID, uc.EmployeeID, departmentID); err != nil {
		return err
	}
	return c.sendMainMenu(ctx, chatID, fmt.Sprintf("✅ Готово, %s. Ресторан сохранён.", uc.FirstName))
}

// --- СПИСАНИЕ: СБОРКА ---

func (c *Controller) cbWoStore(ctx context.Context, chatID int64, storeID string, session *fsm.Session) error {
	uc, err := c.userContext.Resolve(ctx, chatID)
	if err != nil {
		return err
	}

	var draft entities.PendingWriteoff
	if !session.Get("wo_draft", &draft) {
		return apperrors.ErrPendingNotFound
	}

	stores, err := c.writeoff.ListStores(ctx, uc.DepartmentID)
	if err != nil {
		return err
	}
	for _, st := range stores {
		if st.ID == storeID {
			draft.StoreID = st.ID
			draft.StoreName = st.Name
			break
		}
	}
	if draft.StoreID == "" {
		return apperrors.NewInvalidInputError("склад не найден, начните заново")
	}
	if err := session.Set("wo_draft", &draft); err != nil {
		return err
	}

	// Должность определяет сегмент счетов; вне сегментов — полный список.
	segment := services.SegmentForRole(uc.RoleName)
	return c.woShowAccounts(ctx, chatID, 0, segment, session)
}

// woShowAccounts правит окно сценария на страницу счетов.
func (c *Controller) woShowAccounts(ctx context.Context, chatID int64, page int, segment string, session *fsm.Session) error {
	if err := session.Set("wo_segment", segment); err != nil {
		return err
	}

	accounts, err := c.writeoff.ListAccounts(ctx, segment)
	if err != nil {
		return err
	}
	if len(accounts) == 0 && segment != "" {
		// В сегменте пусто, откатываемся на полный список.
		accounts, err = c.writeoff.ListAccounts(ctx, "")
		if err != nil {
			return err
		}
	}
	if len(accounts) == 0 {
		return c.showPrompt(ctx, chatID, session, "⚠️ Счета списания не найдены. Запустите синхронизацию справочников.")
	}

	start := page * accountsPerPage
	if start >= len(accounts) {
		start, page = 0, 0
	}
	end := start + accountsPerPage
	if end > len(accounts) {
		end = len(accounts)
	}

	var rows [][]telegram.InlineKeyboardButton
	for _, acc := range accounts[start:end] {
		rows = append(rows, []telegram.InlineKeyboardButton{
			{Text: acc.Name, CallbackData: "wo_acc:" + acc.ID},
		})
	}
	var nav []telegram.InlineKeyboardButton
	if page > 0 {
		nav = append(nav, telegram.InlineKeyboardButton{Text: "⬅️", CallbackData: fmt.Sprintf("wo_accpg:%d", page-1)})
	}
	if end < len(accounts) {
		nav = append(nav, telegram.InlineKeyboardButton{Text: "➡️", CallbackData: fmt.Sprintf("wo_accpg:%d", page+1)})
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}

	text := fmt.Sprintf("Выберите счёт списания (%d-%d из %d):", start+1, end, len(accounts))
	return c.showPrompt(ctx, chatID, session, text, telegram.WithKeyboard(rows))
}

func (c *Controller) cbWoAccountsPage(ctx context.Context, cb *telegram.CallbackQuery, arg string, session *fsm.Session) error {
	page, err := strconv.Atoi(arg)
	if err != nil {
		return apperrors.NewInvalidInputError("битая кнопка страницы")
	}
	var segment string
	session.Get("wo_segment", &segment)
	return c.woShowAccounts(ctx, cb.Message.Chat.ID, page, segment, session)
}

func (c *Controller) cbWoAccount(ctx context.Context, chatID int64, accountID string, session *fsm.Session) error {
	var draft entities.PendingWriteoff
	if !session.Get("wo_draft", &draft) {
		return apperrors.ErrPendingNotFound
	}

	accounts, err := c.writeoff.ListAccounts(ctx, "")
	if err != nil {
		return err
	}
	for _, acc := range accounts {
		if acc.ID == accountID {
			draft.AccountID = acc.ID
			draft.AccountName = acc.Name
			break
		}
	}
	if draft.AccountID == "" {
		return apperrors.NewInvalidInputError("счёт не найден, начните заново")
	}
	if err := session.Set("wo_draft", &draft); err != nil {
		return err
	}

	session.State = stateWoReason
	return c.showPrompt(ctx, chatID, session, "✍️ Напишите причину списания:")
}

// cbPickProduct — общий шаг выбора товара: кладёт позицию в сессию
// и спрашивает количество.
func (c *Controller) cbPickProduct(ctx context.Context, chatID int64, productID string, session *fsm.Session, itemKey, nextState string) error {
	product, err := c.minStock.FindProduct(ctx, productID)
	if err != nil {
		return err
	}

	unit := ""
	if product.MainUnit != nil {
		unit = *product.MainUnit
	}
	item := entities.WriteoffItem{ProductID: product.ID, ProductName: product.Name, Unit: unit}
	if err := session.Set(itemKey, &item); err != nil {
		return err
	}

	session.State = nextState
	return c.showPrompt(ctx, chatID, session, fmt.Sprintf("Сколько «%s» (%s)? Введите количество:", product.Name, unit))
}

func (c *Controller) cbAskProduct(ctx context.Context, chatID int64, session *fsm.Session, state string) error {
	session.State = state
	return c.showPrompt(ctx, chatID, session, "🔍 Введите название товара для поиска:")
}

func (c *Controller) cbWoSend(ctx context.Context, chatID int64, session *fsm.Session) error {
	var draft entities.PendingWriteoff
	if !session.Get("wo_draft", &draft) {
		return apperrors.ErrPendingNotFound
	}

	docID, err := c.writeoff.Submit(ctx, &draft)
	if err != nil {
		return err
	}

	c.cleanupTracked(ctx, chatID, session)
	if err := c.sessions.Clear(ctx, chatID); err != nil {
		c.logger.Warn("⚠️ Сессия не очищена", zap.Error(err))
	}
	_, err = c.bot.SendMessage(ctx, chatID,
		fmt.Sprintf("📬 Списание №%s отправлено администраторам. Вы получите уведомление о решении.", docID))
	return err
}

func (c *Controller) cbAbort(ctx context.Context, chatID int64, session *fsm.Session) error {
	c.cleanupTracked(ctx, chatID, session)
	if err := c.sessions.Clear(ctx, chatID); err != nil {
		c.logger.Warn("⚠️ Сессия не очищена", zap.Error(err))
	}
	return c.sendMainMenu(ctx, chatID, "❌ Отменено.")
}

// --- СПИСАНИЕ: РЕШЕНИЯ АДМИНИСТРАТОРА ---

func (c *Controller) adminName(ctx context.Context, chatID int64) string {
	if uc, err := c.userContext.Resolve(ctx, chatID); err == nil {
		return uc.EmployeeName
	}
	return "администратор"
}

func (c *Controller) cbWoaApprove(ctx context.Context, cb *telegram.CallbackQuery, docID string) error {
	chatID := cb.Message.Chat.ID
	_, err := c.writeoff.Approve(ctx, docID, chatID, c.adminName(ctx, chatID))
	return err
}

func (c *Controller) cbWoaReject(ctx context.Context, cb *telegram.CallbackQuery, docID string) error {
	chatID := cb.Message.Chat.ID
	_, err := c.writeoff.Reject(ctx, docID, chatID, c.adminName(ctx, chatID))
	return err
}

func (c *Controller) cbWoaEdit(ctx context.Context, chatID int64, docID string, session *fsm.Session) error {
	p, err := c.writeoff.LockForEdit(ctx, docID)
	if err != nil {
		return err
	}

	if err := session.Set("woa_doc", docID); err != nil {
		return err
	}
	if err := session.Set("woa_items", p.Items); err != nil {
		return err
	}
	if err := c.sessions.Save(ctx, chatID, session); err != nil {
		return err
	}
	return c.woaRenderItems(ctx, chatID, 0, p.Items)
}

// woaRenderItems показывает позиции с кнопками удаления.
func (c *Controller) woaRenderItems(ctx context.Context, chatID int64, editMsgID int, items []entities.WriteoffItem) error {
	var rows [][]telegram.InlineKeyboardButton
	for i, it := range items {
		rows = append(rows, []telegram.InlineKeyboardButton{
			{Text: fmt.Sprintf("🗑 %s — %s", it.ProductName, it.Amount.String()), CallbackData: fmt.Sprintf("wo_edit_del:%d", i)},
		})
	}
	rows = append(rows, []telegram.InlineKeyboardButton{
		{Text: "✅ Сохранить", CallbackData: "wo_edit_done"},
		{Text: "↩️ Отмена", CallbackData: "wo_edit_cancel"},
	})

	text := "✏️ Нажмите на позицию, чтобы удалить её:"
	if editMsgID != 0 {
		return c.bot.EditMessageText(ctx, chatID, editMsgID, text, telegram.WithKeyboard(rows))
	}
	_, err := c.bot.SendMessageEx(ctx, chatID, text, telegram.WithKeyboard(rows))
	return err
}

func (c *Controller) cbWoaEditDelete(ctx context.Context, cb *telegram.CallbackQuery, arg string, session *fsm.Session) error {
	chatID := cb.Message.Chat.ID
	idx, err := strconv.Atoi(arg)
	if err != nil {
		return apperrors.NewInvalidInputError("битая кнопка позиции")
	}

	var items []entities.WriteoffItem
	if !session.Get("woa_items", &items) {
		return apperrors.ErrPendingNotFound
	}
	if idx < 0 || idx >= len(items) {
		return nil
	}
	if len(items) == 1 {
		_, err := c.bot.SendMessage(ctx, chatID, "⚠️ Последнюю позицию удалить нельзя. Отклоните документ целиком.")
		return err
	}

	items = append(items[:idx], items[idx+1:]...)
	if err := session.Set("woa_items", items); err != nil {
		return err
	}
	if err := c.sessions.Save(ctx, chatID, session); err != nil {
		return err
	}
	return c.woaRenderItems(ctx, chatID, cb.Message.MessageID, items)
}

func (c *Controller) cbWoaEditDone(ctx context.Context, chatID int64, session *fsm.Session) error {
	var docID string
	var items []entities.WriteoffItem
	if !session.Get("woa_doc", &docID) || !session.Get("woa_items", &items) {
		return apperrors.ErrPendingNotFound
	}

	if err := c.writeoff.UpdateItems(ctx, docID, items); err != nil {
		return err
	}
	if err := c.writeoff.Unlock(ctx, docID); err != nil {
		c.logger.Warn("⚠️ Черновик не разблокирован", zap.String("doc", docID), zap.Error(err))
	}

	session.Delete("woa_doc")
	session.Delete("woa_items")
	if err := c.sessions.Save(ctx, chatID, session); err != nil {
		return err
	}
	_, err := c.bot.SendMessage(ctx, chatID, "✅ Позиции обновлены. Документ снова ждёт решения.")
	return err
}

func (c *Controller) cbWoaEditCancel(ctx context.Context, chatID int64, session *fsm.Session) error {
	var docID string
	if session.Get("woa_doc", &docID) {
		if err := c.writeoff.Unlock(ctx, docID); err != nil {
			c.logger.Warn("⚠️ Черновик не разблокирован", zap.String("doc", docID), zap.Error(err))
		}
	}
	session.Delete("woa_doc")
	session.Delete("woa_items")
	if err := c.sessions.Save(ctx, chatID, session); err != nil {
		return err
	}
	_, err := c.bot.SendMessage(ctx, chatID, "↩️ Редактирование отменено.")
	return err
}

// --- ЗАЯВКИ ---

func (c *Controller) cbRqSegment(ctx context.Context, chatID int64, segment string, session *fsm.Session) error {
	var draft entities.ProductRequest
	if !session.Get("rq_draft", &draft) {
		return apperrors.ErrNotFound
	}
	draft.Segment = segment
	if err := session.Set("rq_draft", &draft); err != nil {
		return err
	}

	session.State = stateRqProduct
	return c.showPrompt(ctx, chatID, session, "🔍 Введите название товара для поиска:")
}

func (c *Controller) cbRqSend(ctx context.Context, chatID int64, session *fsm.Session) error {
	var draft entities.ProductRequest
	if !session.Get("rq_draft", &draft) {
		return apperrors.ErrNotFound
	}

	id, err := c.requests.Submit(ctx, &draft)
	if err != nil {
		return err
	}

	c.cleanupTracked(ctx, chatID, session)
	if err := c.sessions.Clear(ctx, chatID); err != nil {
		c.logger.Warn("⚠️ Сессия не очищена", zap.Error(err))
	}
	_, err = c.bot.SendMessage(ctx, chatID,
		fmt.Sprintf("📬 Заявка №%d отправлена получателям (%s).", id, draft.Segment))
	return err
}

func (c *Controller) cbReqDecision(ctx context.Context, cb *telegram.CallbackQuery, arg string, approve bool) error {
	chatID := cb.Message.Chat.ID
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return apperrors.NewInvalidInputError("битая кнопка заявки")
	}

	name := c.adminName(ctx, chatID)
	var req *entities.ProductRequest
	var mark string
	if approve {
		req, err = c.requests.Approve(ctx, id, name)
		mark = "✅ Выполнено"
	} else {
		req, err = c.requests.Reject(ctx, id, name)
		mark = "❌ Отклонено"
	}
	if err != nil {
		return err
	}

	text := telegram.EscapeTextForMarkdownV2(fmt.Sprintf("%s (%s)\n\n%s", mark, name, c.requests.FormatRequest(req)))
	if err := c.bot.EditMessageText(ctx, chatID, cb.Message.MessageID, text, telegram.WithMarkdownV2()); err != nil {
		c.logger.Debug("кнопки заявки не сняты", zap.Int64("chat", chatID), zap.Error(err))
	}
	return nil
}

func (c *Controller) cbReqEdit(ctx context.Context, chatID int64, arg string, session *fsm.Session) error {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return apperrors.NewInvalidInputError("битая кнопка заявки")
	}
	req, err := c.requests.Find(ctx, id)
	if err != nil {
		return err
	}
	if req.Status != entities.RequestStatusNew {
		_, err := c.bot.SendMessage(ctx, chatID, "⚠️ Заявка уже закрыта, менять нечего.")
		return err
	}

	if err := session.Set("rqe_id", id); err != nil {
		return err
	}
	if err := session.Set("rqe_items", req.Items); err != nil {
		return err
	}
	if err := c.sessions.Save(ctx, chatID, session); err != nil {
		return err
	}
	return c.rqeRenderItems(ctx, chatID, 0, req.Items)
}

func (c *Controller) rqeRenderItems(ctx context.Context, chatID int64, editMsgID int, items []entities.WriteoffItem) error {
	var rows [][]telegram.InlineKeyboardButton
	for i, it := range items {
		rows = append(rows, []telegram.InlineKeyboardButton{
			{Text: fmt.Sprintf("🗑 %s — %s", it.ProductName, it.Amount.String()), CallbackData: fmt.Sprintf("rqe_del:%d", i)},
		})
	}
	rows = append(rows, []telegram.InlineKeyboardButton{
		{Text: "✅ Сохранить", CallbackData: "rqe_done"},
		{Text: "↩️ Отмена", CallbackData: "rqe_cancel"},
	})

	text := "✏️ Нажмите на позицию, чтобы удалить её из заявки:"
	if editMsgID != 0 {
		return c.bot.EditMessageText(ctx, chatID, editMsgID, text, telegram.WithKeyboard(rows))
	}
	_, err := c.bot.SendMessageEx(ctx, chatID, text, telegram.WithKeyboard(rows))
	return err
}

func (c *Controller) cbReqEditDelete(ctx context.Context, cb *telegram.CallbackQuery, arg string, session *fsm.Session) error {
	chatID := cb.Message.Chat.ID
	idx, err := strconv.Atoi(arg)
	if err != nil {
		return apperrors.NewInvalidInputError("битая кнопка позиции")
	}

	var items []entities.WriteoffItem
	if !session.Get("rqe_items", &items) {
		return apperrors.ErrNotFound
	}
	if idx < 0 || idx >= len(items) {
		return nil
	}
	if len(items) == 1 {
		_, err := c.bot.SendMessage(ctx, chatID, "⚠️ Последнюю позицию удалить нельзя. Отклоните заявку целиком.")
		return err
	}

	items = append(items[:idx], items[idx+1:]...)
	if err := session.Set("rqe_items", items); err != nil {
		return err
	}
	if err := c.sessions.Save(ctx, chatID, session); err != nil {
		return err
	}
	return c.rqeRenderItems(ctx, chatID, cb.Message.MessageID, items)
}

func (c *Controller) cbReqEditDone(ctx context.Context, chatID int64, session *fsm.Session) error {
	var id int64
	var items []entities.WriteoffItem
	if !session.Get("rqe_id", &id) || !session.Get("rqe_items", &items) {
		return apperrors.ErrNotFound
	}

	if err := c.requests.UpdateItems(ctx, id, items); err != nil {
		return err
	}

	session.Delete("rqe_id")
	session.Delete("rqe_items")
	if err := c.sessions.Save(ctx, chatID, session); err != nil {
		return err
	}
	_, err := c.bot.SendMessage(ctx, chatID, fmt.Sprintf("✅ Заявка №%d обновлена.", id))
	return err
}

func (c *Controller) cbReqEditCancel(ctx context.Context, chatID int64, session *fsm.Session) error {
	session.Delete("rqe_id")
	session.Delete("rqe_items")
	if err := c.sessions.Save(ctx, chatID, session); err != nil {
		return err
	}
	_, err := c.bot.SendMessage(ctx, chatID, "↩️ Редактирование отменено.")
	return err
}

// --- НАКЛАДНЫЕ ---

func (c *Controller) cbInvStore(ctx context.Context, chatID int64, storeID string, session *fsm.Session) error {
	var tpl entities.InvoiceTemplate
	if !session.Get("inv_draft", &tpl) {
		return apperrors.ErrNotFound
	}
	tpl.StoreID = storeID
	if err := session.Set("inv_draft", &tpl); err != nil {
		return err
	}

	session.State = stateInvSupplier
	return c.showPrompt(ctx, chatID, session, "🔍 Введите название контрагента:")
}

func (c *Controller) cbInvSupplier(ctx context.Context, chatID int64, supplierID string, session *fsm.Session) error {
	var tpl entities.InvoiceTemplate
	if !session.Get("inv_draft", &tpl) {
		return apperrors.ErrNotFound
	}
	tpl.SupplierID = supplierID
	if err := session.Set("inv_draft", &tpl); err != nil {
		return err
	}

	session.State = stateInvProduct
	return c.showPrompt(ctx, chatID, session, "🔍 Введите название товара для поиска:")
}

func (c *Controller) cbInvAskName(ctx context.Context, chatID int64, session *fsm.Session) error {
	var tpl entities.InvoiceTemplate
	if !session.Get("inv_draft", &tpl) {
		return apperrors.ErrNotFound
	}
	if len(tpl.Items) == 0 {
		return c.showPrompt(ctx, chatID, session, "⚠️ Добавьте хотя бы одну позицию.")
	}

	session.State = stateInvName
	return c.showPrompt(ctx, chatID, session, "✍️ Придумайте имя шаблона:")
}

func (c *Controller) cbInvTemplate(ctx context.Context, chatID int64, arg string) error {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return apperrors.NewInvalidInputError("битая кнопка шаблона")
	}
	tpl, err := c.invoices.FindTemplate(ctx, id)
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📦 Шаблон «%s»\n\nПозиции:\n", tpl.Name)
	for i, it := range tpl.Items {
		fmt.Fprintf(&b, "%d. %s — %s %s\n", i+1, it.ProductName, it.Amount.String(), it.Unit)
	}

	keyboard := [][]telegram.InlineKeyboardButton{
		{{Text: "📤 Провести накладную", CallbackData: fmt.Sprintf("inv_send:%d", id)}},
		{{Text: "🗑 Удалить шаблон", CallbackData: fmt.Sprintf("inv_del:%d", id)}},
	}
	_, err = c.bot.SendMessageEx(ctx, chatID, telegram.EscapeTextForMarkdownV2(b.String()),
		telegram.WithMarkdownV2(), telegram.WithKeyboard(keyboard))
	return err
}

func (c *Controller) cbInvSend(ctx context.Context, chatID int64, arg string) error {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return apperrors.NewInvalidInputError("битая кнопка шаблона")
	}
	tpl, err := c.invoices.FindTemplate(ctx, id)
	if err != nil {
		return err
	}

	uc, err := c.userContext.Resolve(ctx, chatID)
	if err != nil {
		return err
	}

	// Ручные накладные уходят черновиком: бухгалтер проверит и проведёт в iiko.
	if _, err := c.invoices.SubmitOutgoing(ctx, &services.OutgoingInvoice{
		StoreID:        tpl.StoreID,
		CounteragentID: tpl.SupplierID,
		Comment:        fmt.Sprintf("По шаблону «%s» (Автор: %s)", tpl.Name, uc.EmployeeName),
		Items:          tpl.Items,
	}); err != nil {
		return err
	}

	_, err = c.bot.SendMessage(ctx, chatID,
		fmt.Sprintf("📤 Накладная по шаблону «%s» создана черновиком в iiko.", tpl.Name))
	return err
}

func (c *Controller) cbInvDelete(ctx context.Context, cb *telegram.CallbackQuery, arg string) error {
	chatID := cb.Message.Chat.ID
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return apperrors.NewInvalidInputError("битая кнопка шаблона")
	}
	if err := c.invoices.DeleteTemplate(ctx, id, chatID); err != nil {
		return err
	}
	if err := c.bot.EditMessageText(ctx, chatID, cb.Message.MessageID, "🗑 Шаблон удалён."); err != nil {
		c.logger.Debug("сообщение шаблона не обновлено", zap.Error(err))
	}
	return nil
}

// --- МИН. ОСТАТКИ ---

func (c *Controller) cbMsProduct(ctx context.Context, chatID int64, productID string, session *fsm.Session) error {
	product, err := c.minStock.FindProduct(ctx, productID)
	if err != nil {
		return err
	}

	if err := session.Set("ms_product", productID); err != nil {
		return err
	}
	session.State = stateMsLevels
	return c.showPrompt(ctx, chatID, session,
		fmt.Sprintf("«%s». Введите минимум и максимум через пробел, например: 5 20", product.Name))
}

// --- РАСПОЗНАННЫЕ НАКЛАДНЫЕ ---

func (c *Controller) cbOcrAskStore(ctx context.Context, chatID int64, session *fsm.Session) error {
	var doc services.RecognizedDocument
	if !session.Get("ocr_doc", &doc) {
		return apperrors.ErrNotFound
	}

	uc, err := c.userContext.Resolve(ctx, chatID)
	if err != nil {
		return err
	}
	stores, err := c.writeoff.ListStores(ctx, uc.DepartmentID)
	if err != nil {
		return err
	}

	var rows [][]telegram.InlineKeyboardButton
	for _, st := range stores {
		rows = append(rows, []telegram.InlineKeyboardButton{
			{Text: st.Name, CallbackData: "ocr_store:" + st.ID},
		})
	}
	return c.showPrompt(ctx, chatID, session, "На какой склад приходуем?", telegram.WithKeyboard(rows))
}

func (c *Controller) cbOcrSend(ctx context.Context, chatID int64, storeID string, session *fsm.Session) error {
	var doc services.RecognizedDocument
	if !session.Get("ocr_doc", &doc) {
		return apperrors.ErrNotFound
	}

	suppliers, err := c.invoices.SearchSuppliers(ctx, doc.SupplierName, 1)
	if err != nil {
		return err
	}
	if len(suppliers) == 0 {
		return apperrors.NewInvalidInputError("поставщик «%s» не найден в справочнике, синхронизируйте контрагентов", doc.SupplierName)
	}

	if _, err := c.ocr.SubmitIncoming(ctx, &doc, storeID, suppliers[0].ID); err != nil {
		return err
	}

	c.cleanupTracked(ctx, chatID, session)
	if err := c.sessions.Clear(ctx, chatID); err != nil {
		c.logger.Warn("⚠️ Сессия не очищена", zap.Error(err))
	}
	_, err = c.bot.SendMessage(ctx, chatID,
		fmt.Sprintf("✅ Приходная накладная №%s создана в iiko черновиком.", doc.Number))
	return err
}
