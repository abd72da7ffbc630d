// Файл: internal/services/writeoff-service.go
// Сценарий списания: сотрудник собирает документ в диалоге, администраторы
// получают черновик с кнопками и решают его судьбу. Гонку между
// администраторами снимает условная блокировка черновика в БД.
package services

import (
	"context"
	"fmt"
	"strings"

	"resto-backoffice/internal/authz"
	"resto-backoffice/internal/clients/iiko"
	"resto-backoffice/internal/entities"
	"resto-backoffice/internal/repositories"
	apperrors "resto-backoffice/pkg/errors"
	"resto-backoffice/pkg/localtime"
	"resto-backoffice/pkg/telegram"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Не больше 50 позиций в одном акте: сервер отбрасывает огромные документы,
// а админ всё равно не глядя такое не одобрит.
const MaxWriteoffItems = 50

// Сегменты счетов списания.
const (
	SegmentBar     = "бар"
	SegmentKitchen = "кухня"
)

// Классификация должностей по сегментам. Должность вне обоих наборов
// (и администраторы) выбирает счёт вручную из полного списка.
var (
	barRoles = map[string]struct{}{
		"бармен": {}, "старший бармен": {}, "кассир": {},
		"кассир-бариста": {}, "кассир-администратор": {}, "ранер": {},
	}
	kitchenRoles = map[string]struct{}{
		"повар": {}, "шеф-повар": {}, "кондитер": {}, "старший кондитер": {},
		"пекарь": {}, "заготовщик": {}, "посудомойка": {},
	}
)

// SegmentForRole возвращает сегмент счетов для должности, пустая строка —
// ручной выбор.
func SegmentForRole(roleName string) string {
	role := strings.ToLower(strings.TrimSpace(roleName))
	if _, ok := barRoles[role]; ok {
		return SegmentBar
	}
	if _, ok := kitchenRoles[role]; ok {
		return SegmentKitchen
	}
	return ""
}

type WriteoffServiceInterface interface {
	ListStores(ctx context.Context, departmentID *string) ([]entities.Store, error)
	// ListAccounts возвращает счета списания, отфильтрованные по сегменту.
	// Пустой сегмент — полный список.
	ListAccounts(ctx context.Context, segment string) ([]entities.PosEntity, error)
	// Submit сохраняет черновик и рассылает его администраторам.
	Submit(ctx context.Context, draft *entities.PendingWriteoff) (string, error)
	// Approve отправляет документ в POS. Проигравший гонку администратор
	// получает apperrors.ErrPendingLocked.
	Approve(ctx context.Context, docID string, adminChat int64, adminName string) (*entities.PendingWriteoff, error)
	Reject(ctx context.Context, docID string, adminChat int64, adminName string) (*entities.PendingWriteoff, error)
	// Unlock снимает блокировку, когда администратор передумал редактировать.
	Unlock(ctx context.Context, docID string) error
	// LockForEdit захватывает черновик под редактирование позиций.
	LockForEdit(ctx context.Context, docID string) (*entities.PendingWriteoff, error)
	UpdateItems(ctx context.Context, docID string, items []entities.WriteoffItem) error
	History(ctx context.Context, authorChat int64, limit int) ([]entities.WriteoffHistory, error)
	// FormatDraft — текст черновика для сообщений автору и администраторам.
	FormatDraft(p *entities.PendingWriteoff) string
}

type writeoffService struct {
	pending    repositories.PendingWriteoffRepositoryInterface
	history    repositories.WriteoffHistoryRepositoryInterface
	dicts      repositories.DictionaryRepositoryInterface
	pos        iiko.ClientInterface
	gatekeeper authz.GatekeeperInterface
	bot        telegram.ServiceInterface
	logger     *zap.Logger
}

func NewWriteoffService(
	pending repositories.PendingWriteoffRepositoryInterface,
	history repositories.WriteoffHistoryRepositoryInterface,
	dicts repositories.DictionaryRepositoryInterface,
	pos iiko.ClientInterface,
	gatekeeper authz.GatekeeperInterface,
	bot telegram.ServiceInterface,
	logger *zap.Logger,
) WriteoffServiceInterface {
	return &writeoffService{
		pending: pending, history: history, dicts: dicts,
		pos: pos, gatekeeper: gatekeeper, bot: bot, logger: logger,
	}
}

func (s *writeoffService) ListStores(ctx context.Context, departmentID *string) ([]entities.Store, error) {
	if departmentID != nil {
		stores, err := s.dicts.ListStoresByDepartment(ctx, *departmentID)
		if err != nil {
			return nil, err
		}
		if len(stores) > 0 {
			return stores, nil
		}
	}
	return s.dicts.ListStores(ctx)
}

func (s *writeoffService) ListAccounts(ctx context.Context, segment string) ([]entities.PosEntity, error) {
	accounts, err := s.dicts.ListWriteoffAccounts(ctx)
	if err != nil {
		return nil, err
	}
	if segment == "" {
		return accounts, nil
	}

	var out []entities.PosEntity
	for _, acc := range accounts {
		if strings.Contains(strings.ToLower(acc.Name), segment) {
			out = append(out, acc)
		}
	}
	return out, nil
}

// newDocID — короткий id для callback-кнопок. Telegram ограничивает
// callback data 64 байтами, полный UUID с префиксами туда не влезает.
func newDocID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func (s *writeoffService) Submit(ctx context.Context, draft *entities.PendingWriteoff) (string, error) {
	if len(draft.Items) == 0 {
		return "", apperrors.NewInvalidInputError("документ без позиций не отправляется")
	}
	if len(draft.Items) > MaxWriteoffItems {
		return "", apperrors.NewInvalidInputError("не больше %d позиций в одном акте", MaxWriteoffItems)
	}

	draft.DocID = newDocID()
	// ID документа POS генерируем здесь: повтор POST с тем же id безопасен.
	draft.DocumentID = uuid.NewString()
	draft.CreatedAt = localtime.Now()

	if err := s.pending.Create(ctx, draft); err != nil {
		return "", err
	}

	admins := s.gatekeeper.AdminIDs(ctx)
	if len(admins) == 0 {
		s.logger.Warn("⚠️ Нет администраторов для рассылки черновика", zap.String("doc", draft.DocID))
		return draft.DocID, nil
	}

	text := "📝 Новое списание на одобрение\n\n" + s.FormatDraft(draft)
	keyboard := [][]telegram.InlineKeyboardButton{{
		{Text: "✅ Одобрить", CallbackData: "woa_approve:" + draft.DocID},
		{Text: "✏️ Изменить", CallbackData: "woa_edit:" + draft.DocID},
		{Text: "❌ Отклонить", CallbackData: "woa_reject:" + draft.DocID},
	}}

	msgIDs := make(map[int64]int, len(admins))
	for _, chatID := range admins {
		msgID, err := s.bot.SendMessageEx(ctx, chatID, telegram.EscapeTextForMarkdownV2(text),
			telegram.WithMarkdownV2(), telegram.WithKeyboard(keyboard))
		if err != nil {
			s.logger.Warn("⚠️ Не удалось уведомить администратора",
				zap.Int64("chat", chatID), zap.Error(err))
			continue
		}
		msgIDs[chatID] = msgID
	}

	if err := s.pending.SetAdminMessages(ctx, draft.DocID, msgIDs); err != nil {
		s.logger.Warn("⚠️ Не удалось сохранить id сообщений администраторов", zap.Error(err))
	}

	s.logger.Info("📝 Черновик списания разослан",
		zap.String("doc", draft.DocID), zap.Int("администраторов", len(msgIDs)))
	return draft.DocID, nil
}

func (s *writeoffService) Approve(ctx context.Context, docID string, adminChat int64, adminName string) (*entities.PendingWriteoff, error) {
	p, err := s.pending.TryLock(ctx, docID)
	if err != nil {
		return nil, err
	}

	doc := &iiko.WriteoffDocument{
		ID:           p.DocumentID,
		DateIncoming: localtime.Now().Format("2006-01-02"),
		Status:       "NEW",
		Comment:      fmt.Sprintf("%s (Автор: %s)", p.Reason, p.AuthorName),
		StoreID:      p.StoreID,
		AccountID:    p.AccountID,
	}
	for _, it := range p.Items {
		doc.Items = append(doc.Items, iiko.DocumentItem{ProductID: it.ProductID, Amount: it.Amount})
	}

	if err := s.pos.SendWriteoff(ctx, doc); err != nil {
		// Возвращаем черновик в очередь: пусть попробуют позже или отклонят.
		if unlockErr := s.pending.Unlock(ctx, docID); unlockErr != nil {
			s.logger.Error("💥 Черновик завис заблокированным",
				zap.String("doc", docID), zap.Error(unlockErr))
		}
		return nil, err
	}

	s.resolve(ctx, p, "approved", fmt.Sprintf("✅ Одобрено (%s)", adminName))
	s.notifyAuthor(ctx, p, "✅ Ваше списание одобрено и проведено в iiko.")

	s.logger.Info("✅ Списание одобрено и отправлено",
		zap.String("doc", docID), zap.String("админ", adminName))
	return p, nil
}

func (s *writeoffService) Reject(ctx context.Context, docID string, adminChat int64, adminName string) (*entities.PendingWriteoff, error) {
	p, err := s.pending.TryLock(ctx, docID)
	if err != nil {
		return nil, err
	}

	s.resolve(ctx, p, "rejected", fmt.Sprintf("❌ Отклонено (%s)", adminName))
	s.notifyAuthor(ctx, p, "❌ Ваше списание отклонено администратором.")

	s.logger.Info("❌ Списание отклонено",
		zap.String("doc", docID), zap.String("админ", adminName))
	return p, nil
}

// resolve закрывает черновик: строка истории, удаление из очереди,
// снятие кнопок у всех администраторов.
func (s *writeoffService) resolve(ctx context.Context, p *entities.PendingWriteoff, status, resolution string) {
	if err := s.history.Append(ctx, &entities.WriteoffHistory{
		AuthorChat:  p.AuthorChat,
		AuthorName:  p.AuthorName,
		StoreName:   p.StoreName,
		AccountName: p.AccountName,
		Reason:      p.Reason,
		Items:       p.Items,
		Status:      status,
	}); err != nil {
		s.logger.Warn("⚠️ Не удалось записать историю списания", zap.Error(err))
	}

	if err := s.pending.Delete(ctx, p.DocID); err != nil {
		s.logger.Warn("⚠️ Не удалось удалить черновик", zap.String("doc", p.DocID), zap.Error(err))
	}

	text := telegram.EscapeTextForMarkdownV2(resolution + "\n\n" + s.FormatDraft(p))
	for chatID, msgID := range p.AdminMsgIDs {
		if err := s.bot.EditMessageText(ctx, chatID, msgID, text, telegram.WithMarkdownV2()); err != nil {
			s.logger.Debug("кнопки администратора не сняты",
				zap.Int64("chat", chatID), zap.Error(err))
		}
	}
}

func (s *writeoffService) notifyAuthor(ctx context.Context, p *entities.PendingWriteoff, text string) {
	if _, err := s.bot.SendMessage(ctx, p.AuthorChat, text); err != nil {
		s.logger.Warn("⚠️ Автор списания не уведомлён",
			zap.Int64("chat", p.AuthorChat), zap.Error(err))
	}
}

func (s *writeoffService) Unlock(ctx context.Context, docID string) error {
	return s.pending.Unlock(ctx, docID)
}

func (s *writeoffService) LockForEdit(ctx context.Context, docID string) (*entities.PendingWriteoff, error) {
	return s.pending.TryLock(ctx, docID)
}

func (s *writeoffService) UpdateItems(ctx context.Context, docID string, items []entities.WriteoffItem) error {
	if len(items) == 0 {
		return apperrors.NewInvalidInputError("в документе должна остаться хотя бы одна позиция")
	}
	return s.pending.UpdateItems(ctx, docID, items)
}

func (s *writeoffService) History(ctx context.Context, authorChat int64, limit int) ([]entities.WriteoffHistory, error) {
	return s.history.ListByAuthor(ctx, authorChat, limit)
}

func (s *writeoffService) FormatDraft(p *entities.PendingWriteoff) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Автор: %s\nСклад: %s\nСчёт: %s\nПричина: %s\n\nПозиции:\n",
		p.AuthorName, p.StoreName, p.AccountName, p.Reason)
	for i, it := range p.Items {
		fmt.Fprintf(&b, "%d. %s — %s %s\n", i+1, it.ProductName, it.Amount.String(), it.Unit)
	}
	return b.String()
}
