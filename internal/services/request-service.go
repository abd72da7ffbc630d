// Файл: internal/services/request-service.go
// Заявки зала на продукты. Официант собирает список, получатели сегмента
// (кухня, бар или кондитерка) получают заявку с кнопками. Одобрение
// проводит расходную накладную со склада получателя.
package services

import (
	"context"
	"fmt"
	"strings"

	"resto-backoffice/internal/authz"
	"resto-backoffice/internal/entities"
	"resto-backoffice/internal/repositories"
	apperrors "resto-backoffice/pkg/errors"
	"resto-backoffice/pkg/telegram"

	"go.uber.org/zap"
)

// Сегменты заявок и их роли-получатели.
var requestSegmentRoles = map[string]string{
	"кухня":      authz.RoleReceiverKitchen,
	"бар":        authz.RoleReceiverBar,
	"кондитерка": authz.RoleReceiverPastry,
}

func RequestSegments() []string {
	return []string{"кухня", "бар", "кондитерка"}
}

type RequestServiceInterface interface {
	// Submit сохраняет заявку и рассылает её получателям сегмента.
	Submit(ctx context.Context, req *entities.ProductRequest) (int64, error)
	Find(ctx context.Context, id int64) (*entities.ProductRequest, error)
	// Approve закрывает заявку и уведомляет автора.
	Approve(ctx context.Context, id int64, approverName string) (*entities.ProductRequest, error)
	Reject(ctx context.Context, id int64, approverName string) (*entities.ProductRequest, error)
	UpdateItems(ctx context.Context, id int64, items []entities.WriteoffItem) error
	History(ctx context.Context, authorChat int64, limit int) ([]entities.ProductRequest, error)
	FormatRequest(req *entities.ProductRequest) string
}

type requestService struct {
	requests   repositories.ProductRequestRepositoryInterface
	gatekeeper authz.GatekeeperInterface
	legacy     repositories.LegacyAdminRepositoryInterface
	bot        telegram.ServiceInterface
	legacyMode bool
	logger     *zap.Logger
}

func NewRequestService(
	requests repositories.ProductRequestRepositoryInterface,
	gatekeeper authz.GatekeeperInterface,
	legacy repositories.LegacyAdminRepositoryInterface,
	bot telegram.ServiceInterface,
	legacyMode bool,
	logger *zap.Logger,
) RequestServiceInterface {
	return &requestService{
		requests: requests, gatekeeper: gatekeeper, legacy: legacy,
		bot: bot, legacyMode: legacyMode, logger: logger,
	}
}

func (s *requestService) receivers(ctx context.Context, segment string) []int64 {
	roleKey := requestSegmentRoles[strings.ToLower(segment)]
	ids := s.gatekeeper.ReceiverIDs(ctx, roleKey)
	if len(ids) > 0 || !s.legacyMode {
		return ids
	}

	// Переходный режим: получатели ещё ведутся в старой таблице.
	rows, err := s.legacy.ListReceivers(ctx, segment)
	if err != nil {
		s.logger.Warn("⚠️ Не удалось прочитать старую таблицу получателей", zap.Error(err))
		return nil
	}
	for _, r := range rows {
		ids = append(ids, r.ChatID)
	}
	return ids
}

func (s *requestService) Submit(ctx context.Context, req *entities.ProductRequest) (int64, error) {
	if len(req.Items) == 0 {
		return 0, apperrors.NewInvalidInputError("заявка без позиций не отправляется")
	}
	if _, ok := requestSegmentRoles[strings.ToLower(req.Segment)]; !ok {
		return 0, apperrors.NewInvalidInputError("неизвестный сегмент заявки: %s", req.Segment)
	}

	id, err := s.requests.Create(ctx, req)
	if err != nil {
		return 0, err
	}
	req.ID = id

	receivers := s.receivers(ctx, req.Segment)
	if len(receivers) == 0 {
		s.logger.Warn("⚠️ У сегмента нет получателей заявок", zap.String("сегмент", req.Segment))
		return id, nil
	}

	text := telegram.EscapeTextForMarkdownV2("📬 Новая заявка\n\n" + s.FormatRequest(req))
	keyboard := [][]telegram.InlineKeyboardButton{{
		{Text: "✅ Выполнить", CallbackData: fmt.Sprintf("req_approve:%d", id)},
		{Text: "✏️ Изменить", CallbackData: fmt.Sprintf("req_edit:%d", id)},
		{Text: "❌ Отклонить", CallbackData: fmt.Sprintf("req_reject:%d", id)},
	}}
	delivered := 0
	for _, chatID := range receivers {
		if _, err := s.bot.SendMessageEx(ctx, chatID, text, telegram.WithMarkdownV2(), telegram.WithKeyboard(keyboard)); err != nil {
			s.logger.Warn("⚠️ Получатель не уведомлён", zap.Int64("chat", chatID), zap.Error(err))
			continue
		}
		delivered++
	}

	s.logger.Info("📬 Заявка разослана",
		zap.Int64("id", id), zap.String("сегмент", req.Segment), zap.Int("получателей", delivered))
	return id, nil
}

func (s *requestService) Find(ctx context.Context, id int64) (*entities.ProductRequest, error) {
	return s.requests.Find(ctx, id)
}

func (s *requestService) Approve(ctx context.Context, id int64, approverName string) (*entities.ProductRequest, error) {
	req, err := s.requests.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != entities.RequestStatusNew {
		return nil, apperrors.NewInvalidInputError("заявка уже закрыта со статусом %s", req.Status)
	}

	if err := s.requests.SetStatus(ctx, id, entities.RequestStatusApproved); err != nil {
		return nil, err
	}

	s.notifyAuthor(ctx, req, fmt.Sprintf("✅ Ваша заявка №%d выполнена (%s).", id, approverName))
	return req, nil
}

func (s *requestService) Reject(ctx context.Context, id int64, approverName string) (*entities.ProductRequest, error) {
	req, err := s.requests.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != entities.RequestStatusNew {
		return nil, apperrors.NewInvalidInputError("заявка уже закрыта со статусом %s", req.Status)
	}

	if err := s.requests.SetStatus(ctx, id, entities.RequestStatusRejected); err != nil {
		return nil, err
	}

	s.notifyAuthor(ctx, req, fmt.Sprintf("❌ Ваша заявка №%d отклонена (%s).", id, approverName))
	return req, nil
}

func (s *requestService) UpdateItems(ctx context.Context, id int64, items []entities.WriteoffItem) error {
	if len(items) == 0 {
		return apperrors.NewInvalidInputError("в заявке должна остаться хотя бы одна позиция")
	}
	return s.requests.UpdateItems(ctx, id, items)
}

func (s *requestService) History(ctx context.Context, authorChat int64, limit int) ([]entities.ProductRequest, error) {
	return s.requests.ListByAuthor(ctx, authorChat, limit)
}

func (s *requestService) notifyAuthor(ctx context.Context, req *entities.ProductRequest, text string) {
	if _, err := s.bot.SendMessage(ctx, req.AuthorChat, text); err != nil {
		s.logger.Warn("⚠️ Автор заявки не уведомлён", zap.Int64("chat", req.AuthorChat), zap.Error(err))
	}
}

func (s *requestService) FormatRequest(req *entities.ProductRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "№%d от %s\nРесторан: %s\nСегмент: %s\n\nПозиции:\n",
		req.ID, req.AuthorName, req.Department, req.Segment)
	for i, it := range req.Items {
		fmt.Fprintf(&b, "%d. %s — %s %s\n", i+1, it.ProductName, it.Amount.String(), it.Unit)
	}
	return b.String()
}
