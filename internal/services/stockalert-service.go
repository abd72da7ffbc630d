// Файл: internal/services/stockalert-service.go
// Остатки ниже минимума. Закрытые заказы из вебхука крутят счётчик,
// каждый N-й заказ запускает пересинхронизацию остатков и пересборку
// закреплённых сообщений подписчиков. Сообщение чата редактируется
// только при изменении отпечатка списка.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"resto-backoffice/internal/authz"
	"resto-backoffice/internal/entities"
	"resto-backoffice/internal/repositories"
	"resto-backoffice/internal/sync"
	"resto-backoffice/pkg/config"
	apperrors "resto-backoffice/pkg/errors"
	"resto-backoffice/pkg/localtime"
	"resto-backoffice/pkg/telegram"

	"go.uber.org/zap"
)

const orderCounterKey = "stock_alert:order_counter"

type StockAlertServiceInterface interface {
	// OnOrderClosed учитывает закрытый заказ. Каждый N-й заказ запускает
	// проверку остатков.
	OnOrderClosed(ctx context.Context) error
	// RefreshAlerts синхронизирует остатки и обновляет закреплённые
	// сообщения подписчиков.
	RefreshAlerts(ctx context.Context) error
	// ReportForChat — текст сводки по ресторану пользователя.
	ReportForChat(ctx context.Context, departmentID *string) (string, error)
}

type stockAlertService struct {
	stocks      repositories.StockRepositoryInterface
	stockSyncer *sync.StockSyncer
	cache       repositories.CacheRepositoryInterface
	userContext UserContextServiceInterface
	gatekeeper  authz.GatekeeperInterface
	pinned      repositories.PinnedMessageRepositoryInterface
	bot         telegram.ServiceInterface
	cfg         config.StockConfig
	logger      *zap.Logger
}

func NewStockAlertService(
	stocks repositories.StockRepositoryInterface,
	stockSyncer *sync.StockSyncer,
	cache repositories.CacheRepositoryInterface,
	userContext UserContextServiceInterface,
	gatekeeper authz.GatekeeperInterface,
	pinned repositories.PinnedMessageRepositoryInterface,
	bot telegram.ServiceInterface,
	cfg config.StockConfig,
	logger *zap.Logger,
) StockAlertServiceInterface {
	return &stockAlertService{
		stocks: stocks, stockSyncer: stockSyncer, cache: cache,
		userContext: userContext, gatekeeper: gatekeeper, pinned: pinned,
		bot: bot, cfg: cfg, logger: logger,
	}
}

func (s *stockAlertService) OnOrderClosed(ctx context.Context) error {
	n, err := s.cache.Incr(ctx, orderCounterKey)
	if err != nil {
		return err
	}

	interval := int64(s.cfg.OrderCheckInterval)
	if interval <= 0 || n%interval != 0 {
		return nil
	}

	s.logger.Info("📊 Порог заказов достигнут, проверяю остатки", zap.Int64("заказов", n))
	return s.RefreshAlerts(ctx)
}

func (s *stockAlertService) RefreshAlerts(ctx context.Context) error {
	if _, err := s.stockSyncer.SyncStockBalances(ctx, "webhook"); err != nil {
		// Параллельная синхронизация уже обновляет снимок, работаем с тем что есть.
		if !errors.Is(err, apperrors.ErrSyncAlreadyRunning) {
			return err
		}
	}

	subscribers := s.gatekeeper.SubscriberIDs(ctx, authz.RoleStock)
	for _, chatID := range subscribers {
		uc, err := s.userContext.Resolve(ctx, chatID)
		if err != nil {
			continue
		}
		below, err := s.belowMin(ctx, uc.DepartmentID)
		if err != nil {
			s.logger.Warn("⚠️ Не удалось собрать остатки ниже минимума",
				zap.Int64("chat", chatID), zap.Error(err))
			continue
		}
		s.updatePinnedAlert(ctx, chatID, below)
	}
	return nil
}

func (s *stockAlertService) belowMin(ctx context.Context, departmentID *string) ([]repositories.BelowMinItem, error) {
	if departmentID != nil && *departmentID != "" {
		return s.stocks.BelowMinForDepartment(ctx, *departmentID)
	}
	return s.stocks.BelowMin(ctx)
}

func alertHash(items []repositories.BelowMinItem) string {
	keys := make([]string, 0, len(items))
	for _, it := range items {
		keys = append(keys, it.ProductID+":"+it.DepartmentID)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (s *stockAlertService) updatePinnedAlert(ctx context.Context, chatID int64, below []repositories.BelowMinItem) {
	hash := alertHash(below)
	existing, err := s.pinned.Find(ctx, chatID, entities.PinnedKindStockAlert)
	if err == nil && existing.SnapshotHash == hash {
		return
	}

	escaped := telegram.EscapeTextForMarkdownV2(FormatBelowMin(below))
	if err == nil {
		if editErr := s.bot.EditMessageText(ctx, chatID, existing.MessageID, escaped, telegram.WithMarkdownV2()); editErr == nil {
			existing.SnapshotHash = hash
			if upErr := s.pinned.Upsert(ctx, existing); upErr != nil {
				s.logger.Warn("⚠️ Хеш закреплённой сводки не сохранён", zap.Error(upErr))
			}
			return
		}
	}

	msgID, sendErr := s.bot.SendMessageEx(ctx, chatID, escaped, telegram.WithMarkdownV2())
	if sendErr != nil {
		s.logger.Warn("⚠️ Сводка остатков не доставлена", zap.Int64("chat", chatID), zap.Error(sendErr))
		return
	}
	if pinErr := s.bot.PinChatMessage(ctx, chatID, msgID); pinErr != nil {
		s.logger.Debug("сводка не закреплена", zap.Int64("chat", chatID), zap.Error(pinErr))
	}
	if upErr := s.pinned.Upsert(ctx, &entities.PinnedMessage{
		ChatID: chatID, Kind: entities.PinnedKindStockAlert, MessageID: msgID, SnapshotHash: hash,
	}); upErr != nil {
		s.logger.Warn("⚠️ Закреплённая сводка не сохранена", zap.Error(upErr))
	}
}

func (s *stockAlertService) ReportForChat(ctx context.Context, departmentID *string) (string, error) {
	below, err := s.belowMin(ctx, departmentID)
	if err != nil {
		return "", err
	}
	return FormatBelowMin(below), nil
}

// FormatBelowMin — текст сводки, сгруппированный по подразделениям.
func FormatBelowMin(items []repositories.BelowMinItem) string {
	if len(items) == 0 {
		return "✅ Все остатки выше минимумов."
	}

	byDept := make(map[string][]repositories.BelowMinItem)
	var depts []string
	for _, it := range items {
		if _, ok := byDept[it.DepartmentName]; !ok {
			depts = append(depts, it.DepartmentName)
		}
		byDept[it.DepartmentName] = append(byDept[it.DepartmentName], it)
	}
	sort.Strings(depts)

	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ Ниже минимума (%d позиций)\n", len(items))
	for _, dept := range depts {
		fmt.Fprintf(&b, "\n📍 %s\n", dept)
		rows := byDept[dept]
		sort.Slice(rows, func(i, j int) bool { return rows[i].ProductName < rows[j].ProductName })
		for _, it := range rows {
			fmt.Fprintf(&b, "• %s: %s (мин %s)\n",
				it.ProductName, it.TotalAmount.String(), it.MinLevel.String())
		}
	}
	fmt.Fprintf(&b, "\nОбновлено: %s", localtime.Now().Format("02.01 15:04"))
	return b.String()
}
