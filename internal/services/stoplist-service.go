// Файл: internal/services/stoplist-service.go
// Стоп-лист ресторанов. Вебхуки облачного API сыплются пачками при каждом
// изменении, поэтому обновление дебаунсится: окно продлевается на каждое
// новое событие и снимок перечитывается один раз после затишья.
// Подписчики видят одно закреплённое сообщение на чат, оно редактируется
// только при реальном изменении снимка (сторожевой хеш).
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"resto-backoffice/internal/authz"
	"resto-backoffice/internal/clients/iikocloud"
	"resto-backoffice/internal/entities"
	"resto-backoffice/internal/integrations/sheets"
	"resto-backoffice/internal/repositories"
	"resto-backoffice/pkg/config"
	"resto-backoffice/pkg/localtime"
	"resto-backoffice/pkg/telegram"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type StoplistServiceInterface interface {
	// Trigger отмечает событие вебхука. Обновление произойдёт после
	// окна затишья, новые события окно продлевают.
	Trigger()
	// Refresh перечитывает стоп-листы немедленно (ручная кнопка).
	Refresh(ctx context.Context) error
	// EveningReport — сводка времени в стопе за день для подписчиков.
	EveningReport(ctx context.Context) error
	Current(ctx context.Context) ([]entities.StoplistItem, error)
}

type stoplistService struct {
	cloud      iikocloud.ClientInterface
	stoplists  repositories.StoplistRepositoryInterface
	pinned     repositories.PinnedMessageRepositoryInterface
	dicts      repositories.DictionaryRepositoryInterface
	txm        repositories.TxManagerInterface
	workbook   sheets.ClientInterface
	gatekeeper authz.GatekeeperInterface
	bot        telegram.ServiceInterface
	cfg        *config.Config
	logger     *zap.Logger

	mu    sync.Mutex
	timer *time.Timer
}

func NewStoplistService(
	cloud iikocloud.ClientInterface,
	stoplists repositories.StoplistRepositoryInterface,
	pinned repositories.PinnedMessageRepositoryInterface,
	dicts repositories.DictionaryRepositoryInterface,
	txm repositories.TxManagerInterface,
	workbook sheets.ClientInterface,
	gatekeeper authz.GatekeeperInterface,
	bot telegram.ServiceInterface,
	cfg *config.Config,
	logger *zap.Logger,
) StoplistServiceInterface {
	return &stoplistService{
		cloud: cloud, stoplists: stoplists, pinned: pinned, dicts: dicts,
		txm: txm, workbook: workbook, gatekeeper: gatekeeper, bot: bot,
		cfg: cfg, logger: logger,
	}
}

func (s *stoplistService) Trigger() {
	s.mu.Lock()
	defer s.mu.Unlock()

	window := s.cfg.Stock.DebounceWindow
	if s.timer != nil {
		// Продление окна: таймер сбрасывается на каждое событие.
		s.timer.Reset(window)
		return
	}
	s.timer = time.AfterFunc(window, func() {
		s.mu.Lock()
		s.timer = nil
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := s.Refresh(ctx); err != nil {
			s.logger.Error("💥 Обновление стоп-листа после дебаунса упало", zap.Error(err))
		}
	})
	s.logger.Debug("⏳ Окно дебаунса стоп-листа открыто", zap.Duration("окно", window))
}

func (s *stoplistService) Refresh(ctx context.Context) error {
	t0 := time.Now()

	snapshot, err := s.fetchSnapshot(ctx)
	if err != nil {
		return err
	}

	active, err := s.stoplists.ListActive(ctx)
	if err != nil {
		return err
	}

	added, removed := diffStoplist(active, snapshot)
	if len(added) == 0 && len(removed) == 0 {
		s.logger.Debug("📊 Стоп-лист не изменился")
		return s.updatePinned(ctx, snapshot)
	}

	err = s.txm.RunInTransaction(ctx, func(tx pgx.Tx) error {
		return s.stoplists.ApplyDiff(ctx, tx, added, removed)
	})
	if err != nil {
		return err
	}

	s.logger.Info("🚫 Стоп-лист обновлён",
		zap.Int("добавлено", len(added)), zap.Int("снято", len(removed)),
		zap.Duration("время", time.Since(t0)))
	return s.updatePinned(ctx, snapshot)
}

// fetchSnapshot собирает позиции стоп-листов всех организаций из привязки
// на листе настроек.
func (s *stoplistService) fetchSnapshot(ctx context.Context) ([]entities.StoplistItem, error) {
	rows, err := s.workbook.ReadTab(s.cfg.Sheet.SettingsTab)
	if err != nil {
		return nil, err
	}
	mapping := sheets.ParseCloudOrgMapping(rows)
	if len(mapping) == 0 {
		return nil, fmt.Errorf("привязка организаций облачного API не настроена на листе %q", s.cfg.Sheet.SettingsTab)
	}

	orgIDs := make(map[string]struct{}, len(mapping))
	for _, orgID := range mapping {
		orgIDs[orgID] = struct{}{}
	}

	names, err := s.dicts.ProductNames(ctx)
	if err != nil {
		return nil, err
	}

	now := localtime.Now()
	var snapshot []entities.StoplistItem
	for orgID := range orgIDs {
		groups, err := s.cloud.GetTerminalGroups(ctx, orgID)
		if err != nil {
			return nil, err
		}
		tgIDs := make([]string, 0, len(groups))
		for _, g := range groups {
			tgIDs = append(tgIDs, g.ID)
		}
		if len(tgIDs) == 0 {
			continue
		}

		entries, err := s.cloud.GetStopLists(ctx, orgID, tgIDs)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			name := names[e.ProductID]
			if name == "" {
				name = e.SKU
			}
			snapshot = append(snapshot, entities.StoplistItem{
				ProductID:       e.ProductID,
				TerminalGroupID: e.TerminalGroupID,
				ProductName:     name,
				Balance:         decimal.NewFromFloat(e.Balance),
				StartedAt:       now,
			})
		}
	}
	return snapshot, nil
}

func stoplistKey(it entities.StoplistItem) string {
	return it.ProductID + ":" + it.TerminalGroupID
}

func diffStoplist(active, snapshot []entities.StoplistItem) (added, removed []entities.StoplistItem) {
	current := make(map[string]struct{}, len(active))
	for _, it := range active {
		current[stoplistKey(it)] = struct{}{}
	}
	fresh := make(map[string]struct{}, len(snapshot))
	for _, it := range snapshot {
		fresh[stoplistKey(it)] = struct{}{}
	}

	for _, it := range snapshot {
		if _, ok := current[stoplistKey(it)]; !ok {
			added = append(added, it)
		}
	}
	for _, it := range active {
		if _, ok := fresh[stoplistKey(it)]; !ok {
			removed = append(removed, it)
		}
	}
	return added, removed
}

// snapshotHash — детерминированный отпечаток снимка. Порядок позиций
// от API не гарантирован, поэтому ключи сортируются.
func snapshotHash(items []entities.StoplistItem) string {
	keys := make([]string, 0, len(items))
	for _, it := range items {
		keys = append(keys, stoplistKey(it))
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// updatePinned редактирует закреплённые сообщения подписчиков.
// Совпавший хеш означает косметическое событие, сообщение не трогаем:
// Telegram наказывает за частые правки, а людям приходит пуш.
func (s *stoplistService) updatePinned(ctx context.Context, snapshot []entities.StoplistItem) error {
	hash := snapshotHash(snapshot)
	text := formatStoplist(snapshot)

	subscribers := s.gatekeeper.SubscriberIDs(ctx, authz.RoleStoplist)
	for _, chatID := range subscribers {
		s.upsertPinned(ctx, chatID, entities.PinnedKindStoplist, hash, text)
	}
	return nil
}

func (s *stoplistService) upsertPinned(ctx context.Context, chatID int64, kind, hash, text string) {
	existing, err := s.pinned.Find(ctx, chatID, kind)
	if err == nil && existing.SnapshotHash == hash {
		return
	}

	escaped := telegram.EscapeTextForMarkdownV2(text)
	if err == nil {
		if editErr := s.bot.EditMessageText(ctx, chatID, existing.MessageID, escaped, telegram.WithMarkdownV2()); editErr == nil {
			existing.SnapshotHash = hash
			if upErr := s.pinned.Upsert(ctx, existing); upErr != nil {
				s.logger.Warn("⚠️ Хеш закреплённого сообщения не сохранён", zap.Error(upErr))
			}
			return
		}
		// Сообщение удалили руками: шлём и закрепляем новое.
	}

	msgID, sendErr := s.bot.SendMessageEx(ctx, chatID, escaped, telegram.WithMarkdownV2())
	if sendErr != nil {
		s.logger.Warn("⚠️ Подписчик не получил стоп-лист", zap.Int64("chat", chatID), zap.Error(sendErr))
		return
	}
	if pinErr := s.bot.PinChatMessage(ctx, chatID, msgID); pinErr != nil {
		s.logger.Debug("сообщение не закреплено", zap.Int64("chat", chatID), zap.Error(pinErr))
	}
	if upErr := s.pinned.Upsert(ctx, &entities.PinnedMessage{
		ChatID: chatID, Kind: kind, MessageID: msgID, SnapshotHash: hash,
	}); upErr != nil {
		s.logger.Warn("⚠️ Закреплённое сообщение не сохранено", zap.Error(upErr))
	}
}

func formatStoplist(items []entities.StoplistItem) string {
	if len(items) == 0 {
		return "🚫 Стоп-лист пуст. Всё в продаже!"
	}

	sorted := make([]entities.StoplistItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductName < sorted[j].ProductName })

	var b strings.Builder
	fmt.Fprintf(&b, "🚫 Стоп-лист (%d позиций)\n\n", len(sorted))
	for _, it := range sorted {
		fmt.Fprintf(&b, "• %s\n", it.ProductName)
	}
	fmt.Fprintf(&b, "\nОбновлено: %s", localtime.Now().Format("02.01 15:04"))
	return b.String()
}

func (s *stoplistService) Current(ctx context.Context) ([]entities.StoplistItem, error) {
	return s.stoplists.ListActive(ctx)
}

func (s *stoplistService) EveningReport(ctx context.Context) error {
	since := localtime.StartOfDay(localtime.Now())
	history, err := s.stoplists.HistorySince(ctx, since)
	if err != nil {
		return err
	}

	text := formatEveningReport(history, since)
	subscribers := s.gatekeeper.SubscriberIDs(ctx, authz.RoleStoplist)
	sent := 0
	for _, chatID := range subscribers {
		if _, err := s.bot.SendMessage(ctx, chatID, text); err != nil {
			s.logger.Warn("⚠️ Вечерний отчёт не доставлен", zap.Int64("chat", chatID), zap.Error(err))
			continue
		}
		sent++
	}

	s.logger.Info("🏁 Вечерний отчёт по стоп-листу разослан",
		zap.Int("интервалов", len(history)), zap.Int("получателей", sent))
	return nil
}

// formatEveningReport агрегирует интервалы в суммарное время каждой позиции
// в стопе за день. Открытые интервалы считаются до текущего момента.
func formatEveningReport(history []entities.StoplistHistory, since time.Time) string {
	if len(history) == 0 {
		return "🏁 Итоги дня: стоп-лист сегодня не пополнялся."
	}

	now := localtime.Now()
	totals := make(map[string]time.Duration)
	stillActive := make(map[string]bool)
	for _, h := range history {
		start := h.StartedAt
		if start.Before(since) {
			start = since
		}
		end := now
		if h.EndedAt != nil {
			end = *h.EndedAt
			if end.Before(since) {
				continue
			}
		} else {
			stillActive[h.ProductName] = true
		}
		totals[h.ProductName] += end.Sub(start)
	}

	names := make([]string, 0, len(totals))
	for name := range totals {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return totals[names[i]] > totals[names[j]] })

	var b strings.Builder
	fmt.Fprintf(&b, "🏁 Итоги дня по стоп-листу (%d позиций):\n\n", len(names))
	for _, name := range names {
		d := totals[name].Round(time.Minute)
		mark := ""
		if stillActive[name] {
			mark = " (ещё в стопе)"
		}
		fmt.Fprintf(&b, "• %s — %s%s\n", name, formatDuration(d), mark)
	}
	return b.String()
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h == 0 {
		return fmt.Sprintf("%d мин", m)
	}
	return fmt.Sprintf("%d ч %02d мин", h, m)
}
