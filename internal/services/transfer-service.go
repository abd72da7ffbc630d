// Файл: internal/services/transfer-service.go
// Ночное выравнивание расходников. Бар и кухня списывают хоз. товары со
// своих складов в минус, а реальные остатки лежат на хозяйственном складе
// ресторана. Перемещения закрывают минус без ручной работы кладовщика.
package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"resto-backoffice/internal/authz"
	"resto-backoffice/internal/clients/iiko"
	"resto-backoffice/internal/repositories"
	"resto-backoffice/pkg/config"
	"resto-backoffice/pkg/localtime"
	"resto-backoffice/pkg/telegram"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Имена складов следуют шаблону "ТИП (Ресторан)": "Бар (Морская)",
// "Хоз. товары (Морская)". Скобки связывают склады одного ресторана.
var storeNameRe = regexp.MustCompile(`^(.+?)\s*\((.+?)\)$`)

// ParseStoreName разбирает имя склада на тип и ресторан.
func ParseStoreName(name string) (storeType, restaurant string, ok bool) {
	m := storeNameRe.FindStringSubmatch(strings.TrimSpace(name))
	if m == nil {
		return "", "", false
	}
	return strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), true
}

// NegativeItem — минусовая позиция целевого склада.
type NegativeItem struct {
	StoreName   string
	ProductName string
	Amount      decimal.Decimal
}

// CollectNegatives выбирает из OLAP-строк минусовые остатки товаров нужной
// группы на целевых складах. Строки без числового остатка пропускаются:
// OLAP отдаёт null для позиций без движения.
func CollectNegatives(rows []map[string]interface{}, cfg config.TransferConfig) []NegativeItem {
	targets := make(map[string]struct{}, len(cfg.TargetTypes))
	for _, t := range cfg.TargetTypes {
		targets[strings.ToLower(t)] = struct{}{}
	}

	var out []NegativeItem
	for _, row := range rows {
		group, _ := row["Product.TopParent"].(string)
		if !strings.EqualFold(strings.TrimSpace(group), cfg.ProductGroup) {
			continue
		}

		storeName, _ := row["Account.Name"].(string)
		storeType, _, ok := ParseStoreName(storeName)
		if !ok {
			continue
		}
		if _, ok := targets[strings.ToLower(storeType)]; !ok {
			continue
		}

		amount, ok := olapAmount(row["FinalBalance.Amount"])
		if !ok || !amount.IsNegative() {
			continue
		}

		product, _ := row["Product.Name"].(string)
		if product == "" {
			continue
		}
		out = append(out, NegativeItem{StoreName: storeName, ProductName: product, Amount: amount})
	}
	return out
}

func olapAmount(v interface{}) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case string:
		d, err := decimal.NewFromString(strings.ReplaceAll(n, ",", "."))
		return d, err == nil
	default:
		return decimal.Decimal{}, false
	}
}

type TransferServiceInterface interface {
	// RunNegativeTransfer закрывает минусы перемещениями. Возвращает число
	// отправленных документов.
	RunNegativeTransfer(ctx context.Context) (int, error)
}

type transferService struct {
	pos        iiko.ClientInterface
	dicts      repositories.DictionaryRepositoryInterface
	syncLogs   repositories.SyncLogRepositoryInterface
	txm        repositories.TxManagerInterface
	gatekeeper authz.GatekeeperInterface
	bot        telegram.ServiceInterface
	cfg        config.TransferConfig
	logger     *zap.Logger
}

func NewTransferService(
	pos iiko.ClientInterface,
	dicts repositories.DictionaryRepositoryInterface,
	syncLogs repositories.SyncLogRepositoryInterface,
	txm repositories.TxManagerInterface,
	gatekeeper authz.GatekeeperInterface,
	bot telegram.ServiceInterface,
	cfg config.TransferConfig,
	logger *zap.Logger,
) TransferServiceInterface {
	return &transferService{
		pos: pos, dicts: dicts, syncLogs: syncLogs, txm: txm,
		gatekeeper: gatekeeper, bot: bot, cfg: cfg, logger: logger,
	}
}

func (s *transferService) RunNegativeTransfer(ctx context.Context) (int, error) {
	logID, err := s.syncLogs.Start(ctx, "NegativeTransfer", "cron")
	if err != nil {
		return 0, err
	}

	sent, err := s.run(ctx)
	if err != nil {
		if logErr := s.syncLogs.MarkError(ctx, logID, err.Error()); logErr != nil {
			s.logger.Warn("⚠️ Не удалось записать ошибку в журнал", zap.Error(logErr))
		}
		s.notifyAdmins(ctx, fmt.Sprintf("💥 Ночное перемещение расходников упало: %v", err))
		return sent, err
	}

	err = s.txm.RunInTransaction(ctx, func(tx pgx.Tx) error {
		return s.syncLogs.MarkSuccess(ctx, tx, logID, sent)
	})
	if err != nil {
		s.logger.Warn("⚠️ Не удалось закрыть запись журнала", zap.Error(err))
	}
	if sent > 0 {
		s.notifyAdmins(ctx, fmt.Sprintf("🌙 Минусы расходников закрыты: %d перемещений.", sent))
	}
	return sent, nil
}

func (s *transferService) run(ctx context.Context) (int, error) {
	now := localtime.Now()
	rows, err := s.pos.FetchOlapBalances(ctx, now.AddDate(0, -1, 0), now)
	if err != nil {
		return 0, err
	}

	negatives := CollectNegatives(rows, s.cfg)
	if len(negatives) == 0 {
		s.logger.Info("🌙 Минусовых остатков расходников нет")
		return 0, nil
	}

	stores, err := s.dicts.ListStores(ctx)
	if err != nil {
		return 0, err
	}

	// Склады по имени и склад-источник каждого ресторана.
	storeByName := make(map[string]string, len(stores))
	sourceByRestaurant := make(map[string]string)
	for _, st := range stores {
		storeByName[st.Name] = st.ID
		storeType, restaurant, ok := ParseStoreName(st.Name)
		if ok && strings.HasPrefix(storeType, s.cfg.SourcePrefix) {
			sourceByRestaurant[restaurant] = st.ID
		}
	}

	// Позиции группируются по паре источник->приёмник: один документ на склад.
	type transferKey struct{ fromID, toID string }
	batches := make(map[transferKey][]iiko.DocumentItem)
	products := make(map[string]string)
	if names, err := s.dicts.ProductNames(ctx); err == nil {
		for id, name := range names {
			products[name] = id
		}
	}

	for _, neg := range negatives {
		toID, ok := storeByName[neg.StoreName]
		if !ok {
			s.logger.Warn("⚠️ Склад из отчёта не найден в зеркале", zap.String("склад", neg.StoreName))
			continue
		}
		_, restaurant, _ := ParseStoreName(neg.StoreName)
		fromID, ok := sourceByRestaurant[restaurant]
		if !ok {
			s.logger.Warn("⚠️ У ресторана нет хозяйственного склада", zap.String("ресторан", restaurant))
			continue
		}
		productID, ok := products[neg.ProductName]
		if !ok {
			s.logger.Warn("⚠️ Товар из отчёта не найден в зеркале", zap.String("товар", neg.ProductName))
			continue
		}

		key := transferKey{fromID: fromID, toID: toID}
		batches[key] = append(batches[key], iiko.DocumentItem{
			ProductID: productID,
			Amount:    neg.Amount.Abs(),
		})
	}

	sent := 0
	for key, items := range batches {
		doc := &iiko.TransferDocument{
			DateIncoming: now.Format("2006-01-02"),
			Status:       "PROCESSED",
			Comment:      "Автоперемещение: закрытие минусов расходных материалов",
			StoreFromID:  key.fromID,
			StoreToID:    key.toID,
			Items:        items,
		}
		if err := s.pos.SendInternalTransfer(ctx, doc); err != nil {
			return sent, fmt.Errorf("перемещение на склад %s: %w", key.toID, err)
		}
		sent++
	}

	s.logger.Info("🌙 Ночные перемещения отправлены",
		zap.Int("документов", sent), zap.Int("позиций", len(negatives)))
	return sent, nil
}

func (s *transferService) notifyAdmins(ctx context.Context, text string) {
	for _, chatID := range s.gatekeeper.AdminIDs(ctx) {
		if _, err := s.bot.SendMessage(ctx, chatID, text); err != nil {
			s.logger.Warn("⚠️ Администратор не уведомлён", zap.Int64("chat", chatID), zap.Error(err))
		}
	}
}
