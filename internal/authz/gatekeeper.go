// Файл: internal/authz/gatekeeper.go
// Проверка прав по матрице из книги. Матрица кешируется на 5 минут;
// если книга недоступна, работаем по последней удачно прочитанной копии:
// лучше вчерашние права, чем встать колом.
package authz

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"resto-backoffice/internal/integrations/sheets"
	"resto-backoffice/internal/repositories"
	"resto-backoffice/pkg/config"

	"go.uber.org/zap"
)

const (
	matrixCacheKey = "permissions_cache"
	matrixCacheTTL = 5 * time.Minute
)

type GatekeeperInterface interface {
	// Can проверяет право. Админ проходит любую проверку.
	Can(ctx context.Context, telegramID int64, permKey string) bool
	IsAdmin(ctx context.Context, telegramID int64) bool
	// PermsFor — все флаги пользователя, для построения меню.
	PermsFor(ctx context.Context, telegramID int64) map[string]bool
	IsReceiver(ctx context.Context, telegramID int64) bool
	// ReceiverIDs возвращает получателей заявок. roleKey пустой — все три типа.
	ReceiverIDs(ctx context.Context, roleKey string) []int64
	// SubscriberIDs — пользователи с ролью-подпиской (остатки, стоп-лист).
	SubscriberIDs(ctx context.Context, roleKey string) []int64
	AdminIDs(ctx context.Context) []int64
	// Invalidate сбрасывает кеш матрицы, вызывается после выгрузки прав.
	Invalidate(ctx context.Context)
}

type Gatekeeper struct {
	workbook sheets.ClientInterface
	cache    repositories.CacheRepositoryInterface
	legacy   repositories.LegacyAdminRepositoryInterface
	cfg      *config.Config
	logger   *zap.Logger

	// Последняя удачно прочитанная матрица, на случай недоступной книги.
	mu    sync.RWMutex
	stale map[int64]map[string]bool
}

func NewGatekeeper(workbook sheets.ClientInterface, cache repositories.CacheRepositoryInterface, legacy repositories.LegacyAdminRepositoryInterface, cfg *config.Config, logger *zap.Logger) *Gatekeeper {
	return &Gatekeeper{workbook: workbook, cache: cache, legacy: legacy, cfg: cfg, logger: logger}
}

func (g *Gatekeeper) matrix(ctx context.Context) map[int64]map[string]bool {
	if cached, err := g.cache.Get(ctx, matrixCacheKey); err == nil && cached != "" {
		var decoded map[int64]map[string]bool
		if json.Unmarshal([]byte(cached), &decoded) == nil {
			return decoded
		}
	}

	rows, err := g.workbook.ReadTab(g.cfg.Sheet.PermissionsTab)
	if err != nil {
		g.logger.Warn("⚠️ Книга прав недоступна, работаю по устаревшей копии", zap.Error(err))
		g.mu.RLock()
		defer g.mu.RUnlock()
		return g.stale
	}

	fresh := make(map[int64]map[string]bool)
	for _, entry := range sheets.ParsePermissions(rows) {
		fresh[entry.TelegramID] = entry.Perms
	}

	if raw, err := json.Marshal(fresh); err == nil {
		if err := g.cache.Set(ctx, matrixCacheKey, string(raw), matrixCacheTTL); err != nil {
			g.logger.Warn("⚠️ Не удалось закешировать матрицу прав", zap.Error(err))
		}
	}

	g.mu.Lock()
	g.stale = fresh
	g.mu.Unlock()

	g.logger.Debug("🔑 Матрица прав обновлена", zap.Int("пользователей", len(fresh)))
	return fresh
}

func (g *Gatekeeper) Can(ctx context.Context, telegramID int64, permKey string) bool {
	if g.IsAdmin(ctx, telegramID) {
		return true
	}
	return g.matrix(ctx)[telegramID][permKey]
}

func (g *Gatekeeper) IsAdmin(ctx context.Context, telegramID int64) bool {
	for _, id := range g.cfg.Telegram.AdminChatIDs {
		if id == telegramID {
			return true
		}
	}
	if g.matrix(ctx)[telegramID][RoleSysadmin] {
		return true
	}
	if g.cfg.LegacyAdminTables {
		admins, err := g.legacy.ListAdmins(ctx)
		if err != nil {
			g.logger.Warn("⚠️ Не удалось прочитать bot_admin", zap.Error(err))
			return false
		}
		for _, admin := range admins {
			if admin.ChatID == telegramID {
				return true
			}
		}
	}
	return false
}

func (g *Gatekeeper) PermsFor(ctx context.Context, telegramID int64) map[string]bool {
	if g.IsAdmin(ctx, telegramID) {
		all := make(map[string]bool, len(AllColumnKeys))
		for _, key := range AllColumnKeys {
			all[key] = true
		}
		return all
	}
	perms := g.matrix(ctx)[telegramID]
	if perms == nil {
		return map[string]bool{}
	}
	return perms
}

func (g *Gatekeeper) IsReceiver(ctx context.Context, telegramID int64) bool {
	perms := g.matrix(ctx)[telegramID]
	return perms[RoleReceiverKitchen] || perms[RoleReceiverBar] || perms[RoleReceiverPastry]
}

func (g *Gatekeeper) ReceiverIDs(ctx context.Context, roleKey string) []int64 {
	keys := []string{roleKey}
	if roleKey == "" {
		keys = []string{RoleReceiverKitchen, RoleReceiverBar, RoleReceiverPastry}
	}

	var out []int64
	for tgID, perms := range g.matrix(ctx) {
		for _, key := range keys {
			if perms[key] {
				out = append(out, tgID)
				break
			}
		}
	}
	return out
}

func (g *Gatekeeper) SubscriberIDs(ctx context.Context, roleKey string) []int64 {
	var out []int64
	for tgID, perms := range g.matrix(ctx) {
		if perms[roleKey] {
			out = append(out, tgID)
		}
	}
	return out
}

func (g *Gatekeeper) AdminIDs(ctx context.Context) []int64 {
	seen := make(map[int64]struct{})
	var out []int64
	add := func(id int64) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}

	for _, id := range g.cfg.Telegram.AdminChatIDs {
		add(id)
	}
	for tgID, perms := range g.matrix(ctx) {
		if perms[RoleSysadmin] {
			add(tgID)
		}
	}
	if g.cfg.LegacyAdminTables {
		if admins, err := g.legacy.ListAdmins(ctx); err == nil {
			for _, admin := range admins {
				add(admin.ChatID)
			}
		}
	}
	return out
}

func (g *Gatekeeper) Invalidate(ctx context.Context) {
	if err := g.cache.Del(ctx, matrixCacheKey); err != nil {
		g.logger.Warn("⚠️ Не удалось сбросить кеш прав", zap.Error(err))
	}
}

// RequiredPermForText возвращает право для reply-кнопки. Тексты без
// привязки пропускаются без проверки: это ответы на вопросы сценариев.
func RequiredPermForText(text string) (string, bool) {
	perm, ok := TextPermissions[text]
	return perm, ok
}

// RequiredPermForCallback подбирает право по префиксу callback data.
func RequiredPermForCallback(data string) (string, bool) {
	for prefix, perm := range CallbackPermissions {
		if strings.HasPrefix(data, prefix) {
			return perm, true
		}
	}
	return "", false
}

// PermTitles — заголовки столбцов книги совпадают с ключами прав.
func PermTitles() map[string]string {
	titles := make(map[string]string, len(AllColumnKeys))
	for _, key := range AllColumnKeys {
		titles[key] = key
	}
	return titles
}
