// Файл: internal/repositories/cached_dictionary_repository.go
// Кеширующая обёртка над справочниками. В зеркальные таблицы пишет только
// синхронизация, поэтому шаги сценариев бота могут читать склады, счета и
// результаты поиска из кеша, а не из базы. Методы без обёртки уходят в
// базу напрямую через встроенный интерфейс.
package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"resto-backoffice/internal/entities"

	"go.uber.org/zap"
)

const dictionaryCacheTTL = 5 * time.Minute

type cachedDictionaryRepository struct {
	DictionaryRepositoryInterface
	cache  CacheRepositoryInterface
	logger *zap.Logger
}

func NewCachedDictionaryRepository(inner DictionaryRepositoryInterface, cache CacheRepositoryInterface, logger *zap.Logger) DictionaryRepositoryInterface {
	return &cachedDictionaryRepository{
		DictionaryRepositoryInterface: inner,
		cache:                         cache,
		logger:                        logger,
	}
}

// viaCache отдаёт значение из кеша, а при промахе читает из базы и кладёт
// результат на dictionaryCacheTTL. Ошибки кеша не фатальны: справочник
// просто читается из базы.
func viaCache[T any](ctx context.Context, r *cachedDictionaryRepository, key string, fetch func(context.Context) (T, error)) (T, error) {
	if raw, err := r.cache.Get(ctx, key); err == nil && raw != "" {
		var out T
		if json.Unmarshal([]byte(raw), &out) == nil {
			return out, nil
		}
	}

	out, err := fetch(ctx)
	if err != nil {
		return out, err
	}

	if raw, err := json.Marshal(out); err == nil {
		if err := r.cache.Set(ctx, key, string(raw), dictionaryCacheTTL); err != nil {
			r.logger.Debug("справочник не закеширован", zap.String("ключ", key), zap.Error(err))
		}
	}
	return out, nil
}

func (r *cachedDictionaryRepository) ListStores(ctx context.Context) ([]entities.Store, error) {
	return viaCache(ctx, r, "dict:stores", r.DictionaryRepositoryInterface.ListStores)
}

func (r *cachedDictionaryRepository) ListStoresByDepartment(ctx context.Context, departmentID string) ([]entities.Store, error) {
	return viaCache(ctx, r, "dict:stores:dep:"+departmentID, func(ctx context.Context) ([]entities.Store, error) {
		return r.DictionaryRepositoryInterface.ListStoresByDepartment(ctx, departmentID)
	})
}

func (r *cachedDictionaryRepository) ListWriteoffAccounts(ctx context.Context) ([]entities.PosEntity, error) {
	return viaCache(ctx, r, "dict:writeoff_accounts", r.DictionaryRepositoryInterface.ListWriteoffAccounts)
}

func (r *cachedDictionaryRepository) UnitNames(ctx context.Context) (map[string]string, error) {
	return viaCache(ctx, r, "dict:units", r.DictionaryRepositoryInterface.UnitNames)
}

func (r *cachedDictionaryRepository) SearchProducts(ctx context.Context, needle string, groupIDs []string, limit int) ([]entities.Product, error) {
	key := fmt.Sprintf("dict:products:%s:%d:%s", strings.ToLower(needle), limit, strings.Join(groupIDs, ","))
	return viaCache(ctx, r, key, func(ctx context.Context) ([]entities.Product, error) {
		return r.DictionaryRepositoryInterface.SearchProducts(ctx, needle, groupIDs, limit)
	})
}

func (r *cachedDictionaryRepository) SearchSuppliers(ctx context.Context, needle string, limit int) ([]entities.Supplier, error) {
	key := fmt.Sprintf("dict:suppliers:%s:%d", strings.ToLower(needle), limit)
	return viaCache(ctx, r, key, func(ctx context.Context) ([]entities.Supplier, error) {
		return r.DictionaryRepositoryInterface.SearchSuppliers(ctx, needle, limit)
	})
}
