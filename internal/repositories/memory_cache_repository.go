// Файл: internal/repositories/memory_cache_repository.go
// Кеш в памяти процесса на случай, когда Redis не настроен. Семантика
// повторяет редисовую: TTL, атомарный инкремент. Подходит для одного
// инстанса, переживать рестарт не обязан.
package repositories

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

type memoryCacheEntry struct {
	value     string
	expiresAt time.Time
}

func (e memoryCacheEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

type MemoryCacheRepository struct {
	mu      sync.Mutex
	entries map[string]memoryCacheEntry
}

func NewMemoryCacheRepository() CacheRepositoryInterface {
	return &MemoryCacheRepository{entries: make(map[string]memoryCacheEntry)}
}

func (r *MemoryCacheRepository) Get(_ context.Context, key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok || entry.expired(time.Now()) {
		delete(r.entries, key)
		return "", fmt.Errorf("ключ %q не найден в кеше", key)
	}
	return entry.value, nil
}

func (r *MemoryCacheRepository) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := memoryCacheEntry{value: fmt.Sprint(value)}
	if expiration > 0 {
		entry.expiresAt = time.Now().Add(expiration)
	}
	r.entries[key] = entry
	return nil
}

func (r *MemoryCacheRepository) Del(_ context.Context, keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range keys {
		delete(r.entries, key)
	}
	return nil
}

func (r *MemoryCacheRepository) Incr(_ context.Context, key string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok || entry.expired(time.Now()) {
		entry = memoryCacheEntry{value: "0"}
	}
	n, err := strconv.ParseInt(entry.value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("значение ключа %q не число: %w", key, err)
	}
	n++
	entry.value = strconv.FormatInt(n, 10)
	r.entries[key] = entry
	return n, nil
}

func (r *MemoryCacheRepository) Expire(_ context.Context, key string, expiration time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok || entry.expired(time.Now()) {
		return false, nil
	}
	entry.expiresAt = time.Now().Add(expiration)
	r.entries[key] = entry
	return true, nil
}
