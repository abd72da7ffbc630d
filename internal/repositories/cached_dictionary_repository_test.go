// Файл: internal/repositories/cached_dictionary_repository_test.go
package repositories

import (
	"context"
	"sync"
	"testing"

	"resto-backoffice/internal/entities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingDicts struct {
	DictionaryRepositoryInterface

	mu           sync.Mutex
	accountCalls int
	storeCalls   int
	productCalls int
	storesByDep  map[string]int
}

func (d *countingDicts) ListWriteoffAccounts(context.Context) ([]entities.PosEntity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accountCalls++
	return []entities.PosEntity{
		{ID: "acc-1", RootType: "Account", Name: "Списание бар"},
		{ID: "acc-2", RootType: "Account", Name: "Списание кухня"},
	}, nil
}

func (d *countingDicts) ListStores(context.Context) ([]entities.Store, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.storeCalls++
	return []entities.Store{{ID: "st-1", Name: "Бар (Морская)"}}, nil
}

func (d *countingDicts) ListStoresByDepartment(_ context.Context, departmentID string) ([]entities.Store, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.storesByDep == nil {
		d.storesByDep = make(map[string]int)
	}
	d.storesByDep[departmentID]++
	return []entities.Store{{ID: "st-" + departmentID, Name: "Склад " + departmentID}}, nil
}

func (d *countingDicts) SearchProducts(_ context.Context, needle string, _ []string, _ int) ([]entities.Product, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.productCalls++
	return []entities.Product{{ID: "p-1", Name: needle}}, nil
}

func TestCachedDictionaryServesRepeatsFromCache(t *testing.T) {
	ctx := context.Background()
	inner := &countingDicts{}
	dicts := NewCachedDictionaryRepository(inner, NewMemoryCacheRepository(), zap.NewNop())

	for i := 0; i < 3; i++ {
		accounts, err := dicts.ListWriteoffAccounts(ctx)
		require.NoError(t, err)
		require.Len(t, accounts, 2)
		assert.Equal(t, "Списание бар", accounts[0].Name)
	}
	assert.Equal(t, 1, inner.accountCalls, "повторные чтения идут из кеша")

	for i := 0; i < 2; i++ {
		stores, err := dicts.ListStores(ctx)
		require.NoError(t, err)
		require.Len(t, stores, 1)
	}
	assert.Equal(t, 1, inner.storeCalls)
}

func TestCachedDictionarySeparatesKeys(t *testing.T) {
	ctx := context.Background()
	inner := &countingDicts{}
	dicts := NewCachedDictionaryRepository(inner, NewMemoryCacheRepository(), zap.NewNop())

	// Разные подразделения не делят ключ кеша.
	first, err := dicts.ListStoresByDepartment(ctx, "dep-1")
	require.NoError(t, err)
	second, err := dicts.ListStoresByDepartment(ctx, "dep-2")
	require.NoError(t, err)
	assert.NotEqual(t, first[0].ID, second[0].ID)

	_, err = dicts.ListStoresByDepartment(ctx, "dep-1")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.storesByDep["dep-1"])
	assert.Equal(t, 1, inner.storesByDep["dep-2"])

	// Поиск кешируется по запросу: другая подстрока — новое чтение.
	_, err = dicts.SearchProducts(ctx, "молоко", nil, 10)
	require.NoError(t, err)
	_, err = dicts.SearchProducts(ctx, "молоко", nil, 10)
	require.NoError(t, err)
	_, err = dicts.SearchProducts(ctx, "сыр", nil, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.productCalls)
}
