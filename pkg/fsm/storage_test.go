// Файл: pkg/fsm/storage_test.go
package fsm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type draft struct {
	StoreID string `json:"store_id"`
	Qty     int    `json:"qty"`
}

func TestSessionRoundTrip(t *testing.T) {
	s := NewSession()
	require.NoError(t, s.Set("черновик", draft{StoreID: "s1", Qty: 3}))

	var got draft
	require.True(t, s.Get("черновик", &got))
	assert.Equal(t, "s1", got.StoreID)
	assert.Equal(t, 3, got.Qty)

	s.Delete("черновик")
	assert.False(t, s.Get("черновик", &got))
}

func TestSessionGetMissingKey(t *testing.T) {
	s := NewSession()
	var got draft
	assert.False(t, s.Get("нет такого", &got))
}

func TestMemoryStorageIsolatesSessions(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()

	s, err := storage.Load(ctx, 100)
	require.NoError(t, err)
	s.State = "wo:reason"
	require.NoError(t, s.Set("item", draft{Qty: 1}))
	require.NoError(t, storage.Save(ctx, 100, s))

	// Изменения после Save не должны протекать в хранилище.
	s.State = "испорчено"

	loaded, err := storage.Load(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "wo:reason", loaded.State)

	var got draft
	require.True(t, loaded.Get("item", &got))
	assert.Equal(t, 1, got.Qty)

	// Чужой чат получает чистую сессию.
	other, err := storage.Load(ctx, 200)
	require.NoError(t, err)
	assert.Empty(t, other.State)
	assert.Empty(t, other.Data)
}

func TestMemoryStorageClear(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()

	s, _ := storage.Load(ctx, 7)
	s.State = "rq:qty"
	require.NoError(t, storage.Save(ctx, 7, s))
	require.NoError(t, storage.Clear(ctx, 7))

	loaded, err := storage.Load(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, loaded.State)
}
