package repositories

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeRows(n int) [][]interface{} {
	rows := make([][]interface{}, n)
	for i := range rows {
		rows[i] = []interface{}{fmt.Sprintf("id-%d", i), fmt.Sprintf("имя %d", i)}
	}
	return rows
}

func TestChunkRows(t *testing.T) {
	testCases := []struct {
		name       string
		total      int
		chunkSizes []int
	}{
		{"пусто", 0, nil},
		{"меньше лимита", 499, []int{499}},
		{"ровно лимит", 500, []int{500}},
		{"лимит плюс один", 501, []int{500, 1}},
		{"несколько пачек", 1250, []int{500, 500, 250}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			chunks := ChunkRows(makeRows(tc.total), 500)
			require.Len(t, chunks, len(tc.chunkSizes))
			for i, want := range tc.chunkSizes {
				assert.Len(t, chunks[i], want)
			}
		})
	}
}

func TestBuildUpsertChunk(t *testing.T) {
	rows := [][]interface{}{
		{"id-1", "Молоко", true},
		{"id-2", "Хлеб", false},
	}
	query, args, err := buildUpsertChunk("iiko_product",
		[]string{"id", "name", "deleted"},
		[]string{"id"},
		rows,
	)
	require.NoError(t, err)

	assert.Contains(t, query, "INSERT INTO iiko_product")
	assert.Contains(t, query, "ON CONFLICT (id) DO UPDATE SET")
	assert.Contains(t, query, "name = EXCLUDED.name")
	assert.Contains(t, query, "deleted = EXCLUDED.deleted")
	assert.NotContains(t, query, "id = EXCLUDED.id", "ключ конфликта не должен обновляться")
	assert.Len(t, args, 6)
}

func TestBuildUpsertChunkCompositeKey(t *testing.T) {
	rows := [][]interface{}{{"e1", "Account", "Списание бар"}}
	query, _, err := buildUpsertChunk("iiko_entity",
		[]string{"id", "root_type", "name"},
		[]string{"id", "root_type"},
		rows,
	)
	require.NoError(t, err)
	assert.Contains(t, query, "ON CONFLICT (id, root_type) DO UPDATE SET name = EXCLUDED.name")
}

func TestBuildUpsertChunkColumnMismatch(t *testing.T) {
	_, _, err := buildUpsertChunk("t", []string{"a", "b"}, []string{"a"}, [][]interface{}{{"x"}})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "колонк"))
}

func TestExceedsDeleteShare(t *testing.T) {
	assert.False(t, ExceedsDeleteShare(0, 100))
	assert.False(t, ExceedsDeleteShare(50, 100), "ровно половина ещё допустима")
	assert.True(t, ExceedsDeleteShare(51, 100))
	assert.True(t, ExceedsDeleteShare(100, 100))
	assert.False(t, ExceedsDeleteShare(0, 0))
	assert.False(t, ExceedsDeleteShare(1, 3))
	assert.True(t, ExceedsDeleteShare(2, 3))
}
