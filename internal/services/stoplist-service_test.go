// Файл: internal/services/stoplist-service_test.go
package services

import (
	"testing"
	"time"

	"resto-backoffice/internal/entities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(productID, tgID, name string) entities.StoplistItem {
	return entities.StoplistItem{ProductID: productID, TerminalGroupID: tgID, ProductName: name}
}

func TestDiffStoplist(t *testing.T) {
	active := []entities.StoplistItem{
		item("p1", "t1", "Лимонад"),
		item("p2", "t1", "Сырники"),
	}
	snapshot := []entities.StoplistItem{
		item("p2", "t1", "Сырники"),
		item("p3", "t1", "Паста"),
		// Тот же товар на другой терминальной группе — отдельная позиция.
		item("p2", "t2", "Сырники"),
	}

	added, removed := diffStoplist(active, snapshot)
	require.Len(t, added, 2)
	require.Len(t, removed, 1)
	assert.Equal(t, "p3", added[0].ProductID)
	assert.Equal(t, "t2", added[1].TerminalGroupID)
	assert.Equal(t, "p1", removed[0].ProductID)
}

func TestSnapshotHashOrderIndependent(t *testing.T) {
	a := []entities.StoplistItem{item("p1", "t1", "А"), item("p2", "t1", "Б")}
	b := []entities.StoplistItem{item("p2", "t1", "Б"), item("p1", "t1", "А")}

	assert.Equal(t, snapshotHash(a), snapshotHash(b), "порядок позиций не меняет отпечаток")
	assert.NotEqual(t, snapshotHash(a), snapshotHash(a[:1]))
	assert.NotEmpty(t, snapshotHash(nil))
}

func TestFormatEveningReport(t *testing.T) {
	since := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	ended := since.Add(3 * time.Hour)

	history := []entities.StoplistHistory{
		{ProductName: "Лимонад", StartedAt: since.Add(time.Hour), EndedAt: &ended},
		{ProductName: "Сырники", StartedAt: since.Add(2 * time.Hour)},
	}

	text := formatEveningReport(history, since)
	assert.Contains(t, text, "Лимонад")
	assert.Contains(t, text, "2 ч 00 мин")
	assert.Contains(t, text, "Сырники")
	assert.Contains(t, text, "ещё в стопе")

	assert.Contains(t, formatEveningReport(nil, since), "не пополнялся")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45 мин", formatDuration(45*time.Minute))
	assert.Equal(t, "2 ч 05 мин", formatDuration(2*time.Hour+5*time.Minute))
}
