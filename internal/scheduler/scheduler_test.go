// Файл: internal/scheduler/scheduler_test.go
package scheduler

import (
	"context"
	"testing"
	"time"

	"resto-backoffice/internal/entities"
	"resto-backoffice/internal/repositories"
	apperrors "resto-backoffice/pkg/errors"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeSyncLogs struct {
	repositories.SyncLogRepositoryInterface
	// finished по имени задачи; отсутствие записи — журнал пуст.
	finished map[string]time.Time
}

func (f *fakeSyncLogs) LastSuccess(_ context.Context, entityType string) (*entities.SyncLog, error) {
	at, ok := f.finished[entityType]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &entities.SyncLog{EntityType: entityType, FinishedAt: &at}, nil
}

func newCatchUpScheduler(finished map[string]time.Time) *Scheduler {
	return &Scheduler{
		syncLogs: &fakeSyncLogs{finished: finished},
		logger:   zap.NewNop(),
	}
}

func TestShouldCatchUpCoversEverySlot(t *testing.T) {
	ctx := context.Background()
	loc := time.UTC
	dayAgo := func(now time.Time) time.Time { return now.Add(-26 * time.Hour) }

	t.Run("рестарт после утреннего слота", func(t *testing.T) {
		now := time.Date(2026, 8, 24, 7, 40, 0, 0, loc)
		s := newCatchUpScheduler(map[string]time.Time{dailyChainLog: dayAgo(now)})

		assert.True(t, s.shouldCatchUp(ctx, now, 7, dailyChainLog))
		assert.False(t, s.shouldCatchUp(ctx, now, 22, eveningReportLog), "вечерний слот ещё впереди")
		assert.False(t, s.shouldCatchUp(ctx, now, 23, transferLog))
	})

	t.Run("рестарт после вечерних слотов", func(t *testing.T) {
		now := time.Date(2026, 8, 24, 23, 30, 0, 0, loc)
		s := newCatchUpScheduler(map[string]time.Time{
			eveningReportLog: dayAgo(now),
			transferLog:      dayAgo(now),
		})

		assert.False(t, s.shouldCatchUp(ctx, now, 7, dailyChainLog), "утренний слот давно позади")
		assert.False(t, s.shouldCatchUp(ctx, now, 22, eveningReportLog), "22:00 дальше часа назад")
		assert.True(t, s.shouldCatchUp(ctx, now, 23, transferLog))
	})

	t.Run("свежий проход не перезапускается", func(t *testing.T) {
		now := time.Date(2026, 8, 24, 22, 10, 0, 0, loc)
		recent := now.Add(-2 * time.Hour)
		s := newCatchUpScheduler(map[string]time.Time{eveningReportLog: recent})

		assert.False(t, s.shouldCatchUp(ctx, now, 22, eveningReportLog))
	})

	t.Run("пустой журнал запускает задачу", func(t *testing.T) {
		now := time.Date(2026, 8, 24, 22, 10, 0, 0, loc)
		s := newCatchUpScheduler(nil)

		assert.True(t, s.shouldCatchUp(ctx, now, 22, eveningReportLog))
	})
}
