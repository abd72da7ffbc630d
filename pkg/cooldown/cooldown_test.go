package cooldown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestGuard(start time.Time) (*Guard, *time.Time) {
	current := start
	g := NewGuard()
	g.now = func() time.Time { return current }
	return g, &current
}

func TestAllowBlocksWithinInterval(t *testing.T) {
	g, now := newTestGuard(time.Unix(1000, 0))

	assert.True(t, g.Allow(42, ActionSync))
	assert.False(t, g.Allow(42, ActionSync), "повтор внутри интервала должен блокироваться")

	*now = now.Add(9 * time.Second)
	assert.False(t, g.Allow(42, ActionSync))

	*now = now.Add(2 * time.Second)
	assert.True(t, g.Allow(42, ActionSync), "после интервала действие снова доступно")
}

func TestAllowIndependentPerUserAndAction(t *testing.T) {
	g, _ := newTestGuard(time.Unix(1000, 0))

	assert.True(t, g.Allow(1, ActionSync))
	assert.True(t, g.Allow(2, ActionSync), "кулдаун первого пользователя не задевает второго")
	assert.True(t, g.Allow(1, ActionSearch), "другое действие того же пользователя не блокируется")
}

func TestAllowUnknownActionAlwaysPasses(t *testing.T) {
	g, _ := newTestGuard(time.Unix(1000, 0))
	assert.True(t, g.Allow(1, Action("unknown")))
	assert.True(t, g.Allow(1, Action("unknown")))
}

func TestCleanupDropsStaleEntries(t *testing.T) {
	g, now := newTestGuard(time.Unix(1000, 0))

	for i := int64(0); i < 99; i++ {
		g.Allow(i, ActionSearch)
	}
	*now = now.Add(time.Hour)
	g.Allow(500, ActionSearch)

	g.mu.Lock()
	defer g.mu.Unlock()
	assert.Len(t, g.last, 1, "старые записи должны быть вычищены")
}
