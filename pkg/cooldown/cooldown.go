// Файл: pkg/cooldown/cooldown.go
// Защита от дребезга кнопок: повторное действие раньше своего интервала
// молча игнорируется. Память процесса, переживать рестарт не обязана.
package cooldown

import (
	"sync"
	"time"
)

type Action string

const (
	ActionSync     Action = "sync"
	ActionFinalize Action = "finalize"
	ActionSearch   Action = "search"
	ActionNavigate Action = "navigate"
	ActionAdmin    Action = "admin"
)

var defaultIntervals = map[Action]time.Duration{
	ActionSync:     10 * time.Second,
	ActionFinalize: 5 * time.Second,
	ActionSearch:   1 * time.Second,
	ActionNavigate: 300 * time.Millisecond,
	ActionAdmin:    3 * time.Second,
}

type key struct {
	chatID int64
	action Action
}

type Guard struct {
	mu        sync.Mutex
	last      map[key]time.Time
	intervals map[Action]time.Duration
	calls     int
	now       func() time.Time
}

func NewGuard() *Guard {
	return &Guard{
		last:      make(map[key]time.Time),
		intervals: defaultIntervals,
		now:       time.Now,
	}
}

// Allow отмечает действие и сообщает, можно ли его выполнять.
// false означает, что интервал ещё не истёк.
func (g *Guard) Allow(chatID int64, action Action) bool {
	interval, ok := g.intervals[action]
	if !ok {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	k := key{chatID: chatID, action: action}

	if prev, seen := g.last[k]; seen && now.Sub(prev) < interval {
		return false
	}
	g.last[k] = now

	// Подчищаем устаревшие записи раз в сотню вызовов, чтобы карта не росла вечно.
	g.calls++
	if g.calls >= 100 {
		g.calls = 0
		g.cleanupLocked(now)
	}
	return true
}

func (g *Guard) cleanupLocked(now time.Time) {
	for k, ts := range g.last {
		interval := g.intervals[k.action]
		if now.Sub(ts) > 10*interval {
			delete(g.last, k)
		}
	}
}
