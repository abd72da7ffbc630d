// Файл: internal/entities/fintablo-entity.go
// Зеркало финансового сервиса. Все справочники устроены одинаково:
// целочисленный id и плоский набор полей, поэтому храним общий тип,
// а различия живут в колонках конкретной таблицы через raw_json.
package entities

import "time"

// Справочники финансового API в порядке синхронизации.
var FinanceResources = []string{
	"category",
	"moneybag",
	"partner",
	"direction",
	"moneybag_group",
	"goods",
	"obtaining",
	"job",
	"deal",
	"obligation_status",
	"obligation",
	"pnl_category",
	"employee",
}

type FinanceRecord struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name"`
	RawJSON  []byte    `json:"raw_json"`
	SyncedAt time.Time `json:"synced_at"`
}
