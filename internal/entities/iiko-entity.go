// Файл: internal/entities/iiko-entity.go
// Зеркальные сущности справочников POS-системы. Идентификаторы приходят
// строками-UUID и хранятся как есть, raw_json держит исходный ответ API.
package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// Корневые типы универсального справочника. Каждый тип синхронизируется
// отдельным срезом одной общей таблицы.
var EntityRootTypes = []string{
	"Account",
	"AccountingCategory",
	"AlcoholClass",
	"AllergenGroup",
	"AttendanceType",
	"Conception",
	"CookingPlaceType",
	"DiscountType",
	"MeasureUnit",
	"OrderType",
	"PaymentType",
	"ProductCategory",
	"ProductScale",
	"ProductSize",
	"ScheduleType",
	"TaxCategory",
}

type PosEntity struct {
	ID       string    `json:"id"`
	RootType string    `json:"root_type"`
	Name     string    `json:"name"`
	Code     *string   `json:"code,omitempty"`
	Deleted  bool      `json:"deleted"`
	RawJSON  []byte    `json:"raw_json"`
	SyncedAt time.Time `json:"synced_at"`
}

type Supplier struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Code     *string   `json:"code,omitempty"`
	Deleted  bool      `json:"deleted"`
	IsSupplier bool    `json:"is_supplier"`
	IsEmployee bool    `json:"is_employee"`
	RawJSON  []byte    `json:"raw_json"`
	SyncedAt time.Time `json:"synced_at"`
}

type Department struct {
	ID       string    `json:"id"`
	ParentID *string   `json:"parent_id,omitempty"`
	Name     string    `json:"name"`
	Type     string    `json:"type"`
	RawJSON  []byte    `json:"raw_json"`
	SyncedAt time.Time `json:"synced_at"`
}

type Store struct {
	ID       string    `json:"id"`
	ParentID *string   `json:"parent_id,omitempty"`
	Name     string    `json:"name"`
	Code     *string   `json:"code,omitempty"`
	Type     string    `json:"type"`
	RawJSON  []byte    `json:"raw_json"`
	SyncedAt time.Time `json:"synced_at"`
}

type Group struct {
	ID           string    `json:"id"`
	DepartmentID *string   `json:"department_id,omitempty"`
	Name         string    `json:"name"`
	RawJSON      []byte    `json:"raw_json"`
	SyncedAt     time.Time `json:"synced_at"`
}

type ProductGroup struct {
	ID       string    `json:"id"`
	ParentID *string   `json:"parent_id,omitempty"`
	Name     string    `json:"name"`
	Deleted  bool      `json:"deleted"`
	RawJSON  []byte    `json:"raw_json"`
	SyncedAt time.Time `json:"synced_at"`
}

type Product struct {
	ID          string           `json:"id"`
	ParentID    *string          `json:"parent_id,omitempty"`
	Name        string           `json:"name"`
	Num         *string          `json:"num,omitempty"`
	ProductType string           `json:"product_type"`
	MainUnit    *string          `json:"main_unit,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Deleted     bool             `json:"deleted"`
	RawJSON     []byte           `json:"raw_json"`
	SyncedAt    time.Time        `json:"synced_at"`
}

type Employee struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	FirstName    *string   `json:"first_name,omitempty"`
	LastName     *string   `json:"last_name,omitempty"`
	RoleID       *string   `json:"role_id,omitempty"`
	RoleName     *string   `json:"role_name,omitempty"`
	Deleted      bool      `json:"deleted"`
	TelegramID   *int64    `json:"telegram_id,omitempty"`
	DepartmentID *string   `json:"department_id,omitempty"`
	RawJSON      []byte    `json:"raw_json"`
	SyncedAt     time.Time `json:"synced_at"`
}

type EmployeeRole struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Code     *string   `json:"code,omitempty"`
	Deleted  bool      `json:"deleted"`
	RawJSON  []byte    `json:"raw_json"`
	SyncedAt time.Time `json:"synced_at"`
}

type StockBalance struct {
	StoreID     string          `json:"store_id"`
	ProductID   string          `json:"product_id"`
	StoreName   string          `json:"store_name"`
	ProductName string          `json:"product_name"`
	Amount      decimal.Decimal `json:"amount"`
	Money       decimal.Decimal `json:"money"`
	SyncedAt    time.Time       `json:"synced_at"`
}

// Статусы записей журнала синхронизации.
const (
	SyncStatusRunning = "running"
	SyncStatusSuccess = "success"
	SyncStatusError   = "error"
)

type SyncLog struct {
	ID            int64      `json:"id"`
	EntityType    string     `json:"entity_type"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	Status        string     `json:"status"`
	RecordsSynced int        `json:"records_synced"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
	TriggeredBy   string     `json:"triggered_by"`
}

// CloudToken пишется внешним процессом, сервис только читает самую свежую строку.
type CloudToken struct {
	ID        int64     `json:"id"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
}
