// Файл: internal/entities/operational-entity.go
// Рабочие таблицы бота: черновики списаний, история, стоп-лист, минимумы.
package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// WriteoffItem — позиция документа списания.
type WriteoffItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Unit        string          `json:"unit"`
	Amount      decimal.Decimal `json:"amount"`
}

// PendingWriteoff — черновик, ожидающий решения администратора.
// Живёт в БД, чтобы переживать рестарты. Блокировка is_locked снимает гонку
// между администраторами: выигрывает тот, чей условный UPDATE прошёл первым.
type PendingWriteoff struct {
	DocID       string         `json:"doc_id"`
	DocumentID  string         `json:"document_id"`
	AuthorChat  int64          `json:"author_chat"`
	AuthorName  string         `json:"author_name"`
	StoreID     string         `json:"store_id"`
	StoreName   string         `json:"store_name"`
	AccountID   string         `json:"account_id"`
	AccountName string         `json:"account_name"`
	Reason      string         `json:"reason"`
	Department  string         `json:"department"`
	Items       []WriteoffItem `json:"items"`
	AdminMsgIDs map[int64]int  `json:"admin_msg_ids"`
	IsLocked    bool           `json:"is_locked"`
	CreatedAt   time.Time      `json:"created_at"`
}

type WriteoffHistory struct {
	ID          int64          `json:"id"`
	AuthorChat  int64          `json:"author_chat"`
	AuthorName  string         `json:"author_name"`
	StoreName   string         `json:"store_name"`
	AccountName string         `json:"account_name"`
	Reason      string         `json:"reason"`
	Items       []WriteoffItem `json:"items"`
	Status      string         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
}

type MinStockLevel struct {
	ProductID    string          `json:"product_id"`
	DepartmentID string          `json:"department_id"`
	MinLevel     decimal.Decimal `json:"min_level"`
	MaxLevel     decimal.Decimal `json:"max_level"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// StoplistItem — активная позиция стоп-листа терминальной группы.
type StoplistItem struct {
	ProductID       string          `json:"product_id"`
	TerminalGroupID string          `json:"terminal_group_id"`
	ProductName     string          `json:"product_name"`
	Balance         decimal.Decimal `json:"balance"`
	StartedAt       time.Time       `json:"started_at"`
}

type StoplistHistory struct {
	ID              int64      `json:"id"`
	ProductID       string     `json:"product_id"`
	TerminalGroupID string     `json:"terminal_group_id"`
	ProductName     string     `json:"product_name"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
}

// PinnedMessage — закреплённое сообщение с хешем последнего снимка.
// Kind различает стоп-лист и остатки ниже минимума.
type PinnedMessage struct {
	ChatID       int64     `json:"chat_id"`
	Kind         string    `json:"kind"`
	MessageID    int       `json:"message_id"`
	SnapshotHash string    `json:"snapshot_hash"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const (
	PinnedKindStoplist   = "stoplist"
	PinnedKindStockAlert = "stock_alert"
)

// Legacy-таблицы, используются при LEGACY_ADMIN_TABLES=true.
type BotAdmin struct {
	ChatID int64  `json:"chat_id"`
	Name   string `json:"name"`
}

type RequestReceiver struct {
	ChatID     int64  `json:"chat_id"`
	Name       string `json:"name"`
	Department string `json:"department"`
}

// InvoiceTemplate — сохранённый шаблон расходной накладной.
type InvoiceTemplate struct {
	ID         int64          `json:"id"`
	OwnerChat  int64          `json:"owner_chat"`
	Name       string         `json:"name"`
	StoreID    string         `json:"store_id"`
	SupplierID string         `json:"supplier_id"`
	Items      []WriteoffItem `json:"items"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ProductRequest — заявка зала на продукты, уходит получателям кухни или бара.
type ProductRequest struct {
	ID         int64          `json:"id"`
	AuthorChat int64          `json:"author_chat"`
	AuthorName string         `json:"author_name"`
	Department string         `json:"department"`
	Segment    string         `json:"segment"`
	Items      []WriteoffItem `json:"items"`
	Status     string         `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
}

const (
	RequestStatusNew      = "new"
	RequestStatusApproved = "approved"
	RequestStatusRejected = "rejected"
)
