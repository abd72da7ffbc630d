// Файл: internal/repositories/stock-repository.go
package repositories

import (
	"context"
	"fmt"

	"resto-backoffice/internal/entities"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const stockTable = "iiko_stock_balance"

// BelowMinItem — позиция ниже минимального остатка, агрегат по подразделению.
type BelowMinItem struct {
	ProductID      string
	ProductName    string
	DepartmentID   string
	DepartmentName string
	TotalAmount    decimal.Decimal
	MinLevel       decimal.Decimal
}

type StockRepositoryInterface interface {
	// ReplaceAll полностью заменяет снимок остатков. Вызывается только
	// внутри транзакции синхронизации: либо новый снимок целиком, либо старый.
	ReplaceAll(ctx context.Context, q Querier, balances []entities.StockBalance) (int, error)
	// BelowMin агрегирует остатки по подразделению и сравнивает с минимумами.
	BelowMin(ctx context.Context) ([]BelowMinItem, error)
	BelowMinForDepartment(ctx context.Context, departmentID string) ([]BelowMinItem, error)
	StoreBalances(ctx context.Context, storeID string) ([]entities.StockBalance, error)
}

type stockRepository struct{ storage *pgxpool.Pool }

func NewStockRepository(storage *pgxpool.Pool) StockRepositoryInterface {
	return &stockRepository{storage: storage}
}

var stockColumns = []string{"store_id", "product_id", "store_name", "product_name", "amount", "money", "synced_at"}

func (r *stockRepository) ReplaceAll(ctx context.Context, q Querier, balances []entities.StockBalance) (int, error) {
	if _, err := q.Exec(ctx, "DELETE FROM "+stockTable); err != nil {
		return 0, err
	}

	rows := make([][]interface{}, 0, len(balances))
	for _, b := range balances {
		rows = append(rows, []interface{}{b.StoreID, b.ProductID, b.StoreName, b.ProductName, b.Amount, b.Money, b.SyncedAt})
	}
	return BatchUpsert(ctx, q, stockTable, stockColumns, []string{"store_id", "product_id"}, rows)
}

const belowMinQuery = `
	SELECT m.product_id, COALESCE(p.name, sb.product_name), m.department_id, COALESCE(d.name, ''),
		COALESCE(SUM(sb.amount), 0) AS total, m.min_level
	FROM min_stock_level m
	JOIN iiko_department d ON d.id = m.department_id
	LEFT JOIN iiko_product p ON p.id = m.product_id
	LEFT JOIN iiko_store s ON s.parent_id = m.department_id
		OR s.parent_id IN (SELECT id FROM iiko_group WHERE parent_id = m.department_id)
	LEFT JOIN iiko_stock_balance sb ON sb.store_id = s.id AND sb.product_id = m.product_id
	%s
	GROUP BY m.product_id, p.name, sb.product_name, m.department_id, d.name, m.min_level
	HAVING COALESCE(SUM(sb.amount), 0) < m.min_level
	ORDER BY d.name, COALESCE(p.name, sb.product_name)`

func (r *stockRepository) BelowMin(ctx context.Context) ([]BelowMinItem, error) {
	return r.queryBelowMin(ctx, "", nil)
}

func (r *stockRepository) BelowMinForDepartment(ctx context.Context, departmentID string) ([]BelowMinItem, error) {
	return r.queryBelowMin(ctx, "WHERE m.department_id = $1", []interface{}{departmentID})
}

func (r *stockRepository) queryBelowMin(ctx context.Context, where string, args []interface{}) ([]BelowMinItem, error) {
	query := fmt.Sprintf(belowMinQuery, where)
	rows, err := r.storage.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BelowMinItem
	for rows.Next() {
		var it BelowMinItem
		if err := rows.Scan(&it.ProductID, &it.ProductName, &it.DepartmentID, &it.DepartmentName, &it.TotalAmount, &it.MinLevel); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *stockRepository) StoreBalances(ctx context.Context, storeID string) ([]entities.StockBalance, error) {
	query := "SELECT store_id, product_id, store_name, product_name, amount, money, synced_at FROM " + stockTable +
		" WHERE store_id = $1 ORDER BY product_name"

	rows, err := r.storage.Query(ctx, query, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entities.StockBalance
	for rows.Next() {
		var b entities.StockBalance
		if err := rows.Scan(&b.StoreID, &b.ProductID, &b.StoreName, &b.ProductName, &b.Amount, &b.Money, &b.SyncedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
