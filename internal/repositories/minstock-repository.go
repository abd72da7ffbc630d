// Файл: internal/repositories/minstock-repository.go
package repositories

import (
	"context"

	"resto-backoffice/internal/entities"
	"resto-backoffice/pkg/localtime"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const minStockTable = "min_stock_level"

type MinStockRepositoryInterface interface {
	// ReplaceAll — зеркало таблицы минимумов из книги. Полная замена в транзакции.
	ReplaceAll(ctx context.Context, q Querier, levels []entities.MinStockLevel) (int, error)
	List(ctx context.Context) ([]entities.MinStockLevel, error)
	ListForDepartment(ctx context.Context, departmentID string) ([]entities.MinStockLevel, error)
	Upsert(ctx context.Context, level *entities.MinStockLevel) error
	SetLevels(ctx context.Context, productID, departmentID string, min, max decimal.Decimal) error
}

type minStockRepository struct{ storage *pgxpool.Pool }

func NewMinStockRepository(storage *pgxpool.Pool) MinStockRepositoryInterface {
	return &minStockRepository{storage: storage}
}

var minStockColumns = []string{"product_id", "department_id", "min_level", "max_level", "updated_at"}

func (r *minStockRepository) ReplaceAll(ctx context.Context, q Querier, levels []entities.MinStockLevel) (int, error) {
	if _, err := q.Exec(ctx, "DELETE FROM "+minStockTable); err != nil {
		return 0, err
	}

	rows := make([][]interface{}, 0, len(levels))
	now := localtime.Now()
	for _, l := range levels {
		rows = append(rows, []interface{}{l.ProductID, l.DepartmentID, l.MinLevel, l.MaxLevel, now})
	}
	return BatchUpsert(ctx, q, minStockTable, minStockColumns, []string{"product_id", "department_id"}, rows)
}

func (r *minStockRepository) List(ctx context.Context) ([]entities.MinStockLevel, error) {
	return r.query(ctx, "SELECT product_id, department_id, min_level, max_level, updated_at FROM "+minStockTable)
}

func (r *minStockRepository) ListForDepartment(ctx context.Context, departmentID string) ([]entities.MinStockLevel, error) {
	return r.query(ctx, "SELECT product_id, department_id, min_level, max_level, updated_at FROM "+minStockTable+" WHERE department_id = $1", departmentID)
}

func (r *minStockRepository) query(ctx context.Context, query string, args ...interface{}) ([]entities.MinStockLevel, error) {
	rows, err := r.storage.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entities.MinStockLevel
	for rows.Next() {
		var l entities.MinStockLevel
		if err := rows.Scan(&l.ProductID, &l.DepartmentID, &l.MinLevel, &l.MaxLevel, &l.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *minStockRepository) Upsert(ctx context.Context, level *entities.MinStockLevel) error {
	return r.SetLevels(ctx, level.ProductID, level.DepartmentID, level.MinLevel, level.MaxLevel)
}

func (r *minStockRepository) SetLevels(ctx context.Context, productID, departmentID string, min, max decimal.Decimal) error {
	query := `INSERT INTO ` + minStockTable + ` (product_id, department_id, min_level, max_level, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (product_id, department_id) DO UPDATE SET
			min_level = EXCLUDED.min_level, max_level = EXCLUDED.max_level, updated_at = EXCLUDED.updated_at`
	_, err := r.storage.Exec(ctx, query, productID, departmentID, min, max, localtime.Now())
	return err
}
