// Файл: internal/repositories/dictionary-repository.go
// Чтение зеркальных справочников для сценариев бота. Пишет в эти таблицы
// только движок синхронизации.
package repositories

import (
	"context"
	"errors"

	"resto-backoffice/internal/entities"
	apperrors "resto-backoffice/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DictionaryRepositoryInterface interface {
	ListStores(ctx context.Context) ([]entities.Store, error)
	ListStoresByDepartment(ctx context.Context, departmentID string) ([]entities.Store, error)
	// ListWriteoffAccounts — счета root_type=Account, в имени которых есть "списание".
	ListWriteoffAccounts(ctx context.Context) ([]entities.PosEntity, error)
	SearchProducts(ctx context.Context, needle string, groupIDs []string, limit int) ([]entities.Product, error)
	FindProduct(ctx context.Context, id string) (*entities.Product, error)
	ListProductGroups(ctx context.Context) ([]entities.ProductGroup, error)
	ListDepartments(ctx context.Context) ([]entities.Department, error)
	SearchSuppliers(ctx context.Context, needle string, limit int) ([]entities.Supplier, error)
	UnitNames(ctx context.Context) (map[string]string, error)
	// StoreNames и ProductNames — карты id -> имя для денормализации
	// снимка остатков.
	StoreNames(ctx context.Context) (map[string]string, error)
	ProductNames(ctx context.Context) (map[string]string, error)
}

type dictionaryRepository struct{ storage *pgxpool.Pool }

func NewDictionaryRepository(storage *pgxpool.Pool) DictionaryRepositoryInterface {
	return &dictionaryRepository{storage: storage}
}

const storeFields = "id, parent_id, name, code, type"

func (r *dictionaryRepository) ListStores(ctx context.Context) ([]entities.Store, error) {
	rows, err := r.storage.Query(ctx, "SELECT "+storeFields+" FROM iiko_store ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStores(rows)
}

func (r *dictionaryRepository) ListStoresByDepartment(ctx context.Context, departmentID string) ([]entities.Store, error) {
	// Склад висит либо прямо на подразделении, либо на его группе.
	query := `SELECT ` + storeFields + ` FROM iiko_store
		WHERE parent_id = $1
		   OR parent_id IN (SELECT id FROM iiko_group WHERE parent_id = $1)
		ORDER BY name`

	rows, err := r.storage.Query(ctx, query, departmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStores(rows)
}

func scanStores(rows pgx.Rows) ([]entities.Store, error) {
	var out []entities.Store
	for rows.Next() {
		var s entities.Store
		if err := rows.Scan(&s.ID, &s.ParentID, &s.Name, &s.Code, &s.Type); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *dictionaryRepository) ListWriteoffAccounts(ctx context.Context) ([]entities.PosEntity, error) {
	query := `SELECT id, root_type, name, code, deleted FROM iiko_entity
		WHERE root_type = 'Account' AND deleted = false AND lower(name) LIKE '%списание%'
		ORDER BY name`

	rows, err := r.storage.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entities.PosEntity
	for rows.Next() {
		var e entities.PosEntity
		if err := rows.Scan(&e.ID, &e.RootType, &e.Name, &e.Code, &e.Deleted); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const productFields = "id, parent_id, name, num, product_type, main_unit, default_sale_price, deleted"

func (r *dictionaryRepository) SearchProducts(ctx context.Context, needle string, groupIDs []string, limit int) ([]entities.Product, error) {
	if limit <= 0 {
		limit = 50
	}

	query := "SELECT " + productFields + " FROM iiko_product WHERE deleted = false AND lower(name) LIKE '%' || lower($1) || '%'"
	args := []interface{}{needle}
	if len(groupIDs) > 0 {
		query += " AND parent_id = ANY($2) ORDER BY name LIMIT $3"
		args = append(args, groupIDs, limit)
	} else {
		query += " ORDER BY name LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.storage.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProducts(rows)
}

func (r *dictionaryRepository) FindProduct(ctx context.Context, id string) (*entities.Product, error) {
	var p entities.Product
	err := r.storage.QueryRow(ctx, "SELECT "+productFields+" FROM iiko_product WHERE id = $1", id).
		Scan(&p.ID, &p.ParentID, &p.Name, &p.Num, &p.ProductType, &p.MainUnit, &p.Price, &p.Deleted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanProducts(rows pgx.Rows) ([]entities.Product, error) {
	var out []entities.Product
	for rows.Next() {
		var p entities.Product
		if err := rows.Scan(&p.ID, &p.ParentID, &p.Name, &p.Num, &p.ProductType, &p.MainUnit, &p.Price, &p.Deleted); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *dictionaryRepository) ListProductGroups(ctx context.Context) ([]entities.ProductGroup, error) {
	rows, err := r.storage.Query(ctx, "SELECT id, parent_id, name, deleted FROM iiko_product_group WHERE deleted = false")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entities.ProductGroup
	for rows.Next() {
		var g entities.ProductGroup
		if err := rows.Scan(&g.ID, &g.ParentID, &g.Name, &g.Deleted); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *dictionaryRepository) ListDepartments(ctx context.Context) ([]entities.Department, error) {
	rows, err := r.storage.Query(ctx, "SELECT id, parent_id, name, type FROM iiko_department WHERE type = 'DEPARTMENT' ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entities.Department
	for rows.Next() {
		var d entities.Department
		if err := rows.Scan(&d.ID, &d.ParentID, &d.Name, &d.Type); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *dictionaryRepository) SearchSuppliers(ctx context.Context, needle string, limit int) ([]entities.Supplier, error) {
	if limit <= 0 {
		limit = 30
	}
	query := `SELECT id, name, code, deleted, is_supplier, is_employee FROM iiko_supplier
		WHERE deleted = false AND is_supplier = true AND lower(name) LIKE '%' || lower($1) || '%'
		ORDER BY name LIMIT $2`

	rows, err := r.storage.Query(ctx, query, needle, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entities.Supplier
	for rows.Next() {
		var s entities.Supplier
		if err := rows.Scan(&s.ID, &s.Name, &s.Code, &s.Deleted, &s.IsSupplier, &s.IsEmployee); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *dictionaryRepository) UnitNames(ctx context.Context) (map[string]string, error) {
	rows, err := r.storage.Query(ctx, "SELECT id, name FROM iiko_entity WHERE root_type = 'MeasureUnit'")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	units := make(map[string]string)
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		units[id] = name
	}
	return units, rows.Err()
}

func (r *dictionaryRepository) StoreNames(ctx context.Context) (map[string]string, error) {
	return r.nameMap(ctx, "SELECT id, name FROM iiko_store WHERE deleted = false")
}

func (r *dictionaryRepository) ProductNames(ctx context.Context) (map[string]string, error) {
	return r.nameMap(ctx, "SELECT id, name FROM iiko_product WHERE deleted = false")
}

func (r *dictionaryRepository) nameMap(ctx context.Context, query string) (map[string]string, error) {
	rows, err := r.storage.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := make(map[string]string)
	for rows.Next() {
		var id string
		var name *string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		if name != nil {
			names[id] = *name
		}
	}
	return names, rows.Err()
}
