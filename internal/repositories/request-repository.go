// Файл: internal/repositories/request-repository.go
// Заявки зала на продукты и шаблоны расходных накладных.
package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"resto-backoffice/internal/entities"
	apperrors "resto-backoffice/pkg/errors"
	"resto-backoffice/pkg/localtime"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ProductRequestRepositoryInterface interface {
	Create(ctx context.Context, req *entities.ProductRequest) (int64, error)
	Find(ctx context.Context, id int64) (*entities.ProductRequest, error)
	SetStatus(ctx context.Context, id int64, status string) error
	UpdateItems(ctx context.Context, id int64, items []entities.WriteoffItem) error
	ListByAuthor(ctx context.Context, authorChat int64, limit int) ([]entities.ProductRequest, error)
}

type productRequestRepository struct{ storage *pgxpool.Pool }

func NewProductRequestRepository(storage *pgxpool.Pool) ProductRequestRepositoryInterface {
	return &productRequestRepository{storage: storage}
}

func (r *productRequestRepository) Create(ctx context.Context, req *entities.ProductRequest) (int64, error) {
	items, err := json.Marshal(req.Items)
	if err != nil {
		return 0, fmt.Errorf("ошибка сериализации позиций заявки: %w", err)
	}

	var id int64
	query := `INSERT INTO product_request (author_chat, author_name, department, segment, items, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	err = r.storage.QueryRow(ctx, query,
		req.AuthorChat, req.AuthorName, req.Department, req.Segment, items, entities.RequestStatusNew, localtime.Now()).Scan(&id)
	return id, err
}

func (r *productRequestRepository) Find(ctx context.Context, id int64) (*entities.ProductRequest, error) {
	query := `SELECT id, author_chat, author_name, department, segment, items, status, created_at
		FROM product_request WHERE id = $1`

	var req entities.ProductRequest
	var items []byte
	err := r.storage.QueryRow(ctx, query, id).Scan(
		&req.ID, &req.AuthorChat, &req.AuthorName, &req.Department, &req.Segment, &items, &req.Status, &req.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(items, &req.Items); err != nil {
		return nil, fmt.Errorf("ошибка разбора позиций заявки %d: %w", id, err)
	}
	return &req, nil
}

func (r *productRequestRepository) SetStatus(ctx context.Context, id int64, status string) error {
	tag, err := r.storage.Exec(ctx, "UPDATE product_request SET status = $1 WHERE id = $2", status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *productRequestRepository) UpdateItems(ctx context.Context, id int64, items []entities.WriteoffItem) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("ошибка сериализации позиций заявки: %w", err)
	}
	tag, err := r.storage.Exec(ctx, "UPDATE product_request SET items = $1 WHERE id = $2", raw, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *productRequestRepository) ListByAuthor(ctx context.Context, authorChat int64, limit int) ([]entities.ProductRequest, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT id, author_chat, author_name, department, segment, items, status, created_at
		FROM product_request WHERE author_chat = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := r.storage.Query(ctx, query, authorChat, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entities.ProductRequest
	for rows.Next() {
		var req entities.ProductRequest
		var items []byte
		if err := rows.Scan(&req.ID, &req.AuthorChat, &req.AuthorName, &req.Department, &req.Segment, &items, &req.Status, &req.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(items, &req.Items); err != nil {
			return nil, fmt.Errorf("ошибка разбора позиций заявки %d: %w", req.ID, err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// --- ШАБЛОНЫ НАКЛАДНЫХ ---

type InvoiceTemplateRepositoryInterface interface {
	Save(ctx context.Context, tpl *entities.InvoiceTemplate) (int64, error)
	ListByOwner(ctx context.Context, ownerChat int64) ([]entities.InvoiceTemplate, error)
	Find(ctx context.Context, id int64) (*entities.InvoiceTemplate, error)
	Delete(ctx context.Context, id int64, ownerChat int64) error
}

type invoiceTemplateRepository struct{ storage *pgxpool.Pool }

func NewInvoiceTemplateRepository(storage *pgxpool.Pool) InvoiceTemplateRepositoryInterface {
	return &invoiceTemplateRepository{storage: storage}
}

func (r *invoiceTemplateRepository) Save(ctx context.Context, tpl *entities.InvoiceTemplate) (int64, error) {
	items, err := json.Marshal(tpl.Items)
	if err != nil {
		return 0, fmt.Errorf("ошибка сериализации позиций шаблона: %w", err)
	}

	var id int64
	query := `INSERT INTO invoice_template (owner_chat, name, store_id, supplier_id, items, created_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	err = r.storage.QueryRow(ctx, query, tpl.OwnerChat, tpl.Name, tpl.StoreID, tpl.SupplierID, items, localtime.Now()).Scan(&id)
	return id, err
}

func (r *invoiceTemplateRepository) ListByOwner(ctx context.Context, ownerChat int64) ([]entities.InvoiceTemplate, error) {
	query := `SELECT id, owner_chat, name, store_id, supplier_id, items, created_at
		FROM invoice_template WHERE owner_chat = $1 ORDER BY created_at DESC`

	rows, err := r.storage.Query(ctx, query, ownerChat)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entities.InvoiceTemplate
	for rows.Next() {
		var tpl entities.InvoiceTemplate
		var items []byte
		if err := rows.Scan(&tpl.ID, &tpl.OwnerChat, &tpl.Name, &tpl.StoreID, &tpl.SupplierID, &items, &tpl.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(items, &tpl.Items); err != nil {
			return nil, fmt.Errorf("ошибка разбора позиций шаблона %d: %w", tpl.ID, err)
		}
		out = append(out, tpl)
	}
	return out, rows.Err()
}

func (r *invoiceTemplateRepository) Find(ctx context.Context, id int64) (*entities.InvoiceTemplate, error) {
	query := `SELECT id, owner_chat, name, store_id, supplier_id, items, created_at
		FROM invoice_template WHERE id = $1`

	var tpl entities.InvoiceTemplate
	var items []byte
	err := r.storage.QueryRow(ctx, query, id).Scan(&tpl.ID, &tpl.OwnerChat, &tpl.Name, &tpl.StoreID, &tpl.SupplierID, &items, &tpl.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(items, &tpl.Items); err != nil {
		return nil, fmt.Errorf("ошибка разбора позиций шаблона %d: %w", id, err)
	}
	return &tpl, nil
}

func (r *invoiceTemplateRepository) Delete(ctx context.Context, id int64, ownerChat int64) error {
	tag, err := r.storage.Exec(ctx, "DELETE FROM invoice_template WHERE id = $1 AND owner_chat = $2", id, ownerChat)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
