// Файл: internal/repositories/writeoff-history-repository.go
package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"resto-backoffice/internal/entities"
	"resto-backoffice/pkg/localtime"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	historyTable = "writeoff_history"
	// На пользователя храним не больше 200 записей, старые вытесняются.
	historyPerUserCap = 200
)

type WriteoffHistoryRepositoryInterface interface {
	Append(ctx context.Context, h *entities.WriteoffHistory) error
	ListByAuthor(ctx context.Context, authorChat int64, limit int) ([]entities.WriteoffHistory, error)
}

type writeoffHistoryRepository struct{ storage *pgxpool.Pool }

func NewWriteoffHistoryRepository(storage *pgxpool.Pool) WriteoffHistoryRepositoryInterface {
	return &writeoffHistoryRepository{storage: storage}
}

func (r *writeoffHistoryRepository) Append(ctx context.Context, h *entities.WriteoffHistory) error {
	items, err := json.Marshal(h.Items)
	if err != nil {
		return fmt.Errorf("ошибка сериализации позиций истории: %w", err)
	}

	query := `INSERT INTO ` + historyTable + `
		(author_chat, author_name, store_name, account_name, reason, items, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = r.storage.Exec(ctx, query,
		h.AuthorChat, h.AuthorName, h.StoreName, h.AccountName, h.Reason, items, h.Status, localtime.Now())
	if err != nil {
		return err
	}

	// Вытесняем хвост за пределами лимита.
	prune := `DELETE FROM ` + historyTable + ` WHERE author_chat = $1 AND id NOT IN (
		SELECT id FROM ` + historyTable + ` WHERE author_chat = $1 ORDER BY created_at DESC, id DESC LIMIT $2)`
	_, err = r.storage.Exec(ctx, prune, h.AuthorChat, historyPerUserCap)
	return err
}

func (r *writeoffHistoryRepository) ListByAuthor(ctx context.Context, authorChat int64, limit int) ([]entities.WriteoffHistory, error) {
	if limit <= 0 || limit > historyPerUserCap {
		limit = 10
	}
	query := `SELECT id, author_chat, author_name, store_name, account_name, reason, items, status, created_at
		FROM ` + historyTable + ` WHERE author_chat = $1 ORDER BY created_at DESC, id DESC LIMIT $2`

	rows, err := r.storage.Query(ctx, query, authorChat, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entities.WriteoffHistory
	for rows.Next() {
		var h entities.WriteoffHistory
		var items []byte
		if err := rows.Scan(&h.ID, &h.AuthorChat, &h.AuthorName, &h.StoreName, &h.AccountName, &h.Reason, &items, &h.Status, &h.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(items, &h.Items); err != nil {
			return nil, fmt.Errorf("ошибка разбора позиций истории: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
