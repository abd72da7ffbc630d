// Файл: internal/repositories/stoplist-repository.go
package repositories

import (
	"context"
	"time"

	"resto-backoffice/internal/entities"
	"resto-backoffice/pkg/localtime"

	"github.com/jackc/pgx/v5/pgxpool"
)

type StoplistRepositoryInterface interface {
	ListActive(ctx context.Context) ([]entities.StoplistItem, error)
	// ApplyDiff в одной транзакции: добавленные позиции попадают в актив
	// и открывают интервал истории, ушедшие закрывают интервал и удаляются.
	ApplyDiff(ctx context.Context, q Querier, added, removed []entities.StoplistItem) error
	// HistorySince — интервалы за отчётный период для вечерней сводки.
	HistorySince(ctx context.Context, since time.Time) ([]entities.StoplistHistory, error)
}

type stoplistRepository struct{ storage *pgxpool.Pool }

func NewStoplistRepository(storage *pgxpool.Pool) StoplistRepositoryInterface {
	return &stoplistRepository{storage: storage}
}

func (r *stoplistRepository) ListActive(ctx context.Context) ([]entities.StoplistItem, error) {
	query := `SELECT product_id, terminal_group_id, product_name, balance, started_at
		FROM active_stoplist ORDER BY product_name`

	rows, err := r.storage.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entities.StoplistItem
	for rows.Next() {
		var it entities.StoplistItem
		if err := rows.Scan(&it.ProductID, &it.TerminalGroupID, &it.ProductName, &it.Balance, &it.StartedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *stoplistRepository) ApplyDiff(ctx context.Context, q Querier, added, removed []entities.StoplistItem) error {
	now := localtime.Now()

	for _, it := range added {
		_, err := q.Exec(ctx, `INSERT INTO active_stoplist (product_id, terminal_group_id, product_name, balance, started_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (product_id, terminal_group_id) DO UPDATE SET balance = EXCLUDED.balance, product_name = EXCLUDED.product_name`,
			it.ProductID, it.TerminalGroupID, it.ProductName, it.Balance, now)
		if err != nil {
			return err
		}
		_, err = q.Exec(ctx, `INSERT INTO stoplist_history (product_id, terminal_group_id, product_name, started_at)
			VALUES ($1, $2, $3, $4)`,
			it.ProductID, it.TerminalGroupID, it.ProductName, now)
		if err != nil {
			return err
		}
	}

	for _, it := range removed {
		_, err := q.Exec(ctx, `UPDATE stoplist_history SET ended_at = $1
			WHERE product_id = $2 AND terminal_group_id = $3 AND ended_at IS NULL`,
			now, it.ProductID, it.TerminalGroupID)
		if err != nil {
			return err
		}
		_, err = q.Exec(ctx, `DELETE FROM active_stoplist WHERE product_id = $1 AND terminal_group_id = $2`,
			it.ProductID, it.TerminalGroupID)
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *stoplistRepository) HistorySince(ctx context.Context, since time.Time) ([]entities.StoplistHistory, error) {
	query := `SELECT id, product_id, terminal_group_id, product_name, started_at, ended_at
		FROM stoplist_history
		WHERE started_at >= $1 OR ended_at >= $1 OR ended_at IS NULL
		ORDER BY started_at`

	rows, err := r.storage.Query(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entities.StoplistHistory
	for rows.Next() {
		var h entities.StoplistHistory
		if err := rows.Scan(&h.ID, &h.ProductID, &h.TerminalGroupID, &h.ProductName, &h.StartedAt, &h.EndedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// --- ЗАКРЕПЛЁННЫЕ СООБЩЕНИЯ ---

type PinnedMessageRepositoryInterface interface {
	Find(ctx context.Context, chatID int64, kind string) (*entities.PinnedMessage, error)
	Upsert(ctx context.Context, m *entities.PinnedMessage) error
	Delete(ctx context.Context, chatID int64, kind string) error
}

type pinnedMessageRepository struct{ storage *pgxpool.Pool }

func NewPinnedMessageRepository(storage *pgxpool.Pool) PinnedMessageRepositoryInterface {
	return &pinnedMessageRepository{storage: storage}
}

func (r *pinnedMessageRepository) Find(ctx context.Context, chatID int64, kind string) (*entities.PinnedMessage, error) {
	query := `SELECT chat_id, kind, message_id, snapshot_hash, updated_at FROM pinned_message
		WHERE chat_id = $1 AND kind = $2`

	var m entities.PinnedMessage
	err := r.storage.QueryRow(ctx, query, chatID, kind).Scan(&m.ChatID, &m.Kind, &m.MessageID, &m.SnapshotHash, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *pinnedMessageRepository) Upsert(ctx context.Context, m *entities.PinnedMessage) error {
	query := `INSERT INTO pinned_message (chat_id, kind, message_id, snapshot_hash, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (chat_id, kind) DO UPDATE SET message_id = EXCLUDED.message_id,
			snapshot_hash = EXCLUDED.snapshot_hash, updated_at = EXCLUDED.updated_at`
	_, err := r.storage.Exec(ctx, query, m.ChatID, m.Kind, m.MessageID, m.SnapshotHash, localtime.Now())
	return err
}

func (r *pinnedMessageRepository) Delete(ctx context.Context, chatID int64, kind string) error {
	_, err := r.storage.Exec(ctx, "DELETE FROM pinned_message WHERE chat_id = $1 AND kind = $2", chatID, kind)
	return err
}
