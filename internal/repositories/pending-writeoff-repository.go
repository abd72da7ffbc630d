// Файл: internal/repositories/pending-writeoff-repository.go
package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"resto-backoffice/internal/entities"
	apperrors "resto-backoffice/pkg/errors"
	"resto-backoffice/pkg/localtime"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pendingTable = "pending_writeoff"
	pendingTTL   = 24 * time.Hour
)

type PendingWriteoffRepositoryInterface interface {
	Create(ctx context.Context, p *entities.PendingWriteoff) error
	Find(ctx context.Context, docID string) (*entities.PendingWriteoff, error)
	// TryLock — единственная критическая секция между администраторами.
	// Условный UPDATE выигрывает ровно у одного: остальным ErrPendingLocked.
	TryLock(ctx context.Context, docID string) (*entities.PendingWriteoff, error)
	Unlock(ctx context.Context, docID string) error
	UpdateItems(ctx context.Context, docID string, items []entities.WriteoffItem) error
	SetAdminMessages(ctx context.Context, docID string, msgIDs map[int64]int) error
	Delete(ctx context.Context, docID string) error
	// DeleteExpired подчищает черновики старше суток.
	DeleteExpired(ctx context.Context) (int64, error)
}

type pendingWriteoffRepository struct{ storage *pgxpool.Pool }

func NewPendingWriteoffRepository(storage *pgxpool.Pool) PendingWriteoffRepositoryInterface {
	return &pendingWriteoffRepository{storage: storage}
}

const pendingFields = `doc_id, document_id, author_chat, author_name, store_id, store_name,
	account_id, account_name, reason, department, items, admin_msg_ids, is_locked, created_at`

func (r *pendingWriteoffRepository) Create(ctx context.Context, p *entities.PendingWriteoff) error {
	items, err := json.Marshal(p.Items)
	if err != nil {
		return fmt.Errorf("ошибка сериализации позиций: %w", err)
	}
	msgIDs, err := json.Marshal(p.AdminMsgIDs)
	if err != nil {
		return fmt.Errorf("ошибка сериализации id сообщений: %w", err)
	}

	query := `INSERT INTO ` + pendingTable + ` (` + pendingFields + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, false, $13)`

	_, err = r.storage.Exec(ctx, query,
		p.DocID, p.DocumentID, p.AuthorChat, p.AuthorName, p.StoreID, p.StoreName,
		p.AccountID, p.AccountName, p.Reason, p.Department, items, msgIDs, localtime.Now())
	return err
}

func (r *pendingWriteoffRepository) Find(ctx context.Context, docID string) (*entities.PendingWriteoff, error) {
	query := "SELECT " + pendingFields + " FROM " + pendingTable + " WHERE doc_id = $1"
	return r.scanOne(r.storage.QueryRow(ctx, query, docID))
}

func (r *pendingWriteoffRepository) TryLock(ctx context.Context, docID string) (*entities.PendingWriteoff, error) {
	query := `UPDATE ` + pendingTable + ` SET is_locked = true
		WHERE doc_id = $1 AND is_locked = false
		RETURNING ` + pendingFields

	p, err := r.scanOne(r.storage.QueryRow(ctx, query, docID))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, apperrors.ErrPendingNotFound) {
		return nil, err
	}

	// UPDATE никого не зацепил: либо черновик занят, либо его уже нет.
	var exists bool
	if err := r.storage.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM "+pendingTable+" WHERE doc_id = $1)", docID).Scan(&exists); err != nil {
		return nil, err
	}
	if exists {
		return nil, apperrors.ErrPendingLocked
	}
	return nil, apperrors.ErrPendingNotFound
}

func (r *pendingWriteoffRepository) Unlock(ctx context.Context, docID string) error {
	tag, err := r.storage.Exec(ctx, "UPDATE "+pendingTable+" SET is_locked = false WHERE doc_id = $1", docID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrPendingNotFound
	}
	return nil
}

func (r *pendingWriteoffRepository) UpdateItems(ctx context.Context, docID string, items []entities.WriteoffItem) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("ошибка сериализации позиций: %w", err)
	}
	tag, err := r.storage.Exec(ctx, "UPDATE "+pendingTable+" SET items = $1 WHERE doc_id = $2", raw, docID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrPendingNotFound
	}
	return nil
}

func (r *pendingWriteoffRepository) SetAdminMessages(ctx context.Context, docID string, msgIDs map[int64]int) error {
	raw, err := json.Marshal(msgIDs)
	if err != nil {
		return fmt.Errorf("ошибка сериализации id сообщений: %w", err)
	}
	_, err = r.storage.Exec(ctx, "UPDATE "+pendingTable+" SET admin_msg_ids = $1 WHERE doc_id = $2", raw, docID)
	return err
}

func (r *pendingWriteoffRepository) Delete(ctx context.Context, docID string) error {
	_, err := r.storage.Exec(ctx, "DELETE FROM "+pendingTable+" WHERE doc_id = $1", docID)
	return err
}

func (r *pendingWriteoffRepository) DeleteExpired(ctx context.Context) (int64, error) {
	cutoff := localtime.Now().Add(-pendingTTL)
	tag, err := r.storage.Exec(ctx, "DELETE FROM "+pendingTable+" WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *pendingWriteoffRepository) scanOne(row pgx.Row) (*entities.PendingWriteoff, error) {
	var p entities.PendingWriteoff
	var items, msgIDs []byte
	err := row.Scan(&p.DocID, &p.DocumentID, &p.AuthorChat, &p.AuthorName, &p.StoreID, &p.StoreName,
		&p.AccountID, &p.AccountName, &p.Reason, &p.Department, &items, &msgIDs, &p.IsLocked, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrPendingNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(items, &p.Items); err != nil {
		return nil, fmt.Errorf("ошибка разбора позиций черновика %s: %w", p.DocID, err)
	}
	p.AdminMsgIDs = make(map[int64]int)
	if len(msgIDs) > 0 {
		if err := json.Unmarshal(msgIDs, &p.AdminMsgIDs); err != nil {
			return nil, fmt.Errorf("ошибка разбора id сообщений черновика %s: %w", p.DocID, err)
		}
	}
	return &p, nil
}
