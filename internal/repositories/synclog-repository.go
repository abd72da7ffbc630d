// Файл: internal/repositories/synclog-repository.go
package repositories

import (
	"context"
	"errors"
	"time"

	"resto-backoffice/internal/entities"
	apperrors "resto-backoffice/pkg/errors"
	"resto-backoffice/pkg/localtime"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	syncLogTable  = "iiko_sync_log"
	syncLogFields = "id, entity_type, started_at, finished_at, status, records_synced, error_message, triggered_by"
)

type SyncLogRepositoryInterface interface {
	// Start создаёт строку со статусом running в собственной короткой
	// транзакции. Строка running без finished_at после рестарта означает
	// падение процесса посреди синхронизации.
	Start(ctx context.Context, entityType, triggeredBy string) (int64, error)
	// MarkSuccess закрывает строку внутри транзакции синхронизации.
	MarkSuccess(ctx context.Context, q Querier, id int64, records int) error
	// MarkError пишет ошибку отдельной короткой транзакцией после отката основной.
	MarkError(ctx context.Context, id int64, errMsg string) error
	LastSuccess(ctx context.Context, entityType string) (*entities.SyncLog, error)
	RecentRuns(ctx context.Context, limit int) ([]entities.SyncLog, error)
}

type syncLogRepository struct{ storage *pgxpool.Pool }

func NewSyncLogRepository(storage *pgxpool.Pool) SyncLogRepositoryInterface {
	return &syncLogRepository{storage: storage}
}

func (r *syncLogRepository) Start(ctx context.Context, entityType, triggeredBy string) (int64, error) {
	query := "INSERT INTO " + syncLogTable + " (entity_type, started_at, status, records_synced, triggered_by) VALUES ($1, $2, $3, 0, $4) RETURNING id"

	var id int64
	err := r.storage.QueryRow(ctx, query, entityType, localtime.Now(), entities.SyncStatusRunning, triggeredBy).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *syncLogRepository) MarkSuccess(ctx context.Context, q Querier, id int64, records int) error {
	query := "UPDATE " + syncLogTable + " SET status = $1, finished_at = $2, records_synced = $3 WHERE id = $4"
	_, err := q.Exec(ctx, query, entities.SyncStatusSuccess, localtime.Now(), records, id)
	return err
}

func (r *syncLogRepository) MarkError(ctx context.Context, id int64, errMsg string) error {
	if len(errMsg) > 2000 {
		errMsg = errMsg[:2000]
	}
	query := "UPDATE " + syncLogTable + " SET status = $1, finished_at = $2, error_message = $3 WHERE id = $4"
	_, err := r.storage.Exec(ctx, query, entities.SyncStatusError, localtime.Now(), errMsg, id)
	return err
}

func (r *syncLogRepository) LastSuccess(ctx context.Context, entityType string) (*entities.SyncLog, error) {
	query := "SELECT " + syncLogFields + " FROM " + syncLogTable +
		" WHERE entity_type = $1 AND status = $2 ORDER BY finished_at DESC LIMIT 1"

	row := r.storage.QueryRow(ctx, query, entityType, entities.SyncStatusSuccess)
	logRow, err := scanSyncLog(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return logRow, nil
}

func (r *syncLogRepository) RecentRuns(ctx context.Context, limit int) ([]entities.SyncLog, error) {
	if limit <= 0 {
		limit = 20
	}
	query := "SELECT " + syncLogFields + " FROM " + syncLogTable + " ORDER BY started_at DESC LIMIT $1"

	rows, err := r.storage.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entities.SyncLog
	for rows.Next() {
		logRow, err := scanSyncLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *logRow)
	}
	return out, rows.Err()
}

func scanSyncLog(row pgx.Row) (*entities.SyncLog, error) {
	var l entities.SyncLog
	var finishedAt *time.Time
	var errMsg *string
	if err := row.Scan(&l.ID, &l.EntityType, &l.StartedAt, &finishedAt, &l.Status, &l.RecordsSynced, &errMsg, &l.TriggeredBy); err != nil {
		return nil, err
	}
	l.FinishedAt = finishedAt
	l.ErrorMessage = errMsg
	return &l, nil
}
