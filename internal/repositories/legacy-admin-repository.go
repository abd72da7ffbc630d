// Файл: internal/repositories/legacy-admin-repository.go
// Старые таблицы администраторов и получателей заявок. Остаются рабочими
// за флагом LEGACY_ADMIN_TABLES, пока все инсталляции не переедут на матрицу
// прав в книге.
package repositories

import (
	"context"

	"resto-backoffice/internal/entities"

	"github.com/jackc/pgx/v5/pgxpool"
)

type LegacyAdminRepositoryInterface interface {
	ListAdmins(ctx context.Context) ([]entities.BotAdmin, error)
	ListReceivers(ctx context.Context, department string) ([]entities.RequestReceiver, error)
}

type legacyAdminRepository struct{ storage *pgxpool.Pool }

func NewLegacyAdminRepository(storage *pgxpool.Pool) LegacyAdminRepositoryInterface {
	return &legacyAdminRepository{storage: storage}
}

func (r *legacyAdminRepository) ListAdmins(ctx context.Context) ([]entities.BotAdmin, error) {
	rows, err := r.storage.Query(ctx, "SELECT chat_id, name FROM bot_admin ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entities.BotAdmin
	for rows.Next() {
		var a entities.BotAdmin
		if err := rows.Scan(&a.ChatID, &a.Name); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *legacyAdminRepository) ListReceivers(ctx context.Context, department string) ([]entities.RequestReceiver, error) {
	query := "SELECT chat_id, name, department FROM request_receiver"
	args := []interface{}{}
	if department != "" {
		query += " WHERE department = $1"
		args = append(args, department)
	}

	rows, err := r.storage.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entities.RequestReceiver
	for rows.Next() {
		var rr entities.RequestReceiver
		if err := rows.Scan(&rr.ChatID, &rr.Name, &rr.Department); err != nil {
			return nil, err
		}
		out = append(out, rr)
	}
	return out, rows.Err()
}
