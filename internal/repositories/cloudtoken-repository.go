// Файл: internal/repositories/cloudtoken-repository.go
package repositories

import (
	"context"
	"errors"

	apperrors "resto-backoffice/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Токен облачного API обновляет внешний процесс, сервис только читает
// самую свежую строку перед каждым вызовом.
type CloudTokenRepositoryInterface interface {
	Latest(ctx context.Context) (string, error)
}

type cloudTokenRepository struct{ storage *pgxpool.Pool }

func NewCloudTokenRepository(storage *pgxpool.Pool) CloudTokenRepositoryInterface {
	return &cloudTokenRepository{storage: storage}
}

func (r *cloudTokenRepository) Latest(ctx context.Context) (string, error) {
	var token string
	err := r.storage.QueryRow(ctx, "SELECT token FROM iiko_access_tokens ORDER BY created_at DESC LIMIT 1").Scan(&token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperrors.ErrNotFound
		}
		return "", err
	}
	return token, nil
}
