// Файл: internal/services/minstock-service.go
// Просмотр и правка минимальных остатков из бота. Книга остаётся
// источником правды, поэтому каждая правка уезжает и в зеркало БД,
// и обратно на лист.
package services

import (
	"context"

	"resto-backoffice/internal/entities"
	"resto-backoffice/internal/repositories"
	"resto-backoffice/internal/sync"
	apperrors "resto-backoffice/pkg/errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type MinStockServiceInterface interface {
	Levels(ctx context.Context, departmentID string) ([]entities.MinStockLevel, error)
	// SetLevel правит минимум и максимум пары товар-подразделение и
	// переписывает лист минимумов.
	SetLevel(ctx context.Context, productID, departmentID string, min, max decimal.Decimal) error
	FindProduct(ctx context.Context, productID string) (*entities.Product, error)
	SearchProducts(ctx context.Context, needle string, limit int) ([]entities.Product, error)
}

type minStockService struct {
	minStocks repositories.MinStockRepositoryInterface
	dicts     repositories.DictionaryRepositoryInterface
	syncer    *sync.MinStockSyncer
	logger    *zap.Logger
}

func NewMinStockService(
	minStocks repositories.MinStockRepositoryInterface,
	dicts repositories.DictionaryRepositoryInterface,
	syncer *sync.MinStockSyncer,
	logger *zap.Logger,
) MinStockServiceInterface {
	return &minStockService{minStocks: minStocks, dicts: dicts, syncer: syncer, logger: logger}
}

func (s *minStockService) Levels(ctx context.Context, departmentID string) ([]entities.MinStockLevel, error) {
	if departmentID == "" {
		return s.minStocks.List(ctx)
	}
	return s.minStocks.ListForDepartment(ctx, departmentID)
}

func (s *minStockService) SetLevel(ctx context.Context, productID, departmentID string, min, max decimal.Decimal) error {
	if min.IsNegative() || max.IsNegative() {
		return apperrors.NewInvalidInputError("минимум и максимум не могут быть отрицательными")
	}
	if max.IsPositive() && max.LessThan(min) {
		return apperrors.NewInvalidInputError("максимум не может быть меньше минимума")
	}

	if err := s.minStocks.SetLevels(ctx, productID, departmentID, min, max); err != nil {
		return err
	}

	// Лист переписывается целиком с сохранением остальных значений.
	if _, err := s.syncer.ExportNomenclature(ctx); err != nil {
		s.logger.Warn("⚠️ Минимум сохранён в БД, но лист не обновлён", zap.Error(err))
	}

	s.logger.Info("📊 Минимальный остаток изменён",
		zap.String("товар", productID), zap.String("подразделение", departmentID),
		zap.String("мин", min.String()), zap.String("макс", max.String()))
	return nil
}

func (s *minStockService) FindProduct(ctx context.Context, productID string) (*entities.Product, error) {
	return s.dicts.FindProduct(ctx, productID)
}

func (s *minStockService) SearchProducts(ctx context.Context, needle string, limit int) ([]entities.Product, error) {
	return s.dicts.SearchProducts(ctx, needle, nil, limit)
}
