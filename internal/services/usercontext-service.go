// Файл: internal/services/usercontext-service.go
// Контекст пользователя: кто пишет боту, как его зовут, какой у него
// ресторан. Собирается одним join-запросом и кешируется, потому что
// нужен каждому обработчику на каждое сообщение.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"resto-backoffice/internal/entities"
	"resto-backoffice/internal/repositories"

	"go.uber.org/zap"
)

const userContextTTL = 30 * time.Minute

type UserContextServiceInterface interface {
	// Resolve возвращает контекст привязанного сотрудника.
	// Непривязанный чат получает apperrors.ErrEmployeeNotFound.
	Resolve(ctx context.Context, telegramID int64) (*entities.UserContext, error)
	// Invalidate сбрасывает кеш после привязки или смены ресторана.
	Invalidate(ctx context.Context, telegramID int64)
}

type userContextService struct {
	employees repositories.EmployeeRepositoryInterface
	cache     repositories.CacheRepositoryInterface
	logger    *zap.Logger
}

func NewUserContextService(employees repositories.EmployeeRepositoryInterface, cache repositories.CacheRepositoryInterface, logger *zap.Logger) UserContextServiceInterface {
	return &userContextService{employees: employees, cache: cache, logger: logger}
}

func contextKey(telegramID int64) string {
	return fmt.Sprintf("usercontext:%d", telegramID)
}

func (s *userContextService) Resolve(ctx context.Context, telegramID int64) (*entities.UserContext, error) {
	if raw, err := s.cache.Get(ctx, contextKey(telegramID)); err == nil && raw != "" {
		var uc entities.UserContext
		if json.Unmarshal([]byte(raw), &uc) == nil {
			return &uc, nil
		}
	}

	uc, err := s.employees.FindContext(ctx, telegramID)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(uc); err == nil {
		if err := s.cache.Set(ctx, contextKey(telegramID), string(raw), userContextTTL); err != nil {
			s.logger.Warn("⚠️ Не удалось закешировать контекст пользователя", zap.Error(err))
		}
	}
	return uc, nil
}

func (s *userContextService) Invalidate(ctx context.Context, telegramID int64) {
	if err := s.cache.Del(ctx, contextKey(telegramID)); err != nil {
		s.logger.Warn("⚠️ Не удалось сбросить кеш контекста", zap.Int64("chat", telegramID), zap.Error(err))
	}
}
