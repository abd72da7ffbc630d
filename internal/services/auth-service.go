// Файл: internal/services/auth-service.go
// Авторизация в боте: сотрудник называет фамилию, выбирает себя из
// найденных, затем свой ресторан. Привязка telegram_id атомарна:
// прежний владелец чата отвязывается в той же транзакции.
package services

import (
	"context"

	"resto-backoffice/internal/entities"
	"resto-backoffice/internal/repositories"
	apperrors "resto-backoffice/pkg/errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type AuthServiceInterface interface {
	// FindCandidates ищет сотрудников по фамилии. Пустой результат —
	// ErrEmployeeNotFound, дальше различает вызывающий код.
	FindCandidates(ctx context.Context, lastName string) ([]entities.Employee, error)
	// Bind привязывает чат к сотруднику.
	Bind(ctx context.Context, employeeID string, telegramID int64) (*entities.Employee, error)
	// SelectDepartment записывает ресторан сотрудника.
	SelectDepartment(ctx context.Context, telegramID int64, employeeID, departmentID string) error
	ListDepartments(ctx context.Context) ([]entities.Department, error)
}

type authService struct {
	employees   repositories.EmployeeRepositoryInterface
	dicts       repositories.DictionaryRepositoryInterface
	txm         repositories.TxManagerInterface
	userContext UserContextServiceInterface
	logger      *zap.Logger
}

func NewAuthService(employees repositories.EmployeeRepositoryInterface, dicts repositories.DictionaryRepositoryInterface, txm repositories.TxManagerInterface, userContext UserContextServiceInterface, logger *zap.Logger) AuthServiceInterface {
	return &authService{employees: employees, dicts: dicts, txm: txm, userContext: userContext, logger: logger}
}

func (s *authService) FindCandidates(ctx context.Context, lastName string) ([]entities.Employee, error) {
	found, err := s.employees.FindByLastName(ctx, lastName)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, apperrors.ErrEmployeeNotFound
	}
	return found, nil
}

func (s *authService) Bind(ctx context.Context, employeeID string, telegramID int64) (*entities.Employee, error) {
	emp, err := s.employees.FindByID(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if emp.Deleted {
		return nil, apperrors.ErrEmployeeNotFound
	}

	err = s.txm.RunInTransaction(ctx, func(tx pgx.Tx) error {
		return s.employees.BindTelegram(ctx, tx, employeeID, telegramID)
	})
	if err != nil {
		return nil, err
	}

	s.userContext.Invalidate(ctx, telegramID)
	s.logger.Info("🔑 Чат привязан к сотруднику",
		zap.Int64("chat", telegramID), zap.String("сотрудник", emp.Name))
	return emp, nil
}

func (s *authService) SelectDepartment(ctx context.Context, telegramID int64, employeeID, departmentID string) error {
	if err := s.employees.SetDepartment(ctx, employeeID, departmentID); err != nil {
		return err
	}
	s.userContext.Invalidate(ctx, telegramID)
	return nil
}

func (s *authService) ListDepartments(ctx context.Context) ([]entities.Department, error) {
	return s.dicts.ListDepartments(ctx)
}
