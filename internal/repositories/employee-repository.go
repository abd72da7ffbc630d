// Файл: internal/repositories/employee-repository.go
package repositories

import (
	"context"
	"errors"
	"strings"

	"resto-backoffice/internal/entities"
	apperrors "resto-backoffice/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const employeeTable = "iiko_employee"

type EmployeeRepositoryInterface interface {
	// FindByLastName ищет не удалённых сотрудников по фамилии без учёта регистра.
	FindByLastName(ctx context.Context, lastName string) ([]entities.Employee, error)
	FindByID(ctx context.Context, id string) (*entities.Employee, error)
	// BindTelegram привязывает чат к сотруднику. Прежний владелец этого
	// telegram_id отвязывается в той же транзакции.
	BindTelegram(ctx context.Context, q Querier, employeeID string, telegramID int64) error
	SetDepartment(ctx context.Context, employeeID string, departmentID string) error
	// FindContext собирает контекст пользователя одним join-запросом.
	FindContext(ctx context.Context, telegramID int64) (*entities.UserContext, error)
	// ListBoundChats возвращает чаты всех авторизованных пользователей.
	ListBoundChats(ctx context.Context) ([]int64, error)
	// ListBound — сотрудники с привязанным чатом, для выгрузки матрицы прав.
	ListBound(ctx context.Context) ([]entities.Employee, error)
}

type employeeRepository struct{ storage *pgxpool.Pool }

func NewEmployeeRepository(storage *pgxpool.Pool) EmployeeRepositoryInterface {
	return &employeeRepository{storage: storage}
}

func (r *employeeRepository) FindByLastName(ctx context.Context, lastName string) ([]entities.Employee, error) {
	needle := strings.TrimSpace(lastName)
	if needle == "" {
		return nil, apperrors.NewInvalidInputError("фамилия не может быть пустой")
	}

	query := employeeSelect + `
		WHERE e.deleted = false AND (lower(e.last_name) = lower($1) OR lower(e.name) LIKE '%' || lower($1) || '%')
		ORDER BY e.name`

	rows, err := r.storage.Query(ctx, query, needle)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEmployees(rows)
}

// Имя роли живёт в зеркале ролей, сотрудник хранит только её id.
const employeeSelect = `SELECT e.id, e.name, e.first_name, e.last_name, e.role_id, r.name,
		e.deleted, e.telegram_id, e.department_id
	FROM ` + employeeTable + ` e
	LEFT JOIN iiko_employee_role r ON r.id = e.role_id`

func scanEmployees(rows pgx.Rows) ([]entities.Employee, error) {
	var out []entities.Employee
	for rows.Next() {
		var e entities.Employee
		if err := rows.Scan(&e.ID, &e.Name, &e.FirstName, &e.LastName, &e.RoleID, &e.RoleName, &e.Deleted, &e.TelegramID, &e.DepartmentID); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *employeeRepository) FindByID(ctx context.Context, id string) (*entities.Employee, error) {
	query := employeeSelect + ` WHERE e.id = $1`

	var e entities.Employee
	err := r.storage.QueryRow(ctx, query, id).Scan(&e.ID, &e.Name, &e.FirstName, &e.LastName, &e.RoleID, &e.RoleName, &e.Deleted, &e.TelegramID, &e.DepartmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrEmployeeNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (r *employeeRepository) BindTelegram(ctx context.Context, q Querier, employeeID string, telegramID int64) error {
	// Снимаем привязку с прежнего владельца, телефон мог перейти другому сотруднику.
	if _, err := q.Exec(ctx, "UPDATE "+employeeTable+" SET telegram_id = NULL WHERE telegram_id = $1 AND id <> $2", telegramID, employeeID); err != nil {
		return err
	}

	tag, err := q.Exec(ctx, "UPDATE "+employeeTable+" SET telegram_id = $1 WHERE id = $2", telegramID, employeeID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrEmployeeNotFound
	}
	return nil
}

func (r *employeeRepository) SetDepartment(ctx context.Context, employeeID string, departmentID string) error {
	tag, err := r.storage.Exec(ctx, "UPDATE "+employeeTable+" SET department_id = $1 WHERE id = $2", departmentID, employeeID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrEmployeeNotFound
	}
	return nil
}

func (r *employeeRepository) FindContext(ctx context.Context, telegramID int64) (*entities.UserContext, error) {
	query := `SELECT e.id, e.name, COALESCE(e.first_name, ''), COALESCE(r.name, ''),
			e.department_id, COALESCE(d.name, '')
		FROM ` + employeeTable + ` e
		LEFT JOIN iiko_employee_role r ON r.id = e.role_id
		LEFT JOIN iiko_department d ON d.id = e.department_id
		WHERE e.telegram_id = $1 AND e.deleted = false`

	var uc entities.UserContext
	err := r.storage.QueryRow(ctx, query, telegramID).Scan(
		&uc.EmployeeID, &uc.EmployeeName, &uc.FirstName, &uc.RoleName, &uc.DepartmentID, &uc.DepartmentName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrEmployeeNotFound
		}
		return nil, err
	}
	uc.TelegramID = telegramID
	return &uc, nil
}

func (r *employeeRepository) ListBoundChats(ctx context.Context) ([]int64, error) {
	rows, err := r.storage.Query(ctx, "SELECT telegram_id FROM "+employeeTable+" WHERE telegram_id IS NOT NULL AND deleted = false")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *employeeRepository) ListBound(ctx context.Context) ([]entities.Employee, error) {
	query := employeeSelect + ` WHERE e.telegram_id IS NOT NULL AND e.deleted = false ORDER BY e.name`

	rows, err := r.storage.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEmployees(rows)
}
