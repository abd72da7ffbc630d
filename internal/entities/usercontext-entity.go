// Файл: internal/entities/usercontext-entity.go
package entities

// UserContext — всё, что нужно обработчикам бота о пользователе.
// Собирается одним join-запросом и кешируется на время сессии.
type UserContext struct {
	EmployeeID     string  `json:"employee_id"`
	EmployeeName   string  `json:"employee_name"`
	FirstName      string  `json:"first_name"`
	RoleName       string  `json:"role_name"`
	DepartmentID   *string `json:"department_id,omitempty"`
	DepartmentName string  `json:"department_name"`
	TelegramID     int64   `json:"telegram_id"`
}
