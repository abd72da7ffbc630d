// Файл: pkg/validation/validator.go
// Обёртка validator/v10 под интерфейс echo.Validator. Правила описываются
// тегами на DTO вебхука, кастомных правил у сервиса нет.
package validation

import (
	"github.com/go-playground/validator/v10"
)

type CustomValidator struct {
	validator *validator.Validate
}

// Validate реализует интерфейс echo.Validator.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

func New() *CustomValidator {
	return &CustomValidator{validator: validator.New()}
}
