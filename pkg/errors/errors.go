package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
)

var (
	// Общие
	ErrNotFound   = fmt.Errorf("запись не найдена")
	ErrBadRequest = fmt.Errorf("неверный запрос")

	// Синхронизация
	ErrSyncAlreadyRunning = fmt.Errorf("синхронизация уже выполняется")
	ErrMirrorDeleteSkipped = fmt.Errorf("зеркальное удаление пропущено защитным порогом")

	// Документы
	ErrPendingNotFound = fmt.Errorf("черновик списания не найден или истёк")
	ErrPendingLocked   = fmt.Errorf("черновик уже обрабатывается другим администратором")
	ErrDocumentInvalid = fmt.Errorf("сервер отклонил документ как некорректный")

	// Авторизация в боте
	ErrEmployeeNotFound  = fmt.Errorf("сотрудник не найден")
	ErrEmployeeAmbiguous = fmt.Errorf("найдено несколько сотрудников")
	ErrAccessDenied      = fmt.Errorf("доступ запрещён")
)

// Кастомные типы ошибок
type InvalidInputError struct {
	Message string
}

func (e *InvalidInputError) Error() string { return e.Message }

func NewInvalidInputError(format string, args ...interface{}) error {
	return &InvalidInputError{Message: fmt.Sprintf(format, args...)}
}

// HTTPError — ошибка вызова внешнего API. URL всегда с замаскированными секретами.
type HTTPError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("внешний API вернул %d (%s): %s", e.StatusCode, e.URL, body)
}

func NewHTTPError(status int, maskedURL, body string) error {
	return &HTTPError{StatusCode: status, URL: maskedURL, Body: body}
}

// Class — класс ошибки для ретраев.
type Class int

const (
	ClassPermanent Class = iota
	ClassTransient
	ClassUnknown
)

// Classify относит ошибку к классу ровно в одном месте.
// Сетевые ошибки (таймауты, обрывы, EOF) и HTTP 429/5xx — временные.
// Остальные 4xx и ошибки разбора — постоянные. Всё прочее — неизвестное,
// вызывающий код даёт таким ошибкам один молчаливый повтор.
func Classify(err error) Class {
	if err == nil {
		return ClassPermanent
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == 429:
			return ClassTransient
		case httpErr.StatusCode >= 500:
			return ClassTransient
		case httpErr.StatusCode >= 400:
			return ClassPermanent
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTransient
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ClassTransient
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return ClassTransient
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ClassTransient
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "temporary failure"):
		return ClassTransient
	case strings.Contains(msg, "xml"), strings.Contains(msg, "json"), strings.Contains(msg, "unmarshal"):
		return ClassPermanent
	}

	return ClassUnknown
}

// IsTransient — единственный предикат повторяемости во всём сервисе.
func IsTransient(err error) bool {
	return Classify(err) == ClassTransient
}
