package errors

import (
	"context"
	"fmt"
	"io"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected Class
	}{
		{"nil", nil, ClassPermanent},
		{"HTTP 429", NewHTTPError(429, "https://host/v1/x", "too many"), ClassTransient},
		{"HTTP 500", NewHTTPError(500, "https://host/v1/x", "oops"), ClassTransient},
		{"HTTP 503", NewHTTPError(503, "https://host/v1/x", ""), ClassTransient},
		{"HTTP 400", NewHTTPError(400, "https://host/v1/x", "bad"), ClassPermanent},
		{"HTTP 403", NewHTTPError(403, "https://host/v1/x", "forbidden"), ClassPermanent},
		{"HTTP 404", NewHTTPError(404, "https://host/v1/x", ""), ClassPermanent},
		{"обёрнутый HTTP 502", fmt.Errorf("запрос не удался: %w", NewHTTPError(502, "u", "")), ClassTransient},
		{"EOF", io.EOF, ClassTransient},
		{"unexpected EOF", io.ErrUnexpectedEOF, ClassTransient},
		{"connection reset", syscall.ECONNRESET, ClassTransient},
		{"connection refused", syscall.ECONNREFUSED, ClassTransient},
		{"deadline", context.DeadlineExceeded, ClassTransient},
		{"ошибка разбора xml", fmt.Errorf("xml: unexpected element"), ClassPermanent},
		{"ошибка разбора json", fmt.Errorf("json: cannot unmarshal string"), ClassPermanent},
		{"неизвестная", fmt.Errorf("что-то странное"), ClassUnknown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Classify(tc.err))
		})
	}
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(NewHTTPError(500, "u", "")))
	assert.False(t, IsTransient(NewHTTPError(401, "u", "")))
	// Неизвестный класс не считается временным: ему положен ровно один повтор выше по стеку.
	assert.False(t, IsTransient(fmt.Errorf("загадка")))
}

func TestHTTPErrorTruncatesBody(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'a'
	}
	err := NewHTTPError(500, "https://host/x", string(long))
	assert.LessOrEqual(t, len(err.Error()), 300)
}
