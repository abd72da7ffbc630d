// Файл: internal/services/writeoff-service_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSegmentForRole(t *testing.T) {
	cases := []struct {
		role string
		want string
	}{
		{"Бармен", SegmentBar},
		{"старший бармен", SegmentBar},
		{"КАССИР-БАРИСТА", SegmentBar},
		{"ранер", SegmentBar},
		{"Повар", SegmentKitchen},
		{"шеф-повар", SegmentKitchen},
		{"посудомойка", SegmentKitchen},
		{"  кондитер  ", SegmentKitchen},
		{"Управляющий", ""},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SegmentForRole(tc.role), "должность %q", tc.role)
	}
}

func TestNewDocIDShortAndUnique(t *testing.T) {
	a, b := newDocID(), newDocID()
	assert.Len(t, a, 8)
	assert.NotEqual(t, a, b)
	// id попадает в callback data, дефисов в нём быть не должно
	assert.NotContains(t, a, "-")
}
