// Файл: internal/clients/iiko/reports_test.go
package iiko

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"resto-backoffice/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newReportServer поднимает сервер с авторизацией и одним отчётным
// эндпоинтом. Возвращает клиента, нацеленного на него.
func newReportServer(t *testing.T, path string, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/resto/api/auth", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("токен-123"))
	})
	mux.HandleFunc(path, handler)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := NewClient(config.IikoConfig{BaseURL: srv.URL, Login: "бот"}, "sha1", zap.NewNop())
	return client, srv
}

func TestFetchOlapByPreset(t *testing.T) {
	var gotQuery map[string][]string
	client, _ := newReportServer(t, "/resto/api/v2/reports/olap/byPresetId/preset-7",
		func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.Query()
			_, _ = w.Write([]byte(`{"data":[{"Department":"Центр","Sum":100.5}]}`))
		})

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 24, 23, 59, 59, 0, time.UTC)
	rows, err := client.FetchOlapByPreset(context.Background(), "preset-7", from, to, []string{"dep-1", "dep-2"})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.Equal(t, "Центр", rows[0]["Department"])
	assert.Equal(t, []string{"2026-08-01T00:00:00"}, gotQuery["dateFrom"])
	assert.Equal(t, []string{"2026-08-24T23:59:59"}, gotQuery["dateTo"])
	assert.Equal(t, []string{"dep-1,dep-2"}, gotQuery["departmentIds"])
	assert.Equal(t, []string{"токен-123"}, gotQuery["key"])
}

func TestFetchOlapBalancesParsesJSONBody(t *testing.T) {
	client, _ := newReportServer(t, "/resto/api/reports/olap",
		func(w http.ResponseWriter, r *http.Request) {
			// v1 отдаёт даты в формате DD.MM.YYYY.
			assert.Equal(t, "01.07.2026", r.URL.Query().Get("from"))
			assert.Equal(t, "01.08.2026", r.URL.Query().Get("to"))
			_, _ = w.Write([]byte(`{"data":[{"Account.Name":"Бар (Морская)","FinalBalance.Amount":-3}]}`))
		})

	from := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	rows, err := client.FetchOlapBalances(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Бар (Морская)", rows[0]["Account.Name"])
}
