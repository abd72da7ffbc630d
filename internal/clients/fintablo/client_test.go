// Файл: internal/clients/fintablo/client_test.go
package fintablo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"resto-backoffice/internal/entities"
	"resto-backoffice/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(baseURL string) *Client {
	return NewClient(config.FintabloConfig{BaseURL: baseURL, APIToken: "secret-token"}, zap.NewNop())
}

func TestFetchResource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		assert.Equal(t, "/v1/moneybag-group", r.URL.Path)
		w.Write([]byte(`{"status":200,"items":[{"id":1,"name":"Основные"},{"id":2,"name":"Резерв"}]}`))
	}))
	defer srv.Close()

	items, err := newTestClient(srv.URL).FetchResource(context.Background(), "moneybag_group")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Основные", items[0]["name"])
}

func TestFetchResourceUnknown(t *testing.T) {
	_, err := newTestClient("http://unused").FetchResource(context.Background(), "unknown")
	require.Error(t, err)
}

func TestFetchResourceEmptyItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":200}`))
	}))
	defer srv.Close()

	items, err := newTestClient(srv.URL).FetchResource(context.Background(), "deal")
	require.NoError(t, err)
	assert.Empty(t, items)
}

// Каждый справочник из списка синхронизации должен знать свой endpoint.
func TestEveryResourceHasEndpoint(t *testing.T) {
	for _, resource := range entities.FinanceResources {
		_, ok := resourceEndpoints[resource]
		assert.True(t, ok, resource)
	}
}
