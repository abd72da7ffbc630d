// Файл: internal/controllers/webhook/controller_test.go
package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"resto-backoffice/internal/clients/iikocloud"
	"resto-backoffice/internal/entities"
	"resto-backoffice/pkg/validation"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCloud struct {
	iikocloud.ClientInterface
	secret string
}

func (f *fakeCloud) VerifyWebhookAuth(authHeader string) bool {
	return authHeader == f.secret || authHeader == "Bearer "+f.secret
}

type fakeStoplist struct {
	mu       sync.Mutex
	triggers int
}

func (f *fakeStoplist) Trigger() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers++
}

func (f *fakeStoplist) Refresh(context.Context) error       { return nil }
func (f *fakeStoplist) EveningReport(context.Context) error { return nil }
func (f *fakeStoplist) Current(context.Context) ([]entities.StoplistItem, error) {
	return nil, nil
}

func (f *fakeStoplist) triggered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.triggers
}

type fakeStockAlerts struct {
	mu     sync.Mutex
	closed int
}

func (f *fakeStockAlerts) OnOrderClosed(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeStockAlerts) RefreshAlerts(context.Context) error { return nil }
func (f *fakeStockAlerts) ReportForChat(context.Context, *string) (string, error) {
	return "", nil
}

func (f *fakeStockAlerts) closedOrders() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func newTestController() (*Controller, *fakeStoplist, *fakeStockAlerts) {
	stoplist := &fakeStoplist{}
	alerts := &fakeStockAlerts{}
	ctl := NewController(&fakeCloud{secret: "секрет"}, stoplist, alerts, zap.NewNop())
	return ctl, stoplist, alerts
}

func doRequest(t *testing.T, ctl *Controller, auth, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.Validator = validation.New()

	req := httptest.NewRequest(http.MethodPost, "/iiko-webhook", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()

	require.NoError(t, ctl.Handle(e.NewContext(req, rec)))
	return rec
}

func TestHandleRejectsBadToken(t *testing.T) {
	ctl, stoplist, _ := newTestController()

	rec := doRequest(t, ctl, "чужой-токен", `[{"eventType":"StopListUpdate"}]`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, stoplist.triggered())
}

func TestHandleRejectsEventWithoutType(t *testing.T) {
	ctl, _, _ := newTestController()

	rec := doRequest(t, ctl, "секрет", `[{"eventTime":"2026-01-01"}]`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCollapsesStoplistEvents(t *testing.T) {
	ctl, stoplist, _ := newTestController()

	body := `[
		{"eventType":"StopListUpdate"},
		{"eventType":"StopListUpdate"},
		{"eventType":"StopListUpdate"}
	]`
	rec := doRequest(t, ctl, "Bearer секрет", body)

	assert.Equal(t, http.StatusOK, rec.Code)
	// Три события одного пересчёта дают один Trigger, дебаунс внутри сервиса.
	assert.Equal(t, 1, stoplist.triggered())
}

func TestHandleCountsClosedOrders(t *testing.T) {
	ctl, _, alerts := newTestController()

	body := `[
		{"eventType":"DeliveryOrderUpdate","eventInfo":{"id":"o1","order":{"status":"Closed"}}},
		{"eventType":"TableOrderUpdate","eventInfo":{"id":"o2","order":{"status":"Closed"}}},
		{"eventType":"DeliveryOrderUpdate","eventInfo":{"id":"o3","order":{"status":"CookingStarted"}}},
		{"eventType":"ReserveUpdate"}
	]`
	rec := doRequest(t, ctl, "секрет", body)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Закрытые заказы обрабатываются в фоне.
	assert.Eventually(t, func() bool { return alerts.closedOrders() == 2 },
		time.Second, 10*time.Millisecond)
}
