// Файл: internal/controllers/webhook/controller.go
// Приёмник вебхуков iikoCloud. Сервер шлёт пачку событий одним POST;
// отвечать нужно быстро, иначе облако начнёт ретраить, поэтому вся
// тяжёлая работа уходит из обработчика в фоновые сервисы.
package webhook

import (
	"context"
	"net/http"
	"time"

	"resto-backoffice/internal/clients/iikocloud"
	"resto-backoffice/internal/services"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Типы событий, которые сервис умеет обрабатывать. Остальные
// подтверждаются и игнорируются.
const (
	EventStopListUpdate    = "StopListUpdate"
	EventDeliveryOrder     = "DeliveryOrderUpdate"
	EventTableOrder        = "TableOrderUpdate"
	orderStatusClosed      = "Closed"
	orderProcessingTimeout = 2 * time.Minute
)

// Event — одно событие из пачки вебхука. eventInfo у каждого типа свой,
// разбираем только нужные поля.
type Event struct {
	EventType      string    `json:"eventType" validate:"required"`
	EventTime      string    `json:"eventTime"`
	OrganizationID string    `json:"organizationId"`
	EventInfo      EventInfo `json:"eventInfo"`
}

type EventInfo struct {
	ID    string     `json:"id"`
	Order *OrderInfo `json:"order,omitempty"`
}

type OrderInfo struct {
	Status string `json:"status"`
}

type Controller struct {
	cloud       iikocloud.ClientInterface
	stoplist    services.StoplistServiceInterface
	stockAlerts services.StockAlertServiceInterface
	logger      *zap.Logger
}

func NewController(
	cloud iikocloud.ClientInterface,
	stoplist services.StoplistServiceInterface,
	stockAlerts services.StockAlertServiceInterface,
	logger *zap.Logger,
) *Controller {
	return &Controller{cloud: cloud, stoplist: stoplist, stockAlerts: stockAlerts, logger: logger}
}

// Handle принимает пачку событий. Авторизация — токен регистрации вебхука
// в заголовке Authorization.
func (c *Controller) Handle(ectx echo.Context) error {
	if !c.cloud.VerifyWebhookAuth(ectx.Request().Header.Get("Authorization")) {
		c.logger.Warn("🚫 Вебхук с неверным токеном", zap.String("ip", ectx.RealIP()))
		return ectx.NoContent(http.StatusUnauthorized)
	}

	var events []Event
	if err := ectx.Bind(&events); err != nil {
		c.logger.Warn("⚠️ Нечитаемое тело вебхука", zap.Error(err))
		return ectx.NoContent(http.StatusBadRequest)
	}
	for i := range events {
		if err := ectx.Validate(&events[i]); err != nil {
			c.logger.Warn("⚠️ Событие без типа", zap.Error(err))
			return ectx.NoContent(http.StatusBadRequest)
		}
	}

	stoplistTouched := false
	closedOrders := 0
	for _, ev := range events {
		switch ev.EventType {
		case EventStopListUpdate:
			stoplistTouched = true
		case EventDeliveryOrder, EventTableOrder:
			if ev.EventInfo.Order != nil && ev.EventInfo.Order.Status == orderStatusClosed {
				closedOrders++
			}
		default:
			c.logger.Debug("событие вебхука пропущено", zap.String("тип", ev.EventType))
		}
	}

	// Серия событий одного пересчёта стоп-листа схлопывается дебаунсом.
	if stoplistTouched {
		c.stoplist.Trigger()
	}

	if closedOrders > 0 {
		go func(n int) {
			ctx, cancel := context.WithTimeout(context.Background(), orderProcessingTimeout)
			defer cancel()
			for i := 0; i < n; i++ {
				if err := c.stockAlerts.OnOrderClosed(ctx); err != nil {
					c.logger.Warn("⚠️ Закрытый заказ не учтён", zap.Error(err))
					return
				}
			}
		}(closedOrders)
	}

	c.logger.Debug("📬 Пачка вебхука принята",
		zap.Int("событий", len(events)), zap.Bool("стоп-лист", stoplistTouched), zap.Int("закрытых заказов", closedOrders))
	return ectx.NoContent(http.StatusOK)
}
