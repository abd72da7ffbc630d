// Файл: internal/routes/routes.go
// HTTP-поверхность сервиса нарочно крошечная: приёмник вебхуков iikoCloud
// и health-check для оркестратора. Вся остальная работа идёт через бота
// и планировщик.
package routes

import (
	"context"
	"net/http"
	"time"

	"resto-backoffice/internal/controllers/webhook"
	"resto-backoffice/pkg/config"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func InitRouter(e *echo.Echo, pool *pgxpool.Pool, webhookCtl *webhook.Controller, cfg *config.Config, logger *zap.Logger) {
	e.POST(cfg.Cloud.WebhookPath, webhookCtl.Handle)

	e.GET("/health", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
		defer cancel()

		if err := pool.Ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "db unavailable"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	logger.Info("🚀 Маршруты готовы",
		zap.String("вебхук", cfg.Cloud.WebhookPath), zap.String("health", "/health"))
}
