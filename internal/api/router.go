package api

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/pos_billing_server/config"
	"github.com/qs3c/pos_billing_server/internal/api/handler"
	"github.com/qs3c/pos_billing_server/internal/api/middleware"
)

type Router struct {
	billingHandler   *handler.BillingHandler
	websocketHandler *handler.WebSocketHandler
	cfg              *config.Config
}

func NewRouter(
	billingHandler *handler.BillingHandler,
	websocketHandler *handler.WebSocketHandler,
	cfg *config.Config,
) *Router {
	return &Router{
		billingHandler:   billingHandler,
		websocketHandler: websocketHandler,
		cfg:              cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	api := engine.Group("/api/v1")
	{
		// WebSocket，token 走查询参数
		api.GET("/ws", r.websocketHandler.Handle)

		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			authenticated.POST("/billing/runs", r.billingHandler.CreateRun)

			subscriptions := authenticated.Group("/subscriptions")
			{
				subscriptions.GET("/:id", r.billingHandler.GetSubscription)
				subscriptions.GET("/:id/payment-logs", r.billingHandler.ListSubscriptionLogs)
				subscriptions.POST("/:id/reactivate", r.billingHandler.Reactivate)
			}

			authenticated.GET("/payment-logs", r.billingHandler.ListPaymentLogs)
		}
	}

	return engine
}
