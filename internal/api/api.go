package api

import (
	"net/http"

	ordersHandler "card-server/internal/orders/handler"
	paymentsHandler "card-server/internal/payments/handler"
	trackingHandler "card-server/internal/tracking/handler"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type API struct {
	router          *gin.RouterGroup
	trackingHandler trackingHandler.Handler
	paymentsHandler paymentsHandler.Handler
	ordersHandler   ordersHandler.Handler
	registry        *prometheus.Registry
}

func New(router *gin.RouterGroup, trackingHandler trackingHandler.Handler, paymentsHandler paymentsHandler.Handler, ordersHandler ordersHandler.Handler, registry *prometheus.Registry) API {
	return API{
		router:          router,
		trackingHandler: trackingHandler,
		paymentsHandler: paymentsHandler,
		ordersHandler:   ordersHandler,
		registry:        registry,
	}
}

func (a *API) RegisterRoutes() {
	a.Health()
	a.Metrics()
	apiGroup := a.router.Group("/api")
	{
		apiGroup.POST("/track/event", a.trackingHandler.HandleTrackEvent)
		apiGroup.POST("/payments/webhook", a.paymentsHandler.HandlePaymentWebhook)
		apiGroup.POST("/orders", a.ordersHandler.HandleCreateOrder)
		apiGroup.GET("/orders/:order_id", a.ordersHandler.HandleGetOrder)
	}
}

func (a *API) Health() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
}

func (a *API) Metrics() {
	a.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))
}
