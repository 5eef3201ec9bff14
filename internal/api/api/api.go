package api

import (
	"github.com/gin-contrib/cors"
	"github.com/wb-go/wbf/ginext"

	"ticketline/cmd/middleware"
	"ticketline/internal/service"
)

type Routers struct {
	Service service.Service
}

func NewRouters(r *Routers) *ginext.Engine {
	app := ginext.New("release")

	app.Use(middleware.LoggingMiddleware())
	app.Use(cors.Default())
	apiGroup := app.Group("/v1")

	apiGroup.POST("/events", r.Service.CreateEvent)
	apiGroup.GET("/events", r.Service.GetAllEvents)
	apiGroup.GET("/events/:id", r.Service.GetInfo)
	apiGroup.GET("/events/:id/availability", r.Service.GetAvailability)
	apiGroup.PATCH("/events/:id/capacity", r.Service.UpdateCapacity)
	apiGroup.POST("/events/:id/cancel", r.Service.CancelEvent)

	apiGroup.POST("/events/:id/join", r.Service.Join)
	apiGroup.POST("/events/:id/release", r.Service.Release)
	apiGroup.GET("/events/:id/position", r.Service.GetPosition)
	apiGroup.POST("/events/:id/process", r.Service.ProcessQueue)
	apiGroup.GET("/events/:id/ticket", r.Service.GetTicket)

	apiGroup.POST("/webhooks/payment", r.Service.PaymentWebhook)

	return app
}
