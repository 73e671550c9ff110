package handler

import (
	"github.com/labstack/echo/v4"
)

// Handlers はルーティングに登録するハンドラー一式
type Handlers struct {
	Event       *EventHandler
	Reservation *ReservationHandler
	Health      *HealthHandler
}

// RegisterRoutes は /api/v1 配下にルートを登録する
func RegisterRoutes(e *echo.Echo, h Handlers) *echo.Group {
	v1 := e.Group("/api/v1")

	v1.GET("/health", h.Health.Check)

	events := v1.Group("/events")
	events.POST("", h.Event.Create)
	events.GET("", h.Event.List)
	events.GET("/available", h.Event.ListAvailable)
	events.GET("/:id", h.Event.GetByID)
	events.PUT("/:id", h.Event.Update)
	events.POST("/:id/cancel", h.Event.Cancel)
	events.GET("/:id/audit", h.Event.Audit)

	reservations := v1.Group("/reservations")
	reservations.POST("", h.Reservation.Create)
	reservations.GET("", h.Reservation.List)
	reservations.GET("/stats", h.Reservation.Stats)
	reservations.GET("/check", h.Reservation.Check)
	reservations.GET("/:id", h.Reservation.GetByID)
	reservations.PATCH("/:id", h.Reservation.Update)
	reservations.POST("/:id/confirm", h.Reservation.Confirm)
	reservations.POST("/:id/cancel", h.Reservation.Cancel)
	reservations.POST("/:id/complete", h.Reservation.Complete)

	return v1
}
