// internal/api/server.go
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func logger() *zerolog.Logger {
	l := log.With().Str("component", "api").Logger()
	return &l
}

// NewServer monta as rotas. metrics pode ser nil.
func NewServer(c Core, metrics http.Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogError:  true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/health" || c.Path() == "/metrics"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := logger().Debug()
			if v.Error != nil || v.Status >= 500 {
				ev = logger().Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).Str("uri", v.URI).Int("status", v.Status).Msg("request")
			return nil
		},
	}))
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10,
	}))
	e.Use(middleware.BodyLimit("1M"))

	h := NewHandler(c)
	ev := NewEventsHandler(c)

	e.GET("/health", h.HandleHealth)
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}

	g := e.Group("/api")
	g.GET("/status", h.HandleStatus)
	g.GET("/cameras", h.HandleListCameras)
	g.POST("/cameras", h.HandleAddCamera)
	g.DELETE("/cameras/:name", h.HandleRemoveCamera)
	g.POST("/cameras/:name/mode", h.HandleSetMode)
	g.POST("/cameras/:name/clear-streak", h.HandleClearStreak)
	g.POST("/health-check", h.HandleHealthCheck)
	g.POST("/reconcile", h.HandleReconcile)
	g.GET("/sessions", h.HandleSessions)
	g.GET("/logs", h.HandleLogs)
	g.GET("/events", ev.HandleEvents)

	return e
}

// ServerTimeouts aplica limites de leitura ao servidor. Sem WriteTimeout
// por causa do stream de eventos.
func ServerTimeouts(e *echo.Echo) {
	e.Server.ReadHeaderTimeout = 10 * time.Second
	e.Server.IdleTimeout = 120 * time.Second
}
