package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-connect/internal/config"
	"github.com/smallbiznis/valora-connect/internal/http/handler"
	"github.com/smallbiznis/valora-connect/internal/http/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, install *handler.InstallHandler, login *handler.LoginHandler, rateLimiter *middleware.RateLimiter, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.SetHTMLTemplate(handler.Templates())

	r.GET("/healthz", handler.Health)

	handshakes := r.Group("/")
	if rateLimiter != nil {
		handshakes.Use(rateLimiter.Handler())
	}
	{
		handshakes.GET("/shopify_install", install.Install)
		handshakes.GET("/shopify_confirm", install.Confirm)
		handshakes.GET("/login", login.Show)
		handshakes.POST("/login", login.Submit)
	}

	r.NoRoute(func(c *gin.Context) {
		c.String(http.StatusNotFound, "not found")
	})

	return r
}
