package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/mobile-seat-admission/internal/handler"
	"github.com/iliyamo/mobile-seat-admission/internal/middleware"
)

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo, gatherer prometheus.Gatherer) {
	e.GET("/healthz", handler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

// RegisterMobile registers the mobile application endpoints.  Token issuance
// is public but rate limited; sync and logout require a current mobile
// token.
func RegisterMobile(e *echo.Echo, m *handler.MobileHandler, jwtSecret string, tokens middleware.TokenChecker, limit echo.MiddlewareFunc) {
	g := e.Group("/v1/mobile")
	g.POST("/token", m.Token, limit)

	auth := g.Group("", middleware.JWTAuth(jwtSecret), middleware.RequireActiveToken(tokens, m.Log), limit)
	auth.POST("/sync", m.Sync)
	auth.POST("/logout", m.Logout)
}
