package router

import (
	"github.com/labstack/echo/v4"

	"github.com/deppfellow/graphile-starter/internal/middleware"
	"github.com/deppfellow/graphile-starter/internal/server"
)

func installLogging(s *server.Server, e *echo.Echo) error {
	mw := middleware.NewMiddlewares(s)

	e.Use(
		middleware.RequestID(),
		mw.Tracing.NewRelicMiddleware(),
		mw.Tracing.EnhanceTracing(),
		mw.ContextEnhancer.EnhanceContext(),
		mw.Global.RequestLogger(),
	)
	return nil
}
