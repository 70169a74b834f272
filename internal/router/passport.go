package router

import (
	"github.com/labstack/echo/v4"

	"github.com/deppfellow/graphile-starter/internal/handler"
	"github.com/deppfellow/graphile-starter/internal/middleware"
	"github.com/deppfellow/graphile-starter/internal/repository"
	"github.com/deppfellow/graphile-starter/internal/server"
	"github.com/deppfellow/graphile-starter/internal/service"
)

// installPassport resolves the visitor on every request and mounts the
// GitHub login routes.
func installPassport(s *server.Server, e *echo.Echo) error {
	services, err := service.NewServices(s, repository.NewRepositories(s))
	if err != nil {
		return err
	}

	auth := middleware.NewAuthMiddleware(s)
	authenticate := auth.Authenticate()
	e.Use(authenticate)
	s.WebsocketMiddlewares = append(s.WebsocketMiddlewares, authenticate)

	h := handler.NewAuthHandler(s, services.Auth)
	e.GET("/auth/github", h.Login)
	e.GET(service.CallbackPath, h.Callback)
	e.GET("/auth/me", h.Me(), auth.RequireAuth)
	e.GET("/logout", h.Logout)
	e.POST("/logout", h.LogoutAPI())

	if !services.Auth.GitHubEnabled() {
		s.Logger.Warn().Msg("github client not configured, login is disabled")
	}
	return nil
}
