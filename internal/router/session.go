package router

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/deppfellow/graphile-starter/internal/server"
	"github.com/deppfellow/graphile-starter/internal/session"
)

func installSession(s *server.Server, e *echo.Echo) error {
	ttl := time.Duration(s.Config.Auth.SessionTTLHours) * time.Hour

	s.Sessions = session.NewManager(
		session.NewRedisStore(s.Redis),
		s.Config.Auth.SessionSecret,
		ttl,
		s.Config.SecureCookies(),
		s.Logger,
	)

	mw := s.Sessions.Middleware()
	e.Use(mw)
	s.WebsocketMiddlewares = append(s.WebsocketMiddlewares, mw)
	return nil
}
