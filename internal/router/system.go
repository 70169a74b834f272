package router

import (
	"github.com/labstack/echo/v4"

	"github.com/deppfellow/graphile-starter/internal/handler"
	"github.com/deppfellow/graphile-starter/internal/server"
)

// installDatabasePools opens the owner pool, the redis client and the
// job worker, and serves /status on top of them. Redis and the worker
// may be down; only the database is required.
func installDatabasePools(s *server.Server, e *echo.Echo) error {
	if s.DB == nil {
		if err := s.ConnectDatabase(); err != nil {
			return err
		}
	}
	if s.Redis == nil {
		s.ConnectRedis()
	}
	if s.Job == nil {
		if err := s.StartJobs(); err != nil {
			s.Logger.Error().Err(err).Msg("background jobs disabled")
		}
	}

	e.GET("/status", handler.NewHealthHandler(s).CheckHealth)
	return nil
}
