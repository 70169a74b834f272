// Package router assembles the echo app from installers that run in a
// fixed order, each adding its middleware and routes.
package router

import (
	"fmt"

	"github.com/labstack/echo/v4"

	"github.com/deppfellow/graphile-starter/internal/middleware"
	"github.com/deppfellow/graphile-starter/internal/server"
)

// Installer mounts one part of the app onto e.
type Installer struct {
	Name    string
	Install func(s *server.Server, e *echo.Echo) error
}

// Installers is the startup sequence. Middleware runs in the order it
// is installed, so sessions and auth are known to everything after them.
func Installers() []Installer {
	return []Installer{
		{"database pools", installDatabasePools},
		{"session", installSession},
		{"passport", installPassport},
		{"logging", installLogging},
		{"shared static", installSharedStatic},
		{"postgraphile", installPostGraphile},
	}
}

// NewRouter builds the app with the default installers.
func NewRouter(s *server.Server) (*echo.Echo, error) {
	return Build(s, Installers())
}

// Build runs installers in order and stops at the first error.
func Build(s *server.Server, installers []Installer) (*echo.Echo, error) {
	global := middleware.NewGlobalMiddlewares(s)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = global.GlobalErrorHandler

	e.Use(
		global.Recover(),
		global.Secure(),
		global.CORS(),
		middleware.NewRateLimitMiddleware(s).Limit(),
	)

	for _, in := range installers {
		if err := in.Install(s, e); err != nil {
			return nil, fmt.Errorf("install %s: %w", in.Name, err)
		}
		s.Logger.Debug().Str("installer", in.Name).Msg("installed")
	}

	return e, nil
}
