package router

import (
	"fmt"
	"os"
	"strings"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/deppfellow/graphile-starter/internal/server"
)

// apiPrefixes are never answered with the client's index.html.
func apiPrefixes(s *server.Server) []string {
	return []string{
		s.Config.GraphQL.Path,
		s.Config.GraphQL.GraphiQLPath,
		"/auth/",
		"/logout",
		"/status",
	}
}

// installSharedStatic serves the client from the public dir with
// index.html as the fallback for client side routes.
func installSharedStatic(s *server.Server, e *echo.Echo) error {
	dir := s.Config.Server.PublicDir

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		if s.Config.IsDevelopment() {
			return fmt.Errorf("public dir %q not found", dir)
		}
		s.Logger.Warn().Str("dir", dir).Msg("public dir not found, client disabled")
		return nil
	}

	prefixes := apiPrefixes(s)
	e.Use(echomw.StaticWithConfig(echomw.StaticConfig{
		Root:  dir,
		HTML5: true,
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			for _, prefix := range prefixes {
				if p == prefix || strings.HasPrefix(p, strings.TrimSuffix(prefix, "/")+"/") {
					return true
				}
			}
			return false
		},
	}))
	return nil
}
