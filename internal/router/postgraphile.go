package router

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/deppfellow/graphile-starter/internal/graphile"
	"github.com/deppfellow/graphile-starter/internal/handler"
	"github.com/deppfellow/graphile-starter/internal/server"
)

const introspectionTimeout = 30 * time.Second

// installPostGraphile introspects the exposed schemas and mounts the
// GraphQL endpoint, the schema download and GraphiQL.
func installPostGraphile(s *server.Server, e *echo.Echo) error {
	cfg := s.Config.GraphQL

	if s.GraphQL == nil {
		ctx, cancel := context.WithTimeout(s.Background(), introspectionTimeout)
		defer cancel()

		schema, err := graphile.Load(ctx, s.DB.Pool, cfg.Schemas)
		if err != nil {
			return fmt.Errorf("failed to build graphql schema: %w", err)
		}

		s.GraphQL = graphile.NewEngine(schema, graphile.Options{
			MaxDepth:        cfg.MaxDepth,
			DefaultPageSize: cfg.DefaultPageSize,
			MaxPageSize:     cfg.MaxPageSize,
			ShowErrorDetail: s.Config.IsDevelopment(),
		}, s.Logger)

		s.Logger.Info().
			Strs("schemas", cfg.Schemas).
			Int("tables", len(schema.Catalog.Tables)).
			Msg("graphql schema built")

		if s.Config.IsDevelopment() && cfg.WatchInterval > 0 {
			go s.GraphQL.Watch(s.Background(), s.DB.Pool, cfg.Schemas, cfg.WatchInterval)
		}
	}

	if s.Config.Database.VisitorRole == "" {
		s.Logger.Warn().Msg("graphql runs as the database owner, row level security is bypassed")
	}

	h := handler.NewGraphQLHandler(s)
	e.POST(cfg.Path, h.Endpoint())
	e.GET(cfg.Path, h.Endpoint())
	e.GET(cfg.Path+"/schema.graphql", h.SchemaFile())

	if cfg.GraphiQLEnabled() {
		e.GET(cfg.GraphiQLPath, h.GraphiQL())
	}
	return nil
}
