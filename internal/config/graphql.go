package config

import (
	"fmt"
	"regexp"
	"time"
)

// GraphQLConfig controls the GraphQL-over-Postgres endpoint.
type GraphQLConfig struct {
	// Schemas are the Postgres schemas exposed through GraphQL.
	Schemas []string `koanf:"schemas"`

	Path         string `koanf:"path"`
	GraphiQLPath string `koanf:"graphiql_path"`

	// GraphiQL serves the IDE page. Defaults to on.
	GraphiQL *bool `koanf:"graphiql"`

	// WatchInterval re-introspects the database on this interval in dev.
	WatchInterval time.Duration `koanf:"watch_interval"`

	MaxDepth        int `koanf:"max_depth" validate:"min=0"`
	DefaultPageSize int `koanf:"default_page_size" validate:"min=0"`
	MaxPageSize     int `koanf:"max_page_size" validate:"min=0"`
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

func (g *GraphQLConfig) applyDefaults() {
	if len(g.Schemas) == 0 {
		g.Schemas = []string{"app_public"}
	}
	if g.Path == "" {
		g.Path = "/graphql"
	}
	if g.GraphiQLPath == "" {
		g.GraphiQLPath = "/graphiql"
	}
	if g.GraphiQL == nil {
		on := true
		g.GraphiQL = &on
	}
	if g.MaxDepth == 0 {
		g.MaxDepth = 12
	}
	if g.DefaultPageSize == 0 {
		g.DefaultPageSize = 100
	}
	if g.MaxPageSize == 0 {
		g.MaxPageSize = 1000
	}
}

// GraphiQLEnabled reports whether the IDE page is served.
func (g *GraphQLConfig) GraphiQLEnabled() bool {
	return g.GraphiQL == nil || *g.GraphiQL
}

// Validate checks schema names are plain identifiers and page sizes agree.
func (g *GraphQLConfig) Validate() error {
	if len(g.Schemas) == 0 {
		return fmt.Errorf("at least one schema is required")
	}
	for _, s := range g.Schemas {
		if !identPattern.MatchString(s) {
			return fmt.Errorf("invalid schema name %q", s)
		}
	}
	if g.Path == g.GraphiQLPath {
		return fmt.Errorf("path and graphiql_path must differ")
	}
	if g.DefaultPageSize > g.MaxPageSize {
		return fmt.Errorf("default_page_size %d exceeds max_page_size %d", g.DefaultPageSize, g.MaxPageSize)
	}
	return nil
}
