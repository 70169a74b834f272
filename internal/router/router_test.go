package router

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deppfellow/graphile-starter/internal/config"
	"github.com/deppfellow/graphile-starter/internal/graphile"
	"github.com/deppfellow/graphile-starter/internal/middleware"
	"github.com/deppfellow/graphile-starter/internal/server"
)

func testServer(t *testing.T, mutate func(*config.Config)) *server.Server {
	t.Helper()
	cfg := &config.Config{
		Primary: config.Primary{Env: "local", Name: "starter", RootURL: "http://localhost:5678"},
		Server:  config.ServerConfig{Port: "5678", PublicDir: t.TempDir()},
		GraphQL: config.GraphQLConfig{Path: "/graphql", GraphiQLPath: "/graphiql", Schemas: []string{"app_public"}},
		Auth:    config.AuthConfig{SessionSecret: "0123456789abcdef0123456789abcdef", SessionTTLHours: 1},
	}
	if mutate != nil {
		mutate(cfg)
	}
	log := zerolog.Nop()
	return server.New(cfg, &log, nil)
}

func serve(e *echo.Echo, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestInstallersOrder(t *testing.T) {
	var names []string
	for _, in := range Installers() {
		names = append(names, in.Name)
	}
	assert.Equal(t, []string{
		"database pools", "session", "passport", "logging", "shared static", "postgraphile",
	}, names)
}

func TestBuildStopsAtFirstError(t *testing.T) {
	var ran []string
	step := func(name string, err error) Installer {
		return Installer{Name: name, Install: func(*server.Server, *echo.Echo) error {
			ran = append(ran, name)
			return err
		}}
	}

	_, err := Build(testServer(t, nil), []Installer{
		step("a", nil), step("b", errors.New("boom")), step("c", nil),
	})
	require.Error(t, err)
	assert.Equal(t, "install b: boom", err.Error())
	assert.Equal(t, []string{"a", "b"}, ran)
}

func TestSharedStatic(t *testing.T) {
	s := testServer(t, nil)
	dir := s.Config.Server.PublicDir
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>starter</h1>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644))

	e, err := Build(s, []Installer{{"logging", installLogging}, {"static", installSharedStatic}})
	require.NoError(t, err)
	e.GET("/status", func(c echo.Context) error { return c.String(http.StatusOK, "up") })

	rec := serve(e, http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "starter")

	rec = serve(e, http.MethodGet, "/app.js")
	assert.Equal(t, "console.log(1)", rec.Body.String())

	rec = serve(e, http.MethodGet, "/settings/profile")
	assert.Equal(t, http.StatusOK, rec.Code, "client routes fall back to index.html")
	assert.Contains(t, rec.Body.String(), "starter")

	rec = serve(e, http.MethodGet, "/status")
	assert.Equal(t, "up", rec.Body.String())

	rec = serve(e, http.MethodGet, "/graphql/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestSharedStaticMissingDir(t *testing.T) {
	missing := func(env string) func(*config.Config) {
		return func(cfg *config.Config) {
			cfg.Primary.Env = env
			cfg.Server.PublicDir = filepath.Join(os.TempDir(), "starter-does-not-exist")
		}
	}

	err := installSharedStatic(testServer(t, missing("local")), echo.New())
	assert.ErrorContains(t, err, "public dir")

	assert.NoError(t, installSharedStatic(testServer(t, missing("production")), echo.New()))
}

func TestInstallSession(t *testing.T) {
	s := testServer(t, nil)
	s.Redis = redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = s.Redis.Close() })

	e, err := Build(s, []Installer{{"session", installSession}})
	require.NoError(t, err)
	require.NotNil(t, s.Sessions)
	assert.Len(t, s.WebsocketMiddlewares, 1)

	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	rec := serve(e, http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Result().Cookies(), "untouched sessions set no cookie")
}

func testEngine(t *testing.T) *graphile.Engine {
	t.Helper()
	schema, err := graphile.Build(&graphile.Catalog{Tables: []*graphile.Table{{
		Schema:     "app_public",
		Name:       "users",
		Kind:       "r",
		Columns:    []*graphile.Column{{Name: "id", Type: "int8", NotNull: true, HasDefault: true, Num: 1}},
		PrimaryKey: []string{"id"},
	}}})
	require.NoError(t, err)
	log := zerolog.Nop()
	return graphile.NewEngine(schema, graphile.Options{}, &log)
}

func TestInstallPostGraphile(t *testing.T) {
	s := testServer(t, nil)
	s.GraphQL = testEngine(t)

	e, err := Build(s, []Installer{{"postgraphile", installPostGraphile}})
	require.NoError(t, err)

	rec := serve(e, http.MethodGet, "/graphiql")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(e, http.MethodGet, "/graphql/schema.graphql")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "nodeId: ID!"))

	// No database behind this server.
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":"{ nodeId }"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestInstallPostGraphileWithoutGraphiQL(t *testing.T) {
	s := testServer(t, func(cfg *config.Config) {
		off := false
		cfg.GraphQL.GraphiQL = &off
	})
	s.GraphQL = testEngine(t)

	e, err := Build(s, []Installer{{"postgraphile", installPostGraphile}})
	require.NoError(t, err)

	rec := serve(e, http.MethodGet, "/graphiql")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
