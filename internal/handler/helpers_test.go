package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/deppfellow/graphile-starter/internal/config"
	"github.com/deppfellow/graphile-starter/internal/graphile"
	"github.com/deppfellow/graphile-starter/internal/middleware"
	"github.com/deppfellow/graphile-starter/internal/server"
	"github.com/deppfellow/graphile-starter/internal/session"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testServer(t *testing.T, mutate func(*config.Config)) *server.Server {
	t.Helper()
	cfg := &config.Config{
		Primary: config.Primary{Env: "local", Name: "starter", RootURL: "http://localhost:5678"},
		Server:  config.ServerConfig{Port: "5678"},
		GraphQL: config.GraphQLConfig{Path: "/graphql", GraphiQLPath: "/graphiql"},
		Auth:    config.AuthConfig{SessionSecret: testSecret},
	}
	if mutate != nil {
		mutate(cfg)
	}
	log := zerolog.Nop()
	return server.New(cfg, &log, nil)
}

func attachSessions(s *server.Server) *memStore {
	store := newMemStore()
	s.Sessions = session.NewManager(store, testSecret, time.Hour, false, s.Logger)
	return store
}

func newEcho(s *server.Server) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = middleware.NewGlobalMiddlewares(s).GlobalErrorHandler
	return e
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func testEngine(t *testing.T) *graphile.Engine {
	t.Helper()
	schema, err := graphile.Build(&graphile.Catalog{Tables: []*graphile.Table{{
		Schema: "app_public",
		Name:   "users",
		Kind:   "r",
		Columns: []*graphile.Column{
			{Name: "id", Type: "int8", NotNull: true, HasDefault: true, Num: 1},
			{Name: "username", Type: "text", NotNull: true, Num: 2},
		},
		PrimaryKey: []string{"id"},
	}}})
	require.NoError(t, err)
	log := zerolog.Nop()
	return graphile.NewEngine(schema, graphile.Options{}, &log)
}

// fakeTx is never queried by the documents these tests send.
type fakeTx struct {
	pgx.Tx
}

type fakeRunner struct {
	mu       sync.Mutex
	settings []map[string]string
	err      error
	afterErr error
}

func (f *fakeRunner) WithSettings(_ context.Context, settings map[string]string, fn func(tx pgx.Tx) error) error {
	f.mu.Lock()
	f.settings = append(f.settings, settings)
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if err := fn(fakeTx{}); err != nil {
		return err
	}
	return f.afterErr
}

// memStore keeps sessions JSON encoded like the redis store does.
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}}
}

func (m *memStore) Get(_ context.Context, id string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	s := &session.Session{}
	if err := json.Unmarshal(raw, s); err != nil {
		return nil, err
	}
	s.ID = id
	return s, nil
}

func (m *memStore) Save(_ context.Context, s *session.Session, _ time.Duration) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[s.ID] = raw
	return nil
}

func (m *memStore) Destroy(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}

func (m *memStore) only(t *testing.T) *session.Session {
	t.Helper()
	m.mu.Lock()
	ids := make([]string, 0, len(m.data))
	for id := range m.data {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	require.Len(t, ids, 1)
	s, err := m.Get(context.Background(), ids[0])
	require.NoError(t, err)
	return s
}
