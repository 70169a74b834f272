package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deppfellow/graphile-starter/internal/config"
	"github.com/deppfellow/graphile-starter/internal/errs"
	"github.com/deppfellow/graphile-starter/internal/middleware"
)

type graphQLBody struct {
	Data   map[string]any   `json:"data"`
	Errors []map[string]any `json:"errors"`
}

func newGraphQLEcho(t *testing.T, mutate func(*config.Config), runner *fakeRunner, userID, method string) *echo.Echo {
	t.Helper()
	s := testServer(t, mutate)
	s.GraphQL = testEngine(t)

	h := NewGraphQLHandler(s)
	h.db = runner

	e := newEcho(s)
	if userID != "" {
		e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				c.Set(middleware.UserIDKey, userID)
				c.Set(middleware.AuthMethodKey, method)
				return next(c)
			}
		})
	}
	e.POST("/graphql", h.Endpoint())
	e.GET("/graphql", h.Endpoint())
	e.GET("/graphql/schema.graphql", h.SchemaFile())
	e.GET("/graphiql", h.GraphiQL())
	return e
}

func postGraphQL(e *echo.Echo, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestGraphQLNodeIDCheck(t *testing.T) {
	runner := &fakeRunner{}
	e := newGraphQLEcho(t, nil, runner, "", "")

	rec := postGraphQL(e, `{"query":"{ nodeId }"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body graphQLBody
	decode(t, rec, &body)
	assert.Empty(t, body.Errors)
	assert.Equal(t, "query", body.Data["nodeId"])

	require.Len(t, runner.settings, 1)
	assert.Empty(t, runner.settings[0], "anonymous visitor without a visitor role")
}

func TestGraphQLSettings(t *testing.T) {
	withRole := func(cfg *config.Config) { cfg.Database.VisitorRole = "starter_visitor" }

	tests := []struct {
		name   string
		user   string
		method string
		want   map[string]string
	}{
		{"anonymous", "", "", map[string]string{"role": "starter_visitor"}},
		{"session", "42", middleware.AuthMethodSession, map[string]string{
			"role": "starter_visitor", "jwt.claims.user_id": "42",
		}},
		{"bearer", "user_2abc", middleware.AuthMethodBearer, map[string]string{
			"role": "starter_visitor", "jwt.claims.sub": "user_2abc",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			e := newGraphQLEcho(t, withRole, runner, tt.user, tt.method)

			rec := postGraphQL(e, `{"query":"{ __typename }"}`)
			require.Equal(t, http.StatusOK, rec.Code)
			require.Len(t, runner.settings, 1)
			assert.Equal(t, tt.want, runner.settings[0])
		})
	}
}

func TestGraphQLGet(t *testing.T) {
	e := newGraphQLEcho(t, nil, &fakeRunner{}, "", "")

	q := url.Values{}
	q.Set("query", "query Check($id: ID!) { node(nodeId: $id) { nodeId } }")
	q.Set("operationName", "Check")
	q.Set("variables", `{"id":"query"}`)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/graphql?"+q.Encode(), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body graphQLBody
	decode(t, rec, &body)
	assert.Empty(t, body.Errors)
	node, ok := body.Data["node"].(map[string]any)
	require.True(t, ok, rec.Body.String())
	assert.Equal(t, "query", node["nodeId"])
}

func TestGraphQLGetRefusesMutations(t *testing.T) {
	runner := &fakeRunner{}
	e := newGraphQLEcho(t, nil, runner, "42", middleware.AuthMethodSession)

	q := url.Values{}
	q.Set("query", "mutation { __typename }")

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/graphql?"+q.Encode(), nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get(echo.HeaderAllow))
	assert.Empty(t, runner.settings, "no transaction was opened")

	rec = postGraphQL(e, `{"query":"mutation { __typename }"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var body graphQLBody
	decode(t, rec, &body)
	assert.Equal(t, "Mutation", body.Data["__typename"])
	require.Len(t, runner.settings, 1)
	assert.Equal(t, "42", runner.settings[0]["jwt.claims.user_id"])
}

func TestGraphQLBadRequests(t *testing.T) {
	e := newGraphQLEcho(t, nil, &fakeRunner{}, "", "")

	rec := postGraphQL(e, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var httpErr errs.HTTPError
	decode(t, rec, &httpErr)
	require.Len(t, httpErr.Errors, 1)
	assert.Equal(t, "query", httpErr.Errors[0].Field)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/graphql?query=%7BnodeId%7D&variables=nope", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	decode(t, rec, &httpErr)
	require.Len(t, httpErr.Errors, 1)
	assert.Equal(t, "variables", httpErr.Errors[0].Field)

	rec = postGraphQL(e, `{"query":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGraphQLErrorsAreOK(t *testing.T) {
	e := newGraphQLEcho(t, nil, &fakeRunner{}, "", "")

	rec := postGraphQL(e, `{"query":"{ doesNotExist }"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body graphQLBody
	decode(t, rec, &body)
	require.NotEmpty(t, body.Errors)
	assert.Nil(t, body.Data)
}

func TestGraphQLTransactionFailures(t *testing.T) {
	e := newGraphQLEcho(t, nil, &fakeRunner{err: errors.New("connection refused")}, "", "")
	rec := postGraphQL(e, `{"query":"{ nodeId }"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	e = newGraphQLEcho(t, nil, &fakeRunner{afterErr: errors.New("commit failed")}, "", "")
	rec = postGraphQL(e, `{"query":"{ nodeId }"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body graphQLBody
	decode(t, rec, &body)
	assert.Nil(t, body.Data)
	require.Len(t, body.Errors, 1)
	assert.Contains(t, body.Errors[0]["message"], "could not be committed")
}

func TestGraphQLNotReady(t *testing.T) {
	s := testServer(t, nil)
	e := newEcho(s)
	e.POST("/graphql", NewGraphQLHandler(s).Endpoint())

	rec := postGraphQL(e, `{"query":"{ nodeId }"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSchemaFile(t *testing.T) {
	e := newGraphQLEcho(t, nil, &fakeRunner{}, "", "")

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/graphql/schema.graphql", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "attachment; filename=schema.graphql", rec.Header().Get("Content-Disposition"))
	assert.Contains(t, rec.Body.String(), "interface Node")
	assert.Contains(t, rec.Body.String(), "allUsers")
}

func TestGraphiQL(t *testing.T) {
	e := newGraphQLEcho(t, nil, &fakeRunner{}, "", "")

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/graphiql", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/html")
	assert.Contains(t, strings.ToLower(rec.Body.String()), "graphiql")
	assert.Contains(t, rec.Body.String(), "/graphql")
}
