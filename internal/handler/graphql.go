package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/deppfellow/graphile-starter/internal/errs"
	"github.com/deppfellow/graphile-starter/internal/graphile"
	"github.com/deppfellow/graphile-starter/internal/middleware"
	"github.com/deppfellow/graphile-starter/internal/server"
	"github.com/deppfellow/graphile-starter/internal/validation"
)

// Transaction settings the database functions read.
const (
	settingRole   = "role"
	settingUserID = "jwt.claims.user_id"
	settingSub    = "jwt.claims.sub"
)

// SettingsRunner runs fn in a transaction carrying settings.
// *database.Database implements it.
type SettingsRunner interface {
	WithSettings(ctx context.Context, settings map[string]string, fn func(tx pgx.Tx) error) error
}

// GraphQLRequest is accepted as a JSON body and, for GET, as query
// parameters with variables JSON encoded.
type GraphQLRequest struct {
	Query         string         `json:"query" query:"query" validate:"required"`
	OperationName string         `json:"operationName" query:"operationName"`
	Variables     map[string]any `json:"variables"`
	RawVariables  string         `json:"-" query:"variables"`
}

func (r *GraphQLRequest) Validate() error {
	if err := validation.Struct(r); err != nil {
		return err
	}
	if r.RawVariables != "" && r.Variables == nil {
		if err := json.Unmarshal([]byte(r.RawVariables), &r.Variables); err != nil {
			return validation.CustomValidationErrors{{Field: "variables", Message: "must be a JSON object"}}
		}
	}
	return nil
}

type GraphQLHandler struct {
	Handler
	engine *graphile.Engine
	db     SettingsRunner
}

func NewGraphQLHandler(s *server.Server) *GraphQLHandler {
	h := &GraphQLHandler{
		Handler: NewHandler(s),
		engine:  s.GraphQL,
	}
	if s.DB != nil {
		h.db = s.DB
	}
	return h
}

// pgSettings maps the request's visitor onto transaction settings.
func (h *GraphQLHandler) pgSettings(c echo.Context) map[string]string {
	settings := map[string]string{}
	if role := h.server.Config.Database.VisitorRole; role != "" {
		settings[settingRole] = role
	}

	userID := middleware.GetUserID(c)
	if userID == "" {
		return settings
	}
	if method, _ := c.Get(middleware.AuthMethodKey).(string); method == middleware.AuthMethodBearer {
		settings[settingSub] = userID
	} else {
		settings[settingUserID] = userID
	}
	return settings
}

// Execute answers 200 whenever the request reached the engine, GraphQL
// errors travel in the body.
func (h *GraphQLHandler) Execute(c echo.Context, req *GraphQLRequest) (*graphile.Response, error) {
	c.Set(middleware.GraphQLOperationKey, req.OperationName)

	if h.engine == nil || h.db == nil {
		return nil, errs.NewServiceUnavailableError("GraphQL is not ready")
	}

	gqlReq := graphile.Request{
		Query:         req.Query,
		OperationName: req.OperationName,
		Variables:     req.Variables,
		// Cookies ride along on cross-site GET navigations.
		QueryOnly: c.Request().Method != http.MethodPost,
	}
	if gqlReq.QueryOnly {
		if op, ok := h.engine.OperationType(gqlReq); ok && op == ast.Mutation {
			c.Response().Header().Set(echo.HeaderAllow, http.MethodPost)
			return nil, errs.NewMethodNotAllowedError("Mutations can only be sent with POST")
		}
	}

	ctx := c.Request().Context()
	var resp *graphile.Response

	err := h.db.WithSettings(ctx, h.pgSettings(c), func(tx pgx.Tx) error {
		resp = h.engine.Execute(ctx, tx, gqlReq)
		return nil
	})

	if err != nil {
		if resp == nil {
			return nil, err
		}
		// The statements ran but did not commit.
		middleware.GetLogger(c).Error().Err(err).Msg("graphql transaction failed")
		return &graphile.Response{
			Errors: append(resp.Errors, gqlerror.Errorf("the transaction could not be committed")),
		}, nil
	}

	return resp, nil
}

func (h *GraphQLHandler) Endpoint() echo.HandlerFunc {
	return Handle[GraphQLRequest](h.Handler, h.Execute, http.StatusOK)
}

type SchemaRequest struct{}

func (r *SchemaRequest) Validate() error { return nil }

// ExportSchema downloads the SDL currently served.
func (h *GraphQLHandler) ExportSchema(c echo.Context, _ *SchemaRequest) ([]byte, error) {
	if h.engine == nil || h.engine.Schema() == nil {
		return nil, errs.NewServiceUnavailableError("GraphQL is not ready")
	}
	return []byte(h.engine.Schema().SDL), nil
}

func (h *GraphQLHandler) SchemaFile() echo.HandlerFunc {
	return HandleFile[SchemaRequest](h.Handler, h.ExportSchema, http.StatusOK, "schema.graphql", "application/graphql; charset=utf-8")
}

// GraphiQL serves the IDE page pointed at the endpoint.
func (h *GraphQLHandler) GraphiQL() echo.HandlerFunc {
	page := playground.Handler("GraphiQL", h.server.Config.GraphQL.Path)
	return func(c echo.Context) error {
		c.Response().Header().Set("Cache-Control", "no-cache")
		page.ServeHTTP(c.Response(), c.Request())
		return nil
	}
}
