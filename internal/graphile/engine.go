// Package graphile serves a GraphQL API generated from a Postgres catalog.
//
// Introspect reads tables and columns, Build turns them into an SDL
// schema with connection, row and mutation fields, and Engine executes
// requests by compiling every table field into one SQL statement that
// returns JSON. Requests run on whatever Querier the caller hands in,
// normally a transaction carrying the visitor role and jwt claims.
package graphile

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"
)

// Request is a GraphQL request as posted by clients.
type Request struct {
	Query         string         `json:"query" query:"query"`
	OperationName string         `json:"operationName,omitempty" query:"operationName"`
	Variables     map[string]any `json:"variables,omitempty"`

	// QueryOnly refuses mutations, set for requests that arrive over GET.
	QueryOnly bool `json:"-"`
}

// Response is the GraphQL response envelope.
type Response struct {
	Data   any           `json:"data"`
	Errors gqlerror.List `json:"errors,omitempty"`
}

// Options tune execution.
type Options struct {
	// MaxDepth rejects documents nested deeper than this, 0 disables it.
	MaxDepth int

	DefaultPageSize int
	MaxPageSize     int

	// ShowErrorDetail adds the raw database message to error extensions.
	ShowErrorDetail bool
}

// Engine executes requests against the current schema. The schema can be
// swapped while requests are in flight.
type Engine struct {
	schema atomic.Pointer[Schema]
	opts   Options
	log    *zerolog.Logger
}

// NewEngine returns an engine serving schema.
func NewEngine(schema *Schema, opts Options, log *zerolog.Logger) *Engine {
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = 100
	}
	if opts.MaxPageSize < opts.DefaultPageSize {
		opts.MaxPageSize = opts.DefaultPageSize
	}
	e := &Engine{opts: opts, log: log}
	e.schema.Store(schema)
	return e
}

// Load introspects schemas and builds the GraphQL schema for them.
func Load(ctx context.Context, q Querier, schemas []string) (*Schema, error) {
	cat, err := Introspect(ctx, q, schemas)
	if err != nil {
		return nil, err
	}
	return Build(cat)
}

// Schema returns the schema currently served.
func (e *Engine) Schema() *Schema {
	return e.schema.Load()
}

// Swap replaces the served schema and reports whether its SDL changed.
func (e *Engine) Swap(s *Schema) bool {
	if old := e.schema.Load(); old != nil && old.SDL == s.SDL {
		return false
	}
	e.schema.Store(s)
	return true
}

// Reload re-introspects and swaps the schema when it changed.
func (e *Engine) Reload(ctx context.Context, q Querier, schemas []string) (bool, error) {
	s, err := Load(ctx, q, schemas)
	if err != nil {
		return false, err
	}
	return e.Swap(s), nil
}

// Watch reloads the schema every interval until ctx is done.
func (e *Engine) Watch(ctx context.Context, q Querier, schemas []string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changed, err := e.Reload(ctx, q, schemas)
			if err != nil {
				if ctx.Err() == nil {
					e.log.Warn().Err(err).Msg("graphql schema reload failed")
				}
				continue
			}
			if changed {
				e.log.Info().Strs("schemas", schemas).Msg("graphql schema changed, reloaded")
			}
		}
	}
}

// Execute runs one request. Errors are reported in the response, a
// failing field resolves to null without failing its siblings.
func (e *Engine) Execute(ctx context.Context, q Querier, req Request) *Response {
	schema := e.schema.Load()
	if schema == nil {
		return &Response{Errors: gqlerror.List{gqlerror.Errorf("schema is not ready")}}
	}

	doc, errs := gqlparser.LoadQuery(schema.AST, req.Query)
	if len(errs) > 0 {
		return &Response{Errors: errs}
	}

	op, err := selectOperation(doc, req.OperationName)
	if err != nil {
		return &Response{Errors: gqlerror.List{err}}
	}
	if req.QueryOnly && op.Operation == ast.Mutation {
		return &Response{Errors: gqlerror.List{mutationNotAllowed()}}
	}

	if e.opts.MaxDepth > 0 {
		if d := selectionDepth(op.SelectionSet); d > e.opts.MaxDepth {
			return &Response{Errors: gqlerror.List{
				gqlerror.Errorf("query depth %d exceeds the maximum of %d", d, e.opts.MaxDepth),
			}}
		}
	}

	vars, verr := validator.VariableValues(schema.AST, op, req.Variables)
	if verr != nil {
		var gerr *gqlerror.Error
		if !errors.As(verr, &gerr) {
			gerr = gqlerror.Errorf("%s", verr.Error())
		}
		return &Response{Errors: gqlerror.List{gerr}}
	}

	x := &execution{
		ctx:    ctx,
		q:      q,
		schema: schema,
		opts:   e.opts,
		vars:   vars,
	}

	var data any
	switch op.Operation {
	case ast.Mutation:
		data = x.resolveMutation(op.SelectionSet)
	default:
		data = x.resolveQuery(op.SelectionSet, nil)
	}

	return &Response{Data: data, Errors: x.errors}
}

// CodeMutationNotAllowed marks mutations refused on a query only request.
const CodeMutationNotAllowed = "MUTATION_NOT_ALLOWED"

func mutationNotAllowed() *gqlerror.Error {
	err := gqlerror.Errorf("Mutations can only be sent with POST.")
	err.Extensions = map[string]any{"code": CodeMutationNotAllowed}
	return err
}

// OperationType reports the kind of operation req selects. ok is false
// when the document does not parse or select exactly one operation.
func (e *Engine) OperationType(req Request) (op ast.Operation, ok bool) {
	schema := e.schema.Load()
	if schema == nil {
		return "", false
	}
	doc, errs := gqlparser.LoadQuery(schema.AST, req.Query)
	if len(errs) > 0 {
		return "", false
	}
	def, err := selectOperation(doc, req.OperationName)
	if err != nil {
		return "", false
	}
	return def.Operation, true
}

func selectOperation(doc *ast.QueryDocument, name string) (*ast.OperationDefinition, *gqlerror.Error) {
	if name != "" {
		op := doc.Operations.ForName(name)
		if op == nil {
			return nil, gqlerror.Errorf("Unknown operation named %q.", name)
		}
		return checkOperation(op)
	}
	switch len(doc.Operations) {
	case 0:
		return nil, gqlerror.Errorf("Must provide an operation.")
	case 1:
		return checkOperation(doc.Operations[0])
	default:
		return nil, gqlerror.Errorf("Must provide operation name if query contains multiple operations.")
	}
}

func checkOperation(op *ast.OperationDefinition) (*ast.OperationDefinition, *gqlerror.Error) {
	if op.Operation == ast.Subscription {
		return nil, gqlerror.Errorf("Subscriptions are not supported.")
	}
	return op, nil
}

// selectionDepth counts nested field levels. Introspection fields do
// not count, GraphiQL's own schema query is deep.
func selectionDepth(set ast.SelectionSet) int {
	deepest := 0
	for _, sel := range set {
		var d int
		switch sel := sel.(type) {
		case *ast.Field:
			if sel.Name == "__schema" || sel.Name == "__type" {
				d = 1
			} else {
				d = 1 + selectionDepth(sel.SelectionSet)
			}
		case *ast.InlineFragment:
			d = selectionDepth(sel.SelectionSet)
		case *ast.FragmentSpread:
			if sel.Definition != nil {
				d = selectionDepth(sel.Definition.SelectionSet)
			}
		}
		deepest = max(deepest, d)
	}
	return deepest
}

// String renders a short description for logs.
func (r Request) String() string {
	if r.OperationName != "" {
		return fmt.Sprintf("operation %s", r.OperationName)
	}
	return "anonymous operation"
}
