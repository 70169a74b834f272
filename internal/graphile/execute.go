package graphile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// beginner is implemented by pgx.Tx; each root field then runs in its own
// savepoint so one failing statement does not abort the others.
type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type execution struct {
	ctx    context.Context
	q      Querier
	schema *Schema
	opts   Options
	vars   map[string]any
	errors gqlerror.List
}

func (x *execution) addError(err error, path ast.Path) {
	gerr := toGQLError(err, x.opts.ShowErrorDetail)
	gerr.Path = path
	x.errors = append(x.errors, gerr)
}

func childPath(path ast.Path, elem ast.PathElement) ast.Path {
	out := make(ast.Path, len(path), len(path)+1)
	copy(out, path)
	return append(out, elem)
}

func (x *execution) included(dirs ast.DirectiveList) bool {
	if d := dirs.ForName("skip"); d != nil {
		if skip, _ := d.ArgumentMap(x.vars)["if"].(bool); skip {
			return false
		}
	}
	if d := dirs.ForName("include"); d != nil {
		if include, _ := d.ArgumentMap(x.vars)["if"].(bool); !include {
			return false
		}
	}
	return true
}

func applies(condition, typeName string, isNode bool) bool {
	return condition == "" || condition == typeName || (isNode && condition == "Node")
}

// collect flattens fragments for an object of typeName, honouring
// @skip/@include and merging fields that share a response key.
func (x *execution) collect(set ast.SelectionSet, typeName string, isNode bool) []*ast.Field {
	var fields []*ast.Field
	index := map[string]int{}

	var walk func(ast.SelectionSet)
	walk = func(set ast.SelectionSet) {
		for _, sel := range set {
			switch sel := sel.(type) {
			case *ast.Field:
				if !x.included(sel.Directives) {
					continue
				}
				if i, ok := index[sel.Alias]; ok {
					merged := *fields[i]
					merged.SelectionSet = append(append(ast.SelectionSet{}, merged.SelectionSet...), sel.SelectionSet...)
					fields[i] = &merged
					continue
				}
				index[sel.Alias] = len(fields)
				fields = append(fields, sel)
			case *ast.InlineFragment:
				if x.included(sel.Directives) && applies(sel.TypeCondition, typeName, isNode) {
					walk(sel.SelectionSet)
				}
			case *ast.FragmentSpread:
				if sel.Definition != nil && x.included(sel.Directives) &&
					applies(sel.Definition.TypeCondition, typeName, isNode) {
					walk(sel.Definition.SelectionSet)
				}
			}
		}
	}
	walk(set)

	return fields
}

func (x *execution) resolveQuery(set ast.SelectionSet, path ast.Path) *orderedMap {
	out := newOrderedMap()
	for _, f := range x.collect(set, "Query", true) {
		fp := childPath(path, ast.PathName(f.Alias))
		switch f.Name {
		case "__typename":
			out.set(f.Alias, "Query")
		case "__schema":
			out.set(f.Alias, x.introspectSchema(f.SelectionSet))
		case "__type":
			name, _ := f.ArgumentMap(x.vars)["name"].(string)
			out.set(f.Alias, x.introspectTypeByName(name, f.SelectionSet))
		case "query":
			out.set(f.Alias, x.resolveQuery(f.SelectionSet, fp))
		case "nodeId":
			out.set(f.Alias, QueryNodeID)
		case "node":
			out.set(f.Alias, x.resolveNode(f, fp))
		default:
			rf, ok := x.schema.query[f.Name]
			if !ok {
				x.addError(fmt.Errorf("no resolver for Query.%s", f.Name), fp)
				out.set(f.Alias, nil)
				continue
			}
			out.set(f.Alias, x.resolveRoot(f, rf, fp))
		}
	}
	return out
}

func (x *execution) resolveMutation(set ast.SelectionSet) *orderedMap {
	out := newOrderedMap()
	for _, f := range x.collect(set, "Mutation", false) {
		fp := ast.Path{ast.PathName(f.Alias)}
		if f.Name == "__typename" {
			out.set(f.Alias, "Mutation")
			continue
		}
		rf, ok := x.schema.mutation[f.Name]
		if !ok {
			x.addError(fmt.Errorf("no resolver for Mutation.%s", f.Name), fp)
			out.set(f.Alias, nil)
			continue
		}
		out.set(f.Alias, x.resolveRoot(f, rf, fp))
	}
	return out
}

// savepoint runs fn in a nested transaction when the querier supports it.
func (x *execution) savepoint(fn func(q Querier) error) error {
	if b, ok := x.q.(beginner); ok {
		return pgx.BeginFunc(x.ctx, b, func(tx pgx.Tx) error {
			return fn(tx)
		})
	}
	return fn(x.q)
}

func (x *execution) resolveRoot(f *ast.Field, rf rootField, path ast.Path) any {
	var result any
	err := x.savepoint(func(q Querier) error {
		var err error
		result, err = x.resolveTableField(q, f, rf, path)
		return err
	})
	if err != nil {
		x.addError(err, path)
		return nil
	}
	return result
}

func (x *execution) resolveTableField(q Querier, f *ast.Field, rf rootField, path ast.Path) (any, error) {
	t := rf.table
	args := f.ArgumentMap(x.vars)

	switch rf.kind {
	case rootAll:
		return x.resolveConnection(q, t, f, args, path)

	case rootByPK:
		pk, err := t.pkFromArgs(args)
		if err != nil {
			return nil, err
		}
		sql, sqlArgs, err := rowSQL(t, pk)
		if err != nil {
			return nil, err
		}
		return x.fetchAndProject(q, t, f, path, sql, sqlArgs)

	case rootByNodeID:
		id, _ := args["nodeId"].(string)
		pk, ok, err := x.pkFromNodeID(t, id)
		if err != nil || !ok {
			return nil, err
		}
		sql, sqlArgs, err := rowSQL(t, pk)
		if err != nil {
			return nil, err
		}
		return x.fetchAndProject(q, t, f, path, sql, sqlArgs)

	case rootCreate:
		input, _ := args["input"].(map[string]any)
		values, err := t.columnValues(input)
		if err != nil {
			return nil, err
		}
		sql, sqlArgs, err := insertSQL(t, values)
		if err != nil {
			return nil, err
		}
		return x.mutateAndProject(q, t, f, path, sql, sqlArgs)

	case rootUpdate:
		pk, err := t.pkFromArgs(args)
		if err != nil {
			return nil, err
		}
		patchArg, _ := args["patch"].(map[string]any)
		patch, err := t.columnValues(patchArg)
		if err != nil {
			return nil, err
		}
		if len(patch) == 0 {
			sql, sqlArgs, err := rowSQL(t, pk)
			if err != nil {
				return nil, err
			}
			return x.mutateAndProject(q, t, f, path, sql, sqlArgs)
		}
		sql, sqlArgs, err := updateSQL(t, pk, patch)
		if err != nil {
			return nil, err
		}
		return x.mutateAndProject(q, t, f, path, sql, sqlArgs)

	case rootDelete:
		pk, err := t.pkFromArgs(args)
		if err != nil {
			return nil, err
		}
		sql, sqlArgs, err := deleteSQL(t, pk)
		if err != nil {
			return nil, err
		}
		return x.mutateAndProject(q, t, f, path, sql, sqlArgs)
	}

	return nil, fmt.Errorf("unknown root field kind %d", rf.kind)
}

func (x *execution) fetchAndProject(q Querier, t *tableInfo, f *ast.Field, path ast.Path, sql string, args []any) (any, error) {
	row, err := fetchRow(x.ctx, q, sql, args)
	if err != nil || row == nil {
		return nil, err
	}
	return x.projectRow(t, row, f.SelectionSet, path), nil
}

// mutateAndProject is fetchAndProject where no matching row is an error.
func (x *execution) mutateAndProject(q Querier, t *tableInfo, f *ast.Field, path ast.Path, sql string, args []any) (any, error) {
	row, err := fetchRow(x.ctx, q, sql, args)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, userErrorf("NOT_FOUND",
			"No values were affected in collection '%s' because no values were found matching these criteria.",
			t.Table.Name)
	}
	return x.projectRow(t, row, f.SelectionSet, path), nil
}

func decodeJSON(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

// fetchRow runs a statement returning one JSON object. No rows is nil.
func fetchRow(ctx context.Context, q Querier, sql string, args []any) (map[string]any, error) {
	var raw []byte
	if err := q.QueryRow(ctx, sql, args...).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var row map[string]any
	if err := decodeJSON(raw, &row); err != nil {
		return nil, fmt.Errorf("decoding row: %w", err)
	}
	return row, nil
}

func fetchRows(ctx context.Context, q Querier, sql string, args []any) ([]map[string]any, error) {
	var raw []byte
	if err := q.QueryRow(ctx, sql, args...).Scan(&raw); err != nil {
		return nil, err
	}
	var rows []map[string]any
	if err := decodeJSON(raw, &rows); err != nil {
		return nil, fmt.Errorf("decoding rows: %w", err)
	}
	return rows, nil
}

func fetchConnection(ctx context.Context, q Querier, sql string, args []any) ([]map[string]any, int64, error) {
	var raw []byte
	if err := q.QueryRow(ctx, sql, args...).Scan(&raw); err != nil {
		return nil, 0, err
	}
	var conn struct {
		Rows  []map[string]any `json:"rows"`
		Total int64            `json:"total"`
	}
	if err := decodeJSON(raw, &conn); err != nil {
		return nil, 0, fmt.Errorf("decoding connection: %w", err)
	}
	return conn.Rows, conn.Total, nil
}

func (x *execution) resolveConnection(q Querier, t *tableInfo, f *ast.Field, args map[string]any, path ast.Path) (any, error) {
	fields := x.collect(f.SelectionSet, t.Names.Connection, false)

	var wantRows, wantCount, wantPageInfo bool
	for _, cf := range fields {
		switch cf.Name {
		case "nodes":
			wantRows = true
		case "totalCount":
			wantCount = true
		case "pageInfo":
			wantPageInfo = true
		}
	}

	where, err := t.condition(args["condition"])
	if err != nil {
		return nil, err
	}
	order, err := t.ordering(args["orderBy"])
	if err != nil {
		return nil, err
	}
	limit, err := pageArg(args["first"], uint64(x.opts.DefaultPageSize), uint64(x.opts.MaxPageSize), "first")
	if err != nil {
		return nil, err
	}
	offset, err := pageArg(args["offset"], 0, 0, "offset")
	if err != nil {
		return nil, err
	}

	// One extra row tells whether another page exists.
	page := listQuery{where: where, order: order, limit: limit + 1, offset: offset}
	withRows := wantRows || wantPageInfo

	var rows []map[string]any
	var total int64
	switch {
	case wantCount:
		sql, sqlArgs, err := connectionSQL(t, page, withRows)
		if err != nil {
			return nil, err
		}
		if rows, total, err = fetchConnection(x.ctx, q, sql, sqlArgs); err != nil {
			return nil, err
		}
	case withRows:
		sql, sqlArgs, err := listSQL(t, page)
		if err != nil {
			return nil, err
		}
		if rows, err = fetchRows(x.ctx, q, sql, sqlArgs); err != nil {
			return nil, err
		}
	}

	hasNext := false
	if uint64(len(rows)) > limit {
		hasNext = true
		rows = rows[:limit]
	}

	out := newOrderedMap()
	for _, cf := range fields {
		fp := childPath(path, ast.PathName(cf.Alias))
		switch cf.Name {
		case "__typename":
			out.set(cf.Alias, t.Names.Connection)
		case "nodes":
			nodes := make([]any, len(rows))
			for i, row := range rows {
				nodes[i] = x.projectRow(t, row, cf.SelectionSet, childPath(fp, ast.PathIndex(i)))
			}
			out.set(cf.Alias, nodes)
		case "totalCount":
			out.set(cf.Alias, total)
		case "pageInfo":
			info := newOrderedMap()
			for _, pf := range x.collect(cf.SelectionSet, "PageInfo", false) {
				switch pf.Name {
				case "__typename":
					info.set(pf.Alias, "PageInfo")
				case "hasNextPage":
					info.set(pf.Alias, hasNext)
				case "hasPreviousPage":
					info.set(pf.Alias, offset > 0)
				}
			}
			out.set(cf.Alias, info)
		}
	}
	return out, nil
}

func pageArg(v any, def, ceiling uint64, name string) (uint64, error) {
	if v == nil {
		return def, nil
	}
	n, err := toInt64(v)
	if err != nil {
		return 0, userErrorf("BAD_USER_INPUT", "%s: %v", name, err)
	}
	if n < 0 {
		return 0, userErrorf("BAD_USER_INPUT", "%s must not be negative", name)
	}
	if ceiling > 0 && uint64(n) > ceiling {
		return ceiling, nil
	}
	return uint64(n), nil
}

func (x *execution) projectRow(t *tableInfo, row map[string]any, set ast.SelectionSet, path ast.Path) any {
	if row == nil {
		return nil
	}
	out := newOrderedMap()
	for _, f := range x.collect(set, t.Names.Type, t.hasPK()) {
		switch f.Name {
		case "__typename":
			out.set(f.Alias, t.Names.Type)
		case "nodeId":
			id, err := t.nodeID(row)
			if err != nil {
				x.addError(err, childPath(path, ast.PathName(f.Alias)))
			}
			out.set(f.Alias, id)
		default:
			fi, ok := t.byField[f.Name]
			if !ok {
				out.set(f.Alias, nil)
				continue
			}
			out.set(f.Alias, outputValue(fi, row[fi.Column.Name]))
		}
	}
	return out
}

func (x *execution) resolveNode(f *ast.Field, path ast.Path) any {
	id, _ := f.ArgumentMap(x.vars)["nodeId"].(string)
	if id == QueryNodeID {
		return x.resolveQuery(f.SelectionSet, path)
	}

	typeName, keys, err := DecodeNodeID(id)
	if err != nil {
		x.addError(userErrorf("BAD_USER_INPUT", "%v", err), path)
		return nil
	}
	t, ok := x.schema.byPlural[typeName]
	if !ok || !t.hasPK() || len(keys) != len(t.Table.PrimaryKey) {
		return nil
	}
	pk, err := t.pkFromValues(keys)
	if err != nil {
		x.addError(err, path)
		return nil
	}

	var result any
	err = x.savepoint(func(q Querier) error {
		sql, sqlArgs, err := rowSQL(t, pk)
		if err != nil {
			return err
		}
		result, err = x.fetchAndProject(q, t, f, path, sql, sqlArgs)
		return err
	})
	if err != nil {
		x.addError(err, path)
		return nil
	}
	return result
}

func (x *execution) pkFromNodeID(t *tableInfo, id string) (columnValues, bool, error) {
	typeName, keys, err := DecodeNodeID(id)
	if err != nil {
		return nil, false, userErrorf("BAD_USER_INPUT", "%v", err)
	}
	if typeName != t.Names.Plural || len(keys) != len(t.Table.PrimaryKey) {
		return nil, false, nil
	}
	pk, err := t.pkFromValues(keys)
	return pk, err == nil, err
}

func (t *tableInfo) nodeID(row map[string]any) (string, error) {
	keys := make([]any, len(t.Table.PrimaryKey))
	for i, col := range t.Table.PrimaryKey {
		keys[i] = row[col]
	}
	return EncodeNodeID(t.Names.Plural, keys...)
}

func (t *tableInfo) pkFromValues(keys []any) (columnValues, error) {
	pk := columnValues{}
	for i, col := range t.Table.PrimaryKey {
		v, err := sqlValue(t.byColumn[col].Column, keys[i])
		if err != nil {
			return nil, userErrorf("BAD_USER_INPUT", "%s: %v", t.byColumn[col].Name, err)
		}
		pk[quoteIdent(col)] = v
	}
	return pk, nil
}

func (t *tableInfo) pkFromArgs(args map[string]any) (columnValues, error) {
	keys := make([]any, len(t.Table.PrimaryKey))
	for i, col := range t.Table.PrimaryKey {
		keys[i] = args[t.byColumn[col].Name]
	}
	return t.pkFromValues(keys)
}

// columnValues converts an input object keyed by field name. Fields left
// out are left out, explicit nulls become NULL.
func (t *tableInfo) columnValues(input map[string]any) (columnValues, error) {
	values := columnValues{}
	for name, v := range input {
		f, ok := t.byField[name]
		if !ok {
			return nil, userErrorf("BAD_USER_INPUT", "unknown field %q", name)
		}
		sv, err := sqlValue(f.Column, v)
		if err != nil {
			return nil, userErrorf("BAD_USER_INPUT", "%s: %v", name, err)
		}
		values[quoteIdent(f.Column.Name)] = sv
	}
	return values, nil
}

func (t *tableInfo) condition(arg any) (columnValues, error) {
	input, ok := arg.(map[string]any)
	if !ok || len(input) == 0 {
		return nil, nil
	}
	return t.columnValues(input)
}

func (t *tableInfo) ordering(arg any) ([]orderTerm, error) {
	var values []any
	switch v := arg.(type) {
	case nil:
		values = []any{t.defaultOrder()}
	case string:
		values = []any{v}
	case []any:
		values = v
	}

	var terms []orderTerm
	seen := map[string]bool{}
	for _, v := range values {
		name, _ := v.(string)
		spec, ok := t.orderBy[name]
		if !ok {
			return nil, userErrorf("BAD_USER_INPUT", "unknown ordering %q", name)
		}
		for _, term := range spec {
			if !seen[term.column] {
				seen[term.column] = true
				terms = append(terms, term)
			}
		}
	}
	return terms, nil
}
