package graphile

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Querier is the part of a pool or transaction the engine needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Catalog is the introspected shape of the exposed schemas.
type Catalog struct {
	Tables []*Table `json:"tables"`
}

// Table is a table, view or materialized view.
type Table struct {
	Schema     string    `json:"schema"`
	Name       string    `json:"name"`
	Kind       string    `json:"kind"`
	Comment    string    `json:"comment"`
	Columns    []*Column `json:"columns"`
	PrimaryKey []string  `json:"primary_key"`
}

// Column is a table column. Type is the Postgres type name; arrays carry
// the leading underscore Postgres gives them (_text).
type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	NotNull    bool   `json:"not_null"`
	HasDefault bool   `json:"has_default"`
	Num        int    `json:"num"`
	Comment    string `json:"comment"`
}

// Insertable reports whether rows can be created, updated and deleted.
func (t *Table) Insertable() bool {
	return t.Kind == "r" || t.Kind == "p"
}

// Omitted reports whether the table comment carries the @omit tag.
func (t *Table) Omitted() bool {
	for _, line := range strings.Split(t.Comment, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "@omit") {
			return true
		}
	}
	return false
}

// Column looks a column up by name.
func (t *Table) Column(name string) *Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// IsArray reports whether the column holds a Postgres array.
func (c *Column) IsArray() bool {
	return strings.HasPrefix(c.Type, "_")
}

// ElementType is the type of the column, or of its elements for arrays.
func (c *Column) ElementType() string {
	return strings.TrimPrefix(c.Type, "_")
}

const introspectionQuery = `
select coalesce(json_agg(t order by t.schema, t.name), '[]'::json)
from (
  select
    n.nspname as schema,
    c.relname as name,
    c.relkind::text as kind,
    coalesce(obj_description(c.oid, 'pg_class'), '') as comment,
    (
      select coalesce(json_agg(json_build_object(
        'name', a.attname,
        'type', ty.typname,
        'not_null', a.attnotnull,
        'has_default', a.atthasdef or a.attidentity <> '' or a.attgenerated <> '',
        'num', a.attnum,
        'comment', coalesce(col_description(c.oid, a.attnum), '')
      ) order by a.attnum), '[]'::json)
      from pg_catalog.pg_attribute a
      join pg_catalog.pg_type ty on ty.oid = a.atttypid
      where a.attrelid = c.oid and a.attnum > 0 and not a.attisdropped
    ) as columns,
    (
      select coalesce(json_agg(a.attname order by k.ord), '[]'::json)
      from pg_catalog.pg_index i
      cross join lateral unnest(i.indkey) with ordinality as k(attnum, ord)
      join pg_catalog.pg_attribute a on a.attrelid = c.oid and a.attnum = k.attnum
      where i.indrelid = c.oid and i.indisprimary
    ) as primary_key
  from pg_catalog.pg_class c
  join pg_catalog.pg_namespace n on n.oid = c.relnamespace
  where n.nspname = any($1) and c.relkind in ('r', 'p', 'v', 'm')
) t`

// Introspect reads the tables of the given schemas in one round trip.
//
// Tables without columns and tables tagged @omit are left out.
func Introspect(ctx context.Context, q Querier, schemas []string) (*Catalog, error) {
	var raw []byte
	if err := q.QueryRow(ctx, introspectionQuery, schemas).Scan(&raw); err != nil {
		return nil, fmt.Errorf("introspecting schemas %v: %w", schemas, err)
	}

	var tables []*Table
	if err := json.Unmarshal(raw, &tables); err != nil {
		return nil, fmt.Errorf("decoding introspection result: %w", err)
	}

	cat := &Catalog{}
	for _, t := range tables {
		if len(t.Columns) == 0 || t.Omitted() {
			continue
		}
		cat.Tables = append(cat.Tables, t)
	}

	sort.SliceStable(cat.Tables, func(i, j int) bool {
		if cat.Tables[i].Schema != cat.Tables[j].Schema {
			return cat.Tables[i].Schema < cat.Tables[j].Schema
		}
		return cat.Tables[i].Name < cat.Tables[j].Name
	})

	return cat, nil
}
