package graphile

import (
	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func (t *tableInfo) ident() string {
	return pgx.Identifier{t.Table.Schema, t.Table.Name}.Sanitize()
}

// columnValues is keyed by quoted column name.
type columnValues = sq.Eq

type listQuery struct {
	where  columnValues
	order  []orderTerm
	limit  uint64
	offset uint64
}

// page selects the rows of q with ? placeholders, the caller decides the
// final placeholder format.
func (t *tableInfo) page(q listQuery) sq.SelectBuilder {
	b := sq.Select("*").From(t.ident())
	if len(q.where) > 0 {
		b = b.Where(q.where)
	}
	for _, o := range q.order {
		dir := " asc"
		if o.desc {
			dir = " desc"
		}
		b = b.OrderBy(quoteIdent(o.column) + dir)
	}
	b = b.Limit(q.limit)
	if q.offset > 0 {
		b = b.Offset(q.offset)
	}
	return b
}

func (t *tableInfo) rowsJSON(q listQuery) sq.SelectBuilder {
	return sq.Select("coalesce(json_agg(to_json(t)), '[]'::json)").FromSelect(t.page(q), "t")
}

// listSQL selects a page of rows aggregated into one JSON array.
func listSQL(t *tableInfo, q listQuery) (string, []any, error) {
	return t.rowsJSON(q).PlaceholderFormat(sq.Dollar).ToSql()
}

// connectionSQL selects {"rows": [...], "total": n} in one statement so
// the page and its count come from the same snapshot. Rows are left out
// when withRows is false.
func connectionSQL(t *tableInfo, q listQuery, withRows bool) (string, []any, error) {
	count := sq.Select("count(*)").From(t.ident())
	if len(q.where) > 0 {
		count = count.Where(q.where)
	}
	countSQL, args, err := count.ToSql()
	if err != nil {
		return "", nil, err
	}

	sql := "SELECT json_build_object('total', (" + countSQL + "))"
	if withRows {
		rowsSQL, rowArgs, err := t.rowsJSON(q).ToSql()
		if err != nil {
			return "", nil, err
		}
		sql = "SELECT json_build_object('rows', (" + rowsSQL + "), 'total', (" + countSQL + "))"
		args = append(rowArgs, args...)
	}

	sql, err = sq.Dollar.ReplacePlaceholders(sql)
	if err != nil {
		return "", nil, err
	}
	return sql, args, nil
}

// rowSQL selects one row by primary key as JSON.
func rowSQL(t *tableInfo, pk columnValues) (string, []any, error) {
	inner := psql.Select("*").From(t.ident()).Where(pk)
	return psql.Select("to_json(t)").FromSelect(inner, "t").ToSql()
}

func returningJSON(sql string) string {
	return "with t as (" + sql + ") select to_json(t) from t"
}

func insertSQL(t *tableInfo, values columnValues) (string, []any, error) {
	if len(values) == 0 {
		return returningJSON("insert into " + t.ident() + " default values returning *"), nil, nil
	}
	sql, args, err := psql.Insert(t.ident()).SetMap(values).Suffix("returning *").ToSql()
	if err != nil {
		return "", nil, err
	}
	return returningJSON(sql), args, nil
}

func updateSQL(t *tableInfo, pk, patch columnValues) (string, []any, error) {
	sql, args, err := psql.Update(t.ident()).SetMap(patch).Where(pk).Suffix("returning *").ToSql()
	if err != nil {
		return "", nil, err
	}
	return returningJSON(sql), args, nil
}

func deleteSQL(t *tableInfo, pk columnValues) (string, []any, error) {
	sql, args, err := psql.Delete(t.ident()).Where(pk).Suffix("returning *").ToSql()
	if err != nil {
		return "", nil, err
	}
	return returningJSON(sql), args, nil
}
