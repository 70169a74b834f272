package graphile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usersInfo() *tableInfo {
	return newTableInfo(usersTable())
}

func TestListSQL(t *testing.T) {
	users := usersInfo()

	sql, args, err := listSQL(users, listQuery{
		order: []orderTerm{{column: "id"}},
		limit: 11,
	})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT coalesce(json_agg(to_json(t)), '[]'::json) FROM (SELECT * FROM "app_public"."users" ORDER BY "id" asc LIMIT 11) AS t`,
		sql)
	assert.Empty(t, args)
}

func TestListSQLWithConditionAndOffset(t *testing.T) {
	users := usersInfo()

	sql, args, err := listSQL(users, listQuery{
		where:  columnValues{`"username"`: "alice"},
		order:  []orderTerm{{column: "created_at", desc: true}},
		limit:  5,
		offset: 10,
	})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT coalesce(json_agg(to_json(t)), '[]'::json) FROM (SELECT * FROM "app_public"."users" WHERE "username" = $1 ORDER BY "created_at" desc LIMIT 5 OFFSET 10) AS t`,
		sql)
	assert.Equal(t, []any{"alice"}, args)
}

func TestConnectionSQL(t *testing.T) {
	users := usersInfo()
	q := listQuery{
		where: columnValues{`"username"`: "alice"},
		order: []orderTerm{{column: "id"}},
		limit: 3,
	}

	sql, args, err := connectionSQL(users, q, true)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT json_build_object('rows', (SELECT coalesce(json_agg(to_json(t)), '[]'::json) FROM (SELECT * FROM "app_public"."users" WHERE "username" = $1 ORDER BY "id" asc LIMIT 3) AS t), `+
			`'total', (SELECT count(*) FROM "app_public"."users" WHERE "username" = $2))`,
		sql)
	assert.Equal(t, []any{"alice", "alice"}, args)

	sql, args, err = connectionSQL(users, listQuery{limit: 3}, false)
	require.NoError(t, err)
	assert.Equal(t, `SELECT json_build_object('total', (SELECT count(*) FROM "app_public"."users"))`, sql)
	assert.Empty(t, args)
}

func TestRowSQL(t *testing.T) {
	sql, args, err := rowSQL(usersInfo(), columnValues{`"id"`: int64(7)})
	require.NoError(t, err)
	assert.Equal(t, `SELECT to_json(t) FROM (SELECT * FROM "app_public"."users" WHERE "id" = $1) AS t`, sql)
	assert.Equal(t, []any{int64(7)}, args)
}

func TestInsertSQL(t *testing.T) {
	users := usersInfo()

	sql, args, err := insertSQL(users, columnValues{`"username"`: "alice", `"github_id"`: int64(1)})
	require.NoError(t, err)
	assert.Equal(t,
		`with t as (INSERT INTO "app_public"."users" ("github_id","username") VALUES ($1,$2) returning *) select to_json(t) from t`,
		sql)
	assert.Equal(t, []any{int64(1), "alice"}, args)

	sql, args, err = insertSQL(users, columnValues{})
	require.NoError(t, err)
	assert.Equal(t, `with t as (insert into "app_public"."users" default values returning *) select to_json(t) from t`, sql)
	assert.Empty(t, args)
}

func TestUpdateSQL(t *testing.T) {
	sql, args, err := updateSQL(usersInfo(), columnValues{`"id"`: int64(7)}, columnValues{`"username"`: "bob"})
	require.NoError(t, err)
	assert.Equal(t,
		`with t as (UPDATE "app_public"."users" SET "username" = $1 WHERE "id" = $2 returning *) select to_json(t) from t`,
		sql)
	assert.Equal(t, []any{"bob", int64(7)}, args)
}

func TestDeleteSQL(t *testing.T) {
	sql, args, err := deleteSQL(usersInfo(), columnValues{`"id"`: int64(7)})
	require.NoError(t, err)
	assert.Equal(t, `with t as (DELETE FROM "app_public"."users" WHERE "id" = $1 returning *) select to_json(t) from t`, sql)
	assert.Equal(t, []any{int64(7)}, args)
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"user"`, quoteIdent("user"))
	assert.Equal(t, `"we""ird"`, quoteIdent(`we"ird`))
}
