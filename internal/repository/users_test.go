package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deppfellow/graphile-starter/internal/errs"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(r.values))
	}
	for i, d := range dest {
		switch d := d.(type) {
		case *int64:
			*d = r.values[i].(int64)
		case *bool:
			*d = r.values[i].(bool)
		case *string:
			*d = r.values[i].(string)
		case **string:
			*d, _ = r.values[i].(*string)
		case *time.Time:
			*d = r.values[i].(time.Time)
		default:
			return fmt.Errorf("scan: unsupported destination %T", d)
		}
	}
	return nil
}

type fakeDB struct {
	row  fakeRow
	err  error
	sql  []string
	args [][]any
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql = append(f.sql, sql)
	f.args = append(f.args, args)
	return pgconn.NewCommandTag("INSERT 0 1"), f.err
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.sql = append(f.sql, sql)
	f.args = append(f.args, args)
	return f.row
}

func TestUpsert(t *testing.T) {
	db := &fakeDB{row: fakeRow{values: []any{int64(7), true}}}
	repo := NewUserRepository(db)

	id, inserted, err := repo.Upsert(context.Background(), GitHubProfile{
		GitHubID: "583231",
		Username: "octocat",
		Email:    "octocat@github.com",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.True(t, inserted)

	require.Len(t, db.sql, 1)
	assert.True(t, strings.HasPrefix(db.sql[0],
		"INSERT INTO app_public.users (github_id,username,name,email,avatar_url) VALUES ($1,$2,$3,$4,$5) on conflict (github_id) do update"))
	assert.Contains(t, db.sql[0], "returning id, (xmax = 0) as inserted")

	args := db.args[0]
	require.Len(t, args, 5)
	assert.Equal(t, "583231", args[0])
	assert.Nil(t, args[2], "empty name is stored as null")
	assert.Equal(t, "octocat@github.com", *args[3].(*string))
}

func TestUpsertError(t *testing.T) {
	db := &fakeDB{row: fakeRow{err: errors.New("connection reset")}}
	_, _, err := NewUserRepository(db).Upsert(context.Background(), GitHubProfile{GitHubID: "1", Username: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestByID(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	name := "The Octocat"
	db := &fakeDB{row: fakeRow{values: []any{
		int64(7), "583231", "octocat", &name, (*string)(nil), (*string)(nil), false, created,
	}}}

	u, err := NewUserRepository(db).ByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "octocat", u.Username)
	assert.Equal(t, "The Octocat", *u.Name)
	assert.Nil(t, u.Email)
	assert.Equal(t, created, u.CreatedAt)
	assert.Contains(t, db.sql[0], "FROM app_public.users WHERE id = $1")
}

func TestByIDNotFound(t *testing.T) {
	db := &fakeDB{row: fakeRow{err: pgx.ErrNoRows}}
	_, err := NewUserRepository(db).ByID(context.Background(), 1)

	var httpErr *errs.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.Status)
}

func TestAudit(t *testing.T) {
	db := &fakeDB{}
	require.NoError(t, NewUserRepository(db).Audit(context.Background(), 7, EventLogin))
	assert.Equal(t, "INSERT INTO app_private.sessions_audit (user_id,event) VALUES ($1,$2)", db.sql[0])
	assert.Equal(t, []any{int64(7), "login"}, db.args[0])

	db.err = errors.New("permission denied")
	assert.Error(t, NewUserRepository(db).Audit(context.Background(), 7, EventLogout))
}
