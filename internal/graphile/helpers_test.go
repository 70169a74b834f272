package graphile

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	value any
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != 1 {
		return fmt.Errorf("expected one destination, got %d", len(dest))
	}
	switch d := dest[0].(type) {
	case *[]byte:
		switch v := r.value.(type) {
		case string:
			*d = []byte(v)
		case nil:
			*d = nil
		default:
			return fmt.Errorf("cannot scan %T into []byte", r.value)
		}
	case *int64:
		n, ok := r.value.(int64)
		if !ok {
			return fmt.Errorf("cannot scan %T into int64", r.value)
		}
		*d = n
	default:
		return fmt.Errorf("unsupported destination %T", dest[0])
	}
	return nil
}

type fakeCall struct {
	sql  string
	args []any
}

// fakeQuerier answers statements by the first matching prefix.
type fakeQuerier struct {
	mu        sync.Mutex
	responses []fakeResponse
	calls     []fakeCall
}

type fakeResponse struct {
	prefix string
	row    fakeRow
}

func (q *fakeQuerier) on(prefix string, value any, err error) *fakeQuerier {
	q.responses = append(q.responses, fakeResponse{prefix: prefix, row: fakeRow{value: value, err: err}})
	return q
}

func (q *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls = append(q.calls, fakeCall{sql: sql, args: args})
	for _, r := range q.responses {
		if strings.HasPrefix(sql, r.prefix) {
			return r.row
		}
	}
	return fakeRow{err: pgx.ErrNoRows}
}

func usersTable() *Table {
	return &Table{
		Schema:  "app_public",
		Name:    "users",
		Kind:    "r",
		Comment: "A user who can log in to the application.",
		Columns: []*Column{
			{Name: "id", Type: "int4", NotNull: true, HasDefault: true, Num: 1},
			{Name: "username", Type: "text", NotNull: true, Num: 2, Comment: "Public-facing username."},
			{Name: "github_id", Type: "int8", Num: 3},
			{Name: "profile", Type: "jsonb", Num: 4},
			{Name: "tags", Type: "_text", Num: 5},
			{Name: "created_at", Type: "timestamptz", NotNull: true, HasDefault: true, Num: 6},
		},
		PrimaryKey: []string{"id"},
	}
}

func testCatalog() *Catalog {
	return &Catalog{Tables: []*Table{
		{
			Schema: "app_public",
			Name:   "active_people",
			Kind:   "v",
			Columns: []*Column{
				{Name: "username", Type: "text", Num: 1},
			},
		},
		usersTable(),
	}}
}

func testSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := Build(testCatalog())
	require.NoError(t, err)
	return s
}
