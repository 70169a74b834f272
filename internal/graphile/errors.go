package graphile

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/deppfellow/graphile-starter/internal/errs"
	"github.com/deppfellow/graphile-starter/internal/sqlerr"
)

// userError is a message safe to show as is.
type userError struct {
	code string
	msg  string
}

func (e *userError) Error() string {
	return e.msg
}

func userErrorf(code, format string, args ...any) error {
	return &userError{code: code, msg: fmt.Sprintf(format, args...)}
}

// toGQLError converts a resolver error. Database errors get the friendly
// message and code sqlerr derives; withDetail adds the raw message.
func toGQLError(err error, withDetail bool) *gqlerror.Error {
	var gerr *gqlerror.Error
	if errors.As(err, &gerr) {
		return gerr
	}

	var uerr *userError
	if errors.As(err, &uerr) {
		return &gqlerror.Error{
			Message:    uerr.msg,
			Extensions: map[string]any{"code": uerr.code},
		}
	}

	out := &gqlerror.Error{
		Message:    "An unexpected error occurred",
		Extensions: map[string]any{"code": "INTERNAL_SERVER_ERROR"},
	}

	var httpErr *errs.HTTPError
	if errors.As(sqlerr.HandleError(err), &httpErr) && httpErr.Status < 500 {
		out.Message = httpErr.Message
		out.Extensions["code"] = httpErr.Code
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		out.Extensions["sqlState"] = pgErr.Code
		if withDetail {
			out.Extensions["detail"] = pgErr.Message
			if pgErr.Hint != "" {
				out.Extensions["hint"] = pgErr.Hint
			}
		}
	} else if withDetail {
		out.Extensions["detail"] = err.Error()
	}

	return out
}
