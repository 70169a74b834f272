package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deppfellow/graphile-starter/internal/errs"
)

type loginRequest struct {
	Username string `json:"username" validate:"required,min=3"`
	Next     string `json:"next"`
}

func (r *loginRequest) Validate() error {
	if err := Struct(r); err != nil {
		return err
	}
	if r.Next != "" && !strings.HasPrefix(r.Next, "/") {
		return CustomValidationErrors{{Field: "next", Message: "must be a relative path"}}
	}
	return nil
}

func bind(t *testing.T, body string) error {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())
	return BindAndValidate(c, &loginRequest{})
}

func asHTTPError(t *testing.T, err error) *errs.HTTPError {
	t.Helper()
	httpErr, ok := err.(*errs.HTTPError)
	require.True(t, ok, "expected *errs.HTTPError, got %T", err)
	return httpErr
}

func TestBindAndValidate(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		field  string
		reason string
	}{
		{"missing", `{}`, "username", "is required"},
		{"short", `{"username":"ab"}`, "username", "must be at least 3 characters"},
		{"custom", `{"username":"abc","next":"https://evil.example"}`, "next", "must be a relative path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httpErr := asHTTPError(t, bind(t, tt.body))
			assert.Equal(t, http.StatusBadRequest, httpErr.Status)
			assert.Equal(t, "Validation failed", httpErr.Message)
			require.Len(t, httpErr.Errors, 1)
			assert.Equal(t, tt.field, httpErr.Errors[0].Field)
			assert.Equal(t, tt.reason, httpErr.Errors[0].Error)
		})
	}
}

func TestBindAndValidateValid(t *testing.T) {
	assert.NoError(t, bind(t, `{"username":"octocat","next":"/settings"}`))
}

func TestBindAndValidateMalformedBody(t *testing.T) {
	httpErr := asHTTPError(t, bind(t, `{"username":`))
	assert.Equal(t, http.StatusBadRequest, httpErr.Status)
	assert.NotEmpty(t, httpErr.Message)
	assert.Empty(t, httpErr.Errors)
}
