package handler

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/deppfellow/graphile-starter/internal/errs"
	"github.com/deppfellow/graphile-starter/internal/middleware"
	"github.com/deppfellow/graphile-starter/internal/repository"
	"github.com/deppfellow/graphile-starter/internal/server"
	"github.com/deppfellow/graphile-starter/internal/service"
	"github.com/deppfellow/graphile-starter/internal/session"
)

// Authenticator is the login logic behind the routes.
// *service.AuthService implements it.
type Authenticator interface {
	GitHubEnabled() bool
	NewState() string
	AuthCodeURL(state string) string
	Login(ctx context.Context, code string) (int64, error)
	Logout(ctx context.Context, userID string)
	CurrentUser(ctx context.Context, userID string) (*repository.User, error)
}

var _ Authenticator = (*service.AuthService)(nil)

type AuthHandler struct {
	Handler
	auth     Authenticator
	sessions *session.Manager
}

func NewAuthHandler(s *server.Server, auth Authenticator) *AuthHandler {
	return &AuthHandler{
		Handler:  NewHandler(s),
		auth:     auth,
		sessions: s.Sessions,
	}
}

func errGitHubDisabled() error {
	return errs.NewNotFoundError("Route not found", false, nil)
}

// safeNext keeps only same-site paths, anything else becomes "".
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return ""
	}
	return next
}

func redirectWithError(c echo.Context, reason string) error {
	return c.Redirect(http.StatusFound, "/?error="+url.QueryEscape(reason))
}

// Login starts the GitHub OAuth flow.
func (h *AuthHandler) Login(c echo.Context) error {
	if !h.auth.GitHubEnabled() {
		return errGitHubDisabled()
	}
	sess := session.FromContext(c)
	if sess == nil {
		return errs.NewServiceUnavailableError("Sessions are not available")
	}

	state := h.auth.NewState()
	sess.BeginOAuth(state, safeNext(c.QueryParam("next")))

	return c.Redirect(http.StatusFound, h.auth.AuthCodeURL(state))
}

// Callback finishes the OAuth flow and logs the visitor in.
func (h *AuthHandler) Callback(c echo.Context) error {
	if !h.auth.GitHubEnabled() {
		return errGitHubDisabled()
	}
	logger := middleware.GetLogger(c)

	sess := session.FromContext(c)
	state := c.QueryParam("state")
	if sess == nil || sess.State == "" || state != sess.State {
		logger.Warn().Msg("oauth callback with an unknown state")
		return redirectWithError(c, "invalid_state")
	}
	if reason := c.QueryParam("error"); reason != "" {
		return redirectWithError(c, reason)
	}

	userID, err := h.auth.Login(c.Request().Context(), c.QueryParam("code"))
	if err != nil {
		logger.Error().Err(err).Msg("github login failed")
		return redirectWithError(c, "login_failed")
	}

	next := sess.Next
	fresh := h.sessions.Regenerate(c)
	fresh.SetUser(strconv.FormatInt(userID, 10))

	if next == "" {
		next = "/"
	}
	return c.Redirect(http.StatusFound, next)
}

func (h *AuthHandler) logout(c echo.Context) {
	if sess := session.FromContext(c); sess != nil && sess.Authenticated() {
		h.auth.Logout(c.Request().Context(), sess.UserID)
	}
	if err := h.sessions.Destroy(c); err != nil {
		middleware.GetLogger(c).Warn().Err(err).Msg("failed to destroy session")
	}
}

// Logout ends the session and sends the visitor home.
func (h *AuthHandler) Logout(c echo.Context) error {
	h.logout(c)
	return c.Redirect(http.StatusFound, "/")
}

type LogoutRequest struct{}

func (r *LogoutRequest) Validate() error { return nil }

// LogoutAPI is Logout for script clients, it answers 204.
func (h *AuthHandler) LogoutAPI() echo.HandlerFunc {
	return HandleNoContent[LogoutRequest](h.Handler, func(c echo.Context, _ *LogoutRequest) error {
		h.logout(c)
		return nil
	}, http.StatusNoContent)
}

type MeRequest struct{}

func (r *MeRequest) Validate() error { return nil }

// Me returns the logged in user.
func (h *AuthHandler) Me() echo.HandlerFunc {
	return Handle[MeRequest](h.Handler, func(c echo.Context, _ *MeRequest) (*repository.User, error) {
		return h.auth.CurrentUser(c.Request().Context(), middleware.GetUserID(c))
	}, http.StatusOK)
}
