package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/clerk/clerk-sdk-go/v2"
	clerkhttp "github.com/clerk/clerk-sdk-go/v2/http"
	"github.com/labstack/echo/v4"

	"github.com/deppfellow/graphile-starter/internal/errs"
	"github.com/deppfellow/graphile-starter/internal/server"
	"github.com/deppfellow/graphile-starter/internal/session"
)

const (
	AuthMethodSession = "session"
	AuthMethodBearer  = "bearer"
)

type AuthMiddleware struct {
	server *server.Server
}

func NewAuthMiddleware(s *server.Server) *AuthMiddleware {
	return &AuthMiddleware{
		server: s,
	}
}

func (auth *AuthMiddleware) bearerEnabled() bool {
	return auth.server.Config.Auth.ClerkSecretKey != ""
}

// Authenticate resolves the user for the request. The session wins; a Clerk
// bearer token is tried when no one is logged in and Clerk is configured.
// Anonymous requests pass through.
func (auth *AuthMiddleware) Authenticate() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		var bearer echo.HandlerFunc
		if auth.bearerEnabled() {
			bearer = auth.verifyBearer(func(c echo.Context) error {
				if claims, ok := clerk.SessionClaimsFromContext(c.Request().Context()); ok {
					c.Set(UserIDKey, claims.Subject)
					c.Set(UserRoleKey, claims.ActiveOrganizationRole)
					c.Set(AuthMethodKey, AuthMethodBearer)
				}
				return next(c)
			})
		}

		return func(c echo.Context) error {
			if s := session.FromContext(c); s != nil && s.Authenticated() {
				c.Set(UserIDKey, s.UserID)
				c.Set(AuthMethodKey, AuthMethodSession)
				return next(c)
			}

			if bearer != nil && strings.HasPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ") {
				return bearer(c)
			}

			return next(c)
		}
	}
}

// verifyBearer runs Clerk's header verification in front of next. Invalid
// tokens get a JSON 401.
func (auth *AuthMiddleware) verifyBearer(next echo.HandlerFunc) echo.HandlerFunc {
	return echo.WrapMiddleware(
		clerkhttp.WithHeaderAuthorization(
			clerkhttp.AuthorizationFailureHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				start := time.Now()

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)

				if err := json.NewEncoder(w).Encode(errs.NewUnauthorizedError("Unauthorized", false)); err != nil {
					auth.server.Logger.Error().
						Err(err).
						Str("function", "verifyBearer").
						Dur("duration", time.Since(start)).
						Msg("failed to write JSON response")
					return
				}
				auth.server.Logger.Warn().
					Str("function", "verifyBearer").
					Msg("rejected invalid bearer token")
			}))))(next)
}

// RequireAuth rejects requests Authenticate could not attach a user to.
func (auth *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if GetUserID(c) == "" {
			GetLogger(c).Debug().
				Str("function", "RequireAuth").
				Str("request_id", GetRequestID(c)).
				Msg("request without an authenticated user")

			if auth.server.Config.Auth.GitHubEnabled() {
				return errs.NewLoginRequiredError("/auth/github")
			}
			return errs.NewUnauthorizedError("Unauthorized", false)
		}
		return next(c)
	}
}
