package session

import (
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	// CookieName holds the signed and encrypted session id.
	CookieName = "starter.sid"

	contextKey = "session"
)

// Manager loads sessions into the echo context and writes them back.
type Manager struct {
	store  Store
	codec  *securecookie.SecureCookie
	ttl    time.Duration
	secure bool
	log    *zerolog.Logger
}

// NewManager derives the cookie hash and block keys from secret.
func NewManager(store Store, secret string, ttl time.Duration, secure bool, log *zerolog.Logger) *Manager {
	hashKey := sha512.Sum512([]byte(secret))
	blockKey := sha256.Sum256([]byte("session-block:" + secret))

	codec := securecookie.New(hashKey[:], blockKey[:])
	codec.MaxAge(int(ttl.Seconds()))

	return &Manager{
		store:  store,
		codec:  codec,
		ttl:    ttl,
		secure: secure,
		log:    log,
	}
}

// Middleware puts the visitor's session in the context, a fresh one when
// the cookie is missing, invalid or points at nothing. Modified sessions
// are saved before the response is written.
func (m *Manager) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s := m.load(c)
			c.Set(contextKey, s)

			c.Response().Before(func() {
				cur := FromContext(c)
				if cur == nil || !cur.Modified() {
					return
				}
				if err := m.store.Save(c.Request().Context(), cur, m.ttl); err != nil {
					m.log.Error().Err(err).Str("session_id", cur.ID).Msg("failed to save session")
					return
				}
				m.writeCookie(c, cur)
			})

			return next(c)
		}
	}
}

func (m *Manager) load(c echo.Context) *Session {
	cookie, err := c.Cookie(CookieName)
	if err != nil {
		return newSession()
	}

	var id string
	if err := m.codec.Decode(CookieName, cookie.Value, &id); err != nil {
		m.log.Debug().Err(err).Msg("discarding undecodable session cookie")
		return newSession()
	}

	s, err := m.store.Get(c.Request().Context(), id)
	if err != nil {
		// Without the store the visitor carries on anonymous.
		if !errors.Is(err, ErrNotFound) {
			m.log.Error().Err(err).Msg("failed to load session")
		}
		return newSession()
	}
	return s
}

func (m *Manager) writeCookie(c echo.Context, s *Session) {
	encoded, err := m.codec.Encode(CookieName, s.ID)
	if err != nil {
		m.log.Error().Err(err).Msg("failed to encode session cookie")
		return
	}
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		Secure:   m.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// Regenerate moves the session to a new id, dropping the old record.
// Call it when the visitor logs in.
func (m *Manager) Regenerate(c echo.Context) *Session {
	old := FromContext(c)
	if old == nil {
		old = newSession()
	}
	if err := m.store.Destroy(c.Request().Context(), old.ID); err != nil {
		m.log.Warn().Err(err).Msg("failed to drop previous session")
	}

	s := newSession()
	s.State, s.Next = old.State, old.Next
	s.modified = true
	c.Set(contextKey, s)
	return s
}

// Destroy deletes the session and expires the cookie.
func (m *Manager) Destroy(c echo.Context) error {
	s := FromContext(c)
	if s == nil {
		return nil
	}
	s.destroyed = true

	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   m.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return m.store.Destroy(c.Request().Context(), s.ID)
}

// FromContext returns the request's session, nil outside the middleware.
func FromContext(c echo.Context) *Session {
	s, _ := c.Get(contextKey).(*Session)
	return s
}

// Set attaches s to the request.
func Set(c echo.Context, s *Session) {
	c.Set(contextKey, s)
}
