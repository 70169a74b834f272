// Package session keeps per-visitor state in redis behind a signed cookie.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Session is the state stored for one visitor.
type Session struct {
	ID        string    `json:"-"`
	UserID    string    `json:"user_id,omitempty"`
	State     string    `json:"state,omitempty"`
	Next      string    `json:"next,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	modified  bool
	destroyed bool
}

func newSession() *Session {
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
}

// Authenticated reports whether a user is logged in.
func (s *Session) Authenticated() bool {
	return s.UserID != ""
}

// SetUser logs userID in and clears the OAuth round trip state.
func (s *Session) SetUser(userID string) {
	s.UserID = userID
	s.State = ""
	s.Next = ""
	s.modified = true
}

// BeginOAuth remembers the state sent to the provider and where to go after.
func (s *Session) BeginOAuth(state, next string) {
	s.State = state
	s.Next = next
	s.modified = true
}

// Modified reports whether the session needs saving.
func (s *Session) Modified() bool {
	return s.modified && !s.destroyed
}
