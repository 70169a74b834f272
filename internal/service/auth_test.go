package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/deppfellow/graphile-starter/internal/config"
	"github.com/deppfellow/graphile-starter/internal/repository"
	"github.com/deppfellow/graphile-starter/internal/server"
)

type fakeUsers struct {
	profiles []repository.GitHubProfile
	events   []string
	inserted bool
	err      error
}

func (f *fakeUsers) Upsert(_ context.Context, p repository.GitHubProfile) (int64, bool, error) {
	if f.err != nil {
		return 0, false, f.err
	}
	f.profiles = append(f.profiles, p)
	return 42, f.inserted, nil
}

func (f *fakeUsers) ByID(_ context.Context, id int64) (*repository.User, error) {
	return &repository.User{ID: id, Username: "octocat"}, nil
}

func (f *fakeUsers) Audit(_ context.Context, _ int64, event string) error {
	f.events = append(f.events, event)
	return nil
}

type welcome struct{ to, firstName string }

type fakeJobs struct{ sent []welcome }

func (f *fakeJobs) EnqueueWelcome(_ context.Context, to, firstName string) error {
	f.sent = append(f.sent, welcome{to, firstName})
	return nil
}

func newGitHub(t *testing.T, user map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "bad_verification_code"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok", "token_type": "bearer"})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(user)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestAuth(t *testing.T, gh *httptest.Server, users *fakeUsers, jobs *fakeJobs) *AuthService {
	t.Helper()
	cfg := &config.Config{
		Primary: config.Primary{Env: "local", RootURL: "http://localhost:5678"},
		Auth:    config.AuthConfig{GitHubClientID: "client", GitHubClientSecret: "secret"},
	}
	log := zerolog.Nop()
	a := NewAuthService(server.New(cfg, &log, nil), users)
	a.jobs = jobs
	if gh != nil {
		a.oauth.Endpoint = oauth2.Endpoint{
			AuthURL:   gh.URL + "/login/oauth/authorize",
			TokenURL:  gh.URL + "/login/oauth/access_token",
			AuthStyle: oauth2.AuthStyleInParams,
		}
		a.userURL = gh.URL + "/user"
	}
	return a
}

func TestAuthCodeURL(t *testing.T) {
	a := newTestAuth(t, nil, &fakeUsers{}, &fakeJobs{})
	require.True(t, a.GitHubEnabled())

	u, err := url.Parse(a.AuthCodeURL("the-state"))
	require.NoError(t, err)
	assert.Equal(t, "github.com", u.Host)
	q := u.Query()
	assert.Equal(t, "client", q.Get("client_id"))
	assert.Equal(t, "the-state", q.Get("state"))
	assert.Equal(t, "http://localhost:5678/auth/github/callback", q.Get("redirect_uri"))
}

func TestNewStateIsUnique(t *testing.T) {
	a := newTestAuth(t, nil, &fakeUsers{}, &fakeJobs{})
	assert.NotEqual(t, a.NewState(), a.NewState())
}

func TestLoginFirstTime(t *testing.T) {
	gh := newGitHub(t, map[string]any{
		"id": 583231, "login": "octocat", "name": "The Octocat", "email": "octocat@github.com",
	})
	users := &fakeUsers{inserted: true}
	jobs := &fakeJobs{}
	a := newTestAuth(t, gh, users, jobs)

	id, err := a.Login(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	require.Len(t, users.profiles, 1)
	assert.Equal(t, "583231", users.profiles[0].GitHubID)
	assert.Equal(t, "octocat", users.profiles[0].Username)
	assert.Equal(t, []string{repository.EventLogin}, users.events)
	assert.Equal(t, []welcome{{"octocat@github.com", "The"}}, jobs.sent)
}

func TestLoginReturningUser(t *testing.T) {
	gh := newGitHub(t, map[string]any{"id": 1, "login": "hubot", "email": "hubot@github.com"})
	jobs := &fakeJobs{}
	a := newTestAuth(t, gh, &fakeUsers{}, jobs)

	_, err := a.Login(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Empty(t, jobs.sent)
}

func TestLoginFailures(t *testing.T) {
	gh := newGitHub(t, map[string]any{"login": "no-id"})

	_, err := newTestAuth(t, gh, &fakeUsers{}, &fakeJobs{}).Login(context.Background(), "bad-code")
	assert.ErrorContains(t, err, "exchange")

	_, err = newTestAuth(t, gh, &fakeUsers{}, &fakeJobs{}).Login(context.Background(), "good-code")
	assert.ErrorContains(t, err, "missing id")

	gh = newGitHub(t, map[string]any{"id": 1, "login": "hubot"})
	_, err = newTestAuth(t, gh, &fakeUsers{err: errors.New("db down")}, &fakeJobs{}).Login(context.Background(), "good-code")
	assert.ErrorContains(t, err, "db down")
}

func TestLoginDisabled(t *testing.T) {
	log := zerolog.Nop()
	a := NewAuthService(server.New(&config.Config{}, &log, nil), &fakeUsers{})
	assert.False(t, a.GitHubEnabled())

	_, err := a.Login(context.Background(), "code")
	assert.Error(t, err)
}

func TestLogoutAndCurrentUser(t *testing.T) {
	users := &fakeUsers{}
	a := newTestAuth(t, nil, users, &fakeJobs{})

	a.Logout(context.Background(), "42")
	a.Logout(context.Background(), "user_2abc")
	assert.Equal(t, []string{repository.EventLogout}, users.events)

	u, err := a.CurrentUser(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), u.ID)

	_, err = a.CurrentUser(context.Background(), "user_2abc")
	assert.Error(t, err)
}
