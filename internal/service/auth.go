package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/clerk/clerk-sdk-go/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/deppfellow/graphile-starter/internal/errs"
	"github.com/deppfellow/graphile-starter/internal/repository"
	"github.com/deppfellow/graphile-starter/internal/server"
)

const githubUserURL = "https://api.github.com/user"

// CallbackPath is where GitHub sends the visitor back.
const CallbackPath = "/auth/github/callback"

type UserStore interface {
	Upsert(ctx context.Context, p repository.GitHubProfile) (id int64, inserted bool, err error)
	ByID(ctx context.Context, id int64) (*repository.User, error)
	Audit(ctx context.Context, userID int64, event string) error
}

type WelcomeEnqueuer interface {
	EnqueueWelcome(ctx context.Context, to, firstName string) error
}

// AuthService runs the GitHub OAuth login. Without a GitHub client
// configured every login method reports the feature as missing.
type AuthService struct {
	oauth   *oauth2.Config
	userURL string
	users   UserStore
	jobs    WelcomeEnqueuer
	logger  *zerolog.Logger
}

func NewAuthService(s *server.Server, users UserStore) *AuthService {
	if s.Config.Auth.ClerkSecretKey != "" {
		clerk.SetKey(s.Config.Auth.ClerkSecretKey)
	}

	a := &AuthService{
		userURL: githubUserURL,
		users:   users,
		logger:  s.Logger,
	}
	if s.Job != nil {
		a.jobs = s.Job
	}

	if s.Config.Auth.GitHubEnabled() {
		a.oauth = &oauth2.Config{
			ClientID:     s.Config.Auth.GitHubClientID,
			ClientSecret: s.Config.Auth.GitHubClientSecret,
			Endpoint:     github.Endpoint,
			RedirectURL:  s.Config.Primary.RootURL + CallbackPath,
			Scopes:       []string{"read:user", "user:email"},
		}
	}
	return a
}

func (a *AuthService) GitHubEnabled() bool {
	return a.oauth != nil
}

// NewState returns a fresh OAuth state value.
func (a *AuthService) NewState() string {
	return uuid.NewString()
}

func (a *AuthService) AuthCodeURL(state string) string {
	return a.oauth.AuthCodeURL(state)
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// Login exchanges the callback code, stores the GitHub account and
// returns the user id. First logins get the welcome email queued.
func (a *AuthService) Login(ctx context.Context, code string) (int64, error) {
	if !a.GitHubEnabled() {
		return 0, errs.NewNotFoundError("GitHub login is not configured", true, nil)
	}

	tok, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		return 0, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	gh, err := a.fetchUser(ctx, a.oauth.Client(ctx, tok))
	if err != nil {
		return 0, err
	}

	id, inserted, err := a.users.Upsert(ctx, repository.GitHubProfile{
		GitHubID:  strconv.FormatInt(gh.ID, 10),
		Username:  gh.Login,
		Name:      gh.Name,
		Email:     gh.Email,
		AvatarURL: gh.AvatarURL,
	})
	if err != nil {
		return 0, err
	}

	log := a.logger.With().Int64("user_id", id).Str("username", gh.Login).Logger()

	if err := a.users.Audit(ctx, id, repository.EventLogin); err != nil {
		log.Warn().Err(err).Msg("failed to audit login")
	}

	if inserted && gh.Email != "" && a.jobs != nil {
		if err := a.jobs.EnqueueWelcome(ctx, gh.Email, firstName(gh)); err != nil {
			log.Error().Err(err).Msg("failed to enqueue welcome email")
		}
	}

	log.Info().Bool("new_user", inserted).Msg("user logged in")
	return id, nil
}

func (a *AuthService) fetchUser(ctx context.Context, client *http.Client) (*githubUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.userURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch github user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch github user: status %d", resp.StatusCode)
	}

	var gh githubUser
	if err := json.NewDecoder(resp.Body).Decode(&gh); err != nil {
		return nil, fmt.Errorf("failed to decode github user: %w", err)
	}
	if gh.ID == 0 || gh.Login == "" {
		return nil, fmt.Errorf("github user response is missing id or login")
	}
	return &gh, nil
}

func firstName(gh *githubUser) string {
	if fields := strings.Fields(gh.Name); len(fields) > 0 {
		return fields[0]
	}
	return gh.Login
}

func parseUserID(userID string) (int64, error) {
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return 0, errs.NewNotFoundError("User not found", true, nil)
	}
	return id, nil
}

// Logout records the logout of a session user.
func (a *AuthService) Logout(ctx context.Context, userID string) {
	id, err := parseUserID(userID)
	if err != nil {
		return
	}
	if err := a.users.Audit(ctx, id, repository.EventLogout); err != nil {
		a.logger.Warn().Err(err).Int64("user_id", id).Msg("failed to audit logout")
	}
}

// CurrentUser loads a session user. Bearer subjects are not database
// ids and resolve to not found.
func (a *AuthService) CurrentUser(ctx context.Context, userID string) (*repository.User, error) {
	id, err := parseUserID(userID)
	if err != nil {
		return nil, err
	}
	return a.users.ByID(ctx, id)
}
