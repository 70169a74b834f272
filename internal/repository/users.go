package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/deppfellow/graphile-starter/internal/errs"
)

// Session audit events.
const (
	EventLogin  = "login"
	EventLogout = "logout"
)

type User struct {
	ID        int64     `json:"id"`
	GitHubID  string    `json:"githubId"`
	Username  string    `json:"username"`
	Name      *string   `json:"name"`
	Email     *string   `json:"email"`
	AvatarURL *string   `json:"avatarUrl"`
	IsAdmin   bool      `json:"isAdmin"`
	CreatedAt time.Time `json:"createdAt"`
}

// GitHubProfile is what a login knows about the account.
type GitHubProfile struct {
	GitHubID  string
	Username  string
	Name      string
	Email     string
	AvatarURL string
}

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Upsert creates the user for a GitHub account or refreshes its profile.
// inserted is true when the row is new.
func (r *UserRepository) Upsert(ctx context.Context, p GitHubProfile) (id int64, inserted bool, err error) {
	query, args, err := psql.Insert("app_public.users").
		Columns("github_id", "username", "name", "email", "avatar_url").
		Values(p.GitHubID, p.Username, nullable(p.Name), nullable(p.Email), nullable(p.AvatarURL)).
		Suffix(`on conflict (github_id) do update set
			username = excluded.username,
			name = coalesce(excluded.name, users.name),
			email = coalesce(excluded.email, users.email),
			avatar_url = excluded.avatar_url,
			updated_at = now()
		returning id, (xmax = 0) as inserted`).
		ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("failed to build user upsert: %w", err)
	}

	if err := r.db.QueryRow(ctx, query, args...).Scan(&id, &inserted); err != nil {
		return 0, false, fmt.Errorf("failed to upsert user %s: %w", p.Username, err)
	}
	return id, inserted, nil
}

func (r *UserRepository) ByID(ctx context.Context, id int64) (*User, error) {
	query, args, err := psql.
		Select("id", "github_id", "username", "name", "email", "avatar_url", "is_admin", "created_at").
		From("app_public.users").
		Where("id = ?", id).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build user query: %w", err)
	}

	var u User
	err = r.db.QueryRow(ctx, query, args...).
		Scan(&u.ID, &u.GitHubID, &u.Username, &u.Name, &u.Email, &u.AvatarURL, &u.IsAdmin, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NewNotFoundError("User not found", true, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", id, err)
	}
	return &u, nil
}

// Audit records a login or logout.
func (r *UserRepository) Audit(ctx context.Context, userID int64, event string) error {
	query, args, err := psql.Insert("app_private.sessions_audit").
		Columns("user_id", "event").
		Values(userID, event).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build audit insert: %w", err)
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to record %s for user %d: %w", event, userID, err)
	}
	return nil
}
