// Package config manages environment variables.
//
// It reads variables from the `.env` file, loads them into structured
// Go types (struct), and validates that required values are present so
// they can be reused across the application runtime.
//
// Responsibilities:
//   - Load environment variables (optionally from a `.env` file).
//   - Map env vars into a structured Go config (structs).
//   - Validate required values so the app fails fast on bad/missing config.
//   - Sanitise the environment: defaults, normalised env name, root url.
package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	// Side-effect import: if a `.env` file exists, it gets loaded into the
	// process env before anything reads env vars.
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

/*
	Env vars are read using the prefix STARTER_.

	Keys are lowercased and the prefix removed. A double underscore marks
	nesting, so STARTER_SERVER__PORT -> server.port -> Config.Server.Port
	while single underscores stay part of the key name:
	STARTER_SERVER__READ_TIMEOUT -> server.read_timeout.
*/

// EnvPrefix is the prefix every configuration variable carries.
const EnvPrefix = "STARTER_"

// Config is the root configuration object for the application.
//
// Observability is a pointer because it is optional. If not provided,
// defaults are injected by Sanitise.
type Config struct {
	Primary       Primary              `koanf:"primary" validate:"required"`
	Server        ServerConfig         `koanf:"server" validate:"required"`
	Database      DatabaseConfig       `koanf:"database" validate:"required"`
	Redis         RedisConfig          `koanf:"redis" validate:"required"`
	Auth          AuthConfig           `koanf:"auth" validate:"required"`
	GraphQL       GraphQLConfig        `koanf:"graphql"`
	Integration   IntegrationConfig    `koanf:"integration"`
	Observability *ObservabilityConfig `koanf:"observability"`
}

// Primary holds top-level information about the runtime environment.
type Primary struct {
	// Env is one of local, development, staging, production.
	Env string `koanf:"env" validate:"required,oneof=local development staging production"`

	// Name is printed in the startup banner and used as service name.
	Name string `koanf:"name"`

	// RootURL is the public URL of the site, used for OAuth callbacks
	// and to decide whether cookies are marked Secure.
	RootURL string `koanf:"root_url"`
}

// ServerConfig groups settings for the HTTP server runtime.
//
// Timeouts are whole seconds.
type ServerConfig struct {
	Port               string   `koanf:"port" validate:"required"`
	ReadTimeout        int      `koanf:"read_timeout" validate:"required"`
	WriteTimeout       int      `koanf:"write_timeout" validate:"required"`
	IdleTimeout        int      `koanf:"idle_timeout" validate:"required"`
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins" validate:"required"`

	// PublicDir is the shared static folder served at "/".
	PublicDir string `koanf:"public_dir"`

	// RateLimit is requests per second per client, 0 disables limiting.
	RateLimit float64 `koanf:"rate_limit" validate:"min=0"`
}

// DatabaseConfig contains PostgreSQL connection parameters and pool tuning.
//
// User is the owner role the pool connects with. VisitorRole, when set, is
// switched to with `set local role` for every GraphQL transaction.
type DatabaseConfig struct {
	Host            string `koanf:"host" validate:"required"`
	Port            int    `koanf:"port" validate:"required"`
	User            string `koanf:"user" validate:"required"`
	Password        string `koanf:"password" validate:"required"`
	Name            string `koanf:"name" validate:"required"`
	SSLMode         string `koanf:"ssl_mode" validate:"required"`
	MaxOpenConns    int    `koanf:"max_open_conns" validate:"required"`
	MaxIdleConns    int    `koanf:"max_idle_conns" validate:"required"`
	ConnMaxLifetime int    `koanf:"conn_max_lifetime" validate:"required"`
	ConnMaxIdleTime int    `koanf:"conn_max_idle_time" validate:"required"`
	VisitorRole     string `koanf:"visitor_role"`
}

// validateVisitorRole keeps GraphQL from running as the owner, which
// bypasses row level security. Only local setups may leave it empty.
func (d DatabaseConfig) validateVisitorRole(env string) error {
	if d.VisitorRole == "" {
		if env != "local" {
			return fmt.Errorf("visitor_role is required outside the local environment")
		}
		return nil
	}
	if !identPattern.MatchString(d.VisitorRole) {
		return fmt.Errorf("invalid visitor_role %q", d.VisitorRole)
	}
	if d.VisitorRole == d.User {
		return fmt.Errorf("visitor_role must differ from the owner user")
	}
	return nil
}

// RedisConfig contains Redis connection details.
// Address is typically "host:port".
type RedisConfig struct {
	Address string `koanf:"address" validate:"required"`
}

// AuthConfig stores authentication-related secrets.
type AuthConfig struct {
	// SessionSecret signs and encrypts the session cookie.
	SessionSecret string `koanf:"session_secret" validate:"required,min=32"`

	// SessionTTLHours is how long an idle session survives in redis.
	SessionTTLHours int `koanf:"session_ttl_hours" validate:"min=0"`

	GitHubClientID     string `koanf:"github_client_id"`
	GitHubClientSecret string `koanf:"github_client_secret"`

	// ClerkSecretKey enables bearer token auth. Empty disables it.
	ClerkSecretKey string `koanf:"clerk_secret_key"`
}

// GitHubEnabled reports whether the GitHub OAuth login is configured.
func (a AuthConfig) GitHubEnabled() bool {
	return a.GitHubClientID != "" && a.GitHubClientSecret != ""
}

// IntegrationConfig holds third-party API credentials.
type IntegrationConfig struct {
	ResendAPIKey string `koanf:"resend_api_key"`
	EmailFrom    string `koanf:"email_from"`
}

// LoadConfig loads configuration from environment variables, unmarshals it
// into Config, validates it and sanitises it.
//
// It returns errors instead of exiting so the caller owns process exit.
func LoadConfig() (*Config, error) {
	k := koanf.New(".")

	err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil)
	if err != nil {
		return nil, fmt.Errorf("could not load initial env variables: %w", err)
	}

	return fromKoanf(k)
}

// envKey maps STARTER_SERVER__READ_TIMEOUT to server.read_timeout.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	s = strings.ReplaceAll(s, "__", ".")
	return strings.ToLower(s)
}

func fromKoanf(k *koanf.Koanf) (*Config, error) {
	mainConfig := &Config{}

	if err := k.Unmarshal("", mainConfig); err != nil {
		return nil, fmt.Errorf("could not unmarshal main config: %w", err)
	}

	// Comma separated lists arrive as a single string from env.
	if raw := k.String("server.cors_allowed_origins"); raw != "" {
		mainConfig.Server.CORSAllowedOrigins = splitList(raw)
	}
	if raw := k.String("graphql.schemas"); raw != "" {
		mainConfig.GraphQL.Schemas = splitList(raw)
	}

	mainConfig.Sanitise()

	if err := mainConfig.Validate(); err != nil {
		return nil, err
	}

	return mainConfig, nil
}

// Sanitise fills defaults and normalises values.
//
// It is idempotent.
func (c *Config) Sanitise() {
	c.Primary.Env = strings.ToLower(strings.TrimSpace(c.Primary.Env))
	if c.Primary.Name == "" {
		c.Primary.Name = "graphile-starter"
	}
	if c.Primary.RootURL == "" {
		c.Primary.RootURL = "http://localhost:" + c.Server.Port
	}
	c.Primary.RootURL = strings.TrimRight(c.Primary.RootURL, "/")

	if c.Server.PublicDir == "" {
		c.Server.PublicDir = "client/public"
	}

	if c.Auth.SessionTTLHours == 0 {
		c.Auth.SessionTTLHours = 24 * 14
	}

	c.GraphQL.applyDefaults()

	if c.Integration.EmailFrom == "" {
		c.Integration.EmailFrom = "Starter <onboarding@resend.dev>"
	}

	if c.Observability == nil {
		c.Observability = DefaultObservabilityConfig()
	} else {
		c.Observability.fillDefaults()
	}

	// Service name and environment always follow the primary block so
	// logs and traces agree.
	c.Observability.ServiceName = c.Primary.Name
	c.Observability.Environment = c.Primary.Env
}

// Validate runs struct tag validation and the custom block validators.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if _, err := url.Parse(c.Primary.RootURL); err != nil {
		return fmt.Errorf("invalid root_url: %w", err)
	}

	if err := c.Database.validateVisitorRole(c.Primary.Env); err != nil {
		return fmt.Errorf("invalid database config: %w", err)
	}

	if err := c.GraphQL.Validate(); err != nil {
		return fmt.Errorf("invalid graphql config: %w", err)
	}

	if c.Observability != nil {
		if err := c.Observability.Validate(); err != nil {
			return fmt.Errorf("invalid observability config: %w", err)
		}
	}

	return nil
}

// IsDevelopment reports whether the app runs in dev mode.
// Anything that is not production counts as development.
func (c *Config) IsDevelopment() bool {
	return c.Primary.Env != "production"
}

// SecureCookies reports whether cookies should carry the Secure flag.
func (c *Config) SecureCookies() bool {
	return strings.HasPrefix(c.Primary.RootURL, "https://")
}

// DatabaseDSN builds the owner connection string. User, password and
// database name are escaped by url.URL.
func (c *Config) DatabaseDSN() string {
	dsn := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     net.JoinHostPort(c.Database.Host, strconv.Itoa(c.Database.Port)),
		Path:     "/" + c.Database.Name,
		RawQuery: url.Values{"sslmode": {c.Database.SSLMode}}.Encode(),
	}
	return dsn.String()
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
