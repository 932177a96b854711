package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Articles ArticlesConfig    `yaml:"articles"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Sync     SyncConfig        `yaml:"sync"`
	Render   RenderConfig      `yaml:"render"`
	Catalog  CatalogConfig     `yaml:"catalog"`
	Auth     AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Articles.Validate(); err != nil {
		return fmt.Errorf("articles: %w", err)
	}
	if err := c.SQLite.Validate(); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	if err := c.Sync.Validate(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if err := c.Catalog.Validate(); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// ArticlesConfig holds the path to the articles directory
// (<path>/<category>/<slug>.md).
type ArticlesConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the articles configuration.
func (c *ArticlesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SyncConfig tunes the sync engine and the directory watcher.
type SyncConfig struct {
	Workers  int           `yaml:"workers"`
	Watch    bool          `yaml:"watch"`
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Workers, validation.Required, validation.Min(1), validation.Max(64)),
		validation.Field(&c.Debounce, validation.Min(10*time.Millisecond), validation.Max(time.Minute)),
	)
}

// RenderConfig controls article rendering. AssetPrefix is prepended to
// "<category>/<slug>/" when relative links are rewritten; empty selects
// the default.
type RenderConfig struct {
	AssetPrefix string `yaml:"asset_prefix"`
}

// CatalogConfig controls the read side.
type CatalogConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// Validate validates the catalog configuration.
func (c *CatalogConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.CacheTTL, validation.Min(time.Duration(0))),
	)
}

// AuthConfig holds authentication configuration for mutating routes.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Articles: ArticlesConfig{
			Path: "./articles",
		},
		SQLite: SQLiteConfig{
			Path: "./mdblog.db",
		},
		Sync: SyncConfig{
			Workers:  4,
			Watch:    true,
			Debounce: 500 * time.Millisecond,
		},
		Catalog: CatalogConfig{
			CacheTTL: 10 * time.Minute,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
