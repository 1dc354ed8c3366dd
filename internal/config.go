package internal

import (
	"fmt"
	"log/slog"
	"time"
	_ "time/tzdata" // timezones on hosts without a zoneinfo database

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/onyx/internal/localcache"
	"github.com/starford/onyx/internal/replica"
)

// Auth modes of the local API.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// RemoteNone runs every session local-only.
const RemoteNone = "none"

// Config represents the application configuration.
type Config struct {
	App           ApplicationConfig   `yaml:"app"`
	Cache         CacheConfig         `yaml:"cache"`
	Remote        RemoteConfig        `yaml:"remote"`
	Auth          AuthConfig          `yaml:"auth"`
	Hub           HubConfig           `yaml:"hub"`
	Reminders     RemindersConfig     `yaml:"reminders"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Assistant     AssistantConfig     `yaml:"assistant"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{
		&c.App, &c.Cache, &c.Remote, &c.Auth, &c.Hub, &c.Reminders, &c.Assistant,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	if c.Remote.Driver == replica.DriverRedis && c.Auth.UserID == "" {
		return fmt.Errorf("auth: user_id is required with the redis remote")
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	// LogFile, when set, receives a rotated copy of every log line.
	LogFile  string     `yaml:"log_file"`
	Timezone string     `yaml:"timezone"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("app: timezone: %w", err)
	}
	return c.HTTP.Validate()
}

// Location resolves Timezone; empty means UTC.
func (c *ApplicationConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
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

// CacheConfig selects the local cache store.
type CacheConfig struct {
	Driver     string `yaml:"driver"`
	Dir        string `yaml:"dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(localcache.DriverFile, localcache.DriverSQLite)),
		validation.Field(&c.Dir, validation.When(c.Driver == localcache.DriverFile, validation.Required)),
		validation.Field(&c.SQLitePath, validation.When(c.Driver == localcache.DriverSQLite, validation.Required)),
	)
}

// RemoteConfig selects the remote replica.
type RemoteConfig struct {
	Driver        string        `yaml:"driver"`
	HubURL        string        `yaml:"hub_url"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	PushTimeout   time.Duration `yaml:"push_timeout"`
}

// Validate validates the remote configuration.
func (c *RemoteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(RemoteNone, replica.DriverHub, replica.DriverRedis)),
		validation.Field(&c.HubURL, validation.When(c.Driver == replica.DriverHub, validation.Required, is.URL)),
		validation.Field(&c.RedisAddr, validation.When(c.Driver == replica.DriverRedis, validation.Required)),
		validation.Field(&c.RedisDB, validation.Min(0)),
		validation.Field(&c.PushTimeout, validation.Min(time.Duration(0))),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how the local API is protected:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
//
// Email and Password sign a headless agent in to the hub at startup when no
// session is stored. UserID names the user of the redis remote.
type AuthConfig struct {
	Mode     string `yaml:"mode"`
	Token    string `yaml:"token"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	UserID   string `yaml:"user_id"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
		validation.Field(&c.Email, is.EmailFormat),
		validation.Field(&c.Password, validation.When(c.Email != "", validation.Required)),
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

// HubConfig configures the hub service.
type HubConfig struct {
	HTTP       HTTPConfig    `yaml:"http"`
	SQLitePath string        `yaml:"sqlite_path"`
	JWTSecret  string        `yaml:"jwt_secret"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
}

// Validate validates the hub configuration. The secret is checked by
// RequireSecret since only the hub command needs it.
func (c *HubConfig) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("hub: %w", err)
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.SQLitePath, validation.Required),
		validation.Field(&c.JWTSecret, validation.When(c.JWTSecret != "", validation.Length(16, 0))),
		validation.Field(&c.TokenTTL, validation.Min(time.Duration(0))),
	)
}

// RequireSecret fails when no JWT secret is configured.
func (c *HubConfig) RequireSecret() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("hub: jwt_secret is required")
	}
	return nil
}

// RemindersConfig configures the reminder scanner.
type RemindersConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// Validate validates the reminders configuration.
func (c *RemindersConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Interval, validation.When(c.Enabled, validation.Required, validation.Min(time.Second))),
	)
}

// NotificationsConfig controls delivery of alerts.
type NotificationsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// AssistantConfig configures the chat assistant. An empty APIKey makes it
// answer with a fixed message.
type AssistantConfig struct {
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	MaxTokens int64  `yaml:"max_tokens"`
}

// Validate validates the assistant configuration.
func (c *AssistantConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, is.URL),
		validation.Field(&c.MaxTokens, validation.Min(int64(0))),
	)
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
		Cache: CacheConfig{
			Driver:     localcache.DriverFile,
			Dir:        "./data",
			SQLitePath: "./data/onyx.db",
		},
		Remote: RemoteConfig{
			Driver:      RemoteNone,
			PushTimeout: 15 * time.Second,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Hub: HubConfig{
			HTTP:       HTTPConfig{Port: 8090},
			SQLitePath: "./hub.db",
			TokenTTL:   30 * 24 * time.Hour,
		},
		Reminders: RemindersConfig{
			Enabled:  true,
			Interval: 5 * time.Second,
		},
		Notifications: NotificationsConfig{
			Enabled: true,
		},
		Assistant: AssistantConfig{
			MaxTokens: 1024,
		},
	}
}
