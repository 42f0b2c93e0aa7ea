package internal

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/notes/internal/notestore"
	"github.com/starford/notes/internal/storage"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Highlight carriers.
const (
	CarrierMark          = "mark"
	CarrierStrikethrough = "strikethrough"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Storage StorageConfig     `yaml:"storage"`
	Live    LiveConfig        `yaml:"live"`
	Search  SearchConfig      `yaml:"search"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if err := c.Live.Validate(); err != nil {
		return err
	}
	if err := c.Search.Validate(); err != nil {
		return err
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

// StorageConfig selects where the note blob lives.
//
// Driver is one of "fs" (one JSON file per key under Dir), "sqlite" (a
// key/value table in the database at SQLitePath) or "memory" (nothing
// survives a restart). Watch reloads the store when the fs blob is edited
// by another process.
type StorageConfig struct {
	Driver     string `yaml:"driver"`
	Dir        string `yaml:"dir"`
	SQLitePath string `yaml:"sqlite_path"`
	Key        string `yaml:"key"`
	Watch      bool   `yaml:"watch"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	if c.Driver == "" {
		c.Driver = storage.DriverFS
	}
	if c.Key == "" {
		c.Key = notestore.DefaultKey
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required,
			validation.In(storage.DriverFS, storage.DriverSQLite, storage.DriverMemory)),
		validation.Field(&c.Dir, validation.When(c.Driver == storage.DriverFS, validation.Required)),
		validation.Field(&c.SQLitePath, validation.When(c.Driver == storage.DriverSQLite, validation.Required)),
		validation.Field(&c.Key, validation.Required,
			validation.Match(keyPattern).Error("must contain only letters, digits, '.', '_' or '-'")),
	)
}

// LiveConfig tunes background filter recomputation and change notifications.
type LiveConfig struct {
	// Debounce delays recomputation after each input change. Zero recomputes at once.
	Debounce time.Duration `yaml:"debounce"`
	// Throttle is the minimum interval between notes.changed events.
	Throttle time.Duration `yaml:"throttle"`
}

// Validate validates the live configuration.
func (c *LiveConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(time.Duration(0)), validation.Max(10*time.Second)),
		validation.Field(&c.Throttle, validation.Min(time.Duration(0))),
	)
}

// SearchConfig controls how matches are marked in headers.
type SearchConfig struct {
	// Carrier is "mark" (==match==) or "strikethrough" (~~match~~, drawn as a highlight).
	Carrier string `yaml:"carrier"`
}

// Validate validates the search configuration.
func (c *SearchConfig) Validate() error {
	if c.Carrier == "" {
		c.Carrier = CarrierMark
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Carrier, validation.In(CarrierMark, CarrierStrikethrough)),
	)
}

// AuthConfig holds authentication configuration.
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
		Storage: StorageConfig{
			Driver:     storage.DriverFS,
			Dir:        "./data",
			SQLitePath: "./notes.db",
			Key:        notestore.DefaultKey,
			Watch:      true,
		},
		Live: LiveConfig{
			Throttle: 2 * time.Second,
		},
		Search: SearchConfig{
			Carrier: CarrierMark,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9._-]*$`)
