package internal

import (
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/canvasfocus/internal/surface"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Vault  VaultConfig       `yaml:"vault"`
	Canvas CanvasConfig      `yaml:"canvas"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`
	Focus  FocusConfig       `yaml:"focus"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.Canvas.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.Focus.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	// LogFile, when set, sends logs to a rotating file instead of stdout.
	LogFile string     `yaml:"log_file"`
	HTTP    HTTPConfig `yaml:"http"`
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

// VaultConfig holds the path to the Markdown vault directory.
type VaultConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// CanvasConfig controls the canvas files.
type CanvasConfig struct {
	// Path is the vault-relative canvas made active at startup. Optional.
	Path            string        `yaml:"path"`
	PersistDebounce time.Duration `yaml:"persist_debounce"`
}

// Validate validates the canvas configuration.
func (c *CanvasConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(c.Path != "", validation.By(hasSuffix(".canvas")))),
		validation.Field(&c.PersistDebounce, validation.Required, validation.Min(time.Millisecond)),
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
	// Normalise empty mode to "disabled" for backward compatibility.
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

// FocusConfig configures the focus controller. Enabled, PinnedByDefault,
// FocusOnOpen and ScratchPath seed the persisted state on first run.
type FocusConfig struct {
	Enabled         bool   `yaml:"enabled"`
	PinnedByDefault bool   `yaml:"pinned_by_default"`
	FocusOnOpen     bool   `yaml:"focus_on_open"`
	ScratchPath     string `yaml:"scratch_path"`
	// StateDir holds state.toml and workspace.json, relative to the vault.
	StateDir          string        `yaml:"state_dir"`
	SurfaceKind       string        `yaml:"surface_kind"`
	SelectionInterval time.Duration `yaml:"selection_interval"`
	NodeInterval      time.Duration `yaml:"node_interval"`
	DocumentDebounce  time.Duration `yaml:"document_debounce"`
	// PromoteFolder is where promoted notes are created. Empty means the
	// vault root.
	PromoteFolder string `yaml:"promote_folder"`
}

// Validate validates the focus configuration.
func (c *FocusConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ScratchPath, validation.Required, validation.By(vaultRelative)),
		validation.Field(&c.StateDir, validation.Required, validation.By(vaultRelative)),
		validation.Field(&c.SurfaceKind, validation.Required, validation.In(string(surface.KindSplit), string(surface.KindPopout))),
		validation.Field(&c.SelectionInterval, validation.Required, validation.Min(10*time.Millisecond)),
		validation.Field(&c.NodeInterval, validation.Required, validation.Min(10*time.Millisecond)),
		validation.Field(&c.DocumentDebounce, validation.Min(time.Duration(0))),
		validation.Field(&c.PromoteFolder, validation.By(vaultRelative)),
	)
}

func hasSuffix(suffix string) validation.RuleFunc {
	return func(v any) error {
		if s, _ := v.(string); !strings.HasSuffix(s, suffix) {
			return fmt.Errorf("must end in %s", suffix)
		}
		return nil
	}
}

// vaultRelative rejects absolute paths and paths that leave the vault.
func vaultRelative(v any) error {
	s, _ := v.(string)
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, "\\", "/")
	if path.IsAbs(s) {
		return fmt.Errorf("must be relative to the vault")
	}
	if c := path.Clean(s); c == ".." || strings.HasPrefix(c, "../") {
		return fmt.Errorf("must stay inside the vault")
	}
	return nil
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
		Vault: VaultConfig{
			Path: "./vault",
		},
		Canvas: CanvasConfig{
			PersistDebounce: 500 * time.Millisecond,
		},
		SQLite: SQLiteConfig{
			Path: "./canvasfocus.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Focus: FocusConfig{
			Enabled:           true,
			FocusOnOpen:       true,
			ScratchPath:       "canvas-focus-temp",
			StateDir:          ".canvasfocus",
			SurfaceKind:       string(surface.KindPopout),
			SelectionInterval: 300 * time.Millisecond,
			NodeInterval:      200 * time.Millisecond,
			DocumentDebounce:  50 * time.Millisecond,
		},
	}
}
