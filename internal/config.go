package internal

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/sickfar/mdumb/internal/gitsync"
	"github.com/sickfar/mdumb/internal/shutdown"
	"github.com/sickfar/mdumb/internal/watcher"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Log formats.
const (
	LogFormatJSON   = "json"
	LogFormatPretty = "pretty"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Content  ContentConfig     `yaml:"content"`
	Watch    WatchConfig       `yaml:"watch"`
	Git      GitConfig         `yaml:"git"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Auth     AuthConfig        `yaml:"auth"`
	Shutdown ShutdownConfig    `yaml:"shutdown"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Content.Validate(); err != nil {
		return err
	}
	if err := c.Watch.Validate(); err != nil {
		return err
	}
	if err := c.Git.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Shutdown.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplyEnv overrides file settings from the environment. Unparseable or
// out-of-range values are ignored so a typo never replaces a good setting.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("WIKI_PATH"); ok && v != "" {
		c.Content.Path = v
	}
	if v, ok := lookup("PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			c.App.HTTP.Port = port
		}
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		if lvl, ok := parseLevel(v); ok {
			c.App.LogLevel = lvl
		}
	}
	if v, ok := lookup("GIT_ENABLED"); ok {
		c.Git.Enabled = strings.EqualFold(v, "true")
	}
	if v, ok := lookup("GIT_SYNC_INTERVAL"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Git.SyncIntervalMinutes = n
		}
	}
	if v, ok := lookup("GIT_AUTO_PUSH"); ok {
		c.Git.AutoPush = strings.EqualFold(v, "true")
	}
	if v, ok := lookup("GIT_CONFLICT_STRATEGY"); ok {
		switch s := gitsync.Strategy(v); s {
		case gitsync.StrategyRebase, gitsync.StrategyMerge, gitsync.StrategyBranch:
			c.Git.ConflictStrategy = s
		}
	}
}

// parseLevel accepts slog names plus the trace/fatal aliases older
// deployments use.
func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "trace":
		return slog.LevelDebug, true
	case "fatal":
		return slog.LevelError, true
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, false
	}
	return lvl, true
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel  slog.Level `yaml:"log_level"`
	LogFormat string     `yaml:"log_format"`
	LogFile   string     `yaml:"log_file"`
	Title     string     `yaml:"title"`
	HTTP      HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.LogFormat, validation.In(LogFormatJSON, LogFormatPretty)),
	); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// ContentConfig holds the path to the Markdown content root.
type ContentConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the content configuration.
func (c *ContentConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// WatchConfig controls the filesystem watcher.
type WatchConfig struct {
	Enabled    bool `yaml:"enabled"`
	DebounceMS int  `yaml:"debounce_ms"`
}

// Debounce returns the quiet period as a duration.
func (c *WatchConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// Validate validates the watcher configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DebounceMS, validation.Min(0)),
	)
}

// GitConfig controls the background git sync.
type GitConfig struct {
	Enabled               bool             `yaml:"enabled"`
	SyncIntervalMinutes   int              `yaml:"sync_interval"`
	AutoCommit            bool             `yaml:"auto_commit"`
	AutoPush              bool             `yaml:"auto_push"`
	CommitMessageTemplate string           `yaml:"commit_message_template"`
	ConflictStrategy      gitsync.Strategy `yaml:"conflict_strategy"`
	Remote                string           `yaml:"remote"`
}

// Validate validates the git configuration.
func (c *GitConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SyncIntervalMinutes, validation.When(c.Enabled, validation.Required, validation.Min(1))),
		validation.Field(&c.ConflictStrategy, validation.In(gitsync.StrategyRebase, gitsync.StrategyMerge, gitsync.StrategyBranch)),
	)
}

// SyncConfig converts the file settings into the sync manager's form.
func (c *GitConfig) SyncConfig() gitsync.Config {
	return gitsync.Config{
		Enabled:               c.Enabled,
		Interval:              time.Duration(c.SyncIntervalMinutes) * time.Minute,
		AutoCommit:            c.AutoCommit,
		AutoPush:              c.AutoPush,
		CommitMessageTemplate: c.CommitMessageTemplate,
		ConflictStrategy:      c.ConflictStrategy,
	}
}

// SQLiteConfig holds SQLite catalog configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// ShutdownConfig bounds graceful shutdown.
type ShutdownConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Timeout returns the watchdog deadline.
func (c *ShutdownConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Validate validates the shutdown configuration.
func (c *ShutdownConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TimeoutSeconds, validation.Required, validation.Min(1)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
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
			LogLevel:  slog.LevelInfo,
			LogFormat: LogFormatJSON,
			Title:     "MDumb Wiki",
			HTTP: HTTPConfig{
				Host: "localhost",
				Port: 3020,
			},
		},
		Content: ContentConfig{
			Path: "./wiki",
		},
		Watch: WatchConfig{
			Enabled:    true,
			DebounceMS: int(watcher.DefaultDebounce / time.Millisecond),
		},
		Git: GitConfig{
			Enabled:               false,
			SyncIntervalMinutes:   5,
			AutoCommit:            true,
			AutoPush:              true,
			CommitMessageTemplate: gitsync.DefaultCommitMessage,
			ConflictStrategy:      gitsync.StrategyRebase,
			Remote:                "origin",
		},
		SQLite: SQLiteConfig{
			Path: "./mdumb.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Shutdown: ShutdownConfig{
			TimeoutSeconds: int(shutdown.DefaultTimeout / time.Second),
		},
	}
}
