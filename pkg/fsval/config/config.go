package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/dustin/go-humanize"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/jamesainslie/fsval/pkg/fsval/constraint"
	"github.com/jamesainslie/fsval/pkg/fsval/logging"
	"github.com/jamesainslie/fsval/pkg/fsval/pathquery"
	"github.com/jamesainslie/fsval/pkg/fsval/snapshot"
)

// RotationConfig configures log file rotation. MaxSize is a size string
// such as "10MB".
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Daily      bool   `mapstructure:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// SnapshotConfig configures the filesystem walk.
type SnapshotConfig struct {
	// IgnoreFile is a gitignore-style file relative to the target. Empty
	// uses .fsvalignore when present.
	IgnoreFile string   `mapstructure:"ignore_file"`
	Exclude    []string `mapstructure:"exclude"`
	Workers    int      `mapstructure:"workers"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// Config represents the application configuration.
type Config struct {
	// AllowEval enables eval constraints. Off by default.
	AllowEval bool `mapstructure:"allow_eval"`

	// DefaultQuery is the pattern for rules without a query.
	DefaultQuery string `mapstructure:"default_query"`

	// ManifestDirs are searched for manifest references after ./manifests.
	ManifestDirs []string `mapstructure:"manifest_dirs"`

	Format   string         `mapstructure:"format"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Watch    WatchConfig    `mapstructure:"watch"`
	Logging  LoggingConfig  `mapstructure:"logging"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

// Options configures Load.
type Options struct {
	// ConfigFile replaces the config file search.
	ConfigFile string

	// EnvFile is loaded into the environment before reading it. Existing
	// variables win. Empty uses DefaultEnvFile.
	EnvFile string
}

// Option is a functional option for Load.
type Option func(*Options)

// WithConfigFile reads path instead of searching for config.yaml.
func WithConfigFile(path string) Option {
	return func(o *Options) {
		o.ConfigFile = path
	}
}

// WithEnvFile loads path instead of ./.env.
func WithEnvFile(path string) Option {
	return func(o *Options) {
		o.EnvFile = path
	}
}

// Load loads configuration from file and environment variables.
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/fsval/config.yaml
//   - $HOME/.config/fsval/config.yaml
//
// Environment variables are prefixed with FSVAL_ (e.g., FSVAL_ALLOW_EVAL=1),
// nested keys joined by underscores (FSVAL_SNAPSHOT_IGNORE_FILE).
func Load(opts ...Option) (*Config, error) {
	o := Options{EnvFile: DefaultEnvFile}
	for _, opt := range opts {
		opt(&o)
	}

	if err := loadEnvFile(o.EnvFile); err != nil {
		return nil, err
	}

	v := viper.New()

	if o.ConfigFile != "" {
		v.SetConfigFile(o.ConfigFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		dir, err := ConfigDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	for i, dir := range cfg.ManifestDirs {
		expanded, err := ExpandPath(dir)
		if err != nil {
			return nil, err
		}
		cfg.ManifestDirs[i] = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("allow_eval", false)
	v.SetDefault("default_query", DefaultQuery)
	v.SetDefault("manifest_dirs", []string{})
	v.SetDefault("format", DefaultFormat)

	v.SetDefault("snapshot.ignore_file", "")
	v.SetDefault("snapshot.exclude", []string{})
	v.SetDefault("snapshot.workers", 0)

	v.SetDefault("watch.debounce", DefaultDebounce)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "") // Empty means use DefaultLogPath
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", map[string]string{})
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DefaultQuery, validation.Required, validation.By(isPattern)),
		validation.Field(&c.Format, validation.Required),
		validation.Field(&c.Snapshot, validation.By(func(any) error {
			return validation.ValidateStruct(&c.Snapshot,
				validation.Field(&c.Snapshot.Workers, validation.Min(0)),
			)
		})),
		validation.Field(&c.Watch, validation.By(func(any) error {
			return validation.ValidateStruct(&c.Watch,
				validation.Field(&c.Watch.Debounce, validation.Min(time.Duration(0))),
			)
		})),
		validation.Field(&c.Logging, validation.By(func(any) error {
			return c.Logging.validate()
		})),
	)
}

func (l *LoggingConfig) validate() error {
	return validation.ValidateStruct(l,
		validation.Field(&l.Level, validation.By(isLevel)),
		validation.Field(&l.Components, validation.Each(validation.By(isLevel))),
		validation.Field(&l.Rotation, validation.By(func(any) error {
			return validation.ValidateStruct(&l.Rotation,
				validation.Field(&l.Rotation.MaxSize, validation.By(isSize)),
				validation.Field(&l.Rotation.MaxAge, validation.Min(0)),
				validation.Field(&l.Rotation.MaxBackups, validation.Min(0)),
			)
		})),
	)
}

func isPattern(value any) error {
	s, _ := value.(string)
	if _, err := pathquery.Compile(s); err != nil {
		return err
	}
	return nil
}

func isLevel(value any) error {
	s, _ := value.(string)
	_, err := logging.ParseLevel(s)
	return err
}

func isSize(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := humanize.ParseBytes(s); err != nil {
		return fmt.Errorf("invalid size %q", s)
	}
	return nil
}

// Env returns the evaluation settings passed to constraints.
func (c *Config) Env() constraint.Env {
	return constraint.Env{AllowEval: c.AllowEval}
}

// SnapshotOptions returns the build options for the configured walk.
func (c *Config) SnapshotOptions() []snapshot.Option {
	var opts []snapshot.Option
	if c.Snapshot.IgnoreFile != "" {
		opts = append(opts, snapshot.WithIgnoreFile(c.Snapshot.IgnoreFile))
	}
	if len(c.Snapshot.Exclude) > 0 {
		opts = append(opts, snapshot.WithExclude(c.Snapshot.Exclude...))
	}
	if c.Snapshot.Workers > 0 {
		opts = append(opts, snapshot.WithWorkers(c.Snapshot.Workers))
	}
	return opts
}

// ToLogging converts the logging section. consoleLevel enables stderr output
// at that level; empty keeps logs in the file only.
func (c *Config) ToLogging(consoleLevel string) (logging.Config, error) {
	rotation, err := c.Logging.Rotation.ParseRotation()
	if err != nil {
		return logging.Config{}, err
	}

	path := c.Logging.Path
	if path != "" {
		if path, err = ExpandPath(path); err != nil {
			return logging.Config{}, err
		}
	}

	return logging.Config{
		Level:        c.Logging.Level,
		Path:         path,
		ConsoleLevel: consoleLevel,
		Rotation:     rotation,
		Components:   c.Logging.Components,
	}, nil
}

// ParseRotation converts the rotation settings for the logging package.
func (r RotationConfig) ParseRotation() (logging.RotationConfig, error) {
	cfg := logging.RotationConfig{
		MaxAge:     r.MaxAge,
		MaxBackups: r.MaxBackups,
		Daily:      r.Daily,
	}
	if r.MaxSize != "" {
		size, err := humanize.ParseBytes(r.MaxSize)
		if err != nil {
			return cfg, fmt.Errorf("invalid rotation max_size %q: %w", r.MaxSize, err)
		}
		cfg.MaxSize = int64(size)
	}
	return cfg, nil
}

// ConfigDir returns the configuration directory: $XDG_CONFIG_HOME/fsval, or
// ~/.config/fsval when XDG_CONFIG_HOME is unset.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "fsval"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "fsval"), nil
}

// ConfigFile returns the default config file path.
func ConfigFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DataDir returns $XDG_DATA_HOME/fsval.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "fsval")
}

// StateDir returns $XDG_STATE_HOME/fsval for log files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "fsval")
}

// ManifestDir returns the per-user manifest directory.
func ManifestDir() string {
	return filepath.Join(DataDir(), "manifests")
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, path[1:]), nil
}

// defaultConfig is written by WriteDefault.
const defaultConfig = `# fsval configuration

# Enable eval constraints. Eval runs registered predicates named by the
# manifest; only enable it for trusted manifests.
allow_eval: false

# Pattern used by rules that declare no query
default_query: "**"

# Extra directories searched for manifest references
manifest_dirs: []

# Output format: table, plain, json, yaml, csv, markdown
format: table

snapshot:
  # gitignore-style file inside the target (default: .fsvalignore if present)
  ignore_file: ""
  # Extra ignore patterns
  exclude: []
  # Walker goroutines (0 sizes the pool from the CPU count)
  workers: 0

watch:
  debounce: 500ms

logging:
  # Log level: debug, info, warn, error
  level: info
  # Log file path (empty means use default: $XDG_STATE_HOME/fsval/fsval.log)
  path: ""
  rotation:
    max_size: 10MB
    max_age: 30       # days
    max_backups: 5
    daily: true
  # Per-component log levels
  components:
    snapshot: info
    validate: info
    watch: info
`

// WriteDefault writes a default config file if none exists and returns its
// path. An existing file is left untouched.
func WriteDefault() (string, error) {
	path, err := ConfigFile()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfig), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}
	return path, nil
}
