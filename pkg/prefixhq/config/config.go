package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/logging"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/types"
)

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size" yaml:"max_size"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	Daily      bool   `mapstructure:"daily" yaml:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level" yaml:"level"`
	Path       string            `mapstructure:"path" yaml:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation" yaml:"rotation"`
	Components map[string]string `mapstructure:"components" yaml:"components"`
}

// SteamConfig configures library discovery.
type SteamConfig struct {
	ExtraRoots     []string `mapstructure:"extra_roots" yaml:"extra_roots"`
	ExtraLibraries []string `mapstructure:"extra_libraries" yaml:"extra_libraries"`
	IgnoreAppIDs   []uint32 `mapstructure:"ignore_appids" yaml:"ignore_appids"`
}

// ScanConfig configures the reconciliation pass.
type ScanConfig struct {
	Parallel     bool `mapstructure:"parallel" yaml:"parallel"`
	ComputeSizes bool `mapstructure:"compute_sizes" yaml:"compute_sizes"`
	SizeWorkers  int  `mapstructure:"size_workers" yaml:"size_workers"`
}

// MetadataConfig configures name and cover enrichment.
type MetadataConfig struct {
	Enabled           bool          `mapstructure:"enabled" yaml:"enabled"`
	Concurrency       int           `mapstructure:"concurrency" yaml:"concurrency"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	TTL               time.Duration `mapstructure:"ttl" yaml:"ttl"`
	Country           string        `mapstructure:"country" yaml:"country"`
	Language          string        `mapstructure:"language" yaml:"language"`
	SteamGridDBAPIKey string        `mapstructure:"steamgriddb_api_key" yaml:"steamgriddb_api_key"`
}

// CacheConfig configures the on-disk caches.
type CacheConfig struct {
	Manifests         bool   `mapstructure:"manifests" yaml:"manifests"`
	ManifestPath      string `mapstructure:"manifest_path" yaml:"manifest_path"`
	CoversDir         string `mapstructure:"covers_dir" yaml:"covers_dir"`
	OverrideCoversDir string `mapstructure:"override_covers_dir" yaml:"override_covers_dir"`
}

// JournalConfig configures the request journal.
type JournalConfig struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
	Path          string `mapstructure:"path" yaml:"path"`
	RetentionDays int    `mapstructure:"retention_days" yaml:"retention_days"`
}

// Config represents the application configuration.
type Config struct {
	Steam    SteamConfig    `mapstructure:"steam" yaml:"steam"`
	Scan     ScanConfig     `mapstructure:"scan" yaml:"scan"`
	Metadata MetadataConfig `mapstructure:"metadata" yaml:"metadata"`
	Store    struct {
		Path string `mapstructure:"path" yaml:"path"`
	} `mapstructure:"store" yaml:"store"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Journal JournalConfig `mapstructure:"journal" yaml:"journal"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Output  struct {
		Format string `mapstructure:"format" yaml:"format"`
	} `mapstructure:"output" yaml:"output"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-" yaml:"-"`
}

// Load loads configuration from $XDG_CONFIG_HOME/PrefixHQ/config.yaml and
// PREFIXHQ_* environment variables (e.g. PREFIXHQ_METADATA_ENABLED). A
// missing file is not an error.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. Unlike the default
// location, an explicit file must exist. An empty path behaves like Load.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")
	if path != "" {
		expanded, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		v.SetConfigFile(expanded)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(ConfigDir())
	}

	v.SetEnvPrefix("PREFIXHQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	cfg.File = v.ConfigFileUsed()
	if _, err := os.Stat(cfg.File); err != nil {
		cfg.File = ""
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("steam.extra_roots", []string{})
	v.SetDefault("steam.extra_libraries", []string{})
	v.SetDefault("steam.ignore_appids", DefaultIgnoreAppIDs)

	v.SetDefault("scan.parallel", true)
	v.SetDefault("scan.compute_sizes", false)
	v.SetDefault("scan.size_workers", DefaultSizeWorkers)

	v.SetDefault("metadata.enabled", true)
	v.SetDefault("metadata.concurrency", DefaultMetadataConcurrency)
	v.SetDefault("metadata.timeout", DefaultMetadataTimeout)
	v.SetDefault("metadata.ttl", time.Duration(0))
	v.SetDefault("metadata.country", "")
	v.SetDefault("metadata.language", DefaultLanguage)
	v.SetDefault("metadata.steamgriddb_api_key", "")

	v.SetDefault("store.path", DefaultStorePath())

	v.SetDefault("cache.manifests", true)
	v.SetDefault("cache.manifest_path", filepath.Join(CacheDir(), "manifests"))
	v.SetDefault("cache.covers_dir", filepath.Join(CacheDir(), "covers"))
	v.SetDefault("cache.override_covers_dir", filepath.Join(ConfigDir(), "covers"))

	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.path", filepath.Join(DataDir(), "journal"))
	v.SetDefault("journal.retention_days", DefaultRetentionDays)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "") // Empty means use logging.DefaultLogPath
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", map[string]string{
		"metadata": "info",
		"watcher":  "warn",
	})

	v.SetDefault("output.format", DefaultFormat)
}

// expandPaths expands ~ in every configured path.
func (c *Config) expandPaths() error {
	paths := []*string{
		&c.Store.Path,
		&c.Cache.ManifestPath,
		&c.Cache.CoversDir,
		&c.Cache.OverrideCoversDir,
		&c.Journal.Path,
		&c.Logging.Path,
	}
	for i := range c.Steam.ExtraRoots {
		paths = append(paths, &c.Steam.ExtraRoots[i])
	}
	for i := range c.Steam.ExtraLibraries {
		paths = append(paths, &c.Steam.ExtraLibraries[i])
	}

	for _, p := range paths {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

// IgnoreSet returns the ignored AppIDs as typed values.
func (c *Config) IgnoreSet() []types.AppID {
	ids := make([]types.AppID, len(c.Steam.IgnoreAppIDs))
	for i, id := range c.Steam.IgnoreAppIDs {
		ids[i] = types.AppID(id)
	}
	return ids
}

// LoggingConfig converts the logging section for logging.Init. An
// unparseable max_size falls back to the rotation default.
func (c *Config) LoggingConfig() logging.Config {
	rot := logging.DefaultRotationConfig()
	if n, err := humanize.ParseBytes(c.Logging.Rotation.MaxSize); err == nil && n > 0 {
		rot.MaxSize = int64(n)
	}
	rot.MaxAge = c.Logging.Rotation.MaxAge
	rot.MaxBackups = c.Logging.Rotation.MaxBackups
	rot.Daily = c.Logging.Rotation.Daily

	path := c.Logging.Path
	if path == "" {
		path = logging.DefaultLogPath()
	}

	return logging.Config{
		Level:      c.Logging.Level,
		Path:       path,
		Rotation:   rot,
		Components: c.Logging.Components,
	}
}

// ConfigDir returns $XDG_CONFIG_HOME/PrefixHQ.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppDir)
}

// ConfigPath returns the path of the configuration file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DataDir returns $XDG_DATA_HOME/prefixhq for the journal.
func DataDir() string {
	return filepath.Join(xdg.DataHome, StateDirName)
}

// CacheDir returns $XDG_CACHE_HOME/prefixhq for covers and parsed manifests.
func CacheDir() string {
	return filepath.Join(xdg.CacheHome, StateDirName)
}

// DefaultStorePath returns the games.json path shared with the original
// desktop tool.
func DefaultStorePath() string {
	return filepath.Join(ConfigDir(), "games.json")
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	if err := os.MkdirAll(ConfigDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return nil
}

// WriteDefault writes a commented default config file if none exists and
// returns its path. An existing file is left untouched.
func WriteDefault() (string, error) {
	if err := EnsureConfigDir(); err != nil {
		return "", err
	}

	configPath := ConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		return configPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check config file: %w", err)
	}

	ids := make([]string, len(DefaultIgnoreAppIDs))
	for i, id := range DefaultIgnoreAppIDs {
		ids[i] = fmt.Sprint(id)
	}

	defaultConfig := fmt.Sprintf(`# PrefixHQ configuration

steam:
  # Additional Steam install roots to probe (besides native, Flatpak and Snap)
  extra_roots: []
  # Library paths to scan even if libraryfolders.vdf does not list them
  extra_libraries: []
  # Runtimes and redistributables that are never shown
  ignore_appids: [%s]

scan:
  # Scan libraries concurrently
  parallel: true
  # Measure prefix disk usage (slower on large libraries)
  compute_sizes: false
  # Prefixes measured at once (0 = tune to this machine)
  size_workers: %d

metadata:
  # Fetch missing names and covers from the Steam store
  enabled: true
  # Fetches in flight (0 = tune to this machine)
  concurrency: %d
  timeout: %s
  # Refetch cached metadata older than this (0 = never)
  ttl: 0s
  country: ""
  language: %s
  # Optional SteamGridDB key for cover art
  steamgriddb_api_key: ""

store:
  path: %s

cache:
  # Reuse parsed appmanifest files between scans
  manifests: true
  manifest_path: %s
  covers_dir: %s
  # Drop <appid>.png/.jpg here to replace a cover
  override_covers_dir: %s

journal:
  enabled: true
  path: %s
  retention_days: %d

logging:
  # Log level: debug, info, warn, error
  level: info
  # Log file path (empty means use default: $XDG_STATE_HOME/prefixhq/prefixhq.log)
  path: ""
  rotation:
    max_size: 10MB
    max_age: 30       # days
    max_backups: 5
    daily: true
  # Per-component log levels
  components:
    metadata: info
    watcher: warn

output:
  # pretty, plain, json, jsonl, yaml, csv, markdown, paths
  format: %s
`, strings.Join(ids, ", "), DefaultSizeWorkers, DefaultMetadataConcurrency, DefaultMetadataTimeout,
		DefaultLanguage, DefaultStorePath(), filepath.Join(CacheDir(), "manifests"),
		filepath.Join(CacheDir(), "covers"), filepath.Join(ConfigDir(), "covers"),
		filepath.Join(DataDir(), "journal"), DefaultRetentionDays, DefaultFormat)

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}

	return configPath, nil
}

// ExpandPath expands ~ in a path to the user's home directory.
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
