package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions.

// Storage drivers understood by store.Open.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverMySQL  = "mysql"
)

// FeedConfig describes a saved feed subscription.
type FeedConfig struct {
	// Name is the label used as the source of every event the feed produces.
	Name string `yaml:"name" json:"name"`
	// URL is the feed endpoint and the feed's identity.
	URL string `yaml:"url" json:"url"`
	// Category is stamped on every event imported from the feed.
	Category string `yaml:"category" json:"category"`
	// AddedAt is when the feed was first subscribed.
	AddedAt time.Time `yaml:"added_at" json:"addedAt"`
}

// StorageConfig selects and configures the event store.
type StorageConfig struct {
	// Driver is one of "memory" (default), "redis", "mysql".
	Driver string `yaml:"driver" json:"driver"`

	// Path is the JSON file the memory driver persists to. Empty keeps
	// events in memory only.
	Path string `yaml:"path" json:"path"`

	RedisURL    string `yaml:"redis_url" json:"redis_url"`
	RedisPrefix string `yaml:"redis_prefix" json:"redis_prefix"`

	// MySQLDSN is a go-sql-driver DSN, e.g. "user:pass@tcp(db:3306)/evstage".
	MySQLDSN string `yaml:"mysql_dsn" json:"mysql_dsn"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
// PasswordHash, when set, is a bcrypt hash and takes precedence over
// Password.
type BasicAuthConfig struct {
	Username     string `yaml:"username" json:"username"`
	Password     string `yaml:"password,omitempty" json:"password,omitempty"`
	PasswordHash string `yaml:"password_hash,omitempty" json:"password_hash,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel is "debug", "info" or "error".
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Categories offered for new events. Categories used by stored events
	// are shown as well, even when not listed here.
	Categories []string `yaml:"categories" json:"categories"`

	// DefaultCategory is applied to imports and manual events that name
	// none.
	DefaultCategory string `yaml:"default_category" json:"default_category"`

	// RefreshCron is a cron-style schedule string (e.g. "*/30 * * * *")
	// used for periodic feed refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// FetchTimeoutSeconds bounds a single feed download.
	FetchTimeoutSeconds int `yaml:"fetch_timeout_seconds" json:"fetch_timeout_seconds"`

	// CacheDir holds downloaded feed bodies and their validators.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Feeds is the list of saved feed subscriptions.
	Feeds []FeedConfig `yaml:"feeds" json:"feeds"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

var defaultCategories = []string{"Sports", "Home", "Social"}

const (
	defaultListen       = "127.0.0.1:8080"
	defaultRefreshCron  = "*/30 * * * *"
	defaultFetchTimeout = 20
	defaultCacheDir     = "./cache"
	defaultRedisPrefix  = "evstage:"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:              defaultListen,
		LogLevel:            "info",
		Categories:          append([]string(nil), defaultCategories...),
		DefaultCategory:     defaultCategories[0],
		RefreshCron:         defaultRefreshCron,
		FetchTimeoutSeconds: defaultFetchTimeout,
		CacheDir:            defaultCacheDir,
		Storage: StorageConfig{
			Driver:      DriverMemory,
			Path:        "./events.json",
			RedisPrefix: defaultRedisPrefix,
		},
		Feeds:     []FeedConfig{},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		c.LogLevel = "info"
	}
	if len(c.Categories) == 0 {
		c.Categories = append([]string(nil), defaultCategories...)
	}
	c.Categories = dedupe(c.Categories)
	if strings.TrimSpace(c.DefaultCategory) == "" {
		c.DefaultCategory = c.Categories[0]
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.FetchTimeoutSeconds <= 0 {
		c.FetchTimeoutSeconds = defaultFetchTimeout
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}

	switch c.Storage.Driver {
	case DriverMemory, DriverRedis, DriverMySQL:
		// ok
	default:
		// Unknown or empty; memory never fails to open.
		c.Storage.Driver = DriverMemory
	}
	if c.Storage.RedisPrefix == "" {
		c.Storage.RedisPrefix = defaultRedisPrefix
	}

	if c.Feeds == nil {
		c.Feeds = []FeedConfig{}
	}
}

// FetchTimeout returns FetchTimeoutSeconds as a duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// FindFeed returns the saved feed with the given URL.
func (c *Config) FindFeed(url string) (FeedConfig, bool) {
	for _, f := range c.Feeds {
		if f.URL == url {
			return f, true
		}
	}
	return FeedConfig{}, false
}

// UpsertFeed saves f, keyed by URL. An existing entry keeps its AddedAt.
// It reports whether f was new.
func (c *Config) UpsertFeed(f FeedConfig) bool {
	for i := range c.Feeds {
		if c.Feeds[i].URL == f.URL {
			if !c.Feeds[i].AddedAt.IsZero() {
				f.AddedAt = c.Feeds[i].AddedAt
			}
			c.Feeds[i] = f
			return false
		}
	}
	c.Feeds = append(c.Feeds, f)
	return true
}

// RemoveFeed drops the feed with the given URL and reports whether it
// existed.
func (c *Config) RemoveFeed(url string) bool {
	for i := range c.Feeds {
		if c.Feeds[i].URL == url {
			c.Feeds = append(c.Feeds[:i], c.Feeds[i+1:]...)
			return true
		}
	}
	return false
}

// AddCategory appends name unless an equal category (ignoring case) is
// already listed. It reports whether the list changed.
func (c *Config) AddCategory(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	for _, existing := range c.Categories {
		if strings.EqualFold(existing, name) {
			return false
		}
	}
	c.Categories = append(c.Categories, name)
	return true
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	if len(out) == 0 {
		return append([]string(nil), defaultCategories...)
	}
	return out
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data)
}

// WriteFileAtomic writes data to a temp file in the same directory, syncs
// it, sets 0600 and renames it over path. The parent directory is created
// with 0700 if missing.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".evstage-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function:
//
//	cfg, _ := config.Load(path)
//	// ... mutate cfg ...
//	if err := cfg.Save(path); err != nil { ... }
func (c *Config) Save(path string) error {
	return Save(path, c)
}
