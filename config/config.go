package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Env       string          `mapstructure:"env"` // "dev" or "prod"
	Feed      FeedConfig      `mapstructure:"feed"`
	Reconnect ReconnectConfig `mapstructure:"reconnect"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Log       LogConfig       `mapstructure:"log"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
}

// FeedConfig describes the single streaming endpoint.
type FeedConfig struct {
	URL              string        `mapstructure:"url"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`    // 0 disables read deadlines
	StatusInterval   time.Duration `mapstructure:"status_interval"` // periodic status log line
}

// Reconnect policies.
const (
	PolicyRandom      = "random"
	PolicyFixed       = "fixed"
	PolicyExponential = "exponential"
)

type ReconnectConfig struct {
	Policy      string        `mapstructure:"policy"`       // "random", "fixed" or "exponential"
	FixedDelay  time.Duration `mapstructure:"fixed_delay"`  // used by "fixed"
	MaxExponent int           `mapstructure:"max_exponent"` // used by "random": k in [0, max_exponent]

	// RetryOnOpenFailure makes a failed dial schedule a reconnect like any
	// runtime error. When false a failed dial is terminal until the next
	// manual connect.
	RetryOnOpenFailure bool `mapstructure:"retry_on_open_failure"`
}

// HTTPConfig configures the dashboard API listener.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ArchiveConfig controls the optional write-only tick history in Postgres.
type ArchiveConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	CreateDB     bool          `mapstructure:"create_db"`
	BufferSize   int           `mapstructure:"buffer_size"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Retention    time.Duration `mapstructure:"retention"` // 0 keeps everything
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")

	v.SetDefault("feed.url", "wss://binance-live.onrender.com/ws/binance/")
	v.SetDefault("feed.handshake_timeout", 10*time.Second)
	v.SetDefault("feed.read_timeout", 0)
	v.SetDefault("feed.status_interval", 30*time.Second)

	v.SetDefault("reconnect.policy", PolicyRandom)
	v.SetDefault("reconnect.fixed_delay", 5*time.Second)
	v.SetDefault("reconnect.max_exponent", 4)
	v.SetDefault("reconnect.retry_on_open_failure", true)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.shutdown_timeout", 5*time.Second)

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.create_db", false)
	v.SetDefault("archive.buffer_size", 256)
	v.SetDefault("archive.write_timeout", 2*time.Second)
	v.SetDefault("archive.retention", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_file", "")
	v.SetDefault("log.environment", "dev")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "tickboard")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.timezone", "UTC")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime", time.Hour)
}

// Load loads application configuration using Viper.
// It reads config.yaml (from path, or the default search locations when path
// is empty), then lets environment variables override it, e.g. FEED_URL.
// A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config") // config.yaml
		v.SetConfigType("yaml")
		for _, dir := range searchPaths() {
			v.AddConfigPath(dir)
		}
	}

	// Support environment variables with dot notation (e.g., FEED_URL)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// defaults and environment only
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func searchPaths() []string {
	paths := []string{"./config", "."}

	ex, err := os.Executable()
	if err != nil {
		return paths
	}
	if strings.Contains(ex, "go-build") {
		if pwd, err := os.Getwd(); err == nil {
			paths = append(paths, filepath.Join(pwd, "../../config"))
		}
	} else {
		paths = append(paths, filepath.Join(filepath.Dir(ex), "../config"))
	}
	return paths
}

// Validate checks the fields the client cannot run without.
func (c *Config) Validate() error {
	var errs []string

	u, err := url.Parse(c.Feed.URL)
	switch {
	case c.Feed.URL == "":
		errs = append(errs, "feed.url is required")
	case err != nil:
		errs = append(errs, fmt.Sprintf("feed.url: %v", err))
	case u.Scheme != "ws" && u.Scheme != "wss":
		errs = append(errs, fmt.Sprintf("feed.url: scheme must be ws or wss, got %q", u.Scheme))
	}

	switch c.Reconnect.Policy {
	case PolicyRandom, PolicyFixed, PolicyExponential:
	default:
		errs = append(errs, fmt.Sprintf("reconnect.policy: unknown policy %q", c.Reconnect.Policy))
	}
	if c.Reconnect.MaxExponent < 0 {
		errs = append(errs, "reconnect.max_exponent must not be negative")
	}

	if c.Archive.Enabled && c.Archive.BufferSize <= 0 {
		errs = append(errs, "archive.buffer_size must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}
