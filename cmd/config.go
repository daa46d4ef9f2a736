package cmd

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"

	"github.com/teemow/meetwhen/internal/credentials/sqlstore"
	"github.com/teemow/meetwhen/internal/google"
	"github.com/teemow/meetwhen/internal/logging"
	"github.com/teemow/meetwhen/internal/server"
)

// Config is the merged meetwhen configuration.
//
// Precedence, lowest first: defaults, the TOML file, environment variables,
// flags that were set on the command line.
type Config struct {
	Google GoogleConfig `toml:"google"`
	Store  StoreConfig  `toml:"store"`
	Server ServerConfig `toml:"server"`
	Log    LogConfig    `toml:"log"`
}

// GoogleConfig configures the OAuth client.
type GoogleConfig struct {
	// ClientSecretsFile is a client_secret.json from the Google Cloud
	// console. It takes precedence over ClientID and ClientSecret.
	ClientSecretsFile string `toml:"client_secrets_file"`
	ClientID          string `toml:"client_id"`
	ClientSecret      string `toml:"client_secret"`

	// RedirectURL defaults to <base_url>/oauth2callback.
	RedirectURL string `toml:"redirect_url"`
}

// StoreMemory keeps credentials in process memory; they are lost on exit.
const StoreMemory = "memory"

// StoreConfig selects the credential store.
type StoreConfig struct {
	// Driver is "sqlite", "postgres" or "memory".
	Driver  string `toml:"driver"`
	DataDir string `toml:"data_dir"`
	DSN     string `toml:"dsn"`
}

// ServerConfig configures serve.
type ServerConfig struct {
	Transport      string `toml:"transport"`
	Addr           string `toml:"addr"`
	BaseURL        string `toml:"base_url"`
	AdminToken     string `toml:"admin_token"`
	CookieSecure   bool   `toml:"cookie_secure"`
	MetricsEnabled bool   `toml:"metrics_enabled"`
	MetricsAddr    string `toml:"metrics_addr"`
	MaxConcurrency int    `toml:"max_concurrency"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Format string `toml:"format"`
	Debug  bool   `toml:"debug"`
}

// Transports supported by serve.
const (
	TransportHTTP  = "http"
	TransportStdio = "stdio"
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{Driver: sqlstore.DialectSQLite},
		Server: ServerConfig{
			Transport:      TransportHTTP,
			Addr:           server.DefaultAPIAddr,
			MetricsEnabled: true,
			MetricsAddr:    server.DefaultMetricsAddr,
			MaxConcurrency: 8,
		},
		Log: LogConfig{Format: logging.FormatText},
	}
}

// DefaultConfigPath returns ~/.meetwhen/config.toml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".meetwhen", "config.toml")
}

// LoadConfigFile decodes path over cfg. A missing file is only an error
// when required is set.
func LoadConfigFile(path string, required bool, cfg *Config) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg with the environment variables that are set.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	var errs []error
	boolean := func(key string, dst *bool) {
		v := getenv(key)
		if v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s value %q (expected true/false)", key, v))
			return
		}
		*dst = b
	}

	str("GOOGLE_CLIENT_SECRETS_FILE", &cfg.Google.ClientSecretsFile)
	str("GOOGLE_CLIENT_ID", &cfg.Google.ClientID)
	str("GOOGLE_CLIENT_SECRET", &cfg.Google.ClientSecret)
	str("MEETWHEN_REDIRECT_URL", &cfg.Google.RedirectURL)

	// DATABASE_URL implies postgres unless a driver is named explicitly.
	if dsn := getenv("DATABASE_URL"); dsn != "" {
		cfg.Store.DSN = dsn
		cfg.Store.Driver = sqlstore.DialectPostgres
	}
	str("MEETWHEN_STORE", &cfg.Store.Driver)
	str("MEETWHEN_DATA_DIR", &cfg.Store.DataDir)

	str("MEETWHEN_TRANSPORT", &cfg.Server.Transport)
	str("MEETWHEN_ADDR", &cfg.Server.Addr)
	str("MEETWHEN_BASE_URL", &cfg.Server.BaseURL)
	str("MEETWHEN_ADMIN_TOKEN", &cfg.Server.AdminToken)
	boolean("MEETWHEN_COOKIE_SECURE", &cfg.Server.CookieSecure)
	boolean("METRICS_ENABLED", &cfg.Server.MetricsEnabled)
	str("METRICS_ADDR", &cfg.Server.MetricsAddr)
	if v := getenv("MEETWHEN_MAX_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid MEETWHEN_MAX_CONCURRENCY value %q", v))
		} else {
			cfg.Server.MaxConcurrency = n
		}
	}

	str("LOG_FORMAT", &cfg.Log.Format)
	boolean("MEETWHEN_DEBUG", &cfg.Log.Debug)

	return errors.Join(errs...)
}

// ApplyFlags copies every flag the user set from flagValues into cfg.
func ApplyFlags(flags *pflag.FlagSet, flagValues Config, cfg *Config) {
	overrides := map[string]func(){
		"client-secrets-file":  func() { cfg.Google.ClientSecretsFile = flagValues.Google.ClientSecretsFile },
		"google-client-id":     func() { cfg.Google.ClientID = flagValues.Google.ClientID },
		"google-client-secret": func() { cfg.Google.ClientSecret = flagValues.Google.ClientSecret },
		"redirect-url":         func() { cfg.Google.RedirectURL = flagValues.Google.RedirectURL },
		"store":                func() { cfg.Store.Driver = flagValues.Store.Driver },
		"data-dir":             func() { cfg.Store.DataDir = flagValues.Store.DataDir },
		"database-url":         func() { cfg.Store.DSN = flagValues.Store.DSN },
		"transport":            func() { cfg.Server.Transport = flagValues.Server.Transport },
		"addr":                 func() { cfg.Server.Addr = flagValues.Server.Addr },
		"base-url":             func() { cfg.Server.BaseURL = flagValues.Server.BaseURL },
		"admin-token":          func() { cfg.Server.AdminToken = flagValues.Server.AdminToken },
		"cookie-secure":        func() { cfg.Server.CookieSecure = flagValues.Server.CookieSecure },
		"metrics-enabled":      func() { cfg.Server.MetricsEnabled = flagValues.Server.MetricsEnabled },
		"metrics-addr":         func() { cfg.Server.MetricsAddr = flagValues.Server.MetricsAddr },
		"max-concurrency":      func() { cfg.Server.MaxConcurrency = flagValues.Server.MaxConcurrency },
		"log-format":           func() { cfg.Log.Format = flagValues.Log.Format },
		"debug":                func() { cfg.Log.Debug = flagValues.Log.Debug },
	}
	for name, apply := range overrides {
		if flags.Changed(name) {
			apply()
		}
	}
	if flags.Changed("database-url") && !flags.Changed("store") {
		cfg.Store.Driver = sqlstore.DialectPostgres
	}
}

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	if c.Store.Driver != StoreMemory {
		if err := c.StoreConfig().Validate(); err != nil {
			return fmt.Errorf("invalid store config: %w", err)
		}
	}
	switch c.Server.Transport {
	case TransportHTTP, TransportStdio:
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: %s, %s)", c.Server.Transport, TransportHTTP, TransportStdio)
	}
	if c.Server.MaxConcurrency < 0 {
		return fmt.Errorf("max concurrency cannot be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case logging.FormatText, logging.FormatJSON:
	default:
		return fmt.Errorf("unsupported log format: %s (supported: %s, %s)", c.Log.Format, logging.FormatText, logging.FormatJSON)
	}
	return nil
}

// StoreConfig converts the store section for sqlstore.Open.
func (c *Config) StoreConfig() sqlstore.Config {
	return sqlstore.Config{
		Dialect: c.Store.Driver,
		DataDir: c.Store.DataDir,
		DSN:     c.Store.DSN,
	}
}

// BaseURL returns the configured base URL or one derived from the listen
// address.
func (c *Config) BaseURL() string {
	if c.Server.BaseURL != "" {
		return strings.TrimSuffix(c.Server.BaseURL, "/")
	}
	host, port, err := net.SplitHostPort(c.Server.Addr)
	if err != nil {
		return "http://" + c.Server.Addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// ClientConfig builds the Google OAuth client configuration.
func (c *Config) ClientConfig() (*google.ClientConfig, error) {
	var cc *google.ClientConfig
	if c.Google.ClientSecretsFile != "" {
		loaded, err := google.LoadClientConfig(c.Google.ClientSecretsFile, c.Google.RedirectURL)
		if err != nil {
			return nil, err
		}
		cc = loaded
	} else {
		cc = &google.ClientConfig{
			ClientID:     c.Google.ClientID,
			ClientSecret: c.Google.ClientSecret,
			RedirectURL:  c.Google.RedirectURL,
		}
	}
	if cc.RedirectURL == "" {
		cc.RedirectURL = c.BaseURL() + "/oauth2callback"
	}

	if err := cc.Validate(); err != nil {
		return nil, fmt.Errorf("%w (set --client-secrets-file, or --google-client-id and --google-client-secret)", err)
	}
	return cc, nil
}
