package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/meetwhen/internal/credentials/sqlstore"
)

func envMap(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, sqlstore.DialectSQLite, cfg.Store.Driver)
	assert.Equal(t, TransportHTTP, cfg.Server.Transport)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL())
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[google]
client_id = "file-id"
client_secret = "file-secret"

[store]
driver = "postgres"
dsn = "postgres://localhost/meetwhen"

[server]
base_url = "https://meetwhen.example.com/"
metrics_enabled = false
`), 0600))

	cfg := DefaultConfig()
	require.NoError(t, LoadConfigFile(path, true, &cfg))

	assert.Equal(t, "file-id", cfg.Google.ClientID)
	assert.Equal(t, sqlstore.DialectPostgres, cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/meetwhen", cfg.Store.DSN)
	assert.False(t, cfg.Server.MetricsEnabled)
	assert.Equal(t, "https://meetwhen.example.com", cfg.BaseURL())
	assert.Equal(t, ":8080", cfg.Server.Addr, "unset keys keep their defaults")
}

func TestLoadConfigFile_Missing(t *testing.T) {
	cfg := DefaultConfig()
	missing := filepath.Join(t.TempDir(), "nope.toml")

	assert.NoError(t, LoadConfigFile(missing, false, &cfg))
	assert.Equal(t, DefaultConfig(), cfg)

	assert.ErrorContains(t, LoadConfigFile(missing, true, &cfg), "failed to read config file")
}

func TestLoadConfigFile_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\naddr = 1"), 0600))

	cfg := DefaultConfig()
	assert.ErrorContains(t, LoadConfigFile(path, true, &cfg), "failed to parse config file")
}

func TestApplyEnv(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, ApplyEnv(&cfg, envMap(map[string]string{
		"GOOGLE_CLIENT_ID":         "env-id",
		"GOOGLE_CLIENT_SECRET":     "env-secret",
		"DATABASE_URL":             "postgres://db/meetwhen",
		"MEETWHEN_BASE_URL":        "https://env.example.com",
		"MEETWHEN_COOKIE_SECURE":   "true",
		"METRICS_ENABLED":          "false",
		"MEETWHEN_MAX_CONCURRENCY": "3",
		"LOG_FORMAT":               "json",
	})))

	assert.Equal(t, "env-id", cfg.Google.ClientID)
	assert.Equal(t, "env-secret", cfg.Google.ClientSecret)
	assert.Equal(t, sqlstore.DialectPostgres, cfg.Store.Driver, "DATABASE_URL implies postgres")
	assert.Equal(t, "postgres://db/meetwhen", cfg.Store.DSN)
	assert.True(t, cfg.Server.CookieSecure)
	assert.False(t, cfg.Server.MetricsEnabled)
	assert.Equal(t, 3, cfg.Server.MaxConcurrency)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestApplyEnv_ExplicitStoreWins(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, ApplyEnv(&cfg, envMap(map[string]string{
		"DATABASE_URL":   "postgres://db/meetwhen",
		"MEETWHEN_STORE": "sqlite",
	})))
	assert.Equal(t, sqlstore.DialectSQLite, cfg.Store.Driver)
}

func TestApplyEnv_InvalidValues(t *testing.T) {
	cfg := DefaultConfig()
	err := ApplyEnv(&cfg, envMap(map[string]string{
		"METRICS_ENABLED":          "sometimes",
		"MEETWHEN_MAX_CONCURRENCY": "lots",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "METRICS_ENABLED")
	assert.Contains(t, err.Error(), "MEETWHEN_MAX_CONCURRENCY")
}

func TestApplyFlags_OnlyChanged(t *testing.T) {
	values := DefaultConfig()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.StringVar(&values.Server.Addr, "addr", values.Server.Addr, "")
	flags.StringVar(&values.Store.DSN, "database-url", "", "")
	flags.StringVar(&values.Store.Driver, "store", values.Store.Driver, "")
	flags.BoolVar(&values.Log.Debug, "debug", false, "")
	require.NoError(t, flags.Parse([]string{"--addr", ":9999", "--database-url", "postgres://flag/db"}))

	cfg := DefaultConfig()
	cfg.Log.Debug = true // from the environment
	ApplyFlags(flags, values, &cfg)

	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "postgres://flag/db", cfg.Store.DSN)
	assert.Equal(t, sqlstore.DialectPostgres, cfg.Store.Driver)
	assert.True(t, cfg.Log.Debug, "unset flags keep lower layers")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{name: "unknown transport", mutate: func(c *Config) { c.Server.Transport = "grpc" }, errMsg: "unsupported transport type"},
		{name: "unknown store", mutate: func(c *Config) { c.Store.Driver = "mysql" }, errMsg: "invalid store config"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Store.Driver = sqlstore.DialectPostgres }, errMsg: "requires a DSN"},
		{name: "negative concurrency", mutate: func(c *Config) { c.Server.MaxConcurrency = -1 }, errMsg: "cannot be negative"},
		{name: "unknown log format", mutate: func(c *Config) { c.Log.Format = "xml" }, errMsg: "unsupported log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}
}

func TestConfig_ValidateStoreDrivers(t *testing.T) {
	tests := []struct {
		name    string
		driver  string
		dsn     string
		wantErr bool
	}{
		{name: "sqlite", driver: sqlstore.DialectSQLite},
		{name: "postgres with dsn", driver: sqlstore.DialectPostgres, dsn: "postgres://localhost/meetwhen"},
		{name: "memory", driver: StoreMemory},
		{name: "memory ignores dsn", driver: StoreMemory, dsn: "postgres://localhost/meetwhen"},
		{name: "unknown", driver: "mysql", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Store.Driver = tt.driver
			cfg.Store.DSN = tt.dsn
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
				return
			}
			assert.NoError(t, cfg.Validate())
		})
	}
}

func TestConfig_ClientConfig(t *testing.T) {
	t.Run("explicit credentials", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Google.ClientID = "id"
		cfg.Google.ClientSecret = "secret"
		cfg.Server.BaseURL = "https://meetwhen.example.com"

		cc, err := cfg.ClientConfig()
		require.NoError(t, err)
		assert.Equal(t, "id", cc.ClientID)
		assert.Equal(t, "https://meetwhen.example.com/oauth2callback", cc.RedirectURL)
	})

	t.Run("client secrets file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "client_secret.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"web":{
			"client_id":"file-id","client_secret":"file-secret",
			"auth_uri":"https://accounts.google.com/o/oauth2/auth",
			"token_uri":"https://oauth2.googleapis.com/token",
			"redirect_uris":["https://file.example.com/oauth2callback"]}}`), 0600))

		cfg := DefaultConfig()
		cfg.Google.ClientSecretsFile = path
		cfg.Google.ClientID = "ignored"

		cc, err := cfg.ClientConfig()
		require.NoError(t, err)
		assert.Equal(t, "file-id", cc.ClientID)
		assert.Equal(t, "https://file.example.com/oauth2callback", cc.RedirectURL)
	})

	t.Run("missing credentials", func(t *testing.T) {
		cfg := DefaultConfig()
		_, err := cfg.ClientConfig()
		assert.ErrorContains(t, err, "client ID is required")
	})
}

func TestConfig_BaseURL(t *testing.T) {
	tests := []struct {
		addr    string
		baseURL string
		want    string
	}{
		{addr: ":8080", want: "http://localhost:8080"},
		{addr: "0.0.0.0:9000", want: "http://localhost:9000"},
		{addr: "[::]:9000", want: "http://localhost:9000"},
		{addr: "127.0.0.1:8080", want: "http://127.0.0.1:8080"},
		{addr: ":8080", baseURL: "https://meetwhen.example.com/", want: "https://meetwhen.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.addr+tt.baseURL, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Server.Addr = tt.addr
			cfg.Server.BaseURL = tt.baseURL
			assert.Equal(t, tt.want, cfg.BaseURL())
		})
	}
}
