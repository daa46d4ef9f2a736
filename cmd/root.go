package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/meetwhen/internal/logging"
)

// rootCmd represents the base command for the meetwhen application
var rootCmd = &cobra.Command{
	Use:   "meetwhen",
	Short: "Finds time when everyone is free",
	Long: `meetwhen computes the common free time of several people from their
Google calendars. Each person authorizes read access to their free/busy
information once; meetwhen keeps the tokens and refreshes them as needed.

It can run as:
  - A one-shot CLI query (find)
  - An HTTP API server with the Google consent flow (serve)
  - An MCP (Model Context Protocol) server for AI assistants (serve --transport stdio)`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

var (
	// configPath is the --config flag.
	configPath string

	// flagValues receives every configuration flag; only flags the user set
	// are merged over the file and environment.
	flagValues = DefaultConfig()
)

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "meetwhen version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// loadConfig merges defaults, the config file, the environment and the
// flags set on cmd.
func loadConfig(cmd *cobra.Command) (Config, error) {
	cfg := DefaultConfig()

	path, required := configPath, cmd.Flags().Changed("config")
	if !required {
		if env := os.Getenv("MEETWHEN_CONFIG"); env != "" {
			path, required = env, true
		} else {
			path = DefaultConfigPath()
		}
	}
	if err := LoadConfigFile(path, required, &cfg); err != nil {
		return Config{}, err
	}
	if err := ApplyEnv(&cfg, os.Getenv); err != nil {
		return Config{}, err
	}
	ApplyFlags(cmd.Flags(), flagValues, &cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Config file (default: ~/.meetwhen/config.toml). Can also use MEETWHEN_CONFIG env var.")
	flags.BoolVar(&flagValues.Log.Debug, "debug", false, "Enable debug logging")
	flags.StringVar(&flagValues.Log.Format, "log-format", logging.FormatText, "Log format: text or json. Can also use LOG_FORMAT env var.")

	flags.StringVar(&flagValues.Google.ClientSecretsFile, "client-secrets-file", "", "Path to the Google OAuth client_secret.json. Can also use GOOGLE_CLIENT_SECRETS_FILE env var.")
	flags.StringVar(&flagValues.Google.ClientID, "google-client-id", "", "Google OAuth Client ID. Can also use GOOGLE_CLIENT_ID env var.")
	flags.StringVar(&flagValues.Google.ClientSecret, "google-client-secret", "", "Google OAuth Client Secret. Can also use GOOGLE_CLIENT_SECRET env var.")
	flags.StringVar(&flagValues.Google.RedirectURL, "redirect-url", "", "OAuth redirect URL (default: <base-url>/oauth2callback). Can also use MEETWHEN_REDIRECT_URL env var.")

	flags.StringVar(&flagValues.Store.Driver, "store", flagValues.Store.Driver, "Credential store: sqlite, postgres or memory. Can also use MEETWHEN_STORE env var.")
	flags.StringVar(&flagValues.Store.DataDir, "data-dir", "", "Directory for the sqlite credential store (default: ~/.meetwhen). Can also use MEETWHEN_DATA_DIR env var.")
	flags.StringVar(&flagValues.Store.DSN, "database-url", "", "PostgreSQL connection string; implies --store postgres. Can also use DATABASE_URL env var.")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newFindCmd())
	rootCmd.AddCommand(newCredentialsCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
}
