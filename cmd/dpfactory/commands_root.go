package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/sourceplane/dpfactory/internal/config"
	"github.com/sourceplane/dpfactory/internal/deploy"
	"github.com/sourceplane/dpfactory/internal/loader"
	"github.com/sourceplane/dpfactory/internal/logging"
	"github.com/sourceplane/dpfactory/internal/payload"
	"github.com/sourceplane/dpfactory/internal/render"
	"github.com/sourceplane/dpfactory/internal/starburst"
	"github.com/spf13/cobra"
)

var (
	envFile      string
	noColor      bool
	logLevel     string
	folder       string
	changedOnly  bool
	baseBranch   string
	longFormat   bool
	emitDir      string
	outputFormat string
	workers      int
)

// appConfig is populated by the root PersistentPreRunE.
var appConfig *config.Config

var rootCmd = &cobra.Command{
	Use:           "dpfactory",
	Short:         "Data Product deployment engine",
	Long:          "dpfactory validates declarative Data Product definitions and deploys them to a Starburst control plane",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file loaded before reading the environment (existing variables win)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug/info/warn/error), overrides LOG_LEVEL")

	registerDeployCommand(rootCmd)
	registerValidateCommand(rootCmd)
	registerCatalogCommand(rootCmd)
	registerHealthCommand(rootCmd)
	registerDomainsCommand(rootCmd)
}

func setup() error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	if _, err := logging.Setup(os.Stderr, cfg.LogFormat, cfg.SlogLevel()); err != nil {
		return err
	}
	for _, w := range cfg.Warnings {
		slog.Warn(w)
	}

	render.SetColor(!noColor && render.ColorSupported(os.Stdout))
	appConfig = cfg
	return nil
}

func newClient(cfg *config.Config) (*starburst.Client, error) {
	return starburst.NewClient(starburst.Options{
		BaseURL:            cfg.StarburstURL,
		User:               cfg.User,
		Password:           cfg.Password,
		DomainLocationBase: cfg.DomainLocationBase,
		RequestsPerSecond:  cfg.RateLimitRPS,
		HTTPClient:         &http.Client{Timeout: cfg.HTTPTimeout},
		Logger:             slog.Default(),
	})
}

// newLoader returns a definition loader resolving ${VAR} references from the
// environment and the --env-file.
func newLoader(cfg *config.Config) (*loader.Loader, error) {
	l, err := loader.NewLoader()
	if err != nil {
		return nil, err
	}
	return l.WithLookup(cfg.LookupEnv), nil
}

func payloadOptions(cfg *config.Config) payload.Options {
	return payload.Options{
		DefaultSecurityMode: cfg.SecurityMode,
		NormalizeSQL:        cfg.NormalizeSQL,
	}
}

func pollOptions(cfg *config.Config) deploy.PollOptions {
	opts := deploy.DefaultPollOptions()
	opts.Interval = cfg.PollInterval
	opts.MaxWait = cfg.PollMaxWait
	opts.Multiplier = cfg.PollBackoff
	return opts
}
