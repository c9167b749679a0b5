// Package config handles environment and .env configuration for dpfactory.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultHTTPTimeout  = 30 * time.Second
	DefaultPollInterval = 2 * time.Second
	DefaultPollMaxWait  = 30 * time.Minute
	DefaultPollBackoff  = 1.0
	DefaultSecurityMode = "INVOKER"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
)

// Variable names, lower-cased as viper stores them. AutomaticEnv maps each
// back to its upper-case environment variable.
const (
	keyURL                = "sb_url"
	keyUser               = "sb_user"
	keyPassword           = "sb_password"
	keyDomainLocationBase = "sb_domain_location_base"
	keyRateLimitRPS       = "sb_rate_limit_rps"
	keyHTTPTimeout        = "sb_http_timeout"
	keyPollInterval       = "dp_poll_interval"
	keyPollMaxWait        = "dp_poll_max_wait"
	keyPollBackoff        = "dp_poll_backoff"
	keySecurityMode       = "dp_security_mode"
	keyNormalizeSQL       = "dp_normalize_sql"
	keyLogLevel           = "log_level"
	keyLogFormat          = "log_format"
)

// Config holds everything the CLI needs to talk to the control plane.
type Config struct {
	StarburstURL       string // SB_URL
	User               string // SB_USER
	Password           string // SB_PASSWORD
	DomainLocationBase string // SB_DOMAIN_LOCATION_BASE, optional

	RateLimitRPS float64       // SB_RATE_LIMIT_RPS, 0 disables throttling
	HTTPTimeout  time.Duration // SB_HTTP_TIMEOUT

	PollInterval time.Duration // DP_POLL_INTERVAL
	PollMaxWait  time.Duration // DP_POLL_MAX_WAIT
	PollBackoff  float64       // DP_POLL_BACKOFF, multiplier applied to the interval after each poll

	SecurityMode string // DP_SECURITY_MODE
	NormalizeSQL bool   // DP_NORMALIZE_SQL

	LogLevel  string // LOG_LEVEL: debug, info, warn, error
	LogFormat string // LOG_FORMAT: text or json

	// Warnings collects values that could not be parsed and were replaced
	// by defaults. The caller logs them once the logger exists.
	Warnings []string

	v *viper.Viper
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate checks that the connection settings are present.
func (c *Config) Validate() error {
	return c.requireSet(nil)
}

// ValidateDeploy is Validate plus the storage base that newly created domains
// derive their schema location from.
func (c *Config) ValidateDeploy() error {
	var extra []string
	if c.DomainLocationBase == "" {
		extra = append(extra, "SB_DOMAIN_LOCATION_BASE")
	}
	return c.requireSet(extra)
}

func (c *Config) requireSet(extra []string) error {
	var missing []string
	if c.StarburstURL == "" {
		missing = append(missing, "SB_URL")
	}
	if c.User == "" {
		missing = append(missing, "SB_USER")
	}
	if c.Password == "" {
		missing = append(missing, "SB_PASSWORD")
	}
	missing = append(missing, extra...)
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

// LookupEnv resolves a variable referenced from a definition file: the
// process environment first, then the .env file the config was loaded with.
// Empty environment values do not hide a value from the file.
func (c *Config) LookupEnv(name string) (string, bool) {
	val, ok := os.LookupEnv(name)
	if ok && val != "" {
		return val, true
	}
	if c.v != nil && c.v.InConfig(name) {
		return c.v.GetString(name), true
	}
	return val, ok
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

// Load reads configuration from the environment and from envFile, a dotenv
// file. The environment wins over the file; a missing file is not an error.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault(keyHTTPTimeout, DefaultHTTPTimeout)
	v.SetDefault(keyPollInterval, DefaultPollInterval)
	v.SetDefault(keyPollMaxWait, DefaultPollMaxWait)
	v.SetDefault(keyPollBackoff, DefaultPollBackoff)
	v.SetDefault(keySecurityMode, DefaultSecurityMode)
	v.SetDefault(keyLogLevel, DefaultLogLevel)
	v.SetDefault(keyLogFormat, DefaultLogFormat)

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil && !isNotFound(err) {
			return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
		}
	}

	cfg := &Config{
		StarburstURL:       strings.TrimSpace(v.GetString(keyURL)),
		User:               v.GetString(keyUser),
		Password:           v.GetString(keyPassword),
		DomainLocationBase: strings.TrimSpace(v.GetString(keyDomainLocationBase)),
		SecurityMode:       strings.ToUpper(strings.TrimSpace(v.GetString(keySecurityMode))),
		LogLevel:           v.GetString(keyLogLevel),
		LogFormat:          strings.ToLower(strings.TrimSpace(v.GetString(keyLogFormat))),
		v:                  v,
	}

	if v.IsSet(keyRateLimitRPS) {
		rps, err := cast.ToFloat64E(v.Get(keyRateLimitRPS))
		if err != nil || rps < 0 {
			cfg.warn("SB_RATE_LIMIT_RPS=%q is not a non-negative number, throttling disabled", v.GetString(keyRateLimitRPS))
		} else {
			cfg.RateLimitRPS = rps
		}
	}
	cfg.HTTPTimeout = cfg.duration(keyHTTPTimeout, DefaultHTTPTimeout)
	cfg.PollInterval = cfg.duration(keyPollInterval, DefaultPollInterval)
	cfg.PollMaxWait = cfg.duration(keyPollMaxWait, DefaultPollMaxWait)

	cfg.PollBackoff = DefaultPollBackoff
	if backoff, err := cast.ToFloat64E(v.Get(keyPollBackoff)); err != nil || backoff < 1 {
		cfg.warn("DP_POLL_BACKOFF=%q must be a number >= 1, using %.1f", v.GetString(keyPollBackoff), DefaultPollBackoff)
	} else {
		cfg.PollBackoff = backoff
	}

	if v.IsSet(keyNormalizeSQL) {
		normalize, err := cast.ToBoolE(v.Get(keyNormalizeSQL))
		if err != nil {
			cfg.warn("DP_NORMALIZE_SQL=%q is not a boolean, SQL is sent verbatim", v.GetString(keyNormalizeSQL))
		}
		cfg.NormalizeSQL = normalize
	}

	if cfg.SecurityMode == "" {
		cfg.SecurityMode = DefaultSecurityMode
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	switch cfg.LogFormat {
	case "", "text":
		cfg.LogFormat = "text"
	case "json":
	default:
		return nil, fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	return cfg, nil
}

func (c *Config) duration(key string, def time.Duration) time.Duration {
	d, err := cast.ToDurationE(c.v.Get(key))
	if err != nil || d <= 0 {
		c.warn("%s=%q is not a positive duration, using %s", strings.ToUpper(key), c.v.GetString(key), def)
		return def
	}
	return d
}

func isNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.Is(err, fs.ErrNotExist) || errors.As(err, &notFound)
}

func (c *Config) warn(format string, args ...interface{}) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}
