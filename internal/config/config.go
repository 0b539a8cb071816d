package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "DINNERVOTE"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDatabaseDriver  = DriverSQLite
	defaultDatabasePath    = "dinnervote.db"
	defaultLogLevel        = "info"
	defaultCookieName      = "dinnervote_session"
	defaultSessionTTLHours = 24 * 30
	defaultDisplayTimezone = "Asia/Taipei"
	defaultSweepInterval   = 10 * time.Minute

	// DriverSQLite selects the pure-Go SQLite driver.
	DriverSQLite = "sqlite"
	// DriverPostgres selects the PostgreSQL driver.
	DriverPostgres = "postgres"
)

const (
	KeyHTTPAddress          = "http.address"
	KeyHTTPAllowedOrigins   = "http.allowed_origins"
	KeyDatabaseDriver       = "database.driver"
	KeyDatabasePath         = "database.path"
	KeyDatabaseDSN          = "database.dsn"
	KeyLogLevel             = "log.level"
	KeySessionSigningSecret = "session.signing_secret"
	KeySessionCookieName    = "session.cookie_name"
	KeySessionTTLHours      = "session.ttl_hours"
	KeySessionSecureCookie  = "session.secure_cookie"
	KeyDisplayTimezone      = "display.timezone"
	KeySweepInterval        = "sweep.interval"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress          string
	AllowedOrigins       []string
	DatabaseDriver       string
	DatabasePath         string
	DatabaseDSN          string
	LogLevel             string
	SessionSigningSecret string
	SessionCookieName    string
	SessionTTL           time.Duration
	SessionSecureCookie  bool
	DisplayTimezone      string
	DisplayLocation      *time.Location
	SweepInterval        time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault(KeyHTTPAddress, defaultHTTPAddress)
	configViper.SetDefault(KeyHTTPAllowedOrigins, []string{})
	configViper.SetDefault(KeyDatabaseDriver, defaultDatabaseDriver)
	configViper.SetDefault(KeyDatabasePath, defaultDatabasePath)
	configViper.SetDefault(KeyLogLevel, defaultLogLevel)
	configViper.SetDefault(KeySessionCookieName, defaultCookieName)
	configViper.SetDefault(KeySessionTTLHours, defaultSessionTTLHours)
	configViper.SetDefault(KeySessionSecureCookie, false)
	configViper.SetDefault(KeyDisplayTimezone, defaultDisplayTimezone)
	configViper.SetDefault(KeySweepInterval, defaultSweepInterval)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:          configViper.GetString(KeyHTTPAddress),
		AllowedOrigins:       configViper.GetStringSlice(KeyHTTPAllowedOrigins),
		DatabaseDriver:       strings.ToLower(strings.TrimSpace(configViper.GetString(KeyDatabaseDriver))),
		DatabasePath:         configViper.GetString(KeyDatabasePath),
		DatabaseDSN:          configViper.GetString(KeyDatabaseDSN),
		LogLevel:             configViper.GetString(KeyLogLevel),
		SessionSigningSecret: configViper.GetString(KeySessionSigningSecret),
		SessionCookieName:    configViper.GetString(KeySessionCookieName),
		SessionTTL:           time.Duration(configViper.GetInt(KeySessionTTLHours)) * time.Hour,
		SessionSecureCookie:  configViper.GetBool(KeySessionSecureCookie),
		DisplayTimezone:      strings.TrimSpace(configViper.GetString(KeyDisplayTimezone)),
		SweepInterval:        configViper.GetDuration(KeySweepInterval),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	location, err := time.LoadLocation(cfg.DisplayTimezone)
	if err != nil {
		return AppConfig{}, fmt.Errorf("%s is invalid: %w", KeyDisplayTimezone, err)
	}
	cfg.DisplayLocation = location

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SessionSigningSecret) == "" {
		return fmt.Errorf("%s is required", KeySessionSigningSecret)
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("%s is required", KeySessionCookieName)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("%s must be positive", KeySessionTTLHours)
	}
	switch c.DatabaseDriver {
	case DriverSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("%s is required", KeyDatabasePath)
		}
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("%s is required for the %s driver", KeyDatabaseDSN, DriverPostgres)
		}
	default:
		return fmt.Errorf("%s %q is not supported", KeyDatabaseDriver, c.DatabaseDriver)
	}
	if c.DisplayTimezone == "" {
		return fmt.Errorf("%s is required", KeyDisplayTimezone)
	}
	if c.SweepInterval < 0 {
		return fmt.Errorf("%s must not be negative", KeySweepInterval)
	}
	return nil
}
