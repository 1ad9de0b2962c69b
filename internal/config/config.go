package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                = "DAYBOOK"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabasePath      = "daybook.db"
	defaultLogLevel          = "info"
	defaultLogMaxSizeMB      = 50
	defaultLogMaxBackups     = 3
	defaultLogMaxAgeDays     = 28
	defaultTokenIssuer       = "daybook-auth"
	defaultTokenAudience     = "daybook-api"
	defaultTokenTTLMinutes   = 7 * 24 * 60
	defaultFreshnessPolicy   = "trust"
	freshnessPolicyTrust     = "trust"
	freshnessPolicyReject    = "reject"
	corsAllowedOriginsKey    = "cors.allowed_origins"
	defaultCORSAllowedOrigin = "*"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress        string
	DatabasePath       string
	LogLevel           string
	LogFile            string
	LogMaxSizeMB       int
	LogMaxBackups      int
	LogMaxAgeDays      int
	SigningSecret      string
	TokenIssuer        string
	TokenAudience      string
	TokenTTL           time.Duration
	FreshnessPolicy    string
	CORSAllowedOrigins []string
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

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.file", "")
	configViper.SetDefault("log.max_size_mb", defaultLogMaxSizeMB)
	configViper.SetDefault("log.max_backups", defaultLogMaxBackups)
	configViper.SetDefault("log.max_age_days", defaultLogMaxAgeDays)
	configViper.SetDefault("auth.issuer", defaultTokenIssuer)
	configViper.SetDefault("auth.audience", defaultTokenAudience)
	configViper.SetDefault("token.ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("sync.freshness_policy", defaultFreshnessPolicy)
	configViper.SetDefault(corsAllowedOriginsKey, []string{defaultCORSAllowedOrigin})
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		DatabasePath:       configViper.GetString("database.path"),
		LogLevel:           configViper.GetString("log.level"),
		LogFile:            configViper.GetString("log.file"),
		LogMaxSizeMB:       configViper.GetInt("log.max_size_mb"),
		LogMaxBackups:      configViper.GetInt("log.max_backups"),
		LogMaxAgeDays:      configViper.GetInt("log.max_age_days"),
		SigningSecret:      configViper.GetString("auth.signing_secret"),
		TokenIssuer:        configViper.GetString("auth.issuer"),
		TokenAudience:      configViper.GetString("auth.audience"),
		TokenTTL:           time.Duration(configViper.GetInt("token.ttl_minutes")) * time.Minute,
		FreshnessPolicy:    strings.ToLower(strings.TrimSpace(configViper.GetString("sync.freshness_policy"))),
		CORSAllowedOrigins: configViper.GetStringSlice(corsAllowedOriginsKey),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// LoadStorage parses only the settings needed to open the database, so that
// maintenance commands run without an auth secret.
func LoadStorage(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		DatabasePath:  configViper.GetString("database.path"),
		LogLevel:      configViper.GetString("log.level"),
		LogFile:       configViper.GetString("log.file"),
		LogMaxSizeMB:  configViper.GetInt("log.max_size_mb"),
		LogMaxBackups: configViper.GetInt("log.max_backups"),
		LogMaxAgeDays: configViper.GetInt("log.max_age_days"),
	}
	if strings.TrimSpace(cfg.DatabasePath) == "" {
		return AppConfig{}, fmt.Errorf("database.path is required")
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.TokenIssuer) == "" || strings.TrimSpace(c.TokenAudience) == "" {
		return fmt.Errorf("auth.issuer and auth.audience are required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token.ttl_minutes must be positive")
	}
	switch c.FreshnessPolicy {
	case freshnessPolicyTrust, freshnessPolicyReject:
	default:
		return fmt.Errorf("sync.freshness_policy must be %q or %q, got %q", freshnessPolicyTrust, freshnessPolicyReject, c.FreshnessPolicy)
	}
	if len(c.CORSAllowedOrigins) == 0 {
		return fmt.Errorf("%s must not be empty", corsAllowedOriginsKey)
	}
	return nil
}
