package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	envPrefix             = "TABLEMATES"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultDatabasePath   = "tablemates.db"
	defaultLogLevel       = "info"
	defaultSessionIssuer  = "tablemates-auth"
	defaultCookieName     = "app_session"
	defaultAdminRole      = "admin"
	defaultTargetSize     = 6
	defaultFloor          = 4
	defaultAllowedOrigins = "*"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress        string   `validate:"required"`
	DatabasePath       string   `validate:"required"`
	LogLevel           string   `validate:"omitempty,oneof=debug info warn warning error"`
	SessionSigningKey  string   `validate:"required"`
	SessionIssuer      string   `validate:"required"`
	SessionCookieName  string   `validate:"required"`
	AdminRole          string   `validate:"required"`
	MatchingTargetSize int      `validate:"min=3"`
	MatchingFloor      int      `validate:"min=1,ltefield=MatchingTargetSize"`
	AllowedOrigins     []string `validate:"min=1,dive,required"`
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

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
	configViper.SetDefault("auth.issuer", defaultSessionIssuer)
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("auth.admin_role", defaultAdminRole)
	configViper.SetDefault("matching.target_size", defaultTargetSize)
	configViper.SetDefault("matching.floor", defaultFloor)
	configViper.SetDefault("cors.allowed_origins", defaultAllowedOrigins)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        strings.TrimSpace(configViper.GetString("http.address")),
		DatabasePath:       strings.TrimSpace(configViper.GetString("database.path")),
		LogLevel:           strings.ToLower(strings.TrimSpace(configViper.GetString("log.level"))),
		SessionSigningKey:  strings.TrimSpace(configViper.GetString("auth.signing_secret")),
		SessionIssuer:      strings.TrimSpace(configViper.GetString("auth.issuer")),
		SessionCookieName:  strings.TrimSpace(configViper.GetString("auth.cookie_name")),
		AdminRole:          strings.TrimSpace(configViper.GetString("auth.admin_role")),
		MatchingTargetSize: configViper.GetInt("matching.target_size"),
		MatchingFloor:      configViper.GetInt("matching.floor"),
		AllowedOrigins:     splitList(configViper.GetStringSlice("cors.allowed_origins")),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	err := structValidator.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return fmt.Errorf("config: %w", err)
	}
	first := fieldErrors[0]
	return fmt.Errorf("config: %s failed %q validation", configKeys[first.Field()], first.Tag())
}

var configKeys = map[string]string{
	"HTTPAddress":        "http.address",
	"DatabasePath":       "database.path",
	"LogLevel":           "log.level",
	"SessionSigningKey":  "auth.signing_secret",
	"SessionIssuer":      "auth.issuer",
	"SessionCookieName":  "auth.cookie_name",
	"AdminRole":          "auth.admin_role",
	"MatchingTargetSize": "matching.target_size",
	"MatchingFloor":      "matching.floor",
	"AllowedOrigins":     "cors.allowed_origins",
}

// splitList accepts both list values and a single comma separated string.
func splitList(values []string) []string {
	result := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
	}
	return result
}
