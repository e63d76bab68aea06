package remote

import (
	"strings"
	"time"
)

const (
	configurationBaseURLKeySuffixConstant     = ".base_url"
	configurationEmailKeySuffixConstant       = ".email"
	configurationAPITokenKeySuffixConstant    = ".api_token"
	configurationProjectKeyKeySuffixConstant  = ".project_key"
	configurationCallTimeoutKeySuffixConstant = ".call_timeout_seconds"
	defaultProjectKeyConstant                 = "FTJM"
	defaultCallTimeoutSecondsConstant         = 60
)

// Configuration captures persisted settings for the destination tracker connection.
type Configuration struct {
	BaseURL            string `mapstructure:"base_url"`
	Email              string `mapstructure:"email"`
	APIToken           string `mapstructure:"api_token"`
	ProjectKey         string `mapstructure:"project_key"`
	CallTimeoutSeconds int    `mapstructure:"call_timeout_seconds"`
}

// DefaultConfigurationValues returns baseline configuration values keyed beneath the provided prefix.
func DefaultConfigurationValues(configurationKeyPrefix string) map[string]any {
	return map[string]any{
		configurationKeyPrefix + configurationBaseURLKeySuffixConstant:     "",
		configurationKeyPrefix + configurationEmailKeySuffixConstant:       "",
		configurationKeyPrefix + configurationAPITokenKeySuffixConstant:    "",
		configurationKeyPrefix + configurationProjectKeyKeySuffixConstant:  defaultProjectKeyConstant,
		configurationKeyPrefix + configurationCallTimeoutKeySuffixConstant: defaultCallTimeoutSecondsConstant,
	}
}

// Sanitize trims configured values and applies defaults for absent entries.
func (configuration Configuration) Sanitize() Configuration {
	sanitized := configuration
	sanitized.BaseURL = strings.TrimSpace(configuration.BaseURL)
	sanitized.Email = strings.TrimSpace(configuration.Email)
	sanitized.APIToken = strings.TrimSpace(configuration.APIToken)
	sanitized.ProjectKey = strings.TrimSpace(configuration.ProjectKey)
	if len(sanitized.ProjectKey) == 0 {
		sanitized.ProjectKey = defaultProjectKeyConstant
	}
	if sanitized.CallTimeoutSeconds <= 0 {
		sanitized.CallTimeoutSeconds = defaultCallTimeoutSecondsConstant
	}
	return sanitized
}

// CallTimeout converts the configured timeout into a duration.
func (configuration Configuration) CallTimeout() time.Duration {
	return time.Duration(configuration.CallTimeoutSeconds) * time.Second
}
