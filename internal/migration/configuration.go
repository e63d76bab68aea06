package migration

import (
	"strings"
	"time"
)

const (
	configurationDataDirectoryKeySuffixConstant    = ".data_directory"
	configurationTrackerPathKeySuffixConstant      = ".tracker_path"
	configurationMappingPathKeySuffixConstant      = ".mapping_path"
	configurationWorkersKeySuffixConstant          = ".workers"
	configurationGracePeriodKeySuffixConstant      = ".grace_period_seconds"
	configurationMaxAttemptsKeySuffixConstant      = ".max_attempts"
	configurationBaseDelayKeySuffixConstant        = ".base_delay_ms"
	configurationMultiplierKeySuffixConstant       = ".backoff_multiplier"
	configurationAttachmentsFatalKeySuffixConstant = ".attachment_failures_fatal"
	defaultDataDirectoryConstant                   = "data_to_be_migrated"
	defaultTrackerPathConstant                     = "tracker/migration_tracker.db"
	defaultWorkerConfigurationConstant             = 4
	defaultGracePeriodSecondsConstant              = 30
	defaultMaxAttemptsConfigurationConstant        = 3
	defaultBaseDelayMillisecondsConstant           = 1000
	defaultBackoffMultiplierConfigurationConstant  = 2.0
)

// CommandConfiguration captures persisted configuration for the migrate command.
type CommandConfiguration struct {
	DataDirectory           string  `mapstructure:"data_directory"`
	TrackerPath             string  `mapstructure:"tracker_path"`
	MappingPath             string  `mapstructure:"mapping_path"`
	Workers                 int     `mapstructure:"workers"`
	GracePeriodSeconds      int     `mapstructure:"grace_period_seconds"`
	MaxAttempts             int     `mapstructure:"max_attempts"`
	BaseDelayMilliseconds   int     `mapstructure:"base_delay_ms"`
	BackoffMultiplier       float64 `mapstructure:"backoff_multiplier"`
	AttachmentFailuresFatal bool    `mapstructure:"attachment_failures_fatal"`
}

// DefaultConfigurationValues returns baseline configuration values keyed beneath the provided prefix.
func DefaultConfigurationValues(configurationKeyPrefix string) map[string]any {
	return map[string]any{
		configurationKeyPrefix + configurationDataDirectoryKeySuffixConstant:    defaultDataDirectoryConstant,
		configurationKeyPrefix + configurationTrackerPathKeySuffixConstant:      defaultTrackerPathConstant,
		configurationKeyPrefix + configurationMappingPathKeySuffixConstant:      "",
		configurationKeyPrefix + configurationWorkersKeySuffixConstant:          defaultWorkerConfigurationConstant,
		configurationKeyPrefix + configurationGracePeriodKeySuffixConstant:      defaultGracePeriodSecondsConstant,
		configurationKeyPrefix + configurationMaxAttemptsKeySuffixConstant:      defaultMaxAttemptsConfigurationConstant,
		configurationKeyPrefix + configurationBaseDelayKeySuffixConstant:        defaultBaseDelayMillisecondsConstant,
		configurationKeyPrefix + configurationMultiplierKeySuffixConstant:       defaultBackoffMultiplierConfigurationConstant,
		configurationKeyPrefix + configurationAttachmentsFatalKeySuffixConstant: false,
	}
}

// Sanitize trims configured values and applies defaults for absent entries.
func (configuration CommandConfiguration) Sanitize() CommandConfiguration {
	sanitized := configuration
	sanitized.DataDirectory = strings.TrimSpace(configuration.DataDirectory)
	if len(sanitized.DataDirectory) == 0 {
		sanitized.DataDirectory = defaultDataDirectoryConstant
	}
	sanitized.TrackerPath = strings.TrimSpace(configuration.TrackerPath)
	if len(sanitized.TrackerPath) == 0 {
		sanitized.TrackerPath = defaultTrackerPathConstant
	}
	sanitized.MappingPath = strings.TrimSpace(configuration.MappingPath)
	if sanitized.Workers <= 0 {
		sanitized.Workers = defaultWorkerConfigurationConstant
	}
	if sanitized.GracePeriodSeconds <= 0 {
		sanitized.GracePeriodSeconds = defaultGracePeriodSecondsConstant
	}
	if sanitized.MaxAttempts <= 0 {
		sanitized.MaxAttempts = defaultMaxAttemptsConfigurationConstant
	}
	if sanitized.BaseDelayMilliseconds <= 0 {
		sanitized.BaseDelayMilliseconds = defaultBaseDelayMillisecondsConstant
	}
	if sanitized.BackoffMultiplier <= 0 {
		sanitized.BackoffMultiplier = defaultBackoffMultiplierConfigurationConstant
	}
	return sanitized
}

// GracePeriod converts the configured grace period into a duration.
func (configuration CommandConfiguration) GracePeriod() time.Duration {
	return time.Duration(configuration.GracePeriodSeconds) * time.Second
}

// BaseDelay converts the configured retry base delay into a duration.
func (configuration CommandConfiguration) BaseDelay() time.Duration {
	return time.Duration(configuration.BaseDelayMilliseconds) * time.Millisecond
}
