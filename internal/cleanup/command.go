package cleanup

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/ticketbridge/internal/remote"
	"github.com/temirov/ticketbridge/internal/retry"
	"github.com/temirov/ticketbridge/internal/tracker"
	flagutils "github.com/temirov/ticketbridge/internal/utils/flags"
	pathutils "github.com/temirov/ticketbridge/internal/utils/path"
)

const (
	commandUseConstant                     = "cleanup"
	commandShortDescriptionConstant        = "Find and delete orphaned remote issues"
	commandLongDescriptionConstant         = "cleanup lists remote issues inside a key range, diffs them against the progress tracker, and reports issues that were created but never confirmed. Deletion requires the --delete flag; the default mode only analyzes."
	startKeyFlagNameConstant               = "start-key"
	startKeyFlagUsageConstant              = "First remote issue key of the range to scan"
	endKeyFlagNameConstant                 = "end-key"
	endKeyFlagUsageConstant                = "Last remote issue key of the range to scan"
	deleteFlagNameConstant                 = "delete"
	deleteFlagUsageConstant                = "Delete the orphaned issues instead of only reporting them"
	keyRangeRequiredMessageConstant        = "both --start-key and --end-key must be provided"
	trackerOpenErrorTemplateConstant       = "unable to open progress tracker: %w"
	gatewayErrorTemplateConstant           = "unable to construct issue gateway: %w"
	serviceConstructionErrorTemplate       = "unable to construct cleanup service: %w"
	cleanupSummaryMessageConstant          = "Cleanup summary"
	noOrphansMessageConstant               = "No orphaned remote issues found"
	logFieldTotalOrphanedConstant          = "total_orphaned"
	logFieldDeletedConstant                = "deleted"
	logFieldFailedConstant                 = "failed"
	defaultTrackerPathConstant             = "tracker/migration_tracker.db"
	configurationTrackerPathKeySuffix      = ".tracker_path"
	configurationPageSizeKeySuffixConstant = ".page_size"
	defaultSearchPageSizeConstant          = 100
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// ServiceProvider constructs a cleanup executor from dependencies.
type ServiceProvider func(dependencies ServiceDependencies) (*Service, error)

// CommandConfiguration captures persisted configuration for the cleanup command.
type CommandConfiguration struct {
	TrackerPath string `mapstructure:"tracker_path"`
	PageSize    int    `mapstructure:"page_size"`
}

// DefaultConfigurationValues returns baseline configuration values keyed beneath the provided prefix.
func DefaultConfigurationValues(configurationKeyPrefix string) map[string]any {
	return map[string]any{
		configurationKeyPrefix + configurationTrackerPathKeySuffix:      defaultTrackerPathConstant,
		configurationKeyPrefix + configurationPageSizeKeySuffixConstant: defaultSearchPageSizeConstant,
	}
}

// Sanitize trims configured values and applies defaults for absent entries.
func (configuration CommandConfiguration) Sanitize() CommandConfiguration {
	sanitized := configuration
	sanitized.TrackerPath = strings.TrimSpace(configuration.TrackerPath)
	if len(sanitized.TrackerPath) == 0 {
		sanitized.TrackerPath = defaultTrackerPathConstant
	}
	if sanitized.PageSize <= 0 {
		sanitized.PageSize = defaultSearchPageSizeConstant
	}
	return sanitized
}

// GatewayProvider constructs the remote gateway for a cleanup run.
type GatewayProvider func(remoteConfiguration remote.Configuration) (RemoteIssueOperations, error)

// TrackerProvider constructs the tracked-entry source for a cleanup run.
type TrackerProvider func(configuration CommandConfiguration) (TrackedEntrySource, func() error, error)

// CommandBuilder assembles the cleanup Cobra command.
type CommandBuilder struct {
	LoggerProvider              LoggerProvider
	ConfigurationProvider       func() CommandConfiguration
	RemoteConfigurationProvider func() remote.Configuration
	GatewayProvider             GatewayProvider
	TrackerProvider             TrackerProvider
	ServiceProvider             ServiceProvider
}

var errKeyRangeRequired = errors.New(keyRangeRequiredMessageConstant)

// Build constructs the cleanup command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	var deleteOrphans bool

	command := &cobra.Command{
		Use:           commandUseConstant,
		Short:         commandShortDescriptionConstant,
		Long:          commandLongDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			return builder.runCleanup(command, deleteOrphans)
		},
	}

	command.Flags().String(startKeyFlagNameConstant, "", startKeyFlagUsageConstant)
	command.Flags().String(endKeyFlagNameConstant, "", endKeyFlagUsageConstant)
	flagutils.AddToggleFlag(command.Flags(), &deleteOrphans, deleteFlagNameConstant, "", false, deleteFlagUsageConstant)

	return command, nil
}

func (builder *CommandBuilder) runCleanup(command *cobra.Command, deleteOrphans bool) error {
	startKey, _ := command.Flags().GetString(startKeyFlagNameConstant)
	endKey, _ := command.Flags().GetString(endKeyFlagNameConstant)

	startKey = strings.TrimSpace(startKey)
	endKey = strings.TrimSpace(endKey)
	if len(startKey) == 0 || len(endKey) == 0 {
		return errKeyRangeRequired
	}

	logger := builder.resolveLogger()
	configuration := builder.resolveConfiguration()
	remoteConfiguration := builder.resolveRemoteConfiguration()

	trackedEntrySource, closeTracker, trackerError := builder.resolveTracker(configuration)
	if trackerError != nil {
		return trackerError
	}
	defer closeTracker()

	remoteGateway, gatewayError := builder.resolveGateway(remoteConfiguration)
	if gatewayError != nil {
		return gatewayError
	}

	retryPolicy := retry.NewPolicy(retry.PolicyOptions{Logger: logger})

	cleanupService, serviceError := builder.resolveService(ServiceDependencies{
		Logger:  logger,
		Gateway: remoteGateway,
		Tracker: trackedEntrySource,
		Retrier: retryPolicy,
	})
	if serviceError != nil {
		return fmt.Errorf(serviceConstructionErrorTemplate, serviceError)
	}

	searchQuery := remote.IssueSearchQuery{
		ProjectKey: remoteConfiguration.ProjectKey,
		StartKey:   startKey,
		EndKey:     endKey,
		PageSize:   configuration.PageSize,
	}

	orphanedIssues, findError := cleanupService.FindOrphans(command.Context(), searchQuery)
	if findError != nil {
		return findError
	}

	if len(orphanedIssues) == 0 {
		logger.Info(noOrphansMessageConstant)
		return nil
	}

	cleanupStatistics := cleanupService.Cleanup(command.Context(), orphanedIssues, !deleteOrphans)

	logger.Info(
		cleanupSummaryMessageConstant,
		zap.Int(logFieldTotalOrphanedConstant, cleanupStatistics.TotalOrphaned),
		zap.Int(logFieldDeletedConstant, cleanupStatistics.Deleted),
		zap.Int(logFieldFailedConstant, cleanupStatistics.Failed),
	)

	return nil
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider != nil {
		if logger := builder.LoggerProvider(); logger != nil {
			return logger
		}
	}
	return zap.NewNop()
}

func (builder *CommandBuilder) resolveConfiguration() CommandConfiguration {
	if builder.ConfigurationProvider == nil {
		return CommandConfiguration{}.Sanitize()
	}
	return builder.ConfigurationProvider().Sanitize()
}

func (builder *CommandBuilder) resolveRemoteConfiguration() remote.Configuration {
	if builder.RemoteConfigurationProvider == nil {
		return remote.Configuration{}.Sanitize()
	}
	return builder.RemoteConfigurationProvider().Sanitize()
}

func (builder *CommandBuilder) resolveTracker(configuration CommandConfiguration) (TrackedEntrySource, func() error, error) {
	if builder.TrackerProvider != nil {
		return builder.TrackerProvider(configuration)
	}

	trackerStore, openError := tracker.Open(pathutils.NewHomeExpander().Expand(configuration.TrackerPath))
	if openError != nil {
		return nil, nil, fmt.Errorf(trackerOpenErrorTemplateConstant, openError)
	}
	return trackerStore, trackerStore.Close, nil
}

func (builder *CommandBuilder) resolveGateway(remoteConfiguration remote.Configuration) (RemoteIssueOperations, error) {
	if builder.GatewayProvider != nil {
		return builder.GatewayProvider(remoteConfiguration)
	}

	remoteClient, clientError := remote.NewClient(remote.ClientOptions{
		BaseURL:     remoteConfiguration.BaseURL,
		Email:       remoteConfiguration.Email,
		APIToken:    remoteConfiguration.APIToken,
		CallTimeout: remoteConfiguration.CallTimeout(),
	})
	if clientError != nil {
		return nil, fmt.Errorf(gatewayErrorTemplateConstant, clientError)
	}
	return remoteClient, nil
}

func (builder *CommandBuilder) resolveService(dependencies ServiceDependencies) (*Service, error) {
	if builder.ServiceProvider != nil {
		return builder.ServiceProvider(dependencies)
	}
	return NewService(dependencies)
}
