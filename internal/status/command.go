package status

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/ticketbridge/internal/tracker"
	pathutils "github.com/temirov/ticketbridge/internal/utils/path"
)

const (
	commandUseConstant                = "status"
	commandShortDescriptionConstant   = "Show migration progress recorded in the tracker"
	commandLongDescriptionConstant    = "status reads the durable progress tracker and reports how many records migrated successfully, how many failed with their recorded reasons, and how many remain pending."
	trackerOpenErrorTemplateConstant  = "unable to open progress tracker: %w"
	summaryReadErrorTemplateConstant  = "unable to read tracker summary: %w"
	failedReadErrorTemplateConstant   = "unable to read failed entries: %w"
	summaryMessageConstant            = "Migration status"
	failedEntryMessageConstant        = "Failed record"
	logFieldTotalConstant             = "total"
	logFieldSuccessConstant           = "success"
	logFieldFailedConstant            = "failed"
	logFieldPendingConstant           = "pending"
	logFieldRecordIDConstant          = "record_id"
	logFieldRemoteIDConstant          = "remote_id"
	logFieldReasonConstant            = "reason"
	defaultTrackerPathConstant        = "tracker/migration_tracker.db"
	configurationTrackerPathKeySuffix = ".tracker_path"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// TrackerSummarySource reads aggregate progress and failure detail from the tracker.
type TrackerSummarySource interface {
	Summary(executionContext context.Context) (tracker.Summary, error)
	FailedEntries(executionContext context.Context) ([]tracker.Entry, error)
}

// TrackerProvider constructs the tracker source for a status run.
type TrackerProvider func(configuration CommandConfiguration) (TrackerSummarySource, func() error, error)

// CommandConfiguration captures persisted configuration for the status command.
type CommandConfiguration struct {
	TrackerPath string `mapstructure:"tracker_path"`
}

// DefaultConfigurationValues returns baseline configuration values keyed beneath the provided prefix.
func DefaultConfigurationValues(configurationKeyPrefix string) map[string]any {
	return map[string]any{
		configurationKeyPrefix + configurationTrackerPathKeySuffix: defaultTrackerPathConstant,
	}
}

// Sanitize trims configured values and applies defaults for absent entries.
func (configuration CommandConfiguration) Sanitize() CommandConfiguration {
	sanitized := configuration
	sanitized.TrackerPath = strings.TrimSpace(configuration.TrackerPath)
	if len(sanitized.TrackerPath) == 0 {
		sanitized.TrackerPath = defaultTrackerPathConstant
	}
	return sanitized
}

// CommandBuilder assembles the status Cobra command.
type CommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider func() CommandConfiguration
	TrackerProvider       TrackerProvider
}

// Build constructs the status command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           commandUseConstant,
		Short:         commandShortDescriptionConstant,
		Long:          commandLongDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.runStatus,
	}

	return command, nil
}

func (builder *CommandBuilder) runStatus(command *cobra.Command, _ []string) error {
	logger := builder.resolveLogger()
	configuration := builder.resolveConfiguration()

	trackerSource, closeTracker, trackerError := builder.resolveTracker(configuration)
	if trackerError != nil {
		return trackerError
	}
	defer closeTracker()

	trackerSummary, summaryError := trackerSource.Summary(command.Context())
	if summaryError != nil {
		return fmt.Errorf(summaryReadErrorTemplateConstant, summaryError)
	}

	logger.Info(
		summaryMessageConstant,
		zap.Int(logFieldTotalConstant, trackerSummary.Total),
		zap.Int(logFieldSuccessConstant, trackerSummary.Success),
		zap.Int(logFieldFailedConstant, trackerSummary.Failed),
		zap.Int(logFieldPendingConstant, trackerSummary.Pending),
	)

	if trackerSummary.Failed == 0 {
		return nil
	}

	failedEntries, failedError := trackerSource.FailedEntries(command.Context())
	if failedError != nil {
		return fmt.Errorf(failedReadErrorTemplateConstant, failedError)
	}

	for _, failedEntry := range failedEntries {
		logger.Info(
			failedEntryMessageConstant,
			zap.String(logFieldRecordIDConstant, failedEntry.RecordID),
			zap.String(logFieldRemoteIDConstant, failedEntry.RemoteID),
			zap.String(logFieldReasonConstant, failedEntry.Reason),
		)
	}

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

func (builder *CommandBuilder) resolveTracker(configuration CommandConfiguration) (TrackerSummarySource, func() error, error) {
	if builder.TrackerProvider != nil {
		return builder.TrackerProvider(configuration)
	}

	trackerStore, openError := tracker.Open(pathutils.NewHomeExpander().Expand(configuration.TrackerPath))
	if openError != nil {
		return nil, nil, fmt.Errorf(trackerOpenErrorTemplateConstant, openError)
	}
	return trackerStore, trackerStore.Close, nil
}
