package migration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/ticketbridge/internal/convert"
	"github.com/temirov/ticketbridge/internal/loader"
	"github.com/temirov/ticketbridge/internal/registry"
	"github.com/temirov/ticketbridge/internal/remote"
	"github.com/temirov/ticketbridge/internal/retry"
	"github.com/temirov/ticketbridge/internal/tracker"
	pathutils "github.com/temirov/ticketbridge/internal/utils/path"
)

const (
	commandUseConstant                      = "migrate"
	commandShortDescriptionConstant         = "Migrate source tickets into the destination tracker"
	commandLongDescriptionConstant          = "migrate runs the per-record migration saga over a bounded worker pool: each record creates a remote issue, uploads its attachments, and confirms durable progress, rolling back the remote issue on partial failure."
	recordIDsFlagNameConstant               = "ids"
	recordIDsFlagUsageConstant              = "Record identifiers to migrate"
	allRecordsFlagNameConstant              = "all"
	allRecordsFlagUsageConstant             = "Migrate every record found in the data directory"
	dryRunFlagNameConstant                  = "dry-run"
	dryRunFlagUsageConstant                 = "Report what would be migrated without performing remote calls"
	recordLimitFlagNameConstant             = "limit"
	recordLimitFlagUsageConstant            = "Limit the number of records to migrate"
	workersFlagNameConstant                 = "workers"
	workersFlagUsageConstant                = "Number of concurrent migration workers"
	recordSelectionRequiredMessageConstant  = "specify --ids or --all to select records"
	trackerOpenErrorTemplateConstant        = "unable to open progress tracker: %w"
	recordLoaderErrorTemplateConstant       = "unable to construct record loader: %w"
	mappingLoadErrorTemplateConstant        = "unable to load field mapping: %w"
	converterErrorTemplateConstant          = "unable to construct payload converter: %w"
	gatewayErrorTemplateConstant            = "unable to construct issue gateway: %w"
	recordListErrorTemplateConstant         = "unable to list records: %w"
	sagaConstructionErrorTemplateConstant   = "unable to construct migration saga: %w"
	coordinatorConstructionErrorTemplate    = "unable to construct coordinator: %w"
	recordLoadFailedMessageConstant         = "Record load failed"
	migrationSummaryMessageConstant         = "Migration summary"
	migrationFailureMessageConstant         = "Record migration failed"
	logFieldAttemptedConstant               = "attempted"
	logFieldOrphansCleanedConstant          = "orphans_cleaned"
	logFieldCleanupFailuresConstant         = "cleanup_failures"
	logFieldAttachmentsUploadedConstant     = "attachments_uploaded"
	logFieldAttachmentsFailedConstant       = "attachments_failed"
	logFieldReasonConstant                  = "reason"
	recordLoadFailureReasonTemplateConstant = "record load failed: %v"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// GatewayProvider constructs the issue gateway for a run.
type GatewayProvider func(remoteConfiguration remote.Configuration) (IssueGateway, error)

// RecordSourceProvider constructs the record source for a run.
type RecordSourceProvider func(configuration CommandConfiguration, remoteConfiguration remote.Configuration) (RecordSource, error)

// TrackerProvider constructs the progress tracker for a run. The returned
// closer releases the underlying store when the run finishes.
type TrackerProvider func(configuration CommandConfiguration) (ProgressTracker, func() error, error)

// CommandBuilder assembles the migrate Cobra command.
type CommandBuilder struct {
	LoggerProvider              LoggerProvider
	ConfigurationProvider       func() CommandConfiguration
	RemoteConfigurationProvider func() remote.Configuration
	GatewayProvider             GatewayProvider
	RecordSourceProvider        RecordSourceProvider
	TrackerProvider             TrackerProvider
}

type commandOptions struct {
	recordIdentifiers []string
	migrateAll        bool
	dryRun            bool
	recordLimit       int
	workerCount       int
}

var errRecordSelectionRequired = errors.New(recordSelectionRequiredMessageConstant)

// Build constructs the migrate command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           commandUseConstant,
		Short:         commandShortDescriptionConstant,
		Long:          commandLongDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.runMigrate,
	}

	command.Flags().StringSlice(recordIDsFlagNameConstant, nil, recordIDsFlagUsageConstant)
	command.Flags().Bool(allRecordsFlagNameConstant, false, allRecordsFlagUsageConstant)
	command.Flags().Bool(dryRunFlagNameConstant, false, dryRunFlagUsageConstant)
	command.Flags().Int(recordLimitFlagNameConstant, 0, recordLimitFlagUsageConstant)
	command.Flags().Int(workersFlagNameConstant, 0, workersFlagUsageConstant)

	return command, nil
}

func (builder *CommandBuilder) runMigrate(command *cobra.Command, _ []string) error {
	options, optionsError := parseCommandOptions(command)
	if optionsError != nil {
		return optionsError
	}

	logger := builder.resolveLogger()
	configuration := builder.resolveConfiguration()
	remoteConfiguration := builder.resolveRemoteConfiguration()

	if options.workerCount > 0 {
		configuration.Workers = options.workerCount
	}

	progressTracker, closeTracker, trackerError := builder.resolveTracker(configuration)
	if trackerError != nil {
		return trackerError
	}
	defer closeTracker()

	recordSource, sourceError := builder.resolveRecordSource(configuration, remoteConfiguration)
	if sourceError != nil {
		return sourceError
	}

	issueGateway, gatewayError := builder.resolveGateway(remoteConfiguration)
	if gatewayError != nil {
		return gatewayError
	}

	pendingRegistry := registry.NewPendingRegistry()
	runStatistics := NewRunStatistics()
	retryPolicy := retry.NewPolicy(retry.PolicyOptions{
		MaxAttempts:       configuration.MaxAttempts,
		BaseDelay:         configuration.BaseDelay(),
		BackoffMultiplier: configuration.BackoffMultiplier,
		Logger:            logger,
	})

	migrationSaga, sagaError := NewSaga(SagaDependencies{
		Logger:     logger,
		Gateway:    issueGateway,
		Tracker:    progressTracker,
		Registry:   pendingRegistry,
		Retrier:    retryPolicy,
		Statistics: runStatistics,
	}, SagaOptions{
		AttachmentFailuresFatal: configuration.AttachmentFailuresFatal,
		DryRun:                  options.dryRun,
	})
	if sagaError != nil {
		return fmt.Errorf(sagaConstructionErrorTemplateConstant, sagaError)
	}

	coordinator, coordinatorError := NewCoordinator(CoordinatorDependencies{
		Logger:     logger,
		Saga:       migrationSaga,
		Gateway:    issueGateway,
		Registry:   pendingRegistry,
		Retrier:    retryPolicy,
		Statistics: runStatistics,
	})
	if coordinatorError != nil {
		return fmt.Errorf(coordinatorConstructionErrorTemplate, coordinatorError)
	}

	signalContext, stopSignals := signal.NotifyContext(command.Context(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	records, loadFailures, resolveError := resolveRecords(signalContext, logger, recordSource, progressTracker, options)
	if resolveError != nil {
		return resolveError
	}

	runReport, runError := coordinator.Run(signalContext, records, RunOptions{
		WorkerCount: configuration.Workers,
		GracePeriod: configuration.GracePeriod(),
	})
	runReport.Failures = append(runReport.Failures, loadFailures...)

	logRunReport(logger, runReport)

	return runError
}

func parseCommandOptions(command *cobra.Command) (commandOptions, error) {
	recordIdentifiers, _ := command.Flags().GetStringSlice(recordIDsFlagNameConstant)
	migrateAll, _ := command.Flags().GetBool(allRecordsFlagNameConstant)
	dryRun, _ := command.Flags().GetBool(dryRunFlagNameConstant)
	recordLimit, _ := command.Flags().GetInt(recordLimitFlagNameConstant)
	workerCount, _ := command.Flags().GetInt(workersFlagNameConstant)

	trimmedIdentifiers := make([]string, 0, len(recordIdentifiers))
	for _, recordIdentifier := range recordIdentifiers {
		trimmedIdentifier := strings.TrimSpace(recordIdentifier)
		if len(trimmedIdentifier) > 0 {
			trimmedIdentifiers = append(trimmedIdentifiers, trimmedIdentifier)
		}
	}

	if len(trimmedIdentifiers) == 0 && !migrateAll {
		return commandOptions{}, errRecordSelectionRequired
	}

	return commandOptions{
		recordIdentifiers: trimmedIdentifiers,
		migrateAll:        migrateAll,
		dryRun:            dryRun,
		recordLimit:       recordLimit,
		workerCount:       workerCount,
	}, nil
}

func resolveRecords(executionContext context.Context, logger *zap.Logger, recordSource RecordSource, progressTracker ProgressTracker, options commandOptions) ([]Record, []RecordFailure, error) {
	recordIdentifiers := options.recordIdentifiers
	if options.migrateAll && len(recordIdentifiers) == 0 {
		listedIdentifiers, listError := recordSource.ListRecordIDs()
		if listError != nil {
			return nil, nil, fmt.Errorf(recordListErrorTemplateConstant, listError)
		}
		recordIdentifiers = listedIdentifiers
	}

	if options.recordLimit > 0 && len(recordIdentifiers) > options.recordLimit {
		recordIdentifiers = recordIdentifiers[:options.recordLimit]
	}

	var records []Record
	var loadFailures []RecordFailure
	for _, recordIdentifier := range recordIdentifiers {
		record, loadError := recordSource.LoadRecord(executionContext, recordIdentifier)
		if loadError != nil {
			failureReason := fmt.Sprintf(recordLoadFailureReasonTemplateConstant, loadError)
			logger.Warn(
				recordLoadFailedMessageConstant,
				zap.String(logFieldRecordIDConstant, recordIdentifier),
				zap.Error(loadError),
			)
			writeLoadFailure(executionContext, logger, progressTracker, recordIdentifier, failureReason)
			loadFailures = append(loadFailures, RecordFailure{RecordID: recordIdentifier, Reason: failureReason})
			continue
		}
		records = append(records, record)
	}

	return records, loadFailures, nil
}

func writeLoadFailure(executionContext context.Context, logger *zap.Logger, progressTracker ProgressTracker, recordID string, failureReason string) {
	existingEntry, entryExists, readError := progressTracker.Get(executionContext, recordID)
	if readError != nil {
		logger.Error(trackerWriteFailedMessageConstant, zap.String(logFieldRecordIDConstant, recordID), zap.Error(readError))
		return
	}
	// A previously migrated record keeps its success entry even when the
	// source export later disappears.
	if entryExists && existingEntry.Status == tracker.StatusSuccess {
		return
	}

	failedEntry := tracker.Entry{RecordID: recordID, Status: tracker.StatusFailed, Reason: failureReason}
	if writeError := progressTracker.Put(executionContext, failedEntry); writeError != nil {
		logger.Error(trackerWriteFailedMessageConstant, zap.String(logFieldRecordIDConstant, recordID), zap.Error(writeError))
	}
}

func logRunReport(logger *zap.Logger, runReport RunReport) {
	logger.Info(
		migrationSummaryMessageConstant,
		zap.String(logFieldRunIDConstant, runReport.RunID),
		zap.Int64(logFieldAttemptedConstant, runReport.Statistics.Attempted),
		zap.Int64(logFieldSucceededConstant, runReport.Statistics.Succeeded),
		zap.Int64(logFieldFailedConstant, runReport.Statistics.Failed),
		zap.Int64(logFieldOrphansCleanedConstant, runReport.Statistics.OrphansCleaned),
		zap.Int64(logFieldCleanupFailuresConstant, runReport.Statistics.CleanupFailures),
		zap.Int64(logFieldAttachmentsUploadedConstant, runReport.Statistics.AttachmentsUploaded),
		zap.Int64(logFieldAttachmentsFailedConstant, runReport.Statistics.AttachmentsFailed),
	)

	for _, recordFailure := range runReport.Failures {
		logger.Warn(
			migrationFailureMessageConstant,
			zap.String(logFieldRecordIDConstant, recordFailure.RecordID),
			zap.String(logFieldReasonConstant, recordFailure.Reason),
		)
	}
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

func (builder *CommandBuilder) resolveTracker(configuration CommandConfiguration) (ProgressTracker, func() error, error) {
	if builder.TrackerProvider != nil {
		return builder.TrackerProvider(configuration)
	}

	trackerStore, openError := tracker.Open(pathutils.NewHomeExpander().Expand(configuration.TrackerPath))
	if openError != nil {
		return nil, nil, fmt.Errorf(trackerOpenErrorTemplateConstant, openError)
	}
	return trackerStore, trackerStore.Close, nil
}

func (builder *CommandBuilder) resolveRecordSource(configuration CommandConfiguration, remoteConfiguration remote.Configuration) (RecordSource, error) {
	if builder.RecordSourceProvider != nil {
		return builder.RecordSourceProvider(configuration, remoteConfiguration)
	}

	recordLoader, loaderError := loader.NewFilesystemRecordLoader(pathutils.NewHomeExpander().Expand(configuration.DataDirectory))
	if loaderError != nil {
		return nil, fmt.Errorf(recordLoaderErrorTemplateConstant, loaderError)
	}

	mappingConfiguration, mappingError := convert.LoadMappingConfiguration(configuration.MappingPath)
	if mappingError != nil {
		return nil, fmt.Errorf(mappingLoadErrorTemplateConstant, mappingError)
	}

	payloadConverter, converterError := convert.NewConverter(remoteConfiguration.ProjectKey, mappingConfiguration)
	if converterError != nil {
		return nil, fmt.Errorf(converterErrorTemplateConstant, converterError)
	}

	return NewMappedRecordSource(recordLoader, payloadConverter)
}

func (builder *CommandBuilder) resolveGateway(remoteConfiguration remote.Configuration) (IssueGateway, error) {
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
