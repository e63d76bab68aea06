package cleanup

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/temirov/ticketbridge/internal/remote"
	"github.com/temirov/ticketbridge/internal/tracker"
)

const (
	searcherMissingMessageConstant      = "issue searcher not configured"
	trackerMissingMessageConstant       = "progress tracker not configured"
	retrierMissingMessageConstant       = "call retrier not configured"
	orphanSearchErrorTemplateConstant   = "unable to search remote issues: %w"
	trackedEntriesErrorTemplateConstant = "unable to read tracked entries: %w"
	searchOperationNameConstant         = "search_issues"
	deleteOperationNameConstant         = "delete_issue"
	orphanFoundMessageConstant          = "Orphaned remote issue found"
	orphanDeletedMessageConstant        = "Orphaned remote issue deleted"
	orphanDeleteFailedMessageConstant   = "Orphaned remote issue deletion failed"
	dryRunSkipMessageConstant           = "Dry run, not deleting orphaned issues"
	logFieldRemoteIDConstant            = "remote_id"
	logFieldSummaryConstant             = "summary"
	logFieldOrphanCountConstant         = "orphans"
)

// RemoteIssueOperations is the gateway surface the cleanup service depends on.
type RemoteIssueOperations interface {
	SearchIssues(executionContext context.Context, searchQuery remote.IssueSearchQuery) ([]remote.IssueSummary, error)
	DeleteIssue(executionContext context.Context, remoteID string) error
}

// TrackedEntrySource lists successfully migrated records.
type TrackedEntrySource interface {
	SuccessfulEntries(executionContext context.Context) ([]tracker.Entry, error)
}

// CallRetrier wraps a single remote call with the configured retry budget.
type CallRetrier interface {
	Execute(executionContext context.Context, operationName string, operation func(context.Context) error) error
}

// Statistics summarizes one cleanup pass.
type Statistics struct {
	TotalOrphaned int
	Deleted       int
	Failed        int
}

// ServiceDependencies describes required collaborators for orphan cleanup.
type ServiceDependencies struct {
	Logger  *zap.Logger
	Gateway RemoteIssueOperations
	Tracker TrackedEntrySource
	Retrier CallRetrier
}

// Service finds and deletes orphaned remote issues.
type Service struct {
	logger  *zap.Logger
	gateway RemoteIssueOperations
	tracker TrackedEntrySource
	retrier CallRetrier
}

var (
	errSearcherMissing = errors.New(searcherMissingMessageConstant)
	errTrackerMissing  = errors.New(trackerMissingMessageConstant)
	errRetrierMissing  = errors.New(retrierMissingMessageConstant)
)

// NewService constructs a Service with the provided dependencies.
func NewService(dependencies ServiceDependencies) (*Service, error) {
	if dependencies.Gateway == nil {
		return nil, errSearcherMissing
	}
	if dependencies.Tracker == nil {
		return nil, errTrackerMissing
	}
	if dependencies.Retrier == nil {
		return nil, errRetrierMissing
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	service := &Service{
		logger:  logger,
		gateway: dependencies.Gateway,
		tracker: dependencies.Tracker,
		retrier: dependencies.Retrier,
	}

	return service, nil
}

// FindOrphans lists remote issues in the key range that no successful tracker entry claims.
func (service *Service) FindOrphans(executionContext context.Context, searchQuery remote.IssueSearchQuery) ([]remote.IssueSummary, error) {
	trackedEntries, trackedError := service.tracker.SuccessfulEntries(executionContext)
	if trackedError != nil {
		return nil, fmt.Errorf(trackedEntriesErrorTemplateConstant, trackedError)
	}

	trackedRemoteIdentifiers := make(map[string]struct{}, len(trackedEntries))
	for _, trackedEntry := range trackedEntries {
		trackedRemoteIdentifiers[trackedEntry.RemoteID] = struct{}{}
	}

	var remoteIssues []remote.IssueSummary
	searchError := service.retrier.Execute(executionContext, searchOperationNameConstant, func(callContext context.Context) error {
		foundIssues, callError := service.gateway.SearchIssues(callContext, searchQuery)
		if callError != nil {
			return callError
		}
		remoteIssues = foundIssues
		return nil
	})
	if searchError != nil {
		return nil, fmt.Errorf(orphanSearchErrorTemplateConstant, searchError)
	}

	var orphanedIssues []remote.IssueSummary
	for _, remoteIssue := range remoteIssues {
		if _, isTracked := trackedRemoteIdentifiers[remoteIssue.Key]; isTracked {
			continue
		}
		service.logger.Info(
			orphanFoundMessageConstant,
			zap.String(logFieldRemoteIDConstant, remoteIssue.Key),
			zap.String(logFieldSummaryConstant, remoteIssue.Summary),
		)
		orphanedIssues = append(orphanedIssues, remoteIssue)
	}

	return orphanedIssues, nil
}

// Cleanup deletes the provided orphaned issues unless dryRun is set.
// Individual deletion failures are counted and logged, never propagated.
func (service *Service) Cleanup(executionContext context.Context, orphanedIssues []remote.IssueSummary, dryRun bool) Statistics {
	cleanupStatistics := Statistics{TotalOrphaned: len(orphanedIssues)}

	if dryRun {
		service.logger.Info(dryRunSkipMessageConstant, zap.Int(logFieldOrphanCountConstant, len(orphanedIssues)))
		return cleanupStatistics
	}

	for _, orphanedIssue := range orphanedIssues {
		deletionError := service.retrier.Execute(executionContext, deleteOperationNameConstant, func(callContext context.Context) error {
			return service.gateway.DeleteIssue(callContext, orphanedIssue.Key)
		})
		if deletionError != nil {
			cleanupStatistics.Failed++
			service.logger.Error(
				orphanDeleteFailedMessageConstant,
				zap.String(logFieldRemoteIDConstant, orphanedIssue.Key),
				zap.Error(deletionError),
			)
			continue
		}
		cleanupStatistics.Deleted++
		service.logger.Info(orphanDeletedMessageConstant, zap.String(logFieldRemoteIDConstant, orphanedIssue.Key))
	}

	return cleanupStatistics
}
