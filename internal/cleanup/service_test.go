package cleanup_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/temirov/ticketbridge/internal/cleanup"
	"github.com/temirov/ticketbridge/internal/remote"
	"github.com/temirov/ticketbridge/internal/retry"
	"github.com/temirov/ticketbridge/internal/tracker"
)

type stubRemoteIssueOperations struct {
	searchResults  []remote.IssueSummary
	searchError    error
	deleteCalls    []string
	failingDeletes map[string]error
}

func (operations *stubRemoteIssueOperations) SearchIssues(_ context.Context, _ remote.IssueSearchQuery) ([]remote.IssueSummary, error) {
	if operations.searchError != nil {
		return nil, operations.searchError
	}
	return operations.searchResults, nil
}

func (operations *stubRemoteIssueOperations) DeleteIssue(_ context.Context, remoteID string) error {
	operations.deleteCalls = append(operations.deleteCalls, remoteID)
	if deletionError, deletionFails := operations.failingDeletes[remoteID]; deletionFails {
		return deletionError
	}
	return nil
}

type stubTrackedEntrySource struct {
	entries   []tracker.Entry
	listError error
}

func (entrySource *stubTrackedEntrySource) SuccessfulEntries(_ context.Context) ([]tracker.Entry, error) {
	if entrySource.listError != nil {
		return nil, entrySource.listError
	}
	return entrySource.entries, nil
}

func singleAttemptRetrier() *retry.Policy {
	return retry.NewPolicy(retry.PolicyOptions{
		MaxAttempts: 1,
		BaseDelay:   time.Millisecond,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	})
}

func buildService(testInstance *testing.T, operations *stubRemoteIssueOperations, entrySource *stubTrackedEntrySource) *cleanup.Service {
	testInstance.Helper()

	service, serviceError := cleanup.NewService(cleanup.ServiceDependencies{
		Gateway: operations,
		Tracker: entrySource,
		Retrier: singleAttemptRetrier(),
	})
	require.NoError(testInstance, serviceError)
	return service
}

func testSearchQuery() remote.IssueSearchQuery {
	return remote.IssueSearchQuery{ProjectKey: "FTJM", StartKey: "FTJM-1", EndKey: "FTJM-100"}
}

func TestFindOrphansExcludesTrackedIssues(testInstance *testing.T) {
	testInstance.Parallel()

	operations := &stubRemoteIssueOperations{
		searchResults: []remote.IssueSummary{
			{Key: "FTJM-1", Summary: "Tracked migration"},
			{Key: "FTJM-2", Summary: "Orphan left by crash"},
			{Key: "FTJM-3", Summary: "Another orphan"},
		},
	}
	entrySource := &stubTrackedEntrySource{
		entries: []tracker.Entry{{RecordID: "1001", Status: tracker.StatusSuccess, RemoteID: "FTJM-1"}},
	}
	service := buildService(testInstance, operations, entrySource)

	orphanedIssues, findError := service.FindOrphans(context.Background(), testSearchQuery())

	require.NoError(testInstance, findError)
	require.Len(testInstance, orphanedIssues, 2)
	require.Equal(testInstance, "FTJM-2", orphanedIssues[0].Key)
	require.Equal(testInstance, "FTJM-3", orphanedIssues[1].Key)
}

func TestFindOrphansPropagatesTrackerFailure(testInstance *testing.T) {
	testInstance.Parallel()

	operations := &stubRemoteIssueOperations{}
	entrySource := &stubTrackedEntrySource{listError: errors.New("database locked")}
	service := buildService(testInstance, operations, entrySource)

	_, findError := service.FindOrphans(context.Background(), testSearchQuery())
	require.Error(testInstance, findError)
	require.Contains(testInstance, findError.Error(), "unable to read tracked entries")
}

func TestFindOrphansPropagatesSearchFailure(testInstance *testing.T) {
	testInstance.Parallel()

	operations := &stubRemoteIssueOperations{searchError: remote.FatalError{Cause: errors.New("project not found")}}
	entrySource := &stubTrackedEntrySource{}
	service := buildService(testInstance, operations, entrySource)

	_, findError := service.FindOrphans(context.Background(), testSearchQuery())
	require.Error(testInstance, findError)
	require.Contains(testInstance, findError.Error(), "unable to search remote issues")
}

func TestCleanupDryRunDeletesNothing(testInstance *testing.T) {
	testInstance.Parallel()

	operations := &stubRemoteIssueOperations{}
	service := buildService(testInstance, operations, &stubTrackedEntrySource{})

	orphanedIssues := []remote.IssueSummary{{Key: "FTJM-2"}, {Key: "FTJM-3"}}
	cleanupStatistics := service.Cleanup(context.Background(), orphanedIssues, true)

	require.Equal(testInstance, 2, cleanupStatistics.TotalOrphaned)
	require.Zero(testInstance, cleanupStatistics.Deleted)
	require.Zero(testInstance, cleanupStatistics.Failed)
	require.Empty(testInstance, operations.deleteCalls)
}

func TestCleanupCountsDeletionFailuresWithoutAborting(testInstance *testing.T) {
	testInstance.Parallel()

	operations := &stubRemoteIssueOperations{
		failingDeletes: map[string]error{"FTJM-2": remote.FatalError{Cause: errors.New("issue locked")}},
	}
	service := buildService(testInstance, operations, &stubTrackedEntrySource{})

	orphanedIssues := []remote.IssueSummary{{Key: "FTJM-2"}, {Key: "FTJM-3"}, {Key: "FTJM-4"}}
	cleanupStatistics := service.Cleanup(context.Background(), orphanedIssues, false)

	require.Equal(testInstance, 3, cleanupStatistics.TotalOrphaned)
	require.Equal(testInstance, 2, cleanupStatistics.Deleted)
	require.Equal(testInstance, 1, cleanupStatistics.Failed)
	require.Equal(testInstance, []string{"FTJM-2", "FTJM-3", "FTJM-4"}, operations.deleteCalls)
}

func TestNewServiceRejectsMissingDependencies(testInstance *testing.T) {
	testInstance.Parallel()

	completeDependencies := cleanup.ServiceDependencies{
		Gateway: &stubRemoteIssueOperations{},
		Tracker: &stubTrackedEntrySource{},
		Retrier: singleAttemptRetrier(),
	}

	testCases := []struct {
		name   string
		mutate func(dependencies cleanup.ServiceDependencies) cleanup.ServiceDependencies
	}{
		{name: "missing_gateway", mutate: func(dependencies cleanup.ServiceDependencies) cleanup.ServiceDependencies {
			dependencies.Gateway = nil
			return dependencies
		}},
		{name: "missing_tracker", mutate: func(dependencies cleanup.ServiceDependencies) cleanup.ServiceDependencies {
			dependencies.Tracker = nil
			return dependencies
		}},
		{name: "missing_retrier", mutate: func(dependencies cleanup.ServiceDependencies) cleanup.ServiceDependencies {
			dependencies.Retrier = nil
			return dependencies
		}},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testInstance.Run(testCase.name, func(subtest *testing.T) {
			subtest.Parallel()

			service, serviceError := cleanup.NewService(testCase.mutate(completeDependencies))
			require.Error(subtest, serviceError)
			require.Nil(subtest, service)
		})
	}
}
