package cleanup_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/ticketbridge/internal/cleanup"
	"github.com/temirov/ticketbridge/internal/remote"
	"github.com/temirov/ticketbridge/internal/tracker"
)

type cleanupCommandFixture struct {
	operations    *stubRemoteIssueOperations
	entrySource   *stubTrackedEntrySource
	trackerClosed bool
	builder       *cleanup.CommandBuilder
}

func newCleanupCommandFixture() *cleanupCommandFixture {
	fixture := &cleanupCommandFixture{
		operations:  &stubRemoteIssueOperations{},
		entrySource: &stubTrackedEntrySource{},
	}

	fixture.builder = &cleanup.CommandBuilder{
		ConfigurationProvider: func() cleanup.CommandConfiguration {
			return cleanup.CommandConfiguration{PageSize: 50}
		},
		RemoteConfigurationProvider: func() remote.Configuration {
			return remote.Configuration{ProjectKey: "FTJM"}
		},
		GatewayProvider: func(remote.Configuration) (cleanup.RemoteIssueOperations, error) {
			return fixture.operations, nil
		},
		TrackerProvider: func(cleanup.CommandConfiguration) (cleanup.TrackedEntrySource, func() error, error) {
			closeTracker := func() error {
				fixture.trackerClosed = true
				return nil
			}
			return fixture.entrySource, closeTracker, nil
		},
	}

	return fixture
}

func (fixture *cleanupCommandFixture) execute(testInstance *testing.T, arguments ...string) error {
	testInstance.Helper()

	command, buildError := fixture.builder.Build()
	require.NoError(testInstance, buildError)
	command.SetArgs(arguments)
	return command.Execute()
}

func TestCleanupCommandRequiresKeyRange(testInstance *testing.T) {
	testInstance.Parallel()

	fixture := newCleanupCommandFixture()

	executionError := fixture.execute(testInstance, "--start-key", "FTJM-1")
	require.Error(testInstance, executionError)
	require.Contains(testInstance, executionError.Error(), "both --start-key and --end-key must be provided")
}

func TestCleanupCommandReportsOrphansWithoutDeletingByDefault(testInstance *testing.T) {
	testInstance.Parallel()

	fixture := newCleanupCommandFixture()
	fixture.operations.searchResults = []remote.IssueSummary{
		{Key: "FTJM-1", Summary: "Tracked migration"},
		{Key: "FTJM-2", Summary: "Orphan left by crash"},
	}
	fixture.entrySource.entries = []tracker.Entry{
		{RecordID: "1001", Status: tracker.StatusSuccess, RemoteID: "FTJM-1"},
	}

	executionError := fixture.execute(testInstance, "--start-key", "FTJM-1", "--end-key", "FTJM-100")
	require.NoError(testInstance, executionError)
	require.Empty(testInstance, fixture.operations.deleteCalls)
	require.True(testInstance, fixture.trackerClosed)
}

func TestCleanupCommandDeletesOrphansWhenToggleEnabled(testInstance *testing.T) {
	testInstance.Parallel()

	fixture := newCleanupCommandFixture()
	fixture.operations.searchResults = []remote.IssueSummary{
		{Key: "FTJM-2", Summary: "Orphan left by crash"},
		{Key: "FTJM-3", Summary: "Another orphan"},
	}

	executionError := fixture.execute(testInstance, "--start-key", "FTJM-1", "--end-key", "FTJM-100", "--delete=yes")
	require.NoError(testInstance, executionError)
	require.Equal(testInstance, []string{"FTJM-2", "FTJM-3"}, fixture.operations.deleteCalls)
}

func TestCleanupCommandSucceedsWhenNothingIsOrphaned(testInstance *testing.T) {
	testInstance.Parallel()

	fixture := newCleanupCommandFixture()
	fixture.operations.searchResults = []remote.IssueSummary{{Key: "FTJM-1"}}
	fixture.entrySource.entries = []tracker.Entry{
		{RecordID: "1001", Status: tracker.StatusSuccess, RemoteID: "FTJM-1"},
	}

	executionError := fixture.execute(testInstance, "--start-key", "FTJM-1", "--end-key", "FTJM-100", "--delete=yes")
	require.NoError(testInstance, executionError)
	require.Empty(testInstance, fixture.operations.deleteCalls)
}

func TestCleanupConfigurationSanitizeAppliesDefaults(testInstance *testing.T) {
	testInstance.Parallel()

	sanitized := cleanup.CommandConfiguration{}.Sanitize()
	require.Equal(testInstance, "tracker/migration_tracker.db", sanitized.TrackerPath)
	require.Equal(testInstance, 100, sanitized.PageSize)
}
