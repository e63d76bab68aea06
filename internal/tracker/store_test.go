package tracker_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/ticketbridge/internal/tracker"
)

const (
	testTrackerFileNameConstant  = "migration_tracker.db"
	testRecordIdentifierConstant = "1001"
	testRemoteIdentifierConstant = "FTJM-17"
	testFailureReasonConstant    = "create rejected"
)

func openTestStore(testInstance *testing.T) *tracker.Store {
	testInstance.Helper()

	storePath := filepath.Join(testInstance.TempDir(), testTrackerFileNameConstant)
	store, openError := tracker.Open(storePath)
	require.NoError(testInstance, openError)
	testInstance.Cleanup(func() {
		require.NoError(testInstance, store.Close())
	})

	return store
}

func TestStoreOpenRejectsEmptyPath(testInstance *testing.T) {
	testInstance.Parallel()

	store, openError := tracker.Open("  ")
	require.Error(testInstance, openError)
	require.Nil(testInstance, store)
}

func TestStoreGetReturnsFalseForUnknownRecord(testInstance *testing.T) {
	testInstance.Parallel()

	store := openTestStore(testInstance)

	_, entryExists, getError := store.Get(context.Background(), testRecordIdentifierConstant)
	require.NoError(testInstance, getError)
	require.False(testInstance, entryExists)
}

func TestStorePutAndGetRoundTrip(testInstance *testing.T) {
	testInstance.Parallel()

	store := openTestStore(testInstance)
	executionContext := context.Background()

	writeError := store.Put(executionContext, tracker.Entry{
		RecordID: testRecordIdentifierConstant,
		Status:   tracker.StatusSuccess,
		RemoteID: testRemoteIdentifierConstant,
	})
	require.NoError(testInstance, writeError)

	entry, entryExists, getError := store.Get(executionContext, testRecordIdentifierConstant)
	require.NoError(testInstance, getError)
	require.True(testInstance, entryExists)
	require.Equal(testInstance, tracker.StatusSuccess, entry.Status)
	require.Equal(testInstance, testRemoteIdentifierConstant, entry.RemoteID)
	require.False(testInstance, entry.CreatedAt.IsZero())
	require.False(testInstance, entry.UpdatedAt.IsZero())
}

func TestStorePutUpsertPreservesCreationTimestamp(testInstance *testing.T) {
	testInstance.Parallel()

	store := openTestStore(testInstance)
	executionContext := context.Background()

	require.NoError(testInstance, store.Put(executionContext, tracker.Entry{
		RecordID: testRecordIdentifierConstant,
		Status:   tracker.StatusFailed,
		Reason:   testFailureReasonConstant,
	}))

	initialEntry, _, initialGetError := store.Get(executionContext, testRecordIdentifierConstant)
	require.NoError(testInstance, initialGetError)

	require.NoError(testInstance, store.Put(executionContext, tracker.Entry{
		RecordID:  testRecordIdentifierConstant,
		Status:    tracker.StatusSuccess,
		RemoteID:  testRemoteIdentifierConstant,
		CreatedAt: initialEntry.CreatedAt,
	}))

	updatedEntry, _, updatedGetError := store.Get(executionContext, testRecordIdentifierConstant)
	require.NoError(testInstance, updatedGetError)
	require.Equal(testInstance, tracker.StatusSuccess, updatedEntry.Status)
	require.Empty(testInstance, updatedEntry.Reason)
	require.Equal(testInstance, initialEntry.CreatedAt.UTC(), updatedEntry.CreatedAt.UTC())
}

func TestStoreSummaryAndStatusListings(testInstance *testing.T) {
	testInstance.Parallel()

	store := openTestStore(testInstance)
	executionContext := context.Background()

	entries := []tracker.Entry{
		{RecordID: "1001", Status: tracker.StatusSuccess, RemoteID: "FTJM-1"},
		{RecordID: "1002", Status: tracker.StatusSuccess, RemoteID: "FTJM-2"},
		{RecordID: "1003", Status: tracker.StatusFailed, Reason: testFailureReasonConstant},
		{RecordID: "1004", Status: tracker.StatusPending, RemoteID: "FTJM-4"},
	}
	for _, entry := range entries {
		require.NoError(testInstance, store.Put(executionContext, entry))
	}

	summary, summaryError := store.Summary(executionContext)
	require.NoError(testInstance, summaryError)
	require.Equal(testInstance, tracker.Summary{Total: 4, Success: 2, Failed: 1, Pending: 1}, summary)

	successfulEntries, successError := store.SuccessfulEntries(executionContext)
	require.NoError(testInstance, successError)
	require.Len(testInstance, successfulEntries, 2)
	require.Equal(testInstance, "1001", successfulEntries[0].RecordID)
	require.Equal(testInstance, "1002", successfulEntries[1].RecordID)

	failedEntries, failedError := store.FailedEntries(executionContext)
	require.NoError(testInstance, failedError)
	require.Len(testInstance, failedEntries, 1)
	require.Equal(testInstance, testFailureReasonConstant, failedEntries[0].Reason)
}

func TestStoreOpenIsIdempotent(testInstance *testing.T) {
	testInstance.Parallel()

	storePath := filepath.Join(testInstance.TempDir(), testTrackerFileNameConstant)

	firstStore, firstOpenError := tracker.Open(storePath)
	require.NoError(testInstance, firstOpenError)
	require.NoError(testInstance, firstStore.Put(context.Background(), tracker.Entry{
		RecordID: testRecordIdentifierConstant,
		Status:   tracker.StatusSuccess,
		RemoteID: testRemoteIdentifierConstant,
	}))
	require.NoError(testInstance, firstStore.Close())

	secondStore, secondOpenError := tracker.Open(storePath)
	require.NoError(testInstance, secondOpenError)
	defer func() {
		require.NoError(testInstance, secondStore.Close())
	}()

	entry, entryExists, getError := secondStore.Get(context.Background(), testRecordIdentifierConstant)
	require.NoError(testInstance, getError)
	require.True(testInstance, entryExists)
	require.Equal(testInstance, tracker.StatusSuccess, entry.Status)
}
