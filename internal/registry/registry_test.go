package registry_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/ticketbridge/internal/registry"
)

const (
	testRecordIdentifierConstant       = "1001"
	testRemoteIdentifierConstant       = "FTJM-17"
	testSecondRecordIdentifierConstant = "1002"
	testSecondRemoteIdentifierConstant = "FTJM-18"
)

func TestPendingRegistryRegisterAndClear(testInstance *testing.T) {
	testInstance.Parallel()

	pendingRegistry := registry.NewPendingRegistry()
	require.Zero(testInstance, pendingRegistry.Len())

	pendingRegistry.Register(testRecordIdentifierConstant, testRemoteIdentifierConstant)
	require.Equal(testInstance, 1, pendingRegistry.Len())

	require.True(testInstance, pendingRegistry.Clear(testRecordIdentifierConstant))
	require.Zero(testInstance, pendingRegistry.Len())

	require.False(testInstance, pendingRegistry.Clear(testRecordIdentifierConstant))
}

func TestPendingRegistrySnapshotIsSortedByRecordID(testInstance *testing.T) {
	testInstance.Parallel()

	pendingRegistry := registry.NewPendingRegistry()
	pendingRegistry.Register(testSecondRecordIdentifierConstant, testSecondRemoteIdentifierConstant)
	pendingRegistry.Register(testRecordIdentifierConstant, testRemoteIdentifierConstant)

	markers := pendingRegistry.Snapshot()
	require.Len(testInstance, markers, 2)
	require.Equal(testInstance, testRecordIdentifierConstant, markers[0].RecordID)
	require.Equal(testInstance, testRemoteIdentifierConstant, markers[0].RemoteID)
	require.Equal(testInstance, testSecondRecordIdentifierConstant, markers[1].RecordID)
	require.False(testInstance, markers[0].CreatedAt.IsZero())
}

func TestPendingRegistryReplacesMarkerForSameRecord(testInstance *testing.T) {
	testInstance.Parallel()

	pendingRegistry := registry.NewPendingRegistry()
	pendingRegistry.Register(testRecordIdentifierConstant, testRemoteIdentifierConstant)
	pendingRegistry.Register(testRecordIdentifierConstant, testSecondRemoteIdentifierConstant)

	markers := pendingRegistry.Snapshot()
	require.Len(testInstance, markers, 1)
	require.Equal(testInstance, testSecondRemoteIdentifierConstant, markers[0].RemoteID)
}

func TestPendingRegistryIsSafeForConcurrentUse(testInstance *testing.T) {
	testInstance.Parallel()

	pendingRegistry := registry.NewPendingRegistry()
	const workerCount = 32

	var waitGroup sync.WaitGroup
	for workerIndex := 0; workerIndex < workerCount; workerIndex++ {
		waitGroup.Add(1)
		go func(index int) {
			defer waitGroup.Done()
			recordIdentifier := fmt.Sprintf("record-%d", index)
			pendingRegistry.Register(recordIdentifier, fmt.Sprintf("FTJM-%d", index))
			if index%2 == 0 {
				pendingRegistry.Clear(recordIdentifier)
			}
		}(workerIndex)
	}
	waitGroup.Wait()

	require.Equal(testInstance, workerCount/2, pendingRegistry.Len())
}
