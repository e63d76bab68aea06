package registry

import (
	"sort"
	"sync"
	"time"
)

// Marker records one remote issue awaiting confirmation or rollback.
type Marker struct {
	RecordID  string
	RemoteID  string
	CreatedAt time.Time
}

// PendingRegistry is a thread-safe set of pending issue markers keyed by record identifier.
// Mutations hold the lock only for the map operation itself; callers perform
// network I/O outside the registry.
type PendingRegistry struct {
	mutex   sync.Mutex
	markers map[string]Marker
	clock   func() time.Time
}

// NewPendingRegistry constructs an empty registry.
func NewPendingRegistry() *PendingRegistry {
	return &PendingRegistry{
		markers: make(map[string]Marker),
		clock:   time.Now,
	}
}

// Register records a freshly created remote issue for the provided record identifier.
func (pendingRegistry *PendingRegistry) Register(recordID string, remoteID string) {
	pendingRegistry.mutex.Lock()
	defer pendingRegistry.mutex.Unlock()

	pendingRegistry.markers[recordID] = Marker{
		RecordID:  recordID,
		RemoteID:  remoteID,
		CreatedAt: pendingRegistry.clock(),
	}
}

// Clear removes the marker for the provided record identifier, reporting whether one existed.
func (pendingRegistry *PendingRegistry) Clear(recordID string) bool {
	pendingRegistry.mutex.Lock()
	defer pendingRegistry.mutex.Unlock()

	_, markerExists := pendingRegistry.markers[recordID]
	delete(pendingRegistry.markers, recordID)
	return markerExists
}

// Snapshot returns the current markers ordered by record identifier.
func (pendingRegistry *PendingRegistry) Snapshot() []Marker {
	pendingRegistry.mutex.Lock()
	defer pendingRegistry.mutex.Unlock()

	collectedMarkers := make([]Marker, 0, len(pendingRegistry.markers))
	for _, marker := range pendingRegistry.markers {
		collectedMarkers = append(collectedMarkers, marker)
	}

	sort.Slice(collectedMarkers, func(firstIndex int, secondIndex int) bool {
		return collectedMarkers[firstIndex].RecordID < collectedMarkers[secondIndex].RecordID
	})

	return collectedMarkers
}

// Len reports the number of pending markers.
func (pendingRegistry *PendingRegistry) Len() int {
	pendingRegistry.mutex.Lock()
	defer pendingRegistry.mutex.Unlock()

	return len(pendingRegistry.markers)
}
