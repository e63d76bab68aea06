package migration

import "sync/atomic"

// RunStatistics accumulates counters shared by every saga in one run.
// All mutations are atomic increments; the struct is reset at run start.
type RunStatistics struct {
	attempted           atomic.Int64
	succeeded           atomic.Int64
	failed              atomic.Int64
	orphansCleaned      atomic.Int64
	cleanupFailures     atomic.Int64
	attachmentsUploaded atomic.Int64
	attachmentsFailed   atomic.Int64
}

// StatisticsSnapshot is a point-in-time copy of the run counters.
type StatisticsSnapshot struct {
	Attempted           int64
	Succeeded           int64
	Failed              int64
	OrphansCleaned      int64
	CleanupFailures     int64
	AttachmentsUploaded int64
	AttachmentsFailed   int64
}

// NewRunStatistics constructs zeroed run statistics.
func NewRunStatistics() *RunStatistics {
	return &RunStatistics{}
}

// Reset zeroes every counter for a fresh run.
func (runStatistics *RunStatistics) Reset() {
	runStatistics.attempted.Store(0)
	runStatistics.succeeded.Store(0)
	runStatistics.failed.Store(0)
	runStatistics.orphansCleaned.Store(0)
	runStatistics.cleanupFailures.Store(0)
	runStatistics.attachmentsUploaded.Store(0)
	runStatistics.attachmentsFailed.Store(0)
}

// RecordAttempt counts one dispatched saga.
func (runStatistics *RunStatistics) RecordAttempt() {
	runStatistics.attempted.Add(1)
}

// RecordSuccess counts one confirmed migration.
func (runStatistics *RunStatistics) RecordSuccess() {
	runStatistics.succeeded.Add(1)
}

// RecordFailure counts one failed migration.
func (runStatistics *RunStatistics) RecordFailure() {
	runStatistics.failed.Add(1)
}

// RecordOrphanCleaned counts one rolled-back remote issue.
func (runStatistics *RunStatistics) RecordOrphanCleaned() {
	runStatistics.orphansCleaned.Add(1)
}

// RecordCleanupFailure counts one rollback deletion that itself failed.
func (runStatistics *RunStatistics) RecordCleanupFailure() {
	runStatistics.cleanupFailures.Add(1)
}

// AddAttachmentsUploaded counts successfully uploaded attachment files.
func (runStatistics *RunStatistics) AddAttachmentsUploaded(uploadedCount int) {
	runStatistics.attachmentsUploaded.Add(int64(uploadedCount))
}

// AddAttachmentsFailed counts attachment files that could not be uploaded.
func (runStatistics *RunStatistics) AddAttachmentsFailed(failedCount int) {
	runStatistics.attachmentsFailed.Add(int64(failedCount))
}

// Snapshot returns a copy of the current counters.
func (runStatistics *RunStatistics) Snapshot() StatisticsSnapshot {
	return StatisticsSnapshot{
		Attempted:           runStatistics.attempted.Load(),
		Succeeded:           runStatistics.succeeded.Load(),
		Failed:              runStatistics.failed.Load(),
		OrphansCleaned:      runStatistics.orphansCleaned.Load(),
		CleanupFailures:     runStatistics.cleanupFailures.Load(),
		AttachmentsUploaded: runStatistics.attachmentsUploaded.Load(),
		AttachmentsFailed:   runStatistics.attachmentsFailed.Load(),
	}
}
