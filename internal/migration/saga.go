package migration

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/temirov/ticketbridge/internal/remote"
	"github.com/temirov/ticketbridge/internal/tracker"
)

const (
	createIssueOperationNameConstant          = "create_issue"
	uploadAttachmentsOperationNameConstant    = "upload_attachments"
	deleteIssueOperationNameConstant          = "delete_issue"
	gatewayMissingMessageConstant             = "issue gateway not configured"
	trackerMissingMessageConstant             = "progress tracker not configured"
	registryMissingMessageConstant            = "pending-issue registry not configured"
	retrierMissingMessageConstant             = "call retrier not configured"
	statisticsMissingMessageConstant          = "run statistics not configured"
	creationFailureReasonTemplateConstant     = "issue creation failed: %v"
	attachmentFailureReasonTemplateConstant   = "attachment upload failed: %v"
	confirmationFailureReasonTemplateConstant = "progress confirmation failed: %v"
	trackerReadFailureReasonTemplateConstant  = "progress lookup failed: %v"
	partialUploadReasonTemplateConstant       = "%d of %d attachments failed to upload"
	recordSkippedMessageConstant              = "Record already migrated, skipping"
	issueCreatedMessageConstant               = "Remote issue created"
	attachmentDegradedMessageConstant         = "Attachment upload degraded, continuing"
	rollbackStartedMessageConstant            = "Rolling back remote issue"
	rollbackFailedMessageConstant             = "Rollback deletion failed, remote issue may be orphaned"
	rollbackCompletedMessageConstant          = "Remote issue rolled back"
	trackerWriteFailedMessageConstant         = "Tracker write failed"
	dryRunMessageConstant                     = "Dry run, skipping remote calls"
	logFieldRecordIDConstant                  = "record_id"
	logFieldRemoteIDConstant                  = "remote_id"
	logFieldUploadedCountConstant             = "uploaded"
	logFieldFailedCountConstant               = "failed"
)

// SagaState identifies a position in the per-record migration state machine.
type SagaState string

// Saga states. Confirmed and RolledBack are terminal.
const (
	SagaStateCreated      SagaState = SagaState("created")
	SagaStateAttempting   SagaState = SagaState("attempting")
	SagaStateAttached     SagaState = SagaState("attached")
	SagaStateAttachFailed SagaState = SagaState("attach_failed")
	SagaStateConfirmed    SagaState = SagaState("confirmed")
	SagaStateRolledBack   SagaState = SagaState("rolled_back")
)

// Outcome is the terminal result of one saga invocation.
type Outcome struct {
	RecordID         string
	RemoteID         string
	State            SagaState
	Skipped          bool
	DryRun           bool
	FailureReason    string
	AttachmentResult remote.UploadResult
}

// Succeeded reports whether the saga confirmed the migration.
func (outcome Outcome) Succeeded() bool {
	return outcome.State == SagaStateConfirmed
}

// SagaDependencies describes required collaborators for the migration saga.
type SagaDependencies struct {
	Logger     *zap.Logger
	Gateway    IssueGateway
	Tracker    ProgressTracker
	Registry   PendingIssueRegistry
	Retrier    CallRetrier
	Statistics *RunStatistics
}

// SagaOptions configures per-saga behavior.
type SagaOptions struct {
	AttachmentFailuresFatal bool
	DryRun                  bool
}

// Saga executes the create/attach/confirm workflow for single records,
// rolling back the remote issue on partial failure.
type Saga struct {
	logger     *zap.Logger
	gateway    IssueGateway
	tracker    ProgressTracker
	registry   PendingIssueRegistry
	retrier    CallRetrier
	statistics *RunStatistics
	options    SagaOptions
}

var (
	errGatewayMissing    = errors.New(gatewayMissingMessageConstant)
	errTrackerMissing    = errors.New(trackerMissingMessageConstant)
	errRegistryMissing   = errors.New(registryMissingMessageConstant)
	errRetrierMissing    = errors.New(retrierMissingMessageConstant)
	errStatisticsMissing = errors.New(statisticsMissingMessageConstant)
)

// NewSaga constructs a Saga with the provided dependencies.
func NewSaga(dependencies SagaDependencies, options SagaOptions) (*Saga, error) {
	if dependencies.Gateway == nil {
		return nil, errGatewayMissing
	}
	if dependencies.Tracker == nil {
		return nil, errTrackerMissing
	}
	if dependencies.Registry == nil {
		return nil, errRegistryMissing
	}
	if dependencies.Retrier == nil {
		return nil, errRetrierMissing
	}
	if dependencies.Statistics == nil {
		return nil, errStatisticsMissing
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	saga := &Saga{
		logger:     logger,
		gateway:    dependencies.Gateway,
		tracker:    dependencies.Tracker,
		registry:   dependencies.Registry,
		retrier:    dependencies.Retrier,
		statistics: dependencies.Statistics,
		options:    options,
	}

	return saga, nil
}

// Migrate runs the full saga for one record and always returns a terminal outcome.
// Remote failures never escape as errors; they are folded into the outcome so
// a single record can never abort the surrounding run.
func (saga *Saga) Migrate(executionContext context.Context, record Record) Outcome {
	outcome := Outcome{RecordID: record.RecordID, State: SagaStateCreated}

	existingEntry, entryExists, trackerReadError := saga.tracker.Get(executionContext, record.RecordID)
	if trackerReadError != nil {
		outcome.State = SagaStateRolledBack
		outcome.FailureReason = fmt.Sprintf(trackerReadFailureReasonTemplateConstant, trackerReadError)
		return outcome
	}
	if entryExists && existingEntry.Status == tracker.StatusSuccess {
		saga.logger.Debug(
			recordSkippedMessageConstant,
			zap.String(logFieldRecordIDConstant, record.RecordID),
			zap.String(logFieldRemoteIDConstant, existingEntry.RemoteID),
		)
		outcome.State = SagaStateConfirmed
		outcome.Skipped = true
		outcome.RemoteID = existingEntry.RemoteID
		return outcome
	}

	if saga.options.DryRun {
		saga.logger.Info(dryRunMessageConstant, zap.String(logFieldRecordIDConstant, record.RecordID))
		outcome.State = SagaStateConfirmed
		outcome.DryRun = true
		return outcome
	}

	outcome.State = SagaStateAttempting

	var createdRemoteID string
	creationError := saga.retrier.Execute(executionContext, createIssueOperationNameConstant, func(callContext context.Context) error {
		remoteID, callError := saga.gateway.CreateIssue(callContext, record.Payload)
		if callError != nil {
			return callError
		}
		createdRemoteID = remoteID
		return nil
	})
	if creationError != nil {
		// No remote issue exists, so there is nothing to roll back.
		outcome.State = SagaStateRolledBack
		outcome.FailureReason = fmt.Sprintf(creationFailureReasonTemplateConstant, creationError)
		saga.writeTrackerEntry(executionContext, record.RecordID, tracker.StatusFailed, "", outcome.FailureReason)
		return outcome
	}

	// The marker must exist before any further remote work; a crash between
	// creation and registration would leak an untracked remote issue.
	saga.registry.Register(record.RecordID, createdRemoteID)
	outcome.RemoteID = createdRemoteID

	saga.logger.Debug(
		issueCreatedMessageConstant,
		zap.String(logFieldRecordIDConstant, record.RecordID),
		zap.String(logFieldRemoteIDConstant, createdRemoteID),
	)

	uploadResult, uploadAborts, uploadReason := saga.uploadAttachments(executionContext, record, createdRemoteID)
	outcome.AttachmentResult = uploadResult
	saga.statistics.AddAttachmentsUploaded(len(uploadResult.Uploaded))
	saga.statistics.AddAttachmentsFailed(len(uploadResult.Failed))

	if uploadAborts {
		outcome.State = SagaStateAttachFailed
		return saga.rollback(executionContext, record.RecordID, createdRemoteID, uploadReason, outcome)
	}
	outcome.State = SagaStateAttached

	confirmedEntry := tracker.Entry{
		RecordID: record.RecordID,
		Status:   tracker.StatusSuccess,
		RemoteID: createdRemoteID,
	}
	if confirmationError := saga.tracker.Put(executionContext, confirmedEntry); confirmationError != nil {
		// The marker is still live, so the created issue is rolled back
		// rather than left unconfirmed.
		failureReason := fmt.Sprintf(confirmationFailureReasonTemplateConstant, confirmationError)
		return saga.rollback(executionContext, record.RecordID, createdRemoteID, failureReason, outcome)
	}

	// Tracker durability is established above; only then may the marker go.
	saga.registry.Clear(record.RecordID)
	outcome.State = SagaStateConfirmed
	return outcome
}

func (saga *Saga) uploadAttachments(executionContext context.Context, record Record, remoteID string) (remote.UploadResult, bool, string) {
	if len(record.Attachments) == 0 {
		return remote.UploadResult{}, false, ""
	}

	var uploadResult remote.UploadResult
	uploadError := saga.retrier.Execute(executionContext, uploadAttachmentsOperationNameConstant, func(callContext context.Context) error {
		callResult, callError := saga.gateway.UploadAttachments(callContext, remoteID, record.Attachments)
		uploadResult = callResult
		return callError
	})

	switch {
	case uploadError != nil && remote.IsFatal(uploadError):
		return uploadResult, true, fmt.Sprintf(attachmentFailureReasonTemplateConstant, uploadError)
	case uploadError != nil && saga.options.AttachmentFailuresFatal:
		return uploadResult, true, fmt.Sprintf(attachmentFailureReasonTemplateConstant, uploadError)
	case uploadError != nil:
		saga.logDegradedUpload(record.RecordID, remoteID, uploadResult)
		return uploadResult, false, ""
	case !uploadResult.Complete() && saga.options.AttachmentFailuresFatal:
		failureReason := fmt.Sprintf(partialUploadReasonTemplateConstant, len(uploadResult.Failed), len(record.Attachments))
		return uploadResult, true, failureReason
	case !uploadResult.Complete():
		saga.logDegradedUpload(record.RecordID, remoteID, uploadResult)
		return uploadResult, false, ""
	default:
		return uploadResult, false, ""
	}
}

func (saga *Saga) logDegradedUpload(recordID string, remoteID string, uploadResult remote.UploadResult) {
	saga.logger.Warn(
		attachmentDegradedMessageConstant,
		zap.String(logFieldRecordIDConstant, recordID),
		zap.String(logFieldRemoteIDConstant, remoteID),
		zap.Int(logFieldUploadedCountConstant, len(uploadResult.Uploaded)),
		zap.Int(logFieldFailedCountConstant, len(uploadResult.Failed)),
	)
}

// rollback deletes the created remote issue best-effort, records the failure
// durably, clears the pending marker exactly once, and returns the terminal
// outcome. A deletion failure is logged and counted, never re-raised.
func (saga *Saga) rollback(executionContext context.Context, recordID string, remoteID string, failureReason string, outcome Outcome) Outcome {
	saga.logger.Info(
		rollbackStartedMessageConstant,
		zap.String(logFieldRecordIDConstant, recordID),
		zap.String(logFieldRemoteIDConstant, remoteID),
	)

	deletionError := saga.retrier.Execute(executionContext, deleteIssueOperationNameConstant, func(callContext context.Context) error {
		return saga.gateway.DeleteIssue(callContext, remoteID)
	})
	if deletionError != nil {
		saga.statistics.RecordCleanupFailure()
		saga.logger.Error(
			rollbackFailedMessageConstant,
			zap.String(logFieldRecordIDConstant, recordID),
			zap.String(logFieldRemoteIDConstant, remoteID),
			zap.Error(deletionError),
		)
	} else {
		saga.statistics.RecordOrphanCleaned()
		saga.logger.Info(
			rollbackCompletedMessageConstant,
			zap.String(logFieldRecordIDConstant, recordID),
			zap.String(logFieldRemoteIDConstant, remoteID),
		)
	}

	saga.writeTrackerEntry(executionContext, recordID, tracker.StatusFailed, "", failureReason)
	saga.registry.Clear(recordID)

	outcome.State = SagaStateRolledBack
	outcome.FailureReason = failureReason
	return outcome
}

func (saga *Saga) writeTrackerEntry(executionContext context.Context, recordID string, entryStatus tracker.Status, remoteID string, failureReason string) {
	trackerEntry := tracker.Entry{
		RecordID: recordID,
		Status:   entryStatus,
		RemoteID: remoteID,
		Reason:   failureReason,
	}
	if writeError := saga.tracker.Put(executionContext, trackerEntry); writeError != nil {
		saga.logger.Error(
			trackerWriteFailedMessageConstant,
			zap.String(logFieldRecordIDConstant, recordID),
			zap.Error(writeError),
		)
	}
}
