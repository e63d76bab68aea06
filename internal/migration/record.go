package migration

import (
	"context"

	"github.com/temirov/ticketbridge/internal/registry"
	"github.com/temirov/ticketbridge/internal/remote"
	"github.com/temirov/ticketbridge/internal/tracker"
)

// Record is one source record ready for migration: identifier, converted
// payload, and staged attachment descriptors. A record is owned by exactly
// one saga invocation for the duration of a run.
type Record struct {
	RecordID    string
	Payload     remote.IssuePayload
	Attachments []remote.AttachmentRef
}

// RecordSource supplies records to migrate.
type RecordSource interface {
	ListRecordIDs() ([]string, error)
	LoadRecord(executionContext context.Context, recordID string) (Record, error)
}

// IssueGateway is the narrow remote-tracker surface the saga depends on.
type IssueGateway interface {
	CreateIssue(executionContext context.Context, payload remote.IssuePayload) (string, error)
	DeleteIssue(executionContext context.Context, remoteID string) error
	UploadAttachments(executionContext context.Context, remoteID string, attachments []remote.AttachmentRef) (remote.UploadResult, error)
}

// ProgressTracker persists per-record migration outcomes across runs.
type ProgressTracker interface {
	Get(executionContext context.Context, recordID string) (tracker.Entry, bool, error)
	Put(executionContext context.Context, entry tracker.Entry) error
}

// PendingIssueRegistry tracks created-but-unconfirmed remote issues for rollback.
type PendingIssueRegistry interface {
	Register(recordID string, remoteID string)
	Clear(recordID string) bool
	Snapshot() []registry.Marker
}

// CallRetrier wraps a single remote call with the configured retry budget.
type CallRetrier interface {
	Execute(executionContext context.Context, operationName string, operation func(context.Context) error) error
}
