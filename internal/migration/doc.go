// Package migration implements the per-record migration saga and the
// run-level coordinator that dispatches sagas across a bounded worker pool.
//
// Each saga creates a remote issue, uploads its attachments, and durably
// confirms success in the progress tracker; any partial failure triggers a
// compensating rollback so no unconfirmed remote issue survives a saga. The
// coordinator aggregates outcomes into run statistics and, on interruption,
// rolls back every issue still pending in the registry before returning.
package migration
