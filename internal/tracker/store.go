package tracker

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

const (
	sqliteDriverNameConstant            = "sqlite3"
	storePathRequiredMessageConstant    = "tracker store path must be provided"
	storeOpenErrorTemplateConstant      = "unable to open tracker store: %w"
	storeDirectoryErrorTemplateConstant = "unable to create tracker directory: %w"
	storePragmaErrorTemplateConstant    = "unable to apply tracker pragmas: %w"
	storeSchemaErrorTemplateConstant    = "unable to apply tracker schema: %w"
	storeGetErrorTemplateConstant       = "unable to read tracker entry: %w"
	storePutErrorTemplateConstant       = "unable to write tracker entry: %w"
	storeListErrorTemplateConstant      = "unable to list tracker entries: %w"
	storeSummaryErrorTemplateConstant   = "unable to summarize tracker entries: %w"
	trackerDirectoryPermissionsConstant = 0o755

	selectEntryQueryConstant = `SELECT record_id, status, remote_id, reason, created_at, updated_at
FROM migration_entries WHERE record_id = ?`
	upsertEntryQueryConstant = `INSERT INTO migration_entries (record_id, status, remote_id, reason, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(record_id) DO UPDATE SET
    status = excluded.status,
    remote_id = excluded.remote_id,
    reason = excluded.reason,
    updated_at = excluded.updated_at`
	selectByStatusQueryConstant = `SELECT record_id, status, remote_id, reason, created_at, updated_at
FROM migration_entries WHERE status = ? ORDER BY record_id`
	summaryQueryConstant = `SELECT status, COUNT(*) FROM migration_entries GROUP BY status`
)

// WAL keeps concurrent saga readers from blocking the single writer.
var storePragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
}

// Status enumerates terminal and transitional migration states recorded per record.
type Status string

// Recorded migration statuses.
const (
	StatusPending Status = Status("pending")
	StatusSuccess Status = Status("success")
	StatusFailed  Status = Status("failed")
)

// Entry is the durable migration state for one source record.
type Entry struct {
	RecordID  string
	Status    Status
	RemoteID  string
	Reason    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Summary aggregates entry counts by status.
type Summary struct {
	Total   int
	Success int
	Failed  int
	Pending int
}

// Store provides durable migration-state persistence backed by SQLite.
type Store struct {
	database *sql.DB
	clock    func() time.Time
}

var errStorePathRequired = errors.New(storePathRequiredMessageConstant)

// Open creates or opens the tracker database at the provided path, applying
// pragmas and the schema. Opening an existing database is idempotent.
func Open(storePath string) (*Store, error) {
	if len(strings.TrimSpace(storePath)) == 0 {
		return nil, errStorePathRequired
	}

	if directoryError := os.MkdirAll(filepath.Dir(storePath), trackerDirectoryPermissionsConstant); directoryError != nil {
		return nil, fmt.Errorf(storeDirectoryErrorTemplateConstant, directoryError)
	}

	database, openError := sql.Open(sqliteDriverNameConstant, storePath)
	if openError != nil {
		return nil, fmt.Errorf(storeOpenErrorTemplateConstant, openError)
	}

	// SQLite supports a single writer; bounding the pool avoids SQLITE_BUSY.
	database.SetMaxOpenConns(1)
	database.SetMaxIdleConns(1)

	for _, pragmaStatement := range storePragmas {
		if _, pragmaError := database.Exec(pragmaStatement); pragmaError != nil {
			database.Close()
			return nil, fmt.Errorf(storePragmaErrorTemplateConstant, pragmaError)
		}
	}

	if _, schemaError := database.Exec(schemaSQL); schemaError != nil {
		database.Close()
		return nil, fmt.Errorf(storeSchemaErrorTemplateConstant, schemaError)
	}

	return &Store{database: database, clock: time.Now}, nil
}

// Close releases the underlying database connection.
func (store *Store) Close() error {
	if store.database == nil {
		return nil
	}
	return store.database.Close()
}

// Get returns the entry for the provided record identifier when one exists.
func (store *Store) Get(executionContext context.Context, recordID string) (Entry, bool, error) {
	row := store.database.QueryRowContext(executionContext, selectEntryQueryConstant, recordID)

	var entry Entry
	var statusValue string
	scanError := row.Scan(&entry.RecordID, &statusValue, &entry.RemoteID, &entry.Reason, &entry.CreatedAt, &entry.UpdatedAt)
	if errors.Is(scanError, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if scanError != nil {
		return Entry{}, false, fmt.Errorf(storeGetErrorTemplateConstant, scanError)
	}

	entry.Status = Status(statusValue)
	return entry, true, nil
}

// Put inserts or updates the entry for its record identifier. The creation
// timestamp of an existing entry is preserved.
func (store *Store) Put(executionContext context.Context, entry Entry) error {
	currentTime := store.clock()
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = currentTime
	}

	_, executionError := store.database.ExecContext(
		executionContext,
		upsertEntryQueryConstant,
		entry.RecordID,
		string(entry.Status),
		entry.RemoteID,
		entry.Reason,
		createdAt,
		currentTime,
	)
	if executionError != nil {
		return fmt.Errorf(storePutErrorTemplateConstant, executionError)
	}

	return nil
}

// Summary aggregates entry counts by status across the whole store.
func (store *Store) Summary(executionContext context.Context) (Summary, error) {
	rows, queryError := store.database.QueryContext(executionContext, summaryQueryConstant)
	if queryError != nil {
		return Summary{}, fmt.Errorf(storeSummaryErrorTemplateConstant, queryError)
	}
	defer rows.Close()

	var summary Summary
	for rows.Next() {
		var statusValue string
		var statusCount int
		if scanError := rows.Scan(&statusValue, &statusCount); scanError != nil {
			return Summary{}, fmt.Errorf(storeSummaryErrorTemplateConstant, scanError)
		}

		summary.Total += statusCount
		switch Status(statusValue) {
		case StatusSuccess:
			summary.Success += statusCount
		case StatusFailed:
			summary.Failed += statusCount
		default:
			summary.Pending += statusCount
		}
	}
	if rowsError := rows.Err(); rowsError != nil {
		return Summary{}, fmt.Errorf(storeSummaryErrorTemplateConstant, rowsError)
	}

	return summary, nil
}

// FailedEntries lists entries whose latest status is failed.
func (store *Store) FailedEntries(executionContext context.Context) ([]Entry, error) {
	return store.entriesByStatus(executionContext, StatusFailed)
}

// SuccessfulEntries lists entries whose latest status is success.
func (store *Store) SuccessfulEntries(executionContext context.Context) ([]Entry, error) {
	return store.entriesByStatus(executionContext, StatusSuccess)
}

func (store *Store) entriesByStatus(executionContext context.Context, entryStatus Status) ([]Entry, error) {
	rows, queryError := store.database.QueryContext(executionContext, selectByStatusQueryConstant, string(entryStatus))
	if queryError != nil {
		return nil, fmt.Errorf(storeListErrorTemplateConstant, queryError)
	}
	defer rows.Close()

	var collectedEntries []Entry
	for rows.Next() {
		var entry Entry
		var statusValue string
		if scanError := rows.Scan(&entry.RecordID, &statusValue, &entry.RemoteID, &entry.Reason, &entry.CreatedAt, &entry.UpdatedAt); scanError != nil {
			return nil, fmt.Errorf(storeListErrorTemplateConstant, scanError)
		}
		entry.Status = Status(statusValue)
		collectedEntries = append(collectedEntries, entry)
	}
	if rowsError := rows.Err(); rowsError != nil {
		return nil, fmt.Errorf(storeListErrorTemplateConstant, rowsError)
	}

	return collectedEntries, nil
}
