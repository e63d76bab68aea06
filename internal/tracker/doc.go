// Package tracker persists per-record migration progress in SQLite. The store
// is the single source of truth for whether a record has already been migrated
// and survives process restarts, which is what makes resumed runs skip
// completed records instead of creating duplicates.
package tracker
