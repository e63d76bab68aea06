// Package loader reads exported source-tracker tickets from the filesystem.
// Each ticket lives as a set of JSON documents plus attachment files beneath a
// data directory; absent or malformed documents surface as not-found errors so
// callers can report them as per-record failures.
package loader
