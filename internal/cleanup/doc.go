// Package cleanup identifies and removes orphaned remote issues: issues that
// exist in the destination tracker but were never confirmed in the migration
// progress tracker. It backs the cleanup command's analyze and delete modes.
package cleanup
