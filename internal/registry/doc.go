// Package registry tracks remote issues that were created but not yet
// confirmed or rolled back. The snapshot it exposes is what run-level
// interruption handling uses to delete every still-pending remote issue
// before the process exits.
package registry
