// Package convert turns exported source tickets into destination issue
// payloads using a declarative YAML mapping table for priorities, statuses,
// and the issue type.
package convert
