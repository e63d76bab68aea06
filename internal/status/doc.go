// Package status reports migration progress from the durable tracker:
// aggregate counts per terminal state plus the recorded failure reasons.
package status
