// Package retry wraps individual remote calls with bounded exponential
// backoff. Retryable failures are reattempted up to the configured budget,
// fatal failures surface immediately, and rate-limit responses may override
// the computed delay with a server-supplied hint.
package retry
