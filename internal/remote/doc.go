// Package remote provides the destination issue-tracker client along with the
// error taxonomy shared by every component that performs remote calls. It
// distinguishes retryable failures (timeouts, 5xx, rate limits) from fatal
// ones (validation and authentication rejections) so the retry policy and the
// migration saga can react appropriately.
package remote
