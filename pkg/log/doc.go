// Package log provides structured logging for the rollout coordinator and
// the deploy agent, built on zerolog: JSON when Config.JSONOutput is set,
// human-readable console output otherwise.
//
// Call Init once at process start with the desired Level/JSONOutput/Output,
// then derive component loggers with WithComponent, WithHost,
// WithDeploymentID, or WithSessionID so every log line carries the context
// needed to follow one host's deployment across goroutines.
package log
