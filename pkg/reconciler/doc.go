// Package reconciler applies a preflight-computed diff (or a full archive
// replacement) to the installed archive file on one agent host, guarding
// every mutation with a single-flight lock so two overlapping deploy
// requests can never interleave their writes. A diff is staged into a
// disposable scratch directory and repackaged into a new archive file that
// replaces the installed one with a rename, so a concurrent reader never
// observes a partially written archive.
package reconciler
