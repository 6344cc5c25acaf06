// Package errdefs defines the kinded errors used across twinforge and their
// fixed HTTP status mapping, plus the safe-cleanup helper for non-critical
// teardown paths.
package errdefs
