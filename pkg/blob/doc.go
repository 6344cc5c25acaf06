// Package blob stores opaque byte payloads keyed by a returned handle.
// The local filesystem implementation is the default backend; S3-compatible
// stores plug in behind the same interface.
package blob
