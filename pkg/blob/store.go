package blob

import (
	"context"
)

// Store defines the interface for blob storage backends.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save persists payload under a generated handle scoped to the
	// component name. The optional extension is appended to the handle.
	Save(ctx context.Context, payload []byte, componentName, ext string) (string, error)

	// SaveAtPath persists payload under an exact caller-chosen path.
	SaveAtPath(ctx context.Context, payload []byte, path string) (string, error)

	// Retrieve returns the bytes stored under a handle.
	Retrieve(ctx context.Context, handle string) ([]byte, error)

	// Delete removes a single blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, handle string) error

	// DeleteBatch removes a set of blobs, continuing past individual
	// failures and returning the first error encountered.
	DeleteBatch(ctx context.Context, handles []string) error

	// DeleteByPrefix removes every blob whose handle starts with prefix and
	// returns the number removed.
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)

	// PublicURL returns the externally reachable URL for a handle.
	PublicURL(handle string) string
}
