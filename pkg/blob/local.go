package blob

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/twinforge/twinforge/pkg/errdefs"
)

const (
	// DefaultBlobsPath is the base directory for local blob storage
	DefaultBlobsPath = "/var/lib/twinforge/blobs"
)

// LocalStore implements Store on the local filesystem. Handles are paths
// relative to the base directory.
type LocalStore struct {
	basePath      string
	publicBaseURL string
}

// NewLocalStore creates a local filesystem blob store rooted at basePath.
func NewLocalStore(basePath, publicBaseURL string) (*LocalStore, error) {
	if basePath == "" {
		basePath = DefaultBlobsPath
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blobs directory: %w", err)
	}

	return &LocalStore{
		basePath:      basePath,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
	}, nil
}

// Save persists payload under a generated handle scoped to componentName.
func (s *LocalStore) Save(ctx context.Context, payload []byte, componentName, ext string) (string, error) {
	name := uuid.New().String()
	if ext != "" {
		name = name + "." + strings.TrimPrefix(ext, ".")
	}
	handle := filepath.Join(componentName, name)
	return s.SaveAtPath(ctx, payload, handle)
}

// SaveAtPath persists payload under an exact handle.
func (s *LocalStore) SaveAtPath(ctx context.Context, payload []byte, path string) (string, error) {
	full, err := s.resolve(path)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", errdefs.Wrap(errdefs.KindStorage, "failed to create blob directory", err)
	}

	// Write to a temp file first so readers never observe a partial blob.
	tmp, err := os.CreateTemp(filepath.Dir(full), ".blob-*")
	if err != nil {
		return "", errdefs.Wrap(errdefs.KindStorage, "failed to create temp blob", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", errdefs.Wrap(errdefs.KindStorage, "failed to write blob", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", errdefs.Wrap(errdefs.KindStorage, "failed to close blob", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return "", errdefs.Wrap(errdefs.KindStorage, "failed to finalize blob", err)
	}

	return filepath.ToSlash(path), nil
}

// Retrieve returns the bytes stored under a handle.
func (s *LocalStore) Retrieve(ctx context.Context, handle string) ([]byte, error) {
	full, err := s.resolve(handle)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errdefs.Newf(errdefs.KindNotFound, "blob not found: %s", handle)
		}
		return nil, errdefs.Wrap(errdefs.KindStorage, "failed to read blob", err)
	}
	return data, nil
}

// Delete removes a single blob. Missing blobs are ignored.
func (s *LocalStore) Delete(ctx context.Context, handle string) error {
	full, err := s.resolve(handle)
	if err != nil {
		return err
	}

	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return errdefs.Wrap(errdefs.KindStorage, "failed to delete blob", err)
	}
	return nil
}

// DeleteBatch removes a set of blobs, returning the first error after
// attempting every handle.
func (s *LocalStore) DeleteBatch(ctx context.Context, handles []string) error {
	var firstErr error
	for _, h := range handles {
		if err := s.Delete(ctx, h); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeleteByPrefix removes every blob under prefix and returns the count.
func (s *LocalStore) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	root, err := s.resolve(prefix)
	if err != nil {
		return 0, err
	}

	info, err := os.Stat(root)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, errdefs.Wrap(errdefs.KindStorage, "failed to stat prefix", err)
	}

	count := 0
	if info.IsDir() {
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				count++
			}
			return nil
		})
		if err != nil {
			return 0, errdefs.Wrap(errdefs.KindStorage, "failed to walk prefix", err)
		}
		if err := os.RemoveAll(root); err != nil {
			return 0, errdefs.Wrap(errdefs.KindStorage, "failed to delete prefix", err)
		}
		return count, nil
	}

	if err := os.Remove(root); err != nil {
		return 0, errdefs.Wrap(errdefs.KindStorage, "failed to delete blob", err)
	}
	return 1, nil
}

// PublicURL returns the externally reachable URL for a handle.
func (s *LocalStore) PublicURL(handle string) string {
	if s.publicBaseURL == "" {
		return "/" + filepath.ToSlash(handle)
	}
	return s.publicBaseURL + "/" + filepath.ToSlash(handle)
}

// resolve maps a handle to an absolute path, rejecting escapes from the
// base directory.
func (s *LocalStore) resolve(handle string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(handle))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return "", errdefs.Newf(errdefs.KindValidation, "invalid blob handle: %s", handle)
	}
	return filepath.Join(s.basePath, clean), nil
}
