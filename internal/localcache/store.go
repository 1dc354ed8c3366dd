// Package localcache persists the AppState blob on the device. The blob lives
// under one fixed key in a small key-value Store; failures are logged and
// swallowed so the UI never sees them.
package localcache

// Store is a minimal key-value store for opaque blobs.
type Store interface {
	// Get returns the value under key, or an error wrapping
	// apperr.ErrNotFound when the key was never set.
	Get(key string) ([]byte, error)
	// Set durably replaces the value under key.
	Set(key string, value []byte) error
}

// pather is implemented by stores whose keys map to files on disk.
type pather interface {
	Path(key string) (string, error)
}
