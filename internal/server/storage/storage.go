// Package storage defines the blob-storage collaborator of the registry and
// its S3-compatible and in-memory implementations.
package storage

import "context"

// BlobStore persists raw image bytes. Locations returned by Put are opaque
// references understood only by the same store.
type BlobStore interface {
	// Put stores data under the given id and returns the storage location.
	Put(ctx context.Context, id string, data []byte) (string, error)

	// Get fetches the bytes at location. Returns common.ErrNotFound when the
	// blob is missing.
	Get(ctx context.Context, location string) ([]byte, error)

	// Delete removes the blob at location. Deleting an absent blob is not an
	// error.
	Delete(ctx context.Context, location string) error
}
