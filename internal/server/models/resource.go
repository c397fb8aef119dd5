// Package models defines the persistent and cache-resident record types of
// the broker.
package models

import "time"

// ResourceSource identifies where a stored image came from.
type ResourceSource string

const (
	SourceUpload       ResourceSource = "upload"
	SourcePhotoPicker  ResourceSource = "picker"
	SourceScrapedAlbum ResourceSource = "album"
)

// Resource is one stored, access-controlled image. The plaintext access key
// is never part of this record; only its keyed hash is.
type Resource struct {
	ID              string
	DeviceID        string
	KeyHash         []byte
	KeyCreatedAt    time.Time
	StorageLocation string
	Source          ResourceSource
	// OriginHash is the stable hash of the source locator, kept for album
	// diffing instead of the raw URL.
	OriginHash  string
	AlbumHandle string
	// SessionCode is a transient back-reference to the pairing session that
	// produced the resource. Cleared once the package is delivered.
	SessionCode string
}
