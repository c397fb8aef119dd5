package models

// LinkSession is the ephemeral pairing record connecting a device to a
// browser-driven photo selection flow. It lives only in the TTL cache; the
// resource package it accumulates is the single place plaintext keys exist
// server-side.
type LinkSession struct {
	ID           string
	DeviceID     string
	PairingCode  string
	ScreenWidth  int
	ScreenHeight int
	// PendingSourceLinks holds source locators queued for ingestion, in the
	// order the browser selected them. Emptied once ingestion completes.
	PendingSourceLinks []string
	// ResourcePackage maps resource ID to its plaintext access key.
	ResourcePackage  map[string]string
	ReadyForTransfer bool
	Expired          bool
}
