package models

import "time"

// UpdateSession is the short-lived durable handle delivering the result of
// an asynchronous album-diff run. The link map is stored sealed (AES-GCM
// under a key the server does not retain), so no plaintext resource key is
// ever persisted.
type UpdateSession struct {
	ID               string
	DeviceID         string
	ReadyForTransfer bool
	Expired          bool
	CreatedAt        time.Time
	SealedLinks      []byte
	LinksNonce       []byte
}
