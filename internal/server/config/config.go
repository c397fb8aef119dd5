// Package config handles configuration for the server component,
// including defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the framekeeper server.
//
// Fields:
//   - EndpointAddrHTTP: bind address for the public HTTP endpoint.
//   - DatabaseDSN: PostgreSQL DSN (pgx). Empty DSN selects the in-memory
//     stores, for local runs without a database.
//   - SecretKey: master secret; per-purpose secrets are derived from it.
//     Do not use test defaults in prod.
//   - PairSessionTTL / PairSessionCapacity: pairing-session cache bounds.
//   - UpdateTokenValidity: lifetime of update-session access tokens.
//   - UpdateSessionMaxAge: sweeper cutoff for stale update sessions.
//   - SweepInterval: cleanup pass period.
//   - MaxAlbumItems: largest external album accepted by the sync engine.
//   - SourceTimeout: per-call bound on external album/source fetches.
//   - AlbumSourceBaseURL: base URL of the external album listing service.
//   - S3RootUser / S3RootPassword: credentials for the S3-compatible backend.
//   - S3Bucket / S3Region / S3BaseEndpoint: object storage settings. Empty
//     bucket selects the in-memory blob store.
type Config struct {
	EndpointAddrHTTP    string
	DatabaseDSN         string
	SecretKey           string
	PairSessionTTL      time.Duration
	PairSessionCapacity int
	UpdateTokenValidity time.Duration
	UpdateSessionMaxAge time.Duration
	SweepInterval       time.Duration
	MaxAlbumItems       int
	SourceTimeout       time.Duration
	AlbumSourceBaseURL  string
	S3RootUser          string
	S3RootPassword      string
	S3Bucket            string
	S3Region            string
	S3BaseEndpoint      string
}

// LoadDefaults populates Config with sensible development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.EndpointAddrHTTP = ":8080"
	c.DatabaseDSN = ""
	c.SecretKey = "secretKey"
	c.PairSessionTTL = 10 * time.Minute
	c.PairSessionCapacity = 1000
	c.UpdateTokenValidity = 1 * time.Hour
	c.UpdateSessionMaxAge = 24 * time.Hour
	c.SweepInterval = 1 * time.Hour
	c.MaxAlbumItems = 500
	c.SourceTimeout = 15 * time.Second
	c.AlbumSourceBaseURL = "http://127.0.0.1:9100/"
	c.S3RootUser = "admin"
	c.S3RootPassword = "secretpassword"
	c.S3Bucket = ""
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
