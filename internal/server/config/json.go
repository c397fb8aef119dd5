package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/framekeeper/internal/flagx"
	"github.com/dmitrijs2005/framekeeper/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "1s" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, its fields are copied into the
// runtime Config struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddrHTTP    string         `json:"endpoint_addr_http"`
	DatabaseDSN         string         `json:"database_dsn"`
	SecretKey           string         `json:"secret_key"`
	PairSessionTTL      timex.Duration `json:"pair_session_ttl"`
	PairSessionCapacity int            `json:"pair_session_capacity"`
	UpdateTokenValidity timex.Duration `json:"update_token_validity"`
	UpdateSessionMaxAge timex.Duration `json:"update_session_max_age"`
	SweepInterval       timex.Duration `json:"sweep_interval"`
	MaxAlbumItems       int            `json:"max_album_items"`
	SourceTimeout       timex.Duration `json:"source_timeout"`
	AlbumSourceBaseURL  string         `json:"album_source_base_url"`
	S3RootUser          string         `json:"s3_root_user"`
	S3RootPassword      string         `json:"s3_root_password"`
	S3Bucket            string         `json:"s3_bucket"`
	S3Region            string         `json:"s3_region"`
	S3BaseEndpoint      string         `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path is taken from the -c or -config command-line flags; if
// neither is set, no JSON file is loaded. Only fields present in the file
// override the current values. If the file cannot be read or contains
// invalid JSON, the function panics.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	if c.EndpointAddrHTTP != "" {
		config.EndpointAddrHTTP = c.EndpointAddrHTTP
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.SecretKey != "" {
		config.SecretKey = c.SecretKey
	}
	if c.PairSessionTTL.Duration != 0 {
		config.PairSessionTTL = time.Duration(c.PairSessionTTL.Duration)
	}
	if c.PairSessionCapacity != 0 {
		config.PairSessionCapacity = c.PairSessionCapacity
	}
	if c.UpdateTokenValidity.Duration != 0 {
		config.UpdateTokenValidity = time.Duration(c.UpdateTokenValidity.Duration)
	}
	if c.UpdateSessionMaxAge.Duration != 0 {
		config.UpdateSessionMaxAge = time.Duration(c.UpdateSessionMaxAge.Duration)
	}
	if c.SweepInterval.Duration != 0 {
		config.SweepInterval = time.Duration(c.SweepInterval.Duration)
	}
	if c.MaxAlbumItems != 0 {
		config.MaxAlbumItems = c.MaxAlbumItems
	}
	if c.SourceTimeout.Duration != 0 {
		config.SourceTimeout = time.Duration(c.SourceTimeout.Duration)
	}
	if c.AlbumSourceBaseURL != "" {
		config.AlbumSourceBaseURL = c.AlbumSourceBaseURL
	}
	if c.S3RootUser != "" {
		config.S3RootUser = c.S3RootUser
	}
	if c.S3RootPassword != "" {
		config.S3RootPassword = c.S3RootPassword
	}
	if c.S3Bucket != "" {
		config.S3Bucket = c.S3Bucket
	}
	if c.S3Region != "" {
		config.S3Region = c.S3Region
	}
	if c.S3BaseEndpoint != "" {
		config.S3BaseEndpoint = c.S3BaseEndpoint
	}
}
