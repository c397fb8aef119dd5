package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/framekeeper/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN (empty selects the in-memory stores)
//	-s string   master secret key
//	-t int      pairing-session TTL, minutes
//	-v int      update-token validity, minutes
//	-w int      sweep interval, minutes
//	-m int      max accepted album size
//	-l string   album source base URL
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name (empty selects the in-memory blob store)
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers in minutes and then converted
//     to time.Duration values.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-t", "-v", "-w", "-m", "-l", "-u", "-p", "-b", "-g", "-e"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	pairSessionTTL := fs.Int("t", int(config.PairSessionTTL.Minutes()), "pair_session_ttl (in minutes)")
	updateTokenValidity := fs.Int("v", int(config.UpdateTokenValidity.Minutes()), "update_token_validity (in minutes)")
	sweepInterval := fs.Int("w", int(config.SweepInterval.Minutes()), "sweep_interval (in minutes)")

	fs.IntVar(&config.MaxAlbumItems, "m", config.MaxAlbumItems, "max accepted album size")
	fs.StringVar(&config.AlbumSourceBaseURL, "l", config.AlbumSourceBaseURL, "album source base URL")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.PairSessionTTL = time.Duration(*pairSessionTTL) * time.Minute
	config.UpdateTokenValidity = time.Duration(*updateTokenValidity) * time.Minute
	config.SweepInterval = time.Duration(*sweepInterval) * time.Minute
}
