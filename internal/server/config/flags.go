package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/contentup/internal/flagx"
)

// parseFlags populates server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   REST bind address (e.g., ":8080")
//	-g string   gRPC health bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-x string   REST API prefix
//	-m int      max chunk size, bytes
//	-t int      upload session TTL, minutes
//	-j int      janitor interval, seconds
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-r string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-n int      multipart threshold, bytes
//
// Only the flags above are taken from os.Args (see flagx.ParseOwn); a parse
// error panics.
func parseFlags(config *Config) {
	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run the REST API")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "address and port to run the gRPC health endpoint")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.APIPrefix, "x", config.APIPrefix, "REST API prefix")
	fs.Int64Var(&config.MaxChunkSize, "m", config.MaxChunkSize, "max chunk size (in bytes)")

	sessionTTL := fs.Int("t", int(config.SessionTTL.Minutes()), "upload session TTL (in minutes)")
	janitorInterval := fs.Int("j", int(config.JanitorInterval.Seconds()), "expired upload purge interval (in seconds)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "r", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.Int64Var(&config.MultipartThreshold, "n", config.MultipartThreshold, "multipart copy threshold (in bytes)")

	if err := flagx.ParseOwn(fs); err != nil {
		panic(err)
	}

	config.SessionTTL = time.Duration(*sessionTTL) * time.Minute
	config.JanitorInterval = time.Duration(*janitorInterval) * time.Second
}
