package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/ingestkeeper/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-g string   gRPC bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-w string   worker token
//	-l string   log level (debug, info, warn, error)
//	-q string   queue backend (kafka, rabbitmq, redis, none)
//	-i duration reaper poll interval (e.g., "30s")
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-g", "-d", "-s", "-w", "-l", "-q", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run HTTP server")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "address and port to run worker gRPC server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.WorkerToken, "w", config.WorkerToken, "worker token")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.QueueBackend, "q", config.QueueBackend, "queue backend")
	fs.DurationVar(&config.ReaperInterval, "i", config.ReaperInterval, "reaper poll interval")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
