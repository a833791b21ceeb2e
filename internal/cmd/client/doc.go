// Package client implements the CLI subcommands that talk to a running
// server over its HTTP API, including the SSE tail.
package client
