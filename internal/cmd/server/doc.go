// Package serverrun wires configuration, storage, the activity service and
// the HTTP server into a single blocking Run entrypoint used by the CLI.
package serverrun
