// Package httpserver exposes the activity subsystem over HTTP: snapshot
// reads, historical search, stats, event emission and the SSE streaming
// transport, behind bearer-token auth with Prometheus instrumentation.
package httpserver
