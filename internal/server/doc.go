// Package server assembles the sanctum HTTP server.
//
// New opens the configured store (sqlite or memory), builds the token and
// session services and the Guard, and mounts the API on a chi router next to
// /health and, when enabled, the Prometheus /metrics endpoint.
//
// Run blocks until its context is canceled. While running, a sweeper deletes
// expired tokens and idle sessions every auth.sweep_interval. Shutdown waits
// for in-flight requests and pending last-used updates before closing the
// store.
package server
