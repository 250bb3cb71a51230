// Package store provides persistence for sanctum using SQLite.
//
// # Architecture
//
// The package defines one interface per concern:
//
//   - UserStore: account records (the login collaborator)
//   - TokenStore: hashed API tokens issued per device
//   - SessionStore: server-side browser sessions and their CSRF secrets
//
// SQLiteStore implements all interfaces in a single struct backed by
// modernc.org/sqlite (pure Go, no cgo). MemoryStore implements the same
// interfaces in memory and backs tests and the "memory" database driver.
//
// # Timestamps
//
// Timestamps are stored as INTEGER unix nanoseconds so that expiry and idle
// comparisons can run inside SQL with correct ordering.
//
// # Atomicity
//
// PromoteSession replaces the session id, the owning user and the CSRF secret
// in a single UPDATE statement, so no reader can observe a session that is
// authenticated with the pre-login secret.
package store
