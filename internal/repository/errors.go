// Package repository holds the MySQL-backed stores used by the service.
package repository

import "errors"

// ErrNotConfigured is returned when a repository was built without a
// database handle.  Handlers should translate this into an HTTP 503.
var ErrNotConfigured = errors.New("repository: database not configured")

// ErrNotFound is returned when a lookup by id matches no row.  Handlers
// should translate this into an HTTP 404.
var ErrNotFound = errors.New("repository: not found")
