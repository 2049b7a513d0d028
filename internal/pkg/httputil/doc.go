// Package httputil provides shared HTTP response/request utilities for handlers.
//
// Handlers in api and ingest write through these helpers so every endpoint
// returns the same JSON envelope and logs internal errors the same way.
package httputil
