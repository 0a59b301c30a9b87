// Package server implements the transport side of the observability
// pipeline
//
// This package upgrades HTTP connections to WebSocket on a single
// well-known path, enforces a connection ceiling, and relays every
// produced event plus periodic heartbeats to all subscribers
package server
