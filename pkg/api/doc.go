// Package api defines the core data types for the observability pipeline
//
// This package contains the wire-level event union streamed from the flow
// engine to editor clients, along with the derived frame, snapshot, and
// connection-state types shared across the pipeline
package api
