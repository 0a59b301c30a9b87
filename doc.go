// Package flowlens is the execution observability pipeline for a visual
// flow editor
//
// The pipeline streams per-node input/output events from a running flow
// engine to editor clients over a long-lived WebSocket, groups those events
// into execution frames, and maintains a bounded per-node history of
// execution snapshots for inspection views
package flowlens

const (
	// Name identifies the service in logs and health responses
	Name = "flowlens"

	// Version is the pipeline release version
	Version = "0.1.0"
)
