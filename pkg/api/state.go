package api

import "time"

type (
	// ConnectionState is the transport client's externally visible state
	ConnectionState string

	// NodeStatus is the small enumerated runtime state shown on a node
	NodeStatus string

	// ExecutionFrame groups the node events belonging to one
	// trigger-to-completion run of a flow. EndedAt is zero while the frame
	// is open
	ExecutionFrame struct {
		StartedAt     time.Time `json:"started_at"`
		EndedAt       time.Time `json:"ended_at,omitzero"`
		ID            FrameID   `json:"id"`
		TriggerNodeID NodeID    `json:"trigger_node_id,omitempty"`
		Label         string    `json:"label,omitempty"`
	}

	// NodeExecutionSnapshot is the last-known execution state recorded for
	// one node within one frame
	NodeExecutionSnapshot struct {
		Ts             time.Time       `json:"ts"`
		PayloadPreview *PayloadPreview `json:"payload_preview,omitempty"`
		NodeID         NodeID          `json:"node_id"`
		FrameID        FrameID         `json:"frame_id"`
		Status         NodeStatus      `json:"status"`
		Summary        string          `json:"summary,omitempty"`
	}
)

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
)

const (
	StatusRunning NodeStatus = "running"
	StatusIdle    NodeStatus = "idle"
	StatusWarning NodeStatus = "warning"
	StatusError   NodeStatus = "error"
)

// IsOpen returns true while the frame has not yet been closed
func (f *ExecutionFrame) IsOpen() bool {
	return f.EndedAt.IsZero()
}
