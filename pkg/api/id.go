package api

type (
	// FrameID is a unique identifier for an execution frame
	FrameID string

	// NodeID is a unique identifier for a node in a flow
	NodeID string

	// NodeType names the registered type of a node (e.g. "inject",
	// "http in", "function")
	NodeType string
)
