package api

type (
	// NodeRole describes what a node is for within a flow
	NodeRole string

	// NodeBehavior describes what a node did to the message it processed
	NodeBehavior string

	// NodeSemantics carries the role/behavior metadata a producer attaches
	// to a node's output event
	NodeSemantics struct {
		Role     NodeRole     `json:"role"`
		Behavior NodeBehavior `json:"behavior"`
	}

	// NodeTiming records when a node execution started and how long it ran
	NodeTiming struct {
		StartedAt int64 `json:"started_at"`
		Duration  int64 `json:"duration"`
	}
)

const (
	RoleTrigger   NodeRole = "trigger"
	RoleTransform NodeRole = "transform"
	RoleFilter    NodeRole = "filter"
	RoleGenerator NodeRole = "generator"
	RoleSink      NodeRole = "sink"
)

const (
	BehaviorPassThrough NodeBehavior = "pass-through"
	BehaviorTransformed NodeBehavior = "transformed"
	BehaviorFiltered    NodeBehavior = "filtered"
	BehaviorBifurcated  NodeBehavior = "bifurcated"
	BehaviorTerminated  NodeBehavior = "terminated"
)
