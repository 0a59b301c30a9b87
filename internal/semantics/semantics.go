// Package semantics translates node role/behavior metadata into the small
// enumerated runtime state shown in the editor, plus human-readable
// execution summaries
package semantics

import (
	"fmt"

	"github.com/flowlens/flowlens/pkg/api"
)

// Map derives a node's runtime status from the semantics attached to its
// output event. A nil semantics means the node has received input but not
// yet produced output, so it is still running
func Map(sem *api.NodeSemantics) api.NodeStatus {
	if sem == nil {
		return api.StatusRunning
	}
	switch sem.Behavior {
	case api.BehaviorFiltered:
		return api.StatusWarning
	case api.BehaviorTerminated:
		return api.StatusError
	case api.BehaviorPassThrough, api.BehaviorTransformed,
		api.BehaviorBifurcated:
		return api.StatusIdle
	default:
		return api.StatusRunning
	}
}

// Summary renders a short human-readable description of what a node did
// with the message it processed
func Summary(nodeType api.NodeType, sem *api.NodeSemantics) string {
	if sem == nil {
		return fmt.Sprintf("%s: awaiting output", nodeType)
	}

	var action string
	switch sem.Behavior {
	case api.BehaviorPassThrough:
		action = "passed the message through unchanged"
	case api.BehaviorTransformed:
		action = "transformed the message"
	case api.BehaviorFiltered:
		action = "filtered the message out"
	case api.BehaviorBifurcated:
		action = "routed the message to multiple outputs"
	case api.BehaviorTerminated:
		action = "terminated the message"
	default:
		action = fmt.Sprintf("reported behavior %q", sem.Behavior)
	}

	return fmt.Sprintf("%s (%s) %s", nodeType, roleLabel(sem.Role), action)
}

func roleLabel(role api.NodeRole) string {
	switch role {
	case api.RoleTrigger:
		return "trigger"
	case api.RoleTransform:
		return "transform"
	case api.RoleFilter:
		return "filter"
	case api.RoleGenerator:
		return "generator"
	case api.RoleSink:
		return "sink"
	default:
		return "node"
	}
}
