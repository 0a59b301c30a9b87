package frame

import (
	"strings"

	"github.com/flowlens/flowlens/pkg/api"
	"github.com/flowlens/flowlens/pkg/util"
)

// triggerTypes lists the node types whose input is ground truth rather than
// inferred from upstream output: inject-like nodes, inbound network
// listeners, and file watchers
var triggerTypes = util.SetOf[api.NodeType](
	"inject",
	"interval",
	"cron",
	"http in",
	"websocket in",
	"tcp in",
	"udp in",
	"mqtt in",
	"amqp in",
	"file watch",
	"tail",
)

// IsTrigger reports whether a node type starts execution frames on its own
func IsTrigger(t api.NodeType) bool {
	normalized := api.NodeType(strings.ToLower(strings.TrimSpace(string(t))))
	return triggerTypes.Contains(normalized)
}
