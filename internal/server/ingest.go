package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flowlens/flowlens/internal/sampler"
	"github.com/flowlens/flowlens/pkg/api"
	"github.com/flowlens/flowlens/pkg/log"
)

type (
	// IngestAction names one execution callback a flow engine can report
	IngestAction string

	// IngestRequest is one execution callback posted by a flow engine.
	// The payloads are raw engine JSON; sampling, redaction, and preview
	// bounding happen here before anything reaches the stream
	IngestRequest struct {
		Action        IngestAction       `json:"action"`
		FrameID       api.FrameID        `json:"frameId,omitempty"`
		NodeID        api.NodeID         `json:"nodeId,omitempty"`
		NodeType      api.NodeType       `json:"nodeType,omitempty"`
		TriggerNodeID api.NodeID         `json:"triggerNodeId,omitempty"`
		Payload       json.RawMessage    `json:"payload,omitempty"`
		Outputs       []json.RawMessage  `json:"outputs,omitempty"`
		Semantics     *api.NodeSemantics `json:"semantics,omitempty"`
		Timing        *api.NodeTiming    `json:"timing,omitempty"`
		Stats         api.FrameStats     `json:"stats,omitempty"`
		Failed        bool               `json:"failed,omitempty"`
		Debug         bool               `json:"debug,omitempty"`
	}

	// IngestResponse acknowledges an accepted callback. FrameID is set
	// for frame:start so the engine can tag subsequent callbacks
	IngestResponse struct {
		Accepted bool        `json:"accepted"`
		FrameID  api.FrameID `json:"frameId,omitempty"`
	}
)

// IngestPath is the route suffix flow engines post callbacks to
const IngestPath = "ingest"

const (
	IngestFrameStart IngestAction = "frame:start"
	IngestNodeInput  IngestAction = "node:input"
	IngestNodeOutput IngestAction = "node:output"
	IngestFrameEnd   IngestAction = "frame:end"
)

// NewIngestHandler returns the route handler feeding engine execution
// callbacks through the emitter onto the stream
func NewIngestHandler(emitter *sampler.Emitter) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req IngestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			slog.Warn("Rejecting malformed ingest request", log.Error(err))
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}

		switch req.Action {
		case IngestFrameStart:
			frameID := emitter.StartFrame(req.TriggerNodeID)
			c.JSON(http.StatusAccepted, IngestResponse{
				Accepted: true,
				FrameID:  frameID,
			})

		case IngestNodeInput:
			if !requireNode(c, &req) {
				return
			}
			emitter.NodeInput(
				req.FrameID, req.NodeID, req.NodeType, req.Payload,
				execution(&req),
			)
			c.JSON(http.StatusAccepted, IngestResponse{Accepted: true})

		case IngestNodeOutput:
			if !requireNode(c, &req) {
				return
			}
			outputs := make([][]byte, len(req.Outputs))
			for i, raw := range req.Outputs {
				outputs[i] = raw
			}
			emitter.NodeOutput(
				req.FrameID, req.NodeID, req.NodeType, outputs,
				req.Semantics, req.Timing, execution(&req),
			)
			c.JSON(http.StatusAccepted, IngestResponse{Accepted: true})

		case IngestFrameEnd:
			if req.FrameID == "" {
				c.AbortWithStatus(http.StatusBadRequest)
				return
			}
			emitter.EndFrame(req.FrameID, req.Stats)
			c.JSON(http.StatusAccepted, IngestResponse{Accepted: true})

		default:
			slog.Warn("Rejecting ingest request of unknown action",
				slog.String("action", string(req.Action)))
			c.AbortWithStatus(http.StatusBadRequest)
		}
	}
}

func requireNode(c *gin.Context, req *IngestRequest) bool {
	if req.FrameID == "" || req.NodeID == "" {
		c.AbortWithStatus(http.StatusBadRequest)
		return false
	}
	return true
}

func execution(req *IngestRequest) sampler.Execution {
	return sampler.Execution{
		Failed: req.Failed,
		Debug:  req.Debug,
	}
}
