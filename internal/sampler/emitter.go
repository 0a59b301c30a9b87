package sampler

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flowlens/flowlens/pkg/api"
	"github.com/flowlens/flowlens/pkg/log"
)

type (
	// PublishFunc hands a finished event to the transport server
	PublishFunc func(*api.Event)

	// Emitter builds observability events from engine execution callbacks
	// and hands them to the transport layer. Emit failures are logged and
	// swallowed; telemetry never disturbs the flow engine
	Emitter struct {
		sampler *Sampler
		preview *PreviewBuilder
		publish PublishFunc
		clock   func() time.Time
	}
)

// NewEmitter wires a sampler and preview builder to a publish function
func NewEmitter(
	s *Sampler, b *PreviewBuilder, publish PublishFunc,
) *Emitter {
	return &Emitter{
		sampler: s,
		preview: b,
		publish: publish,
		clock:   time.Now,
	}
}

// StartFrame emits a frame:start for a new trigger-to-completion run and
// returns the frame's identifier
func (e *Emitter) StartFrame(trigger api.NodeID) api.FrameID {
	frameID := api.FrameID(uuid.NewString())
	now := e.clock()
	e.emit(api.EventTypeFrameStart, &api.FrameStartEvent{
		FrameID:       frameID,
		StartedAt:     now.UnixMilli(),
		TriggerNodeID: trigger,
	})
	return frameID
}

// NodeInput emits a node:input event if the execution is sampled
func (e *Emitter) NodeInput(
	frameID api.FrameID, nodeID api.NodeID, nodeType api.NodeType,
	raw []byte, exec Execution,
) {
	if !e.sampler.Sample(nodeID, exec) {
		return
	}
	now := e.clock()
	e.emit(api.EventTypeNodeInput, &api.NodeInputEvent{
		FrameID:  frameID,
		NodeID:   nodeID,
		NodeType: nodeType,
		Sampled:  true,
		Input: &api.IOEvent{
			Direction: api.DirectionInput,
			Timestamp: now.UnixMilli(),
			Payload:   e.preview.Build(raw),
		},
	})
}

// NodeOutput emits a node:output event if the execution is sampled. Each
// raw output payload becomes one IOEvent on its own port
func (e *Emitter) NodeOutput(
	frameID api.FrameID, nodeID api.NodeID, nodeType api.NodeType,
	outputs [][]byte, sem *api.NodeSemantics, timing *api.NodeTiming,
	exec Execution,
) {
	if !e.sampler.Sample(nodeID, exec) {
		return
	}
	now := e.clock()

	ioEvents := make([]*api.IOEvent, len(outputs))
	for i, raw := range outputs {
		ioEvents[i] = &api.IOEvent{
			Direction: api.DirectionOutput,
			Port:      i,
			Timestamp: now.UnixMilli(),
			Payload:   e.preview.Build(raw),
		}
	}

	e.emit(api.EventTypeNodeOutput, &api.NodeOutputEvent{
		FrameID:   frameID,
		NodeID:    nodeID,
		NodeType:  nodeType,
		Outputs:   ioEvents,
		Semantics: sem,
		Timing:    timing,
		Sampled:   true,
	})
}

// EndFrame emits a frame:end for a completed run
func (e *Emitter) EndFrame(frameID api.FrameID, stats api.FrameStats) {
	now := e.clock()
	e.emit(api.EventTypeFrameEnd, &api.FrameEndEvent{
		FrameID: frameID,
		EndedAt: now.UnixMilli(),
		Stats:   stats,
	})
}

func (e *Emitter) emit(typ api.EventType, payload any) {
	ev, err := api.NewEvent(typ, e.clock(), payload)
	if err != nil {
		slog.Error("Failed to build observability event",
			slog.String("type", string(typ)),
			log.Error(err))
		return
	}
	e.publish(ev)
}
