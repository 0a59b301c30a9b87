package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type (
	// EventType discriminates the observability event union
	EventType string

	// Event is the envelope for every message on the observability socket.
	// Ts is the producer-side unix-millisecond timestamp; Data holds the
	// variant payload for the declared Type
	Event struct {
		Type EventType       `json:"type"`
		Ts   int64           `json:"ts"`
		Data json.RawMessage `json:"data,omitempty"`
	}

	// ConnectedEvent greets a subscriber immediately after upgrade
	ConnectedEvent struct {
		Message string `json:"message"`
	}

	// HeartbeatEvent is the periodic liveness signal carrying the server's
	// current connection count
	HeartbeatEvent struct {
		Connections int `json:"connections"`
	}

	// FrameStartEvent marks the beginning of an execution frame
	FrameStartEvent struct {
		FrameID       FrameID `json:"frame_id"`
		StartedAt     int64   `json:"started_at"`
		TriggerNodeID NodeID  `json:"trigger_node_id,omitempty"`
	}

	// NodeInputEvent reports a sampled input arriving at a node
	NodeInputEvent struct {
		Input    *IOEvent `json:"input"`
		FrameID  FrameID  `json:"frame_id"`
		NodeID   NodeID   `json:"node_id"`
		NodeType NodeType `json:"node_type"`
		Sampled  bool     `json:"sampled"`
	}

	// NodeOutputEvent reports the sampled outputs a node produced
	NodeOutputEvent struct {
		Outputs   []*IOEvent     `json:"outputs"`
		Semantics *NodeSemantics `json:"semantics,omitempty"`
		Timing    *NodeTiming    `json:"timing,omitempty"`
		FrameID   FrameID        `json:"frame_id"`
		NodeID    NodeID         `json:"node_id"`
		NodeType  NodeType       `json:"node_type"`
		Sampled   bool           `json:"sampled"`
	}

	// FrameEndEvent marks the completion of an execution frame
	FrameEndEvent struct {
		FrameID FrameID    `json:"frame_id"`
		EndedAt int64      `json:"ended_at"`
		Stats   FrameStats `json:"stats"`
	}

	// FrameStats summarizes a completed frame
	FrameStats struct {
		Events int `json:"events"`
		Nodes  int `json:"nodes"`
	}
)

const (
	EventTypeConnected  EventType = "connected"
	EventTypeHeartbeat  EventType = "heartbeat"
	EventTypeFrameStart EventType = "frame:start"
	EventTypeNodeInput  EventType = "node:input"
	EventTypeNodeOutput EventType = "node:output"
	EventTypeFrameEnd   EventType = "frame:end"
)

var (
	// ErrMalformedEvent is returned when a wire message cannot be decoded
	ErrMalformedEvent = errors.New("malformed observability event")

	// ErrUnknownEventType is returned when a wire message declares a type
	// outside the event union
	ErrUnknownEventType = errors.New("unknown event type")

	// ErrMissingFrameID is returned when a frame-scoped event omits its
	// frame identifier
	ErrMissingFrameID = errors.New("event is missing frame_id")

	// ErrMissingNodeID is returned when a node event omits its node
	// identifier
	ErrMissingNodeID = errors.New("event is missing node_id")
)

// ParseEvent decodes and validates a single wire message. The result is
// either a well-formed Event whose payload decodes for its declared type, or
// an error describing why the message must be dropped. A missing Ts is
// defaulted to the supplied receive time
func ParseEvent(data []byte, received time.Time) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if ev.Ts == 0 {
		ev.Ts = received.UnixMilli()
	}
	if err := ev.validate(); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (e *Event) validate() error {
	switch e.Type {
	case EventTypeConnected:
		_, err := DecodeEvent[ConnectedEvent](e)
		return err

	case EventTypeHeartbeat:
		_, err := DecodeEvent[HeartbeatEvent](e)
		return err

	case EventTypeFrameStart:
		fs, err := DecodeEvent[FrameStartEvent](e)
		if err != nil {
			return err
		}
		if fs.FrameID == "" {
			return ErrMissingFrameID
		}
		return nil

	case EventTypeNodeInput:
		ni, err := DecodeEvent[NodeInputEvent](e)
		if err != nil {
			return err
		}
		return validateNodeEvent(ni.FrameID, ni.NodeID)

	case EventTypeNodeOutput:
		no, err := DecodeEvent[NodeOutputEvent](e)
		if err != nil {
			return err
		}
		return validateNodeEvent(no.FrameID, no.NodeID)

	case EventTypeFrameEnd:
		fe, err := DecodeEvent[FrameEndEvent](e)
		if err != nil {
			return err
		}
		if fe.FrameID == "" {
			return ErrMissingFrameID
		}
		return nil

	default:
		return fmt.Errorf("%w: %q", ErrUnknownEventType, e.Type)
	}
}

func validateNodeEvent(frameID FrameID, nodeID NodeID) error {
	if frameID == "" {
		return ErrMissingFrameID
	}
	if nodeID == "" {
		return ErrMissingNodeID
	}
	return nil
}

// DecodeEvent unmarshals an event's payload into the variant struct for its
// declared type
func DecodeEvent[T any](e *Event) (*T, error) {
	var res T
	if len(e.Data) == 0 {
		return &res, nil
	}
	if err := json.Unmarshal(e.Data, &res); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	return &res, nil
}

// NewEvent wraps a variant payload in an Event envelope stamped with the
// provided time
func NewEvent(typ EventType, at time.Time, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	return &Event{
		Type: typ,
		Ts:   at.UnixMilli(),
		Data: data,
	}, nil
}
