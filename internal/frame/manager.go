// Package frame groups the flat observability event stream into
// session-scoped execution frames and maintains the per-node snapshot
// history derived from them
package frame

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/flowlens/flowlens/internal/config"
	"github.com/flowlens/flowlens/internal/semantics"
	"github.com/flowlens/flowlens/internal/snapshot"
	"github.com/flowlens/flowlens/pkg/api"
	"github.com/flowlens/flowlens/pkg/log"
	"github.com/flowlens/flowlens/pkg/util"
)

type (
	// Manager consumes the raw event stream and turns it into execution
	// frames and node snapshots. At most one frame is open at a time; a
	// frame with no traffic for the idle timeout is closed without waiting
	// for a frame:end
	Manager struct {
		store    *snapshot.Store
		clock    util.Clock
		idle     util.Timer
		current  *api.ExecutionFrame
		recent   []*api.ExecutionFrame
		stop     chan struct{}
		cfg      config.FrameConfig
		stopOnce sync.Once
		mu       sync.Mutex
	}

	// Options overrides the manager's scheduler for tests. A nil Options or
	// nil field falls back to the system clock and timers
	Options struct {
		Clock    util.Clock
		NewTimer util.TimerConstructor
	}
)

// maxRecentFrames bounds the closed-frame list kept for the log panel
const maxRecentFrames = 20

// NewManager creates a frame lifecycle manager writing to the given
// snapshot store
func NewManager(
	store *snapshot.Store, cfg config.FrameConfig, opts *Options,
) *Manager {
	clock := time.Now
	newTimer := util.NewTimer
	if opts != nil {
		if opts.Clock != nil {
			clock = opts.Clock
		}
		if opts.NewTimer != nil {
			newTimer = opts.NewTimer
		}
	}

	idle := newTimer(cfg.IdleTimeout)
	idle.Stop()

	m := &Manager{
		store: store,
		cfg:   cfg,
		clock: clock,
		idle:  idle,
		stop:  make(chan struct{}),
	}
	go m.watchIdle()
	return m
}

// Stop cancels the idle watcher. Safe to call multiple times
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	m.idle.Stop()
}

// HandleEvent consumes one observability event. Registered as a transport
// client handler; also fed directly by tests
func (m *Manager) HandleEvent(ev *api.Event) {
	switch ev.Type {
	case api.EventTypeConnected, api.EventTypeHeartbeat:
		// Presence signals carry no frame state

	case api.EventTypeFrameStart:
		m.handleFrameStart(ev)

	case api.EventTypeNodeInput:
		m.handleNodeInput(ev)

	case api.EventTypeNodeOutput:
		m.handleNodeOutput(ev)

	case api.EventTypeFrameEnd:
		m.handleFrameEnd(ev)

	default:
		slog.Warn("Dropping event of unknown type",
			slog.String("type", string(ev.Type)))
	}
}

// CurrentFrame returns a copy of the open frame, or nil when none is open
func (m *Manager) CurrentFrame() *api.ExecutionFrame {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil
	}
	res := *m.current
	return &res
}

// RecentFrames returns the most recently closed frames, newest first
func (m *Manager) RecentFrames() []*api.ExecutionFrame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.recent)
}

func (m *Manager) handleFrameStart(ev *api.Event) {
	fs, err := api.DecodeEvent[api.FrameStartEvent](ev)
	if err != nil {
		m.logDrop(ev, err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	m.closeCurrentLocked(now)

	startedAt := time.UnixMilli(fs.StartedAt)
	if fs.StartedAt == 0 {
		startedAt = now
	}
	m.current = &api.ExecutionFrame{
		ID:            fs.FrameID,
		StartedAt:     startedAt,
		TriggerNodeID: fs.TriggerNodeID,
		Label:         frameLabel(fs.TriggerNodeID, startedAt),
	}
	m.idle.Reset(m.cfg.IdleTimeout)
}

func (m *Manager) handleNodeInput(ev *api.Event) {
	ni, err := api.DecodeEvent[api.NodeInputEvent](ev)
	if err != nil {
		m.logDrop(ev, err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.ensureFrameLocked(ni.FrameID, ev.Ts)

	// An implicitly opened frame has no trigger until one shows up in
	// the stream; the first trigger node observed claims it
	if m.current.ID == ni.FrameID && m.current.TriggerNodeID == "" &&
		IsTrigger(ni.NodeType) {
		m.current.TriggerNodeID = ni.NodeID
		m.current.Label = frameLabel(ni.NodeID, m.current.StartedAt)
		slog.Debug("Trigger node claimed frame",
			log.FrameID(ni.FrameID),
			log.NodeID(ni.NodeID),
			log.NodeType(ni.NodeType))
	}

	var preview *api.PayloadPreview
	if ni.Input != nil {
		preview = m.retruncate(&ni.Input.Payload)
	}
	m.store.Upsert(&api.NodeExecutionSnapshot{
		NodeID:         ni.NodeID,
		FrameID:        ni.FrameID,
		Status:         api.StatusRunning,
		Ts:             time.UnixMilli(ev.Ts),
		Summary:        semantics.Summary(ni.NodeType, nil),
		PayloadPreview: preview,
	})
}

func (m *Manager) handleNodeOutput(ev *api.Event) {
	no, err := api.DecodeEvent[api.NodeOutputEvent](ev)
	if err != nil {
		m.logDrop(ev, err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.ensureFrameLocked(no.FrameID, ev.Ts)

	// Only the first output of a fan-out drives the snapshot
	var preview *api.PayloadPreview
	ts := time.UnixMilli(ev.Ts)
	if len(no.Outputs) > 0 && no.Outputs[0] != nil {
		first := no.Outputs[0]
		preview = m.retruncate(&first.Payload)
		if first.Timestamp != 0 {
			ts = time.UnixMilli(first.Timestamp)
		}
	}

	m.store.Upsert(&api.NodeExecutionSnapshot{
		NodeID:         no.NodeID,
		FrameID:        no.FrameID,
		Status:         semantics.Map(no.Semantics),
		Ts:             ts,
		Summary:        semantics.Summary(no.NodeType, no.Semantics),
		PayloadPreview: preview,
	})
}

func (m *Manager) handleFrameEnd(ev *api.Event) {
	fe, err := api.DecodeEvent[api.FrameEndEvent](ev)
	if err != nil {
		m.logDrop(ev, err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || m.current.ID != fe.FrameID {
		// A late frame:end for an already-closed frame is expected after
		// an idle-timeout closure
		return
	}

	endedAt := time.UnixMilli(fe.EndedAt)
	if fe.EndedAt == 0 {
		endedAt = m.clock()
	}
	m.current.EndedAt = endedAt
	m.retireCurrentLocked()
}

// ensureFrameLocked opens a frame for a node event observed while no frame
// is open. The producer's frame:start may have been missed; the event's own
// frame ID seeds the implicit frame. Node events for a different frame
// never displace an open one
func (m *Manager) ensureFrameLocked(frameID api.FrameID, ts int64) {
	if m.current == nil {
		startedAt := time.UnixMilli(ts)
		m.current = &api.ExecutionFrame{
			ID:        frameID,
			StartedAt: startedAt,
			Label:     frameLabel("", startedAt),
		}
	}
	if m.current.ID == frameID {
		m.idle.Reset(m.cfg.IdleTimeout)
	}
}

func (m *Manager) closeCurrentLocked(now time.Time) {
	if m.current == nil {
		return
	}
	m.current.EndedAt = now
	m.retireCurrentLocked()
}

func (m *Manager) retireCurrentLocked() {
	m.idle.Stop()
	m.recent = append(
		[]*api.ExecutionFrame{m.current}, m.recent...,
	)
	if len(m.recent) > maxRecentFrames {
		m.recent = m.recent[:maxRecentFrames]
	}
	m.current = nil
}

func (m *Manager) watchIdle() {
	for {
		select {
		case <-m.stop:
			return
		case <-m.idle.Channel():
			m.mu.Lock()
			if m.current != nil {
				slog.Debug("Closing idle frame",
					log.FrameID(m.current.ID))
				m.closeCurrentLocked(m.clock())
			}
			m.mu.Unlock()
		}
	}
}

// retruncate re-bounds a payload preview before storage. Server-side
// truncation already happened; this guards against a misconfigured producer
func (m *Manager) retruncate(p *api.PayloadPreview) *api.PayloadPreview {
	res := *p
	switch preview := p.Preview.(type) {
	case nil:
		return &res
	case string:
		bounded, cut := util.TruncateString(preview, m.cfg.PreviewLength)
		res.Preview = bounded
		res.Truncated = res.Truncated || cut
	default:
		rendered, err := json.Marshal(preview)
		if err != nil {
			res.Preview = nil
			return &res
		}
		bounded, cut := util.TruncateString(
			string(rendered), m.cfg.PreviewLength,
		)
		if cut {
			res.Preview = bounded
			res.Truncated = true
		}
	}
	return &res
}

func (m *Manager) logDrop(ev *api.Event, err error) {
	slog.Error("Dropping undecodable event",
		slog.String("type", string(ev.Type)),
		log.Error(err))
}

func frameLabel(trigger api.NodeID, startedAt time.Time) string {
	if trigger != "" {
		return fmt.Sprintf("%s @ %s",
			trigger, startedAt.Format(time.TimeOnly))
	}
	return startedAt.Format(time.TimeOnly)
}
