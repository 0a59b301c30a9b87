package frame_test

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowlens/flowlens/internal/config"
	"github.com/flowlens/flowlens/internal/frame"
	"github.com/flowlens/flowlens/internal/snapshot"
	"github.com/flowlens/flowlens/pkg/api"
	"github.com/flowlens/flowlens/pkg/util"
)

type (
	fakeTimer struct {
		ch     chan time.Time
		resets []time.Duration
		mu     sync.Mutex
	}

	testEnv struct {
		Manager *frame.Manager
		Store   *snapshot.Store
		Timer   *fakeTimer
		Now     time.Time
	}
)

func (t *fakeTimer) Channel() <-chan time.Time {
	return t.ch
}

func (t *fakeTimer) Reset(delay time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resets = append(t.resets, delay)
	return true
}

func (t *fakeTimer) Stop() bool {
	return true
}

func (t *fakeTimer) fire(now time.Time) {
	t.ch <- now
}

func (t *fakeTimer) resetCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.resets)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	timer := &fakeTimer{ch: make(chan time.Time)}
	store := snapshot.NewStore(50)
	now := time.UnixMilli(1700000000000)

	mgr := frame.NewManager(store, config.FrameConfig{
		IdleTimeout:   5 * time.Second,
		PreviewLength: 100,
		MaxSnapshots:  50,
	}, &frame.Options{
		Clock:    func() time.Time { return now },
		NewTimer: func(time.Duration) util.Timer { return timer },
	})
	t.Cleanup(mgr.Stop)

	return &testEnv{Manager: mgr, Store: store, Timer: timer, Now: now}
}

func makeEvent(
	t *testing.T, typ api.EventType, at time.Time, payload any,
) *api.Event {
	t.Helper()
	ev, err := api.NewEvent(typ, at, payload)
	require.NoError(t, err)
	return ev
}

func (e *testEnv) startFrame(t *testing.T, id api.FrameID) {
	t.Helper()
	e.Manager.HandleEvent(makeEvent(t, api.EventTypeFrameStart, e.Now,
		&api.FrameStartEvent{
			FrameID:       id,
			StartedAt:     e.Now.UnixMilli(),
			TriggerNodeID: "trigger-1",
		}))
}

func (e *testEnv) nodeInput(t *testing.T, fid api.FrameID, nid api.NodeID) {
	t.Helper()
	e.Manager.HandleEvent(makeEvent(t, api.EventTypeNodeInput, e.Now,
		&api.NodeInputEvent{
			FrameID:  fid,
			NodeID:   nid,
			NodeType: "function",
			Sampled:  true,
			Input: &api.IOEvent{
				Direction: api.DirectionInput,
				Timestamp: e.Now.UnixMilli(),
				Payload: api.PayloadPreview{
					Preview: "ping",
					Type:    api.PreviewString,
				},
			},
		}))
}

func (e *testEnv) nodeOutput(
	t *testing.T, fid api.FrameID, nid api.NodeID, behavior api.NodeBehavior,
) {
	t.Helper()
	e.Manager.HandleEvent(makeEvent(t, api.EventTypeNodeOutput, e.Now,
		&api.NodeOutputEvent{
			FrameID:  fid,
			NodeID:   nid,
			NodeType: "function",
			Sampled:  true,
			Semantics: &api.NodeSemantics{
				Role:     api.RoleTransform,
				Behavior: behavior,
			},
			Outputs: []*api.IOEvent{{
				Direction: api.DirectionOutput,
				Timestamp: e.Now.UnixMilli(),
				Payload: api.PayloadPreview{
					Preview: "pong",
					Type:    api.PreviewString,
				},
			}},
		}))
}

func (e *testEnv) endFrame(t *testing.T, id api.FrameID) {
	t.Helper()
	e.Manager.HandleEvent(makeEvent(t, api.EventTypeFrameEnd, e.Now,
		&api.FrameEndEvent{
			FrameID: id,
			EndedAt: e.Now.UnixMilli(),
		}))
}

func TestRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	env.startFrame(t, "frame-1")
	env.nodeInput(t, "frame-1", "node-1")
	env.nodeOutput(t, "frame-1", "node-1", api.BehaviorFiltered)
	env.endFrame(t, "frame-1")

	history := env.Store.History("node-1")
	require.Len(t, history, 1)
	assert.Equal(t, api.StatusWarning, history[0].Status)

	assert.Nil(t, env.Manager.CurrentFrame())
	recent := env.Manager.RecentFrames()
	require.Len(t, recent, 1)
	assert.Equal(t, api.FrameID("frame-1"), recent[0].ID)
	assert.False(t, recent[0].EndedAt.IsZero())
}

func TestNodeInputMarksRunning(t *testing.T) {
	env := newTestEnv(t)

	env.startFrame(t, "frame-1")
	env.nodeInput(t, "frame-1", "node-1")

	snap, ok := env.Store.Query("node-1", "frame-1")
	require.True(t, ok)
	assert.Equal(t, api.StatusRunning, snap.Status)
	assert.Contains(t, snap.Summary, "awaiting output")
}

func TestOutputStatuses(t *testing.T) {
	tests := []struct {
		name     string
		behavior api.NodeBehavior
		expected api.NodeStatus
	}{
		{"transformed", api.BehaviorTransformed, api.StatusIdle},
		{"filtered", api.BehaviorFiltered, api.StatusWarning},
		{"terminated", api.BehaviorTerminated, api.StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.startFrame(t, "frame-1")
			env.nodeOutput(t, "frame-1", "node-1", tt.behavior)

			snap, ok := env.Store.Query("node-1", "frame-1")
			require.True(t, ok)
			assert.Equal(t, tt.expected, snap.Status)
		})
	}
}

func TestImplicitFrameFromNodeEvent(t *testing.T) {
	env := newTestEnv(t)

	// No frame:start observed; the node event itself opens the frame
	env.nodeInput(t, "frame-x", "node-1")

	current := env.Manager.CurrentFrame()
	require.NotNil(t, current)
	assert.Equal(t, api.FrameID("frame-x"), current.ID)
}

func TestFrameStartClosesOpenFrame(t *testing.T) {
	env := newTestEnv(t)

	env.startFrame(t, "frame-1")
	env.startFrame(t, "frame-2")

	current := env.Manager.CurrentFrame()
	require.NotNil(t, current)
	assert.Equal(t, api.FrameID("frame-2"), current.ID)

	recent := env.Manager.RecentFrames()
	require.Len(t, recent, 1)
	assert.Equal(t, api.FrameID("frame-1"), recent[0].ID)
	assert.False(t, recent[0].EndedAt.IsZero())
}

func TestIdleTimeoutClosesFrame(t *testing.T) {
	env := newTestEnv(t)

	env.startFrame(t, "frame-1")
	require.NotNil(t, env.Manager.CurrentFrame())

	env.Timer.fire(env.Now.Add(6 * time.Second))

	require.Eventually(t, func() bool {
		return env.Manager.CurrentFrame() == nil
	}, time.Second, 10*time.Millisecond)

	recent := env.Manager.RecentFrames()
	require.Len(t, recent, 1)
	assert.False(t, recent[0].EndedAt.IsZero())
}

func TestLateFrameEndIgnored(t *testing.T) {
	env := newTestEnv(t)

	env.startFrame(t, "frame-1")
	env.endFrame(t, "frame-1")
	env.endFrame(t, "frame-1")

	assert.Len(t, env.Manager.RecentFrames(), 1)
}

func TestLateNodeEventStillRecorded(t *testing.T) {
	env := newTestEnv(t)

	env.startFrame(t, "frame-2")
	// A straggler from an earlier frame interleaves with the open one
	env.nodeOutput(t, "frame-1", "node-9", api.BehaviorTransformed)

	current := env.Manager.CurrentFrame()
	require.NotNil(t, current)
	assert.Equal(t, api.FrameID("frame-2"), current.ID)

	_, ok := env.Store.Query("node-9", "frame-1")
	assert.True(t, ok)
}

func TestEventsTouchIdleTimer(t *testing.T) {
	env := newTestEnv(t)

	env.startFrame(t, "frame-1")
	count := env.Timer.resetCount()
	env.nodeInput(t, "frame-1", "node-1")
	assert.Greater(t, env.Timer.resetCount(), count)
}

func TestPreviewRetruncated(t *testing.T) {
	env := newTestEnv(t)

	long := strings.Repeat("x", 500)
	env.Manager.HandleEvent(makeEvent(t, api.EventTypeNodeInput, env.Now,
		&api.NodeInputEvent{
			FrameID:  "frame-1",
			NodeID:   "node-1",
			NodeType: "function",
			Input: &api.IOEvent{
				Direction: api.DirectionInput,
				Payload: api.PayloadPreview{
					Preview: long,
					Type:    api.PreviewString,
				},
			},
		}))

	snap, ok := env.Store.Query("node-1", "frame-1")
	require.True(t, ok)
	require.NotNil(t, snap.PayloadPreview)
	assert.Len(t, snap.PayloadPreview.Preview, 100)
	assert.True(t, snap.PayloadPreview.Truncated)
}

func TestIsTrigger(t *testing.T) {
	tests := []struct {
		nodeType api.NodeType
		expected bool
	}{
		{"inject", true},
		{"Inject", true},
		{" http in ", true},
		{"mqtt in", true},
		{"tail", true},
		{"function", false},
		{"debug", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.nodeType), func(t *testing.T) {
			assert.Equal(t, tt.expected, frame.IsTrigger(tt.nodeType))
		})
	}
}

func TestImplicitFrameAdoptsTrigger(t *testing.T) {
	env := newTestEnv(t)

	env.Manager.HandleEvent(makeEvent(t, api.EventTypeNodeInput, env.Now,
		&api.NodeInputEvent{
			FrameID:  "frame-1",
			NodeID:   "inject-1",
			NodeType: "inject",
			Sampled:  true,
		}))

	current := env.Manager.CurrentFrame()
	require.NotNil(t, current)
	assert.Equal(t, api.NodeID("inject-1"), current.TriggerNodeID)
	assert.Contains(t, current.Label, "inject-1")

	// A later trigger does not displace the first
	env.Manager.HandleEvent(makeEvent(t, api.EventTypeNodeInput, env.Now,
		&api.NodeInputEvent{
			FrameID:  "frame-1",
			NodeID:   "inject-2",
			NodeType: "inject",
			Sampled:  true,
		}))
	assert.Equal(
		t, api.NodeID("inject-1"), env.Manager.CurrentFrame().TriggerNodeID,
	)
}
