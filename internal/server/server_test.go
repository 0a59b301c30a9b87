package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowlens/flowlens/internal/config"
	"github.com/flowlens/flowlens/internal/server"
	"github.com/flowlens/flowlens/pkg/api"
)

type testServerEnv struct {
	Server *server.Server
	HTTP   *httptest.Server
	conns  []*websocket.Conn
	mu     sync.Mutex
}

const (
	wsReadTimeout = 500 * time.Millisecond
	testHeartbeat = 25 * time.Millisecond
)

func newTestServer(t *testing.T, maxConns int) *testServerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv := server.NewServer("/", config.WebSocketConfig{
		HeartbeatInterval: testHeartbeat,
		MaxConnections:    maxConns,
	})
	ts := httptest.NewServer(srv.SetupRoutes())
	srv.Start()

	env := &testServerEnv{Server: srv, HTTP: ts}
	t.Cleanup(func() {
		env.mu.Lock()
		conns := env.conns
		env.mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
		srv.Stop()
		ts.Close()
	})
	return env
}

func (e *testServerEnv) trackConn(conn *websocket.Conn) {
	e.mu.Lock()
	e.conns = append(e.conns, conn)
	e.mu.Unlock()
}

func (e *testServerEnv) wsURL() string {
	return "ws" + strings.TrimPrefix(e.HTTP.URL, "http") + "/observability"
}

func (e *testServerEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(e.wsURL(), nil)
	require.NoError(t, err)
	e.trackConn(conn)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) *api.Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	var ev api.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return &ev
}

func readEventOfType(
	t *testing.T, conn *websocket.Conn, typ api.EventType,
) *api.Event {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		ev := readEvent(t, conn)
		if ev.Type == typ {
			return ev
		}
	}
	t.Fatalf("no %s event received", typ)
	return nil
}

func TestConnectedGreeting(t *testing.T) {
	env := newTestServer(t, 10)
	conn := env.dial(t)

	ev := readEvent(t, conn)
	assert.Equal(t, api.EventTypeConnected, ev.Type)
	assert.NotZero(t, ev.Ts)

	greeting, err := api.DecodeEvent[api.ConnectedEvent](ev)
	require.NoError(t, err)
	assert.Equal(t, server.ConnectedMessage, greeting.Message)
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	env := newTestServer(t, 10)
	first := env.dial(t)
	second := env.dial(t)
	readEvent(t, first)
	readEvent(t, second)

	ev, err := api.NewEvent(
		api.EventTypeFrameStart, time.Now(), &api.FrameStartEvent{
			FrameID:   "frame-1",
			StartedAt: time.Now().UnixMilli(),
		},
	)
	require.NoError(t, err)
	env.Server.Broadcast(ev)

	for _, conn := range []*websocket.Conn{first, second} {
		got := readEventOfType(t, conn, api.EventTypeFrameStart)
		fs, err := api.DecodeEvent[api.FrameStartEvent](got)
		require.NoError(t, err)
		assert.Equal(t, api.FrameID("frame-1"), fs.FrameID)
	}
}

func TestConnectionCap(t *testing.T) {
	env := newTestServer(t, 2)
	env.dial(t)
	env.dial(t)

	require.Eventually(t, func() bool {
		return env.Server.ConnectionCount() == 2
	}, time.Second, 10*time.Millisecond)

	_, resp, err := websocket.DefaultDialer.Dial(env.wsURL(), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	// The rejected connection never joins the broadcast set
	assert.Equal(t, 2, env.Server.ConnectionCount())
}

func TestHeartbeatCarriesConnectionCount(t *testing.T) {
	env := newTestServer(t, 10)
	conn := env.dial(t)
	readEvent(t, conn)

	ev := readEventOfType(t, conn, api.EventTypeHeartbeat)
	hb, err := api.DecodeEvent[api.HeartbeatEvent](ev)
	require.NoError(t, err)
	assert.Equal(t, 1, hb.Connections)
}

func TestDeadConnectionPruned(t *testing.T) {
	env := newTestServer(t, 10)
	conn := env.dial(t)
	readEvent(t, conn)

	require.Eventually(t, func() bool {
		return env.Server.ConnectionCount() == 1
	}, time.Second, 10*time.Millisecond)

	_ = conn.Close()

	require.Eventually(t, func() bool {
		return env.Server.ConnectionCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestStopClosesConnections(t *testing.T) {
	env := newTestServer(t, 10)
	conn := env.dial(t)
	readEvent(t, conn)

	env.Server.Stop()

	require.Eventually(t, func() bool {
		return env.Server.ConnectionCount() == 0
	}, time.Second, 10*time.Millisecond)

	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func TestStopWithoutStart(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := server.NewServer("/", config.WebSocketConfig{
		HeartbeatInterval: time.Second,
		MaxConnections:    1,
	})

	srv.Stop()
	srv.Stop()
}

func TestNonMatchingPathLeftAlone(t *testing.T) {
	env := newTestServer(t, 10)

	resp, err := http.Get(env.HTTP.URL + "/somewhere-else")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestServer(t, 10)

	resp, err := http.Get(env.HTTP.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health server.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "flowlens", health.Service)
}

func TestPathNormalization(t *testing.T) {
	tests := []struct {
		name      string
		adminRoot string
		expected  string
	}{
		{"root", "/", "/observability"},
		{"empty", "", "/observability"},
		{"prefix", "/editor", "/editor/observability"},
		{"trailing slash", "/editor/", "/editor/observability"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := server.NewServer(tt.adminRoot, config.WebSocketConfig{
				HeartbeatInterval: time.Second,
				MaxConnections:    1,
			})
			assert.Equal(t, tt.expected, srv.Path())
			srv.Stop()
		})
	}
}

func TestConnectionChangeObserver(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := server.NewServer("/", config.WebSocketConfig{
		HeartbeatInterval: testHeartbeat,
		MaxConnections:    10,
	})

	var (
		counts []int
		mu     sync.Mutex
	)
	srv.OnConnectionChange(func(n int) {
		mu.Lock()
		counts = append(counts, n)
		mu.Unlock()
	})

	ts := httptest.NewServer(srv.SetupRoutes())
	srv.Start()
	t.Cleanup(func() {
		srv.Stop()
		ts.Close()
	})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/observability"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(counts) == 1 && counts[0] == 1
	}, time.Second, 10*time.Millisecond)

	_ = conn.Close()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(counts) == 2 && counts[1] == 0
	}, time.Second, 10*time.Millisecond)
}

func TestConcurrentDialsRespectCap(t *testing.T) {
	env := newTestServer(t, 2)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, _, err := websocket.DefaultDialer.Dial(env.wsURL(), nil)
			if err != nil {
				return
			}
			env.trackConn(conn)
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return env.Server.ConnectionCount() == 2
	}, time.Second, 10*time.Millisecond)

	for range 20 {
		assert.LessOrEqual(t, env.Server.ConnectionCount(), 2)
		time.Sleep(5 * time.Millisecond)
	}
}
