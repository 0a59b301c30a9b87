// Package client maintains one logical subscription to the observability
// stream, surviving server restarts and admin-path changes behind a simple
// connected/connecting/disconnected state
package client

import (
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/flowlens/flowlens/internal/config"
	"github.com/flowlens/flowlens/pkg/api"
	"github.com/flowlens/flowlens/pkg/log"
	"github.com/flowlens/flowlens/pkg/util"
)

type (
	// Handler receives each event parsed off the stream. Handlers run
	// synchronously on the read loop; a panicking handler is logged and
	// does not affect the others
	Handler func(*api.Event)

	// Client is a reconnecting consumer of the observability stream. One
	// instance is constructed at composition time and shared by reference;
	// its connection state is owned here exclusively
	Client struct {
		dialer   *websocket.Dialer
		clock    util.Clock
		retry    util.Timer
		handlers map[int]Handler
		conn     *websocket.Conn
		stop     chan struct{}
		baseURL  string
		paths    []string
		state    api.ConnectionState
		cfg      config.ClientConfig
		nextID   int
		attempt  int
		pathIdx  int
		manual   bool
		stopOnce sync.Once
		mu       sync.Mutex
	}

	// Options overrides the client's scheduler and dialer for tests. A nil
	// Options or nil field falls back to the system versions
	Options struct {
		Clock    util.Clock
		NewTimer util.TimerConstructor
		Dialer   *websocket.Dialer
	}
)

const (
	streamPath         = "observability"
	fallbackStreamPath = "admin/observability"

	dialTimeout      = 5 * time.Second
	closeGracePeriod = 250 * time.Millisecond
)

// NewClient creates a transport client for the stream served under the
// given base URL and admin root. The client starts disconnected; call
// Connect to begin the subscription
func NewClient(
	baseURL, adminRoot string, cfg config.ClientConfig, opts *Options,
) *Client {
	clock := time.Now
	newTimer := util.NewTimer
	dialer := &websocket.Dialer{HandshakeTimeout: dialTimeout}
	if opts != nil {
		if opts.Clock != nil {
			clock = opts.Clock
		}
		if opts.NewTimer != nil {
			newTimer = opts.NewTimer
		}
		if opts.Dialer != nil {
			dialer = opts.Dialer
		}
	}

	retry := newTimer(cfg.BackoffBase)
	retry.Stop()

	c := &Client{
		baseURL: baseURL,
		paths: []string{
			util.JoinPath(adminRoot, streamPath),
			util.JoinPath(adminRoot, fallbackStreamPath),
		},
		cfg:      cfg,
		clock:    clock,
		dialer:   dialer,
		retry:    retry,
		handlers: map[int]Handler{},
		state:    api.StateDisconnected,
		stop:     make(chan struct{}),
	}
	go c.watchRetry()
	return c
}

// Connect begins connecting to the stream. A no-op while already
// connecting or connected; clears the manual-disconnect flag
func (c *Client) Connect() {
	c.mu.Lock()
	if c.state != api.StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.manual = false
	c.attempt = 0
	c.pathIdx = 0
	c.state = api.StateConnecting
	c.mu.Unlock()

	slog.Debug("Connecting to observability stream",
		log.State(api.StateConnecting))
	go c.dial()
}

// Disconnect closes the stream and suppresses reconnection until the next
// Connect. Safe to call multiple times and from any state
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.manual = true
	c.state = api.StateDisconnected
	c.retry.Stop()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		closeConn(conn)
	}
}

// Close disconnects and releases the retry scheduler. The client cannot
// be reused afterward
func (c *Client) Close() {
	c.Disconnect()
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

// State returns the current connection state
func (c *Client) State() api.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected returns whether a live subscription is established
func (c *Client) IsConnected() bool {
	return c.State() == api.StateConnected
}

// OnEvent registers a handler for every parsed event. The returned func
// unregisters it
func (c *Client) OnEvent(h Handler) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.handlers[id] = h
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.handlers, id)
		c.mu.Unlock()
	}
}

func (c *Client) dial() {
	c.mu.Lock()
	if c.manual {
		c.mu.Unlock()
		return
	}
	path := c.paths[c.pathIdx]
	c.mu.Unlock()

	endpoint, err := streamURL(c.baseURL, path)
	if err != nil {
		slog.Error("Invalid observability base URL",
			slog.String("base_url", c.baseURL),
			log.Error(err))
		c.mu.Lock()
		c.state = api.StateDisconnected
		c.mu.Unlock()
		return
	}

	conn, resp, err := c.dialer.Dial(endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		c.mu.Lock()
		// A completed-but-rejected handshake means the path is wrong,
		// not the host; move on to the next candidate
		if err == websocket.ErrBadHandshake {
			c.advancePathLocked()
		}
		c.scheduleRetryLocked(err)
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	if c.manual {
		c.mu.Unlock()
		closeConn(conn)
		return
	}
	c.conn = conn
	c.state = api.StateConnected
	c.attempt = 0
	c.mu.Unlock()

	slog.Info("Observability stream connected", log.Path(path))
	go c.readLoop(conn)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClosed(conn, err)
			return
		}

		ev, perr := api.ParseEvent(data, c.clock())
		if perr != nil {
			slog.Warn("Dropping malformed stream message", log.Error(perr))
			continue
		}
		c.dispatch(ev)
	}
}

func (c *Client) handleClosed(conn *websocket.Conn, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != conn {
		// A stale read loop for an already-replaced connection
		return
	}
	_ = conn.Close()
	c.conn = nil

	if c.manual {
		c.state = api.StateDisconnected
		return
	}

	c.state = api.StateConnecting
	if isAbnormalClose(err) {
		c.advancePathLocked()
	}
	c.scheduleRetryLocked(err)
}

// advancePathLocked moves to the next candidate path, wrapping back to
// the primary after exhausting the list
func (c *Client) advancePathLocked() {
	c.pathIdx = (c.pathIdx + 1) % len(c.paths)
}

func (c *Client) scheduleRetryLocked(cause error) {
	c.attempt++
	delay := Backoff(c.cfg.BackoffBase, c.cfg.BackoffCap, c.attempt)

	// Past the quiet threshold the stream is simply down; stop flooding
	// the log with identical warnings
	if c.attempt > c.cfg.QuietAfter {
		slog.Debug("Observability stream unavailable, retrying",
			log.Attempt(c.attempt),
			slog.Duration("delay", delay),
			log.Error(cause))
	} else {
		slog.Warn("Observability stream lost, retrying",
			log.Attempt(c.attempt),
			slog.Duration("delay", delay),
			log.Path(c.paths[c.pathIdx]),
			log.Error(cause))
	}
	c.retry.Reset(delay)
}

func (c *Client) watchRetry() {
	for {
		select {
		case <-c.stop:
			return
		case <-c.retry.Channel():
			c.mu.Lock()
			live := !c.manual && c.state == api.StateConnecting
			c.mu.Unlock()
			if live {
				c.dial()
			}
		}
	}
}

func (c *Client) dispatch(ev *api.Event) {
	c.mu.Lock()
	handlers := make([]Handler, 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		invoke(h, ev)
	}
}

func invoke(h Handler, ev *api.Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Event handler panicked",
				slog.String("type", string(ev.Type)),
				slog.Any("panic", r))
		}
	}()
	h(ev)
}

func isAbnormalClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseAbnormalClosure, websocket.CloseGoingAway)
}

func closeConn(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	deadline := time.Now().Add(closeGracePeriod)
	_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = conn.Close()
}

func streamURL(baseURL, path string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = path
	return u.String(), nil
}
