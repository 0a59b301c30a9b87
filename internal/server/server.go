package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"
	"github.com/kode4food/caravan"
	"github.com/kode4food/caravan/message"
	"github.com/kode4food/caravan/topic"

	"github.com/flowlens/flowlens/internal/config"
	"github.com/flowlens/flowlens/pkg/api"
	"github.com/flowlens/flowlens/pkg/log"
	"github.com/flowlens/flowlens/pkg/util"
)

// Server broadcasts observability events to all subscribed editor
// connections. Events enter through Broadcast and fan out via a topic; each
// connection relays from its own consumer so one slow or dead socket never
// blocks the rest
type Server struct {
	hub       topic.Topic[[]byte]
	prod      topic.Producer[[]byte]
	conns     util.Set[*subscriber]
	onCount   func(int)
	path      string
	stop      chan struct{}
	cfg       config.WebSocketConfig
	startOnce sync.Once
	stopOnce  sync.Once
	mu        sync.Mutex
}

// ObservabilityPath is the sub-path appended to the admin root for the
// event socket
const ObservabilityPath = "observability"

// NewServer creates a transport server for the given admin root and
// websocket limits
func NewServer(adminRoot string, cfg config.WebSocketConfig) *Server {
	hub := caravan.NewTopic[[]byte]()
	return &Server{
		hub:   hub,
		prod:  hub.NewProducer(),
		conns: util.Set[*subscriber]{},
		path:  util.JoinPath(adminRoot, ObservabilityPath),
		cfg:   cfg,
		stop:  make(chan struct{}),
	}
}

// Path returns the normalized upgrade path the server listens on
func (s *Server) Path() string {
	return s.path
}

// SetupRoutes configures and returns the HTTP router hosting the pipeline:
// the upgrade path, a health endpoint, and any extra handlers the caller
// registers afterwards
func (s *Server) SetupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(glog.SetLogger(
		glog.WithLogger(func(c *gin.Context, l *slog.Logger) *slog.Logger {
			return slog.Default()
		}),
	))

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set(
			"Access-Control-Allow-Methods", "GET, OPTIONS",
		)
		c.Writer.Header().Set(
			"Access-Control-Allow-Headers", "Content-Type, Authorization",
		)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	router.GET("/health", s.handleHealth)
	router.GET(s.path, s.handleWebSocket)

	return router
}

// Start begins the heartbeat broadcast. Calling twice is a no-op
func (s *Server) Start() {
	s.startOnce.Do(func() {
		go s.heartbeatLoop()
	})
}

// Stop closes all connections with a normal-closure code and stops the
// heartbeat. Safe to call when never started, and safe to call twice
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.closeAll()
		s.prod.Close()
	})
}

// Broadcast serializes an event once and relays it to every open
// connection. Connections whose send fails are removed; the event is not
// retried
func (s *Server) Broadcast(ev *api.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("Failed to serialize event",
			slog.String("type", string(ev.Type)),
			log.Error(err))
		return
	}

	select {
	case <-s.stop:
	default:
		message.Send(s.prod, data)
	}
}

// ConnectionCount returns the number of active subscriber connections
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns.Len()
}

// OnConnectionChange registers an observer of the connection count.
// Called whenever a subscriber joins or leaves. Must be set before Start
func (s *Server) OnConnectionChange(fn func(int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCount = fn
}

// register adds a subscriber unless doing so would exceed the connection
// cap. The cap is also checked before the upgrade; rechecking under the
// lock keeps simultaneous upgrades from overshooting it
func (s *Server) register(c *subscriber) bool {
	s.mu.Lock()
	if s.conns.Len() >= s.cfg.MaxConnections {
		s.mu.Unlock()
		return false
	}
	s.conns.Add(c)
	count, fn := s.conns.Len(), s.onCount
	s.mu.Unlock()

	if fn != nil {
		fn(count)
	}
	return true
}

func (s *Server) unregister(c *subscriber) {
	s.mu.Lock()
	removed := s.conns.Contains(c)
	s.conns.Remove(c)
	count, fn := s.conns.Len(), s.onCount
	s.mu.Unlock()

	if removed && fn != nil {
		fn(count)
	}
}

func (s *Server) atCapacity() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns.Len() >= s.cfg.MaxConnections
}

func (s *Server) closeAll() {
	s.mu.Lock()
	conns := s.conns.Items()
	s.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

func (s *Server) heartbeatLoop() {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.broadcastHeartbeat()
		}
	}
}

func (s *Server) broadcastHeartbeat() {
	ev, err := api.NewEvent(
		api.EventTypeHeartbeat, time.Now(), &api.HeartbeatEvent{
			Connections: s.ConnectionCount(),
		},
	)
	if err != nil {
		slog.Error("Failed to build heartbeat", log.Error(err))
		return
	}
	s.Broadcast(ev)
}
