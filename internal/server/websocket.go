package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kode4food/caravan/topic"

	"github.com/flowlens/flowlens/pkg/api"
	"github.com/flowlens/flowlens/pkg/log"
)

// subscriber is one upgraded editor connection relaying broadcast frames
type subscriber struct {
	sock     *websocket.Conn
	consumer topic.Consumer[[]byte]
	done     chan struct{}
	doneOnce sync.Once
	offOnce  sync.Once
}

const (
	writeWait    = 10 * time.Second
	wsBufferSize = 1024

	// ConnectedMessage greets every subscriber immediately after upgrade
	ConnectedMessage = "observability stream connected"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  wsBufferSize,
	WriteBufferSize: wsBufferSize,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (s *Server) handleWebSocket(c *gin.Context) {
	select {
	case <-s.stop:
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	default:
	}

	if s.atCapacity() {
		slog.Warn("Rejecting connection over capacity",
			slog.Int("max_connections", s.cfg.MaxConnections))
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}

	sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed",
			log.Path(s.path),
			log.Error(err))
		return
	}

	sub := &subscriber{
		sock:     sock,
		consumer: s.hub.NewConsumer(),
		done:     make(chan struct{}),
	}
	if !s.register(sub) {
		slog.Warn("Rejecting connection over capacity",
			slog.Int("max_connections", s.cfg.MaxConnections))
		_ = sock.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, ""),
			time.Now().Add(writeWait),
		)
		sub.close()
		return
	}
	sub.sendConnected()

	go sub.readLoop()
	go s.relay(sub)
}

func (s *Server) relay(c *subscriber) {
	defer func() {
		s.unregister(c)
		c.close()
	}()

	for {
		select {
		case <-s.stop:
			c.sendClose()
			return

		case <-c.done:
			return

		case data, ok := <-c.consumer.Receive():
			if !ok {
				c.sendClose()
				return
			}
			if !c.send(data) {
				return
			}
		}
	}
}

func (c *subscriber) readLoop() {
	// Inbound traffic is ignored; reading only detects the peer going away
	for {
		if _, _, err := c.sock.ReadMessage(); err != nil {
			c.doneOnce.Do(func() {
				close(c.done)
			})
			return
		}
	}
}

func (c *subscriber) send(data []byte) bool {
	_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.sock.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Error("WebSocket write failed", log.Error(err))
		return false
	}
	return true
}

func (c *subscriber) sendConnected() {
	ev, err := api.NewEvent(
		api.EventTypeConnected, time.Now(), &api.ConnectedEvent{
			Message: ConnectedMessage,
		},
	)
	if err != nil {
		slog.Error("Failed to build connected event", log.Error(err))
		return
	}

	_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.sock.WriteJSON(ev); err != nil {
		slog.Error("WebSocket write failed",
			slog.String("context", "connected"),
			log.Error(err))
	}
}

func (c *subscriber) sendClose() {
	_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.sock.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
}

func (c *subscriber) close() {
	c.offOnce.Do(func() {
		c.consumer.Close()
		_ = c.sock.Close()
	})
}
