package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	app "github.com/flowlens/flowlens"
)

// HealthResponse reports pipeline liveness and the active subscriber count
type HealthResponse struct {
	Status      string `json:"status"`
	Service     string `json:"service"`
	Version     string `json:"version"`
	Connections int    `json:"connections"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:      "ok",
		Service:     app.Name,
		Version:     app.Version,
		Connections: s.ConnectionCount(),
	})
}
