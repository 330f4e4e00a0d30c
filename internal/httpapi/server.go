// Package httpapi is the inbound dispatcher (C8): it routes
// /v1/messages and its /claude/v1/messages alias plus /health,
// authenticates the caller's API key, and picks the streaming or
// non-streaming response path, per spec.md §4.8. Grounded on the
// gin.Default()-plus-route-table shape of examples/gin-server/main.go.
package httpapi

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kiro-gateway/kiro-gateway/internal/config"
	"github.com/kiro-gateway/kiro-gateway/internal/proxy"
	"github.com/kiro-gateway/kiro-gateway/internal/ssewriter"
	anthropictypes "github.com/kiro-gateway/kiro-gateway/pkg/anthropic"
)

const accountNameKey = "kiro.account_name"

// Server wires the gin router to the proxy orchestrator.
type Server struct {
	orchestrator *proxy.Orchestrator
	admin        config.AdminConfig
	engine       *gin.Engine
}

// New builds a ready-to-run Server. admin is stored on the Server, but no
// admin route group is mounted and adminBasicAuth is not applied to any
// route; the admin CRUD surface is out of the core's scope (spec.md §1).
func New(orchestrator *proxy.Orchestrator, admin config.AdminConfig) (*Server, error) {
	s := &Server{orchestrator: orchestrator, admin: admin}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/health", s.handleHealth)

	messages := r.Group("/")
	messages.Use(s.apiKeyAuth)
	messages.POST("/v1/messages", s.handleMessages)
	messages.POST("/claude/v1/messages", s.handleMessages)

	s.engine = r
	return s, nil
}

// Run starts the HTTP server on addr (host:port).
func (s *Server) Run(addr string) error {
	log.Printf("kiro-gateway listening on %s", addr)
	return s.engine.Run(addr)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleMessages(c *gin.Context) {
	var req anthropictypes.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}

	accountName := c.GetString(accountNameKey)

	if req.Stream {
		s.handleStreamingMessage(c, accountName, req)
		return
	}
	s.handleBatchMessage(c, accountName, req)
}

func (s *Server) handleBatchMessage(c *gin.Context, accountName string, req anthropictypes.Request) {
	resp, err := s.orchestrator.HandleBatch(c.Request.Context(), accountName, req)
	if err != nil {
		s.writeError(c, http.StatusInternalServerError, "api_error", err.Error())
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStreamingMessage(c *gin.Context, accountName string, req anthropictypes.Request) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	w := ssewriter.New(c.Writer)
	if err := s.orchestrator.HandleStream(c.Request.Context(), accountName, req, w); err != nil {
		// The orchestrator returns an error either before any SSE record
		// is written or after a write to w has failed; either way, best
		// effort to still report it as an SSE error event.
		_ = w.WriteEvent("error", anthropictypes.NewErrorResponse("api_error", err.Error()))
	}
}

func (s *Server) writeError(c *gin.Context, status int, errType, message string) {
	c.JSON(status, anthropictypes.NewErrorResponse(errType, message))
}
