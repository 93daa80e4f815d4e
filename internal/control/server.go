package control

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/MareskoY/tutor-ai/domain"
	"github.com/MareskoY/tutor-ai/internal/call"
	"github.com/MareskoY/tutor-ai/internal/websocket"
)

// volumeInterval limits how often volume-only changes reach feed clients
const volumeInterval = 100 * time.Millisecond

// Call is the part of the call coordinator driven by the control API
type Call interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Toggle(ctx context.Context) error
	SendText(ctx context.Context, text string) error
	Snapshot() call.Snapshot
	OnChange(fn func(call.Snapshot))
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// TextRequest is the body of POST /call/text
type TextRequest struct {
	Text string `json:"text"`
}

// Server exposes the local call over HTTP and a websocket snapshot feed
type Server struct {
	call   Call
	hub    *websocket.Hub
	logger *zap.Logger

	mu   sync.Mutex
	last call.Snapshot
	sent time.Time
	now  func() time.Time
}

// NewServer creates a control server and subscribes it to call changes
func NewServer(c Call, logger *zap.Logger) *Server {
	s := &Server{
		call:   c,
		logger: logger,
		now:    time.Now,
	}
	s.hub = websocket.NewHub(func() any { return c.Snapshot() }, s, logger)
	c.OnChange(s.publish)
	return s
}

// Run runs the snapshot feed until ctx is done
func (s *Server) Run(ctx context.Context) {
	s.hub.Run(ctx)
}

// InitRoutes registers the control routes on e
func (s *Server) InitRoutes(e *echo.Echo) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "voicecall",
		})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.GET("/call", func(c echo.Context) error {
		return c.JSON(http.StatusOK, s.call.Snapshot())
	})
	e.POST("/call/start", s.action(s.call.Start))
	e.POST("/call/stop", s.action(s.call.Stop))
	e.POST("/call/toggle", s.action(s.call.Toggle))
	e.POST("/call/text", s.sendText)
	e.GET("/ws", func(c echo.Context) error {
		return websocket.HandleWebSocket(s.hub, c)
	})
}

// action runs fn detached from the request so a client disconnect does not
// cancel a call start halfway
func (s *Server) action(fn func(context.Context) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := fn(context.WithoutCancel(c.Request().Context())); err != nil {
			return s.fail(c, err)
		}
		return c.JSON(http.StatusOK, s.call.Snapshot())
	}
}

func (s *Server) sendText(c echo.Context) error {
	var req TextRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if err := s.call.SendText(c.Request().Context(), req.Text); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusAccepted, s.call.Snapshot())
}

// HandleCommand implements websocket.CommandHandler
func (s *Server) HandleCommand(ctx context.Context, cmd *websocket.CommandMessage) error {
	switch cmd.Action {
	case websocket.ActionStart:
		return s.call.Start(ctx)
	case websocket.ActionStop:
		return s.call.Stop(ctx)
	case websocket.ActionToggle:
		return s.call.Toggle(ctx)
	case websocket.ActionText:
		return s.call.SendText(ctx, cmd.Text)
	default:
		return domain.ErrInvalidInput
	}
}

func (s *Server) fail(c echo.Context, err error) error {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, domain.ErrCallInProgress):
		status, code = http.StatusConflict, "call_in_progress"
	case errors.Is(err, domain.ErrChannelUnavailable):
		status, code = http.StatusConflict, "channel_unavailable"
	case errors.Is(err, domain.ErrCallCancelled):
		status, code = http.StatusConflict, "cancelled"
	case errors.Is(err, domain.ErrCredential):
		status, code = http.StatusBadGateway, "credential_failed"
	case errors.Is(err, domain.ErrMediaAccess):
		status, code = http.StatusServiceUnavailable, "media_unavailable"
	case errors.Is(err, domain.ErrSignaling):
		status, code = http.StatusBadGateway, "signaling_failed"
	}

	s.logger.Warn("Call command failed",
		zap.String("path", c.Path()),
		zap.Int("status", status),
		zap.Error(err))
	return c.JSON(status, ErrorResponse{Error: code, Message: err.Error()})
}

// publish forwards snapshots to the feed. Snapshots that differ from the last
// one only in volume are sent at most every volumeInterval.
func (s *Server) publish(snap call.Snapshot) {
	now := s.now()

	s.mu.Lock()
	if volumeOnly(s.last, snap) && now.Sub(s.sent) < volumeInterval {
		s.mu.Unlock()
		return
	}
	s.last = snap
	s.sent = now
	s.mu.Unlock()

	s.hub.Publish(snap)
}

func volumeOnly(prev, next call.Snapshot) bool {
	if prev.State != next.State ||
		prev.Status != next.Status ||
		prev.CallRecordID != next.CallRecordID ||
		prev.DurationSeconds != next.DurationSeconds ||
		prev.RawEventCount != next.RawEventCount ||
		len(prev.Entries) != len(next.Entries) {
		return false
	}
	for i := range next.Entries {
		if prev.Entries[i] != next.Entries[i] {
			return false
		}
	}
	return true
}
