package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/MareskoY/tutor-ai/domain"
	"github.com/MareskoY/tutor-ai/internal/auth"
	"github.com/MareskoY/tutor-ai/usecase"
)

const userIDKey = "userID"

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, tokens *auth.TokenManager, stream *usecase.StreamService, calls *usecase.CallService, users *usecase.UserService, logger *zap.Logger) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, HealthResponse{
			Status:  "ok",
			Service: "tutor-api",
		})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	h := &handlers{stream: stream, calls: calls, users: users, logger: logger}

	v1 := e.Group("/api", bearerAuth(tokens, logger))
	v1.POST("/stream", h.createStream)
	v1.POST("/message", h.saveMessage)
	v1.PATCH("/message", h.updateMessage)
	v1.POST("/message/call-transcriptions", h.saveTranscriptions)
	v1.GET("/message/call-transcriptions", h.listTranscriptions)
	v1.GET("/message/:id/summary", h.summarize)
	v1.GET("/user", h.getPreference)
	v1.PATCH("/user", h.updatePreference)
}

type handlers struct {
	stream *usecase.StreamService
	calls  *usecase.CallService
	users  *usecase.UserService
	logger *zap.Logger
}

func (h *handlers) createStream(c echo.Context) error {
	var req domain.StreamRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}

	session, err := h.stream.CreateSession(c.Request().Context(), userID(c), req)
	if err != nil {
		return h.fail(c, err, "Failed to fetch session data")
	}
	return c.JSONBlob(http.StatusOK, session)
}

func (h *handlers) saveMessage(c echo.Context) error {
	var req domain.SaveMessageRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}

	messageID, err := h.calls.SaveMessage(c.Request().Context(), userID(c), req)
	if err != nil {
		return h.fail(c, err, "Failed to save message")
	}
	return c.JSON(http.StatusOK, domain.SaveMessageResponse{Success: true, MessageID: messageID})
}

func (h *handlers) updateMessage(c echo.Context) error {
	var req domain.UpdateMessageRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}

	if err := h.calls.UpdateMessage(c.Request().Context(), userID(c), req); err != nil {
		return h.fail(c, err, "Failed to update message")
	}
	return c.JSON(http.StatusOK, domain.SuccessResponse{Success: true})
}

func (h *handlers) saveTranscriptions(c echo.Context) error {
	var req domain.SaveTranscriptionsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}

	saved, err := h.calls.SaveTranscriptions(c.Request().Context(), userID(c), req)
	if err != nil {
		return h.fail(c, err, "Failed to save call transcriptions")
	}
	return c.JSON(http.StatusOK, SaveTranscriptionsResponse{Success: true, Saved: saved})
}

func (h *handlers) listTranscriptions(c echo.Context) error {
	callMessageID := c.QueryParam("callMessageId")
	if callMessageID == "" {
		return badRequest(c, "Missing callMessageId")
	}

	rows, err := h.calls.ListTranscriptions(c.Request().Context(), userID(c), callMessageID)
	if err != nil {
		return h.fail(c, err, "Failed to load call transcriptions")
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *handlers) summarize(c echo.Context) error {
	callMessageID := c.Param("id")

	summary, err := h.calls.Summarize(c.Request().Context(), userID(c), callMessageID)
	if err != nil {
		return h.fail(c, err, "Failed to summarize call")
	}
	return c.JSON(http.StatusOK, domain.CallSummaryResponse{CallMessageID: callMessageID, Summary: summary})
}

func (h *handlers) getPreference(c echo.Context) error {
	pref, err := h.users.GetPreference(c.Request().Context(), userID(c))
	if err != nil {
		return h.fail(c, err, "Failed to load user")
	}
	return c.JSON(http.StatusOK, domain.UserPreferenceResponse{StudentPreference: pref})
}

func (h *handlers) updatePreference(c echo.Context) error {
	var req domain.UpdatePreferenceRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}

	if err := h.users.UpdatePreference(c.Request().Context(), userID(c), req.StudentPreference); err != nil {
		return h.fail(c, err, "Failed to update user")
	}
	return c.JSON(http.StatusOK, domain.SuccessResponse{Success: true})
}

// fail maps domain errors to HTTP statuses; anything unrecognized is a 500
// carrying message
func (h *handlers) fail(c echo.Context, err error, message string) error {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status, code = http.StatusBadRequest, "invalid_request"
		message = err.Error()
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrRateLimited):
		status, code = http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, domain.ErrCredential):
		status, code = http.StatusBadGateway, "upstream_error"
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.Path()),
			zap.String("userID", userID(c)),
			zap.Error(err))
	} else {
		h.logger.Warn("Request rejected",
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Error(err))
	}
	return c.JSON(status, ErrorResponse{Error: code, Message: message})
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "invalid_request",
		Message: message,
	})
}

// bearerAuth validates the user JWT in the Authorization header
func bearerAuth(tokens *auth.TokenManager, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := strings.CutPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "missing_token",
					Message: "JWT token is required in Authorization header",
				})
			}

			claims, err := tokens.ValidateToken(token)
			if err != nil {
				logger.Warn("Request rejected: invalid token", zap.Error(err))
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "invalid_token",
					Message: "Invalid or expired JWT token",
				})
			}
			if claims.Role != auth.RoleUser {
				return c.JSON(http.StatusForbidden, ErrorResponse{
					Error:   "invalid_role",
					Message: "Only user tokens are accepted",
				})
			}

			c.Set(userIDKey, claims.UserID)
			return next(c)
		}
	}
}

func userID(c echo.Context) string {
	id, _ := c.Get(userIDKey).(string)
	return id
}
