package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/njprem/ExcelChat_BackEnd/internal/service"
	"github.com/njprem/ExcelChat_BackEnd/internal/util"
)

type ChatHandler struct {
	chat *service.ChatOrchestrator
}

// RegisterChat mounts the chat routes. Asking is limited to perSecond
// requests per user; zero disables the limit.
func RegisterChat(g *echo.Group, chat *service.ChatOrchestrator, perSecond float64) {
	h := &ChatHandler{chat: chat}

	r := g.Group("/chat/sessions")
	r.POST("", h.createSession)
	r.GET("", h.listSessions)
	r.DELETE("/:session_id", h.deleteSession)
	r.GET("/:session_id/messages", h.listMessages)
	if perSecond > 0 {
		r.POST("/:session_id/ask", h.ask, askRateLimiter(perSecond))
	} else {
		r.POST("/:session_id/ask", h.ask)
	}
}

func askRateLimiter(perSecond float64) echo.MiddlewareFunc {
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(perSecond),
			Burst:     burst,
			ExpiresIn: 5 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return CurrentUserID(c), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, util.Error("unable to identify caller"))
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, util.Error("too many questions, slow down"))
		},
	})
}

func (h *ChatHandler) createSession(c echo.Context) error {
	var req struct {
		Title string `json:"title"`
	}
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, util.Error("invalid request body"))
		}
	}
	session, err := h.chat.CreateSession(c.Request().Context(), CurrentUserID(c), req.Title)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, util.Data("session", session))
}

func (h *ChatHandler) listSessions(c echo.Context) error {
	sessions, err := h.chat.Sessions(c.Request().Context(), CurrentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, util.Data("sessions", sessions))
}

func (h *ChatHandler) deleteSession(c echo.Context) error {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, util.Error("session_id must be a valid UUID"))
	}
	if err := h.chat.DeleteSession(c.Request().Context(), CurrentUserID(c), sessionID); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *ChatHandler) listMessages(c echo.Context) error {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, util.Error("session_id must be a valid UUID"))
	}
	messages, err := h.chat.Messages(c.Request().Context(), CurrentUserID(c), sessionID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, util.Data("messages", messages))
}

func (h *ChatHandler) ask(c echo.Context) error {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, util.Error("session_id must be a valid UUID"))
	}
	var req struct {
		Question string `json:"question"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, util.Error("invalid request body"))
	}
	reply, err := h.chat.Ask(c.Request().Context(), CurrentUserID(c), sessionID, req.Question)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, util.Data("message", reply))
}
