// Package api exposes the session read model and its action surface over
// a loopback HTTP API consumed by presentation adapters and chatctl.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/deskbase/chatd/internal/model"
	"github.com/deskbase/chatd/internal/session"
	"github.com/deskbase/chatd/internal/store"
)

// Reconnector forces a fresh relay connection attempt.
type Reconnector interface {
	Reconnect(ctx context.Context) error
}

// Handler serves the daemon HTTP API.
type Handler struct {
	session *session.Store
	cache   *store.DB
	relay   Reconnector
	profile string
	logger  *zap.Logger
}

// NewHandler creates the API handler.
func NewHandler(s *session.Store, cache *store.DB, relay Reconnector, profileName string, logger *zap.Logger) *Handler {
	return &Handler{session: s, cache: cache, relay: relay, profile: profileName, logger: logger}
}

// Register mounts every route on the engine.
func (h *Handler) Register(r *gin.Engine) {
	v1 := r.Group("/v1")
	v1.GET("/status", h.status)
	v1.GET("/chats", h.listChats)
	v1.POST("/chats", h.createChat)
	v1.POST("/chats/:id/open", h.openChat)
	v1.GET("/chats/:id/messages", h.listMessages)
	v1.POST("/chats/:id/messages", h.sendMessage)
	v1.POST("/chats/:id/read", h.markRead)
	v1.POST("/chats/:id/typing", h.typing)
	v1.GET("/chats/:id/typing", h.typingState)
	v1.GET("/contacts", h.listContacts)
	v1.GET("/search", h.search)
	v1.POST("/reconnect", h.reconnect)
}

func (h *Handler) reconnect(c *gin.Context) {
	if err := h.relay.Reconnect(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) status(c *gin.Context) {
	chatCount, _ := h.cache.ChatCount()
	msgCount, _ := h.cache.MessageCount()
	c.JSON(http.StatusOK, gin.H{
		"profile":        h.profile,
		"state":          h.session.ConnState(),
		"activeChat":     h.session.ActiveChat(),
		"cachedChats":    chatCount,
		"cachedMessages": msgCount,
	})
}

func (h *Handler) listChats(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.Chats())
}

type createChatRequest struct {
	Kind          model.ChatKind `json:"type"`
	ParticipantID string         `json:"participantId"`
	Name          string         `json:"name"`
	Participants  []string       `json:"participantIds"`
}

func (h *Handler) createChat(c *gin.Context) {
	var req createChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if req.Kind == model.ChatGroup {
		_, err := h.session.CreateGroupChat(c.Request.Context(), req.Name, req.Participants)
		c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
		return
	}
	if req.ParticipantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "participantId is required"})
		return
	}

	chat, err := h.session.CreateChat(c.Request.Context(), req.ParticipantID)
	if err != nil {
		h.logger.Warn("create chat failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, chat)
}

func (h *Handler) openChat(c *gin.Context) {
	err := h.session.OpenChat(c.Request.Context(), c.Param("id"))
	if errors.Is(err, session.ErrNoChat) {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listMessages(c *gin.Context) {
	chatID := c.Param("id")
	if c.Query("older") != "" {
		if err := h.session.LoadOlder(c.Request.Context(), chatID); errors.Is(err, session.ErrNoChat) {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
			return
		}
	}
	c.JSON(http.StatusOK, h.session.Messages(chatID))
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

func (h *Handler) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	msg, err := h.session.SendMessage(c.Request.Context(), c.Param("id"), req.Content)
	switch {
	case errors.Is(err, session.ErrNoChat):
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
	case errors.Is(err, session.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		// Optimistic entry already rolled back by the session store.
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusCreated, msg)
	}
}

func (h *Handler) markRead(c *gin.Context) {
	err := h.session.MarkRead(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, session.ErrNoChat):
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.Status(http.StatusNoContent)
	}
}

type typingRequest struct {
	IsTyping bool `json:"isTyping"`
}

func (h *Handler) typing(c *gin.Context) {
	var req typingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.session.SendTyping(c.Param("id"), req.IsTyping); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) typingState(c *gin.Context) {
	ind, ok := h.session.Typing(c.Param("id"))
	if !ok {
		c.JSON(http.StatusOK, gin.H{"isTyping": false})
		return
	}
	c.JSON(http.StatusOK, ind)
}

func (h *Handler) listContacts(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.Contacts())
}

func (h *Handler) search(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}
	results, err := h.cache.SearchMessages(q, c.Query("chat"), 50)
	if err != nil {
		h.logger.Error("search failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}
	c.JSON(http.StatusOK, results)
}
