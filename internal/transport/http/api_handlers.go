package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/agromongol/agrochat-server/internal/core"
	"github.com/agromongol/agrochat-server/internal/proto"
	"github.com/agromongol/agrochat-server/internal/store"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// APIHandlers provides HTTP handlers for REST API endpoints.
type APIHandlers struct {
	hub   *core.Hub
	store store.MessageStore
	log   *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(hub *core.Hub, st store.MessageStore, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		hub:   hub,
		store: st,
		log:   logger,
	}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HistoryResponse is a page of room messages, newest first.
type HistoryResponse struct {
	RoomID   string                 `json:"roomId"`
	Messages []proto.ReceiveMessage `json:"messages"`
}

// PresenceResponse reports whether a user is reachable.
type PresenceResponse struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

// Ping answers liveness probes.
// GET /api/ping
func (h *APIHandlers) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

// History returns persisted messages of a room.
// GET /api/rooms/:roomId/messages?limit=&before=
func (h *APIHandlers) History(c *gin.Context) {
	roomID := c.Param("roomId")

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be between 1 and 100"})
			return
		}
		limit = n
	}

	var beforeID *int64
	if raw := c.Query("before"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "before must be a positive message id"})
			return
		}
		beforeID = &id
	}

	messages, err := h.store.ListMessages(c.Request.Context(), roomID, limit, beforeID)
	if err != nil {
		h.log.Error().Err(err).Str("room_id", roomID).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	resp := HistoryResponse{RoomID: roomID, Messages: make([]proto.ReceiveMessage, 0, len(messages))}
	for _, m := range messages {
		out := proto.ReceiveMessage{
			ID:        m.ID,
			UserID:    m.UserID,
			Username:  m.Username,
			Message:   m.Body,
			RoomID:    m.RoomID,
			CreatedAt: m.CreatedAt,
		}
		if m.RecipientID != nil {
			out.RecipientID = *m.RecipientID
		}
		resp.Messages = append(resp.Messages, out)
	}
	c.JSON(http.StatusOK, resp)
}

// Presence reports whether a user currently has a live connection.
// GET /api/presence/:userId
func (h *APIHandlers) Presence(c *gin.Context) {
	userID := c.Param("userId")
	c.JSON(http.StatusOK, PresenceResponse{UserID: userID, Online: h.hub.Online(userID)})
}
