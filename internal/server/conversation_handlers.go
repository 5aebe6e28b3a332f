package server

import (
	"github.com/gin-gonic/gin"
	"marketplace-api/internal/conversation"
	"marketplace-api/internal/realtime"
	"marketplace-api/internal/storage"
	"marketplace-api/internal/storage/zapadapter"
	"net/http"
	"time"
)

type chatRequest struct {
	Text string `json:"text" binding:"required"`
}

// getOrCreateConversation handles HTTP requests on "/conversation/with/:peerId" endpoint
func (h *handler) getOrCreateConversation(c *gin.Context) {
	id, err := h.conversations.GetOrCreate(c.Request.Context(), currentUser(c).ID, c.Param("peerId"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversationId": id})
}

// conversation returns a page of chats, "before" and "limit" select the page
func (h *handler) conversation(c *gin.Context) {
	before, ok := queryInt(c, "before", 0)
	if !ok {
		abort(c, http.StatusUnprocessableEntity, "Invalid page")
		return
	}
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		abort(c, http.StatusUnprocessableEntity, "Invalid page")
		return
	}

	page := storage.Page{Before: int(before), Limit: int(limit)}
	view, err := h.conversations.Fetch(c.Request.Context(), c.Param("conversationId"), currentUser(c).ID, page)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversation": view})
}

// appendChat stores a chat sent over HTTP and delivers it to connected participants
func (h *handler) appendChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	ctx := c.Request.Context()
	conversationID := c.Param("conversationId")
	a, err := h.conversations.AppendChat(ctx, conversationID, currentUser(c).ID, req.Text, time.Time{})
	if err != nil {
		h.respondError(c, err)
		return
	}

	if h.registry != nil {
		if _, err := realtime.Publish(h.registry, conversationID, a); err != nil {
			zapadapter.WithRequestID(ctx, h.logger).Errorf("Publishing chat (id: %s): %v", a.Chat.ID, err)
		}
	}

	c.JSON(http.StatusCreated, gin.H{"chat": conversation.Message{
		ID:     a.Chat.ID,
		Text:   a.Chat.Content,
		Time:   a.Chat.Timestamp,
		Viewed: a.Chat.Viewed,
		Sender: a.Sender,
	}})
}

func (h *handler) lastChats(c *gin.Context) {
	chats, err := h.conversations.ListInbox(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

func (h *handler) markSeen(c *gin.Context) {
	err := h.conversations.MarkSeen(c.Request.Context(), c.Param("conversationId"), c.Param("peerId"), currentUser(c).ID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	message(c, http.StatusOK, "Chats marked as seen")
}
