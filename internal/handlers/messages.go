package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/errs"
	"messaging-service/internal/messaging"
	"messaging-service/internal/models"
)

// MessagesHandler serves the direct messaging REST routes.
type MessagesHandler struct {
	service *messaging.Service
}

// NewMessagesHandler builds a MessagesHandler.
func NewMessagesHandler(service *messaging.Service) *MessagesHandler {
	return &MessagesHandler{service: service}
}

// Register mounts the routes on group, which must already authenticate.
func (h *MessagesHandler) Register(group *gin.RouterGroup) {
	group.GET("/conversations", h.ListConversations)
	group.GET("/hidden", h.ListHidden)
	group.GET("/unread-count", h.UnreadCount)
	group.GET("/conversation/:id/unread-count", h.ConversationUnreadCount)
	group.GET("/:otherUserId", h.OpenThread)
	group.POST("", h.Send)
	group.PATCH("/read/:conversationId", h.MarkRead)
	group.PATCH("/conversation/:id/archive", h.Archive)
	group.PATCH("/conversation/:id/restore", h.Restore)
	group.DELETE("/conversation/:id/permanent", h.PermanentlyDelete)
}

// ListConversations returns the caller's inbox, or the archive with
// ?view=archived.
func (h *MessagesHandler) ListConversations(c *gin.Context) {
	view, err := models.ParseView(c.Query("view"))
	if err != nil {
		respondError(c, errs.InvalidArgument("view", "view must be inbox or archived"))
		return
	}
	h.list(c, view)
}

// ListHidden returns the archived conversations.
func (h *MessagesHandler) ListHidden(c *gin.Context) {
	h.list(c, models.ViewArchived)
}

func (h *MessagesHandler) list(c *gin.Context, view models.View) {
	items, err := h.service.ListConversations(c.Request.Context(), c.GetString("userID"), view)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *MessagesHandler) UnreadCount(c *gin.Context) {
	n, err := h.service.UnreadCount(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unreadCount": n})
}

func (h *MessagesHandler) ConversationUnreadCount(c *gin.Context) {
	n, err := h.service.UnreadCountForConversation(c.Request.Context(), c.Param("id"), c.GetString("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unreadCount": n})
}

// OpenThread returns the conversation with the other user and its
// messages, creating the conversation on first contact.
func (h *MessagesHandler) OpenThread(c *gin.Context) {
	thread, err := h.service.OpenThread(c.Request.Context(), c.GetString("userID"), c.Param("otherUserId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, thread)
}

// Send stores a message. Live clients use it as the fallback path.
func (h *MessagesHandler) Send(c *gin.Context) {
	var req struct {
		ReceiverID     string `json:"receiverId"`
		Message        string `json:"message"`
		ConversationID string `json:"conversationId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errs.InvalidArgument("body", "malformed request body"))
		return
	}

	msg, err := h.service.Send(c.Request.Context(), messaging.SendInput{
		SenderID:       c.GetString("userID"),
		ReceiverID:     req.ReceiverID,
		ConversationID: req.ConversationID,
		Body:           req.Message,
		Channel:        "rest",
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *MessagesHandler) MarkRead(c *gin.Context) {
	n, err := h.service.MarkRead(c.Request.Context(), c.Param("conversationId"), c.GetString("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Messages marked as read", "updated": n})
}

func (h *MessagesHandler) Archive(c *gin.Context) {
	h.transition(c, h.service.Archive, "Conversation archived")
}

func (h *MessagesHandler) Restore(c *gin.Context) {
	h.transition(c, h.service.Restore, "Conversation restored")
}

func (h *MessagesHandler) PermanentlyDelete(c *gin.Context) {
	h.transition(c, h.service.PermanentlyDelete, "Conversation permanently deleted")
}

func (h *MessagesHandler) transition(c *gin.Context, fn func(context.Context, string, string) (models.Visibility, error), message string) {
	visibility, err := fn(c.Request.Context(), c.Param("id"), c.GetString("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": message, "visibility": visibility})
}

func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(errs.HTTPStatus(err), gin.H{"error": errs.Public(err)})
}
