package messaging

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mangaverse/internal/auth"
	"mangaverse/internal/notify"
	"mangaverse/pkg/models"
)

type Handler struct {
	Repo   *Repo
	Users  *auth.Repo
	Hub    *Hub
	Events notify.Publisher
}

func NewHandler(repo *Repo, users *auth.Repo, hub *Hub, events notify.Publisher) *Handler {
	if events == nil {
		events = notify.Nop{}
	}
	return &Handler{Repo: repo, Users: users, Hub: hub, Events: events}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/messages", h.inbox)
	rg.GET("/messages/:username", h.thread)
	rg.POST("/messages/:username", h.send)
	rg.DELETE("/messages/:username", h.deleteChat)
	rg.GET("/ws", WSHandler(h))
}

// Send stores a message from sender to recipient, pushes it to the
// recipient's open sockets and publishes it.
func (h *Handler) Send(ctx context.Context, sender *auth.Claims, recipient *auth.User, content string) (*models.Message, error) {
	m := &models.Message{SenderID: sender.UserID, RecipientID: recipient.ID, Content: content}
	if err := h.Repo.Send(ctx, m); err != nil {
		return nil, err
	}

	if h.Hub != nil {
		h.Hub.Deliver(recipient.ID, Event{Type: EventMessageNew, From: sender.Username, Message: m})
	}
	notify.Emit(ctx, h.Events, notify.SubjectMessageSent, notify.MessageSent{
		MessageID:   m.ID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		At:          time.Now().UTC(),
	})
	return m, nil
}

// partner resolves the :username parameter.
func (h *Handler) partner(c *gin.Context) (*auth.User, bool) {
	u, err := h.Users.GetByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get user failed"})
		return nil, false
	}
	if u == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return nil, false
	}
	return u, true
}

func (h *Handler) inbox(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	ctx := c.Request.Context()

	partners, err := h.Repo.Inbox(ctx, claims.UserID)
	if err != nil {
		slog.Error("inbox failed", "user_id", claims.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "inbox failed"})
		return
	}
	unread, err := h.Repo.UnreadCount(ctx, claims.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "inbox failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": partners, "unread": unread})
}

func (h *Handler) thread(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	other, ok := h.partner(c)
	if !ok {
		return
	}

	msgs, err := h.Repo.Thread(c.Request.Context(), claims.UserID, other.ID)
	if err != nil {
		slog.Error("thread failed", "user_id", claims.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "thread failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"with":     gin.H{"id": other.ID, "username": other.Username},
		"messages": msgs,
	})
}

type sendReq struct {
	Content string `json:"content" form:"content"`
}

func (h *Handler) send(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	other, ok := h.partner(c)
	if !ok {
		return
	}

	var req sendReq
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	m, err := h.Send(c.Request.Context(), claims, other, req.Content)
	if err != nil {
		writeSendError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *Handler) deleteChat(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	other, ok := h.partner(c)
	if !ok {
		return
	}

	n, err := h.Repo.DeleteChat(c.Request.Context(), claims.UserID, other.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted", "deleted": n})
}

func sendStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrEmptyMessage), errors.Is(err, ErrMessageTooLong), errors.Is(err, ErrSelfMessage):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, ErrUnknownRecipient):
		return http.StatusNotFound, err.Error()
	default:
		return http.StatusInternalServerError, "send failed"
	}
}

func writeSendError(c *gin.Context, err error) {
	status, msg := sendStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("send message failed", "error", err)
	}
	c.JSON(status, gin.H{"error": msg})
}
