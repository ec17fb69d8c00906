package messaging

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"mangaverse/internal/auth"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type incomingMessage struct {
	To      string `json:"to"`
	Content string `json:"content"`
}

// WSHandler upgrades an authenticated request and registers the socket with
// the hub. Frames sent by the client are treated as outgoing messages.
func WSHandler(h *Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := auth.MustGetClaims(c)
		if claims == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		h.Hub.Join(claims.UserID, ws)
		defer h.Hub.Leave(claims.UserID, ws)

		ctx := c.Request.Context()
		for {
			_, payload, err := ws.ReadMessage()
			if err != nil {
				return
			}

			var in incomingMessage
			if err := json.Unmarshal(payload, &in); err != nil || strings.TrimSpace(in.To) == "" {
				h.Hub.Deliver(claims.UserID, Event{Type: EventError, Error: "expected {\"to\":..., \"content\":...}"})
				continue
			}

			recipient, err := h.Users.GetByUsername(ctx, in.To)
			if err != nil || recipient == nil {
				h.Hub.Deliver(claims.UserID, Event{Type: EventError, Error: ErrUnknownRecipient.Error()})
				continue
			}
			m, err := h.Send(ctx, claims, recipient, in.Content)
			if err != nil {
				_, msg := sendStatus(err)
				h.Hub.Deliver(claims.UserID, Event{Type: EventError, Error: msg})
				continue
			}
			// echo to the sender's other tabs too
			h.Hub.Deliver(claims.UserID, Event{Type: EventMessageNew, From: claims.Username, Message: m, At: time.Now().UTC()})
		}
	}
}
