package livesync

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/agentdeck/agentdeck/internal/store"
	"github.com/agentdeck/agentdeck/pkg/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if envOrigins := os.Getenv("AGENTDECK_CORS_ORIGINS"); envOrigins != "" {
			for _, allowed := range strings.Split(envOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					return true
				}
			}
			return false
		}
		// No configured origins: allow all (local development).
		return true
	},
}

// TokenValidator checks a bearer token and returns the user ID it
// belongs to.
type TokenValidator func(token string) (userID string, err error)

// watchRequest is the client → server control frame: watch (or switch
// to) a conversation.
type watchRequest struct {
	ConversationID string `json:"conversation_id"`
}

// frame is the server → client message envelope.
type frame struct {
	Type         string               `json:"type"` // "snapshot" or "error"
	Conversation *models.Conversation `json:"conversation,omitempty"`
	Error        string               `json:"error,omitempty"`
}

// WSHandler upgrades dashboard connections and streams conversation
// snapshots. One socket carries one panel: the client sends a watch
// frame to select (or switch) the conversation, and every store write
// published to the broker arrives as a full snapshot.
type WSHandler struct {
	Store    store.Store
	Broker   *Broker
	Validate TokenValidator
}

// ServeHTTP implements the websocket endpoint. The bearer token rides
// the `token` query parameter (browsers cannot set headers on
// websocket dials).
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Validate(r.URL.Query().Get("token")); err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	send := make(chan frame, 8)
	sub := NewSubscriber(h.Broker, func(snapshot models.Conversation) {
		select {
		case send <- frame{Type: "snapshot", Conversation: &snapshot}:
		default:
			// Slow client: drop, the next snapshot carries full state anyway.
		}
	})

	done := make(chan struct{})
	go h.writePump(conn, send, done)
	h.readPump(r, conn, sub, send)

	sub.Unsubscribe()
	close(done)
	conn.Close()
}

// readPump consumes watch frames until the connection drops.
func (h *WSHandler) readPump(r *http.Request, conn *websocket.Conn, sub *Subscriber, send chan frame) {
	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req watchRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("Websocket closed unexpectedly")
			}
			return
		}
		if req.ConversationID == "" {
			continue
		}

		conv, err := h.Store.GetConversation(r.Context(), req.ConversationID)
		if err != nil {
			// Subscription errors are reported, never fatal to the socket.
			select {
			case send <- frame{Type: "error", Error: err.Error()}:
			default:
			}
			continue
		}

		// Switch cancels the previous subscription before establishing
		// the new one; the initial snapshot primes the panel.
		sub.Switch(conv.ID)
		select {
		case send <- frame{Type: "snapshot", Conversation: conv}:
		default:
		}
	}
}

// writePump is the single writer for the connection.
func (h *WSHandler) writePump(conn *websocket.Conn, send <-chan frame, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case f := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			payload, err := json.Marshal(f)
			if err != nil {
				log.Error().Err(err).Msg("Failed to marshal websocket frame")
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
