package messaging

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/timebankhq/timebank/internal/httpx"
)

type wsEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type hub struct {
	interactionID string
	clients       map[*websocket.Conn]bool
	mu            sync.RWMutex
}

var (
	hubsMu sync.RWMutex
	hubs   = make(map[string]*hub)
)

func getHub(interactionID string) *hub {
	hubsMu.Lock()
	defer hubsMu.Unlock()
	if h, ok := hubs[interactionID]; ok {
		return h
	}
	h := &hub{interactionID: interactionID, clients: make(map[*websocket.Conn]bool)}
	hubs[interactionID] = h
	return h
}

func (h *hub) broadcast(evt wsEvent) {
	payload, _ := json.Marshal(evt)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		_ = c.WriteMessage(websocket.TextMessage, payload)
	}
}

func (h *hub) register(c *websocket.Conn) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
}

func (h *hub) unregister(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ConversationWS upgrades to a websocket for realtime updates on a
// conversation. Participation is checked the same way the read endpoints
// check it, so group members get events for their shared offer thread.
func ConversationWS(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	interactionID := c.Param("id")
	if interactionID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing interaction id"})
	}
	if _, err := engine.Get(c.Request().Context(), userID, interactionID); err != nil {
		return httpx.Error(c, err)
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	h := getHub(interactionID)
	h.register(ws)
	h.broadcast(wsEvent{Type: "presence_join", Data: echo.Map{"user_id": userID}})

	// Server-push protocol; client frames are discarded.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			h.unregister(ws)
			_ = ws.Close()
			h.broadcast(wsEvent{Type: "presence_leave", Data: echo.Map{"user_id": userID}})
			break
		}
	}
	return nil
}

// Broadcast publishes an event to a conversation's hub. Used as the
// notification sink's websocket channel.
func Broadcast(interactionID string, payload map[string]interface{}) {
	getHub(interactionID).broadcast(wsEvent{Type: "event", Data: payload})
}

// BroadcastNewMessage publishes a chat message event to a conversation hub.
func BroadcastNewMessage(interactionID string, message interface{}) {
	getHub(interactionID).broadcast(wsEvent{Type: "message_new", Data: message})
}
