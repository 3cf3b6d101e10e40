package messaging

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/timebankhq/timebank/internal/httpx"
	"github.com/timebankhq/timebank/internal/timebank"
)

var engine *timebank.Engine

// Init wires the shared engine; called once from main before routes.
func Init(e *timebank.Engine) {
	engine = e
}

// SendMessage posts a message into a conversation. Replying to a pending
// interaction on your own listing accepts it.
func SendMessage(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	interactionID := c.Param("id")
	if interactionID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing interaction id"})
	}

	var body struct {
		Content string `json:"content"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}

	msg, err := engine.SendMessage(c.Request().Context(), userID, interactionID, body.Content)
	if err != nil {
		return httpx.Error(c, err)
	}

	rendered := renderMessage(msg)
	BroadcastNewMessage(msg.InteractionID, rendered)
	return c.JSON(http.StatusCreated, echo.Map{"message": rendered})
}

// ListMessages returns the conversation visible to the caller. For a group
// offer this is the union across the member threads.
func ListMessages(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	interactionID := c.Param("id")
	if interactionID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing interaction id"})
	}

	msgs, err := engine.Messages(c.Request().Context(), userID, interactionID)
	if err != nil {
		return httpx.Error(c, err)
	}

	items := make([]echo.Map, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, renderMessage(m))
	}
	return c.JSON(http.StatusOK, echo.Map{"messages": items})
}

// DeleteMessage hides a message on the caller's side of the conversation.
func DeleteMessage(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	messageID := c.Param("message_id")
	if messageID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing message id"})
	}

	if err := engine.DeleteMessage(c.Request().Context(), userID, messageID); err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "deleted"})
}

func renderMessage(m *timebank.ChatMessage) echo.Map {
	out := echo.Map{
		"id":             m.ID,
		"interaction_id": m.InteractionID,
		"sender_id":      m.SenderID,
		"content":        m.Content,
		"created_at":     m.CreatedAt,
	}
	if m.SettlementID != "" {
		out["settlement_id"] = m.SettlementID
	}
	return out
}
