package alerts

import (
	"context"
	"log"

	"github.com/timebankhq/timebank/internal/db"
	"github.com/timebankhq/timebank/internal/timebank"
)

// Sink fans committed notifications out to email and, when Broadcast is
// set, to connected websocket clients. In-app rows were already written
// inside the transaction that produced the notifications.
type Sink struct {
	// Broadcast pushes an event to live websocket subscribers of the
	// interaction. Wired from main to avoid a cycle with the ws hub.
	Broadcast func(interactionID string, payload map[string]interface{})
}

// Dispatch delivers each notification on its best-effort channels.
// Failures are logged and never propagated; the state change that
// produced the notification is already committed.
func (s *Sink) Dispatch(ctx context.Context, notifications []*timebank.Notification) {
	for _, n := range notifications {
		email, err := lookupEmail(ctx, n.UserID)
		if err != nil {
			log.Printf("[notify][WARN] email lookup failed for user=%s: %v", n.UserID, err)
		} else if email != "" {
			s.enqueueEmail(n, email)
		}

		if s.Broadcast != nil && n.InteractionID != "" {
			s.Broadcast(n.InteractionID, map[string]interface{}{
				"type":           string(n.Type),
				"message":        n.Message,
				"user_id":        n.UserID,
				"interaction_id": n.InteractionID,
			})
		}
	}
}

func (s *Sink) enqueueEmail(n *timebank.Notification, email string) {
	var err error
	switch n.Type {
	case timebank.NotifyMessage:
		err = EnqueueMessageNew(n.UserID, email, n.InteractionID, n.Message)
	default:
		err = EnqueueInteractionEvent(n.UserID, email, string(n.Type), n.Message, n.InteractionID)
	}
	if err != nil {
		log.Printf("[notify][WARN] enqueue failed type=%s user=%s: %v", n.Type, n.UserID, err)
	}
}

func lookupEmail(ctx context.Context, userID string) (string, error) {
	var email string
	err := db.Conn.QueryRow(ctx,
		`SELECT email FROM users WHERE id = $1 AND is_active = TRUE`, userID,
	).Scan(&email)
	if err != nil {
		return "", err
	}
	return email, nil
}
