package alerts

import "time"

// Task type constants
const (
	TaskWelcomeEmail     = "email:welcome"
	TaskPasswordReset    = "email:password_reset"
	TaskInteractionEvent = "email:interaction_event"
	TaskMessageNew       = "email:message_new"
)

// EmailEnvelope is the common shape for email-like notifications.
type EmailEnvelope struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// WelcomeEmailPayload greets a new member.
type WelcomeEmailPayload struct {
	UserID   string        `json:"user_id"`
	Username string        `json:"username"`
	Email    string        `json:"email"`
	Envelope EmailEnvelope `json:"envelope"`
	SentAt   time.Time     `json:"sent_at"`
}

// PasswordResetPayload carries the reset link.
type PasswordResetPayload struct {
	UserID    string        `json:"user_id"`
	Email     string        `json:"email"`
	ResetURL  string        `json:"reset_url"`
	Envelope  EmailEnvelope `json:"envelope"`
	Requested time.Time     `json:"requested"`
}

// InteractionEventPayload mirrors an in-app lifecycle notification
// (created/accepted/declined/date events/completed) to email.
type InteractionEventPayload struct {
	UserID        string        `json:"user_id"`
	EventType     string        `json:"event_type"`
	InteractionID string        `json:"interaction_id,omitempty"`
	Envelope      EmailEnvelope `json:"envelope"`
	SentAt        time.Time     `json:"sent_at"`
}

// MessageNewPayload notifies about a chat message.
type MessageNewPayload struct {
	UserID        string        `json:"user_id"`
	InteractionID string        `json:"interaction_id"`
	Envelope      EmailEnvelope `json:"envelope"`
	SentAt        time.Time     `json:"sent_at"`
}
