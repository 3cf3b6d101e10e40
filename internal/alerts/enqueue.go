package alerts

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

// ensureClient returns a usable client instance
func ensureClient() *asynq.Client {
	if client == nil {
		Init("127.0.0.1:6379")
	}
	return client
}

func enqueue(taskType string, payload any) error {
	b, _ := json.Marshal(payload)
	task := asynq.NewTask(taskType, b)
	_, err := ensureClient().Enqueue(task, asynq.Queue("emails"))
	return err
}

// EnqueueWelcomeEmail schedules a welcome email to a new member.
func EnqueueWelcomeEmail(userID, email, username string) error {
	base := os.Getenv("APP_URL")
	if base == "" {
		base = "http://localhost:3000"
	}
	base = strings.TrimRight(base, "/")

	env := EmailEnvelope{
		To:      email,
		Subject: fmt.Sprintf("Welcome to the time bank, %s!", username),
		Body:    fmt.Sprintf("Hi %s, thanks for joining. You start with 3 hours of credit to spend on offers from other members.\n\nOpen the time bank: %s", username, base),
	}
	return enqueue(TaskWelcomeEmail, WelcomeEmailPayload{
		UserID: userID, Username: username, Email: email, Envelope: env, SentAt: time.Now(),
	})
}

// EnqueuePasswordReset schedules a password reset notification.
func EnqueuePasswordReset(userID, email, resetURL, username string) error {
	expiry := os.Getenv("PASSWORD_RESET_EXP_MINUTES")
	if expiry == "" {
		expiry = "30"
	}
	env := EmailEnvelope{
		To:      email,
		Subject: "Password reset instructions",
		Body:    fmt.Sprintf("Hello %s,\n\nWe received a request to reset your password.\n\nTo proceed, open the link below:\n%s\n\nThis link expires in %s minutes. If you did not request this, no action is required.", username, resetURL, expiry),
	}
	return enqueue(TaskPasswordReset, PasswordResetPayload{
		UserID: userID, Email: email, ResetURL: resetURL, Envelope: env, Requested: time.Now(),
	})
}

// EnqueueInteractionEvent mirrors an in-app lifecycle notification to email.
func EnqueueInteractionEvent(userID, email, eventType, message, interactionID string) error {
	env := EmailEnvelope{
		To:      email,
		Subject: subjectFor(eventType),
		Body:    message,
	}
	return enqueue(TaskInteractionEvent, InteractionEventPayload{
		UserID: userID, EventType: eventType, InteractionID: interactionID,
		Envelope: env, SentAt: time.Now(),
	})
}

// EnqueueMessageNew notifies the recipient of a new chat message.
func EnqueueMessageNew(userID, email, interactionID, preview string) error {
	env := EmailEnvelope{
		To:      email,
		Subject: "New message in your conversation",
		Body:    preview,
	}
	return enqueue(TaskMessageNew, MessageNewPayload{
		UserID: userID, InteractionID: interactionID, Envelope: env, SentAt: time.Now(),
	})
}

func subjectFor(eventType string) string {
	switch eventType {
	case "interaction_created":
		return "Someone is interested in your listing"
	case "interaction_accepted":
		return "Your request was accepted"
	case "interaction_declined":
		return "Your request was declined"
	case "date_proposed":
		return "An appointment date was proposed"
	case "date_rejected":
		return "The proposed date was rejected"
	case "date_accepted":
		return "Your appointment is scheduled"
	case "completed":
		return "Service completion update"
	default:
		return "Time bank update"
	}
}
