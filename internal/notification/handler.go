package notification

import (
	"context"
	"encoding/json"
	"log"
)

func unmarshal(data []byte, out any) error {
	return json.Unmarshal(data, out)
}

// Sender delivers a notification command. Concrete delivery (email, SMS)
// lives outside this core; LogSender is the built-in stand-in.
type Sender interface {
	Send(ctx context.Context, cmd Command) error
}

// LogSender writes notifications to the log
type LogSender struct{}

func (LogSender) Send(ctx context.Context, cmd Command) error {
	log.Printf("[Notifier] %s: order=%s customer=%s amount=%d reason=%q",
		cmd.Type, cmd.OrderID, cmd.CustomerID, cmd.Amount, cmd.Reason)
	return nil
}

// Handler is the notification worker's queue consumer
type Handler struct {
	sender Sender
}

func NewHandler(sender Sender) *Handler {
	return &Handler{sender: sender}
}

// HandleMessage processes a command from the notifications topic
func (h *Handler) HandleMessage(ctx context.Context, key, value []byte) error {
	var cmd Command
	if err := json.Unmarshal(value, &cmd); err != nil {
		log.Printf("[Notifier] Failed to unmarshal command: %v", err)
		return err
	}
	if cmd.Type == "" {
		return nil
	}
	if err := h.sender.Send(ctx, cmd); err != nil {
		log.Printf("[Notifier] Failed to send %s for order %s: %v", cmd.Type, cmd.OrderID, err)
		return err
	}
	return nil
}
