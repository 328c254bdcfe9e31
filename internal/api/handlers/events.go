package handlers

import (
	"context"
	"encoding/json"
	"log"

	"github.com/nats-io/nats.go"
)

type UserDeletedEvent struct {
	UserID string `json:"user_id"`
}

// HandleUserDeleted removes every object and catalog record owned by a
// deleted user.
func HandleUserDeleted(msg *nats.Msg) {
	var payload UserDeletedEvent
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		log.Printf("[NATS] users.deleted: invalid payload: %v", err)
		nak(msg)
		return
	}
	if payload.UserID == "" {
		log.Printf("[NATS] users.deleted: missing user_id")
		nak(msg)
		return
	}

	log.Printf("[NATS] Processing users.deleted for user_id: %s", payload.UserID)

	removed, err := driveSvc.DeleteAllForUser(context.Background(), payload.UserID)
	if err != nil {
		log.Printf("[NATS] Failed to clean up user %s: %v", payload.UserID, err)
		nak(msg)
		return
	}

	log.Printf("[NATS] Removed %d objects for user %s", removed, payload.UserID)
	ack(msg)
}

// ack safely acknowledges the message
func ack(msg *nats.Msg) {
	if err := msg.Ack(); err != nil {
		log.Printf("[NATS] Failed to ack message: %v", err)
	}
}

// nak negatively acknowledges (retry)
func nak(msg *nats.Msg) {
	if err := msg.Nak(); err != nil {
		log.Printf("[NATS] Failed to nak message: %v", err)
	}
}
