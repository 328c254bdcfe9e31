package nats

import (
	"github.com/nats-io/nats.go"

	"github.com/CloudCabinet/Drive-Service/internal/api/handlers"
)

// Routes maps event subjects to their handlers; subscribed once at
// startup as durable JetStream consumers.
func Routes() map[string]nats.MsgHandler {
	return map[string]nats.MsgHandler{

		// User events
		"users.deleted": handlers.HandleUserDeleted,
	}
}
