package services

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

var (
	nc *nats.Conn
	js nats.JetStreamContext
)

// ConnectNATS connects to NATS and initializes JetStream and the event
// stream. It returns the underlying Conn and JetStreamContext for
// advanced usage.
func ConnectNATS(url string) (*nats.Conn, nats.JetStreamContext, error) {
	if nc != nil && nc.IsConnected() {
		return nc, js, nil
	}

	opts := []nats.Option{
		nats.Name("drive-service"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("[NATS] disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[NATS] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Println("[NATS] connection closed")
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, nil, err
	}
	nc = conn

	jsCtx, err := nc.JetStream()
	if err != nil {
		nc.Close()
		nc = nil
		return nil, nil, err
	}
	js = jsCtx

	if err := ensureStreams(); err != nil {
		log.Printf("[NATS] warning: failed to ensure streams: %v", err)
		// Not fatal — activity events degrade to best-effort
	}

	log.Println("[NATS] connected and JetStream initialized")
	return nc, js, nil
}

// ensureStreams creates the event stream if it doesn't exist (idempotent).
func ensureStreams() error {
	_, err := js.StreamInfo("drive-events")
	if err == nil {
		return nil
	}

	streamCfg := &nats.StreamConfig{
		Name:     "drive-events",
		Subjects: []string{"drive.*", "users.*"},
		Storage:  nats.FileStorage,
		MaxAge:   30 * 24 * time.Hour,
	}

	_, err = js.AddStream(streamCfg)
	return err
}

// PublishEvent publishes an event via JetStream (durable, stored).
// subject e.g. "drive.upload"
func PublishEvent(subject string, payload interface{}) error {
	if js == nil {
		return errors.New("jetstream not initialized")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	// Message ID gives broker-side idempotency
	msgID := uuid.New().String()
	if _, err := js.Publish(subject, data, nats.MsgId(msgID)); err != nil {
		log.Printf("[NATS] publish failed subject=%s err=%v", subject, err)
		return err
	}
	return nil
}

// SubscribeEvent creates a durable, manual-ack consumer; the handler is
// responsible for Ack/Nak.
func SubscribeEvent(subject, durableName string, handler nats.MsgHandler) (*nats.Subscription, error) {
	if js == nil {
		return nil, errors.New("jetstream not initialized")
	}
	sub, err := js.Subscribe(subject, handler, nats.Durable(durableName), nats.ManualAck())
	if err != nil {
		return nil, err
	}
	log.Printf("[NATS] subscribed subject=%s durable=%s", subject, durableName)
	return sub, nil
}

// CloseNATS drains the connection on shutdown.
func CloseNATS() {
	if nc != nil && nc.IsConnected() {
		nc.Close()
	}
}
