package broker

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Subjects carrying hall traffic. Scroll fan-out and join/leave control events
// are scoped per hall; the gateway bridge listens on the wildcard.
const ScrollWildcard = "halls.*.scrolls"

func ScrollSubject(hallID uuid.UUID) string {
	return fmt.Sprintf("halls.%s.scrolls", hallID)
}

func ControlSubject(hallID uuid.UUID) string {
	return fmt.Sprintf("halls.%s.control", hallID)
}

// Broker wraps the NATS connection shared by the gateway bridge and native
// clients. Delivery is at-most-once: nothing is buffered for a subscriber that
// is offline, matching the fire-and-forget semantics of hall traffic.
type Broker struct {
	nc *nats.Conn
}

// Connect dials NATS and keeps reconnecting forever. The client's own
// keep-alive handles liveness; callers are notified through the logs only.
func Connect(url string) (*Broker, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Printf("NATS reconnected to %s", c.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("NATS disconnected: %v", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Broker{nc: nc}, nil
}

// Publish sends raw bytes to a subject. No acknowledgment is awaited.
func (b *Broker) Publish(subject string, data []byte) error {
	if err := b.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers a handler for a subject and returns the subscription so
// the caller can release it. Handlers run on the NATS delivery goroutine.
func (b *Broker) Subscribe(subject string, handler func(data []byte)) (*nats.Subscription, error) {
	sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	return sub, nil
}

// IsConnected reports whether the link is currently up. Safe on a nil
// receiver so single-instance deployments can skip the broker entirely.
func (b *Broker) IsConnected() bool {
	return b != nil && b.nc != nil && b.nc.IsConnected()
}

// Close closes the NATS connection.
func (b *Broker) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}
