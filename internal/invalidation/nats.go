package invalidation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fyrsmithlabs/retrievald/internal/logging"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Consumer bridges external mutation signals from NATS onto a Bus.
//
// Collaborators that own the corpus publish JSON-encoded Events on the
// configured subject whenever they create, update, or delete records.
type Consumer struct {
	conn    *nats.Conn
	sub     *nats.Subscription
	bus     *Bus
	subject string
	logger  *logging.Logger
}

// NewConsumer connects to NATS and subscribes to the invalidation subject.
func NewConsumer(url, subject string, bus *Bus, logger *logging.Logger) (*Consumer, error) {
	if bus == nil {
		return nil, fmt.Errorf("bus is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("invalidation")

	conn, err := nats.Connect(url, nats.Name("retrievald-invalidation"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	c := &Consumer{conn: conn, bus: bus, subject: subject, logger: logger}

	sub, err := conn.Subscribe(subject, c.handle)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	c.sub = sub

	logger.Info(context.Background(), "invalidation consumer started",
		zap.String("subject", subject),
	)
	return c, nil
}

func (c *Consumer) handle(msg *nats.Msg) {
	var event Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		c.logger.Warn(context.Background(), "dropping malformed invalidation message",
			zap.String("subject", msg.Subject),
			zap.Error(err),
		)
		return
	}
	if event.Collection == "" {
		c.logger.Warn(context.Background(), "dropping invalidation without collection",
			zap.String("subject", msg.Subject),
		)
		return
	}
	c.bus.Publish(event)
}

// Close drains the subscription and closes the connection.
func (c *Consumer) Close() error {
	if c.sub != nil {
		if err := c.sub.Unsubscribe(); err != nil {
			c.conn.Close()
			return fmt.Errorf("failed to unsubscribe: %w", err)
		}
	}
	c.conn.Close()
	return nil
}
