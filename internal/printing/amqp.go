package printing

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the topic exchange print bridges bind to.
const DefaultExchange = "print_topic"

// Publisher is the subset of *amqp.Channel used to publish tickets.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPPrinter publishes tickets to a RabbitMQ topic exchange with routing
// key "print.<action>". A printer bridge on the shop network consumes them.
type AMQPPrinter struct {
	pub      Publisher
	exchange string
	conn     *amqp.Connection
	ch       *amqp.Channel
}

// NewAMQPPrinter wraps an existing publisher.
func NewAMQPPrinter(pub Publisher, exchange string) *AMQPPrinter {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &AMQPPrinter{pub: pub, exchange: exchange}
}

// DialAMQP connects, opens a channel and declares the exchange.
func DialAMQP(url, exchange string) (*AMQPPrinter, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQPPrinter{pub: ch, exchange: exchange, conn: conn, ch: ch}, nil
}

// RoutingKey returns the routing key for an action.
func RoutingKey(a Action) string {
	return "print." + string(a)
}

func (p *AMQPPrinter) Print(ctx context.Context, t Ticket) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal ticket: %w", err)
	}
	err = p.pub.PublishWithContext(ctx, p.exchange, RoutingKey(t.Action), false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    fmt.Sprintf("%s:%d:%s", t.OrderID, t.Version, t.Action),
		Timestamp:    t.PrintedAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish ticket: %w", err)
	}
	return nil
}

// Close closes the channel and connection opened by DialAMQP.
func (p *AMQPPrinter) Close() {
	if p == nil {
		return
	}
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}
