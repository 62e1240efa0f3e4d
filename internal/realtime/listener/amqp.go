package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"menuqr/internal/realtime/events"
	"menuqr/internal/xpkg/config"
	"menuqr/internal/xpkg/logger"
)

// AMQPTransport dials the broker and binds a server-named, exclusive,
// auto-delete queue to the session's restaurant channel. Deliveries are
// auto-acked: the channel is at-most-once by construction.
type AMQPTransport struct {
	cfg   *config.RabbitMQ
	mylog *logger.Logger
}

func NewAMQPTransport(cfg *config.RabbitMQ, mylog *logger.Logger) *AMQPTransport {
	return &AMQPTransport{cfg: cfg, mylog: mylog}
}

func (t *AMQPTransport) Dial(ctx context.Context, creds Credentials) (Conn, error) {
	if creds.Token == "" {
		return nil, ErrNoCredentials
	}

	connStr := fmt.Sprintf("amqp://%s:%s@%s:%d/%s",
		t.cfg.User, t.cfg.Password, t.cfg.Host, t.cfg.Port, t.cfg.VHost)

	conn, err := amqp.DialConfig(connStr, amqp.Config{
		Properties: amqp.Table{
			"connection_name": fmt.Sprintf("menuqr-session-%d", creds.RestaurantID),
			"authorization":   "Bearer " + creds.Token,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial broker: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		t.cfg.Exchange, // name
		"topic",        // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	q, err := channel.QueueDeclare(
		"",    // name (server generated)
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	err = channel.QueueBind(
		q.Name,
		events.BindingKey(creds.RestaurantID),
		t.cfg.Exchange,
		false,
		nil,
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	deliveries, err := channel.Consume(
		q.Name, // queue
		"",     // consumer
		true,   // auto-ack
		true,   // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	c := &amqpConn{
		conn:   conn,
		events: make(chan events.Envelope, 16),
		closed: make(chan error, 1),
		done:   make(chan struct{}),
		mylog:  t.mylog,
	}
	conn.NotifyClose(c.notify())
	go c.decode(deliveries)
	return c, nil
}

type amqpConn struct {
	conn   *amqp.Connection
	events chan events.Envelope
	closed chan error
	done   chan struct{}
	once   sync.Once
	mylog  *logger.Logger
}

func (c *amqpConn) Events() <-chan events.Envelope { return c.events }
func (c *amqpConn) Closed() <-chan error           { return c.closed }

func (c *amqpConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return c.conn.Close()
}

// notify adapts the library's native close notification into the Conn contract.
func (c *amqpConn) notify() chan *amqp.Error {
	ch := make(chan *amqp.Error, 1)
	go func() {
		amqpErr := <-ch
		c.once.Do(func() { close(c.done) })
		if amqpErr != nil {
			c.closed <- amqpErr
			return
		}
		c.closed <- nil
	}()
	return ch
}

func (c *amqpConn) decode(deliveries <-chan amqp.Delivery) {
	defer close(c.events)
	for d := range deliveries {
		var e events.Envelope
		if err := json.Unmarshal(d.Body, &e); err != nil {
			c.mylog.Action("event_decode_failed").Error("Failed to decode event body", err)
			continue
		}
		select {
		case c.events <- e:
		case <-c.done:
			return
		}
	}
}
