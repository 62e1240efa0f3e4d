package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"menuqr/internal/order/domain/models"
	"menuqr/internal/realtime/events"
	"menuqr/internal/xpkg/logger"
	"menuqr/internal/xpkg/rabbitmq"
)

// Publisher fans out committed transitions on the restaurant-scoped topic
// exchange. Messages are transient: the channel has no replay log, sessions
// that miss an event reconcile through a full fetch.
type Publisher struct {
	rmq   *rabbitmq.RabbitMQ
	mylog *logger.Logger
}

func NewPublisher(rmq *rabbitmq.RabbitMQ, mylog *logger.Logger) *Publisher {
	return &Publisher{rmq: rmq, mylog: mylog}
}

func (p *Publisher) Publish(ctx context.Context, event string, order models.Order) error {
	envelope := events.Envelope{
		Event:        event,
		RestaurantID: order.RestaurantID,
		Order:        order,
		EmittedAt:    time.Now().UTC(),
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = p.rmq.Channel.PublishWithContext(pubCtx,
		p.rmq.Exchange,
		events.RoutingKey(order.RestaurantID, event),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Transient,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event, err)
	}

	p.mylog.Action("event_published").Debug(fmt.Sprintf("Published %s for order %s", event, order.Number))
	return nil
}

func (p *Publisher) Close() error {
	return p.rmq.Close()
}
