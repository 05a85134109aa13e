package rabbitmq

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/gustavolhonda/Backend-Liven/config"
	"github.com/gustavolhonda/Backend-Liven/dto"
)

// Publisher pushes accepted jobs onto the transcription exchange. It satisfies
// the service dispatcher contract, so the amqp dispatch mode is just a
// different wiring of the same submission path.
type Publisher struct {
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection, cfg *config.RabbitMQ) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	if err := ch.ExchangeDeclare(ExchangeName, cfg.Kind, true, false, false, false, nil); err != nil {
		return nil, err
	}

	return &Publisher{ch: ch}, nil
}

func (p *Publisher) Dispatch(ctx context.Context, msg dto.JobMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return p.ch.PublishWithContext(ctx, ExchangeName, RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}
