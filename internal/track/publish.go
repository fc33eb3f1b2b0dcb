package track

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Engagement event kinds, doubling as routing keys on the topic exchange.
const (
	EventOpened  = "digest.opened"
	EventClosed  = "digest.closed"
	EventClicked = "digest.clicked"
)

// EngagementMessage is the wire form of one engagement event published for
// downstream analytics consumers.
type EngagementMessage struct {
	Event            string    `json:"event"`
	Timestamp        time.Time `json:"timestamp"`
	TrackingID       string    `json:"tracking_id"`
	IP               string    `json:"ip,omitempty"`
	UserAgent        string    `json:"user_agent,omitempty"`
	TargetURL        string    `json:"target_url,omitempty"`
	TimeSpentSeconds int       `json:"time_spent_seconds,omitempty"`
}

type Publisher interface {
	PublishEngagement(ctx context.Context, msg EngagementMessage) error
}

type PublishingChannel interface {
	PublishWithContext(
		ctx context.Context,
		exchange, key string,
		mandatory, immediate bool,
		msg amqp.Publishing,
	) error
	Close() error
}

type RabbitPublisher struct {
	conn     *amqp.Connection
	ch       PublishingChannel
	exchange string
	logger   *log.Logger
}

func NewRabbitPublisher(uri, exchange string, logger *log.Logger) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq connection failed: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel creation failed: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("exchange declare failed: %w", err)
	}

	return &RabbitPublisher{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		logger:   logger,
	}, nil
}

func (p *RabbitPublisher) Close() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// PublishEngagement routes the message by its event kind.
func (p *RabbitPublisher) PublishEngagement(ctx context.Context, msg EngagementMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return p.ch.PublishWithContext(
		ctx,
		p.exchange,
		msg.Event,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
		},
	)
}
