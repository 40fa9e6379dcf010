// Package events publishes rental lifecycle notifications. Publishing is
// fire-and-forget from the engine's point of view: a failed publish is
// logged, never propagated into the request path.
package events

import (
	"context"
	"time"

	"rentro/pkg/kafka"
	kafka_config "rentro/pkg/kafka/config"
)

const (
	Topic  = "rental-events"
	Source = "rentals"
)

const (
	TypeRentalCreated   = "rental.created"
	TypeRentalActivated = "rental.activated"
	TypeRentalReturned  = "rental.returned"
	TypeRentalCancelled = "rental.cancelled"
)

type RentalEvent struct {
	Type       string    `json:"type"`
	RentalID   string    `json:"rental_id"`
	Reference  string    `json:"reference"`
	VehicleID  string    `json:"vehicle_id"`
	UserID     string    `json:"user_id"`
	Status     string    `json:"status"`
	Amount     string    `json:"amount,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, event RentalEvent) error
	Close() error
}

type kafkaPublisher struct {
	producer *kafka.Producer
}

func NewKafkaPublisher(cfg *kafka_config.Config) (Publisher, error) {
	producer, err := kafka.NewProducer(cfg, Topic)
	if err != nil {
		return nil, err
	}
	return &kafkaPublisher{producer: producer}, nil
}

func (p *kafkaPublisher) Publish(ctx context.Context, event RentalEvent) error {
	msg, err := kafka.NewMessage(event.RentalID, event.Type, Source, event)
	if err != nil {
		return err
	}
	return p.producer.Publish(ctx, msg)
}

func (p *kafkaPublisher) Close() error {
	return p.producer.Close()
}

type nopPublisher struct{}

// NewNopPublisher returns a Publisher that drops every event. Used when
// event publishing is disabled.
func NewNopPublisher() Publisher {
	return nopPublisher{}
}

func (nopPublisher) Publish(context.Context, RentalEvent) error {
	return nil
}

func (nopPublisher) Close() error {
	return nil
}
