// Package notify delivers lead events to the realtime relay that fans them
// out to dashboards and chat. Delivery is fire-and-forget.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

const (
	EventLeadCreated        = "lead.created"
	EventLeadResubmitted    = "lead.resubmitted"
	EventLeadUpdated        = "lead.updated"
	EventLeadFundingUpdated = "lead.funding_updated"
)

// Event is the message published for a lead change.
type Event struct {
	Type      string                 `json:"type"`
	CompanyID uuid.UUID              `json:"companyId"`
	LeadID    uuid.UUID              `json:"leadId"`
	ActorID   *uuid.UUID             `json:"actorId,omitempty"`
	At        time.Time              `json:"at"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// Relay publishes events to an external pub/sub system.
type Relay interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// RedisPublisher is the subset of *redis.Client used by RedisRelay.
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisRelay publishes each event on a per-company channel.
type RedisRelay struct {
	client RedisPublisher
	prefix string
}

func NewRedisRelay(client RedisPublisher, prefix string) *RedisRelay {
	if prefix == "" {
		prefix = "leadforge"
	}
	return &RedisRelay{client: client, prefix: prefix}
}

// Channel returns the channel name subscribers of a company listen on.
func (r *RedisRelay) Channel(companyID uuid.UUID) string {
	return fmt.Sprintf("%s:company:%s", r.prefix, companyID)
}

func (r *RedisRelay) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.Channel(ev.CompanyID), data).Err()
}

func (r *RedisRelay) Close() error {
	return r.client.Close()
}

// MessageWriter is the subset of *kafka.Writer used by KafkaRelay.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaRelay writes events to a topic keyed by company so one tenant's
// events stay ordered within a partition.
type KafkaRelay struct {
	writer MessageWriter
}

func NewKafkaRelay(brokers []string, topic string) *KafkaRelay {
	return NewKafkaRelayWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	})
}

func NewKafkaRelayWithWriter(w MessageWriter) *KafkaRelay {
	return &KafkaRelay{writer: w}
}

func (k *KafkaRelay) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.CompanyID.String()),
		Value: data,
		Time:  ev.At,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(ev.Type)},
		},
	})
}

func (k *KafkaRelay) Close() error {
	return k.writer.Close()
}

// NopRelay discards events. Used when relay.driver is "none".
type NopRelay struct{}

func (NopRelay) Publish(context.Context, Event) error { return nil }
func (NopRelay) Close() error                         { return nil }
