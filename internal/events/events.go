package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const (
	ShipmentRequested  = "shipment.requested"
	ShipmentDispatched = "shipment.dispatched"
	ShipmentDelivered  = "shipment.delivered"
	ShipmentCancelled  = "shipment.cancelled"
)

// ShipmentEvent is the lifecycle record published for each shipment
// transition. The shipment id is the message key so one shipment's events
// stay ordered within a partition.
type ShipmentEvent struct {
	Type              string    `json:"type"`
	ShipmentID        uuid.UUID `json:"shipmentId"`
	ExternalRequestID string    `json:"externalRequestId"`
	HubID             uuid.UUID `json:"hubId"`
	Status            string    `json:"status"`
	DriverName        string    `json:"driverName,omitempty"`
	OccurredAt        time.Time `json:"occurredAt"`
}

// Writer is the subset of kafka.Writer the publisher uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher interface {
	Publish(ctx context.Context, e ShipmentEvent) error
	Close() error
}

type KafkaPublisher struct {
	writer Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		WriteTimeout:           5 * time.Second,
	}}
}

func NewKafkaPublisherWithWriter(w Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e ShipmentEvent) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(e.ShipmentID.String()),
		Value: b,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops events. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, e ShipmentEvent) error { return nil }
func (NopPublisher) Close() error                                       { return nil }

// PublishLogged publishes and logs failures. Events are best effort; the
// database row is the source of truth.
func PublishLogged(ctx context.Context, p Publisher, e ShipmentEvent) {
	if err := p.Publish(ctx, e); err != nil {
		slog.WarnContext(ctx, "shipment event publish failed",
			slog.String("type", e.Type),
			slog.String("shipment_id", e.ShipmentID.String()),
			slog.String("error", err.Error()),
		)
	}
}
