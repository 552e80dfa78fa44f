package events

import (
	"context"
	"errors"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaPublisher_Publish(t *testing.T) {
	fw := &fakeWriter{}
	p := NewKafkaPublisherWithWriter(fw)

	id := uuid.New()
	err := p.Publish(context.Background(), ShipmentEvent{
		Type:              ShipmentDispatched,
		ShipmentID:        id,
		ExternalRequestID: "REQ-1",
		Status:            "ON_THE_WAY",
	})
	require.NoError(t, err)
	require.Len(t, fw.msgs, 1)

	msg := fw.msgs[0]
	assert.Equal(t, id.String(), string(msg.Key))
	assert.Equal(t, ShipmentDispatched, string(msg.Headers[0].Value))

	var decoded ShipmentEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "REQ-1", decoded.ExternalRequestID)
	assert.False(t, decoded.OccurredAt.IsZero())
}

func TestPublishLogged_SwallowsErrors(t *testing.T) {
	p := NewKafkaPublisherWithWriter(&fakeWriter{err: errors.New("broker down")})
	assert.NotPanics(t, func() {
		PublishLogged(context.Background(), p, ShipmentEvent{Type: ShipmentCancelled})
	})
}
