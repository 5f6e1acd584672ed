package kafka_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	orderkafka "github.com/dmehra2102/storefront/internal/order/infrastructure/kafka"
	"github.com/dmehra2102/storefront/internal/testutil"
	"github.com/dmehra2102/storefront/pkg/outbox"
)

const topic = "order.events"

func TestWriterPublishesOutboxEvent(t *testing.T) {
	brokers := testutil.Kafka(t)

	conn, err := kafka.Dial("tcp", brokers[0])
	require.NoError(t, err)
	require.NoError(t, conn.CreateTopics(kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}))
	require.NoError(t, conn.Close())

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := orderkafka.NewWriter(brokers)
	t.Cleanup(func() { _ = w.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	d := outbox.NewDispatcher(log, w, topic)
	require.NoError(t, d.Dispatch(ctx, outbox.Event{
		ID:            1,
		AggregateType: "order",
		AggregateID:   "42",
		Type:          "OrderPlaced",
		Payload:       []byte(`{"order_id":42}`),
		Headers:       map[string]string{"source": "order-service"},
	}))

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: topic, Partition: 0, MaxWait: 500 * time.Millisecond})
	t.Cleanup(func() { _ = r.Close() })

	msg, err := r.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "42", string(msg.Key))
	assert.JSONEq(t, `{"order_id":42}`, string(msg.Value))

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "OrderPlaced", headers["event_type"])
	assert.Equal(t, "order-service", headers["source"])
}
