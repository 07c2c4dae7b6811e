//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/lcogt/nres-sn/internal/adapter/kafka"
	"github.com/lcogt/nres-sn/internal/config"
	"github.com/lcogt/nres-sn/internal/domain"
)

const testTopic = "test-nres-sn"

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("nres-sn-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cconn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cconn.Close()

	require.NoError(t, cconn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// TestKafkaWriterPublish verifies that a night's observations reach the
// topic keyed by star, with headers and a JSON body that encodes an
// unresolved magnitude as null.
func TestKafkaWriterPublish(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	processedAt := time.Date(2017, 11, 29, 6, 0, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(processedAt))
	defer domain.SetClock(nil)

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	cfg := config.Default()
	cfg.Kafka.Brokers = []string{broker}
	cfg.Kafka.Topic = testTopic

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	writer := kafka.NewWriter(&cfg, logger)
	defer writer.Close()

	night := domain.Night{Site: "lsc", Instrument: "nres01", Date: "20171128"}
	obs := []domain.Observation{
		{Star: "HD12345", Magnitude: domain.ResolvedMagnitude(8.2), SN: 90.6, ExposureSeconds: 240, Archive: "lscnrs01-fl09-20171128-0012-e91.tar.gz"},
		{Star: "HD99", Magnitude: domain.UnresolvedMagnitude(), SN: 12, ExposureSeconds: 60},
	}
	require.NoError(t, writer.Publish(ctx, night, obs))

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   []string{broker},
		Topic:     testTopic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  1e6,
	})
	defer reader.Close()

	got := make(map[string]kafka.Message)
	for range obs {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := reader.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read published observation")

		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		assert.Equal(t, "nres01", headers["instrument"])
		assert.Equal(t, processedAt.Format(time.RFC3339), headers["processed_at"])

		var m kafka.Message
		require.NoError(t, json.Unmarshal(msg.Value, &m))
		assert.Equal(t, string(msg.Key), m.Star)
		got[m.Star] = m
	}

	resolved := got["HD12345"]
	require.NotNil(t, resolved.Magnitude)
	assert.InDelta(t, 8.2, *resolved.Magnitude, 1e-12)
	require.NotNil(t, resolved.SN60)
	assert.InDelta(t, 45.3, *resolved.SN60, 1e-9)
	assert.Equal(t, "lsc", resolved.Site)
	assert.Equal(t, "20171128", resolved.Date)

	unresolved := got["HD99"]
	assert.False(t, unresolved.Resolved)
	assert.Nil(t, unresolved.Magnitude)
	require.NotNil(t, unresolved.SN60)
	assert.False(t, math.IsNaN(*unresolved.SN60))
}
