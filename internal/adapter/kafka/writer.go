package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/lcogt/nres-sn/internal/config"
	"github.com/lcogt/nres-sn/internal/domain"
)

// Writer publishes crawled observations to a Kafka topic.
// It implements pipeline.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured observation topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish serializes a night's observations and writes them in a single
// WriteMessages call.
func (w *Writer) Publish(ctx context.Context, night domain.Night, obs []domain.Observation) error {
	if len(obs) == 0 {
		return nil
	}
	processedAt := domain.Now().UTC()
	msgs := make([]kafkago.Message, len(obs))
	for i := range obs {
		msg, err := serializeToMessage(night, obs[i], processedAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d observations: %w", len(msgs), err)
	}
	w.logger.Debug("observations published", "night", night.String(), "count", len(msgs), "topic", w.writer.Topic)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// Message is the JSON payload of a published observation. Non-finite
// values are encoded as null.
type Message struct {
	Site            string    `json:"site"`
	Instrument      string    `json:"instrument"`
	Date            string    `json:"date"`
	Star            string    `json:"star"`
	Magnitude       *float64  `json:"magnitude"`
	Resolved        bool      `json:"resolved"`
	SN              float64   `json:"sn"`
	ExposureSeconds float64   `json:"exposure_seconds"`
	SN60            *float64  `json:"sn60"`
	Archive         string    `json:"archive,omitempty"`
	ProcessedAt     time.Time `json:"processed_at"`
}

// serializeToMessage marshals an observation into a Kafka message keyed by star.
func serializeToMessage(night domain.Night, o domain.Observation, processedAt time.Time) (kafkago.Message, error) {
	m := Message{
		Site:            night.Site,
		Instrument:      night.Instrument,
		Date:            night.Date,
		Star:            o.Star,
		Magnitude:       finiteOrNil(o.Magnitude.Value),
		Resolved:        o.Magnitude.Resolved,
		SN:              o.SN,
		ExposureSeconds: o.ExposureSeconds,
		SN60:            finiteOrNil(o.SN60()),
		Archive:         o.Archive,
		ProcessedAt:     processedAt,
	}
	data, err := json.Marshal(m)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize observation: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(o.Star),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "instrument", Value: []byte(night.Instrument)},
			{Key: "processed_at", Value: []byte(processedAt.Format(time.RFC3339))},
		},
	}, nil
}

func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
