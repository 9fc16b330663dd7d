package sink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/glycopilot/glycopilot-api/internal/event"
	"github.com/glycopilot/glycopilot-api/internal/metrics"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the producer side of a Kafka topic
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ReadingMessage is the payload published for each committed reading
type ReadingMessage struct {
	ReadingID   string  `json:"reading_id"`
	AccountID   string  `json:"account_id"`
	MeasuredAt  string  `json:"measured_at"`
	Value       float64 `json:"value"`
	Unit        string  `json:"unit"`
	Trend       string  `json:"trend"`
	Source      string  `json:"source"`
	CommittedAt string  `json:"committed_at"`
}

// Kafka publishes committed readings keyed by account, so one account's
// readings stay ordered within a partition
type Kafka struct {
	writer MessageWriter
}

// NewKafka creates a producer for topic
func NewKafka(brokers []string, topic string) *Kafka {
	log.Info().Strs("brokers", brokers).Str("topic", topic).Msg("kafka sink enabled")
	return &Kafka{writer: &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}}
}

// NewKafkaWithWriter builds a sink on an existing writer
func NewKafkaWithWriter(w MessageWriter) *Kafka {
	return &Kafka{writer: w}
}

func (s *Kafka) Name() string { return "kafka" }

func (s *Kafka) OnReading(ctx context.Context, ev event.ReadingCommitted) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	r := ev.Reading
	payload, err := json.Marshal(ReadingMessage{
		ReadingID:   r.ReadingID.String(),
		AccountID:   r.AccountID.String(),
		MeasuredAt:  r.MeasuredAt.UTC().Format(time.RFC3339Nano),
		Value:       r.Value,
		Unit:        r.Unit,
		Trend:       string(r.Trend),
		Source:      string(r.Source),
		CommittedAt: ev.CommittedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to encode reading message")
		return
	}

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(r.AccountID.String()),
		Value: payload,
	})
	if err != nil {
		metrics.SinkErrors.WithLabelValues(s.Name()).Inc()
		log.Error().Err(err).Str("reading_id", r.ReadingID.String()).Msg("failed to publish reading to kafka")
	}
}

// Close flushes and closes the producer
func (s *Kafka) Close() error {
	return s.writer.Close()
}
