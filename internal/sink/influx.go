// Package sink mirrors committed readings to optional external systems.
// Sinks are asynchronous bus subscribers; their failures never reach ingestion.
package sink

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/glycopilot/glycopilot-api/internal/event"
	"github.com/glycopilot/glycopilot-api/internal/metrics"
	"github.com/rs/zerolog/log"
)

const writeTimeout = 5 * time.Second

// PointWriter is the blocking write side of an InfluxDB bucket
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Influx writes every committed reading as a point of the glucose measurement
type Influx struct {
	writer PointWriter
	client influxdb2.Client
}

// NewInflux connects to InfluxDB and checks its health once
func NewInflux(ctx context.Context, url, token, org, bucket string) (*Influx, error) {
	client := influxdb2.NewClient(url, token)
	if _, err := client.Health(ctx); err != nil {
		client.Close()
		return nil, err
	}
	log.Info().Str("url", url).Str("bucket", bucket).Msg("influx sink enabled")
	return &Influx{writer: client.WriteAPIBlocking(org, bucket), client: client}, nil
}

// NewInfluxWithWriter builds a sink on an existing writer
func NewInfluxWithWriter(w PointWriter) *Influx {
	return &Influx{writer: w}
}

func (s *Influx) Name() string { return "influx" }

func (s *Influx) OnReading(ctx context.Context, ev event.ReadingCommitted) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := s.writer.WritePoint(ctx, ReadingPoint(ev)); err != nil {
		metrics.SinkErrors.WithLabelValues(s.Name()).Inc()
		log.Error().Err(err).Str("reading_id", ev.Reading.ReadingID.String()).Msg("failed to write reading to influx")
	}
}

// ReadingPoint maps a reading onto an InfluxDB point
func ReadingPoint(ev event.ReadingCommitted) *write.Point {
	r := ev.Reading
	fields := map[string]interface{}{
		"value": r.Value,
	}
	if r.Rate != nil {
		fields["rate"] = *r.Rate
	}
	return influxdb2.NewPoint(
		"glucose",
		map[string]string{
			"account_id": r.AccountID.String(),
			"source":     string(r.Source),
			"trend":      string(r.Trend),
			"unit":       r.Unit,
		},
		fields,
		r.MeasuredAt,
	)
}

// Close releases the client
func (s *Influx) Close() {
	if s.client != nil {
		s.client.Close()
	}
}
