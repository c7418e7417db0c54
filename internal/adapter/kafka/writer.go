package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/agrimet-labs/climate-hazard-etl/internal/config"
	"github.com/agrimet-labs/climate-hazard-etl/internal/domain"
	"github.com/agrimet-labs/climate-hazard-etl/internal/observability"
)

// Writer publishes hazard records to a Kafka topic. It is the optional sink
// behind the KAFKA_ENABLED flag; file exports are the primary output.
type Writer struct {
	writer  *kafkago.Writer
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewWriter creates a Kafka producer for the hazard record topic.
func NewWriter(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaHazardTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger, metrics: metrics}
}

// PublishBatch serializes and publishes hazard records in a single
// WriteMessages call.
func (w *Writer) PublishBatch(ctx context.Context, records []domain.HazardRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeToMessage(records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return err
	}
	w.metrics.HazardSinkMessages.Add(float64(len(records)))
	w.logger.Debug("hazard records published", "count", len(records))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a HazardRecord into a Kafka message. The key
// groups a district's records into one partition so consumers see a
// district's periods in order.
func serializeToMessage(record domain.HazardRecord) (kafkago.Message, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize hazard record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(record.DistrictID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "variable", Value: []byte(record.Variable)},
			{Key: "produced_at", Value: []byte(record.ProducedAt.Format(time.RFC3339))},
		},
	}, nil
}
