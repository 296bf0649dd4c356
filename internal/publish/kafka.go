// Package publish pushes fused ingestion output onto Kafka topics for
// downstream alerting consumers. Publishing is optional; when no
// brokers are configured the rest of the core runs without it.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/coastwatch-io/coastwatch/internal/hazard"
)

// Publisher emits fused records to downstream consumers.
type Publisher interface {
	PublishHazardEvents(ctx context.Context, events []hazard.AggregatedEvent) error
	PublishTsunamiAlerts(ctx context.Context, alerts []hazard.TsunamiAlert) error
	Close() error
}

// Config names the brokers and topics.
type Config struct {
	Brokers     []string
	HazardTopic string
	AlertTopic  string
}

// KafkaPublisher produces JSON-encoded records, one topic per record
// kind.
type KafkaPublisher struct {
	hazardWriter *kafkago.Writer
	alertWriter  *kafkago.Writer
	logger       *slog.Logger
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafka creates writers for both topics.
func NewKafka(cfg Config, logger *slog.Logger) *KafkaPublisher {
	newWriter := func(topic string) *kafkago.Writer {
		return &kafkago.Writer{
			Addr:         kafkago.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafkago.LeastBytes{},
			RequiredAcks: kafkago.RequireAll,
		}
	}
	return &KafkaPublisher{
		hazardWriter: newWriter(cfg.HazardTopic),
		alertWriter:  newWriter(cfg.AlertTopic),
		logger:       logger.With("component", "publish"),
	}
}

// PublishHazardEvents writes all fused events in one WriteMessages
// call.
func (p *KafkaPublisher) PublishHazardEvents(ctx context.Context, events []hazard.AggregatedEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(events))
	for i := range events {
		msg, err := hazardMessage(events[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return p.hazardWriter.WriteMessages(ctx, msgs...)
}

// PublishTsunamiAlerts writes all alerts in one WriteMessages call.
func (p *KafkaPublisher) PublishTsunamiAlerts(ctx context.Context, alerts []hazard.TsunamiAlert) error {
	if len(alerts) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(alerts))
	for i := range alerts {
		msg, err := alertMessage(alerts[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return p.alertWriter.WriteMessages(ctx, msgs...)
}

func (p *KafkaPublisher) Close() error {
	if err := p.hazardWriter.Close(); err != nil {
		return err
	}
	return p.alertWriter.Close()
}

// hazardMessage marshals a fused event. The key keeps all reports of
// the same event on one partition.
func hazardMessage(e hazard.AggregatedEvent) (kafkago.Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize hazard event: %w", err)
	}
	key := fmt.Sprintf("%s-%d", e.PrimarySource, e.OccurredAt.Unix())
	return kafkago.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "primary_source", Value: []byte(e.PrimarySource)},
			{Key: "occurred_at", Value: []byte(e.OccurredAt.Format(time.RFC3339))},
		},
	}, nil
}

func alertMessage(alert hazard.TsunamiAlert) (kafkago.Message, error) {
	data, err := json.Marshal(alert)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize tsunami alert: %w", err)
	}
	key := alert.ID
	if key == "" {
		key = fmt.Sprintf("%s-%d", alert.Source, alert.IssuedAt.Unix())
	}
	return kafkago.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte(alert.Source)},
			{Key: "category", Value: []byte(alert.Category)},
			{Key: "severity", Value: []byte(strconv.Itoa(alert.Severity))},
		},
	}, nil
}
