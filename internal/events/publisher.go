package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-engine/internal/logger"
	"github.com/stemsi/exam-engine/internal/model"
)

// PublisherConfig holds configuration for the submission event publisher.
type PublisherConfig struct {
	// KafkaBrokers selects Kafka. Without brokers events stay in process.
	KafkaBrokers []string
	Topic        string
}

// Publisher sends submission events through watermill.
type Publisher struct {
	publisher message.Publisher
	local     *gochannel.GoChannel
	topic     string
	log       zerolog.Logger
}

// NewPublisher creates a Kafka-backed publisher, or an in-process one when no
// brokers are configured.
func NewPublisher(cfg PublisherConfig, log zerolog.Logger) (*Publisher, error) {
	log = logger.Component(log, "event_publisher")
	wmLog := NewLoggerAdapter(log)

	p := &Publisher{topic: cfg.Topic, log: log}
	if len(cfg.KafkaBrokers) == 0 {
		p.local = gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, wmLog)
		p.publisher = p.local
		return p, nil
	}

	pub, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:   cfg.KafkaBrokers,
		Marshaler: kafka.DefaultMarshaler{},
	}, wmLog)
	if err != nil {
		return nil, fmt.Errorf("create kafka publisher: %w", err)
	}
	p.publisher = pub
	return p, nil
}

// Publish sends one outcome to the events topic.
func (p *Publisher) Publish(ctx context.Context, outcome model.SubmissionOutcome) error {
	event := NewSubmissionEvent(outcome)
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal submission event: %w", err)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("event_type", event.Type)
	msg.Metadata.Set("source", event.Source)
	msg.Metadata.Set("version", event.Version)
	msg.Metadata.Set("attempt_id", outcome.AttemptID.String())

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("publish submission event: %w", err)
	}
	p.log.Debug().
		Str("event_id", event.ID).
		Str("attempt_id", outcome.AttemptID.String()).
		Str("topic", p.topic).
		Msg("Published submission event")
	return nil
}

// Local returns the in-process subscriber, or nil when events go to Kafka.
func (p *Publisher) Local() message.Subscriber {
	if p.local == nil {
		return nil
	}
	return p.local
}

// Topic is the topic events are published on.
func (p *Publisher) Topic() string {
	return p.topic
}

// Close releases the underlying publisher.
func (p *Publisher) Close() error {
	return p.publisher.Close()
}

// LogSubmissions consumes in-process submission events and logs them until
// ctx is done. It stands in for a downstream consumer when Kafka is off.
func LogSubmissions(ctx context.Context, sub message.Subscriber, topic string, log zerolog.Logger) error {
	messages, err := sub.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	log = logger.Component(log, "submission_log")

	for msg := range messages {
		var event SubmissionEvent
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			log.Error().Err(err).Str("message_id", msg.UUID).Msg("Invalid submission event")
			msg.Ack()
			continue
		}
		log.Info().
			Str("attempt_id", event.Data.AttemptID.String()).
			Str("user_id", event.Data.UserID.String()).
			Int("score", event.Data.Result.Score).
			Bool("passed", event.Data.Result.Passed).
			Bool("auto_submit", event.Data.AutoSubmit).
			Msg("Submission event")
		msg.Ack()
	}
	return nil
}
