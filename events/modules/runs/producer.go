package runs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/openaire-nl/nl-stats/model"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RunProducer publishes run events to Kafka.
type RunProducer struct {
	Requested MessageWriter
	Completed MessageWriter
}

// NewRunProducer creates writers for both run topics. transport may be nil
// for the default plaintext transport.
func NewRunProducer(brokers []string, transport kafka.RoundTripper) *RunProducer {
	writer := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:      kafka.TCP(brokers...),
			Topic:     topic,
			Balancer:  &kafka.LeastBytes{},
			Transport: transport,
		}
	}
	return &RunProducer{
		Requested: writer(TopicRunRequested),
		Completed: writer(TopicRunCompleted),
	}
}

// PublishRunRequested sends a run request and returns the event id, which
// becomes the run id unless the request names one.
func (p *RunProducer) PublishRunRequested(ctx context.Context, req model.RunRequest) (string, error) {
	event := RunRequestedEvent{
		EventType:     EventTypeRunRequested,
		EventID:       uuid.New().String(),
		EventTime:     time.Now().UTC(),
		SchemaVersion: SchemaVersion,
		Request:       req,
	}
	if event.Request.ID == "" {
		event.Request.ID = event.EventID
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return "", err
	}

	if err := p.Requested.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Request.ID),
		Value: payload,
	}); err != nil {
		return "", err
	}
	return event.Request.ID, nil
}

// PublishRunCompleted announces the outcome of a run.
func (p *RunProducer) PublishRunCompleted(ctx context.Context, requestID string, run *model.Run, runErr error) error {
	event := RunCompletedEvent{
		EventType:     EventTypeRunCompleted,
		EventID:       uuid.New().String(),
		EventTime:     time.Now().UTC(),
		SchemaVersion: SchemaVersion,
		RequestID:     requestID,
		Run:           run,
	}
	if runErr != nil {
		event.Error = runErr.Error()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.Completed.WriteMessages(ctx, kafka.Message{
		Key:   []byte(requestID),
		Value: payload,
	})
}

// Close cleans up the Kafka writers
func (p *RunProducer) Close() error {
	err := p.Requested.Close()
	if cerr := p.Completed.Close(); err == nil {
		err = cerr
	}
	return err
}
