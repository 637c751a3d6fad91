// Package kafka connects the run events to a Kafka cluster: broker settings
// from the environment, the run-request consumer loop and the producer.
package kafka

import (
	"context"
	"crypto/tls"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/openaire-nl/nl-stats/events/modules/runs"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
	"go.uber.org/zap"
)

// GroupID is the consumer group of run workers.
const GroupID = "nl-stats-worker"

// Settings holds the broker connection parameters.
type Settings struct {
	Brokers  []string
	Username string
	Password string
}

// Enabled reports whether KAFKA_BROKERS is set.
func Enabled() bool {
	return os.Getenv("KAFKA_BROKERS") != ""
}

// SettingsFromEnv reads KAFKA_BROKERS (comma separated, default
// localhost:9092), KAFKA_API_KEY and KAFKA_API_SECRET.
func SettingsFromEnv() Settings {
	s := Settings{
		Username: os.Getenv("KAFKA_API_KEY"),
		Password: os.Getenv("KAFKA_API_SECRET"),
	}
	for _, b := range strings.Split(os.Getenv("KAFKA_BROKERS"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			s.Brokers = append(s.Brokers, b)
		}
	}
	if len(s.Brokers) == 0 {
		s.Brokers = []string{"localhost:9092"}
	}
	return s
}

func (s Settings) sasl() bool {
	return s.Username != "" && s.Password != ""
}

// Dialer returns a dialer using SASL/PLAIN over TLS when credentials are
// set, plaintext otherwise.
func (s Settings) Dialer() *kafka.Dialer {
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	if s.sasl() {
		dialer.SASLMechanism = plain.Mechanism{Username: s.Username, Password: s.Password}
		dialer.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return dialer
}

// Transport returns the writer transport matching Dialer.
func (s Settings) Transport() kafka.RoundTripper {
	if !s.sasl() {
		return nil
	}
	return &kafka.Transport{
		SASL: plain.Mechanism{Username: s.Username, Password: s.Password},
		TLS:  &tls.Config{MinVersion: tls.VersionTLS12},
	}
}

// NewProducer creates a run event producer for the configured brokers.
func (s Settings) NewProducer() *runs.RunProducer {
	return runs.NewRunProducer(s.Brokers, s.Transport())
}

// RunEventProcessor waits for the first broker to accept connections, then
// consumes run requests in a background goroutine until ctx is done. Each
// request is executed through service and its outcome published.
func RunEventProcessor(ctx context.Context, s Settings, service runs.RunService, publisher runs.CompletionPublisher, logger *zap.Logger) error {
	dialer := s.Dialer()

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(2*time.Second), 2), ctx)
	err := backoff.RetryNotify(func() error {
		conn, err := dialer.DialContext(ctx, "tcp", s.Brokers[0])
		if err != nil {
			return err
		}
		return conn.Close()
	}, bo, func(err error, wait time.Duration) {
		logger.Warn("Retrying Kafka connection", zap.String("broker", s.Brokers[0]), zap.Duration("wait", wait), zap.Error(err))
	})
	if err != nil {
		return err
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  s.Brokers,
		GroupID:  GroupID,
		Topic:    runs.TopicRunRequested,
		MaxBytes: 10e6,
		Dialer:   dialer,
	})

	go func() {
		defer reader.Close()

		logger.Info("Kafka event processor started", zap.String("topic", runs.TopicRunRequested))

		for {
			msg, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("Failed to read run request", zap.Error(err))
				continue
			}

			if err := runs.HandleRunRequested(ctx, msg.Value, service, publisher, logger); err != nil {
				logger.Error("Run request failed", zap.Int64("offset", msg.Offset), zap.Error(err))
			}
		}
	}()

	return nil
}
