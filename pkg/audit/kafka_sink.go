// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
	"go.uber.org/zap"

	"github.com/telekom/mailtask/pkg/config"
	"github.com/telekom/mailtask/pkg/metrics"
)

// KafkaSinkConfig configures a KafkaSink.
type KafkaSinkConfig struct {
	// Name is the identifier for this sink instance.
	Name string

	Brokers []string
	Topic   string

	// TLS enables TLS with the system trust store.
	TLS bool

	// SASL authentication configuration.
	SASL *KafkaSASLConfig

	// BatchSize is the number of messages to batch before flushing.
	// Default: 1, a one-shot task writes a single event.
	BatchSize int

	// BatchTimeout is the maximum time to wait before flushing a batch.
	// Default: 1 second
	BatchTimeout time.Duration

	// WriteTimeout is the timeout for writing messages.
	// Default: 10 seconds
	WriteTimeout time.Duration

	// RequiredAcks determines the level of acknowledgment required.
	// -1: all replicas, 0: none, 1: leader only
	RequiredAcks int

	// Async enables asynchronous writes. Pending messages are flushed on Close.
	Async bool

	// CompressionCodec for message compression.
	// Valid values: "none", "gzip", "snappy", "lz4", "zstd"
	// Default: "snappy"
	CompressionCodec string
}

// KafkaSASLConfig holds SASL authentication configuration.
type KafkaSASLConfig struct {
	// Mechanism is one of "PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512".
	Mechanism string
	Username  string
	Password  string
}

// KafkaSinkConfigFrom converts the audit.kafka section of the system config.
func KafkaSinkConfigFrom(k config.Kafka) (KafkaSinkConfig, error) {
	cfg := KafkaSinkConfig{
		Brokers:          k.Brokers,
		Topic:            k.Topic,
		TLS:              k.TLS,
		BatchSize:        k.BatchSize,
		RequiredAcks:     k.RequiredAcks,
		Async:            k.Async,
		CompressionCodec: k.Compression,
	}
	var err error
	if cfg.BatchTimeout, err = parseDuration("batchTimeout", k.BatchTimeout); err != nil {
		return cfg, err
	}
	if cfg.WriteTimeout, err = parseDuration("writeTimeout", k.WriteTimeout); err != nil {
		return cfg, err
	}
	if k.SASLMechanism != "" {
		cfg.SASL = &KafkaSASLConfig{
			Mechanism: k.SASLMechanism,
			Username:  k.SASLUsername,
			Password:  k.SASLPassword,
		}
	}
	return cfg, nil
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("audit.kafka.%s: %w", field, err)
	}
	return d, nil
}

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes audit events to a Kafka topic.
type KafkaSink struct {
	name   string
	writer messageWriter
	logger *zap.Logger
	mu     sync.Mutex
	closed bool
}

// NewKafkaSink creates a new KafkaSink.
func NewKafkaSink(cfg KafkaSinkConfig, logger *zap.Logger) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one Kafka broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("Kafka topic is required")
	}

	transport := &kafka.Transport{}
	if cfg.TLS {
		transport.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.SASL != nil && cfg.SASL.Mechanism != "" {
		mechanism, err := saslMechanism(cfg.SASL)
		if err != nil {
			return nil, fmt.Errorf("audit.kafka: %w", err)
		}
		transport.SASL = mechanism
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	requiredAcks := cfg.RequiredAcks
	if requiredAcks == 0 {
		requiredAcks = -1
	}

	compression, err := compressionCodec(cfg.CompressionCodec)
	if err != nil {
		return nil, err
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              batchSize,
		BatchTimeout:           batchTimeout,
		WriteTimeout:           writeTimeout,
		RequiredAcks:           kafka.RequiredAcks(requiredAcks),
		Async:                  cfg.Async,
		Compression:            compression,
		Transport:              transport,
		AllowAutoTopicCreation: false,
	}

	sinkName := cfg.Name
	if sinkName == "" {
		sinkName = "kafka"
	}

	logger.Debug("Kafka audit sink created",
		zap.String("name", sinkName),
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
		zap.Bool("tls_enabled", cfg.TLS),
		zap.Bool("sasl_enabled", cfg.SASL != nil && cfg.SASL.Mechanism != ""))

	return newKafkaSink(sinkName, writer, logger), nil
}

func newKafkaSink(name string, writer messageWriter, logger *zap.Logger) *KafkaSink {
	return &KafkaSink{
		name:   name,
		writer: writer,
		logger: logger.Named("kafka-audit"),
	}
}

func compressionCodec(name string) (kafka.Compression, error) {
	switch name {
	case "none":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	case "snappy", "":
		return kafka.Snappy, nil
	default:
		return 0, fmt.Errorf("unsupported compression codec: %s", name)
	}
}

// writeErrorReason maps a failed write to the reason label of
// AuditSinkErrors.
func writeErrorReason(err error) string {
	var batch kafka.WriteErrors
	if errors.As(err, &batch) {
		for _, e := range batch {
			if e != nil {
				err = e
				break
			}
		}
	}

	var kafkaErr kafka.Error
	var certErr *tls.CertificateVerificationError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.As(err, &kafkaErr):
		switch kafkaErr {
		case kafka.SASLAuthenticationFailed, kafka.TopicAuthorizationFailed:
			return "auth"
		case kafka.UnknownTopicOrPartition:
			return "topic"
		}
		return "broker"
	case errors.As(err, &certErr):
		return "tls"
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return "timeout"
		}
		return "network"
	}
	return "other"
}

// Write sends an audit event to Kafka, keyed by event ID.
func (s *KafkaSink) Write(ctx context.Context, event *Event) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		metrics.AuditSinkErrors.WithLabelValues(s.name, "closed").Inc()
		return fmt.Errorf("kafka sink is closed")
	}
	s.mu.Unlock()

	value, err := json.Marshal(event)
	if err != nil {
		metrics.AuditSinkErrors.WithLabelValues(s.name, "serialization").Inc()
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	headers := []kafka.Header{
		{Key: "event-type", Value: []byte(event.Type)},
		{Key: "severity", Value: []byte(event.Severity)},
		{Key: "timestamp", Value: []byte(event.Timestamp.Format(time.RFC3339))},
	}
	if event.Task != "" {
		headers = append(headers, kafka.Header{Key: "task", Value: []byte(event.Task)})
	}

	msg := kafka.Message{
		Key:     []byte(event.ID),
		Value:   value,
		Headers: headers,
	}

	start := time.Now()
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		reason := writeErrorReason(err)
		metrics.AuditSinkErrors.WithLabelValues(s.name, reason).Inc()
		s.logger.Warn("failed to write audit event to Kafka",
			zap.Error(err),
			zap.String("reason", reason),
			zap.Duration("duration", time.Since(start)),
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)))
		return fmt.Errorf("failed to write to Kafka (%s): %w", reason, err)
	}

	metrics.AuditEventsWritten.WithLabelValues(s.name).Inc()
	return nil
}

// Close flushes pending messages and closes the Kafka writer.
func (s *KafkaSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka writer: %w", err)
	}
	return nil
}

// Name returns the sink identifier.
func (s *KafkaSink) Name() string {
	return s.name
}

var scramAlgorithms = map[string]scram.Algorithm{
	"SCRAM-SHA-256": scram.SHA256,
	"SCRAM-SHA-512": scram.SHA512,
}

func saslMechanism(cfg *KafkaSASLConfig) (sasl.Mechanism, error) {
	if cfg.Mechanism == "PLAIN" {
		return plain.Mechanism{Username: cfg.Username, Password: cfg.Password}, nil
	}
	algo, ok := scramAlgorithms[cfg.Mechanism]
	if !ok {
		return nil, fmt.Errorf("unsupported SASL mechanism %q", cfg.Mechanism)
	}
	return scram.Mechanism(algo, cfg.Username, cfg.Password)
}
