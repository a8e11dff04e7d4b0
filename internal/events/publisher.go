// Package events publishes session updates to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"dictation-orchestrator/internal/models"
	"dictation-orchestrator/internal/observability/metrics"
	"dictation-orchestrator/internal/schema"
	"dictation-orchestrator/internal/service/orchestrator"
)

// Publisher publishes session events to one Kafka topic per payload kind.
type Publisher struct {
	writerTranscript *kafka.Writer
	writerNotice     *kafka.Writer
	writerSelection  *kafka.Writer
	principal        string
	topicTranscript  string
	topicNotice      string
	topicSelection   string
	enabled          bool
	validator        *schema.Validator
	metrics          *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers         []string
	TopicTranscript string
	TopicNotice     string
	TopicSelection  string
	Principal       string
	Enabled         bool
}

// New creates a Kafka publisher. A nil or disabled config, or one without
// brokers, yields a publisher that only validates and logs.
func New(cfg *Config) *Publisher {
	p := &Publisher{
		validator: schema.New(),
		metrics:   metrics.DefaultMetrics,
	}

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return p
	}

	p.principal = cfg.Principal
	p.topicTranscript = cfg.TopicTranscript
	p.topicNotice = cfg.TopicNotice
	p.topicSelection = cfg.TopicSelection

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return p
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	p.writerTranscript = newWriter(cfg.Brokers, cfg.TopicTranscript, transport)
	p.writerNotice = newWriter(cfg.Brokers, cfg.TopicNotice, transport)
	p.writerSelection = newWriter(cfg.Brokers, cfg.TopicSelection, transport)
	p.enabled = true

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicTranscript", cfg.TopicTranscript).
		Str("topicNotice", cfg.TopicNotice).
		Str("topicSelection", cfg.TopicSelection).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return p
}

func newWriter(brokers []string, topic string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}
}

// PublishUpdate converts a session update to its event and publishes it,
// keyed by session id so a session's events stay ordered within a partition.
func (p *Publisher) PublishUpdate(ctx context.Context, sessionID string, u orchestrator.TranscriptionUpdate) error {
	event, err := EventFromUpdate(sessionID, p.principal, u, time.Now())
	if err != nil {
		return err
	}

	switch ev := event.(type) {
	case models.TranscriptEvent:
		return p.publish(ctx, p.writerTranscript, p.topicTranscript, ev.EventType, sessionID, ev)
	case models.NoticeEvent:
		return p.publish(ctx, p.writerNotice, p.topicNotice, ev.EventType, sessionID, ev)
	case models.SelectionEvent:
		return p.publish(ctx, p.writerSelection, p.topicSelection, ev.EventType, sessionID, ev)
	default:
		return fmt.Errorf("events: unsupported event %T", event)
	}
}

// EventFromUpdate maps a session update to its Kafka event.
func EventFromUpdate(sessionID, principal string, u orchestrator.TranscriptionUpdate, now time.Time) (any, error) {
	ts := now.UnixMilli()
	switch pl := u.Payload.(type) {
	case orchestrator.Transcript:
		return models.TranscriptEvent{
			EventType:  models.EventTranscript,
			SessionID:  sessionID,
			Principal:  principal,
			Timestamp:  ts,
			SentenceID: pl.SentenceID,
			Source:     pl.Source.String(),
			Text:       pl.Text,
			IsPrimary:  pl.IsPrimary,
			WithinSLA:  pl.WithinSLA,
			IsFirst:    u.IsFirst,
			FrameIndex: u.FrameIndex,
			LatencyMs:  u.Latency.Milliseconds(),
		}, nil
	case orchestrator.Notice:
		return models.NoticeEvent{
			EventType:  models.EventNotice,
			SessionID:  sessionID,
			Principal:  principal,
			Timestamp:  ts,
			Level:      pl.Level.String(),
			Message:    pl.Message,
			SentenceID: pl.SentenceID,
			FrameIndex: u.FrameIndex,
			LatencyMs:  u.Latency.Milliseconds(),
		}, nil
	case orchestrator.Selection:
		items := make([]models.SelectionItem, 0, len(pl.Selections))
		for _, s := range pl.Selections {
			items = append(items, models.SelectionItem{
				SentenceID:    s.SentenceID,
				ActiveVariant: s.ActiveVariant.String(),
			})
		}
		return models.SelectionEvent{
			EventType:  models.EventSelection,
			SessionID:  sessionID,
			Principal:  principal,
			Timestamp:  ts,
			Selections: items,
		}, nil
	default:
		return nil, fmt.Errorf("events: update without payload")
	}
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	if err := p.validator.Validate(event); err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Rejected invalid event")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	// Log-only mode
	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Enabled reports whether events reach Kafka.
func (p *Publisher) Enabled() bool { return p.enabled }

// Close closes all Kafka writers.
func (p *Publisher) Close() error {
	var err error
	for name, w := range map[string]*kafka.Writer{
		"transcript": p.writerTranscript,
		"notice":     p.writerNotice,
		"selection":  p.writerSelection,
	} {
		if w == nil {
			continue
		}
		if e := w.Close(); e != nil {
			log.Error().Err(e).Str("writer", name).Msg("Error closing Kafka writer")
			err = e
		}
	}
	return err
}
