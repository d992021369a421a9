package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/snapshare/snapfeed/pkg/telemetry"
)

// headerCarrier adapts kafka headers to the otel propagator
type headerCarrier struct {
	headers *[]kafka.Header
}

func (c headerCarrier) Get(key string) string {
	for _, h := range *c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range *c.headers {
		if h.Key == key {
			(*c.headers)[i].Value = []byte(value)
			return
		}
	}
	*c.headers = append(*c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(*c.headers))
	for _, h := range *c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MentionPublisher sends hashtag mentions to Kafka for the trending worker
type MentionPublisher struct {
	writer messageWriter
	now    func() time.Time
}

// NewMentionPublisher writes to topic on brokers
func NewMentionPublisher(brokers []string, topic string) *MentionPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &MentionPublisher{writer: w, now: func() time.Time { return time.Now().UTC() }}
}

// Record publishes one message per distinct hashtag keyed by the tag, so a
// topic's mentions stay on one partition
func (p *MentionPublisher) Record(ctx context.Context, hashtags []string) error {
	tags := distinct(hashtags)
	if len(tags) == 0 {
		return nil
	}
	at := p.now()
	msgs := make([]kafka.Message, 0, len(tags))
	for _, tag := range tags {
		value, err := json.Marshal(Mentioned{Hashtags: []string{tag}, At: at})
		if err != nil {
			return fmt.Errorf("encode mention: %w", err)
		}
		msg := kafka.Message{Key: []byte(tag), Value: value}
		otel.GetTextMapPropagator().Inject(ctx, headerCarrier{headers: &msg.Headers})
		msgs = append(msgs, msg)
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish mentions: %w", err)
	}
	return nil
}

func distinct(hashtags []string) []string {
	seen := make(map[string]struct{}, len(hashtags))
	out := make([]string, 0, len(hashtags))
	for _, tag := range hashtags {
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// Close flushes pending writes
func (p *MentionPublisher) Close() error {
	return p.writer.Close()
}

// MentionSink stores mentions at the time they were made
type MentionSink interface {
	RecordAt(ctx context.Context, hashtags []string, at time.Time) error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// MentionConsumer feeds mentions read from Kafka into the trending store
type MentionConsumer struct {
	reader messageReader
	sink   MentionSink
	logger *zap.Logger
}

// NewMentionConsumer joins group on topic
func NewMentionConsumer(brokers []string, topic, group string, sink MentionSink, logger *zap.Logger) *MentionConsumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  group,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  2 * time.Second,
	})
	return &MentionConsumer{reader: r, sink: sink, logger: logger}
}

// Run consumes until ctx is cancelled. Bad payloads and failed writes are
// logged and skipped.
func (c *MentionConsumer) Run(ctx context.Context) error {
	c.logger.Info("Mention consumer started")
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return fmt.Errorf("read mention: %w", err)
		}
		mctx := otel.GetTextMapPropagator().Extract(ctx, headerCarrier{headers: &m.Headers})
		_ = c.Handle(mctx, m.Value)
	}
}

// Handle stores one mention message
func (c *MentionConsumer) Handle(ctx context.Context, value []byte) error {
	ctx, span := telemetry.StartSpan(ctx, "broker.MentionConsumer", trace.WithSpanKind(trace.SpanKindConsumer))
	ev, err := decodeMentioned(value)
	if err != nil {
		c.logger.Warn("Dropping malformed mention", zap.Error(err))
		telemetry.EndSpan(span, err)
		return err
	}
	if err = c.sink.RecordAt(ctx, ev.Hashtags, ev.At); err != nil {
		c.logger.Error("Recording mention failed", zap.Strings("hashtags", ev.Hashtags), zap.Error(err))
	}
	telemetry.EndSpan(span, err)
	return err
}

// Close leaves the consumer group
func (c *MentionConsumer) Close() error {
	return c.reader.Close()
}
