package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/snapshare/snapfeed/internal/models"
	"github.com/snapshare/snapfeed/pkg/telemetry"
)

// FanoutQueue is the queue group shared by fan-out workers so each post is
// delivered once per deployment
const FanoutQueue = "snapfeed-fanout"

// Connect dials NATS with reconnects enabled
func Connect(url string, logger *zap.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("snapfeed"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

type msgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// NATSDispatcher hands new posts to remote fan-out workers
type NATSDispatcher struct {
	conn    msgPublisher
	subject string
}

// NewNATSDispatcher publishes on subject through conn
func NewNATSDispatcher(conn *nats.Conn, subject string) *NATSDispatcher {
	return &NATSDispatcher{conn: conn, subject: subject}
}

// Dispatch publishes a post.created event carrying the caller's trace
func (d *NATSDispatcher) Dispatch(ctx context.Context, post *models.Post) error {
	data, err := json.Marshal(newPostCreated(post))
	if err != nil {
		return fmt.Errorf("encode post.created: %w", err)
	}
	msg := &nats.Msg{Subject: d.subject, Data: data, Header: nats.Header{}}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))
	return d.conn.PublishMsg(msg)
}

// Fanout is the work a consumer performs per post
type Fanout interface {
	OnPostCreated(ctx context.Context, post *models.Post) (int, error)
}

// FanoutConsumer runs fan-out for events received from NATS
type FanoutConsumer struct {
	fanout     Fanout
	jobTimeout time.Duration
	logger     *zap.Logger
}

// NewFanoutConsumer builds a consumer; each message gets jobTimeout to finish
func NewFanoutConsumer(fanout Fanout, jobTimeout time.Duration, logger *zap.Logger) *FanoutConsumer {
	return &FanoutConsumer{fanout: fanout, jobTimeout: jobTimeout, logger: logger}
}

// Subscribe joins the fan-out queue group on subject
func (c *FanoutConsumer) Subscribe(nc *nats.Conn, subject string) (*nats.Subscription, error) {
	sub, err := nc.QueueSubscribe(subject, FanoutQueue, c.HandleMsg)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	c.logger.Info("Fan-out consumer subscribed", zap.String("subject", subject), zap.String("queue", FanoutQueue))
	return sub, nil
}

// HandleMsg continues the publisher's trace and runs the fan-out
func (c *FanoutConsumer) HandleMsg(msg *nats.Msg) {
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), propagation.HeaderCarrier(msg.Header))
	_ = c.Handle(ctx, msg.Data)
}

// Handle decodes one event and delivers it. Malformed events are dropped.
func (c *FanoutConsumer) Handle(ctx context.Context, data []byte) error {
	ctx, span := telemetry.StartSpan(ctx, "broker.FanoutConsumer", trace.WithSpanKind(trace.SpanKindConsumer))
	ev, err := decodePostCreated(data)
	if err != nil {
		c.logger.Error("Dropping malformed post.created event", zap.Error(err))
		telemetry.EndSpan(span, err)
		return err
	}
	span.SetAttributes(attribute.String("post.id", ev.ID))

	if c.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.jobTimeout)
		defer cancel()
	}
	n, err := c.fanout.OnPostCreated(ctx, ev.Post())
	if err != nil {
		c.logger.Error("Fan-out failed", zap.String("post_id", ev.ID), zap.Error(err))
	} else {
		c.logger.Debug("Fan-out done", zap.String("post_id", ev.ID), zap.Int("delivered", n))
	}
	telemetry.EndSpan(span, err)
	return err
}
