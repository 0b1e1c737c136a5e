package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"sold-crawler/pkg/models"
)

// natsHeaderCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *natsHeaderCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// NATSSink publishes every row as a JSON message on one subject.
type NATSSink struct {
	nc      *nats.Conn
	subject string
	ctx     context.Context
	timeout time.Duration
}

// NewNATSSink connects to url. ctx is the parent for publish spans of rows
// that carry no region trace.
func NewNATSSink(ctx context.Context, url, subject string) (*NATSSink, error) {
	nc, err := nats.Connect(url, nats.Name("sold-crawler"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return newNATSSink(ctx, nc, subject), nil
}

func newNATSSink(ctx context.Context, nc *nats.Conn, subject string) *NATSSink {
	return &NATSSink{nc: nc, subject: subject, ctx: ctx, timeout: 5 * time.Second}
}

func (s *NATSSink) Save(batch []models.Row) error {
	if len(batch) == 0 {
		return nil
	}
	for _, row := range batch {
		if err := s.publish(row); err != nil {
			return fmt.Errorf("publish property %d: %w", row.PropertyID, err)
		}
	}
	return s.nc.FlushTimeout(s.timeout)
}

// publish sends one row in a producer span that continues the row's region
// fetch trace when it has one.
func (s *NATSSink) publish(row models.Row) error {
	data, err := json.Marshal(row)
	if err != nil {
		return err
	}

	ctx := s.ctx
	if row.TraceParent != "" {
		ctx = propagation.TraceContext{}.Extract(ctx, propagation.MapCarrier{"traceparent": row.TraceParent})
	}
	ctx, span := otel.Tracer("sold-crawler/internal/storage").Start(ctx, "nats.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", s.subject),
			attribute.Int64("property.id", row.PropertyID),
		))
	defer span.End()

	msg := &nats.Msg{
		Subject: s.subject,
		Data:    data,
	}
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
	if err := s.nc.PublishMsg(msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return err
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (s *NATSSink) Close() error {
	return s.nc.Drain()
}
