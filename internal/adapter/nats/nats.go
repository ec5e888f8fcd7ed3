// Package nats implements the message queue port using NATS JetStream.
package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/agentrouter/internal/config"
	"github.com/Strob0t/agentrouter/internal/logger"
	"github.com/Strob0t/agentrouter/internal/port/messagequeue"
)

const (
	headerRequestID  = "X-Request-ID"
	headerDispatchID = "X-Dispatch-ID"
	headerRetryCount = "Retry-Count"

	// maxRetries is the number of failed deliveries before a message is
	// moved to its dead-letter subject.
	maxRetries = 3

	dlqSuffix = ".dlq"
)

var _ messagequeue.Queue = (*Queue)(nil)

// Queue implements messagequeue.Queue using NATS JetStream for the event and
// audit streams and core NATS for request/reply.
type Queue struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	stream string
}

// Connect establishes a connection to NATS and ensures the JetStream stream exists.
// Agent request subjects are deliberately not part of the stream so core
// request/reply is not answered by JetStream publish acks.
func Connect(ctx context.Context, cfg config.NATS) (*Queue, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("agentrouter"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.Stream,
		Subjects: []string{messagequeue.SubjectEvents + ".>", messagequeue.SubjectAudit + ".>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", cfg.URL, "stream", cfg.Stream)
	return &Queue{nc: nc, js: js, stream: cfg.Stream}, nil
}

// headersFromCtx copies the correlation IDs of ctx into NATS headers.
func headersFromCtx(ctx context.Context) nats.Header {
	h := nats.Header{}
	if id := logger.RequestID(ctx); id != "" {
		h.Set(headerRequestID, id)
	}
	if id := logger.DispatchID(ctx); id != "" {
		h.Set(headerDispatchID, id)
	}
	return h
}

// ctxFromHeaders restores correlation IDs carried by a message.
func ctxFromHeaders(ctx context.Context, h nats.Header) context.Context {
	if h == nil {
		return ctx
	}
	if id := h.Get(headerRequestID); id != "" {
		ctx = logger.WithRequestID(ctx, id)
	}
	if id := h.Get(headerDispatchID); id != "" {
		ctx = logger.WithDispatchID(ctx, id)
	}
	return ctx
}

// Publish sends a message to the given subject.
func (q *Queue) Publish(ctx context.Context, subject string, data []byte) error {
	msg := &nats.Msg{Subject: subject, Data: data, Header: headersFromCtx(ctx)}
	if _, err := q.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers a handler for new messages on the given subject.
// Messages failing schema validation go straight to the dead-letter subject;
// handler failures are redelivered until maxRetries is reached.
func (q *Queue) Subscribe(ctx context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, q.stream, jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("nats consumer create: %w", err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		q.handle(msg, handler)
	})
	if err != nil {
		return nil, fmt.Errorf("nats consume: %w", err)
	}

	return cons.Stop, nil
}

func (q *Queue) handle(msg jetstream.Msg, handler messagequeue.Handler) {
	subject := msg.Subject()
	ctx := ctxFromHeaders(context.Background(), msg.Headers())

	if err := messagequeue.Validate(subject, msg.Data()); err != nil {
		slog.WarnContext(ctx, "invalid message", "subject", subject, "error", err)
		q.moveToDLQ(ctx, msg)
		return
	}

	if err := handler(ctx, subject, msg.Data()); err != nil {
		if retries := retryCount(msg); retries >= maxRetries {
			slog.ErrorContext(ctx, "message retries exhausted", "subject", subject, "retries", retries, "error", err)
			q.moveToDLQ(ctx, msg)
			return
		}
		slog.WarnContext(ctx, "message handler failed", "subject", subject, "error", err)
		if nakErr := msg.NakWithDelay(time.Second); nakErr != nil {
			slog.Error("nats nak failed", "error", nakErr)
		}
		return
	}
	if ackErr := msg.Ack(); ackErr != nil {
		slog.Error("nats ack failed", "error", ackErr)
	}
}

// retryCount returns how often msg has already failed, taking the larger of
// the Retry-Count header and the redelivery count.
func retryCount(msg jetstream.Msg) int {
	n := 0
	if h := msg.Headers(); h != nil {
		if v, err := strconv.Atoi(h.Get(headerRetryCount)); err == nil {
			n = v
		}
	}
	if meta, err := msg.Metadata(); err == nil && int(meta.NumDelivered)-1 > n {
		n = int(meta.NumDelivered) - 1
	}
	return n
}

// moveToDLQ republishes msg on <subject>.dlq and acks the original.
func (q *Queue) moveToDLQ(ctx context.Context, msg jetstream.Msg) {
	dlq := &nats.Msg{Subject: msg.Subject() + dlqSuffix, Data: msg.Data(), Header: msg.Headers()}
	if _, err := q.js.PublishMsg(ctx, dlq); err != nil {
		slog.ErrorContext(ctx, "dlq publish failed", "subject", dlq.Subject, "error", err)
		_ = msg.Nak()
		return
	}
	if err := msg.Ack(); err != nil {
		slog.ErrorContext(ctx, "nats ack failed", "error", err)
	}
}

// ErrNoResponders is returned by Request when nobody serves the subject.
var ErrNoResponders = errors.New("nats: no responders")

// Request sends data on subject over core NATS and waits for one reply.
func (q *Queue) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	msg := &nats.Msg{Subject: subject, Data: data, Header: headersFromCtx(ctx)}
	reply, err := q.nc.RequestMsgWithContext(ctx, msg)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return nil, fmt.Errorf("nats request %s: %w", subject, ErrNoResponders)
		}
		return nil, fmt.Errorf("nats request %s: %w", subject, err)
	}
	return reply.Data, nil
}

// KeyValue returns the JetStream KV bucket with the given name, creating it
// with the given TTL if needed.
func (q *Queue) KeyValue(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := q.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("nats kv %s: %w", bucket, err)
	}
	return kv, nil
}

// Drain gracefully drains subscriptions and closes the connection.
func (q *Queue) Drain() error {
	return q.nc.Drain()
}

// Close shuts down the NATS connection.
func (q *Queue) Close() error {
	q.nc.Close()
	return nil
}

// IsConnected reports whether the NATS connection is up.
func (q *Queue) IsConnected() bool {
	return q.nc.IsConnected()
}
