package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	// IngestSubject carries ingest jobs awaiting hashing.
	IngestSubject = "imagehash.ingest"
	// ConsumerGroup load-balances ingest jobs across workers.
	ConsumerGroup  = "imagehash-workers"
	handlerTimeout = 60 * time.Second
	drainTimeout   = 5 * time.Second
)

// IngestMessage represents the work that must be executed by the async worker.
type IngestMessage struct {
	JobID            string `json:"job_id"`
	RawPath          string `json:"raw_path"`
	SizeBytes        int64  `json:"size_bytes"`
	Width            int    `json:"width"`
	Height           int    `json:"height"`
	OriginalFilename string `json:"original_filename"`
	ContentType      string `json:"content_type"`
	Checksum         string `json:"checksum"`
}

// Handler processes one ingest message.
type Handler func(context.Context, IngestMessage) error

// NATSQueue encapsulates the connection and subjects used for ingest jobs.
type NATSQueue struct {
	conn    *nats.Conn
	logger  *zap.Logger
	subject string
	group   string
}

// NewNATSQueue dials a NATS cluster and prepares the ingest subject.
func NewNATSQueue(url string, logger *zap.Logger) (*NATSQueue, error) {
	if url == "" {
		return nil, errors.New("queue: NATS URL is empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := nats.Connect(url,
		nats.Name("imagehash-api"),
		nats.ReconnectBufSize(2*1024*1024),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("queue: connect: %w", err)
	}
	return &NATSQueue{conn: conn, logger: logger, subject: IngestSubject, group: ConsumerGroup}, nil
}

// Close shuts down the NATS connection.
func (q *NATSQueue) Close() {
	if q.conn != nil && !q.conn.IsClosed() {
		q.conn.Drain()
		q.conn.Close()
	}
}

// Connected reports whether the connection is currently usable.
func (q *NATSQueue) Connected() bool {
	return q.conn != nil && q.conn.IsConnected()
}

// PublishIngest sends a message to the queue with standard JSON encoding.
func (q *NATSQueue) PublishIngest(ctx context.Context, msg IngestMessage) error {
	if msg.JobID == "" {
		return errors.New("queue: job id is empty")
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return q.conn.PublishMsg(&nats.Msg{
		Subject: q.subject,
		Data:    payload,
	})
}

// ConsumeIngest registers handler on the ingest queue group and blocks until
// ctx is cancelled, then drains the subscription.
func (q *NATSQueue) ConsumeIngest(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.New("queue: handler is nil")
	}
	sub, err := q.conn.QueueSubscribe(q.subject, q.group, func(msg *nats.Msg) {
		dispatch(ctx, q.logger, msg.Data, handler)
	})
	if err != nil {
		return err
	}
	if err := q.conn.Flush(); err != nil {
		return err
	}
	q.logger.Info("nats queue consumer registered",
		zap.String("subject", q.subject),
		zap.String("group", q.group),
	)
	<-ctx.Done()
	done := make(chan struct{})
	go func() {
		if err := sub.Drain(); err != nil {
			q.logger.Warn("failed to drain nats subscription", zap.Error(err))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(drainTimeout):
		q.logger.Warn("timeout draining nats subscription")
	}
	return nil
}

// dispatch decodes one payload and runs handler under the per-message
// timeout. Malformed payloads are logged and dropped.
func dispatch(ctx context.Context, logger *zap.Logger, data []byte, handler Handler) {
	var payload IngestMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		logger.Warn("discarding malformed ingest message", zap.Error(err))
		return
	}
	if payload.JobID == "" {
		logger.Warn("discarding ingest message without job id")
		return
	}
	hCtx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()
	if err := handler(hCtx, payload); err != nil {
		logger.Error("ingest handler failed", zap.String("job_id", payload.JobID), zap.Error(err))
	}
}
