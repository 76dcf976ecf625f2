// Package events publishes outbox records to Kafka.
package events

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"storefront/internal/outbox"

	"github.com/cenkalti/backoff/v4"
	"github.com/robfig/cron/v3"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const defaultBatch = 100

type Outbox interface {
	FetchPending(ctx context.Context, limit int) ([]outbox.Record, error)
	MarkSent(ctx context.Context, id int64) error
}

// Publisher is satisfied by *kafka.Writer.
type Publisher interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

func ParseBrokers(csv string) []string {
	brokers := []string{}
	for _, b := range strings.Split(csv, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// NewWriter returns a writer that hashes on the message key, so every event
// of one order lands in the same partition.
func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
}

type Relay struct {
	store   Outbox
	pub     Publisher
	batch   int
	logger  *zap.Logger
	backOff func() backoff.BackOff

	mu sync.Mutex
}

func NewRelay(store Outbox, pub Publisher, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		store:  store,
		pub:    pub,
		batch:  defaultBatch,
		logger: logger.Named("outbox_relay"),
		backOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			return backoff.WithMaxRetries(b, 3)
		},
	}
}

// RunOnce publishes pending records in id order and stops at the first one
// that cannot be published, so per-order ordering is kept.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.store.FetchPending(ctx, r.batch)
	if err != nil {
		return 0, fmt.Errorf("fetch pending: %w", err)
	}

	sent := 0
	for _, rec := range records {
		msg := kafka.Message{
			Topic: rec.Topic,
			Key:   []byte(rec.Key),
			Value: rec.Payload,
			Time:  rec.CreatedAt,
			Headers: []kafka.Header{
				{Key: "event_id", Value: []byte(rec.EventID.String())},
			},
		}

		publish := func() error {
			return r.pub.WriteMessages(ctx, msg)
		}
		if err := backoff.Retry(publish, backoff.WithContext(r.backOff(), ctx)); err != nil {
			return sent, fmt.Errorf("publish outbox record %d: %w", rec.ID, err)
		}

		if err := r.store.MarkSent(ctx, rec.ID); err != nil {
			return sent, fmt.Errorf("mark outbox record %d sent: %w", rec.ID, err)
		}
		sent++
	}
	return sent, nil
}

// Schedule runs the relay on a cron spec such as "@every 5s". A run that
// is still going when the next one is due is skipped.
func (r *Relay) Schedule(spec string, timeout time.Duration) (*cron.Cron, error) {
	logger := cronLogger{r.logger}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))

	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		n, err := r.RunOnce(ctx)
		if err != nil {
			r.logger.Warn("outbox relay run failed", zap.Int("sent", n), zap.Error(err))
			return
		}
		if n > 0 {
			r.logger.Debug("outbox relay run", zap.Int("sent", n))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule outbox relay %q: %w", spec, err)
	}
	return c, nil
}

type cronLogger struct {
	l *zap.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Sugar().Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
