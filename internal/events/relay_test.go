package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront/internal/outbox"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memOutbox struct {
	mu      sync.Mutex
	records []outbox.Record
	sent    []int64
}

func (m *memOutbox) FetchPending(ctx context.Context, limit int) ([]outbox.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []outbox.Record
	for _, r := range m.records {
		if r.SentAt == nil && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memOutbox) MarkSent(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for i := range m.records {
		if m.records[i].ID == id {
			m.records[i].SentAt = &now
		}
	}
	m.sent = append(m.sent, id)
	return nil
}

type fakePublisher struct {
	mu       sync.Mutex
	msgs     []kafka.Message
	failKey  string
	failures int
}

func (f *fakePublisher) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		if string(m.Key) == f.failKey && f.failures != 0 {
			if f.failures > 0 {
				f.failures--
			}
			return errors.New("leader not available")
		}
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func record(id int64, key string) outbox.Record {
	payload, _ := json.Marshal(map[string]string{"type": outbox.EventOrderCreated})
	return outbox.Record{ID: id, EventID: uuid.New(), Topic: "storefront.orders", Key: key, Payload: payload, CreatedAt: time.Now()}
}

func newTestRelay(store Outbox, pub Publisher) *Relay {
	r := NewRelay(store, pub, nil)
	r.backOff = func() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2) }
	return r
}

func TestRunOncePublishesAndMarksSent(t *testing.T) {
	store := &memOutbox{records: []outbox.Record{record(1, "order-a"), record(2, "order-b")}}
	pub := &fakePublisher{}

	n, err := newTestRelay(store, pub).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 2}, store.sent)

	require.Len(t, pub.msgs, 2)
	assert.Equal(t, "storefront.orders", pub.msgs[0].Topic)
	assert.Equal(t, []byte("order-a"), pub.msgs[0].Key)
	assert.Equal(t, "event_id", pub.msgs[0].Headers[0].Key)

	n, err = newTestRelay(store, pub).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRunOnceRetriesTransientFailure(t *testing.T) {
	store := &memOutbox{records: []outbox.Record{record(1, "order-a")}}
	pub := &fakePublisher{failKey: "order-a", failures: 2}

	n, err := newTestRelay(store, pub).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunOnceStopsAtFirstFailure(t *testing.T) {
	store := &memOutbox{records: []outbox.Record{record(1, "order-a"), record(2, "order-b"), record(3, "order-c")}}
	pub := &fakePublisher{failKey: "order-b", failures: -1}

	n, err := newTestRelay(store, pub).RunOnce(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{1}, store.sent)
}

func TestScheduleRejectsBadSpec(t *testing.T) {
	_, err := newTestRelay(&memOutbox{}, &fakePublisher{}).Schedule("every now and then", time.Second)
	assert.Error(t, err)
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, ParseBrokers(" k1:9092, ,k2:9092 "))
	assert.Empty(t, ParseBrokers(""))
}
