// Package outbox stores domain events in the same transaction as the state
// change that produced them; a relay publishes them afterwards.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderCompensated   = "order.compensated"
)

type Event struct {
	EventID   uuid.UUID      `json:"event_id"`
	Type      string         `json:"type"`
	OrderID   uuid.UUID      `json:"order_id"`
	UserID    uuid.UUID      `json:"user_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Payload   map[string]any `json:"payload,omitempty"`
}

func NewEvent(eventType string, orderID, userID uuid.UUID, payload map[string]any) Event {
	return Event{
		EventID:   uuid.New(),
		Type:      eventType,
		OrderID:   orderID,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
		Payload:   payload,
	}
}

type Record struct {
	ID        int64           `json:"id"`
	EventID   uuid.UUID       `json:"event_id"`
	Topic     string          `json:"topic"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at"`
}

type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Insert stores an event keyed by its order id. Pass the transaction that
// performs the state change.
func Insert(ctx context.Context, q Querier, topic string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal outbox event: %w", err)
	}
	_, err = q.Exec(ctx,
		`INSERT INTO outbox (event_id, topic, key, payload) VALUES ($1, $2, $3, $4)`,
		ev.EventID, topic, ev.OrderID.String(), data,
	)
	if err != nil {
		return fmt.Errorf("insert outbox event %s: %w", ev.Type, err)
	}
	return nil
}

func MarkSent(ctx context.Context, q Querier, id int64) error {
	_, err := q.Exec(ctx, `UPDATE outbox SET sent_at = NOW() WHERE id = $1`, id)
	return err
}

func FetchPending(ctx context.Context, q Querier, limit int) ([]Record, error) {
	rows, err := q.Query(ctx,
		`SELECT id, event_id, topic, key, payload, created_at, sent_at
		FROM outbox WHERE sent_at IS NULL ORDER BY id LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.Topic, &rec.Key, &rec.Payload, &rec.CreatedAt, &rec.SentAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Store binds FetchPending and MarkSent to one connection pool.
type Store struct {
	q Querier
}

func NewStore(q Querier) *Store {
	return &Store{q: q}
}

func (s *Store) FetchPending(ctx context.Context, limit int) ([]Record, error) {
	return FetchPending(ctx, s.q, limit)
}

func (s *Store) MarkSent(ctx context.Context, id int64) error {
	return MarkSent(ctx, s.q, id)
}
