package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Bidon15/licensesale/internal/models"
)

// StoredEvent is an event as persisted in the event index.
type StoredEvent struct {
	ID        string           `json:"id"`
	Kind      models.EventKind `json:"kind"`
	Topic     string           `json:"topic"`
	TxName    string           `json:"tx"`
	Payload   json.RawMessage  `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
}

// EventFilter selects events. After is an exclusive event id cursor.
type EventFilter struct {
	Kind  models.EventKind
	After string
	Limit int
}

// DefaultEventLimit caps listings without an explicit limit.
const DefaultEventLimit = 100

// EventRepository reads the event index written by StateRepository.
type EventRepository interface {
	List(ctx context.Context, filter EventFilter) ([]*StoredEvent, error)
}

type eventRepo struct {
	pool *pgxpool.Pool
}

// NewEventRepository creates a new EventRepository instance.
func NewEventRepository(pool *pgxpool.Pool) EventRepository {
	return &eventRepo{pool: pool}
}

// List returns events in id order, which is commit order.
func (r *eventRepo) List(ctx context.Context, filter EventFilter) ([]*StoredEvent, error) {
	limit := filter.Limit
	if limit <= 0 || limit > DefaultEventLimit {
		limit = DefaultEventLimit
	}

	query := `
		SELECT id, kind, topic, tx, payload, created_at
		FROM sale_events
		WHERE ($1 = '' OR kind = $1) AND ($2 = '' OR id > $2)
		ORDER BY id
		LIMIT $3`

	rows, err := r.pool.Query(ctx, query, string(filter.Kind), filter.After, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*StoredEvent
	for rows.Next() {
		var ev StoredEvent
		var kind string
		if err := rows.Scan(&ev.ID, &kind, &ev.Topic, &ev.TxName, &ev.Payload, &ev.Timestamp); err != nil {
			return nil, err
		}
		ev.Kind = models.EventKind(kind)
		events = append(events, &ev)
	}
	return events, rows.Err()
}
