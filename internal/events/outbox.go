package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paasforest/proconnect-access/pkg/logging"
)

// OutboxEntry represents a pending event.
type OutboxEntry struct {
	ID        uuid.UUID
	Aggregate string
	Type      string
	Envelope  Envelope
	CreatedAt time.Time
}

// DeliveryHandler emits events to downstream transports.
type DeliveryHandler interface {
	Handle(ctx context.Context, entry OutboxEntry) error
}

// Publisher records a domain event for delivery after the state change commits.
type Publisher interface {
	Publish(ctx context.Context, aggregate string, evt CanonicalEvent) error
}

type outboxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// OutboxStore persists events for reliable delivery.
type OutboxStore struct {
	db outboxDB
}

func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &OutboxStore{db: pool}
}

func newOutboxStoreWithExec(db outboxDB) *OutboxStore {
	if db == nil {
		panic("events: exec required")
	}
	return &OutboxStore{db: db}
}

// Publish appends evt to the outbox.
func (s *OutboxStore) Publish(ctx context.Context, aggregate string, evt CanonicalEvent) error {
	_, err := AppendCanonicalEvent(ctx, s.db, aggregate, evt)
	return err
}

func (s *OutboxStore) FetchPending(ctx context.Context, limit int32) ([]OutboxEntry, error) {
	query := `
		SELECT id, aggregate, event_type, payload, created_at
		FROM outbox
		WHERE delivered_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("events: fetch pending: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var entry OutboxEntry
		var payload []byte
		if err := rows.Scan(&entry.ID, &entry.Aggregate, &entry.Type, &payload, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("events: scan outbox: %w", err)
		}
		if err := json.Unmarshal(payload, &entry.Envelope); err != nil {
			return nil, fmt.Errorf("events: decode outbox envelope %s: %w", entry.ID, err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *OutboxStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE outbox
		SET delivered_at = now()
		WHERE id = $1 AND delivered_at IS NULL
	`
	ct, err := s.db.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("events: mark delivered: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// Deliverer polls the outbox and invokes the handler. Failed entries stay
// pending and are retried on the next tick.
type Deliverer struct {
	store     *OutboxStore
	handler   DeliveryHandler
	logger    *logging.Logger
	batchSize int32
	interval  time.Duration
}

func NewDeliverer(store *OutboxStore, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		store:     store,
		handler:   handler,
		logger:    logger,
		batchSize: 25,
		interval:  2 * time.Second,
	}
}

func (d *Deliverer) WithBatchSize(size int32) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

func (d *Deliverer) Start(ctx context.Context) {
	if d.store == nil || d.handler == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

func (d *Deliverer) drain(ctx context.Context) {
	entries, err := d.store.FetchPending(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("outbox fetch failed", "error", err)
		return
	}
	for _, entry := range entries {
		if err := d.handler.Handle(ctx, entry); err != nil {
			d.logger.Error("outbox delivery failed", "error", err, "event_id", entry.ID, "type", entry.Type)
			continue
		}
		if ok, err := d.store.MarkDelivered(ctx, entry.ID); err != nil {
			d.logger.Error("failed to mark outbox delivered", "error", err, "event_id", entry.ID)
		} else if ok {
			d.logger.Debug("outbox delivered", "event_id", entry.ID, "type", entry.Type)
		}
	}
}

// InlinePublisher hands events straight to a handler. It backs the in-memory
// wiring where there is no outbox table; delivery failures are only logged.
type InlinePublisher struct {
	handler DeliveryHandler
	logger  *logging.Logger
}

func NewInlinePublisher(handler DeliveryHandler, logger *logging.Logger) *InlinePublisher {
	if logger == nil {
		logger = logging.Default()
	}
	return &InlinePublisher{handler: handler, logger: logger}
}

func (p *InlinePublisher) Publish(ctx context.Context, aggregate string, evt CanonicalEvent) error {
	env, err := NewEnvelope(aggregate, evt)
	if err != nil {
		return err
	}
	if p.handler == nil {
		return nil
	}
	entry := OutboxEntry{
		ID:        env.EventID,
		Aggregate: env.Aggregate,
		Type:      env.EventType,
		Envelope:  env,
		CreatedAt: time.UnixMicro(env.TimestampMicros).UTC(),
	}
	if err := p.handler.Handle(ctx, entry); err != nil {
		p.logger.Warn("inline event delivery failed", "error", err, "event_id", entry.ID, "type", entry.Type)
	}
	return nil
}
