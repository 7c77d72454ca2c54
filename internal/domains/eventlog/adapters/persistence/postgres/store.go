package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Apurer/worktrack/internal/domains/eventlog/domain"
	"github.com/Apurer/worktrack/internal/domains/eventlog/ports"
)

var _ ports.EventStore = (*Store)(nil)

// appendLockKey serializes appenders so global sequences become visible in
// commit order and readers never observe a gap that is filled later.
const appendLockKey = 7_340_211

// Store persists the event log in PostgreSQL using GORM.
type Store struct {
	db       *gorm.DB
	notifier ports.AppendNotifier
	now      func() time.Time
}

// Option configures the store.
type Option func(*Store)

// WithNotifier signals n after each committed append.
func WithNotifier(n ports.AppendNotifier) Option {
	return func(s *Store) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithClock overrides the time source used when OccurredAt is zero.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore wires a PostgreSQL-backed event store. Caller manages DB lifecycle.
func NewStore(db *gorm.DB, opts ...Option) *Store {
	s := &Store{db: db, notifier: ports.NopNotifier{}, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EventRecord maps an event to the events table.
type EventRecord struct {
	GlobalSequence    int64     `gorm:"primaryKey;autoIncrement;column:global_sequence"`
	AggregateType     string    `gorm:"column:aggregate_type;type:varchar(32);not null"`
	AggregateID       string    `gorm:"column:aggregate_id;size:128;not null;uniqueIndex:idx_events_aggregate_seq,priority:1"`
	AggregateSequence int64     `gorm:"column:aggregate_sequence;not null;uniqueIndex:idx_events_aggregate_seq,priority:2"`
	EventType         string    `gorm:"column:event_type;type:varchar(64);not null;index"`
	EventData         []byte    `gorm:"column:event_data;type:jsonb;not null"`
	ActorType         string    `gorm:"column:actor_type;type:varchar(16);not null"`
	ActorID           string    `gorm:"column:actor_id;size:128"`
	OccurredAt        time.Time `gorm:"column:occurred_at;not null"`
}

func (EventRecord) TableName() string { return "events" }

// Append inserts all payloads in one transaction.
func (s *Store) Append(ctx context.Context, in ports.AppendInput) ([]domain.Event, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	occurredAt := in.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now().UTC()
	}

	records := make([]EventRecord, 0, len(in.Payloads))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", appendLockKey).Error; err != nil {
			return err
		}

		var head struct {
			Current       int64
			AggregateType string
		}
		if err := tx.Model(&EventRecord{}).
			Select("COALESCE(MAX(aggregate_sequence), 0) AS current, COALESCE(MIN(aggregate_type), '') AS aggregate_type").
			Where("aggregate_id = ?", in.AggregateID).
			Scan(&head).Error; err != nil {
			return err
		}
		if head.Current > 0 && head.AggregateType != string(in.AggregateType) {
			return fmt.Errorf("%w: aggregate %s is a %s", domain.ErrAggregateMismatch, in.AggregateID, head.AggregateType)
		}
		if in.ExpectedSequence != nil && *in.ExpectedSequence != head.Current {
			return fmt.Errorf("%w: aggregate %s expected sequence %d, found %d", ports.ErrConcurrencyConflict, in.AggregateID, *in.ExpectedSequence, head.Current)
		}

		for i, payload := range in.Payloads {
			data, err := domain.EncodePayload(payload)
			if err != nil {
				return err
			}
			records = append(records, EventRecord{
				AggregateType:     string(in.AggregateType),
				AggregateID:       in.AggregateID,
				AggregateSequence: head.Current + int64(i) + 1,
				EventType:         string(payload.EventType()),
				EventData:         data,
				ActorType:         string(in.Actor.Type),
				ActorID:           in.Actor.ID,
				OccurredAt:        occurredAt,
			})
		}
		if err := tx.Create(&records).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: aggregate %s was appended concurrently", ports.ErrConcurrencyConflict, in.AggregateID)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	events := make([]domain.Event, 0, len(records))
	for i := range records {
		events = append(events, domain.Event{
			GlobalSequence:    records[i].GlobalSequence,
			AggregateType:     in.AggregateType,
			AggregateID:       in.AggregateID,
			AggregateSequence: records[i].AggregateSequence,
			Type:              in.Payloads[i].EventType(),
			Data:              in.Payloads[i],
			OccurredAt:        occurredAt,
			Actor:             in.Actor,
		})
	}
	s.notifier.Notify(ctx, events)
	return events, nil
}

// ReadAggregateStream returns events with aggregate_sequence > fromSequence.
func (s *Store) ReadAggregateStream(ctx context.Context, aggregateID string, fromSequence int64) ([]domain.Event, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	var records []EventRecord
	if err := s.db.WithContext(ctx).
		Where("aggregate_id = ? AND aggregate_sequence > ?", aggregateID, fromSequence).
		Order("aggregate_sequence ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return toDomainEvents(records)
}

// ReadGlobalStream returns at most limit events with global_sequence > from.
func (s *Store) ReadGlobalStream(ctx context.Context, fromGlobalSequence int64, limit int) ([]domain.Event, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}
	var records []EventRecord
	if err := s.db.WithContext(ctx).
		Where("global_sequence > ?", fromGlobalSequence).
		Order("global_sequence ASC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return toDomainEvents(records)
}

// LatestGlobalSequence returns the highest committed global sequence.
func (s *Store) LatestGlobalSequence(ctx context.Context) (int64, error) {
	if err := s.ensureDB(); err != nil {
		return 0, err
	}
	var latest int64
	if err := s.db.WithContext(ctx).Model(&EventRecord{}).
		Select("COALESCE(MAX(global_sequence), 0)").
		Scan(&latest).Error; err != nil {
		return 0, err
	}
	return latest, nil
}

func (s *Store) ensureDB() error {
	if s == nil || s.db == nil {
		return errors.New("postgres event store not configured")
	}
	return nil
}

func toDomainEvents(records []EventRecord) ([]domain.Event, error) {
	events := make([]domain.Event, 0, len(records))
	for _, r := range records {
		payload, err := domain.DecodePayload(domain.EventType(r.EventType), r.EventData)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", r.GlobalSequence, err)
		}
		events = append(events, domain.Event{
			GlobalSequence:    r.GlobalSequence,
			AggregateType:     domain.AggregateType(r.AggregateType),
			AggregateID:       r.AggregateID,
			AggregateSequence: r.AggregateSequence,
			Type:              domain.EventType(r.EventType),
			Data:              payload,
			OccurredAt:        r.OccurredAt.UTC(),
			Actor:             domain.Actor{Type: domain.ActorType(r.ActorType), ID: r.ActorID},
		})
	}
	return events, nil
}
