package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/Apurer/worktrack/internal/domains/webhooks/domain"
	"github.com/Apurer/worktrack/internal/domains/webhooks/ports"
)

var _ ports.SideEffectLog = (*SideEffectLog)(nil)

// SideEffectLog persists side effects in PostgreSQL.
type SideEffectLog struct {
	db *gorm.DB
}

func NewSideEffectLog(db *gorm.DB) *SideEffectLog {
	return &SideEffectLog{db: db}
}

// SideEffectRecord maps one side effect row.
type SideEffectRecord struct {
	ID                string     `gorm:"primaryKey;column:id;size:64"`
	AggregateID       string     `gorm:"column:aggregate_id;size:128;index:idx_side_effects_last,priority:1"`
	Kind              string     `gorm:"column:kind;size:32;index:idx_side_effects_last,priority:2"`
	ExternalMessageID string     `gorm:"column:external_message_id;size:255"`
	Recipient         string     `gorm:"column:recipient"`
	Subject           string     `gorm:"column:subject"`
	Status            string     `gorm:"column:status;size:16;index:idx_side_effects_due,priority:1"`
	ScheduledAt       time.Time  `gorm:"column:scheduled_at;index:idx_side_effects_due,priority:2"`
	SentAt            *time.Time `gorm:"column:sent_at"`
	Attempts          int        `gorm:"column:attempts"`
	LastError         string     `gorm:"column:last_error"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime:false"`
}

func (SideEffectRecord) TableName() string { return "side_effects" }

func (l *SideEffectLog) Append(ctx context.Context, effect domain.SideEffect) error {
	if err := l.ensureDB(); err != nil {
		return err
	}
	record := toRecord(effect)
	return l.db.WithContext(ctx).Create(&record).Error
}

func (l *SideEffectLog) Update(ctx context.Context, effect domain.SideEffect) error {
	if err := l.ensureDB(); err != nil {
		return err
	}
	record := toRecord(effect)
	result := l.db.WithContext(ctx).Model(&SideEffectRecord{}).Where("id = ?", effect.ID).
		Select("*").Updates(&record)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (l *SideEffectLog) LastSent(ctx context.Context, aggregateID string, kind domain.Kind) (*domain.SideEffect, error) {
	if err := l.ensureDB(); err != nil {
		return nil, err
	}
	var record SideEffectRecord
	err := l.db.WithContext(ctx).
		Where("aggregate_id = ? AND kind = ? AND status = ?", aggregateID, string(kind), string(domain.StatusSent)).
		Order("sent_at DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	effect := record.toDomain()
	return &effect, nil
}

func (l *SideEffectLog) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.SideEffect, error) {
	if err := l.ensureDB(); err != nil {
		return nil, err
	}
	query := l.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", string(domain.StatusDeferred), now).
		Order("scheduled_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var records []SideEffectRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]domain.SideEffect, 0, len(records))
	for i := range records {
		out = append(out, records[i].toDomain())
	}
	return out, nil
}

func (l *SideEffectLog) ensureDB() error {
	if l == nil || l.db == nil {
		return errors.New("postgres side effect log not configured")
	}
	return nil
}

func toRecord(e domain.SideEffect) SideEffectRecord {
	return SideEffectRecord{
		ID:                e.ID,
		AggregateID:       e.AggregateID,
		Kind:              string(e.Kind),
		ExternalMessageID: e.ExternalMessageID,
		Recipient:         e.Recipient,
		Subject:           e.Subject,
		Status:            string(e.Status),
		ScheduledAt:       e.ScheduledAt,
		SentAt:            e.SentAt,
		Attempts:          e.Attempts,
		LastError:         e.LastError,
		CreatedAt:         e.CreatedAt,
	}
}

func (r SideEffectRecord) toDomain() domain.SideEffect {
	var sentAt *time.Time
	if r.SentAt != nil {
		v := r.SentAt.UTC()
		sentAt = &v
	}
	return domain.SideEffect{
		ID:                r.ID,
		AggregateID:       r.AggregateID,
		Kind:              domain.Kind(r.Kind),
		ExternalMessageID: r.ExternalMessageID,
		Recipient:         r.Recipient,
		Subject:           r.Subject,
		Status:            domain.Status(r.Status),
		ScheduledAt:       r.ScheduledAt.UTC(),
		SentAt:            sentAt,
		Attempts:          r.Attempts,
		LastError:         r.LastError,
		CreatedAt:         r.CreatedAt.UTC(),
	}
}
