package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Apurer/worktrack/internal/domains/workitems/domain"
	"github.com/Apurer/worktrack/internal/domains/workitems/ports"
	"github.com/Apurer/worktrack/internal/shared/projection"
)

const (
	ItemsTable        = "work_items"
	QueuesTable       = "work_queues"
	ItemsShadowTable  = "work_items_shadow"
	QueuesShadowTable = "work_queues_shadow"
)

var (
	_ ports.RebuildableStore = (*Store)(nil)
	_ ports.ShadowStore      = (*shadowStore)(nil)
)

// Store persists the work item read models in PostgreSQL using GORM.
type Store struct {
	db     *gorm.DB
	items  string
	queues string
}

// NewStore wires the live tables. Caller manages DB lifecycle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, items: ItemsTable, queues: QueuesTable}
}

// SignalRecord is the JSON shape of an attached signal.
type SignalRecord struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Delta      int       `json:"delta"`
	AttachedAt time.Time `json:"attachedAt"`
}

// WorkItemRecord maps the detail projection. Priority is written from the
// score on every save.
type WorkItemRecord struct {
	ID                string         `gorm:"primaryKey;column:id;size:128"`
	Title             string         `gorm:"column:title"`
	UserID            string         `gorm:"column:user_id;size:128"`
	Lens              string         `gorm:"column:lens;size:64"`
	QueueID           string         `gorm:"column:queue_id;size:128"`
	Score             int            `gorm:"column:score"`
	Priority          string         `gorm:"column:priority;type:varchar(16)"`
	Status            string         `gorm:"column:status;type:varchar(16)"`
	SignalIDs         pq.StringArray `gorm:"column:signal_ids;type:text[]"`
	Signals           []SignalRecord `gorm:"column:signals;serializer:json"`
	SnoozedUntil      *time.Time     `gorm:"column:snoozed_until"`
	MeetingID         string         `gorm:"column:meeting_id"`
	HasBookedMeeting  bool           `gorm:"column:has_booked_meeting"`
	LastTrigger       string         `gorm:"column:last_trigger"`
	NotificationIDs   pq.StringArray `gorm:"column:notification_ids;type:text[]"`
	ResolvedAt        *time.Time     `gorm:"column:resolved_at"`
	ResolutionReason  string         `gorm:"column:resolution_reason"`
	ResolvedBy        string         `gorm:"column:resolved_by"`
	CreatedAt         time.Time      `gorm:"column:created_at;autoCreateTime:false"`
	UpdatedAt         time.Time      `gorm:"column:updated_at;autoUpdateTime:false"`
	LastEventSequence int64          `gorm:"column:last_event_sequence;not null"`
}

func (WorkItemRecord) TableName() string { return ItemsTable }

// QueueRecord maps the per-queue projection.
type QueueRecord struct {
	UserID             string         `gorm:"primaryKey;column:user_id;size:128"`
	Lens               string         `gorm:"primaryKey;column:lens;size:64"`
	QueueID            string         `gorm:"primaryKey;column:queue_id;size:128"`
	CriticalCount      int            `gorm:"column:critical_count"`
	HighCount          int            `gorm:"column:high_count"`
	MediumCount        int            `gorm:"column:medium_count"`
	LowCount           int            `gorm:"column:low_count"`
	OpenCount          int            `gorm:"column:open_count"`
	SnoozedCount       int            `gorm:"column:snoozed_count"`
	TopScore           int            `gorm:"column:top_score"`
	ItemIDs            pq.StringArray `gorm:"column:item_ids;type:text[]"`
	LastGlobalSequence int64          `gorm:"column:last_global_sequence"`
	UpdatedAt          time.Time      `gorm:"column:updated_at;autoUpdateTime:false"`
}

func (QueueRecord) TableName() string { return QueuesTable }

func (s *Store) Get(ctx context.Context, id string) (*domain.WorkItem, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	var record WorkItemRecord
	if err := s.db.WithContext(ctx).Table(s.items).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}
	item := record.toDomain()
	return &item, nil
}

// Save upserts the row only when it advances last_event_sequence.
func (s *Store) Save(ctx context.Context, item domain.WorkItem) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	record := toItemRecord(item)
	result := s.db.WithContext(ctx).Table(s.items).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: fmt.Sprintf("%s.last_event_sequence < EXCLUDED.last_event_sequence", s.items)},
			}},
		}).Create(&record)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return projection.ErrStaleWrite
	}
	return nil
}

func (s *Store) ListByQueue(ctx context.Context, key domain.QueueKey) ([]domain.WorkItem, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	var records []WorkItemRecord
	if err := s.db.WithContext(ctx).Table(s.items).
		Where("user_id = ? AND lens = ? AND queue_id = ?", key.UserID, key.Lens, key.QueueID).
		Order("id ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	items := make([]domain.WorkItem, 0, len(records))
	for i := range records {
		items = append(items, records[i].toDomain())
	}
	return items, nil
}

func (s *Store) GetQueue(ctx context.Context, key domain.QueueKey) (*domain.QueueSummary, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	var record QueueRecord
	if err := s.db.WithContext(ctx).Table(s.queues).
		First(&record, "user_id = ? AND lens = ? AND queue_id = ?", key.UserID, key.Lens, key.QueueID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ports.ErrQueueNotFound
		}
		return nil, err
	}
	summary := record.toDomain()
	return &summary, nil
}

func (s *Store) SaveQueue(ctx context.Context, summary domain.QueueSummary) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	record := toQueueRecord(summary)
	return s.db.WithContext(ctx).Table(s.queues).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "lens"}, {Name: "queue_id"}},
			UpdateAll: true,
		}).Create(&record).Error
}

// Shadow truncates the shadow tables and returns a store writing to them.
func (s *Store) Shadow(ctx context.Context) (ports.ShadowStore, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Exec(fmt.Sprintf("TRUNCATE %s, %s", ItemsShadowTable, QueuesShadowTable)).Error; err != nil {
		return nil, err
	}
	return &shadowStore{
		Store: &Store{db: s.db, items: ItemsShadowTable, queues: QueuesShadowTable},
		live:  s,
	}, nil
}

func (s *Store) ensureDB() error {
	if s == nil || s.db == nil {
		return errors.New("postgres work item store not configured")
	}
	return nil
}

type shadowStore struct {
	*Store
	live *Store
}

// Promote replaces the live rows in one transaction, so readers see either
// the old model or the rebuilt one.
func (sh *shadowStore) Promote(ctx context.Context) error {
	return sh.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, pair := range [][2]string{{sh.live.items, sh.items}, {sh.live.queues, sh.queues}} {
			if err := tx.Exec(fmt.Sprintf("DELETE FROM %s", pair[0])).Error; err != nil {
				return err
			}
			if err := tx.Exec(fmt.Sprintf("INSERT INTO %s SELECT * FROM %s", pair[0], pair[1])).Error; err != nil {
				return err
			}
		}
		return tx.Exec(fmt.Sprintf("TRUNCATE %s, %s", sh.items, sh.queues)).Error
	})
}

func (sh *shadowStore) Discard(ctx context.Context) error {
	return sh.db.WithContext(ctx).Exec(fmt.Sprintf("TRUNCATE %s, %s", sh.items, sh.queues)).Error
}

func toItemRecord(item domain.WorkItem) WorkItemRecord {
	signals := make([]SignalRecord, 0, len(item.Signals))
	ids := make(pq.StringArray, 0, len(item.Signals))
	for _, sig := range item.Signals {
		signals = append(signals, SignalRecord{ID: sig.ID, Type: sig.Type, Delta: sig.Delta, AttachedAt: sig.AttachedAt})
		ids = append(ids, sig.ID)
	}
	return WorkItemRecord{
		ID:                item.ID,
		Title:             item.Title,
		UserID:            item.Queue.UserID,
		Lens:              item.Queue.Lens,
		QueueID:           item.Queue.QueueID,
		Score:             item.Score,
		Priority:          string(item.Priority()),
		Status:            string(item.Status),
		SignalIDs:         ids,
		Signals:           signals,
		SnoozedUntil:      item.SnoozedUntil,
		MeetingID:         item.MeetingID,
		HasBookedMeeting:  item.HasBookedMeeting,
		LastTrigger:       item.LastTrigger,
		NotificationIDs:   append(pq.StringArray{}, item.NotificationIDs...),
		ResolvedAt:        item.ResolvedAt,
		ResolutionReason:  item.ResolutionReason,
		ResolvedBy:        item.ResolvedBy,
		CreatedAt:         item.CreatedAt,
		UpdatedAt:         item.UpdatedAt,
		LastEventSequence: item.LastEventSequence,
	}
}

func (r WorkItemRecord) toDomain() domain.WorkItem {
	var signals []domain.Signal
	for _, sig := range r.Signals {
		signals = append(signals, domain.Signal{ID: sig.ID, Type: sig.Type, Delta: sig.Delta, AttachedAt: sig.AttachedAt.UTC()})
	}
	return domain.WorkItem{
		ID:                r.ID,
		Title:             r.Title,
		Queue:             domain.QueueKey{UserID: r.UserID, Lens: r.Lens, QueueID: r.QueueID},
		Score:             r.Score,
		Status:            domain.Status(r.Status),
		Signals:           signals,
		SnoozedUntil:      utcPtr(r.SnoozedUntil),
		MeetingID:         r.MeetingID,
		HasBookedMeeting:  r.HasBookedMeeting,
		LastTrigger:       r.LastTrigger,
		NotificationIDs:   append([]string(nil), r.NotificationIDs...),
		ResolvedAt:        utcPtr(r.ResolvedAt),
		ResolutionReason:  r.ResolutionReason,
		ResolvedBy:        r.ResolvedBy,
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
		LastEventSequence: r.LastEventSequence,
	}
}

func toQueueRecord(q domain.QueueSummary) QueueRecord {
	return QueueRecord{
		UserID:             q.Key.UserID,
		Lens:               q.Key.Lens,
		QueueID:            q.Key.QueueID,
		CriticalCount:      q.Counts.Critical,
		HighCount:          q.Counts.High,
		MediumCount:        q.Counts.Medium,
		LowCount:           q.Counts.Low,
		OpenCount:          q.OpenCount,
		SnoozedCount:       q.SnoozedCount,
		TopScore:           q.TopScore,
		ItemIDs:            append(pq.StringArray{}, q.ItemIDs...),
		LastGlobalSequence: q.LastGlobalSequence,
		UpdatedAt:          q.UpdatedAt,
	}
}

func (r QueueRecord) toDomain() domain.QueueSummary {
	return domain.QueueSummary{
		Key: domain.QueueKey{UserID: r.UserID, Lens: r.Lens, QueueID: r.QueueID},
		Counts: domain.TierCounts{
			Critical: r.CriticalCount,
			High:     r.HighCount,
			Medium:   r.MediumCount,
			Low:      r.LowCount,
		},
		OpenCount:          r.OpenCount,
		SnoozedCount:       r.SnoozedCount,
		TopScore:           r.TopScore,
		ItemIDs:            append([]string{}, r.ItemIDs...),
		LastGlobalSequence: r.LastGlobalSequence,
		UpdatedAt:          r.UpdatedAt.UTC(),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
