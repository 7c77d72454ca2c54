package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Apurer/worktrack/internal/domains/cases/domain"
	"github.com/Apurer/worktrack/internal/domains/cases/ports"
	sla "github.com/Apurer/worktrack/internal/domains/sla/domain"
	"github.com/Apurer/worktrack/internal/shared/projection"
)

const (
	CasesTable       = "support_cases"
	CasesShadowTable = "support_cases_shadow"
)

var (
	_ ports.RebuildableStore = (*Store)(nil)
	_ ports.ShadowStore      = (*shadowStore)(nil)
)

// Store persists support cases in PostgreSQL using GORM.
type Store struct {
	db    *gorm.DB
	table string
}

// NewStore wires the live table. Caller manages DB lifecycle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, table: CasesTable}
}

// CaseRecord maps the support case projection.
type CaseRecord struct {
	ID                    string         `gorm:"primaryKey;column:id;size:128"`
	Subject               string         `gorm:"column:subject"`
	CustomerID            string         `gorm:"column:customer_id;size:128"`
	Severity              string         `gorm:"column:severity;type:varchar(8)"`
	Category              string         `gorm:"column:category;size:64"`
	Status                string         `gorm:"column:status;type:varchar(16)"`
	OpenedAt              time.Time      `gorm:"column:opened_at"`
	FirstRespondedAt      *time.Time     `gorm:"column:first_responded_at"`
	ResponderID           string         `gorm:"column:responder_id"`
	LastCustomerReplyAt   *time.Time     `gorm:"column:last_customer_reply_at"`
	LastMessageID         string         `gorm:"column:last_message_id"`
	MessageIDs            pq.StringArray `gorm:"column:message_ids;type:text[]"`
	ReplyCount            int            `gorm:"column:reply_count"`
	ResolvedAt            *time.Time     `gorm:"column:resolved_at"`
	Resolution            string         `gorm:"column:resolution"`
	ReopenCount           int            `gorm:"column:reopen_count"`
	ClosedAt              *time.Time     `gorm:"column:closed_at"`
	ResolutionClockStart  time.Time      `gorm:"column:resolution_clock_start"`
	FirstResponseDueAt    time.Time      `gorm:"column:first_response_due_at"`
	ResolutionDueAt       time.Time      `gorm:"column:resolution_due_at"`
	FirstResponseBreached bool           `gorm:"column:first_response_breached"`
	ResolutionBreached    bool           `gorm:"column:resolution_breached"`
	UpdatedAt             time.Time      `gorm:"column:updated_at;autoUpdateTime:false"`
	LastEventSequence     int64          `gorm:"column:last_event_sequence;not null"`
}

func (CaseRecord) TableName() string { return CasesTable }

func (s *Store) Get(ctx context.Context, id string) (*domain.Case, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	var record CaseRecord
	if err := s.db.WithContext(ctx).Table(s.table).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}
	c := record.toDomain()
	return &c, nil
}

// Save upserts the row only when it advances last_event_sequence.
func (s *Store) Save(ctx context.Context, c domain.Case) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	record := toRecord(c)
	result := s.db.WithContext(ctx).Table(s.table).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: fmt.Sprintf("%s.last_event_sequence < EXCLUDED.last_event_sequence", s.table)},
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

func (s *Store) ListOpen(ctx context.Context) ([]domain.Case, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	var records []CaseRecord
	if err := s.db.WithContext(ctx).Table(s.table).
		Where("status = ?", string(domain.StatusOpen)).
		Order("id ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Case, 0, len(records))
	for i := range records {
		out = append(out, records[i].toDomain())
	}
	return out, nil
}

// Shadow truncates the shadow table and returns a store writing to it.
func (s *Store) Shadow(ctx context.Context) (ports.ShadowStore, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Exec("TRUNCATE " + CasesShadowTable).Error; err != nil {
		return nil, err
	}
	return &shadowStore{Store: &Store{db: s.db, table: CasesShadowTable}, live: s}, nil
}

func (s *Store) ensureDB() error {
	if s == nil || s.db == nil {
		return errors.New("postgres case store not configured")
	}
	return nil
}

type shadowStore struct {
	*Store
	live *Store
}

func (sh *shadowStore) Promote(ctx context.Context) error {
	return sh.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM " + sh.live.table).Error; err != nil {
			return err
		}
		if err := tx.Exec(fmt.Sprintf("INSERT INTO %s SELECT * FROM %s", sh.live.table, sh.table)).Error; err != nil {
			return err
		}
		return tx.Exec("TRUNCATE " + sh.table).Error
	})
}

func (sh *shadowStore) Discard(ctx context.Context) error {
	return sh.db.WithContext(ctx).Exec("TRUNCATE " + sh.table).Error
}

func toRecord(c domain.Case) CaseRecord {
	return CaseRecord{
		ID:                    c.ID,
		Subject:               c.Subject,
		CustomerID:            c.CustomerID,
		Severity:              string(c.Severity),
		Category:              c.Category,
		Status:                string(c.Status),
		OpenedAt:              c.OpenedAt,
		FirstRespondedAt:      c.FirstRespondedAt,
		ResponderID:           c.ResponderID,
		LastCustomerReplyAt:   c.LastCustomerReplyAt,
		LastMessageID:         c.LastMessageID,
		MessageIDs:            append(pq.StringArray{}, c.MessageIDs...),
		ReplyCount:            c.ReplyCount,
		ResolvedAt:            c.ResolvedAt,
		Resolution:            c.Resolution,
		ReopenCount:           c.ReopenCount,
		ClosedAt:              c.ClosedAt,
		ResolutionClockStart:  c.ResolutionClockStart,
		FirstResponseDueAt:    c.Deadlines.FirstResponseDueAt,
		ResolutionDueAt:       c.Deadlines.ResolutionDueAt,
		FirstResponseBreached: c.Breaches.FirstResponseBreached,
		ResolutionBreached:    c.Breaches.ResolutionBreached,
		UpdatedAt:             c.UpdatedAt,
		LastEventSequence:     c.LastEventSequence,
	}
}

func (r CaseRecord) toDomain() domain.Case {
	return domain.Case{
		ID:                   r.ID,
		Subject:              r.Subject,
		CustomerID:           r.CustomerID,
		Severity:             sla.Severity(r.Severity),
		Category:             r.Category,
		Status:               domain.Status(r.Status),
		OpenedAt:             r.OpenedAt.UTC(),
		FirstRespondedAt:     utcPtr(r.FirstRespondedAt),
		ResponderID:          r.ResponderID,
		LastCustomerReplyAt:  utcPtr(r.LastCustomerReplyAt),
		LastMessageID:        r.LastMessageID,
		MessageIDs:           append([]string(nil), r.MessageIDs...),
		ReplyCount:           r.ReplyCount,
		ResolvedAt:           utcPtr(r.ResolvedAt),
		Resolution:           r.Resolution,
		ReopenCount:          r.ReopenCount,
		ClosedAt:             utcPtr(r.ClosedAt),
		ResolutionClockStart: r.ResolutionClockStart.UTC(),
		Deadlines: sla.Deadlines{
			FirstResponseDueAt: r.FirstResponseDueAt.UTC(),
			ResolutionDueAt:    r.ResolutionDueAt.UTC(),
		},
		Breaches: sla.Flags{
			FirstResponseBreached: r.FirstResponseBreached,
			ResolutionBreached:    r.ResolutionBreached,
		},
		UpdatedAt:         r.UpdatedAt.UTC(),
		LastEventSequence: r.LastEventSequence,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
