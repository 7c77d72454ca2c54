package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Apurer/worktrack/internal/domains/projections/ports"
)

var _ ports.CheckpointStore = (*CheckpointStore)(nil)

// CheckpointStore persists projector checkpoints in PostgreSQL.
type CheckpointStore struct {
	db *gorm.DB
}

// NewCheckpointStore wires a PostgreSQL-backed checkpoint store.
func NewCheckpointStore(db *gorm.DB) *CheckpointStore {
	return &CheckpointStore{db: db}
}

// CheckpointRecord maps a checkpoint to the projector_checkpoints table.
type CheckpointRecord struct {
	ProjectorName               string     `gorm:"primaryKey;column:projector_name;size:64"`
	LastProcessedGlobalSequence int64      `gorm:"column:last_processed_global_sequence;not null;default:0"`
	Status                      string     `gorm:"column:status;type:varchar(16);not null"`
	EventsProcessedCount        int64      `gorm:"column:events_processed_count;not null;default:0"`
	ErrorsCount                 int64      `gorm:"column:errors_count;not null;default:0"`
	LastError                   string     `gorm:"column:last_error;type:text"`
	LastProcessedAt             *time.Time `gorm:"column:last_processed_at"`
	Generation                  int64      `gorm:"column:generation;not null;default:0"`
	UpdatedAt                   time.Time  `gorm:"column:updated_at"`
}

const CheckpointsTable = "projector_checkpoints"

func (CheckpointRecord) TableName() string { return CheckpointsTable }

// Load returns the checkpoint or nil when absent.
func (s *CheckpointStore) Load(ctx context.Context, name string) (*ports.Checkpoint, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	var record CheckpointRecord
	if err := s.db.WithContext(ctx).First(&record, "projector_name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	cp := record.toPort()
	return &cp, nil
}

// Save upserts the checkpoint row. An existing row is only updated while
// its generation matches cp.Generation.
func (s *CheckpointStore) Save(ctx context.Context, cp ports.Checkpoint) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	record := toCheckpointRecord(cp)
	updates := progressUpdates(record)
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "projector_name"}},
			DoUpdates: clause.Assignments(updates),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: CheckpointsTable + ".generation = EXCLUDED.generation"},
			}},
		}).Create(&record)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s at generation %d", ports.ErrCheckpointMoved, cp.ProjectorName, cp.Generation)
	}
	return nil
}

// Reset writes a rebuilt checkpoint in one statement: the generation is
// incremented and a paused status survives.
func (s *CheckpointStore) Reset(ctx context.Context, cp ports.Checkpoint) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	record := toCheckpointRecord(cp)
	record.Generation = 1
	updates := progressUpdates(record)
	updates["generation"] = gorm.Expr(CheckpointsTable + ".generation + 1")
	updates["status"] = gorm.Expr(
		"CASE WHEN "+CheckpointsTable+".status = ? THEN "+CheckpointsTable+".status ELSE EXCLUDED.status END",
		string(ports.StatusPaused))
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "projector_name"}},
			DoUpdates: clause.Assignments(updates),
		}).Create(&record).Error
}

func progressUpdates(record CheckpointRecord) map[string]any {
	return map[string]any{
		"last_processed_global_sequence": record.LastProcessedGlobalSequence,
		"status":                         record.Status,
		"events_processed_count":         record.EventsProcessedCount,
		"errors_count":                   record.ErrorsCount,
		"last_error":                     record.LastError,
		"last_processed_at":              record.LastProcessedAt,
		"updated_at":                     gorm.Expr("NOW()"),
	}
}

// List returns all checkpoints ordered by projector name.
func (s *CheckpointStore) List(ctx context.Context) ([]ports.Checkpoint, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	var records []CheckpointRecord
	if err := s.db.WithContext(ctx).Order("projector_name ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]ports.Checkpoint, 0, len(records))
	for i := range records {
		out = append(out, records[i].toPort())
	}
	return out, nil
}

func (s *CheckpointStore) ensureDB() error {
	if s == nil || s.db == nil {
		return errors.New("postgres checkpoint store not configured")
	}
	return nil
}

func toCheckpointRecord(cp ports.Checkpoint) CheckpointRecord {
	return CheckpointRecord{
		ProjectorName:               cp.ProjectorName,
		LastProcessedGlobalSequence: cp.LastProcessedGlobalSequence,
		Status:                      string(cp.Status),
		EventsProcessedCount:        cp.EventsProcessedCount,
		ErrorsCount:                 cp.ErrorsCount,
		LastError:                   cp.LastError,
		LastProcessedAt:             cp.LastProcessedAt,
		Generation:                  cp.Generation,
	}
}

func (r CheckpointRecord) toPort() ports.Checkpoint {
	cp := ports.Checkpoint{
		ProjectorName:               r.ProjectorName,
		LastProcessedGlobalSequence: r.LastProcessedGlobalSequence,
		Status:                      ports.Status(r.Status),
		EventsProcessedCount:        r.EventsProcessedCount,
		ErrorsCount:                 r.ErrorsCount,
		LastError:                   r.LastError,
		Generation:                  r.Generation,
	}
	if r.LastProcessedAt != nil {
		at := r.LastProcessedAt.UTC()
		cp.LastProcessedAt = &at
	}
	return cp
}
