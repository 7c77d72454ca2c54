package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Apurer/worktrack/internal/domains/webhooks/ports"
)

var _ ports.ClaimStore = (*ClaimStore)(nil)

// ClaimStore inserts claim rows with ON CONFLICT DO NOTHING; the insert
// that affects a row wins.
type ClaimStore struct {
	db *gorm.DB
}

func NewClaimStore(db *gorm.DB) *ClaimStore {
	return &ClaimStore{db: db}
}

// ClaimRecord is one side effect claim.
type ClaimRecord struct {
	AggregateID       string    `gorm:"primaryKey;column:aggregate_id;size:128"`
	ExternalMessageID string    `gorm:"primaryKey;column:external_message_id;size:255"`
	ClaimedAt         time.Time `gorm:"column:claimed_at"`
}

func (ClaimRecord) TableName() string { return "side_effect_claims" }

func (s *ClaimStore) Claim(ctx context.Context, aggregateID, externalMessageID string) (bool, error) {
	if err := s.ensureDB(); err != nil {
		return false, err
	}
	record := ClaimRecord{AggregateID: aggregateID, ExternalMessageID: externalMessageID, ClaimedAt: time.Now().UTC()}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&record)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *ClaimStore) Release(ctx context.Context, aggregateID, externalMessageID string) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Where("aggregate_id = ? AND external_message_id = ?", aggregateID, externalMessageID).
		Delete(&ClaimRecord{}).Error
}

func (s *ClaimStore) ensureDB() error {
	if s == nil || s.db == nil {
		return errors.New("postgres claim store not configured")
	}
	return nil
}
