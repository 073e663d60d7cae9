package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"riskpilot/src/database"
	"riskpilot/src/model"
)

// CooldownRepository persists cooldown counters so that a restart never forgets
// an active lockout or a loss streak in progress.
type CooldownRepository struct {
	db *gorm.DB
}

// NewCooldownRepository creates a new repository instance using the main read/write database.
func NewCooldownRepository() *CooldownRepository {
	return &CooldownRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *CooldownRepository) WithDB(db *gorm.DB) *CooldownRepository {
	return &CooldownRepository{db: db}
}

// LoadAll returns every persisted cooldown tracker.
func (r *CooldownRepository) LoadAll(ctx context.Context) ([]model.CooldownRecord, error) {
	var records []model.CooldownRecord
	err := r.db.WithContext(ctx).Find(&records).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "CooldownRepository",
			"op":   "LoadAll",
		}).WithError(err).Error("Failed to load cooldown records")
		return nil, err
	}
	return records, nil
}

// Save upserts one tracker keyed by (scope, key).
func (r *CooldownRepository) Save(ctx context.Context, record *model.CooldownRecord) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "scope"}, {Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"cycles_remaining", "consecutive_losses", "loss_streak_usd", "trigger_reason", "updated_at",
			}),
		}).
		Create(record).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "CooldownRepository",
			"op":    "Save",
			"scope": record.Scope,
			"key":   record.Key,
		}).WithError(err).Error("Failed to save cooldown record")
	}
	return err
}
