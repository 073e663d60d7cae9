package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"riskpilot/src/database"
	"riskpilot/src/model"
)

// LedgerRepository handles durable reads/writes for account state, open positions
// and closed-trade history. Every ledger mutation is persisted through one of the
// transactional methods below before the in-memory ledger reports success.
type LedgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository creates a new repository instance using the main read/write database.
func NewLedgerRepository() *LedgerRepository {
	logger.WithField("component", "LedgerRepository").
		Info("Creating new LedgerRepository with MainDB")

	return &LedgerRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *LedgerRepository) WithDB(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// LoadAccount returns the persisted account row, or nil when the store is fresh.
func (r *LedgerRepository) LoadAccount(ctx context.Context) (*model.AccountState, error) {
	var account model.AccountState
	err := r.db.WithContext(ctx).Order("id asc").First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "LedgerRepository",
			"op":   "LoadAccount",
		}).WithError(err).Error("Failed to load account state")
		return nil, err
	}
	return &account, nil
}

// SaveAccount upserts the single account row.
func (r *LedgerRepository) SaveAccount(ctx context.Context, account *model.AccountState) error {
	err := r.db.WithContext(ctx).Save(account).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "LedgerRepository",
			"op":   "SaveAccount",
		}).WithError(err).Error("Failed to save account state")
	}
	return err
}

// OpenPositions returns every position still marked open, for crash recovery.
func (r *LedgerRepository) OpenPositions(ctx context.Context) ([]model.Position, error) {
	var positions []model.Position
	err := r.db.WithContext(ctx).
		Where("status = ?", model.PositionStatusOpen).
		Order("id asc").
		Find(&positions).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "LedgerRepository",
			"op":   "OpenPositions",
		}).WithError(err).Error("Failed to load open positions")
		return nil, err
	}
	return positions, nil
}

// PersistOpen writes a newly opened position together with the debited account
// balance in one transaction, so the store never shows a position without the
// matching margin deduction.
func (r *LedgerRepository) PersistOpen(ctx context.Context, account *model.AccountState, position *model.Position) error {
	logger.WithFields(map[string]interface{}{
		"repo":       "LedgerRepository",
		"op":         "PersistOpen",
		"instrument": position.Instrument,
		"direction":  position.Direction,
	}).Debug("Persisting opened position")

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(position).Error; err != nil {
			return err
		}
		return tx.Save(account).Error
	})
}

// PersistUpdate rewrites a mutated open position (trailing stop revision,
// loss cycle counter).
func (r *LedgerRepository) PersistUpdate(ctx context.Context, position *model.Position) error {
	err := r.db.WithContext(ctx).Save(position).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "LedgerRepository",
			"op":         "PersistUpdate",
			"instrument": position.Instrument,
		}).WithError(err).Error("Failed to persist position update")
	}
	return err
}

// PersistClose marks the position closed, inserts the trade record and credits
// the account, all in one transaction.
func (r *LedgerRepository) PersistClose(ctx context.Context, account *model.AccountState, position *model.Position, trade *model.ClosedTrade) error {
	logger.WithFields(map[string]interface{}{
		"repo":       "LedgerRepository",
		"op":         "PersistClose",
		"instrument": position.Instrument,
		"reason":     trade.Reason,
	}).Debug("Persisting closed position")

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(position).Error; err != nil {
			return err
		}
		if err := tx.Create(trade).Error; err != nil {
			return err
		}
		return tx.Save(account).Error
	})
}

// RecentTrades returns the most recent closed trades, newest first.
func (r *LedgerRepository) RecentTrades(ctx context.Context, limit int) ([]model.ClosedTrade, error) {
	var trades []model.ClosedTrade
	err := r.db.WithContext(ctx).
		Order("id desc").
		Limit(limit).
		Find(&trades).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "LedgerRepository",
			"op":   "RecentTrades",
		}).WithError(err).Error("Failed to load recent trades")
		return nil, err
	}
	return trades, nil
}

// AllTrades returns the full closed-trade history in chronological order.
func (r *LedgerRepository) AllTrades(ctx context.Context) ([]model.ClosedTrade, error) {
	var trades []model.ClosedTrade
	err := r.db.WithContext(ctx).Order("id asc").Find(&trades).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "LedgerRepository",
			"op":   "AllTrades",
		}).WithError(err).Error("Failed to load trade history")
		return nil, err
	}
	return trades, nil
}

// PositionByIdempotencyKey looks up a position (open or closed) by the entry's
// idempotency key, used when reconciling timed-out order submissions.
func (r *LedgerRepository) PositionByIdempotencyKey(ctx context.Context, key string) (*model.Position, error) {
	var position model.Position
	err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		First(&position).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &position, nil
}
