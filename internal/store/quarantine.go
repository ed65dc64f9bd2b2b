package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/avantisbot/copytrader/internal/types"
)

// QuarantineStore persists logs the indexer could not decode. The indexer
// must not advance its cursor past an unacknowledged entry.
type QuarantineStore struct {
	db *gorm.DB
}

func NewQuarantineStore(db *gorm.DB) *QuarantineStore { return &QuarantineStore{db: db} }

// Insert records a quarantined log, ignoring a conflict on
// (chain_tx_hash, log_index) so repeatedly re-fetching a range the
// cursor is capped at (because this same log is still unacknowledged)
// never creates duplicate blocking entries.
func (s *QuarantineStore) Insert(ctx context.Context, q types.QuarantinedLog) error {
	row := QuarantineFromDomain(q)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chain_tx_hash"}, {Name: "log_index"}},
		DoNothing: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("insert quarantined log: %w", err)
	}
	return nil
}

// Unacknowledged returns every quarantined log blocking progress, ordered
// by block number so the oldest blocker surfaces first.
func (s *QuarantineStore) Unacknowledged(ctx context.Context) ([]types.QuarantinedLog, error) {
	var rows []QuarantineRow
	err := s.db.WithContext(ctx).Where("acknowledged = ?", false).Order("block_number ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load quarantined logs: %w", err)
	}
	out := make([]types.QuarantinedLog, len(rows))
	for i, r := range rows {
		out[i] = r.ToDomain()
	}
	return out, nil
}

// Acknowledge lets an operator clear a quarantined entry so the indexer
// can advance past it.
func (s *QuarantineStore) Acknowledge(ctx context.Context, id uint64) error {
	res := s.db.WithContext(ctx).Model(&QuarantineRow{}).Where("id = ?", id).Update("acknowledged", true)
	if res.Error != nil {
		return fmt.Errorf("acknowledge quarantined log: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("quarantined log %d not found", id)
	}
	return nil
}
