package store

import (
	"context"
	"fmt"
	"math/big"

	"gorm.io/gorm"

	"github.com/avantisbot/copytrader/internal/types"
)

// LotStore persists the FIFO position lots the PnL engine maintains per
// (trader, pair, direction).
type LotStore struct {
	db *gorm.DB
}

func NewLotStore(db *gorm.DB) *LotStore { return &LotStore{db: db} }

// OpenLots returns the FIFO queue of open lots for a (trader, pair,
// direction), oldest first.
func (s *LotStore) OpenLots(ctx context.Context, trader string, pairID uint16, dir types.Direction) ([]types.PositionLot, error) {
	var rows []LotRow
	err := s.db.WithContext(ctx).
		Where("trader_address = ? AND pair_id = ? AND direction = ? AND remaining_size_usd != '0'", trader, pairID, string(dir)).
		Order("entry_ts ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load open lots: %w", err)
	}
	out := make([]types.PositionLot, len(rows))
	for i, r := range rows {
		out[i] = r.ToDomain()
	}
	return out, nil
}

// CreateLot inserts a new lot from an OPEN fill.
func (s *LotStore) CreateLot(ctx context.Context, lot types.PositionLot) error {
	row := LotFromDomain(lot)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("create lot: %w", err)
	}
	return nil
}

// ReduceLot updates a lot's remaining size after a partial or full close.
func (s *LotStore) ReduceLot(ctx context.Context, lotID uint64, remaining *big.Int) error {
	row := LotRow{}
	res := s.db.WithContext(ctx).Model(&row).Where("id = ?", lotID).Update("remaining_size_usd", bigIntToString(remaining))
	if res.Error != nil {
		return fmt.Errorf("reduce lot %d: %w", lotID, res.Error)
	}
	return nil
}

// DeleteAllForTrader clears every lot for a trader, used before a full
// rebuild from fills.
func (s *LotStore) DeleteAllForTrader(ctx context.Context, trader string) error {
	return s.db.WithContext(ctx).Where("trader_address = ?", trader).Delete(&LotRow{}).Error
}
