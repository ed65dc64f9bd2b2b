package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/avantisbot/copytrader/internal/types"
)

// StatsStore persists the rolling 30-day aggregate per trader the
// leaderboard reads from.
type StatsStore struct {
	db *gorm.DB
}

func NewStatsStore(db *gorm.DB) *StatsStore { return &StatsStore{db: db} }

// Upsert replaces a trader's stats snapshot wholesale — the PnL engine
// always recomputes the full 30-day window rather than patching deltas.
func (s *StatsStore) Upsert(ctx context.Context, stats types.TraderStats30d) error {
	row := StatsFromDomain(stats)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "trader_address"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"last_trade_ts", "trade_count30d", "volume_usd30d", "median_trade_usd30d",
			"realized_pn_l30d", "win_rate30d", "max_drawdown30d", "last_updated",
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert trader stats: %w", err)
	}
	return nil
}

func (s *StatsStore) Get(ctx context.Context, trader string) (types.TraderStats30d, bool, error) {
	var row StatsRow
	err := s.db.WithContext(ctx).Where("trader_address = ?", trader).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.TraderStats30d{}, false, nil
	}
	if err != nil {
		return types.TraderStats30d{}, false, fmt.Errorf("load trader stats: %w", err)
	}
	return row.ToDomain(), true, nil
}

// All returns every trader's current stats snapshot, the input to the
// leaderboard's eligibility filter and scoring pass.
func (s *StatsStore) All(ctx context.Context) ([]types.TraderStats30d, error) {
	var rows []StatsRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load all trader stats: %w", err)
	}
	out := make([]types.TraderStats30d, len(rows))
	for i, r := range rows {
		out[i] = r.ToDomain()
	}
	return out, nil
}
