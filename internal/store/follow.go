package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/avantisbot/copytrader/internal/types"
)

// FollowStore is the repository for per-user follow configurations.
type FollowStore struct {
	db *gorm.DB
}

func NewFollowStore(db *gorm.DB) *FollowStore { return &FollowStore{db: db} }

// Upsert creates or replaces a user's configuration for one leader.
func (s *FollowStore) Upsert(ctx context.Context, cfg types.FollowConfig) error {
	row := FollowFromDomain(cfg)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "trader_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"sizing_mode", "sizing_value", "max_leverage", "max_slippage_bps",
			"per_trade_cap_usd1e6", "daily_cap_usd1e6", "pair_allow_csv", "pair_block_csv",
			"notify", "auto_copy", "updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert follow config: %w", err)
	}
	return nil
}

// Get returns a single follow configuration, or false if none exists.
func (s *FollowStore) Get(ctx context.Context, userID, traderKey string) (types.FollowConfig, bool, error) {
	var row FollowRow
	err := s.db.WithContext(ctx).Where("user_id = ? AND trader_key = ?", userID, traderKey).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.FollowConfig{}, false, nil
	}
	if err != nil {
		return types.FollowConfig{}, false, fmt.Errorf("load follow config: %w", err)
	}
	return row.ToDomain(), true, nil
}

// ListByUser returns every trader a user follows.
func (s *FollowStore) ListByUser(ctx context.Context, userID string) ([]types.FollowConfig, error) {
	var rows []FollowRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list follows by user: %w", err)
	}
	return followRowsToDomain(rows), nil
}

// UsersByTrader returns every follow config pointing at traderKey — the
// reverse index the fanout uses to find who must be notified of a fill,
// per spec §4.6's "O(followers of this trader)" requirement.
func (s *FollowStore) UsersByTrader(ctx context.Context, traderKey string) ([]types.FollowConfig, error) {
	var rows []FollowRow
	if err := s.db.WithContext(ctx).Where("trader_key = ?", traderKey).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list follows by trader: %w", err)
	}
	return followRowsToDomain(rows), nil
}

// Delete removes a user's follow of a trader (unfollow).
func (s *FollowStore) Delete(ctx context.Context, userID, traderKey string) error {
	return s.db.WithContext(ctx).Where("user_id = ? AND trader_key = ?", userID, traderKey).Delete(&FollowRow{}).Error
}

func followRowsToDomain(rows []FollowRow) []types.FollowConfig {
	out := make([]types.FollowConfig, len(rows))
	for i, r := range rows {
		out[i] = r.ToDomain()
	}
	return out
}
