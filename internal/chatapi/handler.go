package chatapi

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/avantisbot/copytrader/internal/leaderboard"
	"github.com/avantisbot/copytrader/internal/sharedstore"
	"github.com/avantisbot/copytrader/internal/store"
	"github.com/avantisbot/copytrader/internal/types"
)

// Handler is the concrete CommandHandler wiring chat commands to the
// follow store, the shared exec-mode state, and the leaderboard cache.
type Handler struct {
	follow      *store.FollowStore
	shared      *sharedstore.Store
	leaderboard *leaderboard.Service
}

func NewHandler(follow *store.FollowStore, shared *sharedstore.Store, lb *leaderboard.Service) *Handler {
	return &Handler{follow: follow, shared: shared, leaderboard: lb}
}

var _ CommandHandler = (*Handler)(nil)

func (h *Handler) Follow(ctx context.Context, userID string, traderKey common.Address, cfg types.FollowConfig) error {
	cfg.UserID = userID
	cfg.TraderKey = traderKey
	return h.follow.Upsert(ctx, cfg)
}

func (h *Handler) Unfollow(ctx context.Context, userID string, traderKey common.Address) error {
	return h.follow.Delete(ctx, userID, traderKey.Hex())
}

// SetExecMode performs the admin-only DRY<->LIVE transition via a real
// compare-and-set (§5), so a racing EmergencyStop toggle can't be silently
// overwritten by a SetExecMode that read the state before it landed.
func (h *Handler) SetExecMode(ctx context.Context, adminID string, mode types.ExecMode) error {
	err := h.shared.CompareAndSetExecMode(ctx, func(st types.ExecModeState) types.ExecModeState {
		st.Mode = mode
		st.UpdatedBy = adminID
		return st
	})
	if err != nil {
		return fmt.Errorf("set exec mode: %w", err)
	}
	return nil
}

// EmergencyStop flips the kill-switch via the same compare-and-set path as
// SetExecMode, so the two admin actions never race each other.
func (h *Handler) EmergencyStop(ctx context.Context, adminID string, on bool) error {
	err := h.shared.CompareAndSetExecMode(ctx, func(st types.ExecModeState) types.ExecModeState {
		st.EmergencyStop = on
		st.UpdatedBy = adminID
		return st
	})
	if err != nil {
		return fmt.Errorf("set emergency stop: %w", err)
	}
	return nil
}

func (h *Handler) GetLeaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	entries := h.leaderboard.Top(limit)
	out := make([]LeaderboardEntry, len(entries))
	for i, e := range entries {
		out[i] = LeaderboardEntry{
			TraderAddress: common.HexToAddress(e.TraderAddress),
			Score:         e.Score,
			VolumeUSD30d:  fmt.Sprintf("%.0f", e.VolumeUSD30d),
			WinRate30d:    e.WinRate30d,
		}
	}
	return out, nil
}

func (h *Handler) GetFollowing(ctx context.Context, userID string) ([]types.FollowConfig, error) {
	return h.follow.ListByUser(ctx, userID)
}
