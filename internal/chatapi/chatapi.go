// Package chatapi declares the event stream and command sink exchanged
// with the chat front-end collaborator (spec §6). The wire format is
// deliberately unspecified by spec.md; this package models the two
// surfaces as Go channels/interfaces so the core never depends on a
// transport.
package chatapi

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/avantisbot/copytrader/internal/types"
)

// EventType enumerates the core -> chat event stream per spec §6.
type EventType string

const (
	EventSignal          EventType = "signal"
	EventIntentUpdate    EventType = "intent_update"
	EventLeaderboard     EventType = "leaderboard"
)

// Event is one item on the core -> chat stream.
type Event struct {
	Type        EventType
	UserID      string
	TraderKey   common.Address
	PairID      uint16
	Side        types.FillSide
	SizeUSD1e6  string
	LeverageBps uint32
	Status      string
	Reason      types.ReasonCode

	IntentID string
	TxHash   string

	LeaderboardEntries []LeaderboardEntry
}

// LeaderboardEntry is the wire shape of one ranked trader.
type LeaderboardEntry struct {
	TraderAddress common.Address
	Score         float64
	VolumeUSD30d  string
	WinRate30d    float64
}

// EventSink is implemented by whatever transport bridges to the chat
// front-end (a queue publisher, a gRPC stream, etc).
type EventSink interface {
	Publish(ctx context.Context, ev Event) error
}

// CommandHandler implements the chat -> core command sink.
type CommandHandler interface {
	Follow(ctx context.Context, userID string, traderKey common.Address, cfg types.FollowConfig) error
	Unfollow(ctx context.Context, userID string, traderKey common.Address) error
	SetExecMode(ctx context.Context, adminID string, mode types.ExecMode) error
	EmergencyStop(ctx context.Context, adminID string, on bool) error
	GetLeaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error)
	GetFollowing(ctx context.Context, userID string) ([]types.FollowConfig, error)
}
