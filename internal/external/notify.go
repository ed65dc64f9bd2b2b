package external

import (
	"context"

	"github.com/avantisbot/copytrader/internal/chatapi"
	"github.com/avantisbot/copytrader/internal/types"
)

// SignalNotifier adapts NotifyClient to fanout.NotificationSink.
type SignalNotifier struct {
	client *NotifyClient
}

func NewSignalNotifier(client *NotifyClient) *SignalNotifier {
	return &SignalNotifier{client: client}
}

func (s *SignalNotifier) NotifySignal(ctx context.Context, userID string, sig types.TraderSignal, status types.IntentStatus, reason types.ReasonCode) error {
	return s.client.Post(ctx, "/events/signal", chatapi.Event{
		Type:        chatapi.EventSignal,
		UserID:      userID,
		TraderKey:   sig.TraderAddress,
		PairID:      sig.PairID,
		Side:        sig.Side,
		SizeUSD1e6:  sig.SizeUSD1e6.String(),
		LeverageBps: sig.LeverageBps,
		Status:      string(status),
		Reason:      reason,
	})
}

// EventSink adapts NotifyClient to chatapi.EventSink for the broader
// core -> chat event stream (intent updates, leaderboard pushes).
type EventSink struct {
	client *NotifyClient
}

func NewEventSink(client *NotifyClient) *EventSink {
	return &EventSink{client: client}
}

func (e *EventSink) Publish(ctx context.Context, ev chatapi.Event) error {
	return e.client.Post(ctx, "/events", ev)
}
