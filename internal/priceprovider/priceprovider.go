// Package priceprovider declares the PriceProvider contract (spec §6) and
// a cross-source check used by the risk manager (spec §4.7). Only the
// interface is core; concrete adapters (oracle feeds) are external
// collaborators.
package priceprovider

import (
	"context"
	"fmt"
	"time"
)

// Quote is one price observation from one source.
type Quote struct {
	Price1e8  int64
	Timestamp time.Time
	SourceID  string
}

// Age reports how stale the quote is relative to now.
func (q Quote) Age(now time.Time) time.Duration { return now.Sub(q.Timestamp) }

// PriceProvider returns the current price for a pair from one source.
type PriceProvider interface {
	GetPrice(ctx context.Context, pairID uint16) (Quote, error)
}

// CrossCheck validates that two independent sources agree within
// maxDivergencePct, and that both are fresh. It is the "two independent
// price sources disagree by more than 0.5%" rule from spec §4.7.
func CrossCheck(ctx context.Context, primary, secondary PriceProvider, pairID uint16, maxAge time.Duration, maxDivergencePct float64, now time.Time) (Quote, error) {
	a, err := primary.GetPrice(ctx, pairID)
	if err != nil {
		return Quote{}, fmt.Errorf("primary price: %w", err)
	}
	b, err := secondary.GetPrice(ctx, pairID)
	if err != nil {
		return Quote{}, fmt.Errorf("secondary price: %w", err)
	}
	if a.Age(now) > maxAge || b.Age(now) > maxAge {
		return Quote{}, ErrStalePrice
	}
	diff := float64(a.Price1e8-b.Price1e8) / float64(a.Price1e8)
	if diff < 0 {
		diff = -diff
	}
	if diff > maxDivergencePct {
		return Quote{}, ErrPriceOutlier
	}
	return a, nil
}

var (
	ErrStalePrice   = fmt.Errorf("price stale")
	ErrPriceOutlier = fmt.Errorf("price sources disagree beyond tolerance")
)
