package health

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/avantisbot/copytrader/internal/chain"
	"github.com/avantisbot/copytrader/internal/sharedstore"
)

// DBChecker pings the primary Postgres connection.
func DBChecker(db *gorm.DB) Checker {
	return CheckerFunc{NameStr: "db", Fn: func(ctx context.Context) (bool, string) {
		sqlDB, err := db.DB()
		if err != nil {
			return false, err.Error()
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return false, err.Error()
		}
		return true, ""
	}}
}

// SharedStoreChecker pings Redis.
func SharedStoreChecker(s *sharedstore.Store) Checker {
	return CheckerFunc{NameStr: "shared_store", Fn: func(ctx context.Context) (bool, string) {
		if err := s.Ping(ctx); err != nil {
			return false, err.Error()
		}
		return true, ""
	}}
}

// ChainFreshnessChecker reports unready if a LatestBlock call fails or
// takes longer than maxAge. It does not track whether the chain tip has
// advanced between checks.
func ChainFreshnessChecker(c *chain.Client, maxAge time.Duration) Checker {
	return CheckerFunc{NameStr: "chain_client", Fn: func(ctx context.Context) (bool, string) {
		start := time.Now()
		_, err := c.LatestBlock(ctx)
		if err != nil {
			return false, err.Error()
		}
		if elapsed := time.Since(start); elapsed > maxAge {
			return false, fmt.Sprintf("latest_block rpc call took %s, exceeds %s budget", elapsed, maxAge)
		}
		return true, ""
	}}
}

// IndexerLagFunc returns the current indexer lag in blocks.
type IndexerLagFunc func() uint64

// IndexerLagChecker reports unready once the indexer falls more than
// alarmThreshold blocks behind the chain tip, per spec §4.9.
func IndexerLagChecker(lag IndexerLagFunc, alarmThreshold uint64) Checker {
	return CheckerFunc{NameStr: "indexer_lag", Fn: func(ctx context.Context) (bool, string) {
		l := lag()
		if l > alarmThreshold {
			return false, fmt.Sprintf("lag %d blocks exceeds alarm threshold %d", l, alarmThreshold)
		}
		return true, ""
	}}
}

// PriceFreshnessFunc returns the age of the last observed price for a source.
type PriceFreshnessFunc func(ctx context.Context) (time.Duration, error)

// PriceFreshnessChecker reports unready if the last price observation is
// older than maxAge, mirroring risk.Config.MaxPriceAge.
func PriceFreshnessChecker(name string, age PriceFreshnessFunc, maxAge time.Duration) Checker {
	return CheckerFunc{NameStr: name, Fn: func(ctx context.Context) (bool, string) {
		d, err := age(ctx)
		if err != nil {
			return false, err.Error()
		}
		if d > maxAge {
			return false, fmt.Sprintf("last price is %s old, exceeds %s budget", d, maxAge)
		}
		return true, ""
	}}
}
