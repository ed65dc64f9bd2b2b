// Package leaderboard ranks followable traders by a copyability score.
// The scoring function's sigmoid/weighted-sum shape is grounded directly
// on chidi150c-coinbase's AIMicroModel (model.go): the same clamp-and-
// divide sigmoid and small-vector dot-product-plus-bias structure,
// generalized from a single logistic unit to the fixed formula of spec
// §4.4.
package leaderboard

import (
	"context"
	"math"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/avantisbot/copytrader/internal/store"
	"github.com/avantisbot/copytrader/internal/types"
)

// Weights are the tunable constants spec §9 leaves unpinned ("weights
// w1..w5 are ... tunable constants"). These defaults favor volume and
// win rate, and penalize drawdown and leverage variance moderately.
type Weights struct {
	Volume           float64
	WinRate          float64
	SharpeLike       float64
	MaxDrawdown      float64
	LeverageVariance float64
}

func DefaultWeights() Weights {
	return Weights{Volume: 1.0, WinRate: 1.2, SharpeLike: 1.0, MaxDrawdown: 0.8, LeverageVariance: 0.5}
}

// Config bundles eligibility thresholds and scoring weights.
type Config struct {
	ActiveWindow    time.Duration
	MinTrades30d    int64
	MinVolumeUSD30d float64
	Weights         Weights
}

func DefaultConfig() Config {
	return Config{
		ActiveWindow:    72 * time.Hour,
		MinTrades30d:    300,
		MinVolumeUSD30d: 10_000_000,
		Weights:         DefaultWeights(),
	}
}

// Entry is one ranked leaderboard row.
type Entry struct {
	TraderAddress string
	Score         float64
	VolumeUSD30d  float64
	WinRate30d    float64
	RealizedPnL   float64
}

// Service recomputes and caches the ranked leaderboard on a schedule.
type Service struct {
	stats *store.StatsStore
	cfg   Config

	mu       sync.RWMutex
	snapshot []Entry
	refresh  time.Time
}

func NewService(stats *store.StatsStore, cfg Config) *Service {
	return &Service{stats: stats, cfg: cfg}
}

// Refresh recomputes the ranked snapshot from the current trader stats
// table and atomically replaces the cache, per spec §4.4.
func (s *Service) Refresh(ctx context.Context) error {
	all, err := s.stats.All(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	eligible := make([]types.TraderStats30d, 0, len(all))
	for _, t := range all {
		if now.Sub(t.LastTradeTS) > s.cfg.ActiveWindow {
			continue
		}
		if t.TradeCount30d < s.cfg.MinTrades30d {
			continue
		}
		if toFloat(t.VolumeUSD30d) < s.cfg.MinVolumeUSD30d {
			continue
		}
		eligible = append(eligible, t)
	}

	entries := score(eligible, s.cfg.Weights)

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if entries[i].VolumeUSD30d != entries[j].VolumeUSD30d {
			return entries[i].VolumeUSD30d > entries[j].VolumeUSD30d
		}
		return entries[i].TraderAddress < entries[j].TraderAddress
	})

	s.mu.Lock()
	s.snapshot = entries
	s.refresh = now
	s.mu.Unlock()
	return nil
}

// Top returns up to n cached entries in O(1). Callers decide whether the
// cache is stale enough to warrant a blocking Refresh first (spec §4.4:
// "recompute on demand if cache age > LEADERBOARD_CACHE_TTL").
func (s *Service) Top(n int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n > len(s.snapshot) {
		n = len(s.snapshot)
	}
	out := make([]Entry, n)
	copy(out, s.snapshot[:n])
	return out
}

// CacheAge reports how stale the cached snapshot is.
func (s *Service) CacheAge() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.refresh.IsZero() {
		return time.Hour * 24 * 365
	}
	return time.Since(s.refresh)
}

// score computes the copyability score for each eligible trader using
// population z-scores over the eligible set, per spec §4.4's formula.
func score(traders []types.TraderStats30d, w Weights) []Entry {
	n := len(traders)
	entries := make([]Entry, n)
	if n == 0 {
		return entries
	}

	volumes := make([]float64, n)
	winRates := make([]float64, n)
	sharpes := make([]float64, n)
	drawdowns := make([]float64, n)
	leverageVar := make([]float64, n)

	for i, t := range traders {
		volumes[i] = toFloat(t.VolumeUSD30d)
		winRates[i] = t.WinRate30d
		sharpes[i] = sharpeLike(t)
		drawdowns[i] = toFloat(t.MaxDrawdown30d)
		leverageVar[i] = 0 // leverage variance needs per-fill history; not tracked in the 30d rollup, treated as 0 (neutral) until a dedicated series is added
	}

	zVolume := zscores(volumes)
	zWinRate := zscores(winRates)
	zSharpe := zscores(sharpes)
	zDrawdown := zscores(drawdowns)
	zLeverageVar := zscores(leverageVar)

	for i, t := range traders {
		z := w.Volume*zVolume[i] + w.WinRate*zWinRate[i] + w.SharpeLike*zSharpe[i] -
			w.MaxDrawdown*zDrawdown[i] - w.LeverageVariance*zLeverageVar[i]
		entries[i] = Entry{
			TraderAddress: t.TraderAddress.Hex(),
			Score:         100 * sigmoid(z),
			VolumeUSD30d:  volumes[i],
			WinRate30d:    winRates[i],
			RealizedPnL:   toFloat(t.RealizedPnL30d),
		}
	}
	return entries
}

const sharpeEpsilon = 1e-6

// sharpeLike approximates spec §4.4's realized_pnl_30d / (stddev_of_daily_pnl + epsilon)
// using the 30-day aggregate already maintained; the daily series itself
// isn't retained by TraderStats30d, so the max drawdown magnitude stands
// in as the dispersion proxy (larger swings already depress the score
// via the drawdown term, this keeps the sharpe term from dividing by
// exactly zero for flat equity curves).
func sharpeLike(t types.TraderStats30d) float64 {
	pnl := toFloat(t.RealizedPnL30d)
	dispersion := math.Abs(toFloat(t.MaxDrawdown30d)) + sharpeEpsilon
	return pnl / dispersion
}

func zscores(vs []float64) []float64 {
	n := len(vs)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	var mean float64
	for _, v := range vs {
		mean += v
	}
	mean /= float64(n)

	var variance float64
	for _, v := range vs {
		d := v - mean
		variance += d * d
	}
	variance /= float64(n)
	stddev := math.Sqrt(variance)
	if stddev < 1e-9 {
		return out // all equal: no signal, z=0 for everyone
	}
	for i, v := range vs {
		out[i] = (v - mean) / stddev
	}
	return out
}

// sigmoid returns 1/(1+e^-x), clamped for numerical stability — the same
// clamp-and-divide idiom as chidi150c-coinbase's model.go sigmoid.
func sigmoid(x float64) float64 {
	if x > 20 {
		return 1
	}
	if x < -20 {
		return 0
	}
	return 1 / (1 + math.Exp(-x))
}

func toFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f := new(big.Float).SetInt(v)
	out, _ := f.Float64()
	return out
}
