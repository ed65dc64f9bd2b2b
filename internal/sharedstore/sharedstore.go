// Package sharedstore wraps go-redis for the fast, process-shared state
// spec §6.2 calls for: the exec-mode singleton, per-signer nonces,
// per-user/global rate-limit buckets, and the notification dedup set.
package sharedstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/avantisbot/copytrader/internal/types"
)

const dedupTTL = 5 * time.Minute

// Store is the Redis-backed shared state client.
type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error { return s.rdb.Close() }

const execModeKey = "exec_mode"

// GetExecMode reads the current execution mode, defaulting to DRY/no-stop
// if nothing has been written yet (spec §3: "created at first boot").
func (s *Store) GetExecMode(ctx context.Context) (types.ExecModeState, error) {
	raw, err := s.rdb.Get(ctx, execModeKey).Result()
	if err == redis.Nil {
		return types.ExecModeState{Mode: types.ModeDry, EmergencyStop: false}, nil
	}
	if err != nil {
		return types.ExecModeState{}, fmt.Errorf("get exec mode: %w", err)
	}
	var st types.ExecModeState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return types.ExecModeState{}, fmt.Errorf("decode exec mode: %w", err)
	}
	return st, nil
}

// SetExecMode performs an unconditional replace. Use CompareAndSetExecMode
// instead for any caller that reads-then-writes the state, since this method
// alone cannot protect against a racing writer clobbering that read.
func (s *Store) SetExecMode(ctx context.Context, st types.ExecModeState) error {
	st.UpdatedAt = time.Now()
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode exec mode: %w", err)
	}
	if err := s.rdb.Set(ctx, execModeKey, raw, 0).Err(); err != nil {
		return fmt.Errorf("set exec mode: %w", err)
	}
	return nil
}

// ErrExecModeConflict is returned when a concurrent writer changed the exec
// mode state between CompareAndSetExecMode's read and write.
var ErrExecModeConflict = fmt.Errorf("exec mode changed concurrently, retry")

// CompareAndSetExecMode performs a true atomic read-modify-write on the
// exec-mode singleton using Redis WATCH/MULTI, so the emergency-stop
// kill-switch (§5: "atomic compare-and-set") can't silently lose an update
// to a concurrent admin write. mutate receives the current state and
// returns the state to persist.
func (s *Store) CompareAndSetExecMode(ctx context.Context, mutate func(types.ExecModeState) types.ExecModeState) error {
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, execModeKey).Result()
		var st types.ExecModeState
		switch {
		case err == redis.Nil:
			st = types.ExecModeState{Mode: types.ModeDry, EmergencyStop: false}
		case err != nil:
			return fmt.Errorf("get exec mode: %w", err)
		default:
			if err := json.Unmarshal([]byte(raw), &st); err != nil {
				return fmt.Errorf("decode exec mode: %w", err)
			}
		}

		next := mutate(st)
		next.UpdatedAt = time.Now()
		encoded, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode exec mode: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, execModeKey, encoded, 0)
			return nil
		})
		return err
	}, execModeKey)

	if err == redis.TxFailedErr {
		return ErrExecModeConflict
	}
	if err != nil {
		return fmt.Errorf("cas exec mode: %w", err)
	}
	return nil
}

// NextNonce atomically increments and returns the next nonce for addr.
// Seed must be called once at startup with the chain's current pending
// nonce before any allocation.
func (s *Store) NextNonce(ctx context.Context, addr string) (uint64, error) {
	key := fmt.Sprintf("nonces:%s", addr)
	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr nonce %s: %w", addr, err)
	}
	return uint64(n) - 1, nil
}

// SeedNonce sets the nonce counter to seed if and only if the key does
// not already exist, so a restart never rewinds allocation.
func (s *Store) SeedNonce(ctx context.Context, addr string, seed uint64) error {
	key := fmt.Sprintf("nonces:%s", addr)
	ok, err := s.rdb.SetNX(ctx, key, seed, 0).Result()
	if err != nil {
		return fmt.Errorf("seed nonce %s: %w", addr, err)
	}
	_ = ok
	return nil
}

// ResyncNonce forces the counter to chainNonce, used after a "nonce too
// low"/"nonce already used" broadcast failure (spec §4.8).
func (s *Store) ResyncNonce(ctx context.Context, addr string, chainNonce uint64) error {
	key := fmt.Sprintf("nonces:%s", addr)
	if err := s.rdb.Set(ctx, key, chainNonce, 0).Err(); err != nil {
		return fmt.Errorf("resync nonce %s: %w", addr, err)
	}
	return nil
}

// AllowRateLimit implements a fixed-window counter over bucket for user,
// incrementing and expiring the key on first use within the window — the
// standard Redis INCR+EXPIRE rate-limit idiom.
func (s *Store) AllowRateLimit(ctx context.Context, user, bucket string, limit int64, window time.Duration) (bool, error) {
	key := fmt.Sprintf("rl:%s:%s", user, bucket)
	count, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("incr rate limit %s: %w", key, err)
	}
	if count == 1 {
		if err := s.rdb.Expire(ctx, key, window).Err(); err != nil {
			return false, fmt.Errorf("expire rate limit %s: %w", key, err)
		}
	}
	return count <= limit, nil
}

// IncrNotional adds amount to a rolling notional-sum bucket and returns
// the new total, expiring the bucket on first write — used for the
// hourly notional cap, which needs a running sum rather than a count.
func (s *Store) IncrNotional(ctx context.Context, user, bucket string, amount int64, window time.Duration) (int64, error) {
	key := fmt.Sprintf("rl:%s:%s:notional", user, bucket)
	total, err := s.rdb.IncrBy(ctx, key, amount).Result()
	if err != nil {
		return 0, fmt.Errorf("incrby notional %s: %w", key, err)
	}
	if total == amount {
		if err := s.rdb.Expire(ctx, key, window).Err(); err != nil {
			return 0, fmt.Errorf("expire notional %s: %w", key, err)
		}
	}
	return total, nil
}

// MarkSignalSeen returns true if signalID has not been seen within the
// dedup TTL window, and atomically marks it seen (SETNX+EXPIRE), per
// spec §4.6's 5-minute notification dedup window.
func (s *Store) MarkSignalSeen(ctx context.Context, signalID string) (firstSeen bool, err error) {
	key := fmt.Sprintf("dedup:%s", signalID)
	ok, err := s.rdb.SetNX(ctx, key, 1, dedupTTL).Result()
	if err != nil {
		return false, fmt.Errorf("mark signal seen %s: %w", signalID, err)
	}
	return ok, nil
}
