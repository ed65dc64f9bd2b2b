// Package chain wraps go-ethereum's ethclient with the retry, paging, and
// single-flight discipline spec.md §4.1 requires. Grounded on
// ChoSanghyuk-blackholedex's cmd/main.go (ethclient.Dial against an RPC
// URL read from config) and go-ethereum's own client idioms.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ErrNonTransient marks an error the caller must not retry (method not
// found, decode failure) — spec §4.1.
type ErrNonTransient struct{ Err error }

func (e *ErrNonTransient) Error() string { return e.Err.Error() }
func (e *ErrNonTransient) Unwrap() error { return e.Err }

// Client is the typed RPC/WS wrapper consumed by the indexer and the tx
// orchestrator. It never exposes *ethclient.Client directly so every call
// site goes through the retry/paging policy.
type Client struct {
	rpc  *ethclient.Client
	ws   *ethclient.Client // nil if BASE_WS_URL not configured
	page uint64
	log  zerolog.Logger
	sf   singleflight.Group
	cfg  Config
}

// Config controls retry/backoff and paging knobs, mirroring spec §4.1.
type Config struct {
	RPCURL      string
	WSURL       string
	MaxPage     uint64 // INDEXER_PAGE
	BackoffBase time.Duration
	BackoffCap  time.Duration
	MaxAttempts uint64
}

func DefaultConfig(rpcURL, wsURL string, maxPage uint64) Config {
	return Config{
		RPCURL:      rpcURL,
		WSURL:       wsURL,
		MaxPage:     maxPage,
		BackoffBase: 250 * time.Millisecond,
		BackoffCap:  10 * time.Second,
		MaxAttempts: 8,
	}
}

// Dial connects to the configured RPC (and, if set, WS) endpoint.
func Dial(ctx context.Context, cfg Config, log zerolog.Logger) (*Client, error) {
	rpc, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	c := &Client{rpc: rpc, page: cfg.MaxPage, log: log, cfg: cfg}
	if cfg.WSURL != "" {
		ws, err := ethclient.DialContext(ctx, cfg.WSURL)
		if err != nil {
			log.Warn().Err(err).Msg("ws dial failed, falling back to HTTP polling for new heads")
		} else {
			c.ws = ws
		}
	}
	if cfg.MaxPage == 0 {
		c.page = 2000
	}
	return c, nil
}

func (c *Client) retryPolicy() backoff.BackOff {
	base, cap, max := c.cfg.BackoffBase, c.cfg.BackoffCap, c.cfg.MaxAttempts
	if base == 0 {
		base = 250 * time.Millisecond
	}
	if cap == 0 {
		cap = 10 * time.Second
	}
	if max == 0 {
		max = 8
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.MaxInterval = cap
	b.Multiplier = 2
	b.RandomizationFactor = 0.3
	// WithMaxRetries counts retries after the first attempt.
	return backoff.WithMaxRetries(b, max-1)
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"timeout", "rate limit", "too many requests", "connection reset", "temporarily unavailable", "502", "503", "504"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// withRetry runs op, retrying transient errors with exponential backoff +
// jitter (base 0.25s, cap 10s, max 8 attempts) and failing fast on
// anything identified as non-transient.
func (c *Client) withRetry(ctx context.Context, name string, op func() error) error {
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		var nonTransient *ErrNonTransient
		if errors.As(err, &nonTransient) {
			return backoff.Permanent(err)
		}
		if !isTransient(err) {
			return backoff.Permanent(err)
		}
		c.log.Warn().Str("op", name).Int("attempt", attempt).Err(err).Msg("transient rpc error, retrying")
		return err
	}, backoff.WithContext(c.retryPolicy(), ctx))
}

// LatestBlock returns the chain tip height.
func (c *Client) LatestBlock(ctx context.Context) (uint64, error) {
	var n uint64
	err := c.withRetry(ctx, "latest_block", func() error {
		var err error
		n, err = c.rpc.BlockNumber(ctx)
		return err
	})
	return n, err
}

// GetLogs fetches logs for [fromBlock, toBlock], splitting into
// page-sized spans and retrying "too large" provider errors with a
// narrower span, per spec §4.1. Concurrent calls for the same
// (from,to,address) collapse via single-flight.
func (c *Client) GetLogs(ctx context.Context, fromBlock, toBlock uint64, address common.Address, topics [][]common.Hash) ([]types.Log, error) {
	key := fmt.Sprintf("%d-%d-%s", fromBlock, toBlock, address.Hex())
	v, err, _ := c.sf.Do(key, func() (interface{}, error) {
		return c.getLogsPaged(ctx, fromBlock, toBlock, address, topics)
	})
	if err != nil {
		return nil, err
	}
	return v.([]types.Log), nil
}

func (c *Client) getLogsPaged(ctx context.Context, fromBlock, toBlock uint64, address common.Address, topics [][]common.Hash) ([]types.Log, error) {
	page := c.page
	if page == 0 {
		page = 2000
	}
	var out []types.Log
	for from := fromBlock; from <= toBlock; {
		to := from + page - 1
		if to > toBlock {
			to = toBlock
		}
		logs, err := c.fetchLogRange(ctx, from, to, address, topics)
		if err != nil {
			if isTooLarge(err) && page > 1 {
				page /= 2
				continue
			}
			return nil, err
		}
		out = append(out, logs...)
		from = to + 1
	}
	return out, nil
}

func isTooLarge(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "too large") || strings.Contains(msg, "query returned more than") || strings.Contains(msg, "block range")
}

func (c *Client) fetchLogRange(ctx context.Context, from, to uint64, address common.Address, topics [][]common.Hash) ([]types.Log, error) {
	var logs []types.Log
	err := c.withRetry(ctx, "get_logs", func() error {
		var err error
		logs, err = c.rpc.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(from),
			ToBlock:   new(big.Int).SetUint64(to),
			Addresses: []common.Address{address},
			Topics:    topics,
		})
		return err
	})
	return logs, err
}

// ErrReceiptNotYet indicates the receipt isn't available yet (still
// pending); callers should keep polling.
var ErrReceiptNotYet = errors.New("receipt not yet available")

// GetTransactionReceipt returns the receipt, or ErrReceiptNotYet if the
// tx has not been mined.
func (c *Client) GetTransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var r *types.Receipt
	err := c.withRetry(ctx, "get_receipt", func() error {
		var err error
		r, err = c.rpc.TransactionReceipt(ctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			return backoff.Permanent(ErrReceiptNotYet)
		}
		return err
	})
	if errors.Is(err, ErrReceiptNotYet) {
		return nil, ErrReceiptNotYet
	}
	return r, err
}

// GetNonce returns the account's next usable nonce, tag "pending".
func (c *Client) GetNonce(ctx context.Context, addr common.Address) (uint64, error) {
	var n uint64
	err := c.withRetry(ctx, "get_nonce", func() error {
		var err error
		n, err = c.rpc.PendingNonceAt(ctx, addr)
		return err
	})
	return n, err
}

// SendRawTransaction broadcasts a signed transaction.
func (c *Client) SendRawTransaction(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	var hash common.Hash
	err := c.withRetry(ctx, "send_raw_tx", func() error {
		if err := c.rpc.SendTransaction(ctx, tx); err != nil {
			return err
		}
		hash = tx.Hash()
		return nil
	})
	return hash, err
}

// SuggestFeeTip returns the EIP-1559 base fee (from the latest header)
// and a suggested priority tip (from the node's fee-history heuristic).
func (c *Client) SuggestFeeTip(ctx context.Context) (baseFee, tip *big.Int, err error) {
	var header *types.Header
	err = c.withRetry(ctx, "header_by_number", func() error {
		var e error
		header, e = c.rpc.HeaderByNumber(ctx, nil)
		return e
	})
	if err != nil {
		return nil, nil, err
	}
	if header.BaseFee == nil {
		return nil, nil, &ErrNonTransient{Err: errors.New("chain does not report EIP-1559 base fee")}
	}
	var suggestedTip *big.Int
	err = c.withRetry(ctx, "suggest_tip", func() error {
		var e error
		suggestedTip, e = c.rpc.SuggestGasTipCap(ctx)
		return e
	})
	if err != nil {
		return nil, nil, err
	}
	return header.BaseFee, suggestedTip, nil
}

// headerByNumber fetches and retries a single header lookup, shared by
// BlockHash and BlockTimestamp so both pay for at most one RPC round trip
// each when the indexer doesn't already have the header cached.
func (c *Client) headerByNumber(ctx context.Context, number uint64) (*types.Header, error) {
	var header *types.Header
	err := c.withRetry(ctx, "header_by_number", func() error {
		var e error
		header, e = c.rpc.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
		return e
	})
	return header, err
}

// BlockHash returns the canonical hash of block number, used by the
// indexer to detect a reorg by comparing against a previously observed
// hash for the same height.
func (c *Client) BlockHash(ctx context.Context, number uint64) (common.Hash, error) {
	header, err := c.headerByNumber(ctx, number)
	if err != nil {
		return common.Hash{}, err
	}
	return header.Hash(), nil
}

// BlockTimestamp returns the unix timestamp recorded in block number's
// header, used to stamp each decoded Fill with its chain time.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (time.Time, error) {
	header, err := c.headerByNumber(ctx, number)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(header.Time), 0).UTC(), nil
}

// SubscribeNewHeads delivers block numbers as they arrive over WS, or via
// an HTTP poll fallback on the given interval when no WS endpoint is
// configured. The returned channel is closed when ctx is done.
func (c *Client) SubscribeNewHeads(ctx context.Context, pollInterval time.Duration) <-chan uint64 {
	out := make(chan uint64, 16)
	if c.ws != nil {
		heads := make(chan *types.Header, 16)
		sub, err := c.ws.SubscribeNewHead(ctx, heads)
		if err == nil {
			go func() {
				defer close(out)
				defer sub.Unsubscribe()
				for {
					select {
					case <-ctx.Done():
						return
					case err := <-sub.Err():
						c.log.Warn().Err(err).Msg("ws head subscription dropped, client must reconnect")
						return
					case h := <-heads:
						out <- h.Number.Uint64()
					}
				}
			}()
			return out
		}
		c.log.Warn().Err(err).Msg("ws subscribe failed, polling instead")
	}
	go func() {
		defer close(out)
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		var last uint64
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := c.LatestBlock(ctx)
				if err != nil {
					c.log.Warn().Err(err).Msg("poll latest block failed")
					continue
				}
				if n != last {
					out <- n
					last = n
				}
			}
		}
	}()
	return out
}
