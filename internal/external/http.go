// Package external holds thin HTTP adapters to the collaborators spec §1
// names as living outside this module's ownership: the portfolio/equity
// service, the price oracle, and the chat front-end's notification sink.
// The request/response shape (base URL trimmed from an env var, a short
// http.Client timeout, JSON decode, explicit status-code check) is lifted
// directly from the teacher's BridgeBroker (broker_bridge.go), which talks
// to its own external sidecar the same way.
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/avantisbot/copytrader/internal/priceprovider"
)

func trimBase(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = "http://127.0.0.1:8090"
	}
	return strings.TrimRight(base, "/")
}

// PortfolioClient implements both fanout.EquitySource and
// risk.EquityProvider against an external portfolio/equity HTTP service.
type PortfolioClient struct {
	base    string
	hc      *http.Client
	limiter *rate.Limiter
}

func NewPortfolioClient(base string) *PortfolioClient {
	return &PortfolioClient{base: trimBase(base), hc: &http.Client{Timeout: 5 * time.Second}, limiter: rate.NewLimiter(rate.Limit(50), 50)}
}

type equityResponse struct {
	EquityUSD1e6 string `json:"equity_usd_1e6"`
	Found        bool   `json:"found"`
}

func (p *PortfolioClient) fetchEquity(ctx context.Context, path string) (*big.Int, bool, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, false, fmt.Errorf("equity rate limiter: %w", err)
	}
	u := fmt.Sprintf("%s%s", p.base, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, false, fmt.Errorf("newrequest equity: %w", err)
	}
	res, err := p.hc.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(res.Body)
		return nil, false, fmt.Errorf("equity %d: %s", res.StatusCode, string(b))
	}
	var out equityResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, false, fmt.Errorf("decode equity: %w", err)
	}
	if !out.Found {
		return nil, false, nil
	}
	v, ok := new(big.Int).SetString(out.EquityUSD1e6, 10)
	if !ok {
		return nil, false, fmt.Errorf("invalid equity value %q", out.EquityUSD1e6)
	}
	return v, true, nil
}

func (p *PortfolioClient) UserEquityUSD1e6(ctx context.Context, userID string) (*big.Int, bool, error) {
	return p.fetchEquity(ctx, "/equity/user/"+url.PathEscape(userID))
}

func (p *PortfolioClient) LeaderEquityUSD1e6(ctx context.Context, trader string) (*big.Int, bool, error) {
	return p.fetchEquity(ctx, "/equity/trader/"+url.PathEscape(trader))
}

func (p *PortfolioClient) DailyRealizedAndUnrealizedLossUSD1e6(ctx context.Context, userID string) (*big.Int, error) {
	v, ok, err := p.fetchEquity(ctx, "/daily-loss/"+url.PathEscape(userID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return v, nil
}

// OracleClient implements priceprovider.PriceProvider against an external
// price-oracle HTTP endpoint (one instance per source, so the risk
// validator's cross-check genuinely queries two independent services).
type OracleClient struct {
	base     string
	sourceID string
	hc       *http.Client
	limiter  *rate.Limiter
}

func NewOracleClient(base, sourceID string) *OracleClient {
	return &OracleClient{base: trimBase(base), sourceID: sourceID, hc: &http.Client{Timeout: 2 * time.Second}, limiter: rate.NewLimiter(rate.Limit(100), 100)}
}

type priceResponse struct {
	Price1e8  int64 `json:"price_1e8"`
	Timestamp int64 `json:"timestamp_unix"`
}

func (o *OracleClient) GetPrice(ctx context.Context, pairID uint16) (priceprovider.Quote, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return priceprovider.Quote{}, fmt.Errorf("price rate limiter: %w", err)
	}
	u := fmt.Sprintf("%s/price/%d", o.base, pairID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return priceprovider.Quote{}, fmt.Errorf("newrequest price: %w", err)
	}
	res, err := o.hc.Do(req)
	if err != nil {
		return priceprovider.Quote{}, err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(res.Body)
		return priceprovider.Quote{}, fmt.Errorf("price %d: %s", res.StatusCode, string(b))
	}
	var out priceResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return priceprovider.Quote{}, fmt.Errorf("decode price: %w", err)
	}
	return priceprovider.Quote{
		Price1e8:  out.Price1e8,
		Timestamp: time.Unix(out.Timestamp, 0).UTC(),
		SourceID:  o.sourceID,
	}, nil
}

// NotifyClient posts core -> chat events to the front-end's webhook,
// mirroring BridgeBroker.PlaceMarketQuote's POST-JSON-and-check-status shape.
type NotifyClient struct {
	base    string
	hc      *http.Client
	limiter *rate.Limiter
}

func NewNotifyClient(base string) *NotifyClient {
	return &NotifyClient{base: trimBase(base), hc: &http.Client{Timeout: 3 * time.Second}, limiter: rate.NewLimiter(rate.Limit(30), 30)}
}

// Post sends body as JSON in a single attempt, with an Idempotency-Key
// header set to a fresh UUID on every call. Post does not retry, and a
// repeated call carries a new key, so the key does not let the receiver
// recognise a duplicate delivery.
func (n *NotifyClient) Post(ctx context.Context, path string, body interface{}) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("notify rate limiter: %w", err)
	}
	bs, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode notify body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.base+path, bytes.NewReader(bs))
	if err != nil {
		return fmt.Errorf("newrequest notify: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.New().String())
	res, err := n.hc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(res.Body)
		return fmt.Errorf("notify %d: %s", res.StatusCode, string(b))
	}
	return nil
}
