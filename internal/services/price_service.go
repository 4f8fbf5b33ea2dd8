package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"crypto-exchange-bot/internal/config"
	"crypto-exchange-bot/internal/logger"
	"crypto-exchange-bot/internal/metrics"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// coinGeckoIDs maps asset codes to CoinGecko coin ids
var coinGeckoIDs = map[string]string{
	"BTC":  "bitcoin",
	"LTC":  "litecoin",
	"TRX":  "tron",
	"USDT": "tether",
}

// RateSource resolves the fiat price of one unit of an asset.
type RateSource interface {
	GetRate(ctx context.Context, asset string) (decimal.Decimal, error)
}

// PriceService is the rate oracle: a per-asset cache in front of the
// CoinGecko simple/price endpoint with bounded retries.
type PriceService struct {
	pricesMux sync.RWMutex
	prices    map[string]decimal.Decimal // asset -> fiat price
	lastFetch map[string]time.Time

	group      singleflight.Group
	client     *http.Client
	baseURL    string
	vsCurrency string
	cacheTTL   time.Duration
	timeout    time.Duration
	maxRetries int

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewPriceService(cfg config.RatesConfig) *PriceService {
	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &PriceService{
		prices:     make(map[string]decimal.Decimal),
		lastFetch:  make(map[string]time.Time),
		client:     &http.Client{},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		vsCurrency: cfg.VsCurrency,
		cacheTTL:   cfg.CacheTTL,
		timeout:    cfg.Timeout,
		maxRetries: maxRetries,
		sleep:      sleepContext,
		now:        time.Now,
	}
}

// GetRate returns the cached rate while it is fresh, otherwise fetches it.
// Exhausted retries yield ErrRateUnavailable; callers must not quote on it.
func (ps *PriceService) GetRate(ctx context.Context, asset string) (decimal.Decimal, error) {
	coinID, ok := coinGeckoIDs[asset]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnsupportedAsset, asset)
	}

	if rate, ok := ps.cached(asset); ok {
		return rate, nil
	}

	// The fetch is shared by every waiter, so one caller giving up must not
	// abort it. Attempts keep their own timeout.
	shared := context.WithoutCancel(ctx)
	flight := ps.group.DoChan(asset, func() (interface{}, error) {
		if rate, ok := ps.cached(asset); ok {
			return rate, nil
		}
		return ps.fetchWithRetry(shared, asset, coinID)
	})

	select {
	case res := <-flight:
		if res.Err != nil {
			return decimal.Zero, res.Err
		}
		return res.Val.(decimal.Decimal), nil
	case <-ctx.Done():
		return decimal.Zero, fmt.Errorf("%w: %w", ErrRateUnavailable, ctx.Err())
	}
}

// Prefetch refreshes every supported asset in a single request.
func (ps *PriceService) Prefetch(ctx context.Context) error {
	ids := make([]string, 0, len(coinGeckoIDs))
	for _, id := range coinGeckoIDs {
		ids = append(ids, id)
	}

	reqCtx, cancel := context.WithTimeout(ctx, ps.timeout)
	defer cancel()

	prices, _, err := ps.fetchCoinGeckoPrices(reqCtx, ids)
	if err != nil {
		logger.Log.Warn("[PriceService] prefetch failed", zap.Error(err))
		return err
	}

	for asset, id := range coinGeckoIDs {
		if rate, ok := prices[id]; ok {
			ps.store(asset, rate)
		}
	}
	logger.Log.Debug("[PriceService] prefetched rates", zap.Int("assets", len(prices)))
	return nil
}

func (ps *PriceService) cached(asset string) (decimal.Decimal, bool) {
	ps.pricesMux.RLock()
	defer ps.pricesMux.RUnlock()

	rate, hasPrice := ps.prices[asset]
	fetchedAt, hasFetch := ps.lastFetch[asset]
	if !hasPrice || !hasFetch || ps.now().Sub(fetchedAt) >= ps.cacheTTL {
		return decimal.Zero, false
	}
	return rate, true
}

func (ps *PriceService) store(asset string, rate decimal.Decimal) {
	ps.pricesMux.Lock()
	ps.prices[asset] = rate
	ps.lastFetch[asset] = ps.now()
	ps.pricesMux.Unlock()
}

func (ps *PriceService) fetchWithRetry(ctx context.Context, asset, coinID string) (decimal.Decimal, error) {
	m := metrics.Exchange()
	var lastErr error

	for attempt := 0; attempt < ps.maxRetries; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, ps.timeout)
		prices, status, err := ps.fetchCoinGeckoPrices(reqCtx, []string{coinID})
		cancel()

		if err == nil {
			if rate, ok := prices[coinID]; ok {
				ps.store(asset, rate)
				m.ObserveRateFetch(asset, "ok")
				return rate, nil
			}
			err = fmt.Errorf("no %s price for %s in response", ps.vsCurrency, coinID)
		}

		lastErr = err
		result := "error"
		wait := time.Duration(1<<attempt) * time.Second
		if status == http.StatusTooManyRequests {
			result = "rate_limited"
			wait = time.Duration(1<<attempt) * 2 * time.Second
		}
		m.ObserveRateFetch(asset, result)

		if attempt == ps.maxRetries-1 || ctx.Err() != nil {
			break
		}
		logger.Log.Warn("[PriceService] rate fetch failed, retrying",
			zap.String("asset", asset),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		if err := ps.sleep(ctx, wait); err != nil {
			break
		}
	}

	logger.Log.Error("[PriceService] rate unavailable", zap.String("asset", asset), zap.Error(lastErr))
	return decimal.Zero, fmt.Errorf("%w: %s: %v", ErrRateUnavailable, asset, lastErr)
}

// fetchCoinGeckoPrices calls
// GET {base}/simple/price?ids=bitcoin,tron&vs_currencies=rub
// Response: {"bitcoin":{"rub":5000000},"tron":{"rub":21.4}}
func (ps *PriceService) fetchCoinGeckoPrices(ctx context.Context, ids []string) (map[string]decimal.Decimal, int, error) {
	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", ps.vsCurrency)
	endpoint := ps.baseURL + "/simple/price?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := ps.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("coingecko request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, resp.StatusCode, fmt.Errorf("coingecko returned %d: %s", resp.StatusCode, string(body))
	}

	var result map[string]map[string]decimal.Decimal
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("coingecko parse error: %w", err)
	}

	prices := make(map[string]decimal.Decimal, len(result))
	for id, quotes := range result {
		if rate, ok := quotes[ps.vsCurrency]; ok && rate.IsPositive() {
			prices[id] = rate
		}
	}
	return prices, resp.StatusCode, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
