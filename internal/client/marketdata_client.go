package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/market-cache/internal/core"
	"github.com/yourorg/market-cache/internal/model"
)

const defaultRequestTimeout = 5 * time.Second

// SymbolData is a provider payload: symbol metadata plus its raw bars.
type SymbolData struct {
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name"`
	Currency string         `json:"currency"`
	Exchange string         `json:"exchange"`
	Bars     []model.RawBar `json:"bars"`
}

// MarketData is the upstream capability the orchestrator consumes.
type MarketData interface {
	FetchDailyBars(ctx context.Context, symbol string, days int) (*SymbolData, error)
	FetchCorporateActions(ctx context.Context, symbol string) ([]model.CorporateAction, error)
}

// MarketDataClient handles communication with the market-data provider.
type MarketDataClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewMarketDataClient creates a new market-data API client.
func NewMarketDataClient(baseURL, apiKey string, logger *zap.Logger) *MarketDataClient {
	return &MarketDataClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: defaultRequestTimeout,
		},
		logger: logger,
	}
}

// FetchDailyBars retrieves up to `days` daily bars for a symbol along with
// its metadata.
func (c *MarketDataClient) FetchDailyBars(ctx context.Context, symbol string, days int) (*SymbolData, error) {
	params := url.Values{}
	params.Add("apikey", c.apiKey)
	params.Add("days", strconv.Itoa(days))
	reqURL := fmt.Sprintf("%s/daily/%s?%s", c.baseURL, url.PathEscape(symbol), params.Encode())

	var data SymbolData
	if err := c.fetchJSON(ctx, reqURL, symbol, &data); err != nil {
		return nil, err
	}
	if len(data.Bars) == 0 {
		return nil, core.Wrapf(core.ErrNotFound, "provider returned no bars for %s", symbol)
	}
	return &data, nil
}

// FetchCorporateActions retrieves the symbol's split and dividend events.
func (c *MarketDataClient) FetchCorporateActions(ctx context.Context, symbol string) ([]model.CorporateAction, error) {
	params := url.Values{}
	params.Add("apikey", c.apiKey)
	reqURL := fmt.Sprintf("%s/actions/%s?%s", c.baseURL, url.PathEscape(symbol), params.Encode())

	var body struct {
		Actions []struct {
			Date           string  `json:"date"`
			Type           string  `json:"type"`
			SplitRatio     float64 `json:"split_ratio"`
			DividendAmount float64 `json:"dividend_amount"`
		} `json:"actions"`
	}
	if err := c.fetchJSON(ctx, reqURL, symbol, &body); err != nil {
		// A symbol without an actions feed simply has none.
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	actions := make([]model.CorporateAction, 0, len(body.Actions))
	for _, a := range body.Actions {
		date, err := time.Parse("2006-01-02", a.Date)
		if err != nil {
			c.logger.Warn("Skipping corporate action with bad date",
				zap.String("symbol", symbol), zap.String("date", a.Date))
			continue
		}
		action := model.CorporateAction{
			ActionDate:       date,
			ActionType:       a.Type,
			SplitRatio:       a.SplitRatio,
			DividendAmount:   a.DividendAmount,
			AdjustmentFactor: 1.0,
		}
		if action.ActionType == model.ActionSplit && a.SplitRatio > 0 {
			action.AdjustmentFactor = 1 / a.SplitRatio
		}
		if action.SplitRatio == 0 {
			action.SplitRatio = 1.0
		}
		actions = append(actions, action)
	}
	return actions, nil
}

func (c *MarketDataClient) fetchJSON(ctx context.Context, reqURL, symbol string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return core.WrapError(core.ErrInternal, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Failed to fetch from market-data provider",
			zap.Error(err), zap.String("symbol", symbol))
		var uerr *url.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &uerr) && uerr.Timeout()) {
			return core.WrapError(core.ErrUpstreamTimeout, err)
		}
		return core.WrapError(core.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return core.Wrapf(core.ErrNotFound, "provider does not know %s", symbol)
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		c.logger.Error("Market-data provider error response",
			zap.Int("statusCode", resp.StatusCode),
			zap.String("response", string(bodyBytes)))
		return core.Wrapf(core.ErrUpstreamUnavailable,
			"provider returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.logger.Error("Failed to decode provider response", zap.Error(err))
		return core.WrapError(core.ErrUpstreamUnavailable, err)
	}
	return nil
}
