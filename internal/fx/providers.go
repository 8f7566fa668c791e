package fx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/market-cache/internal/core"
)

const defaultProviderTimeout = 5 * time.Second

// Provider fetches the current rate for one ordered currency pair.
type Provider interface {
	Name() string
	FetchRate(ctx context.Context, from, to string) (float64, error)
}

func classifyTransport(err error) error {
	var uerr *url.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &uerr) && uerr.Timeout()) {
		return core.WrapError(core.ErrUpstreamTimeout, err)
	}
	return core.WrapError(core.ErrUpstreamUnavailable, err)
}

// PairProvider hits a keyed endpoint addressed by the pair itself:
// {base}/{key}/pair/{FROM}/{TO}.
type PairProvider struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewPairProvider creates the primary, keyed pair-endpoint provider.
func NewPairProvider(name, baseURL, apiKey string, logger *zap.Logger) *PairProvider {
	return &PairProvider{
		name:       name,
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultProviderTimeout},
		logger:     logger,
	}
}

func (p *PairProvider) Name() string { return p.name }

func (p *PairProvider) FetchRate(ctx context.Context, from, to string) (float64, error) {
	reqURL := fmt.Sprintf("%s/%s/pair/%s/%s", p.baseURL, p.apiKey, from, to)

	var body struct {
		Result         string  `json:"result"`
		ConversionRate float64 `json:"conversion_rate"`
	}
	if err := p.fetchJSON(ctx, reqURL, &body); err != nil {
		return 0, err
	}
	if body.Result != "success" || body.ConversionRate <= 0 {
		return 0, core.Wrapf(core.ErrUpstreamUnavailable, "%s returned no rate for %s/%s", p.name, from, to)
	}
	return body.ConversionRate, nil
}

func (p *PairProvider) fetchJSON(ctx context.Context, reqURL string, out interface{}) error {
	return fetchJSON(ctx, p.httpClient, p.logger, p.name, reqURL, out)
}

// OpenProvider hits a keyless endpoint that returns a rates table for a
// base currency: {base}/latest?base={FROM}&symbols={TO}.
type OpenProvider struct {
	name       string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewOpenProvider creates the keyless fallback provider.
func NewOpenProvider(name, baseURL string, logger *zap.Logger) *OpenProvider {
	return &OpenProvider{
		name:       name,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultProviderTimeout},
		logger:     logger,
	}
}

func (p *OpenProvider) Name() string { return p.name }

func (p *OpenProvider) FetchRate(ctx context.Context, from, to string) (float64, error) {
	params := url.Values{}
	params.Add("base", from)
	params.Add("symbols", to)
	reqURL := fmt.Sprintf("%s/latest?%s", p.baseURL, params.Encode())

	var body struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := fetchJSON(ctx, p.httpClient, p.logger, p.name, reqURL, &body); err != nil {
		return 0, err
	}
	rate, ok := body.Rates[to]
	if !ok || rate <= 0 {
		return 0, core.Wrapf(core.ErrUpstreamUnavailable, "%s returned no rate for %s/%s", p.name, from, to)
	}
	return rate, nil
}

// KeyedBaseProvider hits a keyed base+symbol endpoint:
// {base}/latest?access_key={key}&base={FROM}&symbols={TO}.
type KeyedBaseProvider struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewKeyedBaseProvider creates the last-resort keyed provider.
func NewKeyedBaseProvider(name, baseURL, apiKey string, logger *zap.Logger) *KeyedBaseProvider {
	return &KeyedBaseProvider{
		name:       name,
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultProviderTimeout},
		logger:     logger,
	}
}

func (p *KeyedBaseProvider) Name() string { return p.name }

func (p *KeyedBaseProvider) FetchRate(ctx context.Context, from, to string) (float64, error) {
	params := url.Values{}
	params.Add("access_key", p.apiKey)
	params.Add("base", from)
	params.Add("symbols", to)
	reqURL := fmt.Sprintf("%s/latest?%s", p.baseURL, params.Encode())

	var body struct {
		Success bool               `json:"success"`
		Rates   map[string]float64 `json:"rates"`
	}
	if err := fetchJSON(ctx, p.httpClient, p.logger, p.name, reqURL, &body); err != nil {
		return 0, err
	}
	rate, ok := body.Rates[to]
	if !body.Success || !ok || rate <= 0 {
		return 0, core.Wrapf(core.ErrUpstreamUnavailable, "%s returned no rate for %s/%s", p.name, from, to)
	}
	return rate, nil
}

func fetchJSON(ctx context.Context, client *http.Client, logger *zap.Logger, name, reqURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return core.WrapError(core.ErrInternal, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		logger.Warn("FX provider request failed", zap.Error(err), zap.String("provider", name))
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		logger.Warn("FX provider error response",
			zap.String("provider", name),
			zap.Int("statusCode", resp.StatusCode),
			zap.String("response", string(bodyBytes)))
		return core.Wrapf(core.ErrUpstreamUnavailable, "%s returned status %d", name, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return core.WrapError(core.ErrUpstreamUnavailable, err)
	}
	return nil
}
