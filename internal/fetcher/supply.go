package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// SupplyOptions parameterise the CoinGecko supply fetcher.
type SupplyOptions struct {
	BaseURL   string
	CoinID    string
	APIKey    string
	Timeout   time.Duration
	UserAgent string
}

// CoinGeckoSupply fetches circulating supply from the CoinGecko coins endpoint.
type CoinGeckoSupply struct {
	opts    SupplyOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	now     func() time.Time
}

// NewCoinGeckoSupply constructs a supply fetcher.
func NewCoinGeckoSupply(opts SupplyOptions, logger zerolog.Logger) *CoinGeckoSupply {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}

	return &CoinGeckoSupply{
		opts:    opts,
		logger:  logger.With().Str("component", "supply_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		now:     time.Now,
	}
}

// FetchSupply retrieves the current circulating supply.
func (c *CoinGeckoSupply) FetchSupply(ctx context.Context) (Supply, error) {
	circulating, err := c.fetch(ctx)
	if err != nil {
		return Supply{}, &ReferenceFetchError{Feed: FeedSupply, Err: err}
	}
	return Supply{Circulating: circulating, FetchedAt: c.now().UTC()}, nil
}

func (c *CoinGeckoSupply) fetch(ctx context.Context) (decimal.Decimal, error) {
	if c.opts.CoinID == "" {
		return decimal.Decimal{}, errors.New("coin id not configured")
	}

	query := url.Values{}
	query.Set("localization", "false")
	query.Set("tickers", "false")
	query.Set("market_data", "true")
	query.Set("community_data", "false")
	query.Set("developer_data", "false")
	endpoint := fmt.Sprintf("%s/coins/%s?%s", c.baseURL, url.PathEscape(c.opts.CoinID), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "zecwatcher/1.0")
	}
	if c.opts.APIKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.opts.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Decimal{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, parseHTTPError(resp.StatusCode, payload)
	}

	var coin coinResponse
	if err := json.Unmarshal(payload, &coin); err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode coin response: %w", err)
	}
	if coin.MarketData.CirculatingSupply == nil {
		return decimal.Decimal{}, errors.New("circulating supply missing from response")
	}

	supply := *coin.MarketData.CirculatingSupply
	c.logger.Debug().Str("coin", c.opts.CoinID).Str("circulating", supply.String()).Msg("supply fetched")
	return supply, nil
}

type coinResponse struct {
	ID         string `json:"id"`
	MarketData struct {
		CirculatingSupply *decimal.Decimal `json:"circulating_supply"`
	} `json:"market_data"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Status struct {
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Error != "" {
			return fmt.Errorf("coingecko api error (%d): %s", status, apiErr.Error)
		}
		if apiErr.Status.ErrorMessage != "" {
			return fmt.Errorf("coingecko api error (%d): %s", status, apiErr.Status.ErrorMessage)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("coingecko api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("coingecko api error (%d)", status)
}

var _ SupplyFetcher = (*CoinGeckoSupply)(nil)
