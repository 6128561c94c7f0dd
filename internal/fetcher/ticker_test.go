package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger { return zerolog.Nop() }

func kline(openTime int64, closePrice string) []any {
	return []any{
		openTime, "48.0", "49.0", "47.5", closePrice, "1200.5",
		openTime + 7_199_999, "57000.0", 321, "600.1", "28500.0", "0",
	}
}

func newBinanceServer(t *testing.T, klinesStatus int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v3/ticker/24hr":
			if got := r.URL.Query().Get("symbol"); got != "ZECUSDT" {
				t.Errorf("unexpected symbol %q", got)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"symbol":             "ZECUSDT",
				"priceChange":        "1.25",
				"priceChangePercent": "2.604",
				"lastPrice":          "49.25",
				"highPrice":          "50.10",
				"lowPrice":           "47.30",
				"openPrice":          "48.00",
				"volume":             "100.0",
				"quoteVolume":        "4900.0",
				"openTime":           1_700_000_000_000,
				"closeTime":          1_700_086_399_999,
				"count":              42,
			})
		case "/api/v3/klines":
			if klinesStatus != http.StatusOK {
				w.WriteHeader(klinesStatus)
				_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
				return
			}
			if got := r.URL.Query().Get("limit"); got != "3" {
				t.Errorf("unexpected limit %q", got)
			}
			_ = json.NewEncoder(w).Encode([]any{
				kline(1_700_000_000_000, "48.10"),
				kline(1_700_007_200_000, "48.90"),
				kline(1_700_014_400_000, "49.25"),
			})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestBinanceTickerSuccess(t *testing.T) {
	srv := newBinanceServer(t, http.StatusOK)
	defer srv.Close()

	b := NewBinanceTicker(TickerOptions{BaseURL: srv.URL, Symbol: "ZECUSDT", KlineLimit: 3, Timeout: time.Second}, noopLogger())
	ticker, err := b.FetchTicker(context.Background())
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if !ticker.Price.Equal(decimal.RequireFromString("49.25")) {
		t.Fatalf("期望价格 49.25, 实际 %s", ticker.Price)
	}
	if !ticker.ChangePercent24h.Equal(decimal.RequireFromString("2.604")) {
		t.Fatalf("unexpected change percent %s", ticker.ChangePercent24h)
	}
	if !ticker.High24h.Equal(decimal.RequireFromString("50.1")) || !ticker.Low24h.Equal(decimal.RequireFromString("47.3")) {
		t.Fatalf("unexpected range %s..%s", ticker.Low24h, ticker.High24h)
	}
	if len(ticker.History) != 3 {
		t.Fatalf("期望 3 个收盘价, 实际 %d", len(ticker.History))
	}
	if !ticker.History[0].Equal(decimal.RequireFromString("48.1")) || !ticker.History[2].Equal(ticker.Price) {
		t.Fatalf("history must be ordered oldest first: %v", ticker.History)
	}
	if ticker.FetchedAt.IsZero() {
		t.Fatal("FetchedAt should be set")
	}
}

func TestBinanceTickerToleratesKlinesFailure(t *testing.T) {
	srv := newBinanceServer(t, http.StatusBadRequest)
	defer srv.Close()

	b := NewBinanceTicker(TickerOptions{BaseURL: srv.URL, KlineLimit: 3, Timeout: time.Second}, noopLogger())
	ticker, err := b.FetchTicker(context.Background())
	if err != nil {
		t.Fatalf("klines failure should not fail the ticker: %v", err)
	}
	if len(ticker.History) != 0 {
		t.Fatalf("history should be empty, got %d", len(ticker.History))
	}
	if ticker.Price.IsZero() {
		t.Fatal("price should still be populated")
	}
}

func TestBinanceTickerStatsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	b := NewBinanceTicker(TickerOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	_, err := b.FetchTicker(context.Background())
	if err == nil {
		t.Fatal("HTTP 503 应返回错误")
	}
	var refErr *ReferenceFetchError
	if !errors.As(err, &refErr) || refErr.Feed != FeedTicker {
		t.Fatalf("expected ReferenceFetchError for ticker feed, got %v", err)
	}
}
