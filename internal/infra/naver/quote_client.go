package naver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/aegis-strategy/internal/domain/strategy"
)

const defaultRealtimeURL = "https://polling.finance.naver.com/api/realtime/domestic/stock"

// QuoteClient fetches realtime quotes from Naver Finance.
// Used when broker credentials are absent (dry-run, CLI).
type QuoteClient struct {
	baseURL    string
	httpClient *http.Client
}

var _ strategy.QuoteFetcher = (*QuoteClient)(nil)

// NewQuoteClient creates a new Naver quote client. Empty baseURL uses the public endpoint.
func NewQuoteClient(baseURL string) *QuoteClient {
	if baseURL == "" {
		baseURL = defaultRealtimeURL
	}
	return &QuoteClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type realtimeResponse struct {
	Datas []realtimeData `json:"datas"`
}

type realtimeData struct {
	ClosePrice               string `json:"closePrice"`        // 현재가 (장중), 종가 (장후)
	FluctuationsRatio        string `json:"fluctuationsRatio"` // 등락률
	AccumulatedTradingVolume string `json:"accumulatedTradingVolume"`
	OverMarketPriceInfo      *struct {
		OverPrice                string `json:"overPrice"` // 시간외 현재가
		FluctuationsRatio        string `json:"fluctuationsRatio"`
		AccumulatedTradingVolume string `json:"accumulatedTradingVolume"`
	} `json:"overMarketPriceInfo"`
}

// GetQuote fetches the current price of code
func (c *QuoteClient) GetQuote(ctx context.Context, code string) (*strategy.Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+code, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("naver quote error: status=%d body=%s", resp.StatusCode, string(body))
	}

	var parsed realtimeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(parsed.Datas) == 0 {
		return nil, fmt.Errorf("no quote for %s", code)
	}

	return toQuote(code, parsed.Datas[0])
}

// toQuote prefers the after-hours price when one is published
func toQuote(code string, data realtimeData) (*strategy.Quote, error) {
	priceStr, ratioStr, volumeStr := data.ClosePrice, data.FluctuationsRatio, data.AccumulatedTradingVolume
	if o := data.OverMarketPriceInfo; o != nil && o.OverPrice != "" && o.OverPrice != "-" {
		priceStr, ratioStr, volumeStr = o.OverPrice, o.FluctuationsRatio, o.AccumulatedTradingVolume
	}

	price := parseNumber(priceStr)
	if price <= 0 {
		return nil, fmt.Errorf("no valid price for %s: %q", code, priceStr)
	}

	q := &strategy.Quote{Code: code, Price: price}
	if rate, err := strconv.ParseFloat(strings.TrimSpace(ratioStr), 64); err == nil {
		q.ChangeRate = rate
	}
	q.Volume = parseNumber(volumeStr)
	return q, nil
}
