package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wonny/aegis-strategy/internal/domain/strategy"
	"github.com/wonny/aegis-strategy/internal/domain/trade"
)

type fakeLedger struct {
	trades []trade.Trade
}

func (f *fakeLedger) AllTrades() []trade.Trade { return f.trades }

func (f *fakeLedger) Holds() []trade.Trade {
	var out []trade.Trade
	for _, t := range f.trades {
		if t.IsHold() {
			out = append(out, t)
		}
	}
	return out
}

func (f *fakeLedger) Solds() []trade.Trade {
	var out []trade.Trade
	for _, t := range f.trades {
		if !t.IsHold() {
			out = append(out, t)
		}
	}
	return out
}

func (f *fakeLedger) Summary() trade.Summary {
	return trade.Summary{TotalTrades: 1, WinRate: 100, AvgReturn: 2.5}
}

func (f *fakeLedger) AllStrategies() []string { return nil }

func (f *fakeLedger) ReturnHistory(name string) []trade.ReturnPoint {
	return []trade.ReturnPoint{{Date: "2026-10-15", ReturnRate: 1.2}, {Date: "2026-10-16", ReturnRate: 1.8}}
}

func (f *fakeLedger) DailyChange(key string, current float64) trade.Change {
	return trade.Change{Value: current - 1, BaseDate: "2026-10-16", OK: true}
}

func (f *fakeLedger) WeeklyChange(key string, current float64) trade.Change {
	return trade.Change{Value: current}
}

func (f *fakeLedger) CurrentReturns(ctx context.Context, quotes strategy.QuoteFetcher) map[string]float64 {
	return map[string]float64{"momentum": 3.1, trade.AllKey: 3.1}
}

type nopQuotes struct{}

func (nopQuotes) GetQuote(ctx context.Context, code string) (*strategy.Quote, error) {
	return &strategy.Quote{Code: code}, nil
}

func newTestRouter(svc Service, quotes strategy.QuoteFetcher) *mux.Router {
	h := NewHandler(svc, quotes)
	r := mux.NewRouter()
	r.HandleFunc("/trades", h.GetTrades)
	r.HandleFunc("/summary", h.GetSummary)
	r.HandleFunc("/returns", h.GetReturns)
	r.HandleFunc("/snapshots/strategies", h.GetStrategies)
	r.HandleFunc("/snapshots/{strategy}/history", h.GetHistory)
	r.HandleFunc("/snapshots/{strategy}/change", h.GetChange)
	return r
}

func get(t *testing.T, r http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", target, nil))
	return rec
}

func sampleLedger() *fakeLedger {
	sellDate := "2026-10-16 10:00:00"
	sellPrice := int64(10250)
	return &fakeLedger{trades: []trade.Trade{
		{Strategy: "momentum", Code: "005930", BuyDate: "2026-10-15 09:10:00", BuyPrice: 10000, Qty: 1,
			SellDate: &sellDate, SellPrice: &sellPrice, ReturnRate: 2.5, Status: trade.StatusSold},
		{Strategy: "momentum", Code: "000660", BuyDate: "2026-10-16 09:10:00", BuyPrice: 20000, Qty: 2, Status: trade.StatusHold},
	}}
}

func TestGetTrades(t *testing.T) {
	r := newTestRouter(sampleLedger(), nil)

	tests := []struct {
		query string
		count int
	}{
		{"", 2},
		{"?status=HOLD", 1},
		{"?status=SOLD", 1},
	}
	for _, tt := range tests {
		rec := get(t, r, "/trades"+tt.query)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp TradesResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, tt.count, resp.Count, tt.query)
		assert.Len(t, resp.Trades, tt.count)
	}

	rec := get(t, r, "/trades?status=OPEN")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTrades_EmptyIsArray(t *testing.T) {
	rec := get(t, newTestRouter(&fakeLedger{}, nil), "/trades?status=HOLD")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"trades":[],"count":0}`, rec.Body.String())
}

func TestGetSummary(t *testing.T) {
	rec := get(t, newTestRouter(sampleLedger(), nil), "/summary")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total_trades":1,"win_rate":100,"avg_return":2.5}`, rec.Body.String())
}

func TestGetReturns(t *testing.T) {
	rec := get(t, newTestRouter(sampleLedger(), nil), "/returns")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = get(t, newTestRouter(sampleLedger(), nopQuotes{}), "/returns")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"returns":{"momentum":3.1,"ALL":3.1}}`, rec.Body.String())
}

func TestSnapshots(t *testing.T) {
	r := newTestRouter(sampleLedger(), nil)

	rec := get(t, r, "/snapshots/strategies")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"strategies":[]}`, rec.Body.String())

	rec = get(t, r, "/snapshots/momentum/history")
	require.Equal(t, http.StatusOK, rec.Code)
	var hist HistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hist))
	assert.Equal(t, "momentum", hist.Strategy)
	assert.Len(t, hist.History, 2)
}

func TestGetChange(t *testing.T) {
	r := newTestRouter(sampleLedger(), nil)

	rec := get(t, r, "/snapshots/momentum/change?current=3.5")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChangeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3.5, resp.Current)
	assert.True(t, resp.Daily.OK)
	assert.Equal(t, 2.5, resp.Daily.Value)
	assert.False(t, resp.Weekly.OK)
	assert.Equal(t, 3.5, resp.Weekly.Value)

	assert.Equal(t, http.StatusBadRequest, get(t, r, "/snapshots/momentum/change").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, r, "/snapshots/momentum/change?current=abc").Code)
}

func TestNilLedger(t *testing.T) {
	r := newTestRouter(nil, nopQuotes{})

	tests := []struct {
		target string
		want   string
	}{
		{"/trades", `{"trades":[],"count":0}`},
		{"/summary", `{"total_trades":0,"win_rate":0,"avg_return":0}`},
		{"/returns", `{"returns":{}}`},
		{"/snapshots/strategies", `{"strategies":[]}`},
		{"/snapshots/momentum/history", `{"strategy":"momentum","history":[]}`},
		{"/snapshots/momentum/change?current=1.5",
			`{"strategy":"momentum","current":1.5,"daily":{"value":1.5,"ok":false},"weekly":{"value":1.5,"ok":false}}`},
	}
	for _, tt := range tests {
		rec := get(t, r, tt.target)
		require.Equal(t, http.StatusOK, rec.Code, tt.target)
		assert.JSONEq(t, tt.want, rec.Body.String(), tt.target)
	}

	assert.Equal(t, http.StatusBadRequest, get(t, r, "/snapshots/momentum/change").Code)
}
