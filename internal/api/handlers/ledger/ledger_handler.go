package ledger

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/wonny/aegis-strategy/internal/api/response"
	"github.com/wonny/aegis-strategy/internal/domain/strategy"
	"github.com/wonny/aegis-strategy/internal/domain/trade"
)

// Service is the read side of the trade ledger
type Service interface {
	AllTrades() []trade.Trade
	Holds() []trade.Trade
	Solds() []trade.Trade
	Summary() trade.Summary
	AllStrategies() []string
	ReturnHistory(strategyName string) []trade.ReturnPoint
	DailyChange(key string, current float64) trade.Change
	WeeklyChange(key string, current float64) trade.Change
	CurrentReturns(ctx context.Context, quotes strategy.QuoteFetcher) map[string]float64
}

// Handler handles ledger and snapshot requests
type Handler struct {
	svc    Service
	quotes strategy.QuoteFetcher
}

// NewHandler creates a new ledger handler. quotes may be nil, which disables live returns.
// A nil svc serves an empty ledger until the real one is wired.
func NewHandler(svc Service, quotes strategy.QuoteFetcher) *Handler {
	if svc == nil {
		svc = emptyLedger{}
	}
	return &Handler{svc: svc, quotes: quotes}
}

// emptyLedger answers reads before the ledger is opened
type emptyLedger struct{}

func (emptyLedger) AllTrades() []trade.Trade { return nil }
func (emptyLedger) Holds() []trade.Trade { return nil }
func (emptyLedger) Solds() []trade.Trade { return nil }
func (emptyLedger) Summary() trade.Summary { return trade.Summary{} }
func (emptyLedger) AllStrategies() []string { return nil }
func (emptyLedger) ReturnHistory(string) []trade.ReturnPoint { return []trade.ReturnPoint{} }
func (emptyLedger) DailyChange(_ string, v float64) trade.Change { return trade.Change{Value: v} }
func (emptyLedger) WeeklyChange(_ string, v float64) trade.Change { return trade.Change{Value: v} }
func (emptyLedger) CurrentReturns(context.Context, strategy.QuoteFetcher) map[string]float64 {
	return map[string]float64{}
}

// TradesResponse lists ledger rows
type TradesResponse struct {
	Trades []trade.Trade `json:"trades"`
	Count  int           `json:"count"`
}

// StrategiesResponse lists snapshot keys
type StrategiesResponse struct {
	Strategies []string `json:"strategies"`
}

// HistoryResponse is a cumulative return series
type HistoryResponse struct {
	Strategy string              `json:"strategy"`
	History  []trade.ReturnPoint `json:"history"`
}

// ChangeResponse holds daily and weekly deltas for a current value
type ChangeResponse struct {
	Strategy string       `json:"strategy"`
	Current  float64      `json:"current"`
	Daily    trade.Change `json:"daily"`
	Weekly   trade.Change `json:"weekly"`
}

// ReturnsResponse holds live cumulative returns per strategy
type ReturnsResponse struct {
	Returns map[string]float64 `json:"returns"`
}

// GetTrades handles GET /api/ledger/trades?status=HOLD|SOLD
func (h *Handler) GetTrades(w http.ResponseWriter, r *http.Request) {

	var trades []trade.Trade
	switch status := r.URL.Query().Get("status"); status {
	case "":
		trades = h.svc.AllTrades()
	case trade.StatusHold:
		trades = h.svc.Holds()
	case trade.StatusSold:
		trades = h.svc.Solds()
	default:
		response.BadRequest(w, r, "invalid status: "+status)
		return
	}
	if trades == nil {
		trades = []trade.Trade{}
	}

	response.OK(w, TradesResponse{Trades: trades, Count: len(trades)})
}

// GetSummary handles GET /api/ledger/summary
func (h *Handler) GetSummary(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, h.svc.Summary())
}

// GetReturns handles GET /api/ledger/returns
func (h *Handler) GetReturns(w http.ResponseWriter, r *http.Request) {
	if _, empty := h.svc.(emptyLedger); empty {
		response.OK(w, ReturnsResponse{Returns: map[string]float64{}})
		return
	}
	if h.quotes == nil {
		response.Unavailable(w, r, "quote source not configured")
		return
	}
	response.OK(w, ReturnsResponse{Returns: h.svc.CurrentReturns(r.Context(), h.quotes)})
}

// GetStrategies handles GET /api/ledger/snapshots/strategies
func (h *Handler) GetStrategies(w http.ResponseWriter, _ *http.Request) {
	names := h.svc.AllStrategies()
	if names == nil {
		names = []string{}
	}
	response.OK(w, StrategiesResponse{Strategies: names})
}

// GetHistory handles GET /api/ledger/snapshots/{strategy}/history
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["strategy"]
	response.OK(w, HistoryResponse{Strategy: name, History: h.svc.ReturnHistory(name)})
}

// GetChange handles GET /api/ledger/snapshots/{strategy}/change?current=
func (h *Handler) GetChange(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["strategy"]

	raw := r.URL.Query().Get("current")
	if raw == "" {
		response.BadRequest(w, r, "current is required")
		return
	}
	current, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		response.BadRequest(w, r, "invalid current: "+raw)
		return
	}

	response.OK(w, ChangeResponse{
		Strategy: name,
		Current:  current,
		Daily:    h.svc.DailyChange(name, current),
		Weekly:   h.svc.WeeklyChange(name, current),
	})
}
