package routes

import (
	"github.com/gorilla/mux"
	ledgerHandlers "github.com/wonny/aegis-strategy/internal/api/handlers/ledger"
	"github.com/wonny/aegis-strategy/internal/domain/strategy"
)

// RegisterLedgerRoutes registers ledger and snapshot routes
func RegisterLedgerRoutes(router *mux.Router, svc ledgerHandlers.Service, quotes strategy.QuoteFetcher) {
	handler := ledgerHandlers.NewHandler(svc, quotes)

	// Ledger
	router.HandleFunc("/api/ledger/trades", handler.GetTrades).Methods("GET")
	router.HandleFunc("/api/ledger/summary", handler.GetSummary).Methods("GET")
	router.HandleFunc("/api/ledger/returns", handler.GetReturns).Methods("GET")

	// Snapshots
	router.HandleFunc("/api/ledger/snapshots/strategies", handler.GetStrategies).Methods("GET")
	router.HandleFunc("/api/ledger/snapshots/{strategy}/history", handler.GetHistory).Methods("GET")
	router.HandleFunc("/api/ledger/snapshots/{strategy}/change", handler.GetChange).Methods("GET")
}
