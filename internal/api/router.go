package api

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/wonny/aegis-strategy/internal/api/handlers"
	ledgerHandlers "github.com/wonny/aegis-strategy/internal/api/handlers/ledger"
	schedulerHandlers "github.com/wonny/aegis-strategy/internal/api/handlers/scheduler"
	"github.com/wonny/aegis-strategy/internal/api/middleware"
	"github.com/wonny/aegis-strategy/internal/api/response"
	"github.com/wonny/aegis-strategy/internal/api/routes"
	"github.com/wonny/aegis-strategy/internal/domain/strategy"
	"github.com/wonny/aegis-strategy/internal/service/signalfeed"
)

// Deps holds everything the HTTP surface depends on.
// Nil services serve empty reads and answer 503 on control endpoints instead of failing at startup.
type Deps struct {
	Scheduler        schedulerHandlers.Service
	Ledger           ledgerHandlers.Service
	Quotes           strategy.QuoteFetcher
	Broker           *signalfeed.Broker
	DB               handlers.DBHealthChecker
	SchedulerChecker handlers.SchedulerChecker
	AllowedOrigins   []string
	AccessLog        io.Writer
	Version          string
}

// NewRouter builds the API handler with all routes and middleware
func NewRouter(deps Deps) http.Handler {
	router := mux.NewRouter()

	var feed handlers.SignalFeedStats
	if deps.Broker != nil {
		feed = deps.Broker
	}
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.SchedulerChecker, feed, deps.Version)
	router.HandleFunc("/health", healthHandler.Health).Methods("GET")
	router.HandleFunc("/health/detailed", healthHandler.Detailed).Methods("GET")

	routes.RegisterSchedulerRoutes(router, deps.Scheduler, deps.Broker, deps.AllowedOrigins)
	routes.RegisterLedgerRoutes(router, deps.Ledger, deps.Quotes)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "route not found: "+r.URL.Path)
	})

	return middleware.Chain(router, middleware.Config{
		AllowedOrigins: deps.AllowedOrigins,
		AccessLog:      deps.AccessLog,
		SkipPaths:      []string{"/health", "/health/detailed"},
	})
}
