package scheduler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"github.com/wonny/aegis-strategy/internal/api/response"
	"github.com/wonny/aegis-strategy/internal/domain/strategy"
	schedulerService "github.com/wonny/aegis-strategy/internal/service/scheduler"
)

// Service is the scheduler surface exposed over HTTP
type Service interface {
	Status() schedulerService.Status
	Start(ctx context.Context) error
	Stop(ctx context.Context, saveState bool) error
	ClearSavedState() error
	StartStrategy(ctx context.Context, name string) error
	StopStrategy(ctx context.Context, name string) error
	SignalHistory(strategyName string) []strategy.SignalRecord
}

// ControlHandler handles scheduler control endpoints
type ControlHandler struct {
	svc Service
}

// NewControlHandler creates a new control handler. svc may be nil until the scheduler is wired.
func NewControlHandler(svc Service) *ControlHandler {
	return &ControlHandler{svc: svc}
}

// StatusResponse wraps a start/stop acknowledgement
type StatusResponse struct {
	Status string `json:"status"`
}

// StrategyResponse acknowledges a per-strategy toggle
type StrategyResponse struct {
	Strategy string `json:"strategy"`
	Enabled  bool   `json:"enabled"`
}

// HistoryResponse lists executed signals, newest first
type HistoryResponse struct {
	Signals []strategy.SignalRecord `json:"signals"`
	Count   int                     `json:"count"`
}

func (h *ControlHandler) ready(w http.ResponseWriter, r *http.Request) bool {
	if h.svc == nil {
		response.Unavailable(w, r, strategy.ErrNotInitialized.Error())
		return false
	}
	return true
}

// GetStatus handles GET /api/scheduler/status.
// Before the scheduler is wired it reports a stopped scheduler with no strategies.
func (h *ControlHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		response.OK(w, schedulerService.Status{Strategies: []schedulerService.StrategyStatus{}})
		return
	}
	response.OK(w, h.svc.Status())
}

// Start handles POST /api/scheduler/start
func (h *ControlHandler) Start(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	if err := h.svc.Start(r.Context()); err != nil {
		response.InternalError(w, r, err)
		return
	}
	response.OK(w, StatusResponse{Status: "started"})
}

// Stop handles POST /api/scheduler/stop.
// A manual stop liquidates force-exit strategies and clears the saved state so a restart stays stopped.
func (h *ControlHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	// 청산 주문은 클라이언트 연결 종료와 무관하게 완료
	ctx := context.WithoutCancel(r.Context())

	if err := h.svc.Stop(ctx, false); err != nil {
		response.InternalError(w, r, err)
		return
	}
	if err := h.svc.ClearSavedState(); err != nil {
		log.Warn().Err(err).Msg("Failed to clear saved scheduler state")
	}
	response.OK(w, StatusResponse{Status: "stopped"})
}

// StartStrategy handles POST /api/scheduler/strategy/{name}/start
func (h *ControlHandler) StartStrategy(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, true)
}

// StopStrategy handles POST /api/scheduler/strategy/{name}/stop
func (h *ControlHandler) StopStrategy(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, false)
}

func (h *ControlHandler) toggle(w http.ResponseWriter, r *http.Request, enable bool) {
	if !h.ready(w, r) {
		return
	}
	name := mux.Vars(r)["name"]
	ctx := context.WithoutCancel(r.Context())

	var err error
	if enable {
		err = h.svc.StartStrategy(ctx, name)
	} else {
		err = h.svc.StopStrategy(ctx, name)
	}

	switch {
	case errors.Is(err, strategy.ErrStrategyNotFound):
		response.NotFound(w, r, "strategy not found: "+name)
	case err != nil:
		response.InternalError(w, r, err)
	default:
		response.OK(w, StrategyResponse{Strategy: name, Enabled: enable})
	}
}

// GetHistory handles GET /api/scheduler/history?strategy=
func (h *ControlHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		response.OK(w, HistoryResponse{Signals: []strategy.SignalRecord{}})
		return
	}
	signals := h.svc.SignalHistory(r.URL.Query().Get("strategy"))
	response.OK(w, HistoryResponse{Signals: signals, Count: len(signals)})
}
