package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wonny/aegis-strategy/internal/domain/strategy"
	schedulerService "github.com/wonny/aegis-strategy/internal/service/scheduler"
)

type fakeService struct {
	running     bool
	startErr    error
	stopSave    *bool
	cleared     bool
	enabled     map[string]bool
	historyArg  string
	history     []strategy.SignalRecord
	ctxCanceled bool
}

func newFakeService() *fakeService {
	return &fakeService{enabled: map[string]bool{"momentum": false}}
}

func (f *fakeService) Status() schedulerService.Status {
	return schedulerService.Status{
		Running: f.running,
		Strategies: []schedulerService.StrategyStatus{
			{Name: "momentum", Enabled: f.enabled["momentum"], MaxPositions: 3},
		},
	}
}

func (f *fakeService) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}

func (f *fakeService) Stop(ctx context.Context, saveState bool) error {
	f.stopSave = &saveState
	f.ctxCanceled = ctx.Err() != nil
	f.running = false
	return nil
}

func (f *fakeService) ClearSavedState() error {
	f.cleared = true
	return nil
}

func (f *fakeService) StartStrategy(ctx context.Context, name string) error {
	if _, ok := f.enabled[name]; !ok {
		return strategy.ErrStrategyNotFound
	}
	f.enabled[name] = true
	return nil
}

func (f *fakeService) StopStrategy(ctx context.Context, name string) error {
	if _, ok := f.enabled[name]; !ok {
		return strategy.ErrStrategyNotFound
	}
	f.enabled[name] = false
	return nil
}

func (f *fakeService) SignalHistory(name string) []strategy.SignalRecord {
	f.historyArg = name
	return f.history
}

func newTestRouter(svc Service) *mux.Router {
	h := NewControlHandler(svc)
	r := mux.NewRouter()
	r.HandleFunc("/status", h.GetStatus).Methods("GET")
	r.HandleFunc("/start", h.Start).Methods("POST")
	r.HandleFunc("/stop", h.Stop).Methods("POST")
	r.HandleFunc("/strategy/{name}/start", h.StartStrategy).Methods("POST")
	r.HandleFunc("/strategy/{name}/stop", h.StopStrategy).Methods("POST")
	r.HandleFunc("/history", h.GetHistory).Methods("GET")
	return r
}

func serve(t *testing.T, r http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestControlHandler_NilService(t *testing.T) {
	r := newTestRouter(nil)

	t.Run("reads return empty defaults", func(t *testing.T) {
		rec := serve(t, r, "GET", "/status")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"running":false,"dry_run":false,"strategies":[],"history_size":0}`, rec.Body.String())

		rec = serve(t, r, "GET", "/history")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"signals":[],"count":0}`, rec.Body.String())
	})

	t.Run("writes are unavailable", func(t *testing.T) {
		for _, path := range []string{"/start", "/stop", "/strategy/momentum/start", "/strategy/momentum/stop"} {
			rec := serve(t, r, "POST", path)
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
			assert.Contains(t, rec.Body.String(), "SERVICE_UNAVAILABLE")
		}
	})
}

func TestControlHandler_StartAndStatus(t *testing.T) {
	svc := newFakeService()
	r := newTestRouter(svc)

	rec := serve(t, r, "POST", "/start")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"started"}`, rec.Body.String())

	rec = serve(t, r, "GET", "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var status schedulerService.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Running)
	require.Len(t, status.Strategies, 1)
	assert.Equal(t, "momentum", status.Strategies[0].Name)
}

func TestControlHandler_StartError(t *testing.T) {
	svc := newFakeService()
	svc.startErr = errors.New("boom")

	rec := serve(t, newTestRouter(svc), "POST", "/start")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestControlHandler_StopLiquidatesAndClearsState(t *testing.T) {
	svc := newFakeService()
	svc.running = true

	rec := serve(t, newTestRouter(svc), "POST", "/stop")
	require.Equal(t, http.StatusOK, rec.Code)

	require.NotNil(t, svc.stopSave)
	assert.False(t, *svc.stopSave)
	assert.True(t, svc.cleared)
	assert.False(t, svc.ctxCanceled)
}

func TestControlHandler_ToggleStrategy(t *testing.T) {
	svc := newFakeService()
	r := newTestRouter(svc)

	rec := serve(t, r, "POST", "/strategy/momentum/start")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"strategy":"momentum","enabled":true}`, rec.Body.String())
	assert.True(t, svc.enabled["momentum"])

	rec = serve(t, r, "POST", "/strategy/momentum/stop")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, svc.enabled["momentum"])

	rec = serve(t, r, "POST", "/strategy/unknown/start")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown")
}

func TestControlHandler_History(t *testing.T) {
	svc := newFakeService()
	svc.history = []strategy.SignalRecord{
		{StrategyName: "momentum", Code: "005930", Action: "BUY", Price: 70000, APISuccess: true},
	}

	rec := serve(t, newTestRouter(svc), "GET", "/history?strategy=momentum")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "momentum", svc.historyArg)

	var resp HistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "005930", resp.Signals[0].Code)
}
