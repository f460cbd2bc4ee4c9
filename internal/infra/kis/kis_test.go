package kis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wonny/aegis-strategy/internal/domain/strategy"
	"github.com/wonny/aegis-strategy/internal/pkg/config"
)

type fakeKIS struct {
	tokenCalls atomic.Int32

	mu        sync.Mutex
	lastTrID  string
	lastOrder map[string]string
	orderResp string
}

func (f *fakeKIS) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/tokenP", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":86400}`))
	})
	mux.HandleFunc("/uapi/domestic-stock/v1/quotations/inquire-price", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("FID_INPUT_ISCD") == "999999" {
			w.Write([]byte(`{"rt_cd":"1","msg_cd":"EGW00001","msg1":"not found"}`))
			return
		}
		w.Write([]byte(`{"rt_cd":"0","msg_cd":"MCA00000","msg1":"ok","output":{"stck_prpr":"71000","prdy_ctrt":"-1.25","acml_vol":"1234567"}}`))
	})
	mux.HandleFunc("/uapi/domestic-stock/v1/trading/order-cash", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)

		f.mu.Lock()
		f.lastTrID = r.Header.Get("tr_id")
		f.lastOrder = body
		resp := f.orderResp
		f.mu.Unlock()

		if resp == "" {
			resp = `{"rt_cd":"0","msg_cd":"APBK0013","msg1":"주문 전송 완료","output":{"ODNO":"0000117057","ORD_TMD":"121052"}}`
		}
		w.Write([]byte(resp))
	})
	return mux
}

func newTestGateway(t *testing.T, paper bool) (*Gateway, *fakeKIS) {
	t.Helper()
	fake := &fakeKIS{}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	cfg := ConfigFrom(config.KISConfig{
		AppKey:    "key",
		AppSecret: "secret",
		AccountNo: "12345678-01",
		IsPaper:   paper,
		BaseURL:   srv.URL,
	})
	gw, err := NewGateway(NewClient(cfg), cfg)
	require.NoError(t, err)
	return gw, fake
}

func TestConfigFrom(t *testing.T) {
	assert.Equal(t, PaperBaseURL, ConfigFrom(config.KISConfig{IsPaper: true}).BaseURL)
	assert.Equal(t, RealBaseURL, ConfigFrom(config.KISConfig{IsPaper: false}).BaseURL)
	assert.Equal(t, "http://localhost:1", ConfigFrom(config.KISConfig{BaseURL: "http://localhost:1/"}).BaseURL)

	assert.Error(t, Config{AppKey: "k", AppSecret: "s", AccountNo: "12345678"}.Validate())
	assert.NoError(t, Config{AppKey: "k", AppSecret: "s", AccountNo: "12345678-01"}.Validate())
}

func TestGetQuote(t *testing.T) {
	gw, fake := newTestGateway(t, true)
	ctx := context.Background()

	q, err := gw.GetQuote(ctx, "005930")
	require.NoError(t, err)
	assert.Equal(t, &strategy.Quote{Code: "005930", Price: 71000, ChangeRate: -1.25, Volume: 1234567}, q)

	_, err = gw.GetQuote(ctx, "999999")
	assert.ErrorContains(t, err, "EGW00001")

	assert.Equal(t, int32(1), fake.tokenCalls.Load(), "token is cached across calls")
}

func TestPlaceOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("paper market buy", func(t *testing.T) {
		gw, fake := newTestGateway(t, true)

		res, err := gw.PlaceBuyOrder(ctx, "005930", 0, 3)
		require.NoError(t, err)
		assert.True(t, res.Success())
		assert.Equal(t, "0000117057", res.OrderNo)

		assert.Equal(t, trBuyPaper, fake.lastTrID)
		assert.Equal(t, map[string]string{
			"CANO":         "12345678",
			"ACNT_PRDT_CD": "01",
			"PDNO":         "005930",
			"ORD_DVSN":     ordDvsnMarket,
			"ORD_QTY":      "3",
			"ORD_UNPR":     "0",
		}, fake.lastOrder)
	})

	t.Run("real limit sell", func(t *testing.T) {
		gw, fake := newTestGateway(t, false)

		_, err := gw.PlaceSellOrder(ctx, "000660", 180000, 1)
		require.NoError(t, err)
		assert.Equal(t, trSellReal, fake.lastTrID)
		assert.Equal(t, ordDvsnLimit, fake.lastOrder["ORD_DVSN"])
		assert.Equal(t, "180000", fake.lastOrder["ORD_UNPR"])
	})

	t.Run("rejection is a result, not an error", func(t *testing.T) {
		gw, fake := newTestGateway(t, true)
		fake.orderResp = `{"rt_cd":"1","msg_cd":"APBK0919","msg1":"주문가능금액 부족"}`

		res, err := gw.PlaceBuyOrder(ctx, "005930", 70000, 1)
		require.NoError(t, err)
		assert.False(t, res.Success())
		assert.Equal(t, "APBK0919", res.MsgCd)
	})
}

func TestAuthClient_SharedRefresh(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		w.Write([]byte(`{"access_token":"tok"}`))
	}))
	defer srv.Close()

	auth := NewAuthClient("k", "s", srv.URL, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := auth.GetAccessToken(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "tok", token)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestAuthClient_RateLimitHold(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error_code":"EGW00133","error_description":"접근토큰 발급 잠시 후 다시 시도하세요(1분당 1회)"}`))
	}))
	defer srv.Close()

	auth := NewAuthClient("k", "s", srv.URL, nil)
	ctx := context.Background()

	_, err := auth.GetAccessToken(ctx)
	require.Error(t, err)
	_, err = auth.GetAccessToken(ctx)
	assert.ErrorContains(t, err, "on hold")
	assert.Equal(t, int32(1), calls.Load())
}
