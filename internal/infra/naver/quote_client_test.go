package naver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteClient_GetQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/005930":
			w.Write([]byte(`{"datas":[{"closePrice":"71,200","fluctuationsRatio":"2.45","accumulatedTradingVolume":"12,345,678"}]}`))
		case "/000660":
			w.Write([]byte(`{"datas":[{"closePrice":"180,000","fluctuationsRatio":"1.00","accumulatedTradingVolume":"100",
				"overMarketPriceInfo":{"overPrice":"181,500","fluctuationsRatio":"0.83","accumulatedTradingVolume":"2,000"}}]}`))
		case "/999999":
			w.Write([]byte(`{"datas":[]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewQuoteClient(srv.URL)
	ctx := context.Background()

	q, err := c.GetQuote(ctx, "005930")
	require.NoError(t, err)
	assert.Equal(t, int64(71200), q.Price)
	assert.Equal(t, 2.45, q.ChangeRate)
	assert.Equal(t, int64(12345678), q.Volume)

	q, err = c.GetQuote(ctx, "000660")
	require.NoError(t, err)
	assert.Equal(t, int64(181500), q.Price, "after-hours price wins")
	assert.Equal(t, int64(2000), q.Volume)

	_, err = c.GetQuote(ctx, "999999")
	assert.Error(t, err)

	_, err = c.GetQuote(ctx, "123456")
	assert.Error(t, err)
}
