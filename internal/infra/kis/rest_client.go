package kis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/wonny/aegis-strategy/internal/domain/strategy"
)

// TR IDs
const (
	trInquirePrice = "FHKST01010100" // 국내주식 현재가 시세
	trBuyReal      = "TTTC0802U"     // 주식 현금 매수 (실전)
	trSellReal     = "TTTC0801U"     // 주식 현금 매도 (실전)
	trBuyPaper     = "VTTC0802U"     // 주식 현금 매수 (모의)
	trSellPaper    = "VTTC0801U"     // 주식 현금 매도 (모의)
)

// Order divisions
const (
	ordDvsnLimit  = "00" // 지정가
	ordDvsnMarket = "01" // 시장가
)

// RESTClient handles KIS REST API requests
type RESTClient struct {
	auth       *AuthClient
	baseURL    string
	isPaper    bool
	httpClient *http.Client
}

// NewRESTClient creates a new RESTClient
func NewRESTClient(auth *AuthClient, baseURL string, isPaper bool, httpClient *http.Client) *RESTClient {
	return &RESTClient{
		auth:       auth,
		baseURL:    baseURL,
		isPaper:    isPaper,
		httpClient: httpClient,
	}
}

// apiHeader is the common KIS response envelope
type apiHeader struct {
	RtCd  string `json:"rt_cd"` // "0" = success
	MsgCd string `json:"msg_cd"`
	Msg1  string `json:"msg1"`
}

type inquirePriceResponse struct {
	apiHeader
	Output struct {
		StckPrpr string `json:"stck_prpr"` // 현재가
		PrdyCtrt string `json:"prdy_ctrt"` // 전일대비율
		AcmlVol  string `json:"acml_vol"`  // 누적거래량
	} `json:"output"`
}

type orderCashResponse struct {
	apiHeader
	Output struct {
		OrgNo   string `json:"KRX_FWDG_ORD_ORGNO"` // 주문조직번호
		OrderNo string `json:"ODNO"`               // 주문번호
		OrdTmd  string `json:"ORD_TMD"`            // 주문시각
	} `json:"output"`
}

// GetQuote fetches the current price for a code
func (c *RESTClient) GetQuote(ctx context.Context, code string) (*strategy.Quote, error) {
	q := url.Values{}
	q.Set("FID_COND_MRKT_DIV_CODE", "J") // J: 주식, ETF, ETN
	q.Set("FID_INPUT_ISCD", code)

	var resp inquirePriceResponse
	status, err := c.do(ctx, http.MethodGet, "/uapi/domestic-stock/v1/quotations/inquire-price?"+q.Encode(), trInquirePrice, nil, &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK || resp.RtCd != strategy.SuccessCode {
		return nil, fmt.Errorf("KIS quote error: status=%d code=%s msg=%s", status, resp.MsgCd, resp.Msg1)
	}

	price, err := parseInt(resp.Output.StckPrpr)
	if err != nil {
		return nil, fmt.Errorf("parse current price %q: %w", resp.Output.StckPrpr, err)
	}
	quote := &strategy.Quote{Code: code, Price: price}
	if rate, err := strconv.ParseFloat(strings.TrimSpace(resp.Output.PrdyCtrt), 64); err == nil {
		quote.ChangeRate = rate
	}
	if vol, err := parseInt(resp.Output.AcmlVol); err == nil {
		quote.Volume = vol
	}
	return quote, nil
}

// PlaceCashOrder submits a cash buy/sell order. price 0 submits a market order.
// A broker rejection is returned as a result with a non-success code, not as an error.
func (c *RESTClient) PlaceCashOrder(ctx context.Context, accountNo, productCode, code, action string, price, qty int64) (*strategy.OrderResult, error) {
	trID, err := c.orderTrID(action)
	if err != nil {
		return nil, err
	}

	ordDvsn := ordDvsnLimit
	if price == strategy.MarketPrice {
		ordDvsn = ordDvsnMarket
	}

	body := map[string]string{
		"CANO":         accountNo,
		"ACNT_PRDT_CD": productCode,
		"PDNO":         code,
		"ORD_DVSN":     ordDvsn,
		"ORD_QTY":      strconv.FormatInt(qty, 10),
		"ORD_UNPR":     strconv.FormatInt(price, 10),
	}

	var resp orderCashResponse
	status, err := c.do(ctx, http.MethodPost, "/uapi/domestic-stock/v1/trading/order-cash", trID, body, &resp)
	if err != nil {
		return nil, err
	}
	if resp.RtCd == "" {
		return nil, fmt.Errorf("KIS order error: status=%d (no result code)", status)
	}

	return &strategy.OrderResult{
		RtCd:    resp.RtCd,
		MsgCd:   resp.MsgCd,
		Msg:     resp.Msg1,
		OrderNo: resp.Output.OrderNo,
	}, nil
}

func (c *RESTClient) orderTrID(action string) (string, error) {
	switch {
	case action == strategy.ActionBuy && c.isPaper:
		return trBuyPaper, nil
	case action == strategy.ActionBuy:
		return trBuyReal, nil
	case action == strategy.ActionSell && c.isPaper:
		return trSellPaper, nil
	case action == strategy.ActionSell:
		return trSellReal, nil
	}
	return "", fmt.Errorf("unsupported order action %q", action)
}

// do sends an authenticated request and decodes the JSON body into out.
// Non-2xx responses are still decoded since KIS reports errors in the envelope.
func (c *RESTClient) do(ctx context.Context, method, path, trID string, body any, out any) (int, error) {
	token, err := c.auth.GetAccessToken(ctx)
	if err != nil {
		return 0, fmt.Errorf("get access token: %w", err)
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("authorization", "Bearer "+token)
	req.Header.Set("appkey", c.auth.appKey)
	req.Header.Set("appsecret", c.auth.appSecret)
	req.Header.Set("tr_id", trID)
	req.Header.Set("custtype", "P") // 개인

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return resp.StatusCode, fmt.Errorf("KIS API error: status=%d body=%s", resp.StatusCode, string(respBody))
	}
	return resp.StatusCode, nil
}

func parseInt(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}
