package strategy

import "time"

// Signal actions
const (
	ActionBuy  = "BUY"  // 매수
	ActionSell = "SELL" // 매도
)

// MarketPrice is the sentinel price meaning "resolve at execution time"
const MarketPrice int64 = 0

// TradeSignal is a single buy/sell decision produced by a Strategy
type TradeSignal struct {
	StrategyName string `json:"strategy_name"`
	Code         string `json:"code"`   // 종목코드
	Name         string `json:"name"`   // 종목명
	Action       string `json:"action"` // BUY / SELL
	Price        int64  `json:"price"`  // 0 = 시장가
	Qty          int64  `json:"qty"`
	Reason       string `json:"reason"`
}

// IsMarketOrder reports whether the signal carries the market-price sentinel
func (s TradeSignal) IsMarketOrder() bool {
	return s.Price == MarketPrice
}

// Config holds per-strategy scheduling settings
type Config struct {
	Strategy         Strategy
	Interval         time.Duration // 실행 주기
	MaxPositions     int           // 최대 동시 보유 포지션 수
	OrderQty         int64         // 주문 수량
	Enabled          bool          // 개별 전략 활성/비활성
	ForceExitOnClose bool          // 당일 청산 여부
}

// SignalRecord is one executed signal kept for observability
type SignalRecord struct {
	StrategyName string `json:"strategy_name"`
	Code         string `json:"code"`
	Name         string `json:"name"`
	Action       string `json:"action"`
	Price        int64  `json:"price"`
	Reason       string `json:"reason"`
	Timestamp    string `json:"timestamp"` // 2006-01-02 15:04:05 (KST)
	APISuccess   bool   `json:"api_success"`
}

// Quote is a current-price snapshot for one code
type Quote struct {
	Code       string  `json:"code"`
	Price      int64   `json:"price"`       // 현재가
	ChangeRate float64 `json:"change_rate"` // 전일대비율 (%)
	Volume     int64   `json:"volume"`      // 누적거래량
}

// OrderResult is the broker's answer to an order request
type OrderResult struct {
	RtCd    string `json:"rt_cd"` // "0" = success
	MsgCd   string `json:"msg_cd"`
	Msg     string `json:"msg"`
	OrderNo string `json:"order_no,omitempty"`
}

// SuccessCode is the broker result code for an accepted request
const SuccessCode = "0"

// Success reports whether the order was accepted
func (r *OrderResult) Success() bool {
	return r != nil && r.RtCd == SuccessCode
}
