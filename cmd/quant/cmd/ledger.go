package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/wonny/aegis-strategy/internal/domain/trade"
)

var (
	holdsStrategy string
	fixBuyDate    string
)

// ledgerCmd ledger 서브커맨드
var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "매매 원장 조회/보정",
	Long: `전략별 매매 원장을 조회하고 보정합니다.

Examples:
  go run ./cmd/quant ledger summary
  go run ./cmd/quant ledger holds --strategy=momentum
  go run ./cmd/quant ledger fix-sell-price 005930 71200 --buy-date=2026-10-15
  go run ./cmd/quant ledger backfill`,
}

var ledgerSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "매도 완료 거래 요약 (승률, 평균 수익률)",
	Args:  cobra.NoArgs,
	RunE:  runLedgerSummary,
}

var ledgerHoldsCmd = &cobra.Command{
	Use:   "holds",
	Short: "보유 중 포지션 목록",
	Args:  cobra.NoArgs,
	RunE:  runLedgerHolds,
}

var ledgerFixSellPriceCmd = &cobra.Command{
	Use:   "fix-sell-price <code> <price>",
	Short: "매도가 0으로 기록된 SOLD 행 보정",
	Args:  cobra.ExactArgs(2),
	RunE:  runLedgerFixSellPrice,
}

var ledgerBackfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "과거 종가로 누락된 일별 스냅샷 채우기",
	Args:  cobra.NoArgs,
	RunE:  runLedgerBackfill,
}

func init() {
	ledgerHoldsCmd.Flags().StringVar(&holdsStrategy, "strategy", "", "filter by strategy name")
	ledgerFixSellPriceCmd.Flags().StringVar(&fixBuyDate, "buy-date", "", "match only rows bought on YYYY-MM-DD")

	ledgerCmd.AddCommand(ledgerSummaryCmd)
	ledgerCmd.AddCommand(ledgerHoldsCmd)
	ledgerCmd.AddCommand(ledgerFixSellPriceCmd)
	ledgerCmd.AddCommand(ledgerBackfillCmd)
}

func runLedgerSummary(cmd *cobra.Command, args []string) error {
	l, err := openLedger(cmd.Context())
	if err != nil {
		return err
	}
	defer l.Close()

	s := l.Summary()
	if asJSON {
		return printJSON(s)
	}

	fmt.Printf("📊 거래 수: %d\n", s.TotalTrades)
	fmt.Printf("   승률: %.2f%%\n", s.WinRate)
	fmt.Printf("   평균 수익률: %.2f%%\n", s.AvgReturn)
	return nil
}

func runLedgerHolds(cmd *cobra.Command, args []string) error {
	l, err := openLedger(cmd.Context())
	if err != nil {
		return err
	}
	defer l.Close()

	holds := l.Holds()
	if holdsStrategy != "" {
		holds = l.HoldsByStrategy(holdsStrategy)
	}
	if asJSON {
		if holds == nil {
			holds = []trade.Trade{}
		}
		return printJSON(holds)
	}

	if len(holds) == 0 {
		fmt.Println("보유 포지션 없음")
		return nil
	}

	rows := make([]string, 0, len(holds))
	for _, t := range holds {
		rows = append(rows, fmt.Sprintf("%s\t%s\t%s\t%d\t%d", t.Strategy, t.Code, t.BuyDate, t.BuyPrice, t.Qty))
	}
	return printTable(os.Stdout, "STRATEGY\tCODE\tBUY_DATE\tBUY_PRICE\tQTY", rows)
}

func runLedgerFixSellPrice(cmd *cobra.Command, args []string) error {
	price, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || price <= 0 {
		return fmt.Errorf("invalid price: %q", args[1])
	}

	l, err := openLedger(cmd.Context())
	if err != nil {
		return err
	}
	defer l.Close()

	n, err := l.FixSellPrice(cmd.Context(), args[0], fixBuyDate, price)
	if errors.Is(err, trade.ErrNothingToFix) {
		fmt.Printf("보정할 행 없음 (code=%s)\n", args[0])
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("✅ %d개 행 보정 완료 (code=%s, sell_price=%d)\n", n, args[0], price)
	return nil
}

func runLedgerBackfill(cmd *cobra.Command, args []string) error {
	l, err := openLedger(cmd.Context())
	if err != nil {
		return err
	}
	defer l.Close()

	fmt.Println("⏳ 과거 종가 조회 중...")
	n, err := l.Backfill(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("✅ %d일 스냅샷 채움\n", n)
	return nil
}
